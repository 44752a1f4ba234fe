package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/minios-linux/locsync/config"
	"github.com/minios-linux/locsync/i18n"
	"github.com/minios-linux/locsync/settings"
)

// ---------------------------------------------------------------------------
// auth (stored API keys)
// ---------------------------------------------------------------------------

func newAuthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage stored API keys",
		Long: `Manage API keys stored in the user data directory.

Keys are filed under the host of the endpoint's base URL, so one store
serves every project that talks to the same service. A key given with
--api-key, the LOCSYNC_API_KEY environment variable or provider.api_key in
.locsync.yaml takes precedence over a stored key.

Examples:
  locsync auth login                                   Store a key for the project's endpoint
  locsync auth login --base-url https://api.groq.com/openai/v1
  locsync auth logout --profile api.groq.com           Remove one key
  locsync auth logout                                  Remove all keys
  locsync auth list                                    Show stored keys`,
	}

	cmd.AddCommand(
		newAuthLoginCmd(),
		newAuthLogoutCmd(),
		newAuthListCmd(),
	)

	return cmd
}

// projectBaseURL returns the provider base URL of the project config, or
// "" when there is no usable config.
func projectBaseURL() string {
	cfg, err := config.Load(rootDir)
	if err != nil {
		return ""
	}
	return cfg.Provider.BaseURL
}

func newAuthLoginCmd() *cobra.Command {
	var baseURL string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Store an API key read from standard input",
		RunE: func(cmd *cobra.Command, args []string) error {
			if baseURL == "" {
				baseURL = projectBaseURL()
			}
			profile := settings.ProfileFor(baseURL)

			fmt.Fprintf(cmd.ErrOrStderr(), i18n.T("API key for %s: "), profile)
			key, err := readLine(cmd.InOrStdin())
			if err != nil {
				return err
			}
			if key == "" {
				return errors.New(i18n.T("no key given"))
			}

			if _, err := settings.SetAPIKey(baseURL, key); err != nil {
				return fmt.Errorf("saving credentials: %w", err)
			}
			stderr.Success(i18n.T("Stored key for %s in %s"), profile, settings.FilePath())
			return nil
		},
	}
	cmd.Flags().StringVar(&baseURL, "base-url", "", "Endpoint base URL (default: from .locsync.yaml)")
	return cmd
}

func readLine(r io.Reader) (string, error) {
	scanner := bufio.NewScanner(r)
	if scanner.Scan() {
		return strings.TrimSpace(scanner.Text()), nil
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("reading input: %w", err)
	}
	return "", nil
}

func newAuthLogoutCmd() *cobra.Command {
	var profile string

	cmd := &cobra.Command{
		Use:   "logout",
		Short: "Remove stored API keys",
		Long: `Remove the key of one profile, or all stored keys when --profile is not
given.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if profile == "" {
				if err := settings.RemoveAll(); err != nil {
					return err
				}
				stderr.Success(i18n.T("All stored credentials removed"))
				return nil
			}
			if settings.Get(profile) == nil {
				return fmt.Errorf(i18n.T("no stored key for %q; run 'locsync auth list'"), profile)
			}
			if err := settings.Remove(profile); err != nil {
				return fmt.Errorf("removing %s: %w", profile, err)
			}
			stderr.Success(i18n.T("Removed key for %s"), profile)
			return nil
		},
	}

	cmd.Flags().StringVar(&profile, "profile", "", "Profile to remove (default: all)")
	_ = cmd.RegisterFlagCompletionFunc("profile", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return settings.Profiles(), cobra.ShellCompDirectiveNoFileComp
	})

	return cmd
}

func newAuthListCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "Show stored keys",
		Run: func(cmd *cobra.Command, args []string) {
			w := cmd.ErrOrStderr()
			blue := color.New(color.FgBlue, color.Bold).SprintFunc()
			fmt.Fprintf(w, "\n%s\n", blue(i18n.T("Stored Credentials")))
			fmt.Fprintln(w, strings.Repeat("─", 60))

			profiles := settings.Profiles()
			if len(profiles) == 0 {
				fmt.Fprintf(w, "  %s\n", color.YellowString(i18n.T("none")))
			}
			for _, name := range profiles {
				info := settings.Get(name)
				fmt.Fprintf(w, "  %-24s %s\n", name, color.GreenString(settings.MaskKey(info.Key)))
				if info.BaseURL != "" {
					fmt.Fprintf(w, "  %-24s %s\n", "", info.BaseURL)
				}
			}

			fmt.Fprintf(w, "\n  %s\n", color.YellowString(i18n.T("Environment")))
			if env := os.Getenv(settings.EnvAPIKey); env != "" {
				fmt.Fprintf(w, "  %s: %s %s\n", settings.EnvAPIKey, color.GreenString(settings.MaskKey(env)), i18n.T("(overrides stored keys)"))
			} else {
				fmt.Fprintf(w, "  %s: %s\n", settings.EnvAPIKey, color.RedString(i18n.T("not set")))
			}
			fmt.Fprintln(w)
		},
	}
}
