// Command locsync keeps JSON locale files in sync with the base language using an
// OpenAI-compatible translation service.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/minios-linux/locsync/console"
	"github.com/minios-linux/locsync/i18n"
)

// Version information (set via -ldflags during build)
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// ---------------------------------------------------------------------------
// Global flags
// ---------------------------------------------------------------------------

var (
	rootDir string
	verbose bool
)

// stderr is the process-wide console; commands that load a project replace
// it with one that also writes the project log file.
var stderr = console.New(console.Options{})

// ---------------------------------------------------------------------------
// Root command
// ---------------------------------------------------------------------------

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "locsync",
		Short: i18n.T("Incremental translation sync for JSON locale files"),
		Long: `locsync: incremental translation sync for JSON locale files.

Keeps <locales>/<lang>/*.json in step with the base language. Only keys that
are new or whose source text changed are sent to the translation service;
manual edits in target files are preserved.

Commands:
  init        Write a sample .locsync.yaml
  sync        Translate what changed since the last run
  watch       Sync continuously as base files change
  status      Show what a sync would do, without doing it
  cache       Inspect or clear the translation cache
  auth        Manage stored API keys`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global persistent flags, inherited by all subcommands
	root.PersistentFlags().StringVar(&rootDir, "root", ".", "Project root directory")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Show debug output")

	root.AddCommand(
		newInitCmd(),
		newSyncCmd(),
		newWatchCmd(),
		newStatusCmd(),
		newCacheCmd(),
		newAuthCmd(),
		newVersionCmd(),
	)

	return root
}

// exitError carries a process exit code out of a command.
type exitError struct {
	code int
}

func (e exitError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}

func main() {
	i18n.Init("")
	err := newRootCmd().Execute()
	if err == nil {
		return
	}
	if ee, ok := err.(exitError); ok {
		os.Exit(ee.code)
	}
	stderr.Error("%v", err)
	os.Exit(1)
}

// ---------------------------------------------------------------------------
// version (display version information)
// ---------------------------------------------------------------------------

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Long:  `Display version, commit hash, and build date.`,
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "locsync version %s\n", version)
			fmt.Fprintf(out, "  commit:    %s\n", commit)
			fmt.Fprintf(out, "  built:     %s\n", date)
		},
	}
}

// ---------------------------------------------------------------------------
// init (write a sample config)
// ---------------------------------------------------------------------------

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write a sample .locsync.yaml",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := writeSampleConfig(rootDir)
			if err != nil {
				return err
			}
			stderr.Success(i18n.T("Created %s"), path)
			return nil
		},
	}
}
