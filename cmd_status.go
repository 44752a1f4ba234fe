package main

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/minios-linux/locsync/i18n"
	"github.com/minios-linux/locsync/syncer"
)

// ---------------------------------------------------------------------------
// status (dry-run overview)
// ---------------------------------------------------------------------------

func newStatusCmd() *cobra.Command {
	var langs []string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show what a sync would do, without doing it",
		Long: `Show the project configuration and, per target language, how many keys
are up to date and how many a sync would translate. Does not contact the
translation service and does not modify any files.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := loadProject(providerFlags{langs: langs}, false)
			if err != nil {
				return err
			}
			defer p.close()
			return runStatus(cmd.Context(), cmd.ErrOrStderr(), p)
		},
	}
	cmd.Flags().StringSliceVarP(&langs, "lang", "l", nil, "Only these target languages (comma-separated)")
	return cmd
}

// langStatus aggregates the dry-run results of one language.
type langStatus struct {
	lang    string
	files   int
	keys    int
	current int
	pending int
	removed int
	failed  int
}

func runStatus(ctx context.Context, w io.Writer, p *project) error {
	blue := color.New(color.FgBlue, color.Bold).SprintFunc()
	rule := strings.Repeat("─", 60)

	fmt.Fprintf(w, "\n%s\n%s\n", blue(i18n.T("Project")), rule)
	fmt.Fprintf(w, "  %-12s %s\n", i18n.T("Locales:"), p.layout.Dir)
	fmt.Fprintf(w, "  %-12s %s\n", i18n.T("Base:"), p.cfg.BaseLang)
	fmt.Fprintf(w, "  %-12s %s\n", i18n.T("Targets:"), strings.Join(p.cfg.TargetLangs, ", "))
	fmt.Fprintf(w, "  %-12s %s (%s)\n", i18n.T("Model:"), p.cfg.Provider.Model, p.cfg.Provider.BaseURL)
	if len(p.cfg.Skip) > 0 {
		fmt.Fprintf(w, "  %-12s %s\n", i18n.T("Skip:"), strings.Join(p.cfg.Skip, ", "))
	}

	files, err := p.resolveFiles(nil)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "  %-12s %d\n", i18n.T("Base files:"), len(files))

	sum, err := p.sync.Run(ctx, files, syncer.Options{DryRun: true})
	if err != nil {
		return err
	}
	stats := collectStatus(sum)

	fmt.Fprintf(w, "\n%s\n%s\n", blue(i18n.T("Translation Status")), rule)
	fmt.Fprintf(w, "  %-8s %-8s %-8s %-8s  %s\n",
		i18n.T("Lang"), i18n.T("Keys"), i18n.T("Done"), i18n.T("Pending"), "")
	for _, s := range stats {
		percent := 100
		if s.keys > 0 {
			percent = s.current * 100 / s.keys
		}
		fmt.Fprintf(w, "  %-8s %-8d %-8d %-8d  %s\n", s.lang, s.keys, s.current, s.pending, progressBar(percent, 20))
		if s.failed > 0 {
			fmt.Fprintf(w, "           %s\n", color.RedString(i18n.T("%d file(s) unreadable"), s.failed))
		}
	}

	fmt.Fprintf(w, "\n%s\n%s\n", blue(i18n.T("State")), rule)
	fmt.Fprintf(w, "  %-12s %d %s\n", i18n.T("Cache:"), p.cache.Len(), i18n.T("entries"))
	snapFiles, snapKeys := p.snaps.Stats()
	fmt.Fprintf(w, "  %-12s %d %s, %d %s\n", i18n.T("Snapshots:"), snapFiles, i18n.T("files"), snapKeys, i18n.T("keys"))
	fmt.Fprintln(w)

	if sum.Added+sum.Modified > 0 {
		fmt.Fprintf(w, "%s locsync sync\n\n", i18n.T("Run:"))
	}
	return nil
}

// collectStatus folds file results into per-language rows sorted by
// language.
func collectStatus(sum syncer.Summary) []langStatus {
	byLang := make(map[string]*langStatus)
	for _, r := range sum.Results {
		s, ok := byLang[r.Lang]
		if !ok {
			s = &langStatus{lang: r.Lang}
			byLang[r.Lang] = s
		}
		s.files++
		if r.Err != nil {
			s.failed++
			continue
		}
		s.keys += r.Added + r.Modified + r.Unchanged + r.Skipped
		s.current += r.Unchanged + r.Skipped
		s.pending += r.Added + r.Modified
		s.removed += r.Removed
	}
	out := make([]langStatus, 0, len(byLang))
	for _, s := range byLang {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].lang < out[j].lang })
	return out
}

// progressBar renders a colored bar of the given width for percent (0..100).
func progressBar(percent, width int) string {
	percent = max(0, min(percent, 100))
	filled := percent * width / 100
	bar := strings.Repeat("█", filled) + strings.Repeat("░", width-filled)

	c := color.New(color.FgGreen)
	switch {
	case percent < 50:
		c = color.New(color.FgRed)
	case percent < 100:
		c = color.New(color.FgYellow)
	}
	return fmt.Sprintf("%s %3d%%", c.Sprint(bar), percent)
}
