package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/minios-linux/locsync/i18n"
	"github.com/minios-linux/locsync/syncer"
	"github.com/minios-linux/locsync/watch"
)

// ---------------------------------------------------------------------------
// sync (translate what changed)
// ---------------------------------------------------------------------------

type syncFlags struct {
	providerFlags
	dryRun bool
	diff   bool
	force  bool
	prune  bool
}

func (f *syncFlags) register(cmd *cobra.Command) {
	fl := cmd.Flags()
	fl.StringVar(&f.apiKey, "api-key", "", "API key (overrides LOCSYNC_API_KEY and stored keys)")
	fl.StringVar(&f.baseURL, "base-url", "", "OpenAI-compatible API base URL")
	fl.StringVar(&f.model, "model", "", "Model name")
	fl.IntVar(&f.concurrency, "concurrency", 0, "Maximum concurrent requests")
	fl.StringSliceVarP(&f.langs, "lang", "l", nil, "Only these target languages (comma-separated)")
	fl.BoolVarP(&f.force, "force", "f", false, "Retranslate every key, ignoring snapshots")
	fl.BoolVar(&f.prune, "prune", false, "Delete target files whose base file is gone")
}

func newSyncCmd() *cobra.Command {
	var f syncFlags
	cmd := &cobra.Command{
		Use:   "sync [files...]",
		Short: "Translate keys that are new or changed since the last run",
		Long: `Translate keys that are new or whose source text changed since the last
run. Files are given relative to the base language directory; without
arguments every base file is synced.

Exit status is 1 when any file could not be processed. Keys that fail to
translate keep their previous value, are listed in the failure report and
are retried on the next run.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := loadProject(f.providerFlags, !f.dryRun)
			if err != nil {
				return err
			}
			defer p.close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			sum, err := runSync(ctx, p, args, f)
			if err != nil {
				return err
			}
			if code := sum.ExitCode(); code != 0 {
				return exitError{code: code}
			}
			return nil
		},
	}
	f.register(cmd)
	cmd.Flags().BoolVarP(&f.dryRun, "dry-run", "n", false, "Show what would change without calling the API or writing files")
	cmd.Flags().BoolVar(&f.diff, "diff", false, "Print a unified diff of every changed target file")
	return cmd
}

// runSync performs one sync of the named files (all when empty) and prints
// the per-file results and the totals.
func runSync(ctx context.Context, p *project, args []string, f syncFlags) (syncer.Summary, error) {
	files, err := p.resolveFiles(args)
	if err != nil {
		return syncer.Summary{}, err
	}
	if len(files) == 0 {
		p.log.Warn(i18n.T("No base locale files found in %s"), p.layout.BaseDir())
		return syncer.Summary{}, nil
	}
	if len(p.cfg.TargetLangs) == 0 {
		p.log.Warn(i18n.T("No target languages configured"))
		return syncer.Summary{}, nil
	}

	if f.dryRun {
		p.log.Info(i18n.T("Dry run: no requests are sent and no files are written"))
	}
	p.log.Info(i18n.T("Syncing %d file(s) into %d language(s) with %s"),
		len(files), len(p.cfg.TargetLangs), p.cfg.Provider.Model)

	p.sync.OnResult = func(r syncer.FileResult, done, total int) {
		reportResult(p, r, f.dryRun)
		if r.Diff != "" {
			fmt.Print(r.Diff)
		}
	}
	sum, err := p.sync.Run(ctx, files, syncer.Options{
		DryRun:   f.dryRun,
		ShowDiff: f.diff,
		Force:    f.force,
	})
	if err != nil {
		p.log.Error("%v", err)
	}

	// Prune only considers full runs; a file subset says nothing about
	// which base files still exist.
	if f.prune && len(args) == 0 {
		removed, perr := p.sync.Prune(files, f.dryRun)
		for _, path := range removed {
			if f.dryRun {
				p.log.Info(i18n.T("Would remove %s"), path)
			} else {
				p.log.Info(i18n.T("Removed %s"), path)
			}
		}
		if perr != nil {
			p.log.Error("%v", perr)
		}
	}

	printSummary(p, sum, f.dryRun)
	if ctx.Err() != nil {
		return sum, ctx.Err()
	}
	return sum, err
}

func reportResult(p *project, r syncer.FileResult, dryRun bool) {
	name := r.Lang + "/" + r.File
	switch {
	case r.Err != nil:
		p.log.Error("%s: %v", name, r.Err)
	case r.Written && dryRun:
		p.log.Info(i18n.T("%s: would update (+%d ~%d -%d)"), name, r.Added, r.Modified, r.Removed)
	case r.Written:
		p.log.Success(i18n.T("%s: updated (+%d ~%d -%d, %d translated, %d cached)"),
			name, r.Added, r.Modified, r.Removed, r.Translated, r.CacheHits)
	default:
		p.log.Debug("%s: up to date", name)
	}
	if r.KeyFailures > 0 {
		p.log.Warn(i18n.T("%s: %d key(s) failed, previous values kept"), name, r.KeyFailures)
	}
}

func printSummary(p *project, s syncer.Summary, dryRun bool) {
	bold := color.New(color.Bold).SprintFunc()
	verb := i18n.T("Written")
	if dryRun {
		verb = i18n.T("Would write")
	}
	p.log.Info("%s %d/%d, %s %d, %s %d, %s %d",
		bold(verb), s.Written, s.Files,
		i18n.T("translated"), s.Translated,
		i18n.T("from cache"), s.CacheHits,
		i18n.T("unchanged"), s.Unchanged)
	if s.KeyFailures > 0 {
		p.log.Warn(i18n.T("%d key(s) failed; see %s"), s.KeyFailures, p.cfg.Abs(p.cfg.ReportPath))
	}
	if s.FailedFiles > 0 {
		p.log.Error(i18n.N("%d file failed", "%d files failed", s.FailedFiles), s.FailedFiles)
	}
}

// ---------------------------------------------------------------------------
// watch (sync on change)
// ---------------------------------------------------------------------------

func newWatchCmd() *cobra.Command {
	var f syncFlags
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Sync continuously as base locale files change",
		Long: `Run a full sync, then watch the base language directory and sync the
files that change. Bursts of events are coalesced over the configured
debounce window. With --prune, deleting a base file removes its
translations.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := loadProject(f.providerFlags, true)
			if err != nil {
				return err
			}
			defer p.close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runWatch(ctx, p, f)
		},
	}
	f.register(cmd)
	return cmd
}

func runWatch(ctx context.Context, p *project, f syncFlags) error {
	if _, err := runSync(ctx, p, nil, f); err != nil && ctx.Err() == nil {
		return err
	}
	// Force applies to the initial run only.
	f.force = false

	w, err := watch.New(p.layout.BaseDir(), func(path string) bool {
		rel, ok := p.layout.Rel(path)
		return ok && p.layout.IsLocaleFile(rel)
	})
	if err != nil {
		return err
	}
	go func() {
		for err := range w.Errors() {
			p.log.Warn(i18n.T("Watch error: %v"), err)
		}
	}()
	go func() { _ = w.Run(ctx) }()

	p.log.Info(i18n.T("Watching %s (Ctrl+C to stop)"), p.layout.BaseDir())
	for batch := range watch.Debounce(ctx, w.Events(), p.cfg.Debounce) {
		var changed []string
		for _, ev := range batch {
			rel, ok := p.layout.Rel(ev.Path)
			if !ok {
				continue
			}
			if ev.Kind == watch.Removed {
				if _, err := os.Stat(ev.Path); err == nil {
					// Renamed over or recreated before the window closed.
					changed = append(changed, rel)
					continue
				}
				handleRemoved(p, rel, f.prune)
				continue
			}
			changed = append(changed, rel)
		}
		if len(changed) == 0 {
			continue
		}
		p.log.Info(i18n.T("Change detected: %d file(s)"), len(changed))
		if _, err := runSync(ctx, p, changed, f); err != nil && ctx.Err() == nil {
			p.log.Error("%v", err)
		}
	}
	p.log.Info(i18n.T("Stopped watching"))
	return nil
}

func handleRemoved(p *project, rel string, prune bool) {
	if !prune {
		p.log.Info(i18n.T("%s was removed; run with --prune to delete its translations"), rel)
		return
	}
	removed, err := p.sync.RemoveFile(rel, false)
	for _, path := range removed {
		p.log.Info(i18n.T("Removed %s"), path)
	}
	if err != nil {
		p.log.Error("%v", err)
	}
	if err := p.snaps.Save(); err != nil {
		p.log.Error("saving snapshots: %v", err)
	}
}
