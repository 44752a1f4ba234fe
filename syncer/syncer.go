// Package syncer runs the per file and language pipeline: diff the base
// file against the target, translate what changed, merge, write, and
// record what was done.
package syncer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/pmezard/go-difflib/difflib"
	"golang.org/x/sync/errgroup"

	"github.com/minios-linux/locsync/cache"
	"github.com/minios-linux/locsync/diff"
	"github.com/minios-linux/locsync/failures"
	"github.com/minios-linux/locsync/flatten"
	"github.com/minios-linux/locsync/merge"
	"github.com/minios-linux/locsync/scan"
	"github.com/minios-linux/locsync/skip"
	"github.com/minios-linux/locsync/snapshot"
	"github.com/minios-linux/locsync/translate"
)

// Logger is the leveled output the syncer reports through.
type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Success(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// Translator resolves translation tasks.
type Translator interface {
	Translate(ctx context.Context, tasks []translate.Task) []translate.Result
}

// Options select how a run behaves.
type Options struct {
	// DryRun sends no requests and writes nothing. Only cached
	// translations are used to preview the result.
	DryRun bool
	// ShowDiff attaches a unified diff of each target to its result.
	ShowDiff bool
	// Force treats every unskipped key as pending.
	Force bool
}

// Syncer owns the stores of one project. Run may be called repeatedly,
// one call at a time.
type Syncer struct {
	Layout     scan.Layout
	Languages  []string
	Cache      *cache.Store
	Snapshots  *snapshot.Store
	Translator Translator
	Ledger     *failures.Ledger
	ReportPath string
	Log        Logger
	// OnResult, when set, is called as each pipeline finishes.
	OnResult func(r FileResult, done, total int)

	engine *diff.Engine
}

// New wires a Syncer. A cache that had to be discarded on load invalidates
// the snapshots too, since both describe the same translations.
func New(layout scan.Layout, languages []string, matcher *skip.Matcher, c *cache.Store, snaps *snapshot.Store, tr Translator, ledger *failures.Ledger, reportPath string, log Logger) *Syncer {
	if c.WasReset() {
		log.Warn("Translation cache was reset (%v); snapshots reset too", c.Recovered())
		snaps.Reset()
	}
	if err := snaps.Recovered(); err != nil {
		log.Warn("Snapshot file unreadable, starting fresh: %v", err)
	}
	return &Syncer{
		Layout:     layout,
		Languages:  languages,
		Cache:      c,
		Snapshots:  snaps,
		Translator: tr,
		Ledger:     ledger,
		ReportPath: reportPath,
		Log:        log,
		engine:     &diff.Engine{Snapshots: snaps, Skip: matcher},
	}
}

// FileResult is the outcome of one file for one language.
type FileResult struct {
	File string
	Lang string

	Added     int
	Modified  int
	Removed   int
	Skipped   int
	Unchanged int

	Translated  int
	CacheHits   int
	KeyFailures int

	// Written is set when the target file content changed.
	Written bool
	// Diff is the unified diff of the target, when requested.
	Diff string
	// Err is a file-level failure; the other languages and files still run.
	Err error
}

// Summary aggregates a run.
type Summary struct {
	Files       int
	FailedFiles int
	Written     int

	Added     int
	Modified  int
	Removed   int
	Skipped   int
	Unchanged int

	Translated  int
	CacheHits   int
	KeyFailures int

	Results []FileResult
}

// ExitCode is 1 when any file failed, 0 otherwise. Key-level failures are
// reported but do not fail the run.
func (s Summary) ExitCode() int {
	if s.FailedFiles > 0 {
		return 1
	}
	return 0
}

func (s *Summary) add(r FileResult) {
	s.Results = append(s.Results, r)
	s.Files++
	if r.Err != nil {
		s.FailedFiles++
		return
	}
	if r.Written {
		s.Written++
	}
	s.Added += r.Added
	s.Modified += r.Modified
	s.Removed += r.Removed
	s.Skipped += r.Skipped
	s.Unchanged += r.Unchanged
	s.Translated += r.Translated
	s.CacheHits += r.CacheHits
	s.KeyFailures += r.KeyFailures
}

// Run processes every file for every language concurrently. Only requests
// to the translation service are throttled. The stores and the failure
// report are persisted once, after all pipelines finished.
func (s *Syncer) Run(ctx context.Context, files []string, opts Options) (Summary, error) {
	var (
		mu      sync.Mutex
		summary Summary
		g       errgroup.Group
	)
	if !opts.DryRun {
		s.Ledger.Reset()
	}
	total := len(files) * len(s.Languages)

	for _, file := range files {
		for _, lang := range s.Languages {
			g.Go(func() error {
				r := s.pipeline(ctx, file, lang, opts)
				mu.Lock()
				summary.add(r)
				done := summary.Files
				mu.Unlock()
				if s.OnResult != nil {
					s.OnResult(r, done, total)
				}
				return nil
			})
		}
	}
	_ = g.Wait()

	sort.Slice(summary.Results, func(i, j int) bool {
		a, b := summary.Results[i], summary.Results[j]
		if a.File != b.File {
			return a.File < b.File
		}
		return a.Lang < b.Lang
	})

	if opts.DryRun {
		return summary, nil
	}
	s.carryFailures(summary.Results)
	return summary, s.persist()
}

// carryFailures keeps the reported failures of every file and language
// that this run did not process, as long as the base file still exists.
func (s *Syncer) carryFailures(ran []FileResult) {
	if s.ReportPath == "" {
		return
	}
	prior, err := failures.Load(s.ReportPath)
	if err != nil {
		s.Log.Warn("Previous failure report ignored: %v", err)
		return
	}
	done := make(map[string]bool, len(ran))
	for _, r := range ran {
		done[r.Lang+":"+r.File] = true
	}
	s.Ledger.Carry(prior.Failures, func(f failures.Failure) bool {
		if done[f.TargetLang+":"+f.FilePath] {
			return false
		}
		_, err := os.Stat(s.Layout.BasePath(f.FilePath))
		return err == nil
	})
}

// persist saves the cache, the snapshots and the failure report.
func (s *Syncer) persist() error {
	var errs []error
	if err := s.Cache.Save(); err != nil {
		errs = append(errs, fmt.Errorf("saving cache: %w", err))
	}
	if err := s.Snapshots.Save(); err != nil {
		errs = append(errs, fmt.Errorf("saving snapshots: %w", err))
	}
	if s.ReportPath != "" {
		if err := s.Ledger.Save(s.ReportPath); err != nil {
			errs = append(errs, fmt.Errorf("saving failure report: %w", err))
		}
	}
	return errors.Join(errs...)
}

func (s *Syncer) pipeline(ctx context.Context, file, lang string, opts Options) FileResult {
	r := FileResult{File: file, Lang: lang}
	basePath := s.Layout.BasePath(file)
	targetPath := s.Layout.TargetPath(lang, file)

	doc, err := flatten.ParseFile(basePath)
	if err != nil {
		r.Err = err
		s.Log.Error("%s [%s]: %v", file, lang, err)
		return r
	}
	base := flatten.Flatten(doc)

	current, err := os.ReadFile(targetPath)
	if err != nil && !os.IsNotExist(err) {
		s.Log.Warn("%s [%s]: cannot read target, treating as missing: %v", file, lang, err)
	}
	var target *flatten.Map
	if err == nil {
		tdoc, perr := flatten.Decode(current)
		if perr != nil {
			s.Log.Warn("%s [%s]: target is not valid JSON, treating as missing: %v", file, lang, perr)
		} else {
			target = flatten.Flatten(tdoc)
		}
	}

	res := s.engine.Diff(diff.Input{
		Base:       base,
		Target:     target,
		FileID:     file,
		TargetLang: lang,
		Force:      opts.Force,
	})
	r.Added, r.Modified = len(res.Added), len(res.Modified)
	r.Removed, r.Skipped, r.Unchanged = len(res.Removed), len(res.Skipped), len(res.Unchanged)

	if res.HasChanges() {
		s.Log.Debug("%s [%s]: %d added, %d modified, %d removed", file, lang, r.Added, r.Modified, r.Removed)
	}
	pending := res.Pending(base)
	translations := make(map[string]string, len(pending))
	if len(pending) > 0 {
		if opts.DryRun {
			s.previewTranslations(base, pending, lang, translations, &r)
		} else {
			s.translate(ctx, file, lang, base, pending, translations, &r)
		}
	}

	merged := merge.Merge(base, target, translations, res.Skipped)
	out, err := flatten.Encode(doc.Rebuild(merged))
	if err != nil {
		r.Err = fmt.Errorf("encoding %s: %w", targetPath, err)
		s.Log.Error("%s [%s]: %v", file, lang, r.Err)
		return r
	}

	changed := !bytes.Equal(current, out)
	if changed && opts.ShowDiff {
		r.Diff = unifiedDiff(lang+"/"+file, current, out)
	}
	if opts.DryRun {
		r.Written = changed
		return r
	}

	if changed {
		if err := writeFile(targetPath, out); err != nil {
			r.Err = err
			s.Log.Error("%s [%s]: %v", file, lang, err)
			return r
		}
		r.Written = true
	}

	s.recordSnapshots(file, lang, base, res, translations, opts.Force)
	return r
}

// translate sends the pending keys through the translator and records
// every per-key failure in the ledger.
func (s *Syncer) translate(ctx context.Context, file, lang string, base *flatten.Map, pending []string, translations map[string]string, r *FileResult) {
	tasks := make([]translate.Task, 0, len(pending))
	for _, key := range pending {
		src, _ := base.Get(key)
		tasks = append(tasks, translate.Task{Key: key, SourceText: src, TargetLang: lang, FilePath: file})
	}

	for i, res := range s.Translator.Translate(ctx, tasks) {
		if res.Success {
			translations[res.Key] = res.TranslatedText
			if res.FromCache {
				r.CacheHits++
			} else {
				r.Translated++
			}
			continue
		}
		r.KeyFailures++
		msg := "unknown error"
		if res.Err != nil {
			msg = res.Err.Error()
		}
		s.Ledger.Add(failures.Failure{
			Key:        res.Key,
			SourceText: tasks[i].SourceText,
			TargetLang: lang,
			FilePath:   file,
			Error:      msg,
		})
	}
	if r.KeyFailures > 0 {
		s.Log.Warn("%s [%s]: %d keys failed", file, lang, r.KeyFailures)
	}
}

// previewTranslations fills translations from the cache only.
func (s *Syncer) previewTranslations(base *flatten.Map, pending []string, lang string, translations map[string]string, r *FileResult) {
	for _, key := range pending {
		src, _ := base.Get(key)
		if v, ok := s.Cache.Get(src, lang); ok {
			translations[key] = v
			r.CacheHits++
		}
	}
}

// recordSnapshots stores the source hash of every key whose target value
// now corresponds to the current source, and forgets keys gone from base.
func (s *Syncer) recordSnapshots(file, lang string, base *flatten.Map, res diff.Result, translations map[string]string, force bool) {
	if force {
		s.Snapshots.RemoveFile(lang, file)
	}
	entries := make(map[string]string, len(translations)+len(res.Unchanged))
	for key := range translations {
		src, _ := base.Get(key)
		entries[key] = src
	}
	for _, key := range res.Unchanged {
		src, _ := base.Get(key)
		entries[key] = src
	}
	s.Snapshots.SetBatch(lang, file, entries)
	s.Snapshots.Clean(lang, file, base.Keys())
}

// RemoveFile deletes every language's copy of a base file that no longer
// exists, along with its snapshots. With dryRun nothing is touched.
func (s *Syncer) RemoveFile(file string, dryRun bool) ([]string, error) {
	var removed []string
	var errs []error
	for _, lang := range s.Languages {
		path := s.Layout.TargetPath(lang, file)
		if _, err := os.Stat(path); err != nil {
			continue
		}
		removed = append(removed, path)
		if dryRun {
			continue
		}
		if err := os.Remove(path); err != nil {
			errs = append(errs, fmt.Errorf("removing %s: %w", path, err))
			continue
		}
		s.Snapshots.RemoveFile(lang, file)
	}
	return removed, errors.Join(errs...)
}

// Prune removes target files whose base file is not in baseFiles.
func (s *Syncer) Prune(baseFiles []string, dryRun bool) ([]string, error) {
	seen := make(map[string]bool)
	var stale []string
	for _, lang := range s.Languages {
		files, err := s.Layout.Stale(lang, baseFiles)
		if err != nil {
			return nil, err
		}
		for _, f := range files {
			if !seen[f] {
				seen[f] = true
				stale = append(stale, f)
			}
		}
	}
	sort.Strings(stale)

	var removed []string
	var errs []error
	for _, f := range stale {
		paths, err := s.RemoveFile(f, dryRun)
		removed = append(removed, paths...)
		if err != nil {
			errs = append(errs, err)
		}
	}
	if !dryRun && len(removed) > 0 {
		if err := s.Snapshots.Save(); err != nil {
			errs = append(errs, fmt.Errorf("saving snapshots: %w", err))
		}
	}
	return removed, errors.Join(errs...)
}

func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

func unifiedDiff(name string, before, after []byte) string {
	text, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(string(before)),
		B:        difflib.SplitLines(string(after)),
		FromFile: "a/" + name,
		ToFile:   "b/" + name,
		Context:  3,
	})
	if err != nil {
		return ""
	}
	return text
}
