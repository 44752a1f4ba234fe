package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/minios-linux/locsync/cache"
	"github.com/minios-linux/locsync/config"
	"github.com/minios-linux/locsync/console"
	"github.com/minios-linux/locsync/failures"
	"github.com/minios-linux/locsync/provider"
	"github.com/minios-linux/locsync/retry"
	"github.com/minios-linux/locsync/scan"
	"github.com/minios-linux/locsync/settings"
	"github.com/minios-linux/locsync/skip"
	"github.com/minios-linux/locsync/snapshot"
	"github.com/minios-linux/locsync/syncer"
	"github.com/minios-linux/locsync/translate"
)

// providerFlags override the provider block of the config.
type providerFlags struct {
	apiKey      string
	baseURL     string
	model       string
	concurrency int
	langs       []string
}

// project is a loaded config with every store and service wired.
type project struct {
	cfg    *config.Config
	log    *console.Logger
	layout scan.Layout
	cache  *cache.Store
	snaps  *snapshot.Store
	pool   *translate.Pool
	orch   *translate.Orchestrator
	sync   *syncer.Syncer
}

func writeSampleConfig(dir string) (string, error) {
	return config.WriteSample(dir)
}

// loadProject reads .locsync.yaml, applies flag overrides and opens the
// stores. Configuration problems are returned before any work starts.
func loadProject(f providerFlags, needProvider bool) (*project, error) {
	cfg, err := config.Load(rootDir)
	if err != nil {
		if errors.Is(err, config.ErrNoConfig) {
			return nil, fmt.Errorf("%w (run `locsync init` to create one)", err)
		}
		return nil, err
	}

	if f.baseURL != "" {
		cfg.Provider.BaseURL = f.baseURL
	}
	if f.model != "" {
		cfg.Provider.Model = f.model
	}
	if f.concurrency > 0 {
		cfg.Concurrency = f.concurrency
	}
	if len(f.langs) > 0 {
		langs, err := selectLanguages(cfg.TargetLangs, f.langs)
		if err != nil {
			return nil, err
		}
		cfg.TargetLangs = langs
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	matcher, err := skip.New(cfg.Skip)
	if err != nil {
		return nil, fmt.Errorf("invalid skip pattern: %w", err)
	}

	log := console.New(console.Options{LogFile: cfg.Abs(cfg.LogFile), Verbose: verbose})
	stderr = log

	p := &project{
		cfg: cfg,
		log: log,
		layout: scan.Layout{
			Dir:      cfg.Abs(cfg.LocalesDir),
			BaseLang: cfg.BaseLang,
			Ignore:   cfg.Ignore,
		},
		cache: cache.Load(cfg.Abs(cfg.CachePath)),
	}
	p.snaps = snapshot.Load(snapshot.PathFor(p.cache.Path()))

	var completer translate.Completer = offlineCompleter{}
	if needProvider {
		apiKey := settings.ResolveAPIKey(f.apiKey, cfg.Provider.APIKey, cfg.Provider.BaseURL)
		if apiKey == "" {
			log.Debug("No API key configured for %s", settings.ProfileFor(cfg.Provider.BaseURL))
		}
		client, err := provider.New(provider.Config{
			BaseURL:     cfg.Provider.BaseURL,
			APIKey:      apiKey,
			Model:       cfg.Provider.Model,
			Proxy:       cfg.Provider.Proxy,
			Timeout:     cfg.Provider.Timeout,
			Temperature: cfg.Provider.Temperature,
		})
		if err != nil {
			return nil, err
		}
		completer = client
	}

	p.pool = translate.NewPool(cfg.Concurrency)
	p.orch = translate.New(completer, p.cache, p.pool, translate.Options{
		SourceLang:   cfg.BaseLang,
		MaxTokens:    cfg.BatchTokens,
		SystemPrompt: cfg.Prompt,
		Retry: retry.Policy{
			MaxRetries: cfg.Provider.Retries(),
			Jitter:     0.2,
			Retryable:  provider.IsRetryable,
			OnRetry: func(attempt int, delay time.Duration, err error) {
				log.Warn("Request failed (%v), retry %d/%d in %v", err, attempt, cfg.Provider.Retries(), delay.Round(time.Millisecond))
			},
		},
		OnLog:      log.Debug,
		OnError:    log.Warn,
		OnProgress: progressReporter(log),
		Verbose:    verbose,
	})

	p.sync = syncer.New(p.layout, cfg.TargetLangs, matcher, p.cache, p.snaps, p.orch,
		failures.New(), cfg.Abs(cfg.ReportPath), log)
	return p, nil
}

// progressReporter draws per-language progress on an interactive
// terminal and falls back to debug lines elsewhere.
func progressReporter(log *console.Logger) func(lang string, done, total int) {
	if console.IsTerminal() && !log.Verbose() {
		return log.Progress
	}
	return func(lang string, done, total int) {
		log.Debug("  %s: %d/%d keys", lang, done, total)
	}
}

// selectLanguages keeps the configured languages named in filter, in
// filter order. An unknown language is an error.
func selectLanguages(configured, filter []string) ([]string, error) {
	known := make(map[string]bool, len(configured))
	for _, l := range configured {
		known[l] = true
	}
	var out []string
	seen := make(map[string]bool)
	for _, l := range filter {
		l = strings.TrimSpace(l)
		if l == "" || seen[l] {
			continue
		}
		if !known[l] {
			return nil, fmt.Errorf("language %q is not in target_langs (%s)", l, strings.Join(configured, ", "))
		}
		seen[l] = true
		out = append(out, l)
	}
	return out, nil
}

// resolveFiles turns command arguments into base file ids. Without
// arguments every base file is returned.
func (p *project) resolveFiles(args []string) ([]string, error) {
	all, err := p.layout.BaseFiles()
	if err != nil {
		return nil, err
	}
	if len(args) == 0 {
		return all, nil
	}

	have := make(map[string]bool, len(all))
	for _, f := range all {
		have[f] = true
	}
	var out []string
	for _, a := range args {
		rel := filepath.ToSlash(a)
		if abs, err := filepath.Abs(a); err == nil {
			if r, ok := p.layout.Rel(abs); ok {
				rel = r
			}
		}
		if !have[rel] {
			return nil, fmt.Errorf("%s is not a base locale file under %s", a, p.layout.BaseDir())
		}
		out = append(out, rel)
	}
	return out, nil
}

// close releases the log file.
func (p *project) close() {
	_ = p.log.Close()
}

// offlineCompleter stands in for the provider when a command must not
// reach the network. Dry runs never call it.
type offlineCompleter struct{}

var errOffline = errors.New("translation service is not available in this mode")

func (offlineCompleter) Complete(context.Context, string, string) (string, error) {
	return "", errOffline
}

func (offlineCompleter) Model() string { return "offline" }
