// Package translate turns translation tasks into results by way of the
// cache, compact token-bounded batches and an OpenAI-compatible completer.
//
// Identical source texts are requested at most once at a time, across every
// pipeline that shares an Orchestrator.
package translate

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/minios-linux/locsync/retry"
)

// ErrNotFound is the per-key failure used when a response carries no usable
// value for a task's id.
var ErrNotFound = errors.New("Translation not found in response")

var errBatchAborted = errors.New("batch aborted")

// Task is one key that needs a translation.
type Task struct {
	Key        string
	SourceText string
	TargetLang string
	FilePath   string
}

// Result is the outcome of one Task.
type Result struct {
	Key            string
	TranslatedText string
	TargetLang     string
	Success        bool
	Err            error
	FromCache      bool
}

// Completer sends one chat completion request and returns the raw content.
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
	Model() string
}

// Cache is the subset of the translation cache the orchestrator needs.
type Cache interface {
	Get(sourceText, targetLang string) (string, bool)
	Set(sourceText, translatedText, targetLang, model string)
}

// Options configures an Orchestrator.
type Options struct {
	// SourceLang is the base language tag.
	SourceLang string
	// MaxTokens is the estimated token ceiling of one batch.
	MaxTokens int
	// SystemPrompt overrides DefaultSystemPrompt.
	SystemPrompt string
	// Retry governs transport retries of a batch.
	Retry retry.Policy
	// OnProgress is called after each batch with the keys done so far.
	OnProgress func(lang string, done, total int)
	// OnLog emits log messages during translation.
	OnLog func(format string, args ...any)
	// OnError emits error messages (batch failures, retries).
	OnError func(format string, args ...any)
	// Verbose enables detailed logging.
	Verbose bool
}

func (o *Options) log(format string, args ...any) {
	if o.OnLog != nil {
		o.OnLog(format, args...)
	}
}

func (o *Options) logError(format string, args ...any) {
	if o.OnError != nil {
		o.OnError(format, args...)
	} else if o.OnLog != nil {
		o.OnLog(format, args...)
	}
}

// Stats counts what an Orchestrator did over its lifetime.
type Stats struct {
	CacheHits    int
	Translated   int
	Failed       int
	Deduplicated int
}

type textKey struct {
	text string
	lang string
}

// flight is one outstanding request for a (text, lang) pair. Waiters block
// on done; text and err are set before done is closed.
type flight struct {
	done chan struct{}
	text string
	err  error
}

// Orchestrator runs translation tasks. It is safe for concurrent use.
type Orchestrator struct {
	completer Completer
	cache     Cache
	pool      *Pool
	opts      Options

	mu       sync.Mutex
	inflight map[textKey]*flight

	cacheHits    int64
	translated   int64
	failed       int64
	deduplicated int64
}

// New returns an Orchestrator. A nil cache disables caching; a nil pool
// allows one request at a time.
func New(c Completer, cache Cache, pool *Pool, opts Options) *Orchestrator {
	if pool == nil {
		pool = NewPool(1)
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = DefaultMaxTokens
	}
	return &Orchestrator{
		completer: c,
		cache:     cache,
		pool:      pool,
		opts:      opts,
		inflight:  make(map[textKey]*flight),
	}
}

// Pool returns the request pool.
func (o *Orchestrator) Pool() *Pool {
	return o.pool
}

// Stats returns a snapshot of the counters.
func (o *Orchestrator) Stats() Stats {
	return Stats{
		CacheHits:    int(atomic.LoadInt64(&o.cacheHits)),
		Translated:   int(atomic.LoadInt64(&o.translated)),
		Failed:       int(atomic.LoadInt64(&o.failed)),
		Deduplicated: int(atomic.LoadInt64(&o.deduplicated)),
	}
}

// Translate resolves every task and returns one Result per task, in task
// order. It never returns early: failures are reported per Result.
func (o *Orchestrator) Translate(ctx context.Context, tasks []Task) []Result {
	results := make([]Result, len(tasks))
	if len(tasks) == 0 {
		return results
	}

	// Group tasks by text so keys sharing a source are requested once.
	groups := make(map[textKey][]int)
	var order []textKey
	for i, t := range tasks {
		k := textKey{t.SourceText, t.TargetLang}
		if _, ok := groups[k]; !ok {
			order = append(order, k)
		} else {
			atomic.AddInt64(&o.deduplicated, 1)
		}
		groups[k] = append(groups[k], i)
	}

	var owned []Task
	waiting := make(map[textKey]*flight)

	for _, k := range order {
		first := tasks[groups[k][0]]
		text, hit, f, owner := o.claim(k)
		switch {
		case hit:
			atomic.AddInt64(&o.cacheHits, int64(len(groups[k])))
			for _, i := range groups[k] {
				results[i] = success(tasks[i], text, true)
			}
		case owner:
			owned = append(owned, first)
			waiting[k] = f
		default:
			// Repeats within the group were counted above.
			atomic.AddInt64(&o.deduplicated, 1)
			waiting[k] = f
		}
	}

	// Send everything we own before waiting on anyone else's flights so two
	// pipelines waiting on each other always make progress.
	if len(owned) > 0 {
		o.run(ctx, owned)
	}

	for k, f := range waiting {
		var text string
		var err error
		select {
		case <-f.done:
			text, err = f.text, f.err
		case <-ctx.Done():
			err = ctx.Err()
		}
		for _, i := range groups[k] {
			if err != nil {
				results[i] = failure(tasks[i], err)
			} else {
				results[i] = success(tasks[i], text, false)
			}
		}
	}

	for _, r := range results {
		if r.Success && !r.FromCache {
			atomic.AddInt64(&o.translated, 1)
		} else if !r.Success {
			atomic.AddInt64(&o.failed, 1)
		}
	}
	return results
}

// claim checks the cache and the in-flight table atomically. Exactly one
// caller becomes the owner of a new flight.
func (o *Orchestrator) claim(k textKey) (text string, hit bool, f *flight, owner bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.cache != nil {
		if v, ok := o.cache.Get(k.text, k.lang); ok {
			return v, true, nil, false
		}
	}
	if f, ok := o.inflight[k]; ok {
		return "", false, f, false
	}
	f = &flight{done: make(chan struct{})}
	o.inflight[k] = f
	return "", false, f, true
}

// resolve publishes the outcome of an owned flight. On success the cache is
// written before the flight leaves the table, so a later claim either sees
// the flight or the cached value.
func (o *Orchestrator) resolve(k textKey, text string, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	f, ok := o.inflight[k]
	if !ok {
		return
	}
	if err == nil && o.cache != nil {
		o.cache.Set(k.text, text, k.lang, o.completer.Model())
	}
	f.text, f.err = text, err
	delete(o.inflight, k)
	close(f.done)
}

// run batches the owned tasks, sends each batch through the pool and
// resolves every owned flight, whatever happens.
func (o *Orchestrator) run(ctx context.Context, owned []Task) {
	byLang := make(map[string][]Task)
	var langs []string
	for _, t := range owned {
		if _, ok := byLang[t.TargetLang]; !ok {
			langs = append(langs, t.TargetLang)
		}
		byLang[t.TargetLang] = append(byLang[t.TargetLang], t)
	}

	var wg sync.WaitGroup
	for _, lang := range langs {
		batches := BatchTasksByTokenLimit(byLang[lang], o.opts.MaxTokens)
		total := len(byLang[lang])
		var done int64

		for bi, batch := range batches {
			wg.Add(1)
			go func(bi int, batch []Task) {
				defer wg.Done()
				o.runBatch(ctx, lang, bi, len(batches), batch)
				n := atomic.AddInt64(&done, int64(len(batch)))
				if o.opts.OnProgress != nil {
					o.opts.OnProgress(lang, int(n), total)
				}
			}(bi, batch)
		}
	}
	wg.Wait()
}

func (o *Orchestrator) runBatch(ctx context.Context, lang string, index, count int, batch []Task) {
	ids := AssignIDs(batch)
	resolved := make(map[string]bool, len(batch))
	defer func() {
		// Anything not settled below (panic, early return) fails rather than
		// leaving waiters blocked.
		for _, id := range ids.IDs() {
			if !resolved[id] {
				t, _ := ids.Task(id)
				o.resolve(textKey{t.SourceText, t.TargetLang}, "", errBatchAborted)
			}
		}
	}()

	if o.opts.Verbose {
		o.opts.log("Batch %d/%d for %s: %d keys", index+1, count, lang, len(batch))
	}

	content, err := o.send(ctx, ids, lang)
	if err != nil {
		o.opts.logError("Batch %d/%d for %s failed: %v", index+1, count, lang, err)
		for _, id := range ids.IDs() {
			t, _ := ids.Task(id)
			o.resolve(textKey{t.SourceText, t.TargetLang}, "", err)
			resolved[id] = true
		}
		return
	}

	values, strategy := ParseResponse(content, ids)
	if o.opts.Verbose && strategy != "" {
		o.opts.log("Batch %d/%d for %s parsed with %s strategy", index+1, count, lang, strategy)
	}
	for _, id := range ids.IDs() {
		t, _ := ids.Task(id)
		k := textKey{t.SourceText, t.TargetLang}
		v, ok := values[id]
		if !ok || v == "" {
			o.resolve(k, "", ErrNotFound)
		} else {
			o.resolve(k, v, nil)
		}
		resolved[id] = true
	}
}

// RetryAfterError is implemented by transport errors that carry a server
// requested wait, such as HTTP 429 with Retry-After.
type RetryAfterError interface {
	error
	RetryAfter() time.Duration
}

// send issues the request for one batch through the pool with retries.
func (o *Orchestrator) send(ctx context.Context, ids *IDMap, lang string) (string, error) {
	system := SystemPrompt(o.opts.SystemPrompt, o.opts.SourceLang, lang)
	user := UserPrompt(ids, o.opts.SourceLang, lang)

	policy := o.opts.Retry
	onRetry := policy.OnRetry
	policy.OnRetry = func(attempt int, delay time.Duration, err error) {
		var ra RetryAfterError
		if errors.As(err, &ra) && ra.RetryAfter() > 0 {
			o.pool.Pause(ra.RetryAfter())
			if o.opts.Verbose {
				o.opts.log("Rate limited, pausing all requests for %v", ra.RetryAfter())
			}
		}
		if onRetry != nil {
			onRetry(attempt, delay, err)
		}
	}

	var content string
	err := policy.Do(ctx, func(ctx context.Context, attempt int) error {
		return o.pool.Do(ctx, func(ctx context.Context) error {
			text, err := o.completer.Complete(ctx, system, user)
			if err != nil {
				return err
			}
			content = text
			return nil
		})
	})
	return content, err
}

func success(t Task, text string, fromCache bool) Result {
	return Result{
		Key:            t.Key,
		TranslatedText: text,
		TargetLang:     t.TargetLang,
		Success:        true,
		FromCache:      fromCache,
	}
}

func failure(t Task, err error) Result {
	return Result{Key: t.Key, TargetLang: t.TargetLang, Err: err}
}
