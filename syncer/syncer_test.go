package syncer

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/minios-linux/locsync/cache"
	"github.com/minios-linux/locsync/console"
	"github.com/minios-linux/locsync/failures"
	"github.com/minios-linux/locsync/scan"
	"github.com/minios-linux/locsync/skip"
	"github.com/minios-linux/locsync/snapshot"
	"github.com/minios-linux/locsync/translate"
)

// dictCompleter translates through a fixed dictionary; texts it does not
// know are left out of the reply.
type dictCompleter struct {
	dict  map[string]string
	calls int64
}

func (d *dictCompleter) Model() string { return "dict" }

func (d *dictCompleter) Complete(ctx context.Context, system, user string) (string, error) {
	atomic.AddInt64(&d.calls, 1)
	var req map[string]string
	if err := json.Unmarshal([]byte(user[strings.Index(user, "{"):strings.LastIndex(user, "}")+1]), &req); err != nil {
		return "", err
	}
	resp := make(map[string]string)
	for id, text := range req {
		if v, ok := d.dict[text]; ok {
			resp[id] = v
		}
	}
	out, _ := json.Marshal(resp)
	return string(out), nil
}

type fixture struct {
	root      string
	layout    scan.Layout
	completer *dictCompleter
	report    string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	root := t.TempDir()
	return &fixture{
		root:   root,
		layout: scan.Layout{Dir: filepath.Join(root, "locales"), BaseLang: "en"},
		completer: &dictCompleter{dict: map[string]string{
			"Hello":        "Bonjour",
			"Save":         "Enregistrer",
			"Save file":    "Enregistrer le fichier",
			"Goodbye":      "Au revoir",
			"Open":         "Ouvrir",
			"Welcome back": "Bon retour",
		}},
		report: filepath.Join(root, ".locsync", "failures.json"),
	}
}

func (f *fixture) write(t *testing.T, rel, content string) {
	t.Helper()
	p := filepath.Join(f.layout.Dir, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0644))
}

func (f *fixture) read(t *testing.T, rel string) map[string]any {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(f.layout.Dir, filepath.FromSlash(rel)))
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, json.Unmarshal(data, &out))
	return out
}

// syncer builds a Syncer over freshly loaded stores, the way each CLI
// invocation does.
func (f *fixture) syncer(t *testing.T, skipPatterns ...string) *Syncer {
	t.Helper()
	cachePath := filepath.Join(f.root, ".locsync", "cache.json")
	c := cache.Load(cachePath)
	snaps := snapshot.Load(snapshot.PathFor(cachePath))
	orch := translate.New(f.completer, c, translate.NewPool(2), translate.Options{SourceLang: "en"})
	return New(f.layout, []string{"fr"}, skip.MustNew(skipPatterns...), c, snaps, orch, failures.New(), f.report, console.Discard())
}

func (f *fixture) calls() int64 {
	return atomic.LoadInt64(&f.completer.calls)
}

func TestRunCreatesTargetAndIsIdempotent(t *testing.T) {
	f := newFixture(t)
	f.write(t, "en/common.json", `{
  "greeting": "Hello",
  "actions": {"save": "Save", "save2": "Save"},
  "brand": {"name": "LocSync"},
  "limits": {"max": 5, "tags": ["a", "b"], "none": null}
}`)

	s := f.syncer(t, "brand.**")
	sum, err := s.Run(context.Background(), []string{"common.json"}, Options{})
	require.NoError(t, err)
	assert.Equal(t, 0, sum.ExitCode())
	assert.Equal(t, 3, sum.Added)
	assert.Equal(t, 1, sum.Skipped)
	assert.Equal(t, 3, sum.Translated)
	assert.Equal(t, int64(1), f.calls(), "one request, shared text sent once")

	got := f.read(t, "fr/common.json")
	assert.Equal(t, "Bonjour", got["greeting"])
	assert.Equal(t, map[string]any{"save": "Enregistrer", "save2": "Enregistrer"}, got["actions"])
	assert.Equal(t, map[string]any{"name": "LocSync"}, got["brand"])
	assert.Equal(t, map[string]any{"max": float64(5), "tags": []any{"a", "b"}, "none": nil}, got["limits"])

	// A second run over fresh stores finds nothing to do.
	sum, err = f.syncer(t, "brand.**").Run(context.Background(), []string{"common.json"}, Options{})
	require.NoError(t, err)
	assert.Equal(t, 0, sum.Written)
	assert.Equal(t, 0, sum.Added+sum.Modified)
	assert.Equal(t, int64(1), f.calls())
}

func TestRunRetranslatesChangedSourceOnly(t *testing.T) {
	f := newFixture(t)
	f.write(t, "en/app.json", `{"a": "Hello", "b": "Save"}`)
	_, err := f.syncer(t).Run(context.Background(), []string{"app.json"}, Options{})
	require.NoError(t, err)

	// A translator edits b by hand; the source of a changes.
	f.write(t, "fr/app.json", `{"a": "Bonjour", "b": "Sauvegarder"}`)
	f.write(t, "en/app.json", `{"a": "Welcome back", "b": "Save"}`)

	sum, err := f.syncer(t).Run(context.Background(), []string{"app.json"}, Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Modified)
	assert.Equal(t, 1, sum.Unchanged)

	got := f.read(t, "fr/app.json")
	assert.Equal(t, "Bon retour", got["a"])
	assert.Equal(t, "Sauvegarder", got["b"], "manual translation preserved")
}

func TestRunAcceptsExistingTranslationsWithoutSnapshot(t *testing.T) {
	f := newFixture(t)
	f.write(t, "en/app.json", `{"a": "Hello", "b": "Open", "c": "Save"}`)
	f.write(t, "fr/app.json", `{"a": "Salut", "b": "Open", "old": "Vieux"}`)

	sum, err := f.syncer(t).Run(context.Background(), []string{"app.json"}, Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Unchanged, "foreign value kept")
	assert.Equal(t, 1, sum.Modified, "value still equal to source")
	assert.Equal(t, 1, sum.Added)
	assert.Equal(t, 1, sum.Removed)

	got := f.read(t, "fr/app.json")
	assert.Equal(t, map[string]any{"a": "Salut", "b": "Ouvrir", "c": "Enregistrer"}, got)
}

func TestRunForceRetranslatesEverything(t *testing.T) {
	f := newFixture(t)
	f.write(t, "en/app.json", `{"a": "Hello"}`)
	f.write(t, "fr/app.json", `{"a": "Salut"}`)

	sum, err := f.syncer(t).Run(context.Background(), []string{"app.json"}, Options{Force: true})
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Modified)
	assert.Equal(t, "Bonjour", f.read(t, "fr/app.json")["a"])
}

func TestRunBadBaseFileFailsOnlyThatFile(t *testing.T) {
	f := newFixture(t)
	f.write(t, "en/broken.json", `{"a": `)
	f.write(t, "en/good.json", `{"a": "Hello"}`)

	sum, err := f.syncer(t).Run(context.Background(), []string{"broken.json", "good.json"}, Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, sum.FailedFiles)
	assert.Equal(t, 1, sum.ExitCode())
	assert.Equal(t, "Bonjour", f.read(t, "fr/good.json")["a"])
	require.Len(t, sum.Results, 2)
	assert.Error(t, sum.Results[0].Err)
}

func TestRunKeyFailureIsReportedNotFatal(t *testing.T) {
	f := newFixture(t)
	f.write(t, "en/app.json", `{"known": "Hello", "unknown": "Zyzzyva"}`)

	sum, err := f.syncer(t).Run(context.Background(), []string{"app.json"}, Options{})
	require.NoError(t, err)
	assert.Equal(t, 0, sum.ExitCode())
	assert.Equal(t, 1, sum.KeyFailures)

	got := f.read(t, "fr/app.json")
	assert.Equal(t, "Zyzzyva", got["unknown"], "source used as placeholder")

	data, err := os.ReadFile(f.report)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Translation not found in response")
	_, err = os.Stat(failures.MarkdownPath(f.report))
	assert.NoError(t, err)

	// Next run retries the failed key: it is still equal to its source.
	f.completer.dict["Zyzzyva"] = "Zyzzyva FR"
	sum, err = f.syncer(t).Run(context.Background(), []string{"app.json"}, Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Modified)
	assert.Equal(t, "Zyzzyva FR", f.read(t, "fr/app.json")["unknown"])
	_, err = os.Stat(f.report)
	assert.True(t, os.IsNotExist(err), "stale report removed")
}

func TestRunSubsetKeepsFailuresOfOtherFiles(t *testing.T) {
	f := newFixture(t)
	f.write(t, "en/a.json", `{"unknown": "Zyzzyva"}`)
	f.write(t, "en/b.json", `{"greeting": "Hello"}`)

	sum, err := f.syncer(t).Run(context.Background(), []string{"a.json", "b.json"}, Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, sum.KeyFailures)

	f.write(t, "en/b.json", `{"greeting": "Hello", "bye": "Goodbye"}`)
	sum, err = f.syncer(t).Run(context.Background(), []string{"b.json"}, Options{})
	require.NoError(t, err)
	assert.Equal(t, 0, sum.KeyFailures)

	r, err := failures.Load(f.report)
	require.NoError(t, err)
	require.Len(t, r.Failures, 1, "a.json was not processed, its failure stays")
	assert.Equal(t, "a.json", r.Failures[0].FilePath)
	assert.Equal(t, "unknown", r.Failures[0].Key)

	// Once a.json is gone its failures are no longer carried.
	require.NoError(t, os.Remove(filepath.Join(f.layout.Dir, "en", "a.json")))
	_, err = f.syncer(t).Run(context.Background(), []string{"b.json"}, Options{})
	require.NoError(t, err)
	_, err = os.Stat(f.report)
	assert.True(t, os.IsNotExist(err))
}

func TestRunDryRunTouchesNothing(t *testing.T) {
	f := newFixture(t)
	f.write(t, "en/app.json", `{"a": "Hello", "b": "Save"}`)

	s := f.syncer(t)
	s.Cache.Set("Hello", "Bonjour", "fr", "m")

	sum, err := s.Run(context.Background(), []string{"app.json"}, Options{DryRun: true, ShowDiff: true})
	require.NoError(t, err)
	assert.Equal(t, int64(0), f.calls())
	assert.Equal(t, 1, sum.CacheHits)
	require.Len(t, sum.Results, 1)
	assert.True(t, sum.Results[0].Written)
	assert.Contains(t, sum.Results[0].Diff, `+  "a": "Bonjour",`)
	assert.Contains(t, sum.Results[0].Diff, `+  "b": "Save"`)

	_, err = os.Stat(filepath.Join(f.layout.Dir, "fr", "app.json"))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(f.root, ".locsync", "cache.json"))
	assert.True(t, os.IsNotExist(err))
}

func TestRunCacheResetInvalidatesSnapshots(t *testing.T) {
	f := newFixture(t)
	f.write(t, "en/app.json", `{"a": "Hello"}`)
	_, err := f.syncer(t).Run(context.Background(), []string{"app.json"}, Options{})
	require.NoError(t, err)

	cachePath := filepath.Join(f.root, ".locsync", "cache.json")
	require.NoError(t, os.WriteFile(cachePath, []byte(`{"version": 999, "entries": {}}`), 0644))

	s := f.syncer(t)
	_, ok := s.Snapshots.Get("fr", "app.json", "a")
	assert.False(t, ok)
}

func TestPruneRemovesOrphanedTargets(t *testing.T) {
	f := newFixture(t)
	f.write(t, "en/keep.json", `{"a": "Hello"}`)
	f.write(t, "fr/keep.json", `{"a": "Bonjour"}`)
	f.write(t, "fr/gone.json", `{"a": "Vieux"}`)

	s := f.syncer(t)
	removed, err := s.Prune([]string{"keep.json"}, true)
	require.NoError(t, err)
	assert.Len(t, removed, 1)
	_, err = os.Stat(filepath.Join(f.layout.Dir, "fr", "gone.json"))
	require.NoError(t, err, "dry run keeps the file")

	removed, err = s.Prune([]string{"keep.json"}, false)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(f.layout.Dir, "fr", "gone.json")}, removed)
	_, err = os.Stat(removed[0])
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(f.layout.Dir, "fr", "keep.json"))
	assert.NoError(t, err)
}
