package failures

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddDeduplicatesLastWins(t *testing.T) {
	l := New()
	l.Add(Failure{Key: "a", TargetLang: "fr", FilePath: "common.json", Error: "first"})
	l.Add(Failure{Key: "a", TargetLang: "fr", FilePath: "common.json", Error: "second"})
	l.Add(Failure{Key: "a", TargetLang: "de", FilePath: "common.json", Error: "other lang"})

	require.Equal(t, 2, l.Len())
	got := l.Failures()
	assert.Equal(t, "de", got[0].TargetLang)
	assert.Equal(t, "second", got[1].Error)
}

func TestAddConcurrent(t *testing.T) {
	l := New()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			l.Add(Failure{Key: "k", TargetLang: "fr", FilePath: string(rune('a' + i%5))})
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 5, l.Len())
}

func TestSaveWritesJSONAndMarkdown(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "reports", "failures.json")

	l := New()
	l.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }
	l.Add(Failure{Key: "menu.open", SourceText: "Open | Close", TargetLang: "fr", FilePath: "common.json", Error: "Translation not found in response"})
	l.Add(Failure{Key: "long", SourceText: strings.Repeat("x", 80), TargetLang: "de", FilePath: "common.json", Error: strings.Repeat("e", 150)})
	l.Add(Failure{Key: "title", SourceText: "Title", TargetLang: "fr", FilePath: "admin/page.json", Error: "API returned status 500"})

	require.NoError(t, l.Save(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var r Report
	require.NoError(t, json.Unmarshal(data, &r))
	assert.Equal(t, l.RunID(), r.RunID)
	require.Len(t, r.Failures, 3)
	assert.Equal(t, "admin/page.json", r.Failures[0].FilePath)

	md, err := os.ReadFile(filepath.Join(dir, "reports", "failures.md"))
	require.NoError(t, err)
	text := string(md)
	assert.Contains(t, text, "## admin/page.json")
	assert.Contains(t, text, "## common.json")
	assert.Contains(t, text, "### de")
	assert.Contains(t, text, `Open \| Close`)
	assert.Contains(t, text, strings.Repeat("x", 60)+"...")
	assert.NotContains(t, text, strings.Repeat("x", 61))
	assert.Contains(t, text, strings.Repeat("e", 100)+"...")
	assert.Less(t, strings.Index(text, "## admin/page.json"), strings.Index(text, "## common.json"))
}

func TestSaveEmptyRemovesStaleReports(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "failures.json")
	require.NoError(t, os.WriteFile(path, []byte("{}"), 0644))
	require.NoError(t, os.WriteFile(MarkdownPath(path), []byte("#"), 0644))

	require.NoError(t, New().Save(path))

	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(MarkdownPath(path))
	assert.True(t, os.IsNotExist(err))

	// nothing to remove is fine too
	assert.NoError(t, New().Save(path))
}

func TestReset(t *testing.T) {
	l := New()
	id := l.RunID()
	l.Add(Failure{Key: "k"})
	l.Reset()
	assert.Zero(t, l.Len())
	assert.NotEqual(t, id, l.RunID())
}

func TestLoadAndCarry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "failures.json")

	r, err := Load(path)
	require.NoError(t, err, "missing report is empty")
	assert.Empty(t, r.Failures)

	prev := New()
	prev.Add(Failure{Key: "a", TargetLang: "fr", FilePath: "one.json", Error: "old"})
	prev.Add(Failure{Key: "b", TargetLang: "fr", FilePath: "two.json", Error: "old"})
	require.NoError(t, prev.Save(path))

	r, err = Load(path)
	require.NoError(t, err)
	require.Len(t, r.Failures, 2)

	l := New()
	l.Add(Failure{Key: "a", TargetLang: "fr", FilePath: "one.json", Error: "new"})
	l.Carry(r.Failures, func(f Failure) bool { return true })
	l.Carry([]Failure{{Key: "c", TargetLang: "fr", FilePath: "three.json"}}, func(f Failure) bool { return false })

	got := l.Failures()
	require.Len(t, got, 2)
	assert.Equal(t, "new", got[0].Error, "this run's entry wins")
	assert.Equal(t, "two.json", got[1].FilePath)

	require.NoError(t, os.WriteFile(path, []byte("{"), 0644))
	_, err = Load(path)
	assert.Error(t, err)
}
