package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/fatih/color"

	"github.com/minios-linux/locsync/console"
	"github.com/minios-linux/locsync/syncer"
)

func TestProgressBar(t *testing.T) {
	old := color.NoColor
	color.NoColor = true
	t.Cleanup(func() { color.NoColor = old })

	tests := []struct {
		name    string
		percent int
		width   int
		want    string
	}{
		{"clamps below zero", -10, 4, "░░░░   0%"},
		{"mid range", 50, 4, "██░░  50%"},
		{"clamps above hundred", 120, 4, "████ 100%"},
	}
	for _, tc := range tests {
		if got := progressBar(tc.percent, tc.width); got != tc.want {
			t.Fatalf("%s: progressBar() = %q, want %q", tc.name, got, tc.want)
		}
	}
}

func TestProgressReporter(t *testing.T) {
	old := color.NoColor
	t.Cleanup(func() { color.NoColor = old })
	t.Setenv("TERM", "xterm")

	var buf bytes.Buffer
	color.NoColor = false
	progressReporter(console.New(console.Options{Out: &buf}))("fr", 1, 2)
	if got := buf.String(); got != "\r  fr: 1/2" {
		t.Fatalf("terminal progress = %q", got)
	}

	buf.Reset()
	color.NoColor = true
	progressReporter(console.New(console.Options{Out: &buf}))("fr", 1, 2)
	if buf.Len() != 0 {
		t.Fatalf("non-terminal progress should go to debug, got %q", buf.String())
	}
}

func TestSelectLanguages(t *testing.T) {
	got, err := selectLanguages([]string{"de", "fr", "ru"}, []string{"ru", " fr", "ru", ""})
	if err != nil {
		t.Fatal(err)
	}
	if want := []string{"ru", "fr"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("selectLanguages() = %v, want %v", got, want)
	}

	if _, err := selectLanguages([]string{"de"}, []string{"es"}); err == nil {
		t.Fatal("expected error for unconfigured language")
	}
}

func TestCollectStatus(t *testing.T) {
	sum := syncer.Summary{Results: []syncer.FileResult{
		{File: "a.json", Lang: "fr", Added: 2, Unchanged: 3, Skipped: 1},
		{File: "b.json", Lang: "fr", Modified: 1, Unchanged: 1, Removed: 4},
		{File: "a.json", Lang: "de", Unchanged: 6},
		{File: "b.json", Lang: "de", Err: errors.New("bad json")},
	}}

	got := collectStatus(sum)
	want := []langStatus{
		{lang: "de", files: 2, keys: 6, current: 6, failed: 1},
		{lang: "fr", files: 2, keys: 8, current: 5, pending: 3, removed: 4},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("collectStatus() = %+v, want %+v", got, want)
	}
}

// fakeOpenAI answers chat completions by prefixing every value of the JSON
// object in the user message with "[lang] ".
func fakeOpenAI(t *testing.T, calls *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		var req struct {
			Messages []struct {
				Content string `json:"content"`
			} `json:"messages"`
		}
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &req); err != nil || len(req.Messages) < 2 {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		user := req.Messages[len(req.Messages)-1].Content

		lang := "xx"
		if i := strings.Index(user, "Target language tag: "); i >= 0 {
			lang = strings.Fields(user[i+len("Target language tag: "):])[0]
		}
		obj := user[strings.Index(user, "{") : strings.LastIndex(user, "}")+1]
		var in map[string]string
		if err := json.Unmarshal([]byte(obj), &in); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		out := make(map[string]string, len(in))
		for id, v := range in {
			out[id] = "[" + lang + "] " + v
		}
		content, _ := json.Marshal(out)

		resp, _ := json.Marshal(map[string]any{
			"id":      "chatcmpl-1",
			"object":  "chat.completion",
			"created": 0,
			"model":   "test-model",
			"choices": []map[string]any{{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]any{"role": "assistant", "content": string(content)},
			}},
		})
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(resp)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func writeProject(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	cfg := `base_lang: en
target_langs: [fr]
locales_dir: locales
skip: ["meta.*"]
provider:
  model: test-model
  max_retries: 0
`
	if err := os.WriteFile(filepath.Join(dir, ".locsync.yaml"), []byte(cfg), 0o644); err != nil {
		t.Fatal(err)
	}
	base := filepath.Join(dir, "locales", "en")
	if err := os.MkdirAll(base, 0o755); err != nil {
		t.Fatal(err)
	}
	src := `{"greeting": "Hello", "menu": {"open": "Open"}, "meta": {"id": "app"}}`
	if err := os.WriteFile(filepath.Join(base, "app.json"), []byte(src), 0o644); err != nil {
		t.Fatal(err)
	}
	return dir
}

func execute(t *testing.T, args ...string) error {
	t.Helper()
	cmd := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	return cmd.Execute()
}

func TestSyncCommandEndToEnd(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", t.TempDir())
	t.Setenv("LOCSYNC_API_KEY", "sk-test")
	old := stderr
	t.Cleanup(func() { stderr = old })

	var calls atomic.Int32
	srv := fakeOpenAI(t, &calls)
	dir := writeProject(t)

	if err := execute(t, "--root", dir, "sync", "--base-url", srv.URL+"/v1/"); err != nil {
		t.Fatalf("sync: %v", err)
	}
	target := filepath.Join(dir, "locales", "fr", "app.json")
	data, err := os.ReadFile(target)
	if err != nil {
		t.Fatal(err)
	}
	var got map[string]any
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatal(err)
	}
	want := map[string]any{
		"greeting": "[fr] Hello",
		"menu":     map[string]any{"open": "[fr] Open"},
		"meta":     map[string]any{"id": "app"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("target = %v, want %v", got, want)
	}
	if calls.Load() != 1 {
		t.Fatalf("requests = %d, want 1", calls.Load())
	}
	if _, err := os.Stat(filepath.Join(dir, ".locsync", "cache.json")); err != nil {
		t.Fatalf("cache not written: %v", err)
	}

	// Nothing changed: no request, identical bytes.
	if err := execute(t, "--root", dir, "sync", "--base-url", srv.URL+"/v1/"); err != nil {
		t.Fatalf("second sync: %v", err)
	}
	again, _ := os.ReadFile(target)
	if !bytes.Equal(data, again) {
		t.Fatalf("second sync rewrote target:\n%s\n%s", data, again)
	}
	if calls.Load() != 1 {
		t.Fatalf("requests after no-op sync = %d, want 1", calls.Load())
	}
}

func TestSyncDryRunWritesNothing(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", t.TempDir())
	old := stderr
	t.Cleanup(func() { stderr = old })

	dir := writeProject(t)
	if err := execute(t, "--root", dir, "sync", "--dry-run"); err != nil {
		t.Fatalf("dry run: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "locales", "fr")); !os.IsNotExist(err) {
		t.Fatalf("dry run created target dir: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, ".locsync", "cache.json")); !os.IsNotExist(err) {
		t.Fatalf("dry run wrote cache: %v", err)
	}
}

func TestSyncWithoutConfig(t *testing.T) {
	old := stderr
	t.Cleanup(func() { stderr = old })

	err := execute(t, "--root", t.TempDir(), "sync")
	if err == nil || !strings.Contains(err.Error(), "locsync init") {
		t.Fatalf("err = %v, want hint to run init", err)
	}
}

func TestInitWritesLoadableConfig(t *testing.T) {
	dir := t.TempDir()
	if err := execute(t, "--root", dir, "init"); err != nil {
		t.Fatalf("init: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, ".locsync.yaml")); err != nil {
		t.Fatal(err)
	}
	if err := execute(t, "--root", dir, "init"); err == nil {
		t.Fatal("second init should refuse to overwrite")
	}
}
