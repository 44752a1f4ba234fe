package config

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte(body), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return dir
}

func TestLoadAppliesDefaults(t *testing.T) {
	dir := writeConfig(t, "target_langs: [fr, de]\nprovider:\n  model: test-model\n")

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.BaseLang != "en" {
		t.Errorf("BaseLang = %q, want en", cfg.BaseLang)
	}
	if !reflect.DeepEqual(cfg.TargetLangs, []string{"fr", "de"}) {
		t.Errorf("TargetLangs = %v", cfg.TargetLangs)
	}
	if cfg.Concurrency != DefaultConcurrency || cfg.BatchTokens != DefaultBatchTokens {
		t.Errorf("concurrency/batch = %d/%d", cfg.Concurrency, cfg.BatchTokens)
	}
	if cfg.Debounce != 500*time.Millisecond {
		t.Errorf("Debounce = %v", cfg.Debounce)
	}
	if cfg.Provider.Retries() != DefaultMaxRetries {
		t.Errorf("Retries = %d", cfg.Provider.Retries())
	}
	if cfg.Root != dir {
		t.Errorf("Root = %q", cfg.Root)
	}
	if got := cfg.Abs(cfg.CachePath); got != filepath.Join(dir, ".locsync", "cache.json") {
		t.Errorf("Abs(CachePath) = %q", got)
	}
}

func TestLoadFullFile(t *testing.T) {
	dir := writeConfig(t, `base_lang: en-US
target_langs: [pt-BR]
locales_dir: public/locales
skip: ["meta.**", "**.id"]
ignore: ["drafts/"]
provider:
  base_url: http://localhost:11434/v1
  model: llama3
  timeout: 30s
  max_retries: 0
  temperature: 0.2
concurrency: 8
batch_tokens: 800
debounce: 1s
prompt: "Translate to {{targetLang}}"
`)
	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.Provider.Retries() != 0 {
		t.Errorf("explicit max_retries 0 lost: %d", cfg.Provider.Retries())
	}
	if cfg.Provider.Timeout != 30*time.Second {
		t.Errorf("Timeout = %v", cfg.Provider.Timeout)
	}
	if *cfg.Provider.Temperature != 0.2 {
		t.Errorf("Temperature = %v", *cfg.Provider.Temperature)
	}
	if cfg.Concurrency != 8 || cfg.BatchTokens != 800 || cfg.Debounce != time.Second {
		t.Errorf("numbers not read: %+v", cfg)
	}
}

func TestLoadMissing(t *testing.T) {
	_, err := Load(t.TempDir())
	if !errors.Is(err, ErrNoConfig) {
		t.Fatalf("err = %v, want ErrNoConfig", err)
	}
}

func TestLoadRejects(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"unknown key", "target_langs: [fr]\ntargets: []\n", "not found"},
		{"no targets", "base_lang: en\n", "target_langs"},
		{"bad tag", "target_langs: [\"fr_FR!\"]\n", "BCP-47"},
		{"target equals base", "target_langs: [en]\n", "base language"},
		{"duplicate target", "target_langs: [fr, fr]\n", "listed twice"},
		{"bad url", "target_langs: [fr]\nprovider:\n  base_url: \"not a url\"\n", "base_url"},
		{"bad skip", "target_langs: [fr]\nskip: [\"a.[\"]\n", "skip"},
		{"negative concurrency", "target_langs: [fr]\nconcurrency: -1\n", "concurrency"},
		{"temperature range", "target_langs: [fr]\nprovider:\n  temperature: 5\n", "temperature"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestSampleIsValid(t *testing.T) {
	dir := t.TempDir()
	path, err := WriteSample(dir)
	if err != nil {
		t.Fatalf("WriteSample: %v", err)
	}
	if _, err := Load(dir); err != nil {
		t.Fatalf("sample does not load: %v", err)
	}
	if _, err := WriteSample(dir); err == nil {
		t.Errorf("WriteSample overwrote %s", path)
	}
}
