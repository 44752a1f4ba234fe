// Package config loads the .locsync.yaml configuration file.
//
// The file lives in the project root and is the only source of project
// settings. Command-line flags override individual fields.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// FileName is the config file name looked up in the project root.
const FileName = ".locsync.yaml"

// Defaults.
const (
	DefaultBaseLang    = "en"
	DefaultLocalesDir  = "locales"
	DefaultConcurrency = 3
	DefaultBatchTokens = 1500
	DefaultMaxRetries  = 3
	DefaultCachePath   = ".locsync/cache.json"
	DefaultReportPath  = ".locsync/failures.json"
	DefaultLogFile     = ".locsync/locsync.log"
	DefaultDebounce    = 500 * time.Millisecond
	DefaultTimeout     = 120 * time.Second
	DefaultModel       = "gpt-4o-mini"
)

// ErrNoConfig is returned by Load when the project has no config file.
var ErrNoConfig = errors.New("no " + FileName + " found")

// ---------------------------------------------------------------------------
// YAML schema
// ---------------------------------------------------------------------------

// Config is the .locsync.yaml structure.
type Config struct {
	// BaseLang is the language the source files are written in.
	BaseLang string `yaml:"base_lang"`
	// TargetLangs are the languages to keep in sync.
	TargetLangs []string `yaml:"target_langs"`
	// LocalesDir holds one directory per language, relative to the root.
	LocalesDir string `yaml:"locales_dir"`
	// Skip lists key patterns copied verbatim instead of translated.
	Skip []string `yaml:"skip,omitempty"`
	// Ignore lists gitignore-style file patterns under the base directory.
	Ignore []string `yaml:"ignore,omitempty"`

	Provider Provider `yaml:"provider"`

	// Concurrency bounds simultaneous requests to the provider.
	Concurrency int `yaml:"concurrency,omitempty"`
	// BatchTokens is the estimated token ceiling of one request.
	BatchTokens int `yaml:"batch_tokens,omitempty"`

	CachePath  string        `yaml:"cache_path,omitempty"`
	ReportPath string        `yaml:"report_path,omitempty"`
	LogFile    string        `yaml:"log_file,omitempty"`
	Debounce   time.Duration `yaml:"debounce,omitempty"`

	// Prompt overrides the built-in system prompt. {{sourceLang}} and
	// {{targetLang}} are substituted.
	Prompt string `yaml:"prompt,omitempty"`

	// Root is the directory the file was loaded from.
	Root string `yaml:"-"`
}

// Provider describes the OpenAI-compatible endpoint.
type Provider struct {
	BaseURL     string        `yaml:"base_url,omitempty"`
	APIKey      string        `yaml:"api_key,omitempty"`
	Model       string        `yaml:"model"`
	Proxy       string        `yaml:"proxy,omitempty"`
	Timeout     time.Duration `yaml:"timeout,omitempty"`
	MaxRetries  *int          `yaml:"max_retries,omitempty"`
	Temperature *float64      `yaml:"temperature,omitempty"`
}

// Retries returns the retry count with its default applied.
func (p Provider) Retries() int {
	if p.MaxRetries == nil {
		return DefaultMaxRetries
	}
	return *p.MaxRetries
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Load reads, defaults and validates .locsync.yaml from rootDir. Unknown
// keys are rejected.
func Load(rootDir string) (*Config, error) {
	path := filepath.Join(rootDir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w in %s", ErrNoConfig, rootDir)
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	cfg.Root = rootDir
	return cfg, nil
}

// Parse decodes, defaults and validates config data.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parsing: %w", err)
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ApplyDefaults fills unset fields.
func (c *Config) ApplyDefaults() {
	if c.BaseLang == "" {
		c.BaseLang = DefaultBaseLang
	}
	if c.LocalesDir == "" {
		c.LocalesDir = DefaultLocalesDir
	}
	if c.Concurrency == 0 {
		c.Concurrency = DefaultConcurrency
	}
	if c.BatchTokens == 0 {
		c.BatchTokens = DefaultBatchTokens
	}
	if c.CachePath == "" {
		c.CachePath = DefaultCachePath
	}
	if c.ReportPath == "" {
		c.ReportPath = DefaultReportPath
	}
	if c.LogFile == "" {
		c.LogFile = DefaultLogFile
	}
	if c.Debounce == 0 {
		c.Debounce = DefaultDebounce
	}
	if c.Provider.Timeout == 0 {
		c.Provider.Timeout = DefaultTimeout
	}
	if c.Provider.Model == "" {
		c.Provider.Model = DefaultModel
	}
}

// Abs resolves p against the project root unless it is already absolute.
func (c *Config) Abs(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.Root, p)
}

// ---------------------------------------------------------------------------
// Sample
// ---------------------------------------------------------------------------

// Sample is the annotated config written by `locsync init`.
const Sample = `# locsync configuration
base_lang: en
target_langs: [fr, de]
locales_dir: locales

# Keys copied verbatim instead of translated (** spans segments).
skip:
  - "meta.**"

# gitignore-style file patterns under the base language directory.
ignore: []

provider:
  base_url: https://api.openai.com/v1
  model: gpt-4o-mini
  # api_key is better kept in LOCSYNC_API_KEY or ` + "`locsync auth login`" + `
  timeout: 120s
  max_retries: 3

concurrency: 3
batch_tokens: 1500
debounce: 500ms
`

// WriteSample creates .locsync.yaml in rootDir. It refuses to overwrite an
// existing file.
func WriteSample(rootDir string) (string, error) {
	path := filepath.Join(rootDir, FileName)
	if _, err := os.Stat(path); err == nil {
		return path, fmt.Errorf("%s already exists", path)
	}
	return path, os.WriteFile(path, []byte(Sample), 0644)
}
