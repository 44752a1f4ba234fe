// Package cache implements the content-addressed translation cache.
//
// Entries are keyed by a fingerprint of (source text, target language), so
// identical strings are translated once no matter how many files or keys
// use them. The cache is persisted as versioned JSON:
//
//	{
//	  "version": 1,
//	  "entries": {
//	    "<fingerprint>": {
//	      "sourceText": "Hello",
//	      "translatedText": "Bonjour",
//	      "targetLang": "fr",
//	      "timestamp": "2026-01-02T15:04:05Z",
//	      "model": "gpt-4o-mini"
//	    }
//	  }
//	}
//
// A file written by a different version is discarded on load rather than
// migrated.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Version is the current cache format version.
const Version = 1

// DefaultPath is the cache location relative to the project root.
const DefaultPath = ".locsync/cache.json"

const fileSchemaJSON = `{
  "type": "object",
  "required": ["version", "entries"],
  "properties": {
    "version": {"type": "integer"},
    "entries": {
      "type": "object",
      "additionalProperties": {
        "type": "object",
        "required": ["sourceText", "translatedText", "targetLang"],
        "properties": {
          "sourceText": {"type": "string"},
          "translatedText": {"type": "string"},
          "targetLang": {"type": "string"},
          "timestamp": {"type": "string"},
          "model": {"type": "string"}
        }
      }
    }
  }
}`

var fileSchema = jsonschema.MustCompileString("cache.schema.json", fileSchemaJSON)

// ---------------------------------------------------------------------------
// Types
// ---------------------------------------------------------------------------

// Entry is one cached translation.
type Entry struct {
	SourceText     string    `json:"sourceText"`
	TranslatedText string    `json:"translatedText"`
	TargetLang     string    `json:"targetLang"`
	Timestamp      time.Time `json:"timestamp"`
	Model          string    `json:"model"`
}

type file struct {
	Version int               `json:"version"`
	Entries map[string]*Entry `json:"entries"`
}

// Store is the in-memory translation cache. It is safe for concurrent use.
type Store struct {
	mu        sync.Mutex
	path      string
	version   int
	entries   map[string]*Entry
	dirty     bool
	reset     bool
	recovered error

	now func() time.Time
}

// New returns an empty store bound to path.
func New(path string) *Store {
	return &Store{
		path:    path,
		version: Version,
		entries: make(map[string]*Entry),
		now:     time.Now,
	}
}

// Fingerprint returns the cache key for a source text and target language.
func Fingerprint(sourceText, targetLang string) string {
	sum := sha256.Sum256([]byte(sourceText + "\x00" + targetLang))
	return hex.EncodeToString(sum[:])
}

// ---------------------------------------------------------------------------
// Loading and saving
// ---------------------------------------------------------------------------

// Load reads the cache at path. It never fails: a missing file gives an
// empty store, and an unreadable, malformed or version-mismatched file gives
// an empty store with WasReset reporting true and Recovered holding the cause.
func Load(path string) *Store {
	s := New(path)

	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.discard(fmt.Errorf("reading %s: %w", path, err))
		}
		return s
	}

	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		s.discard(fmt.Errorf("parsing %s: %w", path, err))
		return s
	}
	if err := fileSchema.Validate(raw); err != nil {
		s.discard(fmt.Errorf("validating %s: %w", path, err))
		return s
	}

	var f file
	if err := json.Unmarshal(data, &f); err != nil {
		s.discard(fmt.Errorf("decoding %s: %w", path, err))
		return s
	}
	if f.Version != Version {
		s.discard(fmt.Errorf("cache version %d does not match %d", f.Version, Version))
		return s
	}

	for fp, e := range f.Entries {
		if e == nil {
			continue
		}
		s.entries[fp] = e
	}
	return s
}

func (s *Store) discard(cause error) {
	s.entries = make(map[string]*Entry)
	s.reset = true
	s.recovered = cause
	// The next Save rewrites the file in the current format.
	s.dirty = true
}

// WasReset reports whether Load discarded the persisted cache.
func (s *Store) WasReset() bool {
	return s.reset
}

// Recovered returns why Load discarded the persisted cache, or nil.
func (s *Store) Recovered() error {
	return s.recovered
}

// Save writes the cache if it changed since the last save.
func (s *Store) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.dirty {
		return nil
	}
	if s.path == "" {
		return fmt.Errorf("cache path not set")
	}

	data, err := json.MarshalIndent(file{Version: s.version, Entries: s.entries}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling cache: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}
	if err := os.WriteFile(s.path, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("writing %s: %w", s.path, err)
	}
	s.dirty = false
	return nil
}

// Path returns the cache file path.
func (s *Store) Path() string {
	return s.path
}

// ---------------------------------------------------------------------------
// Operations
// ---------------------------------------------------------------------------

// Get returns the cached translation of sourceText into targetLang. An entry
// whose stored source text differs from sourceText is treated as a miss.
func (s *Store) Get(sourceText, targetLang string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[Fingerprint(sourceText, targetLang)]
	if !ok || e.SourceText != sourceText || e.TargetLang != targetLang {
		return "", false
	}
	return e.TranslatedText, true
}

// Set stores a translation.
func (s *Store) Set(sourceText, translatedText, targetLang, model string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[Fingerprint(sourceText, targetLang)] = &Entry{
		SourceText:     sourceText,
		TranslatedText: translatedText,
		TargetLang:     targetLang,
		Timestamp:      s.now().UTC(),
		Model:          model,
	}
	s.dirty = true
}

// Clear removes every entry.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = make(map[string]*Entry)
	s.dirty = true
}

// Len returns the number of entries.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// LangStat is the number of cached entries for one language.
type LangStat struct {
	Lang    string
	Entries int
}

// Stats returns per-language entry counts sorted by language.
func (s *Store) Stats() []LangStat {
	s.mu.Lock()
	defer s.mu.Unlock()

	counts := make(map[string]int)
	for _, e := range s.entries {
		counts[e.TargetLang]++
	}
	out := make([]LangStat, 0, len(counts))
	for lang, n := range counts {
		out = append(out, LangStat{Lang: lang, Entries: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Lang < out[j].Lang })
	return out
}
