// Package snapshot implements the change-detection ledger: for every
// (target language, file, key) it records a hash of the source text that was
// last reconciled into the target file. Comparing the current source hash
// with the stored one is the only reliable way to tell whether the base text
// changed, since the target value alone cannot distinguish a stale English
// copy from a translation that happens to equal the English text.
//
// The snapshot is stored beside the translation cache:
// cache path ".locsync/cache.json" -> ".locsync/cache.snapshot.json".
package snapshot

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// Suffix replaces the ".json" extension of the cache path.
const Suffix = ".snapshot.json"

// ---------------------------------------------------------------------------
// Types
// ---------------------------------------------------------------------------

// Store maps "<lang>:<file>" -> key -> source hash.
type Store struct {
	mu        sync.Mutex
	path      string
	entries   map[string]map[string]string
	dirty     bool
	recovered error
}

// New returns an empty, unsaved store bound to path.
func New(path string) *Store {
	return &Store{
		path:    path,
		entries: make(map[string]map[string]string),
	}
}

// PathFor derives the snapshot path from the cache path.
func PathFor(cachePath string) string {
	return strings.TrimSuffix(cachePath, ".json") + Suffix
}

// Hash returns the hex SHA-256 digest of a source string.
func Hash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

func bucket(lang, file string) string {
	return lang + ":" + filepath.ToSlash(file)
}

// ---------------------------------------------------------------------------
// Loading and saving
// ---------------------------------------------------------------------------

// Load reads the snapshot at path. A missing file yields an empty store.
// An unreadable or corrupt file also yields an empty store; the cause is
// reported by Recovered so callers can log it. Load never fails.
func Load(path string) *Store {
	s := New(path)

	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.recovered = fmt.Errorf("reading %s: %w", path, err)
		}
		return s
	}

	var entries map[string]map[string]string
	if err := json.Unmarshal(data, &entries); err != nil {
		s.recovered = fmt.Errorf("parsing %s: %w", path, err)
		return s
	}
	for k, keys := range entries {
		if keys == nil {
			continue
		}
		s.entries[k] = keys
	}
	return s
}

// Recovered returns the error that caused Load to start from an empty store,
// or nil.
func (s *Store) Recovered() error {
	return s.recovered
}

// Save writes the snapshot if it changed since the last save.
func (s *Store) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.dirty {
		return nil
	}
	if s.path == "" {
		return fmt.Errorf("snapshot path not set")
	}

	data, err := json.MarshalIndent(s.entries, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling snapshot: %w", err)
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

// Path returns the snapshot file path.
func (s *Store) Path() string {
	return s.path
}

// Dirty reports whether there are unsaved changes.
func (s *Store) Dirty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dirty
}

// ---------------------------------------------------------------------------
// Hash operations
// ---------------------------------------------------------------------------

// Get returns the stored source hash for a key.
func (s *Store) Get(lang, file, key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	h, ok := s.entries[bucket(lang, file)][key]
	return h, ok
}

// Set records the hash of sourceText as reconciled for key.
func (s *Store) Set(lang, file, key, sourceText string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b := bucket(lang, file)
	if s.entries[b] == nil {
		s.entries[b] = make(map[string]string)
	}
	h := Hash(sourceText)
	if s.entries[b][key] == h {
		return
	}
	s.entries[b][key] = h
	s.dirty = true
}

// SetBatch records hashes for several keys. entries maps key -> sourceText.
func (s *Store) SetBatch(lang, file string, entries map[string]string) {
	for key, text := range entries {
		s.Set(lang, file, key, text)
	}
}

// Clean drops hashes for keys that are no longer in the base file.
func (s *Store) Clean(lang, file string, currentKeys []string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing := s.entries[bucket(lang, file)]
	if existing == nil {
		return
	}
	valid := make(map[string]bool, len(currentKeys))
	for _, k := range currentKeys {
		valid[k] = true
	}
	for k := range existing {
		if !valid[k] {
			delete(existing, k)
			s.dirty = true
		}
	}
}

// RemoveFile drops every hash recorded for one file and language.
func (s *Store) RemoveFile(lang, file string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b := bucket(lang, file)
	if _, ok := s.entries[b]; ok {
		delete(s.entries, b)
		s.dirty = true
	}
}

// Reset discards all hashes.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.entries) > 0 {
		s.dirty = true
	}
	s.entries = make(map[string]map[string]string)
}

// ---------------------------------------------------------------------------
// Stats
// ---------------------------------------------------------------------------

// Stats returns the number of (lang, file) buckets and total keys.
func (s *Store) Stats() (files, keys int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	files = len(s.entries)
	for _, m := range s.entries {
		keys += len(m)
	}
	return
}

// Count returns how many keys are recorded for one file and language.
func (s *Store) Count(lang, file string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries[bucket(lang, file)])
}

// Buckets returns the sorted "<lang>:<file>" bucket names.
func (s *Store) Buckets() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]string, 0, len(s.entries))
	for b := range s.entries {
		out = append(out, b)
	}
	sort.Strings(out)
	return out
}
