// Package failures records keys that could not be translated during a run
// and writes them out as a JSON report plus a Markdown companion.
package failures

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Failure is one key that failed for one language of one file.
type Failure struct {
	Key        string `json:"key"`
	SourceText string `json:"sourceText"`
	TargetLang string `json:"targetLang"`
	FilePath   string `json:"filePath"`
	Error      string `json:"error"`
}

func (f Failure) id() string {
	return f.Key + ":" + f.TargetLang + ":" + f.FilePath
}

// Report is the JSON document written by Save.
type Report struct {
	RunID       string    `json:"runId"`
	GeneratedAt time.Time `json:"generatedAt"`
	Failures    []Failure `json:"failures"`
}

// Ledger collects failures. It is safe for concurrent use.
type Ledger struct {
	mu    sync.Mutex
	runID string
	items map[string]Failure
	now   func() time.Time
}

// New returns an empty ledger with a fresh run id.
func New() *Ledger {
	return &Ledger{
		runID: uuid.NewString(),
		items: make(map[string]Failure),
		now:   time.Now,
	}
}

// RunID identifies the run the ledger belongs to.
func (l *Ledger) RunID() string {
	return l.runID
}

// Add records f. A later failure of the same key, language and file
// replaces the earlier one.
func (l *Ledger) Add(f Failure) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.items[f.id()] = f
}

// Len returns the number of distinct failures.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.items)
}

// Reset forgets every failure and starts a new run id.
func (l *Ledger) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.items = make(map[string]Failure)
	l.runID = uuid.NewString()
}

// Carry re-adds failures of an earlier report for which keep returns
// true. Failures recorded in this run take precedence.
func (l *Ledger) Carry(prior []Failure, keep func(Failure) bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, f := range prior {
		if _, ok := l.items[f.id()]; ok || !keep(f) {
			continue
		}
		l.items[f.id()] = f
	}
}

// Failures returns the failures sorted by file, language and key.
func (l *Ledger) Failures() []Failure {
	l.mu.Lock()
	out := make([]Failure, 0, len(l.items))
	for _, f := range l.items {
		out = append(out, f)
	}
	l.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.FilePath != b.FilePath {
			return a.FilePath < b.FilePath
		}
		if a.TargetLang != b.TargetLang {
			return a.TargetLang < b.TargetLang
		}
		return a.Key < b.Key
	})
	return out
}

// MarkdownPath returns the Markdown report path belonging to jsonPath.
func MarkdownPath(jsonPath string) string {
	return strings.TrimSuffix(jsonPath, filepath.Ext(jsonPath)) + ".md"
}

// Load reads a report written by Save. A missing file is an empty report.
func Load(jsonPath string) (Report, error) {
	var r Report
	data, err := os.ReadFile(jsonPath)
	if errors.Is(err, os.ErrNotExist) {
		return r, nil
	}
	if err != nil {
		return r, fmt.Errorf("reading %s: %w", jsonPath, err)
	}
	if err := json.Unmarshal(data, &r); err != nil {
		return r, fmt.Errorf("parsing %s: %w", jsonPath, err)
	}
	return r, nil
}

// Save writes the JSON report to jsonPath and the Markdown report next to
// it. With no failures, stale reports from an earlier run are removed.
func (l *Ledger) Save(jsonPath string) error {
	failures := l.Failures()
	mdPath := MarkdownPath(jsonPath)

	if len(failures) == 0 {
		for _, p := range []string{jsonPath, mdPath} {
			if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("removing stale report: %w", err)
			}
		}
		return nil
	}

	report := Report{RunID: l.runID, GeneratedAt: l.now().UTC(), Failures: failures}
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding failure report: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(jsonPath), 0755); err != nil {
		return fmt.Errorf("creating report directory: %w", err)
	}
	if err := os.WriteFile(jsonPath, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("writing %s: %w", jsonPath, err)
	}
	if err := os.WriteFile(mdPath, []byte(Markdown(report)), 0644); err != nil {
		return fmt.Errorf("writing %s: %w", mdPath, err)
	}
	return nil
}

// Markdown renders the report grouped by file, then by language.
func Markdown(r Report) string {
	var b strings.Builder
	b.WriteString("# Translation failures\n\n")
	fmt.Fprintf(&b, "Run `%s` at %s: %d failed keys.\n", r.RunID, r.GeneratedAt.Format(time.RFC3339), len(r.Failures))

	file, lang := "", ""
	for i, f := range r.Failures {
		if i == 0 || f.FilePath != file {
			file, lang = f.FilePath, ""
			fmt.Fprintf(&b, "\n## %s\n", f.FilePath)
		}
		if f.TargetLang != lang {
			lang = f.TargetLang
			fmt.Fprintf(&b, "\n### %s\n\n", f.TargetLang)
			b.WriteString("| Key | Source | Error |\n")
			b.WriteString("|-----|--------|-------|\n")
		}
		fmt.Fprintf(&b, "| `%s` | %s | %s |\n",
			cell(f.Key, 0), cell(f.SourceText, 60), cell(f.Error, 100))
	}
	return b.String()
}

// cell makes s safe inside a table cell, truncated to n runes when n > 0.
func cell(s string, n int) string {
	s = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ").Replace(s)
	if n > 0 {
		if r := []rune(s); len(r) > n {
			s = string(r[:n]) + "..."
		}
	}
	return strings.ReplaceAll(s, "|", `\|`)
}
