// Package skip matches dotted key paths against glob-like skip patterns.
//
// Supported forms:
//
//	settings.locale      exact key
//	brand.**             every key below brand
//	**.url               url at any depth (including top level)
//	legal.**.text        text anywhere below legal
//	meta.*.id            * matches exactly one segment
//
// A "**" segment spans zero or more whole segments.
package skip

import (
	"fmt"
	"strings"

	"github.com/gobwas/glob"
)

const separator = '.'

// Matcher tests key paths against a compiled set of skip patterns.
type Matcher struct {
	patterns []string
	globs    []glob.Glob
}

// New compiles patterns. Blank patterns are ignored.
func New(patterns []string) (*Matcher, error) {
	m := &Matcher{}
	for _, p := range patterns {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		for _, variant := range expand(p) {
			g, err := glob.Compile(variant, separator)
			if err != nil {
				return nil, fmt.Errorf("invalid skip pattern %q: %w", p, err)
			}
			m.globs = append(m.globs, g)
		}
		m.patterns = append(m.patterns, p)
	}
	return m, nil
}

// MustNew is like New but panics on an invalid pattern. Intended for tests
// and static pattern lists.
func MustNew(patterns ...string) *Matcher {
	m, err := New(patterns)
	if err != nil {
		panic(err)
	}
	return m
}

// Patterns returns the source patterns.
func (m *Matcher) Patterns() []string {
	if m == nil {
		return nil
	}
	return append([]string(nil), m.patterns...)
}

// Match reports whether key matches any pattern. A nil Matcher matches nothing.
func (m *Matcher) Match(key string) bool {
	if m == nil {
		return false
	}
	for _, g := range m.globs {
		if g.Match(key) {
			return true
		}
	}
	return false
}

// Filter returns the keys that match, preserving input order.
func (m *Matcher) Filter(keys []string) []string {
	var out []string
	for _, k := range keys {
		if m.Match(k) {
			out = append(out, k)
		}
	}
	return out
}

// expand returns the pattern plus the variants in which a leading "**."
// or an infix ".**." collapses to zero segments. The glob library's
// super-asterisk matches any run of characters but still needs the
// surrounding separators, so "a.**.b" alone would not match "a.b".
func expand(p string) []string {
	variants := []string{p}
	if strings.HasPrefix(p, "**.") {
		variants = append(variants, strings.TrimPrefix(p, "**."))
	}

	var out []string
	seen := make(map[string]bool)
	for _, v := range variants {
		for _, e := range expandInfix(v) {
			if !seen[e] {
				seen[e] = true
				out = append(out, e)
			}
		}
	}
	return out
}

func expandInfix(p string) []string {
	const infix = ".**."
	idx := strings.Index(p, infix)
	if idx < 0 {
		return []string{p}
	}
	head := p[:idx]
	var out []string
	for _, rest := range expandInfix(p[idx+len(infix):]) {
		out = append(out, head+infix+rest, head+"."+rest)
	}
	return out
}
