// Package diff classifies the keys of a base-language file against its
// translated counterpart.
//
// Every base key lands in exactly one of added, modified, skipped or
// unchanged; keys found only in the target are removed. Whether an existing
// target value still needs translation is decided by the snapshot store,
// which remembers the hash of the source text each key was last reconciled
// against.
package diff

import (
	"github.com/minios-linux/locsync/flatten"
	"github.com/minios-linux/locsync/skip"
	"github.com/minios-linux/locsync/snapshot"
)

// Result holds five disjoint sets of key paths. Base-derived sets keep base
// order; Removed keeps target order.
type Result struct {
	Added     []string
	Modified  []string
	Removed   []string
	Skipped   []string
	Unchanged []string
}

// Pending returns the keys that need a translation (added, then modified),
// in base order.
func (r Result) Pending(base *flatten.Map) []string {
	want := make(map[string]bool, len(r.Added)+len(r.Modified))
	for _, k := range r.Added {
		want[k] = true
	}
	for _, k := range r.Modified {
		want[k] = true
	}
	var out []string
	for _, k := range base.Keys() {
		if want[k] {
			out = append(out, k)
		}
	}
	return out
}

// HasChanges reports whether anything needs translating or removing.
func (r Result) HasChanges() bool {
	return len(r.Added) > 0 || len(r.Modified) > 0 || len(r.Removed) > 0
}

// Hashes is the read side of the snapshot store used by the engine.
type Hashes interface {
	Get(lang, file, key string) (string, bool)
}

// Engine classifies keys using a snapshot store and skip patterns.
type Engine struct {
	Snapshots Hashes
	Skip      *skip.Matcher
}

// Input describes one file and target language to classify.
type Input struct {
	Base       *flatten.Map
	Target     *flatten.Map // nil when the target file does not exist
	FileID     string
	TargetLang string
	// Force treats every unskipped base key as needing translation,
	// ignoring target content and snapshot state.
	Force bool
}

// Diff classifies every key of in.Base and detects removed target keys.
func (e *Engine) Diff(in Input) Result {
	var r Result

	for _, k := range in.Base.Keys() {
		src, _ := in.Base.Get(k)

		if e.Skip.Match(k) {
			r.Skipped = append(r.Skipped, k)
			continue
		}

		tgt, ok := in.Target.Get(k)
		if !ok {
			r.Added = append(r.Added, k)
			continue
		}
		if in.Force {
			r.Modified = append(r.Modified, k)
			continue
		}

		stillEnglish := tgt == src
		prev, hasPrev := e.previous(in, k)
		switch {
		case !hasPrev:
			// First encounter: an existing foreign value is accepted as is.
			if stillEnglish {
				r.Modified = append(r.Modified, k)
			} else {
				r.Unchanged = append(r.Unchanged, k)
			}
		case snapshot.Hash(src) != prev:
			r.Modified = append(r.Modified, k)
		default:
			r.Unchanged = append(r.Unchanged, k)
		}
	}

	for _, k := range in.Target.Keys() {
		if !in.Base.Has(k) {
			r.Removed = append(r.Removed, k)
		}
	}

	return r
}

func (e *Engine) previous(in Input, key string) (string, bool) {
	if e.Snapshots == nil {
		return "", false
	}
	return e.Snapshots.Get(in.TargetLang, in.FileID, key)
}
