// Package merge reconciles a base tree, the previous target tree and fresh
// translations into the new target tree.
package merge

import (
	"github.com/minios-linux/locsync/flatten"
)

// Merge builds the new flattened target. Only base keys survive, in base
// order. For each key the value is, by precedence:
//   - the fresh translation, when there is one
//   - the source text verbatim, when the key is skipped
//   - the prior target value, when present and different from the source
//   - the source text, as a placeholder until a translation lands
//
// prior may be nil when no target existed.
func Merge(base, prior *flatten.Map, translations map[string]string, skipped []string) *flatten.Map {
	skip := make(map[string]bool, len(skipped))
	for _, k := range skipped {
		skip[k] = true
	}

	result := flatten.NewMap()
	for _, key := range base.Keys() {
		source, _ := base.Get(key)

		if v, ok := translations[key]; ok {
			result.Set(key, v)
			continue
		}
		if skip[key] {
			result.Set(key, source)
			continue
		}
		// A prior value equal to the source is an untranslated placeholder,
		// so the fresh source wins over it.
		if v, ok := prior.Get(key); ok && v != source {
			result.Set(key, v)
			continue
		}
		result.Set(key, source)
	}
	return result
}
