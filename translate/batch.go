package translate

import (
	"fmt"
	"unicode"
)

// DefaultMaxTokens is the default token ceiling of one batch.
const DefaultMaxTokens = 1500

// EstimateTokens is a cheap, monotonic proxy for the request size of s:
// CJK characters count as one unit each, everything else as a quarter unit.
func EstimateTokens(s string) float64 {
	var n float64
	for _, r := range s {
		if isCJK(r) {
			n++
		} else {
			n += 0.25
		}
	}
	return n
}

func isCJK(r rune) bool {
	return unicode.In(r, unicode.Han, unicode.Hiragana, unicode.Katakana, unicode.Hangul)
}

func taskTokens(t Task) float64 {
	return EstimateTokens(fmt.Sprintf("%s: %s", t.Key, t.SourceText))
}

// BatchTasksByTokenLimit splits tasks, in order, into batches whose summed
// token estimate stays within maxTokens. A task that alone exceeds the
// ceiling becomes a batch of its own.
func BatchTasksByTokenLimit(tasks []Task, maxTokens int) [][]Task {
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	limit := float64(maxTokens)

	var batches [][]Task
	var cur []Task
	var curTokens float64

	for _, t := range tasks {
		n := taskTokens(t)
		if len(cur) > 0 && curTokens+n > limit {
			batches = append(batches, cur)
			cur, curTokens = nil, 0
		}
		cur = append(cur, t)
		curTokens += n
	}
	if len(cur) > 0 {
		batches = append(batches, cur)
	}
	return batches
}
