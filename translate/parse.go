package translate

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Strategy extracts id -> translation pairs from a raw model reply. ok is
// true only when at least one id of the batch was recovered.
type Strategy interface {
	Name() string
	Parse(content string, ids *IDMap) (values map[string]string, ok bool)
}

// DefaultStrategies is the parsing order: strict JSON, then a tolerant
// regex scan, then raw text for single-entry batches.
var DefaultStrategies = []Strategy{
	jsonObjectStrategy{},
	regexPairStrategy{},
	rawSingletonStrategy{},
}

// ParseResponse runs strategies in order and returns the first confident
// result along with the name of the strategy that produced it.
func ParseResponse(content string, ids *IDMap, strategies ...Strategy) (map[string]string, string) {
	if len(strategies) == 0 {
		strategies = DefaultStrategies
	}
	for _, s := range strategies {
		if values, ok := s.Parse(content, ids); ok {
			return values, s.Name()
		}
	}
	return nil, ""
}

// ---------------------------------------------------------------------------
// Strict JSON
// ---------------------------------------------------------------------------

type jsonObjectStrategy struct{}

func (jsonObjectStrategy) Name() string { return "json" }

func (jsonObjectStrategy) Parse(content string, ids *IDMap) (map[string]string, bool) {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return nil, false
	}

	var raw map[string]any
	if err := json.Unmarshal([]byte(content[start:end+1]), &raw); err != nil {
		return nil, false
	}
	values := make(map[string]string)
	for id, v := range raw {
		s, isString := v.(string)
		if !isString || !ids.Known(id) {
			continue
		}
		values[id] = s
	}
	return values, len(values) > 0
}

// ---------------------------------------------------------------------------
// Regex scan
// ---------------------------------------------------------------------------

var pairPattern = regexp.MustCompile(`"(T\d+)"\s*:\s*"((?:[^"\\]|\\.)*)"`)

type regexPairStrategy struct{}

func (regexPairStrategy) Name() string { return "regex" }

func (regexPairStrategy) Parse(content string, ids *IDMap) (map[string]string, bool) {
	values := make(map[string]string)
	for _, m := range pairPattern.FindAllStringSubmatch(content, -1) {
		if !ids.Known(m[1]) {
			continue
		}
		values[m[1]] = unescape(m[2])
	}
	return values, len(values) > 0
}

// unescape decodes JSON-style escapes without requiring the surrounding
// document to be valid JSON. Unknown escapes keep the escaped character.
func unescape(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' || i+1 >= len(s) {
			b.WriteByte(c)
			continue
		}
		i++
		switch s[i] {
		case 'n':
			b.WriteByte('\n')
		case 't':
			b.WriteByte('\t')
		case 'r':
			b.WriteByte('\r')
		case 'b':
			b.WriteByte('\b')
		case 'f':
			b.WriteByte('\f')
		case 'u':
			if i+4 < len(s) {
				if n, err := strconv.ParseUint(s[i+1:i+5], 16, 32); err == nil {
					r := rune(n)
					if !utf8.ValidRune(r) {
						r = utf8.RuneError
					}
					b.WriteRune(r)
					i += 4
					continue
				}
			}
			b.WriteString(`\u`)
		default:
			// \" \\ \/ and anything unknown
			b.WriteByte(s[i])
		}
	}
	return b.String()
}

// ---------------------------------------------------------------------------
// Raw text for a single-entry batch
// ---------------------------------------------------------------------------

type rawSingletonStrategy struct{}

func (rawSingletonStrategy) Name() string { return "raw" }

func (rawSingletonStrategy) Parse(content string, ids *IDMap) (map[string]string, bool) {
	if ids.Len() != 1 {
		return nil, false
	}
	text := strings.TrimSpace(stripCodeFence(strings.TrimSpace(content)))
	if text == "" {
		return nil, false
	}
	// An object reply that lacks the id is a mapping for something else,
	// never the translation itself.
	var obj map[string]any
	if json.Unmarshal([]byte(text), &obj) == nil {
		return nil, false
	}
	return map[string]string{ids.IDs()[0]: text}, true
}

// stripCodeFence removes one leading ``` line (with optional language) and
// one trailing ``` marker.
func stripCodeFence(s string) string {
	if strings.HasPrefix(s, "```") {
		if nl := strings.IndexByte(s, '\n'); nl >= 0 {
			s = s[nl+1:]
		} else {
			s = strings.TrimPrefix(s, "```")
		}
	}
	s = strings.TrimRight(s, " \t\r\n")
	s = strings.TrimSuffix(s, "```")
	return s
}
