// Package flatten converts nested JSON translation trees into flat maps of
// dotted key paths and back.
//
// Only string leaves are translatable. Objects are recursed into; arrays,
// numbers, booleans and null are opaque leaves that never appear in a flat
// map but are carried through untouched when a document is rebuilt.
//
// Key order of the source file is preserved on decode and encode so that a
// rewritten target file diffs cleanly against its base.
package flatten

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// Separator joins path segments in a key path.
const Separator = "."

// ---------------------------------------------------------------------------
// Ordered flat map
// ---------------------------------------------------------------------------

// Map is a flat key path -> string mapping that remembers insertion order.
type Map struct {
	keys   []string
	values map[string]string
}

// NewMap returns an empty Map.
func NewMap() *Map {
	return &Map{values: make(map[string]string)}
}

// MapOf builds a Map from a plain map. Keys are inserted in sorted order.
func MapOf(m map[string]string) *Map {
	out := NewMap()
	for _, k := range sortedKeys(m) {
		out.Set(k, m[k])
	}
	return out
}

// Set inserts or overwrites a key. New keys are appended to the order.
func (m *Map) Set(key, value string) {
	if _, ok := m.values[key]; !ok {
		m.keys = append(m.keys, key)
	}
	m.values[key] = value
}

// Get returns the value for key. A nil Map holds nothing.
func (m *Map) Get(key string) (string, bool) {
	if m == nil {
		return "", false
	}
	v, ok := m.values[key]
	return v, ok
}

// Has reports whether key is present.
func (m *Map) Has(key string) bool {
	_, ok := m.Get(key)
	return ok
}

// Keys returns the key paths in insertion order.
func (m *Map) Keys() []string {
	if m == nil {
		return nil
	}
	out := make([]string, len(m.keys))
	copy(out, m.keys)
	return out
}

// Len returns the number of keys.
func (m *Map) Len() int {
	if m == nil {
		return 0
	}
	return len(m.keys)
}

// ToMap returns a copy of the values as a plain map.
func (m *Map) ToMap() map[string]string {
	out := make(map[string]string, m.Len())
	if m == nil {
		return out
	}
	for k, v := range m.values {
		out[k] = v
	}
	return out
}

// ---------------------------------------------------------------------------
// Ordered document tree
// ---------------------------------------------------------------------------

// Kind identifies the type of a document node.
type Kind int

const (
	KindObject Kind = iota
	KindString
	KindRaw // any other JSON value, kept verbatim
)

// Node is one value in an ordered JSON document.
type Node struct {
	Kind     Kind
	Keys     []string
	Children map[string]*Node
	Str      string
	Raw      json.RawMessage
}

func newObject() *Node {
	return &Node{Kind: KindObject, Children: make(map[string]*Node)}
}

func (n *Node) set(key string, child *Node) {
	if _, ok := n.Children[key]; !ok {
		n.Keys = append(n.Keys, key)
	}
	n.Children[key] = child
}

// Document is a parsed JSON file whose top level is an object.
type Document struct {
	Root *Node
}

// NewDocument returns an empty document ({}).
func NewDocument() *Document {
	return &Document{Root: newObject()}
}

// ParseFile reads and decodes a JSON translation file.
func ParseFile(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	doc, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return doc, nil
}

// Decode parses JSON data into an ordered document. Empty input yields an
// empty document.
func Decode(data []byte) (*Document, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return NewDocument(), nil
	}
	root, err := decodeValue(data)
	if err != nil {
		return nil, err
	}
	if root.Kind != KindObject {
		return nil, fmt.Errorf("top-level JSON value must be an object")
	}
	return &Document{Root: root}, nil
}

func decodeValue(data json.RawMessage) (*Node, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("empty JSON value")
	}
	switch trimmed[0] {
	case '{':
		return decodeObject(trimmed)
	case '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return nil, err
		}
		return &Node{Kind: KindString, Str: s}, nil
	default:
		var compact bytes.Buffer
		if err := json.Compact(&compact, trimmed); err != nil {
			return nil, err
		}
		return &Node{Kind: KindRaw, Raw: json.RawMessage(compact.Bytes())}, nil
	}
}

func decodeObject(data []byte) (*Node, error) {
	dec := json.NewDecoder(bytes.NewReader(data))

	t, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if delim, ok := t.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("expected {, got %v", t)
	}

	obj := newObject()
	for dec.More() {
		kt, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := kt.(string)
		if !ok {
			return nil, fmt.Errorf("expected string key, got %T", kt)
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, fmt.Errorf("key %q: %w", key, err)
		}
		child, err := decodeValue(raw)
		if err != nil {
			return nil, fmt.Errorf("key %q: %w", key, err)
		}
		obj.set(key, child)
	}
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return obj, nil
}

// ---------------------------------------------------------------------------
// Flatten / Rebuild
// ---------------------------------------------------------------------------

// Flatten returns the string leaves of doc keyed by dotted path, in document
// order. A nil document flattens to an empty map.
func Flatten(doc *Document) *Map {
	out := NewMap()
	if doc == nil || doc.Root == nil {
		return out
	}
	walk(doc.Root, "", out)
	return out
}

func walk(n *Node, prefix string, out *Map) {
	for _, k := range n.Keys {
		child := n.Children[k]
		path := join(prefix, k)
		switch child.Kind {
		case KindObject:
			walk(child, path, out)
		case KindString:
			out.Set(path, child.Str)
		}
	}
}

// Rebuild returns a copy of doc in which every string leaf is replaced by the
// value stored under its path in values. String leaves missing from values
// are dropped. Non-string leaves are copied verbatim.
func (d *Document) Rebuild(values *Map) *Document {
	return &Document{Root: rebuild(d.Root, "", values)}
}

func rebuild(n *Node, prefix string, values *Map) *Node {
	out := newObject()
	for _, k := range n.Keys {
		child := n.Children[k]
		path := join(prefix, k)
		switch child.Kind {
		case KindObject:
			out.set(k, rebuild(child, path, values))
		case KindString:
			if v, ok := values.Get(path); ok {
				out.set(k, &Node{Kind: KindString, Str: v})
			}
		default:
			raw := make(json.RawMessage, len(child.Raw))
			copy(raw, child.Raw)
			out.set(k, &Node{Kind: KindRaw, Raw: raw})
		}
	}
	return out
}

func join(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + Separator + key
}

// ---------------------------------------------------------------------------
// Plain tree helpers
// ---------------------------------------------------------------------------

// FlattenTree flattens a generic decoded JSON tree. Only nested
// map[string]any objects are recursed into; non-string leaves are ignored.
func FlattenTree(tree map[string]any) map[string]string {
	out := make(map[string]string)
	flattenTree(tree, "", out)
	return out
}

func flattenTree(tree map[string]any, prefix string, out map[string]string) {
	for k, v := range tree {
		path := join(prefix, k)
		switch val := v.(type) {
		case string:
			out[path] = val
		case map[string]any:
			flattenTree(val, path, out)
		}
	}
}

// Unflatten nests a flat map back into a tree of map[string]any.
// Unflatten(FlattenTree(t)) equals t for trees of objects and string leaves.
func Unflatten(flat map[string]string) map[string]any {
	root := make(map[string]any)
	for _, path := range sortedKeys(flat) {
		segments := strings.Split(path, Separator)
		cur := root
		for _, seg := range segments[:len(segments)-1] {
			next, ok := cur[seg].(map[string]any)
			if !ok {
				next = make(map[string]any)
				cur[seg] = next
			}
			cur = next
		}
		cur[segments[len(segments)-1]] = flat[path]
	}
	return root
}

// UnflattenMap nests an ordered flat map into a document, keeping key order.
func UnflattenMap(m *Map) *Document {
	doc := NewDocument()
	for _, path := range m.Keys() {
		v, _ := m.Get(path)
		segments := strings.Split(path, Separator)
		cur := doc.Root
		for _, seg := range segments[:len(segments)-1] {
			next, ok := cur.Children[seg]
			if !ok || next.Kind != KindObject {
				next = newObject()
				cur.set(seg, next)
			}
			cur = next
		}
		cur.set(segments[len(segments)-1], &Node{Kind: KindString, Str: v})
	}
	return doc
}
