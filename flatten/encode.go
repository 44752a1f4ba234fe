package flatten

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const indentUnit = "  "

// Encode renders doc as indented JSON, preserving key order. HTML characters
// are not escaped so that markup in translations stays readable.
func Encode(doc *Document) ([]byte, error) {
	var b bytes.Buffer
	root := doc.Root
	if root == nil {
		root = newObject()
	}
	if err := encodeNode(&b, root, 0); err != nil {
		return nil, err
	}
	b.WriteByte('\n')
	return b.Bytes(), nil
}

// WriteFile encodes doc and writes it to path, creating parent directories.
func (d *Document) WriteFile(path string) error {
	data, err := Encode(d)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

func encodeNode(b *bytes.Buffer, n *Node, depth int) error {
	switch n.Kind {
	case KindString:
		s, err := quote(n.Str)
		if err != nil {
			return err
		}
		b.WriteString(s)
	case KindRaw:
		var out bytes.Buffer
		if err := json.Indent(&out, n.Raw, strings.Repeat(indentUnit, depth), indentUnit); err != nil {
			return err
		}
		b.Write(out.Bytes())
	case KindObject:
		if len(n.Keys) == 0 {
			b.WriteString("{}")
			return nil
		}
		b.WriteString("{\n")
		inner := strings.Repeat(indentUnit, depth+1)
		for i, k := range n.Keys {
			key, err := quote(k)
			if err != nil {
				return err
			}
			b.WriteString(inner)
			b.WriteString(key)
			b.WriteString(": ")
			if err := encodeNode(b, n.Children[k], depth+1); err != nil {
				return err
			}
			if i < len(n.Keys)-1 {
				b.WriteByte(',')
			}
			b.WriteByte('\n')
		}
		b.WriteString(strings.Repeat(indentUnit, depth))
		b.WriteByte('}')
	}
	return nil
}

// quote JSON-encodes s without HTML escaping.
func quote(s string) (string, error) {
	var b bytes.Buffer
	enc := json.NewEncoder(&b)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return "", err
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
