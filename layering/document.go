// Package layering holds the ordered document model used by definition files
// and the merge rules applied when one document inherits from another.
package layering

import (
	"bytes"
	"encoding/json"
)

// Document is a mapping that remembers insertion order. Values are scalars,
// []any slices or nested *Document values.
type Document struct {
	keys   []string
	values map[string]any
}

// NewDocument returns an empty document.
func NewDocument() *Document {
	return &Document{values: map[string]any{}}
}

// Len reports the number of keys.
func (d *Document) Len() int {
	if d == nil {
		return 0
	}
	return len(d.keys)
}

// Keys returns the keys in insertion order.
func (d *Document) Keys() []string {
	if d == nil {
		return nil
	}
	return append([]string(nil), d.keys...)
}

// Has reports whether key is present.
func (d *Document) Has(key string) bool {
	if d == nil {
		return false
	}
	_, ok := d.values[key]
	return ok
}

// Get returns the value stored under key.
func (d *Document) Get(key string) (any, bool) {
	if d == nil {
		return nil, false
	}
	value, ok := d.values[key]
	return value, ok
}

// Document returns the nested document stored under key.
func (d *Document) Document(key string) (*Document, bool) {
	value, ok := d.Get(key)
	if !ok {
		return nil, false
	}
	nested, ok := value.(*Document)
	return nested, ok && nested != nil
}

// String returns the string stored under key.
func (d *Document) String(key string) (string, bool) {
	value, ok := d.Get(key)
	if !ok {
		return "", false
	}
	s, ok := value.(string)
	return s, ok
}

// Set stores value under key. Existing keys keep their position.
func (d *Document) Set(key string, value any) {
	if d.values == nil {
		d.values = map[string]any{}
	}
	if _, exists := d.values[key]; !exists {
		d.keys = append(d.keys, key)
	}
	d.values[key] = value
}

// Delete removes key.
func (d *Document) Delete(key string) {
	if d == nil {
		return
	}
	if _, exists := d.values[key]; !exists {
		return
	}
	delete(d.values, key)
	for i, k := range d.keys {
		if k == key {
			d.keys = append(d.keys[:i], d.keys[i+1:]...)
			break
		}
	}
}

// ToMap converts the document into plain maps, recursively.
func (d *Document) ToMap() map[string]any {
	if d == nil {
		return nil
	}
	out := make(map[string]any, len(d.keys))
	for _, key := range d.keys {
		out[key] = plain(d.values[key])
	}
	return out
}

func plain(value any) any {
	switch typed := value.(type) {
	case *Document:
		return typed.ToMap()
	case []any:
		out := make([]any, len(typed))
		for i, item := range typed {
			out[i] = plain(item)
		}
		return out
	default:
		return value
	}
}

// MarshalJSON writes the document as a JSON object preserving key order.
func (d *Document) MarshalJSON() ([]byte, error) {
	if d == nil {
		return []byte("null"), nil
	}
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, key := range d.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		name, err := json.Marshal(key)
		if err != nil {
			return nil, err
		}
		buf.Write(name)
		buf.WriteByte(':')
		value, err := json.Marshal(d.values[key])
		if err != nil {
			return nil, err
		}
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
