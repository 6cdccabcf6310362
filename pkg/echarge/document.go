package echarge

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/emirpasic/gods/maps/linkedhashmap"
)

// Document is a decoded device payload that keeps the key order the device sent.
// Values are float64, string, bool, []any or *Document. A JSON null is not stored,
// the key reads as absent.
type Document struct {
	m *linkedhashmap.Map
}

func NewDocument() *Document {
	return &Document{m: linkedhashmap.New()}
}

// DocumentOf builds a document from alternating key/value pairs.
func DocumentOf(pairs ...any) *Document {
	doc := NewDocument()
	for i := 0; i+1 < len(pairs); i += 2 {
		key, ok := pairs[i].(string)
		if !ok {
			continue
		}
		doc.Put(key, pairs[i+1])
	}
	return doc
}

func (d *Document) Len() int {
	if d == nil || d.m == nil {
		return 0
	}
	return d.m.Size()
}

func (d *Document) Keys() []string {
	if d.Len() == 0 {
		return nil
	}
	keys := make([]string, 0, d.m.Size())
	for _, k := range d.m.Keys() {
		keys = append(keys, k.(string))
	}
	return keys
}

func (d *Document) Get(key string) (any, bool) {
	if d == nil || d.m == nil {
		return nil, false
	}
	return d.m.Get(key)
}

// Doc returns the nested document stored under key.
func (d *Document) Doc(key string) (*Document, bool) {
	v, ok := d.Get(key)
	if !ok {
		return nil, false
	}
	doc, ok := v.(*Document)
	return doc, ok
}

// Put sets key to value. Re-putting an existing key keeps its position.
// A nil value removes the key.
func (d *Document) Put(key string, value any) {
	if d.m == nil {
		d.m = linkedhashmap.New()
	}
	if value == nil {
		d.m.Remove(key)
		return
	}
	d.m.Put(key, value)
}

func (d *Document) Each(fn func(key string, value any)) {
	if d.Len() == 0 {
		return
	}
	it := d.m.Iterator()
	for it.Next() {
		fn(it.Key().(string), it.Value())
	}
}

// Clone deep copies nested documents and lists.
func (d *Document) Clone() *Document {
	out := NewDocument()
	d.Each(func(key string, value any) {
		out.Put(key, cloneValue(value))
	})
	return out
}

func cloneValue(value any) any {
	switch v := value.(type) {
	case *Document:
		return v.Clone()
	case []any:
		list := make([]any, len(v))
		for i := range v {
			list[i] = cloneValue(v[i])
		}
		return list
	default:
		return v
	}
}

// NormalizeBools converts "true"/"false" strings found under the given keys into
// booleans, at any nesting depth.
func (d *Document) NormalizeBools(keys map[string]struct{}) {
	if len(keys) == 0 {
		return
	}
	d.Each(func(key string, value any) {
		switch v := value.(type) {
		case *Document:
			v.NormalizeBools(keys)
		case string:
			if _, ok := keys[key]; !ok {
				return
			}
			switch strings.ToLower(strings.TrimSpace(v)) {
			case "true":
				d.Put(key, true)
			case "false":
				d.Put(key, false)
			}
		}
	})
}

func (d *Document) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	first := true
	var err error
	d.Each(func(key string, value any) {
		if err != nil {
			return
		}
		if !first {
			buf.WriteByte(',')
		}
		first = false
		var kb, vb []byte
		if kb, err = json.Marshal(key); err != nil {
			return
		}
		if vb, err = json.Marshal(value); err != nil {
			return
		}
		buf.Write(kb)
		buf.WriteByte(':')
		buf.Write(vb)
	})
	if err != nil {
		return nil, err
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (d *Document) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return errors.New("echarge: payload is not a JSON object")
	}
	doc, err := decodeObject(dec)
	if err != nil {
		return err
	}
	d.m = doc.m
	return nil
}

// DecodeDocument parses a JSON object. An empty body yields an empty document.
func DecodeDocument(data []byte) (*Document, error) {
	doc := NewDocument()
	if len(bytes.TrimSpace(data)) == 0 {
		return doc, nil
	}
	if err := doc.UnmarshalJSON(data); err != nil {
		return nil, err
	}
	return doc, nil
}

func decodeObject(dec *json.Decoder) (*Document, error) {
	doc := NewDocument()
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("echarge: unexpected object key %v", tok)
		}
		value, err := decodeValue(dec)
		if err != nil {
			return nil, err
		}
		if value == nil {
			continue
		}
		doc.Put(key, value)
	}
	// closing brace
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return doc, nil
}

func decodeValue(dec *json.Decoder) (any, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	delim, ok := tok.(json.Delim)
	if !ok {
		return tok, nil
	}
	switch delim {
	case '{':
		return decodeObject(dec)
	case '[':
		list := []any{}
		for dec.More() {
			v, err := decodeValue(dec)
			if err != nil {
				return nil, err
			}
			list = append(list, v)
		}
		if _, err := dec.Token(); err != nil {
			return nil, err
		}
		return list, nil
	}
	return nil, fmt.Errorf("echarge: unexpected delimiter %s", delim)
}
