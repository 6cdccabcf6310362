package domain

import (
	"bytes"
	"encoding/json"
	"slices"
	"time"

	"github.com/emirpasic/gods/maps/linkedhashmap"
)

// Snapshot is an immutable, flat view of the station state.
// Values are float64, string, bool or []string. A nil *Snapshot reads as empty.
type Snapshot struct {
	fields    *linkedhashmap.Map
	version   uint64
	updatedAt time.Time
}

func (s *Snapshot) Version() uint64 {
	if s == nil {
		return 0
	}
	return s.version
}

func (s *Snapshot) UpdatedAt() time.Time {
	if s == nil {
		return time.Time{}
	}
	return s.updatedAt
}

func (s *Snapshot) Len() int {
	if s == nil || s.fields == nil {
		return 0
	}
	return s.fields.Size()
}

func (s *Snapshot) Keys() []string {
	if s.Len() == 0 {
		return nil
	}
	keys := make([]string, 0, s.fields.Size())
	for _, k := range s.fields.Keys() {
		keys = append(keys, k.(string))
	}
	return keys
}

func (s *Snapshot) Has(field string) bool {
	_, ok := s.Get(field)
	return ok
}

// Get returns the raw value. []string values are copied.
func (s *Snapshot) Get(field string) (any, bool) {
	if s == nil || s.fields == nil {
		return nil, false
	}
	v, ok := s.fields.Get(field)
	if !ok {
		return nil, false
	}
	if list, isList := v.([]string); isList {
		return slices.Clone(list), true
	}
	return v, true
}

func (s *Snapshot) Float(field string) (float64, bool) {
	v, ok := s.Get(field)
	if !ok {
		return 0, false
	}
	f, ok := v.(float64)
	return f, ok
}

func (s *Snapshot) String(field string) (string, bool) {
	v, ok := s.Get(field)
	if !ok {
		return "", false
	}
	str, ok := v.(string)
	return str, ok
}

func (s *Snapshot) Bool(field string) (bool, bool) {
	v, ok := s.Get(field)
	if !ok {
		return false, false
	}
	b, ok := v.(bool)
	return b, ok
}

func (s *Snapshot) Strings(field string) ([]string, bool) {
	v, ok := s.Get(field)
	if !ok {
		return nil, false
	}
	list, ok := v.([]string)
	return list, ok
}

func (s *Snapshot) Each(fn func(field string, value any)) {
	if s.Len() == 0 {
		return
	}
	it := s.fields.Iterator()
	for it.Next() {
		v := it.Value()
		if list, isList := v.([]string); isList {
			v = slices.Clone(list)
		}
		fn(it.Key().(string), v)
	}
}

// SameFields reports whether both snapshots hold the same fields in the same order.
func (s *Snapshot) SameFields(other *Snapshot) bool {
	if s.Len() != other.Len() {
		return false
	}
	a, b := s.Keys(), other.Keys()
	for i := range a {
		if a[i] != b[i] {
			return false
		}
		va, _ := s.Get(a[i])
		vb, _ := other.Get(b[i])
		la, aList := va.([]string)
		lb, bList := vb.([]string)
		if aList || bList {
			if !slices.Equal(la, lb) {
				return false
			}
			continue
		}
		if va != vb {
			return false
		}
	}
	return true
}

// MarshalJSON writes the fields as an object in merge order.
func (s *Snapshot) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	var err error
	i := 0
	s.Each(func(field string, value any) {
		if err != nil {
			return
		}
		if i > 0 {
			buf.WriteByte(',')
		}
		i++
		var kb, vb []byte
		if kb, err = json.Marshal(field); err != nil {
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

// SnapshotBuilder collects fields for a new Snapshot. It is not safe for concurrent use
// and must not be used after Build.
type SnapshotBuilder struct {
	fields *linkedhashmap.Map
}

func NewSnapshotBuilder() *SnapshotBuilder {
	return &SnapshotBuilder{fields: linkedhashmap.New()}
}

// Set stores a scalar or string list value, overwriting any existing value.
// Unsupported values are ignored and reported as false.
func (b *SnapshotBuilder) Set(field string, value any) bool {
	v, ok := snapshotValue(value)
	if !ok {
		return false
	}
	b.fields.Put(field, v)
	return true
}

// SetIfAbsent stores value only when field is not present yet.
func (b *SnapshotBuilder) SetIfAbsent(field string, value any) bool {
	if b.Has(field) {
		return false
	}
	return b.Set(field, value)
}

func (b *SnapshotBuilder) Has(field string) bool {
	_, ok := b.fields.Get(field)
	return ok
}

func (b *SnapshotBuilder) Build(version uint64, updatedAt time.Time) *Snapshot {
	s := &Snapshot{fields: b.fields, version: version, updatedAt: updatedAt}
	b.fields = nil
	return s
}

func snapshotValue(value any) (any, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	case string:
		return v, true
	case bool:
		return v, true
	case []string:
		return slices.Clone(v), true
	default:
		return nil, false
	}
}
