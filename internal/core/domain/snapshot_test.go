package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshotBuilder(t *testing.T) {
	b := NewSnapshotBuilder()
	assert.True(t, b.Set("b", 1))
	assert.True(t, b.Set("a", "x"))
	assert.True(t, b.Set("c", true))
	assert.True(t, b.Set("modes", []string{"eco", "quick"}))
	assert.False(t, b.Set("nested", map[string]any{"k": 1}))
	assert.False(t, b.Set("nil", nil))
	assert.False(t, b.SetIfAbsent("a", "y"))
	// overwrite keeps position
	assert.True(t, b.Set("b", 2.5))

	at := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	s := b.Build(7, at)
	assert.Equal(t, uint64(7), s.Version())
	assert.Equal(t, at, s.UpdatedAt())
	assert.Equal(t, []string{"b", "a", "c", "modes"}, s.Keys())

	f, ok := s.Float("b")
	assert.True(t, ok)
	assert.Equal(t, 2.5, f)
	str, ok := s.String("a")
	assert.True(t, ok)
	assert.Equal(t, "x", str)
	_, ok = s.Float("a")
	assert.False(t, ok)
	bv, ok := s.Bool("c")
	assert.True(t, ok)
	assert.True(t, bv)
}

func TestSnapshotIsImmutable(t *testing.T) {
	b := NewSnapshotBuilder()
	modes := []string{"eco", "quick"}
	b.Set("modes", modes)
	s := b.Build(1, time.Now())

	modes[0] = "changed"
	got, _ := s.Strings("modes")
	assert.Equal(t, []string{"eco", "quick"}, got)

	got[1] = "changed"
	again, _ := s.Strings("modes")
	assert.Equal(t, []string{"eco", "quick"}, again)
}

func TestNilSnapshotReadsEmpty(t *testing.T) {
	var s *Snapshot
	assert.Equal(t, 0, s.Len())
	assert.Nil(t, s.Keys())
	_, ok := s.Get("x")
	assert.False(t, ok)
	assert.Equal(t, uint64(0), s.Version())
	raw, err := json.Marshal(s)
	require.NoError(t, err)
	assert.Equal(t, "null", string(raw))
}

func TestSnapshotMarshalJSON(t *testing.T) {
	b := NewSnapshotBuilder()
	b.Set("z", 1.5)
	b.Set("a", "eco")
	b.Set("m", []string{"eco"})
	raw, err := json.Marshal(b.Build(1, time.Now()))
	require.NoError(t, err)
	assert.Equal(t, `{"z":1.5,"a":"eco","m":["eco"]}`, string(raw))
}

func TestSnapshotSameFields(t *testing.T) {
	build := func(lock bool) *Snapshot {
		b := NewSnapshotBuilder()
		b.Set(FIELD_LOCK_STATE, lock)
		b.Set(FIELD_CHARGING_MODES, []string{"eco"})
		return b.Build(1, time.Now())
	}
	assert.True(t, build(true).SameFields(build(true)))
	assert.False(t, build(true).SameFields(build(false)))
}
