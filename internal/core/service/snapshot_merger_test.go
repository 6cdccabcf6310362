package service

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/berfenger/echarge2mqtt/internal/core/domain"
	"github.com/berfenger/echarge2mqtt/pkg/echarge"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testMerger() *SnapshotMerger {
	return NewSnapshotMerger(domain.DefaultMergeConfig(), zap.NewNop())
}

func fullReads() RawReads {
	station := echarge.NewTestClient()
	return RawReads{
		Status:        station.Status,
		SystemInfo:    station.SystemInfo,
		ChargingModes: station.ChargingModes,
		AutoMode:      station.AutoMode,
		Meters:        station.Meters,
	}
}

func TestMergeSystemInfoOverridesSerial(t *testing.T) {
	reads := RawReads{
		Status:     echarge.DocumentOf("serial", "X"),
		SystemInfo: echarge.DocumentOf("serial", "Y"),
	}
	s := testMerger().Merge(reads, 1, time.Now())

	serial, ok := s.String(domain.FIELD_SERIAL)
	require.True(t, ok)
	assert.Equal(t, "Y", serial)
	namespaced, _ := s.String("system.serial")
	assert.Equal(t, "Y", namespaced)
}

func TestMergeNestedStatusSerialAlsoOverridden(t *testing.T) {
	reads := RawReads{
		Status:     echarge.DocumentOf("data", echarge.DocumentOf("serial", "X")),
		SystemInfo: echarge.DocumentOf("serial", "Y"),
	}
	s := testMerger().Merge(reads, 1, time.Now())
	serial, _ := s.String(domain.FIELD_SERIAL)
	assert.Equal(t, "Y", serial)
}

func TestMergeMeterNeverOverwritesStatus(t *testing.T) {
	cfg := domain.DefaultMergeConfig()
	// without a namespace meter readings land next to status fields
	cfg.MeterPrefix = ""
	merger := NewSnapshotMerger(cfg, nil)

	reads := RawReads{
		Status: echarge.DocumentOf("data", echarge.DocumentOf("lockState", "A")),
		Meters: echarge.DocumentOf("meter", echarge.DocumentOf(
			"name", "Garage",
			"data", echarge.DocumentOf("lockState", "B", "1-0:1.4.0", 2300.0),
		)),
	}
	s := merger.Merge(reads, 1, time.Now())

	lock, _ := s.String(domain.FIELD_LOCK_STATE)
	assert.Equal(t, "A", lock)
	power, ok := s.Float("1-0:1.4.0")
	assert.True(t, ok)
	assert.Equal(t, 2300.0, power)
}

func TestMergeMeterNamespace(t *testing.T) {
	s := testMerger().Merge(fullReads(), 1, time.Now())

	lock, ok := s.Bool(domain.FIELD_LOCK_STATE)
	require.True(t, ok)
	assert.False(t, lock)

	voltage, ok := s.Float("meter.1-0:32.4.0")
	require.True(t, ok)
	assert.Equal(t, 231.2, voltage)

	name, _ := s.String(domain.FIELD_METER_NAME)
	assert.Equal(t, "Garage", name)
}

func TestMergeChargingModesFlattened(t *testing.T) {
	reads := RawReads{ChargingModes: echarge.DocumentOf("1", "Eco", "2", "Fast")}
	s := testMerger().Merge(reads, 1, time.Now())

	modes, ok := s.Strings(domain.FIELD_CHARGING_MODES)
	require.True(t, ok)
	assert.Equal(t, []string{"Eco", "Fast"}, modes)
}

func TestMergeChargingModesKeepDeviceOrder(t *testing.T) {
	doc, err := echarge.DecodeDocument([]byte(`{"3":"manual","1":"eco","2":"quick"}`))
	require.NoError(t, err)
	s := testMerger().Merge(RawReads{ChargingModes: doc}, 1, time.Now())

	modes, _ := s.Strings(domain.FIELD_CHARGING_MODES)
	assert.Equal(t, []string{"manual", "eco", "quick"}, modes)
}

func TestMergeDerivedFieldsLifted(t *testing.T) {
	s := testMerger().Merge(fullReads(), 1, time.Now())

	maxCurrent, ok := s.Float(domain.FIELD_MAX_AVAILABLE_CURRENT)
	require.True(t, ok)
	assert.Equal(t, 16.0, maxCurrent)

	auto, ok := s.Bool(domain.FIELD_AUTO_MODE)
	require.True(t, ok)
	assert.False(t, auto)

	company, _ := s.String("system.company")
	assert.Equal(t, "Hardy Barth", company)

	// nested mappings are flattened, never stored
	assert.False(t, s.Has("data"))
	assert.False(t, s.Has("meter"))
}

func TestMergeIsTotal(t *testing.T) {
	s := testMerger().Merge(RawReads{}, 3, time.Now())
	assert.Equal(t, uint64(3), s.Version())
	// only the always present modes list
	assert.Equal(t, []string{domain.FIELD_CHARGING_MODES}, s.Keys())
	modes, _ := s.Strings(domain.FIELD_CHARGING_MODES)
	assert.Empty(t, modes)

	odd := RawReads{
		Status: echarge.DocumentOf("data", "not a mapping", "list", []any{1.0}),
		Meters: echarge.DocumentOf("meter", "nope"),
	}
	s = testMerger().Merge(odd, 4, time.Now())
	assert.False(t, s.Has("list"))
	assert.False(t, s.Has("data"))
}

func TestMergeIsDeterministic(t *testing.T) {
	at := time.Now()
	a, err := json.Marshal(testMerger().Merge(fullReads(), 1, at))
	require.NoError(t, err)
	b, err := json.Marshal(testMerger().Merge(fullReads(), 1, at))
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
}
