package service

import (
	"fmt"
	"time"

	"github.com/berfenger/echarge2mqtt/internal/core/domain"
	"github.com/berfenger/echarge2mqtt/pkg/echarge"

	"go.uber.org/zap"
)

// RawReads holds the five payloads of one refresh cycle. Nil documents read as empty.
type RawReads struct {
	Status        *echarge.Document
	SystemInfo    *echarge.Document
	ChargingModes *echarge.Document
	AutoMode      *echarge.Document
	Meters        *echarge.Document
}

type SnapshotMerger struct {
	Config domain.MergeConfig
	Logger *zap.Logger
}

func NewSnapshotMerger(cfg domain.MergeConfig, logger *zap.Logger) *SnapshotMerger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SnapshotMerger{Config: cfg, Logger: logger}
}

// Merge combines one cycle of reads. Precedence, lowest first:
// status scalars, nested status data, system info overrides. Meter readings only fill
// fields that are still free.
func (m *SnapshotMerger) Merge(reads RawReads, version uint64, at time.Time) *domain.Snapshot {
	cfg := m.Config
	b := domain.NewSnapshotBuilder()

	// base status
	reads.Status.Each(func(key string, value any) {
		if key == cfg.StatusDataKey {
			return
		}
		m.set(b, key, value)
	})
	if data, ok := reads.Status.Doc(cfg.StatusDataKey); ok {
		data.Each(func(key string, value any) {
			m.set(b, key, value)
		})
	}

	// system info, namespaced plus overrides
	reads.SystemInfo.Each(func(key string, value any) {
		m.set(b, cfg.SystemField(key), value)
	})
	for _, key := range cfg.SystemOverrideFields {
		if value, ok := reads.SystemInfo.Get(key); ok {
			m.set(b, key, value)
		}
	}

	// charging modes flattened in device order
	modes := []string{}
	reads.ChargingModes.Each(func(key string, value any) {
		label, ok := value.(string)
		if !ok {
			label = fmt.Sprint(value)
		}
		modes = append(modes, label)
	})
	b.Set(cfg.ChargingModesField, modes)

	if value, ok := reads.AutoMode.Get(cfg.AutoModeKey); ok {
		m.set(b, cfg.AutoModeKey, value)
	}

	// meter readings never replace status or system fields
	if meter, ok := reads.Meters.Doc(cfg.MeterKey); ok {
		if name, ok := meter.Get(domain.KEY_METER_NAME); ok {
			m.set(b, cfg.MeterNameField, name)
		}
		if data, ok := meter.Doc(domain.KEY_METER_DATA); ok {
			data.Each(func(key string, value any) {
				field := cfg.MeterField(key)
				if b.Has(field) {
					m.Logger.Debug("merger: meter reading collides with existing field, skipped", zap.String("field", field))
					return
				}
				m.set(b, field, value)
			})
		}
	}

	return b.Build(version, at)
}

func (m *SnapshotMerger) set(b *domain.SnapshotBuilder, field string, value any) {
	if !b.Set(field, value) {
		m.Logger.Debug("merger: skipped non scalar value", zap.String("field", field), zap.String("type", fmt.Sprintf("%T", value)))
	}
}
