package domain

// Station payload keys.
const (
	KEY_STATUS_DATA     = "data"
	KEY_METER           = "meter"
	KEY_METER_NAME      = "name"
	KEY_METER_DATA      = "data"
	KEY_SYSTEM_COMPANY  = "company"
	KEY_SYSTEM_VERSION  = "os_version"
	KEY_SYSTEM_PART_NUM = "partnumber"
)

// Snapshot field names.
const (
	FIELD_SERIAL                = "serial"
	FIELD_LOCK_STATE            = "lockState"
	FIELD_MODE                  = "mode"
	FIELD_MAX_AVAILABLE_CURRENT = "maxAvailableCurrent"
	FIELD_MANUAL_MODE_AMP       = "manualModeAmp"
	FIELD_ACTUAL_CURRENT        = "actualCurrent"
	FIELD_CONNECTED             = "connected"
	FIELD_AUTO_MODE             = "autostartstop"
	FIELD_CHARGING_MODES        = "chargingModes"
	FIELD_METER_NAME            = "meterName"
	FIELD_STATE                 = "state"
	FIELD_STATE_ID              = "stateid"
	FIELD_PART_NUMBER           = "partnumber"

	SYSTEM_FIELD_PREFIX = "system."
	METER_FIELD_PREFIX  = "meter."
)

// MergeConfig names the keys the merger reads and the fields it writes.
type MergeConfig struct {
	// StatusDataKey is the nested status mapping whose scalars are lifted to the top level.
	StatusDataKey string
	// SystemPrefix is prepended to every system info scalar.
	SystemPrefix string
	// SystemOverrideFields are system info keys also written at the top level, replacing status values.
	SystemOverrideFields []string
	// ChargingModesField receives the ordered list of charging mode labels.
	ChargingModesField string
	// AutoModeKey is read from the auto-mode reply and written with the same name.
	AutoModeKey string
	MeterKey    string
	// MeterNameField receives the meter name.
	MeterNameField string
	// MeterPrefix is prepended to meter readings. Readings never replace existing fields.
	MeterPrefix string
}

func DefaultMergeConfig() MergeConfig {
	return MergeConfig{
		StatusDataKey:        KEY_STATUS_DATA,
		SystemPrefix:         SYSTEM_FIELD_PREFIX,
		SystemOverrideFields: []string{FIELD_SERIAL},
		ChargingModesField:   FIELD_CHARGING_MODES,
		AutoModeKey:          FIELD_AUTO_MODE,
		MeterKey:             KEY_METER,
		MeterNameField:       FIELD_METER_NAME,
		MeterPrefix:          METER_FIELD_PREFIX,
	}
}

// SystemField is the snapshot field holding a system info key.
func (c MergeConfig) SystemField(key string) string {
	return c.SystemPrefix + key
}

// MeterField is the snapshot field holding a meter reading.
func (c MergeConfig) MeterField(key string) string {
	return c.MeterPrefix + key
}
