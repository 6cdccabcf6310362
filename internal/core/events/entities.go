package events

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"

	. "github.com/berfenger/echarge2mqtt/internal/core/domain"

	"github.com/carlmjohnson/versioninfo"
)

const (
	SENSOR_ID_BRIDGE_STATE          = "bridge"
	SENSOR_ID_STATE                 = "state"
	SENSOR_ID_MAX_AVAILABLE_CURRENT = "max_available_current"
	SENSOR_ID_ACTUAL_CURRENT        = "actual_current"
	SENSOR_ID_SERIAL                = "serial"
	SENSOR_ID_METER_NAME            = "meter_name"
	BINARY_SENSOR_ID_CONNECTED      = "connected"
	SWITCH_ID_LOCK                  = "lock"
	SWITCH_ID_AUTO_MODE             = "auto_start_stop"
	INPUT_NUMBER_ID_CURRENT         = "charging_current"
	SELECT_ID_MODE                  = "charging_mode"

	DEFAULT_DECIMALS        = 2
	CHARGING_CURRENT_STEP   = 1
	OBIS_ACTIVE_POWER_PLUS  = "1-0:1.4.0"
	OBIS_ACTIVE_ENERGY_PLUS = "1-0:1.8.0"
)

type SensorSpec struct {
	Field             string
	Id                string
	Name              string
	UnitOfMeasurement string
	StateClass        string
	DeviceClass       string
	EntityCategory    string
	Icon              string
	// Text sensors publish the raw value instead of a rounded number.
	Text     bool
	Decimals uint
}

type BinarySensorSpec struct {
	Field       string
	Id          string
	Name        string
	DeviceClass string
	Icon        string
}

type SwitchSpec struct {
	Field   string
	Id      string
	Name    string
	Icon    string
	Command string
}

type NumberSpec struct {
	Field string
	Id    string
	Name  string
	Icon  string
	Unit  string
	Min   float64
	// MaxField, when present in the snapshot, overrides DefaultMax.
	MaxField   string
	DefaultMax float64
	Step       float64
	Mode       string
	Command    string
}

type SelectSpec struct {
	Field        string
	OptionsField string
	Id           string
	Name         string
	Icon         string
	Command      string
}

// EntityTable maps snapshot fields to published entities. Entities whose field is
// missing from a snapshot are skipped.
type EntityTable struct {
	Sensors       []SensorSpec
	BinarySensors []BinarySensorSpec
	Switches      []SwitchSpec
	Numbers       []NumberSpec
	Selects       []SelectSpec
}

func (t EntityTable) SwitchById(id string) (SwitchSpec, bool) {
	for _, s := range t.Switches {
		if s.Id == id {
			return s, true
		}
	}
	return SwitchSpec{}, false
}

func (t EntityTable) NumberById(id string) (NumberSpec, bool) {
	for _, n := range t.Numbers {
		if n.Id == id {
			return n, true
		}
	}
	return NumberSpec{}, false
}

func (t EntityTable) SelectById(id string) (SelectSpec, bool) {
	for _, s := range t.Selects {
		if s.Id == id {
			return s, true
		}
	}
	return SelectSpec{}, false
}

type obisReading struct {
	code        string
	id          string
	name        string
	unit        string
	deviceClass string
	stateClass  string
}

var meterReadings = []obisReading{
	{OBIS_ACTIVE_POWER_PLUS, "active_power_plus", "Active power +", "W", DEVICE_CLASS_POWER, STATE_CLASS_MEASUREMENT},
	{OBIS_ACTIVE_ENERGY_PLUS, "active_energy_plus", "Active energy +", "kWh", DEVICE_CLASS_ENERGY, STATE_CLASS_TOTAL_INCREASING},
	{"1-0:2.4.0", "active_power_minus", "Active power -", "W", DEVICE_CLASS_POWER, STATE_CLASS_MEASUREMENT},
	{"1-0:2.8.0", "active_energy_minus", "Active energy -", "kWh", DEVICE_CLASS_ENERGY, STATE_CLASS_TOTAL_INCREASING},
	{"1-0:3.4.0", "reactive_power_plus", "Reactive power +", "var", DEVICE_CLASS_REACTIVE_POWER, STATE_CLASS_MEASUREMENT},
	{"1-0:4.4.0", "reactive_power_minus", "Reactive power -", "var", DEVICE_CLASS_REACTIVE_POWER, STATE_CLASS_MEASUREMENT},
	{"1-0:9.4.0", "apparent_power_plus", "Apparent power +", "VA", DEVICE_CLASS_APPARENT_POWER, STATE_CLASS_MEASUREMENT},
	{"1-0:10.4.0", "apparent_power_minus", "Apparent power -", "VA", DEVICE_CLASS_APPARENT_POWER, STATE_CLASS_MEASUREMENT},
	{"1-0:13.4.0", "power_factor", "Power factor", "", DEVICE_CLASS_POWER_FACTOR, STATE_CLASS_MEASUREMENT},
	{"1-0:14.4.0", "frequency", "Frequency", "Hz", DEVICE_CLASS_FREQUENCY, STATE_CLASS_MEASUREMENT},
}

// per phase OBIS groups: active power, current, voltage, power factor
var phaseGroups = []struct {
	phase string
	codes [4]string
}{
	{"L1", [4]string{"1-0:21.4.0", "1-0:31.4.0", "1-0:32.4.0", "1-0:33.4.0"}},
	{"L2", [4]string{"1-0:41.4.0", "1-0:51.4.0", "1-0:52.4.0", "1-0:53.4.0"}},
	{"L3", [4]string{"1-0:61.4.0", "1-0:71.4.0", "1-0:72.4.0", "1-0:73.4.0"}},
}

func DefaultEntityTable(cfg MergeConfig) EntityTable {
	sensors := []SensorSpec{
		{
			Field: FIELD_STATE,
			Id:    SENSOR_ID_STATE,
			Name:  "State",
			Icon:  "mdi:ev-station",
			Text:  true,
		},
		{
			Field:             FIELD_MAX_AVAILABLE_CURRENT,
			Id:                SENSOR_ID_MAX_AVAILABLE_CURRENT,
			Name:              "Max available current",
			UnitOfMeasurement: "A",
			StateClass:        STATE_CLASS_MEASUREMENT,
			DeviceClass:       DEVICE_CLASS_CURRENT,
			Decimals:          DEFAULT_DECIMALS,
		},
		{
			Field:             FIELD_ACTUAL_CURRENT,
			Id:                SENSOR_ID_ACTUAL_CURRENT,
			Name:              "Charging current",
			UnitOfMeasurement: "A",
			StateClass:        STATE_CLASS_MEASUREMENT,
			DeviceClass:       DEVICE_CLASS_CURRENT,
			Decimals:          DEFAULT_DECIMALS,
		},
		{
			Field:          FIELD_SERIAL,
			Id:             SENSOR_ID_SERIAL,
			Name:           "Serial number",
			EntityCategory: ENTITY_CLASS_DIAGNOSTIC,
			Text:           true,
		},
		{
			Field:          FIELD_METER_NAME,
			Id:             SENSOR_ID_METER_NAME,
			Name:           "Meter name",
			EntityCategory: ENTITY_CLASS_DIAGNOSTIC,
			Text:           true,
		},
	}
	for _, r := range meterReadings {
		sensors = append(sensors, SensorSpec{
			Field:             cfg.MeterField(r.code),
			Id:                "meter_" + r.id,
			Name:              "Meter " + r.name,
			UnitOfMeasurement: r.unit,
			StateClass:        r.stateClass,
			DeviceClass:       r.deviceClass,
			Decimals:          DEFAULT_DECIMALS,
		})
	}
	for _, g := range phaseGroups {
		for i, kind := range []struct{ id, name, unit, class string }{
			{"active_power", "active power", "W", DEVICE_CLASS_POWER},
			{"current", "current", "A", DEVICE_CLASS_CURRENT},
			{"voltage", "voltage", "V", DEVICE_CLASS_VOLTAGE},
			{"power_factor", "power factor", "", DEVICE_CLASS_POWER_FACTOR},
		} {
			sensors = append(sensors, SensorSpec{
				Field:             cfg.MeterField(g.codes[i]),
				Id:                fmt.Sprintf("meter_%s_%s", kind.id, g.phase),
				Name:              fmt.Sprintf("Meter %s %s", g.phase, kind.name),
				UnitOfMeasurement: kind.unit,
				StateClass:        STATE_CLASS_MEASUREMENT,
				DeviceClass:       kind.class,
				Decimals:          DEFAULT_DECIMALS,
			})
		}
	}

	return EntityTable{
		Sensors: sensors,
		BinarySensors: []BinarySensorSpec{
			{
				Field:       FIELD_CONNECTED,
				Id:          BINARY_SENSOR_ID_CONNECTED,
				Name:        "Connected",
				DeviceClass: DEVICE_CLASS_PLUG,
				Icon:        "mdi:ev-plug-type2",
			},
		},
		Switches: []SwitchSpec{
			{
				Field:   FIELD_LOCK_STATE,
				Id:      SWITCH_ID_LOCK,
				Name:    "Locked",
				Icon:    "mdi:lock",
				Command: COMMAND_SET_LOCK_STATE,
			},
			{
				Field:   cfg.AutoModeKey,
				Id:      SWITCH_ID_AUTO_MODE,
				Name:    "AI mode",
				Icon:    "mdi:refresh-auto",
				Command: COMMAND_SET_AUTO_MODE,
			},
		},
		Numbers: []NumberSpec{
			{
				Field:      FIELD_MANUAL_MODE_AMP,
				Id:         INPUT_NUMBER_ID_CURRENT,
				Name:       "Max charging current",
				Icon:       "mdi:ev-station",
				Unit:       "A",
				Min:        CHARGING_CURRENT_MIN,
				MaxField:   FIELD_MAX_AVAILABLE_CURRENT,
				DefaultMax: CHARGING_CURRENT_MAX,
				Step:       CHARGING_CURRENT_STEP,
				Mode:       INPUT_NUMBER_MODE_SLIDER,
				Command:    COMMAND_SET_CHARGING_CURRENT,
			},
		},
		Selects: []SelectSpec{
			{
				Field:        FIELD_MODE,
				OptionsField: cfg.ChargingModesField,
				Id:           SELECT_ID_MODE,
				Name:         "Charging mode",
				Icon:         "mdi:ev-station",
				Command:      COMMAND_SET_CHARGING_MODE,
			},
		},
	}
}

func BridgeDevice(baseTopic string) Device {
	return Device{
		Id:           fmt.Sprintf("echarge_bridge_%s", md5HashShort(baseTopic)),
		Manufacturer: "ACasal",
		Model:        "echarge2mqtt",
		Version:      versioninfo.Short(),
		Name:         fmt.Sprintf("eCharge bridge %s", md5HashShort(baseTopic)),
	}
}

func BridgeSensors(bridgeDevice Device) []GenericSensor {
	return []GenericSensor{{
		Device:         bridgeDevice,
		Id:             SENSOR_ID_BRIDGE_STATE,
		SensorType:     SENSOR_TYPE_BINARY,
		Name:           "Connection state",
		DeviceClass:    DEVICE_CLASS_CONNECTIVITY,
		EntityCategory: ENTITY_CLASS_DIAGNOSTIC,
		UniqueId:       uniqueId(bridgeDevice.Id, SENSOR_ID_BRIDGE_STATE),
	}}
}

// StationDevice describes the charging station. The id is derived from the station
// unique id so it is stable before the first snapshot.
func StationDevice(title StationTitle, snapshot *Snapshot, cfg MergeConfig) Device {
	dev := Device{
		Id:   fmt.Sprintf("echarge_station_%s", md5HashShort(title.UniqueId)),
		Name: title.Title,
	}
	if company, ok := snapshot.String(cfg.SystemField(KEY_SYSTEM_COMPANY)); ok {
		dev.Manufacturer = company
	}
	if version, ok := snapshot.String(cfg.SystemField(KEY_SYSTEM_VERSION)); ok {
		dev.Version = version
	}
	if model, ok := snapshot.String(cfg.SystemField(KEY_SYSTEM_PART_NUM)); ok {
		dev.Model = model
	} else if model, ok := snapshot.String(FIELD_PART_NUMBER); ok {
		dev.Model = model
	}
	return dev
}

func IdDevice(device Device) Device {
	return Device{
		Id:   device.Id,
		Name: device.Name,
	}
}

func uniqueId(baseId, id string) string {
	return fmt.Sprintf("uid_%s_%s", baseId, id)
}

func md5Hash(text string) string {
	hash := md5.Sum([]byte(text))
	return hex.EncodeToString(hash[:])
}

func md5HashShort(text string) string {
	return md5Hash(text)[0:8]
}
