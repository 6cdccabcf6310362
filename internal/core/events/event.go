package events

import (
	"fmt"
	"strconv"

	. "github.com/berfenger/echarge2mqtt/internal/core/domain"
)

// SnapshotToUpdateEvents renders the table entities present in the snapshot.
func SnapshotToUpdateEvents(table EntityTable, snapshot *Snapshot) []SensorUpdateEvent {
	var events []SensorUpdateEvent

	for _, s := range table.Sensors {
		value, ok := snapshot.Get(s.Field)
		if !ok {
			continue
		}
		if s.Text {
			events = append(events, TextSensorUpdateEvent{
				SensorUpdateEventMixIn: SensorUpdateEventMixIn{Id: s.Id},
				Value:                  textValue(value),
			})
			continue
		}
		f, ok := value.(float64)
		if !ok {
			continue
		}
		events = append(events, NewFloatSensorUpdate(s.Id, f, s.Decimals))
	}

	for _, b := range table.BinarySensors {
		if on, ok := snapshot.Bool(b.Field); ok {
			events = append(events, NewBinarySensorUpdate(b.Id, on))
		}
	}

	for _, s := range table.Switches {
		if on, ok := snapshot.Bool(s.Field); ok {
			events = append(events, SwitchSensorUpdateEvent{
				SensorUpdateEventMixIn: SensorUpdateEventMixIn{Id: s.Id},
				Value:                  on,
			})
		}
	}

	for _, n := range table.Numbers {
		if f, ok := snapshot.Float(n.Field); ok {
			events = append(events, InputNumberSensorUpdateEvent{
				SensorUpdateEventMixIn: SensorUpdateEventMixIn{Id: n.Id},
				Value:                  f,
				Decimals:               1,
			})
		}
	}

	for _, s := range table.Selects {
		if mode, ok := snapshot.String(s.Field); ok {
			events = append(events, SelectSensorUpdateEvent{
				SensorUpdateEventMixIn: SensorUpdateEventMixIn{Id: s.Id},
				Value:                  mode,
			})
		}
	}

	return events
}

func textValue(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}

type DiscoveryComponents struct {
	Sensors      []GenericSensor
	Switches     []GenericSwitch
	InputNumbers []GenericInputNumber
	Selects      []GenericSelect
}

// Discovery builds the Home Assistant components for the entities present in the snapshot.
func Discovery(table EntityTable, bridge Device, station Device, snapshot *Snapshot) DiscoveryComponents {
	var comps DiscoveryComponents

	comps.Sensors = append(comps.Sensors, BridgeSensors(bridge)...)
	station.ViaDevice = bridge.Id

	for _, s := range table.Sensors {
		if !snapshot.Has(s.Field) {
			continue
		}
		comps.Sensors = append(comps.Sensors, GenericSensor{
			Device:            station,
			Id:                s.Id,
			SensorType:        SENSOR_TYPE_SENSOR,
			Name:              s.Name,
			UniqueId:          uniqueId(station.Id, s.Id),
			UnitOfMeasurement: s.UnitOfMeasurement,
			StateClass:        s.StateClass,
			DeviceClass:       s.DeviceClass,
			EntityCategory:    s.EntityCategory,
			Icon:              s.Icon,
		})
	}

	for _, b := range table.BinarySensors {
		if !snapshot.Has(b.Field) {
			continue
		}
		comps.Sensors = append(comps.Sensors, GenericSensor{
			Device:      station,
			Id:          b.Id,
			SensorType:  SENSOR_TYPE_BINARY,
			Name:        b.Name,
			UniqueId:    uniqueId(station.Id, b.Id),
			DeviceClass: b.DeviceClass,
			Icon:        b.Icon,
		})
	}

	for _, s := range table.Switches {
		if !snapshot.Has(s.Field) {
			continue
		}
		comps.Switches = append(comps.Switches, GenericSwitch{
			Device:   station,
			Id:       s.Id,
			Name:     s.Name,
			UniqueId: uniqueId(station.Id, s.Id),
			Icon:     s.Icon,
		})
	}

	for _, n := range table.Numbers {
		if !snapshot.Has(n.Field) {
			continue
		}
		upper := n.DefaultMax
		if v, ok := snapshot.Float(n.MaxField); ok && v >= n.Min {
			upper = v
		}
		initial, _ := snapshot.Float(n.Field)
		comps.InputNumbers = append(comps.InputNumbers, GenericInputNumber{
			Device:            station,
			Id:                n.Id,
			Name:              n.Name,
			UniqueId:          uniqueId(station.Id, n.Id),
			Icon:              n.Icon,
			UnitOfMeasurement: n.Unit,
			Min:               n.Min,
			Max:               upper,
			Step:              n.Step,
			Mode:              n.Mode,
			InitialValue:      initial,
		})
	}

	for _, s := range table.Selects {
		if !snapshot.Has(s.Field) {
			continue
		}
		options, _ := snapshot.Strings(s.OptionsField)
		comps.Selects = append(comps.Selects, GenericSelect{
			Device:   station,
			Id:       s.Id,
			Name:     s.Name,
			UniqueId: uniqueId(station.Id, s.Id),
			Icon:     s.Icon,
			Options:  options,
		})
	}

	return comps
}

// DiscoverySignature changes whenever the discovery payloads for the snapshot would change.
func DiscoverySignature(table EntityTable, snapshot *Snapshot) string {
	sig := ""
	present := func(field string) {
		if snapshot.Has(field) {
			sig += field + ";"
		}
	}
	for _, s := range table.Sensors {
		present(s.Field)
	}
	for _, b := range table.BinarySensors {
		present(b.Field)
	}
	for _, s := range table.Switches {
		present(s.Field)
	}
	for _, n := range table.Numbers {
		present(n.Field)
		if v, ok := snapshot.Float(n.MaxField); ok {
			sig += fmt.Sprintf("%s=%v;", n.MaxField, v)
		}
	}
	for _, s := range table.Selects {
		present(s.Field)
		options, _ := snapshot.Strings(s.OptionsField)
		sig += fmt.Sprintf("%s=%q;", s.OptionsField, options)
	}
	return sig
}
