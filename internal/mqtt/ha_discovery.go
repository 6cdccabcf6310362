package mqtt

import (
	"fmt"

	"github.com/berfenger/echarge2mqtt/internal/core/domain"
	"github.com/berfenger/echarge2mqtt/internal/core/events"
)

const (
	HA_COMPONENT_SWITCH = "switch"
	HA_COMPONENT_NUMBER = "number"
	HA_COMPONENT_SELECT = "select"

	HA_PLATFORM = "mqtt"
)

// HADiscoveryConfig is the retained config payload Home Assistant reads from
// <prefix>/<component>/<device>/<entity>/config.
type HADiscoveryConfig struct {
	Device            HADiscoveryDevice `json:"device"`
	StateTopic        string            `json:"state_topic"`
	CommandTopic      string            `json:"command_topic,omitempty"`
	StateClass        string            `json:"state_class,omitempty"`
	DeviceClass       string            `json:"device_class,omitempty"`
	UnitOfMeasurement string            `json:"unit_of_measurement,omitempty"`
	AvTopic           string            `json:"availability_topic,omitempty"`
	EntityCategory    string            `json:"entity_category,omitempty"`
	Name              string            `json:"name"`
	UniqueId          string            `json:"unique_id"`
	Platform          string            `json:"platform"`
	EnabledByDefault  *bool             `json:"enabled_by_default,omitempty"`
	PayloadOn         string            `json:"payload_on,omitempty"`
	PayloadOff        string            `json:"payload_off,omitempty"`
	Icon              string            `json:"icon,omitempty"`
	Min               float64           `json:"min,omitempty"`
	Max               float64           `json:"max,omitempty"`
	Step              float64           `json:"step,omitempty"`
	Mode              string            `json:"mode,omitempty"`
	InitialValue      float64           `json:"initial,omitempty"`
	Options           []string          `json:"options,omitempty"`
}

type HADiscoveryDevice struct {
	Id           []string `json:"identifiers"`
	Manufacturer string   `json:"manufacturer,omitempty"`
	Version      string   `json:"sw_version,omitempty"`
	Model        string   `json:"model,omitempty"`
	Name         string   `json:"name,omitempty"`
	ViaDevice    string   `json:"via_device,omitempty"`
}

func (c *MQTTClient) discoveryTopic(component string, device domain.Device, id string) string {
	return fmt.Sprintf("%s/%s/%s/%s/config", c.DiscoveryPrefix(), component, device.Id, id)
}

// HADiscoverySensorTopic uses the sensor type as component, sensor or binary_sensor.
func (c *MQTTClient) HADiscoverySensorTopic(sensor domain.GenericSensor) string {
	return c.discoveryTopic(sensor.SensorType, sensor.Device, sensor.Id)
}

func (c *MQTTClient) HADiscoverySwitchTopic(sw domain.GenericSwitch) string {
	return c.discoveryTopic(HA_COMPONENT_SWITCH, sw.Device, sw.Id)
}

func (c *MQTTClient) HADiscoveryInputNumberTopic(num domain.GenericInputNumber) string {
	return c.discoveryTopic(HA_COMPONENT_NUMBER, num.Device, num.Id)
}

func (c *MQTTClient) HADiscoverySelectTopic(sel domain.GenericSelect) string {
	return c.discoveryTopic(HA_COMPONENT_SELECT, sel.Device, sel.Id)
}

// entity fills the fields shared by every component. Availability follows the bridge.
func entity(client *MQTTClient, dev domain.Device, name, uniqueId, icon, stateTopic string) HADiscoveryConfig {
	return HADiscoveryConfig{
		Device:     device(dev),
		StateTopic: stateTopic,
		AvTopic:    client.BridgeStateTopic(),
		Name:       name,
		UniqueId:   uniqueId,
		Icon:       icon,
		Platform:   HA_PLATFORM,
	}
}

func GenericSensorToHADiscoveryMessage(client *MQTTClient, sensor domain.GenericSensor) HADiscoveryConfig {
	bridge := sensor.Id == events.SENSOR_ID_BRIDGE_STATE

	var stateTopic string
	switch {
	case bridge:
		stateTopic = client.BridgeStateTopic()
	case sensor.SensorType == domain.SENSOR_TYPE_BINARY:
		stateTopic = client.BinarySensorStateTopic(sensor.Id)
	default:
		stateTopic = client.SensorStateTopic(sensor.Id)
	}

	msg := entity(client, sensor.Device, sensor.Name, sensor.UniqueId, sensor.Icon, stateTopic)
	msg.StateClass = sensor.StateClass
	msg.DeviceClass = sensor.DeviceClass
	msg.UnitOfMeasurement = sensor.UnitOfMeasurement
	msg.EntityCategory = sensor.EntityCategory
	msg.EnabledByDefault = sensor.EnabledByDefault

	switch {
	case bridge:
		msg.PayloadOn, msg.PayloadOff = MQTT_PAYLOAD_ONLINE, MQTT_PAYLOAD_OFFLINE
	case sensor.SensorType == domain.SENSOR_TYPE_BINARY:
		msg.PayloadOn, msg.PayloadOff = MQTT_PAYLOAD_ON, MQTT_PAYLOAD_OFF
	}
	return msg
}

func GenericSwitchToHADiscoveryMessage(client *MQTTClient, sw domain.GenericSwitch) HADiscoveryConfig {
	msg := entity(client, sw.Device, sw.Name, sw.UniqueId, sw.Icon, client.SwitchStateTopic(sw.Id))
	msg.CommandTopic = client.SwitchCommandTopic(sw.Id)
	msg.PayloadOn, msg.PayloadOff = MQTT_PAYLOAD_ON, MQTT_PAYLOAD_OFF
	return msg
}

// GenericInputNumberToHADiscoveryMessage carries the current bounds; a new max
// available current changes the payload and triggers a republish.
func GenericInputNumberToHADiscoveryMessage(client *MQTTClient, num domain.GenericInputNumber) HADiscoveryConfig {
	msg := entity(client, num.Device, num.Name, num.UniqueId, num.Icon, client.InputNumberStateTopic(num.Id))
	msg.CommandTopic = client.InputNumberCommandTopic(num.Id)
	msg.UnitOfMeasurement = num.UnitOfMeasurement
	msg.Min, msg.Max, msg.Step = num.Min, num.Max, num.Step
	msg.Mode = num.Mode
	msg.InitialValue = num.InitialValue
	return msg
}

func GenericSelectToHADiscoveryMessage(client *MQTTClient, sel domain.GenericSelect) HADiscoveryConfig {
	msg := entity(client, sel.Device, sel.Name, sel.UniqueId, sel.Icon, client.SelectStateTopic(sel.Id))
	msg.CommandTopic = client.SelectCommandTopic(sel.Id)
	msg.Options = sel.Options
	return msg
}

func device(d domain.Device) HADiscoveryDevice {
	return HADiscoveryDevice{
		Id:           []string{d.Id},
		Manufacturer: d.Manufacturer,
		Version:      d.Version,
		Model:        d.Model,
		Name:         d.Name,
		ViaDevice:    d.ViaDevice,
	}
}
