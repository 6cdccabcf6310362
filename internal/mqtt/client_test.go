package mqtt

import (
	"encoding/json"
	"testing"

	"github.com/berfenger/echarge2mqtt/internal/config"
	"github.com/berfenger/echarge2mqtt/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClient() *MQTTClient {
	cfg := config.Config{MQTT: config.MQTTConfig{
		Host:             "localhost",
		Port:             1883,
		BaseTopic:        "echarge",
		HADiscoveryTopic: "homeassistant",
	}}
	return CreateMQTTClient(&cfg, OptsFromConfig(&cfg), nil, nil)
}

func TestSwitchCommandParse(t *testing.T) {

	assert := assert.New(t)

	baseTopic := "loremTopic"
	topic := "loremTopic/switch/my_device/command"
	r := switchCommandExtractor(baseTopic)
	matches := r.FindAllStringSubmatch(topic, 1)

	assert.Equal(matches[0][1], "my_device", "device extract")
}

func TestSwitchCommandParseFail(t *testing.T) {

	assert := assert.New(t)

	baseTopic := "loremTopic"
	topic := "loremTopic/switch/my_device/state"
	r := switchCommandExtractor(baseTopic)
	matches := r.FindAllStringSubmatch(topic, 1)

	assert.Equal(len(matches), 0, "no matches")
}

func TestInputNumberCommandParse(t *testing.T) {

	assert := assert.New(t)

	baseTopic := "loremTopic"
	topic := "loremTopic/number/number_name/set"
	r := inputNumberCommandExtractor(baseTopic)
	matches := r.FindAllStringSubmatch(topic, 1)

	assert.Equal(matches[0][1], "number_name", "number_id extract")
}

func TestInputNumberCommandParseFail(t *testing.T) {

	assert := assert.New(t)

	baseTopic := "loremTopic"
	topic := "loremTopic/switch/number_name/command"
	r := inputNumberCommandExtractor(baseTopic)
	matches := r.FindAllStringSubmatch(topic, 1)

	assert.Equal(len(matches), 0, "no matches")
}

func TestSelectCommandParse(t *testing.T) {
	r := selectCommandExtractor("loremTopic")
	matches := r.FindAllStringSubmatch("loremTopic/select/charging_mode/set", 1)
	require.Len(t, matches, 1)
	assert.Equal(t, "charging_mode", matches[0][1])

	assert.Empty(t, r.FindAllStringSubmatch("loremTopic/select/charging_mode/state", 1))
	assert.Empty(t, r.FindAllStringSubmatch("other/loremTopic/select/charging_mode/set", 1))
}

func TestParseCommand(t *testing.T) {
	c := testClient()

	cmd, err := c.parseCommand("echarge/switch/lock/command", "on")
	require.NoError(t, err)
	assert.Equal(t, &ParsedMQTTCommand{DeviceId: "lock", Command: COMMAND_SWITCH, Payload: "on"}, cmd)

	cmd, err = c.parseCommand("echarge/number/charging_current/set", "12.5")
	require.NoError(t, err)
	assert.Equal(t, COMMAND_NUMBER, cmd.Command)
	assert.Equal(t, "charging_current", cmd.DeviceId)

	_, err = c.parseCommand("echarge/number/charging_current/set", "twelve")
	assert.Error(t, err)

	cmd, err = c.parseCommand("echarge/select/charging_mode/set", "quick")
	require.NoError(t, err)
	assert.Equal(t, COMMAND_SELECT, cmd.Command)
	assert.Equal(t, "quick", cmd.Payload)

	_, err = c.parseCommand("echarge/sensor/state/state", "Charging")
	assert.ErrorIs(t, err, ErrNotACommand)
}

func TestTopics(t *testing.T) {
	c := testClient()
	assert.Equal(t, "echarge/bridge/state", c.BridgeStateTopic())
	assert.Equal(t, "echarge/sensor/state/state", c.SensorStateTopic("state"))
	assert.Equal(t, "echarge/binary_sensor/connected/state", c.BinarySensorStateTopic("connected"))
	assert.Equal(t, "echarge/select/charging_mode/state", c.SelectStateTopic("charging_mode"))
	assert.Equal(t, "echarge/select/charging_mode/set", c.SelectCommandTopic("charging_mode"))
}

func TestSelectDiscoveryMessage(t *testing.T) {
	c := testClient()
	sel := domain.GenericSelect{
		Device:   domain.Device{Id: "echarge_station_1234", Name: "eCB1 Garage", ViaDevice: "echarge_bridge_abcd"},
		Id:       "charging_mode",
		Name:     "Charging mode",
		UniqueId: "uid_echarge_station_1234_charging_mode",
		Options:  []string{"eco", "quick", "manual"},
	}

	assert.Equal(t, "homeassistant/select/echarge_station_1234/charging_mode/config", c.HADiscoverySelectTopic(sel))

	payload, err := json.Marshal(GenericSelectToHADiscoveryMessage(c, sel))
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(payload, &decoded))
	assert.Equal(t, []any{"eco", "quick", "manual"}, decoded["options"])
	assert.Equal(t, "echarge/select/charging_mode/set", decoded["command_topic"])
	assert.Equal(t, "echarge/bridge/state", decoded["availability_topic"])
	dev := decoded["device"].(map[string]any)
	assert.Equal(t, "echarge_bridge_abcd", dev["via_device"])
}

func TestBinarySensorDiscoveryPayloads(t *testing.T) {
	c := testClient()
	msg := GenericSensorToHADiscoveryMessage(c, domain.GenericSensor{
		Id:         "connected",
		SensorType: domain.SENSOR_TYPE_BINARY,
	})
	assert.Equal(t, "echarge/binary_sensor/connected/state", msg.StateTopic)
	assert.Equal(t, MQTT_PAYLOAD_ON, msg.PayloadOn)
	assert.Equal(t, MQTT_PAYLOAD_OFF, msg.PayloadOff)

	bridge := GenericSensorToHADiscoveryMessage(c, domain.GenericSensor{
		Id:         "bridge",
		SensorType: domain.SENSOR_TYPE_BINARY,
	})
	assert.Equal(t, c.BridgeStateTopic(), bridge.StateTopic)
	assert.Equal(t, MQTT_PAYLOAD_ONLINE, bridge.PayloadOn)
}
