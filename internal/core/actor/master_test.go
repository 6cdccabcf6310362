package actor

import (
	"context"
	"strings"
	"testing"
	"time"

	adactor "github.com/berfenger/echarge2mqtt/internal/adapter/actor"
	"github.com/berfenger/echarge2mqtt/internal/core/domain"
	"github.com/berfenger/echarge2mqtt/internal/core/events"
	"github.com/berfenger/echarge2mqtt/internal/mqtt"
	"github.com/berfenger/echarge2mqtt/internal/util"
	"github.com/berfenger/echarge2mqtt/pkg/echarge"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func startTestMaster(t *testing.T) (*actor.RootContext, *actor.PID, *CoordinatorClient, *adactor.PublishLog) {
	cfg := util.LoadTestConfig()
	logger := zap.NewNop()

	coord, system := startTestCoordinator(t, echarge.NewTestClient(), testCoordinatorConfig())
	_, err := coord.Refresh(context.Background())
	require.NoError(t, err)

	log := &adactor.PublishLog{}
	props := actor.PropsFromProducer(func() actor.Actor {
		return NewMasterOfPuppetsActor(cfg, domain.DefaultMergeConfig(), coord, func(coordinator *actor.PID, table events.EntityTable) *adactor.MQTTActor {
			return adactor.NewTestMQTTActor(&cfg, coordinator, table, log, logger)
		}, logger)
	})
	pid, err := system.Root.SpawnNamed(props, domain.ACTOR_ID_MASTER)
	require.NoError(t, err)
	t.Cleanup(func() { system.Root.Stop(pid) })
	return system.Root, pid, coord, log
}

func TestMasterActorHealth(t *testing.T) {
	root, pid, _, _ := startTestMaster(t)

	res, err := root.RequestFuture(pid, domain.ActorHealthRequest{}, 5*time.Second).Result()
	require.NoError(t, err)
	healthResp, ok := res.(domain.ActorHealthResponse)
	require.True(t, ok)

	assert.True(t, healthResp.Healthy, "healthy is true")
	assert.Equal(t, domain.ACTOR_ID_MASTER, healthResp.Id)
	assert.Contains(t, healthResp.State, "coordinator=idle/authenticated")
}

func TestMasterRoutesMQTTCommands(t *testing.T) {
	root, pid, coord, _ := startTestMaster(t)

	root.Send(pid, adactor.ParsedCommand{Command: &mqtt.ParsedMQTTCommand{
		DeviceId: events.SWITCH_ID_LOCK,
		Command:  mqtt.COMMAND_SWITCH,
		Payload:  mqtt.MQTT_PAYLOAD_ON,
	}})

	require.Eventually(t, func() bool {
		locked, ok := coord.Snapshot().Bool(domain.FIELD_LOCK_STATE)
		return ok && locked
	}, 5*time.Second, 20*time.Millisecond)

	root.Send(pid, adactor.ParsedCommand{Command: &mqtt.ParsedMQTTCommand{
		DeviceId: events.SELECT_ID_MODE,
		Command:  mqtt.COMMAND_SELECT,
		Payload:  "quick",
	}})

	require.Eventually(t, func() bool {
		mode, _ := coord.Snapshot().String(domain.FIELD_MODE)
		return mode == "quick"
	}, 5*time.Second, 20*time.Millisecond)
}

func TestMasterIgnoresUnknownEntities(t *testing.T) {
	root, pid, coord, _ := startTestMaster(t)
	version := coord.Snapshot().Version()

	root.Send(pid, adactor.ParsedCommand{Command: &mqtt.ParsedMQTTCommand{
		DeviceId: "unknown",
		Command:  mqtt.COMMAND_SWITCH,
		Payload:  mqtt.MQTT_PAYLOAD_ON,
	}})
	root.Send(pid, adactor.ParsedCommand{Command: &mqtt.ParsedMQTTCommand{
		DeviceId: events.SWITCH_ID_LOCK,
		Command:  mqtt.COMMAND_SWITCH,
		Payload:  "maybe",
	}})

	// the health round trip orders after both commands
	_, err := root.RequestFuture(pid, domain.ActorHealthRequest{}, 5*time.Second).Result()
	require.NoError(t, err)
	assert.Equal(t, version, coord.Snapshot().Version())
}

func TestMasterPublishesDiscoveryAndState(t *testing.T) {
	_, _, coord, log := startTestMaster(t)

	require.Eventually(t, func() bool {
		for _, m := range log.Messages() {
			if strings.HasPrefix(m.Topic, "homeassistant/select/") && strings.HasSuffix(m.Topic, "/charging_mode/config") {
				return strings.Contains(m.Payload, `"name":"Charging mode"`)
			}
		}
		return false
	}, 5*time.Second, 20*time.Millisecond)

	discoveries := func() int {
		n := 0
		for _, m := range log.Messages() {
			if strings.HasPrefix(m.Topic, "homeassistant/") {
				n++
			}
		}
		return n
	}
	published := discoveries()

	// a refresh with the same entities publishes state but no new discovery
	_, err := coord.Refresh(context.Background())
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		_, ok := log.Last("echarge/sensor/state/state")
		return ok
	}, 5*time.Second, 20*time.Millisecond)
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, published, discoveries())
}
