package actor

import (
	"sync"
	"testing"
	"time"

	"github.com/berfenger/echarge2mqtt/internal/core/domain"
	"github.com/berfenger/echarge2mqtt/internal/core/events"
	"github.com/berfenger/echarge2mqtt/internal/mqtt"
	"github.com/berfenger/echarge2mqtt/internal/util"
	"github.com/berfenger/echarge2mqtt/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeCoordinator only keeps subscriptions.
type fakeCoordinator struct {
	mu          sync.Mutex
	subscribers []domain.Subscriber
}

func (f *fakeCoordinator) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.SubscribeRequest:
		f.mu.Lock()
		f.subscribers = append(f.subscribers, msg.Subscriber)
		f.mu.Unlock()
		ctx.Respond(domain.SubscribeResponse{Added: true})
	case domain.UnsubscribeRequest:
		ctx.Respond(domain.UnsubscribeResponse{Removed: true})
	}
}

func (f *fakeCoordinator) notify(snapshot *domain.Snapshot) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.subscribers {
		s.OnSnapshot(snapshot)
	}
	return len(f.subscribers)
}

func testSnapshot() *domain.Snapshot {
	b := domain.NewSnapshotBuilder()
	b.Set(domain.FIELD_STATE, "Charging")
	b.Set(domain.FIELD_CONNECTED, true)
	b.Set(domain.FIELD_LOCK_STATE, false)
	b.Set(domain.FIELD_MODE, "quick")
	b.Set(domain.FIELD_MAX_AVAILABLE_CURRENT, 16.0)
	b.Set(domain.FIELD_MANUAL_MODE_AMP, 10.0)
	b.Set(domain.FIELD_CHARGING_MODES, []string{"eco", "quick", "manual"})
	return b.Build(3, time.Now())
}

func startTestMQTTActor(t *testing.T) (*actor.RootContext, *actor.PID, *fakeCoordinator, *PublishLog) {
	cfg := util.LoadTestConfig()
	logger := zap.NewNop()
	as := actorutil.NewActorSystemWithZapLogger(logger)
	t.Cleanup(as.Shutdown)

	coordinator := &fakeCoordinator{}
	coordPID := as.Root.Spawn(actor.PropsFromProducer(func() actor.Actor { return coordinator }))

	log := &PublishLog{}
	table := events.DefaultEntityTable(domain.DefaultMergeConfig())
	pid := as.Root.Spawn(actor.PropsFromProducer(func() actor.Actor {
		return NewTestMQTTActor(&cfg, coordPID, table, log, logger)
	}))
	return as.Root, pid, coordinator, log
}

func TestMQTTActorHealth(t *testing.T) {
	root, pid, _, _ := startTestMQTTActor(t)

	result, err := root.RequestFuture(pid, domain.ActorHealthRequest{}, 2*time.Second).Result()
	require.NoError(t, err)
	resp, ok := result.(domain.ActorHealthResponse)
	assert.True(t, ok)
	assert.True(t, resp.Healthy)
	assert.Equal(t, domain.ACTOR_ID_MQTT, resp.Id)
}

func TestMQTTActorPublishesSnapshots(t *testing.T) {
	_, _, coordinator, log := startTestMQTTActor(t)

	require.Eventually(t, func() bool {
		return coordinator.notify(testSnapshot()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		_, ok := log.Last("echarge/select/charging_mode/state")
		return ok
	}, 2*time.Second, 10*time.Millisecond)

	mode, _ := log.Last("echarge/select/charging_mode/state")
	assert.Equal(t, "quick", mode.Payload)
	assert.True(t, mode.Retain)

	state, ok := log.Last("echarge/sensor/state/state")
	require.True(t, ok)
	assert.Equal(t, "Charging", state.Payload)

	connected, ok := log.Last("echarge/binary_sensor/connected/state")
	require.True(t, ok)
	assert.Equal(t, mqtt.MQTT_PAYLOAD_ON, connected.Payload)

	lock, ok := log.Last("echarge/switch/lock/state")
	require.True(t, ok)
	assert.Equal(t, mqtt.MQTT_PAYLOAD_OFF, lock.Payload)

	current, ok := log.Last("echarge/number/charging_current/state")
	require.True(t, ok)
	assert.Equal(t, "10.0", current.Payload)

	maxCurrent, ok := log.Last("echarge/sensor/max_available_current/state")
	require.True(t, ok)
	assert.Equal(t, "16.00", maxCurrent.Payload)

	// absent fields are not published
	_, ok = log.Last("echarge/sensor/serial/state")
	assert.False(t, ok)
}

func TestMQTTActorPublishMessage(t *testing.T) {
	root, pid, _, log := startTestMQTTActor(t)

	result, err := root.RequestFuture(pid, domain.PublishMessageRequest{
		Topic:   "echarge/custom",
		Payload: "hello",
		Retain:  true,
	}, 2*time.Second).Result()
	require.NoError(t, err)
	resp, ok := result.(domain.PublishMessageResponse)
	require.True(t, ok)
	assert.False(t, resp.HasResponseError())

	msg, ok := log.Last("echarge/custom")
	require.True(t, ok)
	assert.Equal(t, "hello", msg.Payload)
}

func TestMQTTActorPublishDiscovery(t *testing.T) {
	root, pid, _, log := startTestMQTTActor(t)

	station := domain.Device{Id: "echarge_station_1234", Name: "eCB1 Garage"}
	_, err := root.RequestFuture(pid, domain.PublishDiscoveryRequest{
		Selects: []domain.GenericSelect{{
			Device:  station,
			Id:      events.SELECT_ID_MODE,
			Options: []string{"eco", "quick"},
		}},
		Switches: []domain.GenericSwitch{{Device: station, Id: events.SWITCH_ID_LOCK}},
	}, 2*time.Second).Result()
	require.NoError(t, err)

	sel, ok := log.Last("homeassistant/select/echarge_station_1234/charging_mode/config")
	require.True(t, ok)
	assert.True(t, sel.Retain)
	assert.Contains(t, sel.Payload, `"options":["eco","quick"]`)

	_, ok = log.Last("homeassistant/switch/echarge_station_1234/lock/config")
	assert.True(t, ok)
}
