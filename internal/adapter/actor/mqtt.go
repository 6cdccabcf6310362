package actor

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/berfenger/echarge2mqtt/internal/config"
	"github.com/berfenger/echarge2mqtt/internal/core/domain"
	"github.com/berfenger/echarge2mqtt/internal/core/events"
	"github.com/berfenger/echarge2mqtt/internal/mqtt"
	"github.com/berfenger/echarge2mqtt/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

const (
	PUBLISH_TIMEOUT   = 5 * time.Second
	DISCOVERY_TIMEOUT = 1 * time.Second
)

// MQTTActor owns the broker connection. It publishes every snapshot installed by the
// coordinator and forwards parsed commands to its parent.
type MQTTActor struct {
	config      *config.Config
	table       events.EntityTable
	coordinator *actor.PID
	behavior    actor.Behavior
	stash       *actorutil.Stash
	client      *mqtt.MQTTClient
	publish     publishFn
	subscribed  bool
	logger      *zap.Logger
}

type publishFn func(topic string, payload any, qos byte, retain bool, continuation func(error), timeout time.Duration)

type MQTTConnected struct {
}

type MQTTSubscribed struct {
}

type MQTTConnectionLost struct {
	Error error
}

type publishResult struct {
	ReplyTo *actor.PID
	Error   error
}

type ParsedCommand struct {
	Command *mqtt.ParsedMQTTCommand
}

type rawMessage struct {
	topic   string
	message string
	retain  bool
}

func NewMQTTActor(config *config.Config, coordinator *actor.PID, table events.EntityTable, logger *zap.Logger) *MQTTActor {
	act := &MQTTActor{
		config:      config,
		table:       table,
		coordinator: coordinator,
		behavior:    actor.NewBehavior(),
		stash:       &actorutil.Stash{},
		logger:      actorutil.ActorLogger(domain.ACTOR_ID_MQTT, logger),
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *MQTTActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *MQTTActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("mqtt@starting started")

		// paho callbacks run on its own goroutines
		root := ctx.ActorSystem().Root
		self := ctx.Self()
		state.client = mqtt.CreateMQTTClient(state.config, mqtt.OptsFromConfig(state.config), func(_ pahomqtt.Client) {
		}, func(_ pahomqtt.Client, err error) {
			root.Send(self, MQTTConnectionLost{Error: err})
		})
		state.publish = state.client.Publish

		state.client.Connect(func(err error) {
			if err != nil {
				root.Send(self, MQTTConnectionLost{Error: err})
			} else {
				root.Send(self, MQTTConnected{})
			}
		}, 10*time.Second)

	case MQTTConnected:
		state.logger.Debug("mqtt@starting connected")

		root := ctx.ActorSystem().Root
		self := ctx.Self()
		state.publish(state.client.BridgeStateTopic(), mqtt.MQTT_PAYLOAD_ONLINE, 0, true, func(error) {}, 500*time.Millisecond)

		// subscribe to MQTT command topic
		state.client.SubscribeToCommandTopic(func(c pahomqtt.Client, m pahomqtt.Message) {
			cmd, err := state.client.ParseMQTTCommand(m)
			if err == nil && cmd != nil {
				root.Send(self, ParsedCommand{Command: cmd})
			} else if !errors.Is(err, mqtt.ErrNotACommand) {
				state.logger.Warn("mqtt@default malformed command", zap.String("topic", m.Topic()), zap.Error(err))
			}
		}, func(err error) {
			if err != nil {
				root.Send(self, MQTTConnectionLost{Error: err})
			} else {
				root.Send(self, MQTTSubscribed{})
			}
		}, 1*time.Second)
	case MQTTSubscribed:
		// init completed, transition to default state
		state.logger.Debug("mqtt@starting subscribed")
		state.subscribeToSnapshots(ctx)
		state.behavior.Become(state.DefaultReceive)
		state.stash.UnstashAll(ctx)
	case MQTTConnectionLost:
		// if connection lost, stop actor and let supervisor decide
		state.logger.Error("mqtt@starting connection lost", zap.Error(msg.Error))
		panic(msg.Error)
	case *actor.Restarting:
		state.stop(ctx)
	case *actor.Stopping:
		state.stop(ctx)
	default:
		state.logger.Debug("mqtt@starting stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MQTTActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Restarting:
		state.stop(ctx)
	case *actor.Stopping:
		state.stop(ctx)
	case domain.ActorHealthRequest:
		state.logger.Debug("mqtt@default ActorHealthRequest")
		// respond health check request
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_MQTT,
			Healthy: true,
			State:   "idle",
		})
	case ParsedCommand:
		// route command to parent
		state.logger.Debug("mqtt@default parsedCommand", zap.Any("command", msg.Command))
		ctx.Send(ctx.Parent(), msg)
	case domain.SnapshotUpdated:
		state.publishSnapshot(msg.Snapshot)
	case domain.SubscribeResponse:
		if msg.HasResponseError() {
			state.logger.Error("mqtt@default snapshot subscription failed", zap.Error(msg.GetResponseError()))
		}
	case domain.PublishMessageRequest:
		state.logger.Debug("mqtt@default PublishMessageRequest", zap.Any("message", msg))
		state.publishMessage(ctx, msg.Topic, msg.Payload, msg.Retain, actorutil.ForRequest(msg).ReplyTo(ctx))
	case domain.PublishSensorUpdateRequest:
		state.logger.Debug("mqtt@default PublishSensorUpdateRequest", zap.String("type", fmt.Sprintf("%T", msg.Event)))
		state.publishSensorValue(ctx, msg.Event, msg.Retain, actorutil.ForRequest(msg).ReplyTo(ctx))
	case domain.PublishDiscoveryRequest:
		state.logger.Debug("mqtt@default PublishHADiscovery")
		err := state.PublishHomeAssistantDiscovery(msg)
		if err != nil {
			state.logger.Error("mqtt@default PublishHADiscovery error", zap.Error(err))
		}
		actorutil.ForRequest(msg).Respond(ctx, domain.PublishDiscoveryResponse{ActorResponseMixIn: domain.ResponseOf(err)})
	case MQTTConnectionLost:
		// if connection lost, stop actor and let supervisor decide
		state.logger.Error("mqtt@default connection lost", zap.Error(msg.Error))
		panic(msg.Error)
	default:
		state.logger.Debug("mqtt@default unhandled", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *MQTTActor) subscribeToSnapshots(ctx actor.Context) {
	if state.coordinator == nil || state.subscribed {
		return
	}
	ctx.Request(state.coordinator, domain.SubscribeRequest{Subscriber: actorutil.NewPIDSubscriber(ctx)})
	state.subscribed = true
}

func (state *MQTTActor) event2MQTTMessage(event any) *rawMessage {
	switch msg := event.(type) {
	case domain.FloatSensorUpdateEvent:
		return &rawMessage{
			topic:   state.client.SensorStateTopic(msg.Id),
			message: fmt.Sprintf(fmt.Sprintf("%%.%df", msg.Decimals), msg.Value),
		}
	case domain.BinarySensorUpdateEvent:
		return &rawMessage{
			topic:   state.client.BinarySensorStateTopic(msg.Id),
			message: bool2MQTTPayload(msg.Value),
		}
	case domain.SwitchSensorUpdateEvent:
		return &rawMessage{
			topic:   state.client.SwitchStateTopic(msg.Id),
			message: bool2MQTTPayload(msg.Value),
			retain:  true,
		}
	case domain.InputNumberSensorUpdateEvent:
		return &rawMessage{
			topic:   state.client.InputNumberStateTopic(msg.Id),
			message: fmt.Sprintf(fmt.Sprintf("%%.%df", msg.Decimals), msg.Value),
			retain:  true,
		}
	case domain.SelectSensorUpdateEvent:
		return &rawMessage{
			topic:   state.client.SelectStateTopic(msg.Id),
			message: msg.Value,
			retain:  true,
		}
	case domain.TextSensorUpdateEvent:
		return &rawMessage{
			topic:   state.client.SensorStateTopic(msg.Id),
			message: msg.Value,
		}
	case domain.BridgeStateUpdateEvent:
		var stringMessage string
		if msg.Value {
			stringMessage = mqtt.MQTT_PAYLOAD_ONLINE
		} else {
			stringMessage = mqtt.MQTT_PAYLOAD_OFFLINE
		}
		return &rawMessage{
			topic:   state.client.BridgeStateTopic(),
			message: stringMessage,
		}
	default:
		return nil
	}
}

// publishSnapshot publishes one state message per entity present in the snapshot.
// Results are only logged.
func (state *MQTTActor) publishSnapshot(snapshot *domain.Snapshot) {
	evts := events.SnapshotToUpdateEvents(state.table, snapshot)
	state.logger.Debug("mqtt@default snapshot", zap.Uint64("version", snapshot.Version()), zap.Int("messages", len(evts)))
	logger := state.logger
	for _, event := range evts {
		msg := state.event2MQTTMessage(event)
		if msg == nil {
			continue
		}
		topic := msg.topic
		state.publish(msg.topic, msg.message, 1, msg.retain, func(err error) {
			if err != nil {
				logger.Warn("mqtt@default could not publish a sensor value", zap.String("topic", topic), zap.Error(err))
			}
		}, PUBLISH_TIMEOUT)
	}
}

func (state *MQTTActor) publishSensorValue(ctx actor.Context, event domain.SensorUpdateEvent, retain bool, replyTo *actor.PID) {
	msg := state.event2MQTTMessage(event)
	if msg == nil {
		return
	}
	root := ctx.ActorSystem().Root
	self := ctx.Self()
	state.logger.Sugar().Debugf("mqtt@publish: sensor publish %s => %s", msg.topic, msg.message)
	state.publish(msg.topic, msg.message, 1, msg.retain || retain, func(err error) {
		root.Send(self, publishResult{ReplyTo: replyTo, Error: err})
	}, PUBLISH_TIMEOUT)
	state.behavior.BecomeStacked(state.EventPublishResultReceive)
}

func (state *MQTTActor) publishMessage(ctx actor.Context, topic, payload string, retain bool, replyTo *actor.PID) {
	root := ctx.ActorSystem().Root
	self := ctx.Self()
	state.logger.Sugar().Debugf("mqtt@publish: message publish %s => %s", topic, payload)
	state.publish(topic, payload, 1, retain, func(err error) {
		root.Send(self, publishResult{ReplyTo: replyTo, Error: err})
	}, PUBLISH_TIMEOUT)
	state.behavior.BecomeStacked(state.MessagePublishResultReceive)
}

func (state *MQTTActor) MessagePublishResultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case publishResult:
		// log error and return to default state
		if msg.Error != nil {
			state.logger.Error("mqtt@publishing could not publish a message", zap.Error(msg.Error))
		}
		if msg.ReplyTo != nil {
			ctx.Send(msg.ReplyTo, domain.PublishMessageResponse{
				ActorResponseMixIn: domain.ResponseOf(msg.Error),
			})
		}
		state.behavior.UnbecomeStacked()
		state.stash.UnstashOldest(ctx)
	default:
		state.logger.Debug("mqtt@publishing stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MQTTActor) EventPublishResultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case publishResult:
		if msg.Error != nil {
			state.logger.Error("mqtt@publishing could not publish a sensor value", zap.Error(msg.Error))
		}
		if msg.ReplyTo != nil {
			ctx.Send(msg.ReplyTo, domain.PublishSensorUpdateResponse{
				ActorResponseMixIn: domain.ResponseOf(msg.Error),
			})
		}
		state.behavior.UnbecomeStacked()
		state.stash.UnstashOldest(ctx)
	default:
		state.logger.Debug("mqtt@publishing stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MQTTActor) PublishHomeAssistantDiscovery(req domain.PublishDiscoveryRequest) error {
	discard := func(error) {}
	for i := range req.Sensors {
		payload, err := json.Marshal(mqtt.GenericSensorToHADiscoveryMessage(state.client, req.Sensors[i]))
		if err != nil {
			return err
		}
		state.publish(state.client.HADiscoverySensorTopic(req.Sensors[i]), payload, 0, true, discard, DISCOVERY_TIMEOUT)
	}
	for i := range req.Switches {
		payload, err := json.Marshal(mqtt.GenericSwitchToHADiscoveryMessage(state.client, req.Switches[i]))
		if err != nil {
			return err
		}
		state.publish(state.client.HADiscoverySwitchTopic(req.Switches[i]), payload, 0, true, discard, DISCOVERY_TIMEOUT)
	}
	for i := range req.InputNumbers {
		payload, err := json.Marshal(mqtt.GenericInputNumberToHADiscoveryMessage(state.client, req.InputNumbers[i]))
		if err != nil {
			return err
		}
		state.publish(state.client.HADiscoveryInputNumberTopic(req.InputNumbers[i]), payload, 0, true, discard, DISCOVERY_TIMEOUT)
	}
	for i := range req.Selects {
		payload, err := json.Marshal(mqtt.GenericSelectToHADiscoveryMessage(state.client, req.Selects[i]))
		if err != nil {
			return err
		}
		state.publish(state.client.HADiscoverySelectTopic(req.Selects[i]), payload, 0, true, discard, DISCOVERY_TIMEOUT)
	}
	return nil
}

func (state *MQTTActor) stop(ctx actor.Context) {
	if state.subscribed {
		ctx.Send(state.coordinator, domain.UnsubscribeRequest{Subscriber: actorutil.NewPIDSubscriber(ctx)})
		state.subscribed = false
	}
	if state.client == nil {
		return
	}
	state.logger.Debug("mqtt: disconnect")
	state.publish(state.client.BridgeStateTopic(), mqtt.MQTT_PAYLOAD_OFFLINE, 0, true, func(error) {}, 500*time.Millisecond)
	state.client.Disconnect(500 * time.Millisecond)
}

func bool2MQTTPayload(value bool) string {
	if value {
		return mqtt.MQTT_PAYLOAD_ON
	} else {
		return mqtt.MQTT_PAYLOAD_OFF
	}
}

// PublishedMessage is a message recorded by the test actor.
type PublishedMessage struct {
	Topic   string
	Payload string
	Retain  bool
}

// PublishLog records what a test actor would have sent to the broker.
type PublishLog struct {
	mu       sync.Mutex
	messages []PublishedMessage
}

func (l *PublishLog) record(topic string, payload any, _ byte, retain bool, continuation func(error), _ time.Duration) {
	var text string
	switch p := payload.(type) {
	case string:
		text = p
	case []byte:
		text = string(p)
	default:
		text = fmt.Sprint(p)
	}
	l.mu.Lock()
	l.messages = append(l.messages, PublishedMessage{Topic: topic, Payload: text, Retain: retain})
	l.mu.Unlock()
	if continuation != nil {
		continuation(nil)
	}
}

func (l *PublishLog) Messages() []PublishedMessage {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]PublishedMessage(nil), l.messages...)
}

// Last returns the latest payload published on topic.
func (l *PublishLog) Last(topic string) (PublishedMessage, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := len(l.messages) - 1; i >= 0; i-- {
		if l.messages[i].Topic == topic {
			return l.messages[i], true
		}
	}
	return PublishedMessage{}, false
}

// Dummy actor, never connects and records publishes in log
func NewTestMQTTActor(config *config.Config, coordinator *actor.PID, table events.EntityTable, log *PublishLog, logger *zap.Logger) *MQTTActor {
	act := &MQTTActor{
		config:      config,
		table:       table,
		coordinator: coordinator,
		behavior:    actor.NewBehavior(),
		stash:       &actorutil.Stash{},
		publish:     log.record,
		logger:      actorutil.ActorLogger(domain.ACTOR_ID_MQTT, logger),
	}
	act.behavior.Become(act.DummyReceive)
	return act
}

func (state *MQTTActor) DummyReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.client = mqtt.CreateMQTTClient(state.config, mqtt.OptsFromConfig(state.config), nil, nil)
		state.subscribeToSnapshots(ctx)
		state.behavior.Become(state.DefaultReceive)
	default:
		state.logger.Debug("mqtt@dummy unhandled", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}
