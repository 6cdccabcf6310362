package actor

import (
	"fmt"
	"time"

	"github.com/berfenger/echarge2mqtt/internal/config"
	"github.com/berfenger/echarge2mqtt/internal/core/domain"
	"github.com/berfenger/echarge2mqtt/internal/core/events"
	"github.com/berfenger/echarge2mqtt/internal/core/service"
	. "github.com/berfenger/echarge2mqtt/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"go.uber.org/zap"
)

// HADiscoveryActor publishes Home Assistant discovery for the station. Discovery is
// sent on the first snapshot and again whenever the set of published entities changes.
type HADiscoveryActor struct {
	ActorWithStates
	config        *config.Config
	mergeConfig   domain.MergeConfig
	table         events.EntityTable
	coordinator   *actor.PID
	mqttActor     *actor.PID
	latest        func() *domain.Snapshot
	titleTimeout  time.Duration
	stash         *Stash
	title         domain.StationTitle
	lastSignature string
	subscribed    bool

	logger *zap.Logger
}

func NewHADiscoveryActor(config *config.Config, mergeConfig domain.MergeConfig, table events.EntityTable, coordinator *actor.PID, latest func() *domain.Snapshot, mqttActor *actor.PID, titleTimeout time.Duration, logger *zap.Logger) *HADiscoveryActor {
	act := &HADiscoveryActor{
		ActorWithStates: NewActorWithStates(),
		config:          config,
		mergeConfig:     mergeConfig,
		table:           table,
		coordinator:     coordinator,
		mqttActor:       mqttActor,
		latest:          latest,
		titleTimeout:    titleTimeout,
		stash:           &Stash{},
		logger:          ActorLogger(domain.ACTOR_ID_HA_DISCOVERY, logger),
	}
	act.Become(HADiscoveryStartingState{actor: act})
	return act
}

func (state *HADiscoveryActor) Receive(context actor.Context) {
	state.Behavior.Receive(context)
}

// Starting state, waits for the station title

type HADiscoveryStartingState struct {
	ActorState
	actor *HADiscoveryActor
}

func (state HADiscoveryStartingState) Name() string {
	return "starting"
}

func (state HADiscoveryStartingState) Receive(ctx actor.Context) {
	a := state.actor
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		a.logger.Debug("hadiscovery@starting started")
		PipeToSelfWithRecover(ctx, ctx.RequestFuture(a.coordinator, domain.StationTitleRequest{}, a.titleTimeout), func(err error) any {
			return domain.StationTitleResponse{ActorResponseMixIn: domain.ResponseOf(err)}
		})
	case domain.StationTitleResponse:
		if msg.HasResponseError() {
			a.title = service.DefaultStationTitle(a.config.Device.BaseURL, a.config.Device.Station)
			a.logger.Warn("hadiscovery@starting station title unavailable, using default",
				zap.String("title", a.title.Title), zap.Error(msg.GetResponseError()))
		} else {
			a.title = msg.StationTitle
			a.logger.Debug("hadiscovery@starting station title", zap.String("title", a.title.Title))
		}
		ctx.Request(a.coordinator, domain.SubscribeRequest{Subscriber: NewPIDSubscriber(ctx)})
		a.subscribed = true
		a.Become(HADiscoveryDefaultState{actor: a})
		a.stash.UnstashAll(ctx)
	case *actor.Restarting, *actor.Stopping:
	default:
		a.logger.Debug("hadiscovery@starting stash", zap.String("type", fmt.Sprintf("%T", msg)))
		a.stash.Stash(ctx, msg)
	}
}

// Default state, follows snapshots

type HADiscoveryDefaultState struct {
	ActorState
	actor *HADiscoveryActor
}

func (state HADiscoveryDefaultState) Name() string {
	return "default"
}

func (state HADiscoveryDefaultState) Receive(ctx actor.Context) {
	a := state.actor
	switch msg := ctx.Message().(type) {
	case domain.SnapshotUpdated:
		a.publishIfChanged(ctx, msg.Snapshot)
	case domain.SubscribeResponse:
		if msg.HasResponseError() {
			a.logger.Error("hadiscovery@default snapshot subscription failed", zap.Error(msg.GetResponseError()))
			panic(msg.GetResponseError())
		}
		// a snapshot installed before subscribing is still worth announcing
		if a.latest != nil {
			a.publishIfChanged(ctx, a.latest())
		}
	case domain.PublishDiscoveryResponse:
		if msg.HasResponseError() {
			// retry on the next snapshot
			a.lastSignature = ""
		}
	case domain.StationTitleResponse:
	case domain.ActorHealthRequest:
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_HA_DISCOVERY,
			Healthy: true,
			State:   state.Name(),
		})
	case *actor.Stopping:
		if a.subscribed {
			ctx.Send(a.coordinator, domain.UnsubscribeRequest{Subscriber: NewPIDSubscriber(ctx)})
			a.subscribed = false
		}
	default:
		a.logger.Debug("hadiscovery@default unhandled", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (a *HADiscoveryActor) publishIfChanged(ctx actor.Context, snapshot *domain.Snapshot) {
	if snapshot == nil {
		return
	}
	signature := events.DiscoverySignature(a.table, snapshot)
	if signature == a.lastSignature {
		return
	}
	bridge := events.BridgeDevice(a.config.MQTT.BaseTopic)
	station := events.StationDevice(a.title, snapshot, a.mergeConfig)
	comps := events.Discovery(a.table, bridge, station, snapshot)
	a.logger.Info("hadiscovery@default publishing discovery",
		zap.String("station", station.Name),
		zap.Int("sensors", len(comps.Sensors)),
		zap.Int("switches", len(comps.Switches)),
		zap.Int("numbers", len(comps.InputNumbers)),
		zap.Int("selects", len(comps.Selects)))
	ctx.Request(a.mqttActor, domain.PublishDiscoveryRequest{
		Sensors:      comps.Sensors,
		Switches:     comps.Switches,
		InputNumbers: comps.InputNumbers,
		Selects:      comps.Selects,
	})
	a.lastSignature = signature
}
