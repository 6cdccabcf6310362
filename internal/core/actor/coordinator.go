package actor

import (
	"errors"
	"fmt"
	"time"

	"github.com/berfenger/echarge2mqtt/internal/core/domain"
	"github.com/berfenger/echarge2mqtt/internal/core/port"
	"github.com/berfenger/echarge2mqtt/internal/core/service"
	. "github.com/berfenger/echarge2mqtt/internal/util/actorutil"
	"github.com/berfenger/echarge2mqtt/pkg/echarge"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	REFRESH_TRIGGER_SCHEDULED = "scheduled"
	REFRESH_TRIGGER_MANUAL    = "manual"

	OPERATION_REFRESH  = "refresh"
	OPERATION_COMMAND  = "command"
	OPERATION_VALIDATE = "validate"
	OPERATION_TITLE    = "title"

	OPERATION_GRACE = 1 * time.Second
)

type CoordinatorConfig struct {
	BaseURL        string
	Station        int
	RequestTimeout time.Duration
	PollInterval   time.Duration
	MergeConfig    domain.MergeConfig
}

// budget bounds a whole operation: one RequestTimeout per device call plus a grace period.
func (c CoordinatorConfig) budget(kind string) time.Duration {
	calls := 1
	switch kind {
	case OPERATION_REFRESH:
		calls = 6
	case OPERATION_COMMAND:
		// auth, write, then a full refresh
		calls = 8
	case OPERATION_TITLE:
		calls = 2
	}
	return time.Duration(calls)*c.RequestTimeout + OPERATION_GRACE
}

// CoordinatorActor is the single serialization point in front of the station.
// One refresh or command runs at a time on a worker goroutine; requests arriving
// meanwhile are stashed and scheduled ticks collapse into one pending tick.
type CoordinatorActor struct {
	ActorWithStates
	stash       *Stash
	config      CoordinatorConfig
	session     service.StationSession
	store       *service.SnapshotStore
	merger      *service.SnapshotMerger
	fanout      *service.Fanout
	schedule    *service.RefreshSchedule
	metrics     port.CoordinatorMetrics
	tickPending bool
	version     uint64

	logger *zap.Logger
}

type refreshTick struct {
}

type operation struct {
	id      string
	kind    string
	trigger string
	command domain.CommandRequest
	replyTo *actor.PID
	started time.Time
}

type operationResult struct {
	op            operation
	authAttempted bool
	authErr       error
	reads         *service.RawReads
	title         domain.StationTitle
	err           error
}

func NewCoordinatorActor(config CoordinatorConfig, client echarge.Client, store *service.SnapshotStore, fanout *service.Fanout, metrics port.CoordinatorMetrics, logger *zap.Logger) *CoordinatorActor {
	act := &CoordinatorActor{
		ActorWithStates: NewActorWithStates(),
		stash:           &Stash{},
		config:          config,
		session: service.StationSession{
			Client:         client,
			Station:        config.Station,
			BaseURL:        config.BaseURL,
			RequestTimeout: config.RequestTimeout,
			Config:         config.MergeConfig,
		},
		store:   store,
		merger:  service.NewSnapshotMerger(config.MergeConfig, logger),
		fanout:  fanout,
		metrics: metrics,
		// a restarted actor continues the version sequence
		version: store.Snapshot().Version(),
		logger:  ActorLogger(domain.ACTOR_ID_COORDINATOR, logger),
	}
	act.Become(CoordStartingState{actor: act})
	return act
}

func (state *CoordinatorActor) Receive(context actor.Context) {
	state.Behavior.Receive(context)
}

// Starting state

type CoordStartingState struct {
	ActorState
	actor *CoordinatorActor
}

func (state CoordStartingState) Name() string {
	return "starting"
}

func (state CoordStartingState) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.actor.logger.Debug("coordinator@starting started",
			zap.Uint64("version", state.actor.version),
			zap.Int("subscribers", state.actor.fanout.Len()))
		if state.actor.store.Polling() {
			if err := state.actor.startSchedule(ctx); err != nil {
				panic(fmt.Errorf("coordinator could not resume polling: %w", err))
			}
		}
		state.actor.Become(CoordIdleState{actor: state.actor})
		state.actor.stash.UnstashAll(ctx)
	default:
		state.actor.logger.Debug("coordinator@starting stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.actor.stash.Stash(ctx, msg)
	}
}

// Idle state

type CoordIdleState struct {
	ActorState
	actor *CoordinatorActor
}

func (state CoordIdleState) Name() string {
	return "idle"
}

func (state CoordIdleState) Receive(ctx actor.Context) {
	a := state.actor
	if a.receiveAlways(ctx) {
		return
	}
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		a.respondHealth(ctx, msg)
	case refreshTick:
		if a.store.SessionState() == domain.SessionAuthFailed {
			a.logger.Debug("coordinator@idle tick skipped, credentials rejected")
			return
		}
		a.begin(ctx, operation{kind: OPERATION_REFRESH, trigger: REFRESH_TRIGGER_SCHEDULED})
	case domain.RefreshRequest:
		a.logger.Debug("coordinator@idle RefreshRequest")
		replyTo := ForRequest(msg).ReplyTo(ctx)
		if err := a.authFailedError(); err != nil {
			RespondLater(ctx, replyTo, domain.RefreshResponse{ActorResponseMixIn: domain.ResponseOf(err)})
			return
		}
		a.begin(ctx, operation{kind: OPERATION_REFRESH, trigger: REFRESH_TRIGGER_MANUAL, replyTo: replyTo})
	case domain.CommandRequest:
		id := uuid.NewString()
		a.logger.Debug("coordinator@idle CommandRequest", zap.String("command", msg.CommandName()), zap.String("id", id))
		replyTo := ForRequest(msg).ReplyTo(ctx)
		if err := msg.Check(a.store.Snapshot()); err != nil {
			a.rejectCommand(ctx, msg, id, replyTo, domain.COMMAND_STAGE_CHECK, err)
			return
		}
		if err := a.authFailedError(); err != nil {
			a.rejectCommand(ctx, msg, id, replyTo, domain.COMMAND_STAGE_AUTHENTICATE, err)
			return
		}
		a.begin(ctx, operation{id: id, kind: OPERATION_COMMAND, command: msg, replyTo: replyTo})
	case domain.ValidateRequest:
		a.logger.Debug("coordinator@idle ValidateRequest")
		a.begin(ctx, operation{kind: OPERATION_VALIDATE, replyTo: ForRequest(msg).ReplyTo(ctx)})
	case domain.StationTitleRequest:
		a.logger.Debug("coordinator@idle StationTitleRequest")
		a.begin(ctx, operation{kind: OPERATION_TITLE, replyTo: ForRequest(msg).ReplyTo(ctx)})
	case domain.UpdateCredentialsRequest:
		a.logger.Info("coordinator@idle credentials updated", zap.String("username", msg.Username))
		a.session.Client.SetCredentials(msg.Username, msg.Password)
		a.setSessionState(domain.SessionUnauthenticated)
		ForRequest(msg).Respond(ctx, domain.UpdateCredentialsResponse{})
	default:
		a.logger.Debug("coordinator@idle unhandled", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

// Busy state, one operation in flight

type CoordBusyState struct {
	ActorState
	actor *CoordinatorActor
	op    operation
}

func (state CoordBusyState) Name() string {
	return "busy"
}

func (state CoordBusyState) Receive(ctx actor.Context) {
	a := state.actor
	if a.receiveAlways(ctx) {
		return
	}
	switch msg := ctx.Message().(type) {
	case operationResult:
		a.finish(ctx, msg)
		a.UnbecomeStacked()
		a.stash.UnstashAll(ctx)
		if a.tickPending {
			a.tickPending = false
			ctx.Send(ctx.Self(), refreshTick{})
		}
	case refreshTick:
		if !a.tickPending {
			a.logger.Debug("coordinator@busy tick deferred", zap.String("operation", state.op.kind))
		}
		a.tickPending = true
	case domain.ActorHealthRequest:
		a.respondHealth(ctx, msg)
	default:
		a.logger.Debug("coordinator@busy stash", zap.String("type", fmt.Sprintf("%T", msg)))
		a.stash.Stash(ctx, msg)
	}
}

// receiveAlways handles the messages that never wait for the station.
func (a *CoordinatorActor) receiveAlways(ctx actor.Context) bool {
	switch msg := ctx.Message().(type) {
	case domain.SubscribeRequest:
		if msg.Subscriber == nil {
			ForRequest(msg).Respond(ctx, domain.SubscribeResponse{ActorResponseMixIn: domain.ResponseOf(errors.New("nil subscriber"))})
			return true
		}
		added := a.fanout.Add(msg.Subscriber)
		a.logger.Debug(fmt.Sprintf("coordinator@%s subscribe", a.StateName()),
			zap.String("subscriber", fmt.Sprintf("%T", msg.Subscriber)), zap.Bool("added", added))
		ForRequest(msg).Respond(ctx, domain.SubscribeResponse{Added: added})
	case domain.UnsubscribeRequest:
		removed := msg.Subscriber != nil && a.fanout.Remove(msg.Subscriber)
		a.logger.Debug(fmt.Sprintf("coordinator@%s unsubscribe", a.StateName()), zap.Bool("removed", removed))
		ForRequest(msg).Respond(ctx, domain.UnsubscribeResponse{Removed: removed})
	case domain.StartPollingRequest:
		ForRequest(msg).Respond(ctx, domain.StartPollingResponse{ActorResponseMixIn: domain.ResponseOf(a.startSchedule(ctx))})
	case *actor.Stopping:
		a.stopSchedule()
		a.store.SetPolling(false)
	case *actor.Restarting:
		// the next instance resumes from store.Polling()
		a.stopSchedule()
	default:
		return false
	}
	return true
}

func (a *CoordinatorActor) startSchedule(ctx actor.Context) error {
	if a.schedule != nil {
		return nil
	}
	root := ctx.ActorSystem().Root
	self := ctx.Self()
	schedule := service.NewRefreshSchedule(a.config.PollInterval, func() {
		root.Send(self, refreshTick{})
	})
	if err := schedule.Start(); err != nil {
		a.logger.Error("coordinator refresh schedule not started", zap.Error(err))
		return err
	}
	a.schedule = schedule
	a.store.SetPolling(true)
	a.logger.Info("coordinator polling", zap.Duration("interval", a.config.PollInterval))
	return nil
}

func (a *CoordinatorActor) stopSchedule() {
	if a.schedule != nil {
		a.schedule.Stop()
		a.schedule = nil
	}
}

func (a *CoordinatorActor) respondHealth(ctx actor.Context, msg domain.ActorHealthRequest) {
	session := a.store.SessionState()
	ForRequest(msg).Respond(ctx, domain.ActorHealthResponse{
		Id:      domain.ACTOR_ID_COORDINATOR,
		Healthy: session != domain.SessionAuthFailed,
		State:   fmt.Sprintf("%s/%s", a.StateName(), session),
	})
}

func (a *CoordinatorActor) authFailedError() error {
	if a.store.SessionState() != domain.SessionAuthFailed {
		return nil
	}
	return fmt.Errorf("%w: credentials were rejected, update them to resume", domain.ErrAuthDenied)
}

func (a *CoordinatorActor) rejectCommand(ctx actor.Context, cmd domain.CommandRequest, id string, replyTo *actor.PID, stage string, err error) {
	cmdErr := &domain.CommandError{Command: cmd.CommandName(), Stage: stage, Err: err}
	a.logger.Info("coordinator command rejected", zap.String("id", id), zap.Error(cmdErr))
	a.reportCommand(cmd.CommandName(), 0, cmdErr)
	RespondLater(ctx, replyTo, domain.CommandResponse{ActorResponseMixIn: domain.ResponseOf(cmdErr), CommandId: id})
}

// begin runs op on a worker and stacks the busy state until its result arrives.
func (a *CoordinatorActor) begin(ctx actor.Context, op operation) {
	op.started = time.Now()
	if a.store.SessionState() == domain.SessionAuthenticated {
		// the station session does not outlive a cycle
		a.setSessionState(domain.SessionUnauthenticated)
	}
	session := a.session
	NewBackgroundTaskNoError(ctx, func() *operationResult {
		res := run(session, op)
		return &res
	}).WithTimeout(a.config.budget(op.kind)).Recover(func(err error) operationResult {
		return operationResult{
			op:  op,
			err: fmt.Errorf("%w: %s did not complete: %w", domain.ErrConnectivity, op.kind, err),
		}
	}).PipeTo(ctx.Self())
	a.BecomeStacked(CoordBusyState{actor: a, op: op})
}

// run executes op against the station. It runs off the actor thread.
func run(session service.StationSession, op operation) operationResult {
	res := operationResult{op: op, authAttempted: true}
	res.authErr = session.Authenticate()
	if res.authErr != nil {
		res.err = res.authErr
		if op.kind == OPERATION_COMMAND {
			res.err = &domain.CommandError{Command: op.command.CommandName(), Stage: domain.COMMAND_STAGE_AUTHENTICATE, Err: res.authErr}
		}
		return res
	}

	switch op.kind {
	case OPERATION_REFRESH:
		res.reads, res.err = session.ReadAll()
	case OPERATION_TITLE:
		res.title, res.err = session.Title()
	case OPERATION_COMMAND:
		name := op.command.CommandName()
		if err := session.Write(op.command); err != nil {
			res.err = &domain.CommandError{Command: name, Stage: domain.COMMAND_STAGE_WRITE, Err: err}
			return res
		}
		// the confirming refresh is a full cycle, login included
		res.authErr = session.Authenticate()
		if res.authErr != nil {
			res.err = &domain.CommandError{Command: name, Stage: domain.COMMAND_STAGE_REFRESH, Err: res.authErr}
			return res
		}
		reads, err := session.ReadAll()
		if err != nil {
			res.err = &domain.CommandError{Command: name, Stage: domain.COMMAND_STAGE_REFRESH, Err: err}
			return res
		}
		res.reads = reads
	}
	return res
}

// finish applies an operation result on the actor thread.
func (a *CoordinatorActor) finish(ctx actor.Context, res operationResult) {
	op := res.op
	elapsed := time.Since(op.started)

	if res.authAttempted {
		switch {
		case res.authErr == nil:
			a.setSessionState(domain.SessionAuthenticated)
		case errors.Is(res.authErr, domain.ErrAuthDenied):
			a.setSessionState(domain.SessionAuthFailed)
		default:
			a.setSessionState(domain.SessionUnauthenticated)
		}
	}

	var snapshot *domain.Snapshot
	if res.err == nil && res.reads != nil {
		a.version++
		snapshot = a.merger.Merge(*res.reads, a.version, time.Now())
		a.store.Install(snapshot)
		notified := a.fanout.Notify(snapshot)
		a.logger.Debug("coordinator@busy snapshot installed",
			zap.String("operation", op.kind),
			zap.Uint64("version", snapshot.Version()),
			zap.Int("fields", snapshot.Len()),
			zap.Int("notified", notified),
			zap.Duration("elapsed", elapsed))
	}
	if res.err != nil {
		a.logFailure(op, res.err)
	}

	switch op.kind {
	case OPERATION_REFRESH:
		a.reportRefresh(op.trigger, elapsed, res.err)
		RespondLater(ctx, op.replyTo, domain.RefreshResponse{ActorResponseMixIn: domain.ResponseOf(res.err), Snapshot: snapshot})
	case OPERATION_COMMAND:
		a.reportCommand(op.command.CommandName(), elapsed, res.err)
		RespondLater(ctx, op.replyTo, domain.CommandResponse{ActorResponseMixIn: domain.ResponseOf(res.err), CommandId: op.id, Snapshot: snapshot})
	case OPERATION_VALIDATE:
		RespondLater(ctx, op.replyTo, domain.ValidateResponse{ActorResponseMixIn: domain.ResponseOf(res.err)})
	case OPERATION_TITLE:
		RespondLater(ctx, op.replyTo, domain.StationTitleResponse{ActorResponseMixIn: domain.ResponseOf(res.err), StationTitle: res.title})
	}
}

func (a *CoordinatorActor) logFailure(op operation, err error) {
	fields := []zap.Field{zap.String("operation", op.kind), zap.Error(err)}
	if op.trigger != "" {
		fields = append(fields, zap.String("trigger", op.trigger))
	}
	if op.id != "" {
		fields = append(fields, zap.String("id", op.id))
	}
	switch {
	case errors.Is(err, domain.ErrAuthDenied):
		a.logger.Error("coordinator station rejected the credentials", fields...)
	case errors.Is(err, domain.ErrInvalidCommand):
		a.logger.Info("coordinator command rejected", fields...)
	default:
		a.logger.Warn("coordinator station unreachable", fields...)
	}
}

func (a *CoordinatorActor) setSessionState(state domain.SessionState) {
	if a.store.SessionState() == state {
		return
	}
	a.store.SetSessionState(state)
	if a.metrics != nil {
		a.metrics.SessionChanged(state)
	}
}

func (a *CoordinatorActor) reportRefresh(trigger string, elapsed time.Duration, err error) {
	if a.metrics != nil {
		a.metrics.RefreshCompleted(trigger, elapsed, err)
	}
}

func (a *CoordinatorActor) reportCommand(command string, elapsed time.Duration, err error) {
	if a.metrics != nil {
		a.metrics.CommandCompleted(command, elapsed, err)
	}
}
