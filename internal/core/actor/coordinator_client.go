package actor

import (
	"context"
	"fmt"
	"time"

	"github.com/berfenger/echarge2mqtt/internal/core/domain"
	"github.com/berfenger/echarge2mqtt/internal/core/port"
	"github.com/berfenger/echarge2mqtt/internal/core/service"
	"github.com/berfenger/echarge2mqtt/internal/util/actorutil"
	"github.com/berfenger/echarge2mqtt/pkg/echarge"

	"github.com/asynkron/protoactor-go/actor"
	"go.uber.org/zap"
)

// CoordinatorClient is the synchronous port.Coordinator over the coordinator actor.
type CoordinatorClient struct {
	root    *actor.RootContext
	pid     *actor.PID
	store   *service.SnapshotStore
	timeout time.Duration
}

var _ port.Coordinator = (*CoordinatorClient)(nil)

// StartCoordinator spawns the coordinator under the root context.
func StartCoordinator(system *actor.ActorSystem, config CoordinatorConfig, client echarge.Client, metrics port.CoordinatorMetrics, logger *zap.Logger) (*CoordinatorClient, error) {
	store := service.NewSnapshotStore()
	fanout := service.NewFanout(actorutil.ActorLogger(domain.ACTOR_ID_COORDINATOR, logger))
	props := actor.PropsFromProducer(func() actor.Actor {
		return NewCoordinatorActor(config, client, store, fanout, metrics, logger)
	})
	pid, err := system.Root.SpawnNamed(props, domain.ACTOR_ID_COORDINATOR)
	if err != nil {
		return nil, err
	}
	// a request may wait for one operation in flight and for its own
	return NewCoordinatorClient(system.Root, pid, store, 2*config.budget(OPERATION_COMMAND)), nil
}

func NewCoordinatorClient(root *actor.RootContext, pid *actor.PID, store *service.SnapshotStore, timeout time.Duration) *CoordinatorClient {
	return &CoordinatorClient{root: root, pid: pid, store: store, timeout: timeout}
}

func (c *CoordinatorClient) PID() *actor.PID {
	return c.pid
}

// Timeout is the default wait for one coordinator request.
func (c *CoordinatorClient) Timeout() time.Duration {
	return c.timeout
}

// Stop stops the coordinator and its refresh schedule.
func (c *CoordinatorClient) Stop() {
	c.root.Stop(c.pid)
}

func (c *CoordinatorClient) request(ctx context.Context, msg any) (any, error) {
	timeout := c.timeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
		if timeout <= 0 {
			return nil, fmt.Errorf("%w: %w", domain.ErrConnectivity, context.DeadlineExceeded)
		}
	}
	res, err := c.root.RequestFuture(c.pid, msg, timeout).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: coordinator did not answer %T: %w", domain.ErrConnectivity, msg, err)
	}
	return res, nil
}

func requestAs[T domain.ActorResponse](ctx context.Context, c *CoordinatorClient, msg any) (T, error) {
	var zero T
	res, err := c.request(ctx, msg)
	if err != nil {
		return zero, err
	}
	typed, ok := res.(T)
	if !ok {
		return zero, fmt.Errorf("unexpected coordinator response %T", res)
	}
	return typed, typed.GetResponseError()
}

func (c *CoordinatorClient) Refresh(ctx context.Context) (*domain.Snapshot, error) {
	res, err := requestAs[domain.RefreshResponse](ctx, c, domain.RefreshRequest{})
	return res.Snapshot, err
}

// Command sends any command and waits for its confirming refresh.
func (c *CoordinatorClient) Command(ctx context.Context, cmd domain.CommandRequest) (domain.CommandResponse, error) {
	return requestAs[domain.CommandResponse](ctx, c, cmd)
}

func (c *CoordinatorClient) command(ctx context.Context, cmd domain.CommandRequest) (*domain.Snapshot, error) {
	res, err := c.Command(ctx, cmd)
	return res.Snapshot, err
}

func (c *CoordinatorClient) SetChargingCurrent(ctx context.Context, value float64) (*domain.Snapshot, error) {
	return c.command(ctx, domain.SetChargingCurrentRequest{Value: value})
}

func (c *CoordinatorClient) SetLockState(ctx context.Context, locked bool) (*domain.Snapshot, error) {
	return c.command(ctx, domain.SetLockStateRequest{Locked: locked})
}

func (c *CoordinatorClient) SetChargingMode(ctx context.Context, mode string) (*domain.Snapshot, error) {
	return c.command(ctx, domain.SetChargingModeRequest{Mode: mode})
}

func (c *CoordinatorClient) SetAutoMode(ctx context.Context, on bool) (*domain.Snapshot, error) {
	return c.command(ctx, domain.SetAutoModeRequest{On: on})
}

func (c *CoordinatorClient) Validate(ctx context.Context) error {
	_, err := requestAs[domain.ValidateResponse](ctx, c, domain.ValidateRequest{})
	return err
}

func (c *CoordinatorClient) StationTitle(ctx context.Context) (domain.StationTitle, error) {
	res, err := requestAs[domain.StationTitleResponse](ctx, c, domain.StationTitleRequest{})
	return res.StationTitle, err
}

func (c *CoordinatorClient) UpdateCredentials(ctx context.Context, username, password string) error {
	_, err := requestAs[domain.UpdateCredentialsResponse](ctx, c, domain.UpdateCredentialsRequest{Username: username, Password: password})
	return err
}

// StartPolling starts the fixed rate refresh schedule.
func (c *CoordinatorClient) StartPolling(ctx context.Context) error {
	_, err := requestAs[domain.StartPollingResponse](ctx, c, domain.StartPollingRequest{})
	return err
}

func (c *CoordinatorClient) Snapshot() *domain.Snapshot {
	return c.store.Snapshot()
}

func (c *CoordinatorClient) SessionState() domain.SessionState {
	return c.store.SessionState()
}

func (c *CoordinatorClient) Subscribe(ctx context.Context, subscriber port.Subscriber) error {
	_, err := requestAs[domain.SubscribeResponse](ctx, c, domain.SubscribeRequest{Subscriber: subscriber})
	return err
}

func (c *CoordinatorClient) Unsubscribe(ctx context.Context, subscriber port.Subscriber) error {
	_, err := requestAs[domain.UnsubscribeResponse](ctx, c, domain.UnsubscribeRequest{Subscriber: subscriber})
	return err
}
