package port

import (
	"context"
	"time"

	"github.com/berfenger/echarge2mqtt/internal/core/domain"
)

type Subscriber = domain.Subscriber

// Coordinator is the synchronous API over the station coordinator.
// Command methods return after the confirming refresh has been installed and notified.
type Coordinator interface {
	Refresh(ctx context.Context) (*domain.Snapshot, error)
	SetChargingCurrent(ctx context.Context, value float64) (*domain.Snapshot, error)
	SetLockState(ctx context.Context, locked bool) (*domain.Snapshot, error)
	SetChargingMode(ctx context.Context, mode string) (*domain.Snapshot, error)
	SetAutoMode(ctx context.Context, on bool) (*domain.Snapshot, error)
	Validate(ctx context.Context) error
	StationTitle(ctx context.Context) (domain.StationTitle, error)
	UpdateCredentials(ctx context.Context, username, password string) error

	Snapshot() *domain.Snapshot
	SessionState() domain.SessionState
	Subscribe(ctx context.Context, subscriber Subscriber) error
	Unsubscribe(ctx context.Context, subscriber Subscriber) error
	// Timeout is the longest a single call may wait, queueing included.
	Timeout() time.Duration
}

// CoordinatorMetrics receives coordinator outcomes.
type CoordinatorMetrics interface {
	RefreshCompleted(trigger string, duration time.Duration, err error)
	CommandCompleted(command string, duration time.Duration, err error)
	SessionChanged(state domain.SessionState)
}
