package actorutil

import (
	"github.com/berfenger/echarge2mqtt/internal/core/domain"

	"github.com/asynkron/protoactor-go/actor"
)

// PIDSubscriber forwards snapshots to an actor as domain.SnapshotUpdated.
// It is comparable, so subscribing the same PID twice is detected.
type PIDSubscriber struct {
	Root *actor.RootContext
	PID  *actor.PID
}

func NewPIDSubscriber(ctx actor.Context) PIDSubscriber {
	return PIDSubscriber{Root: ctx.ActorSystem().Root, PID: ctx.Self()}
}

func (s PIDSubscriber) OnSnapshot(snapshot *domain.Snapshot) {
	s.Root.Send(s.PID, domain.SnapshotUpdated{Snapshot: snapshot})
}
