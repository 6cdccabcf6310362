package domain

type SessionState int32

const (
	SessionUnauthenticated SessionState = iota
	SessionAuthenticated
	// SessionAuthFailed holds until the credentials change or a validation succeeds.
	SessionAuthFailed
)

func (s SessionState) String() string {
	switch s {
	case SessionUnauthenticated:
		return "unauthenticated"
	case SessionAuthenticated:
		return "authenticated"
	case SessionAuthFailed:
		return "auth_failed"
	}
	return "unknown"
}

// Subscriber receives every snapshot installed by a successful refresh.
// Implementations must be comparable and must not block on the coordinator.
type Subscriber interface {
	OnSnapshot(snapshot *Snapshot)
}

type funcSubscriber struct {
	fn func(snapshot *Snapshot)
}

func (s *funcSubscriber) OnSnapshot(snapshot *Snapshot) {
	s.fn(snapshot)
}

// NewSubscriberFunc adapts a function. Each call returns a distinct subscriber.
func NewSubscriberFunc(fn func(snapshot *Snapshot)) Subscriber {
	return &funcSubscriber{fn: fn}
}

// StationTitle is the human readable station name and the stable station id.
type StationTitle struct {
	Title    string
	UniqueId string
}
