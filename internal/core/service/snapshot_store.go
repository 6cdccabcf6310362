package service

import (
	"sync/atomic"

	"github.com/berfenger/echarge2mqtt/internal/core/domain"
)

// SnapshotStore publishes the coordinator state to concurrent readers.
// Only the coordinator writes to it.
type SnapshotStore struct {
	snapshot atomic.Pointer[domain.Snapshot]
	session  atomic.Int32
	polling  atomic.Bool
}

func NewSnapshotStore() *SnapshotStore {
	return &SnapshotStore{}
}

// Snapshot returns the latest installed snapshot, nil before the first successful refresh.
func (s *SnapshotStore) Snapshot() *domain.Snapshot {
	return s.snapshot.Load()
}

func (s *SnapshotStore) Install(snapshot *domain.Snapshot) {
	s.snapshot.Store(snapshot)
}

func (s *SnapshotStore) SessionState() domain.SessionState {
	return domain.SessionState(s.session.Load())
}

func (s *SnapshotStore) SetSessionState(state domain.SessionState) {
	s.session.Store(int32(state))
}

// Polling reports whether scheduled refreshes were requested. It outlives a
// restart of the coordinator so the new instance resumes the schedule.
func (s *SnapshotStore) Polling() bool {
	return s.polling.Load()
}

func (s *SnapshotStore) SetPolling(polling bool) {
	s.polling.Store(polling)
}
