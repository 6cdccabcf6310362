package service

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/berfenger/echarge2mqtt/internal/core/domain"

	"go.uber.org/zap"
)

// Fanout is the ordered set of snapshot subscribers.
// A subscriber added while Notify runs is first notified on the next call.
type Fanout struct {
	mu          sync.Mutex
	subscribers []domain.Subscriber
	logger      *zap.Logger
}

func NewFanout(logger *zap.Logger) *Fanout {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fanout{logger: logger}
}

// Add registers s. It returns false when s is already registered.
func (f *Fanout) Add(s domain.Subscriber) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.indexOf(s) >= 0 {
		return false
	}
	f.subscribers = append(f.subscribers, s)
	return true
}

func (f *Fanout) Remove(s domain.Subscriber) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.indexOf(s)
	if i < 0 {
		return false
	}
	f.subscribers = append(f.subscribers[:i:i], f.subscribers[i+1:]...)
	return true
}

func (f *Fanout) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subscribers)
}

// Notify calls every subscriber in subscription order and returns how many
// returned normally. A panicking subscriber is logged and skipped.
func (f *Fanout) Notify(snapshot *domain.Snapshot) int {
	f.mu.Lock()
	round := append([]domain.Subscriber(nil), f.subscribers...)
	f.mu.Unlock()

	delivered := 0
	for _, s := range round {
		if f.deliver(s, snapshot) {
			delivered++
		}
	}
	return delivered
}

func (f *Fanout) deliver(s domain.Subscriber, snapshot *domain.Snapshot) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			f.logger.Error("subscriber panicked",
				zap.String("subscriber", fmt.Sprintf("%T", s)),
				zap.Uint64("version", snapshot.Version()),
				zap.Any("panic", r))
			ok = false
		}
	}()
	s.OnSnapshot(snapshot)
	return true
}

func (f *Fanout) indexOf(s domain.Subscriber) int {
	for i, existing := range f.subscribers {
		if sameSubscriber(existing, s) {
			return i
		}
	}
	return -1
}

// non comparable subscribers are never equal, == would panic on them
func sameSubscriber(a, b domain.Subscriber) bool {
	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta != tb || !ta.Comparable() {
		return false
	}
	return a == b
}
