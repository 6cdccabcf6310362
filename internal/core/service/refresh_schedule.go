package service

import (
	"context"
	"errors"
	"time"

	"github.com/reugn/go-quartz/quartz"
)

const REFRESH_JOB_KEY = "refresh"

// RefreshSchedule fires tick at a fixed rate. Ticks are independent of when the
// previous refresh finished.
type RefreshSchedule struct {
	interval  time.Duration
	tick      func()
	scheduler quartz.Scheduler
	cancel    context.CancelFunc
}

type refreshJob struct {
	tick func()
}

func (j *refreshJob) Execute(_ context.Context) error {
	j.tick()
	return nil
}

func (j *refreshJob) Description() string {
	return "coordinator refresh tick"
}

func NewRefreshSchedule(interval time.Duration, tick func()) *RefreshSchedule {
	return &RefreshSchedule{interval: interval, tick: tick}
}

func (s *RefreshSchedule) Start() error {
	if s.scheduler != nil {
		return errors.New("refresh schedule already started")
	}
	if s.interval <= 0 {
		return errors.New("refresh interval must be positive")
	}
	scheduler := quartz.NewStdScheduler()
	ctx, cancel := context.WithCancel(context.Background())
	scheduler.Start(ctx)

	job := quartz.NewJobDetail(&refreshJob{tick: s.tick}, quartz.NewJobKey(REFRESH_JOB_KEY))
	if err := scheduler.ScheduleJob(job, quartz.NewSimpleTrigger(s.interval)); err != nil {
		scheduler.Stop()
		cancel()
		return err
	}
	s.scheduler = scheduler
	s.cancel = cancel
	return nil
}

func (s *RefreshSchedule) Stop() {
	if s.scheduler == nil {
		return
	}
	s.scheduler.Stop()
	s.cancel()
	s.scheduler = nil
}
