// Package scheduler triggers refresh cycles on a cron schedule.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultSpec refreshes once a minute.
const DefaultSpec = "@every 1m"

// Job is one scheduled run. ctx is cancelled when the scheduler stops.
type Job func(ctx context.Context)

// Scheduler runs a Job on a cron schedule. A tick that fires while the
// previous run is still going is skipped, not queued.
type Scheduler struct {
	cron    *cron.Cron
	spec    string
	ctx     context.Context
	cancel  context.CancelFunc
	skipped atomic.Int64
	running atomic.Bool
	log     *slog.Logger

	// OnSkip is called for every skipped tick.
	OnSkip func()
}

// New parses spec (standard 5-field cron or a descriptor like "@every 30s")
// and registers job.
func New(spec string, job Job) (*Scheduler, error) {
	if spec == "" {
		spec = DefaultSpec
	}
	l := slog.Default().With(slog.String("component", "scheduler"))
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		cron:   cron.New(cron.WithLogger(cronLogger{l})),
		spec:   spec,
		ctx:    ctx,
		cancel: cancel,
		log:    l,
	}
	if _, err := s.cron.AddJob(spec, s.wrap(job)); err != nil {
		cancel()
		return nil, fmt.Errorf("schedule %q: %w", spec, err)
	}
	return s, nil
}

// wrap guards job against overlapping runs.
func (s *Scheduler) wrap(job Job) cron.Job {
	return cron.FuncJob(func() {
		if !s.running.CompareAndSwap(false, true) {
			s.skipped.Add(1)
			s.log.Warn("previous cycle still running, tick skipped")
			if s.OnSkip != nil {
				s.OnSkip()
			}
			return
		}
		defer s.running.Store(false)
		job(s.ctx)
	})
}

// Start begins firing in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info("scheduler started", slog.String("spec", s.spec))
}

// Stop stops new ticks, cancels the running job's context and waits up to
// timeout for it to return.
func (s *Scheduler) Stop(timeout time.Duration) {
	done := s.cron.Stop()
	s.cancel()
	select {
	case <-done.Done():
	case <-time.After(timeout):
		s.log.Warn("running job did not finish before stop timeout")
	}
}

// Next returns the next scheduled fire time, or zero before Start.
func (s *Scheduler) Next() time.Time {
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}

// Skipped returns how many ticks were skipped because of overlap.
func (s *Scheduler) Skipped() int64 { return s.skipped.Load() }

// cronLogger routes cron's own logging through slog.
type cronLogger struct{ l *slog.Logger }

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debug(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Error(msg, append([]interface{}{"error", err.Error()}, keysAndValues...)...)
}
