package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_BadSpec(t *testing.T) {
	_, err := New("every minute please", func(context.Context) {})
	require.Error(t, err)
}

func TestNew_DefaultSpec(t *testing.T) {
	s, err := New("", func(context.Context) {})
	require.NoError(t, err)
	assert.Equal(t, DefaultSpec, s.spec)
}

func TestWrap_SkipsOverlap(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	var runs atomic.Int32

	s, err := New("@every 1h", func(context.Context) {
		runs.Add(1)
		close(started)
		<-release
	})
	require.NoError(t, err)
	var skips atomic.Int32
	s.OnSkip = func() { skips.Add(1) }

	job := s.cron.Entries()[0].Job
	done := make(chan struct{})
	go func() {
		job.Run()
		close(done)
	}()
	<-started

	job.Run() // overlaps; returns immediately
	assert.Equal(t, int64(1), s.Skipped())
	assert.Equal(t, int32(1), skips.Load())

	close(release)
	<-done
	assert.Equal(t, int32(1), runs.Load())
}

func TestScheduler_FiresAndStops(t *testing.T) {
	fired := make(chan struct{}, 10)
	var sawCancel atomic.Bool

	s, err := New("@every 1s", func(ctx context.Context) {
		fired <- struct{}{}
		<-ctx.Done()
		sawCancel.Store(true)
	})
	require.NoError(t, err)
	s.Start()
	assert.False(t, s.Next().IsZero())

	select {
	case <-fired:
	case <-time.After(3 * time.Second):
		t.Fatal("job never fired")
	}
	s.Stop(2 * time.Second)
	assert.True(t, sawCancel.Load(), "running job sees cancellation on stop")
}
