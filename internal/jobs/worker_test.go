package jobs

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorker_EnqueueAsync_TracksFailures(t *testing.T) {
	w := NewWorker(1)

	done := make(chan struct{}, 2)
	w.EnqueueAsync(func(ctx context.Context) error {
		done <- struct{}{}
		return nil
	})
	w.EnqueueAsync(func(ctx context.Context) error {
		done <- struct{}{}
		return errors.New("audit insert failed")
	})

	for i := 0; i < 2; i++ {
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("async job did not run")
		}
	}
	w.Shutdown()

	stats := w.GetStats()
	assert.Equal(t, int64(2), stats.CompletedJobs)
	assert.Equal(t, int64(1), stats.FailedJobs)
	assert.Equal(t, 0, stats.ActiveJobs)
}

func TestWorker_RecoversFromPanic(t *testing.T) {
	w := NewWorker(1)

	w.EnqueueAsync(func(ctx context.Context) error {
		panic("nil schedule")
	})
	w.Shutdown()

	stats := w.GetStats()
	assert.Equal(t, int64(1), stats.FailedJobs)
	assert.Equal(t, 0, stats.ActiveJobs)
}

func TestWorker_ScheduleEveryImmediate_RunsAtStartup(t *testing.T) {
	w := NewWorker(1)

	var runs int32
	ran := make(chan struct{}, 1)
	w.ScheduleEveryImmediate("mark_overdue", time.Hour, func(ctx context.Context) error {
		if atomic.AddInt32(&runs, 1) == 1 {
			ran <- struct{}{}
		}
		return nil
	})

	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("scheduled job did not run at startup")
	}
	w.Shutdown()

	stats := w.GetStats()
	require.Contains(t, stats.Scheduled, "mark_overdue")
	run := stats.Scheduled["mark_overdue"]
	assert.Equal(t, int64(1), run.Runs)
	assert.NotNil(t, run.LastRunAt)
	assert.Equal(t, time.Hour, run.Interval)
}

func TestWorker_DropsJobsAfterShutdown(t *testing.T) {
	w := NewWorker(1)
	w.Shutdown()

	var called int32
	w.Enqueue(func(ctx context.Context) error {
		atomic.AddInt32(&called, 1)
		return nil
	})
	w.EnqueueAsync(func(ctx context.Context) error {
		atomic.AddInt32(&called, 1)
		return nil
	})

	assert.Equal(t, int32(0), atomic.LoadInt32(&called))
	w.Shutdown()
}

func TestWorker_Shutdown_DrainsAsyncJobs(t *testing.T) {
	w := NewWorker(1)

	var finished, cancelled int32
	for i := 0; i < 20; i++ {
		w.EnqueueAsync(func(ctx context.Context) error {
			time.Sleep(5 * time.Millisecond)
			if ctx.Err() != nil {
				atomic.AddInt32(&cancelled, 1)
				return ctx.Err()
			}
			atomic.AddInt32(&finished, 1)
			return nil
		})
	}
	w.Shutdown()

	assert.Zero(t, atomic.LoadInt32(&cancelled))
	assert.Equal(t, int32(20), atomic.LoadInt32(&finished))
	assert.Equal(t, int64(20), w.GetStats().CompletedJobs)
	assert.Error(t, w.Context().Err())
}

func TestWorker_Shutdown_DrainsQueue(t *testing.T) {
	w := NewWorker(1)

	var ran int32
	for i := 0; i < 5; i++ {
		w.Enqueue(func(ctx context.Context) error {
			if ctx.Err() == nil {
				atomic.AddInt32(&ran, 1)
			}
			return nil
		})
	}
	w.Shutdown()

	assert.Equal(t, int32(5), atomic.LoadInt32(&ran))

	// Intake is closed after shutdown
	w.EnqueueAsync(func(ctx context.Context) error {
		atomic.AddInt32(&ran, 1)
		return nil
	})
	assert.Equal(t, int32(5), atomic.LoadInt32(&ran))
}

func TestWorker_Shutdown_CancelsAfterDrainTimeout(t *testing.T) {
	w := NewWorker(1)
	w.drainTimeout = 20 * time.Millisecond

	started := make(chan struct{})
	w.EnqueueAsync(func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	})
	<-started

	done := make(chan struct{})
	go func() {
		w.Shutdown()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("shutdown did not cancel a stuck job")
	}
	assert.Equal(t, int64(1), w.GetStats().FailedJobs)
}
