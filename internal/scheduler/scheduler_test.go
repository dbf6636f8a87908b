package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/illenko/usagewatch/internal/clock"
)

func TestScheduler_RunNowRecordsStatus(t *testing.T) {
	fake := clock.NewFake(time.Date(2026, 5, 4, 8, 0, 0, 0, time.UTC))
	boom := errors.New("boom")
	calls := 0

	s := New(Config{Clock: fake}, Task{
		Name:     TaskCleanup,
		Interval: time.Hour,
		Run: func(context.Context) error {
			calls++
			if calls == 2 {
				return boom
			}
			return nil
		},
	})

	require.NoError(t, s.RunNow(context.Background(), TaskCleanup))
	fake.Advance(time.Minute)
	require.ErrorIs(t, s.RunNow(context.Background(), TaskCleanup), boom)

	status := s.Status()
	require.Len(t, status, 1)
	assert.Equal(t, TaskCleanup, status[0].Name)
	assert.Equal(t, 2, status[0].Runs)
	assert.False(t, status[0].Running)
	assert.Equal(t, "boom", status[0].LastError)
	assert.Equal(t, fake.Now(), status[0].LastRunAt)
	assert.Equal(t, "1h0m0s", status[0].Interval)
}

func TestScheduler_RefusesOverlap(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})

	s := New(Config{},
		Task{Name: TaskCheckNotifications, Interval: time.Hour, Run: func(context.Context) error {
			close(started)
			<-release
			return nil
		}},
		Task{Name: TaskCollectDisk, Interval: time.Hour, Run: func(context.Context) error { return nil }},
	)

	done := make(chan error, 1)
	go func() { done <- s.RunNow(context.Background(), TaskCheckNotifications) }()
	<-started

	assert.ErrorIs(t, s.RunNow(context.Background(), TaskCheckNotifications), ErrTaskAlreadyRunning)
	assert.NoError(t, s.RunNow(context.Background(), TaskCollectDisk), "other tasks still run")

	close(release)
	require.NoError(t, <-done)
}

func TestScheduler_UnknownTask(t *testing.T) {
	s := New(Config{})
	assert.ErrorIs(t, s.RunNow(context.Background(), "nope"), ErrUnknownTask)
}

func TestScheduler_TaskTimeout(t *testing.T) {
	s := New(Config{TaskTimeout: 10 * time.Millisecond}, Task{
		Name:     TaskCollectUsers,
		Interval: time.Hour,
		Run: func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		},
	})

	err := s.RunNow(context.Background(), TaskCollectUsers)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestScheduler_RecoversPanic(t *testing.T) {
	s := New(Config{}, Task{Name: TaskCleanup, Interval: time.Hour, Run: func(context.Context) error {
		panic("bad")
	}})

	err := s.RunNow(context.Background(), TaskCleanup)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panicked")
	assert.False(t, s.Status()[0].Running)
}

func TestScheduler_RunAllJoinsErrors(t *testing.T) {
	errDisk := errors.New("disk failed")
	errUsers := errors.New("users failed")
	var cleaned atomic.Bool

	s := New(Config{},
		Task{Name: TaskCollectDisk, Interval: time.Hour, Run: func(context.Context) error { return errDisk }},
		Task{Name: TaskCollectUsers, Interval: time.Hour, Run: func(context.Context) error { return errUsers }},
		Task{Name: TaskCleanup, Interval: time.Hour, Run: func(context.Context) error {
			cleaned.Store(true)
			return nil
		}},
	)

	err := s.RunAll(context.Background())
	assert.ErrorIs(t, err, errDisk)
	assert.ErrorIs(t, err, errUsers)
	assert.True(t, cleaned.Load())
}

func TestScheduler_StartRunsImmediatelyAndStops(t *testing.T) {
	var runs atomic.Int32
	ran := make(chan struct{}, 1)

	s := New(Config{}, Task{Name: TaskCollectDisk, Interval: time.Hour, Run: func(context.Context) error {
		runs.Add(1)
		select {
		case ran <- struct{}{}:
		default:
		}
		return nil
	}})

	stopped := make(chan struct{})
	go func() {
		s.Start(context.Background())
		close(stopped)
	}()

	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatal("task did not run on start")
	}

	s.Stop()
	s.Stop()
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}
	assert.Equal(t, int32(1), runs.Load())
}
