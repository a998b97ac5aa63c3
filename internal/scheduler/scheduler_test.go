package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solvaholic/wadigest/internal/retry"
)

func newTestScheduler(t *testing.T, cfg Config) (*Scheduler, *[]time.Duration) {
	t.Helper()
	s, err := New(cfg, zerolog.Nop())
	require.NoError(t, err)
	var sleeps []time.Duration
	s.retry.Sleep = func(ctx context.Context, d time.Duration) error {
		sleeps = append(sleeps, d)
		return nil
	}
	return s, &sleeps
}

func TestNewRejectsBadSpec(t *testing.T) {
	_, err := New(Config{Spec: "every day"}, zerolog.Nop())
	assert.ErrorContains(t, err, "invalid schedule")

	_, err = New(Config{Spec: "0 8 * * *"}, zerolog.Nop())
	assert.NoError(t, err)
}

func TestRunWithRetryFixedDelay(t *testing.T) {
	s, sleeps := newTestScheduler(t, Config{Spec: "@every 1h", RetryDelay: 5 * time.Second, MaxRetries: 3})

	calls := 0
	err := s.RunWithRetry(context.Background(), "digest", func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("gateway down")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{5 * time.Second, 5 * time.Second}, *sleeps)
}

func TestRunWithRetryGivesUp(t *testing.T) {
	s, sleeps := newTestScheduler(t, Config{Spec: "@every 1h", RetryDelay: time.Second, MaxRetries: 2})

	calls := 0
	err := s.RunWithRetry(context.Background(), "digest", func(ctx context.Context) error {
		calls++
		return errors.New("still down")
	})
	assert.EqualError(t, err, "still down")
	assert.Equal(t, 3, calls)
	assert.Len(t, *sleeps, 2)
}

func TestRunWithRetryPermanent(t *testing.T) {
	s, _ := newTestScheduler(t, Config{Spec: "@every 1h", MaxRetries: 3})

	calls := 0
	err := s.RunWithRetry(context.Background(), "digest", func(ctx context.Context) error {
		calls++
		return retry.Permanent(errors.New("no group configured"))
	})
	assert.EqualError(t, err, "no group configured")
	assert.Equal(t, 1, calls)
}

func TestAddDuplicate(t *testing.T) {
	s, _ := newTestScheduler(t, DefaultConfig())
	job := func(ctx context.Context) error { return nil }
	require.NoError(t, s.Add("a", job))
	assert.Error(t, s.Add("a", job))
}

func TestStartRunsNow(t *testing.T) {
	s, _ := newTestScheduler(t, Config{Spec: "@every 1h", RunNow: true})

	ran := make(chan struct{}, 1)
	require.NoError(t, s.Add("digest", func(ctx context.Context) error {
		ran <- struct{}{}
		return nil
	}))
	require.NoError(t, s.Start(context.Background()))
	assert.Error(t, s.Start(context.Background()))

	select {
	case <-ran:
	case <-time.After(5 * time.Second):
		t.Fatal("job did not run on start")
	}
	s.Stop()
	s.Stop()
}

func TestStopCancelsJobs(t *testing.T) {
	s, _ := newTestScheduler(t, Config{Spec: "@every 1h", RunNow: true})

	started := make(chan struct{})
	var cancelled atomic.Bool
	require.NoError(t, s.Add("slow", func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		cancelled.Store(true)
		return retry.Permanent(ctx.Err())
	}))
	require.NoError(t, s.Start(context.Background()))
	<-started

	s.Stop()
	assert.True(t, cancelled.Load())
}

func TestExecuteSkipsOverlap(t *testing.T) {
	s, _ := newTestScheduler(t, Config{Spec: "@every 1h"})
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	var calls atomic.Int32
	job := func(ctx context.Context) error {
		calls.Add(1)
		return nil
	}

	s.executing.Store("digest", time.Now())
	s.execute("digest", job)
	assert.Zero(t, calls.Load())

	s.executing.Delete("digest")
	s.execute("digest", job)
	assert.Equal(t, int32(1), calls.Load())
}
