package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func recordingSleep(delays *[]time.Duration) func(context.Context, time.Duration) error {
	return func(ctx context.Context, d time.Duration) error {
		*delays = append(*delays, d)
		return nil
	}
}

func TestDefaultPolicy(t *testing.T) {
	p := DefaultPolicy()
	assert.Equal(t, 3, p.MaxAttempts)
	assert.Equal(t, time.Second, p.InitialDelay)
	assert.Equal(t, 10*time.Second, p.MaxDelay)
}

func TestNextDelay(t *testing.T) {
	p := DefaultPolicy()
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 1 * time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 8 * time.Second},
		{4, 10 * time.Second},
		{10, 10 * time.Second},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, p.NextDelay(tt.attempt), "attempt %d", tt.attempt)
	}

	fixed := Fixed(3, time.Minute)
	assert.Equal(t, time.Minute, fixed.NextDelay(0))
	assert.Equal(t, time.Minute, fixed.NextDelay(5))
}

func TestDoRetriesUntilSuccess(t *testing.T) {
	var delays []time.Duration
	p := DefaultPolicy()
	p.Sleep = recordingSleep(&delays)

	calls := 0
	err := p.Do(context.Background(), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, delays)
}

func TestDoReturnsLastErrorWhenExhausted(t *testing.T) {
	var delays []time.Duration
	p := DefaultPolicy()
	p.Sleep = recordingSleep(&delays)

	calls := 0
	err := p.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return errors.New("still down")
	})

	require.EqualError(t, err, "still down")
	assert.Equal(t, 3, calls)
	assert.Len(t, delays, 2)
}

func TestDoStopsOnPermanentError(t *testing.T) {
	var delays []time.Duration
	p := DefaultPolicy()
	p.Sleep = recordingSleep(&delays)

	base := errors.New("bad request")
	calls := 0
	err := p.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return Permanent(base)
	})

	assert.ErrorIs(t, err, base)
	assert.False(t, IsPermanent(err))
	assert.Equal(t, 1, calls)
	assert.Empty(t, delays)
}

func TestDoStopsWhenContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := DefaultPolicy()
	calls := 0
	err := p.Do(ctx, func(ctx context.Context) error {
		calls++
		return errors.New("fail")
	})

	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}
