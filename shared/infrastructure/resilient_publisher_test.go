package infrastructure

import (
	"context"
	"testing"
	"time"

	"github.com/draftea/saga-orchestrator/shared/events"
	"github.com/pkg/errors"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type flakyPublisher struct {
	failures int
	calls    int
}

func (p *flakyPublisher) Publish(_ context.Context, _ ...*events.Event) error {
	p.calls++
	if p.calls <= p.failures {
		return errors.New("broker unavailable")
	}
	return nil
}

func testBreakerPolicy() CircuitBreakerPolicy {
	return CircuitBreakerPolicy{
		TrackingPeriod:  time.Minute,
		TripThreshold:   15,
		ActiveThreshold: 10,
		ResetInterval:   5 * time.Minute,
	}
}

func TestCircuitBreakerPolicy_ReadyToTrip(t *testing.T) {
	policy := testBreakerPolicy()

	tests := []struct {
		name   string
		counts gobreaker.Counts
		want   bool
	}{
		{name: "below active threshold", counts: gobreaker.Counts{Requests: 9, TotalFailures: 9}, want: false},
		{name: "below trip threshold", counts: gobreaker.Counts{Requests: 20, TotalFailures: 2}, want: false},
		{name: "at trip threshold", counts: gobreaker.Counts{Requests: 20, TotalFailures: 3}, want: true},
		{name: "all failing", counts: gobreaker.Counts{Requests: 10, TotalFailures: 10}, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, policy.ReadyToTrip(tt.counts))
		})
	}
}

func TestResilientPublisher_Publish(t *testing.T) {
	event := events.NewEvent("greeting.sent", greeting{Name: "ada"})

	t.Run("retries until the publish succeeds", func(t *testing.T) {
		next := &flakyPublisher{failures: 2}
		publisher := NewResilientPublisher(next, "test", RetryPolicy{Limit: 5, Interval: time.Millisecond}, testBreakerPolicy(), nil)

		require.NoError(t, publisher.Publish(context.Background(), event))
		assert.Equal(t, 3, next.calls)
	})

	t.Run("gives up after the retry limit", func(t *testing.T) {
		next := &flakyPublisher{failures: 100}
		publisher := NewResilientPublisher(next, "test", RetryPolicy{Limit: 2, Interval: time.Millisecond}, testBreakerPolicy(), nil)

		err := publisher.Publish(context.Background(), event)

		require.Error(t, err)
		assert.Contains(t, err.Error(), "3 attempt(s)")
		assert.Equal(t, 3, next.calls)
	})

	t.Run("open breaker fails fast", func(t *testing.T) {
		next := &flakyPublisher{failures: 100}
		policy := testBreakerPolicy()
		policy.ActiveThreshold = 2
		publisher := NewResilientPublisher(next, "test", RetryPolicy{Limit: 5, Interval: time.Millisecond}, policy, nil)

		err := publisher.Publish(context.Background(), event)

		require.Error(t, err)
		assert.True(t, errors.Is(err, gobreaker.ErrOpenState))
		assert.Equal(t, 2, next.calls)
		assert.Equal(t, gobreaker.StateOpen, publisher.State())
	})
}
