package infrastructure

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/draftea/saga-orchestrator/shared/events"
	"github.com/draftea/saga-orchestrator/shared/logger"
	"github.com/pkg/errors"
	"github.com/sony/gobreaker"
)

var _ events.Publisher = (*ResilientPublisher)(nil)

// RetryPolicy retries a publish at a fixed interval
type RetryPolicy struct {
	Limit    uint
	Interval time.Duration
}

// CircuitBreakerPolicy opens the breaker when, within TrackingPeriod, at
// least ActiveThreshold publishes were attempted and TripThreshold percent of
// them failed. The breaker stays open for ResetInterval.
type CircuitBreakerPolicy struct {
	TrackingPeriod  time.Duration
	TripThreshold   float64
	ActiveThreshold uint32
	ResetInterval   time.Duration
}

// ReadyToTrip reports whether the counts warrant opening the breaker
func (p CircuitBreakerPolicy) ReadyToTrip(counts gobreaker.Counts) bool {
	if counts.Requests < p.ActiveThreshold || counts.Requests == 0 {
		return false
	}
	failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
	return failureRatio*100 >= p.TripThreshold
}

// ResilientPublisher decorates a publisher with interval retries and a
// circuit breaker
type ResilientPublisher struct {
	next    events.Publisher
	breaker *gobreaker.CircuitBreaker
	retry   RetryPolicy
	logger  *logger.Logger
}

func NewResilientPublisher(next events.Publisher, name string, retry RetryPolicy, breaker CircuitBreakerPolicy, l *logger.Logger) *ResilientPublisher {
	if l == nil {
		l = logger.NewNop()
	}

	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    breaker.TrackingPeriod,
		Timeout:     breaker.ResetInterval,
		ReadyToTrip: breaker.ReadyToTrip,
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			l.Warn("publisher circuit breaker changed state", "breaker", name, "from", from.String(), "to", to.String())
		},
	}

	return &ResilientPublisher{
		next:    next,
		breaker: gobreaker.NewCircuitBreaker(settings),
		retry:   retry,
		logger:  l,
	}
}

// Publish publishes through the breaker, retrying failures. An open breaker
// fails immediately.
func (p *ResilientPublisher) Publish(ctx context.Context, evts ...*events.Event) error {
	if len(evts) == 0 {
		return nil
	}

	attempts := 0
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempts++
		_, err := p.breaker.Execute(func() (interface{}, error) {
			return nil, p.next.Publish(ctx, evts...)
		})
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return struct{}{}, backoff.Permanent(err)
		}
		if err != nil {
			p.logger.Debug("publish attempt failed", "attempt", attempts, "error", err)
		}
		return struct{}{}, err
	},
		backoff.WithBackOff(backoff.NewConstantBackOff(p.retry.Interval)),
		backoff.WithMaxTries(p.retry.Limit+1),
	)
	if err != nil {
		var permanent *backoff.PermanentError
		if errors.As(err, &permanent) {
			err = permanent.Unwrap()
		}
		return errors.Wrapf(err, "publish failed after %d attempt(s)", attempts)
	}

	return nil
}

// State returns the breaker state, reported by /health
func (p *ResilientPublisher) State() gobreaker.State {
	return p.breaker.State()
}
