package saga

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/draftea/saga-orchestrator/shared/events"
	"github.com/draftea/saga-orchestrator/shared/logger"
	"github.com/draftea/saga-orchestrator/shared/models"
	"github.com/pkg/errors"
)

type runtimeOptions struct {
	maxAttempts     uint
	initialInterval time.Duration
	maxInterval     time.Duration
	locker          Locker
	logger          *logger.Logger
}

type RuntimeOption func(*runtimeOptions)

// WithMaxAttempts bounds how many times a unit of work is retried after a
// concurrency conflict
func WithMaxAttempts(attempts uint) RuntimeOption {
	return func(o *runtimeOptions) {
		if attempts > 0 {
			o.maxAttempts = attempts
		}
	}
}

func WithConflictBackoff(initial, max time.Duration) RuntimeOption {
	return func(o *runtimeOptions) {
		o.initialInterval = initial
		o.maxInterval = max
	}
}

func WithLocker(locker Locker) RuntimeOption {
	return func(o *runtimeOptions) {
		o.locker = locker
	}
}

func WithLogger(l *logger.Logger) RuntimeOption {
	return func(o *runtimeOptions) {
		o.logger = l
	}
}

// Runtime runs one unit of work per inbound event: load or create the
// instance, transition it, persist state and commands atomically, then
// publish the commands.
type Runtime[I Instance] struct {
	machine   StateMachine[I]
	repo      Repository[I]
	publisher events.Publisher
	options   *runtimeOptions
}

func NewRuntime[I Instance](
	machine StateMachine[I],
	repo Repository[I],
	publisher events.Publisher,
	opts ...RuntimeOption,
) *Runtime[I] {
	options := &runtimeOptions{
		maxAttempts:     5,
		initialInterval: 20 * time.Millisecond,
		maxInterval:     500 * time.Millisecond,
	}

	for _, opt := range opts {
		opt(options)
	}

	if options.logger == nil {
		options.logger = logger.NewNop()
	}

	return &Runtime[I]{
		machine:   machine,
		repo:      repo,
		publisher: publisher,
		options:   options,
	}
}

// Handle processes one inbound event. Routing errors, ignored events and
// failed dispatches are handled here and never returned; an error means the
// event was not processed and should be redelivered.
func (r *Runtime[I]) Handle(ctx context.Context, event *events.Event) (*Result, error) {
	log := r.options.logger.With("saga", r.machine.Name(), "topic", event.Topic, "event_id", event.ID)

	result := &Result{
		Saga:  r.machine.Name(),
		Topic: event.Topic,
	}

	correlation, err := r.machine.Correlate(event)
	if err != nil {
		if IsRoutingError(err) {
			log.Warn("dropping event that cannot be routed", "error", err)
			result.Disposition = DispositionDropped
			return result, nil
		}
		return nil, errors.Wrap(err, "failed to correlate event")
	}

	result.CorrelationID = correlation.CorrelationID
	log = log.With("correlation_id", correlation.CorrelationID)

	if r.options.locker != nil {
		release, err := r.options.locker.Lock(ctx, r.lockKey(correlation.CorrelationID))
		if err != nil {
			return nil, errors.Wrapf(err, "failed to lock saga %s", correlation.CorrelationID)
		}
		defer func() {
			if err := release(context.WithoutCancel(ctx)); err != nil {
				log.Warn("failed to release saga lock", "error", err)
			}
		}()
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.options.initialInterval
	b.MaxInterval = r.options.maxInterval

	_, err = backoff.Retry(ctx, func() (struct{}, error) {
		result.Attempts++
		err := r.unitOfWork(ctx, correlation, event, result)
		if errors.Is(err, ErrConcurrencyConflict) {
			log.Debug("concurrency conflict, retrying from a fresh read", "attempt", result.Attempts)
			return struct{}{}, err
		}
		if err != nil {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, nil
	}, backoff.WithBackOff(b), backoff.WithMaxTries(r.options.maxAttempts))
	err = unwrapPermanent(err)

	switch {
	case err == nil:
	case IsRoutingError(err):
		log.Warn("dropping event that cannot be routed", "error", err)
		result.Disposition = DispositionDropped
		return result, nil
	case IsInvariantViolation(err):
		log.Error("saga invariant violated, unit of work aborted", "error", err, "state", result.From)
		return nil, err
	case errors.Is(err, ErrConcurrencyConflict):
		log.Error("giving up after repeated concurrency conflicts", "attempts", result.Attempts)
		return nil, errors.Wrapf(err, "saga %s", correlation.CorrelationID)
	default:
		return nil, errors.Wrapf(err, "failed to process event for saga %s", correlation.CorrelationID)
	}

	if result.Disposition == DispositionIgnored {
		log.Info("event ignored in current state", "state", result.From, "version", result.Version)
		return result, nil
	}

	log.Info("saga transitioned", "from", result.From, "to", result.To, "version", result.Version, "commands", len(result.Commands))

	r.dispatch(ctx, log, result)

	return result, nil
}

func (r *Runtime[I]) unitOfWork(ctx context.Context, correlation Correlation, event *events.Event, result *Result) error {
	instance, err := r.repo.Find(ctx, correlation.CorrelationID)
	switch {
	case errors.Is(err, ErrInstanceNotFound):
		if !correlation.CanCreate {
			return NewRoutingError(event.Topic, correlation.CorrelationID.String(), "no saga instance for correlation id")
		}
		instance = r.machine.New(correlation.CorrelationID)
	case err != nil:
		return errors.Wrap(err, "failed to load saga instance")
	case instance.SagaID() != correlation.CorrelationID:
		return NewInvariantViolation(correlation.CorrelationID, instance.SagaState(), "store returned saga "+instance.SagaID().String())
	}

	result.From = instance.SagaState()
	result.Version = instance.SagaVersion()
	result.To = result.From
	result.Commands = nil
	result.Disposition = DispositionIgnored

	if r.machine.IsTerminal(instance.SagaState()) {
		return nil
	}

	outcome, err := r.machine.Transition(instance, event)
	if err != nil {
		return err
	}

	if !outcome.Changed {
		return nil
	}

	if err := r.repo.Save(ctx, outcome.Instance, outcome.Commands); err != nil {
		return err
	}

	result.To = outcome.Instance.SagaState()
	result.Version = outcome.Instance.SagaVersion()
	result.Commands = outcome.Commands
	result.Disposition = DispositionTransitioned

	return nil
}

// dispatch publishes committed commands. On failure the commands stay in the
// outbox for the relay.
func (r *Runtime[I]) dispatch(ctx context.Context, log *logger.Logger, result *Result) {
	if len(result.Commands) == 0 {
		return
	}

	if err := r.publisher.Publish(ctx, result.Commands...); err != nil {
		log.Warn("failed to publish committed commands, leaving them to the outbox relay", "error", err)
		return
	}

	ids := make([]models.ID, 0, len(result.Commands))
	for _, command := range result.Commands {
		ids = append(ids, command.ID)
	}

	if err := r.repo.MarkDispatched(context.WithoutCancel(ctx), ids...); err != nil {
		log.Warn("failed to mark commands as dispatched", "error", err)
		return
	}

	result.Dispatched = true
}

func (r *Runtime[I]) lockKey(correlationID models.ID) string {
	return "saga:" + r.machine.Name() + ":" + correlationID.String()
}

func unwrapPermanent(err error) error {
	var permanent *backoff.PermanentError
	if errors.As(err, &permanent) {
		return permanent.Unwrap()
	}
	return err
}
