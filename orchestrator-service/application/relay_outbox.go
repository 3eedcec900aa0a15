package application

import (
	"context"
	"time"

	"github.com/draftea/saga-orchestrator/orchestrator-service/domain"
	"github.com/draftea/saga-orchestrator/shared/events"
	"github.com/draftea/saga-orchestrator/shared/logger"
	"github.com/draftea/saga-orchestrator/shared/models"
	"github.com/draftea/saga-orchestrator/shared/saga"
	"github.com/draftea/saga-orchestrator/shared/telemetry"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
)

// RelayOutboxConfig controls how the outbox is drained
type RelayOutboxConfig struct {
	Interval  time.Duration
	BatchSize int
	// MinAge keeps the relay away from commands the runtime is still
	// dispatching itself.
	MinAge time.Duration
}

// RelayOutbox use case republishes committed commands whose dispatch failed
type RelayOutbox struct {
	outbox    saga.Outbox
	publisher events.Publisher
	config    RelayOutboxConfig
	logger    *logger.Logger
	now       func() time.Time
}

// NewRelayOutbox creates a new RelayOutbox use case
func NewRelayOutbox(outbox saga.Outbox, publisher events.Publisher, config RelayOutboxConfig, log *logger.Logger) *RelayOutbox {
	if config.Interval <= 0 {
		config.Interval = 5 * time.Second
	}
	if config.BatchSize <= 0 {
		config.BatchSize = 100
	}
	if log == nil {
		log = logger.NewNop()
	}

	return &RelayOutbox{
		outbox:    outbox,
		publisher: publisher,
		config:    config,
		logger:    log,
		now:       time.Now,
	}
}

// Execute runs a single relay pass and returns how many commands were published
func (uc *RelayOutbox) Execute(ctx context.Context) (int, error) {
	ctx, span := telemetry.StartSpan(ctx, "relay_outbox")
	defer span.End()

	pending, err := uc.outbox.Pending(ctx, uc.now().Add(-uc.config.MinAge), uc.config.BatchSize)
	if err != nil {
		span.RecordError(err)
		return 0, errors.Wrap(err, "failed to load pending outbox messages")
	}

	span.SetAttributes(attribute.Int("pending", len(pending)))
	if len(pending) == 0 {
		return 0, nil
	}

	dispatched := make([]models.ID, 0, len(pending))
	var publishErr error
	for _, command := range pending {
		if err := uc.publisher.Publish(ctx, command); err != nil {
			uc.logger.Warn("failed to relay outbox message",
				"id", command.ID,
				"topic", command.Topic,
				"correlation_id", command.CorrelationID,
				"error", err,
			)
			if publishErr == nil {
				publishErr = errors.Wrapf(err, "failed to relay outbox message %s", command.ID)
			}
			continue
		}
		dispatched = append(dispatched, command.ID)
	}

	if len(dispatched) > 0 {
		if err := uc.outbox.MarkDispatched(ctx, dispatched...); err != nil {
			span.RecordError(err)
			return 0, errors.Wrap(err, "failed to mark relayed messages as dispatched")
		}

		telemetry.RecordCounter(ctx, "saga_outbox_dispatched_total", "Outbox messages published by the relay", int64(len(dispatched)),
			attribute.String("saga", domain.SagaName),
		)
	}

	uc.logger.Info("outbox relay pass finished", "pending", len(pending), "dispatched", len(dispatched))

	if publishErr != nil {
		span.RecordError(publishErr)
	}

	return len(dispatched), publishErr
}

// Run relays the outbox every interval until the context is cancelled
func (uc *RelayOutbox) Run(ctx context.Context) error {
	ticker := time.NewTicker(uc.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := uc.Execute(ctx); err != nil && ctx.Err() == nil {
				uc.logger.Error("outbox relay pass failed", "error", err)
			}
		}
	}
}
