package application

import (
	"context"
	"time"

	"github.com/draftea/saga-orchestrator/orchestrator-service/domain"
	"github.com/draftea/saga-orchestrator/shared/events"
	"github.com/draftea/saga-orchestrator/shared/saga"
	"github.com/draftea/saga-orchestrator/shared/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ProcessSagaEvent use case feeds inbound events to the user deletion saga
type ProcessSagaEvent struct {
	runtime *saga.Runtime[*domain.UserDeletionSaga]
}

// NewProcessSagaEvent creates a new ProcessSagaEvent use case
func NewProcessSagaEvent(
	repository domain.SagaRepository,
	publisher events.Publisher,
	opts ...saga.RuntimeOption,
) *ProcessSagaEvent {
	return &ProcessSagaEvent{
		runtime: saga.NewRuntime[*domain.UserDeletionSaga](
			domain.NewUserDeletionMachine(),
			repository,
			publisher,
			opts...,
		),
	}
}

// Execute runs one unit of work for the event. A returned error means the
// event was not applied and must be redelivered.
func (uc *ProcessSagaEvent) Execute(ctx context.Context, event *events.Event) error {
	start := time.Now()
	ctx, span := telemetry.StartSpan(ctx, "process_saga_event",
		trace.WithAttributes(
			attribute.String("saga", domain.SagaName),
			attribute.String("topic", event.Topic.String()),
			attribute.String("event_id", event.ID.String()),
		),
	)
	defer span.End()

	status := "error"
	defer func() {
		telemetry.RecordHistogram(ctx, "saga_unit_of_work_duration_seconds", "Saga unit of work duration", time.Since(start).Seconds(),
			attribute.String("saga", domain.SagaName),
			attribute.String("topic", event.Topic.String()),
			attribute.String("status", status),
		)
	}()

	result, err := uc.runtime.Handle(ctx, event)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	span.SetAttributes(
		attribute.String("correlation_id", result.CorrelationID.String()),
		attribute.String("disposition", string(result.Disposition)),
		attribute.Int("attempts", result.Attempts),
		attribute.Int("version", result.Version),
	)

	if result.Attempts > 1 {
		telemetry.RecordCounter(ctx, "saga_conflicts_total", "Concurrency conflicts retried by the saga runtime", int64(result.Attempts-1),
			attribute.String("saga", domain.SagaName),
		)
	}

	switch result.Disposition {
	case saga.DispositionTransitioned:
		telemetry.RecordCounter(ctx, "saga_transitions_total", "Accepted saga transitions", 1,
			attribute.String("saga", domain.SagaName),
			attribute.String("from", result.From.String()),
			attribute.String("to", result.To.String()),
		)
	case saga.DispositionIgnored, saga.DispositionDropped:
		telemetry.RecordCounter(ctx, "saga_events_ignored_total", "Events that did not change any saga", 1,
			attribute.String("saga", domain.SagaName),
			attribute.String("topic", event.Topic.String()),
			attribute.String("disposition", string(result.Disposition)),
		)
	}

	status = string(result.Disposition)
	return nil
}
