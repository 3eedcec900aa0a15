package saga

import (
	"fmt"

	"github.com/draftea/saga-orchestrator/shared/events"
	"github.com/draftea/saga-orchestrator/shared/models"
	"github.com/pkg/errors"
)

var (
	ErrConcurrencyConflict = errors.New("saga: concurrency conflict")
	ErrInstanceNotFound    = errors.New("saga: instance not found")
)

// RoutingError reports an event that cannot be mapped to a saga instance.
// Such events are dropped.
type RoutingError struct {
	Topic         events.Topic
	CorrelationID string
	Reason        string
}

func NewRoutingError(topic events.Topic, correlationID string, reason string) *RoutingError {
	return &RoutingError{
		Topic:         topic,
		CorrelationID: correlationID,
		Reason:        reason,
	}
}

func (e *RoutingError) Error() string {
	if e.CorrelationID == "" {
		return fmt.Sprintf("saga routing: topic %s: %s", e.Topic, e.Reason)
	}
	return fmt.Sprintf("saga routing: topic %s, correlation id %q: %s", e.Topic, e.CorrelationID, e.Reason)
}

func IsRoutingError(err error) bool {
	var target *RoutingError
	return errors.As(err, &target)
}

// InvariantViolation reports a broken contract between the saga and the
// events feeding it. The unit of work is aborted and nothing is committed.
type InvariantViolation struct {
	CorrelationID models.ID
	State         State
	Reason        string
}

func NewInvariantViolation(correlationID models.ID, state State, reason string) *InvariantViolation {
	return &InvariantViolation{
		CorrelationID: correlationID,
		State:         state,
		Reason:        reason,
	}
}

func (e *InvariantViolation) Error() string {
	return fmt.Sprintf("saga invariant violated: instance %s in state %s: %s", e.CorrelationID, e.State, e.Reason)
}

func IsInvariantViolation(err error) bool {
	var target *InvariantViolation
	return errors.As(err, &target)
}
