// Package saga hosts the orchestration engine contract: a durable state
// machine keyed by correlation id, persisted together with the commands each
// transition emits.
package saga

import (
	"context"
	"time"

	"github.com/draftea/saga-orchestrator/shared/events"
	"github.com/draftea/saga-orchestrator/shared/models"
)

// State is the current position of a saga instance in its state machine
type State string

// StateInitial is the implicit state of an instance that was never persisted
const StateInitial State = "Initial"

func (s State) String() string {
	return string(s)
}

// Instance is the persisted aggregate of one saga
type Instance interface {
	SagaID() models.ID
	SagaState() State
	SagaVersion() int
}

// Correlation is the result of routing an inbound event
type Correlation struct {
	CorrelationID models.ID
	// CanCreate reports whether the event is a legal creation trigger
	CanCreate bool
}

// Outcome is what a transition produced. Changed is false for the no-op rows
// of a transition table, in which case Commands is always empty.
type Outcome[I Instance] struct {
	Instance I
	Commands []*events.Event
	Changed  bool
}

// StateMachine describes one saga type
type StateMachine[I Instance] interface {
	Name() string
	Correlate(event *events.Event) (Correlation, error)
	New(correlationID models.ID) I
	Transition(instance I, event *events.Event) (Outcome[I], error)
	IsTerminal(state State) bool
}

// Outbox stores commands that were committed with a transition until they
// are published
type Outbox interface {
	Pending(ctx context.Context, createdBefore time.Time, limit int) ([]*events.Event, error)
	MarkDispatched(ctx context.Context, ids ...models.ID) error
}

// Repository persists saga instances. Save inserts new instances (version 0)
// and updates existing ones with a compare-and-swap on the version; the
// commands are written to the outbox in the same transaction. A lost race
// is reported as ErrConcurrencyConflict.
type Repository[I Instance] interface {
	Outbox
	Find(ctx context.Context, correlationID models.ID) (I, error)
	Save(ctx context.Context, instance I, commands []*events.Event) error
}

// ReleaseFunc releases a lock obtained from a Locker
type ReleaseFunc func(ctx context.Context) error

// Locker serializes units of work on the same key
type Locker interface {
	Lock(ctx context.Context, key string) (ReleaseFunc, error)
}

// Disposition summarizes what the runtime did with an event
type Disposition string

const (
	DispositionTransitioned Disposition = "transitioned"
	DispositionIgnored      Disposition = "ignored"
	DispositionDropped      Disposition = "dropped"
)

// Result describes the handling of a single inbound event. Version is the
// stored version of the instance after the unit of work.
type Result struct {
	Saga          string
	Topic         events.Topic
	CorrelationID models.ID
	Disposition   Disposition
	From          State
	To            State
	Commands      []*events.Event
	Version       int
	Attempts      int
	Dispatched    bool
}
