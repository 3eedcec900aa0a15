package domain

import (
	"github.com/draftea/saga-orchestrator/shared/events"
	"github.com/draftea/saga-orchestrator/shared/models"
	"github.com/draftea/saga-orchestrator/shared/saga"
)

var _ saga.StateMachine[*UserDeletionSaga] = (*UserDeletionMachine)(nil)

type transitionKey struct {
	state saga.State
	topic events.Topic
}

// transition is one row of the table. guard may be nil. action mutates the
// copy of the instance and returns the commands to emit.
type transition struct {
	guard  func(event *events.Event) (bool, error)
	action func(next *UserDeletionSaga, event *events.Event) ([]*events.Event, error)
	next   saga.State
}

// Pairs missing from the table are ignored.
var transitions = map[transitionKey]transition{
	{saga.StateInitial, TopicUserDeletionTriggered}: {
		action: startDeletion,
		next:   StateDeletingUserProfile,
	},
	{StateDeletingUserProfile, TopicProfileDeleteFaulted}: {
		action: compensate,
		next:   StateFailed,
	},
	{StateDeletingUserProfile, TopicOperationSucceeded}: {
		guard:  operationIs(OperationTypeProfileDelete),
		action: requestEmail,
		next:   StateSendingEmail,
	},
	{StateSendingEmail, TopicEmailSendFaulted}: {
		action: compensate,
		next:   StateFailed,
	},
	{StateSendingEmail, TopicOperationSucceeded}: {
		guard: operationIs(OperationTypeSendEmail),
		next:  StateFinished,
	},
}

// UserDeletionMachine is the state machine of the user deletion saga
type UserDeletionMachine struct{}

func NewUserDeletionMachine() *UserDeletionMachine {
	return &UserDeletionMachine{}
}

func (m *UserDeletionMachine) Name() string {
	return SagaName
}

func (m *UserDeletionMachine) Correlate(event *events.Event) (saga.Correlation, error) {
	return Correlate(event)
}

func (m *UserDeletionMachine) New(correlationID models.ID) *UserDeletionSaga {
	return NewUserDeletionSaga(correlationID)
}

func (m *UserDeletionMachine) IsTerminal(state saga.State) bool {
	return IsTerminalState(state)
}

// Transition applies the event to the instance. The instance itself is never
// modified; a changed outcome carries a new copy.
func (m *UserDeletionMachine) Transition(instance *UserDeletionSaga, event *events.Event) (saga.Outcome[*UserDeletionSaga], error) {
	unchanged := saga.Outcome[*UserDeletionSaga]{Instance: instance}

	if instance.IsTerminal() {
		return unchanged, nil
	}

	t, ok := transitions[transitionKey{state: instance.CurrentState, topic: event.Topic}]
	if !ok {
		return unchanged, nil
	}

	if t.guard != nil {
		pass, err := t.guard(event)
		if err != nil {
			return unchanged, saga.NewInvariantViolation(instance.CorrelationID, instance.CurrentState, err.Error())
		}
		if !pass {
			return unchanged, nil
		}
	}

	next := instance.Clone()

	var commands []*events.Event
	if t.action != nil {
		var err error
		commands, err = t.action(next, event)
		if err != nil {
			return unchanged, err
		}
	}

	next.CurrentState = t.next

	return saga.Outcome[*UserDeletionSaga]{
		Instance: next,
		Commands: commands,
		Changed:  true,
	}, nil
}

func operationIs(operationType OperationType) func(event *events.Event) (bool, error) {
	return func(event *events.Event) (bool, error) {
		var payload OperationSucceeded
		if err := event.UnmarshalPayload(&payload); err != nil {
			return false, err
		}
		return payload.OperationType == operationType, nil
	}
}

func startDeletion(next *UserDeletionSaga, event *events.Event) ([]*events.Event, error) {
	var payload UserDeletionTriggered
	if err := event.UnmarshalPayload(&payload); err != nil {
		return nil, saga.NewInvariantViolation(next.CorrelationID, next.CurrentState, "unreadable trigger payload: "+err.Error())
	}

	userID, err := models.NewID(payload.UserID)
	if err != nil {
		return nil, saga.NewInvariantViolation(next.CorrelationID, next.CurrentState, "trigger carries an invalid user id")
	}

	next.UserID = userID
	next.Email = payload.Email

	command := events.NewEvent(TopicProfileDeleteRequested, RequestProfileDeletion{
		CausationID:   event.ID,
		CorrelationID: next.CorrelationID,
		UserID:        next.UserID,
	}).WithCorrelationID(next.CorrelationID).WithCausationID(event.ID)

	return []*events.Event{command}, nil
}

func requestEmail(next *UserDeletionSaga, event *events.Event) ([]*events.Event, error) {
	if next.Email == "" {
		return nil, saga.NewInvariantViolation(next.CorrelationID, next.CurrentState, "no email recorded before the email step")
	}

	command := events.NewEvent(TopicEmailSendRequested, SendEmailRequest{
		CorrelationID: next.CorrelationID,
		CausationID:   event.ID,
		To:            next.Email,
		Subject:       DeletionEmailSubject,
		Body:          DeletionEmailBody,
	}).WithCorrelationID(next.CorrelationID).WithCausationID(event.ID)

	return []*events.Event{command}, nil
}

// compensate records the fault and asks the affected services to undo
// their part. The causation id is the id of the command that failed.
func compensate(next *UserDeletionSaga, event *events.Event) ([]*events.Event, error) {
	var fault Fault
	if err := event.UnmarshalPayload(&fault); err != nil {
		return nil, saga.NewInvariantViolation(next.CorrelationID, next.CurrentState, "unreadable fault payload: "+err.Error())
	}

	faultedID, err := models.NewID(fault.Message.ID.String())
	if err != nil {
		return nil, saga.NewInvariantViolation(next.CorrelationID, next.CurrentState, "invalid faulted message id: "+fault.Message.ID.String())
	}

	next.Error = NewFaultDetail(fault)

	command := events.NewEvent(TopicUserDeletionFailed, DeletionFailed{
		CausationID:   faultedID,
		CorrelationID: next.CorrelationID,
		UserID:        next.UserID,
		Services:      NewServiceSet(ServiceTypeAuthentication),
	}).WithCorrelationID(next.CorrelationID).WithCausationID(faultedID)

	return []*events.Event{command}, nil
}
