package domain

import (
	"testing"
	"time"

	"github.com/draftea/saga-orchestrator/shared/events"
	"github.com/draftea/saga-orchestrator/shared/models"
	"github.com/draftea/saga-orchestrator/shared/saga"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testCorrelationID = models.ID("7b6f0a52-3a87-4e8e-9d8a-1f5f8a0e2c11")
	testUserID        = models.ID("0d1c6c0e-52a4-4f4b-8f0e-6b2a1d9e4b77")
	testCommandID     = models.ID("c2a7e5c4-8f1d-4d8c-a3c3-5e0b7e6f9d20")
)

func triggerEvent() *events.Event {
	return events.NewEvent(TopicUserDeletionTriggered, UserDeletionTriggered{
		CorrelationID: testCorrelationID.String(),
		UserID:        testUserID.String(),
		Email:         "a@b.com",
	})
}

func succeededEvent(operationType OperationType) *events.Event {
	return events.NewEvent(TopicOperationSucceeded, OperationSucceeded{
		CorrelationID: testCorrelationID.String(),
		OperationType: operationType,
	})
}

func faultEvent(topic events.Topic) *events.Event {
	return events.NewEvent(topic, Fault{
		Message: FaultedMessage{
			ID:            testCommandID,
			CorrelationID: testCorrelationID.String(),
		},
		Exceptions: []ExceptionInfo{
			{Type: "System.Exception", Message: "Simulated failure", StackTrace: "at Consumer.Consume()"},
		},
		Code:      "500",
		Timestamp: time.Date(2025, 7, 27, 18, 23, 21, 0, time.UTC),
	})
}

func sagaIn(state saga.State) *UserDeletionSaga {
	s := NewUserDeletionSaga(testCorrelationID)
	s.CurrentState = state
	s.UserID = testUserID
	s.Email = "a@b.com"
	s.Version = models.Version{Value: 1}
	return s
}

func TestUserDeletionMachine_Transition(t *testing.T) {
	tests := []struct {
		name          string
		state         saga.State
		event         *events.Event
		wantChanged   bool
		wantState     saga.State
		wantTopic     events.Topic
		assertCommand func(t *testing.T, inbound, command *events.Event)
	}{
		{
			name:        "trigger starts profile deletion",
			state:       saga.StateInitial,
			event:       triggerEvent(),
			wantChanged: true,
			wantState:   StateDeletingUserProfile,
			wantTopic:   TopicProfileDeleteRequested,
			assertCommand: func(t *testing.T, inbound, command *events.Event) {
				var payload RequestProfileDeletion
				require.NoError(t, command.UnmarshalPayload(&payload))
				assert.Equal(t, testCorrelationID, payload.CorrelationID)
				assert.Equal(t, testUserID, payload.UserID)
				assert.Equal(t, inbound.ID, payload.CausationID)
				assert.Equal(t, inbound.ID, command.CausationID)
			},
		},
		{
			name:        "profile deletion fault fails the saga",
			state:       StateDeletingUserProfile,
			event:       faultEvent(TopicProfileDeleteFaulted),
			wantChanged: true,
			wantState:   StateFailed,
			wantTopic:   TopicUserDeletionFailed,
			assertCommand: func(t *testing.T, _, command *events.Event) {
				var payload DeletionFailed
				require.NoError(t, command.UnmarshalPayload(&payload))
				assert.Equal(t, testCommandID, payload.CausationID)
				assert.Equal(t, testUserID, payload.UserID)
				assert.Equal(t, []ServiceType{ServiceTypeAuthentication}, payload.Services)
			},
		},
		{
			name:        "profile deletion success requests the email",
			state:       StateDeletingUserProfile,
			event:       succeededEvent(OperationTypeProfileDelete),
			wantChanged: true,
			wantState:   StateSendingEmail,
			wantTopic:   TopicEmailSendRequested,
			assertCommand: func(t *testing.T, inbound, command *events.Event) {
				var payload SendEmailRequest
				require.NoError(t, command.UnmarshalPayload(&payload))
				assert.Equal(t, "a@b.com", payload.To)
				assert.Equal(t, DeletionEmailSubject, payload.Subject)
				assert.Equal(t, DeletionEmailBody, payload.Body)
				assert.Equal(t, inbound.ID, payload.CausationID)
			},
		},
		{
			name:        "email fault fails the saga with a single compensation target",
			state:       StateSendingEmail,
			event:       faultEvent(TopicEmailSendFaulted),
			wantChanged: true,
			wantState:   StateFailed,
			wantTopic:   TopicUserDeletionFailed,
			assertCommand: func(t *testing.T, _, command *events.Event) {
				var payload DeletionFailed
				require.NoError(t, command.UnmarshalPayload(&payload))
				assert.Equal(t, []ServiceType{ServiceTypeAuthentication}, payload.Services)
			},
		},
		{
			name:        "email success finishes the saga",
			state:       StateSendingEmail,
			event:       succeededEvent(OperationTypeSendEmail),
			wantChanged: true,
			wantState:   StateFinished,
		},
		{
			name:      "email success while deleting the profile is ignored",
			state:     StateDeletingUserProfile,
			event:     succeededEvent(OperationTypeSendEmail),
			wantState: StateDeletingUserProfile,
		},
		{
			name:      "profile success while sending the email is ignored",
			state:     StateSendingEmail,
			event:     succeededEvent(OperationTypeProfileDelete),
			wantState: StateSendingEmail,
		},
	}

	machine := NewUserDeletionMachine()

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			instance := sagaIn(tt.state)
			before := instance.Clone()

			outcome, err := machine.Transition(instance, tt.event)

			require.NoError(t, err)
			assert.Equal(t, before, instance, "input instance must not be mutated")
			assert.Equal(t, tt.wantChanged, outcome.Changed)
			assert.Equal(t, tt.wantState, outcome.Instance.CurrentState)

			if tt.wantTopic == "" {
				assert.Empty(t, outcome.Commands)
				return
			}

			require.Len(t, outcome.Commands, 1)
			command := outcome.Commands[0]
			assert.Equal(t, tt.wantTopic, command.Topic)
			assert.Equal(t, testCorrelationID, command.CorrelationID)
			if tt.assertCommand != nil {
				tt.assertCommand(t, tt.event, command)
			}
		})
	}
}

func TestUserDeletionMachine_Transition_IgnoresEveryPairOutsideTheTable(t *testing.T) {
	states := []saga.State{
		saga.StateInitial,
		StateDeletingUserProfile,
		StateSendingEmail,
		StateFinished,
		StateFailed,
	}

	inbound := map[string]*events.Event{
		"trigger":           triggerEvent(),
		"profile succeeded": succeededEvent(OperationTypeProfileDelete),
		"email succeeded":   succeededEvent(OperationTypeSendEmail),
		"profile faulted":   faultEvent(TopicProfileDeleteFaulted),
		"email faulted":     faultEvent(TopicEmailSendFaulted),
	}

	accepted := map[saga.State]map[string]bool{
		saga.StateInitial:        {"trigger": true},
		StateDeletingUserProfile: {"profile succeeded": true, "profile faulted": true},
		StateSendingEmail:        {"email succeeded": true, "email faulted": true},
	}

	machine := NewUserDeletionMachine()

	for _, state := range states {
		for name, event := range inbound {
			if accepted[state][name] {
				continue
			}

			t.Run(string(state)+"/"+name, func(t *testing.T) {
				instance := sagaIn(state)

				outcome, err := machine.Transition(instance, event)

				require.NoError(t, err)
				assert.False(t, outcome.Changed)
				assert.Same(t, instance, outcome.Instance)
				assert.Equal(t, state, outcome.Instance.CurrentState)
				assert.Empty(t, outcome.Commands)
			})
		}
	}
}

func TestUserDeletionMachine_Transition_RecordsFaultDetail(t *testing.T) {
	outcome, err := NewUserDeletionMachine().Transition(sagaIn(StateDeletingUserProfile), faultEvent(TopicProfileDeleteFaulted))

	require.NoError(t, err)
	require.NotNil(t, outcome.Instance.Error)
	assert.Equal(t, "Simulated failure", outcome.Instance.Error.Message)
	assert.Equal(t, "500", outcome.Instance.Error.Code)
	assert.Equal(t, testCommandID, outcome.Instance.Error.FaultedMessageID)
	assert.Len(t, outcome.Instance.Error.Exceptions, 1)
}

func TestUserDeletionMachine_Transition_InvariantViolations(t *testing.T) {
	tests := []struct {
		name    string
		saga    func() *UserDeletionSaga
		event   *events.Event
		wantErr string
	}{
		{
			name: "email step without an email",
			saga: func() *UserDeletionSaga {
				s := sagaIn(StateDeletingUserProfile)
				s.Email = ""
				return s
			},
			event:   succeededEvent(OperationTypeProfileDelete),
			wantErr: "no email recorded",
		},
		{
			name: "trigger with an invalid user id",
			saga: func() *UserDeletionSaga {
				return NewUserDeletionSaga(testCorrelationID)
			},
			event: events.NewEvent(TopicUserDeletionTriggered, UserDeletionTriggered{
				CorrelationID: testCorrelationID.String(),
				UserID:        "nope",
			}),
			wantErr: "invalid user id",
		},
		{
			name: "fault for a message without a valid id",
			saga: func() *UserDeletionSaga {
				return sagaIn(StateSendingEmail)
			},
			event: events.NewEvent(TopicEmailSendFaulted, Fault{
				Message: FaultedMessage{ID: "msg-1", CorrelationID: testCorrelationID.String()},
				Code:    "500",
			}),
			wantErr: "invalid faulted message id",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			instance := tt.saga()
			before := instance.Clone()

			_, err := NewUserDeletionMachine().Transition(instance, tt.event)

			require.Error(t, err)
			assert.True(t, saga.IsInvariantViolation(err))
			assert.Contains(t, err.Error(), tt.wantErr)
			assert.Equal(t, before, instance)
		})
	}
}

func TestUserDeletionMachine_ScenarioWalkthrough(t *testing.T) {
	machine := NewUserDeletionMachine()

	// A: trigger
	outcome, err := machine.Transition(machine.New(testCorrelationID), triggerEvent())
	require.NoError(t, err)
	assert.Equal(t, StateDeletingUserProfile, outcome.Instance.CurrentState)
	assert.Equal(t, testUserID, outcome.Instance.UserID)
	assert.Equal(t, "a@b.com", outcome.Instance.Email)

	// E: guard mismatch
	ignored, err := machine.Transition(outcome.Instance, succeededEvent(OperationTypeSendEmail))
	require.NoError(t, err)
	assert.False(t, ignored.Changed)

	// C: profile deleted
	outcome, err = machine.Transition(outcome.Instance, succeededEvent(OperationTypeProfileDelete))
	require.NoError(t, err)
	assert.Equal(t, StateSendingEmail, outcome.Instance.CurrentState)

	// D: email sent
	outcome, err = machine.Transition(outcome.Instance, succeededEvent(OperationTypeSendEmail))
	require.NoError(t, err)
	assert.Equal(t, StateFinished, outcome.Instance.CurrentState)
	assert.Empty(t, outcome.Commands)
	assert.Nil(t, outcome.Instance.Error)
}

func TestNewServiceSet(t *testing.T) {
	billing := ServiceType("BillingService")
	set := NewServiceSet(billing, ServiceTypeAuthentication, billing, ServiceTypeAuthentication)

	assert.Equal(t, []ServiceType{ServiceTypeAuthentication, billing}, set)
}
