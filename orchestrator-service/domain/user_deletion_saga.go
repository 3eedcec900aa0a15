package domain

import (
	"strings"
	"time"

	"github.com/draftea/saga-orchestrator/shared/models"
	"github.com/draftea/saga-orchestrator/shared/saga"
)

const SagaName = "user-deletion"

const (
	StateDeletingUserProfile saga.State = "DeletingUserProfile"
	StateSendingEmail        saga.State = "SendingEmail"
	StateFinished            saga.State = "Finished"
	StateFailed              saga.State = "Failed"
)

var _ saga.Instance = (*UserDeletionSaga)(nil)

// UserDeletionSaga tracks the deletion of one user account
type UserDeletionSaga struct {
	CorrelationID models.ID
	CurrentState  saga.State
	UserID        models.ID
	Email         string
	Error         *FaultDetail
	Version       models.Version
	models.Timestamps
}

// FaultDetail is the error recorded when the saga fails
type FaultDetail struct {
	FaultedMessageID models.ID       `json:"faulted_message_id"`
	Message          string          `json:"message"`
	Code             string          `json:"code,omitempty"`
	Exceptions       []ExceptionInfo `json:"exceptions"`
	OccurredAt       time.Time       `json:"occurred_at"`
}

// NewFaultDetail builds the persisted error of a fault
func NewFaultDetail(fault Fault) *FaultDetail {
	messages := make([]string, 0, len(fault.Exceptions))
	for _, e := range fault.Exceptions {
		if e.Message != "" {
			messages = append(messages, e.Message)
		}
	}

	occurredAt := fault.Timestamp
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}

	return &FaultDetail{
		FaultedMessageID: fault.Message.ID,
		Message:          strings.Join(messages, "; "),
		Code:             fault.Code,
		Exceptions:       fault.Exceptions,
		OccurredAt:       occurredAt,
	}
}

// NewUserDeletionSaga returns an instance that was never persisted
func NewUserDeletionSaga(correlationID models.ID) *UserDeletionSaga {
	return &UserDeletionSaga{
		CorrelationID: correlationID,
		CurrentState:  saga.StateInitial,
		Timestamps:    models.NewTimestamps(),
	}
}

func (s *UserDeletionSaga) SagaID() models.ID {
	return s.CorrelationID
}

func (s *UserDeletionSaga) SagaState() saga.State {
	return s.CurrentState
}

func (s *UserDeletionSaga) SagaVersion() int {
	return s.Version.Value
}

// IsTerminal reports whether the saga reached Finished or Failed
func (s *UserDeletionSaga) IsTerminal() bool {
	return IsTerminalState(s.CurrentState)
}

func IsTerminalState(state saga.State) bool {
	return state == StateFinished || state == StateFailed
}

// Clone returns a copy that can be mutated without touching the receiver
func (s *UserDeletionSaga) Clone() *UserDeletionSaga {
	clone := *s
	if s.Error != nil {
		detail := *s.Error
		detail.Exceptions = append([]ExceptionInfo(nil), s.Error.Exceptions...)
		clone.Error = &detail
	}
	return &clone
}
