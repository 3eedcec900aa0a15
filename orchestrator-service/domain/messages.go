package domain

import (
	"sort"
	"time"

	"github.com/draftea/saga-orchestrator/shared/events"
	"github.com/draftea/saga-orchestrator/shared/models"
)

// Inbound topics
const (
	TopicUserDeletionTriggered events.Topic = "user.deletion.triggered"
	TopicOperationSucceeded    events.Topic = "operation.succeeded"
	TopicProfileDeleteFaulted  events.Topic = "user.profile.delete.faulted"
	TopicEmailSendFaulted      events.Topic = "email.send.faulted"
)

// Outbound topics
const (
	TopicProfileDeleteRequested events.Topic = "user.profile.delete.requested"
	TopicEmailSendRequested     events.Topic = "email.send.requested"
	TopicUserDeletionFailed     events.Topic = "user.deletion.failed"
)

const (
	DeletionEmailSubject = "Account Deletion"
	DeletionEmailBody    = "Your account has been deleted."
)

// OperationType tells which downstream call an operation.succeeded event reports
type OperationType string

const (
	OperationTypeProfileDelete OperationType = "ProfileDelete"
	OperationTypeSendEmail     OperationType = "SendEmail"
)

// ServiceType identifies a downstream service that must compensate
type ServiceType string

const ServiceTypeAuthentication ServiceType = "AuthenticationService"

// NewServiceSet returns the given services without duplicates, in a stable order
func NewServiceSet(services ...ServiceType) []ServiceType {
	seen := make(map[ServiceType]struct{}, len(services))
	set := make([]ServiceType, 0, len(services))
	for _, s := range services {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		set = append(set, s)
	}
	sort.Slice(set, func(i, j int) bool { return set[i] < set[j] })
	return set
}

// UserDeletionTriggered starts a deletion
type UserDeletionTriggered struct {
	CorrelationID string `json:"correlation_id"`
	UserID        string `json:"user_id"`
	Email         string `json:"email"`
}

// OperationSucceeded is the generic success notification of downstream services
type OperationSucceeded struct {
	CorrelationID string        `json:"correlation_id"`
	OperationType OperationType `json:"operation_type"`
}

// FaultedMessage is the command a downstream service failed to process
type FaultedMessage struct {
	ID            models.ID `json:"id"`
	CorrelationID string    `json:"correlation_id"`
}

type ExceptionInfo struct {
	Type       string `json:"type"`
	Message    string `json:"message"`
	StackTrace string `json:"stack_trace,omitempty"`
}

// Fault wraps a failed command together with what went wrong
type Fault struct {
	Message    FaultedMessage  `json:"message"`
	Exceptions []ExceptionInfo `json:"exceptions"`
	Code       string          `json:"code,omitempty"`
	Timestamp  time.Time       `json:"timestamp"`
}

// RequestProfileDeletion asks the profile service to delete the user profile
type RequestProfileDeletion struct {
	CausationID   models.ID `json:"causation_id"`
	CorrelationID models.ID `json:"correlation_id"`
	UserID        models.ID `json:"user_id"`
}

// SendEmailRequest asks the email service to notify the user
type SendEmailRequest struct {
	CorrelationID models.ID `json:"correlation_id"`
	CausationID   models.ID `json:"causation_id"`
	To            string    `json:"to"`
	Subject       string    `json:"subject"`
	Body          string    `json:"body"`
}

// DeletionFailed is the compensation command
type DeletionFailed struct {
	CausationID   models.ID     `json:"causation_id"`
	CorrelationID models.ID     `json:"correlation_id"`
	UserID        models.ID     `json:"user_id"`
	Services      []ServiceType `json:"services"`
}
