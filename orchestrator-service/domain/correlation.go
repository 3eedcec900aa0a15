package domain

import (
	"github.com/draftea/saga-orchestrator/shared/events"
	"github.com/draftea/saga-orchestrator/shared/models"
	"github.com/draftea/saga-orchestrator/shared/saga"
)

// correlationRule extracts the raw correlation id of one inbound topic
type correlationRule struct {
	extract   func(event *events.Event) (string, error)
	canCreate bool
}

// Faults wrap the failed command, so their correlation id is read from the
// embedded message and never from the fault envelope.
var correlationRules = map[events.Topic]correlationRule{
	TopicUserDeletionTriggered: {extract: payloadCorrelationID, canCreate: true},
	TopicOperationSucceeded:    {extract: payloadCorrelationID},
	TopicProfileDeleteFaulted:  {extract: faultedMessageCorrelationID},
	TopicEmailSendFaulted:      {extract: faultedMessageCorrelationID},
}

// InboundTopics lists every topic the saga consumes
func InboundTopics() []events.Topic {
	return []events.Topic{
		TopicUserDeletionTriggered,
		TopicOperationSucceeded,
		TopicProfileDeleteFaulted,
		TopicEmailSendFaulted,
	}
}

// Correlate resolves the correlation id of an inbound event
func Correlate(event *events.Event) (saga.Correlation, error) {
	rule, ok := correlationRules[event.Topic]
	if !ok {
		return saga.Correlation{}, saga.NewRoutingError(event.Topic, "", "topic is not consumed by this saga")
	}

	raw, err := rule.extract(event)
	if err != nil {
		return saga.Correlation{}, saga.NewRoutingError(event.Topic, "", "unreadable payload: "+err.Error())
	}

	if raw == "" {
		return saga.Correlation{}, saga.NewRoutingError(event.Topic, "", "missing correlation id")
	}

	id, err := models.NewID(raw)
	if err != nil {
		return saga.Correlation{}, saga.NewRoutingError(event.Topic, raw, "malformed correlation id")
	}

	return saga.Correlation{
		CorrelationID: id,
		CanCreate:     rule.canCreate,
	}, nil
}

func payloadCorrelationID(event *events.Event) (string, error) {
	var payload struct {
		CorrelationID string `json:"correlation_id"`
	}
	if err := event.UnmarshalPayload(&payload); err != nil {
		return "", err
	}
	return payload.CorrelationID, nil
}

func faultedMessageCorrelationID(event *events.Event) (string, error) {
	var fault Fault
	if err := event.UnmarshalPayload(&fault); err != nil {
		return "", err
	}
	return fault.Message.CorrelationID, nil
}
