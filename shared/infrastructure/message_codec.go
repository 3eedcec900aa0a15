package infrastructure

import (
	"encoding/json"
	"time"

	"github.com/draftea/saga-orchestrator/shared/events"
	"github.com/draftea/saga-orchestrator/shared/models"
	"github.com/pkg/errors"
)

const (
	SQSMessageIDKey     = "sqs_message_id"
	SQSReceiptHandleKey = "sqs_receipt_handle"

	topicAttribute = "topic"
)

// wireMessage is the JSON body published to SNS and received from SQS
type wireMessage struct {
	ID            string          `json:"id"`
	Topic         string          `json:"topic"`
	Version       string          `json:"version,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	CausationID   string          `json:"causation_id,omitempty"`
	Metadata      events.Metadata `json:"metadata,omitempty"`
	Payload       json.RawMessage `json:"payload"`
	Timestamp     time.Time       `json:"timestamp"`
}

// snsNotification is the envelope SNS adds when raw message delivery is off
type snsNotification struct {
	Type              string `json:"Type"`
	MessageID         string `json:"MessageId"`
	Message           string `json:"Message"`
	MessageAttributes map[string]struct {
		Type  string `json:"Type"`
		Value string `json:"Value"`
	} `json:"MessageAttributes"`
}

func encodeMessage(event *events.Event) ([]byte, error) {
	payload, err := event.MarshalPayload()
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal payload")
	}

	metadata := events.Metadata{}
	for k, v := range event.Metadata {
		if isTransportKey(k) {
			continue
		}
		metadata[k] = v
	}

	message := &wireMessage{
		ID:            event.ID.String(),
		Topic:         event.Topic.String(),
		Version:       event.Version,
		CorrelationID: event.CorrelationID.String(),
		CausationID:   event.CausationID.String(),
		Metadata:      metadata,
		Payload:       payload,
		Timestamp:     event.Timestamp,
	}

	body, err := json.Marshal(message)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal message")
	}

	return body, nil
}

// decodeMessage reads a message body, unwrapping the SNS notification
// envelope when present. The payload stays raw.
func decodeMessage(body []byte) (*events.Event, error) {
	var notification snsNotification
	if err := json.Unmarshal(body, &notification); err == nil && notification.Type == "Notification" {
		body = []byte(notification.Message)
	}

	var message wireMessage
	if err := json.Unmarshal(body, &message); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal message")
	}

	if message.Topic == "" {
		if attr, ok := notification.MessageAttributes[topicAttribute]; ok {
			message.Topic = attr.Value
		}
	}

	topic, err := events.NewTopic(message.Topic)
	if err != nil {
		return nil, err
	}

	if len(message.Payload) == 0 {
		return nil, events.ErrInvalidPayload
	}

	id, err := models.NewID(message.ID)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid message id %q", message.ID)
	}

	event := &events.Event{
		ID:            id,
		Topic:         topic,
		Version:       message.Version,
		Data:          message.Payload,
		Metadata:      message.Metadata,
		Timestamp:     message.Timestamp,
		CorrelationID: models.ID(message.CorrelationID),
		CausationID:   models.ID(message.CausationID),
	}

	if event.Metadata == nil {
		event.Metadata = make(events.Metadata)
	}

	return event, nil
}

func isTransportKey(key string) bool {
	return key == SQSMessageIDKey || key == SQSReceiptHandleKey
}
