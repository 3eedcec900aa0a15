package handlers

import (
	"context"

	"github.com/draftea/saga-orchestrator/orchestrator-service/application"
	"github.com/draftea/saga-orchestrator/orchestrator-service/domain"
	"github.com/draftea/saga-orchestrator/shared/events"
	"github.com/draftea/saga-orchestrator/shared/logger"
)

const SagaEventHandlerID = "user-deletion-saga-handler"

type topicHandler func(ctx context.Context, event *events.Event) error

// SagaEventHandlers routes inbound topics to the saga use cases
type SagaEventHandlers struct {
	processSagaEvent *application.ProcessSagaEvent
	routes           map[events.Topic]topicHandler
	logger           *logger.Logger
}

// NewSagaEventHandlers creates new saga event handlers
func NewSagaEventHandlers(processSagaEvent *application.ProcessSagaEvent, log *logger.Logger) *SagaEventHandlers {
	if log == nil {
		log = logger.NewNop()
	}

	h := &SagaEventHandlers{
		processSagaEvent: processSagaEvent,
		logger:           log,
	}

	h.routes = map[events.Topic]topicHandler{
		domain.TopicUserDeletionTriggered: h.processSagaEvent.Execute,
		domain.TopicOperationSucceeded:    h.processSagaEvent.Execute,
		domain.TopicProfileDeleteFaulted:  h.processSagaEvent.Execute,
		domain.TopicEmailSendFaulted:      h.processSagaEvent.Execute,
	}

	return h
}

// Handle implements the events.EventHandler interface
func (h *SagaEventHandlers) Handle(ctx context.Context, event *events.Event) error {
	handle, ok := h.routes[event.Topic]
	if !ok {
		h.logger.Warn("no handler for topic, dropping event", "topic", event.Topic, "event_id", event.ID)
		return nil
	}

	return handle(ctx, event)
}

// HandlerID returns the unique identifier for this event handler
func (h *SagaEventHandlers) HandlerID() string {
	return SagaEventHandlerID
}

// Topics lists the topics this handler accepts
func (h *SagaEventHandlers) Topics() []events.Topic {
	topics := make([]events.Topic, 0, len(h.routes))
	for _, topic := range domain.InboundTopics() {
		if _, ok := h.routes[topic]; ok {
			topics = append(topics, topic)
		}
	}
	return topics
}
