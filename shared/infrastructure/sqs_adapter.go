package infrastructure

import (
	"context"
	"sync"

	"github.com/draftea/saga-orchestrator/shared/events"
	"github.com/pkg/errors"
)

var _ events.Subscriber = (*SQSSubscriberAdapter)(nil)

// SQSSubscriberAdapter adapts SQSEventSubscriber to the events.Subscriber interface
type SQSSubscriberAdapter struct {
	mux           sync.Mutex
	client        SQSAPI
	queueURL      string
	handlerID     string
	opts          []SQSSubscriberOption
	sqsSubscriber *SQSEventSubscriber
}

// NewSQSSubscriberAdapter creates a new SQS subscriber adapter
func NewSQSSubscriberAdapter(client SQSAPI, queueURL, handlerID string, opts ...SQSSubscriberOption) *SQSSubscriberAdapter {
	return &SQSSubscriberAdapter{
		client:    client,
		queueURL:  queueURL,
		handlerID: handlerID,
		opts:      opts,
	}
}

// eventHandlerAdapter gives an events.EventHandler the id the SQS subscriber expects
type eventHandlerAdapter struct {
	id      string
	handler events.EventHandler
}

func (a *eventHandlerAdapter) HandlerID() string {
	return a.id
}

func (a *eventHandlerAdapter) Handle(ctx context.Context, event *events.Event) error {
	return a.handler.Handle(ctx, event)
}

// Subscribe starts consuming the queue with the given handler
func (s *SQSSubscriberAdapter) Subscribe(ctx context.Context, handler events.EventHandler) error {
	s.mux.Lock()
	defer s.mux.Unlock()

	if s.sqsSubscriber != nil {
		return errors.New("subscriber is already running")
	}

	var adapted EventHandler
	if h, ok := handler.(EventHandler); ok {
		adapted = h
	} else {
		adapted = &eventHandlerAdapter{id: s.handlerID, handler: handler}
	}

	subscriber := NewSQSEventSubscriber(s.client, s.queueURL, adapted, s.opts...)
	if err := subscriber.Start(ctx); err != nil {
		return errors.Wrap(err, "failed to start SQS subscriber")
	}

	s.sqsSubscriber = subscriber
	return nil
}

// Close stops the subscriber
func (s *SQSSubscriberAdapter) Close(ctx context.Context) error {
	s.mux.Lock()
	defer s.mux.Unlock()

	if s.sqsSubscriber == nil {
		return nil
	}

	if err := s.sqsSubscriber.Stop(ctx); err != nil {
		return errors.Wrap(err, "failed to stop SQS subscriber")
	}

	s.sqsSubscriber = nil
	return nil
}
