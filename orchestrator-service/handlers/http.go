package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/draftea/saga-orchestrator/orchestrator-service/application"
	"github.com/draftea/saga-orchestrator/shared/events"
	"github.com/draftea/saga-orchestrator/shared/models"
	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
)

// SagaHandlers contains saga HTTP handlers
type SagaHandlers struct {
	getSaga *application.GetSaga
	// events is only set when inbound events may be posted over HTTP
	events events.EventHandler
}

// NewSagaHandlers creates new saga handlers. A nil event handler disables
// the event intake route.
func NewSagaHandlers(getSaga *application.GetSaga, eventHandler events.EventHandler) *SagaHandlers {
	return &SagaHandlers{
		getSaga: getSaga,
		events:  eventHandler,
	}
}

// GetSaga handles saga retrieval requests
func (h *SagaHandlers) GetSaga(w http.ResponseWriter, r *http.Request) {
	query := &application.GetSagaQuery{
		CorrelationID: chi.URLParam(r, "correlation_id"),
	}

	response, err := h.getSaga.Execute(r.Context(), query)
	if err != nil {
		switch {
		case errors.Is(err, application.ErrInvalidCorrelation):
			http.Error(w, err.Error(), http.StatusBadRequest)
		case errors.Is(err, application.ErrSagaNotFound):
			http.Error(w, err.Error(), http.StatusNotFound)
		default:
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// PostEventRequest is an inbound event envelope posted over HTTP
type PostEventRequest struct {
	ID            string            `json:"id"`
	Topic         string            `json:"topic"`
	Payload       json.RawMessage   `json:"payload"`
	Metadata      map[string]string `json:"metadata"`
	CorrelationID string            `json:"correlation_id"`
}

// PostEvent feeds one event envelope to the saga, as the queue consumer would
func (h *SagaHandlers) PostEvent(w http.ResponseWriter, r *http.Request) {
	var req PostEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	topic, err := events.NewTopic(req.Topic)
	if err != nil || len(req.Payload) == 0 {
		http.Error(w, "Topic and payload are required", http.StatusBadRequest)
		return
	}

	event := events.NewEvent(topic, req.Payload)
	if req.ID != "" {
		id, err := models.NewID(req.ID)
		if err != nil {
			http.Error(w, "Invalid event ID", http.StatusBadRequest)
			return
		}
		event.ID = id
	}
	if req.CorrelationID != "" {
		event.CorrelationID = models.ID(req.CorrelationID)
	}
	for key, value := range req.Metadata {
		event.WithMetadata(key, value)
	}

	if err := h.events.Handle(r.Context(), event); err != nil {
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}

	w.WriteHeader(http.StatusAccepted)
}

// RegisterRoutes registers saga routes
func (h *SagaHandlers) RegisterRoutes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/sagas/{correlation_id}", h.GetSaga)
		if h.events != nil {
			r.Post("/events", h.PostEvent)
		}
	})
}
