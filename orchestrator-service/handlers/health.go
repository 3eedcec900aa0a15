package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/sony/gobreaker"
)

// BreakerState is implemented by publishers guarded by a circuit breaker
type BreakerState interface {
	State() gobreaker.State
}

// HealthResponse is the body of /health. A publisher with an open circuit
// reports "degraded"; commands keep accumulating in the outbox meanwhile.
type HealthResponse struct {
	Status           string `json:"status"`
	PublisherCircuit string `json:"publisher_circuit,omitempty"`
}

// NewHealthHandler reports liveness and, when publisher exposes one, the
// state of its circuit breaker
func NewHealthHandler(publisher any) http.HandlerFunc {
	breaker, _ := publisher.(BreakerState)

	return func(w http.ResponseWriter, r *http.Request) {
		response := HealthResponse{Status: "ok"}
		if breaker != nil {
			state := breaker.State()
			response.PublisherCircuit = state.String()
			if state == gobreaker.StateOpen {
				response.Status = "degraded"
			}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(response)
	}
}
