package application

import (
	"context"
	"time"

	"github.com/draftea/saga-orchestrator/orchestrator-service/domain"
	"github.com/draftea/saga-orchestrator/shared/models"
	"github.com/draftea/saga-orchestrator/shared/saga"
	"github.com/pkg/errors"
)

var (
	ErrSagaNotFound       = errors.New("saga not found")
	ErrInvalidCorrelation = errors.New("invalid correlation ID")
)

// GetSagaQuery represents the query to get a saga
type GetSagaQuery struct {
	CorrelationID string `json:"correlation_id"`
}

// GetSagaResponse represents the response for getting a saga
type GetSagaResponse struct {
	CorrelationID string              `json:"correlation_id"`
	CurrentState  string              `json:"current_state"`
	UserID        string              `json:"user_id"`
	Email         string              `json:"email,omitempty"`
	Error         *domain.FaultDetail `json:"error,omitempty"`
	Version       int                 `json:"version"`
	Terminal      bool                `json:"terminal"`
	CreatedAt     string              `json:"created_at"`
	UpdatedAt     string              `json:"updated_at"`
}

// GetSaga use case
type GetSaga struct {
	repository domain.SagaRepository
}

// NewGetSaga creates a new GetSaga use case
func NewGetSaga(repository domain.SagaRepository) *GetSaga {
	return &GetSaga{
		repository: repository,
	}
}

// Execute executes the get saga use case
func (uc *GetSaga) Execute(ctx context.Context, query *GetSagaQuery) (*GetSagaResponse, error) {
	if query.CorrelationID == "" {
		return nil, errors.Wrap(ErrInvalidCorrelation, "correlation ID is required")
	}

	correlationID, err := models.NewID(query.CorrelationID)
	if err != nil {
		return nil, errors.Wrap(ErrInvalidCorrelation, err.Error())
	}

	instance, err := uc.repository.Find(ctx, correlationID)
	if err != nil {
		if errors.Is(err, saga.ErrInstanceNotFound) {
			return nil, ErrSagaNotFound
		}
		return nil, errors.Wrap(err, "failed to find saga")
	}

	return &GetSagaResponse{
		CorrelationID: instance.CorrelationID.String(),
		CurrentState:  instance.CurrentState.String(),
		UserID:        instance.UserID.String(),
		Email:         instance.Email,
		Error:         instance.Error,
		Version:       instance.Version.Value,
		Terminal:      instance.IsTerminal(),
		CreatedAt:     instance.CreatedAt.Format(time.RFC3339),
		UpdatedAt:     instance.UpdatedAt.Format(time.RFC3339),
	}, nil
}
