package infrastructure

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/draftea/saga-orchestrator/orchestrator-service/domain"
	"github.com/draftea/saga-orchestrator/shared/events"
	"github.com/draftea/saga-orchestrator/shared/models"
	"github.com/draftea/saga-orchestrator/shared/saga"
	"github.com/pkg/errors"
)

var _ domain.SagaRepository = (*MemorySagaRepository)(nil)

type memoryOutboxMessage struct {
	event        *events.Event
	dispatchedAt *time.Time
}

// MemorySagaRepository keeps sagas in process memory. It follows the same
// version rules as the Postgres repository and backs the local driver.
type MemorySagaRepository struct {
	mux    sync.RWMutex
	sagas  map[models.ID]*domain.UserDeletionSaga
	outbox map[models.ID]*memoryOutboxMessage
}

func NewMemorySagaRepository() *MemorySagaRepository {
	return &MemorySagaRepository{
		sagas:  make(map[models.ID]*domain.UserDeletionSaga),
		outbox: make(map[models.ID]*memoryOutboxMessage),
	}
}

func (r *MemorySagaRepository) Find(_ context.Context, correlationID models.ID) (*domain.UserDeletionSaga, error) {
	r.mux.RLock()
	defer r.mux.RUnlock()

	stored, ok := r.sagas[correlationID]
	if !ok {
		return nil, saga.ErrInstanceNotFound
	}
	return stored.Clone(), nil
}

func (r *MemorySagaRepository) Save(_ context.Context, instance *domain.UserDeletionSaga, commands []*events.Event) error {
	r.mux.Lock()
	defer r.mux.Unlock()

	stored, exists := r.sagas[instance.CorrelationID]
	switch {
	case instance.Version.IsNew() && exists:
		return errors.Wrapf(saga.ErrConcurrencyConflict, "saga %s already exists", instance.CorrelationID)
	case !instance.Version.IsNew() && (!exists || stored.Version.Value != instance.Version.Value):
		return errors.Wrapf(saga.ErrConcurrencyConflict, "saga %s", instance.CorrelationID)
	}

	instance.Version = instance.Version.Update()
	instance.Timestamps = instance.Timestamps.Update()
	r.sagas[instance.CorrelationID] = instance.Clone()

	for _, command := range commands {
		r.outbox[command.ID] = &memoryOutboxMessage{event: command.Clone()}
	}

	return nil
}

func (r *MemorySagaRepository) Pending(_ context.Context, createdBefore time.Time, limit int) ([]*events.Event, error) {
	r.mux.RLock()
	defer r.mux.RUnlock()

	var pending []*events.Event
	for _, message := range r.outbox {
		if message.dispatchedAt == nil && message.event.Timestamp.Before(createdBefore) {
			pending = append(pending, message.event.Clone())
		}
	}

	sort.Slice(pending, func(i, j int) bool {
		return pending[i].Timestamp.Before(pending[j].Timestamp)
	})

	if limit > 0 && len(pending) > limit {
		pending = pending[:limit]
	}

	return pending, nil
}

func (r *MemorySagaRepository) MarkDispatched(_ context.Context, ids ...models.ID) error {
	r.mux.Lock()
	defer r.mux.Unlock()

	now := time.Now().UTC()
	for _, id := range ids {
		if message, ok := r.outbox[id]; ok && message.dispatchedAt == nil {
			message.dispatchedAt = &now
		}
	}
	return nil
}
