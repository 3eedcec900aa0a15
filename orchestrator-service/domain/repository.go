package domain

import (
	"github.com/draftea/saga-orchestrator/shared/saga"
)

// SagaRepository persists user deletion sagas together with their outbox
type SagaRepository interface {
	saga.Repository[*UserDeletionSaga]
}
