package infrastructure

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"time"

	"github.com/draftea/saga-orchestrator/orchestrator-service/domain"
	"github.com/draftea/saga-orchestrator/shared/events"
	"github.com/draftea/saga-orchestrator/shared/models"
	"github.com/draftea/saga-orchestrator/shared/saga"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
)

//go:embed schema.sql
var schema string

var _ domain.SagaRepository = (*PostgresSagaRepository)(nil)

// PostgresSagaRepository stores user deletion sagas and their outbox in PostgreSQL
type PostgresSagaRepository struct {
	db *sqlx.DB
}

// NewPostgresSagaRepository creates a new PostgresSagaRepository
func NewPostgresSagaRepository(db *sqlx.DB) *PostgresSagaRepository {
	return &PostgresSagaRepository{db: db}
}

// postgresSaga represents a saga row
type postgresSaga struct {
	CorrelationID string    `db:"correlation_id"`
	CurrentState  string    `db:"current_state"`
	UserID        string    `db:"user_id"`
	Email         *string   `db:"email"`
	Error         *string   `db:"error"`
	Version       int       `db:"version"`
	CreatedAt     time.Time `db:"created_at"`
	UpdatedAt     time.Time `db:"updated_at"`
}

// postgresOutboxMessage represents an outbox row
type postgresOutboxMessage struct {
	ID            string    `db:"id"`
	CorrelationID string    `db:"correlation_id"`
	Topic         string    `db:"topic"`
	CausationID   *string   `db:"causation_id"`
	Payload       string    `db:"payload"`
	Metadata      string    `db:"metadata"`
	CreatedAt     time.Time `db:"created_at"`
}

// EnsureSchema creates the tables when they do not exist
func (r *PostgresSagaRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return errors.Wrap(err, "failed to apply saga schema")
	}
	return nil
}

// Find finds a saga by correlation ID
func (r *PostgresSagaRepository) Find(ctx context.Context, correlationID models.ID) (*domain.UserDeletionSaga, error) {
	query := `
		SELECT correlation_id, current_state, user_id, email, error,
			   version, created_at, updated_at
		FROM user_delete_saga
		WHERE correlation_id = $1`

	var row postgresSaga
	err := r.db.GetContext(ctx, &row, query, correlationID.String())
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, saga.ErrInstanceNotFound
		}
		return nil, errors.Wrap(err, "failed to find saga")
	}

	return r.toDomain(&row)
}

// Save writes the saga and its commands in one transaction. New sagas are
// inserted, existing ones are updated only if their version did not move.
func (r *PostgresSagaRepository) Save(ctx context.Context, instance *domain.UserDeletionSaga, commands []*events.Event) error {
	row, err := r.toPostgres(instance)
	if err != nil {
		return err
	}

	row.Version = instance.Version.Update().Value
	row.UpdatedAt = time.Now().UTC()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback() //nolint:errcheck

	if instance.Version.IsNew() {
		err = r.insertSaga(ctx, tx, row)
	} else {
		err = r.updateSaga(ctx, tx, row, instance.Version.Value)
	}
	if err != nil {
		return err
	}

	for _, command := range commands {
		if err := r.insertOutboxMessage(ctx, tx, instance.CorrelationID, command); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "failed to commit saga transaction")
	}

	instance.Version = models.Version{Value: row.Version}
	instance.UpdatedAt = row.UpdatedAt

	return nil
}

func (r *PostgresSagaRepository) insertSaga(ctx context.Context, tx *sqlx.Tx, row *postgresSaga) error {
	query := `
		INSERT INTO user_delete_saga (
			correlation_id, current_state, user_id, email, error,
			version, created_at, updated_at
		) VALUES (
			:correlation_id, :current_state, :user_id, :email, :error,
			:version, :created_at, :updated_at
		)
		ON CONFLICT (correlation_id) DO NOTHING`

	res, err := tx.NamedExecContext(ctx, query, row)
	if err != nil {
		return errors.Wrap(err, "failed to insert saga")
	}

	return expectOneRow(res, row.CorrelationID)
}

func (r *PostgresSagaRepository) updateSaga(ctx context.Context, tx *sqlx.Tx, row *postgresSaga, oldVersion int) error {
	query := `
		UPDATE user_delete_saga
		SET current_state = :current_state, email = :email, error = :error,
			version = :version, updated_at = :updated_at
		WHERE correlation_id = :correlation_id AND version = :old_version`

	res, err := tx.NamedExecContext(ctx, query, map[string]interface{}{
		"correlation_id": row.CorrelationID,
		"current_state":  row.CurrentState,
		"email":          row.Email,
		"error":          row.Error,
		"version":        row.Version,
		"updated_at":     row.UpdatedAt,
		"old_version":    oldVersion, // Optimistic locking
	})
	if err != nil {
		return errors.Wrap(err, "failed to update saga")
	}

	return expectOneRow(res, row.CorrelationID)
}

func (r *PostgresSagaRepository) insertOutboxMessage(ctx context.Context, tx *sqlx.Tx, correlationID models.ID, command *events.Event) error {
	payload, err := command.MarshalPayload()
	if err != nil {
		return errors.Wrapf(err, "failed to marshal payload of %s", command.Topic)
	}

	metadata, err := json.Marshal(command.Metadata)
	if err != nil {
		return errors.Wrap(err, "failed to marshal metadata")
	}

	row := &postgresOutboxMessage{
		ID:            command.ID.String(),
		CorrelationID: correlationID.String(),
		Topic:         command.Topic.String(),
		CausationID:   nullableID(command.CausationID),
		Payload:       string(payload),
		Metadata:      string(metadata),
		CreatedAt:     command.Timestamp,
	}

	query := `
		INSERT INTO saga_outbox (
			id, correlation_id, topic, causation_id, payload, metadata, created_at
		) VALUES (
			:id, :correlation_id, :topic, :causation_id, :payload, :metadata, :created_at
		)`

	if _, err := tx.NamedExecContext(ctx, query, row); err != nil {
		return errors.Wrap(err, "failed to insert outbox message")
	}

	return nil
}

// Pending returns undispatched commands created before the given time,
// oldest first
func (r *PostgresSagaRepository) Pending(ctx context.Context, createdBefore time.Time, limit int) ([]*events.Event, error) {
	query := `
		SELECT id, correlation_id, topic, causation_id, payload, metadata, created_at
		FROM saga_outbox
		WHERE dispatched_at IS NULL AND created_at < $1
		ORDER BY created_at
		LIMIT $2`

	var rows []postgresOutboxMessage
	if err := r.db.SelectContext(ctx, &rows, query, createdBefore, limit); err != nil {
		return nil, errors.Wrap(err, "failed to list pending outbox messages")
	}

	pending := make([]*events.Event, 0, len(rows))
	for i := range rows {
		event, err := r.outboxToEvent(&rows[i])
		if err != nil {
			return nil, err
		}
		pending = append(pending, event)
	}

	return pending, nil
}

// MarkDispatched flags outbox messages as published
func (r *PostgresSagaRepository) MarkDispatched(ctx context.Context, ids ...models.ID) error {
	if len(ids) == 0 {
		return nil
	}

	raw := make([]string, len(ids))
	for i, id := range ids {
		raw[i] = id.String()
	}

	query := `
		UPDATE saga_outbox
		SET dispatched_at = $1
		WHERE id = ANY($2) AND dispatched_at IS NULL`

	if _, err := r.db.ExecContext(ctx, query, time.Now().UTC(), pq.Array(raw)); err != nil {
		return errors.Wrap(err, "failed to mark outbox messages as dispatched")
	}

	return nil
}

func (r *PostgresSagaRepository) toPostgres(instance *domain.UserDeletionSaga) (*postgresSaga, error) {
	row := &postgresSaga{
		CorrelationID: instance.CorrelationID.String(),
		CurrentState:  instance.CurrentState.String(),
		UserID:        instance.UserID.String(),
		Version:       instance.Version.Value,
		CreatedAt:     instance.CreatedAt,
		UpdatedAt:     instance.UpdatedAt,
	}

	if instance.Email != "" {
		email := instance.Email
		row.Email = &email
	}

	if instance.Error != nil {
		b, err := json.Marshal(instance.Error)
		if err != nil {
			return nil, errors.Wrap(err, "failed to marshal saga error")
		}
		detail := string(b)
		row.Error = &detail
	}

	return row, nil
}

func (r *PostgresSagaRepository) toDomain(row *postgresSaga) (*domain.UserDeletionSaga, error) {
	instance := &domain.UserDeletionSaga{
		CorrelationID: models.ID(row.CorrelationID),
		CurrentState:  saga.State(row.CurrentState),
		UserID:        models.ID(row.UserID),
		Version:       models.Version{Value: row.Version},
		Timestamps: models.Timestamps{
			CreatedAt: row.CreatedAt,
			UpdatedAt: row.UpdatedAt,
		},
	}

	if row.Email != nil {
		instance.Email = *row.Email
	}

	if row.Error != nil {
		var detail domain.FaultDetail
		if err := json.Unmarshal([]byte(*row.Error), &detail); err != nil {
			return nil, errors.Wrapf(err, "failed to unmarshal error of saga %s", row.CorrelationID)
		}
		instance.Error = &detail
	}

	return instance, nil
}

func (r *PostgresSagaRepository) outboxToEvent(row *postgresOutboxMessage) (*events.Event, error) {
	metadata := events.Metadata{}
	if row.Metadata != "" {
		if err := json.Unmarshal([]byte(row.Metadata), &metadata); err != nil {
			return nil, errors.Wrapf(err, "failed to unmarshal metadata of outbox message %s", row.ID)
		}
	}

	event := &events.Event{
		ID:            models.ID(row.ID),
		Topic:         events.Topic(row.Topic),
		Version:       "1.0",
		Data:          json.RawMessage(row.Payload),
		Metadata:      metadata,
		Timestamp:     row.CreatedAt,
		CorrelationID: models.ID(row.CorrelationID),
	}

	if row.CausationID != nil {
		event.CausationID = models.ID(*row.CausationID)
	}

	return event, nil
}

func expectOneRow(res sql.Result, correlationID string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to read affected rows")
	}
	if affected == 0 {
		return errors.Wrapf(saga.ErrConcurrencyConflict, "saga %s", correlationID)
	}
	return nil
}

func nullableID(id models.ID) *string {
	if id.IsZero() {
		return nil
	}
	s := id.String()
	return &s
}
