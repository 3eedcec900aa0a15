package saga

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/draftea/saga-orchestrator/shared/events"
	"github.com/draftea/saga-orchestrator/shared/models"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	topicOpen  events.Topic = "door.open"
	topicClose events.Topic = "door.close"
	topicJam   events.Topic = "door.jam"

	stateOpen   State = "Open"
	stateClosed State = "Closed"
)

type door struct {
	id      models.ID
	state   State
	version int
}

func (d *door) SagaID() models.ID { return d.id }
func (d *door) SagaState() State  { return d.state }
func (d *door) SagaVersion() int  { return d.version }

type doorPayload struct {
	CorrelationID string `json:"correlation_id"`
}

// doorMachine opens on door.open, closes (terminally) on door.close and
// reports a broken contract on door.jam.
type doorMachine struct{}

func (doorMachine) Name() string { return "door" }

func (doorMachine) Correlate(event *events.Event) (Correlation, error) {
	var payload doorPayload
	if err := event.UnmarshalPayload(&payload); err != nil {
		return Correlation{}, NewRoutingError(event.Topic, "", "bad payload")
	}
	id, err := models.NewID(payload.CorrelationID)
	if err != nil {
		return Correlation{}, NewRoutingError(event.Topic, payload.CorrelationID, "malformed id")
	}
	return Correlation{CorrelationID: id, CanCreate: event.Topic == topicOpen}, nil
}

func (doorMachine) New(id models.ID) *door {
	return &door{id: id, state: StateInitial}
}

func (doorMachine) Transition(d *door, event *events.Event) (Outcome[*door], error) {
	next := *d
	switch {
	case d.state == StateInitial && event.Topic == topicOpen:
		next.state = stateOpen
		cmd := events.NewEvent("door.opened", map[string]string{"id": d.id.String()}).WithCorrelationID(d.id)
		return Outcome[*door]{Instance: &next, Commands: []*events.Event{cmd}, Changed: true}, nil
	case d.state == stateOpen && event.Topic == topicClose:
		next.state = stateClosed
		return Outcome[*door]{Instance: &next, Changed: true}, nil
	case d.state == stateOpen && event.Topic == topicJam:
		return Outcome[*door]{}, NewInvariantViolation(d.id, d.state, "jammed")
	}
	return Outcome[*door]{Instance: d}, nil
}

func (doorMachine) IsTerminal(state State) bool { return state == stateClosed }

type doorRepo struct {
	mux        sync.Mutex
	rows       map[models.ID]door
	outbox     map[models.ID]*events.Event
	dispatched map[models.ID]bool
	conflicts  int
}

func newDoorRepo() *doorRepo {
	return &doorRepo{
		rows:       map[models.ID]door{},
		outbox:     map[models.ID]*events.Event{},
		dispatched: map[models.ID]bool{},
	}
}

func (r *doorRepo) Find(_ context.Context, id models.ID) (*door, error) {
	r.mux.Lock()
	defer r.mux.Unlock()
	row, ok := r.rows[id]
	if !ok {
		return nil, ErrInstanceNotFound
	}
	return &row, nil
}

func (r *doorRepo) Save(_ context.Context, d *door, commands []*events.Event) error {
	r.mux.Lock()
	defer r.mux.Unlock()
	if r.conflicts > 0 {
		r.conflicts--
		return errors.Wrap(ErrConcurrencyConflict, "forced")
	}
	if current, ok := r.rows[d.id]; ok && current.version != d.version {
		return ErrConcurrencyConflict
	}
	d.version++
	r.rows[d.id] = *d
	for _, c := range commands {
		r.outbox[c.ID] = c
	}
	return nil
}

func (r *doorRepo) Pending(_ context.Context, _ time.Time, _ int) ([]*events.Event, error) {
	r.mux.Lock()
	defer r.mux.Unlock()
	var pending []*events.Event
	for id, c := range r.outbox {
		if !r.dispatched[id] {
			pending = append(pending, c)
		}
	}
	return pending, nil
}

func (r *doorRepo) MarkDispatched(_ context.Context, ids ...models.ID) error {
	r.mux.Lock()
	defer r.mux.Unlock()
	for _, id := range ids {
		r.dispatched[id] = true
	}
	return nil
}

type recordingPublisher struct {
	mux       sync.Mutex
	published []*events.Event
	err       error
}

func (p *recordingPublisher) Publish(_ context.Context, evts ...*events.Event) error {
	p.mux.Lock()
	defer p.mux.Unlock()
	if p.err != nil {
		return p.err
	}
	p.published = append(p.published, evts...)
	return nil
}

func doorEvent(topic events.Topic, id string) *events.Event {
	return events.NewEvent(topic, doorPayload{CorrelationID: id})
}

func TestRuntime_Handle(t *testing.T) {
	id := models.GenerateUUID()

	tests := []struct {
		name            string
		setup           func(repo *doorRepo, pub *recordingPublisher)
		event           *events.Event
		wantDisposition Disposition
		wantState       State
		wantPublished   int
		wantDispatched  bool
		wantAttempts    int
		wantVersion     int
		wantErr         string
	}{
		{
			name:            "creation trigger creates and transitions the instance",
			event:           doorEvent(topicOpen, id.String()),
			wantDisposition: DispositionTransitioned,
			wantState:       stateOpen,
			wantPublished:   1,
			wantDispatched:  true,
			wantAttempts:    1,
			wantVersion:     1,
		},
		{
			name:            "non creation event for unknown id is dropped",
			event:           doorEvent(topicClose, id.String()),
			wantDisposition: DispositionDropped,
			wantAttempts:    1,
		},
		{
			name:            "malformed correlation id is dropped",
			event:           doorEvent(topicOpen, "not-a-uuid"),
			wantDisposition: DispositionDropped,
		},
		{
			name: "terminal instance absorbs events",
			setup: func(repo *doorRepo, _ *recordingPublisher) {
				repo.rows[id] = door{id: id, state: stateClosed, version: 2}
			},
			event:           doorEvent(topicOpen, id.String()),
			wantDisposition: DispositionIgnored,
			wantState:       stateClosed,
			wantAttempts:    1,
			wantVersion:     2,
		},
		{
			name: "conflict retries the whole unit of work",
			setup: func(repo *doorRepo, _ *recordingPublisher) {
				repo.conflicts = 2
			},
			event:           doorEvent(topicOpen, id.String()),
			wantDisposition: DispositionTransitioned,
			wantState:       stateOpen,
			wantPublished:   1,
			wantDispatched:  true,
			wantAttempts:    3,
			wantVersion:     1,
		},
		{
			name: "publish failure keeps commands in the outbox",
			setup: func(_ *doorRepo, pub *recordingPublisher) {
				pub.err = errors.New("broker down")
			},
			event:           doorEvent(topicOpen, id.String()),
			wantDisposition: DispositionTransitioned,
			wantState:       stateOpen,
			wantAttempts:    1,
			wantVersion:     1,
		},
		{
			name: "invariant violation aborts without committing",
			setup: func(repo *doorRepo, _ *recordingPublisher) {
				repo.rows[id] = door{id: id, state: stateOpen, version: 1}
			},
			event:     doorEvent(topicJam, id.String()),
			wantState: stateOpen,
			wantErr:   "jammed",
		},
		{
			name: "instance stored under another id is rejected",
			setup: func(repo *doorRepo, _ *recordingPublisher) {
				repo.rows[id] = door{id: models.GenerateUUID(), state: stateOpen, version: 1}
			},
			event:     doorEvent(topicClose, id.String()),
			wantState: stateOpen,
			wantErr:   "store returned saga",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newDoorRepo()
			pub := &recordingPublisher{}
			if tt.setup != nil {
				tt.setup(repo, pub)
			}

			runtime := NewRuntime[*door](doorMachine{}, repo, pub, WithConflictBackoff(time.Millisecond, time.Millisecond))

			result, err := runtime.Handle(context.Background(), tt.event)

			if tt.wantErr != "" {
				require.Error(t, err)
				assert.True(t, IsInvariantViolation(err))
				assert.Contains(t, err.Error(), tt.wantErr)
				assert.Equal(t, tt.wantState, repo.rows[id].state)
				assert.Empty(t, repo.outbox)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.wantDisposition, result.Disposition)
			assert.Equal(t, tt.wantAttempts, result.Attempts)
			assert.Equal(t, tt.wantDispatched, result.Dispatched)
			assert.Equal(t, tt.wantVersion, result.Version)
			assert.Len(t, pub.published, tt.wantPublished)
			if tt.wantState != "" {
				assert.Equal(t, tt.wantState, repo.rows[id].state)
			}

			pending, err := repo.Pending(context.Background(), time.Now(), 10)
			require.NoError(t, err)
			if tt.wantDisposition == DispositionTransitioned && !tt.wantDispatched {
				assert.Len(t, pending, 1)
			} else {
				assert.Empty(t, pending)
			}
		})
	}
}

func TestRuntime_Handle_GivesUpAfterMaxAttempts(t *testing.T) {
	repo := newDoorRepo()
	repo.conflicts = 10
	pub := &recordingPublisher{}

	runtime := NewRuntime[*door](doorMachine{}, repo, pub,
		WithMaxAttempts(3),
		WithConflictBackoff(time.Millisecond, time.Millisecond),
	)

	_, err := runtime.Handle(context.Background(), doorEvent(topicOpen, models.GenerateUUID().String()))

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrConcurrencyConflict))
	assert.Empty(t, pub.published)
	assert.Equal(t, 7, repo.conflicts)
}

func TestRuntime_Handle_DuplicateDeliveryPublishesOnce(t *testing.T) {
	repo := newDoorRepo()
	pub := &recordingPublisher{}
	runtime := NewRuntime[*door](doorMachine{}, repo, pub)

	event := doorEvent(topicOpen, models.GenerateUUID().String())

	first, err := runtime.Handle(context.Background(), event)
	require.NoError(t, err)
	second, err := runtime.Handle(context.Background(), event)
	require.NoError(t, err)

	assert.Equal(t, DispositionTransitioned, first.Disposition)
	assert.Equal(t, DispositionIgnored, second.Disposition)
	assert.Len(t, pub.published, 1)
}

type countingLocker struct {
	mux      sync.Mutex
	locked   []string
	released int
}

func (l *countingLocker) Lock(_ context.Context, key string) (ReleaseFunc, error) {
	l.mux.Lock()
	defer l.mux.Unlock()
	l.locked = append(l.locked, key)
	return func(context.Context) error {
		l.mux.Lock()
		defer l.mux.Unlock()
		l.released++
		return nil
	}, nil
}

func TestRuntime_Handle_UsesLocker(t *testing.T) {
	id := models.GenerateUUID()
	locker := &countingLocker{}
	runtime := NewRuntime[*door](doorMachine{}, newDoorRepo(), &recordingPublisher{}, WithLocker(locker))

	_, err := runtime.Handle(context.Background(), doorEvent(topicOpen, id.String()))
	require.NoError(t, err)

	assert.Equal(t, []string{"saga:door:" + id.String()}, locker.locked)
	assert.Equal(t, 1, locker.released)
}

type releaseFailingLocker struct {
	released bool
}

func (l *releaseFailingLocker) Lock(context.Context, string) (ReleaseFunc, error) {
	return func(context.Context) error {
		l.released = true
		return errors.New("lock expired")
	}, nil
}

func TestRuntime_Handle_ReleaseFailureKeepsResult(t *testing.T) {
	locker := &releaseFailingLocker{}
	pub := &recordingPublisher{}
	runtime := NewRuntime[*door](doorMachine{}, newDoorRepo(), pub, WithLocker(locker))

	result, err := runtime.Handle(context.Background(), doorEvent(topicOpen, models.GenerateUUID().String()))

	require.NoError(t, err)
	assert.True(t, locker.released)
	assert.Equal(t, DispositionTransitioned, result.Disposition)
	assert.Len(t, pub.published, 1)
}
