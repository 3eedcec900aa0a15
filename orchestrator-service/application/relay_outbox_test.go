package application

import (
	"context"
	"testing"
	"time"

	"github.com/draftea/saga-orchestrator/orchestrator-service/domain"
	orchestratorinfra "github.com/draftea/saga-orchestrator/orchestrator-service/infrastructure"
	"github.com/draftea/saga-orchestrator/orchestrator-service/mocks"
	"github.com/draftea/saga-orchestrator/shared/events"
	sharedinfra "github.com/draftea/saga-orchestrator/shared/infrastructure"
	"github.com/draftea/saga-orchestrator/shared/models"
	"github.com/draftea/saga-orchestrator/shared/telemetry"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	metricSDK "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestRelayOutbox_Execute(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	first := events.NewEvent(domain.TopicProfileDeleteRequested, domain.RequestProfileDeletion{})
	second := events.NewEvent(domain.TopicUserDeletionFailed, domain.DeletionFailed{})

	tests := []struct {
		name          string
		setupMocks    func(*mocks.MockSagaRepository, *mocks.MockPublisher)
		expected      int
		expectedError string
	}{
		{
			name: "nothing pending",
			setupMocks: func(repo *mocks.MockSagaRepository, publisher *mocks.MockPublisher) {
				repo.EXPECT().Pending(mock.Anything, now.Add(-time.Minute), 25).
					Return(nil, nil).Once()
			},
			expected: 0,
		},
		{
			name: "publishes and marks every pending command",
			setupMocks: func(repo *mocks.MockSagaRepository, publisher *mocks.MockPublisher) {
				repo.EXPECT().Pending(mock.Anything, now.Add(-time.Minute), 25).
					Return([]*events.Event{first, second}, nil).Once()
				publisher.EXPECT().Publish(mock.Anything, first).Return(nil).Once()
				publisher.EXPECT().Publish(mock.Anything, second).Return(nil).Once()
				repo.EXPECT().MarkDispatched(mock.Anything, first.ID, second.ID).Return(nil).Once()
			},
			expected: 2,
		},
		{
			name: "failed command stays pending",
			setupMocks: func(repo *mocks.MockSagaRepository, publisher *mocks.MockPublisher) {
				repo.EXPECT().Pending(mock.Anything, now.Add(-time.Minute), 25).
					Return([]*events.Event{first, second}, nil).Once()
				publisher.EXPECT().Publish(mock.Anything, first).Return(errors.New("throttled")).Once()
				publisher.EXPECT().Publish(mock.Anything, second).Return(nil).Once()
				repo.EXPECT().MarkDispatched(mock.Anything, second.ID).Return(nil).Once()
			},
			expected:      1,
			expectedError: "throttled",
		},
		{
			name: "store failure",
			setupMocks: func(repo *mocks.MockSagaRepository, publisher *mocks.MockPublisher) {
				repo.EXPECT().Pending(mock.Anything, mock.Anything, mock.Anything).
					Return(nil, errors.New("connection reset")).Once()
			},
			expected:      0,
			expectedError: "failed to load pending outbox messages",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := mocks.NewMockSagaRepository(t)
			publisher := mocks.NewMockPublisher(t)
			tt.setupMocks(repo, publisher)

			uc := NewRelayOutbox(repo, publisher, RelayOutboxConfig{BatchSize: 25, MinAge: time.Minute}, nil)
			uc.now = func() time.Time { return now }

			relayed, err := uc.Execute(context.Background())

			if tt.expectedError != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.expectedError)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.expected, relayed)
		})
	}
}

func TestRelayOutbox_RecoversFailedDispatch(t *testing.T) {
	ctx := context.Background()
	repo := orchestratorinfra.NewMemorySagaRepository()
	broken := mocks.NewMockPublisher(t)
	broken.EXPECT().Publish(mock.Anything, mock.Anything).Return(errors.New("broker down")).Once()

	require.NoError(t, NewProcessSagaEvent(repo, broken).Execute(ctx, triggerEvent()))

	publisher := sharedinfra.NewInMemoryPublisher()
	relay := NewRelayOutbox(repo, publisher, RelayOutboxConfig{MinAge: time.Minute}, nil)
	relay.now = func() time.Time { return time.Now().Add(time.Hour) }

	relayed, err := relay.Execute(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, relayed)

	published := publisher.Published()
	require.Len(t, published, 1)
	assert.Equal(t, domain.TopicProfileDeleteRequested, published[0].Topic)
	assert.Equal(t, models.ID(testCorrelationID), published[0].CorrelationID)

	relayed, err = relay.Execute(ctx)
	require.NoError(t, err)
	assert.Zero(t, relayed)
}

func TestRelayOutbox_RunStopsWithContext(t *testing.T) {
	repo := mocks.NewMockSagaRepository(t)
	repo.EXPECT().Pending(mock.Anything, mock.Anything, mock.Anything).Return(nil, nil).Maybe()

	relay := NewRelayOutbox(repo, mocks.NewMockPublisher(t), RelayOutboxConfig{Interval: 5 * time.Millisecond}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	assert.NoError(t, relay.Run(ctx))
}

func TestRelayOutbox_RecordsDispatchedCounter(t *testing.T) {
	reader := metricSDK.NewManualReader()
	provider := metricSDK.NewMeterProvider(metricSDK.WithReader(reader))
	otel.SetMeterProvider(provider)
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	ctx := telemetry.WithTelemetry(context.Background(), telemetry.NewTelemetry(telemetry.OrchestratorServiceConfig))

	command := events.NewEvent(domain.TopicProfileDeleteRequested, domain.RequestProfileDeletion{
		CorrelationID: testCorrelationID,
	}).WithCorrelationID(testCorrelationID)

	repo := mocks.NewMockSagaRepository(t)
	repo.EXPECT().Pending(mock.Anything, mock.Anything, 100).Return([]*events.Event{command}, nil).Once()
	repo.EXPECT().MarkDispatched(mock.Anything, command.ID).Return(nil).Once()

	relayed, err := NewRelayOutbox(repo, sharedinfra.NewInMemoryPublisher(), RelayOutboxConfig{}, nil).Execute(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, relayed)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	var sum metricdata.Sum[int64]
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name == "saga_outbox_dispatched_total" {
				sum, _ = m.Data.(metricdata.Sum[int64])
			}
		}
	}
	require.Len(t, sum.DataPoints, 1)
	assert.Equal(t, int64(1), sum.DataPoints[0].Value)

	sagaName, ok := sum.DataPoints[0].Attributes.Value("saga")
	require.True(t, ok)
	assert.Equal(t, domain.SagaName, sagaName.AsString())
}
