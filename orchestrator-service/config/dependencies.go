package config

import (
	"context"
	"fmt"

	"github.com/draftea/saga-orchestrator/orchestrator-service/application"
	"github.com/draftea/saga-orchestrator/orchestrator-service/domain"
	"github.com/draftea/saga-orchestrator/orchestrator-service/handlers"
	"github.com/draftea/saga-orchestrator/orchestrator-service/infrastructure"
	"github.com/draftea/saga-orchestrator/shared/events"
	sharedinfra "github.com/draftea/saga-orchestrator/shared/infrastructure"
	"github.com/draftea/saga-orchestrator/shared/logger"
	"github.com/draftea/saga-orchestrator/shared/saga"
	"github.com/draftea/saga-orchestrator/shared/telemetry"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

type Dependencies struct {
	Logger *logger.Logger

	// Storage
	DB             *sqlx.DB
	Redis          *redis.Client
	SagaRepository domain.SagaRepository

	// Use Cases
	ProcessSagaEvent *application.ProcessSagaEvent
	RelayOutbox      *application.RelayOutbox
	GetSaga          *application.GetSaga

	// HTTP Handlers
	SagaHandlers *handlers.SagaHandlers

	// Event Handlers
	SagaEventHandlers *handlers.SagaEventHandlers

	// Infrastructure
	EventPublisher  events.Publisher
	EventSubscriber *sharedinfra.SQSSubscriberAdapter

	// Telemetry
	Telemetry         *telemetry.Telemetry
	TelemetryShutdown func()
}

func BuildDependencies(ctx context.Context, config *Config) (*Dependencies, error) {
	log, err := logger.New(config.Log.Mode, config.Log.Level)
	if err != nil {
		return nil, errors.Wrap(err, "failed to build logger")
	}

	deps := &Dependencies{Logger: log}

	// Initialize telemetry first
	if config.Telemetry.Enabled {
		telConfig := telemetry.OrchestratorServiceConfig.WithOTLPEndpoint(config.Telemetry.OTLPEndpoint)
		tel, telemetryShutdown, err := telemetry.InitTelemetry(ctx, telConfig)
		if err != nil {
			log.Warn("failed to initialize telemetry, continuing without it", "error", err)
		} else {
			deps.Telemetry = tel
			deps.TelemetryShutdown = telemetryShutdown
		}
	}

	if err := deps.buildRepository(ctx, config); err != nil {
		deps.Close(ctx)
		return nil, err
	}

	if err := deps.buildTransport(ctx, config); err != nil {
		deps.Close(ctx)
		return nil, err
	}

	locker, err := deps.buildLocker(ctx, config)
	if err != nil {
		deps.Close(ctx)
		return nil, err
	}

	runtimeOpts := []saga.RuntimeOption{
		saga.WithMaxAttempts(config.Saga.MaxAttempts),
		saga.WithConflictBackoff(config.Saga.ConflictBackoffInitial, config.Saga.ConflictBackoffMax),
		saga.WithLogger(log),
	}
	if locker != nil {
		runtimeOpts = append(runtimeOpts, saga.WithLocker(locker))
	}

	// Initialize use cases
	deps.ProcessSagaEvent = application.NewProcessSagaEvent(deps.SagaRepository, deps.EventPublisher, runtimeOpts...)
	deps.RelayOutbox = application.NewRelayOutbox(deps.SagaRepository, deps.EventPublisher, application.RelayOutboxConfig{
		Interval:  config.Outbox.Interval,
		BatchSize: config.Outbox.BatchSize,
		MinAge:    config.Outbox.MinAge,
	}, log.With("component", "outbox_relay"))
	deps.GetSaga = application.NewGetSaga(deps.SagaRepository)

	// Initialize handlers
	deps.SagaEventHandlers = handlers.NewSagaEventHandlers(deps.ProcessSagaEvent, log)

	// Without a broker, inbound events are posted over HTTP
	var intake events.EventHandler
	if config.Transport.Driver == DriverMemory {
		intake = deps.SagaEventHandlers
	}
	deps.SagaHandlers = handlers.NewSagaHandlers(deps.GetSaga, intake)

	return deps, nil
}

func (d *Dependencies) buildRepository(ctx context.Context, config *Config) error {
	if config.Database.Driver == DriverMemory {
		d.SagaRepository = infrastructure.NewMemorySagaRepository()
		return nil
	}

	db, err := sqlx.ConnectContext(ctx, "postgres", config.GetDatabaseURL())
	if err != nil {
		return errors.Wrap(err, "failed to connect to database")
	}
	d.DB = db

	db.SetMaxOpenConns(config.Database.MaxOpenConns)
	db.SetMaxIdleConns(config.Database.MaxIdleConns)

	repo := infrastructure.NewPostgresSagaRepository(db)
	if config.Database.AutoMigrate {
		if err := repo.EnsureSchema(ctx); err != nil {
			return err
		}
	}

	d.SagaRepository = repo
	return nil
}

func (d *Dependencies) buildTransport(ctx context.Context, config *Config) error {
	if config.Transport.Driver == DriverMemory {
		d.EventPublisher = sharedinfra.NewInMemoryPublisher()
		return nil
	}

	awsConfig, err := sharedinfra.LoadAWSConfig(ctx, sharedinfra.AWSOptions{
		Region:          config.AWS.Region,
		AccessKeyID:     config.AWS.AccessKeyID,
		SecretAccessKey: config.AWS.SecretAccessKey,
	})
	if err != nil {
		return err
	}

	snsPublisher := sharedinfra.NewSNSEventPublisher(
		sharedinfra.NewSNSClient(awsConfig, config.AWS.EndpointSNS),
		config.AWS.SNSTopicArn,
	)

	d.EventPublisher = sharedinfra.NewResilientPublisher(snsPublisher, "sns-publisher",
		sharedinfra.RetryPolicy{
			Limit:    config.Transport.Retry.Limit,
			Interval: config.Transport.Retry.Interval,
		},
		sharedinfra.CircuitBreakerPolicy{
			TrackingPeriod:  config.Transport.CircuitBreaker.TrackingPeriod,
			TripThreshold:   config.Transport.CircuitBreaker.TripThreshold,
			ActiveThreshold: config.Transport.CircuitBreaker.ActiveThreshold,
			ResetInterval:   config.Transport.CircuitBreaker.ResetInterval,
		},
		d.Logger,
	)

	sqsConfig := config.Transport.SQS
	d.EventSubscriber = sharedinfra.NewSQSSubscriberAdapter(
		sharedinfra.NewSQSClient(awsConfig, config.AWS.EndpointSQS),
		config.AWS.SQSQueueURL,
		handlers.SagaEventHandlerID,
		sharedinfra.WithWorkers(sqsConfig.Workers),
		sharedinfra.WithReaders(sqsConfig.Readers),
		sharedinfra.WithMaxNumberOfMessages(sqsConfig.MaxNumberOfMessages),
		sharedinfra.WithWaitTimeSeconds(sqsConfig.WaitTimeSeconds),
		sharedinfra.WithVisibilityTimeout(sqsConfig.VisibilityTimeout),
		sharedinfra.WithMaxVisibilityTimeout(sqsConfig.MaxVisibilityTimeout),
		sharedinfra.WithVisibilityBackoff(sqsConfig.ReceiveCountRange, sqsConfig.VisibilityTimeoutOffset),
		sharedinfra.WithSubscriberLogger(d.Logger.With("component", "sqs_subscriber")),
	)

	return nil
}

func (d *Dependencies) buildLocker(ctx context.Context, config *Config) (saga.Locker, error) {
	switch config.Saga.Locker {
	case LockerLocal:
		return infrastructure.NewLocalLocker(), nil
	case LockerRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     config.Redis.Addr,
			Password: config.Redis.Password,
			DB:       config.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, errors.Wrap(err, "failed to ping redis")
		}
		d.Redis = client

		return infrastructure.NewRedisLocker(client,
			config.Redis.LockPrefix,
			config.Redis.LockTTL,
			config.Redis.LockRetryInterval,
			config.Redis.LockMaxWait,
		), nil
	default:
		return nil, nil
	}
}

// Close closes all dependencies
func (d *Dependencies) Close(ctx context.Context) error {
	var errs []error

	if d.EventSubscriber != nil {
		if err := d.EventSubscriber.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to close event subscriber: %w", err))
		}
	}

	if d.DB != nil {
		if err := d.DB.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close database: %w", err))
		}
	}

	if d.Redis != nil {
		if err := d.Redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close redis: %w", err))
		}
	}

	if d.TelemetryShutdown != nil {
		d.TelemetryShutdown()
	}

	if d.Logger != nil {
		d.Logger.Sync()
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors closing dependencies: %v", errs)
	}

	return nil
}
