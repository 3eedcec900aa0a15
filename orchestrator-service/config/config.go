package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
	DriverSNS      = "sns"

	LockerNone  = "none"
	LockerLocal = "local"
	LockerRedis = "redis"
)

type Config struct {
	ServiceName string    `mapstructure:"service_name"`
	Env         string    `mapstructure:"env"`
	Port        string    `mapstructure:"port"`
	Database    Database  `mapstructure:"database"`
	Redis       Redis     `mapstructure:"redis"`
	AWS         AWS       `mapstructure:"aws"`
	Transport   Transport `mapstructure:"transport"`
	Saga        Saga      `mapstructure:"saga"`
	Outbox      Outbox    `mapstructure:"outbox"`
	Telemetry   Telemetry `mapstructure:"telemetry"`
	Log         Log       `mapstructure:"log"`
}

type Database struct {
	Driver       string `mapstructure:"driver"`
	URL          string `mapstructure:"url"`
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	SSLMode      string `mapstructure:"ssl_mode"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
	AutoMigrate  bool   `mapstructure:"auto_migrate"`
}

type Redis struct {
	Addr              string        `mapstructure:"addr"`
	Password          string        `mapstructure:"password"`
	DB                int           `mapstructure:"db"`
	LockPrefix        string        `mapstructure:"lock_prefix"`
	LockTTL           time.Duration `mapstructure:"lock_ttl"`
	LockRetryInterval time.Duration `mapstructure:"lock_retry_interval"`
	LockMaxWait       time.Duration `mapstructure:"lock_max_wait"`
}

type AWS struct {
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	Region          string `mapstructure:"region"`
	EndpointSNS     string `mapstructure:"endpoint_sns"`
	EndpointSQS     string `mapstructure:"endpoint_sqs"`
	SNSTopicArn     string `mapstructure:"sns_topic_arn"`
	SQSQueueURL     string `mapstructure:"sqs_queue_url"`
}

// Transport configures the broker collaborators. Retry and circuit breaker
// apply to outbound publishing; SQS options drive redelivery of inbound
// messages.
type Transport struct {
	Driver         string         `mapstructure:"driver"`
	Retry          Retry          `mapstructure:"retry"`
	CircuitBreaker CircuitBreaker `mapstructure:"circuit_breaker"`
	SQS            SQS            `mapstructure:"sqs"`
}

type Retry struct {
	Limit    uint          `mapstructure:"limit"`
	Interval time.Duration `mapstructure:"interval"`
}

type CircuitBreaker struct {
	TrackingPeriod  time.Duration `mapstructure:"tracking_period"`
	TripThreshold   float64       `mapstructure:"trip_threshold"`
	ActiveThreshold uint32        `mapstructure:"active_threshold"`
	ResetInterval   time.Duration `mapstructure:"reset_interval"`
}

type SQS struct {
	Workers                 int32 `mapstructure:"workers"`
	Readers                 int32 `mapstructure:"readers"`
	MaxNumberOfMessages     int32 `mapstructure:"max_number_of_messages"`
	WaitTimeSeconds         int32 `mapstructure:"wait_time_seconds"`
	VisibilityTimeout       int32 `mapstructure:"visibility_timeout"`
	MaxVisibilityTimeout    int32 `mapstructure:"max_visibility_timeout"`
	ReceiveCountRange       int32 `mapstructure:"receive_count_range"`
	VisibilityTimeoutOffset int32 `mapstructure:"visibility_timeout_offset"`
}

type Saga struct {
	MaxAttempts            uint          `mapstructure:"max_attempts"`
	ConflictBackoffInitial time.Duration `mapstructure:"conflict_backoff_initial"`
	ConflictBackoffMax     time.Duration `mapstructure:"conflict_backoff_max"`
	Locker                 string        `mapstructure:"locker"`
}

type Outbox struct {
	Enabled   bool          `mapstructure:"enabled"`
	Interval  time.Duration `mapstructure:"interval"`
	BatchSize int           `mapstructure:"batch_size"`
	MinAge    time.Duration `mapstructure:"min_age"`
}

type Telemetry struct {
	Enabled      bool   `mapstructure:"enabled"`
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
}

type Log struct {
	Mode  string `mapstructure:"mode"`
	Level string `mapstructure:"level"`
}

// ReadConfig loads <ENVIRONMENT>.json from CONFIG_PATH or the config package
// directory. ORCHESTRATOR_* environment variables override file values.
func ReadConfig() (*Config, error) {
	configDir := os.Getenv("CONFIG_PATH")
	if configDir == "" {
		_, filename, _, ok := runtime.Caller(0)
		if !ok {
			return nil, fmt.Errorf("unable to get current file")
		}
		configDir = filepath.Dir(filename)
	}

	return readConfig(viper.New(), configDir, getConfigName())
}

func readConfig(v *viper.Viper, configDir, name string) (*Config, error) {
	v.SetConfigName(name)
	v.SetConfigType("json")
	v.AddConfigPath(configDir)

	v.SetEnvPrefix("ORCHESTRATOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, errors.Wrap(err, "error reading config file")
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, errors.Wrap(err, "error unmarshaling config")
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func getConfigName() string {
	env := os.Getenv("ENVIRONMENT")
	if env == "" {
		return "local"
	}
	return env
}

func setDefaults(v *viper.Viper) {
	// Service defaults
	v.SetDefault("service_name", "saga-orchestrator")
	v.SetDefault("env", "local")
	v.SetDefault("port", "8080")

	// Database defaults
	v.SetDefault("database.driver", DriverPostgres)
	v.SetDefault("database.url", "")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "password")
	v.SetDefault("database.database", "user_deletion")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.auto_migrate", true)

	// Redis defaults
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.lock_prefix", "orchestrator")
	v.SetDefault("redis.lock_ttl", "30s")
	v.SetDefault("redis.lock_retry_interval", "50ms")
	v.SetDefault("redis.lock_max_wait", "10s")

	// AWS defaults
	v.SetDefault("aws.access_key_id", "")
	v.SetDefault("aws.secret_access_key", "")
	v.SetDefault("aws.region", "us-east-1")
	v.SetDefault("aws.endpoint_sns", "")
	v.SetDefault("aws.endpoint_sqs", "")
	v.SetDefault("aws.sns_topic_arn", "")
	v.SetDefault("aws.sqs_queue_url", "")

	// Transport defaults: 5 retries every 5s, breaker tracking 1m, trips at
	// 15% failures once 10 publishes were seen, resets after 5m
	v.SetDefault("transport.driver", DriverSNS)
	v.SetDefault("transport.retry.limit", 5)
	v.SetDefault("transport.retry.interval", "5s")
	v.SetDefault("transport.circuit_breaker.tracking_period", "1m")
	v.SetDefault("transport.circuit_breaker.trip_threshold", 15)
	v.SetDefault("transport.circuit_breaker.active_threshold", 10)
	v.SetDefault("transport.circuit_breaker.reset_interval", "5m")
	v.SetDefault("transport.sqs.workers", 10)
	v.SetDefault("transport.sqs.readers", 1)
	v.SetDefault("transport.sqs.max_number_of_messages", 10)
	v.SetDefault("transport.sqs.wait_time_seconds", 15)
	v.SetDefault("transport.sqs.visibility_timeout", 30)
	v.SetDefault("transport.sqs.max_visibility_timeout", 900)
	v.SetDefault("transport.sqs.receive_count_range", 3)
	v.SetDefault("transport.sqs.visibility_timeout_offset", 30)

	// Saga runtime defaults
	v.SetDefault("saga.max_attempts", 5)
	v.SetDefault("saga.conflict_backoff_initial", "20ms")
	v.SetDefault("saga.conflict_backoff_max", "500ms")
	v.SetDefault("saga.locker", LockerLocal)

	// Outbox relay defaults
	v.SetDefault("outbox.enabled", true)
	v.SetDefault("outbox.interval", "10s")
	v.SetDefault("outbox.batch_size", 100)
	v.SetDefault("outbox.min_age", "30s")

	// Telemetry defaults
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.otlp_endpoint", "localhost:4318")

	// Log defaults
	v.SetDefault("log.mode", "development")
	v.SetDefault("log.level", "info")
}

// Validate checks the settings that cannot be defaulted
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case DriverPostgres, DriverMemory:
	default:
		return errors.Errorf("unknown database driver %q", c.Database.Driver)
	}

	switch c.Transport.Driver {
	case DriverSNS:
		if c.AWS.SNSTopicArn == "" || c.AWS.SQSQueueURL == "" {
			return errors.New("sns transport requires aws.sns_topic_arn and aws.sqs_queue_url")
		}
	case DriverMemory:
	default:
		return errors.Errorf("unknown transport driver %q", c.Transport.Driver)
	}

	switch c.Saga.Locker {
	case LockerNone, LockerLocal, LockerRedis:
	default:
		return errors.Errorf("unknown saga locker %q", c.Saga.Locker)
	}

	return nil
}

// GetDatabaseURL constructs database URL from config
func (c *Config) GetDatabaseURL() string {
	if c.Database.URL != "" {
		return c.Database.URL
	}

	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Database,
		c.Database.SSLMode,
	)
}
