package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Redis         RedisConfig         `mapstructure:"redis"`
	Saga          SagaConfig          `mapstructure:"saga"`
	Providers     ProvidersConfig     `mapstructure:"providers"`
	Worker        WorkerConfig        `mapstructure:"worker"`
	Observability ObservabilityConfig `mapstructure:"observability"`
	InstanceID    string              `mapstructure:"instance_id"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	RateLimit       int           `mapstructure:"rate_limit"`
	CORS            CORSConfig    `mapstructure:"cors"`
}

type CORSConfig struct {
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
}

type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Database        string        `mapstructure:"database"`
	MaxConnections  int           `mapstructure:"max_connections"`
	MinConnections  int           `mapstructure:"min_connections"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	SSLMode         string        `mapstructure:"ssl_mode"`
}

type RedisConfig struct {
	Host              string        `mapstructure:"host"`
	Port              int           `mapstructure:"port"`
	DB                int           `mapstructure:"db"`
	Password          string        `mapstructure:"password"`
	ConnectRetries    int           `mapstructure:"connect_retries"`
	ConnectRetryDelay time.Duration `mapstructure:"connect_retry_delay"`
}

// SagaConfig tunes the workflow state machine: risk-band thresholds and
// suspension deadlines.
type SagaConfig struct {
	RiskAcceptBelow  float64       `mapstructure:"risk_accept_below"`
	RiskMonitorBelow float64       `mapstructure:"risk_monitor_below"`
	RiskBlockAt      float64       `mapstructure:"risk_block_at"`
	StepTimeout      time.Duration `mapstructure:"step_timeout"`
	ReviewTimeout    time.Duration `mapstructure:"review_timeout"`
	SettlementDelay  time.Duration `mapstructure:"settlement_delay"`
	StepMaxRetries   int           `mapstructure:"step_max_retries"`
	StepRetryDelay   time.Duration `mapstructure:"step_retry_delay"`
	LockTTL          time.Duration `mapstructure:"lock_ttl"`
	SweepInterval    time.Duration `mapstructure:"sweep_interval"`
	SweepBatchSize   int           `mapstructure:"sweep_batch_size"`
}

// ProvidersConfig tunes the external-service adapters (compliance, accounts,
// settlement rail, notification).
type ProvidersConfig struct {
	CallTimeout             time.Duration `mapstructure:"call_timeout"`
	CircuitBreakerThreshold uint32        `mapstructure:"circuit_breaker_threshold"`
	CircuitBreakerTimeout   time.Duration `mapstructure:"circuit_breaker_timeout"`
	MockLatency             time.Duration `mapstructure:"mock_latency"`
	MockFailureRate         float64       `mapstructure:"mock_failure_rate"`
}

type WorkerConfig struct {
	BatchSize     int64         `mapstructure:"batch_size"`
	BlockDuration time.Duration `mapstructure:"block_duration"`
	ConsumerGroup string        `mapstructure:"consumer_group"`
	Concurrency   int           `mapstructure:"concurrency"`
	MaxDeliveries int           `mapstructure:"max_deliveries"`
	ClaimMinIdle  time.Duration `mapstructure:"claim_min_idle"`
	ClaimInterval time.Duration `mapstructure:"claim_interval"`
}

type ObservabilityConfig struct {
	LogLevel       string `mapstructure:"log_level"`
	JaegerEndpoint string `mapstructure:"jaeger_endpoint"`
	EnableMetrics  bool   `mapstructure:"enable_metrics"`
	EnableTracing  bool   `mapstructure:"enable_tracing"`
}

func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("PAYFLOW")
	v.AutomaticEnv()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/payflow")

	// Config file is optional
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port))
	}
	if c.Server.ReadTimeout <= 0 {
		errs = append(errs, fmt.Errorf("server.read_timeout must be positive"))
	}
	if c.Server.WriteTimeout <= 0 {
		errs = append(errs, fmt.Errorf("server.write_timeout must be positive"))
	}
	if c.Database.Host == "" {
		errs = append(errs, fmt.Errorf("database.host is required"))
	}
	if c.Database.Port <= 0 {
		errs = append(errs, fmt.Errorf("database.port must be positive"))
	}
	if c.Redis.Port <= 0 {
		errs = append(errs, fmt.Errorf("redis.port must be positive"))
	}
	if !(c.Saga.RiskAcceptBelow < c.Saga.RiskMonitorBelow && c.Saga.RiskMonitorBelow < c.Saga.RiskBlockAt) {
		errs = append(errs, fmt.Errorf("saga risk thresholds must be strictly increasing: accept_below < monitor_below < block_at"))
	}
	if c.Saga.RiskBlockAt > 1 {
		errs = append(errs, fmt.Errorf("saga.risk_block_at must be at most 1"))
	}
	if c.Saga.StepTimeout <= 0 {
		errs = append(errs, fmt.Errorf("saga.step_timeout must be positive"))
	}
	if c.Saga.ReviewTimeout <= 0 {
		errs = append(errs, fmt.Errorf("saga.review_timeout must be positive"))
	}
	if c.Saga.LockTTL <= 0 {
		errs = append(errs, fmt.Errorf("saga.lock_ttl must be positive"))
	}
	if c.Worker.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("worker.batch_size must be positive"))
	}
	if c.Worker.MaxDeliveries <= 0 {
		errs = append(errs, fmt.Errorf("worker.max_deliveries must be positive"))
	}
	if c.Providers.MockFailureRate < 0 || c.Providers.MockFailureRate > 1 {
		errs = append(errs, fmt.Errorf("providers.mock_failure_rate must be in [0, 1]"))
	}

	env := os.Getenv("ENV")
	if env == "production" || env == "prod" {
		if c.Database.Password == "" {
			errs = append(errs, fmt.Errorf("database.password required in production"))
		}
	}

	return errors.Join(errs...)
}

func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "15s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("server.rate_limit", 300)
	v.SetDefault("server.cors.allowed_origins", []string{"*"})
	v.SetDefault("server.cors.allow_credentials", false)

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "payflow")
	v.SetDefault("database.database", "payflow")
	v.SetDefault("database.max_connections", 25)
	v.SetDefault("database.min_connections", 5)
	v.SetDefault("database.conn_max_lifetime", "1h")
	v.SetDefault("database.ssl_mode", "disable")

	// Redis defaults
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.connect_retries", 5)
	v.SetDefault("redis.connect_retry_delay", "1s")

	// Saga defaults
	v.SetDefault("saga.risk_accept_below", 0.3)
	v.SetDefault("saga.risk_monitor_below", 0.7)
	v.SetDefault("saga.risk_block_at", 0.9)
	v.SetDefault("saga.step_timeout", "5m")
	v.SetDefault("saga.review_timeout", "24h")
	v.SetDefault("saga.settlement_delay", "0s")
	v.SetDefault("saga.step_max_retries", 5)
	v.SetDefault("saga.step_retry_delay", "100ms")
	v.SetDefault("saga.lock_ttl", "30s")
	v.SetDefault("saga.sweep_interval", "30s")
	v.SetDefault("saga.sweep_batch_size", 100)

	// Provider defaults
	v.SetDefault("providers.call_timeout", "5s")
	v.SetDefault("providers.circuit_breaker_threshold", 10)
	v.SetDefault("providers.circuit_breaker_timeout", "30s")
	v.SetDefault("providers.mock_latency", "50ms")
	v.SetDefault("providers.mock_failure_rate", 0.0)

	// Worker defaults
	v.SetDefault("worker.batch_size", 10)
	v.SetDefault("worker.block_duration", "1s")
	v.SetDefault("worker.consumer_group", "saga-workers")
	v.SetDefault("worker.concurrency", 4)
	v.SetDefault("worker.max_deliveries", 5)
	v.SetDefault("worker.claim_min_idle", "1m")
	v.SetDefault("worker.claim_interval", "30s")

	// Observability defaults
	v.SetDefault("observability.log_level", "info")
	v.SetDefault("observability.jaeger_endpoint", "http://localhost:14268/api/traces")
	v.SetDefault("observability.enable_metrics", true)
	v.SetDefault("observability.enable_tracing", true)

	// Instance ID
	v.SetDefault("instance_id", "payflow-1")
}

func (c *DatabaseConfig) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

func (c *RedisConfig) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
