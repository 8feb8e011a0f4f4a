package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			User:     "test",
			Password: "test",
			Database: "test_db",
		},
		Redis: RedisConfig{
			Host: "localhost",
			Port: 6379,
		},
		Saga: SagaConfig{
			RiskAcceptBelow:  0.3,
			RiskMonitorBelow: 0.7,
			RiskBlockAt:      0.9,
			StepTimeout:      5 * time.Minute,
			ReviewTimeout:    24 * time.Hour,
			LockTTL:          30 * time.Second,
		},
		Worker: WorkerConfig{
			BatchSize:     10,
			MaxDeliveries: 5,
		},
	}
}

func TestConfig_Validate_Success(t *testing.T) {
	err := validConfig().Validate()
	assert.NoError(t, err)
}

func TestConfig_Validate_InvalidServerPort(t *testing.T) {
	tests := []struct {
		name string
		port int
	}{
		{"port too low", 0},
		{"port negative", -1},
		{"port too high", 99999},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			cfg.Server.Port = tt.port

			err := cfg.Validate()
			assert.Error(t, err)
			assert.Contains(t, err.Error(), "server.port")
		})
	}
}

func TestConfig_Validate_RiskThresholdOrdering(t *testing.T) {
	tests := []struct {
		name                   string
		accept, monitor, block float64
	}{
		{"accept equals monitor", 0.5, 0.5, 0.9},
		{"monitor above block", 0.3, 0.95, 0.9},
		{"all equal", 0.5, 0.5, 0.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			cfg.Saga.RiskAcceptBelow = tt.accept
			cfg.Saga.RiskMonitorBelow = tt.monitor
			cfg.Saga.RiskBlockAt = tt.block

			err := cfg.Validate()
			assert.Error(t, err)
			assert.Contains(t, err.Error(), "risk thresholds")
		})
	}
}

func TestConfig_Validate_RiskBlockAboveOne(t *testing.T) {
	cfg := validConfig()
	cfg.Saga.RiskBlockAt = 1.5

	err := cfg.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "risk_block_at")
}

func TestConfig_Validate_InvalidTimeouts(t *testing.T) {
	cfg := validConfig()
	cfg.Saga.StepTimeout = 0
	cfg.Saga.ReviewTimeout = 0

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "step_timeout")
	assert.Contains(t, err.Error(), "review_timeout")
}

func TestConfig_Validate_InvalidMockFailureRate(t *testing.T) {
	cfg := validConfig()
	cfg.Providers.MockFailureRate = 1.2

	err := cfg.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "mock_failure_rate")
}

func TestConfig_Validate_MultipleErrors(t *testing.T) {
	cfg := &Config{}

	err := cfg.Validate()
	require.Error(t, err)

	errStr := err.Error()
	assert.Contains(t, errStr, "server.port")
	assert.Contains(t, errStr, "database.host")
	assert.Contains(t, errStr, "redis.port")
	assert.Contains(t, errStr, "worker.batch_size")
	assert.Contains(t, errStr, "worker.max_deliveries")
}

func TestDatabaseConfig_DSN(t *testing.T) {
	cfg := DatabaseConfig{
		Host:     "db.example.com",
		Port:     5432,
		User:     "app",
		Password: "secret",
		Database: "payflow",
		SSLMode:  "require",
	}

	dsn := cfg.DatabaseDSN()
	assert.Equal(t, "host=db.example.com port=5432 user=app password=secret dbname=payflow sslmode=require", dsn)
}

func TestRedisConfig_Addr(t *testing.T) {
	cfg := RedisConfig{Host: "redis.example.com", Port: 6380}
	assert.Equal(t, "redis.example.com:6380", cfg.RedisAddr())
}
