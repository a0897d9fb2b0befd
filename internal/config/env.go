// Package config defines environment configuration structs and loaders.
package config

import (
	"context"
	"strings"
	"time"

	"github.com/sethvargo/go-envconfig"
)

type AppConfig struct {
	ChainEnvConfig
	RedisEnvConfig
	ServerEnvConfig
	ClientEnvConfig
	RewardEnvConfig
	ValidatorEnvConfig
}

func LoadConfig(ctx context.Context) (*AppConfig, error) {
	cfg := &AppConfig{}
	if err := envconfig.Process(ctx, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ChainEnvConfig holds chain sidecar and subnet identity values.
type ChainEnvConfig struct {
	Netuid           int    `env:"NETUID, default=22"`
	SubtensorNetwork string `env:"SUBTENSOR_NETWORK, default=test"`
	SidecarHost      string `env:"CHAIN_SIDECAR_HOST, default=127.0.0.1"`
	SidecarPort      string `env:"CHAIN_SIDECAR_PORT, default=3000"`
}

// RedisEnvConfig configures the Redis connection used for score and
// organic-history persistence.
type RedisEnvConfig struct {
	RedisHost     string `env:"REDIS_HOST, default=127.0.0.1"`
	RedisPort     int    `env:"REDIS_PORT, default=6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB, default=0"`
	RedisUsername string `env:"REDIS_USERNAME"`
}

// ServerEnvConfig configures the organic query API server.
type ServerEnvConfig struct {
	Port          int    `env:"API_PORT, default=8005"`
	BodySizeLimit int    `env:"SERVER_BODY_LIMIT, default=1048576"`
	AccessKey     string `env:"VALIDATOR_ACCESS_KEY"`
}

// ClientEnvConfig configures outbound calls to workers.
type ClientEnvConfig struct {
	ClientTimeout time.Duration `env:"CLIENT_TIMEOUT, default=30s"`
	ProbeTimeout  time.Duration `env:"PROBE_TIMEOUT, default=8s"`
}

// RewardEnvConfig configures the reward pipeline and reputation store.
type RewardEnvConfig struct {
	MovingAverageAlpha   float64       `env:"MOVING_AVERAGE_ALPHA, default=0.05"`
	HistoryRetention     time.Duration `env:"ORGANIC_HISTORY_RETENTION, default=2h"`
	CommitBlockThreshold int           `env:"COMMIT_BLOCK_THRESHOLD, default=20"`
	OracleURL            string        `env:"SCORING_ORACLE_URL"`
	FallbackOracleURL    string        `env:"SCORING_ORACLE_FALLBACK_URL"`
}

// ValidatorEnvConfig configures validator runtime.
type ValidatorEnvConfig struct {
	Environment string `env:"ENVIRONMENT, default=dev"`
}

// IntervalConfig groups the periods of the validator's background tasks.
type IntervalConfig struct {
	MembershipInterval time.Duration
	BlockInterval      time.Duration
	SyntheticInterval  time.Duration
	ReplayInterval     time.Duration
	EvictionInterval   time.Duration
	CommitInterval     time.Duration
}

var (
	DevIntervalConfig = &IntervalConfig{
		MembershipInterval: 5 * time.Second,
		BlockInterval:      2 * time.Second,
		SyntheticInterval:  15 * time.Second,
		ReplayInterval:     20 * time.Second,
		EvictionInterval:   10 * time.Second,
		CommitInterval:     5 * time.Second,
	}
	TestIntervalConfig = &IntervalConfig{
		MembershipInterval: 30 * time.Second,
		BlockInterval:      12 * time.Second,
		SyntheticInterval:  5 * time.Minute,
		ReplayInterval:     10 * time.Minute,
		EvictionInterval:   5 * time.Minute,
		CommitInterval:     1 * time.Minute,
	}

	ProdIntervalConfig = &IntervalConfig{
		MembershipInterval: 30 * time.Second,
		BlockInterval:      12 * time.Second,
		SyntheticInterval:  5 * time.Minute,
		ReplayInterval:     10 * time.Minute,
		EvictionInterval:   5 * time.Minute,
		CommitInterval:     1 * time.Minute,
	}
)

func NewIntervalConfig(environment string) *IntervalConfig {
	switch strings.ToLower(environment) {
	case "dev":
		return DevIntervalConfig
	case "test":
		return TestIntervalConfig
	case "prod":
		return ProdIntervalConfig
	}

	return DevIntervalConfig
}
