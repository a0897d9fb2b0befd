package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/datura-labs/argus/internal/chain"
	"github.com/datura-labs/argus/internal/config"
	"github.com/datura-labs/argus/internal/membership"
	"github.com/datura-labs/argus/internal/organic"
	"github.com/datura-labs/argus/internal/reputation"
	"github.com/datura-labs/argus/internal/reward"
	"github.com/datura-labs/argus/internal/utils/logger"
	"github.com/datura-labs/argus/internal/utils/redis"
	"github.com/datura-labs/argus/internal/validator"
	"github.com/datura-labs/argus/internal/worker"
)

// Component weights for the reward pipeline. Relevance dominates; freshness
// and performance nudge rankings among relevant answers.
const (
	relevanceWeight   = 0.6
	freshnessWeight   = 0.2
	performanceWeight = 0.2

	freshnessWindow = 72 * time.Hour
)

func main() {
	logger.Init()
	log.Info().Msg("Starting validator...")

	if err := godotenv.Load(); err != nil {
		log.Debug().Msg(".env not loaded; continuing with existing environment")
	}

	ctx := context.Background()
	cfg, err := config.LoadConfig(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load environment configuration")
	}

	registry, err := chain.NewClient(&cfg.ChainEnvConfig)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to init chain sidecar client")
	}

	r, err := redis.NewRedis(&cfg.RedisEnvConfig)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to init redis client")
	}

	store, err := reputation.NewStore(ctx, r, cfg.MovingAverageAlpha)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to init reputation store")
	}

	history, err := organic.NewHistory(ctx, r, cfg.HistoryRetention)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to init organic history")
	}

	state := chain.NewState(cfg.Netuid)
	transport := worker.NewClient()
	tracker := membership.NewTracker(state, transport, cfg.ProbeTimeout)
	committer := reputation.NewCommitter(registry, state, cfg.CommitBlockThreshold)

	aggregator, err := newAggregator(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build reward pipeline")
	}

	v := validator.NewValidator(cfg, validator.Deps{
		Registry:   registry,
		State:      state,
		Tracker:    tracker,
		Transport:  transport,
		Aggregator: aggregator,
		Store:      store,
		Committer:  committer,
		History:    history,
	})

	server := validator.NewServer(&cfg.ServerEnvConfig, v)

	// setup signal handling for graceful shutdown before starting validator
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		log.Info().Msg("shutdown signal received, stopping validator")
		v.Stop()
	}()

	v.Start()

	// Listen blocks until the validator context is canceled, then shuts the
	// API down gracefully.
	if err := server.Start(v.Ctx); err != nil {
		log.Error().Err(err).Msg("api server shutdown error")
	}
}

// newAggregator assembles the scoring pipeline: oracle-backed relevance with
// remote fallback and local lexical last resort, freshness, and latency.
func newAggregator(cfg *config.AppConfig) (*reward.Aggregator, error) {
	var oracles []reward.Oracle
	if cfg.OracleURL != "" {
		oracles = append(oracles, reward.NewRemoteOracle("primary", cfg.OracleURL))
	}
	if cfg.FallbackOracleURL != "" {
		oracles = append(oracles, reward.NewRemoteOracle("fallback", cfg.FallbackOracleURL))
	}
	oracles = append(oracles, reward.LexicalOracle{})

	components := []reward.Component{
		reward.NewRelevanceComponent(relevanceWeight, reward.NewOracleChain(oracles...)),
		reward.NewFreshnessComponent(freshnessWeight, freshnessWindow),
		reward.NewPerformanceComponent(performanceWeight, cfg.ClientTimeout),
	}
	penalties := []reward.Criterion{
		reward.ContentValidityCriterion{},
		reward.TaskValidationCriterion{},
	}

	return reward.NewAggregator(components, penalties, 1.0)
}
