// Package validator implements the validator runtime: membership sync, query
// round orchestration, reward aggregation, and weight commits.
package validator

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/datura-labs/argus/internal/chain"
	"github.com/datura-labs/argus/internal/config"
	"github.com/datura-labs/argus/internal/membership"
	"github.com/datura-labs/argus/internal/organic"
	"github.com/datura-labs/argus/internal/reputation"
	"github.com/datura-labs/argus/internal/reward"
	"github.com/datura-labs/argus/internal/selector"
	"github.com/datura-labs/argus/internal/synthetic"
	"github.com/datura-labs/argus/internal/worker"
)

// Validator coordinates query rounds and on-chain state for a subnet.
type Validator struct {
	Registry  chain.Registry
	State     *chain.State
	Tracker   *membership.Tracker
	Transport worker.Transport

	Selector   *selector.Selector
	Aggregator *reward.Aggregator
	Store      *reputation.Store
	Committer  *reputation.Committer
	History    *organic.History
	Synthetic  *synthetic.Source

	IntervalConfig *config.IntervalConfig
	Config         *config.AppConfig

	Ctx    context.Context
	Cancel context.CancelFunc
	Wg     sync.WaitGroup

	syntheticRunning atomic.Bool // one probe round at a time
	replayRunning    atomic.Bool // one replay round at a time
}

// Deps bundles the constructed subsystems a Validator runs on.
type Deps struct {
	Registry   chain.Registry
	State      *chain.State
	Tracker    *membership.Tracker
	Transport  worker.Transport
	Aggregator *reward.Aggregator
	Store      *reputation.Store
	Committer  *reputation.Committer
	History    *organic.History
}

func NewValidator(cfg *config.AppConfig, deps Deps) *Validator {
	ctx, cancel := context.WithCancel(context.Background())

	return &Validator{
		Registry:  deps.Registry,
		State:     deps.State,
		Tracker:   deps.Tracker,
		Transport: deps.Transport,

		Selector:   selector.New(),
		Aggregator: deps.Aggregator,
		Store:      deps.Store,
		Committer:  deps.Committer,
		History:    deps.History,
		Synthetic:  synthetic.NewSource(),

		IntervalConfig: config.NewIntervalConfig(cfg.Environment),
		Config:         cfg,

		Ctx:    ctx,
		Cancel: cancel,
		Wg:     sync.WaitGroup{},
	}
}

// runTicker runs a function periodically until the provided context is
// canceled. fn is executed in its own goroutine so the ticker loop can exit
// quickly when the context is canceled; a panicking round is logged and the
// ticker keeps running. Each round is tracked on the WaitGroup so Stop waits
// for an in-flight round to finish before the final flush.
func (v *Validator) runTicker(ctx context.Context, d time.Duration, name string, fn func()) {
	defer v.Wg.Done()
	t := time.NewTicker(d)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			v.Wg.Add(1)
			go func() {
				defer v.Wg.Done()
				defer func() {
					if r := recover(); r != nil {
						log.Error().Str("task", name).Any("panic", r).Msg("background task panicked")
					}
				}()
				fn()
			}()
		}
	}
}

// Start kicks off the periodic routines: chain sync, membership probes,
// synthetic probe rounds, organic replay scoring, history eviction, and
// epoch-gated weight commits.
func (v *Validator) Start() {
	v.Wg.Add(1)
	go v.runTicker(v.Ctx, v.IntervalConfig.BlockInterval, "block-sync", func() {
		v.syncBlock()
	})

	v.Wg.Add(1)
	go v.runTicker(v.Ctx, v.IntervalConfig.MembershipInterval, "membership-refresh", func() {
		v.refreshMembership()
	})

	v.Wg.Add(1)
	go v.runTicker(v.Ctx, v.IntervalConfig.SyntheticInterval, "synthetic-round", func() {
		v.syntheticProbeRound()
	})

	v.Wg.Add(1)
	go v.runTicker(v.Ctx, v.IntervalConfig.ReplayInterval, "organic-replay", func() {
		v.replayRound()
	})

	v.Wg.Add(1)
	go v.runTicker(v.Ctx, v.IntervalConfig.EvictionInterval, "history-eviction", func() {
		v.History.EvictStale(v.Ctx)
	})

	v.Wg.Add(1)
	go v.runTicker(v.Ctx, v.IntervalConfig.CommitInterval, "weight-commit", func() {
		v.commitWeights()
	})
}

// Stop cancels background routines, waits for them to finish, and flushes the
// score vector one last time.
func (v *Validator) Stop() {
	if v.Cancel != nil {
		v.Cancel()
	}
	v.Wg.Wait()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := v.Store.Flush(ctx); err != nil {
		log.Error().Err(err).Msg("failed to flush reputation scores on shutdown")
	}
	log.Info().Msg("validator stopped")
}
