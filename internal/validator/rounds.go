package validator

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/datura-labs/argus/internal/dispatch"
	"github.com/datura-labs/argus/internal/selector"
	"github.com/datura-labs/argus/internal/worker"
)

func (v *Validator) syncBlock() {
	resp, err := v.Registry.GetLatestBlock()
	if err != nil {
		log.Error().Err(err).Msg("failed to get latest block")
		return
	}
	v.State.SetBlock(resp.Data.BlockNumber)
	log.Trace().Int("block", resp.Data.BlockNumber).Msg("block synced")
}

// refreshMembership pulls a fresh metagraph, probes every registered worker,
// and purges organic history for uids whose registration changed hands or
// disappeared since the last snapshot.
func (v *Validator) refreshMembership() {
	log.Info().Msgf("syncing metagraph data for subnet: %d", v.State.Netuid())

	resp, err := v.Registry.GetMetagraph(v.State.Netuid())
	if err != nil {
		log.Error().Err(err).Msg("failed to get metagraph")
		return
	}

	prev := v.Tracker.Snapshot()
	v.State.SetMetagraph(resp.Data)

	if err := v.Tracker.Refresh(v.Ctx); err != nil {
		log.Error().Err(err).Msg("failed to refresh membership")
		return
	}

	departed := departedWorkers(prev, resp.Data.Hotkeys)
	if len(departed) == 0 {
		return
	}
	log.Info().Ints64("uids", departed).Msg("workers left or changed registration, purging organic history")
	if err := v.History.RemoveWorkers(v.Ctx, departed); err != nil {
		log.Error().Err(err).Msg("failed to purge departed workers from organic history")
	}
}

// departedWorkers reports uids from the previous snapshot that are gone from
// the new metagraph or whose slot was re-registered under a different hotkey.
func departedWorkers(prev map[int64]worker.Record, hotkeys []string) []int64 {
	var departed []int64
	for uid, rec := range prev {
		if uid >= int64(len(hotkeys)) || hotkeys[uid] != rec.Hotkey {
			departed = append(departed, uid)
		}
	}
	return departed
}

// syntheticProbeRound queries workers that have not served any organic traffic
// yet with a generated probe prompt, so they accumulate reputation instead of
// idling at their initial score.
func (v *Validator) syntheticProbeRound() {
	if !v.syntheticRunning.CompareAndSwap(false, true) {
		return
	}
	defer v.syntheticRunning.Store(false)

	unscored := v.History.WorkersWithoutHistory(v.Ctx, v.Tracker.AvailableUIDs())
	if len(unscored) == 0 {
		return
	}

	targets := v.records(unscored)
	if len(targets) == 0 {
		return
	}

	prompt, tools := v.Synthetic.Next()
	task := worker.QueryTask{
		TaskID:   uuid.NewString(),
		Prompt:   prompt,
		Tools:    tools,
		Strategy: string(selector.StrategyAll),
		IssuedAt: time.Now(),
	}

	log.Info().Int("targets", len(targets)).Str("task_id", task.TaskID).Msg("starting synthetic probe round")

	results := dispatch.Run(v.Ctx, v.Transport, targets, task, v.Config.ClientTimeout)
	responses := dispatch.Successes(results)
	if len(responses) == 0 {
		log.Info().Str("task_id", task.TaskID).Msg("no responses in synthetic probe round")
		return
	}

	rewards := v.Aggregator.Score(v.Ctx, task, responses)
	if err := v.Store.UpdateBatch(v.Ctx, rewards); err != nil {
		log.Error().Err(err).Msg("failed to apply synthetic round rewards")
	}
}

// replayRound re-scores one randomly sampled organic interaction per worker.
// Sampling random entries rather than the latest keeps workers from gaming
// the window with one good final answer.
func (v *Validator) replayRound() {
	if !v.replayRunning.CompareAndSwap(false, true) {
		return
	}
	defer v.replayRunning.Store(false)

	sample := v.History.SampleRandom(v.Ctx)
	if len(sample) == 0 {
		return
	}

	log.Info().Int("workers", len(sample)).Msg("replaying sampled organic interactions for scoring")

	rewards := make(map[int64]float64, len(sample))
	for uid, entry := range sample {
		if entry.Response == nil {
			continue
		}
		scored := v.Aggregator.Score(v.Ctx, entry.Task, []*worker.Response{entry.Response})
		if r, ok := scored[uid]; ok {
			rewards[uid] = r
		}
	}

	if err := v.Store.UpdateBatch(v.Ctx, rewards); err != nil {
		log.Error().Err(err).Msg("failed to apply replay round rewards")
	}
}

func (v *Validator) commitWeights() {
	step := v.Store.Step()
	if !v.Committer.ShouldCommit(step) {
		log.Trace().Int("step", step).Int("blocks_left", v.State.BlocksUntilEpoch()).Msg("weight commit not due")
		return
	}
	if err := v.Committer.Commit(v.Store); err != nil {
		log.Error().Err(err).Msg("failed to commit weights")
	}
}

// OrganicParams describes one live user query entering through the API.
type OrganicParams struct {
	Prompt        string
	Tools         []string
	Strategy      selector.Strategy
	SpecifiedUIDs []int64
}

// OrganicRound selects workers for a live query, fans the task out, and calls
// emit for every per-worker result as it completes so the API can stream
// partial output. Successful responses are recorded into organic history and
// scored asynchronously; the caller gets results without waiting on scoring.
func (v *Validator) OrganicRound(ctx context.Context, p OrganicParams, emit func(dispatch.Result)) (worker.QueryTask, error) {
	task := worker.QueryTask{
		TaskID:   uuid.NewString(),
		Prompt:   p.Prompt,
		Tools:    p.Tools,
		Strategy: string(p.Strategy),
		IssuedAt: time.Now(),
		Organic:  true,
	}

	uids := v.Selector.Select(p.Strategy, v.Tracker.Snapshot(), selector.Options{SpecifiedUIDs: p.SpecifiedUIDs})
	if len(uids) == 0 {
		return task, fmt.Errorf("no available workers match the requested selection")
	}
	targets := v.records(uids)

	log.Info().Str("task_id", task.TaskID).Str("strategy", string(p.Strategy)).Ints64("uids", uids).
		Msg("starting organic round")

	startTime := time.Now()
	var responses []*worker.Response
	for result := range dispatch.Stream(ctx, v.Transport, targets, task, v.Config.ClientTimeout) {
		if result.Err == nil && result.Response != nil {
			responses = append(responses, result.Response)
		}
		if emit != nil {
			emit(result)
		}
	}

	for _, resp := range responses {
		if err := v.History.Record(v.Ctx, resp.UID, resp, task, nil, startTime); err != nil {
			log.Error().Err(err).Int64("uid", resp.UID).Msg("failed to record organic interaction")
		}
	}

	if len(responses) > 0 {
		v.Wg.Add(1)
		go v.scoreOrganic(task, responses)
	}

	return task, nil
}

// scoreOrganic runs off the round's critical path; the WaitGroup entry keeps
// Stop from flushing scores while an update is still in flight.
func (v *Validator) scoreOrganic(task worker.QueryTask, responses []*worker.Response) {
	defer v.Wg.Done()
	defer func() {
		if r := recover(); r != nil {
			log.Error().Any("panic", r).Str("task_id", task.TaskID).Msg("organic scoring panicked")
		}
	}()

	rewards := v.Aggregator.Score(v.Ctx, task, responses)
	if err := v.Store.UpdateBatch(v.Ctx, rewards); err != nil {
		log.Error().Err(err).Str("task_id", task.TaskID).Msg("failed to apply organic rewards")
	}
}

// records resolves uids against the membership snapshot, dropping uids that
// fell out of membership between selection and dispatch.
func (v *Validator) records(uids []int64) []worker.Record {
	out := make([]worker.Record, 0, len(uids))
	for _, uid := range uids {
		if rec, ok := v.Tracker.Get(uid); ok && rec.Address != "" {
			out = append(out, rec)
		}
	}
	return out
}
