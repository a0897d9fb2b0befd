package reward

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/datura-labs/argus/internal/utils/logger"
	"github.com/datura-labs/argus/internal/worker"
)

// Aggregator runs the fixed scoring pipeline: weighted reward components,
// then penalty criteria.
//
// Composition rule, applied uniformly: component scores are weight-averaged
// over the weights that actually produced a value for the worker (so an
// unavailable component renormalizes rather than silently dragging the score
// down); penalties accumulate additively across criteria, the total is
// clamped to [0,1], and the reward is multiplied by (1 - total). A criterion
// emitting a full penalty therefore zeroes the reward regardless of the
// component scores.
type Aggregator struct {
	components []Component
	penalties  []Criterion
	maxWeight  float64
}

// NewAggregator validates that configured component weights do not exceed
// maxTotalWeight (commonly 1.0).
func NewAggregator(components []Component, penalties []Criterion, maxTotalWeight float64) (*Aggregator, error) {
	total := 0.0
	for _, c := range components {
		if c.Weight() < 0 {
			return nil, fmt.Errorf("component %s has negative weight %f", c.Name(), c.Weight())
		}
		total += c.Weight()
	}
	if total > maxTotalWeight+1e-9 {
		return nil, fmt.Errorf("component weights sum to %f, exceeding configured max %f", total, maxTotalWeight)
	}

	return &Aggregator{
		components: components,
		penalties:  penalties,
		maxWeight:  maxTotalWeight,
	}, nil
}

// Score computes one reward in [0,1] per worker uid for the batch. Component
// and criterion failures are logged and isolated: a failing component simply
// contributes nothing, it never aborts the batch.
func (a *Aggregator) Score(ctx context.Context, task worker.QueryTask, responses []*worker.Response) map[int64]float64 {
	startTime := time.Now()
	batch := Batch{Task: task, Responses: responses}

	weightedSum := make(map[int64]float64, len(responses))
	appliedWeight := make(map[int64]float64, len(responses))
	for _, resp := range responses {
		weightedSum[resp.UID] = 0
		appliedWeight[resp.UID] = 0
	}

	for _, component := range a.components {
		scores, err := component.Evaluate(ctx, batch)
		if err != nil {
			log.Error().Err(err).Str("component", component.Name()).Str("task_id", task.TaskID).
				Msg("reward component failed, contributing zero")
			continue
		}

		for uid, score := range scores {
			if _, ok := weightedSum[uid]; !ok {
				continue
			}
			weightedSum[uid] += clamp01(score) * component.Weight()
			appliedWeight[uid] += component.Weight()
		}
	}

	rewards := make(map[int64]float64, len(responses))
	for uid, sum := range weightedSum {
		if appliedWeight[uid] <= 0 {
			rewards[uid] = 0
			continue
		}
		rewards[uid] = sum / appliedWeight[uid]
	}

	penaltyTotals := make(map[int64]float64, len(responses))
	for _, criterion := range a.penalties {
		penalties, err := criterion.Evaluate(ctx, batch)
		if err != nil {
			log.Error().Err(err).Str("criterion", criterion.Name()).Str("task_id", task.TaskID).
				Msg("penalty criterion failed, skipping")
			continue
		}
		for uid, p := range penalties {
			penaltyTotals[uid] += p
		}
	}

	for uid, total := range penaltyTotals {
		if _, ok := rewards[uid]; !ok {
			continue
		}
		rewards[uid] *= 1 - clamp01(total)
	}

	for uid, r := range rewards {
		rewards[uid] = clamp01(r)
	}

	logger.Sugar().Infow("reward pipeline complete",
		"task_id", task.TaskID,
		"responses", len(responses),
		"duration", time.Since(startTime).String(),
	)

	return rewards
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
