// Package reputation maintains the decayed per-worker trust score and commits
// it to the registry as weights.
package reputation

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/bytedance/sonic"
	"github.com/rs/zerolog/log"

	"github.com/datura-labs/argus/internal/utils/redis"
)

const (
	scoresKey = "validator:reputation_scores"
	stepKey   = "validator:reputation_step"
)

// Store folds rewards into per-worker moving averages. One mutex serializes
// all writes; update frequency is low relative to read frequency, so a single
// lock around the map is sufficient. Every update persists the full vector so
// a crash loses at most one update.
type Store struct {
	redis redis.RedisInterface
	alpha float64

	mu     sync.RWMutex
	step   int
	scores map[int64]float64
}

// NewStore loads any previously persisted score vector so reputation survives
// process restarts.
func NewStore(ctx context.Context, r redis.RedisInterface, alpha float64) (*Store, error) {
	if alpha <= 0 || alpha > 1 {
		return nil, fmt.Errorf("moving average alpha must be in (0,1], got %f", alpha)
	}

	s := &Store{
		redis:  r,
		alpha:  alpha,
		scores: make(map[int64]float64),
	}

	vals, err := r.GetMulti(ctx, []string{scoresKey, stepKey})
	if err != nil {
		return nil, fmt.Errorf("load scores: %w", err)
	}
	if raw := vals[scoresKey]; raw != "" {
		if err := sonic.Unmarshal([]byte(raw), &s.scores); err != nil {
			return nil, fmt.Errorf("unmarshal scores: %w", err)
		}
	}
	if raw := vals[stepKey]; raw != "" {
		step, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("parse score step: %w", err)
		}
		s.step = step
	}
	if len(s.scores) > 0 {
		log.Info().Int("step", s.step).Int("workers", len(s.scores)).Msg("loaded reputation scores")
	}

	return s, nil
}

// Update folds one reward into the worker's score and persists the vector.
// A worker with no prior score is initialized to the reward itself, not to
// zero, so new workers are not punished for having no history. A persistence
// failure keeps the in-memory update and returns the error so callers can
// raise an alert: the round is not lost, durability is.
func (s *Store) Update(ctx context.Context, uid int64, reward float64) (float64, error) {
	reward = clamp01(reward)

	s.mu.Lock()
	old, ok := s.scores[uid]
	var next float64
	if !ok {
		next = reward
	} else {
		next = s.alpha*reward + (1-s.alpha)*old
	}
	s.scores[uid] = next
	s.step++
	s.mu.Unlock()

	if err := s.persist(ctx); err != nil {
		log.Error().Err(err).Int64("uid", uid).Msg("CRITICAL: failed to persist reputation scores")
		return next, fmt.Errorf("persist scores: %w", err)
	}
	return next, nil
}

// UpdateBatch applies one round's rewards and persists once at the end.
func (s *Store) UpdateBatch(ctx context.Context, rewards map[int64]float64) error {
	if len(rewards) == 0 {
		return nil
	}

	s.mu.Lock()
	for uid, reward := range rewards {
		reward = clamp01(reward)
		if old, ok := s.scores[uid]; ok {
			s.scores[uid] = s.alpha*reward + (1-s.alpha)*old
		} else {
			s.scores[uid] = reward
		}
	}
	s.step++
	s.mu.Unlock()

	if err := s.persist(ctx); err != nil {
		log.Error().Err(err).Int("rewards", len(rewards)).Msg("CRITICAL: failed to persist reputation scores")
		return fmt.Errorf("persist scores: %w", err)
	}
	return nil
}

// Snapshot returns a copy of the current score vector.
func (s *Store) Snapshot() map[int64]float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[int64]float64, len(s.scores))
	for uid, score := range s.scores {
		out[uid] = score
	}
	return out
}

// Step returns the number of score updates applied so far.
func (s *Store) Step() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.step
}

// Reset drops all scores and deletes the persisted keys. Only used on explicit
// resync with the registry.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	s.scores = make(map[int64]float64)
	s.step = 0
	s.mu.Unlock()
	return s.redis.Del(ctx, scoresKey, stepKey)
}

// Flush writes the current vector to the durable store. Called on shutdown.
func (s *Store) Flush(ctx context.Context) error {
	return s.persist(ctx)
}

// persist writes the score vector and step counter in one batched round trip.
func (s *Store) persist(ctx context.Context) error {
	s.mu.RLock()
	step := s.step
	scores := make(map[int64]float64, len(s.scores))
	for uid, score := range s.scores {
		scores[uid] = score
	}
	s.mu.RUnlock()

	b, err := sonic.Marshal(scores)
	if err != nil {
		return fmt.Errorf("marshal scores: %w", err)
	}
	return s.redis.SetMulti(ctx, map[string]string{
		scoresKey: string(b),
		stepKey:   strconv.Itoa(step),
	})
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
