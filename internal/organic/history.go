// Package organic tracks served organic (live user) queries per worker so
// representative interactions can be re-scored later without re-querying the
// network.
package organic

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/rs/zerolog/log"

	"github.com/datura-labs/argus/internal/utils/redis"
	"github.com/datura-labs/argus/internal/worker"
)

const historyKey = "validator:organic_history"

// Entry is one served organic interaction for one worker.
type Entry struct {
	Response  *worker.Response `json:"response"`
	Task      worker.QueryTask `json:"task"`
	Event     map[string]any   `json:"event,omitempty"`
	StartTime time.Time        `json:"start_time"`
}

// History keeps a bounded-time, per-worker list of organic entries. Entries
// older than the retention window are pruned lazily on every read path;
// eviction is by age, never by count. One mutex serializes all mutation, and
// the backing Redis key carries a TTL equal to the retention window so a dead
// process leaves nothing stale behind.
type History struct {
	redis     redis.RedisInterface
	retention time.Duration

	mu      sync.Mutex
	entries map[int64][]Entry
	now     func() time.Time
}

func NewHistory(ctx context.Context, r redis.RedisInterface, retention time.Duration) (*History, error) {
	if retention <= 0 {
		return nil, fmt.Errorf("retention window must be positive, got %v", retention)
	}

	h := &History{
		redis:     r,
		retention: retention,
		entries:   make(map[int64][]Entry),
		now:       time.Now,
	}

	raw, err := r.Get(ctx, historyKey)
	if err != nil {
		return nil, fmt.Errorf("load organic history: %w", err)
	}
	if raw != "" {
		if err := sonic.Unmarshal([]byte(raw), &h.entries); err != nil {
			return nil, fmt.Errorf("unmarshal organic history: %w", err)
		}
		log.Info().Int("workers", len(h.entries)).Msg("loaded organic history")
	}

	return h, nil
}

// Record appends one served organic interaction to the worker's list.
func (h *History) Record(ctx context.Context, uid int64, resp *worker.Response, task worker.QueryTask, event map[string]any, startTime time.Time) error {
	h.mu.Lock()
	h.entries[uid] = append(h.entries[uid], Entry{
		Response:  resp,
		Task:      task,
		Event:     event,
		StartTime: startTime,
	})
	h.mu.Unlock()

	return h.persist(ctx)
}

// SampleRandom returns one entry per worker, picked independently and
// uniformly at random among that worker's current entries.
func (h *History) SampleRandom(ctx context.Context) map[int64]Entry {
	h.mu.Lock()
	h.evictStaleLocked()
	out := make(map[int64]Entry, len(h.entries))
	for uid, list := range h.entries {
		out[uid] = list[rand.IntN(len(list))]
	}
	h.mu.Unlock()

	h.persistLogged(ctx)
	return out
}

// SampleLatest returns each worker's most recent entry.
func (h *History) SampleLatest(ctx context.Context) map[int64]Entry {
	h.mu.Lock()
	h.evictStaleLocked()
	out := make(map[int64]Entry, len(h.entries))
	for uid, list := range h.entries {
		out[uid] = list[len(list)-1]
	}
	h.mu.Unlock()

	h.persistLogged(ctx)
	return out
}

// WorkersWithoutHistory returns the subset of available workers that have no
// recorded organic interaction.
func (h *History) WorkersWithoutHistory(ctx context.Context, available []int64) []int64 {
	h.mu.Lock()
	h.evictStaleLocked()
	out := make([]int64, 0, len(available))
	for _, uid := range available {
		if _, ok := h.entries[uid]; !ok {
			out = append(out, uid)
		}
	}
	h.mu.Unlock()

	h.persistLogged(ctx)
	return out
}

// EvictStale removes entries older than the retention window. A worker whose
// list becomes empty is removed from the map entirely.
func (h *History) EvictStale(ctx context.Context) {
	h.mu.Lock()
	h.evictStaleLocked()
	h.mu.Unlock()

	h.persistLogged(ctx)
}

// RemoveWorkers purges history for workers that left membership so entities
// out of scope cannot grow the map or be re-scored.
func (h *History) RemoveWorkers(ctx context.Context, uids []int64) error {
	h.mu.Lock()
	for _, uid := range uids {
		delete(h.entries, uid)
	}
	h.mu.Unlock()

	return h.persist(ctx)
}

// Len reports the number of workers with at least one live entry.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.entries)
}

func (h *History) evictStaleLocked() {
	cutoff := h.now().Add(-h.retention)
	for uid, list := range h.entries {
		kept := list[:0]
		for _, e := range list {
			if !e.StartTime.Before(cutoff) {
				kept = append(kept, e)
			}
		}
		if len(kept) == 0 {
			delete(h.entries, uid)
			continue
		}
		h.entries[uid] = kept
	}
}

// persist mirrors the in-memory map to Redis. Once the last worker's history
// is gone the key is deleted outright rather than holding an empty blob.
func (h *History) persist(ctx context.Context) error {
	h.mu.Lock()
	if len(h.entries) == 0 {
		h.mu.Unlock()
		if err := h.redis.Del(ctx, historyKey); err != nil {
			return fmt.Errorf("delete organic history: %w", err)
		}
		return nil
	}
	b, err := sonic.Marshal(h.entries)
	h.mu.Unlock()
	if err != nil {
		return fmt.Errorf("marshal organic history: %w", err)
	}
	if err := h.redis.Set(ctx, historyKey, string(b), h.retention); err != nil {
		return fmt.Errorf("persist organic history: %w", err)
	}
	return nil
}

func (h *History) persistLogged(ctx context.Context) {
	if err := h.persist(ctx); err != nil {
		log.Error().Err(err).Msg("CRITICAL: failed to persist organic history")
	}
}
