// Package membership maintains the set of reachable workers, refreshed by
// periodic liveness probes against the registry's metagraph.
package membership

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/datura-labs/argus/internal/chain"
	"github.com/datura-labs/argus/internal/worker"
)

// Tracker probes every registered worker on a schedule and keeps the last
// snapshot for callers. Refresh never blocks readers: reads go against the
// previous snapshot until a new one is swapped in.
type Tracker struct {
	state        *chain.State
	transport    worker.Transport
	probeTimeout time.Duration

	mu      sync.RWMutex
	workers map[int64]worker.Record
}

func NewTracker(state *chain.State, transport worker.Transport, probeTimeout time.Duration) *Tracker {
	return &Tracker{
		state:        state,
		transport:    transport,
		probeTimeout: probeTimeout,
		workers:      make(map[int64]worker.Record),
	}
}

// Refresh probes all workers in the current metagraph concurrently and swaps
// in the resulting availability snapshot. Workers that fail a probe are
// excluded from this round only; there is no persistent ban state.
func (t *Tracker) Refresh(ctx context.Context) error {
	mg := t.state.Metagraph()
	if len(mg.Hotkeys) == 0 {
		return fmt.Errorf("metagraph not synced yet")
	}

	now := time.Now()
	records := make([]worker.Record, len(mg.Hotkeys))

	var wg sync.WaitGroup
	for uid := range mg.Hotkeys {
		addr := ""
		if uid < len(mg.Axons) {
			addr = fmt.Sprintf("%s:%d", mg.Axons[uid].IP, mg.Axons[uid].Port)
		}

		records[uid] = worker.Record{
			UID:         int64(uid),
			Address:     addr,
			Hotkey:      mg.Hotkeys[uid],
			LastChecked: now,
		}
		if uid < len(mg.Coldkeys) {
			records[uid].Coldkey = mg.Coldkeys[uid]
		}

		if addr == "" {
			continue
		}

		wg.Add(1)
		go func(i int, addr string) {
			defer wg.Done()
			if err := t.transport.IsAlive(ctx, addr, t.probeTimeout); err != nil {
				log.Trace().Int("uid", i).Err(err).Msg("worker failed liveness probe")
				return
			}
			records[i].IsAvailable = true
		}(uid, addr)
	}
	wg.Wait()

	next := make(map[int64]worker.Record, len(records))
	available := 0
	for _, rec := range records {
		next[rec.UID] = rec
		if rec.IsAvailable {
			available++
		}
	}

	t.mu.Lock()
	t.workers = next
	t.mu.Unlock()

	log.Info().Int("total", len(next)).Int("available", available).Msg("membership refreshed")
	return nil
}

// AvailableUIDs returns the uids that passed the last probe round, sorted.
func (t *Tracker) AvailableUIDs() []int64 {
	t.mu.RLock()
	defer t.mu.RUnlock()

	uids := make([]int64, 0, len(t.workers))
	for uid, rec := range t.workers {
		if rec.IsAvailable {
			uids = append(uids, uid)
		}
	}
	sort.Slice(uids, func(i, j int) bool { return uids[i] < uids[j] })
	return uids
}

// Get returns the record for one worker from the last snapshot.
func (t *Tracker) Get(uid int64) (worker.Record, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	rec, ok := t.workers[uid]
	return rec, ok
}

// Snapshot returns a copy of the last refreshed worker map.
func (t *Tracker) Snapshot() map[int64]worker.Record {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make(map[int64]worker.Record, len(t.workers))
	for uid, rec := range t.workers {
		out[uid] = rec
	}
	return out
}
