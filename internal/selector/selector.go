// Package selector picks the target worker set for one query round.
package selector

import (
	"math/rand/v2"
	"slices"
	"sync"

	"github.com/datura-labs/argus/internal/worker"
)

// Strategy is the selection policy for a query round.
type Strategy string

const (
	StrategyRandom    Strategy = "RANDOM"
	StrategyAll       Strategy = "ALL"
	StrategySpecified Strategy = "SPECIFIED"
)

// Options narrows a selection beyond the base strategy.
type Options struct {
	// SpecifiedUIDs intersects the selection for ALL and is the requested
	// subset for SPECIFIED.
	SpecifiedUIDs []int64
	// OnlyAllowed filters workers by owner (coldkey) identity when non-empty.
	OnlyAllowed []string
}

// Selector implements the per-round worker choice. For RANDOM it keeps a
// rotation cursor so the same worker is not picked twice in a row while
// others are available.
type Selector struct {
	mu      sync.Mutex
	lastUID int64
	seeded  bool
}

func New() *Selector {
	return &Selector{lastUID: -1}
}

// Select returns the worker uids to query this round. Empty membership yields
// an empty selection for every strategy; callers treat that as "retry later".
func (s *Selector) Select(strategy Strategy, members map[int64]worker.Record, opts Options) []int64 {
	available := availableUIDs(members)
	if len(available) == 0 {
		return nil
	}

	switch strategy {
	case StrategyRandom:
		return []int64{s.pickRotating(available)}
	case StrategyAll:
		selected := available
		if len(opts.SpecifiedUIDs) > 0 {
			selected = intersect(selected, opts.SpecifiedUIDs)
		}
		if len(opts.OnlyAllowed) > 0 {
			selected = filterByOwner(selected, members, opts.OnlyAllowed)
		}
		return selected
	case StrategySpecified:
		return intersect(available, opts.SpecifiedUIDs)
	}

	return nil
}

// pickRotating selects one uid uniformly at random, avoiding the previously
// returned uid whenever more than one worker is available.
func (s *Selector) pickRotating(available []int64) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	candidates := available
	if len(available) > 1 && s.seeded {
		filtered := make([]int64, 0, len(available)-1)
		for _, uid := range available {
			if uid != s.lastUID {
				filtered = append(filtered, uid)
			}
		}
		if len(filtered) > 0 {
			candidates = filtered
		}
	}

	picked := candidates[rand.IntN(len(candidates))]
	s.lastUID = picked
	s.seeded = true
	return picked
}

func availableUIDs(members map[int64]worker.Record) []int64 {
	uids := make([]int64, 0, len(members))
	for uid, rec := range members {
		if rec.IsAvailable {
			uids = append(uids, uid)
		}
	}
	slices.Sort(uids)
	return uids
}

func intersect(available, requested []int64) []int64 {
	out := make([]int64, 0, len(requested))
	for _, uid := range available {
		if slices.Contains(requested, uid) {
			out = append(out, uid)
		}
	}
	return out
}

func filterByOwner(uids []int64, members map[int64]worker.Record, allowed []string) []int64 {
	out := make([]int64, 0, len(uids))
	for _, uid := range uids {
		if slices.Contains(allowed, members[uid].Coldkey) {
			out = append(out, uid)
		}
	}
	return out
}
