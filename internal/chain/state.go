package chain

import (
	"sync"
)

// State holds the last-synced chain view: latest block and metagraph.
// Reads are snapshot reads; background sync tasks are the only writers.
type State struct {
	mu        sync.RWMutex
	netuid    int
	block     int
	metagraph SubnetMetagraph
}

func NewState(netuid int) *State {
	return &State{
		netuid:    netuid,
		block:     0,
		metagraph: SubnetMetagraph{},
	}
}

// Block safely reads the current block number.
func (s *State) Block() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.block
}

// Metagraph safely reads the current metagraph.
func (s *State) Metagraph() SubnetMetagraph {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.metagraph
}

func (s *State) Netuid() int {
	return s.netuid
}

// SetBlock updates the block number. Stale updates are ignored so a lagging
// sidecar response cannot move the clock backwards.
func (s *State) SetBlock(block int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if block <= s.block {
		return
	}
	s.block = block
}

// SetMetagraph replaces the metagraph snapshot.
func (s *State) SetMetagraph(metagraph SubnetMetagraph) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metagraph = metagraph
}

// BlocksUntilEpoch reports how many blocks remain until the subnet's next
// epoch boundary. The tempo comes from the last metagraph sync; zero tempo
// means chain timing is unknown yet.
func (s *State) BlocksUntilEpoch() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tempo := s.metagraph.Tempo
	if tempo <= 0 {
		return -1
	}
	return tempo - (s.block % tempo)
}

// EpochIndex reports which epoch the current block falls in, or -1 when chain
// timing is unknown yet. The commit window never crosses an epoch boundary, so
// two blocks inside one window always share an index.
func (s *State) EpochIndex() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tempo := s.metagraph.Tempo
	if tempo <= 0 {
		return -1
	}
	return s.block / tempo
}

// ShouldCommitWeights decides whether a weight commit is due: fewer than
// threshold blocks remain until the epoch rolls over. Decoupled from the
// actual chain timing source so it can be tested with synthetic state.
func (s *State) ShouldCommitWeights(threshold int) bool {
	remaining := s.BlocksUntilEpoch()
	return remaining >= 0 && remaining < threshold
}
