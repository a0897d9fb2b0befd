package reputation

import (
	"fmt"
	"slices"
	"sync"

	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/floats"

	"github.com/datura-labs/argus/internal/chain"
)

// Committer pushes the score vector to the registry when the epoch boundary
// approaches. Raw scores are committed; the registry normalizes on its side.
// Min-max scaling is applied only for logging so operators can read relative
// standing at a glance.
type Committer struct {
	registry       chain.Registry
	state          *chain.State
	blockThreshold int

	mu                 sync.Mutex
	lastCommittedStep  int
	lastCommittedEpoch int
}

func NewCommitter(registry chain.Registry, state *chain.State, blockThreshold int) *Committer {
	return &Committer{
		registry:           registry,
		state:              state,
		blockThreshold:     blockThreshold,
		lastCommittedStep:  -1,
		lastCommittedEpoch: -1,
	}
}

// ShouldCommit reports whether a commit is due: the epoch boundary is within
// the block threshold, this epoch window has not been served yet, and at least
// one new score step exists since the last commit. Recording the epoch of the
// last commit keeps a short commit interval from spamming the registry while
// organic traffic keeps advancing the step.
func (c *Committer) ShouldCommit(step int) bool {
	if !c.state.ShouldCommitWeights(c.blockThreshold) {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return step != c.lastCommittedStep && c.state.EpochIndex() != c.lastCommittedEpoch
}

// Commit sends the current score vector to the registry as weights.
func (c *Committer) Commit(store *Store) error {
	snapshot := store.Snapshot()
	if len(snapshot) == 0 {
		log.Info().Msg("no reputation scores yet, skipping weight commit")
		return nil
	}

	uids := make([]int64, 0, len(snapshot))
	for uid := range snapshot {
		uids = append(uids, uid)
	}
	// Deterministic emit order.
	slices.Sort(uids)

	weights := make([]float64, len(uids))
	for i, uid := range uids {
		weights[i] = snapshot[uid]
	}

	logNormalizedScores(uids, weights)

	dests, vals, err := chain.ConvertWeightsAndUidsForEmit(uids, weights)
	if err != nil {
		return fmt.Errorf("convert weights: %w", err)
	}
	if len(dests) == 0 {
		log.Info().Msg("all weights are zero, skipping weight commit")
		return nil
	}

	resp, err := c.registry.SetWeights(chain.SetWeightsParams{
		Netuid:  c.state.Netuid(),
		Dests:   dests,
		Weights: vals,
	})
	if err != nil {
		return fmt.Errorf("set weights: %w", err)
	}

	epoch := c.state.EpochIndex()
	c.mu.Lock()
	c.lastCommittedStep = store.Step()
	c.lastCommittedEpoch = epoch
	c.mu.Unlock()

	log.Info().Str("extrinsic", resp.Data).Int("workers", len(dests)).Msg("weights committed to registry")

	// Sign an attestation of the commit through the sidecar so operators can
	// prove which extrinsic this validator submitted for the epoch. The weights
	// are already on chain, so a signing failure only costs the audit record.
	attestation := fmt.Sprintf("set-weights netuid=%d epoch=%d extrinsic=%s", c.state.Netuid(), epoch, resp.Data)
	sigResp, sigErr := c.registry.SignMessage(chain.SignMessageParams{Message: attestation})
	if sigErr != nil {
		log.Warn().Err(sigErr).Msg("failed to sign weight commit attestation")
	} else {
		log.Info().Str("signature", sigResp.Data.Signature).Msg("weight commit attestation signed")
	}
	return nil
}

// logNormalizedScores min-max scales a copy of the weights for display only.
func logNormalizedScores(uids []int64, weights []float64) {
	if len(weights) == 0 {
		return
	}

	display := make([]float64, len(weights))
	copy(display, weights)

	min := floats.Min(display)
	max := floats.Max(display)
	if max != min {
		floats.AddConst(-min, display)
		floats.Scale(1.0/(max-min), display)
	} else {
		floats.Scale(0, display)
	}

	for i, uid := range uids {
		log.Debug().Int64("uid", uid).Float64("raw", weights[i]).Float64("normalized", display[i]).Msg("weight to commit")
	}
}
