package reward

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
)

// oracleScaleMax is the raw score ceiling oracles answer on; consumers divide
// by this to land in [0,1].
const oracleScaleMax = 10.0

// Oracle scores a batch of rendered scoring prompts, one per worker uid.
// Raw scores are on a 0..10 scale.
type Oracle interface {
	Name() string
	Evaluate(ctx context.Context, items map[int64]string) (map[int64]float64, error)
}

// OracleChain tries oracles in a fixed fallback order. The first oracle to
// produce a usable score for an item wins for that item; remaining items fall
// through to the next oracle. An oracle that errors is skipped entirely for
// this pass.
type OracleChain struct {
	oracles []Oracle
}

func NewOracleChain(oracles ...Oracle) *OracleChain {
	return &OracleChain{oracles: oracles}
}

// Score resolves as many items as possible through the chain. Items no oracle
// could score are absent from the result; callers treat them as zero
// contribution.
func (c *OracleChain) Score(ctx context.Context, items map[int64]string) map[int64]float64 {
	scored := make(map[int64]float64, len(items))

	remaining := make(map[int64]string, len(items))
	for uid, text := range items {
		remaining[uid] = text
	}

	for _, oracle := range c.oracles {
		if len(remaining) == 0 {
			break
		}

		result, err := oracle.Evaluate(ctx, remaining)
		if err != nil {
			log.Warn().Err(err).Str("oracle", oracle.Name()).Int("items", len(remaining)).
				Msg("scoring oracle failed, falling back to next source")
			continue
		}

		for uid, raw := range result {
			if _, pending := remaining[uid]; !pending {
				continue
			}
			if !usableScore(raw) {
				continue
			}
			scored[uid] = raw
			delete(remaining, uid)
		}

		if len(remaining) > 0 {
			log.Info().Str("oracle", oracle.Name()).Int("remaining", len(remaining)).
				Msg("oracle left items unscored, trying next source")
		}
	}

	if len(remaining) > 0 {
		log.Warn().Int("unscored", len(remaining)).Msg("all scoring oracles exhausted, items contribute zero")
	}

	return scored
}

// usableScore rejects non-numeric oracle output. Mirrors the upstream check
// that a score reply without a digit cannot be trusted.
func usableScore(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v >= 0 && v <= oracleScaleMax
}

// RemoteOracle calls an external scoring service over HTTP.
type RemoteOracle struct {
	name   string
	client *resty.Client
}

type remoteScoreRequest struct {
	Items map[int64]string `json:"items"`
}

type remoteScoreResponse struct {
	Scores map[int64]float64 `json:"scores"`
}

func NewRemoteOracle(name, baseURL string) *RemoteOracle {
	cli := resty.New().
		SetBaseURL(baseURL).
		SetJSONMarshaler(sonic.Marshal).
		SetJSONUnmarshaler(sonic.Unmarshal).
		SetTimeout(60 * time.Second)

	return &RemoteOracle{name: name, client: cli}
}

func (o *RemoteOracle) Name() string { return o.name }

func (o *RemoteOracle) Evaluate(ctx context.Context, items map[int64]string) (map[int64]float64, error) {
	var out remoteScoreResponse

	resp, err := o.client.R().SetContext(ctx).
		SetBody(remoteScoreRequest{Items: items}).
		SetResult(&out).
		Post("/score")
	if err != nil {
		return nil, fmt.Errorf("oracle %s: %w", o.name, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("oracle %s returned status %d: %s", o.name, resp.StatusCode(), resp.String())
	}
	return out.Scores, nil
}

// LexicalOracle is the local last-resort scorer: term overlap between the
// scoring prompt's question section and the completion. Crude, but it keeps
// rewards flowing when every remote source is down.
type LexicalOracle struct{}

func (LexicalOracle) Name() string { return "lexical" }

func (LexicalOracle) Evaluate(_ context.Context, items map[int64]string) (map[int64]float64, error) {
	result := make(map[int64]float64, len(items))
	for uid, text := range items {
		question, answer := splitScoringPrompt(text)
		result[uid] = lexicalOverlap(question, answer) * oracleScaleMax
	}
	return result, nil
}

func lexicalOverlap(question, answer string) float64 {
	qTerms := termSet(question)
	if len(qTerms) == 0 {
		return 0
	}
	aTerms := termSet(answer)

	hits := 0
	for term := range qTerms {
		if aTerms[term] {
			hits++
		}
	}
	return float64(hits) / float64(len(qTerms))
}

func termSet(s string) map[string]bool {
	set := make(map[string]bool)
	for _, f := range strings.Fields(strings.ToLower(s)) {
		f = strings.Trim(f, ".,!?:;\"'()[]")
		if len(f) > 2 {
			set[f] = true
		}
	}
	return set
}
