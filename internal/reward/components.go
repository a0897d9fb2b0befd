package reward

import (
	"context"
	"fmt"
	"strings"
	"time"
)

const scoringPromptTemplate = `<Question>
%s
</Question>
<Answer>
%s
</Answer>
Rate how well the answer addresses the question on a scale of 0 to 10. Reply with the number only.`

func renderScoringPrompt(question, answer string) string {
	return fmt.Sprintf(scoringPromptTemplate, question, answer)
}

func splitScoringPrompt(prompt string) (question, answer string) {
	question = between(prompt, "<Question>", "</Question>")
	answer = between(prompt, "<Answer>", "</Answer>")
	return question, answer
}

func between(s, open, close string) string {
	start := strings.Index(s, open)
	if start < 0 {
		return ""
	}
	start += len(open)
	end := strings.Index(s[start:], close)
	if end < 0 {
		return ""
	}
	return strings.TrimSpace(s[start : start+end])
}

// RelevanceComponent scores each completion against the task prompt through
// the oracle fallback chain.
type RelevanceComponent struct {
	weight float64
	chain  *OracleChain
}

func NewRelevanceComponent(weight float64, chain *OracleChain) *RelevanceComponent {
	return &RelevanceComponent{weight: weight, chain: chain}
}

func (r *RelevanceComponent) Name() string    { return "relevance" }
func (r *RelevanceComponent) Weight() float64 { return r.weight }

func (r *RelevanceComponent) Evaluate(ctx context.Context, batch Batch) (map[int64]float64, error) {
	items := make(map[int64]string, len(batch.Responses))
	for _, resp := range batch.Responses {
		if strings.TrimSpace(resp.Completion) == "" {
			continue
		}
		items[resp.UID] = renderScoringPrompt(batch.Task.Prompt, resp.Completion)
	}
	if len(items) == 0 {
		return map[int64]float64{}, nil
	}

	raw := r.chain.Score(ctx, items)
	result := make(map[int64]float64, len(raw))
	for uid, score := range raw {
		result[uid] = score / oracleScaleMax
	}
	return result, nil
}

// FreshnessComponent rewards result sets whose items were published within
// the freshness window. Undated items count as stale.
type FreshnessComponent struct {
	weight float64
	window time.Duration
}

func NewFreshnessComponent(weight float64, window time.Duration) *FreshnessComponent {
	return &FreshnessComponent{weight: weight, window: window}
}

func (f *FreshnessComponent) Name() string    { return "freshness" }
func (f *FreshnessComponent) Weight() float64 { return f.weight }

func (f *FreshnessComponent) Evaluate(_ context.Context, batch Batch) (map[int64]float64, error) {
	cutoff := time.Now().Add(-f.window).Unix()

	result := make(map[int64]float64, len(batch.Responses))
	for _, resp := range batch.Responses {
		if len(resp.Items) == 0 {
			result[resp.UID] = 0
			continue
		}
		fresh := 0
		for _, item := range resp.Items {
			if item.PublishedAt >= cutoff {
				fresh++
			}
		}
		result[resp.UID] = float64(fresh) / float64(len(resp.Items))
	}
	return result, nil
}

// PerformanceComponent rewards fast responses: 1 at instant response, 0 at or
// past the per-call timeout. Latencies are measured against the shared round
// start so slow and fast workers in one batch are compared fairly.
type PerformanceComponent struct {
	weight  float64
	timeout time.Duration
}

func NewPerformanceComponent(weight float64, timeout time.Duration) *PerformanceComponent {
	return &PerformanceComponent{weight: weight, timeout: timeout}
}

func (p *PerformanceComponent) Name() string    { return "performance" }
func (p *PerformanceComponent) Weight() float64 { return p.weight }

func (p *PerformanceComponent) Evaluate(_ context.Context, batch Batch) (map[int64]float64, error) {
	budget := p.timeout.Seconds()
	if budget <= 0 {
		return nil, fmt.Errorf("performance component requires a positive timeout")
	}

	result := make(map[int64]float64, len(batch.Responses))
	for _, resp := range batch.Responses {
		score := 1.0 - resp.Latency/budget
		if score < 0 {
			score = 0
		}
		result[resp.UID] = score
	}
	return result, nil
}
