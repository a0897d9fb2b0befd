package reward

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
)

// scriptedOracle returns canned scores and records how it was called.
type scriptedOracle struct {
	name   string
	scores map[int64]float64
	err    error
	calls  []map[int64]string
}

func (s *scriptedOracle) Name() string { return s.name }
func (s *scriptedOracle) Evaluate(_ context.Context, items map[int64]string) (map[int64]float64, error) {
	call := make(map[int64]string, len(items))
	for k, v := range items {
		call[k] = v
	}
	s.calls = append(s.calls, call)
	return s.scores, s.err
}

func TestOracleChainFirstSuccessWins(t *testing.T) {
	primary := &scriptedOracle{name: "primary", scores: map[int64]float64{1: 8, 2: 6}}
	fallback := &scriptedOracle{name: "fallback", scores: map[int64]float64{1: 1, 2: 1}}

	chain := NewOracleChain(primary, fallback)
	got := chain.Score(context.Background(), map[int64]string{1: "p1", 2: "p2"})

	if got[1] != 8 || got[2] != 6 {
		t.Fatalf("unexpected scores: %v", got)
	}
	if len(fallback.calls) != 0 {
		t.Fatal("fallback oracle called even though primary scored everything")
	}
}

func TestOracleChainFallsThroughPerItem(t *testing.T) {
	// Primary scores only item 1; item 2 falls through.
	primary := &scriptedOracle{name: "primary", scores: map[int64]float64{1: 9}}
	fallback := &scriptedOracle{name: "fallback", scores: map[int64]float64{1: 2, 2: 4}}

	chain := NewOracleChain(primary, fallback)
	got := chain.Score(context.Background(), map[int64]string{1: "p1", 2: "p2"})

	if got[1] != 9 {
		t.Fatalf("primary's score for item 1 must win, got %v", got[1])
	}
	if got[2] != 4 {
		t.Fatalf("fallback must score item 2, got %v", got[2])
	}
	if len(fallback.calls) != 1 {
		t.Fatalf("fallback should be called once, got %d", len(fallback.calls))
	}
	if _, ok := fallback.calls[0][1]; ok {
		t.Fatal("already-scored item 1 was re-sent to the fallback")
	}
}

func TestOracleChainSkipsErroringOracle(t *testing.T) {
	broken := &scriptedOracle{name: "broken", err: fmt.Errorf("service down")}
	fallback := &scriptedOracle{name: "fallback", scores: map[int64]float64{1: 5}}

	chain := NewOracleChain(broken, fallback)
	got := chain.Score(context.Background(), map[int64]string{1: "p1"})

	if got[1] != 5 {
		t.Fatalf("expected fallback score, got %v", got)
	}
}

func TestOracleChainRejectsUnusableScores(t *testing.T) {
	garbage := &scriptedOracle{name: "garbage", scores: map[int64]float64{
		1: math.NaN(),
		2: math.Inf(1),
		3: -1,
		4: 11,
	}}
	fallback := &scriptedOracle{name: "fallback", scores: map[int64]float64{1: 3, 2: 3, 3: 3, 4: 3}}

	chain := NewOracleChain(garbage, fallback)
	got := chain.Score(context.Background(), map[int64]string{1: "a", 2: "b", 3: "c", 4: "d"})

	for uid := int64(1); uid <= 4; uid++ {
		if got[uid] != 3 {
			t.Fatalf("uid %d: garbage score accepted, got %v", uid, got[uid])
		}
	}
}

func TestOracleChainExhausted(t *testing.T) {
	broken := &scriptedOracle{name: "broken", err: fmt.Errorf("down")}
	chain := NewOracleChain(broken)

	got := chain.Score(context.Background(), map[int64]string{1: "p1"})
	if len(got) != 0 {
		t.Fatalf("expected no scores when every oracle fails, got %v", got)
	}
}

func TestRemoteOracle(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/score" || r.Method != http.MethodPost {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"scores":{"1":7.5}}`))
	}))
	t.Cleanup(ts.Close)

	o := NewRemoteOracle("test", ts.URL)
	got, err := o.Evaluate(context.Background(), map[int64]string{1: "prompt"})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if got[1] != 7.5 {
		t.Fatalf("unexpected scores: %v", got)
	}
}

func TestRemoteOracleHTTPError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(ts.Close)

	o := NewRemoteOracle("test", ts.URL)
	if _, err := o.Evaluate(context.Background(), map[int64]string{1: "prompt"}); err == nil {
		t.Fatal("expected error on 500")
	}
}

func TestLexicalOracle(t *testing.T) {
	o := LexicalOracle{}

	prompt := renderScoringPrompt(
		"what are validators saying about subnet emissions",
		"validators are saying plenty about subnet emissions this week",
	)
	got, err := o.Evaluate(context.Background(), map[int64]string{1: prompt})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if got[1] <= 0 || got[1] > oracleScaleMax {
		t.Fatalf("expected score in (0,%v], got %v", oracleScaleMax, got[1])
	}

	unrelated := renderScoringPrompt("quantum gravity research", "banana bread recipe")
	got, err = o.Evaluate(context.Background(), map[int64]string{1: unrelated})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if got[1] != 0 {
		t.Fatalf("expected zero overlap score, got %v", got[1])
	}
}

func TestSplitScoringPromptRoundTrip(t *testing.T) {
	prompt := renderScoringPrompt("the question", "the answer")
	q, a := splitScoringPrompt(prompt)
	if q != "the question" || a != "the answer" {
		t.Fatalf("round trip mismatch: %q %q", q, a)
	}
}
