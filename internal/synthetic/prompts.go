// Package synthetic generates probe queries for workers that have not yet
// served any organic traffic, so every worker can be scored each epoch.
package synthetic

import (
	"math/rand/v2"
	"sync"
)

// Prompt templates cover the query shapes workers are expected to handle:
// open research questions, recency-sensitive lookups, and tool-heavy searches.
var promptPool = []string{
	"What are the most discussed developments in AI safety this week?",
	"Summarize the latest funding rounds announced by infrastructure startups.",
	"What is the current sentiment around decentralized compute networks?",
	"Find recent technical critiques of large language model benchmarks.",
	"What notable open source releases happened in the past few days?",
	"Summarize recent regulatory news affecting cryptocurrency exchanges.",
	"What are researchers saying about retrieval augmented generation lately?",
	"Find recent discussions about GPU supply constraints and pricing.",
	"What security incidents were disclosed by major platforms this week?",
	"Summarize the latest debates around open model weights and licensing.",
	"What new developer tools gained traction in the past week?",
	"Find recent announcements about validator or staking economics changes.",
}

var defaultTools = []string{"web-search"}

// Source hands out probe prompts without immediate repetition. It reshuffles
// a private copy of the pool each time it is exhausted.
type Source struct {
	mu    sync.Mutex
	queue []string
}

func NewSource() *Source {
	return &Source{}
}

// Next returns one probe prompt and the tool set it should run with.
func (s *Source) Next() (prompt string, tools []string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.queue) == 0 {
		s.queue = make([]string, len(promptPool))
		copy(s.queue, promptPool)
		rand.Shuffle(len(s.queue), func(i, j int) {
			s.queue[i], s.queue[j] = s.queue[j], s.queue[i]
		})
	}

	prompt = s.queue[len(s.queue)-1]
	s.queue = s.queue[:len(s.queue)-1]
	return prompt, defaultTools
}
