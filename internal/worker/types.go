// Package worker defines the remote worker data model and the transport used
// to reach workers over the wire.
package worker

import (
	"context"
	"time"
)

// Record is one reachable worker as seen by the membership tracker.
type Record struct {
	UID         int64     `json:"uid"`
	Address     string    `json:"address"`
	Hotkey      string    `json:"hotkey"`
	Coldkey     string    `json:"coldkey"`
	IsAvailable bool      `json:"is_available"`
	LastChecked time.Time `json:"last_checked"`
}

// QueryTask is one logical search/scrape query issued to a set of workers.
// Immutable once issued.
type QueryTask struct {
	TaskID   string    `json:"task_id"`
	Prompt   string    `json:"prompt"`
	Tools    []string  `json:"tools"`
	Strategy string    `json:"strategy"`
	IssuedAt time.Time `json:"issued_at"`
	Organic  bool      `json:"organic"`
}

// SearchItem is one structured result inside a worker response.
type SearchItem struct {
	Title       string `json:"title"`
	URL         string `json:"url"`
	PublishedAt int64  `json:"published_at,omitempty"`
}

// Response is a worker's answer to a QueryTask. RoundStart is stamped by the
// dispatch pipeline so downstream latency scoring is fair across the batch.
type Response struct {
	UID        int64        `json:"uid"`
	Completion string       `json:"completion"`
	Items      []SearchItem `json:"items,omitempty"`
	Latency    float64      `json:"latency_secs"`
	RoundStart time.Time    `json:"round_start"`
}

// Transport abstracts the wire call to a remote worker. Implementations must
// honor the per-call timeout and return an error rather than block past it.
type Transport interface {
	Query(ctx context.Context, addr string, task QueryTask, timeout time.Duration) (*Response, error)
	IsAlive(ctx context.Context, addr string, timeout time.Duration) error
}
