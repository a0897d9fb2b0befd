// Package reward converts raw worker responses into scalar rewards in [0,1],
// combining weighted reward components and penalty criteria.
package reward

import (
	"context"

	"github.com/datura-labs/argus/internal/worker"
)

// Batch is the unit of scoring: one task and the responses it produced.
type Batch struct {
	Task      worker.QueryTask
	Responses []*worker.Response
}

// Component is one named reward signal with a configured weight. Evaluate
// scores the whole batch at once and returns one value in [0,1] per worker
// uid. A uid missing from the result map means the component could not judge
// that response; its weight is excluded from that worker's normalization.
type Component interface {
	Name() string
	Weight() float64
	Evaluate(ctx context.Context, batch Batch) (map[int64]float64, error)
}

// Criterion is one penalty signal. Evaluate returns a penalty in [0,1] per
// worker uid; penalties across criteria accumulate additively and the total
// is clamped before being applied.
type Criterion interface {
	Name() string
	Evaluate(ctx context.Context, batch Batch) (map[int64]float64, error)
}
