// Package dispatch fans one query out to a set of workers concurrently and
// gathers every result, success or failure, before returning.
package dispatch

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/datura-labs/argus/internal/worker"
)

// Result is one worker's outcome for a round. Exactly one of Response/Err is
// set. Results are returned in submission order so callers can pair them with
// the target list.
type Result struct {
	UID      int64
	Response *worker.Response
	Err      error
}

// Run issues the task to every target concurrently, each call bounded by
// perCallTimeout. A single worker's failure or timeout never aborts the batch:
// it is recorded as an error result for that worker only. There are no retries
// at this layer.
func Run(ctx context.Context, transport worker.Transport, targets []worker.Record, task worker.QueryTask, perCallTimeout time.Duration) []Result {
	results := make([]Result, len(targets))
	roundStart := time.Now()

	var wg sync.WaitGroup
	for i, target := range targets {
		wg.Add(1)
		go func(i int, target worker.Record) {
			defer wg.Done()

			resp, err := transport.Query(ctx, target.Address, task, perCallTimeout)
			if err != nil {
				log.Debug().Int64("uid", target.UID).Err(err).Str("task_id", task.TaskID).Msg("worker call failed")
				results[i] = Result{UID: target.UID, Err: err}
				return
			}
			resp.UID = target.UID
			resp.RoundStart = roundStart
			results[i] = Result{UID: target.UID, Response: resp}
		}(i, target)
	}
	wg.Wait()

	succeeded := 0
	for _, r := range results {
		if r.Err == nil {
			succeeded++
		}
	}
	log.Info().Str("task_id", task.TaskID).Int("targets", len(targets)).Int("succeeded", succeeded).
		Msgf("dispatch round gathered in %v", time.Since(roundStart))

	return results
}

// Stream issues the task to every target concurrently and delivers each
// result as soon as its worker answers or fails, in completion order. The
// channel is closed once every target has reported. Same isolation rules as
// Run.
func Stream(ctx context.Context, transport worker.Transport, targets []worker.Record, task worker.QueryTask, perCallTimeout time.Duration) <-chan Result {
	out := make(chan Result, len(targets))
	roundStart := time.Now()

	var wg sync.WaitGroup
	for _, target := range targets {
		wg.Add(1)
		go func(target worker.Record) {
			defer wg.Done()

			resp, err := transport.Query(ctx, target.Address, task, perCallTimeout)
			if err != nil {
				log.Debug().Int64("uid", target.UID).Err(err).Str("task_id", task.TaskID).Msg("worker call failed")
				out <- Result{UID: target.UID, Err: err}
				return
			}
			resp.UID = target.UID
			resp.RoundStart = roundStart
			out <- Result{UID: target.UID, Response: resp}
		}(target)
	}

	go func() {
		wg.Wait()
		close(out)
	}()

	return out
}

// Successes filters a result batch down to the responses that arrived.
func Successes(results []Result) []*worker.Response {
	out := make([]*worker.Response, 0, len(results))
	for _, r := range results {
		if r.Err == nil && r.Response != nil {
			out = append(out, r.Response)
		}
	}
	return out
}
