package reward

import (
	"context"
	"strings"
)

// minCompletionLength is the shortest completion treated as a real answer.
const minCompletionLength = 10

// ContentValidityCriterion emits the full penalty for responses with no
// parsable content. Under the additive-then-clamp composition rule a full
// penalty zeroes the reward, so this acts as the validity gate.
type ContentValidityCriterion struct{}

func (ContentValidityCriterion) Name() string { return "content-validity" }

func (ContentValidityCriterion) Evaluate(_ context.Context, batch Batch) (map[int64]float64, error) {
	result := make(map[int64]float64, len(batch.Responses))
	for _, resp := range batch.Responses {
		if strings.TrimSpace(resp.Completion) == "" && len(resp.Items) == 0 {
			result[resp.UID] = 1.0
		}
	}
	return result, nil
}

// TaskValidationCriterion checks structural expectations of the task against
// each completion in the batch: requested tools must yield result items and
// the summary must not be degenerate.
type TaskValidationCriterion struct{}

func (TaskValidationCriterion) Name() string { return "task-validation" }

func (TaskValidationCriterion) Evaluate(_ context.Context, batch Batch) (map[int64]float64, error) {
	result := make(map[int64]float64, len(batch.Responses))
	for _, resp := range batch.Responses {
		penalty := 0.0

		if len(batch.Task.Tools) > 0 && len(resp.Items) == 0 {
			penalty += 0.5
		}

		completion := strings.TrimSpace(resp.Completion)
		if completion != "" && len(completion) < minCompletionLength {
			penalty += 0.25
		}

		// A completion that merely echoes the prompt carries no information.
		if completion != "" && strings.EqualFold(completion, strings.TrimSpace(batch.Task.Prompt)) {
			penalty += 0.5
		}

		if penalty > 0 {
			result[resp.UID] = penalty
		}
	}
	return result, nil
}
