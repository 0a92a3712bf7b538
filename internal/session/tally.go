package session

import (
	"math"

	"github.com/aura-classroom/livepoll/internal/models"
)

// ComputeAggregate tallies responses against q's options. Percentages use
// round-half-away-from-zero over max(total, 1). Returns nil when q is nil.
func ComputeAggregate(q *models.Question, responses map[string]models.Response) *models.AggregateResult {
	if q == nil {
		return nil
	}
	counts := make([]int, len(q.Options))
	total := 0
	for _, r := range responses {
		if r.OptionIndex < 0 || r.OptionIndex >= len(counts) {
			continue
		}
		counts[r.OptionIndex]++
		total++
	}

	divisor := total
	if divisor == 0 {
		divisor = 1
	}
	percentages := make([]int, len(counts))
	for i, c := range counts {
		percentages[i] = int(math.Round(float64(c) / float64(divisor) * 100))
	}
	return &models.AggregateResult{Counts: counts, Percentages: percentages, Total: total}
}
