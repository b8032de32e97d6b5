// Package statistics turns per-pair model responses into statistics records
// and run-level summaries.
//
// Every function in this package is pure: no I/O, no clock reads, and the
// same input always yields the same output. Latency figures cover successful
// pairs only. A run with no successes reports zero latencies with
// HasLatency set to false.
package statistics

import (
	"slices"
	"time"

	"github.com/ahrav/go-explab/internal/domain"
)

// Aggregate derives one ModelStats per response, in input order, and the
// summary over all of them.
func Aggregate(responses []domain.ModelResponse) ([]domain.ModelStats, domain.RunSummary) {
	stats := make([]domain.ModelStats, len(responses))
	for i, r := range responses {
		stats[i] = StatsFor(r)
	}
	return stats, Summarize(stats)
}

// StatsFor builds the read-only statistics view of a single response.
func StatsFor(r domain.ModelResponse) domain.ModelStats {
	return domain.ModelStats{
		Pair:     r.Pair,
		ModelID:  r.Pair.ModelID,
		Outcome:  r.Outcome,
		Latency:  r.Latency,
		Usage:    r.Usage,
		Error:    r.ErrorText(),
		Finished: r.FinishedAt,
	}
}

// Summarize computes the run summary. Cancelled pairs count as failures.
func Summarize(stats []domain.ModelStats) domain.RunSummary {
	s := domain.RunSummary{Total: len(stats)}

	latencies := make([]time.Duration, 0, len(stats))
	for _, st := range stats {
		switch st.Outcome {
		case domain.OutcomeSucceeded:
			s.SuccessCount++
			s.TotalTokens += st.Usage.Total
			latencies = append(latencies, st.Latency)
		case domain.OutcomeCancelled:
			s.FailureCount++
			s.CancelledCount++
		default:
			s.FailureCount++
		}
	}

	if len(latencies) == 0 {
		return s
	}

	slices.Sort(latencies)
	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}

	s.HasLatency = true
	s.MinLatency = latencies[0]
	s.MaxLatency = latencies[len(latencies)-1]
	s.MeanLatency = sum / time.Duration(len(latencies))
	s.MedianLatency = median(latencies)
	return s
}

// median expects sorted, non-empty input. Even counts average the two
// middle values.
func median(sorted []time.Duration) time.Duration {
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}

// ByModel rolls stats up per model identity, in order of first appearance.
func ByModel(stats []domain.ModelStats) []domain.ModelSummary {
	var order []string
	groups := make(map[string][]domain.ModelStats)
	for _, st := range stats {
		if _, ok := groups[st.ModelID]; !ok {
			order = append(order, st.ModelID)
		}
		groups[st.ModelID] = append(groups[st.ModelID], st)
	}

	out := make([]domain.ModelSummary, 0, len(order))
	for _, id := range order {
		out = append(out, domain.ModelSummary{ModelID: id, Summary: Summarize(groups[id])})
	}
	return out
}
