package statistics_test

import (
	"math/rand"
	"reflect"
	"testing"
	"testing/quick"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-explab/internal/domain"
	"github.com/ahrav/go-explab/internal/statistics"
)

// mixedRun is a random run of succeeded, failed and cancelled responses
// spread over a handful of models.
type mixedRun []domain.ModelResponse

func (mixedRun) Generate(r *rand.Rand, size int) reflect.Value {
	models := []string{"a", "b", "c"}
	kinds := []domain.FailureKind{domain.FailureTimeout, domain.FailureNetwork, domain.FailureHTTPStatus}

	n := r.Intn(size + 1)
	run := make(mixedRun, n)
	for i := range run {
		model := models[r.Intn(len(models))]
		switch r.Intn(3) {
		case 0:
			latency := time.Duration(r.Int63n(int64(10 * time.Second)))
			run[i] = success(i, model, latency, r.Int63n(5000))
		case 1:
			run[i] = failure(i, model, kinds[r.Intn(len(kinds))])
		default:
			run[i] = cancelled(i, model)
		}
	}
	return reflect.ValueOf(run)
}

func checkSummary(s domain.RunSummary, total int) bool {
	if s.Total != total || s.SuccessCount+s.FailureCount != s.Total {
		return false
	}
	if s.CancelledCount < 0 || s.CancelledCount > s.FailureCount {
		return false
	}
	if s.HasLatency != (s.SuccessCount > 0) {
		return false
	}
	if !s.HasLatency {
		return s.MinLatency == 0 && s.MaxLatency == 0 && s.MeanLatency == 0 && s.MedianLatency == 0
	}
	return s.MinLatency <= s.MedianLatency && s.MedianLatency <= s.MaxLatency &&
		s.MinLatency <= s.MeanLatency && s.MeanLatency <= s.MaxLatency
}

func TestAggregate_SummaryInvariants(t *testing.T) {
	property := func(run mixedRun) bool {
		stats, summary := statistics.Aggregate(run)
		if len(stats) != len(run) {
			return false
		}
		for i, st := range stats {
			if st.Pair.Index != i || st.Outcome != run[i].Outcome {
				return false
			}
		}
		return checkSummary(summary, len(run))
	}

	require.NoError(t, quick.Check(property, &quick.Config{MaxCount: 500}))
}

func TestByModel_PartitionsSummary(t *testing.T) {
	property := func(run mixedRun) bool {
		stats, summary := statistics.Aggregate(run)
		var total, succeeded, failed, cancelledCount int
		var tokens int64
		for _, m := range statistics.ByModel(stats) {
			if m.Summary.Total == 0 || !checkSummary(m.Summary, m.Summary.Total) {
				return false
			}
			total += m.Summary.Total
			succeeded += m.Summary.SuccessCount
			failed += m.Summary.FailureCount
			cancelledCount += m.Summary.CancelledCount
			tokens += m.Summary.TotalTokens
		}
		return total == summary.Total &&
			succeeded == summary.SuccessCount &&
			failed == summary.FailureCount &&
			cancelledCount == summary.CancelledCount &&
			tokens == summary.TotalTokens
	}

	require.NoError(t, quick.Check(property, &quick.Config{MaxCount: 500}))
}
