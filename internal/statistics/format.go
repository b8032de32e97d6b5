package statistics

import (
	"fmt"
	"strings"
	"time"

	"github.com/ahrav/go-explab/internal/domain"
)

// FormatStats renders one line per record:
//
//	<model>: ERROR - <error>
//	<model>: 1.23s | Tokens: 12 + 34 = 46
func FormatStats(stats []domain.ModelStats) string {
	var b strings.Builder
	for i, st := range stats {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(FormatLine(st))
	}
	return b.String()
}

// FormatLine renders a single statistics record.
func FormatLine(st domain.ModelStats) string {
	if !st.Succeeded() {
		return fmt.Sprintf("%s: ERROR - %s", st.ModelID, st.Error)
	}
	return fmt.Sprintf("%s: %s | Tokens: %d + %d = %d",
		st.ModelID, formatSeconds(st.Latency), st.Usage.Prompt, st.Usage.Completion, st.Usage.Total)
}

// FormatSummary renders the run summary on a single line.
func FormatSummary(s domain.RunSummary) string {
	line := fmt.Sprintf("%d pairs: %d succeeded, %d failed", s.Total, s.SuccessCount, s.FailureCount)
	if s.CancelledCount > 0 {
		line += fmt.Sprintf(" (%d cancelled)", s.CancelledCount)
	}
	if !s.HasLatency {
		return line + " | latency: n/a"
	}
	return fmt.Sprintf("%s | latency mean %s median %s min %s max %s | tokens %d",
		line,
		formatSeconds(s.MeanLatency), formatSeconds(s.MedianLatency),
		formatSeconds(s.MinLatency), formatSeconds(s.MaxLatency),
		s.TotalTokens)
}

func formatSeconds(d time.Duration) string {
	return fmt.Sprintf("%.2fs", d.Seconds())
}
