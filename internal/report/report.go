package report

import (
	"sort"

	"github.com/bgricker/stepstats/internal/steps"
)

// DurationStats describes the durations of successful outcomes, in minutes.
type DurationStats struct {
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
}

// Summary aggregates the success rate and timings of a set of step outcomes.
type Summary struct {
	Total       int     `json:"total"`
	Succeeded   int     `json:"succeeded"`
	SuccessRate float64 `json:"success_rate"`
	// Durations is nil when no successful outcome reported a duration.
	Durations *DurationStats `json:"durations,omitempty"`
}

// Summarize computes statistics over outcomes. Timings only consider
// successful outcomes.
func Summarize(outcomes []steps.AggregatedOutcome) Summary {
	summary := Summary{Total: len(outcomes)}
	if summary.Total == 0 {
		return summary
	}

	var durations []float64
	for _, o := range outcomes {
		if !o.Passed {
			continue
		}
		summary.Succeeded++
		if o.DurationMin != nil {
			durations = append(durations, *o.DurationMin)
		}
	}
	summary.SuccessRate = float64(summary.Succeeded) / float64(summary.Total)
	summary.Durations = describe(durations)
	return summary
}

func describe(values []float64) *DurationStats {
	if len(values) == 0 {
		return nil
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	var sum float64
	for _, v := range sorted {
		sum += v
	}

	n := len(sorted)
	median := sorted[n/2]
	if n%2 == 0 {
		median = (sorted[n/2-1] + sorted[n/2]) / 2
	}

	return &DurationStats{
		Min:    sorted[0],
		Max:    sorted[n-1],
		Mean:   sum / float64(n),
		Median: median,
	}
}
