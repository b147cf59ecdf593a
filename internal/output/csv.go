package output

import (
	"encoding/csv"
	"io"
	"strconv"
	"time"

	"github.com/bgricker/stepstats/internal/steps"
)

var csvHeader = []string{"step_key", "build_number", "created_at", "duration_in_min", "passed", "retry_count"}

// CSVRenderer emits one row per outcome.
type CSVRenderer struct {
	out io.Writer
}

// NewCSV creates a CSV renderer writing to out.
func NewCSV(out io.Writer) *CSVRenderer {
	return &CSVRenderer{out: out}
}

// RenderOutcomes writes a header and one row per outcome. Absent durations
// are written as None.
func (c *CSVRenderer) RenderOutcomes(outcomes []steps.AggregatedOutcome) error {
	w := csv.NewWriter(c.out)
	if err := w.Write(csvHeader); err != nil {
		return err
	}
	for _, o := range outcomes {
		duration := missingDuration
		if o.DurationMin != nil {
			duration = strconv.FormatFloat(*o.DurationMin, 'f', -1, 64)
		}
		passed := "0"
		if o.Passed {
			passed = "1"
		}
		row := []string{
			o.StepKey,
			strconv.Itoa(o.BuildNumber),
			o.CreatedAt.Format(time.RFC3339),
			duration,
			passed,
			strconv.Itoa(o.RetryCount),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}
