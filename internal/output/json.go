package output

import (
	"encoding/json"
	"io"

	"github.com/bgricker/stepstats/internal/provider/filter"
	"github.com/bgricker/stepstats/internal/report"
	"github.com/bgricker/stepstats/internal/steps"
)

// JSONRenderer emits structured outcome data.
type JSONRenderer struct {
	out io.Writer
}

// NewJSON creates a JSON renderer writing to out.
func NewJSON(out io.Writer) *JSONRenderer {
	return &JSONRenderer{out: out}
}

// Report captures JSON output schema.
type Report struct {
	Matchers []filter.StepMatcher      `json:"matchers"`
	Outcomes []steps.AggregatedOutcome `json:"outcomes"`
	Steps    []steps.StepInfo          `json:"steps,omitempty"`
	Summary  *report.Summary           `json:"summary,omitempty"`
	Warnings []string                  `json:"warnings,omitempty"`
}

// Render encodes the report as JSON.
func (j *JSONRenderer) Render(report Report) error {
	if report.Matchers == nil {
		report.Matchers = []filter.StepMatcher{}
	}
	if report.Outcomes == nil {
		report.Outcomes = []steps.AggregatedOutcome{}
	}
	enc := json.NewEncoder(j.out)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}
