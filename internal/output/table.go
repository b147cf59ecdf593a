package output

import (
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/bgricker/stepstats/internal/report"
	"github.com/bgricker/stepstats/internal/steps"
)

// TableRenderer renders outcomes and statistics as boxed tables.
type TableRenderer struct {
	out io.Writer
}

// NewTable creates a TableRenderer writing to out.
func NewTable(out io.Writer) *TableRenderer {
	return &TableRenderer{out: out}
}

// RenderOutcomes writes an outcome table followed by a statistics table.
func (r *TableRenderer) RenderOutcomes(outcomes []steps.AggregatedOutcome, summary report.Summary, description string) error {
	if len(outcomes) == 0 {
		_, err := fmt.Fprintf(r.out, "No data for %s!\n", description)
		return err
	}

	t := table.NewWriter()
	t.SetOutputMirror(r.out)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Step", "Build", "Created", "Duration (min)", "Shards", "Result", "Retries"})
	for _, o := range outcomes {
		result := "FAIL"
		if o.Passed {
			result = "SUCCESS"
		}
		t.AppendRow(table.Row{
			o.StepKey,
			fmt.Sprintf("#%d", o.BuildNumber),
			o.CreatedAt.Format(dateLayout),
			formatMinutes(o.DurationMin),
			o.Count,
			result,
			o.RetryCount,
		})
	}
	t.Render()

	s := table.NewWriter()
	s.SetOutputMirror(r.out)
	s.SetStyle(table.StyleLight)
	s.SetTitle("Statistics for " + description)
	s.AppendRow(table.Row{"Builds", summary.Total})
	s.AppendRow(table.Row{"Successful", fmt.Sprintf("%d (%.1f%%)", summary.Succeeded, 100*summary.SuccessRate)})
	if stats := summary.Durations; stats != nil {
		s.AppendRow(table.Row{"Min duration", fmt.Sprintf("%.2f min", stats.Min)})
		s.AppendRow(table.Row{"Max duration", fmt.Sprintf("%.2f min", stats.Max)})
		s.AppendRow(table.Row{"Mean duration", fmt.Sprintf("%.2f min", stats.Mean)})
		s.AppendRow(table.Row{"Median duration", fmt.Sprintf("%.2f min", stats.Median)})
	} else {
		s.AppendRow(table.Row{"Duration", "no data"})
	}
	s.Render()
	return nil
}
