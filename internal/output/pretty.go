package output

import (
	"bytes"
	"fmt"
	"io"
	"strconv"

	"github.com/bgricker/stepstats/internal/report"
	"github.com/bgricker/stepstats/internal/steps"
)

// dateLayout renders creation timestamps in outcome lines.
const dateLayout = "2006-01-02 15:04:05 -0700"

// missingDuration stands in for a duration no execution reported.
const missingDuration = "None"

// PrettyRenderer renders outcomes as one human-friendly line each.
type PrettyRenderer struct {
	out io.Writer
	// Short omits build URLs.
	Short bool
}

// NewPretty creates a PrettyRenderer writing to the provided writer.
func NewPretty(out io.Writer) *PrettyRenderer {
	return &PrettyRenderer{out: out}
}

// NewShort creates a PrettyRenderer that leaves out build URLs.
func NewShort(out io.Writer) *PrettyRenderer {
	return &PrettyRenderer{out: out, Short: true}
}

// RenderOutcomes writes one line per outcome followed by statistics.
// description names the selected steps, e.g. "jobs matching [lint]".
func (p *PrettyRenderer) RenderOutcomes(outcomes []steps.AggregatedOutcome, summary report.Summary, description string) error {
	var buffer bytes.Buffer

	for _, o := range outcomes {
		url := ""
		if !p.Short {
			url = o.BuildURL + ", "
		}
		status := "FAIL"
		if o.Passed {
			status = "SUCCESS"
		}
		retry := ""
		if o.Retried() {
			retry = " (RETRY)"
		}
		fmt.Fprintf(&buffer, "%s, #%d, %s, %s min, %s%s%s\n",
			o.StepKey, o.BuildNumber, o.CreatedAt.Format(dateLayout), formatMinutes(o.DurationMin), url, status, retry)
	}

	writeStats(&buffer, summary, description)
	_, err := buffer.WriteTo(p.out)
	return err
}

func writeStats(buffer *bytes.Buffer, summary report.Summary, description string) {
	if summary.Total == 0 {
		fmt.Fprintf(buffer, "No data for %s!\n", description)
		return
	}

	fmt.Fprintln(buffer)
	fmt.Fprintf(buffer, "Statistics for %s:\n", description)
	fmt.Fprintf(buffer, "Number of builds: %d\n", summary.Total)
	fmt.Fprintf(buffer, "Number of builds with job success: %d (%.1f%%)\n", summary.Succeeded, 100*summary.SuccessRate)

	stats := summary.Durations
	if stats == nil {
		fmt.Fprintln(buffer, "Duration with success: no data")
		return
	}
	fmt.Fprintf(buffer, "Min duration with success: %.2f min\n", stats.Min)
	fmt.Fprintf(buffer, "Max duration with success: %.2f min\n", stats.Max)
	fmt.Fprintf(buffer, "Mean duration with success: %.2f min\n", stats.Mean)
	fmt.Fprintf(buffer, "Median duration with success: %.2f min\n", stats.Median)
}

// RenderInventory lists step keys with their execution counts.
func (p *PrettyRenderer) RenderInventory(infos []steps.StepInfo) error {
	var buffer bytes.Buffer
	for _, info := range infos {
		fmt.Fprintf(&buffer, "%s: %d executions in %d builds", info.StepKey, info.Executions, info.Builds)
		if len(info.Shards) > 0 {
			fmt.Fprintf(&buffer, ", shards %s", joinInts(info.Shards))
		}
		buffer.WriteByte('\n')
	}
	_, err := buffer.WriteTo(p.out)
	return err
}

func formatMinutes(d *float64) string {
	if d == nil {
		return missingDuration
	}
	return strconv.FormatFloat(*d, 'f', 2, 64)
}

func joinInts(values []int) string {
	var buf bytes.Buffer
	for i, v := range values {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteString(strconv.Itoa(v))
	}
	return buf.String()
}
