// Package steps reduces build records to per-step outcomes. Extract produces
// one ExecutionOutcome per matching job execution and Aggregate merges the
// shards of a (build, step) pair into one AggregatedOutcome.
//
// Both functions are pure: they never mutate their inputs, never log and
// never block, so independent calls may run concurrently.
package steps

import (
	"strings"
	"time"
)

// ExecutionOutcome is the outcome of a single job execution. A sharded step
// yields one ExecutionOutcome per shard.
type ExecutionOutcome struct {
	ID          string    `json:"id"`
	StepKey     string    `json:"step_key"`
	BuildNumber int       `json:"build_number"`
	CreatedAt   time.Time `json:"created_at"`
	// DurationMin is nil unless the execution recorded both start and finish.
	DurationMin   *float64 `json:"duration_in_min"`
	Passed        bool     `json:"passed"`
	RetryCount    int      `json:"retry_count"`
	ParallelIndex *int     `json:"parallel_job_index,omitempty"`
	JobURL        string   `json:"web_url_to_job"`
	ExitStatus    *int     `json:"exit_status,omitempty"`
}

// BuildURL returns JobURL without the job fragment.
func (o ExecutionOutcome) BuildURL() string {
	if i := strings.Index(o.JobURL, "#"); i >= 0 {
		return o.JobURL[:i]
	}
	return o.JobURL
}

// AggregatedOutcome merges all shards of one step within one build.
type AggregatedOutcome struct {
	StepKey     string    `json:"step_key"`
	BuildNumber int       `json:"build_number"`
	CreatedAt   time.Time `json:"created_at"`
	// DurationMin sums the shards that reported a duration; nil if none did.
	DurationMin *float64 `json:"duration_in_min"`
	Passed      bool     `json:"passed"`
	RetryCount  int      `json:"retry_count"`
	IDs         []string `json:"ids"`
	BuildURL    string   `json:"web_url_to_build"`
	// Count is the number of merged shards, 1 for a non-sharded step.
	Count      int                `json:"count_items"`
	Executions []ExecutionOutcome `json:"-"`
}

// Retried reports whether any shard was retried.
func (o AggregatedOutcome) Retried() bool {
	return o.RetryCount > 0
}
