package provider

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// ErrInvalidRecord reports a build record that lacks a required field.
var ErrInvalidRecord = errors.New("invalid build record")

// ErrMixedPipelines reports builds from more than one pipeline where build
// numbers must be unique.
var ErrMixedPipelines = errors.New("builds span multiple pipelines")

// State is the lifecycle state of a build or job as reported by the orchestrator.
type State string

const (
	StatePassed    State = "passed"
	StateFailed    State = "failed"
	StateFailing   State = "failing"
	StateCanceled  State = "canceled"
	StateCanceling State = "canceling"
	StateRunning   State = "running"
	StateScheduled State = "scheduled"
	StateSkipped   State = "skipped"
	StateBlocked   State = "blocked"
	StateNotRun    State = "not_run"
	StateFinished  State = "finished"
	StateWaiting   State = "waiting"
	StateAssigned  State = "assigned"
	StateAccepted  State = "accepted"
	StateTimedOut  State = "timed_out"
	StateBroken    State = "broken"
	StateLimited   State = "limited"
	StateLimiting  State = "limiting"
	StateExpired   State = "expired"
)

// Build is a validated build record with its job executions.
type Build struct {
	ID       string `json:"id"`
	Number   int    `json:"number"`
	WebURL   string `json:"web_url"`
	Pipeline string `json:"pipeline,omitempty"`
	Branch   string `json:"branch,omitempty"`
	State    State  `json:"state,omitempty"`
	Jobs     []Job  `json:"jobs"`
}

// Job is a single job execution inside a build. Sharded steps produce one Job
// per shard, all sharing the same StepKey.
type Job struct {
	ID            string     `json:"id"`
	Type          string     `json:"type,omitempty"`
	Name          string     `json:"name,omitempty"`
	StepKey       string     `json:"step_key,omitempty"`
	ParallelIndex *int       `json:"parallel_group_index,omitempty"`
	State         State      `json:"state,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	FinishedAt    *time.Time `json:"finished_at,omitempty"`
	RetriesCount  *int       `json:"retries_count,omitempty"`
	ExitStatus    *int       `json:"exit_status,omitempty"`
}

// Validate checks the fields the step extractor depends on.
func (b Build) Validate() error {
	if b.ID == "" {
		return fmt.Errorf("%w: build #%d has no id", ErrInvalidRecord, b.Number)
	}
	if b.Number <= 0 {
		return fmt.Errorf("%w: build %s has no number", ErrInvalidRecord, b.ID)
	}
	if b.WebURL == "" {
		return fmt.Errorf("%w: build #%d has no web_url", ErrInvalidRecord, b.Number)
	}
	for i, job := range b.Jobs {
		if job.ID == "" {
			return fmt.Errorf("%w: build #%d job %d has no id", ErrInvalidRecord, b.Number, i)
		}
		if job.StepKey == "" {
			continue
		}
		if job.State == "" {
			return fmt.Errorf("%w: build #%d job %s has no state", ErrInvalidRecord, b.Number, job.ID)
		}
		if job.CreatedAt.IsZero() {
			return fmt.Errorf("%w: build #%d job %s has no created_at", ErrInvalidRecord, b.Number, job.ID)
		}
	}
	return nil
}

// FailedStates lists build states that indicate a failure.
func FailedStates() []State {
	return []State{StateFailing, StateFailed}
}

// CompletedStates lists build states after which nothing changes anymore.
func CompletedStates() []State {
	return []State{StatePassed, StateFailed, StateCanceled, StateSkipped, StateNotRun, StateFinished}
}

// BuildStates lists the states a build can be filtered by.
func BuildStates() []State {
	return []State{
		StateRunning,
		StateScheduled,
		StatePassed,
		StateFailing,
		StateFailed,
		StateBlocked,
		StateCanceled,
		StateCanceling,
		StateSkipped,
		StateNotRun,
		StateFinished,
	}
}

// KnownBuildState reports whether s is a valid build state filter.
func KnownBuildState(s string) bool {
	for _, st := range BuildStates() {
		if string(st) == s {
			return true
		}
	}
	return false
}

// Pipelines returns the distinct pipeline slugs of builds, sorted. Builds
// without a slug are not counted.
func Pipelines(builds []Build) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, b := range builds {
		if b.Pipeline == "" {
			continue
		}
		if _, ok := seen[b.Pipeline]; ok {
			continue
		}
		seen[b.Pipeline] = struct{}{}
		out = append(out, b.Pipeline)
	}
	sort.Strings(out)
	return out
}

// RequireSinglePipeline fails with ErrMixedPipelines when builds come from
// more than one pipeline.
func RequireSinglePipeline(builds []Build) error {
	if slugs := Pipelines(builds); len(slugs) > 1 {
		return fmt.Errorf("%w: %s", ErrMixedPipelines, strings.Join(slugs, ", "))
	}
	return nil
}
