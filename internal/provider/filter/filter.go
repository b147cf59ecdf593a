package filter

import (
	"fmt"
	"strconv"
	"strings"
)

// StepMatcher selects job executions by step key and, optionally, shard index.
type StepMatcher struct {
	StepKey string `json:"step_key"`
	// ParallelIndex is ignored when nil.
	ParallelIndex *int `json:"parallel_job_index,omitempty"`
}

// Matches reports whether an execution with the given step key and shard
// index is selected.
func (m StepMatcher) Matches(stepKey string, parallelIndex *int) bool {
	if m.StepKey != stepKey {
		return false
	}
	if m.ParallelIndex == nil {
		return true
	}
	return parallelIndex != nil && *m.ParallelIndex == *parallelIndex
}

// String renders the matcher in the syntax accepted by Parse.
func (m StepMatcher) String() string {
	if m.ParallelIndex == nil {
		return m.StepKey
	}
	return fmt.Sprintf("%s#%d", m.StepKey, *m.ParallelIndex)
}

// Any reports whether one of matchers selects the execution. An empty matcher
// set selects everything.
func Any(matchers []StepMatcher, stepKey string, parallelIndex *int) bool {
	if len(matchers) == 0 {
		return true
	}
	for _, m := range matchers {
		if m.Matches(stepKey, parallelIndex) {
			return true
		}
	}
	return false
}

// Parse transforms raw "key" or "key#index" strings into matchers. Blank
// values are ignored.
func Parse(values []string) ([]StepMatcher, error) {
	result := make([]StepMatcher, 0, len(values))
	for _, raw := range values {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		key, idx, found := strings.Cut(raw, "#")
		key = strings.TrimSpace(key)
		if key == "" {
			return nil, fmt.Errorf("parse step matcher %q: empty step key", raw)
		}
		if !found {
			result = append(result, StepMatcher{StepKey: key})
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(idx))
		if err != nil || n < 0 {
			return nil, fmt.Errorf("parse step matcher %q: shard index must be a non-negative integer", raw)
		}
		result = append(result, StepMatcher{StepKey: key, ParallelIndex: &n})
	}
	return result, nil
}

// Describe returns a human readable description of the selection.
func Describe(matchers []StepMatcher) string {
	if len(matchers) == 0 {
		return "all jobs"
	}
	parts := make([]string, 0, len(matchers))
	for _, m := range matchers {
		parts = append(parts, m.String())
	}
	return "jobs matching [" + strings.Join(parts, ", ") + "]"
}
