package steps

import (
	"errors"
	"fmt"
)

// ErrInconsistentGroup reports a shard group whose members disagree on build
// number, step key or build URL.
var ErrInconsistentGroup = errors.New("inconsistent shard group")

// groupKey identifies one logical step within one build.
type groupKey struct {
	buildNumber int
	stepKey     string
}

// Aggregate merges executions of the same build and step. Groups are returned
// in the order their first member appears; callers should not depend on it.
func Aggregate(outcomes []ExecutionOutcome) ([]AggregatedOutcome, error) {
	groups := make(map[groupKey][]ExecutionOutcome)
	var order []groupKey
	for _, outcome := range outcomes {
		key := groupKey{buildNumber: outcome.BuildNumber, stepKey: outcome.StepKey}
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], outcome)
	}

	result := make([]AggregatedOutcome, 0, len(order))
	for _, key := range order {
		merged, err := mergeGroup(groups[key])
		if err != nil {
			return nil, err
		}
		result = append(result, merged)
	}
	return result, nil
}

func mergeGroup(members []ExecutionOutcome) (AggregatedOutcome, error) {
	if len(members) == 0 {
		return AggregatedOutcome{}, fmt.Errorf("%w: empty group", ErrInconsistentGroup)
	}
	first := members[0]

	merged := AggregatedOutcome{
		StepKey:     first.StepKey,
		BuildNumber: first.BuildNumber,
		CreatedAt:   first.CreatedAt,
		Passed:      true,
		RetryCount:  first.RetryCount,
		IDs:         make([]string, 0, len(members)),
		BuildURL:    first.BuildURL(),
		Count:       len(members),
		Executions:  append([]ExecutionOutcome(nil), members...),
	}

	var sum float64
	var reported bool
	for _, m := range members {
		if m.BuildNumber != first.BuildNumber || m.StepKey != first.StepKey {
			return AggregatedOutcome{}, fmt.Errorf("%w: execution %s (build #%d, step %q) grouped with build #%d step %q",
				ErrInconsistentGroup, m.ID, m.BuildNumber, m.StepKey, first.BuildNumber, first.StepKey)
		}
		if url := m.BuildURL(); url != merged.BuildURL {
			return AggregatedOutcome{}, fmt.Errorf("%w: execution %s of %s grouped with build %s",
				ErrInconsistentGroup, m.ID, url, merged.BuildURL)
		}
		merged.IDs = append(merged.IDs, m.ID)
		if m.CreatedAt.Before(merged.CreatedAt) {
			merged.CreatedAt = m.CreatedAt
		}
		if m.DurationMin != nil {
			sum += *m.DurationMin
			reported = true
		}
		if !m.Passed {
			merged.Passed = false
		}
		if m.RetryCount > merged.RetryCount {
			merged.RetryCount = m.RetryCount
		}
	}
	if reported {
		merged.DurationMin = &sum
	}
	return merged, nil
}
