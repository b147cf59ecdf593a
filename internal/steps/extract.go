package steps

import (
	"errors"
	"fmt"

	"github.com/bgricker/stepstats/internal/provider"
	"github.com/bgricker/stepstats/internal/provider/filter"
)

// ErrPassedWithoutDuration reports a passed execution lacking start or finish
// timestamps. Such input is malformed and aborts extraction.
var ErrPassedWithoutDuration = errors.New("passed execution has no duration")

// Extract returns one outcome per job execution that has a step key, matches
// one of the matchers (all executions when matchers is empty) and is neither
// canceled nor running.
func Extract(builds []provider.Build, matchers []filter.StepMatcher) ([]ExecutionOutcome, error) {
	var result []ExecutionOutcome
	for _, build := range builds {
		outcomes, err := extractBuild(build, matchers)
		if err != nil {
			return nil, err
		}
		result = append(result, outcomes...)
	}
	return result, nil
}

func extractBuild(build provider.Build, matchers []filter.StepMatcher) ([]ExecutionOutcome, error) {
	var collected []ExecutionOutcome
	for _, job := range build.Jobs {
		if job.StepKey == "" {
			continue
		}
		if !filter.Any(matchers, job.StepKey, job.ParallelIndex) {
			continue
		}
		if skipState(job.State) {
			continue
		}

		outcome := ExecutionOutcome{
			ID:            job.ID,
			StepKey:       job.StepKey,
			BuildNumber:   build.Number,
			CreatedAt:     job.CreatedAt,
			DurationMin:   durationMin(job),
			Passed:        job.State == provider.StatePassed,
			ParallelIndex: copyInt(job.ParallelIndex),
			JobURL:        build.WebURL + "#" + job.ID,
			ExitStatus:    copyInt(job.ExitStatus),
		}
		if job.RetriesCount != nil {
			outcome.RetryCount = *job.RetriesCount
		}

		if outcome.Passed && outcome.DurationMin == nil {
			return nil, fmt.Errorf("build #%d step %q job %s: %w", build.Number, job.StepKey, job.ID, ErrPassedWithoutDuration)
		}
		collected = append(collected, outcome)
	}
	return collected, nil
}

func skipState(state provider.State) bool {
	return state == provider.StateCanceled || state == provider.StateRunning
}

func durationMin(job provider.Job) *float64 {
	if job.StartedAt == nil || job.FinishedAt == nil {
		return nil
	}
	d := job.FinishedAt.Sub(*job.StartedAt).Minutes()
	return &d
}

func copyInt(v *int) *int {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
