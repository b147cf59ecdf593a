package steps

import (
	"sort"

	"github.com/bgricker/stepstats/internal/provider"
)

// StepInfo summarises how often a step key occurs in a set of builds.
type StepInfo struct {
	StepKey    string `json:"step_key"`
	Executions int    `json:"executions"`
	Builds     int    `json:"builds"`
	Shards     []int  `json:"shards,omitempty"`
}

// Inventory lists every step key found in builds, sorted by key, regardless of
// job state. It helps pick matcher values.
func Inventory(builds []provider.Build) []StepInfo {
	type entry struct {
		info   StepInfo
		shards map[int]struct{}
		builds map[int]struct{}
	}
	entries := make(map[string]*entry)

	for _, build := range builds {
		for _, job := range build.Jobs {
			if job.StepKey == "" {
				continue
			}
			e, ok := entries[job.StepKey]
			if !ok {
				e = &entry{
					info:   StepInfo{StepKey: job.StepKey},
					shards: make(map[int]struct{}),
					builds: make(map[int]struct{}),
				}
				entries[job.StepKey] = e
			}
			e.info.Executions++
			e.builds[build.Number] = struct{}{}
			if job.ParallelIndex != nil {
				e.shards[*job.ParallelIndex] = struct{}{}
			}
		}
	}

	out := make([]StepInfo, 0, len(entries))
	for _, e := range entries {
		info := e.info
		info.Builds = len(e.builds)
		for idx := range e.shards {
			info.Shards = append(info.Shards, idx)
		}
		sort.Ints(info.Shards)
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StepKey < out[j].StepKey })
	return out
}
