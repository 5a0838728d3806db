package pipeline

import (
	"sort"
	"sync"
	"time"
)

// State tracks a pipeline through one engine run.
type State string

const (
	StatePending   State = "pending"
	StateReady     State = "ready"
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateFailed    State = "failed"

	// StateSkipped marks pipelines that were not started because a
	// dependency failed. Distinct from failed.
	StateSkipped State = "skipped"
)

// PipelineResult is the outcome of one pipeline in a run.
type PipelineResult struct {
	Pipeline  string
	State     State
	Err       error // first error, nil unless State is failed
	SkippedOn string // failed dependency name, set when State is skipped
	Documents int    // output document count of the final phase
	Duration  time.Duration
}

// RunReport enumerates the outcome of every pipeline in a run.
type RunReport struct {
	mu      sync.Mutex
	results map[string]*PipelineResult
	started time.Time
}

func newRunReport() *RunReport {
	return &RunReport{results: make(map[string]*PipelineResult), started: time.Now()}
}

func (r *RunReport) set(res *PipelineResult) {
	r.mu.Lock()
	r.results[res.Pipeline] = res
	r.mu.Unlock()
}

// Result returns the outcome for a pipeline, or nil if it was not part of
// the run.
func (r *RunReport) Result(name string) *PipelineResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.results[name]
}

// Results returns all outcomes sorted by pipeline name.
func (r *RunReport) Results() []*PipelineResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*PipelineResult, 0, len(r.results))
	for _, res := range r.results {
		out = append(out, res)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Pipeline < out[j].Pipeline })
	return out
}

// Failed returns the failed pipeline results sorted by name.
func (r *RunReport) Failed() []*PipelineResult {
	var failed []*PipelineResult
	for _, res := range r.Results() {
		if res.State == StateFailed {
			failed = append(failed, res)
		}
	}
	return failed
}

// Skipped returns the skipped-due-to-dependency-failure results sorted by
// name.
func (r *RunReport) Skipped() []*PipelineResult {
	var skipped []*PipelineResult
	for _, res := range r.Results() {
		if res.State == StateSkipped {
			skipped = append(skipped, res)
		}
	}
	return skipped
}

// IsSuccess reports whether every pipeline in the run completed.
func (r *RunReport) IsSuccess() bool {
	for _, res := range r.Results() {
		if res.State != StateCompleted {
			return false
		}
	}
	return true
}
