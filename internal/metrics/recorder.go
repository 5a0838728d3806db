// Package metrics provides observability hooks for engine runs. Components
// receive a Recorder through dependency injection; the default NoopRecorder
// makes metrics collection optional with zero overhead.
package metrics

import "time"

// ResultLabel enumerates pipeline result categories for counters.
type ResultLabel string

const (
	ResultSuccess ResultLabel = "success"
	ResultFailed  ResultLabel = "failed"
	ResultSkipped ResultLabel = "skipped"
)

// Recorder defines observability hooks for run, pipeline and module
// metrics. Implementations may forward to Prometheus, OpenTelemetry, etc.
type Recorder interface {
	ObserveRunDuration(d time.Duration)
	ObservePipelineDuration(pipeline string, d time.Duration)
	ObserveModuleDuration(pipeline, module string, d time.Duration)
	IncPipelineResult(pipeline string, result ResultLabel)
	IncRunOutcome(outcome string) // outcome: success|failed|canceled
	IncCacheLookup(hit bool)
}

// NoopRecorder is a Recorder that does nothing (default when metrics not
// configured).
type NoopRecorder struct{}

func (NoopRecorder) ObserveRunDuration(time.Duration)                    {}
func (NoopRecorder) ObservePipelineDuration(string, time.Duration)       {}
func (NoopRecorder) ObserveModuleDuration(string, string, time.Duration) {}
func (NoopRecorder) IncPipelineResult(string, ResultLabel)               {}
func (NoopRecorder) IncRunOutcome(string)                                {}
func (NoopRecorder) IncCacheLookup(bool)                                 {}
