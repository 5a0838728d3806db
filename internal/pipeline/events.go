package pipeline

import "time"

// Event is a lifecycle event published by the engine and consumed by
// handlers.
type Event interface{ Name() string }

// Event names published during a run.
const (
	EventRunStarted        = "RunStarted"
	EventRunCompleted      = "RunCompleted"
	EventPipelineStarted   = "PipelineStarted"
	EventPipelineCompleted = "PipelineCompleted"
	EventPipelineFailed    = "PipelineFailed"
	EventPipelineSkipped   = "PipelineSkipped"
	EventModuleExecuted    = "ModuleExecuted"
)

// RunEvent marks the start or end of a whole engine run.
type RunEvent struct {
	E         string
	Pipelines []string
}

func (e RunEvent) Name() string { return e.E }

// PipelineEvent marks a pipeline state transition.
type PipelineEvent struct {
	E        string
	Pipeline string
	Err      error
	Duration time.Duration
}

func (e PipelineEvent) Name() string { return e.E }

// ModuleEvent marks a completed module invocation within a phase.
type ModuleEvent struct {
	E         string
	Pipeline  string
	Phase     PhaseName
	Module    string
	Documents int
	Duration  time.Duration
}

func (e ModuleEvent) Name() string { return e.E }
