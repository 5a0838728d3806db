// Package pipeline implements the engine core: named pipelines composed of
// ordered phases, a dependency-ordered scheduler with parallel and serial
// execution modes, and fingerprint-keyed caching around per-document module
// invocations.
package pipeline

import (
	"git.home.luguber.info/inful/contentmill/internal/execution"
)

// PhaseName identifies one of the fixed phases of a pipeline.
type PhaseName string

const (
	PhaseInput       PhaseName = "input"
	PhaseProcess     PhaseName = "process"
	PhasePostProcess PhaseName = "postprocess"
	PhaseOutput      PhaseName = "output"
)

// PhaseOrder is the strict, declared execution order of phases within a
// pipeline. Phase N's complete output document set is phase N+1's input.
var PhaseOrder = []PhaseName{PhaseInput, PhaseProcess, PhasePostProcess, PhaseOutput}

// Pipeline is a named set of phases plus declared pipeline-name dependencies
// and scheduling flags.
type Pipeline struct {
	name         string
	phases       map[PhaseName][]execution.Module
	dependencies []string
	isDefault    bool
	isolated     bool
}

// PipelineOption configures a pipeline at construction.
type PipelineOption func(*Pipeline)

// WithDependencies declares pipelines that must complete before this one
// starts.
func WithDependencies(names ...string) PipelineOption {
	return func(p *Pipeline) {
		p.dependencies = append(p.dependencies, names...)
	}
}

// WithDefault controls whether the pipeline participates in a run that
// names no pipelines explicitly. Pipelines are default unless configured
// otherwise.
func WithDefault(isDefault bool) PipelineOption {
	return func(p *Pipeline) { p.isDefault = isDefault }
}

// Isolated marks a deployment-only pipeline: it never runs by default, is
// scheduled independently, and may neither declare nor receive
// dependencies.
func Isolated() PipelineOption {
	return func(p *Pipeline) {
		p.isolated = true
		p.isDefault = false
	}
}

// NewPipeline creates a pipeline with empty phases.
func NewPipeline(name string, options ...PipelineOption) *Pipeline {
	p := &Pipeline{
		name:      name,
		phases:    make(map[PhaseName][]execution.Module),
		isDefault: true,
	}
	for _, opt := range options {
		opt(p)
	}
	return p
}

// Append adds modules to the end of a phase's module list.
func (p *Pipeline) Append(phase PhaseName, modules ...execution.Module) *Pipeline {
	p.phases[phase] = append(p.phases[phase], modules...)
	return p
}

// WithInput appends modules to the Input phase.
func (p *Pipeline) WithInput(modules ...execution.Module) *Pipeline {
	return p.Append(PhaseInput, modules...)
}

// WithProcess appends modules to the Process phase.
func (p *Pipeline) WithProcess(modules ...execution.Module) *Pipeline {
	return p.Append(PhaseProcess, modules...)
}

// WithPostProcess appends modules to the PostProcess phase.
func (p *Pipeline) WithPostProcess(modules ...execution.Module) *Pipeline {
	return p.Append(PhasePostProcess, modules...)
}

// WithOutput appends modules to the Output phase.
func (p *Pipeline) WithOutput(modules ...execution.Module) *Pipeline {
	return p.Append(PhaseOutput, modules...)
}

// Name returns the pipeline name.
func (p *Pipeline) Name() string { return p.name }

// Dependencies returns the declared dependency pipeline names.
func (p *Pipeline) Dependencies() []string { return p.dependencies }

// IsDefault reports whether the pipeline runs when no names are given.
func (p *Pipeline) IsDefault() bool { return p.isDefault }

// IsIsolated reports whether the pipeline is deployment-only.
func (p *Pipeline) IsIsolated() bool { return p.isolated }

// Modules returns the modules of a phase in declared order.
func (p *Pipeline) Modules(phase PhaseName) []execution.Module {
	return p.phases[phase]
}
