package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"git.home.luguber.info/inful/contentmill/internal/cache"
	"git.home.luguber.info/inful/contentmill/internal/document"
	"git.home.luguber.info/inful/contentmill/internal/errors"
	"git.home.luguber.info/inful/contentmill/internal/execution"
	"git.home.luguber.info/inful/contentmill/internal/metrics"
	"git.home.luguber.info/inful/contentmill/internal/vfs"
)

// Engine builds the pipeline dependency graph, computes a valid execution
// order, runs independent pipelines concurrently (or fully serially), and
// runs each pipeline's phases in sequence.
type Engine struct {
	pipelines map[string]*Pipeline
	settings  execution.Settings
	fs        vfs.FileSystem
	logger    *slog.Logger
	cache     *cache.ExecutionCache
	recorder  metrics.Recorder
	bus       *Bus

	serial        bool
	maxParallel   int
	continueOnDoc bool
}

// EngineOption configures engine behavior.
type EngineOption func(*Engine)

// WithSettings sets the read-only settings store handed to modules.
func WithSettings(settings execution.Settings) EngineOption {
	return func(e *Engine) { e.settings = settings }
}

// WithFileSystem sets the file abstraction handed to modules.
func WithFileSystem(fs vfs.FileSystem) EngineOption {
	return func(e *Engine) { e.fs = fs }
}

// WithLogger sets the engine logger.
func WithLogger(logger *slog.Logger) EngineOption {
	return func(e *Engine) { e.logger = logger }
}

// WithCache sets the execution cache. Defaults to an enabled run-scoped
// cache.
func WithCache(c *cache.ExecutionCache) EngineOption {
	return func(e *Engine) { e.cache = c }
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r metrics.Recorder) EngineOption {
	return func(e *Engine) { e.recorder = r }
}

// WithSerialExecution forces strictly sequential pipeline and module
// execution. Used for deterministic debugging; it changes scheduling only,
// not output.
func WithSerialExecution(serial bool) EngineOption {
	return func(e *Engine) { e.serial = serial }
}

// WithMaxParallel bounds concurrent pipeline and per-document executions.
// Zero means unbounded.
func WithMaxParallel(n int) EngineOption {
	return func(e *Engine) { e.maxParallel = n }
}

// WithContinueOnDocumentError makes a failing per-document invocation drop
// that document's output instead of aborting the pipeline. Default is to
// abort, reporting which document triggered the failure.
func WithContinueOnDocumentError(cont bool) EngineOption {
	return func(e *Engine) { e.continueOnDoc = cont }
}

// NewEngine creates an engine with no pipelines.
func NewEngine(options ...EngineOption) *Engine {
	e := &Engine{
		pipelines: make(map[string]*Pipeline),
		settings:  execution.Settings{},
		fs:        vfs.OS(),
		logger:    slog.Default(),
		recorder:  metrics.NoopRecorder{},
		bus:       NewBus(),
	}
	for _, opt := range options {
		opt(e)
	}
	if e.cache == nil {
		e.cache = cache.New(cache.WithLogger(e.logger))
	}
	return e
}

// AddPipeline registers a pipeline and returns it for phase population.
// Re-adding a name replaces the previous pipeline.
func (e *Engine) AddPipeline(name string, options ...PipelineOption) *Pipeline {
	p := NewPipeline(name, options...)
	e.pipelines[name] = p
	return p
}

// Bus returns the engine event bus.
func (e *Engine) Bus() *Bus { return e.bus }

// publish delivers an event, logging handler failures. A broken subscriber
// never fails the run.
func (e *Engine) publish(ev Event) {
	if err := e.bus.Publish(ev); err != nil {
		e.logger.Warn("Event handler failed",
			slog.String("event", ev.Name()),
			slog.Any("error", err))
	}
}

// Pipelines returns every registered pipeline sorted by name.
func (e *Engine) Pipelines() []*Pipeline {
	names := make([]string, 0, len(e.pipelines))
	for name := range e.pipelines {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]*Pipeline, len(names))
	for i, name := range names {
		out[i] = e.pipelines[name]
	}
	return out
}

// Cache returns the execution cache.
func (e *Engine) Cache() *cache.ExecutionCache { return e.cache }

// Execute runs the named pipelines, or every default pipeline when no names
// are given. Configuration errors (unknown name, cyclic dependency) abort
// before any pipeline starts. Pipeline failures do not abort siblings;
// dependents of a failed pipeline are reported skipped. The report
// enumerates every pipeline in the run.
func (e *Engine) Execute(ctx context.Context, names ...string) (*RunReport, error) {
	selected, err := e.selectPipelines(names)
	if err != nil {
		return nil, err
	}
	plan, err := e.buildExecutionPlan(selected)
	if err != nil {
		return nil, err
	}

	report := newRunReport()
	for _, name := range plan.order {
		report.set(&PipelineResult{Pipeline: name, State: StatePending})
	}

	e.logger.Info("Executing pipelines",
		slog.Int("count", len(plan.order)),
		slog.Any("order", plan.order),
		slog.Bool("serial", e.serial))
	e.publish(RunEvent{E: EventRunStarted, Pipelines: plan.order})

	start := time.Now()
	if e.serial {
		e.executeSerial(ctx, plan, report)
	} else {
		e.executeParallel(ctx, plan, report)
	}
	e.recorder.ObserveRunDuration(time.Since(start))
	e.publish(RunEvent{E: EventRunCompleted, Pipelines: plan.order})

	if err := ctx.Err(); err != nil {
		e.recorder.IncRunOutcome("canceled")
		return report, errors.Canceled(err)
	}
	if failed := report.Failed(); len(failed) > 0 {
		e.recorder.IncRunOutcome("failed")
		return report, errors.Wrap(failed[0].Err, errors.CategoryModule, errors.SeverityError,
			fmt.Sprintf("%d pipeline(s) failed, %d skipped", len(failed), len(report.Skipped())))
	}
	e.recorder.IncRunOutcome("success")
	return report, nil
}

// executeSerial runs pipelines one at a time in topological order.
func (e *Engine) executeSerial(ctx context.Context, plan *executionPlan, report *RunReport) {
	status := make(map[string]State)
	for _, name := range plan.order {
		if ctx.Err() != nil {
			return
		}
		if dep, bad := e.failedDependency(name, status); bad {
			e.markSkipped(report, status, name, dep)
			continue
		}
		res := e.runPipeline(ctx, name)
		status[name] = res.State
		report.set(res)
	}
}

// executeParallel runs pipelines as concurrent tasks driven by
// dependency-count decrement on completion.
func (e *Engine) executeParallel(ctx context.Context, plan *executionPlan, report *RunReport) {
	var (
		mu        sync.Mutex
		wg        sync.WaitGroup
		remaining = make(map[string]int, len(plan.indegree))
		status    = make(map[string]State)
	)
	for name, deg := range plan.indegree {
		remaining[name] = deg
	}

	var sem chan struct{}
	if e.maxParallel > 0 {
		sem = make(chan struct{}, e.maxParallel)
	}

	var launch func(name string)
	var finishLocked func(name string)

	// finishLocked resolves dependents after a pipeline reached a terminal
	// state. Callers hold mu.
	finishLocked = func(name string) {
		for _, dependent := range plan.dependents[name] {
			remaining[dependent]--
			if remaining[dependent] != 0 {
				continue
			}
			if dep, bad := e.failedDependency(dependent, status); bad {
				e.markSkipped(report, status, dependent, dep)
				finishLocked(dependent)
			} else {
				launch(dependent)
			}
		}
	}

	launch = func(name string) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if sem != nil {
				sem <- struct{}{}
				defer func() { <-sem }()
			}

			var res *PipelineResult
			if ctx.Err() != nil {
				res = &PipelineResult{Pipeline: name, State: StateFailed, Err: errors.Canceled(ctx.Err())}
			} else {
				res = e.runPipeline(ctx, name)
			}

			mu.Lock()
			defer mu.Unlock()
			status[name] = res.State
			report.set(res)
			finishLocked(name)
		}()
	}

	mu.Lock()
	for _, name := range plan.order {
		if remaining[name] == 0 {
			launch(name)
		}
	}
	mu.Unlock()
	wg.Wait()
}

// failedDependency returns the first declared dependency that failed or was
// skipped, if any.
func (e *Engine) failedDependency(name string, status map[string]State) (string, bool) {
	for _, dep := range e.pipelines[name].Dependencies() {
		if s := status[dep]; s == StateFailed || s == StateSkipped {
			return dep, true
		}
	}
	return "", false
}

func (e *Engine) markSkipped(report *RunReport, status map[string]State, name, failedDep string) {
	status[name] = StateSkipped
	report.set(&PipelineResult{Pipeline: name, State: StateSkipped, SkippedOn: failedDep})
	e.logger.Warn("Pipeline skipped due to dependency failure",
		slog.String("pipeline", name),
		slog.String("dependency", failedDep))
	e.recorder.IncPipelineResult(name, metrics.ResultSkipped)
	e.publish(PipelineEvent{E: EventPipelineSkipped, Pipeline: name})
}

// runPipeline executes the pipeline's phases strictly in declared order;
// each phase's complete output document set is the next phase's input.
func (e *Engine) runPipeline(ctx context.Context, name string) *PipelineResult {
	p := e.pipelines[name]
	start := time.Now()

	e.logger.Info("Starting pipeline", slog.String("pipeline", name))
	e.publish(PipelineEvent{E: EventPipelineStarted, Pipeline: name})

	fail := func(err error) *PipelineResult {
		duration := time.Since(start)
		e.logger.Error("Pipeline failed",
			slog.String("pipeline", name),
			slog.Any("error", err))
		e.recorder.ObservePipelineDuration(name, duration)
		e.recorder.IncPipelineResult(name, metrics.ResultFailed)
		e.publish(PipelineEvent{E: EventPipelineFailed, Pipeline: name, Err: err, Duration: duration})
		return &PipelineResult{Pipeline: name, State: StateFailed, Err: err, Duration: duration}
	}

	var docs []*document.Document
	for _, phase := range PhaseOrder {
		modules := p.Modules(phase)
		if len(modules) == 0 {
			continue
		}
		ec := execution.NewContext(name, string(phase), e.settings, e.fs, e.logger)

		for _, m := range modules {
			if err := ctx.Err(); err != nil {
				return fail(errors.Canceled(err))
			}

			moduleStart := time.Now()
			out, err := e.runModule(ctx, m, docs, ec)
			moduleDuration := time.Since(moduleStart)
			e.recorder.ObserveModuleDuration(name, m.Name(), moduleDuration)
			e.publish(ModuleEvent{
				E: EventModuleExecuted, Pipeline: name, Phase: phase,
				Module: m.Name(), Documents: len(out), Duration: moduleDuration,
			})

			if err != nil {
				return fail(err)
			}
			docs = out
			e.logger.Debug("Module completed",
				slog.String("pipeline", name),
				slog.String("phase", string(phase)),
				slog.String("module", m.Name()),
				slog.Int("documents", len(docs)))
		}
	}

	duration := time.Since(start)
	e.logger.Info("Pipeline completed",
		slog.String("pipeline", name),
		slog.Int("documents", len(docs)),
		slog.Duration("duration", duration))
	e.recorder.ObservePipelineDuration(name, duration)
	e.recorder.IncPipelineResult(name, metrics.ResultSuccess)
	e.publish(PipelineEvent{E: EventPipelineCompleted, Pipeline: name, Duration: duration})

	return &PipelineResult{
		Pipeline:  name,
		State:     StateCompleted,
		Documents: len(docs),
		Duration:  duration,
	}
}

// runModule dispatches on the module's declared execution strategy.
func (e *Engine) runModule(ctx context.Context, m execution.Module, inputs []*document.Document, ec *execution.Context) ([]*document.Document, error) {
	switch mod := m.(type) {
	case execution.DocumentModule:
		return e.runPerDocument(ctx, mod, inputs, ec)
	case execution.BatchModule:
		out, err := mod.Execute(ctx, inputs, ec)
		if err != nil {
			return nil, errors.Wrap(err, errors.CategoryModule, errors.SeverityError,
				fmt.Sprintf("module %s failed", m.Name()))
		}
		return out, nil
	default:
		return nil, errors.ConfigurationErrorf("module %q declares no execution strategy", m.Name())
	}
}

// runPerDocument fans the input set out to independent module invocations,
// one per document, and fans the results back into one combined output
// sequence preserving input order. No invocation observes another's output.
func (e *Engine) runPerDocument(ctx context.Context, mod execution.DocumentModule, inputs []*document.Document, ec *execution.Context) ([]*document.Document, error) {
	invoke := func(doc *document.Document) ([]*document.Document, error) {
		if execution.IsCacheable(mod) && e.cache.Enabled() {
			fingerprint, err := doc.GetCacheFingerprint()
			if err != nil {
				return nil, err
			}
			// The key is qualified by the module name: two cacheable modules
			// fed the same document must never serve each other's output.
			key := mod.Name() + ":" + fingerprint
			out, hit, err := e.cache.GetOrCompute(ctx, key, func() ([]*document.Document, error) {
				return mod.ExecuteDocument(ctx, doc, ec)
			})
			e.recorder.IncCacheLookup(hit)
			return out, err
		}
		return mod.ExecuteDocument(ctx, doc, ec)
	}

	results := make([][]*document.Document, len(inputs))
	errs := make([]error, len(inputs))

	if e.serial {
		for i, doc := range inputs {
			if err := ctx.Err(); err != nil {
				return nil, errors.Canceled(err)
			}
			results[i], errs[i] = invoke(doc)
		}
	} else {
		var sem chan struct{}
		if e.maxParallel > 0 {
			sem = make(chan struct{}, e.maxParallel)
		}
		var wg sync.WaitGroup
		for i, doc := range inputs {
			wg.Add(1)
			go func(i int, doc *document.Document) {
				defer wg.Done()
				if sem != nil {
					sem <- struct{}{}
					defer func() { <-sem }()
				}
				results[i], errs[i] = invoke(doc)
			}(i, doc)
		}
		wg.Wait()
	}

	var combined []*document.Document
	for i, doc := range inputs {
		if err := errs[i]; err != nil {
			if errors.IsCanceled(err) {
				return nil, err
			}
			wrapped := errors.Wrap(err, errors.CategoryModule, errors.SeverityError,
				fmt.Sprintf("module %s failed for document %s", mod.Name(), documentLabel(doc)))
			if !e.continueOnDoc {
				return nil, wrapped
			}
			ec.Logger().Error("Module failed for document, continuing",
				slog.String("module", mod.Name()),
				slog.String("document", documentLabel(doc)),
				slog.Any("error", err))
			continue
		}
		combined = append(combined, results[i]...)
	}
	return combined, nil
}

func documentLabel(doc *document.Document) string {
	if doc.HasSource() {
		return doc.Source()
	}
	return doc.ID()
}
