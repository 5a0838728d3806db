package pipeline

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/contentmill/internal/cache"
	"git.home.luguber.info/inful/contentmill/internal/document"
	"git.home.luguber.info/inful/contentmill/internal/errors"
	"git.home.luguber.info/inful/contentmill/internal/execution"
)

// batchModule is a whole-batch test module backed by a function.
type batchModule struct {
	name string
	fn   func(ctx context.Context, inputs []*document.Document, ec *execution.Context) ([]*document.Document, error)
}

func (m *batchModule) Name() string { return m.name }

func (m *batchModule) Execute(ctx context.Context, inputs []*document.Document, ec *execution.Context) ([]*document.Document, error) {
	return m.fn(ctx, inputs, ec)
}

// docModule is a per-document test module backed by a function.
type docModule struct {
	name      string
	cacheable bool
	fn        func(ctx context.Context, doc *document.Document, ec *execution.Context) ([]*document.Document, error)
}

func (m *docModule) Name() string    { return m.name }
func (m *docModule) Cacheable() bool { return m.cacheable }

func (m *docModule) ExecuteDocument(ctx context.Context, doc *document.Document, ec *execution.Context) ([]*document.Document, error) {
	return m.fn(ctx, doc, ec)
}

// recorder tracks completion order across pipelines.
type orderRecorder struct {
	mu    sync.Mutex
	order []string
}

func (r *orderRecorder) add(name string) {
	r.mu.Lock()
	r.order = append(r.order, name)
	r.mu.Unlock()
}

func (r *orderRecorder) get() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.order...)
}

func markerModule(rec *orderRecorder, label string) *batchModule {
	return &batchModule{name: label, fn: func(_ context.Context, inputs []*document.Document, _ *execution.Context) ([]*document.Document, error) {
		rec.add(label)
		return inputs, nil
	}}
}

func emitModule(name string, count int) *batchModule {
	return &batchModule{name: name, fn: func(_ context.Context, _ []*document.Document, ec *execution.Context) ([]*document.Document, error) {
		docs := make([]*document.Document, count)
		for i := range docs {
			docs[i] = ec.NewDocument(
				document.WithSource(fmt.Sprintf("/in/%d.txt", i)),
				document.WithContent(document.NewStringProvider(fmt.Sprintf("doc %d", i))),
			)
		}
		return docs, nil
	}}
}

func failingModule(name string) *batchModule {
	return &batchModule{name: name, fn: func(context.Context, []*document.Document, *execution.Context) ([]*document.Document, error) {
		return nil, fmt.Errorf("%s blew up", name)
	}}
}

func TestPhasesRunInDeclaredOrder(t *testing.T) {
	rec := &orderRecorder{}
	e := NewEngine()
	e.AddPipeline("p").
		WithOutput(markerModule(rec, "out")).
		WithInput(markerModule(rec, "in")).
		WithPostProcess(markerModule(rec, "post")).
		WithProcess(markerModule(rec, "proc"))

	report, err := e.Execute(context.Background())
	require.NoError(t, err)
	assert.True(t, report.IsSuccess())
	assert.Equal(t, []string{"in", "proc", "post", "out"}, rec.get())
}

func TestPhaseOutputFeedsNextPhase(t *testing.T) {
	var processSaw int
	e := NewEngine()
	e.AddPipeline("p").
		WithInput(emitModule("emit", 3)).
		WithProcess(&batchModule{name: "count", fn: func(_ context.Context, inputs []*document.Document, _ *execution.Context) ([]*document.Document, error) {
			processSaw = len(inputs)
			return inputs, nil
		}})

	report, err := e.Execute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, processSaw)
	assert.Equal(t, 3, report.Result("p").Documents)
}

func TestPerDocumentFanOutPreservesInputOrder(t *testing.T) {
	upper := &docModule{name: "tag", fn: func(_ context.Context, doc *document.Document, _ *execution.Context) ([]*document.Document, error) {
		return []*document.Document{
			doc.Clone(document.WithMetadata("copy", 1)),
			doc.Clone(document.WithMetadata("copy", 2)),
		}, nil
	}}

	var got []string
	e := NewEngine()
	e.AddPipeline("p").
		WithInput(emitModule("emit", 4)).
		WithProcess(upper).
		WithOutput(&batchModule{name: "collect", fn: func(_ context.Context, inputs []*document.Document, _ *execution.Context) ([]*document.Document, error) {
			for _, d := range inputs {
				got = append(got, fmt.Sprintf("%s#%d", d.Source(), d.Metadata().GetInt("copy")))
			}
			return inputs, nil
		}})

	_, err := e.Execute(context.Background())
	require.NoError(t, err)

	want := []string{
		"/in/0.txt#1", "/in/0.txt#2",
		"/in/1.txt#1", "/in/1.txt#2",
		"/in/2.txt#1", "/in/2.txt#2",
		"/in/3.txt#1", "/in/3.txt#2",
	}
	assert.Equal(t, want, got, "fan-in preserves input document order")
}

func TestDependenciesCompleteFirst(t *testing.T) {
	rec := &orderRecorder{}
	e := NewEngine()
	e.AddPipeline("render", WithDependencies("assets", "content")).WithInput(markerModule(rec, "render"))
	e.AddPipeline("assets").WithInput(markerModule(rec, "assets"))
	e.AddPipeline("content").WithInput(markerModule(rec, "content"))

	report, err := e.Execute(context.Background())
	require.NoError(t, err)
	assert.True(t, report.IsSuccess())

	order := rec.get()
	require.Len(t, order, 3)
	assert.Equal(t, "render", order[2], "dependent runs after both dependencies")
}

func TestSerialAndParallelProduceSameReport(t *testing.T) {
	build := func(opts ...EngineOption) *Engine {
		e := NewEngine(opts...)
		e.AddPipeline("a").WithInput(emitModule("emit", 2))
		e.AddPipeline("b", WithDependencies("a")).WithInput(failingModule("boom"))
		e.AddPipeline("c", WithDependencies("b")).WithInput(emitModule("emit", 1))
		return e
	}

	serialReport, serialErr := build(WithSerialExecution(true)).Execute(context.Background())
	parallelReport, parallelErr := build().Execute(context.Background())

	require.Error(t, serialErr)
	require.Error(t, parallelErr)
	for _, report := range []*RunReport{serialReport, parallelReport} {
		assert.Equal(t, StateCompleted, report.Result("a").State)
		assert.Equal(t, StateFailed, report.Result("b").State)
		assert.Equal(t, StateSkipped, report.Result("c").State)
		assert.Equal(t, "b", report.Result("c").SkippedOn)
	}
}

func TestFailureDoesNotAbortIndependentSiblings(t *testing.T) {
	rec := &orderRecorder{}
	e := NewEngine()
	e.AddPipeline("bad").WithInput(failingModule("boom"))
	e.AddPipeline("good").WithInput(markerModule(rec, "good"))

	report, err := e.Execute(context.Background())
	require.Error(t, err)
	assert.Equal(t, []string{"good"}, rec.get())
	assert.Equal(t, StateCompleted, report.Result("good").State)
	assert.Equal(t, StateFailed, report.Result("bad").State)
}

func TestSkipPropagatesTransitively(t *testing.T) {
	e := NewEngine()
	e.AddPipeline("a").WithInput(failingModule("boom"))
	e.AddPipeline("b", WithDependencies("a")).WithInput(emitModule("emit", 1))
	e.AddPipeline("c", WithDependencies("b")).WithInput(emitModule("emit", 1))

	report, err := e.Execute(context.Background())
	require.Error(t, err)
	assert.Equal(t, StateSkipped, report.Result("b").State)
	assert.Equal(t, StateSkipped, report.Result("c").State)
	assert.Len(t, report.Results(), 3, "report enumerates every pipeline in the run")
}

func TestDefaultSelection(t *testing.T) {
	rec := &orderRecorder{}
	e := NewEngine()
	e.AddPipeline("normal").WithInput(markerModule(rec, "normal"))
	e.AddPipeline("optout", WithDefault(false)).WithInput(markerModule(rec, "optout"))
	e.AddPipeline("deploy", Isolated()).WithInput(markerModule(rec, "deploy"))

	_, err := e.Execute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"normal"}, rec.get())
}

func TestIsolatedRunsWhenNamed(t *testing.T) {
	rec := &orderRecorder{}
	e := NewEngine()
	e.AddPipeline("deploy", Isolated()).WithInput(markerModule(rec, "deploy"))

	_, err := e.Execute(context.Background(), "deploy")
	require.NoError(t, err)
	assert.Equal(t, []string{"deploy"}, rec.get())
}

func TestUnknownPipelineName(t *testing.T) {
	e := NewEngine()
	_, err := e.Execute(context.Background(), "nope")
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfig))
}

func TestDocumentFailureAbortsAndNamesDocument(t *testing.T) {
	flaky := &docModule{name: "flaky", fn: func(_ context.Context, doc *document.Document, _ *execution.Context) ([]*document.Document, error) {
		if doc.Source() == "/in/1.txt" {
			return nil, fmt.Errorf("bad document")
		}
		return []*document.Document{doc}, nil
	}}

	e := NewEngine(WithSerialExecution(true))
	e.AddPipeline("p").WithInput(emitModule("emit", 3)).WithProcess(flaky)

	report, err := e.Execute(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "/in/1.txt")
	assert.Equal(t, StateFailed, report.Result("p").State)
}

func TestContinueOnDocumentErrorDropsFailingDocument(t *testing.T) {
	flaky := &docModule{name: "flaky", fn: func(_ context.Context, doc *document.Document, _ *execution.Context) ([]*document.Document, error) {
		if doc.Source() == "/in/1.txt" {
			return nil, fmt.Errorf("bad document")
		}
		return []*document.Document{doc}, nil
	}}

	e := NewEngine(WithContinueOnDocumentError(true))
	e.AddPipeline("p").WithInput(emitModule("emit", 3)).WithProcess(flaky)

	report, err := e.Execute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, report.Result("p").Documents)
}

func TestCacheableModuleComputedOncePerFingerprint(t *testing.T) {
	var calls atomic.Int32
	cached := &docModule{name: "slow", cacheable: true, fn: func(_ context.Context, doc *document.Document, _ *execution.Context) ([]*document.Document, error) {
		calls.Add(1)
		return []*document.Document{doc.Clone(document.WithMetadata("done", true))}, nil
	}}

	// Two documents with identical content and metadata share a fingerprint.
	same := &batchModule{name: "emit", fn: func(_ context.Context, _ []*document.Document, ec *execution.Context) ([]*document.Document, error) {
		return []*document.Document{
			ec.NewDocument(document.WithContent(document.NewStringProvider("same"))),
			ec.NewDocument(document.WithContent(document.NewStringProvider("same"))),
		}, nil
	}}

	e := NewEngine(WithSerialExecution(true))
	e.AddPipeline("p").WithInput(same).WithProcess(cached)

	report, err := e.Execute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, 2, report.Result("p").Documents, "cache hit still yields output for every input")
}

func TestCacheKeysAreScopedPerModule(t *testing.T) {
	var passCalls, renderCalls atomic.Int32
	pass := &docModule{name: "pass", cacheable: true, fn: func(_ context.Context, doc *document.Document, _ *execution.Context) ([]*document.Document, error) {
		passCalls.Add(1)
		return []*document.Document{doc}, nil
	}}
	render := &docModule{name: "render", cacheable: true, fn: func(_ context.Context, doc *document.Document, _ *execution.Context) ([]*document.Document, error) {
		renderCalls.Add(1)
		content, err := doc.GetContentString()
		if err != nil {
			return nil, err
		}
		return []*document.Document{doc.Clone(
			document.WithContent(document.NewStringProvider("<p>" + content + "</p>")),
		)}, nil
	}}

	var final []string
	e := NewEngine(WithSerialExecution(true))
	e.AddPipeline("p").
		WithInput(emitModule("emit", 1)).
		WithProcess(pass, render).
		WithOutput(&batchModule{name: "collect", fn: func(_ context.Context, inputs []*document.Document, _ *execution.Context) ([]*document.Document, error) {
			for _, d := range inputs {
				content, err := d.GetContentString()
				if err != nil {
					return nil, err
				}
				final = append(final, content)
			}
			return inputs, nil
		}})

	_, err := e.Execute(context.Background())
	require.NoError(t, err)

	// pass emits its input unchanged, so render sees a document with the
	// same fingerprint that pass just cached. It must still run.
	assert.Equal(t, int32(1), passCalls.Load())
	assert.Equal(t, int32(1), renderCalls.Load(), "second cacheable module skipped on the first module's cache entry")
	assert.Equal(t, []string{"<p>doc 0</p>"}, final)
}

func TestDisabledCacheAlwaysComputes(t *testing.T) {
	var calls atomic.Int32
	cached := &docModule{name: "slow", cacheable: true, fn: func(_ context.Context, doc *document.Document, _ *execution.Context) ([]*document.Document, error) {
		calls.Add(1)
		return []*document.Document{doc}, nil
	}}
	same := emitModule("emit", 2)

	e := NewEngine(WithSerialExecution(true), WithCache(cache.New(cache.Disabled())))
	e.AddPipeline("p").WithInput(same).WithProcess(cached)

	_, err := e.Execute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestCancellationReturnsCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	slow := &batchModule{name: "slow", fn: func(ctx context.Context, inputs []*document.Document, _ *execution.Context) ([]*document.Document, error) {
		cancel()
		<-ctx.Done()
		return nil, ctx.Err()
	}}

	e := NewEngine()
	e.AddPipeline("p").WithInput(slow)

	_, err := e.Execute(ctx)
	require.Error(t, err)
	assert.True(t, errors.IsCanceled(err))
}

func TestMaxParallelBoundsConcurrency(t *testing.T) {
	var current, peak atomic.Int32
	probe := &docModule{name: "probe", fn: func(_ context.Context, doc *document.Document, _ *execution.Context) ([]*document.Document, error) {
		n := current.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		current.Add(-1)
		return []*document.Document{doc}, nil
	}}

	e := NewEngine(WithMaxParallel(2))
	e.AddPipeline("p").WithInput(emitModule("emit", 8)).WithProcess(probe)

	_, err := e.Execute(context.Background())
	require.NoError(t, err)
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestFailingEventHandlerDoesNotFailRun(t *testing.T) {
	e := NewEngine()
	e.AddPipeline("p").WithInput(emitModule("emit", 1))
	e.Bus().Subscribe(EventPipelineStarted, func(Event) error {
		return fmt.Errorf("handler broke")
	})

	report, err := e.Execute(context.Background())
	require.NoError(t, err)
	assert.True(t, report.IsSuccess())
}

func TestBusPublishesLifecycleEvents(t *testing.T) {
	e := NewEngine()
	e.AddPipeline("p").WithInput(emitModule("emit", 1))

	var seen []string
	record := func(ev Event) error {
		seen = append(seen, ev.Name())
		return nil
	}
	for _, name := range []string{EventRunStarted, EventPipelineStarted, EventModuleExecuted, EventPipelineCompleted, EventRunCompleted} {
		e.Bus().Subscribe(name, record)
	}

	_, err := e.Execute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{
		EventRunStarted, EventPipelineStarted, EventModuleExecuted,
		EventPipelineCompleted, EventRunCompleted,
	}, seen)
}
