package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"

	"git.home.luguber.info/inful/contentmill/internal/cache"
	"git.home.luguber.info/inful/contentmill/internal/config"
	"git.home.luguber.info/inful/contentmill/internal/execution"
	"git.home.luguber.info/inful/contentmill/internal/metrics"
	"git.home.luguber.info/inful/contentmill/internal/modules/core"
	"git.home.luguber.info/inful/contentmill/internal/modules/execproc"
	"git.home.luguber.info/inful/contentmill/internal/modules/include"
	"git.home.luguber.info/inful/contentmill/internal/modules/markdown"
	"git.home.luguber.info/inful/contentmill/internal/pipeline"
)

// PipelineContent renders markdown sources; PipelineTools runs the configured
// external process steps after rendering.
const (
	PipelineContent = "content"
	PipelineTools   = "tools"
)

type closer interface{ Close() }

// assembleEngine builds the engine and standard pipelines from configuration.
// The returned closers release background processes after the run.
func assembleEngine(cfg *config.Config, logger *slog.Logger, registry *prom.Registry) (*pipeline.Engine, []closer, error) {
	cacheOpts := []cache.Option{cache.WithLogger(logger)}
	if cfg.Cache.Disabled || CLI.Build.NoCache {
		cacheOpts = append(cacheOpts, cache.Disabled())
	} else if cfg.Cache.Path != "" {
		store, err := cache.NewSQLiteStore(cfg.Cache.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("opening cache store: %w", err)
		}
		cacheOpts = append(cacheOpts, cache.WithStore(store))
	}

	settings := execution.Settings{}
	for k, v := range cfg.Settings {
		settings[k] = v
	}

	engineOpts := []pipeline.EngineOption{
		pipeline.WithLogger(logger),
		pipeline.WithSettings(settings),
		pipeline.WithCache(cache.New(cacheOpts...)),
		pipeline.WithSerialExecution(cfg.Execution.Serial || CLI.Build.Serial),
		pipeline.WithMaxParallel(cfg.Execution.MaxParallel),
		pipeline.WithContinueOnDocumentError(cfg.Execution.ContinueOnDocumentError),
	}
	if registry != nil {
		engineOpts = append(engineOpts, pipeline.WithRecorder(metrics.NewPrometheusRecorder(registry)))
	}
	e := pipeline.NewEngine(engineOpts...)

	content := e.AddPipeline(PipelineContent).
		WithInput(core.NewReadFiles(cfg.Content.Directory, execution.Constant(cfg.Content.Pattern))).
		WithProcess(
			core.NewFrontMatter(),
			include.New(include.WithRecursion(!cfg.Content.DisableIncludeRecursion)),
		).
		WithOutput(core.NewWriteFiles(cfg.Output.Directory))

	var mdOpts []markdown.Option
	if cfg.Content.UnsafeHTML {
		mdOpts = append(mdOpts, markdown.WithUnsafeHTML())
	}
	content.WithProcess(markdown.New(mdOpts...))

	// Settings entries become metadata on every document, resolved once per
	// execution context.
	keys := make([]string, 0, len(cfg.Settings))
	for k := range cfg.Settings {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, key := range keys {
		key := key
		content.WithPostProcess(core.NewSetMetadata(key,
			execution.FromContext(func(ec *execution.Context) (any, error) {
				v, _ := ec.Settings.Get(key)
				return v, nil
			})))
	}

	var closers []closer
	if len(cfg.Processes) > 0 {
		tools := e.AddPipeline(PipelineTools, pipeline.WithDependencies(PipelineContent))
		for _, p := range cfg.Processes {
			opts := []execproc.Option{
				execproc.WithArgs(execution.Constant(p.Args)),
			}
			if p.Dir != "" {
				opts = append(opts, execproc.WithDir(execution.Constant(p.Dir)))
			}
			if d := p.TimeoutDuration(); d > 0 {
				opts = append(opts, execproc.WithTimeout(d))
			}
			if p.Background {
				opts = append(opts, execproc.Background())
			}
			if p.OnlyOnce {
				opts = append(opts, execproc.OnlyOnce())
			}
			m := execproc.New(execution.Constant(p.Command), opts...)
			tools.WithProcess(m)
			if p.Background {
				closers = append(closers, m)
			}
		}
	}

	return e, closers, nil
}

func runBuild(ctx context.Context, cfg *config.Config, logger *slog.Logger, registry *prom.Registry) error {
	if cfg.Output.Clean {
		if err := os.RemoveAll(cfg.Output.Directory); err != nil {
			return fmt.Errorf("cleaning output directory: %w", err)
		}
	}

	e, closers, err := assembleEngine(cfg, logger, registry)
	if err != nil {
		return err
	}
	defer func() {
		for _, c := range closers {
			c.Close()
		}
	}()

	start := time.Now()
	report, err := e.Execute(ctx, CLI.Build.Pipelines...)
	if report != nil {
		printReport(report, e.Cache().Stats(), time.Since(start))
	}
	return err
}

func printReport(report *pipeline.RunReport, stats cache.Stats, elapsed time.Duration) {
	for _, res := range report.Results() {
		switch res.State {
		case pipeline.StateCompleted:
			fmt.Printf("  %-12s completed  %d document(s) in %s\n", res.Pipeline, res.Documents, res.Duration.Round(time.Millisecond))
		case pipeline.StateSkipped:
			fmt.Printf("  %-12s skipped    (dependency %s failed)\n", res.Pipeline, res.SkippedOn)
		case pipeline.StateFailed:
			fmt.Printf("  %-12s failed     %v\n", res.Pipeline, res.Err)
		default:
			fmt.Printf("  %-12s %s\n", res.Pipeline, res.State)
		}
	}
	fmt.Printf("Cache: %d hit(s), %d miss(es). Total %s\n", stats.Hits, stats.Misses, elapsed.Round(time.Millisecond))
}

func runListPipelines(cfg *config.Config, logger *slog.Logger) error {
	e, closers, err := assembleEngine(cfg, logger, nil)
	if err != nil {
		return err
	}
	for _, c := range closers {
		c.Close()
	}

	for _, p := range e.Pipelines() {
		line := p.Name()
		if deps := p.Dependencies(); len(deps) > 0 {
			line += " (after " + strings.Join(deps, ", ") + ")"
		}
		var phases []string
		for _, phase := range pipeline.PhaseOrder {
			for _, m := range p.Modules(phase) {
				phases = append(phases, fmt.Sprintf("%s:%s", phase, m.Name()))
			}
		}
		fmt.Println(line)
		for _, ph := range phases {
			fmt.Println("  " + ph)
		}
	}
	return nil
}

const exampleConfig = `# contentmill configuration
content:
  directory: ./content
  pattern: "*.md"
  # disable_include_recursion: true

output:
  directory: ./public
  clean: false

cache:
  # path: ./contentmill-cache.db

execution:
  serial: false
  max_parallel: 0
  continue_on_document_error: false

logging:
  level: info
  format: text

# External steps run after rendering completes.
# processes:
#   - name: minify
#     command: minify-html
#     args: ["--in-place", "./public"]
#     timeout: 60s

settings:
  site_title: My Site
`

func runInit(path string, force bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("configuration file already exists: %s (use --force to overwrite)", path)
	}
	if err := os.WriteFile(path, []byte(exampleConfig), 0o644); err != nil {
		return fmt.Errorf("writing configuration file: %w", err)
	}
	fmt.Printf("Created %s\n", path)
	return nil
}
