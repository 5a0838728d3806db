// Package execproc implements the external process module: run a program as
// part of a phase, either blocking until exit with captured output
// (foreground) or detached with tracked teardown (background).
package execproc

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"git.home.luguber.info/inful/contentmill/internal/document"
	"git.home.luguber.info/inful/contentmill/internal/errors"
	"git.home.luguber.info/inful/contentmill/internal/execution"
)

// Module runs an external program for each input document. Per-document
// strategy; never cacheable.
type Module struct {
	command execution.Value[string]
	args    execution.Value[[]string]
	dir     execution.Value[string]

	timeout         time.Duration
	background      bool
	onlyOnce        bool
	continueOnError bool
	keepContent     bool
	isSuccess       func(exitCode int) bool

	registry *Registry
	started  atomic.Bool
}

// Option configures the process module.
type Option func(*Module)

// WithArgs sets the program arguments.
func WithArgs(args execution.Value[[]string]) Option {
	return func(m *Module) { m.args = args }
}

// WithDir sets the working directory.
func WithDir(dir execution.Value[string]) Option {
	return func(m *Module) { m.dir = dir }
}

// WithTimeout bounds foreground execution. Zero waits indefinitely.
func WithTimeout(timeout time.Duration) Option {
	return func(m *Module) { m.timeout = timeout }
}

// Background detaches the process: the module returns the input document
// immediately without waiting, and the process is tracked for teardown.
func Background() Option {
	return func(m *Module) { m.background = true }
}

// OnlyOnce starts the process on the first invocation only; subsequent
// invocations pass the input through.
func OnlyOnce() Option {
	return func(m *Module) { m.onlyOnce = true }
}

// ContinueOnError degrades a process failure to a logged error plus
// metadata annotation instead of aborting the pipeline.
func ContinueOnError() Option {
	return func(m *Module) { m.continueOnError = true }
}

// KeepContent keeps the input document's content instead of replacing it
// with the captured output.
func KeepContent() Option {
	return func(m *Module) { m.keepContent = true }
}

// WithSuccessExitCodes treats the given exit codes as success. Default:
// only zero.
func WithSuccessExitCodes(codes ...int) Option {
	return func(m *Module) {
		set := make(map[int]bool, len(codes))
		for _, c := range codes {
			set[c] = true
		}
		m.isSuccess = func(code int) bool { return set[code] }
	}
}

// WithSuccessPredicate sets a custom exit-code predicate.
func WithSuccessPredicate(fn func(exitCode int) bool) Option {
	return func(m *Module) { m.isSuccess = fn }
}

// WithRegistry shares a background-process registry across modules.
func WithRegistry(r *Registry) Option {
	return func(m *Module) { m.registry = r }
}

// New creates a process module running command.
func New(command execution.Value[string], opts ...Option) *Module {
	m := &Module{
		command:   command,
		isSuccess: func(code int) bool { return code == 0 },
		registry:  NewRegistry(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Module) Name() string { return "ExecuteProcess" }

// Registry returns the background-process registry for teardown.
func (m *Module) Registry() *Registry { return m.registry }

// Close force-closes all tracked background processes.
func (m *Module) Close() {
	m.registry.CloseAll(nil)
}

// ExecuteDocument resolves the (possibly document-dependent) command
// parameters and runs the process.
func (m *Module) ExecuteDocument(ctx context.Context, doc *document.Document, ec *execution.Context) ([]*document.Document, error) {
	if m.onlyOnce && !m.started.CompareAndSwap(false, true) {
		return []*document.Document{doc}, nil
	}

	command, err := m.command.Resolve(doc, ec)
	if err != nil {
		return nil, err
	}
	if command == "" {
		return nil, errors.ConfigurationError("process module requires a command")
	}
	args, err := m.args.Resolve(doc, ec)
	if err != nil {
		return nil, err
	}
	dir, err := m.dir.Resolve(doc, ec)
	if err != nil {
		return nil, err
	}

	if m.background {
		return m.runBackground(ctx, doc, ec, command, args, dir)
	}
	return m.runForeground(ctx, doc, ec, command, args, dir)
}

// runBackground starts the process, attaches output loggers and returns the
// original document immediately. The process stays tracked until it exits
// or the registry is closed.
func (m *Module) runBackground(ctx context.Context, doc *document.Document, ec *execution.Context, command string, args []string, dir string) ([]*document.Document, error) {
	logger := ec.Logger().With(slog.String("command", command))

	cmd := exec.Command(command, args...)
	cmd.Dir = dir

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, errors.ExternalProcessFailure(err, command, -1)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, errors.ExternalProcessFailure(err, command, -1)
	}

	if err := cmd.Start(); err != nil {
		return nil, errors.ExternalProcessFailure(err, command, -1)
	}
	m.registry.track(cmd)
	logger.Info("Started background process", slog.Int("pid", cmd.Process.Pid))

	go logLines(stdout, func(line string) { logger.Info(line) })
	go logLines(stderr, func(line string) { logger.Error(line) })
	go func(pid int) {
		_ = cmd.Wait()
		m.registry.untrack(pid)
		logger.Debug("Background process exited", slog.Int("pid", pid))
	}(cmd.Process.Pid)

	return []*document.Document{doc}, nil
}

// runForeground runs the process to completion, capturing output line by
// line, respecting the timeout and the exit-code predicate. All process
// handles and streams are released on every exit path.
func (m *Module) runForeground(ctx context.Context, doc *document.Document, ec *execution.Context, command string, args []string, dir string) ([]*document.Document, error) {
	logger := ec.Logger().With(slog.String("command", command))

	runCtx := ctx
	if m.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(runCtx, command, args...)
	cmd.Dir = dir

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, errors.ExternalProcessFailure(err, command, -1)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, errors.ExternalProcessFailure(err, command, -1)
	}

	var outBuf, errBuf strings.Builder
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		logLines(stdout, func(line string) {
			logger.Info(line)
			outBuf.WriteString(line)
			outBuf.WriteString("\n")
		})
	}()
	go func() {
		defer wg.Done()
		logLines(stderr, func(line string) {
			logger.Error(line)
			errBuf.WriteString(line)
			errBuf.WriteString("\n")
		})
	}()

	if err := cmd.Start(); err != nil {
		wg.Wait()
		return nil, errors.ExternalProcessFailure(err, command, -1)
	}

	wg.Wait()
	waitErr := cmd.Wait()

	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, errors.Canceled(ctxErr)
	}

	exitCode := cmd.ProcessState.ExitCode()
	if runCtx.Err() == context.DeadlineExceeded {
		return nil, errors.ExternalProcessFailure(runCtx.Err(), command, exitCode).
			WithContext("timeout", m.timeout.String())
	}

	if !m.isSuccess(exitCode) {
		failure := errors.ExternalProcessFailure(waitErr, command, exitCode)
		if !m.continueOnError {
			return nil, failure
		}
		logger.Error("Process failed, continuing",
			slog.Int("exit_code", exitCode),
			slog.Any("error", waitErr))
		return []*document.Document{m.resultDocument(doc, exitCode, outBuf.String(), errBuf.String())}, nil
	}
	if waitErr != nil && exitCode < 0 {
		// Wait failed without a usable exit status (I/O error, signal).
		return nil, errors.ExternalProcessFailure(waitErr, command, exitCode)
	}

	return []*document.Document{m.resultDocument(doc, exitCode, outBuf.String(), errBuf.String())}, nil
}

// resultDocument builds the output document: exit code in metadata, the
// captured output as content unless the original content is kept, and the
// captured error text when the continue-on-error path is active.
func (m *Module) resultDocument(doc *document.Document, exitCode int, output, errText string) *document.Document {
	opts := []document.Option{
		document.WithMetadata(document.MetaExitCode, exitCode),
	}
	if m.continueOnError && errText != "" {
		opts = append(opts, document.WithMetadata(document.MetaErrorData, errText))
	}
	if !m.keepContent {
		opts = append(opts, document.WithContent(document.NewStringProvider(output)))
	}
	return doc.Clone(opts...)
}

func logLines(r io.Reader, emit func(line string)) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		emit(scanner.Text())
	}
}
