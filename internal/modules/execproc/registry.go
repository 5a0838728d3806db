package execproc

import (
	"log/slog"
	"os/exec"
	"sync"
)

// Registry tracks background processes so they can be force-closed when the
// module is torn down. Guarded against concurrent start/exit races.
type Registry struct {
	mu    sync.Mutex
	procs map[int]*exec.Cmd
}

// NewRegistry creates an empty process registry.
func NewRegistry() *Registry {
	return &Registry{procs: make(map[int]*exec.Cmd)}
}

func (r *Registry) track(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	r.mu.Lock()
	r.procs[cmd.Process.Pid] = cmd
	r.mu.Unlock()
}

func (r *Registry) untrack(pid int) {
	r.mu.Lock()
	delete(r.procs, pid)
	r.mu.Unlock()
}

// Len returns the number of tracked processes.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.procs)
}

// CloseAll force-closes every tracked background process. Safe to call
// multiple times; processes that already exited are ignored.
func (r *Registry) CloseAll(logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	r.mu.Lock()
	procs := make([]*exec.Cmd, 0, len(r.procs))
	for _, cmd := range r.procs {
		procs = append(procs, cmd)
	}
	r.procs = make(map[int]*exec.Cmd)
	r.mu.Unlock()

	for _, cmd := range procs {
		if cmd.Process == nil {
			continue
		}
		logger.Debug("Killing background process", slog.Int("pid", cmd.Process.Pid))
		if err := cmd.Process.Kill(); err != nil {
			logger.Warn("Failed to kill background process",
				slog.Int("pid", cmd.Process.Pid),
				slog.Any("error", err))
		}
	}
}
