package execution

import (
	"log/slog"

	"git.home.luguber.info/inful/contentmill/internal/document"
	"git.home.luguber.info/inful/contentmill/internal/vfs"
)

// Settings is the read-only key/value store visible to modules.
type Settings map[string]any

// Get returns the value for key and whether it is present.
func (s Settings) Get(key string) (any, bool) {
	v, ok := s[key]
	return v, ok
}

// GetString returns the value for key as a string, or def if absent.
func (s Settings) GetString(key, def string) string {
	if v, ok := s[key]; ok {
		if str, ok := v.(string); ok {
			return str
		}
	}
	return def
}

// GetBool returns the value for key as a bool, or def if absent.
func (s Settings) GetBool(key string, def bool) bool {
	if v, ok := s[key]; ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return def
}

// Context carries the per-invocation services handed to every module:
// document construction, content provider factories, settings, logging and
// the file abstraction. Cancellation flows through the context.Context
// passed to Execute/ExecuteDocument, not through this type.
type Context struct {
	Pipeline string
	Phase    string
	Settings Settings
	FS       vfs.FileSystem

	logger *slog.Logger
}

// NewContext creates an execution context. A nil logger defaults to
// slog.Default; a nil fs defaults to the OS file system.
func NewContext(pipeline, phase string, settings Settings, fs vfs.FileSystem, logger *slog.Logger) *Context {
	if logger == nil {
		logger = slog.Default()
	}
	if fs == nil {
		fs = vfs.OS()
	}
	if settings == nil {
		settings = Settings{}
	}
	return &Context{
		Pipeline: pipeline,
		Phase:    phase,
		Settings: settings,
		FS:       fs,
		logger:   logger,
	}
}

// Logger returns the context logger annotated with pipeline and phase.
func (c *Context) Logger() *slog.Logger {
	return c.logger.With(slog.String("pipeline", c.Pipeline), slog.String("phase", c.Phase))
}

// WithPhase returns a derived context for another phase of the same run.
func (c *Context) WithPhase(phase string) *Context {
	derived := *c
	derived.Phase = phase
	return &derived
}

// NewDocument creates a document through this context.
func (c *Context) NewDocument(opts ...document.Option) *document.Document {
	return document.New(opts...)
}

// CloneOrCreateDocument clones existing with the given overrides, or creates
// a fresh document when existing is nil.
func (c *Context) CloneOrCreateDocument(existing *document.Document, opts ...document.Option) *document.Document {
	if existing == nil {
		return document.New(opts...)
	}
	return existing.Clone(opts...)
}

// GetContentProvider builds a provider from raw bytes.
func (c *Context) GetContentProvider(data []byte) document.ContentProvider {
	return document.NewBytesProvider(data)
}

// GetStringProvider builds a provider from string content.
func (c *Context) GetStringProvider(content string) document.ContentProvider {
	return document.NewStringProvider(content)
}

// GetFileProvider builds a provider backed by a file path resolved through
// the context file system.
func (c *Context) GetFileProvider(path string) document.ContentProvider {
	return document.NewFileProvider(c.FS.GetFile(path))
}
