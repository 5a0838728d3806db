// Package execution defines the module execution contract: the services
// handed to every module, the batch vs per-document strategies, and config
// values that resolve per context or per document.
package execution

import (
	"context"

	"git.home.luguber.info/inful/contentmill/internal/document"
)

// Module is a single transformation step from one document set to another.
// Every module declares exactly one execution strategy by implementing
// either BatchModule or DocumentModule.
type Module interface {
	// Name identifies the module in logs, metrics and reports.
	Name() string
}

// BatchModule receives the entire input document set at once. Used for
// aggregation and creation-from-nothing. The output set replaces the input;
// a module that wants to keep inputs must re-emit them.
type BatchModule interface {
	Module
	Execute(ctx context.Context, inputs []*document.Document, ec *Context) ([]*document.Document, error)
}

// DocumentModule is fanned out by the engine to one invocation per input
// document, run concurrently unless serial mode is active. Invocations are
// independent: no invocation may observe another's output.
type DocumentModule interface {
	Module
	ExecuteDocument(ctx context.Context, doc *document.Document, ec *Context) ([]*document.Document, error)
}

// Cacheable is implemented by document modules whose past output for an
// unchanged input may be reused. The engine keys reuse on the input
// document's cache fingerprint.
type Cacheable interface {
	Cacheable() bool
}

// IsCacheable reports whether the module opts into fingerprint-keyed reuse.
func IsCacheable(m Module) bool {
	c, ok := m.(Cacheable)
	return ok && c.Cacheable()
}
