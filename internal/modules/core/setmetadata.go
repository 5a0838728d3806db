package core

import (
	"context"
	"sync"

	"git.home.luguber.info/inful/contentmill/internal/document"
	"git.home.luguber.info/inful/contentmill/internal/execution"
)

// SetMetadata sets one metadata entry on every document. The config value's
// tag drives the evaluation strategy: a document-dependent value is
// re-resolved inside every per-document invocation, while a context-only
// value is resolved once per execution context and shared across that
// context's batch.
type SetMetadata struct {
	key   string
	value execution.Value[any]

	mu        sync.Mutex
	memoCtx   *execution.Context
	memoValue any
	memoErr   error
}

// NewSetMetadata creates a metadata-setting module.
func NewSetMetadata(key string, value execution.Value[any]) *SetMetadata {
	return &SetMetadata{key: key, value: value}
}

func (m *SetMetadata) Name() string { return "SetMetadata" }

func (m *SetMetadata) ExecuteDocument(ctx context.Context, doc *document.Document, ec *execution.Context) ([]*document.Document, error) {
	var v any
	var err error
	if m.value.DocumentDependent() {
		v, err = m.value.Resolve(doc, ec)
	} else {
		v, err = m.resolveShared(ec)
	}
	if err != nil {
		return nil, err
	}
	return []*document.Document{doc.Clone(document.WithMetadata(m.key, v))}, nil
}

// resolveShared memoizes the context-only resolution for the current
// execution context. A later invocation under a different context (another
// run, another phase) resolves afresh against that context's settings.
func (m *SetMetadata) resolveShared(ec *execution.Context) (any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.memoCtx != ec {
		m.memoValue, m.memoErr = m.value.Resolve(nil, ec)
		m.memoCtx = ec
	}
	return m.memoValue, m.memoErr
}
