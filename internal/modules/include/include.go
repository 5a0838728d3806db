// Package include implements the recursive text-inclusion module: document
// content is scanned for ^"path" markers which are replaced by the target
// file's (recursively expanded) content.
package include

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"

	"git.home.luguber.info/inful/contentmill/internal/document"
	"git.home.luguber.info/inful/contentmill/internal/errors"
	"git.home.luguber.info/inful/contentmill/internal/execution"
	"git.home.luguber.info/inful/contentmill/internal/vfs"
)

const (
	marker     = `^"`
	escapeChar = '\\'
)

// Module expands include markers in document content. Per-document strategy;
// outputs are cacheable on the input fingerprint.
type Module struct {
	recursion bool
}

// Option configures the include module.
type Option func(*Module)

// WithRecursion controls whether included content is itself scanned for
// markers. Enabled by default.
func WithRecursion(recursion bool) Option {
	return func(m *Module) { m.recursion = recursion }
}

// New creates an include module.
func New(opts ...Option) *Module {
	m := &Module{recursion: true}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Module) Name() string { return "Include" }

// Cacheable opts into fingerprint-keyed reuse of expansion results.
func (m *Module) Cacheable() bool { return true }

// ExecuteDocument expands all markers in the document. When zero
// substitutions occurred the input document is passed through untouched, so
// the caller skips allocating a new document.
func (m *Module) ExecuteDocument(ctx context.Context, doc *document.Document, ec *execution.Context) ([]*document.Document, error) {
	content, err := doc.GetContentString()
	if err != nil {
		return nil, err
	}

	visited := make(map[string]bool)
	if doc.HasSource() {
		visited[doc.Source()] = true
	}

	expanded, changed, err := m.expand(ec, content, doc.Source(), visited)
	if err != nil {
		return nil, err
	}
	if !changed {
		return []*document.Document{doc}, nil
	}
	return []*document.Document{
		doc.Clone(document.WithContent(document.NewStringProvider(expanded))),
	}, nil
}

// expand scans content left to right for include markers. source is the
// path relative includes resolve against; visited guards against include
// cycles. Returns content unchanged (changed=false) when no substitution
// occurred.
func (m *Module) expand(ec *execution.Context, content, source string, visited map[string]bool) (string, bool, error) {
	var b strings.Builder
	changed := false
	i := 0

	for {
		idx := strings.Index(content[i:], marker)
		if idx < 0 {
			break
		}
		pos := i + idx

		// An escaped marker is literal text: drop the escape character and
		// resume after the marker.
		if pos > 0 && content[pos-1] == escapeChar {
			b.WriteString(content[i : pos-1])
			b.WriteString(marker)
			i = pos + len(marker)
			changed = true
			continue
		}

		// No closing quote: malformed, stop scanning and leave the rest
		// as-is.
		closing := strings.Index(content[pos+len(marker):], `"`)
		if closing < 0 {
			break
		}

		includePath := content[pos+len(marker) : pos+len(marker)+closing]
		b.WriteString(content[i:pos])
		i = pos + len(marker) + closing + 1

		text, err := m.readInclude(ec, includePath, source, visited)
		if err != nil {
			return "", false, err
		}
		b.WriteString(text)
		changed = true
	}

	if !changed {
		return content, false, nil
	}
	b.WriteString(content[i:])
	return b.String(), true, nil
}

// readInclude resolves and reads one include target, recursively expanding
// it when recursion is enabled.
func (m *Module) readInclude(ec *execution.Context, includePath, source string, visited map[string]bool) (string, error) {
	var resolved string
	if filepath.IsAbs(includePath) {
		resolved = includePath
	} else {
		if source == "" {
			return "", errors.MissingSourceForRelativeInclude(includePath)
		}
		resolved = vfs.ResolveRelative(source, includePath)
	}

	file := ec.FS.GetFile(resolved)
	if !file.Exists() {
		ec.Logger().Warn("Include target not found, substituting empty content",
			slog.String("path", resolved))
		return "", nil
	}

	text, err := file.ReadAllText()
	if err != nil {
		return "", errors.ContentUnavailable(err, resolved)
	}

	if !m.recursion {
		return text, nil
	}
	if visited[resolved] {
		ec.Logger().Warn("Include cycle detected, substituting empty content",
			slog.String("path", resolved))
		return "", nil
	}
	visited[resolved] = true
	expanded, _, err := m.expand(ec, text, resolved, visited)
	delete(visited, resolved)
	if err != nil {
		return "", err
	}
	return expanded, nil
}
