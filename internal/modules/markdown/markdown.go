// Package markdown renders document content from Markdown to HTML.
package markdown

import (
	"bytes"
	"context"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"

	"git.home.luguber.info/inful/contentmill/internal/document"
	"git.home.luguber.info/inful/contentmill/internal/errors"
	"git.home.luguber.info/inful/contentmill/internal/execution"
)

// Module converts Markdown content to HTML and rewrites the destination
// extension to .html. Per-document strategy; cacheable.
type Module struct {
	md goldmark.Markdown
}

// Option configures the markdown module.
type Option func(*options)

type options struct {
	unsafeHTML bool
}

// WithUnsafeHTML passes raw HTML in the source through to the output
// instead of escaping it.
func WithUnsafeHTML() Option {
	return func(o *options) { o.unsafeHTML = true }
}

// New creates a markdown module with GFM extensions enabled.
func New(opts ...Option) *Module {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	rendererOpts := []goldmark.Option{
		goldmark.WithExtensions(extension.GFM),
	}
	if o.unsafeHTML {
		rendererOpts = append(rendererOpts, goldmark.WithRendererOptions(html.WithUnsafe()))
	}
	return &Module{md: goldmark.New(rendererOpts...)}
}

func (m *Module) Name() string { return "Markdown" }

func (m *Module) Cacheable() bool { return true }

func (m *Module) ExecuteDocument(ctx context.Context, doc *document.Document, ec *execution.Context) ([]*document.Document, error) {
	source, err := doc.GetContentBytes()
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := m.md.Convert(source, &buf); err != nil {
		return nil, errors.Wrap(err, errors.CategoryContent, errors.SeverityError,
			"rendering markdown").WithContext("document", doc.Source())
	}

	opts := []document.Option{
		document.WithContent(document.NewBytesProvider(buf.Bytes())),
	}
	if dest := doc.Destination(); dest != "" {
		opts = append(opts, document.WithDestination(htmlDestination(dest)))
	}
	return []*document.Document{doc.Clone(opts...)}, nil
}

// htmlDestination swaps the final extension for .html, appending it when the
// path has none.
func htmlDestination(dest string) string {
	if i := strings.LastIndexByte(dest, '.'); i > strings.LastIndexByte(dest, '/') {
		return dest[:i] + ".html"
	}
	return dest + ".html"
}
