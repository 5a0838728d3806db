package document

import (
	"io"

	"github.com/google/uuid"
)

// Document is the immutable unit of content + metadata flowing through a
// pipeline. Any "change" produces a new Document; unaffected metadata
// entries are shared by reference and the content provider is reused unless
// content changed.
type Document struct {
	id          string
	source      string // origin path; "" means synthetically created
	destination string
	metadata    *Metadata
	provider    ContentProvider
}

// Option configures a new or cloned document.
type Option func(*Document)

// WithSource sets the origin path. An empty source means "no originating
// file".
func WithSource(source string) Option {
	return func(d *Document) { d.source = source }
}

// WithDestination sets the output path.
func WithDestination(destination string) Option {
	return func(d *Document) { d.destination = destination }
}

// WithMetadata sets a single metadata entry.
func WithMetadata(key string, value any) Option {
	return func(d *Document) { d.metadata = d.metadata.With(key, value) }
}

// WithMetadataPairs applies ordered metadata entries.
func WithMetadataPairs(pairs ...Pair) Option {
	return func(d *Document) {
		for _, p := range pairs {
			d.metadata = d.metadata.With(p.Key, p.Value)
		}
	}
}

// WithContent installs a new content provider.
func WithContent(provider ContentProvider) Option {
	return func(d *Document) {
		if provider == nil {
			provider = NullProvider
		}
		d.provider = provider
	}
}

// New creates a document. Without options it has no source, no destination,
// empty metadata and null content.
func New(opts ...Option) *Document {
	d := &Document{
		id:       uuid.NewString(),
		metadata: NewMetadata(),
		provider: NullProvider,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Clone returns a new Document derived from the receiver with the given
// overrides applied. The receiver is never mutated. The clone gets a fresh
// identity.
func (d *Document) Clone(opts ...Option) *Document {
	clone := &Document{
		id:          uuid.NewString(),
		source:      d.source,
		destination: d.destination,
		metadata:    d.metadata,
		provider:    d.provider,
	}
	for _, opt := range opts {
		opt(clone)
	}
	return clone
}

// ID returns the unique identity of this document instance.
func (d *Document) ID() string { return d.id }

// Source returns the origin path, or "" for synthetically created documents.
func (d *Document) Source() string { return d.source }

// HasSource reports whether the document has an originating file.
func (d *Document) HasSource() bool { return d.source != "" }

// Destination returns the output path.
func (d *Document) Destination() string { return d.destination }

// Metadata returns the document's metadata set.
func (d *Document) Metadata() *Metadata { return d.metadata }

// ContentProvider returns the provider owning this document's content.
func (d *Document) ContentProvider() ContentProvider { return d.provider }

// GetContentStream returns a fresh, independent reader over the content.
func (d *Document) GetContentStream() (io.ReadCloser, error) {
	return d.provider.Open()
}

// GetContentBytes reads the entire content.
func (d *Document) GetContentBytes() ([]byte, error) {
	r, err := d.provider.Open()
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

// GetContentString reads the entire content as a string.
func (d *Document) GetContentString() (string, error) {
	data, err := d.GetContentBytes()
	if err != nil {
		return "", err
	}
	return string(data), nil
}
