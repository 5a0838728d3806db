// Package document implements the immutable document model flowing through
// pipelines: ordered metadata, re-readable content providers, and the
// content+metadata fingerprint used as the execution cache key.
package document

import (
	"bytes"
	"io"

	"git.home.luguber.info/inful/contentmill/internal/errors"
	"git.home.luguber.info/inful/contentmill/internal/vfs"
)

// ContentProvider is a re-readable abstraction over a document's byte
// content. Each call to Open returns an independent, fully-rewound stream.
// Providers are immutable and may be shared by multiple documents.
type ContentProvider interface {
	// Open returns a fresh reader over the content. Callers own the reader
	// and must close it.
	Open() (io.ReadCloser, error)
}

// NullProvider is the distinguished "no content" value. It is valid, not an
// error: opening it yields an empty stream.
var NullProvider ContentProvider = nullProvider{}

type nullProvider struct{}

func (nullProvider) Open() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(nil)), nil
}

// IsNullContent reports whether the provider is the distinguished
// no-content value.
func IsNullContent(p ContentProvider) bool {
	_, ok := p.(nullProvider)
	return p == nil || ok
}

type bytesProvider struct {
	data []byte
}

func (p bytesProvider) Open() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(p.data)), nil
}

// NewBytesProvider creates a provider over a byte slice. The slice is not
// copied; callers must not mutate it afterwards.
func NewBytesProvider(data []byte) ContentProvider {
	return bytesProvider{data: data}
}

// NewStringProvider creates a provider over string content.
func NewStringProvider(content string) ContentProvider {
	return bytesProvider{data: []byte(content)}
}

type fileProvider struct {
	file vfs.File
}

func (p fileProvider) Open() (io.ReadCloser, error) {
	r, err := p.file.Open()
	if err != nil {
		return nil, errors.ContentUnavailable(err, p.file.Path())
	}
	return r, nil
}

// NewFileProvider creates a provider backed by a file. The file is re-opened
// on every read; a file removed externally surfaces ContentUnavailable.
func NewFileProvider(file vfs.File) ContentProvider {
	return fileProvider{file: file}
}

type streamProvider struct {
	open func() (io.ReadCloser, error)
}

func (p streamProvider) Open() (io.ReadCloser, error) {
	return p.open()
}

// NewStreamProvider creates a provider from a stream factory. The factory
// must return an independent, rewound stream on every call.
func NewStreamProvider(open func() (io.ReadCloser, error)) ContentProvider {
	return streamProvider{open: open}
}
