// Package core provides the standard input/output and metadata modules used
// to assemble content pipelines.
package core

import (
	"context"
	"log/slog"
	"path/filepath"

	"git.home.luguber.info/inful/contentmill/internal/document"
	"git.home.luguber.info/inful/contentmill/internal/execution"
)

// ReadFiles creates one document per file matching a glob pattern.
// Whole-batch strategy: it ignores its inputs and creates documents from
// nothing; prior inputs are not re-emitted.
type ReadFiles struct {
	baseDir string
	pattern execution.Value[string]
}

// NewReadFiles creates a read module globbing pattern relative to baseDir.
func NewReadFiles(baseDir string, pattern execution.Value[string]) *ReadFiles {
	return &ReadFiles{baseDir: baseDir, pattern: pattern}
}

func (m *ReadFiles) Name() string { return "ReadFiles" }

func (m *ReadFiles) Execute(ctx context.Context, _ []*document.Document, ec *execution.Context) ([]*document.Document, error) {
	// The pattern is never document-dependent for a creation module, so it
	// resolves once for the whole batch.
	pattern, err := m.pattern.Resolve(nil, ec)
	if err != nil {
		return nil, err
	}

	matches, err := ec.FS.Glob(filepath.Join(m.baseDir, pattern))
	if err != nil {
		return nil, err
	}

	docs := make([]*document.Document, 0, len(matches))
	for _, path := range matches {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rel, err := filepath.Rel(m.baseDir, path)
		if err != nil {
			rel = filepath.Base(path)
		}
		docs = append(docs, ec.NewDocument(
			document.WithSource(path),
			document.WithDestination(rel),
			document.WithContent(ec.GetFileProvider(path)),
		))
	}

	ec.Logger().Debug("Read input files",
		slog.String("pattern", pattern),
		slog.Int("documents", len(docs)))
	return docs, nil
}
