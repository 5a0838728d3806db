package core

import (
	"context"
	"log/slog"
	"path/filepath"

	"golang.org/x/text/unicode/norm"

	"git.home.luguber.info/inful/contentmill/internal/document"
	"git.home.luguber.info/inful/contentmill/internal/errors"
	"git.home.luguber.info/inful/contentmill/internal/execution"
)

// WriteFiles writes each document's content to its destination under an
// output root. Per-document strategy. Documents pass through unchanged so
// later phases still see them.
type WriteFiles struct {
	outputDir string
}

// NewWriteFiles creates a write module rooted at outputDir.
func NewWriteFiles(outputDir string) *WriteFiles {
	return &WriteFiles{outputDir: outputDir}
}

func (m *WriteFiles) Name() string { return "WriteFiles" }

func (m *WriteFiles) ExecuteDocument(ctx context.Context, doc *document.Document, ec *execution.Context) ([]*document.Document, error) {
	dest := doc.Destination()
	if dest == "" {
		ec.Logger().Warn("Document has no destination, skipping write",
			slog.String("document", doc.ID()))
		return []*document.Document{doc}, nil
	}

	data, err := doc.GetContentBytes()
	if err != nil {
		return nil, err
	}

	// Destinations are NFC-normalized so equivalent Unicode spellings map
	// to one output path.
	target := filepath.Join(m.outputDir, norm.NFC.String(dest))
	if err := ec.FS.WriteFile(target, data); err != nil {
		return nil, errors.Wrap(err, errors.CategoryContent, errors.SeverityError,
			"writing output file").WithContext("path", target)
	}

	ec.Logger().Debug("Wrote output file", slog.String("path", target))
	return []*document.Document{doc}, nil
}
