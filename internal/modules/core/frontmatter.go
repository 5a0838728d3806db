package core

import (
	"context"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"git.home.luguber.info/inful/contentmill/internal/document"
	"git.home.luguber.info/inful/contentmill/internal/errors"
	"git.home.luguber.info/inful/contentmill/internal/execution"
)

const frontMatterDelimiter = "---"

// FrontMatter splits a leading `---` delimited YAML block from document
// content into metadata entries. Per-document strategy; cacheable.
type FrontMatter struct{}

// NewFrontMatter creates a front matter module.
func NewFrontMatter() *FrontMatter { return &FrontMatter{} }

func (m *FrontMatter) Name() string { return "FrontMatter" }

func (m *FrontMatter) Cacheable() bool { return true }

func (m *FrontMatter) ExecuteDocument(ctx context.Context, doc *document.Document, ec *execution.Context) ([]*document.Document, error) {
	content, err := doc.GetContentString()
	if err != nil {
		return nil, err
	}

	fields, body, had, err := splitFrontMatter(content)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryContent, errors.SeverityError,
			"parsing front matter").WithContext("document", doc.Source())
	}
	if !had {
		return []*document.Document{doc}, nil
	}

	// Map iteration order is random; sort keys so metadata order (and the
	// cache fingerprint input) stays deterministic.
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	opts := make([]document.Option, 0, len(keys)+1)
	for _, k := range keys {
		opts = append(opts, document.WithMetadata(k, fields[k]))
	}
	opts = append(opts, document.WithContent(document.NewStringProvider(body)))

	return []*document.Document{doc.Clone(opts...)}, nil
}

// splitFrontMatter separates a leading YAML front matter block from the
// body. had is false when the content does not start with a delimiter line.
func splitFrontMatter(content string) (fields map[string]any, body string, had bool, err error) {
	if !strings.HasPrefix(content, frontMatterDelimiter+"\n") &&
		!strings.HasPrefix(content, frontMatterDelimiter+"\r\n") {
		return nil, content, false, nil
	}

	rest := content[strings.Index(content, "\n")+1:]
	var block string
	for line := range strings.Lines(rest) {
		trimmed := strings.TrimRight(line, "\r\n")
		if trimmed == frontMatterDelimiter {
			body = rest[len(block)+len(line):]
			if err := yaml.Unmarshal([]byte(block), &fields); err != nil {
				return nil, "", false, err
			}
			return fields, body, true, nil
		}
		block += line
	}

	// Opening delimiter without a closing one: treat the whole content as
	// body rather than guessing where the block ends.
	return nil, content, false, nil
}
