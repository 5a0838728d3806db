package core

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/contentmill/internal/document"
	"git.home.luguber.info/inful/contentmill/internal/execution"
	"git.home.luguber.info/inful/contentmill/internal/vfs"
)

func memContext(fs *vfs.MemoryFS) *execution.Context {
	return execution.NewContext("test", "input", nil, fs, nil)
}

func TestReadFiles_CreatesOneDocumentPerMatch(t *testing.T) {
	fs := vfs.NewMemoryFS()
	fs.AddString("/content/a.md", "alpha")
	fs.AddString("/content/b.md", "beta")
	fs.AddString("/content/notes.txt", "ignored")

	m := NewReadFiles("/content", execution.Constant("*.md"))
	out, err := m.Execute(context.Background(), nil, memContext(fs))
	require.NoError(t, err)
	require.Len(t, out, 2)

	assert.Equal(t, "/content/a.md", out[0].Source())
	assert.Equal(t, "a.md", out[0].Destination())
	content, err := out[0].GetContentString()
	require.NoError(t, err)
	assert.Equal(t, "alpha", content)
}

func TestReadFiles_IgnoresInputs(t *testing.T) {
	fs := vfs.NewMemoryFS()
	prior := document.New(document.WithSource("/elsewhere/x.md"))

	m := NewReadFiles("/content", execution.Constant("*.md"))
	out, err := m.Execute(context.Background(), []*document.Document{prior}, memContext(fs))
	require.NoError(t, err)
	assert.Empty(t, out, "creation module does not re-emit prior inputs")
}

func TestWriteFiles_WritesUnderOutputRoot(t *testing.T) {
	fs := vfs.NewMemoryFS()
	doc := document.New(
		document.WithDestination("posts/a.html"),
		document.WithContent(document.NewStringProvider("<p>hi</p>")),
	)

	m := NewWriteFiles("/out")
	out, err := m.ExecuteDocument(context.Background(), doc, memContext(fs))
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Same(t, doc, out[0], "documents pass through unchanged")

	written, err := fs.GetFile("/out/posts/a.html").ReadAllText()
	require.NoError(t, err)
	assert.Equal(t, "<p>hi</p>", written)
}

func TestWriteFiles_SkipsDocumentsWithoutDestination(t *testing.T) {
	fs := vfs.NewMemoryFS()
	doc := document.New(document.WithContent(document.NewStringProvider("x")))

	m := NewWriteFiles("/out")
	out, err := m.ExecuteDocument(context.Background(), doc, memContext(fs))
	require.NoError(t, err)
	assert.Same(t, doc, out[0])

	matches, err := fs.Glob("/out/*")
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestFrontMatter_ExtractsBlock(t *testing.T) {
	doc := document.New(document.WithContent(document.NewStringProvider(
		"---\ntitle: Hello\ndraft: true\n---\nbody text\n")))

	m := NewFrontMatter()
	out, err := m.ExecuteDocument(context.Background(), doc, memContext(vfs.NewMemoryFS()))
	require.NoError(t, err)
	require.Len(t, out, 1)

	got := out[0]
	assert.Equal(t, "Hello", got.Metadata().GetString("title"))
	draft, ok := got.Metadata().Get("draft")
	require.True(t, ok)
	assert.Equal(t, true, draft)

	body, err := got.GetContentString()
	require.NoError(t, err)
	assert.Equal(t, "body text\n", body)
}

func TestFrontMatter_NoBlockPassesThrough(t *testing.T) {
	doc := document.New(document.WithContent(document.NewStringProvider("plain body")))

	m := NewFrontMatter()
	out, err := m.ExecuteDocument(context.Background(), doc, memContext(vfs.NewMemoryFS()))
	require.NoError(t, err)
	assert.Same(t, doc, out[0])
}

func TestFrontMatter_UnclosedBlockKeepsContent(t *testing.T) {
	content := "---\ntitle: Broken\nno closing delimiter"
	doc := document.New(document.WithContent(document.NewStringProvider(content)))

	m := NewFrontMatter()
	out, err := m.ExecuteDocument(context.Background(), doc, memContext(vfs.NewMemoryFS()))
	require.NoError(t, err)

	body, err := out[0].GetContentString()
	require.NoError(t, err)
	assert.Equal(t, content, body)
	assert.Equal(t, 0, out[0].Metadata().Len())
}

func TestFrontMatter_InvalidYAMLFails(t *testing.T) {
	doc := document.New(
		document.WithSource("/content/bad.md"),
		document.WithContent(document.NewStringProvider("---\n: : :\n---\nbody")),
	)

	m := NewFrontMatter()
	_, err := m.ExecuteDocument(context.Background(), doc, memContext(vfs.NewMemoryFS()))
	require.Error(t, err)
}

func TestSetMetadata_DocumentDependentResolvesPerDocument(t *testing.T) {
	value := execution.FromDocument(func(doc *document.Document, _ *execution.Context) (any, error) {
		return "slug-" + doc.Metadata().GetString("title"), nil
	})
	m := NewSetMetadata("slug", value)
	ec := memContext(vfs.NewMemoryFS())

	a := document.New(document.WithMetadata("title", "a"))
	b := document.New(document.WithMetadata("title", "b"))

	outA, err := m.ExecuteDocument(context.Background(), a, ec)
	require.NoError(t, err)
	outB, err := m.ExecuteDocument(context.Background(), b, ec)
	require.NoError(t, err)

	assert.Equal(t, "slug-a", outA[0].Metadata().GetString("slug"))
	assert.Equal(t, "slug-b", outB[0].Metadata().GetString("slug"))
}

func TestSetMetadata_ContextValueResolvesOncePerContext(t *testing.T) {
	calls := 0
	value := execution.FromContext(func(ec *execution.Context) (any, error) {
		calls++
		return ec.Settings.GetString("site_title", ""), nil
	})
	m := NewSetMetadata("site", value)

	first := execution.NewContext("test", "process",
		execution.Settings{"site_title": "Alpha"}, vfs.NewMemoryFS(), nil)
	for range 3 {
		out, err := m.ExecuteDocument(context.Background(), document.New(), first)
		require.NoError(t, err)
		assert.Equal(t, "Alpha", out[0].Metadata().GetString("site"))
	}
	assert.Equal(t, 1, calls)

	// A later context with different settings gets its own resolution, not
	// the first context's memo.
	second := execution.NewContext("test", "process",
		execution.Settings{"site_title": "Beta"}, vfs.NewMemoryFS(), nil)
	out, err := m.ExecuteDocument(context.Background(), document.New(), second)
	require.NoError(t, err)
	assert.Equal(t, "Beta", out[0].Metadata().GetString("site"))
	assert.Equal(t, 2, calls)
}
