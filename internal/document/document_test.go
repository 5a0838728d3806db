package document

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"git.home.luguber.info/inful/contentmill/internal/errors"
	"git.home.luguber.info/inful/contentmill/internal/vfs"
)

func TestNew_Defaults(t *testing.T) {
	d := New()
	if d.HasSource() {
		t.Error("new document should have no source")
	}
	if d.Metadata().Len() != 0 {
		t.Error("new document should have empty metadata")
	}
	content, err := d.GetContentString()
	if err != nil {
		t.Fatalf("GetContentString failed: %v", err)
	}
	if content != "" {
		t.Errorf("null content should read empty, got %q", content)
	}
}

func TestClone_DoesNotMutateOriginal(t *testing.T) {
	orig := New(
		WithSource("/in/a.md"),
		WithMetadata("title", "Alpha"),
		WithContent(NewStringProvider("body")),
	)

	clone := orig.Clone(
		WithMetadata("title", "Beta"),
		WithMetadata("extra", 42),
		WithContent(NewStringProvider("changed")),
	)

	if got := orig.Metadata().GetString("title"); got != "Alpha" {
		t.Errorf("original metadata mutated: %q", got)
	}
	if _, ok := orig.Metadata().Get("extra"); ok {
		t.Error("original gained a key from clone overrides")
	}
	if got, _ := orig.GetContentString(); got != "body" {
		t.Errorf("original content mutated: %q", got)
	}

	if got := clone.Metadata().GetString("title"); got != "Beta" {
		t.Errorf("clone override lost: %q", got)
	}
	if clone.Metadata().GetInt("extra") != 42 {
		t.Error("clone missing new key")
	}
	if clone.Source() != "/in/a.md" {
		t.Error("clone should inherit source")
	}
	if clone.ID() == orig.ID() {
		t.Error("clone must get a fresh identity")
	}
}

func TestClone_SharesProviderWhenContentUnchanged(t *testing.T) {
	orig := New(WithContent(NewStringProvider("same")))
	clone := orig.Clone(WithMetadata("k", "v"))

	if clone.ContentProvider() != orig.ContentProvider() {
		t.Error("clone with unchanged content should share the provider")
	}
}

func TestMetadata_OrderPreserved(t *testing.T) {
	m := NewMetadataFromPairs(
		Pair{Key: "b", Value: 1},
		Pair{Key: "a", Value: 2},
		Pair{Key: "c", Value: 3},
	)
	m = m.With("a", 9) // replace keeps position

	keys := m.Keys()
	if len(keys) != 3 || keys[0] != "b" || keys[1] != "a" || keys[2] != "c" {
		t.Errorf("unexpected key order: %v", keys)
	}
	if v, _ := m.Get("a"); v != 9 {
		t.Errorf("replaced value lost: %v", v)
	}
}

func TestContentStream_IndependentReads(t *testing.T) {
	d := New(WithContent(NewStringProvider("stream me")))

	r1, err := d.GetContentStream()
	if err != nil {
		t.Fatalf("first stream failed: %v", err)
	}
	r2, err := d.GetContentStream()
	if err != nil {
		t.Fatalf("second stream failed: %v", err)
	}
	defer r1.Close()
	defer r2.Close()

	b1, _ := io.ReadAll(r1)
	b2, _ := io.ReadAll(r2)
	if string(b1) != "stream me" || string(b2) != "stream me" {
		t.Errorf("streams not independent and rewound: %q / %q", b1, b2)
	}
}

func TestFileProvider_ContentUnavailableAfterRemoval(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gone.txt")
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatalf("setup failed: %v", err)
	}

	d := New(WithContent(NewFileProvider(vfs.OS().GetFile(path))))
	if _, err := d.GetContentString(); err != nil {
		t.Fatalf("initial read failed: %v", err)
	}

	if err := os.Remove(path); err != nil {
		t.Fatalf("remove failed: %v", err)
	}
	_, err := d.GetContentString()
	if err == nil {
		t.Fatal("expected error after file removal")
	}
	if !errors.IsCategory(err, errors.CategoryContent) {
		t.Errorf("expected content category, got %v", err)
	}
}

func TestGetCacheFingerprint_Properties(t *testing.T) {
	base := func() *Document {
		return New(
			WithMetadata("a", "1"),
			WithMetadata("b", 2),
			WithContent(NewStringProvider("content")),
		)
	}

	fp1, err := base().GetCacheFingerprint()
	if err != nil {
		t.Fatalf("fingerprint failed: %v", err)
	}
	fp2, err := base().GetCacheFingerprint()
	if err != nil {
		t.Fatalf("fingerprint failed: %v", err)
	}
	if fp1 != fp2 {
		t.Error("identical content+metadata must fingerprint equal")
	}

	// Metadata order must not matter.
	reordered := New(
		WithMetadata("b", 2),
		WithMetadata("a", "1"),
		WithContent(NewStringProvider("content")),
	)
	fpR, _ := reordered.GetCacheFingerprint()
	if fpR != fp1 {
		t.Error("metadata order changed the fingerprint")
	}

	// A single metadata value change perturbs the fingerprint.
	changedMeta := base().Clone(WithMetadata("b", 3))
	fpM, _ := changedMeta.GetCacheFingerprint()
	if fpM == fp1 {
		t.Error("metadata change did not perturb the fingerprint")
	}

	// A single content byte change perturbs the fingerprint.
	changedContent := base().Clone(WithContent(NewStringProvider("contenu")))
	fpC, _ := changedContent.GetCacheFingerprint()
	if fpC == fp1 {
		t.Error("content change did not perturb the fingerprint")
	}
}

func TestIsNullContent(t *testing.T) {
	if !IsNullContent(NullProvider) {
		t.Error("NullProvider should report null content")
	}
	if IsNullContent(NewStringProvider("")) {
		t.Error("empty string provider is not the null sentinel")
	}
}
