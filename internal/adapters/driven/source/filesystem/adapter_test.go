package filesystem

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cairn-works/cairn/internal/core/domain"
	"github.com/cairn-works/cairn/internal/core/ports/driven"
)

// writeTree creates the given files (relative slash paths) under root.
func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
}

func paths(descs []domain.DocumentDescriptor) []string {
	out := make([]string, len(descs))
	for i, d := range descs {
		out[i] = d.Path
	}
	return out
}

func TestAdapter_Kind(t *testing.T) {
	assert.Equal(t, "filesystem", New(t.TempDir()).Kind())
}

func TestAdapter_List_RecursiveSortedRelative(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"guide.md":           "# Guide",
		"notes/runbook.md":   "# Runbook",
		"notes/deep/faq.md":  "# FAQ",
		"notes/deep/faq.txt": "faq",
	})

	docs, err := New(root).List(context.Background(), driven.ListRequest{Recursive: true})

	require.NoError(t, err)
	assert.Equal(t, []string{
		"guide.md",
		"notes/deep/faq.md",
		"notes/deep/faq.txt",
		"notes/runbook.md",
	}, paths(docs))
	for _, d := range docs {
		assert.False(t, d.Modified.IsZero(), "%s must carry a modified time", d.Path)
	}
}

func TestAdapter_List_NonRecursiveStaysAtTopLevel(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"top.md":          "top",
		"nested/inner.md": "inner",
	})

	docs, err := New(root).List(context.Background(), driven.ListRequest{Recursive: false})

	require.NoError(t, err)
	assert.Equal(t, []string{"top.md"}, paths(docs))
}

func TestAdapter_List_SkipsHiddenEntries(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"visible.md":       "ok",
		".hidden.md":       "no",
		".git/config":      "no",
		"dir/.secret/x.md": "no",
		"dir/shown.md":     "ok",
	})

	docs, err := New(root).List(context.Background(), driven.ListRequest{Recursive: true})

	require.NoError(t, err)
	assert.Equal(t, []string{"dir/shown.md", "visible.md"}, paths(docs))
}

func TestAdapter_List_SubPathKeepsRootRelativePaths(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"outside.md":     "no",
		"docs/inside.md": "yes",
	})

	docs, err := New(root).List(context.Background(),
		driven.ListRequest{Path: "docs", Recursive: true})

	require.NoError(t, err)
	assert.Equal(t, []string{"docs/inside.md"}, paths(docs),
		"descriptors stay relative to the adapter root so Fetch can resolve them")
}

func TestAdapter_List_IncludeExcludeFilters(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"a.md":        "a",
		"b.txt":       "b",
		"drafts/c.md": "c",
	})
	a := New(root)

	docs, err := a.List(context.Background(),
		driven.ListRequest{Recursive: true, Include: `\.md$`})
	require.NoError(t, err)
	assert.Equal(t, []string{"a.md", "drafts/c.md"}, paths(docs))

	docs, err = a.List(context.Background(),
		driven.ListRequest{Recursive: true, Include: `\.md$`, Exclude: `^drafts/`})
	require.NoError(t, err)
	assert.Equal(t, []string{"a.md"}, paths(docs))
}

func TestAdapter_List_BadPatternIsInvalidInput(t *testing.T) {
	_, err := New(t.TempDir()).List(context.Background(),
		driven.ListRequest{Include: `(`})

	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestAdapter_List_MissingRoot(t *testing.T) {
	_, err := New(filepath.Join(t.TempDir(), "gone")).List(context.Background(), driven.ListRequest{})

	assert.ErrorIs(t, err, domain.ErrSourceNotFound)
}

func TestAdapter_List_MissingSubPath(t *testing.T) {
	_, err := New(t.TempDir()).List(context.Background(), driven.ListRequest{Path: "absent"})

	assert.ErrorIs(t, err, domain.ErrSourceNotFound)
}

func TestAdapter_Fetch(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"docs/guide.md": "# Guide\nbody"})

	data, err := New(root).Fetch(context.Background(),
		domain.DocumentDescriptor{Path: "docs/guide.md"})

	require.NoError(t, err)
	assert.Equal(t, "# Guide\nbody", string(data))
}

func TestAdapter_Fetch_MissingFile(t *testing.T) {
	_, err := New(t.TempDir()).Fetch(context.Background(),
		domain.DocumentDescriptor{Path: "nope.md"})

	assert.ErrorIs(t, err, domain.ErrSourceNotFound)
}

func TestAdapter_Fetch_EscapeIsAccessDenied(t *testing.T) {
	root := t.TempDir()
	outside := filepath.Join(filepath.Dir(root), "outside.md")
	require.NoError(t, os.WriteFile(outside, []byte("secret"), 0o644))

	_, err := New(root).Fetch(context.Background(),
		domain.DocumentDescriptor{Path: "../outside.md"})

	assert.ErrorIs(t, err, domain.ErrSourceAccessDenied)
}

func TestAdapter_Fetch_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(t.TempDir()).Fetch(ctx, domain.DocumentDescriptor{Path: "x.md"})

	assert.ErrorIs(t, err, context.Canceled)
}
