package source

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sort"
	"sync/atomic"
	"testing"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/errors"
)

func collect(t *testing.T, s Source) map[string]string {
	t.Helper()
	docs := make(map[string]string)
	require.NoError(t, s.Each(context.Background(), func(d Document) error {
		docs[d.Filename] = string(d.Content)
		return nil
	}))
	return docs
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func TestDirSource(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "README.md"), "top")
	writeFile(t, filepath.Join(root, "docs", "guide.mdx"), "guide")
	writeFile(t, filepath.Join(root, "docs", "UPPER.MD"), "upper")
	writeFile(t, filepath.Join(root, "main.go"), "package main")

	docs := collect(t, DirSource{Root: root})
	assert.Equal(t, map[string]string{
		"README.md":      "top",
		"docs/guide.mdx": "guide",
		"docs/UPPER.MD":  "upper",
	}, docs)

	goOnly := collect(t, DirSource{Root: root, Extensions: []string{"go"}})
	assert.Equal(t, map[string]string{"main.go": "package main"}, goOnly)
}

func makeZip(t *testing.T, files map[string]string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "repo.zip")
	f, err := os.Create(path)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(files[name]))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())
	return path
}

func TestZipSourceStripsRootFolder(t *testing.T) {
	path := makeZip(t, map[string]string{
		"project-main/":                  "",
		"project-main/README.md":         "readme",
		"project-main/docs/setup.mdx":    "setup",
		"project-main/src/code.py":       "print()",
		"project-main/docs/bad.md":       "\xff\xfe",
		"project-main/docs/images/a.png": "png",
	})
	docs := collect(t, ZipSource{Path: path})
	assert.Equal(t, map[string]string{
		"README.md":      "readme",
		"docs/setup.mdx": "setup",
		"docs/bad.md":    "\xff\xfe",
	}, docs)
}

func TestZipSourceMissingArchive(t *testing.T) {
	err := ZipSource{Path: filepath.Join(t.TempDir(), "absent.zip")}.Each(context.Background(), func(Document) error { return nil })
	assert.Error(t, err)
}

func TestStripRoot(t *testing.T) {
	assert.Equal(t, "docs/a.md", StripRoot("repo-main/docs/a.md"))
	assert.Equal(t, "a.md", StripRoot("repo/a.md"))
	assert.Equal(t, "a.md", StripRoot("a.md"))
	assert.Equal(t, "a.md", StripRoot("/repo/a.md"))
}

func TestEachStopsOnCallbackError(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.md"), "a")
	writeFile(t, filepath.Join(root, "b.md"), "b")

	calls := 0
	err := DirSource{Root: root}.Each(context.Background(), func(Document) error {
		calls++
		return assert.AnError
	})
	assert.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, 1, calls)
}

func TestFetchDownloadsOnce(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			http.Error(w, "try later", http.StatusBadGateway)
			return
		}
		w.Write([]byte("archive-bytes"))
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "dl", "repo.zip")
	downloaded, err := Fetch(context.Background(), srv.Client(), srv.URL, dest)
	require.NoError(t, err)
	assert.True(t, downloaded)
	assert.Equal(t, int32(2), hits.Load(), "server error is retried")

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "archive-bytes", string(data))

	downloaded, err = Fetch(context.Background(), srv.Client(), srv.URL, dest)
	require.NoError(t, err)
	assert.False(t, downloaded)
	assert.Equal(t, int32(2), hits.Load())
}

func TestFetchDoesNotRetryClientErrors(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.NotFound(w, r)
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "repo.zip")
	_, err := Fetch(context.Background(), srv.Client(), srv.URL, dest)
	require.Error(t, err)
	assert.Equal(t, int32(1), hits.Load())
	_, statErr := os.Stat(dest)
	assert.True(t, os.IsNotExist(statErr))
}

type fakeIndexer struct {
	docs map[string]string
	fail error
}

func (f *fakeIndexer) IndexDocument(_ context.Context, filename, content string) error {
	if f.fail != nil {
		return f.fail
	}
	if content == "\xff\xfe" {
		return &apperrors.DecodeError{Filename: filename}
	}
	f.docs[filename] = content
	return nil
}

func TestIngestSkipsUndecodable(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "good.md"), "fine")
	writeFile(t, filepath.Join(root, "bad.md"), "\xff\xfe")

	idx := &fakeIndexer{docs: map[string]string{}}
	report, err := Ingest(context.Background(), DirSource{Root: root}, idx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Indexed)
	assert.Equal(t, []string{"bad.md"}, report.Skipped)
	assert.Equal(t, map[string]string{"good.md": "fine"}, idx.docs)
}

func TestIngestStopsOnOtherErrors(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.md"), "a")
	_, err := Ingest(context.Background(), DirSource{Root: root}, &fakeIndexer{fail: assert.AnError})
	assert.ErrorIs(t, err, assert.AnError)
}
