// Package source enumerates documents to index from a directory tree or
// a zip archive, and downloads archives over HTTP.
package source

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zip"
)

// DefaultExtensions are the file types indexed when none are configured.
var DefaultExtensions = []string{".md", ".mdx"}

// Document is one file's name and raw bytes. Content is not validated;
// the index builder rejects bytes that are not text.
type Document struct {
	Filename string
	Content  []byte
}

// Source produces documents. Each stops at the first error returned by fn.
type Source interface {
	Each(ctx context.Context, fn func(Document) error) error
}

type matcher []string

func newMatcher(exts []string) matcher {
	if len(exts) == 0 {
		exts = DefaultExtensions
	}
	m := make(matcher, len(exts))
	for i, e := range exts {
		e = strings.ToLower(e)
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		m[i] = e
	}
	return m
}

func (m matcher) match(name string) bool {
	ext := strings.ToLower(path.Ext(name))
	for _, e := range m {
		if ext == e {
			return true
		}
	}
	return false
}

// DirSource walks a directory tree. Filenames are slash-separated paths
// relative to Root.
type DirSource struct {
	Root       string
	Extensions []string
}

func (s DirSource) Each(ctx context.Context, fn func(Document) error) error {
	m := newMatcher(s.Extensions)
	return filepath.WalkDir(s.Root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() || !m.match(d.Name()) {
			return nil
		}
		content, err := os.ReadFile(p)
		if err != nil {
			return fmt.Errorf("reading %s: %w", p, err)
		}
		rel, err := filepath.Rel(s.Root, p)
		if err != nil {
			return err
		}
		return fn(Document{Filename: filepath.ToSlash(rel), Content: content})
	})
}

// ZipSource reads a zip archive such as a repository snapshot. The first
// path component, the archive's root folder, is stripped from names.
type ZipSource struct {
	Path       string
	Extensions []string
}

func (s ZipSource) Each(ctx context.Context, fn func(Document) error) error {
	zr, err := zip.OpenReader(s.Path)
	if err != nil {
		return fmt.Errorf("opening archive %s: %w", s.Path, err)
	}
	defer zr.Close()

	m := newMatcher(s.Extensions)
	for _, f := range zr.File {
		if err := ctx.Err(); err != nil {
			return err
		}
		if f.FileInfo().IsDir() || !m.match(f.Name) {
			continue
		}
		content, err := readZipFile(f)
		if err != nil {
			return fmt.Errorf("reading %s from archive: %w", f.Name, err)
		}
		if err := fn(Document{Filename: StripRoot(f.Name), Content: content}); err != nil {
			return err
		}
	}
	return nil
}

func readZipFile(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// StripRoot removes the first component of a slash-separated archive path.
// A name without a directory is returned unchanged.
func StripRoot(name string) string {
	name = strings.TrimPrefix(name, "/")
	if i := strings.IndexByte(name, '/'); i >= 0 && i < len(name)-1 {
		return name[i+1:]
	}
	return name
}
