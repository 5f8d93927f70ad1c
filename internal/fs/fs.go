// Package fs holds helpers shared by the fs.FS implementations of freezeyt.
package fs

import (
	"errors"
	"io"
	"io/fs"
	"iter"
	"os"
	"slices"
	"strings"
	"testing/fstest"
	"time"
)

// ContainsFiles returns true if the given fs.FS contains any files, and false otherwise.
func ContainsFiles(fsys fs.FS) (bool, error) {
	// errFound is a sentinel error used to stop the walk when a file is found.
	errFound := os.ErrExist

	err := fs.WalkDir(fsys, ".", func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			// Found a file, so return a special error to stop the walk.
			return errFound
		}
		return nil
	})
	if err == errFound {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}

	return false, err
}

// MapFS builds an in-memory file system from file names to contents.
func MapFS(m map[string]string) fs.FS {
	m0 := make(fstest.MapFS, len(m))
	for p, f := range m {
		m0[p] = &fstest.MapFile{Data: []byte(f)}
	}
	return m0
}

// Children returns the sorted, distinct names directly below dir ("." for
// the root) among the given slash-separated paths.
func Children(dir string, paths iter.Seq[string]) []string {
	prefix := dir + "/"
	if dir == "." {
		prefix = ""
	}

	seen := make(map[string]struct{})
	for p := range paths {
		if !strings.HasPrefix(p, prefix) || p == dir {
			continue
		}
		elem, _, _ := strings.Cut(p[len(prefix):], "/")
		if elem != "" {
			seen[elem] = struct{}{}
		}
	}

	names := make([]string, 0, len(seen))
	for n := range seen {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// DirInfo implements fs.FileInfo and fs.DirEntry for a synthesized
// directory.
type DirInfo string

func (d DirInfo) Name() string               { return string(d) }
func (DirInfo) Size() int64                  { return 0 }
func (DirInfo) Mode() fs.FileMode            { return fs.ModeDir | 0o555 }
func (DirInfo) Type() fs.FileMode            { return fs.ModeDir }
func (DirInfo) ModTime() time.Time           { return time.Time{} }
func (DirInfo) IsDir() bool                  { return true }
func (DirInfo) Sys() any                     { return nil }
func (d DirInfo) Info() (fs.FileInfo, error) { return d, nil }
func (d DirInfo) String() string             { return fs.FormatFileInfo(d) }

// Dir is a synthesized directory open for reading.
type Dir struct {
	path    string
	entries []fs.DirEntry
	offset  int
}

// NewDir returns an open directory at path listing entries in order.
func NewDir(path string, entries []fs.DirEntry) *Dir {
	return &Dir{path: path, entries: entries}
}

func (d *Dir) Stat() (fs.FileInfo, error) {
	name := d.path
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	return DirInfo(name), nil
}

func (*Dir) Close() error { return nil }

func (d *Dir) Read([]byte) (int, error) {
	return 0, &fs.PathError{Op: "read", Path: d.path, Err: fs.ErrInvalid}
}

func (d *Dir) ReadDir(count int) ([]fs.DirEntry, error) {
	n := len(d.entries) - d.offset
	if n == 0 && count > 0 {
		return nil, io.EOF
	}
	if count > 0 && n > count {
		n = count
	}
	list := d.entries[d.offset : d.offset+n]
	d.offset += n
	return list, nil
}
