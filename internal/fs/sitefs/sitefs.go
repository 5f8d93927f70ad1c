// Package sitefs serves expanded extra files as an fs.FS, laid out the way
// they are frozen.
package sitefs

import (
	"bytes"
	"io/fs"
	"iter"
	"maps"
	"os"
	"path"
	"time"

	"github.com/freezeyt/freezeyt/internal/extrafiles"
	freezeyt_fs "github.com/freezeyt/freezeyt/internal/fs"
)

type entry struct {
	content []byte
	path    string
}

// FS maps file names to the directive that produced them. Content is held
// in memory, files copied from disk are opened when they are read.
type FS struct {
	files map[string]entry
}

var _ fs.FS = (*FS)(nil)

// New pulls the whole sequence. A later directive for the same name
// replaces an earlier one.
func New(seq iter.Seq2[extrafiles.Directive, error]) (*FS, error) {
	fsys := &FS{files: make(map[string]entry)}
	for d, err := range seq {
		if err != nil {
			return nil, err
		}
		switch d.Kind {
		case extrafiles.KindContent:
			fsys.files[d.Name()] = entry{content: d.Content}
		case extrafiles.KindPath:
			fsys.files[d.Name()] = entry{path: d.Path}
		}
	}
	return fsys, nil
}

// Len returns the number of files.
func (fsys *FS) Len() int {
	return len(fsys.files)
}

func (fsys *FS) Open(name string) (fs.File, error) {
	if !fs.ValidPath(name) {
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrInvalid}
	}

	if e, ok := fsys.files[name]; ok {
		if e.path != "" {
			f, err := os.Open(e.path)
			if err != nil {
				return nil, err
			}
			return f, nil
		}
		return &memFile{Reader: bytes.NewReader(e.content), info: fileInfo{name: path.Base(name), size: int64(len(e.content))}}, nil
	}

	names := freezeyt_fs.Children(name, maps.Keys(fsys.files))
	if len(names) == 0 && name != "." {
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrNotExist}
	}

	entries := make([]fs.DirEntry, len(names))
	for i, n := range names {
		child := n
		if name != "." {
			child = name + "/" + n
		}
		if e, ok := fsys.files[child]; ok && e.path == "" {
			entries[i] = fs.FileInfoToDirEntry(fileInfo{name: n, size: int64(len(e.content))})
			continue
		}
		if e, ok := fsys.files[child]; ok {
			fi, err := os.Stat(e.path)
			if err != nil {
				return nil, &fs.PathError{Op: "open", Path: child, Err: err}
			}
			entries[i] = fs.FileInfoToDirEntry(renamed{FileInfo: fi, name: n})
			continue
		}
		entries[i] = freezeyt_fs.DirInfo(n)
	}
	return freezeyt_fs.NewDir(name, entries), nil
}

type memFile struct {
	*bytes.Reader
	info fileInfo
}

func (f *memFile) Stat() (fs.FileInfo, error) { return f.info, nil }
func (*memFile) Close() error                 { return nil }

type fileInfo struct {
	name string
	size int64
}

func (fi fileInfo) Name() string     { return fi.name }
func (fi fileInfo) Size() int64      { return fi.size }
func (fileInfo) Mode() fs.FileMode   { return 0o444 }
func (fileInfo) ModTime() time.Time  { return time.Time{} }
func (fileInfo) IsDir() bool         { return false }
func (fileInfo) Sys() any            { return nil }

// renamed reports a file copied from disk under its frozen name.
type renamed struct {
	fs.FileInfo
	name string
}

func (r renamed) Name() string { return r.name }
