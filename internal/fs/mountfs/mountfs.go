// Package mountfs composes file systems by mounting them under prefixes.
package mountfs

import (
	"io/fs"
	"maps"
	"path/filepath"
	"strings"

	freezeyt_fs "github.com/freezeyt/freezeyt/internal/fs"
)

// A MountFS serves each mounted fs.FS under its prefix. Parent directories
// of the prefixes are synthesized. When prefixes nest, the longest one
// serves the files below it.
//
// The map must not change while the file system is in use.
type MountFS map[string]fs.FS

func New(m map[string]fs.FS) MountFS {
	return m
}

var _ fs.FS = MountFS(nil)

func (fsys MountFS) Open(name string) (fs.File, error) {
	if !fs.ValidPath(name) {
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrNotExist}
	}
	name = filepath.ToSlash(name)

	if sub, ok := fsys[name]; ok {
		return sub.Open(".")
	}

	mount := ""
	for prefix := range fsys {
		if strings.HasPrefix(name, prefix+"/") && len(prefix) > len(mount) {
			mount = prefix
		}
	}
	if mount != "" {
		return fsys[mount].Open(name[len(mount)+1:])
	}

	names := freezeyt_fs.Children(name, maps.Keys(fsys))
	if len(names) == 0 && name != "." {
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrNotExist}
	}

	entries := make([]fs.DirEntry, len(names))
	for i, n := range names {
		entries[i] = freezeyt_fs.DirInfo(n)
	}
	return freezeyt_fs.NewDir(name, entries), nil
}
