// Package tracefs logs the files opened through a file system.
package tracefs

import (
	"io/fs"

	"github.com/freezeyt/freezeyt/internal/logging"
)

type TraceFS struct {
	fsys fs.FS
	log  *logging.Logger
}

// New wraps fsys, logging every Open at debug level. With a nil logger
// fsys is returned as is.
func New(fsys fs.FS, log *logging.Logger) fs.FS {
	if log == nil {
		return fsys
	}
	return &TraceFS{fsys: fsys, log: log}
}

func (t *TraceFS) Open(p string) (fs.File, error) {
	f, err := t.fsys.Open(p)
	if err != nil {
		t.log.Debugf("open %s: %v", p, err)
		return f, err
	}

	fi, err := f.Stat()
	switch {
	case err != nil:
		t.log.Debugf("open %s: stat: %v", p, err)
	case fi.IsDir():
		t.log.Debugf("open %s: dir", p)
	default:
		t.log.Debugf("open %s: size=%d", p, fi.Size())
	}

	return f, nil
}
