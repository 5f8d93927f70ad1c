// Package extrafiles expands the extra_files section of a freezeyt
// configuration into the directives a freezer needs to place each file.
//
// Expansion is lazy: directives are produced as the sequence is pulled, and
// files found on disk are returned as paths to be read by the caller when it
// writes them, never loaded during expansion.
package extrafiles

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io/fs"
	"iter"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"github.com/freezeyt/freezeyt/internal/config"
	"github.com/freezeyt/freezeyt/internal/logging"
)

type Kind int

const (
	// KindContent directives carry the bytes of the file.
	KindContent Kind = iota
	// KindPath directives name a file on disk to copy.
	KindPath
)

func (k Kind) String() string {
	switch k {
	case KindContent:
		return "content"
	case KindPath:
		return "path"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Directive places one file at URLPath. Content is set for KindContent,
// Path for KindPath.
type Directive struct {
	URLPath string `json:"url_path"`
	Kind    Kind   `json:"kind"`
	Content []byte `json:"content,omitempty"`
	Path    string `json:"path,omitempty"`
}

// Name is the slash-separated file name the directive is frozen to: the
// url path without its leading slash, with index.html appended to paths
// naming a directory.
func (d Directive) Name() string {
	name := strings.TrimLeft(d.URLPath, "/")
	if name == "" || strings.HasSuffix(name, "/") {
		name += "index.html"
	}
	return path.Clean(name)
}

// DecodeError reports invalid base64 content.
type DecodeError struct {
	URLPath string
	Err     error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("extra_files %q: invalid base64 content: %v", e.URLPath, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// FilesystemError reports a copy_from path that could not be inspected.
type FilesystemError struct {
	URLPath string
	Path    string
	Err     error
}

func (e *FilesystemError) Error() string {
	return fmt.Sprintf("extra_files %q: cannot copy from %s: %v", e.URLPath, e.Path, e.Err)
}

func (e *FilesystemError) Unwrap() error { return e.Err }

// FileSystem is the part of the OS file system the expander reads.
type FileSystem interface {
	Stat(name string) (fs.FileInfo, error)
	ReadDir(name string) ([]fs.DirEntry, error)
}

type osFS struct{}

func (osFS) Stat(name string) (fs.FileInfo, error)      { return os.Stat(name) }
func (osFS) ReadDir(name string) ([]fs.DirEntry, error) { return os.ReadDir(name) }

// OS is the FileSystem backed by the operating system.
var OS FileSystem = osFS{}

type Expander struct {
	fsys FileSystem
	base string
	log  *logging.Logger
}

func New() *Expander {
	return &Expander{fsys: OS}
}

func (e *Expander) WithFS(fsys FileSystem) *Expander {
	e.fsys = fsys
	return e
}

// WithBaseDir sets the directory relative copy_from paths are resolved
// against. Empty means the working directory.
func (e *Expander) WithBaseDir(dir string) *Expander {
	e.base = dir
	return e
}

func (e *Expander) WithLogger(l *logging.Logger) *Expander {
	e.log = l
	return e
}

// Expand returns the directives of the root's extra_files, resolving
// copy_from paths against the root's directory.
func Expand(root *config.Root) iter.Seq2[Directive, error] {
	if root == nil {
		return New().Expand(nil)
	}
	return New().WithBaseDir(root.Directory).Expand(root.ExtraFiles)
}

// Expand returns a sequence of directives for files, in the order of the
// entries. Directories named by copy_from are walked, yielding one
// directive per file found, in name order.
//
// On the first error the sequence yields a zero Directive with the error
// and stops. Each range over the sequence starts a new traversal.
func (e *Expander) Expand(files config.ExtraFiles) iter.Seq2[Directive, error] {
	return func(yield func(Directive, error) bool) {
		for _, entry := range files {
			if !e.expandEntry(entry, yield) {
				return
			}
		}
	}
}

func (e *Expander) expandEntry(entry config.ExtraFileEntry, yield func(Directive, error) bool) bool {
	switch file := entry.File.(type) {
	case config.Text:
		return e.emit(Directive{URLPath: entry.URLPath, Kind: KindContent, Content: []byte(file)}, yield)
	case config.Bytes:
		return e.emit(Directive{URLPath: entry.URLPath, Kind: KindContent, Content: file}, yield)
	case config.Base64:
		content, err := base64.StdEncoding.DecodeString(string(file))
		if err != nil {
			yield(Directive{}, &DecodeError{URLPath: entry.URLPath, Err: err})
			return false
		}
		return e.emit(Directive{URLPath: entry.URLPath, Kind: KindContent, Content: content}, yield)
	case config.CopyFrom:
		return e.expandPath(entry.URLPath, e.resolve(string(file)), yield)
	default:
		yield(Directive{}, &config.TypeMismatchError{URLPath: entry.URLPath, Type: fmt.Sprintf("%T", entry.File)})
		return false
	}
}

func (e *Expander) resolve(p string) string {
	if e.base == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(e.base, p)
}

type pending struct {
	urlPath string
	path    string
}

// expandPath walks the tree at path with an explicit stack, so deep
// trees do not grow the Go stack.
func (e *Expander) expandPath(urlPath, fsPath string, yield func(Directive, error) bool) bool {
	root := urlPath
	stack := []pending{{urlPath: urlPath, path: fsPath}}

	for len(stack) > 0 {
		p := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		fi, err := e.fsys.Stat(p.path)
		if err != nil {
			yield(Directive{}, &FilesystemError{URLPath: root, Path: p.path, Err: err})
			return false
		}

		if !fi.IsDir() {
			if !e.emit(Directive{URLPath: p.urlPath, Kind: KindPath, Path: p.path}, yield) {
				return false
			}
			continue
		}

		entries, err := e.fsys.ReadDir(p.path)
		if err != nil {
			yield(Directive{}, &FilesystemError{URLPath: root, Path: p.path, Err: err})
			return false
		}

		slices.SortFunc(entries, func(a, b fs.DirEntry) int {
			return strings.Compare(a.Name(), b.Name())
		})

		prefix := strings.TrimRight(p.urlPath, "/") + "/"
		for _, child := range slices.Backward(entries) {
			stack = append(stack, pending{
				urlPath: prefix + child.Name(),
				path:    filepath.Join(p.path, child.Name()),
			})
		}
	}

	return true
}

func (e *Expander) emit(d Directive, yield func(Directive, error) bool) bool {
	e.log.Debugf("extra file %s: %s", d.URLPath, d.Kind)
	return yield(d, nil)
}

// Collect pulls the whole sequence, returning the directives or the first
// error.
func Collect(seq iter.Seq2[Directive, error]) ([]Directive, error) {
	var ds []Directive
	for d, err := range seq {
		if err != nil {
			return nil, err
		}
		ds = append(ds, d)
	}
	return ds, nil
}

// IsConfigError reports whether err comes from the configuration itself
// rather than from the file system.
func IsConfigError(err error) bool {
	var (
		verr *config.ValidationError
		terr *config.TypeMismatchError
		derr *DecodeError
	)
	return errors.As(err, &verr) || errors.As(err, &terr) || errors.As(err, &derr)
}
