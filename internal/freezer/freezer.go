// Package freezer writes the files produced by the extra files expansion to
// an output storage.
package freezer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"iter"
	"os"
	"slices"
	"strings"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/akedrou/textdiff"
	"github.com/gobwas/glob"
	"golang.org/x/sync/errgroup"

	"github.com/freezeyt/freezeyt/internal/config"
	"github.com/freezeyt/freezeyt/internal/extrafiles"
	"github.com/freezeyt/freezeyt/internal/logging"
	"github.com/freezeyt/freezeyt/internal/metrics"
	"github.com/freezeyt/freezeyt/internal/progress"
	"github.com/freezeyt/freezeyt/internal/s3"
)

const defaultConcurrency = 4

// Result summarizes a freeze.
type Result struct {
	Written int   `json:"written"`
	Skipped int   `json:"skipped"`
	Bytes   int64 `json:"bytes"`
}

type Freezer struct {
	storage     s3.ObjectStorage
	target      string
	excluded    []glob.Glob
	err         error
	concurrency int
	log         *logging.Logger
	bar         *progress.Bar
}

func New(storage s3.ObjectStorage) *Freezer {
	return &Freezer{storage: storage, target: "unknown", concurrency: defaultConcurrency}
}

// WithExcluded skips files whose frozen name matches any of the patterns.
func (f *Freezer) WithExcluded(patterns []string) *Freezer {
	f.excluded = f.excluded[:0]
	for _, p := range patterns {
		g, err := glob.Compile(p, '/')
		if err != nil {
			f.err = fmt.Errorf("failed to compile excluded file pattern %q: %w", p, err)
			return f
		}
		f.excluded = append(f.excluded, g)
	}
	return f
}

// WithTarget names the output in logs and metrics.
func (f *Freezer) WithTarget(name string) *Freezer {
	if name != "" {
		f.target = name
	}
	return f
}

func (f *Freezer) WithConcurrency(n int) *Freezer {
	if n > 0 {
		f.concurrency = n
	}
	return f
}

func (f *Freezer) WithLogger(l *logging.Logger) *Freezer {
	f.log = l
	return f
}

func (f *Freezer) WithProgress(bar *progress.Bar) *Freezer {
	f.bar = bar
	return f
}

func (f *Freezer) isExcluded(name string) bool {
	return slices.ContainsFunc(f.excluded, func(g glob.Glob) bool { return g.Match(name) })
}

// Freeze pulls the directives and writes each one that is not excluded.
// Pulling happens on the calling goroutine, writes run concurrently. Files
// copied from disk are read only when they are written. When several
// directives map to the same name, the last one wins.
//
// The first error, from the expansion or from a write, stops the freeze.
func (f *Freezer) Freeze(ctx context.Context, seq iter.Seq2[extrafiles.Directive, error]) (Result, error) {
	var result Result

	if f.err != nil {
		return result, f.err
	}

	startTime := time.Now()
	defer f.bar.Finish()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(f.concurrency)

	var (
		written atomic.Int64
		size    atomic.Int64
		expErr  error
	)

	// Writes of the same name are chained so that they land in order.
	last := make(map[string]chan struct{})

	for d, err := range seq {
		if err != nil {
			expErr = err
			cancel()
			break
		}

		if ctx.Err() != nil {
			break
		}

		name, err := frozenName(d)
		if err != nil {
			expErr = err
			cancel()
			break
		}
		if f.isExcluded(name) {
			f.log.Debugf("skipping excluded file %s", d.URLPath)
			result.Skipped++
			continue
		}

		prev, done := last[name], make(chan struct{})
		last[name] = done

		g.Go(func() error {
			defer close(done)

			if prev != nil {
				select {
				case <-prev:
				case <-ctx.Done():
					return ctx.Err()
				}
			}

			n, err := f.write(ctx, d)
			if err != nil {
				return err
			}

			written.Add(1)
			size.Add(n)
			metrics.FileWritten(d.Kind.String(), n)
			f.bar.Add(1)
			f.log.Debugf("wrote %s (%d bytes)", name, n)
			return nil
		})
	}

	err := g.Wait()

	result.Written = int(written.Load())
	result.Bytes = size.Load()

	switch {
	case expErr != nil:
		metrics.FreezeFailed(f.target, "expand")
		return result, expErr
	case err != nil:
		metrics.FreezeFailed(f.target, "write")
		return result, err
	}

	metrics.FreezeSucceeded(f.target, startTime)
	f.log.Infof("froze %d files (%d bytes) to %s, skipped %d", result.Written, result.Bytes, f.target, result.Skipped)
	return result, nil
}

// frozenName returns the storage key of d. Keys stay below the root of the
// output, whatever the target.
func frozenName(d extrafiles.Directive) (string, error) {
	name := d.Name()
	if !fs.ValidPath(name) {
		return "", &config.ValidationError{
			URLPath: d.URLPath,
			Msg:     fmt.Sprintf("url path resolves to %q, outside of the output", name),
		}
	}
	return name, nil
}

func (f *Freezer) write(ctx context.Context, d extrafiles.Directive) (int64, error) {
	r, err := open(d)
	if err != nil {
		return 0, err
	}
	defer r.Close()

	cr := &countingReader{r: r}
	if err := f.storage.Put(ctx, d.Name(), cr); err != nil {
		return 0, fmt.Errorf("failed to write %s: %w", d.URLPath, err)
	}

	return cr.n, nil
}

// open returns the payload of a directive, opening files from disk.
func open(d extrafiles.Directive) (io.ReadCloser, error) {
	switch d.Kind {
	case extrafiles.KindContent:
		return io.NopCloser(bytes.NewReader(d.Content)), nil
	case extrafiles.KindPath:
		file, err := os.Open(d.Path)
		if err != nil {
			return nil, &extrafiles.FilesystemError{URLPath: d.URLPath, Path: d.Path, Err: err}
		}
		return file, nil
	}
	return nil, fmt.Errorf("unknown directive kind %v for %s", d.Kind, d.URLPath)
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

// Diff returns a unified diff between the files currently in the storage
// and the files a freeze would write. Files missing from the storage are
// diffed against empty content.
func (f *Freezer) Diff(ctx context.Context, seq iter.Seq2[extrafiles.Directive, error]) (string, error) {
	if f.err != nil {
		return "", f.err
	}

	var names []string
	latest := make(map[string]extrafiles.Directive)

	for d, err := range seq {
		if err != nil {
			return "", err
		}
		name, err := frozenName(d)
		if err != nil {
			return "", err
		}
		if f.isExcluded(name) {
			continue
		}
		if _, ok := latest[name]; !ok {
			names = append(names, name)
		}
		latest[name] = d
	}

	var sb strings.Builder

	for _, name := range names {
		newContent, err := readAll(latest[name])
		if err != nil {
			return "", err
		}

		oldContent, err := f.current(ctx, name)
		if err != nil {
			return "", err
		}

		if bytes.Equal(oldContent, newContent) {
			continue
		}

		if !utf8.Valid(oldContent) || !utf8.Valid(newContent) {
			fmt.Fprintf(&sb, "Binary files a/%s and b/%s differ\n", name, name)
			continue
		}

		sb.WriteString(textdiff.Unified("a/"+name, "b/"+name, string(oldContent), string(newContent)))
	}

	return sb.String(), nil
}

func (f *Freezer) current(ctx context.Context, name string) ([]byte, error) {
	r, err := f.storage.Get(ctx, name)
	if errors.Is(err, s3.ErrNotFound) {
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	defer r.Close()

	return io.ReadAll(r)
}

func readAll(d extrafiles.Directive) ([]byte, error) {
	r, err := open(d)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	return io.ReadAll(r)
}
