package freezer_test

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/freezeyt/freezeyt/internal/config"
	"github.com/freezeyt/freezeyt/internal/extrafiles"
	"github.com/freezeyt/freezeyt/internal/freezer"
	"github.com/freezeyt/freezeyt/internal/s3"
)

// memStorage is an in-memory ObjectStorage.
type memStorage struct {
	mu    sync.Mutex
	files map[string]string
	fail  string
}

func newMemStorage() *memStorage {
	return &memStorage{files: make(map[string]string)}
}

func (m *memStorage) Put(_ context.Context, key string, r io.Reader) error {
	if key == m.fail {
		return errors.New("storage unavailable")
	}
	bs, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[key] = string(bs)
	return nil
}

func (m *memStorage) Get(_ context.Context, key string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.files[key]
	if !ok {
		return nil, s3.ErrNotFound
	}
	return io.NopCloser(strings.NewReader(s)), nil
}

func TestFreeze(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "css"), 0o755); err != nil {
		t.Fatal(err)
	}
	for name, content := range map[string]string{"css/site.css": "body {}", "notes.tmp": "scratch"} {
		if err := os.WriteFile(filepath.Join(dir, filepath.FromSlash(name)), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	out := t.TempDir()
	storage := s3.NewFileSystem(out)

	files := config.ExtraFiles{
		{URLPath: "/CNAME", File: config.Text("example.com")},
		{URLPath: "/blog/", File: config.Text("<h1>blog</h1>")},
		{URLPath: "/favicon.ico", File: config.Base64("AAEC")},
		{URLPath: "/static", File: config.CopyFrom(dir)},
	}

	result, err := freezer.New(storage).
		WithExcluded([]string{"**.tmp"}).
		WithConcurrency(2).
		Freeze(context.Background(), extrafiles.New().Expand(files))
	if err != nil {
		t.Fatal(err)
	}

	exp := freezer.Result{Written: 4, Skipped: 1, Bytes: int64(len("example.com") + len("<h1>blog</h1>") + 3 + len("body {}"))}
	if diff := cmp.Diff(exp, result); diff != "" {
		t.Fatalf("(-want, +got):\n%s", diff)
	}

	for name, content := range map[string]string{
		"CNAME":               "example.com",
		"blog/index.html":     "<h1>blog</h1>",
		"favicon.ico":         "\x00\x01\x02",
		"static/css/site.css": "body {}",
	} {
		bs, err := os.ReadFile(filepath.Join(out, filepath.FromSlash(name)))
		if err != nil {
			t.Fatal(err)
		}
		if string(bs) != content {
			t.Fatalf("%s: expected %q, got %q", name, content, bs)
		}
	}

	if _, err := os.Stat(filepath.Join(out, "static", "notes.tmp")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected excluded file to be skipped, got %v", err)
	}
}

func TestFreezeLastDirectiveWins(t *testing.T) {
	storage := newMemStorage()

	var files config.ExtraFiles
	for _, s := range []string{"1", "2", "3", "4", "5", "6"} {
		files = append(files, config.ExtraFileEntry{URLPath: "/same.txt", File: config.Text(s)})
	}
	files = append(files, config.ExtraFileEntry{URLPath: "/same.txt/", File: config.Text("dir")})

	_, err := freezer.New(storage).WithConcurrency(8).Freeze(context.Background(), extrafiles.New().Expand(files))
	if err != nil {
		t.Fatal(err)
	}

	if got := storage.files["same.txt"]; got != "6" {
		t.Fatalf("expected last write to win, got %q", got)
	}
	if got := storage.files["same.txt/index.html"]; got != "dir" {
		t.Fatalf("expected index.html, got %q", got)
	}
}

func TestFreezeExpansionError(t *testing.T) {
	storage := newMemStorage()

	files := config.ExtraFiles{
		{URLPath: "/ok.txt", File: config.Text("ok")},
		{URLPath: "/bad.bin", File: config.Base64("***")},
		{URLPath: "/never.txt", File: config.Text("never")},
	}

	_, err := freezer.New(storage).Freeze(context.Background(), extrafiles.New().Expand(files))

	var derr *extrafiles.DecodeError
	if !errors.As(err, &derr) {
		t.Fatalf("expected decode error, got %v", err)
	}

	if _, ok := storage.files["never.txt"]; ok {
		t.Fatal("expected freeze to stop at the expansion error")
	}
}

func TestFreezeWriteError(t *testing.T) {
	storage := newMemStorage()
	storage.fail = "b.txt"

	files := config.ExtraFiles{
		{URLPath: "/a.txt", File: config.Text("a")},
		{URLPath: "/b.txt", File: config.Text("b")},
	}

	_, err := freezer.New(storage).Freeze(context.Background(), extrafiles.New().Expand(files))
	if err == nil || !strings.Contains(err.Error(), `failed to write /b.txt: storage unavailable`) {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestFreezeMissingSourceFile(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "gone.txt")
	if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	seq := func(yield func(extrafiles.Directive, error) bool) {
		d := extrafiles.Directive{URLPath: "/gone.txt", Kind: extrafiles.KindPath, Path: p}
		// The file disappears between expansion and the write.
		if err := os.Remove(p); err != nil {
			t.Fatal(err)
		}
		yield(d, nil)
	}

	_, err := freezer.New(newMemStorage()).Freeze(context.Background(), seq)

	var ferr *extrafiles.FilesystemError
	if !errors.As(err, &ferr) || ferr.URLPath != "/gone.txt" {
		t.Fatalf("expected filesystem error for /gone.txt, got %v", err)
	}
}

func TestFreezeInvalidExclusion(t *testing.T) {
	_, err := freezer.New(newMemStorage()).WithExcluded([]string{"[a-"}).Freeze(context.Background(), extrafiles.New().Expand(nil))
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestDiff(t *testing.T) {
	storage := newMemStorage()
	storage.files["unchanged.txt"] = "same\n"
	storage.files["changed.txt"] = "old\n"

	files := config.ExtraFiles{
		{URLPath: "/unchanged.txt", File: config.Text("same\n")},
		{URLPath: "/changed.txt", File: config.Text("new\n")},
		{URLPath: "/added.txt", File: config.Text("added\n")},
		{URLPath: "/skipped.tmp", File: config.Text("tmp\n")},
		{URLPath: "/bin", File: config.Bytes{0xff, 0xfe}},
	}

	got, err := freezer.New(storage).WithExcluded([]string{"*.tmp"}).Diff(context.Background(), extrafiles.New().Expand(files))
	if err != nil {
		t.Fatal(err)
	}

	for _, exp := range []string{
		"--- a/changed.txt\n+++ b/changed.txt\n",
		"-old\n+new\n",
		"--- a/added.txt\n+++ b/added.txt\n",
		"+added\n",
		"Binary files a/bin and b/bin differ\n",
	} {
		if !strings.Contains(got, exp) {
			t.Fatalf("expected %q in diff:\n%s", exp, got)
		}
	}

	for _, unexp := range []string{"unchanged.txt", "skipped.tmp"} {
		if strings.Contains(got, unexp) {
			t.Fatalf("did not expect %q in diff:\n%s", unexp, got)
		}
	}

	if storage.files["changed.txt"] != "old\n" {
		t.Fatal("expected diff to leave the storage untouched")
	}
}

func TestFreezeNameOutsideOutput(t *testing.T) {
	for _, urlPath := range []string{"/../x", "/a/../../y", "/.."} {
		t.Run(urlPath, func(t *testing.T) {
			storage := newMemStorage()
			files := config.ExtraFiles{
				{URLPath: "/ok.txt", File: config.Text("ok")},
				{URLPath: urlPath, File: config.Text("escape")},
			}

			_, err := freezer.New(storage).Freeze(context.Background(), extrafiles.New().Expand(files))

			var verr *config.ValidationError
			if !errors.As(err, &verr) || verr.URLPath != urlPath {
				t.Fatalf("expected validation error for %s, got %v", urlPath, err)
			}
			if !extrafiles.IsConfigError(err) {
				t.Fatal("expected a configuration error")
			}
			for key := range storage.files {
				if strings.HasPrefix(key, "..") {
					t.Fatalf("unexpected key %q written", key)
				}
			}

			if _, err := freezer.New(storage).Diff(context.Background(), extrafiles.New().Expand(files)); !errors.As(err, &verr) {
				t.Fatalf("expected validation error from diff, got %v", err)
			}
		})
	}
}
