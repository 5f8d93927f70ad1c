package sitefs_test

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/freezeyt/freezeyt/internal/config"
	"github.com/freezeyt/freezeyt/internal/extrafiles"
	"github.com/freezeyt/freezeyt/internal/fs/sitefs"
)

func TestSiteFS(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "img"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "img", "logo.png"), []byte("png"), 0o644); err != nil {
		t.Fatal(err)
	}

	fsys, err := sitefs.New(extrafiles.New().Expand(config.ExtraFiles{
		{URLPath: "/CNAME", File: config.Text("example.com")},
		{URLPath: "/", File: config.Text("<h1>home</h1>")},
		{URLPath: "/static", File: config.CopyFrom(dir)},
		{URLPath: "/CNAME", File: config.Text("example.org")},
	}))
	if err != nil {
		t.Fatal(err)
	}

	if fsys.Len() != 3 {
		t.Fatalf("expected 3 files, got %d", fsys.Len())
	}

	var got []string
	err = fs.WalkDir(fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			got = append(got, p)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	exp := []string{"CNAME", "index.html", "static/img/logo.png"}
	if diff := cmp.Diff(exp, got); diff != "" {
		t.Fatalf("(-want, +got):\n%s", diff)
	}

	for name, content := range map[string]string{
		"CNAME":               "example.org",
		"index.html":          "<h1>home</h1>",
		"static/img/logo.png": "png",
	} {
		bs, err := fs.ReadFile(fsys, name)
		if err != nil {
			t.Fatal(err)
		}
		if string(bs) != content {
			t.Fatalf("%s: expected %q, got %q", name, content, bs)
		}
	}

	if _, err := fsys.Open("static/missing"); !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("expected not exist, got %v", err)
	}

	fi, err := fs.Stat(fsys, "static")
	if err != nil {
		t.Fatal(err)
	}
	if !fi.IsDir() {
		t.Fatal("expected static to be a directory")
	}
}

func TestSiteFSExpansionError(t *testing.T) {
	_, err := sitefs.New(extrafiles.New().Expand(config.ExtraFiles{
		{URLPath: "/bad", File: config.Base64("!!")},
	}))

	var derr *extrafiles.DecodeError
	if !errors.As(err, &derr) {
		t.Fatalf("expected decode error, got %v", err)
	}
}
