package extrafiles

import (
	"io/fs"
	"path"
	"testing"
	"testing/fstest"

	"github.com/freezeyt/freezeyt/internal/config"
)

// countingFS serves an fstest.MapFS under slash paths and counts accesses.
type countingFS struct {
	fsys  fstest.MapFS
	calls int
}

func (c *countingFS) Stat(name string) (fs.FileInfo, error) {
	c.calls++
	return fs.Stat(c.fsys, path.Clean(name))
}

func (c *countingFS) ReadDir(name string) ([]fs.DirEntry, error) {
	c.calls++
	return fs.ReadDir(c.fsys, path.Clean(name))
}

func TestExpandStopsEarly(t *testing.T) {
	fsys := &countingFS{fsys: fstest.MapFS{
		"site/a.txt":   {Data: []byte("a")},
		"site/b.txt":   {Data: []byte("b")},
		"site/c/d.txt": {Data: []byte("d")},
	}}

	seq := New().WithFS(fsys).Expand(config.ExtraFiles{{URLPath: "/", File: config.CopyFrom("site")}})

	for d, err := range seq {
		if err != nil {
			t.Fatal(err)
		}
		if d.URLPath != "/a.txt" {
			t.Fatalf("expected /a.txt first, got %s", d.URLPath)
		}
		break
	}

	// Stat(site), ReadDir(site), Stat(site/a.txt): nothing after the
	// first directive was taken.
	if fsys.calls != 3 {
		t.Fatalf("expected 3 file system calls, got %d", fsys.calls)
	}
}

func TestExpandInjectedFS(t *testing.T) {
	fsys := &countingFS{fsys: fstest.MapFS{
		"site/c/d.txt": {Data: []byte("d")},
		"site/a.txt":   {Data: []byte("a")},
	}}

	ds, err := Collect(New().WithFS(fsys).Expand(config.ExtraFiles{{URLPath: "/s/", File: config.CopyFrom("site")}}))
	if err != nil {
		t.Fatal(err)
	}

	var got []string
	for _, d := range ds {
		got = append(got, d.URLPath+"="+d.Path)
	}

	exp := []string{"/s/a.txt=site/a.txt", "/s/c/d.txt=site/c/d.txt"}
	if len(got) != len(exp) || got[0] != exp[0] || got[1] != exp[1] {
		t.Fatalf("expected %v, got %v", exp, got)
	}
}
