package tracefs_test

import (
	"bytes"
	"io/fs"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/freezeyt/freezeyt/internal/fs/tracefs"
	"github.com/freezeyt/freezeyt/internal/logging"
)

func TestTraceFS(t *testing.T) {
	var buf bytes.Buffer
	log := logging.New(logging.Config{Level: logging.Debug, Output: &buf})

	fsys := tracefs.New(fstest.MapFS{"a/b.txt": {Data: []byte("abc")}}, log)

	if _, err := fs.ReadFile(fsys, "a/b.txt"); err != nil {
		t.Fatal(err)
	}
	if _, err := fsys.Open("missing"); err == nil {
		t.Fatal("expected error")
	}
	if _, err := fs.ReadDir(fsys, "a"); err != nil {
		t.Fatal(err)
	}

	out := buf.String()
	for _, exp := range []string{"open a/b.txt: size=3", "open missing:", "open a: dir"} {
		if !strings.Contains(out, exp) {
			t.Fatalf("expected %q in log:\n%s", exp, out)
		}
	}
}

func TestTraceFSWithoutLogger(t *testing.T) {
	m := fstest.MapFS{}
	if fsys := tracefs.New(m, nil); fsys == nil {
		t.Fatal("expected file system")
	}
}
