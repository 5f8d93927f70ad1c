package logging

import (
	"bytes"
	"strings"
	"testing"
)

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: Warn, Output: &buf, JSON: true})

	l.Debugf("hidden %d", 1)
	l.Infof("hidden %d", 2)
	l.Warnf("shown %d", 3)
	l.Errorf("shown %d", 4)

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("expected debug and info to be filtered, got:\n%s", out)
	}
	if !strings.Contains(out, "shown 3") || !strings.Contains(out, "shown 4") {
		t.Fatalf("expected warn and error entries, got:\n%s", out)
	}
}

func TestNilLogger(t *testing.T) {
	var l *Logger
	l.Debugf("x")
	l.Infof("x")
	l.Warnf("x")
	l.Errorf("x")
	if l.With("k", "v") != nil {
		t.Fatal("expected nil child logger")
	}
}

func TestWithField(t *testing.T) {
	var buf bytes.Buffer
	New(Config{Level: Debug, Output: &buf, JSON: true}).With("url_path", "/a.txt").Infof("hello")
	if !strings.Contains(buf.String(), `"url_path":"/a.txt"`) {
		t.Fatalf("expected field in output, got %s", buf.String())
	}
}
