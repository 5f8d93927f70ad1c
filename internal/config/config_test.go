package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/goccy/go-yaml"
	"github.com/google/go-cmp/cmp"

	"github.com/freezeyt/freezeyt/internal/config"
)

func TestParseExtraFiles(t *testing.T) {
	result, err := config.Parse([]byte(`
extra_files:
  /a.txt: hi
  /b.bin:
    base64: aGk=
  /static:
    copy_from: static/
  /CNAME: example.com
`))
	if err != nil {
		t.Fatal(err)
	}

	exp := config.ExtraFiles{
		{URLPath: "/a.txt", File: config.Text("hi")},
		{URLPath: "/b.bin", File: config.Base64("aGk=")},
		{URLPath: "/static", File: config.CopyFrom("static/")},
		{URLPath: "/CNAME", File: config.Text("example.com")},
	}

	if diff := cmp.Diff(exp, result.ExtraFiles); diff != "" {
		t.Fatalf("unexpected extra files (-want, +got):\n%s", diff)
	}
}

func TestParseExtraFilesJSONKeepsOrder(t *testing.T) {
	result, err := config.Parse([]byte(`{
		"extra_files": {
			"/z": "last letter",
			"/a": {"copy_from": "a"},
			"/m": {"base64": ""}
		}
	}`))
	if err != nil {
		t.Fatal(err)
	}

	var paths []string
	for _, e := range result.ExtraFiles {
		paths = append(paths, e.URLPath)
	}

	if diff := cmp.Diff([]string{"/z", "/a", "/m"}, paths); diff != "" {
		t.Fatalf("unexpected order (-want, +got):\n%s", diff)
	}
}

func TestParseNoExtraFiles(t *testing.T) {
	for _, doc := range []string{`{}`, `extra_files:`, `extra_files: null`} {
		result, err := config.Parse([]byte(doc))
		if err != nil {
			t.Fatalf("%q: %v", doc, err)
		}
		if len(result.ExtraFiles) != 0 {
			t.Fatalf("%q: expected no extra files, got %v", doc, result.ExtraFiles)
		}
	}
}

func TestParseDescriptorWithoutKnownKey(t *testing.T) {
	_, err := config.Parse([]byte(`
extra_files:
  /ok.txt: fine
  /broken:
    url: https://example.com
`))

	var verr *config.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected validation error, got %v", err)
	}

	if verr.URLPath != "/broken" {
		t.Fatalf("expected error for /broken, got %q", verr.URLPath)
	}

	if !strings.Contains(err.Error(), `must contain "base64" or "copy_from"`) {
		t.Fatalf("unexpected message: %v", err)
	}
}

func TestParseUnsupportedValueType(t *testing.T) {
	tests := []struct {
		doc  string
		typ  string
		path string
	}{
		{doc: "extra_files:\n  /n: 42\n", typ: "int", path: "/n"},
		{doc: "extra_files:\n  /f: 4.2\n", typ: "float", path: "/f"},
		{doc: "extra_files:\n  /b: true\n", typ: "bool", path: "/b"},
		{doc: "extra_files:\n  /l: [1, 2]\n", typ: "list", path: "/l"},
		{doc: "extra_files:\n  /x:\n", typ: "null", path: "/x"},
	}

	for _, tc := range tests {
		t.Run(tc.typ, func(t *testing.T) {
			_, err := config.Parse([]byte(tc.doc))

			var terr *config.TypeMismatchError
			if !errors.As(err, &terr) {
				t.Fatalf("expected type mismatch error, got %v", err)
			}
			if terr.Type != tc.typ || terr.URLPath != tc.path {
				t.Fatalf("expected %s at %s, got %s at %s", tc.typ, tc.path, terr.Type, terr.URLPath)
			}
			if !strings.Contains(err.Error(), "got a "+tc.typ) {
				t.Fatalf("expected type in message: %v", err)
			}
		})
	}
}

func TestNewExtraFile(t *testing.T) {
	tests := []struct {
		name string
		in   any
		exp  config.ExtraFile
	}{
		{name: "text", in: "hi", exp: config.Text("hi")},
		{name: "bytes", in: []byte{0, 1, 2}, exp: config.Bytes{0, 1, 2}},
		{name: "base64", in: map[string]any{"base64": "aGk="}, exp: config.Base64("aGk=")},
		{name: "copy_from", in: map[string]any{"copy_from": "dir"}, exp: config.CopyFrom("dir")},
		{name: "base64 wins", in: map[string]any{"copy_from": "dir", "base64": "aGk="}, exp: config.Base64("aGk=")},
		{name: "ordered map", in: yaml.MapSlice{{Key: "copy_from", Value: "x"}}, exp: config.CopyFrom("x")},
		{name: "already classified", in: config.Text("t"), exp: config.Text("t")},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := config.NewExtraFile(tc.in)
			if err != nil {
				t.Fatal(err)
			}
			if diff := cmp.Diff(tc.exp, got); diff != "" {
				t.Fatalf("(-want, +got):\n%s", diff)
			}
		})
	}

	if _, err := config.NewExtraFile(map[string]any{"base64": 12}); err == nil {
		t.Fatal("expected error for non-string base64")
	}
}

func TestExtraFilesMarshallingRoundtrip(t *testing.T) {
	cfg, err := config.Parse([]byte(`{
		extra_files: {
			"/robots.txt": "User-agent: *",
			"/favicon.ico": {base64: "AAEC"},
			"/docs": {copy_from: "docs"},
		},
		excluded_files: ["*.tmp"],
	}`))
	if err != nil {
		t.Fatal(err)
	}

	bs, err := yaml.Marshal(cfg)
	if err != nil {
		t.Fatal(err)
	}

	cfg2, err := config.Parse(bs)
	if err != nil {
		t.Fatalf("%v\n%s", err, bs)
	}

	if diff := cmp.Diff(cfg.ExtraFiles, cfg2.ExtraFiles); diff != "" {
		t.Fatalf("extra files changed in roundtrip (-want, +got):\n%s", diff)
	}

	if !cfg.ExcludedFiles.Equal(cfg2.ExcludedFiles) {
		t.Fatal("expected excluded files to be equal")
	}
}

func TestExtraFilesJSONRoundtrip(t *testing.T) {
	files := config.ExtraFiles{
		{URLPath: "/b", File: config.Bytes("hi")},
		{URLPath: "/a", File: config.Text("x")},
	}

	bs, err := files.MarshalJSON()
	if err != nil {
		t.Fatal(err)
	}

	if exp := `{"/b":{"base64":"aGk="},"/a":"x"}`; string(bs) != exp {
		t.Fatalf("expected %s, got %s", exp, bs)
	}

	var got config.ExtraFiles
	if err := got.UnmarshalJSON(bs); err != nil {
		t.Fatal(err)
	}

	exp := config.ExtraFiles{
		{URLPath: "/b", File: config.Base64("aGk=")},
		{URLPath: "/a", File: config.Text("x")},
	}
	if diff := cmp.Diff(exp, got); diff != "" {
		t.Fatalf("(-want, +got):\n%s", diff)
	}
}

func TestParseFileResolvesDirectory(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "freezeyt.yaml")
	if err := os.WriteFile(path, []byte("extra_files:\n  /s:\n    copy_from: static\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	root, err := config.ParseFile(path)
	if err != nil {
		t.Fatal(err)
	}

	if root.Directory != dir {
		t.Fatalf("expected directory %q, got %q", dir, root.Directory)
	}

	if exp, got := filepath.Join(dir, "static"), root.ResolvePath("static"); exp != got {
		t.Fatalf("expected %q, got %q", exp, got)
	}

	if exp, got := "/abs/path", root.ResolvePath("/abs/path"); exp != got {
		t.Fatalf("expected %q, got %q", exp, got)
	}
}

func TestParseInvalidConfig(t *testing.T) {
	tests := []struct {
		note string
		doc  string
		err  string
	}{
		{
			note: "unknown top-level key",
			doc:  `{bundles: {}}`,
		},
		{
			note: "bad glob",
			doc:  `{excluded_files: ["[a-"]}`,
			err:  "failed to compile excluded file pattern",
		},
		{
			note: "two outputs",
			doc:  `{output: {filesystem: {path: out}, gcp: {project: p, bucket: b}}}`,
			err:  "exactly one of",
		},
		{
			note: "s3 without region",
			doc:  `{output: {aws: {bucket: b}}}`,
			err:  "amazon s3 region is required",
		},
		{
			note: "filesystem without path",
			doc:  `{output: {filesystem: {}}}`,
			err:  "filesystem storage path is required",
		},
	}

	for _, tc := range tests {
		t.Run(tc.note, func(t *testing.T) {
			_, err := config.Parse([]byte(tc.doc))
			if err == nil {
				t.Fatal("expected error")
			}
			if tc.err != "" && !strings.Contains(err.Error(), tc.err) {
				t.Fatalf("expected %q in error, got %v", tc.err, err)
			}
		})
	}
}

func TestParseSecretResolve(t *testing.T) {
	result, err := config.Parse([]byte(`{
		output: {
			aws: {
				bucket: site,
				region: eu-west-1,
				credentials: s3creds
			}
		},
		secrets: {
			s3creds: {
				type: aws_auth,
				access_key_id: AKIA,
				secret_access_key: '${FREEZEYT_SECRET}'
			}
		}
	}`))
	if err != nil {
		t.Fatal(err)
	}

	t.Setenv("FREEZEYT_SECRET", "s3cr3t")

	value, err := result.Output.AmazonS3.Credentials.Resolve(t.Context())
	if err != nil {
		t.Fatal(err)
	}

	exp := config.SecretAWS{AccessKeyID: "AKIA", SecretAccessKey: "s3cr3t"}
	if diff := cmp.Diff(exp, value); diff != "" {
		t.Fatalf("(-want, +got):\n%s", diff)
	}
}

func TestSecretRefMissing(t *testing.T) {
	result, err := config.Parse([]byte(`{output: {gcp: {project: p, bucket: b, credentials: nope}}}`))
	if err != nil {
		t.Fatal(err)
	}

	if _, err := result.Output.GCPCloudStorage.Credentials.Resolve(t.Context()); err == nil {
		t.Fatal("expected error for missing secret")
	}
}

func TestOutputName(t *testing.T) {
	result, err := config.Parse([]byte(`{output: {filesystem: {path: out}}}`))
	if err != nil {
		t.Fatal(err)
	}
	if exp, got := "filesystem", result.Output.Name(); exp != got {
		t.Fatalf("expected %q, got %q", exp, got)
	}
}
