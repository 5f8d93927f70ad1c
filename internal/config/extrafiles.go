package config

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/goccy/go-yaml"
	"github.com/swaggest/jsonschema-go"
)

// ExtraFile is the value of a single extra_files entry. It is one of Text,
// Bytes, Base64 or CopyFrom; the last two are the descriptor forms
// ({base64: ...} and {copy_from: ...}) of the configuration.
type ExtraFile interface {
	extraFile()
}

// Text is inline content given as a string. It is frozen as its UTF-8 bytes.
type Text string

// Bytes is inline binary content (a YAML !!binary value, or []byte when the
// configuration is built in Go).
type Bytes []byte

// Base64 is inline content in standard base64 encoding. It is decoded when
// the extra files are expanded, not when the configuration is loaded.
type Base64 string

// CopyFrom names a file or a directory to copy. Directories are copied
// recursively.
type CopyFrom string

func (Text) extraFile()     {}
func (Bytes) extraFile()    {}
func (Base64) extraFile()   {}
func (CopyFrom) extraFile() {}

// ExtraFileEntry is one url path of extra_files with its value.
type ExtraFileEntry struct {
	URLPath string
	File    ExtraFile
}

// ExtraFiles keeps the entries of extra_files in the order they were given.
type ExtraFiles []ExtraFileEntry

// ValidationError reports a descriptor mapping of the wrong shape.
type ValidationError struct {
	URLPath string
	Msg     string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("extra_files %q: %s", e.URLPath, e.Msg)
}

// TypeMismatchError reports an extra_files value of an unsupported type.
type TypeMismatchError struct {
	URLPath string
	Type    string
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("extra_files %q: extra_files values must be bytes, str or mappings; got a %s", e.URLPath, e.Type)
}

// NewExtraFile classifies a decoded configuration value. Strings become
// Text, byte slices Bytes and mappings one of the descriptor forms. The
// returned errors do not carry a url path; NewExtraFiles fills it in.
func NewExtraFile(v any) (ExtraFile, error) {
	switch v := v.(type) {
	case ExtraFile:
		return v, nil
	case string:
		return Text(v), nil
	case []byte:
		return Bytes(v), nil
	case map[string]any:
		return newDescriptor(func(key string) (any, bool) {
			x, ok := v[key]
			return x, ok
		})
	case yaml.MapSlice:
		return newDescriptor(func(key string) (any, bool) {
			for _, item := range v {
				if k, ok := item.Key.(string); ok && k == key {
					return item.Value, true
				}
			}
			return nil, false
		})
	default:
		return nil, &TypeMismatchError{Type: typeName(v)}
	}
}

func newDescriptor(lookup func(string) (any, bool)) (ExtraFile, error) {
	if v, ok := lookup("base64"); ok {
		s, ok := v.(string)
		if !ok {
			return nil, &ValidationError{Msg: fmt.Sprintf(`"base64" must be a string; got a %s`, typeName(v))}
		}
		return Base64(s), nil
	}
	if v, ok := lookup("copy_from"); ok {
		s, ok := v.(string)
		if !ok {
			return nil, &ValidationError{Msg: fmt.Sprintf(`"copy_from" must be a string; got a %s`, typeName(v))}
		}
		return CopyFrom(s), nil
	}
	return nil, &ValidationError{Msg: `a mapping in extra_files must contain "base64" or "copy_from"`}
}

func typeName(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case bool:
		return "bool"
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return "int"
	case float32, float64:
		return "float"
	case []any:
		return "list"
	}
	return reflect.TypeOf(v).String()
}

// NewExtraFiles classifies every entry of an ordered mapping, stopping at
// the first invalid one.
func NewExtraFiles(items yaml.MapSlice) (ExtraFiles, error) {
	files := make(ExtraFiles, 0, len(items))
	for _, item := range items {
		urlPath := fmt.Sprint(item.Key)
		file, err := NewExtraFile(item.Value)
		if err != nil {
			switch err := err.(type) {
			case *ValidationError:
				err.URLPath = urlPath
			case *TypeMismatchError:
				err.URLPath = urlPath
			}
			return nil, err
		}
		files = append(files, ExtraFileEntry{URLPath: urlPath, File: file})
	}
	return files, nil
}

func (f ExtraFiles) MarshalYAML() (any, error) {
	m := make(yaml.MapSlice, 0, len(f))
	for _, e := range f {
		var v any
		switch file := e.File.(type) {
		case Text:
			v = string(file)
		case Bytes:
			v = map[string]string{"base64": base64.StdEncoding.EncodeToString(file)}
		case Base64:
			v = map[string]string{"base64": string(file)}
		case CopyFrom:
			v = map[string]string{"copy_from": string(file)}
		}
		m = append(m, yaml.MapItem{Key: e.URLPath, Value: v})
	}
	return m, nil
}

func (f ExtraFiles) MarshalJSON() ([]byte, error) {
	v, err := f.MarshalYAML()
	if err != nil {
		return nil, err
	}

	// Written by hand to keep the entry order, which a Go map would lose.
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, item := range v.(yaml.MapSlice) {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(item.Key)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(item.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (f *ExtraFiles) UnmarshalYAML(bs []byte) error {
	var items yaml.MapSlice
	if err := yaml.Unmarshal(bs, &items); err != nil {
		return fmt.Errorf("extra_files must be a mapping: %w", err)
	}

	files, err := NewExtraFiles(items)
	if err != nil {
		return err
	}
	*f = files
	return nil
}

// UnmarshalJSON decodes through the YAML decoder: JSON is valid YAML, and
// the YAML decoder keeps the order of the keys.
func (f *ExtraFiles) UnmarshalJSON(bs []byte) error {
	return f.UnmarshalYAML(bs)
}

func (ExtraFiles) PrepareJSONSchema(schema *jsonschema.Schema) error {
	schema.Type = nil
	schema.Items = nil
	schema.AddType(jsonschema.Object)
	schema.AddType(jsonschema.Null)
	return nil
}
