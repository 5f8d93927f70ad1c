package config

import (
	"encoding/base64"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"reflect"

	"github.com/goccy/go-yaml"
)

// Merge reads the given configuration files (directories are walked) and
// merges them into a single document, later files overriding earlier ones.
// Mapping order is kept, so the extra_files of the first file that names a
// url path decide where that path appears in the merged order.
func Merge(configFiles []string, conflictError bool) ([]byte, error) {

	var paths []string
	for _, f := range configFiles {
		if err := filepath.Walk(f, func(path string, fi fs.FileInfo, err error) error {
			if err != nil {
				return err
			}
			if fi.IsDir() {
				return nil
			}
			paths = append(paths, path)
			return nil
		}); err != nil {
			return nil, err
		}
	}

	docs := make([]yaml.MapSlice, 0, len(paths))
	for _, f := range paths {
		bs, err := os.ReadFile(f)
		if err != nil {
			return nil, fmt.Errorf("failed to read configuration file %v: %v", f, err)
		}
		var x yaml.MapSlice
		if err := yaml.UnmarshalWithOptions(bs, &x, yaml.UseOrderedMap()); err != nil {
			return nil, fmt.Errorf("failed to unmarshal configuration file %v: %v", f, err)
		}
		docs = append(docs, x)
	}

	merged, err := merge(docs, "", conflictError)
	if err != nil {
		return nil, err
	}

	bs, err := yaml.Marshal(merged)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal merged configuration: %v", err)
	}

	return bs, nil
}

func merge(docs []yaml.MapSlice, path string, conflictError bool) (yaml.MapSlice, error) {
	var result yaml.MapSlice
	index := make(map[any]int)
	for _, doc := range docs {
		for _, item := range doc {
			key, value := item.Key, binaryToDescriptor(item.Value)
			i, ok := index[key]
			if !ok {
				index[key] = len(result)
				result = append(result, yaml.MapItem{Key: key, Value: value})
				continue
			}

			existing := result[i].Value
			if path == "/extra_files" {
				// Entries are replaced as a whole, never merged key by key.
				if conflictError && !reflect.DeepEqual(existing, value) {
					return nil, fmt.Errorf("conflict for config path %s/%v", path, key)
				}
				result[i].Value = value
				continue
			}
			if existingMap, ok1 := existing.(yaml.MapSlice); ok1 {
				if valueMap, ok2 := value.(yaml.MapSlice); ok2 {
					m, err := merge([]yaml.MapSlice{existingMap, valueMap}, fmt.Sprintf("%s/%v", path, key), conflictError)
					if err != nil {
						return nil, err
					}
					result[i].Value = m
					continue
				}
			}

			if conflictError && !reflect.DeepEqual(existing, value) {
				return nil, fmt.Errorf("conflict for config path %s/%v", path, key)
			}
			result[i].Value = value
		}
	}
	return result, nil
}

// binaryToDescriptor turns !!binary values into base64 descriptors, which
// survive re-encoding as YAML text.
func binaryToDescriptor(v any) any {
	if bs, ok := v.([]byte); ok {
		return yaml.MapSlice{{Key: "base64", Value: base64.StdEncoding.EncodeToString(bs)}}
	}
	return v
}
