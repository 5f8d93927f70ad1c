package config

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sort"

	"github.com/gobwas/glob"
	"github.com/goccy/go-yaml"
)

// Root is the top-level freezeyt configuration.
type Root struct {
	ExtraFiles    ExtraFiles         `json:"extra_files,omitempty"`
	Output        *ObjectStorage     `json:"output,omitempty"`
	ExcludedFiles StringSet          `json:"excluded_files,omitempty"`
	Directory     string             `json:"directory,omitempty"` // Base directory for relative copy_from paths.
	Secrets       map[string]*Secret `json:"secrets,omitempty"`   // Schema validation overrides Secret to object type.

	_ struct{} `additionalProperties:"false"`
}

// UnmarshalYAML implements the yaml.BytesUnmarshaler interface for the Root
// struct. Besides decoding, it injects the named secrets into every secret
// reference so that callers can resolve them later.
func (r *Root) UnmarshalYAML(bs []byte) error {
	type rawRoot Root // avoid recursive calls to UnmarshalYAML by type aliasing
	var raw rawRoot

	if err := yaml.Unmarshal(bs, &raw); err != nil {
		return fmt.Errorf("failed to decode Root: %w", err)
	}

	*r = Root(raw)
	return r.unmarshal()
}

func (r *Root) UnmarshalJSON(bs []byte) error {
	type rawRoot Root // avoid recursive calls to UnmarshalJSON by type aliasing
	var raw rawRoot

	if err := json.Unmarshal(bs, &raw); err != nil {
		return fmt.Errorf("failed to decode Root: %w", err)
	}

	*r = Root(raw)
	return r.unmarshal()
}

func (r *Root) unmarshal() error {
	for name := range r.Secrets {
		if r.Secrets[name] == nil {
			r.Secrets[name] = &Secret{}
		}
		r.Secrets[name].Name = name
	}

	if r.Output != nil {
		for _, ref := range r.Output.credentials() {
			ref.value = r.Secrets[ref.Name]
		}
	}

	return r.validate()
}

func (r *Root) validate() error {
	for _, pattern := range r.ExcludedFiles {
		if _, err := glob.Compile(pattern, '/'); err != nil {
			return fmt.Errorf("failed to compile excluded file pattern %q: %w", pattern, err)
		}
	}

	if r.Output != nil {
		return r.Output.validate()
	}

	return nil
}

// ResolvePath resolves a copy_from path against the configured directory.
func (r *Root) ResolvePath(p string) string {
	if r == nil || r.Directory == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(r.Directory, p)
}

// Validate checks the raw configuration document against the JSON schema.
func Validate(data []byte) error {
	var config any
	if err := yaml.Unmarshal(data, &config); err != nil {
		return err
	}

	return rootSchema.Validate(normalize(config))
}

// normalize replaces values the schema validator cannot handle (binary
// scalars) with their base64 text.
func normalize(v any) any {
	switch v := v.(type) {
	case []byte:
		return base64.StdEncoding.EncodeToString(v)
	case map[string]any:
		for k, x := range v {
			v[k] = normalize(x)
		}
	case []any:
		for i, x := range v {
			v[i] = normalize(x)
		}
	}
	return v
}

// ParseFile reads a configuration file. Unless the file sets a directory,
// relative copy_from paths are resolved against the directory of the file.
func ParseFile(filename string) (*Root, error) {
	bs, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", filename, err)
	}

	root, err := Parse(bs)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filename, err)
	}

	base := filepath.Dir(filename)
	switch {
	case root.Directory == "":
		root.Directory = base
	case !filepath.IsAbs(root.Directory):
		root.Directory = filepath.Join(base, root.Directory)
	}

	return root, nil
}

// ParseFiles parses one configuration file, or merges several (and the
// files found in directories) in the given order before parsing them.
func ParseFiles(files []string, conflictError bool) (*Root, error) {
	if len(files) == 1 {
		if fi, err := os.Stat(files[0]); err == nil && !fi.IsDir() {
			return ParseFile(files[0])
		}
	}

	bs, err := Merge(files, conflictError)
	if err != nil {
		return nil, err
	}

	root, err := Parse(bs)
	if err != nil {
		return nil, err
	}

	// Relative paths of a merged configuration resolve against the
	// location of the first file.
	if root.Directory == "" && len(files) > 0 {
		root.Directory = files[0]
		if fi, err := os.Stat(files[0]); err == nil && !fi.IsDir() {
			root.Directory = filepath.Dir(files[0])
		}
	}

	return root, nil
}

func Parse(bs []byte) (*Root, error) {
	if err := Validate(bs); err != nil {
		return nil, err
	}

	var root Root
	if err := yaml.Unmarshal(bs, &root); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &root, nil
}

// ObjectStorage selects where frozen files are written. Exactly one of the
// fields must be set.
type ObjectStorage struct {
	AmazonS3          *AmazonS3          `json:"aws,omitempty"`
	GCPCloudStorage   *GCPCloudStorage   `json:"gcp,omitempty"`
	AzureBlobStorage  *AzureBlobStorage  `json:"azure,omitempty"`
	FileSystemStorage *FileSystemStorage `json:"filesystem,omitempty"`

	_ struct{} `additionalProperties:"false"`
}

// Name is the kind of the configured target, used in logs and metrics.
func (o *ObjectStorage) Name() string {
	switch {
	case o == nil:
		return ""
	case o.AmazonS3 != nil:
		return "aws"
	case o.GCPCloudStorage != nil:
		return "gcp"
	case o.AzureBlobStorage != nil:
		return "azure"
	case o.FileSystemStorage != nil:
		return "filesystem"
	}
	return ""
}

func (o *ObjectStorage) credentials() []*SecretRef {
	var refs []*SecretRef
	if o.AmazonS3 != nil && o.AmazonS3.Credentials != nil {
		refs = append(refs, o.AmazonS3.Credentials)
	}
	if o.GCPCloudStorage != nil && o.GCPCloudStorage.Credentials != nil {
		refs = append(refs, o.GCPCloudStorage.Credentials)
	}
	if o.AzureBlobStorage != nil && o.AzureBlobStorage.Credentials != nil {
		refs = append(refs, o.AzureBlobStorage.Credentials)
	}
	return refs
}

func (o *ObjectStorage) validate() error {
	n := 0
	for _, set := range []bool{o.AmazonS3 != nil, o.GCPCloudStorage != nil, o.AzureBlobStorage != nil, o.FileSystemStorage != nil} {
		if set {
			n++
		}
	}
	if n != 1 {
		return errors.New("output must configure exactly one of aws, gcp, azure or filesystem")
	}

	return errors.Join(
		o.AmazonS3.validate(),
		o.GCPCloudStorage.validate(),
		o.AzureBlobStorage.validate(),
		o.FileSystemStorage.validate(),
	)
}

// AmazonS3 defines the configuration for an Amazon S3-compatible object storage.
type AmazonS3 struct {
	Bucket      string     `json:"bucket"`
	Prefix      string     `json:"prefix,omitempty"` // Key prefix for all frozen files.
	Region      string     `json:"region,omitempty"`
	Credentials *SecretRef `json:"credentials,omitempty"` // If nil, use default credentials chain: environment variables,
	// shared credentials file, ECS or EC2 instance role.
	URL string `json:"url,omitempty"` // S3-compatible endpoint, also used for tests.

	_ struct{} `additionalProperties:"false"`
}

// GCPCloudStorage defines the configuration for a Google Cloud Storage bucket.
type GCPCloudStorage struct {
	Project     string     `json:"project"`
	Bucket      string     `json:"bucket"`
	Prefix      string     `json:"prefix,omitempty"`
	Credentials *SecretRef `json:"credentials,omitempty"` // If nil, use default credentials chain: environment variables,
	// file created by gcloud auth application-default login, GCE/GKE metadata server.
	URL string `json:"url,omitempty"` // Storage endpoint override, for emulators.

	_ struct{} `additionalProperties:"false"`
}

// AzureBlobStorage defines the configuration for an Azure Blob Storage container.
type AzureBlobStorage struct {
	AccountURL  string     `json:"account_url"`
	Container   string     `json:"container"`
	Prefix      string     `json:"prefix,omitempty"`
	Credentials *SecretRef `json:"credentials,omitempty"` // If nil, use default credentials chain: environment variables,
	// managed identity, Azure CLI login.

	_ struct{} `additionalProperties:"false"`
}

// FileSystemStorage defines the configuration for a local output directory.
type FileSystemStorage struct {
	Path string `json:"path"`

	_ struct{} `additionalProperties:"false"`
}

func (a *AmazonS3) validate() error {
	if a == nil {
		return nil
	}

	if a.Bucket == "" {
		return errors.New("amazon s3 bucket is required")
	}

	if a.Region == "" {
		return errors.New("amazon s3 region is required")
	}

	return nil
}

func (g *GCPCloudStorage) validate() error {
	if g == nil {
		return nil
	}

	if g.Project == "" {
		return errors.New("gcp cloud storage project is required")
	}

	if g.Bucket == "" {
		return errors.New("gcp cloud storage bucket is required")
	}

	return nil
}

func (a *AzureBlobStorage) validate() error {
	if a == nil {
		return nil
	}

	if a.AccountURL == "" {
		return errors.New("azure blob storage account URL is required")
	}

	if a.Container == "" {
		return errors.New("azure blob storage container is required")
	}

	return nil
}

func (f *FileSystemStorage) validate() error {
	if f == nil {
		return nil
	}

	if f.Path == "" {
		return errors.New("filesystem storage path is required")
	}

	return nil
}

type StringSet []string

func (a StringSet) Equal(b StringSet) bool {
	a, b = slices.Clone(a), slices.Clone(b)
	sort.Strings(a)
	sort.Strings(b)
	return slices.Equal(slices.Compact(a), slices.Compact(b))
}

func (a StringSet) Add(value string) StringSet {
	i := sort.Search(len(a), func(i int) bool { return a[i] >= value })
	if i < len(a) && a[i] == value {
		return a
	}

	return slices.Insert(a, i, value)
}
