// Package s3 writes frozen files to the configured output: a local
// directory or an object storage bucket.
package s3

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"mime"
	"os"
	"path"
	"path/filepath"

	"cloud.google.com/go/storage"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"google.golang.org/api/option"

	"github.com/freezeyt/freezeyt/internal/config"
)

// ErrNotFound is returned by Get when the key does not exist.
var ErrNotFound = errors.New("object not found")

// ObjectStorage stores frozen files by their slash-separated key.
type ObjectStorage interface {
	Put(ctx context.Context, key string, r io.Reader) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
}

var (
	_ ObjectStorage = (*AmazonS3)(nil)
	_ ObjectStorage = (*GCPCloudStorage)(nil)
	_ ObjectStorage = (*AzureBlobStorage)(nil)
	_ ObjectStorage = (*FileSystem)(nil)
)

func New(ctx context.Context, cfg config.ObjectStorage) (ObjectStorage, error) {
	switch {
	case cfg.AmazonS3 != nil:
		return newAmazonS3(ctx, cfg.AmazonS3)
	case cfg.GCPCloudStorage != nil:
		return newGCPCloudStorage(ctx, cfg.GCPCloudStorage)
	case cfg.AzureBlobStorage != nil:
		return newAzureBlobStorage(ctx, cfg.AzureBlobStorage)
	case cfg.FileSystemStorage != nil:
		return NewFileSystem(cfg.FileSystemStorage.Path), nil
	}
	return nil, errors.New("no output configured")
}

func contentType(key string) string {
	if ct := mime.TypeByExtension(path.Ext(key)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

type AmazonS3 struct {
	client   *s3.Client
	uploader *manager.Uploader
	bucket   string
	prefix   string
}

func newAmazonS3(ctx context.Context, c *config.AmazonS3) (*AmazonS3, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(c.Region)}

	if c.Credentials != nil {
		value, err := c.Credentials.Resolve(ctx)
		if err != nil {
			return nil, err
		}

		creds, ok := value.(config.SecretAWS)
		if !ok {
			return nil, fmt.Errorf("unsupported secret type '%T' for amazon s3 credentials", value)
		}

		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(creds.AccessKeyID, creds.SecretAccessKey, creds.SessionToken)))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if c.URL != "" {
			o.BaseEndpoint = aws.String(c.URL)
			o.UsePathStyle = true
			o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
			o.ResponseChecksumValidation = aws.ResponseChecksumValidationWhenRequired
		}
	})

	return &AmazonS3{
		client:   client,
		uploader: manager.NewUploader(client),
		bucket:   c.Bucket,
		prefix:   c.Prefix,
	}, nil
}

func (s *AmazonS3) key(key string) string {
	return path.Join(s.prefix, key)
}

// Put uploads the object with its sha256 in the object metadata.
func (s *AmazonS3) Put(ctx context.Context, key string, r io.Reader) error {
	bs, err := io.ReadAll(r)
	if err != nil {
		return err
	}

	hash := sha256.Sum256(bs)

	_, err = s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.key(key)),
		Body:        bytes.NewReader(bs),
		ContentType: aws.String(contentType(key)),
		Metadata:    map[string]string{"sha256": hex.EncodeToString(hash[:])},
	})
	if err != nil {
		return fmt.Errorf("failed to upload %s to s3://%s: %w", key, s.bucket, err)
	}

	return nil
}

func (s *AmazonS3) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	output, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(key)),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, fmt.Errorf("%s: %w", key, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to download %s from s3://%s: %w", key, s.bucket, err)
	}

	return output.Body, nil
}

type GCPCloudStorage struct {
	client *storage.Client
	bucket string
	prefix string
}

func newGCPCloudStorage(ctx context.Context, c *config.GCPCloudStorage) (*GCPCloudStorage, error) {
	var opts []option.ClientOption

	if c.Credentials != nil {
		value, err := c.Credentials.Resolve(ctx)
		if err != nil {
			return nil, err
		}

		creds, ok := value.(config.SecretGCP)
		if !ok {
			return nil, fmt.Errorf("unsupported secret type '%T' for gcp cloud storage credentials", value)
		}

		if creds.APIKey != "" {
			opts = append(opts, option.WithAPIKey(creds.APIKey))
		} else {
			opts = append(opts, option.WithCredentialsJSON([]byte(creds.Credentials)))
		}
	}

	if c.URL != "" {
		opts = append(opts, option.WithEndpoint(c.URL))
		if c.Credentials == nil {
			opts = append(opts, option.WithoutAuthentication())
		}
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create gcp cloud storage client for project %s: %w", c.Project, err)
	}

	return &GCPCloudStorage{client: client, bucket: c.Bucket, prefix: c.Prefix}, nil
}

func (s *GCPCloudStorage) Put(ctx context.Context, key string, r io.Reader) error {
	w := s.client.Bucket(s.bucket).Object(path.Join(s.prefix, key)).NewWriter(ctx)
	w.ContentType = contentType(key)

	if _, err := io.Copy(w, r); err != nil {
		w.Close()
		return fmt.Errorf("failed to upload %s to gs://%s: %w", key, s.bucket, err)
	}

	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to upload %s to gs://%s: %w", key, s.bucket, err)
	}

	return nil
}

func (s *GCPCloudStorage) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	r, err := s.client.Bucket(s.bucket).Object(path.Join(s.prefix, key)).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, fmt.Errorf("%s: %w", key, ErrNotFound)
	} else if err != nil {
		return nil, fmt.Errorf("failed to download %s from gs://%s: %w", key, s.bucket, err)
	}
	return r, nil
}

type AzureBlobStorage struct {
	client    *azblob.Client
	container string
	prefix    string
}

func newAzureBlobStorage(ctx context.Context, c *config.AzureBlobStorage) (*AzureBlobStorage, error) {
	var client *azblob.Client

	if c.Credentials != nil {
		value, err := c.Credentials.Resolve(ctx)
		if err != nil {
			return nil, err
		}

		creds, ok := value.(config.SecretAzure)
		if !ok {
			return nil, fmt.Errorf("unsupported secret type '%T' for azure blob storage credentials", value)
		}

		cred, err := azblob.NewSharedKeyCredential(creds.AccountName, creds.AccountKey)
		if err != nil {
			return nil, fmt.Errorf("invalid azure shared key: %w", err)
		}

		client, err = azblob.NewClientWithSharedKeyCredential(c.AccountURL, cred, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create azure blob client: %w", err)
		}
	} else {
		cred, err := azidentity.NewDefaultAzureCredential(nil)
		if err != nil {
			return nil, fmt.Errorf("failed to load azure credentials: %w", err)
		}

		client, err = azblob.NewClient(c.AccountURL, cred, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create azure blob client: %w", err)
		}
	}

	return &AzureBlobStorage{client: client, container: c.Container, prefix: c.Prefix}, nil
}

func (s *AzureBlobStorage) Put(ctx context.Context, key string, r io.Reader) error {
	ct := contentType(key)
	_, err := s.client.UploadStream(ctx, s.container, path.Join(s.prefix, key), r, &azblob.UploadStreamOptions{
		HTTPHeaders: &blob.HTTPHeaders{BlobContentType: &ct},
	})
	if err != nil {
		return fmt.Errorf("failed to upload %s to azure container %s: %w", key, s.container, err)
	}
	return nil
}

func (s *AzureBlobStorage) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	resp, err := s.client.DownloadStream(ctx, s.container, path.Join(s.prefix, key), nil)
	if bloberror.HasCode(err, bloberror.BlobNotFound) {
		return nil, fmt.Errorf("%s: %w", key, ErrNotFound)
	} else if err != nil {
		return nil, fmt.Errorf("failed to download %s from azure container %s: %w", key, s.container, err)
	}
	return resp.Body, nil
}

// FileSystem writes files below a local directory. Each file is written
// to a temporary file first and renamed into place.
type FileSystem struct {
	root string
}

func NewFileSystem(root string) *FileSystem {
	return &FileSystem{root: root}
}

func (s *FileSystem) filename(key string) (string, error) {
	if !fs.ValidPath(key) || key == "." {
		return "", fmt.Errorf("invalid key %q", key)
	}
	return filepath.Join(s.root, filepath.FromSlash(key)), nil
}

func (s *FileSystem) Put(_ context.Context, key string, r io.Reader) error {
	p, err := s.filename(key)
	if err != nil {
		return err
	}

	dir := filepath.Dir(p)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	f, err := os.CreateTemp(dir, ".freezeyt-*")
	if err != nil {
		return err
	}

	if err := writeFile(f, r); err != nil {
		os.Remove(f.Name())
		return fmt.Errorf("failed to write %s: %w", p, err)
	}

	if err := os.Rename(f.Name(), p); err != nil {
		os.Remove(f.Name())
		return err
	}

	return nil
}

func writeFile(f *os.File, r io.Reader) error {
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return err
	}
	if err := f.Chmod(0o644); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func (s *FileSystem) Get(_ context.Context, key string) (io.ReadCloser, error) {
	p, err := s.filename(key)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", key, ErrNotFound)
	} else if err != nil {
		return nil, err
	}
	return f, nil
}
