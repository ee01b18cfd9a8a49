package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	pkgstorage "github.com/jittakal/logaggregator/pkg/storage"
)

var _ pkgstorage.Filesystem = (*GCSFilesystem)(nil)

// GCSConfig contains Google Cloud Storage configuration.
type GCSConfig struct {
	Bucket string
	ProjectID string
	CredentialsFile string
	CredentialsJSON string
	Endpoint string
	UseDefaultCredential bool
}

// GCSFilesystem implements storage.Filesystem over a GCS bucket: the
// remote_backend=gcs realization of fs_type. Client/credential
// construction follows the same pattern as S3/Azure; unlike them,
// GCS's object writer streams directly, so Create needs no local
// temp-file buffer.
type GCSFilesystem struct {
	client *storage.Client
	bucket string
	logger *slog.Logger
}

// NewGCSFilesystem creates a new GCS-backed Filesystem.
func NewGCSFilesystem(ctx context.Context, cfg GCSConfig, logger *slog.Logger) (*GCSFilesystem, error) {
	var clientOpts []option.ClientOption
	if cfg.Endpoint != "" {
		clientOpts = append(clientOpts, option.WithEndpoint(cfg.Endpoint))
	}

	switch {
	case cfg.UseDefaultCredential:
		logger.Info("using default GCP credentials")
	case cfg.CredentialsJSON != "":
		clientOpts = append(clientOpts, option.WithCredentialsJSON([]byte(cfg.CredentialsJSON)))
		logger.Info("using GCP credentials from JSON string")
	case cfg.CredentialsFile != "":
		clientOpts = append(clientOpts, option.WithCredentialsFile(cfg.CredentialsFile))
		logger.Info("using GCP credentials from file", "file", cfg.CredentialsFile)
	default:
		logger.Info("no explicit credentials provided, using default GCP credentials")
	}

	client, err := storage.NewClient(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}

	logger.Info("gcs filesystem created", "bucket", cfg.Bucket, "project_id", cfg.ProjectID)

	return &GCSFilesystem{client: client, bucket: cfg.Bucket, logger: logger}, nil
}

func (fs *GCSFilesystem) objectName(p string) string {
	return strings.TrimPrefix(p, "/")
}

// Create returns the bucket object's native streaming writer; the
// upload finalizes on Close.
func (fs *GCSFilesystem) Create(p string) (io.WriteCloser, error) {
	obj := fs.client.Bucket(fs.bucket).Object(fs.objectName(p))
	w := obj.NewWriter(context.Background())
	w.ContentType = "application/octet-stream"
	return w, nil
}

func (fs *GCSFilesystem) Open(p string) (io.ReadCloser, error) {
	r, err := fs.client.Bucket(fs.bucket).Object(fs.objectName(p)).NewReader(context.Background())
	if err != nil {
		return nil, fmt.Errorf("gcs read %s: %w", p, err)
	}
	return r, nil
}

func (fs *GCSFilesystem) Remove(p string) error {
	err := fs.client.Bucket(fs.bucket).Object(fs.objectName(p)).Delete(context.Background())
	if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("gcs delete %s: %w", p, err)
	}
	return nil
}

func (fs *GCSFilesystem) ReadDir(dir string) ([]string, error) {
	prefix := fs.objectName(dir)
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	it := fs.client.Bucket(fs.bucket).Objects(context.Background(), &storage.Query{Prefix: prefix})
	var names []string
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("gcs list %s: %w", dir, err)
		}
		names = append(names, path.Base(attrs.Name))
	}
	return names, nil
}

// Symlink writes a small pointer object at link containing target's
// object name, since GCS has no native symlink.
func (fs *GCSFilesystem) Symlink(target, link string) error {
	w := fs.client.Bucket(fs.bucket).Object(fs.objectName(link)).NewWriter(context.Background())
	if _, err := io.WriteString(w, fs.objectName(target)); err != nil {
		w.Close()
		return fmt.Errorf("gcs symlink %s -> %s: %w", link, target, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("gcs symlink %s -> %s: %w", link, target, err)
	}
	return nil
}

// Close releases the underlying GCS client.
func (fs *GCSFilesystem) Close() error {
	return fs.client.Close()
}
