package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	loggstorage "github.com/jittakal/logaggregator/pkg/storage"
)

var _ loggstorage.Filesystem = (*S3Filesystem)(nil)

// S3Config contains AWS S3 configuration.
type S3Config struct {
	Bucket string
	Region string
	Endpoint string
	UsePathStyle bool
	SSEEnabled bool
	SSEKMSKeyID string
}

// S3Filesystem implements storage.Filesystem over an S3 bucket: the
// "hdfs-like" remote_backend=s3 realization of fs_type.
// Modeled on S3Writer — same client/uploader
// construction and SSE handling, generalized from "encode a batch to a
// temp file, upload once" to "hand back a WriteCloser that uploads on
// Close", matching FileStoreBase's open-once-write-many lifecycle.
type S3Filesystem struct {
	client *s3.Client
	uploader *manager.Uploader
	bucket string
	sseEnabled bool
	sseKMSKeyID string
	logger *slog.Logger
}

// NewS3Filesystem creates a new S3-backed Filesystem.
func NewS3Filesystem(ctx context.Context, cfg S3Config, logger *slog.Logger) (*S3Filesystem, error) {
	awsConfig, err := config.LoadDefaultConfig(ctx, config.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsConfig, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	uploader := manager.NewUploader(client, func(u *manager.Uploader) {
		u.PartSize = 10 * 1024 * 1024
		u.Concurrency = 5
	})

	logger.Info("s3 filesystem created", "bucket", cfg.Bucket, "region", cfg.Region, "sse_enabled", cfg.SSEEnabled)

	return &S3Filesystem{
		client: client,
		uploader: uploader,
		bucket: cfg.Bucket,
		sseEnabled: cfg.SSEEnabled,
		sseKMSKeyID: cfg.SSEKMSKeyID,
		logger: logger,
	}, nil
}

func (fs *S3Filesystem) key(p string) string {
	return strings.TrimPrefix(p, "/")
}

// s3WriteCloser buffers locally and uploads the whole object on Close,
// since S3 has no append semantics matching FileStoreBase's write path.
type s3WriteCloser struct {
	fs *S3Filesystem
	key string
	tmp *os.File
}

func (w *s3WriteCloser) Write(p []byte) (int, error) { return w.tmp.Write(p) }

func (w *s3WriteCloser) Close() error {
	defer os.Remove(w.tmp.Name())
	if _, err := w.tmp.Seek(0, io.SeekStart); err != nil {
		w.tmp.Close()
		return err
	}
	defer w.tmp.Close()

	input := &s3.PutObjectInput{
		Bucket: aws.String(w.fs.bucket),
		Key: aws.String(w.key),
		Body: w.tmp,
	}
	if w.fs.sseEnabled {
		if w.fs.sseKMSKeyID != "" {
			input.ServerSideEncryption = types.ServerSideEncryptionAwsKms
			input.SSEKMSKeyId = aws.String(w.fs.sseKMSKeyID)
		} else {
			input.ServerSideEncryption = types.ServerSideEncryptionAes256
		}
	}

	_, err := w.fs.uploader.Upload(context.Background(), input)
	if err != nil {
		return fmt.Errorf("s3 upload %s: %w", w.key, err)
	}
	w.fs.logger.Info("uploaded rotation file to s3", "bucket", w.fs.bucket, "key", w.key)
	return nil
}

// Create returns a WriteCloser that buffers to a local temp file and
// uploads to S3 on Close.
func (fs *S3Filesystem) Create(p string) (io.WriteCloser, error) {
	tmp, err := os.CreateTemp("", "logaggd-s3-*")
	if err != nil {
		return nil, fmt.Errorf("s3 filesystem: temp file: %w", err)
	}
	return &s3WriteCloser{fs: fs, key: fs.key(p), tmp: tmp}, nil
}

func (fs *S3Filesystem) Open(p string) (io.ReadCloser, error) {
	out, err := fs.client.GetObject(context.Background(), &s3.GetObjectInput{
		Bucket: aws.String(fs.bucket),
		Key: aws.String(fs.key(p)),
	})
	if err != nil {
		return nil, fmt.Errorf("s3 get %s: %w", p, err)
	}
	return out.Body, nil
}

func (fs *S3Filesystem) Remove(p string) error {
	_, err := fs.client.DeleteObject(context.Background(), &s3.DeleteObjectInput{
		Bucket: aws.String(fs.bucket),
		Key: aws.String(fs.key(p)),
	})
	if err != nil {
		return fmt.Errorf("s3 delete %s: %w", p, err)
	}
	return nil
}

func (fs *S3Filesystem) ReadDir(dir string) ([]string, error) {
	prefix := fs.key(dir)
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	var names []string
	paginator := s3.NewListObjectsV2Paginator(fs.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(fs.bucket),
		Prefix: aws.String(prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(context.Background())
		if err != nil {
			return nil, fmt.Errorf("s3 list %s: %w", dir, err)
		}
		for _, obj := range page.Contents {
			names = append(names, path.Base(aws.ToString(obj.Key)))
		}
	}
	return names, nil
}

// Symlink writes a small pointer object at link containing target's
// key, since S3 has no native symlink, per storage.Filesystem's
// contract for backends that cannot support real symlinks.
func (fs *S3Filesystem) Symlink(target, link string) error {
	_, err := fs.client.PutObject(context.Background(), &s3.PutObjectInput{
		Bucket: aws.String(fs.bucket),
		Key: aws.String(fs.key(link)),
		Body: bytes.NewReader([]byte(fs.key(target))),
	})
	if err != nil {
		return fmt.Errorf("s3 symlink %s -> %s: %w", link, target, err)
	}
	return nil
}
