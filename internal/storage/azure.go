package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"

	loggstorage "github.com/jittakal/logaggregator/pkg/storage"
)

var _ loggstorage.Filesystem = (*AzureFilesystem)(nil)

// AzureConfig contains Azure Blob Storage configuration.
type AzureConfig struct {
	AccountName string
	AccountKey string
	ContainerName string
	Endpoint string
}

// AzureFilesystem implements storage.Filesystem over an Azure Blob
// container: the remote_backend=azure realization of fs_type
//. Modeled on AzureWriter for client
// construction (connection-string auth), generalized to
// storage.Filesystem's Create/Open/Remove/ReadDir/Symlink surface.
type AzureFilesystem struct {
	client *azblob.Client
	containerName string
	logger *slog.Logger
}

// NewAzureFilesystem creates a new Azure-backed Filesystem.
func NewAzureFilesystem(cfg AzureConfig, logger *slog.Logger) (*AzureFilesystem, error) {
	var connectionString string
	if cfg.Endpoint != "" {
		connectionString = fmt.Sprintf("DefaultEndpointsProtocol=https;AccountName=%s;AccountKey=%s;BlobEndpoint=%s",
			cfg.AccountName, cfg.AccountKey, cfg.Endpoint)
	} else {
		connectionString = fmt.Sprintf("DefaultEndpointsProtocol=https;AccountName=%s;AccountKey=%s;EndpointSuffix=core.windows.net",
			cfg.AccountName, cfg.AccountKey)
	}

	client, err := azblob.NewClientFromConnectionString(connectionString, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create Azure client: %w", err)
	}

	logger.Info("azure filesystem created", "container", cfg.ContainerName, "account", cfg.AccountName)

	return &AzureFilesystem{
		client: client,
		containerName: cfg.ContainerName,
		logger: logger,
	}, nil
}

func (fs *AzureFilesystem) blobName(p string) string {
	return strings.TrimPrefix(p, "/")
}

type azureWriteCloser struct {
	fs *AzureFilesystem
	blob string
	tmp *os.File
}

func (w *azureWriteCloser) Write(p []byte) (int, error) { return w.tmp.Write(p) }

func (w *azureWriteCloser) Close() error {
	defer os.Remove(w.tmp.Name())
	if _, err := w.tmp.Seek(0, io.SeekStart); err != nil {
		w.tmp.Close()
		return err
	}
	defer w.tmp.Close()

	_, err := w.fs.client.UploadFile(context.Background(), w.fs.containerName, w.blob, w.tmp, nil)
	if err != nil {
		return fmt.Errorf("azure upload %s: %w", w.blob, err)
	}
	w.fs.logger.Info("uploaded rotation file to azure", "container", w.fs.containerName, "blob", w.blob)
	return nil
}

// Create returns a WriteCloser that buffers to a local temp file and
// uploads to Azure Blob on Close.
func (fs *AzureFilesystem) Create(p string) (io.WriteCloser, error) {
	tmp, err := os.CreateTemp("", "logaggd-azure-*")
	if err != nil {
		return nil, fmt.Errorf("azure filesystem: temp file: %w", err)
	}
	return &azureWriteCloser{fs: fs, blob: fs.blobName(p), tmp: tmp}, nil
}

func (fs *AzureFilesystem) Open(p string) (io.ReadCloser, error) {
	resp, err := fs.client.DownloadStream(context.Background(), fs.containerName, fs.blobName(p), nil)
	if err != nil {
		return nil, fmt.Errorf("azure download %s: %w", p, err)
	}
	return resp.Body, nil
}

func (fs *AzureFilesystem) Remove(p string) error {
	_, err := fs.client.DeleteBlob(context.Background(), fs.containerName, fs.blobName(p), nil)
	if err != nil {
		return fmt.Errorf("azure delete %s: %w", p, err)
	}
	return nil
}

func (fs *AzureFilesystem) ReadDir(dir string) ([]string, error) {
	prefix := fs.blobName(dir)
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	var names []string
	pager := fs.client.NewListBlobsFlatPager(fs.containerName, &azblob.ListBlobsFlatOptions{Prefix: &prefix})
	for pager.More() {
		page, err := pager.NextPage(context.Background())
		if err != nil {
			return nil, fmt.Errorf("azure list %s: %w", dir, err)
		}
		for _, item := range page.Segment.BlobItems {
			if item.Name != nil {
				names = append(names, path.Base(*item.Name))
			}
		}
	}
	return names, nil
}

// Symlink writes a small pointer blob at link containing target's blob
// name, since Azure Blob has no native symlink.
func (fs *AzureFilesystem) Symlink(target, link string) error {
	_, err := fs.client.UploadBuffer(context.Background(), fs.containerName, fs.blobName(link),
		[]byte(fs.blobName(target)), nil)
	if err != nil {
		return fmt.Errorf("azure symlink %s -> %s: %w", link, target, err)
	}
	return nil
}
