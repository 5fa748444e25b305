package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
)

// AzureBlobAPI is the subset of the Azure Blob client used by AzureSink.
type AzureBlobAPI interface {
	// UploadBlob uploads data to a blob, overwriting it if it exists.
	UploadBlob(ctx context.Context, containerName, blobName string, data []byte) error
	DownloadBlob(ctx context.Context, containerName, blobName string) ([]byte, error)
	BlobExists(ctx context.Context, containerName, blobName string) (bool, error)
}

// AzureSink stores export documents in an Azure Blob Storage container.
type AzureSink struct {
	Container  string
	AccountURL string
	client     AzureBlobAPI
}

// NewAzureSink creates an AzureSink for container in the given storage
// account. AZURE_STORAGE_CONNECTION_STRING takes precedence over
// DefaultAzureCredential.
func NewAzureSink(ctx context.Context, account, container string) (*AzureSink, error) {
	accountURL := fmt.Sprintf("https://%s.blob.core.windows.net/", account)
	client, err := newRealAzureClient(accountURL, azureConnectionString())
	if err != nil {
		return nil, fmt.Errorf("creating Azure client: %w", err)
	}

	s := NewAzureSinkWithClient(container, accountURL, client)
	if err := s.HealthCheck(ctx); err != nil {
		return nil, fmt.Errorf("cannot access Azure container %q: %w", container, err)
	}

	slog.Info("Azure export sink initialized", "account", account, "container", container)
	return s, nil
}

// NewAzureSinkWithClient creates an AzureSink with a pre-configured client.
func NewAzureSinkWithClient(container, accountURL string, client AzureBlobAPI) *AzureSink {
	return &AzureSink{Container: container, AccountURL: accountURL, client: client}
}

// Put uploads r to key in a single request.
func (s *AzureSink) Put(ctx context.Context, key string, r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("reading export data: %w", err)
	}
	if err := s.client.UploadBlob(ctx, s.Container, key, data); err != nil {
		return fmt.Errorf("putting export to Azure Blob: %w", err)
	}
	return nil
}

// Get downloads key.
func (s *AzureSink) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	data, err := s.client.DownloadBlob(ctx, s.Container, key)
	if err != nil {
		if isAzureNotFound(err) {
			return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, s.Container, key)
		}
		return nil, fmt.Errorf("getting export from Azure Blob: %w", err)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// HealthCheck probes a blob that never exists; only access errors fail.
func (s *AzureSink) HealthCheck(ctx context.Context) error {
	_, err := s.client.BlobExists(ctx, s.Container, "\x00healthcheck\x00")
	return err
}

// isAzureNotFound reports whether err means the blob is missing. A missing
// container is not treated as not found.
func isAzureNotFound(err error) bool {
	if err == nil {
		return false
	}
	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) {
		if respErr.ErrorCode == "ContainerNotFound" {
			return false
		}
		return respErr.StatusCode == 404 || respErr.ErrorCode == "BlobNotFound"
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "blobnotfound") || strings.Contains(msg, "the specified blob does not exist")
}

var _ Sink = (*AzureSink)(nil)
