package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	gcs "cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
)

// GCSAPI is the subset of the Cloud Storage client used by GCSSink.
type GCSAPI interface {
	NewWriter(ctx context.Context, bucket, object string) io.WriteCloser
	NewReader(ctx context.Context, bucket, object string) (io.ReadCloser, error)
	// ListObjects lists object names with the given prefix.
	ListObjects(ctx context.Context, bucket, prefix string) ([]string, error)
}

type realGCSClient struct {
	client *gcs.Client
}

func (c *realGCSClient) NewWriter(ctx context.Context, bucket, object string) io.WriteCloser {
	w := c.client.Bucket(bucket).Object(object).NewWriter(ctx)
	w.ContentType = "application/json"
	return w
}

func (c *realGCSClient) NewReader(ctx context.Context, bucket, object string) (io.ReadCloser, error) {
	return c.client.Bucket(bucket).Object(object).NewReader(ctx)
}

func (c *realGCSClient) ListObjects(ctx context.Context, bucket, prefix string) ([]string, error) {
	it := c.client.Bucket(bucket).Objects(ctx, &gcs.Query{Prefix: prefix})
	var names []string
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, err
		}
		names = append(names, attrs.Name)
	}
	return names, nil
}

// GCSSink stores export documents in a Google Cloud Storage bucket.
// Credentials are resolved via Application Default Credentials.
type GCSSink struct {
	Bucket string
	client GCSAPI
}

// NewGCSSink creates a GCSSink for bucket and checks that it is accessible.
func NewGCSSink(ctx context.Context, bucket string) (*GCSSink, error) {
	client, err := gcs.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("creating GCS client: %w", err)
	}

	s := NewGCSSinkWithClient(bucket, &realGCSClient{client: client})
	if err := s.HealthCheck(ctx); err != nil {
		return nil, fmt.Errorf("cannot access GCS bucket %q: %w", bucket, err)
	}

	slog.Info("GCS export sink initialized", "bucket", bucket)
	return s, nil
}

// NewGCSSinkWithClient creates a GCSSink with a pre-configured client.
func NewGCSSinkWithClient(bucket string, client GCSAPI) *GCSSink {
	return &GCSSink{Bucket: bucket, client: client}
}

// Put streams r into key. The object only becomes visible once the writer
// is closed successfully.
func (s *GCSSink) Put(ctx context.Context, key string, r io.Reader) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	w := s.client.NewWriter(ctx, s.Bucket, key)
	if _, err := io.Copy(w, r); err != nil {
		// Cancelling before Close aborts the upload.
		cancel()
		w.Close()
		return fmt.Errorf("writing export to GCS: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finalizing export in GCS: %w", err)
	}
	return nil
}

// Get opens key for reading.
func (s *GCSSink) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	rc, err := s.client.NewReader(ctx, s.Bucket, key)
	if err != nil {
		if isGCSNotFound(err) {
			return nil, fmt.Errorf("%w: gs://%s/%s", ErrNotFound, s.Bucket, key)
		}
		return nil, fmt.Errorf("getting export from GCS: %w", err)
	}
	return rc, nil
}

// HealthCheck lists a prefix that never matches to verify bucket access.
func (s *GCSSink) HealthCheck(ctx context.Context) error {
	_, err := s.client.ListObjects(ctx, s.Bucket, "\x00healthcheck\x00")
	return err
}

func isGCSNotFound(err error) bool {
	return errors.Is(err, gcs.ErrObjectNotExist) || errors.Is(err, gcs.ErrBucketNotExist)
}

var _ Sink = (*GCSSink)(nil)
