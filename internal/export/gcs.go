package export

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/storage"
)

// defaultWriteTimeout bounds a single object upload.
const defaultWriteTimeout = 2 * time.Minute

// GCSWriter writes objects into one Cloud Storage bucket.
type GCSWriter struct {
	client  *storage.Client
	bucket  string
	timeout time.Duration
}

// NewGCSWriter creates a storage client for the given bucket. Credentials
// come from the environment (Application Default Credentials).
func NewGCSWriter(ctx context.Context, bucket string) (*GCSWriter, error) {
	if bucket == "" {
		return nil, fmt.Errorf("NewGCSWriter: bucket is required")
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("NewGCSWriter: creating storage client: %w", err)
	}
	return &GCSWriter{client: client, bucket: bucket, timeout: defaultWriteTimeout}, nil
}

// WriteObject uploads data under the given object name, replacing any
// existing object. Each write carries its own timeout.
func (w *GCSWriter) WriteObject(ctx context.Context, name string, data []byte) error {
	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	obj := w.client.Bucket(w.bucket).Object(name).NewWriter(ctx)
	obj.ContentType = "application/json"
	if _, err := obj.Write(data); err != nil {
		obj.Close()
		return fmt.Errorf("WriteObject: writing gs://%s/%s: %w", w.bucket, name, err)
	}
	if err := obj.Close(); err != nil {
		return fmt.Errorf("WriteObject: finalizing gs://%s/%s: %w", w.bucket, name, err)
	}
	return nil
}

// Close releases the underlying storage client.
func (w *GCSWriter) Close() error {
	return w.client.Close()
}

var _ ObjectWriter = (*GCSWriter)(nil)
