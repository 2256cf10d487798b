package blob

import (
	"context"
	"fmt"
	"log/slog"

	"cloud.google.com/go/storage"
)

// GCSUploader stores objects in a Google Cloud Storage bucket.
type GCSUploader struct {
	client *storage.Client
	bucket string
	logger *slog.Logger
}

// NewGCSUploader creates a client using application default credentials.
func NewGCSUploader(ctx context.Context, bucket string, logger *slog.Logger) (*GCSUploader, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if bucket == "" {
		return nil, fmt.Errorf("gcs uploader: bucket is required")
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	return &GCSUploader{client: client, bucket: bucket, logger: logger}, nil
}

// Upload writes data to a new object and returns its gs:// URI.
func (u *GCSUploader) Upload(ctx context.Context, data []byte, mimeType string) (Ref, error) {
	if len(data) == 0 {
		return Ref{}, ErrEmptyObject
	}
	name := ObjectName(mimeType)

	w := u.client.Bucket(u.bucket).Object(name).NewWriter(ctx)
	w.ContentType = mimeType
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return Ref{}, fmt.Errorf("write gs://%s/%s: %w", u.bucket, name, err)
	}
	if err := w.Close(); err != nil {
		return Ref{}, fmt.Errorf("finalize gs://%s/%s: %w", u.bucket, name, err)
	}

	uri := fmt.Sprintf("gs://%s/%s", u.bucket, name)
	u.logger.Info("Uploaded image", "uri", uri, "mime_type", mimeType, "bytes", len(data))
	return Ref{URI: uri, MIMEType: mimeType}, nil
}

// Close releases the storage client.
func (u *GCSUploader) Close() error {
	return u.client.Close()
}
