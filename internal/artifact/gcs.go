package artifact

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"

	"cloud.google.com/go/storage"
)

// GCSMirror replicates artifacts to a Google Cloud Storage bucket.
type GCSMirror struct {
	client *storage.Client
	bucket string
	prefix string
}

// NewGCSMirror builds a mirror writing under bucket/prefix.
func NewGCSMirror(client *storage.Client, bucket, prefix string) (*GCSMirror, error) {
	if client == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	if bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	return &GCSMirror{client: client, bucket: bucket, prefix: prefix}, nil
}

// Put uploads one artifact.
func (m *GCSMirror) Put(ctx context.Context, name, contentType string, data []byte) error {
	object := name
	if m.prefix != "" {
		object = path.Join(m.prefix, name)
	}
	writer := m.client.Bucket(m.bucket).Object(object).NewWriter(ctx)
	if contentType != "" {
		writer.ContentType = contentType
	}
	if _, err := io.Copy(writer, bytes.NewReader(data)); err != nil {
		if closeErr := writer.Close(); closeErr != nil {
			return fmt.Errorf("copy object: %w (close writer: %v)", err, closeErr)
		}
		return fmt.Errorf("copy object: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("close writer: %w", err)
	}
	return nil
}
