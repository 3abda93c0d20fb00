// Package archive mirrors notice artifacts to Google Cloud Storage. The
// mirror is best-effort: the local store stays authoritative and upload
// failures never fail an entry.
package archive

import (
	"context"
	"fmt"
	"path"
	"strings"

	"cloud.google.com/go/storage"
)

// GCS implements notices.ArtifactStore against a bucket. Put returns the
// gs:// URI of the uploaded object.
type GCS struct {
	client *storage.Client
	bucket string
	prefix string
}

// NewGCS creates the mirror.
func NewGCS(client *storage.Client, bucket, prefix string) (*GCS, error) {
	if client == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	if bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	return &GCS{client: client, bucket: bucket, prefix: prefix}, nil
}

// Put uploads data under the configured prefix.
func (g *GCS) Put(ctx context.Context, relPath string, contentType string, data []byte) (string, error) {
	if strings.TrimSpace(relPath) == "" {
		return "", fmt.Errorf("artifact path is required")
	}
	object := objectPath(g.prefix, relPath)
	w := g.client.Bucket(g.bucket).Object(object).NewWriter(ctx)
	if contentType != "" {
		w.ContentType = contentType
	}
	if _, err := w.Write(data); err != nil {
		closeErr := w.Close()
		if closeErr != nil {
			return "", fmt.Errorf("upload object: %w (close writer: %v)", err, closeErr)
		}
		return "", fmt.Errorf("upload object: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("close writer: %w", err)
	}
	return fmt.Sprintf("gs://%s/%s", g.bucket, object), nil
}

func objectPath(prefix, relPath string) string {
	return path.Join(prefix, relPath)
}
