// Package gcsuploader moves event dumps in and out of Google Cloud Storage.
package gcsuploader

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"cloud.google.com/go/storage"
)

// uploadTimeout bounds a single object write.
const uploadTimeout = 2 * time.Minute

// Client is the concrete StorageService backed by a shared storage client.
// It assumes Application Default Credentials are configured.
type Client struct {
	client *storage.Client
}

// NewClient creates a Client. Call Close when done.
func NewClient(ctx context.Context) (*Client, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("NewClient: create storage client: %w", err)
	}
	return &Client{client: client}, nil
}

// Close closes the storage client connection.
func (c *Client) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

// Upload writes r to the object named by gcsURI.
func (c *Client) Upload(ctx context.Context, gcsURI string, r io.Reader) error {
	bucket, object, err := ParseURI(gcsURI)
	if err != nil {
		return fmt.Errorf("Upload: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, uploadTimeout)
	defer cancel()

	w := c.client.Bucket(bucket).Object(object).NewWriter(ctx)
	w.ContentType = dumpContentType
	if _, err := io.Copy(w, r); err != nil {
		_ = w.Close()
		return fmt.Errorf("Upload: copy to %s: %w", gcsURI, err)
	}
	// Close finalizes the upload.
	if err := w.Close(); err != nil {
		return fmt.Errorf("Upload: finalize %s: %w", gcsURI, err)
	}
	return nil
}

// Fetch downloads the object bytes at gcsURI.
func (c *Client) Fetch(ctx context.Context, gcsURI string) ([]byte, error) {
	bucket, object, err := ParseURI(gcsURI)
	if err != nil {
		return nil, fmt.Errorf("Fetch: %w", err)
	}

	rc, err := c.client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("Fetch: reading object %s/%s: %w", bucket, object, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("Fetch: reading bytes: %w", err)
	}
	return data, nil
}

// ParseURI splits "gs://bucket/path/to/object" into bucket and object path.
func ParseURI(gcsURI string) (bucket, object string, err error) {
	if !strings.HasPrefix(gcsURI, "gs://") {
		return "", "", fmt.Errorf("invalid GCS URI: %s", gcsURI)
	}

	bucket, object, ok := strings.Cut(strings.TrimPrefix(gcsURI, "gs://"), "/")
	if !ok || bucket == "" || object == "" {
		return "", "", fmt.Errorf("invalid GCS URI (no object path): %s", gcsURI)
	}
	return bucket, object, nil
}

// ExtractFilenameFromGCSURI extracts the filename from a GCS URI.
// e.g., "gs://bucket/folder/events.jsonl" → "events.jsonl"
func ExtractFilenameFromGCSURI(uri string) string {
	trimmed := strings.TrimPrefix(uri, "gs://")

	parts := strings.SplitN(trimmed, "/", 2)
	if len(parts) < 2 {
		return trimmed
	}
	return path.Base(parts[1])
}
