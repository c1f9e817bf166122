package gcsuploader

import (
	"context"
	"io"
)

// StorageService provides an interface for cloud storage operations.
// This interface enables mocking and testing of storage functionality.
type StorageService interface {
	// Upload writes the contents of r to the given storage URI.
	Upload(ctx context.Context, gcsURI string, r io.Reader) error

	// Fetch downloads object bytes from the given storage URI.
	Fetch(ctx context.Context, gcsURI string) ([]byte, error)
}

var _ StorageService = (*Client)(nil)
