// Package blobstore persists receipt images and hands back a stable URI that
// is recorded on the transaction.
package blobstore

import "context"

// Store saves and retrieves receipt image blobs.
type Store interface {
	// Put writes the blob under objectName and returns its URI.
	Put(ctx context.Context, objectName string, contentType string, data []byte) (string, error)
	// Fetch downloads the blob bytes for the given URI.
	Fetch(ctx context.Context, uri string) ([]byte, error)
}
