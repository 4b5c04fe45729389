// Package storage abstracts the object store that holds chat file
// attachments. Production uses an S3-compatible bucket; tests and local
// development use the in-memory implementation.
package storage

import "context"

// ObjectStore writes attachment bytes under a key and returns a URL that
// clients can fetch the object from.
type ObjectStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
}
