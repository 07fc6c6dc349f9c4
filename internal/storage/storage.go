// Package storage abstracts where generated artifacts live. The worker only
// needs "put bytes at a path, get back a public URL"; production uses an
// S3-compatible object store, development falls back to the local
// filesystem.
package storage

import "context"

// Store persists artifact bytes and returns a publicly retrievable URL.
type Store interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
}
