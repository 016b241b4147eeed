// Package storage holds the object stores published datasets are written to.
package storage

import (
	"context"
	"errors"
	"path"
	"strings"
)

var (
	// ErrUnavailable wraps any transport or service failure of the store.
	ErrUnavailable = errors.New("object storage unavailable")
	ErrNotFound    = errors.New("object not found")
)

// ObjectStore is a flat key space of immutable objects. Put replaces an
// object atomically; readers never observe a partially written object.
type ObjectStore interface {
	Put(ctx context.Context, key string, body []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	// List returns every key under prefix, sorted.
	List(ctx context.Context, prefix string) ([]string, error)
	Delete(ctx context.Context, keys ...string) error
	// URI locates key for a query engine (a file path or an s3:// URL).
	URI(key string) string
}

// Key joins path segments into an object key with forward slashes.
func Key(parts ...string) string {
	cleaned := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.Trim(p, "/")
		if p != "" {
			cleaned = append(cleaned, p)
		}
	}
	return path.Join(cleaned...)
}
