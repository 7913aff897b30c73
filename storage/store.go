// Package storage provides the key-value abstraction that mirrors client
// session state to durable storage.
package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a key has no stored value.
var ErrNotFound = errors.New("key not found")

// DefaultNamespace scopes keys when a backend is shared by several profiles.
const DefaultNamespace = "oaclient"

// Store is a flat key-value store. Values are opaque byte slices; callers own
// the encoding. Delete of a missing key is not an error.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}
