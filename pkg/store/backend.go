// Package store persists conversations under a single namespaced key of a
// capacity-bounded key-value backend.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/doclens/doclens/pkg/apperr"
)

// ErrNotFound is returned by Backend.Get for a missing key.
var ErrNotFound = errors.New("key not found")

// Backend is a durable key-value store.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// limited rejects writes larger than a fixed byte capacity, like browser
// local storage does once its quota is reached.
type limited struct {
	Backend
	capacity int
}

// Limit wraps b so that any Set whose key and value exceed capacity bytes
// fails with a storage capacity error and leaves the stored value unchanged.
func Limit(b Backend, capacity int) Backend {
	return &limited{Backend: b, capacity: capacity}
}

func (l *limited) Set(ctx context.Context, key string, value []byte) error {
	if size := len(key) + len(value); size > l.capacity {
		return apperr.StorageCapacity("set", fmt.Sprintf("%d bytes exceeds capacity of %d", size, l.capacity), nil)
	}
	return l.Backend.Set(ctx, key, value)
}
