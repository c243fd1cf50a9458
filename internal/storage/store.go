// Package storage provides the durable client key-value store behind the
// session (the "token" and "user" keys).
package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when the key is absent.
var ErrNotFound = errors.New("storage: key not found")

// Entry is one key/value pair of a batch write.
type Entry struct {
	Key   string
	Value string
}

// Store is a last-write-wins string key-value store.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, keys ...string) error
	Close() error
}

// BatchWriter is implemented by stores that can write several keys
// atomically. Readers never observe a subset of the batch.
type BatchWriter interface {
	SetAll(ctx context.Context, entries []Entry) error
}
