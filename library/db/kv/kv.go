// Package kv provides a generic key-value store over JSON-serializable
// documents, with mongo, redis and in-memory backends.
package kv

import "context"

// Store is the key-value contract consumed by the registry, session and
// stats components. Values are JSON-serializable documents. The store
// offers no transactions; multi-key updates are best-effort and readers
// must tolerate the inconsistency window.
type Store interface {
	// Get unmarshals the value at key into value and reports whether the
	// key exists.
	Get(ctx context.Context, key string, value any) (ok bool, err error)
	// Put marshals value and writes it at key, overwriting any prior value.
	Put(ctx context.Context, key string, value any) error
	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
	// ListKeysByPrefix returns all keys starting with prefix.
	ListKeysByPrefix(ctx context.Context, prefix string) ([]string, error)
}
