package storage

import "context"

// Repo is durable per-key string storage. Get returns an error wrapping
// errors.ErrNotFound when the key has never been written.
type Repo interface {
	// Get returns the value stored under key
	Get(ctx context.Context, key string) (string, error)

	// Set creates or replaces the value under key
	Set(ctx context.Context, key, value string) error

	// Delete removes key; deleting a missing key is not an error
	Delete(ctx context.Context, key string) error
}
