package store

import "context"

/**
 * Store is the key/value backend of flow definitions and execution logs.
 * Keys are grouped by prefix, a value is an opaque JSON document.
 */
type Store interface {
	// Get returns nil without error when prefix + key does not exist.
	Get(ctx context.Context, prefix, key string) ([]byte, error)
	Set(ctx context.Context, prefix, key string, value []byte) error
	/**
	 * Remove a prefix and key
	 * remove an unexists prefix + key would NOT return error
	 */
	Remove(ctx context.Context, prefix, key string) error
	// List calls iterator with every key under prefix in key order until it returns false.
	List(ctx context.Context, prefix string, iterator func(key string) bool) error

	Close() error
}
