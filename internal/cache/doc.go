// Package cache provides a generic thread-safe LRU cache.
//
//	c := cache.New[key, []uint32](16)
//	words, err := c.GetOrCreate(k, compile)
//
// GetOrCreate runs create under the cache lock, so concurrent callers for
// the same key create the value once. Failed creations are not cached.
//
// Cache must not be copied after creation (it contains a mutex).
package cache
