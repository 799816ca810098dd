// Package cache stores built corpus indices so a batch parses each corpus
// once. Entries are opaque bytes keyed by the content hash of their source.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Cache defines the interface for caching
type Cache interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte, ttl time.Duration) error
	Delete(key string) error
	Clear() error
}

// keyVersion is bumped whenever the encoded index layout changes
const keyVersion = "stimalign:v1:"

// CacheKey derives a cache key from the source content
func CacheKey(content []byte) string {
	hash := sha256.Sum256(content)
	return keyVersion + hex.EncodeToString(hash[:])
}

// New builds the cache selected by the configuration: a layered
// memory+disk cache when dir is set, memory only otherwise
func New(memoryTTL time.Duration, dir string, diskTTL time.Duration) Cache {
	if dir == "" {
		return NewMemoryCache(memoryTTL, 10*time.Minute)
	}
	return NewLayeredCache(memoryTTL, dir, diskTTL)
}
