// Package cacheprovider implements the pluggable CacheProvider interface
// from spec §6, with an in-memory implementation grounded on the
// teacher's internal/cache.Cache and a Redis-backed implementation
// grounded on internal/queue/redisclient.Client.
package cacheprovider

import "time"

// Provider is the external cache collaborator from spec §6. Values are
// opaque to the engine; TTL handling is the provider's own
// responsibility (a provider with no TTL support may treat ttl as
// advisory or ignore it).
type Provider interface {
	Read(key string) (value any, ok bool)
	Write(key string, value any, ttl time.Duration) error
	Delete(key string) error
	// DeleteMatching removes every key for which predicate returns true.
	DeleteMatching(predicate func(key string) bool) error
	Clear() error
}
