package interfaces

import (
	"time"

	"github.com/advisory-lab/themis/pkg/domain/model"
	"github.com/advisory-lab/themis/pkg/domain/types"
)

// CachedValidation is an advisory cache entry for the hybrid strategy.
// The authoritative record is always the ValidationResult returned to the
// controller; cache entries only decide streaming timing for a turn.
type CachedValidation struct {
	State    types.ValidationState
	Result   *model.ValidationResult
	CachedAt time.Time
}

// ValidationCache is the injected cache collaborator for the hybrid
// strategy. Reads are lock-free lookups; writes are atomic per key with
// last-writer-wins semantics.
type ValidationCache interface {
	// Get returns the entry for the key, if present and not expired
	Get(key string) (*CachedValidation, bool)

	// Put stores the entry. Implementations may apply their own TTL
	// ceiling; ttl <= 0 means use the cache default.
	Put(key string, entry *CachedValidation, ttl time.Duration)
}
