package cache

import "time"

// State is the freshness of a cache lookup
type State string

const (
	StateMiss  State = "miss"
	StateFresh State = "fresh"
	StateStale State = "stale"
)

// Entry is a cached value with its freshness window.
// ExpiresAt never comes after StaleUntil.
type Entry[T any] struct {
	Value      T         `json:"value"`
	UpdatedAt  time.Time `json:"updatedAt"`
	ExpiresAt  time.Time `json:"expiresAt"`
	StaleUntil time.Time `json:"staleUntil"`
}

// StateAt derives the entry state from its timestamps
func (e *Entry[T]) StateAt(now time.Time) State {
	if e == nil {
		return StateMiss
	}
	if now.Before(e.ExpiresAt) {
		return StateFresh
	}
	if now.Before(e.StaleUntil) {
		return StateStale
	}
	return StateMiss
}

// Result is the outcome of Get. Entry is nil on a miss.
type Result[T any] struct {
	State State
	Entry *Entry[T]
}

// Health summarizes the cache tiers
type Health struct {
	MemoryKeys       int    `json:"memoryKeys"`
	SecondaryEnabled bool   `json:"secondaryEnabled"`
	SecondaryReady   bool   `json:"secondaryReady"`
	SecondaryKind    string `json:"secondaryKind"`
}
