package cache

import (
	"context"
	"time"
)

// Tier is a best-effort secondary store behind the in-memory map.
// Implementations report failures; the SWR cache logs and swallows them.
type Tier interface {
	Kind() string
	Enabled() bool
	Get(ctx context.Context, key string) (payload []byte, found bool, err error)
	Set(ctx context.Context, key string, payload []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Ready(ctx context.Context) bool
	Close() error
}

// NoopTier is the memory-only configuration
type NoopTier struct{}

func (NoopTier) Kind() string  { return "none" }
func (NoopTier) Enabled() bool { return false }

func (NoopTier) Get(context.Context, string) ([]byte, bool, error) { return nil, false, nil }

func (NoopTier) Set(context.Context, string, []byte, time.Duration) error { return nil }

func (NoopTier) Delete(context.Context, string) error { return nil }

func (NoopTier) Ready(context.Context) bool { return false }

func (NoopTier) Close() error { return nil }
