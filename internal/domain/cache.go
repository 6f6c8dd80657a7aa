package domain

import (
	"context"
	"time"
)

// LockManager provides per-bond mutual exclusion. Every mutating engine
// operation acquires the bond's lock before reading ledger state, which both
// serializes operations on one bond and guards redemption against re-entry.
type LockManager interface {
	// Acquire obtains the lock for key or returns ErrLockHeld. The returned
	// release function is safe to call more than once.
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

// StreamMessage is one durable message read back from the event stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// SignalBus delivers engine events to external indexers: ephemeral fan-out
// over pub/sub plus a durable, ordered stream.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]StreamMessage, error)
}

// RateLimiter bounds request rates per caller key on the API surface.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// ValuationCache holds recent oracle valuations so the risk engine can score
// repeat issuances against the same asset without another oracle round trip.
type ValuationCache interface {
	SetValuation(ctx context.Context, assetID string, usd float64, ts time.Time) error
	// GetValuation returns ErrNotFound when no fresh valuation is cached.
	GetValuation(ctx context.Context, assetID string) (float64, time.Time, error)
}
