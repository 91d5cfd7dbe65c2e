package domain

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// PriceCache provides fast access to the latest LMSR prices. Prices are
// fixed-point with nine decimals; YES and NO always sum to one.
type PriceCache interface {
	SetPrices(ctx context.Context, marketID common.Hash, yesPrice, noPrice uint64, ts time.Time) error
	GetPrices(ctx context.Context, marketID common.Hash) (yesPrice, noPrice uint64, ts time.Time, err error)
	Invalidate(ctx context.Context, marketID common.Hash) error
}

// LockManager provides distributed locking. Trading, claim, and withdrawal
// paths take a per-market lock so value transfers never interleave.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// RateLimiter limits request rates per key over a sliding window.
type RateLimiter interface {
	// Allow reports whether a request for key is permitted under the limit,
	// counting it when it is.
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	// Wait blocks until a request for key is allowed or the context ends.
	Wait(ctx context.Context, key string) error
}

// StreamMessage represents a single entry from a durable stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// SignalBus provides pub/sub and durable streams for protocol events.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]StreamMessage, error)
}
