package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/zmart/internal/domain"
)

// PriceCache implements domain.PriceCache using Redis hashes. Each market's
// prices are stored at key "price:{marketID}" with fields "yes", "no", and
// "ts" (Unix nanosecond timestamp).
type PriceCache struct {
	rdb *redis.Client
}

// NewPriceCache creates a PriceCache backed by the given Client.
func NewPriceCache(c *Client) *PriceCache {
	return &PriceCache{rdb: c.Underlying()}
}

func priceKey(marketID common.Hash) string {
	return "price:" + marketID.Hex()
}

// SetPrices stores the latest YES/NO prices and timestamp for a market.
func (pc *PriceCache) SetPrices(ctx context.Context, marketID common.Hash, yesPrice, noPrice uint64, ts time.Time) error {
	fields := map[string]interface{}{
		"yes": strconv.FormatUint(yesPrice, 10),
		"no":  strconv.FormatUint(noPrice, 10),
		"ts":  strconv.FormatInt(ts.UnixNano(), 10),
	}
	if err := pc.rdb.HSet(ctx, priceKey(marketID), fields).Err(); err != nil {
		return fmt.Errorf("redis: set prices %s: %w", marketID.Hex(), err)
	}
	return nil
}

// GetPrices retrieves the latest prices and timestamp for a market. It
// returns domain.ErrNotFound when the key does not exist.
func (pc *PriceCache) GetPrices(ctx context.Context, marketID common.Hash) (yesPrice, noPrice uint64, ts time.Time, err error) {
	vals, err := pc.rdb.HGetAll(ctx, priceKey(marketID)).Result()
	if err != nil {
		return 0, 0, time.Time{}, fmt.Errorf("redis: get prices %s: %w", marketID.Hex(), err)
	}
	if len(vals) == 0 {
		return 0, 0, time.Time{}, domain.ErrNotFound
	}

	yesPrice, err = parseHashUint(vals, "yes")
	if err != nil {
		return 0, 0, time.Time{}, fmt.Errorf("redis: parse yes price %s: %w", marketID.Hex(), err)
	}
	noPrice, err = parseHashUint(vals, "no")
	if err != nil {
		return 0, 0, time.Time{}, fmt.Errorf("redis: parse no price %s: %w", marketID.Hex(), err)
	}

	tsStr, ok := vals["ts"]
	if !ok {
		return 0, 0, time.Time{}, domain.ErrNotFound
	}
	tsNano, err := strconv.ParseInt(tsStr, 10, 64)
	if err != nil {
		return 0, 0, time.Time{}, fmt.Errorf("redis: parse ts %s: %w", marketID.Hex(), err)
	}

	return yesPrice, noPrice, time.Unix(0, tsNano), nil
}

// Invalidate drops the cached prices for a market.
func (pc *PriceCache) Invalidate(ctx context.Context, marketID common.Hash) error {
	if err := pc.rdb.Del(ctx, priceKey(marketID)).Err(); err != nil {
		return fmt.Errorf("redis: invalidate prices %s: %w", marketID.Hex(), err)
	}
	return nil
}

func parseHashUint(vals map[string]string, field string) (uint64, error) {
	s, ok := vals[field]
	if !ok {
		return 0, domain.ErrNotFound
	}
	return strconv.ParseUint(s, 10, 64)
}

// Compile-time interface check.
var _ domain.PriceCache = (*PriceCache)(nil)
