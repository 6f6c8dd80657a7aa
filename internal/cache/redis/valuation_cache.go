package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/knowton/ipbond/internal/domain"
)

// valuationTTL bounds how long a cached oracle valuation is served before the
// risk engine must fetch a fresh one.
const valuationTTL = 15 * time.Minute

// ValuationCache implements domain.ValuationCache using Redis hashes. Each
// asset's valuation lives at "ipbond:valuation:{assetID}" with fields "usd"
// and "ts" (Unix nanosecond timestamp).
type ValuationCache struct {
	rdb *redis.Client
}

// NewValuationCache creates a ValuationCache backed by the given Client.
func NewValuationCache(c *Client) *ValuationCache {
	return &ValuationCache{rdb: c.Underlying()}
}

func valuationKey(assetID string) string {
	return "ipbond:valuation:" + assetID
}

// SetValuation stores the latest oracle valuation for an asset.
func (vc *ValuationCache) SetValuation(ctx context.Context, assetID string, usd float64, ts time.Time) error {
	key := valuationKey(assetID)
	fields := map[string]interface{}{
		"usd": strconv.FormatFloat(usd, 'f', -1, 64),
		"ts":  strconv.FormatInt(ts.UnixNano(), 10),
	}
	pipe := vc.rdb.Pipeline()
	pipe.HSet(ctx, key, fields)
	pipe.Expire(ctx, key, valuationTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set valuation %s: %w", assetID, err)
	}
	return nil
}

// GetValuation retrieves the cached valuation for an asset. It returns
// domain.ErrNotFound when no valuation is cached or the entry has expired.
func (vc *ValuationCache) GetValuation(ctx context.Context, assetID string) (float64, time.Time, error) {
	vals, err := vc.rdb.HGetAll(ctx, valuationKey(assetID)).Result()
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis: get valuation %s: %w", assetID, err)
	}
	if len(vals) == 0 {
		return 0, time.Time{}, domain.ErrNotFound
	}

	usdStr, ok := vals["usd"]
	if !ok {
		return 0, time.Time{}, domain.ErrNotFound
	}
	usd, err := strconv.ParseFloat(usdStr, 64)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis: parse valuation %s: %w", assetID, err)
	}

	tsStr, ok := vals["ts"]
	if !ok {
		return 0, time.Time{}, domain.ErrNotFound
	}
	tsNano, err := strconv.ParseInt(tsStr, 10, 64)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis: parse valuation ts %s: %w", assetID, err)
	}

	return usd, time.Unix(0, tsNano), nil
}

// Compile-time interface check.
var _ domain.ValuationCache = (*ValuationCache)(nil)
