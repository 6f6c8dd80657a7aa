package memory

import (
	"context"
	"sync"
	"time"

	"github.com/knowton/ipbond/internal/domain"
)

type valuationEntry struct {
	usd float64
	ts  time.Time
}

// ValuationCache is an in-process domain.ValuationCache for single-node and
// test deployments. Entries never expire; the risk engine applies its own
// freshness window.
type ValuationCache struct {
	mu      sync.RWMutex
	entries map[string]valuationEntry
}

func NewValuationCache() *ValuationCache {
	return &ValuationCache{entries: make(map[string]valuationEntry)}
}

func (vc *ValuationCache) SetValuation(_ context.Context, assetID string, usd float64, ts time.Time) error {
	vc.mu.Lock()
	defer vc.mu.Unlock()
	vc.entries[assetID] = valuationEntry{usd: usd, ts: ts}
	return nil
}

func (vc *ValuationCache) GetValuation(_ context.Context, assetID string) (float64, time.Time, error) {
	vc.mu.RLock()
	defer vc.mu.RUnlock()
	e, ok := vc.entries[assetID]
	if !ok {
		return 0, time.Time{}, domain.ErrNotFound
	}
	return e.usd, e.ts, nil
}

var _ domain.ValuationCache = (*ValuationCache)(nil)
