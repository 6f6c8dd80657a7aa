// Package memory implements the domain store interfaces with mutex-guarded
// maps. It backs unit tests and single-node runs without a database; every
// Apply method mutates under one lock, so the transactional contract of
// domain.LedgerStore holds trivially.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/knowton/ipbond/internal/domain"
)

// Ledger is an in-memory domain.LedgerStore.
type Ledger struct {
	mu            sync.RWMutex
	bonds         map[string]domain.Bond
	tranches      map[string]domain.Tranche // keyed by tranche ID
	byBond        map[string][]string       // bond ID -> tranche IDs in priority order
	investments   map[string]domain.Investment
	distributions []domain.DistributionEvent
}

// NewLedger creates an empty Ledger.
func NewLedger() *Ledger {
	return &Ledger{
		bonds:       make(map[string]domain.Bond),
		tranches:    make(map[string]domain.Tranche),
		byBond:      make(map[string][]string),
		investments: make(map[string]domain.Investment),
	}
}

func (l *Ledger) CreateBond(ctx context.Context, bond domain.Bond, tranches []domain.Tranche) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.bonds[bond.ID] = bond
	ids := make([]string, 0, len(tranches))
	for _, t := range tranches {
		l.tranches[t.ID] = t
		ids = append(ids, t.ID)
	}
	l.byBond[bond.ID] = ids
	return nil
}

func (l *Ledger) GetBond(ctx context.Context, id string) (domain.Bond, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	bond, ok := l.bonds[id]
	if !ok {
		return domain.Bond{}, domain.ErrBondNotFound
	}
	return bond, nil
}

func (l *Ledger) ListBonds(ctx context.Context, opts domain.ListOpts) ([]domain.Bond, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	bonds := make([]domain.Bond, 0, len(l.bonds))
	for _, b := range l.bonds {
		bonds = append(bonds, b)
	}
	sort.Slice(bonds, func(i, j int) bool { return bonds[i].CreatedAt.Before(bonds[j].CreatedAt) })
	return paginate(bonds, opts), nil
}

func (l *Ledger) ListMaturedCandidates(ctx context.Context, cutoff time.Time) ([]domain.Bond, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []domain.Bond
	for _, b := range l.bonds {
		if b.Status == domain.BondActive && !b.MaturesAt.After(cutoff) {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MaturesAt.Before(out[j].MaturesAt) })
	return out, nil
}

func (l *Ledger) TranchesByBond(ctx context.Context, bondID string) ([]domain.Tranche, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	ids, ok := l.byBond[bondID]
	if !ok {
		return nil, domain.ErrBondNotFound
	}
	out := make([]domain.Tranche, 0, len(ids))
	for _, id := range ids {
		out = append(out, l.tranches[id])
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Tier.Priority() < out[j].Tier.Priority() })
	return out, nil
}

func (l *Ledger) GetInvestment(ctx context.Context, id string) (domain.Investment, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	inv, ok := l.investments[id]
	if !ok {
		return domain.Investment{}, domain.ErrInvestmentNotFound
	}
	return inv, nil
}

func (l *Ledger) PositionsByInvestor(ctx context.Context, investor string, opts domain.ListOpts) ([]domain.Investment, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []domain.Investment
	for _, inv := range l.investments {
		if inv.Investor == investor {
			out = append(out, inv)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].InvestedAt.Before(out[j].InvestedAt) })
	return paginate(out, opts), nil
}

func (l *Ledger) InvestmentsByTranche(ctx context.Context, trancheID string) ([]domain.Investment, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []domain.Investment
	for _, inv := range l.investments {
		if inv.TrancheID == trancheID {
			out = append(out, inv)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].InvestedAt.Before(out[j].InvestedAt) })
	return out, nil
}

func (l *Ledger) ApplyInvestment(ctx context.Context, tranche domain.Tranche, inv domain.Investment) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.tranches[tranche.ID]; !ok {
		return domain.ErrNotFound
	}
	l.tranches[tranche.ID] = tranche
	l.investments[inv.ID] = inv
	return nil
}

func (l *Ledger) ApplyDistribution(ctx context.Context, bond domain.Bond, tranches []domain.Tranche, evt domain.DistributionEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.bonds[bond.ID]; !ok {
		return domain.ErrBondNotFound
	}
	l.bonds[bond.ID] = bond
	for _, t := range tranches {
		l.tranches[t.ID] = t
	}
	l.distributions = append(l.distributions, evt)
	return nil
}

func (l *Ledger) ApplyTransition(ctx context.Context, bond domain.Bond, tranches []domain.Tranche) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.bonds[bond.ID]; !ok {
		return domain.ErrBondNotFound
	}
	l.bonds[bond.ID] = bond
	for _, t := range tranches {
		l.tranches[t.ID] = t
	}
	return nil
}

func (l *Ledger) ApplyRedemption(ctx context.Context, tranche domain.Tranche, inv domain.Investment) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.investments[inv.ID]; !ok {
		return domain.ErrInvestmentNotFound
	}
	l.tranches[tranche.ID] = tranche
	l.investments[inv.ID] = inv
	return nil
}

func (l *Ledger) ListDistributions(ctx context.Context, bondID string, opts domain.ListOpts) ([]domain.DistributionEvent, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []domain.DistributionEvent
	for _, evt := range l.distributions {
		if evt.BondID == bondID {
			out = append(out, evt)
		}
	}
	return paginate(out, opts), nil
}

func (l *Ledger) ListDistributionsBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.DistributionEvent, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []domain.DistributionEvent
	for _, evt := range l.distributions {
		if evt.At.Before(cutoff) {
			out = append(out, evt)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (l *Ledger) DeleteDistributionsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	kept := l.distributions[:0]
	var removed int64
	for _, evt := range l.distributions {
		if evt.At.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, evt)
	}
	l.distributions = kept
	return removed, nil
}

func paginate[T any](items []T, opts domain.ListOpts) []T {
	if opts.Offset > 0 {
		if opts.Offset >= len(items) {
			return nil
		}
		items = items[opts.Offset:]
	}
	if opts.Limit > 0 && opts.Limit < len(items) {
		items = items[:opts.Limit]
	}
	return items
}

// Compile-time interface check.
var _ domain.LedgerStore = (*Ledger)(nil)
