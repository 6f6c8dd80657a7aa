package memory

import (
	"context"
	"sync"
	"time"

	"github.com/knowton/ipbond/internal/domain"
)

// RiskStore is an in-memory domain.RiskStore.
type RiskStore struct {
	mu          sync.RWMutex
	assessments map[string]domain.RiskAssessment
}

// NewRiskStore creates an empty RiskStore.
func NewRiskStore() *RiskStore {
	return &RiskStore{assessments: make(map[string]domain.RiskAssessment)}
}

func (s *RiskStore) Put(ctx context.Context, ra domain.RiskAssessment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.assessments[ra.AssetID] = ra
	return nil
}

func (s *RiskStore) Get(ctx context.Context, assetID string) (domain.RiskAssessment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ra, ok := s.assessments[assetID]
	if !ok {
		return domain.RiskAssessment{}, domain.ErrNotFound
	}
	return ra, nil
}

// AuditStore is an in-memory domain.AuditStore.
type AuditStore struct {
	mu      sync.RWMutex
	entries []domain.AuditEntry
	nextID  int64
}

// NewAuditStore creates an empty AuditStore.
func NewAuditStore() *AuditStore {
	return &AuditStore{nextID: 1}
}

func (s *AuditStore) Log(ctx context.Context, event string, detail map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = append(s.entries, domain.AuditEntry{
		ID:        s.nextID,
		Event:     event,
		Detail:    detail,
		CreatedAt: time.Now().UTC(),
	})
	s.nextID++
	return nil
}

func (s *AuditStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return paginate(append([]domain.AuditEntry(nil), s.entries...), opts), nil
}

func (s *AuditStore) ListBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.AuditEntry
	for _, e := range s.entries {
		if e.CreatedAt.Before(cutoff) {
			out = append(out, e)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (s *AuditStore) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.entries[:0]
	var removed int64
	for _, e := range s.entries {
		if e.CreatedAt.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	s.entries = kept
	return removed, nil
}

// PauseSwitch is an in-memory domain.PauseSwitch.
type PauseSwitch struct {
	mu     sync.RWMutex
	paused bool
}

// NewPauseSwitch creates a PauseSwitch in the running state.
func NewPauseSwitch() *PauseSwitch {
	return &PauseSwitch{}
}

func (p *PauseSwitch) Paused(ctx context.Context) (bool, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.paused, nil
}

func (p *PauseSwitch) SetPaused(ctx context.Context, paused bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.paused = paused
	return nil
}

// LockManager is an in-process domain.LockManager backed by per-key mutex
// entries. TTLs are ignored; a lock lives until its release function runs.
type LockManager struct {
	mu    sync.Mutex
	locks map[string]struct{}
}

// NewLockManager creates an empty LockManager.
func NewLockManager() *LockManager {
	return &LockManager{locks: make(map[string]struct{})}
}

func (m *LockManager) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, held := m.locks[key]; held {
		return nil, domain.ErrLockHeld
	}
	m.locks[key] = struct{}{}

	var once sync.Once
	release := func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			delete(m.locks, key)
		})
	}
	return release, nil
}

var (
	_ domain.RiskStore   = (*RiskStore)(nil)
	_ domain.AuditStore  = (*AuditStore)(nil)
	_ domain.PauseSwitch = (*PauseSwitch)(nil)
	_ domain.LockManager = (*LockManager)(nil)
)
