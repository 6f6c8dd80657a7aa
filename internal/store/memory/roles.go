package memory

import (
	"context"
	"sync"

	"github.com/knowton/ipbond/internal/domain"
)

// RoleStore is an in-memory domain.RoleStore.
type RoleStore struct {
	mu     sync.RWMutex
	grants map[string]map[domain.Role]struct{}
}

// NewRoleStore creates an empty RoleStore.
func NewRoleStore() *RoleStore {
	return &RoleStore{grants: make(map[string]map[domain.Role]struct{})}
}

func (s *RoleStore) Grant(ctx context.Context, identity string, role domain.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.grants[identity] == nil {
		s.grants[identity] = make(map[domain.Role]struct{})
	}
	s.grants[identity][role] = struct{}{}
	return nil
}

func (s *RoleStore) Revoke(ctx context.Context, identity string, role domain.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.grants[identity], role)
	return nil
}

func (s *RoleStore) Has(ctx context.Context, identity string, role domain.Role) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.grants[identity][role]
	return ok, nil
}

func (s *RoleStore) RolesOf(ctx context.Context, identity string) ([]domain.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.Role
	for role := range s.grants[identity] {
		out = append(out, role)
	}
	return out, nil
}

var _ domain.RoleStore = (*RoleStore)(nil)
