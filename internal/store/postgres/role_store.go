package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/knowton/ipbond/internal/domain"
)

// RoleStore persists role grants in the role_grants table.
type RoleStore struct {
	pool *pgxpool.Pool
}

func NewRoleStore(pool *pgxpool.Pool) *RoleStore {
	return &RoleStore{pool: pool}
}

func (s *RoleStore) Grant(ctx context.Context, identity string, role domain.Role) error {
	const query = `
		INSERT INTO role_grants (identity, role) VALUES ($1, $2)
		ON CONFLICT (identity, role) DO NOTHING`
	if _, err := s.pool.Exec(ctx, query, identity, string(role)); err != nil {
		return fmt.Errorf("postgres: grant %s to %s: %w", role, identity, err)
	}
	return nil
}

func (s *RoleStore) Revoke(ctx context.Context, identity string, role domain.Role) error {
	const query = `DELETE FROM role_grants WHERE identity = $1 AND role = $2`
	if _, err := s.pool.Exec(ctx, query, identity, string(role)); err != nil {
		return fmt.Errorf("postgres: revoke %s from %s: %w", role, identity, err)
	}
	return nil
}

func (s *RoleStore) Has(ctx context.Context, identity string, role domain.Role) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM role_grants WHERE identity = $1 AND role = $2)`
	var has bool
	if err := s.pool.QueryRow(ctx, query, identity, string(role)).Scan(&has); err != nil {
		return false, fmt.Errorf("postgres: check role %s of %s: %w", role, identity, err)
	}
	return has, nil
}

func (s *RoleStore) RolesOf(ctx context.Context, identity string) ([]domain.Role, error) {
	const query = `SELECT role FROM role_grants WHERE identity = $1 ORDER BY role`
	rows, err := s.pool.Query(ctx, query, identity)
	if err != nil {
		return nil, fmt.Errorf("postgres: roles of %s: %w", identity, err)
	}
	defer rows.Close()

	var out []domain.Role
	for rows.Next() {
		var role string
		if err := rows.Scan(&role); err != nil {
			return nil, fmt.Errorf("postgres: scan role: %w", err)
		}
		out = append(out, domain.Role(role))
	}
	return out, rows.Err()
}

var _ domain.RoleStore = (*RoleStore)(nil)
