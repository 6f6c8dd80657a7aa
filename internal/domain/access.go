package domain

import "context"

// Role is a capability grant attached to an identity.
type Role string

const (
	// RoleIssuer may issue bonds, distribute revenue, and drive lifecycle
	// transitions.
	RoleIssuer Role = "issuer"
	// RoleAdmin may pause the engine and grant or revoke the issuer role.
	RoleAdmin Role = "admin"
)

// RoleStore persists role grants per identity.
type RoleStore interface {
	Grant(ctx context.Context, identity string, role Role) error
	Revoke(ctx context.Context, identity string, role Role) error
	Has(ctx context.Context, identity string, role Role) (bool, error)
	RolesOf(ctx context.Context, identity string) ([]Role, error)
}

// PauseSwitch is the global emergency kill switch. While engaged every
// state-mutating operation rejects with ErrPaused.
type PauseSwitch interface {
	Paused(ctx context.Context) (bool, error)
	SetPaused(ctx context.Context, paused bool) error
}
