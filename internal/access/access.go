// Package access implements role-gated authorization and the global pause
// switch consulted by every engine operation.
package access

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/knowton/ipbond/internal/domain"
)

// Controller evaluates capability checks against the role store and the
// pause switch. It owns no engine state of its own.
type Controller struct {
	roles  domain.RoleStore
	pause  domain.PauseSwitch
	logger *slog.Logger
}

// NewController creates a Controller.
func NewController(roles domain.RoleStore, pause domain.PauseSwitch, logger *slog.Logger) *Controller {
	return &Controller{
		roles:  roles,
		pause:  pause,
		logger: logger.With(slog.String("component", "access")),
	}
}

// RequireRole returns domain.ErrUnauthorized when identity does not hold the
// role. Store failures surface as errors, not as denials.
func (c *Controller) RequireRole(ctx context.Context, identity string, role domain.Role) error {
	if identity == "" {
		return domain.ErrUnauthorized
	}
	ok, err := c.roles.Has(ctx, identity, role)
	if err != nil {
		return fmt.Errorf("access: role lookup for %s: %w", identity, err)
	}
	if !ok {
		c.logger.WarnContext(ctx, "role check denied",
			slog.String("identity", identity),
			slog.String("role", string(role)),
		)
		return domain.ErrUnauthorized
	}
	return nil
}

// RequireRunning returns domain.ErrPaused while the kill switch is engaged.
func (c *Controller) RequireRunning(ctx context.Context) error {
	paused, err := c.pause.Paused(ctx)
	if err != nil {
		return fmt.Errorf("access: read pause switch: %w", err)
	}
	if paused {
		return domain.ErrPaused
	}
	return nil
}

// Paused reports the current pause state.
func (c *Controller) Paused(ctx context.Context) (bool, error) {
	return c.pause.Paused(ctx)
}

// SetPaused engages or releases the kill switch. Caller must hold the admin
// role.
func (c *Controller) SetPaused(ctx context.Context, caller string, paused bool) error {
	if err := c.RequireRole(ctx, caller, domain.RoleAdmin); err != nil {
		return err
	}
	if err := c.pause.SetPaused(ctx, paused); err != nil {
		return fmt.Errorf("access: set pause: %w", err)
	}
	c.logger.InfoContext(ctx, "pause switch changed",
		slog.String("caller", caller),
		slog.Bool("paused", paused),
	)
	return nil
}

// GrantIssuer grants the issuer role to identity. Caller must hold the admin
// role.
func (c *Controller) GrantIssuer(ctx context.Context, caller, identity string) error {
	if err := c.RequireRole(ctx, caller, domain.RoleAdmin); err != nil {
		return err
	}
	if identity == "" {
		return domain.ErrInvalidParameters
	}
	if err := c.roles.Grant(ctx, identity, domain.RoleIssuer); err != nil {
		return fmt.Errorf("access: grant issuer to %s: %w", identity, err)
	}
	c.logger.InfoContext(ctx, "issuer role granted",
		slog.String("caller", caller),
		slog.String("identity", identity),
	)
	return nil
}

// RevokeIssuer removes the issuer role from identity. Caller must hold the
// admin role.
func (c *Controller) RevokeIssuer(ctx context.Context, caller, identity string) error {
	if err := c.RequireRole(ctx, caller, domain.RoleAdmin); err != nil {
		return err
	}
	if err := c.roles.Revoke(ctx, identity, domain.RoleIssuer); err != nil {
		return fmt.Errorf("access: revoke issuer from %s: %w", identity, err)
	}
	c.logger.InfoContext(ctx, "issuer role revoked",
		slog.String("caller", caller),
		slog.String("identity", identity),
	)
	return nil
}
