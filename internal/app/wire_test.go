package app

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/knowton/ipbond/internal/config"
	"github.com/knowton/ipbond/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

// Empty infra config exercises the in-memory fallbacks end to end.
func emptyConfig() *config.Config {
	return &config.Config{Mode: "serve", LogLevel: "info"}
}

func TestWireGrantsBootstrapAdmin(t *testing.T) {
	ctx := context.Background()
	cfg := emptyConfig()
	cfg.BootstrapAdmin = "0xroot"

	deps, cleanup, err := Wire(ctx, cfg, testLogger())
	require.NoError(t, err)
	defer cleanup()

	ok, err := deps.Roles.Has(ctx, "0xroot", domain.RoleAdmin)
	require.NoError(t, err)
	assert.True(t, ok, "bootstrap identity must hold the admin role")

	// The seeded admin is not an issuer; that grant stays an explicit
	// admin action.
	ok, err = deps.Roles.Has(ctx, "0xroot", domain.RoleIssuer)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestWireWithoutBootstrapAdmin(t *testing.T) {
	ctx := context.Background()

	deps, cleanup, err := Wire(ctx, emptyConfig(), testLogger())
	require.NoError(t, err)
	defer cleanup()

	roles, err := deps.Roles.RolesOf(ctx, "0xroot")
	require.NoError(t, err)
	assert.Empty(t, roles)
}
