package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/knowton/ipbond/internal/domain"
)

// pauseKey holds the engine-wide pause flag. Storing it in Redis rather than
// process memory means one admin call pauses every instance behind the load
// balancer at once.
const pauseKey = "ipbond:paused"

// PauseSwitch implements domain.PauseSwitch on a shared Redis key.
type PauseSwitch struct {
	rdb *redis.Client
}

// NewPauseSwitch creates a PauseSwitch backed by the given Client.
func NewPauseSwitch(c *Client) *PauseSwitch {
	return &PauseSwitch{rdb: c.Underlying()}
}

// Paused reports whether the engine is paused. A missing key means running.
func (ps *PauseSwitch) Paused(ctx context.Context) (bool, error) {
	val, err := ps.rdb.Get(ctx, pauseKey).Result()
	if err != nil {
		if err == redis.Nil {
			return false, nil
		}
		return false, fmt.Errorf("redis: read pause flag: %w", err)
	}
	return val == "1", nil
}

// SetPaused engages or releases the pause flag. The flag has no TTL; a pause
// survives process restarts until an admin explicitly lifts it.
func (ps *PauseSwitch) SetPaused(ctx context.Context, paused bool) error {
	if !paused {
		if err := ps.rdb.Del(ctx, pauseKey).Err(); err != nil {
			return fmt.Errorf("redis: clear pause flag: %w", err)
		}
		return nil
	}
	if err := ps.rdb.Set(ctx, pauseKey, "1", 0).Err(); err != nil {
		return fmt.Errorf("redis: set pause flag: %w", err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.PauseSwitch = (*PauseSwitch)(nil)
