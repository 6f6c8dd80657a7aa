// Package engine implements the core of the IP-bond vehicle: issuance,
// per-tranche investment with allocation caps, the priority revenue
// waterfall, lifecycle transitions, and redemption.
//
// Every mutating operation acquires the bond's lock from the lock manager
// before touching ledger state and holds it until all writes and the event
// emission complete. The lock is both the per-bond transaction sequencer and
// the re-entrancy guard around redemption payouts.
package engine

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/knowton/ipbond/internal/domain"
)

// Clock supplies the current time. A nil Clock reads the wall clock; tests
// inject a fixed one.
type Clock func() time.Time

func (c Clock) now() time.Time {
	if c == nil {
		return time.Now().UTC()
	}
	return c()
}

// lockTTL bounds how long a crashed operation can wedge a bond before the
// lock expires.
const lockTTL = 30 * time.Second

func bondLockKey(bondID string) string {
	return "bond:" + bondID
}

// emit publishes one engine event to the pub/sub channel and appends it to
// the durable stream. Emission happens after the ledger commit; failures are
// logged, never propagated, because the ledger is already consistent.
func emit(ctx context.Context, bus domain.SignalBus, logger *slog.Logger, event string, fields map[string]any) {
	if bus == nil {
		return
	}
	body := map[string]any{"event": event, "at": time.Now().UTC().Format(time.RFC3339Nano)}
	for k, v := range fields {
		body[k] = v
	}
	payload, err := json.Marshal(body)
	if err != nil {
		logger.ErrorContext(ctx, "engine: marshal event failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
		return
	}
	if err := bus.Publish(ctx, domain.EventChannel, payload); err != nil {
		logger.WarnContext(ctx, "engine: publish event failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
	if err := bus.StreamAppend(ctx, domain.EventStream, payload); err != nil {
		logger.WarnContext(ctx, "engine: stream append failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}

// audit writes one audit row, logging on failure rather than failing the
// already-committed operation.
func audit(ctx context.Context, store domain.AuditStore, logger *slog.Logger, event string, detail map[string]any) {
	if store == nil {
		return
	}
	if err := store.Log(ctx, event, detail); err != nil {
		logger.WarnContext(ctx, "engine: audit log failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}
