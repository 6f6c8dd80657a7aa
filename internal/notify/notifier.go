// Package notify delivers issuer-facing alerts on bond lifecycle events.
// Alerts fan out to all registered senders (Telegram, Discord, signed
// webhooks) and can be filtered by event type so operators receive only the
// alerts they care about.
package notify

import (
	"context"
	"log/slog"
	"strings"

	"github.com/knowton/ipbond/internal/engine"
)

// Sender is the interface that each notification channel must implement.
type Sender interface {
	// Send delivers a notification for the given event type.
	Send(ctx context.Context, event, message string) error
	// Name returns a human-readable identifier for the sender (e.g. "telegram").
	Name() string
}

// titles maps event types to the headline shown in chat channels.
var titles = map[string]string{
	"bond_issued":         "Bond issued",
	"investment_recorded": "Investment recorded",
	"revenue_distributed": "Revenue distributed",
	"bond_matured":        "Bond matured",
	"bond_defaulted":      "Bond defaulted",
	"redeemed":            "Position redeemed",
}

// Title returns the display headline for an event type.
func Title(event string) string {
	if t, ok := titles[event]; ok {
		return t
	}
	return event
}

// Notifier dispatches alerts to one or more Senders. It maintains a set of
// allowed event types; Notify drops events outside the set. Delivery failures
// are logged, never surfaced, so a dead chat channel cannot fail a lifecycle
// transition.
type Notifier struct {
	senders []Sender
	events  map[string]bool // allowed event types
	logger  *slog.Logger
}

// New creates a Notifier that delivers to the given senders. Only events
// whose type appears in the events slice are forwarded; an empty slice allows
// every event type.
func New(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		allowed[strings.TrimSpace(e)] = true
	}
	return &Notifier{
		senders: senders,
		events:  allowed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// Notify fans the alert out to every sender if the event type is allowed.
func (n *Notifier) Notify(ctx context.Context, event, message string) {
	if len(n.events) > 0 && !n.events[event] {
		n.logger.DebugContext(ctx, "event filtered out",
			slog.String("event", event),
		)
		return
	}

	for _, s := range n.senders {
		if err := s.Send(ctx, event, message); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("event", event),
				slog.String("error", err.Error()),
			)
			continue
		}
		n.logger.DebugContext(ctx, "notification sent",
			slog.String("sender", s.Name()),
			slog.String("event", event),
		)
	}
}

// Compile-time interface check.
var _ engine.Notifier = (*Notifier)(nil)
