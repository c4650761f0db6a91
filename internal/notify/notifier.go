// Package notify announces market lifecycle events to external channels.
// Announcements are dispatched to all registered senders (Telegram, Discord)
// and can be filtered by event type so operators receive only the alerts they
// care about.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/oppredict/oppredict/internal/domain"
)

// Event types understood by the Notifier filter.
const (
	EventMarketCreated  = "market.created"
	EventMarketResolved = "market.resolved"
)

// Sender is the interface that each notification channel must implement.
type Sender interface {
	// Send delivers a notification with the given title and message body.
	Send(ctx context.Context, title, message string) error
	// Name returns a human-readable identifier for the sender (e.g. "telegram").
	Name() string
}

// Notifier dispatches announcements to one or more Senders. It maintains a
// set of allowed event types; only events in the allowed set are forwarded.
// If no events were configured, all event types are allowed.
type Notifier struct {
	senders []Sender
	events  map[string]bool
	logger  *slog.Logger
}

// NewNotifier creates a Notifier that will deliver to the given senders.
func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
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

// MarketCreated announces a newly created market.
func (n *Notifier) MarketCreated(ctx context.Context, m domain.Market) {
	names := make([]string, 0, len(m.Outcomes))
	for _, o := range m.Outcomes {
		names = append(names, o.Name)
	}

	title := "New market open"
	message := fmt.Sprintf("%s\nOutcomes: %s\nCloses: %s",
		m.Question,
		strings.Join(names, " / "),
		m.EndDate.Format("2006-01-02 15:04 UTC"),
	)
	n.notify(ctx, EventMarketCreated, title, message)
}

// MarketResolved announces a settled market along with its payout summary.
func (n *Notifier) MarketResolved(ctx context.Context, m domain.Market) {
	winner := "unknown"
	if m.ResolvedOutcomeID != nil {
		for _, o := range m.Outcomes {
			if o.ID == *m.ResolvedOutcomeID {
				winner = o.Name
				break
			}
		}
	}

	title := "Market resolved"
	message := fmt.Sprintf("%s\nWinner: %s\nPool: $%.2f\nFee: $%.2f\nDistributed: $%.2f",
		m.Question,
		winner,
		m.PoolAmount,
		m.AdminFee,
		m.RemainingPot,
	)
	n.notify(ctx, EventMarketResolved, title, message)
}

// notify applies the event filter and dispatches to all senders. Delivery
// failures are logged, never surfaced; announcements are best-effort and must
// not affect the request that triggered them.
func (n *Notifier) notify(ctx context.Context, event, title, message string) {
	if len(n.senders) == 0 {
		return
	}
	if len(n.events) > 0 && !n.events[event] {
		n.logger.DebugContext(ctx, "event filtered out",
			slog.String("event", event),
		)
		return
	}

	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("event", event),
				slog.String("error", err.Error()),
			)
			continue
		}
		n.logger.DebugContext(ctx, "announcement sent",
			slog.String("sender", s.Name()),
			slog.String("event", event),
		)
	}
}
