package memory

import (
	"context"
	"sync"

	"stockpos/internal/domain/ledger"
	"stockpos/pkg/logger"
)

// AlertLog collects published alert events. Used when no broker is configured.
type AlertLog struct {
	mu     sync.Mutex
	events []ledger.AlertEvent
}

// NewAlertLog creates an empty log.
func NewAlertLog() *AlertLog { return &AlertLog{} }

func (l *AlertLog) PublishAlerts(ctx context.Context, r *ledger.Record, transitions []ledger.AlertTransition) error {
	events := ledger.NewAlertEvents(r, transitions)
	l.mu.Lock()
	l.events = append(l.events, events...)
	l.mu.Unlock()

	for _, ev := range events {
		logger.Info(ctx, "alert event", "event_type", ev.EventType(),
			"product_id", ev.ProductID, "store_id", ev.StoreID, "current_stock", ev.CurrentStock)
	}
	return nil
}

// Events returns a copy of everything published so far.
func (l *AlertLog) Events() []ledger.AlertEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]ledger.AlertEvent(nil), l.events...)
}

var _ ledger.EventPublisher = (*AlertLog)(nil)
