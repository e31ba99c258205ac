package ledger

import "time"

// ExpiryWarningWindow is how far ahead of expiry the expiry alert fires.
const ExpiryWarningWindow = 7 * 24 * time.Hour

// AlertKind names one of the three alert state machines.
type AlertKind string

const (
	AlertLowStock   AlertKind = "low_stock"
	AlertOutOfStock AlertKind = "out_of_stock"
	AlertExpiry     AlertKind = "expiry"
)

// Alert is a two-state machine with transition timestamps.
type Alert struct {
	IsActive    bool       `json:"isActive"`
	TriggeredAt *time.Time `json:"triggeredAt,omitempty"`
	ResolvedAt  *time.Time `json:"resolvedAt,omitempty"`
}

// AlertState groups the record's alerts. Low-stock and out-of-stock may both be active.
type AlertState struct {
	LowStock   Alert `json:"lowStock"`
	OutOfStock Alert `json:"outOfStock"`
	Expiry     Alert `json:"expiry"`
}

// AlertInput is everything the evaluator looks at.
type AlertInput struct {
	CurrentStock int64
	ReorderPoint int64
	ExpiryDate   *time.Time
}

// AlertTransition describes one alert changing state.
type AlertTransition struct {
	Kind   AlertKind `json:"kind"`
	Active bool      `json:"active"`
	At     time.Time `json:"at"`
}

// EvaluateAlerts returns the next alert state and the transitions that lead to it.
// It is pure: an input that causes no transition returns state unchanged and no transitions.
func EvaluateAlerts(state AlertState, in AlertInput, now time.Time) (AlertState, []AlertTransition) {
	var transitions []AlertTransition

	step := func(kind AlertKind, a *Alert, trigger, resolve bool) {
		switch {
		case !a.IsActive && trigger:
			at := now
			a.IsActive = true
			a.TriggeredAt = &at
			transitions = append(transitions, AlertTransition{Kind: kind, Active: true, At: now})
		case a.IsActive && resolve:
			at := now
			a.IsActive = false
			a.ResolvedAt = &at
			transitions = append(transitions, AlertTransition{Kind: kind, Active: false, At: now})
		}
	}

	// Between 0 and the reorder point low-stock triggers; above it, it resolves.
	// At zero or below neither condition holds, so an already active low-stock stays active.
	step(AlertLowStock, &state.LowStock,
		in.CurrentStock > 0 && in.CurrentStock <= in.ReorderPoint,
		in.CurrentStock > in.ReorderPoint)

	step(AlertOutOfStock, &state.OutOfStock,
		in.CurrentStock <= 0,
		in.CurrentStock > 0)

	expiring := expiresSoon(in.ExpiryDate, now)
	step(AlertExpiry, &state.Expiry, expiring, !expiring)

	return state, transitions
}

func expiresSoon(expiry *time.Time, now time.Time) bool {
	if expiry == nil {
		return false
	}
	return expiry.After(now) && !expiry.After(now.Add(ExpiryWarningWindow))
}

// AlertEvent is the published form of a transition, with enough of the record
// for a consumer to act without reading it back.
type AlertEvent struct {
	RecordID        string    `json:"recordId"`
	ProductID       string    `json:"productId"`
	StoreID         string    `json:"storeId"`
	ProductName     string    `json:"productName"`
	Kind            AlertKind `json:"kind"`
	Active          bool      `json:"active"`
	CurrentStock    int64     `json:"currentStock"`
	ReorderPoint    int64     `json:"reorderPoint"`
	ReorderQuantity int64     `json:"reorderQuantity"`
	At              time.Time `json:"at"`
}

// NewAlertEvents builds one event per transition of r.
func NewAlertEvents(r *Record, transitions []AlertTransition) []AlertEvent {
	events := make([]AlertEvent, 0, len(transitions))
	for _, t := range transitions {
		events = append(events, AlertEvent{
			RecordID:        r.ID.String(),
			ProductID:       r.ProductID.String(),
			StoreID:         r.StoreID.String(),
			ProductName:     r.Snapshot.Name,
			Kind:            t.Kind,
			Active:          t.Active,
			CurrentStock:    r.CurrentStock,
			ReorderPoint:    r.ReorderPoint,
			ReorderQuantity: r.ReorderQuantity,
			At:              t.At,
		})
	}
	return events
}

// EventType is the outbox event name of the event.
func (e AlertEvent) EventType() string {
	state := "resolved"
	if e.Active {
		state = "triggered"
	}
	return "inventory." + string(e.Kind) + "." + state
}
