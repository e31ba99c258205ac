// Package audit is the channel for stock discrepancies: ledger updates that
// failed after the caller was already told the operation succeeded.
package audit

import (
	"context"
	"time"

	"stockpos/internal/core/id"
	"stockpos/pkg/logger"
)

// Kind classifies a discrepancy.
type Kind string

const (
	// KindSaleLineNotApplied: a settled sale line whose stock was not removed.
	KindSaleLineNotApplied Kind = "sale_line_not_applied"
	// KindReturnLineNotApplied: a settled return line whose stock was not added back.
	KindReturnLineNotApplied Kind = "return_line_not_applied"
	// KindUntrackedItem: a line for a product without an inventory record.
	KindUntrackedItem Kind = "untracked_item"
	// KindTransferUnbalanced: source debited, destination not credited.
	KindTransferUnbalanced Kind = "transfer_unbalanced"
)

// Discrepancy describes one stock update that did not happen.
type Discrepancy struct {
	ID            id.ID     `json:"id"`
	Kind          Kind      `json:"kind"`
	ReferenceType string    `json:"referenceType"`
	ReferenceID   string    `json:"referenceId"`
	ProductID     id.ID     `json:"productId"`
	StoreID       id.ID     `json:"storeId"`
	Quantity      int64     `json:"quantity"`
	Cause         string    `json:"cause"`
	Actor         string    `json:"actor"`
	OccurredAt    time.Time `json:"occurredAt"`
}

// Recorder persists discrepancies.
type Recorder interface {
	RecordDiscrepancy(ctx context.Context, d Discrepancy) error
	ListDiscrepancies(ctx context.Context, since time.Time, limit int) ([]Discrepancy, error)
}

// Report logs d at error level and hands it to rec.
// A recorder failure is logged too; it never reaches the caller.
func Report(ctx context.Context, rec Recorder, d Discrepancy) {
	if id.IsNil(d.ID) {
		d.ID = id.New()
	}
	if d.OccurredAt.IsZero() {
		d.OccurredAt = time.Now().UTC()
	}

	log := logger.FromContext(ctx)
	if d.Kind == KindUntrackedItem {
		log.Warnw("stock not tracked for line item",
			"kind", d.Kind, "reference_type", d.ReferenceType, "reference_id", d.ReferenceID,
			"product_id", d.ProductID, "store_id", d.StoreID, "quantity", d.Quantity)
	} else {
		log.Errorw("stock discrepancy",
			"kind", d.Kind, "reference_type", d.ReferenceType, "reference_id", d.ReferenceID,
			"product_id", d.ProductID, "store_id", d.StoreID, "quantity", d.Quantity, "cause", d.Cause)
	}

	if rec == nil {
		return
	}
	if err := rec.RecordDiscrepancy(context.WithoutCancel(ctx), d); err != nil {
		log.Errorw("failed to record stock discrepancy",
			"discrepancy_id", d.ID, "reference_id", d.ReferenceID, "error", err)
	}
}
