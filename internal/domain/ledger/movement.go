package ledger

import (
	"time"

	"stockpos/internal/core/id"
	"stockpos/internal/core/types"
)

// MovementType classifies a physical stock change.
type MovementType string

const (
	MovementIn          MovementType = "in"
	MovementOut         MovementType = "out"
	MovementAdjustment  MovementType = "adjustment"
	MovementReturn      MovementType = "return"
	MovementDamage      MovementType = "damage"
	MovementTransferIn  MovementType = "transfer_in"
	MovementTransferOut MovementType = "transfer_out"
)

// IsValid reports whether t is a known movement type.
func (t MovementType) IsValid() bool {
	switch t {
	case MovementIn, MovementOut, MovementAdjustment, MovementReturn,
		MovementDamage, MovementTransferIn, MovementTransferOut:
		return true
	}
	return false
}

// increases reports whether movements of this type carry a positive quantity.
func (t MovementType) increases() bool {
	return t == MovementIn || t == MovementReturn || t == MovementTransferIn
}

func (t MovementType) decreases() bool {
	return t == MovementOut || t == MovementDamage || t == MovementTransferOut
}

// ReferenceType names what caused a movement.
type ReferenceType string

const (
	ReferenceSale       ReferenceType = "sale"
	ReferenceReturn     ReferenceType = "return"
	ReferenceAdjustment ReferenceType = "adjustment"
	ReferenceTransfer   ReferenceType = "transfer"
	ReferencePurchase   ReferenceType = "purchase"
	ReferenceManual     ReferenceType = "manual"
)

// Movement is one entry of a record's audit trail. Never edited after append.
type Movement struct {
	ID            id.ID         `db:"id" json:"id"`
	RecordID      id.ID         `db:"record_id" json:"recordId"`
	ProductID     id.ID         `db:"product_id" json:"productId"`
	StoreID       id.ID         `db:"store_id" json:"storeId"`
	Type          MovementType  `db:"type" json:"type"`
	Quantity      int64         `db:"quantity" json:"quantity"`
	StockBefore   int64         `db:"stock_before" json:"stockBefore"`
	StockAfter    int64         `db:"stock_after" json:"stockAfter"`
	UnitCost      *types.Money  `db:"unit_cost" json:"unitCost,omitempty"`
	Reason        string        `db:"reason" json:"reason"`
	ReferenceID   string        `db:"reference_id" json:"referenceId,omitempty"`
	ReferenceType ReferenceType `db:"reference_type" json:"referenceType,omitempty"`
	PerformedBy   string        `db:"performed_by" json:"performedBy"`
	Timestamp     time.Time     `db:"created_at" json:"timestamp"`
}

// MovementLog is the append-only movement sequence of one record.
// Entries appended since the last MarkCommitted are pending persistence.
type MovementLog struct {
	entries   []Movement
	committed int
}

// Append adds m to the end of the log.
func (l *MovementLog) Append(m Movement) {
	l.entries = append(l.entries, m)
}

// Entries returns a copy of all entries in append order.
func (l *MovementLog) Entries() []Movement {
	out := make([]Movement, len(l.entries))
	copy(out, l.entries)
	return out
}

// Pending returns entries not yet persisted.
func (l *MovementLog) Pending() []Movement {
	out := make([]Movement, len(l.entries)-l.committed)
	copy(out, l.entries[l.committed:])
	return out
}

// MarkCommitted flags every entry as persisted.
func (l *MovementLog) MarkCommitted() {
	l.committed = len(l.entries)
}

// Len returns the number of entries.
func (l *MovementLog) Len() int {
	return len(l.entries)
}

// Sum returns the signed total of all quantities.
func (l *MovementLog) Sum() int64 {
	var total int64
	for _, m := range l.entries {
		total += m.Quantity
	}
	return total
}

// HasReference reports whether an entry with the given reference exists in memory.
func (l *MovementLog) HasReference(refType ReferenceType, refID string) bool {
	if refID == "" {
		return false
	}
	for _, m := range l.entries {
		if m.ReferenceType == refType && m.ReferenceID == refID {
			return true
		}
	}
	return false
}
