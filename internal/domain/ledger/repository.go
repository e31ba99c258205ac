package ledger

import (
	"context"
	"time"

	"stockpos/internal/core/id"
	"stockpos/internal/domain/policy"
)

// Repository persists records and their movements.
//
// Get returns apperror NOT_FOUND for unknown keys.
// Create and Update return apperror CONCURRENT_MODIFICATION when another
// writer got there first (duplicate key, version mismatch).
type Repository interface {
	Get(ctx context.Context, key Key) (*Record, error)

	// Create inserts a new record with Version 1.
	Create(ctx context.Context, r *Record) error

	// Update writes r if the stored version equals r.Version, then bumps r.Version.
	Update(ctx context.Context, r *Record) error

	// AppendMovements stores movements in the given order.
	AppendMovements(ctx context.Context, movements []Movement) error

	// HasReference reports whether a movement with this reference exists for the record.
	HasReference(ctx context.Context, recordID id.ID, refType ReferenceType, refID string) (bool, error)

	ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, error)
	List(ctx context.Context, filter ListFilter) ([]Record, error)
}

// MovementFilter for movement history.
type MovementFilter struct {
	Key
	Type     *MovementType
	FromDate *time.Time
	ToDate   *time.Time
	Limit    int
	Offset   int
}

// ListFilter for record listings.
type ListFilter struct {
	StoreID      *id.ID
	LowStockOnly bool // currentStock <= reorderPoint
	WithExpiry   bool // snapshot carries an expiry date
	Limit        int
	Offset       int
}

// EventPublisher receives alert transitions inside the saving transaction.
type EventPublisher interface {
	PublishAlerts(ctx context.Context, r *Record, transitions []AlertTransition) error
}

// Locker serializes writers of one record across processes.
type Locker interface {
	Acquire(ctx context.Context, key string) (func(context.Context), error)
}

// NegativeStockPolicy decides whether RemoveStock may go below zero on hand.
type NegativeStockPolicy interface {
	AllowNegative(ctx context.Context, line policy.Line) (bool, error)
}
