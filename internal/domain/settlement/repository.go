package settlement

import (
	"context"

	"stockpos/internal/core/id"
)

// Repository persists transactions.
type Repository interface {
	// Create stores the transaction and its lines. Duplicate IDs return apperror CONFLICT.
	Create(ctx context.Context, t *Transaction) error
	// Get returns the transaction with lines or apperror NOT_FOUND.
	Get(ctx context.Context, txID id.ID) (*Transaction, error)
	// SaveStockOutcome writes line outcomes and the stock status.
	SaveStockOutcome(ctx context.Context, t *Transaction) error
	// ReturnedQuantities sums, per product, the lines of every return recorded
	// against originalID. Inside a transaction it holds the original sale
	// until commit so concurrent returns against it run one after another.
	ReturnedQuantities(ctx context.Context, originalID id.ID) (map[id.ID]int64, error)
}
