// Package tx decouples domain services from the storage transaction implementation.
package tx

import (
	"context"
)

// Manager runs a unit of work atomically.
//
// Nested calls reuse the transaction already carried by ctx.
// The postgres implementation lives in infrastructure/storage/postgres,
// the in-memory one in infrastructure/storage/memory.
type Manager interface {
	// RunInTransaction executes fn within a transaction.
	// If fn returns an error, the transaction is rolled back.
	RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// ReadOnlyManager extends Manager with read-only transaction support.
type ReadOnlyManager interface {
	Manager

	// ReadOnly executes fn in a read-only transaction.
	ReadOnly(ctx context.Context, fn func(ctx context.Context) error) error
}
