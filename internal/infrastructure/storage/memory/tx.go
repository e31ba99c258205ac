// Package memory provides in-process implementations of the storage
// contracts. It backs STORAGE=memory (local runs, demos) and the unit tests.
// Nothing survives a restart.
package memory

import (
	"context"
	"sync"

	"stockpos/internal/core/tx"
)

type txKey struct{}

// TxManager runs write transactions one at a time, so a read-check-write
// sequence inside fn sees no interleaved writer. There is no rollback.
// Nested calls join the outer transaction.
type TxManager struct {
	mu sync.Mutex
}

// NewTxManager creates a TxManager.
func NewTxManager() *TxManager { return &TxManager{} }

// RunInTransaction implements tx.Manager.
func (m *TxManager) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(txKey{}) != nil {
		return fn(ctx)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn(context.WithValue(ctx, txKey{}, true))
}

// ReadOnly implements tx.ReadOnlyManager.
func (m *TxManager) ReadOnly(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

var _ tx.ReadOnlyManager = (*TxManager)(nil)
