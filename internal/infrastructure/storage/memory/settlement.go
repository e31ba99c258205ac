package memory

import (
	"context"
	"sync"

	"stockpos/internal/core/apperror"
	"stockpos/internal/core/id"
	"stockpos/internal/domain/settlement"
)

// TransactionRepo stores settled transactions.
type TransactionRepo struct {
	mu   sync.RWMutex
	byID map[id.ID]*settlement.Transaction
}

// NewTransactionRepo creates an empty repository.
func NewTransactionRepo() *TransactionRepo {
	return &TransactionRepo{byID: make(map[id.ID]*settlement.Transaction)}
}

func (r *TransactionRepo) Create(_ context.Context, t *settlement.Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byID[t.ID]; ok {
		return apperror.NewConflict("transaction already exists").WithDetail("id", t.ID)
	}
	r.byID[t.ID] = cloneTransaction(t)
	return nil
}

func (r *TransactionRepo) Get(_ context.Context, txID id.ID) (*settlement.Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.byID[txID]
	if !ok {
		return nil, apperror.NewNotFound("transaction", txID)
	}
	return cloneTransaction(t), nil
}

func (r *TransactionRepo) SaveStockOutcome(_ context.Context, t *settlement.Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byID[t.ID]; !ok {
		return apperror.NewNotFound("transaction", t.ID)
	}
	r.byID[t.ID] = cloneTransaction(t)
	return nil
}

func (r *TransactionRepo) ReturnedQuantities(_ context.Context, originalID id.ID) (map[id.ID]int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[id.ID]int64)
	for _, t := range r.byID {
		if t.Kind != settlement.KindReturn || t.OriginalID == nil || *t.OriginalID != originalID {
			continue
		}
		for _, l := range t.Lines {
			out[l.ProductID] += l.Quantity
		}
	}
	return out, nil
}

func cloneTransaction(t *settlement.Transaction) *settlement.Transaction {
	c := *t
	c.Lines = append([]settlement.Line(nil), t.Lines...)
	return &c
}

var _ settlement.Repository = (*TransactionRepo)(nil)
