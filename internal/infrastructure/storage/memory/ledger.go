package memory

import (
	"context"
	"sort"
	"sync"

	"stockpos/internal/core/apperror"
	"stockpos/internal/core/id"
	"stockpos/internal/domain/ledger"
)

// LedgerRepo stores records and movements in maps.
type LedgerRepo struct {
	mu        sync.RWMutex
	records   map[ledger.Key]*ledger.Record
	movements map[id.ID][]ledger.Movement
}

// NewLedgerRepo creates an empty repository.
func NewLedgerRepo() *LedgerRepo {
	return &LedgerRepo{
		records:   make(map[ledger.Key]*ledger.Record),
		movements: make(map[id.ID][]ledger.Movement),
	}
}

func (r *LedgerRepo) Get(_ context.Context, key ledger.Key) (*ledger.Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.records[key]
	if !ok {
		return nil, apperror.NewRecordNotFound(key.ProductID, key.StoreID)
	}
	return rec.Clone(), nil
}

func (r *LedgerRepo) Create(_ context.Context, rec *ledger.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := rec.Key()
	if _, ok := r.records[key]; ok {
		return apperror.NewConcurrentModification("inventory_record", key)
	}
	rec.Version = 1
	r.records[key] = rec.Clone()
	return nil
}

func (r *LedgerRepo) Update(_ context.Context, rec *ledger.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := rec.Key()
	stored, ok := r.records[key]
	if !ok {
		return apperror.NewRecordNotFound(key.ProductID, key.StoreID)
	}
	if stored.Version != rec.Version {
		return apperror.NewConcurrentModification("inventory_record", rec.ID)
	}
	rec.Version++
	r.records[key] = rec.Clone()
	return nil
}

func (r *LedgerRepo) AppendMovements(_ context.Context, movements []ledger.Movement) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, m := range movements {
		r.movements[m.RecordID] = append(r.movements[m.RecordID], m)
	}
	return nil
}

func (r *LedgerRepo) HasReference(_ context.Context, recordID id.ID, refType ledger.ReferenceType, refID string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, m := range r.movements[recordID] {
		if m.ReferenceType == refType && m.ReferenceID == refID {
			return true, nil
		}
	}
	return false, nil
}

func (r *LedgerRepo) ListMovements(_ context.Context, f ledger.MovementFilter) ([]ledger.Movement, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.records[f.Key]
	if !ok {
		return nil, apperror.NewRecordNotFound(f.ProductID, f.StoreID)
	}

	var out []ledger.Movement
	for _, m := range r.movements[rec.ID] {
		if f.Type != nil && m.Type != *f.Type {
			continue
		}
		if f.FromDate != nil && m.Timestamp.Before(*f.FromDate) {
			continue
		}
		if f.ToDate != nil && m.Timestamp.After(*f.ToDate) {
			continue
		}
		out = append(out, m)
	}
	return page(out, f.Limit, f.Offset), nil
}

func (r *LedgerRepo) List(_ context.Context, f ledger.ListFilter) ([]ledger.Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []ledger.Record
	for _, rec := range r.records {
		if f.StoreID != nil && rec.StoreID != *f.StoreID {
			continue
		}
		if f.LowStockOnly && rec.CurrentStock > rec.ReorderPoint {
			continue
		}
		if f.WithExpiry && rec.Snapshot.ExpiryDate == nil {
			continue
		}
		out = append(out, *rec.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CurrentStock != out[j].CurrentStock {
			return out[i].CurrentStock < out[j].CurrentStock
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return page(out, f.Limit, f.Offset), nil
}

// Movements returns every stored movement of a record, for tests and diagnostics.
func (r *LedgerRepo) Movements(recordID id.ID) []ledger.Movement {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]ledger.Movement(nil), r.movements[recordID]...)
}

func page[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

var _ ledger.Repository = (*LedgerRepo)(nil)
