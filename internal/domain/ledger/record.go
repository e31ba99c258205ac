// Package ledger holds the per-store inventory record, its movement log
// and the stock mutation operations that are the only way to change it.
package ledger

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"stockpos/internal/core/apperror"
	"stockpos/internal/core/id"
	"stockpos/internal/core/types"
	"stockpos/internal/domain/catalog"
)

// Key identifies a record: one per product per store.
type Key struct {
	ProductID id.ID `json:"productId"`
	StoreID   id.ID `json:"storeId"`
}

// Validate rejects nil identifiers.
func (k Key) Validate() error {
	if id.IsNil(k.ProductID) {
		return apperror.NewValidation("productId is required").WithDetail("field", "productId")
	}
	if id.IsNil(k.StoreID) {
		return apperror.NewValidation("storeId is required").WithDetail("field", "storeId")
	}
	return nil
}

// ProductSnapshot is a denormalized copy of catalog data taken at SyncedAt.
// It may drift from the catalog until refreshed.
type ProductSnapshot struct {
	Name         string      `json:"name"`
	Barcode      string      `json:"barcode,omitempty"`
	Category     string      `json:"category,omitempty"`
	CostPrice    types.Money `json:"costPrice"`
	SellingPrice types.Money `json:"sellingPrice"`
	ExpiryDate   *time.Time  `json:"expiryDate,omitempty"`
	SyncedAt     time.Time   `json:"syncedAt"`
}

// SnapshotOf copies the catalog fields kept on a record.
func SnapshotOf(p *catalog.Product, now time.Time) ProductSnapshot {
	return ProductSnapshot{
		Name:         p.Name,
		Barcode:      p.Barcode,
		Category:     p.Category,
		CostPrice:    p.CostPrice,
		SellingPrice: p.SellingPrice,
		ExpiryDate:   p.ExpiryDate,
		SyncedAt:     now,
	}
}

// Record is the inventory aggregate for one product in one store.
type Record struct {
	ID        id.ID `json:"id"`
	ProductID id.ID `json:"productId"`
	StoreID   id.ID `json:"storeId"`

	CurrentStock   int64 `json:"currentStock"`
	ReservedStock  int64 `json:"reservedStock"`
	AvailableStock int64 `json:"availableStock"`

	ReorderPoint    int64 `json:"reorderPoint"`
	ReorderQuantity int64 `json:"reorderQuantity"`
	MaxStockLevel   int64 `json:"maxStockLevel"`

	Snapshot ProductSnapshot `json:"productSnapshot"`
	Alerts   AlertState      `json:"alerts"`

	AverageCost types.Money `json:"averageCost"`
	TotalValue  types.Money `json:"totalValue"`

	LastMovementAt *time.Time `json:"lastMovementAt,omitempty"`

	// Version is bumped on every save and compared on update.
	Version   int       `json:"version"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	log         MovementLog
	transitions []AlertTransition
}

// NewRecord creates an empty record seeded from the catalog product.
func NewRecord(key Key, p *catalog.Product, now time.Time) (*Record, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	r := &Record{
		ID:          id.New(),
		ProductID:   key.ProductID,
		StoreID:     key.StoreID,
		AverageCost: decimal.Zero,
		TotalValue:  decimal.Zero,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if p != nil {
		r.ReorderPoint = p.ReorderPoint
		r.ReorderQuantity = p.ReorderQuantity
		r.MaxStockLevel = p.MaxStockLevel
		r.Snapshot = SnapshotOf(p, now)
	}
	r.Recompute()
	r.RefreshAlerts(now)
	return r, nil
}

// Clone returns a copy of the stored state, without movement log or pending transitions.
func (r *Record) Clone() *Record {
	c := *r
	c.log = MovementLog{}
	c.transitions = nil
	return &c
}

// Key returns the record's key.
func (r *Record) Key() Key {
	return Key{ProductID: r.ProductID, StoreID: r.StoreID}
}

// Movements exposes the record's movement log.
func (r *Record) Movements() *MovementLog {
	return &r.log
}

// PendingTransitions returns alert transitions produced since the last save.
func (r *Record) PendingTransitions() []AlertTransition {
	return r.transitions
}

// MarkSaved clears pending movements and transitions after a successful save.
func (r *Record) MarkSaved() {
	r.log.MarkCommitted()
	r.transitions = nil
}

// Recompute refreshes derived values: availableStock and totalValue.
func (r *Record) Recompute() {
	r.AvailableStock = max(0, r.CurrentStock-r.ReservedStock)
	r.TotalValue = types.Extend(r.UnitCost(), r.CurrentStock)
}

// UnitCost is the average cost when known, otherwise the snapshot cost price.
func (r *Record) UnitCost() types.Money {
	if !r.AverageCost.IsZero() {
		return r.AverageCost
	}
	return r.Snapshot.CostPrice
}

// RefreshAlerts re-runs the alert evaluator and queues any transitions.
func (r *Record) RefreshAlerts(now time.Time) []AlertTransition {
	next, transitions := EvaluateAlerts(r.Alerts, AlertInput{
		CurrentStock: r.CurrentStock,
		ReorderPoint: r.ReorderPoint,
		ExpiryDate:   r.Snapshot.ExpiryDate,
	}, now)
	r.Alerts = next
	r.transitions = append(r.transitions, transitions...)
	return transitions
}

// ApplySnapshot replaces the product snapshot and re-evaluates alerts (expiry may change).
func (r *Record) ApplySnapshot(s ProductSnapshot, now time.Time) {
	r.Snapshot = s
	r.Recompute()
	r.RefreshAlerts(now)
}

// Mutation carries the caller-supplied part of a stock change.
type Mutation struct {
	Quantity      int64
	Reason        string
	Actor         string
	ReferenceID   string
	ReferenceType ReferenceType
	// Type overrides the default movement type within the same direction
	// (in: return, transfer_in; out: damage, transfer_out).
	Type MovementType
	// UnitCost, when set on AddStock, feeds the weighted average cost.
	UnitCost *types.Money
}

func (m Mutation) validateActor() error {
	if strings.TrimSpace(m.Actor) == "" {
		return apperror.NewValidation("performedBy is required").WithDetail("field", "performedBy")
	}
	return nil
}

func (m Mutation) movementType(def MovementType, allowed func(MovementType) bool) (MovementType, error) {
	if m.Type == "" {
		return def, nil
	}
	if !allowed(m.Type) {
		return "", apperror.NewValidation("movement type does not match the operation").
			WithDetail("type", m.Type)
	}
	return m.Type, nil
}

// AddStock increases currentStock by m.Quantity.
func (r *Record) AddStock(m Mutation, now time.Time) (*Movement, error) {
	if m.Quantity <= 0 {
		return nil, apperror.NewInvalidQuantity("add", m.Quantity)
	}
	if err := m.validateActor(); err != nil {
		return nil, err
	}
	mt, err := m.movementType(MovementIn, MovementType.increases)
	if err != nil {
		return nil, err
	}
	if m.UnitCost != nil && m.UnitCost.IsNegative() {
		return nil, apperror.NewValidation("unitCost must not be negative").WithDetail("field", "unitCost")
	}

	if m.UnitCost != nil {
		r.AverageCost = types.WeightedAverage(r.CurrentStock, r.AverageCost, m.Quantity, *m.UnitCost)
	}
	return r.apply(mt, m.Quantity, m, now), nil
}

// RemoveStock decreases currentStock by m.Quantity.
// The on-hand floor is enforced unless allowNegative is set for the store.
func (r *Record) RemoveStock(m Mutation, allowNegative bool, now time.Time) (*Movement, error) {
	if m.Quantity <= 0 {
		return nil, apperror.NewInvalidQuantity("remove", m.Quantity)
	}
	if err := m.validateActor(); err != nil {
		return nil, err
	}
	mt, err := m.movementType(MovementOut, MovementType.decreases)
	if err != nil {
		return nil, err
	}
	if !allowNegative && r.CurrentStock < m.Quantity {
		return nil, apperror.NewInsufficientStock(r.ProductID.String(), m.Quantity, r.CurrentStock).
			WithDetail("store_id", r.StoreID.String())
	}
	return r.apply(mt, -m.Quantity, m, now), nil
}

// AdjustStock sets currentStock to newQuantity and records the signed delta.
// A zero delta is still recorded so that every count leaves a trace.
func (r *Record) AdjustStock(newQuantity int64, m Mutation, now time.Time) (*Movement, error) {
	if newQuantity < 0 {
		return nil, apperror.NewInvalidQuantity("adjust", newQuantity)
	}
	if err := m.validateActor(); err != nil {
		return nil, err
	}
	return r.apply(MovementAdjustment, newQuantity-r.CurrentStock, m, now), nil
}

// ReserveStock earmarks quantity units. No movement is recorded.
func (r *Record) ReserveStock(quantity int64, now time.Time) error {
	if quantity <= 0 {
		return apperror.NewInvalidQuantity("reserve", quantity)
	}
	if r.AvailableStock < quantity {
		return apperror.NewInsufficientAvailableStock(r.ProductID.String(), quantity, r.AvailableStock).
			WithDetail("store_id", r.StoreID.String())
	}
	r.ReservedStock += quantity
	r.touch(now)
	return nil
}

// ReleaseReservedStock frees up to quantity reserved units, clamped at zero.
// It returns the number of units actually released.
func (r *Record) ReleaseReservedStock(quantity int64, now time.Time) (int64, error) {
	if quantity <= 0 {
		return 0, apperror.NewInvalidQuantity("release", quantity)
	}
	released := min(quantity, r.ReservedStock)
	r.ReservedStock -= released
	r.touch(now)
	return released, nil
}

func (r *Record) apply(mt MovementType, delta int64, m Mutation, now time.Time) *Movement {
	before := r.CurrentStock
	r.CurrentStock += delta

	mv := Movement{
		ID:            id.New(),
		RecordID:      r.ID,
		ProductID:     r.ProductID,
		StoreID:       r.StoreID,
		Type:          mt,
		Quantity:      delta,
		StockBefore:   before,
		StockAfter:    r.CurrentStock,
		UnitCost:      m.UnitCost,
		Reason:        m.Reason,
		ReferenceID:   m.ReferenceID,
		ReferenceType: m.ReferenceType,
		PerformedBy:   m.Actor,
		Timestamp:     now,
	}
	r.log.Append(mv)
	at := now
	r.LastMovementAt = &at
	r.touch(now)
	return &mv
}

func (r *Record) touch(now time.Time) {
	r.UpdatedAt = now
	r.Recompute()
	r.RefreshAlerts(now)
}
