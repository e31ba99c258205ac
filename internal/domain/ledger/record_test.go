package ledger

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockpos/internal/core/apperror"
	"stockpos/internal/core/id"
	"stockpos/internal/domain/catalog"
)

func newTestRecord(t *testing.T, reorderPoint int64) *Record {
	t.Helper()
	p := &catalog.Product{
		ID:           id.New(),
		StoreID:      id.New(),
		Name:         "Rice 5kg",
		Category:     "grocery",
		CostPrice:    decimal.RequireFromString("4.00"),
		SellingPrice: decimal.RequireFromString("6.50"),
		ReorderPoint: reorderPoint,
	}
	r, err := NewRecord(Key{ProductID: p.ID, StoreID: p.StoreID}, p, time.Now().UTC())
	require.NoError(t, err)
	r.MarkSaved()
	return r
}

func mut(qty int64) Mutation {
	return Mutation{Quantity: qty, Reason: "test", Actor: "clerk-1"}
}

func TestRecord_AddRemoveAlerts(t *testing.T) {
	r := newTestRecord(t, 10)
	now := time.Now().UTC()

	_, err := r.AddStock(mut(50), now)
	require.NoError(t, err)
	assert.Equal(t, int64(50), r.CurrentStock)
	assert.Equal(t, int64(50), r.AvailableStock)
	assert.False(t, r.Alerts.LowStock.IsActive)
	assert.False(t, r.Alerts.OutOfStock.IsActive)

	_, err = r.RemoveStock(mut(45), false, now)
	require.NoError(t, err)
	assert.Equal(t, int64(5), r.CurrentStock)
	assert.True(t, r.Alerts.LowStock.IsActive)

	mv, err := r.RemoveStock(mut(5), false, now)
	require.NoError(t, err)
	assert.Equal(t, int64(0), r.CurrentStock)
	assert.True(t, r.Alerts.OutOfStock.IsActive)
	assert.True(t, r.Alerts.LowStock.IsActive)

	assert.Equal(t, MovementOut, mv.Type)
	assert.Equal(t, int64(-5), mv.Quantity)
	assert.Equal(t, int64(5), mv.StockBefore)
	assert.Equal(t, int64(0), mv.StockAfter)
	assert.Len(t, r.Movements().Pending(), 3)
}

func TestRecord_Reserve(t *testing.T) {
	r := newTestRecord(t, 0)
	now := time.Now().UTC()
	_, err := r.AddStock(mut(20), now)
	require.NoError(t, err)

	require.NoError(t, r.ReserveStock(15, now))
	assert.Equal(t, int64(5), r.AvailableStock)

	err = r.ReserveStock(10, now)
	require.Error(t, err)
	assert.True(t, apperror.HasCode(err, apperror.CodeInsufficientAvailableStock))
	assert.Equal(t, int64(15), r.ReservedStock)
	assert.Equal(t, int64(20), r.CurrentStock)

	released, err := r.ReleaseReservedStock(40, now)
	require.NoError(t, err)
	assert.Equal(t, int64(15), released)
	assert.Equal(t, int64(0), r.ReservedStock)
	assert.Equal(t, int64(20), r.AvailableStock)
}

func TestRecord_RemoveBelowFloor(t *testing.T) {
	r := newTestRecord(t, 0)
	now := time.Now().UTC()
	_, err := r.AddStock(mut(100), now)
	require.NoError(t, err)
	r.MarkSaved()

	_, err = r.RemoveStock(mut(150), false, now)
	require.Error(t, err)
	assert.True(t, apperror.HasCode(err, apperror.CodeInsufficientStock))
	assert.Equal(t, int64(100), r.CurrentStock)
	assert.Empty(t, r.Movements().Pending())

	t.Run("AllowedNegative", func(t *testing.T) {
		mv, err := r.RemoveStock(mut(150), true, now)
		require.NoError(t, err)
		assert.Equal(t, int64(-50), r.CurrentStock)
		assert.Equal(t, int64(0), r.AvailableStock)
		assert.Equal(t, int64(-50), mv.StockAfter)
		assert.True(t, r.Alerts.OutOfStock.IsActive)
	})
}

func TestRecord_Adjust(t *testing.T) {
	r := newTestRecord(t, 0)
	now := time.Now().UTC()
	_, err := r.AddStock(mut(12), now)
	require.NoError(t, err)

	mv, err := r.AdjustStock(9, mut(0), now)
	require.NoError(t, err)
	assert.Equal(t, MovementAdjustment, mv.Type)
	assert.Equal(t, int64(-3), mv.Quantity)
	assert.Equal(t, int64(9), r.CurrentStock)

	mv, err = r.AdjustStock(9, mut(0), now)
	require.NoError(t, err)
	assert.Equal(t, int64(0), mv.Quantity, "a zero-delta count is still recorded")

	_, err = r.AdjustStock(-1, mut(0), now)
	assert.True(t, apperror.HasCode(err, apperror.CodeInvalidQuantity))
}

func TestRecord_Validation(t *testing.T) {
	r := newTestRecord(t, 0)
	now := time.Now().UTC()

	tests := []struct {
		name string
		run  func() error
		code string
	}{
		{"AddZero", func() error { _, err := r.AddStock(mut(0), now); return err }, apperror.CodeInvalidQuantity},
		{"RemoveNegative", func() error { _, err := r.RemoveStock(mut(-2), false, now); return err }, apperror.CodeInvalidQuantity},
		{"ReserveZero", func() error { return r.ReserveStock(0, now) }, apperror.CodeInvalidQuantity},
		{"ReleaseZero", func() error { _, err := r.ReleaseReservedStock(0, now); return err }, apperror.CodeInvalidQuantity},
		{"NoActor", func() error {
			_, err := r.AddStock(Mutation{Quantity: 1, Reason: "x"}, now)
			return err
		}, apperror.CodeValidation},
		{"WrongDirection", func() error {
			m := mut(1)
			m.Type = MovementDamage
			_, err := r.AddStock(m, now)
			return err
		}, apperror.CodeValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.run()
			require.Error(t, err)
			assert.True(t, apperror.HasCode(err, tt.code), err.Error())
		})
	}
	assert.Equal(t, int64(0), r.CurrentStock)
	assert.Empty(t, r.Movements().Pending())
}

func TestRecord_AverageCost(t *testing.T) {
	r := newTestRecord(t, 0)
	now := time.Now().UTC()

	cost := decimal.RequireFromString("2.00")
	m := mut(10)
	m.UnitCost = &cost
	_, err := r.AddStock(m, now)
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("2.00").Equal(r.AverageCost), r.AverageCost.String())
	assert.True(t, decimal.RequireFromString("20.00").Equal(r.TotalValue), r.TotalValue.String())
}
