package settlement_test

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockpos/internal/core/apperror"
	"stockpos/internal/core/id"
	"stockpos/internal/domain/audit"
	"stockpos/internal/domain/catalog"
	"stockpos/internal/domain/ledger"
	"stockpos/internal/domain/policy"
	"stockpos/internal/domain/settlement"
	"stockpos/internal/infrastructure/storage/memory"
)

// breakingLedger fails RemoveStock and AddStock for one product while broken is set.
type breakingLedger struct {
	*ledger.Service
	product id.ID
	broken  bool
}

func (l *breakingLedger) RemoveStock(ctx context.Context, key ledger.Key, m ledger.Mutation) (*ledger.Result, error) {
	if l.broken && key.ProductID == l.product {
		return nil, apperror.NewPersistence("remove_stock", errors.New("connection reset by peer"))
	}
	return l.Service.RemoveStock(ctx, key, m)
}

func (l *breakingLedger) AddStock(ctx context.Context, key ledger.Key, m ledger.Mutation) (*ledger.Result, error) {
	if l.broken && key.ProductID == l.product {
		return nil, apperror.NewPersistence("add_stock", errors.New("connection reset by peer"))
	}
	return l.Service.AddStock(ctx, key, m)
}

type fixture struct {
	svc      *settlement.Service
	ledger   *breakingLedger
	products *memory.Catalog
	audit    *memory.DiscrepancyLog
	storeID  id.ID
	apple    id.ID
	bread    id.ID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		products: memory.NewCatalog(),
		audit:    memory.NewDiscrepancyLog(),
		storeID:  id.New(),
		apple:    id.New(),
		bread:    id.New(),
	}
	for _, p := range []catalog.Product{
		{ID: f.apple, StoreID: f.storeID, Name: "Apple", Category: "produce", SellingPrice: decimal.RequireFromString("0.50")},
		{ID: f.bread, StoreID: f.storeID, Name: "Bread", Category: "bakery", SellingPrice: decimal.RequireFromString("2.20")},
	} {
		f.products.PutProduct(p)
	}

	negative, err := policy.NewNegativeStock(f.products)
	require.NoError(t, err)
	txm := memory.NewTxManager()
	ledgerSvc := ledger.NewService(memory.NewLedgerRepo(), txm, f.products, negative)
	f.ledger = &breakingLedger{Service: ledgerSvc, product: f.bread}
	f.svc = settlement.NewService(memory.NewTransactionRepo(), f.ledger, memory.NewNumerator(), txm, negative, f.audit)
	return f
}

func (f *fixture) stock(t *testing.T, productID id.ID, qty int64) {
	t.Helper()
	ctx := context.Background()
	key := ledger.Key{ProductID: productID, StoreID: f.storeID}
	_, err := f.ledger.EnsureRecord(ctx, key, nil)
	require.NoError(t, err)
	_, err = f.ledger.Service.AddStock(ctx, key, ledger.Mutation{Quantity: qty, Reason: "opening", Actor: "clerk-1"})
	require.NoError(t, err)
}

func (f *fixture) onHand(t *testing.T, productID id.ID) int64 {
	t.Helper()
	rec, err := f.ledger.Get(context.Background(), ledger.Key{ProductID: productID, StoreID: f.storeID})
	require.NoError(t, err)
	return rec.CurrentStock
}

func (f *fixture) sale(lines ...settlement.LineInput) settlement.SaleRequest {
	return settlement.SaleRequest{StoreID: f.storeID, CashierID: "cashier-1", Lines: lines}
}

func line(productID id.ID, qty int64, price string) settlement.LineInput {
	return settlement.LineInput{ProductID: productID, Quantity: qty, UnitPrice: decimal.RequireFromString(price)}
}

func TestSettle_AppliesStock(t *testing.T) {
	f := newFixture(t)
	f.stock(t, f.apple, 10)
	f.stock(t, f.bread, 5)

	tx, err := f.svc.Settle(context.Background(), f.sale(line(f.apple, 3, "0.50"), line(f.bread, 2, "2.20")))
	require.NoError(t, err)

	assert.Equal(t, settlement.StatusSettled, tx.Status)
	assert.Equal(t, settlement.StockApplied, tx.StockStatus)
	assert.True(t, decimal.RequireFromString("5.90").Equal(tx.Total), tx.Total.String())
	assert.NotEmpty(t, tx.Number)
	assert.Equal(t, int64(7), f.onHand(t, f.apple))
	assert.Equal(t, int64(3), f.onHand(t, f.bread))
}

func TestSettle_PartialCommit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.stock(t, f.apple, 10)
	f.stock(t, f.bread, 5)
	f.ledger.broken = true

	tx, err := f.svc.Settle(ctx, f.sale(line(f.apple, 3, "0.50"), line(f.bread, 2, "2.20")))
	require.NoError(t, err, "a failing line never fails the bill")

	assert.Equal(t, settlement.StatusSettled, tx.Status)
	assert.Equal(t, settlement.StockPartial, tx.StockStatus)
	assert.Equal(t, settlement.OutcomeApplied, tx.Lines[0].Outcome)
	assert.Equal(t, settlement.OutcomeFailed, tx.Lines[1].Outcome)
	assert.NotEmpty(t, tx.Lines[1].StockError)
	assert.Equal(t, int64(7), f.onHand(t, f.apple))
	assert.Equal(t, int64(5), f.onHand(t, f.bread))

	found, err := f.audit.ListDiscrepancies(ctx, tx.CreatedAt.Add(-1), 10)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, audit.KindSaleLineNotApplied, found[0].Kind)
	assert.Equal(t, f.bread, found[0].ProductID)

	t.Run("Retry", func(t *testing.T) {
		f.ledger.broken = false

		retried, err := f.svc.RetryStockUpdates(ctx, tx.ID)
		require.NoError(t, err)
		assert.Equal(t, settlement.StockApplied, retried.StockStatus)
		assert.Equal(t, int64(7), f.onHand(t, f.apple), "applied lines are not applied twice")
		assert.Equal(t, int64(3), f.onHand(t, f.bread))

		stored, err := f.svc.Get(ctx, tx.ID)
		require.NoError(t, err)
		assert.Equal(t, settlement.StockApplied, stored.StockStatus)
	})
}

func TestSettle_RejectsBeforeWriting(t *testing.T) {
	f := newFixture(t)
	f.stock(t, f.apple, 10)
	f.stock(t, f.bread, 1)

	_, err := f.svc.Settle(context.Background(), f.sale(line(f.apple, 3, "0.50"), line(f.bread, 2, "2.20")))
	require.Error(t, err)
	assert.True(t, apperror.HasCode(err, apperror.CodeInsufficientAvailableStock))
	assert.Equal(t, int64(10), f.onHand(t, f.apple))
	assert.Equal(t, int64(1), f.onHand(t, f.bread))
}

func TestSettle_SameProductOnTwoLines(t *testing.T) {
	f := newFixture(t)
	f.stock(t, f.apple, 5)

	_, err := f.svc.Settle(context.Background(), f.sale(line(f.apple, 3, "0.50"), line(f.apple, 3, "0.50")))
	assert.True(t, apperror.HasCode(err, apperror.CodeInsufficientAvailableStock), "lines are checked combined")

	tx, err := f.svc.Settle(context.Background(), f.sale(line(f.apple, 2, "0.50"), line(f.apple, 2, "0.50")))
	require.NoError(t, err)
	assert.Equal(t, settlement.StockApplied, tx.StockStatus)
	assert.Equal(t, int64(1), f.onHand(t, f.apple))
}

func TestSettle_UntrackedProduct(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.stock(t, f.apple, 5)

	tx, err := f.svc.Settle(ctx, f.sale(line(f.apple, 1, "0.50"), line(f.bread, 1, "2.20")))
	require.NoError(t, err)
	assert.Equal(t, settlement.OutcomeUntracked, tx.Lines[1].Outcome)
	assert.Equal(t, settlement.StockApplied, tx.StockStatus)

	found, err := f.audit.ListDiscrepancies(ctx, tx.CreatedAt.Add(-1), 10)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, audit.KindUntrackedItem, found[0].Kind)
}

func TestSettle_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name string
		req  settlement.SaleRequest
		code string
	}{
		{"NoLines", f.sale(), apperror.CodeValidation},
		{"NoCashier", settlement.SaleRequest{StoreID: f.storeID, Lines: []settlement.LineInput{line(f.apple, 1, "1")}}, apperror.CodeValidation},
		{"NoStore", settlement.SaleRequest{CashierID: "c", Lines: []settlement.LineInput{line(f.apple, 1, "1")}}, apperror.CodeValidation},
		{"ZeroQuantity", f.sale(line(f.apple, 0, "1")), apperror.CodeInvalidQuantity},
		{"NegativePrice", f.sale(line(f.apple, 1, "-1")), apperror.CodeValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Settle(ctx, tt.req)
			require.Error(t, err)
			assert.True(t, apperror.HasCode(err, tt.code), err.Error())
		})
	}
}

func TestSettle_ResubmittedID(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.stock(t, f.apple, 10)

	txID := id.New()
	req := f.sale(line(f.apple, 4, "0.50"))
	req.ID = &txID

	first, err := f.svc.Settle(ctx, req)
	require.NoError(t, err)
	second, err := f.svc.Settle(ctx, req)
	require.NoError(t, err)

	assert.Equal(t, first.Number, second.Number)
	assert.Equal(t, int64(6), f.onHand(t, f.apple))
}

func TestReturn(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.stock(t, f.apple, 10)

	sale, err := f.svc.Settle(ctx, f.sale(line(f.apple, 4, "0.50")))
	require.NoError(t, err)

	t.Run("ExceedsSold", func(t *testing.T) {
		_, err := f.svc.Return(ctx, settlement.ReturnRequest{
			StoreID: f.storeID, CashierID: "cashier-1", OriginalID: &sale.ID,
			Lines: []settlement.LineInput{line(f.apple, 5, "0.50")},
		})
		assert.True(t, apperror.HasCode(err, apperror.CodeValidation))
	})

	t.Run("AddsBack", func(t *testing.T) {
		ret, err := f.svc.Return(ctx, settlement.ReturnRequest{
			StoreID: f.storeID, CashierID: "cashier-1", OriginalID: &sale.ID,
			Lines: []settlement.LineInput{line(f.apple, 2, "0.50")},
		})
		require.NoError(t, err)
		assert.Equal(t, settlement.KindReturn, ret.Kind)
		assert.Equal(t, settlement.StockApplied, ret.StockStatus)
		assert.Equal(t, int64(8), f.onHand(t, f.apple))
	})
}

func TestGet_NotFound(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Get(context.Background(), id.New())
	assert.True(t, apperror.IsNotFound(err))
}

func TestSettle_OneMovementPerProduct(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.stock(t, f.apple, 10)
	f.stock(t, f.bread, 5)

	tx, err := f.svc.Settle(ctx, f.sale(line(f.apple, 2, "0.50"), line(f.bread, 1, "2.20"), line(f.apple, 1, "0.50")))
	require.NoError(t, err)
	for _, l := range tx.Lines {
		assert.Equal(t, settlement.OutcomeApplied, l.Outcome, "line %d", l.LineNo)
	}

	movements, err := f.ledger.ListMovements(ctx, ledger.MovementFilter{
		Key:  ledger.Key{ProductID: f.apple, StoreID: f.storeID},
		Type: ptr(ledger.MovementOut),
	})
	require.NoError(t, err)
	require.Len(t, movements, 1)
	assert.Equal(t, tx.ID.String(), movements[0].ReferenceID)
	assert.Equal(t, ledger.ReferenceSale, movements[0].ReferenceType)
	assert.Equal(t, int64(-3), movements[0].Quantity)
	assert.Contains(t, movements[0].Reason, "lines 1,3")
	assert.Equal(t, int64(7), f.onHand(t, f.apple))

	retried, err := f.svc.RetryStockUpdates(ctx, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, settlement.StockApplied, retried.StockStatus)
	assert.Equal(t, int64(7), f.onHand(t, f.apple))
}

func TestReturn_CountsEarlierReturns(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.stock(t, f.apple, 10)

	sale, err := f.svc.Settle(ctx, f.sale(line(f.apple, 4, "0.50")))
	require.NoError(t, err)
	require.Equal(t, int64(6), f.onHand(t, f.apple))

	ret := func(qty int64) error {
		_, err := f.svc.Return(ctx, settlement.ReturnRequest{
			StoreID: f.storeID, CashierID: "cashier-1", OriginalID: &sale.ID,
			Lines: []settlement.LineInput{line(f.apple, qty, "0.50")},
		})
		return err
	}

	require.NoError(t, ret(3))
	assert.True(t, apperror.HasCode(ret(2), apperror.CodeValidation), "3 returned of 4 sold")
	require.NoError(t, ret(1))
	assert.True(t, apperror.HasCode(ret(1), apperror.CodeValidation), "everything already returned")
	assert.True(t, apperror.HasCode(ret(4), apperror.CodeValidation))

	assert.Equal(t, int64(10), f.onHand(t, f.apple))
}

func TestReturn_ReusedSaleID(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.stock(t, f.apple, 10)

	txID := id.New()
	req := f.sale(line(f.apple, 4, "0.50"))
	req.ID = &txID
	_, err := f.svc.Settle(ctx, req)
	require.NoError(t, err)

	_, err = f.svc.Return(ctx, settlement.ReturnRequest{
		ID: &txID, StoreID: f.storeID, CashierID: "cashier-1",
		Lines: []settlement.LineInput{line(f.apple, 1, "0.50")},
	})
	require.Error(t, err)
	assert.True(t, apperror.HasCode(err, apperror.CodeValidation))
	assert.Equal(t, int64(6), f.onHand(t, f.apple))

	stored, err := f.svc.Get(ctx, txID)
	require.NoError(t, err)
	assert.Equal(t, settlement.KindSale, stored.Kind)
}

func ptr[T any](v T) *T { return &v }
