package transfer_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockpos/internal/core/apperror"
	"stockpos/internal/core/id"
	"stockpos/internal/domain/audit"
	"stockpos/internal/domain/catalog"
	"stockpos/internal/domain/ledger"
	"stockpos/internal/domain/policy"
	"stockpos/internal/domain/transfer"
	"stockpos/internal/infrastructure/storage/memory"
)

// creditFails breaks AddStock while fail is set.
type creditFails struct {
	*ledger.Service
	fail bool
}

func (l *creditFails) AddStock(ctx context.Context, key ledger.Key, m ledger.Mutation) (*ledger.Result, error) {
	if l.fail {
		return nil, apperror.NewPersistence("add_stock", errors.New("deadline exceeded"))
	}
	return l.Service.AddStock(ctx, key, m)
}

type fixture struct {
	svc      *transfer.Service
	ledger   *creditFails
	audit    *memory.DiscrepancyLog
	products *memory.Catalog
	product  id.ID
	from    id.ID
	to      id.ID
}

func newFixture(t *testing.T, sourceStock int64) *fixture {
	t.Helper()
	f := &fixture{audit: memory.NewDiscrepancyLog(), product: id.New(), from: id.New(), to: id.New()}

	products := memory.NewCatalog()
	f.products = products
	// only the source store lists the product
	products.PutProduct(catalog.Product{
		ID:           f.product,
		StoreID:      f.from,
		Name:         "Olive oil 1L",
		CostPrice:    decimal.RequireFromString("5.00"),
		SellingPrice: decimal.RequireFromString("8.90"),
		ReorderPoint: 4,
	})
	negative, err := policy.NewNegativeStock(products)
	require.NoError(t, err)
	f.ledger = &creditFails{Service: ledger.NewService(memory.NewLedgerRepo(), memory.NewTxManager(), products, negative)}
	f.svc = transfer.NewService(f.ledger, f.audit)

	ctx := context.Background()
	key := ledger.Key{ProductID: f.product, StoreID: f.from}
	_, err = f.ledger.EnsureRecord(ctx, key, nil)
	require.NoError(t, err)
	_, err = f.ledger.Service.AddStock(ctx, key, ledger.Mutation{Quantity: sourceStock, Reason: "opening", Actor: "clerk-1"})
	require.NoError(t, err)
	return f
}

func (f *fixture) request(qty int64) transfer.Request {
	return transfer.Request{ProductID: f.product, FromStoreID: f.from, ToStoreID: f.to, Quantity: qty, Actor: "clerk-1"}
}

func (f *fixture) movements(t *testing.T, storeID id.ID) []ledger.Movement {
	t.Helper()
	ms, err := f.ledger.ListMovements(context.Background(), ledger.MovementFilter{
		Key: ledger.Key{ProductID: f.product, StoreID: storeID},
	})
	require.NoError(t, err)
	return ms
}

func TestTransfer(t *testing.T) {
	f := newFixture(t, 30)

	res, err := f.svc.Transfer(context.Background(), f.request(10))
	require.NoError(t, err)

	assert.Equal(t, int64(20), res.Source.CurrentStock)
	assert.Equal(t, int64(10), res.Destination.CurrentStock)
	assert.Equal(t, "Olive oil 1L", res.Destination.Snapshot.Name, "destination seeded from the source")

	src := f.movements(t, f.from)
	dst := f.movements(t, f.to)
	require.Len(t, src, 2)
	require.Len(t, dst, 1)
	assert.Equal(t, ledger.MovementTransferOut, src[1].Type)
	assert.Equal(t, int64(-10), src[1].Quantity)
	assert.Equal(t, ledger.MovementTransferIn, dst[0].Type)
	assert.Equal(t, res.TransferID.String(), dst[0].ReferenceID)
}

func TestTransfer_InsufficientSource(t *testing.T) {
	f := newFixture(t, 5)

	_, err := f.svc.Transfer(context.Background(), f.request(10))
	assert.True(t, apperror.HasCode(err, apperror.CodeInsufficientStock))
	assert.Len(t, f.movements(t, f.from), 1)
}

func TestTransfer_KeepsFloorWhenStoreAllowsNegative(t *testing.T) {
	f := newFixture(t, 5)
	ctx := context.Background()
	f.products.PutStoreSettings(catalog.StoreSettings{StoreID: f.from, AllowNegativeStock: true})

	_, err := f.svc.Transfer(ctx, f.request(50))
	require.Error(t, err)
	assert.True(t, apperror.HasCode(err, apperror.CodeInsufficientStock))

	src, err := f.ledger.Get(ctx, ledger.Key{ProductID: f.product, StoreID: f.from})
	require.NoError(t, err)
	assert.Equal(t, int64(5), src.CurrentStock)
	_, err = f.ledger.Get(ctx, ledger.Key{ProductID: f.product, StoreID: f.to})
	assert.True(t, apperror.IsNotFound(err))

	// the same store may still oversell through a plain removal
	res, err := f.ledger.RemoveStock(ctx, ledger.Key{ProductID: f.product, StoreID: f.from},
		ledger.Mutation{Quantity: 8, Reason: "sale", Actor: "cashier-1"})
	require.NoError(t, err)
	assert.Equal(t, int64(-3), res.Record.CurrentStock)
}

func TestTransfer_Incomplete(t *testing.T) {
	f := newFixture(t, 30)
	ctx := context.Background()
	f.ledger.fail = true

	_, err := f.svc.Transfer(ctx, f.request(10))
	require.Error(t, err)
	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperror.CodeTransferIncomplete, appErr.Code)

	found, err := f.audit.ListDiscrepancies(ctx, time.Time{}, 10)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, audit.KindTransferUnbalanced, found[0].Kind)

	transferID, err := id.Parse(found[0].ReferenceID)
	require.NoError(t, err)

	t.Run("Resume", func(t *testing.T) {
		f.ledger.fail = false
		req := f.request(10)
		req.TransferID = &transferID

		res, err := f.svc.Transfer(ctx, req)
		require.NoError(t, err)
		assert.Equal(t, int64(20), res.Source.CurrentStock, "source is not debited twice")
		assert.Equal(t, int64(10), res.Destination.CurrentStock)
	})
}

func TestRequest_Validate(t *testing.T) {
	base := transfer.Request{ProductID: id.New(), FromStoreID: id.New(), ToStoreID: id.New(), Quantity: 1, Actor: "a"}

	same := base
	same.ToStoreID = same.FromStoreID
	zero := base
	zero.Quantity = 0
	noActor := base
	noActor.Actor = ""

	assert.NoError(t, base.Validate())
	assert.True(t, apperror.HasCode(same.Validate(), apperror.CodeValidation))
	assert.True(t, apperror.HasCode(zero.Validate(), apperror.CodeInvalidQuantity))
	assert.True(t, apperror.HasCode(noActor.Validate(), apperror.CodeValidation))
}
