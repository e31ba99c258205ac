package postgres

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockpos/internal/core/id"
	"stockpos/internal/domain/ledger"
	"stockpos/internal/domain/settlement"
)

type stamped struct {
	CreatedAt time.Time `db:"created_at"`
}

type embeddedRow struct {
	stamped
	Name   string `db:"name"`
	Hidden string `db:"-"`
	Plain  string
}

func TestExtractDBColumns_Movement(t *testing.T) {
	cols := ExtractDBColumns[ledger.Movement]()

	require.Len(t, cols, 14)
	assert.Equal(t, "id", cols[0])
	assert.Contains(t, cols, "reference_id")
	assert.Contains(t, cols, "stock_after")
	assert.Equal(t, "created_at", cols[len(cols)-1])
}

func TestExtractDBColumns_SkipsUntaggedAndIgnored(t *testing.T) {
	cols := ExtractDBColumns[embeddedRow]()

	assert.Equal(t, []string{"created_at", "name"}, cols)
}

func TestStructToMap_Transaction(t *testing.T) {
	now := time.Now().UTC()
	tx := &settlement.Transaction{
		ID:          id.New(),
		Number:      "SALE-2026-00001",
		Kind:        settlement.KindSale,
		StoreID:     id.New(),
		CashierID:   "cashier-7",
		Status:      settlement.StatusSettled,
		StockStatus: settlement.StockPending,
		CreatedAt:   now,
		Lines:       []settlement.Line{{LineNo: 1}},
	}

	m := StructToMap(tx)

	assert.Equal(t, tx.ID, m["id"])
	assert.Equal(t, "SALE-2026-00001", m["number"])
	assert.Equal(t, settlement.KindSale, m["kind"])
	assert.Equal(t, now, m["created_at"])
	assert.NotContains(t, m, "lines")
	assert.Nil(t, m["original_id"])
}

func TestStructToMap_NotAStruct(t *testing.T) {
	assert.Nil(t, StructToMap(42))
}

func TestStructValues_FollowsColumnOrder(t *testing.T) {
	row := embeddedRow{stamped: stamped{CreatedAt: time.Unix(0, 0)}, Name: "milk"}

	vals := StructValues(row, []string{"name", "created_at", "missing"})

	assert.Equal(t, []any{"milk", time.Unix(0, 0), nil}, vals)
}
