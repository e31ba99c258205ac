// Package settlement finalizes sale and return transactions and applies
// their stock effects line by line.
package settlement

import (
	"time"

	"stockpos/internal/core/apperror"
	"stockpos/internal/core/id"
	"stockpos/internal/core/types"
)

// Kind of transaction.
type Kind string

const (
	KindSale   Kind = "sale"
	KindReturn Kind = "return"
)

// Status of the bill itself. A settled bill stays settled whatever happens to stock.
type Status string

const (
	StatusSettled Status = "settled"
)

// StockStatus summarizes the commit phase.
type StockStatus string

const (
	StockPending StockStatus = "pending"
	StockApplied StockStatus = "applied"
	StockPartial StockStatus = "partial"
)

// LineOutcome is the stock outcome of one line.
type LineOutcome string

const (
	OutcomePending   LineOutcome = "pending"
	OutcomeApplied   LineOutcome = "applied"
	OutcomeUntracked LineOutcome = "untracked" // no inventory record for the product
	OutcomeFailed    LineOutcome = "failed"
)

// Transaction is a settled sale or return.
type Transaction struct {
	ID          id.ID       `db:"id" json:"id"`
	Number      string      `db:"number" json:"number"`
	Kind        Kind        `db:"kind" json:"kind"`
	StoreID     id.ID       `db:"store_id" json:"storeId"`
	CashierID   string      `db:"cashier_id" json:"cashierId"`
	OriginalID  *id.ID      `db:"original_id" json:"originalId,omitempty"`
	Total       types.Money `db:"total" json:"total"`
	Status      Status      `db:"status" json:"status"`
	StockStatus StockStatus `db:"stock_status" json:"stockStatus"`
	CreatedAt   time.Time   `db:"created_at" json:"createdAt"`
	SettledAt   time.Time   `db:"settled_at" json:"settledAt"`

	Lines []Line `db:"-" json:"lines"`
}

// Line of a transaction.
type Line struct {
	LineNo     int         `db:"line_no" json:"lineNo"`
	ProductID  id.ID       `db:"product_id" json:"productId"`
	Quantity   int64       `db:"quantity" json:"quantity"`
	UnitPrice  types.Money `db:"unit_price" json:"unitPrice"`
	Amount     types.Money `db:"amount" json:"amount"`
	Outcome    LineOutcome `db:"stock_outcome" json:"stockOutcome"`
	StockError string      `db:"stock_error" json:"stockError,omitempty"`
}

// LineInput is a requested line.
type LineInput struct {
	ProductID id.ID       `json:"productId"`
	Quantity  int64       `json:"quantity"`
	UnitPrice types.Money `json:"unitPrice"`
}

// SaleRequest asks to settle a sale.
type SaleRequest struct {
	// ID is optional. Supplying it makes a resubmitted bill a no-op.
	ID        *id.ID      `json:"id,omitempty"`
	StoreID   id.ID       `json:"storeId"`
	CashierID string      `json:"cashierId"`
	Lines     []LineInput `json:"lines"`
}

// ReturnRequest asks to settle a return, optionally against an original sale.
type ReturnRequest struct {
	ID         *id.ID      `json:"id,omitempty"`
	StoreID    id.ID       `json:"storeId"`
	CashierID  string      `json:"cashierId"`
	OriginalID *id.ID      `json:"originalId,omitempty"`
	Lines      []LineInput `json:"lines"`
}

func validateHeader(storeID id.ID, cashierID string, lines []LineInput) error {
	if id.IsNil(storeID) {
		return apperror.NewValidation("storeId is required").WithDetail("field", "storeId")
	}
	if cashierID == "" {
		return apperror.NewValidation("cashierId is required").WithDetail("field", "cashierId")
	}
	if len(lines) == 0 {
		return apperror.NewValidation("at least one line is required").WithDetail("field", "lines")
	}
	for i, line := range lines {
		if id.IsNil(line.ProductID) {
			return apperror.NewValidation("product is required").
				WithDetail("field", "lines").
				WithDetail("lineNo", i+1)
		}
		if line.Quantity <= 0 {
			return apperror.NewInvalidQuantity("settle", line.Quantity).
				WithDetail("lineNo", i+1)
		}
		if line.UnitPrice.IsNegative() {
			return apperror.NewValidation("unit price must not be negative").
				WithDetail("field", "lines").
				WithDetail("lineNo", i+1)
		}
	}
	return nil
}

func newTransaction(txID id.ID, kind Kind, storeID id.ID, cashierID string, lines []LineInput, now time.Time) *Transaction {
	t := &Transaction{
		ID:          txID,
		Kind:        kind,
		StoreID:     storeID,
		CashierID:   cashierID,
		Total:       types.Zero(),
		Status:      StatusSettled,
		StockStatus: StockPending,
		CreatedAt:   now,
		SettledAt:   now,
		Lines:       make([]Line, 0, len(lines)),
	}
	for i, in := range lines {
		amount := types.Extend(in.UnitPrice, in.Quantity)
		t.Lines = append(t.Lines, Line{
			LineNo:    i + 1,
			ProductID: in.ProductID,
			Quantity:  in.Quantity,
			UnitPrice: in.UnitPrice,
			Amount:    amount,
			Outcome:   OutcomePending,
		})
		t.Total = t.Total.Add(amount)
	}
	return t
}

// refreshStockStatus derives StockStatus from line outcomes.
func (t *Transaction) refreshStockStatus() {
	t.StockStatus = StockApplied
	for _, l := range t.Lines {
		if l.Outcome == OutcomeFailed || l.Outcome == OutcomePending {
			t.StockStatus = StockPartial
			return
		}
	}
}
