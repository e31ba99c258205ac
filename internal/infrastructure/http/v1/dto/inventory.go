package dto

import (
	"stockpos/internal/core/types"
	"stockpos/internal/domain/ledger"
)

// StockChangeRequest is the body of add and remove.
type StockChangeRequest struct {
	Quantity      int64                `json:"quantity"`
	Reason        string               `json:"reason"`
	Type          ledger.MovementType  `json:"type,omitempty"`
	ReferenceID   string               `json:"referenceId,omitempty"`
	ReferenceType ledger.ReferenceType `json:"referenceType,omitempty"`
	UnitCost      *types.Money         `json:"unitCost,omitempty"`
	PerformedBy   string               `json:"performedBy,omitempty"`
}

// Mutation converts the request. fallbackRef is used when no referenceId is given.
func (r StockChangeRequest) Mutation(fallbackRef string) ledger.Mutation {
	m := ledger.Mutation{
		Quantity:      r.Quantity,
		Reason:        r.Reason,
		Actor:         r.PerformedBy,
		ReferenceID:   r.ReferenceID,
		ReferenceType: r.ReferenceType,
		Type:          r.Type,
		UnitCost:      r.UnitCost,
	}
	if m.ReferenceID == "" {
		m.ReferenceID = fallbackRef
	}
	if m.ReferenceID != "" && m.ReferenceType == "" {
		m.ReferenceType = ledger.ReferenceManual
	}
	return m
}

// AdjustRequest is the body of adjust.
type AdjustRequest struct {
	NewQuantity *int64 `json:"newQuantity"`
	Reason      string `json:"reason"`
	ReferenceID string `json:"referenceId,omitempty"`
	PerformedBy string `json:"performedBy,omitempty"`
}

// QuantityRequest is the body of reserve and release.
type QuantityRequest struct {
	Quantity int64 `json:"quantity"`
}

// MovementQuery are the query parameters of the movement history.
type MovementQuery struct {
	Type   string `form:"type"`
	From   string `form:"from"`
	To     string `form:"to"`
	Limit  int    `form:"limit"`
	Offset int    `form:"offset"`
}

// StockLevel is the short stock view returned by mutations.
type StockLevel struct {
	CurrentStock   int64 `json:"currentStock"`
	ReservedStock  int64 `json:"reservedStock"`
	AvailableStock int64 `json:"availableStock"`
}

// MutationResponse is returned by every stock mutation.
type MutationResponse struct {
	Record   *ledger.Record   `json:"record"`
	Movement *ledger.Movement `json:"movement,omitempty"`
	Skipped  bool             `json:"skipped"`
	Stock    StockLevel       `json:"stock"`
}

// NewMutationResponse builds the response from a ledger result.
func NewMutationResponse(res *ledger.Result) MutationResponse {
	return MutationResponse{
		Record:   res.Record,
		Movement: res.Movement,
		Skipped:  res.Skipped,
		Stock: StockLevel{
			CurrentStock:   res.Record.CurrentStock,
			ReservedStock:  res.Record.ReservedStock,
			AvailableStock: res.Record.AvailableStock,
		},
	}
}
