package handlers

import (
	"github.com/gin-gonic/gin"

	"stockpos/internal/core/id"
	"stockpos/internal/domain/settlement"
)

// TransactionHandler settles sales and returns.
type TransactionHandler struct {
	*BaseHandler
	settlement *settlement.Service
}

// NewTransactionHandler creates a new transaction handler.
func NewTransactionHandler(base *BaseHandler, service *settlement.Service) *TransactionHandler {
	return &TransactionHandler{BaseHandler: base, settlement: service}
}

// idempotentID fills a missing transaction ID from X-Idempotency-Key when it is a UUID.
func (h *TransactionHandler) idempotentID(c *gin.Context, txID **id.ID) {
	if *txID != nil {
		return
	}
	if parsed, err := id.Parse(h.IdempotencyKey(c)); err == nil {
		*txID = &parsed
	}
}

// Sale settles a sale. The bill is stored even when some lines fail to
// update stock; stockStatus reports that.
// POST /transactions/sales
func (h *TransactionHandler) Sale(c *gin.Context) {
	var req settlement.SaleRequest
	if !h.BindJSON(c, &req) {
		return
	}
	if !h.CheckStore(c, req.StoreID) {
		return
	}
	h.idempotentID(c, &req.ID)
	if req.CashierID == "" {
		req.CashierID = c.GetString("user_id")
	}

	t, err := h.settlement.Settle(c.Request.Context(), req)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, t)
}

// Return settles a return.
// POST /transactions/returns
func (h *TransactionHandler) Return(c *gin.Context) {
	var req settlement.ReturnRequest
	if !h.BindJSON(c, &req) {
		return
	}
	if !h.CheckStore(c, req.StoreID) {
		return
	}
	h.idempotentID(c, &req.ID)
	if req.CashierID == "" {
		req.CashierID = c.GetString("user_id")
	}

	t, err := h.settlement.Return(c.Request.Context(), req)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, t)
}

// Get returns a transaction with its line outcomes.
// GET /transactions/:id
func (h *TransactionHandler) Get(c *gin.Context) {
	txID, ok := h.PathID(c, "id")
	if !ok {
		return
	}
	t, err := h.settlement.Get(c.Request.Context(), txID)
	if err != nil {
		h.Error(c, err)
		return
	}
	if !h.CheckStore(c, t.StoreID) {
		return
	}
	h.OK(c, t)
}

// RetryStock re-applies stock for lines that did not make it.
// POST /transactions/:id/retry-stock
func (h *TransactionHandler) RetryStock(c *gin.Context) {
	txID, ok := h.PathID(c, "id")
	if !ok {
		return
	}
	t, err := h.settlement.Get(c.Request.Context(), txID)
	if err != nil {
		h.Error(c, err)
		return
	}
	if !h.CheckStore(c, t.StoreID) {
		return
	}
	t, err = h.settlement.RetryStockUpdates(c.Request.Context(), txID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, t)
}
