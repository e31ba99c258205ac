package handlers

import (
	"github.com/gin-gonic/gin"

	"stockpos/internal/core/id"
	"stockpos/internal/domain/transfer"
)

// TransferHandler moves stock between stores.
type TransferHandler struct {
	*BaseHandler
	transfers *transfer.Service
}

// NewTransferHandler creates a new transfer handler.
func NewTransferHandler(base *BaseHandler, service *transfer.Service) *TransferHandler {
	return &TransferHandler{BaseHandler: base, transfers: service}
}

// Create runs a transfer. A failed destination step answers TRANSFER_INCOMPLETE
// with the transferId to resubmit.
// POST /transfers
func (h *TransferHandler) Create(c *gin.Context) {
	var req transfer.Request
	if !h.BindJSON(c, &req) {
		return
	}
	if !h.CheckStore(c, req.FromStoreID) || !h.CheckStore(c, req.ToStoreID) {
		return
	}
	if req.TransferID == nil {
		if key := h.IdempotencyKey(c); key != "" {
			if parsed, err := id.Parse(key); err == nil {
				req.TransferID = &parsed
			}
		}
	}
	if req.Actor == "" {
		req.Actor = c.GetString("user_id")
	}

	res, err := h.transfers.Transfer(c.Request.Context(), req)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, res)
}
