package handlers

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"

	"stockpos/internal/core/apperror"
	"stockpos/internal/domain/ledger"
	"stockpos/internal/infrastructure/http/v1/dto"
)

// InventoryHandler exposes the stock ledger of one store.
type InventoryHandler struct {
	*BaseHandler
	ledger *ledger.Service
}

// NewInventoryHandler creates a new inventory handler.
func NewInventoryHandler(base *BaseHandler, service *ledger.Service) *InventoryHandler {
	return &InventoryHandler{BaseHandler: base, ledger: service}
}

func (h *InventoryHandler) key(c *gin.Context) (ledger.Key, bool) {
	storeID, ok := h.PathID(c, "storeId")
	if !ok {
		return ledger.Key{}, false
	}
	productID, ok := h.PathID(c, "productId")
	if !ok {
		return ledger.Key{}, false
	}
	return ledger.Key{ProductID: productID, StoreID: storeID}, true
}

// Get returns one record.
// GET /inventory/:storeId/:productId
func (h *InventoryHandler) Get(c *gin.Context) {
	key, ok := h.key(c)
	if !ok {
		return
	}
	rec, err := h.ledger.Get(c.Request.Context(), key)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, rec)
}

// Track starts tracking a catalog product in the store.
// POST /inventory/:storeId/:productId
func (h *InventoryHandler) Track(c *gin.Context) {
	key, ok := h.key(c)
	if !ok {
		return
	}
	rec, err := h.ledger.EnsureRecord(c.Request.Context(), key, nil)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, rec)
}

// Add receives stock.
// POST /inventory/:storeId/:productId/add
func (h *InventoryHandler) Add(c *gin.Context) {
	h.change(c, h.ledger.AddStock)
}

// Remove takes stock out.
// POST /inventory/:storeId/:productId/remove
func (h *InventoryHandler) Remove(c *gin.Context) {
	h.change(c, h.ledger.RemoveStock)
}

func (h *InventoryHandler) change(c *gin.Context, op func(ctx context.Context, key ledger.Key, m ledger.Mutation) (*ledger.Result, error)) {
	key, ok := h.key(c)
	if !ok {
		return
	}
	var req dto.StockChangeRequest
	if !h.BindJSON(c, &req) {
		return
	}
	res, err := op(c.Request.Context(), key, req.Mutation(h.IdempotencyKey(c)))
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.NewMutationResponse(res))
}

// Adjust sets stock to a counted value.
// POST /inventory/:storeId/:productId/adjust
func (h *InventoryHandler) Adjust(c *gin.Context) {
	key, ok := h.key(c)
	if !ok {
		return
	}
	var req dto.AdjustRequest
	if !h.BindJSON(c, &req) {
		return
	}
	if req.NewQuantity == nil {
		h.Error(c, apperror.NewValidation("newQuantity is required").WithDetail("field", "newQuantity"))
		return
	}
	ref := req.ReferenceID
	if ref == "" {
		ref = h.IdempotencyKey(c)
	}
	res, err := h.ledger.AdjustStock(c.Request.Context(), key, *req.NewQuantity, ledger.Mutation{
		Reason:        req.Reason,
		Actor:         req.PerformedBy,
		ReferenceID:   ref,
		ReferenceType: ledger.ReferenceAdjustment,
	})
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.NewMutationResponse(res))
}

// Reserve holds available stock.
// POST /inventory/:storeId/:productId/reserve
func (h *InventoryHandler) Reserve(c *gin.Context) {
	h.quantity(c, h.ledger.ReserveStock)
}

// Release frees reserved stock.
// POST /inventory/:storeId/:productId/release
func (h *InventoryHandler) Release(c *gin.Context) {
	h.quantity(c, h.ledger.ReleaseReservedStock)
}

func (h *InventoryHandler) quantity(c *gin.Context, op func(ctx context.Context, key ledger.Key, qty int64) (*ledger.Result, error)) {
	key, ok := h.key(c)
	if !ok {
		return
	}
	var req dto.QuantityRequest
	if !h.BindJSON(c, &req) {
		return
	}
	res, err := op(c.Request.Context(), key, req.Quantity)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.NewMutationResponse(res))
}

// Refresh re-reads the product snapshot from the catalog.
// POST /inventory/:storeId/:productId/refresh
func (h *InventoryHandler) Refresh(c *gin.Context) {
	key, ok := h.key(c)
	if !ok {
		return
	}
	rec, err := h.ledger.RefreshSnapshot(c.Request.Context(), key)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, rec)
}

// RefreshStore refreshes every snapshot of a store.
// POST /inventory/:storeId/refresh
func (h *InventoryHandler) RefreshStore(c *gin.Context) {
	storeID, ok := h.PathID(c, "storeId")
	if !ok {
		return
	}
	report, err := h.ledger.RefreshStoreSnapshots(c.Request.Context(), storeID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, report)
}

// Movements lists a record's movement history.
// GET /inventory/:storeId/:productId/movements
func (h *InventoryHandler) Movements(c *gin.Context) {
	key, ok := h.key(c)
	if !ok {
		return
	}
	var q dto.MovementQuery
	if !h.BindQuery(c, &q) {
		return
	}

	filter := ledger.MovementFilter{Key: key, Limit: q.Limit, Offset: q.Offset}
	if q.Type != "" {
		t := ledger.MovementType(q.Type)
		if !t.IsValid() {
			h.Error(c, apperror.NewValidation("unknown movement type").WithDetail("type", q.Type))
			return
		}
		filter.Type = &t
	}
	var err error
	if filter.FromDate, err = parseTime("from", q.From); err != nil {
		h.Error(c, err)
		return
	}
	if filter.ToDate, err = parseTime("to", q.To); err != nil {
		h.Error(c, err)
		return
	}

	movements, err := h.ledger.ListMovements(c.Request.Context(), filter)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.NewListResponse(movements, filter.Limit, filter.Offset))
}

// LowStock lists records at or below their reorder point.
// GET /inventory/:storeId/low-stock
func (h *InventoryHandler) LowStock(c *gin.Context) {
	storeID, ok := h.PathID(c, "storeId")
	if !ok {
		return
	}
	limit := h.ParseIntQuery(c, "limit", 100)
	offset := h.ParseIntQuery(c, "offset", 0)

	records, err := h.ledger.ListLowStock(c.Request.Context(), storeID, limit, offset)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.NewListResponse(records, limit, offset))
}

func parseTime(field, v string) (*time.Time, error) {
	if v == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return nil, apperror.NewValidation("invalid time, want RFC3339").WithDetail("field", field)
	}
	return &t, nil
}
