package handlers

import (
	"time"

	"github.com/gin-gonic/gin"

	"stockpos/internal/domain/audit"
	"stockpos/internal/infrastructure/http/v1/dto"
)

// AuditHandler lists stock discrepancies for reconciliation.
type AuditHandler struct {
	*BaseHandler
	recorder audit.Recorder
}

// NewAuditHandler creates a new audit handler.
func NewAuditHandler(base *BaseHandler, recorder audit.Recorder) *AuditHandler {
	return &AuditHandler{BaseHandler: base, recorder: recorder}
}

// Discrepancies lists discrepancies since ?since= (RFC3339, default 24h ago).
// GET /audit/discrepancies
func (h *AuditHandler) Discrepancies(c *gin.Context) {
	since := time.Now().UTC().Add(-24 * time.Hour)
	if v := c.Query("since"); v != "" {
		parsed, err := parseTime("since", v)
		if err != nil {
			h.Error(c, err)
			return
		}
		since = *parsed
	}
	limit := h.ParseIntQuery(c, "limit", 100)
	if limit <= 0 || limit > 1000 {
		limit = 100
	}

	items, err := h.recorder.ListDiscrepancies(c.Request.Context(), since, limit)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.NewListResponse(items, limit, 0))
}
