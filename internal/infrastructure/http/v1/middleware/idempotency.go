package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"stockpos/internal/core/apperror"
)

const (
	HeaderIdempotencyKey = "X-Idempotency-Key"
	// IdempotencyKey is the gin context key holding the header value.
	IdempotencyKey = "idempotency_key"

	maxIdempotencyKeyLen = 128
)

// Idempotency exposes X-Idempotency-Key to handlers of mutating requests.
// Handlers use it as the movement reference when the body names none, so a
// retried request is skipped by the ledger instead of applied twice.
func Idempotency() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method != http.MethodPost && c.Request.Method != http.MethodPut {
			c.Next()
			return
		}
		key := c.GetHeader(HeaderIdempotencyKey)
		if key == "" {
			c.Next()
			return
		}
		if len(key) > maxIdempotencyKeyLen {
			_ = c.Error(apperror.NewValidation("idempotency key too long").
				WithDetail("max_length", maxIdempotencyKeyLen))
			c.Abort()
			return
		}
		c.Set(IdempotencyKey, key)
		c.Next()
	}
}
