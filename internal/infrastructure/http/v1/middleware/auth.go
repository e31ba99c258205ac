package middleware

import (
	"slices"
	"strings"

	"github.com/gin-gonic/gin"

	"stockpos/internal/core/apperror"
	appctx "stockpos/internal/core/context"
)

// Roles carried in access tokens.
const (
	RoleCashier    = "cashier"
	RoleStockClerk = "stock_clerk"
	RoleManager    = "manager"
)

// JWTValidator interface for token validation.
type JWTValidator interface {
	ValidateToken(tokenString string) (*appctx.UserContext, error)
}

// Auth validates the bearer token and puts the user in the request context.
func Auth(validator JWTValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			abortUnauthorized(c, "missing authorization header")
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
			abortUnauthorized(c, "invalid authorization header format")
			return
		}

		user, err := validator.ValidateToken(parts[1])
		if err != nil {
			abortUnauthorized(c, "invalid token")
			return
		}

		c.Request = c.Request.WithContext(appctx.WithUser(c.Request.Context(), user))
		c.Set("user_id", user.UserID)
		c.Next()
	}
}

// RequireRole lets through users holding any of roles. Admins always pass.
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := appctx.GetUser(c.Request.Context())
		if user == nil {
			abortUnauthorized(c, "authentication required")
			return
		}
		if user.IsAdmin || slices.ContainsFunc(roles, func(r string) bool { return slices.Contains(user.Roles, r) }) {
			c.Next()
			return
		}
		_ = c.Error(apperror.NewForbidden("insufficient permissions").WithDetail("required_roles", roles))
		c.Abort()
	}
}

// RequireStoreAccess checks the store named by the path parameter param
// against the stores in the user's token.
func RequireStoreAccess(param string) gin.HandlerFunc {
	return func(c *gin.Context) {
		storeID := c.Param(param)
		if storeID == "" || appctx.HasStoreAccess(c.Request.Context(), storeID) {
			c.Next()
			return
		}
		_ = c.Error(apperror.NewForbidden("no access to store").WithDetail("store_id", storeID))
		c.Abort()
	}
}

func abortUnauthorized(c *gin.Context, message string) {
	_ = c.Error(apperror.NewUnauthorized(message))
	c.Abort()
}
