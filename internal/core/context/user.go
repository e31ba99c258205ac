// Package context provides request-scoped values extraction.
package context

import (
	"context"
	"slices"
)

// UserContext identifies the actor performing a request (cashier, manager, system job).
type UserContext struct {
	UserID    string
	Email     string
	Roles     []string
	StoreIDs  []string // stores the actor may operate on
	IsAdmin   bool
	SessionID string
}

type userContextKey struct{}

// SystemActor is used by background jobs that act without a human user.
const SystemActor = "system"

// WithUser adds UserContext to context.
func WithUser(ctx context.Context, user *UserContext) context.Context {
	return context.WithValue(ctx, userContextKey{}, user)
}

// GetUser returns UserContext from context.
func GetUser(ctx context.Context) *UserContext {
	if v, ok := ctx.Value(userContextKey{}).(*UserContext); ok {
		return v
	}
	return nil
}

// GetUserID returns user ID from context or empty string.
func GetUserID(ctx context.Context) string {
	if u := GetUser(ctx); u != nil {
		return u.UserID
	}
	return ""
}

// ActorOrSystem returns the user ID from context, falling back to SystemActor.
func ActorOrSystem(ctx context.Context) string {
	if uid := GetUserID(ctx); uid != "" {
		return uid
	}
	return SystemActor
}

// HasRole checks if user has specific role.
func HasRole(ctx context.Context, role string) bool {
	u := GetUser(ctx)
	if u == nil {
		return false
	}
	return slices.Contains(u.Roles, role)
}

// HasStoreAccess checks if user may act on the given store.
func HasStoreAccess(ctx context.Context, storeID string) bool {
	u := GetUser(ctx)
	if u == nil {
		return false
	}
	if u.IsAdmin {
		return true
	}
	return slices.Contains(u.StoreIDs, storeID)
}
