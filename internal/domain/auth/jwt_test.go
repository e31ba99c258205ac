package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appctx "stockpos/internal/core/context"
)

func TestJWTService_IssueAndValidate(t *testing.T) {
	svc := NewJWTService(DefaultJWTConfig("test-secret"))
	user := &appctx.UserContext{
		UserID:   "cashier-7",
		Roles:    []string{"cashier"},
		StoreIDs: []string{"store-1"},
	}

	token, expiresAt, err := svc.Issue(user, time.Now())
	require.NoError(t, err)
	assert.True(t, expiresAt.After(time.Now()))

	got, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "cashier-7", got.UserID)
	assert.Equal(t, []string{"cashier"}, got.Roles)
	assert.Equal(t, []string{"store-1"}, got.StoreIDs)
}

func TestJWTService_RejectsExpired(t *testing.T) {
	svc := NewJWTService(DefaultJWTConfig("test-secret"))

	token, _, err := svc.Issue(&appctx.UserContext{UserID: "u1"}, time.Now().Add(-24*time.Hour))
	require.NoError(t, err)

	_, err = svc.ValidateToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestJWTService_RejectsOtherSecret(t *testing.T) {
	issuer := NewJWTService(DefaultJWTConfig("secret-a"))
	validator := NewJWTService(DefaultJWTConfig("secret-b"))

	token, _, err := issuer.Issue(&appctx.UserContext{UserID: "u1"}, time.Now())
	require.NoError(t, err)

	_, err = validator.ValidateToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestJWTService_RejectsOtherAlgorithm(t *testing.T) {
	svc := NewJWTService(DefaultJWTConfig("test-secret"))
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "stockpos",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		UserID: "u1",
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)

	_, err = svc.ValidateToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
