package v1

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appctx "stockpos/internal/core/context"
	"stockpos/internal/core/id"
	"stockpos/internal/domain/auth"
	"stockpos/internal/domain/catalog"
	"stockpos/internal/domain/ledger"
	"stockpos/internal/domain/policy"
	"stockpos/internal/domain/settlement"
	"stockpos/internal/domain/transfer"
	"stockpos/internal/infrastructure/http/v1/dto"
	"stockpos/internal/infrastructure/http/v1/middleware"
	"stockpos/internal/infrastructure/storage/memory"
	"stockpos/pkg/logger"
)

type testAPI struct {
	t       *testing.T
	handler http.Handler
	jwt     *auth.JWTService
	storeID id.ID
	milk    id.ID
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()

	products := memory.NewCatalog()
	storeID, milk := id.New(), id.New()
	products.PutProduct(catalog.Product{
		ID:           milk,
		StoreID:      storeID,
		Name:         "Milk 1L",
		CostPrice:    decimal.RequireFromString("0.80"),
		SellingPrice: decimal.RequireFromString("1.20"),
		ReorderPoint: 5,
	})

	negative, err := policy.NewNegativeStock(products)
	require.NoError(t, err)

	txm := memory.NewTxManager()
	discrepancies := memory.NewDiscrepancyLog()
	ledgerSvc := ledger.NewService(memory.NewLedgerRepo(), txm, products, negative,
		ledger.WithEvents(memory.NewAlertLog()))
	jwt := auth.NewJWTService(auth.DefaultJWTConfig("test-secret"))

	router := NewRouter(RouterConfig{
		Logger:       logger.NewNop(),
		JWTValidator: jwt,
		Ledger:       ledgerSvc,
		Settlement: settlement.NewService(memory.NewTransactionRepo(), ledgerSvc,
			memory.NewNumerator(), txm, negative, discrepancies),
		Transfers:   transfer.NewService(ledgerSvc, discrepancies),
		Audit:       discrepancies,
		Development: true,
	})

	return &testAPI{t: t, handler: router, jwt: jwt, storeID: storeID, milk: milk}
}

func (a *testAPI) token(roles []string, stores ...id.ID) string {
	a.t.Helper()
	storeIDs := make([]string, 0, len(stores))
	for _, s := range stores {
		storeIDs = append(storeIDs, s.String())
	}
	tok, _, err := a.jwt.Issue(&appctx.UserContext{UserID: "user-1", Roles: roles, StoreIDs: storeIDs}, time.Now())
	require.NoError(a.t, err)
	return tok
}

func (a *testAPI) do(method, path, token string, body any, headers ...string) *httptest.ResponseRecorder {
	a.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(a.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	a.handler.ServeHTTP(w, req)
	return w
}

func (a *testAPI) recordPath(suffix string) string {
	return "/api/v1/inventory/" + a.storeID.String() + "/" + a.milk.String() + suffix
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestRouter_HealthLive(t *testing.T) {
	api := newTestAPI(t)

	w := api.do(http.MethodGet, "/health/live", "", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get(middleware.HeaderRequestID))
}

func TestRouter_RequiresToken(t *testing.T) {
	api := newTestAPI(t)

	w := api.do(http.MethodGet, api.recordPath(""), "", nil)

	require.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "UNAUTHORIZED", decode[middleware.ErrorResponse](t, w).Code)
}

func TestRouter_StockLifecycle(t *testing.T) {
	api := newTestAPI(t)
	clerk := api.token([]string{middleware.RoleStockClerk}, api.storeID)

	w := api.do(http.MethodPost, api.recordPath(""), clerk, nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = api.do(http.MethodPost, api.recordPath("/add"), clerk, dto.StockChangeRequest{Quantity: 10, Reason: "delivery"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	res := decode[dto.MutationResponse](t, w)
	assert.Equal(t, int64(10), res.Stock.CurrentStock)
	assert.Equal(t, ledger.MovementIn, res.Movement.Type)
	assert.Equal(t, "user-1", res.Movement.PerformedBy)

	w = api.do(http.MethodPost, api.recordPath("/remove"), clerk, dto.StockChangeRequest{Quantity: 20, Reason: "damage"})
	require.Equal(t, http.StatusUnprocessableEntity, w.Code, w.Body.String())
	assert.Equal(t, "INSUFFICIENT_STOCK", decode[middleware.ErrorResponse](t, w).Code)

	w = api.do(http.MethodPost, api.recordPath("/reserve"), clerk, dto.QuantityRequest{Quantity: 4})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	res = decode[dto.MutationResponse](t, w)
	assert.Equal(t, int64(6), res.Stock.AvailableStock)
	assert.Nil(t, res.Movement)

	w = api.do(http.MethodGet, api.recordPath("/movements"), clerk, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[dto.ListResponse[ledger.Movement]](t, w).Items, 1)
}

func TestRouter_IdempotencyKeyBecomesReference(t *testing.T) {
	api := newTestAPI(t)
	clerk := api.token([]string{middleware.RoleStockClerk}, api.storeID)
	require.Equal(t, http.StatusCreated, api.do(http.MethodPost, api.recordPath(""), clerk, nil).Code)

	body := dto.StockChangeRequest{Quantity: 3, Reason: "delivery"}
	first := api.do(http.MethodPost, api.recordPath("/add"), clerk, body, middleware.HeaderIdempotencyKey, "po-778")
	second := api.do(http.MethodPost, api.recordPath("/add"), clerk, body, middleware.HeaderIdempotencyKey, "po-778")

	require.Equal(t, http.StatusOK, first.Code)
	require.Equal(t, http.StatusOK, second.Code)
	res := decode[dto.MutationResponse](t, second)
	assert.True(t, res.Skipped)
	assert.Equal(t, int64(3), res.Stock.CurrentStock)
}

func TestRouter_Authorization(t *testing.T) {
	api := newTestAPI(t)

	t.Run("OtherStore", func(t *testing.T) {
		tok := api.token([]string{middleware.RoleManager}, id.New())
		w := api.do(http.MethodGet, api.recordPath(""), tok, nil)
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("CashierCannotAdjust", func(t *testing.T) {
		tok := api.token([]string{middleware.RoleCashier}, api.storeID)
		qty := int64(4)
		w := api.do(http.MethodPost, api.recordPath("/adjust"), tok, dto.AdjustRequest{NewQuantity: &qty})
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("BadStoreID", func(t *testing.T) {
		tok := api.token([]string{middleware.RoleManager}, api.storeID)
		w := api.do(http.MethodGet, "/api/v1/inventory/not-a-uuid/low-stock", tok, nil)
		// the store check runs first and the caller has no such store
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("UntrackedRecord", func(t *testing.T) {
		tok := api.token([]string{middleware.RoleManager}, api.storeID)
		w := api.do(http.MethodGet, api.recordPath(""), tok, nil)
		require.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, "NOT_FOUND", decode[middleware.ErrorResponse](t, w).Code)
	})
}

func TestRouter_SaleAppliesStock(t *testing.T) {
	api := newTestAPI(t)
	manager := api.token([]string{middleware.RoleManager}, api.storeID)
	require.Equal(t, http.StatusCreated, api.do(http.MethodPost, api.recordPath(""), manager, nil).Code)
	require.Equal(t, http.StatusOK, api.do(http.MethodPost, api.recordPath("/add"), manager,
		dto.StockChangeRequest{Quantity: 8, Reason: "delivery"}).Code)

	w := api.do(http.MethodPost, "/api/v1/transactions/sales", manager, settlement.SaleRequest{
		StoreID: api.storeID,
		Lines: []settlement.LineInput{
			{ProductID: api.milk, Quantity: 3, UnitPrice: decimal.RequireFromString("1.20")},
		},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	tx := decode[settlement.Transaction](t, w)
	assert.Equal(t, settlement.StockApplied, tx.StockStatus)
	assert.Equal(t, "user-1", tx.CashierID)
	assert.True(t, decimal.RequireFromString("3.60").Equal(tx.Total))

	w = api.do(http.MethodGet, api.recordPath(""), manager, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int64(5), decode[ledger.Record](t, w).CurrentStock)

	w = api.do(http.MethodGet, "/api/v1/transactions/"+tx.ID.String(), manager, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}
