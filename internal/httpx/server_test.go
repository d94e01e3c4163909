package httpx

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ariefcatur/go-realtime-checkout/internal/address"
	"github.com/ariefcatur/go-realtime-checkout/internal/cart"
	"github.com/ariefcatur/go-realtime-checkout/internal/catalog"
	"github.com/ariefcatur/go-realtime-checkout/internal/metrics"
	"github.com/ariefcatur/go-realtime-checkout/internal/orders"
	"github.com/ariefcatur/go-realtime-checkout/internal/payments"
	"github.com/ariefcatur/go-realtime-checkout/internal/reconcile"
	"github.com/ariefcatur/go-realtime-checkout/internal/storage"
	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(t *testing.T, secret string) (*chi.Mux, *catalog.Memory) {
	t.Helper()
	cat := catalog.NewMemory(
		catalog.Product{ID: "prod-a", Name: "Product A", PriceCents: 1000, Active: true},
		catalog.Product{ID: "prod-b", Name: "Product B", PriceCents: 500, Active: true},
	)
	book := address.NewMemory()
	book.Add("addr1", "user-1")

	carts := cart.NewService(cart.NewMemoryStore(), cat, nil)
	orderStore := orders.NewMemoryStore()
	orderSvc := &orders.Service{Store: orderStore}
	ledger := &payments.Ledger{
		Store:    payments.NewMemoryStore(),
		Orders:   orderStore,
		Notifier: &reconcile.Coordinator{Orders: orderSvc},
	}

	reg := prometheus.NewRegistry()
	r := NewRouter(RouterOptions{
		Metrics:  metrics.NewServerMetrics(reg, "api"),
		Gatherer: reg,
		Timeout:  5 * time.Second,
		Secret:   secret,
	})
	(&CartHandler{Carts: carts}).Register(r)
	(&OrdersHandler{
		Factory: &orders.Factory{Cart: carts, Catalog: cat, Addresses: book, Store: orderStore},
		Orders:  orderSvc,
	}).Register(r)
	(&PaymentsHandler{Ledger: ledger, Orders: orderSvc}).Register(r)
	return r, cat
}

func do(t *testing.T, h http.Handler, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func fillCart(t *testing.T, h http.Handler) {
	t.Helper()
	rec := do(t, h, http.MethodPost, "/cart/user-1", map[string]any{"product_id": "prod-a", "quantity": 2})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = do(t, h, http.MethodPost, "/cart/user-1", map[string]any{"product_id": "prod-b", "quantity": 1})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestCheckoutAndPaymentFlow(t *testing.T) {
	h, _ := newTestRouter(t, "")
	fillCart(t, h)

	checkout := map[string]any{"shipping_address_id": "addr1", "payment_method": "card"}
	rec := do(t, h, http.MethodPost, "/orders/user-1", checkout, "Idempotency-Key", "k-1")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	o := decodeBody[orders.Order](t, rec)
	assert.Equal(t, int64(2500), o.TotalCents)
	assert.Equal(t, orders.StatusPending, o.Status)

	rec = do(t, h, http.MethodPost, "/orders/user-1", checkout, "Idempotency-Key", "k-1")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, o.ID, decodeBody[orders.Order](t, rec).ID)

	rec = do(t, h, http.MethodGet, "/cart/user-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decodeBody[cart.Cart](t, rec).Empty())

	rec = do(t, h, http.MethodPost, "/payments", map[string]any{"order_id": o.ID, "method": "card", "amount_cents": 1})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	p := decodeBody[payments.Payment](t, rec)
	assert.Equal(t, int64(2500), p.AmountCents)

	rec = do(t, h, http.MethodPost, "/payments", map[string]any{"order_id": o.ID, "method": "card"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	for i := 0; i < 2; i++ {
		rec = do(t, h, http.MethodPut, "/payments/"+p.ID+"/status", map[string]any{"status": "completed", "transaction_id": "txn123"})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}

	rec = do(t, h, http.MethodGet, "/orders/"+o.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decodeBody[orders.Order](t, rec)
	assert.Equal(t, orders.StatusPaid, got.Status)
	assert.Equal(t, orders.PaymentCompleted, got.PaymentStatus)

	rec = do(t, h, http.MethodPut, "/payments/"+p.ID+"/status", map[string]any{"status": "failed"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, h, http.MethodGet, "/payments/"+p.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	stored := decodeBody[payments.Payment](t, rec)
	assert.Equal(t, payments.StatusCompleted, stored.Status)
	assert.Equal(t, "txn123", stored.TransactionID)

	rec = do(t, h, http.MethodGet, "/payments/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, h, http.MethodGet, "/orders/user/user-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[[]orders.Order](t, rec), 1)
}

func TestAdminTransitions(t *testing.T) {
	h, _ := newTestRouter(t, "")
	fillCart(t, h)
	rec := do(t, h, http.MethodPost, "/orders/user-1", map[string]any{"shipping_address_id": "addr1", "payment_method": "cash"})
	require.Equal(t, http.StatusCreated, rec.Code)
	o := decodeBody[orders.Order](t, rec)

	rec = do(t, h, http.MethodPut, "/orders/"+o.ID+"/status", map[string]any{"status": "shipped"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, h, http.MethodPut, "/orders/"+o.ID+"/status", map[string]any{"status": "paid", "from": "paid"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, h, http.MethodPut, "/orders/"+o.ID+"/status", map[string]any{"status": "cancelled", "from": "pending"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, orders.StatusCancelled, decodeBody[orders.Order](t, rec).Status)

	rec = do(t, h, http.MethodPut, "/orders/"+o.ID+"/status", map[string]any{"status": "teleported"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPut, "/orders/missing/status", map[string]any{"status": "paid"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCheckoutErrors(t *testing.T) {
	h, cat := newTestRouter(t, "")
	checkout := map[string]any{"shipping_address_id": "addr1", "payment_method": "card"}

	rec := do(t, h, http.MethodPost, "/orders/user-1", checkout)
	assert.Equal(t, http.StatusConflict, rec.Code)

	fillCart(t, h)
	rec = do(t, h, http.MethodPost, "/orders/user-1", map[string]any{"shipping_address_id": "elsewhere", "payment_method": "card"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPost, "/orders/user-1", map[string]any{"payment_method": "card"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, []string{"shipping_address_id is required"}, decodeBody[errorBody](t, rec).Details)

	cat.SetActive("prod-b", false)
	rec = do(t, h, http.MethodPost, "/orders/user-1", checkout)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = do(t, h, http.MethodGet, "/cart/user-1", nil)
	assert.Len(t, decodeBody[cart.Cart](t, rec).Lines, 2)
}

func TestCartValidation(t *testing.T) {
	h, _ := newTestRouter(t, "")

	rec := do(t, h, http.MethodPost, "/cart/user-1", map[string]any{"product_id": "prod-a", "quantity": 0})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPost, "/cart/user-1", map[string]any{"product_id": "ghost", "quantity": 1})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	fillCart(t, h)
	rec = do(t, h, http.MethodPost, "/cart/user-1", map[string]any{"product_id": "prod-a", "quantity": cart.MaxLineQuantity - 1})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = do(t, h, http.MethodGet, "/cart/user-1", nil)
	assert.Equal(t, 2, decodeBody[cart.Cart](t, rec).Lines[0].Quantity)

	rec = do(t, h, http.MethodPut, "/cart/user-1/prod-a", map[string]any{"quantity": 0})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[cart.Cart](t, rec).Lines, 1)

	rec = do(t, h, http.MethodDelete, "/cart/user-1/prod-b", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decodeBody[cart.Cart](t, rec).Empty())
}

func signed(t *testing.T, secret, sub string) string {
	return signedAs(t, secret, sub, "")
}

func signedAs(t *testing.T, secret, sub, role string) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString([]byte(secret))
	require.NoError(t, err)
	return "Bearer " + tok
}

func TestIdentityMiddleware(t *testing.T) {
	h, _ := newTestRouter(t, "s3cret")
	line := map[string]any{"product_id": "prod-a", "quantity": 1}

	rec := do(t, h, http.MethodPost, "/cart/user-1", line)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(t, h, http.MethodPost, "/cart/user-1", line, "Authorization", signed(t, "wrong", "user-1"))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(t, h, http.MethodPost, "/cart/user-1", line, "Authorization", signed(t, "s3cret", "user-2"))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = do(t, h, http.MethodPost, "/cart/user-1", line, "Authorization", signed(t, "s3cret", "user-1"))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRoleChecksOnPaymentsAndAdminTransitions(t *testing.T) {
	const secret = "s3cret"
	h, _ := newTestRouter(t, secret)
	buyer := signed(t, secret, "user-1")
	stranger := signed(t, secret, "user-2")
	gateway := signedAs(t, secret, "psp", RoleGateway)
	admin := signedAs(t, secret, "ops", RoleAdmin)

	rec := do(t, h, http.MethodPost, "/cart/user-1", map[string]any{"product_id": "prod-a", "quantity": 1}, "Authorization", buyer)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = do(t, h, http.MethodPost, "/orders/user-1",
		map[string]any{"shipping_address_id": "addr1", "payment_method": "card"}, "Authorization", buyer)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	o := decodeBody[orders.Order](t, rec)

	rec = do(t, h, http.MethodPost, "/payments", map[string]any{"order_id": o.ID, "method": "card"}, "Authorization", stranger)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = do(t, h, http.MethodPost, "/payments", map[string]any{"order_id": o.ID, "method": "card"}, "Authorization", buyer)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	p := decodeBody[payments.Payment](t, rec)

	rec = do(t, h, http.MethodGet, "/payments/"+p.ID, nil, "Authorization", stranger)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec = do(t, h, http.MethodGet, "/payments/"+p.ID, nil, "Authorization", buyer)
	assert.Equal(t, http.StatusOK, rec.Code)

	// a buyer cannot settle their own payment or move their order
	rec = do(t, h, http.MethodPut, "/payments/"+p.ID+"/status", map[string]any{"status": "completed"}, "Authorization", buyer)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec = do(t, h, http.MethodPut, "/orders/"+o.ID+"/status", map[string]any{"status": "paid"}, "Authorization", buyer)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = do(t, h, http.MethodGet, "/orders/"+o.ID, nil, "Authorization", buyer)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, orders.StatusPending, decodeBody[orders.Order](t, rec).Status)

	rec = do(t, h, http.MethodPut, "/payments/"+p.ID+"/status", map[string]any{"status": "completed", "transaction_id": "t1"}, "Authorization", gateway)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(t, h, http.MethodPut, "/orders/"+o.ID+"/status", map[string]any{"status": "shipped"}, "Authorization", gateway)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec = do(t, h, http.MethodPut, "/orders/"+o.ID+"/status", map[string]any{"status": "shipped"}, "Authorization", admin)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, orders.StatusShipped, decodeBody[orders.Order](t, rec).Status)

	rec = do(t, h, http.MethodGet, "/orders/"+o.ID, nil, "Authorization", admin)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestPaymentForCancelledOrderConflicts(t *testing.T) {
	h, _ := newTestRouter(t, "")
	fillCart(t, h)
	rec := do(t, h, http.MethodPost, "/orders/user-1", map[string]any{"shipping_address_id": "addr1", "payment_method": "cash"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	o := decodeBody[orders.Order](t, rec)

	rec = do(t, h, http.MethodPut, "/orders/"+o.ID+"/status", map[string]any{"status": "cancelled"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(t, h, http.MethodPost, "/payments", map[string]any{"order_id": o.ID, "method": "cash"})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	h, _ := newTestRouter(t, "")
	do(t, h, http.MethodGet, "/cart/user-1", nil)

	rec := do(t, h, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "checkout_api_http_requests_total")
}

func TestStatusOf(t *testing.T) {
	assert.Equal(t, http.StatusServiceUnavailable, statusOf(storage.Wrap("get", errors.New("down"))))
	assert.Equal(t, http.StatusConflict, statusOf(errors.Join(cart.ErrEmptyCart)))
	assert.Equal(t, http.StatusUnprocessableEntity, statusOf(errors.Join(orders.ErrProductUnavailable, storage.Wrap("restore", errors.New("x")))))
	assert.Equal(t, http.StatusInternalServerError, statusOf(errors.New("boom")))
}
