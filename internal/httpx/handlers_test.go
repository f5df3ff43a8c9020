package httpx

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danukusuma/go-saga-orders/internal/orders"
)

const testToken = "test-token"

func newOrdersRouter(t *testing.T) (*chi.Mux, *orders.MemStore) {
	t.Helper()
	store := orders.NewMemStore()
	svc := orders.NewService(store, nil, "orders-test")

	router := NewRouter()
	router.Group(func(r chi.Router) {
		r.Use(BearerAuth(testToken))
		oh := &OrdersHandler{Service: svc, Log: zerolog.Nop()}
		oh.Register(r)
	})
	return router, store
}

func doReq(t *testing.T, router http.Handler, method, path string, body any, mutate func(*http.Request)) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Authorization", "Bearer "+testToken)
	if mutate != nil {
		mutate(req)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func createOrder(t *testing.T, router http.Handler, store *orders.MemStore) int64 {
	t.Helper()
	store.AddProduct(orders.Product{ID: 1, SKU: "SKU-1", Name: "widget", Stock: 10, PriceCents: 500})
	rec := doReq(t, router, http.MethodPost, "/orders", map[string]any{
		"customerId": 7,
		"items":      []map[string]any{{"productId": 1, "qty": 2}},
	}, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp struct {
		ID int64 `json:"id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.ID
}

func TestHealthzNeedsNoToken(t *testing.T) {
	router, _ := newOrdersRouter(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestBearerAuth(t *testing.T) {
	router, _ := newOrdersRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/products", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/products", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec2 := doReq(t, router, http.MethodGet, "/products", nil, nil)
	assert.Equal(t, http.StatusOK, rec2.Code)
}

func TestCreateOrderEndpoint(t *testing.T) {
	router, store := newOrdersRouter(t)
	store.AddProduct(orders.Product{ID: 1, SKU: "SKU-1", Name: "widget", Stock: 10, PriceCents: 500})

	rec := doReq(t, router, http.MethodPost, "/orders", map[string]any{
		"customerId": 7,
		"items":      []map[string]any{{"productId": 1, "qty": 2}},
	}, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp struct {
		ID         int64  `json:"id"`
		Status     string `json:"status"`
		TotalCents int64  `json:"total_cents"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "CREATED", resp.Status)
	assert.Equal(t, int64(1000), resp.TotalCents)
	assert.Equal(t, 8, store.ProductStock(1))
}

func TestCreateOrderRejectsBadInput(t *testing.T) {
	router, _ := newOrdersRouter(t)

	rec := doReq(t, router, http.MethodPost, "/orders", map[string]any{"customerId": 7}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doReq(t, router, http.MethodPost, "/orders", map[string]any{
		"customerId": 7,
		"items":      []map[string]any{{"productId": 99, "qty": 1}},
	}, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestConfirmEndpointRequiresHeader(t *testing.T) {
	router, store := newOrdersRouter(t)
	id := createOrder(t, router, store)

	rec := doReq(t, router, http.MethodPost, fmt.Sprintf("/orders/%d/confirm", id), nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "X-Idempotency-Key")
}

func TestConfirmEndpointReplaysVerbatim(t *testing.T) {
	router, store := newOrdersRouter(t)
	id := createOrder(t, router, store)

	withKey := func(r *http.Request) { r.Header.Set("X-Idempotency-Key", "key-1") }

	first := doReq(t, router, http.MethodPost, fmt.Sprintf("/orders/%d/confirm", id), nil, withKey)
	require.Equal(t, http.StatusOK, first.Code, first.Body.String())
	assert.Contains(t, first.Body.String(), "CONFIRMED")

	second := doReq(t, router, http.MethodPost, fmt.Sprintf("/orders/%d/confirm", id), nil, withKey)
	require.Equal(t, http.StatusOK, second.Code)
	assert.Equal(t, first.Body.String(), second.Body.String(), "replay must be byte-identical")
}

func TestCancelEndpoint(t *testing.T) {
	router, store := newOrdersRouter(t)
	id := createOrder(t, router, store)

	rec := doReq(t, router, http.MethodPost, fmt.Sprintf("/orders/%d/cancel", id), nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "stock restored")
	assert.Equal(t, 10, store.ProductStock(1))

	rec = doReq(t, router, http.MethodPost, fmt.Sprintf("/orders/%d/cancel", id), nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetOrderEndpoint(t *testing.T) {
	router, store := newOrdersRouter(t)
	id := createOrder(t, router, store)

	rec := doReq(t, router, http.MethodGet, fmt.Sprintf("/orders/%d", id), nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		ID     int64  `json:"id"`
		Status string `json:"status"`
		Items  []struct {
			ProductID     int64 `json:"product_id"`
			Qty           int   `json:"qty"`
			SubtotalCents int64 `json:"subtotal_cents"`
		} `json:"items"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, id, resp.ID)
	assert.Equal(t, "CREATED", resp.Status)
	require.Len(t, resp.Items, 1)
	assert.Equal(t, int64(1000), resp.Items[0].SubtotalCents)

	rec = doReq(t, router, http.MethodGet, "/orders/424242", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
