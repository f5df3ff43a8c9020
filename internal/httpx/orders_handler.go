package httpx

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/danukusuma/go-saga-orders/internal/orders"
	"github.com/danukusuma/go-saga-orders/internal/redisx"
	"github.com/danukusuma/go-saga-orders/internal/saga"
)

type OrdersHandler struct {
	Service *orders.Service
	Redis   *redis.Client
	Log     zerolog.Logger
}

func (h *OrdersHandler) Register(r chi.Router) {
	r.Post("/orders", h.create)
	r.Post("/orders/{id}/confirm", h.confirm)
	r.Post("/orders/{id}/cancel", h.cancel)
	r.Get("/orders/{id}", h.get)
	r.Get("/products", h.listProducts)
}

type createOrderReq struct {
	CustomerID int64 `json:"customerId"`
	Items      []struct {
		ProductID int64 `json:"productId"`
		Qty       int   `json:"qty"`
	} `json:"items"`
}

type createOrderResp struct {
	ID         int64         `json:"id"`
	Status     orders.Status `json:"status"`
	TotalCents int64         `json:"total_cents"`
}

func (h *OrdersHandler) create(w http.ResponseWriter, r *http.Request) {
	var req createOrderReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.CustomerID <= 0 {
		writeError(w, http.StatusBadRequest, "customerId is required")
		return
	}
	items := make([]orders.ItemInput, 0, len(req.Items))
	for _, it := range req.Items {
		items = append(items, orders.ItemInput{ProductID: it.ProductID, Qty: it.Qty})
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	o, err := h.Service.Create(ctx, req.CustomerID, items)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, createOrderResp{ID: o.ID, Status: o.Status, TotalCents: o.TotalCents})
}

func (h *OrdersHandler) confirm(w http.ResponseWriter, r *http.Request) {
	orderID, ok := parseID(w, r)
	if !ok {
		return
	}
	key := r.Header.Get(saga.HeaderIdempotencyKey)

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	// Replay fast path. Records are only cached after being written to
	// Postgres, which stays the source of truth.
	replayKey := fmt.Sprintf(redisx.KeyConfirmReplay, key)
	if h.Redis != nil && key != "" {
		if body, err := h.Redis.Get(ctx, replayKey).Result(); err == nil && body != "" {
			writeRecorded(w, http.StatusOK, []byte(body))
			return
		}
	}

	res, err := h.Service.Confirm(ctx, orderID, key)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if h.Redis != nil && res.StatusCode == http.StatusOK {
		_ = h.Redis.Set(ctx, replayKey, res.Body, redisx.TTLConfirmReplay).Err()
		h.dropOrderCache(ctx, orderID)
	}
	writeRecorded(w, res.StatusCode, res.Body)
}

func (h *OrdersHandler) cancel(w http.ResponseWriter, r *http.Request) {
	orderID, ok := parseID(w, r)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := h.Service.Cancel(ctx, orderID); err != nil {
		writeDomainError(w, err)
		return
	}
	h.dropOrderCache(ctx, orderID)
	writeJSON(w, http.StatusOK, map[string]string{"message": "order canceled and stock restored"})
}

type orderResp struct {
	orders.Order
	Items []orders.OrderItem `json:"items"`
}

func (h *OrdersHandler) get(w http.ResponseWriter, r *http.Request) {
	orderID, ok := parseID(w, r)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	cacheKey := fmt.Sprintf(redisx.KeyOrder, orderID)
	if h.Redis != nil {
		if body, err := h.Redis.Get(ctx, cacheKey).Result(); err == nil && body != "" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(body))
			return
		}
	}

	o, items, err := h.Service.Get(ctx, orderID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	body, err := json.Marshal(orderResp{Order: o, Items: items})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if h.Redis != nil {
		_ = h.Redis.Set(ctx, cacheKey, body, redisx.TTLOrderCache).Err()
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func (h *OrdersHandler) listProducts(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	ps, err := h.Service.ListProducts(ctx)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ps)
}

// dropOrderCache invalidates the cached GET body after a status transition.
func (h *OrdersHandler) dropOrderCache(ctx context.Context, orderID int64) {
	if h.Redis == nil {
		return
	}
	_ = h.Redis.Del(ctx, fmt.Sprintf(redisx.KeyOrder, orderID)).Err()
}

// writeRecorded emits a stored response body verbatim so replays stay
// byte-identical.
func writeRecorded(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func parseID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid order id")
		return 0, false
	}
	return id, true
}
