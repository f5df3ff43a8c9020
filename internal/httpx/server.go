package httpx

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/danukusuma/go-saga-orders/internal/customers"
	"github.com/danukusuma/go-saga-orders/internal/orders"
	"github.com/danukusuma/go-saga-orders/internal/saga"
)

// NewRouter builds the shared router. The liveness probe stays outside the
// bearer-auth group on purpose.
func NewRouter() *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)
	r.Use(middleware.Timeout(15 * time.Second))
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return r
}

// BearerAuth rejects requests without the shared-secret credential: missing
// token is 401, a wrong one is 403.
func BearerAuth(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := r.Header.Get("Authorization")
			if auth == "" || !strings.HasPrefix(auth, "Bearer ") {
				writeError(w, http.StatusUnauthorized, "missing bearer token")
				return
			}
			if strings.TrimPrefix(auth, "Bearer ") != token {
				writeError(w, http.StatusForbidden, "invalid bearer token")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

// writeDomainError maps a service error to its HTTP status. Unclassified
// failures fall through to 500 with the raw message.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, orders.ErrNotFound),
		errors.Is(err, orders.ErrProductNotFound),
		errors.Is(err, customers.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, orders.ErrEmptyItems),
		errors.Is(err, orders.ErrInvalidQty),
		errors.Is(err, orders.ErrOutOfStock),
		errors.Is(err, orders.ErrInvalidState),
		errors.Is(err, orders.ErrAlreadyCanceled),
		errors.Is(err, orders.ErrWindowExpired),
		errors.Is(err, orders.ErrMissingIdempotencyKey),
		errors.Is(err, orders.ErrDuplicateKey),
		errors.Is(err, customers.ErrEmailTaken),
		errors.Is(err, customers.ErrValidation),
		errors.Is(err, saga.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
