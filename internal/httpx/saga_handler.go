package httpx

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/danukusuma/go-saga-orders/internal/saga"
)

type SagaHandler struct {
	Orchestrator *saga.Orchestrator
	Log          zerolog.Logger
}

func (h *SagaHandler) Register(r chi.Router) {
	r.Post("/saga/orders", h.createAndConfirm)
}

func (h *SagaHandler) createAndConfirm(w http.ResponseWriter, r *http.Request) {
	var req saga.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	result, err := h.Orchestrator.CreateAndConfirm(r.Context(), req)
	if err != nil {
		// A downstream failure is re-emitted with the upstream status and
		// body untouched.
		var re *saga.RemoteError
		if errors.As(err, &re) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(re.Status)
			_, _ = w.Write(re.Body)
			return
		}
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}
