package saga

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/danukusuma/go-saga-orders/internal/orders"
)

var ErrValidation = errors.New("invalid saga request")

type Request struct {
	CustomerID     int64              `json:"customer_id"`
	Items          []orders.ItemInput `json:"items"`
	IdempotencyKey string             `json:"idempotency_key"`
	CorrelationID  string             `json:"correlation_id,omitempty"`
}

// OrderSummary echoes the caller's request items rather than a
// server-recomputed list.
type OrderSummary struct {
	ID         int64              `json:"id"`
	Status     string             `json:"status"`
	TotalCents int64              `json:"total_cents"`
	Items      []orders.ItemInput `json:"items"`
}

// Result is the consolidated response spanning both downstream services.
type Result struct {
	Customer Customer     `json:"customer"`
	Order    OrderSummary `json:"order"`
}

type Orchestrator struct {
	customers *CustomerClient
	orders    *OrderClient
	log       zerolog.Logger
}

func NewOrchestrator(customers *CustomerClient, orderClient *OrderClient, log zerolog.Logger) *Orchestrator {
	return &Orchestrator{customers: customers, orders: orderClient, log: log}
}

// CreateAndConfirm runs the three saga steps sequentially: validate the
// customer, create the order, confirm it. Downstream failures propagate with
// the upstream status and body unchanged, except a customer 404 which is
// remapped to a customer-not-found error.
//
// There is no compensation: when order creation succeeds and confirmation
// fails, the order stays CREATED. Retrying the whole saga after that point
// creates a second order; only the confirm step is idempotent.
func (o *Orchestrator) CreateAndConfirm(ctx context.Context, req Request) (Result, error) {
	if err := validate(req); err != nil {
		return Result{}, err
	}
	correlationID := req.CorrelationID
	if correlationID == "" {
		correlationID = uuid.NewString()
	}
	log := o.log.With().Str("correlation_id", correlationID).Int64("customer_id", req.CustomerID).Logger()

	log.Info().Msg("validating customer")
	customer, err := o.customers.Get(ctx, req.CustomerID, correlationID)
	if err != nil {
		var re *RemoteError
		if errors.As(err, &re) && re.Status == http.StatusNotFound {
			return Result{}, &RemoteError{
				Status: http.StatusNotFound,
				Body:   mustErrorBody(fmt.Sprintf("customer %d does not exist", req.CustomerID)),
			}
		}
		return Result{}, err
	}

	log.Info().Msg("creating order")
	created, err := o.orders.Create(ctx, req.CustomerID, req.Items, correlationID)
	if err != nil {
		return Result{}, err
	}

	log.Info().Int64("order_id", created.ID).Msg("confirming order")
	confirmed, err := o.orders.Confirm(ctx, created.ID, req.IdempotencyKey, correlationID)
	if err != nil {
		// Saga gap: the order just created stays CREATED; nothing rolls
		// it back here.
		log.Warn().Int64("order_id", created.ID).Err(err).
			Msg("confirmation failed, order left in CREATED")
		return Result{}, err
	}

	return Result{
		Customer: customer,
		Order: OrderSummary{
			ID:         created.ID,
			Status:     confirmed.Status,
			TotalCents: created.TotalCents,
			Items:      req.Items,
		},
	}, nil
}

func validate(req Request) error {
	if req.CustomerID <= 0 {
		return fmt.Errorf("customer_id is required: %w", ErrValidation)
	}
	if len(req.Items) == 0 {
		return fmt.Errorf("items must not be empty: %w", ErrValidation)
	}
	for _, it := range req.Items {
		if it.ProductID <= 0 || it.Qty < 1 {
			return fmt.Errorf("each item needs a product_id and qty >= 1: %w", ErrValidation)
		}
	}
	if req.IdempotencyKey == "" {
		return fmt.Errorf("idempotency_key is required: %w", ErrValidation)
	}
	return nil
}
