package orders

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"

	kafkax "github.com/danukusuma/go-saga-orders/internal/kafka"
)

// CancelWindow bounds cancellation of a CONFIRMED order. It is measured
// from the order's creation time, not its confirmation time; that matches
// the documented behavior and is deliberately not "fixed" here.
const CancelWindow = 10 * time.Minute

// EventPublisher is satisfied by kafka.Producer. Nil disables publishing.
type EventPublisher interface {
	Publish(key, value []byte, headers ...kafkago.Header)
}

type Service struct {
	store  Store
	events EventPublisher
	name   string
	now    func() time.Time
}

func NewService(store Store, events EventPublisher, serviceName string) *Service {
	return &Service{
		store:  store,
		events: events,
		name:   serviceName,
		now:    time.Now,
	}
}

// Create builds an order atomically: every product row is locked before its
// stock is read, stock is decremented in the same transaction that inserts
// the order and its items, and any failure aborts the whole thing.
func (s *Service) Create(ctx context.Context, customerID int64, items []ItemInput) (Order, error) {
	if len(items) == 0 {
		return Order{}, ErrEmptyItems
	}
	for _, it := range items {
		if it.Qty < 1 {
			return Order{}, fmt.Errorf("product %d: %w", it.ProductID, ErrInvalidQty)
		}
	}

	var created Order
	var lines []OrderItem
	err := s.store.WithinTx(ctx, func(tx Tx) error {
		now := s.now()
		var total int64
		lines = lines[:0]
		for _, it := range items {
			// Lock before reading stock; concurrent creates on the same
			// product serialize here.
			p, err := tx.GetProductForUpdate(ctx, it.ProductID)
			if err != nil {
				return err
			}
			if p.Stock < it.Qty {
				return fmt.Errorf("product %d: requested %d, available %d: %w",
					p.ID, it.Qty, p.Stock, ErrOutOfStock)
			}
			// Integer cents times integer qty; no rounding can occur.
			subtotal := p.PriceCents * int64(it.Qty)
			total += subtotal
			lines = append(lines, OrderItem{
				ProductID:      p.ID,
				Qty:            it.Qty,
				UnitPriceCents: p.PriceCents,
				SubtotalCents:  subtotal,
			})
			if err := tx.AdjustStock(ctx, p.ID, -it.Qty); err != nil {
				return err
			}
		}

		created = Order{
			CustomerID: customerID,
			Status:     StatusCreated,
			TotalCents: total,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if err := tx.InsertOrder(ctx, &created); err != nil {
			return err
		}
		for i := range lines {
			lines[i].OrderID = created.ID
		}
		return tx.InsertItems(ctx, lines)
	})
	if err != nil {
		return Order{}, err
	}

	s.publishCreated(created, lines)
	return created, nil
}

// ConfirmResult carries the recorded status and body so replays of the same
// idempotency key are byte-identical to the first response.
type ConfirmResult struct {
	StatusCode int
	Body       []byte
	Replayed   bool
}

type confirmBody struct {
	ID      int64  `json:"id"`
	Status  Status `json:"status"`
	Message string `json:"message"`
}

// Confirm transitions CREATED -> CONFIRMED at most once per order and
// records the response under the idempotency key. A replay returns the
// stored response regardless of the order's current state. The status flip
// and the key insert share one transaction, so a duplicate key rolls both
// back and the stored response wins.
func (s *Service) Confirm(ctx context.Context, orderID int64, key string) (ConfirmResult, error) {
	if key == "" {
		return ConfirmResult{}, ErrMissingIdempotencyKey
	}

	rec, err := s.store.GetIdempotencyRecord(ctx, key)
	if err == nil {
		return ConfirmResult{StatusCode: rec.Status, Body: rec.ResponseBody, Replayed: true}, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return ConfirmResult{}, err
	}

	var body []byte
	err = s.store.WithinTx(ctx, func(tx Tx) error {
		o, err := tx.GetOrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if o.Status != StatusCreated {
			return fmt.Errorf("cannot confirm an order in status %s: %w", o.Status, ErrInvalidState)
		}
		if err := tx.SetStatus(ctx, orderID, StatusConfirmed); err != nil {
			return err
		}
		body, err = json.Marshal(confirmBody{ID: orderID, Status: StatusConfirmed, Message: "order confirmed"})
		if err != nil {
			return err
		}
		return tx.InsertIdempotencyRecord(ctx, IdempotencyRecord{
			Key:          key,
			Status:       http.StatusOK,
			ResponseBody: body,
			CreatedAt:    s.now(),
		})
	})
	if err != nil {
		// A concurrent confirm with the same key may have committed between
		// the replay lookup and our transaction. It either recorded its
		// response first (duplicate key) or flipped the status first
		// (invalid state); in both cases the stored response wins.
		if errors.Is(err, ErrDuplicateKey) || errors.Is(err, ErrInvalidState) {
			if stored, rerr := s.store.GetIdempotencyRecord(ctx, key); rerr == nil {
				return ConfirmResult{StatusCode: stored.Status, Body: stored.ResponseBody, Replayed: true}, nil
			}
		}
		return ConfirmResult{}, err
	}

	s.publishEvent(EventOrderConfirmed, orderID, kafkax.MustMarshal(OrderConfirmedPayload{OrderID: orderID}))
	return ConfirmResult{StatusCode: http.StatusOK, Body: body}, nil
}

// Cancel locks the order row, restores every line item's quantity to stock
// and flips the status to CANCELED, all in one transaction. A CONFIRMED
// order can only be canceled inside CancelWindow.
func (s *Service) Cancel(ctx context.Context, orderID int64) error {
	err := s.store.WithinTx(ctx, func(tx Tx) error {
		o, err := tx.GetOrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		switch o.Status {
		case StatusCanceled:
			return ErrAlreadyCanceled
		case StatusConfirmed:
			if s.now().Sub(o.CreatedAt) > CancelWindow {
				return ErrWindowExpired
			}
		}

		items, err := tx.ListItems(ctx, orderID)
		if err != nil {
			return err
		}
		for _, it := range items {
			if err := tx.AdjustStock(ctx, it.ProductID, it.Qty); err != nil {
				return err
			}
		}
		return tx.SetStatus(ctx, orderID, StatusCanceled)
	})
	if err != nil {
		return err
	}

	s.publishEvent(EventOrderCanceled, orderID, kafkax.MustMarshal(OrderCanceledPayload{OrderID: orderID}))
	return nil
}

// Get returns an order together with its line items.
func (s *Service) Get(ctx context.Context, orderID int64) (Order, []OrderItem, error) {
	o, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return Order{}, nil, err
	}
	items, err := s.store.ListItems(ctx, orderID)
	if err != nil {
		return Order{}, nil, err
	}
	return o, items, nil
}

// ListProducts exposes the catalog for the products listing endpoint.
func (s *Service) ListProducts(ctx context.Context) ([]Product, error) {
	return s.store.ListProducts(ctx)
}

func (s *Service) publishCreated(o Order, lines []OrderItem) {
	items := make([]ItemPrice, 0, len(lines))
	for _, l := range lines {
		items = append(items, ItemPrice{ProductID: l.ProductID, Qty: l.Qty, PriceCents: l.UnitPriceCents})
	}
	s.publishEvent(EventOrderCreated, o.ID, kafkax.MustMarshal(OrderCreatedPayload{
		OrderID:    o.ID,
		CustomerID: o.CustomerID,
		Items:      items,
		TotalCents: o.TotalCents,
	}))
}

func (s *Service) publishEvent(eventType string, orderID int64, payload []byte) {
	if s.events == nil {
		return
	}
	ev := Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    s.now().UTC(),
		Producer:      s.name,
		CorrelationID: fmt.Sprintf("%d", orderID),
		Payload:       payload,
	}
	s.events.Publish(PartitionKey(orderID), kafkax.MustMarshal(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(eventType)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}
