package saga

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/danukusuma/go-saga-orders/internal/orders"
)

// RemoteError carries a downstream response so callers can propagate the
// upstream status and body unchanged.
type RemoteError struct {
	Status int
	Body   []byte
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("upstream returned %d: %s", e.Status, e.Body)
}

// Headers forwarded on service-to-service calls. The idempotency key rides
// its own header, separate from the Authorization credential.
const (
	HeaderIdempotencyKey = "X-Idempotency-Key"
	HeaderCorrelationID  = "X-Correlation-Id"
)

type client struct {
	baseURL string
	token   string
	http    *http.Client
}

func newClient(baseURL, token string, timeout time.Duration) client {
	return client{
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{Timeout: timeout},
	}
}

// doJSON performs one bounded remote call. Non-2xx responses come back as a
// *RemoteError holding the upstream body verbatim; a timed-out call maps to
// 504 so the caller can tell it apart from an upstream rejection.
func (c *client) doJSON(ctx context.Context, method, path string, body any, headers map[string]string, out any) error {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if isTimeout(err) {
			return &RemoteError{
				Status: http.StatusGatewayTimeout,
				Body:   mustErrorBody(fmt.Sprintf("timed out calling %s%s", c.baseURL, path)),
			}
		}
		return err
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &RemoteError{Status: resp.StatusCode, Body: b}
	}
	if out != nil {
		return json.Unmarshal(b, out)
	}
	return nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func mustErrorBody(msg string) []byte {
	b, _ := json.Marshal(map[string]string{"error": msg})
	return b
}

// Customer is the slice of the customers API response the saga consolidates.
type Customer struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone,omitempty"`
}

type CustomerClient struct {
	client
}

func NewCustomerClient(baseURL, token string, timeout time.Duration) *CustomerClient {
	return &CustomerClient{client: newClient(baseURL, token, timeout)}
}

func (c *CustomerClient) Get(ctx context.Context, id int64, correlationID string) (Customer, error) {
	var out Customer
	err := c.doJSON(ctx, http.MethodGet, fmt.Sprintf("/customers/%d", id), nil,
		map[string]string{HeaderCorrelationID: correlationID}, &out)
	return out, err
}

// CreatedOrder is the orders API's create response.
type CreatedOrder struct {
	ID         int64  `json:"id"`
	Status     string `json:"status"`
	TotalCents int64  `json:"total_cents"`
}

// ConfirmedOrder is the orders API's confirm response.
type ConfirmedOrder struct {
	ID      int64  `json:"id"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

type OrderClient struct {
	client
}

func NewOrderClient(baseURL, token string, timeout time.Duration) *OrderClient {
	return &OrderClient{client: newClient(baseURL, token, timeout)}
}

type orderItemWire struct {
	ProductID int64 `json:"productId"`
	Qty       int   `json:"qty"`
}

type createOrderWire struct {
	CustomerID int64           `json:"customerId"`
	Items      []orderItemWire `json:"items"`
}

func (c *OrderClient) Create(ctx context.Context, customerID int64, items []orders.ItemInput, correlationID string) (CreatedOrder, error) {
	wire := createOrderWire{CustomerID: customerID, Items: make([]orderItemWire, 0, len(items))}
	for _, it := range items {
		wire.Items = append(wire.Items, orderItemWire{ProductID: it.ProductID, Qty: it.Qty})
	}
	var out CreatedOrder
	err := c.doJSON(ctx, http.MethodPost, "/orders", wire,
		map[string]string{HeaderCorrelationID: correlationID}, &out)
	return out, err
}

func (c *OrderClient) Confirm(ctx context.Context, orderID int64, idempotencyKey, correlationID string) (ConfirmedOrder, error) {
	var out ConfirmedOrder
	err := c.doJSON(ctx, http.MethodPost, fmt.Sprintf("/orders/%d/confirm", orderID), nil,
		map[string]string{
			HeaderIdempotencyKey: idempotencyKey,
			HeaderCorrelationID:  correlationID,
		}, &out)
	return out, err
}
