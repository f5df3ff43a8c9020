package orders

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePublisher struct {
	mu     sync.Mutex
	events []Envelope
}

func (f *fakePublisher) Publish(key, value []byte, headers ...kafkago.Header) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ev Envelope
	_ = json.Unmarshal(value, &ev)
	f.events = append(f.events, ev)
}

func (f *fakePublisher) types() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.events))
	for _, ev := range f.events {
		out = append(out, ev.EventType)
	}
	return out
}

func newTestService(t *testing.T) (*Service, *MemStore, *fakePublisher) {
	t.Helper()
	store := NewMemStore()
	pub := &fakePublisher{}
	svc := NewService(store, pub, "orders-test")
	return svc, store, pub
}

func seedProduct(store *MemStore, id int64, priceCents int64, stock int) {
	store.AddProduct(Product{
		ID: id, SKU: fmt.Sprintf("SKU-%d", id), Name: fmt.Sprintf("product %d", id),
		Stock: stock, PriceCents: priceCents,
	})
}

func TestCreateComputesIntegerCentsTotal(t *testing.T) {
	svc, store, _ := newTestService(t)
	seedProduct(store, 1, 500, 10)

	o, err := svc.Create(context.Background(), 7, []ItemInput{{ProductID: 1, Qty: 2}})
	require.NoError(t, err)

	assert.Equal(t, StatusCreated, o.Status)
	assert.Equal(t, int64(1000), o.TotalCents)

	items, err := store.ListItems(context.Background(), o.ID)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, int64(500), items[0].UnitPriceCents)
	assert.Equal(t, int64(1000), items[0].SubtotalCents)
	assert.Equal(t, 8, store.ProductStock(1))
}

func TestCreateValidation(t *testing.T) {
	svc, store, _ := newTestService(t)
	seedProduct(store, 1, 500, 10)

	_, err := svc.Create(context.Background(), 7, nil)
	assert.ErrorIs(t, err, ErrEmptyItems)

	_, err = svc.Create(context.Background(), 7, []ItemInput{{ProductID: 1, Qty: 0}})
	assert.ErrorIs(t, err, ErrInvalidQty)
	assert.Equal(t, 10, store.ProductStock(1), "validation failures must not touch stock")
}

func TestCreateProductNotFound(t *testing.T) {
	svc, _, _ := newTestService(t)
	_, err := svc.Create(context.Background(), 7, []ItemInput{{ProductID: 99, Qty: 1}})
	assert.ErrorIs(t, err, ErrProductNotFound)
}

func TestCreateOutOfStock(t *testing.T) {
	svc, store, _ := newTestService(t)
	seedProduct(store, 1, 500, 1)

	_, err := svc.Create(context.Background(), 7, []ItemInput{{ProductID: 1, Qty: 2}})
	assert.ErrorIs(t, err, ErrOutOfStock)
	assert.Equal(t, 1, store.ProductStock(1))
}

func TestCreateRollsBackWholeOrderOnPartialFailure(t *testing.T) {
	svc, store, _ := newTestService(t)
	seedProduct(store, 1, 500, 10)
	// product 2 does not exist; the first item's decrement must roll back

	_, err := svc.Create(context.Background(), 7, []ItemInput{
		{ProductID: 1, Qty: 3},
		{ProductID: 2, Qty: 1},
	})
	assert.ErrorIs(t, err, ErrProductNotFound)
	assert.Equal(t, 10, store.ProductStock(1))

	_, err = store.GetOrder(context.Background(), 1)
	assert.ErrorIs(t, err, ErrNotFound, "no partial order may be visible")
}

func TestConcurrentCreatesNeverOversell(t *testing.T) {
	svc, store, _ := newTestService(t)
	const stock = 5
	const attempts = 12
	seedProduct(store, 1, 500, stock)

	var wg sync.WaitGroup
	errs := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Create(context.Background(), 7, []ItemInput{{ProductID: 1, Qty: 1}})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else {
			assert.ErrorIs(t, err, ErrOutOfStock)
		}
	}
	assert.Equal(t, stock, succeeded, "exactly the quantities that fit must succeed")
	assert.Equal(t, 0, store.ProductStock(1))
	assert.GreaterOrEqual(t, store.ProductStock(1), 0, "stock may never go negative")
}

func TestConfirmIsIdempotent(t *testing.T) {
	svc, store, pub := newTestService(t)
	seedProduct(store, 1, 500, 5)
	o, err := svc.Create(context.Background(), 7, []ItemInput{{ProductID: 1, Qty: 1}})
	require.NoError(t, err)

	first, err := svc.Confirm(context.Background(), o.ID, "key-1")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, first.StatusCode)
	assert.False(t, first.Replayed)

	second, err := svc.Confirm(context.Background(), o.ID, "key-1")
	require.NoError(t, err)
	assert.True(t, second.Replayed)
	assert.Equal(t, first.StatusCode, second.StatusCode)
	assert.Equal(t, first.Body, second.Body, "replays must be byte-identical")

	got, err := store.GetOrder(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, got.Status)

	// one create, one confirm; the replay must not publish again
	assert.Equal(t, []string{EventOrderCreated, EventOrderConfirmed}, pub.types())
}

func TestConfirmReplayPrecedesLiveLookup(t *testing.T) {
	svc, store, _ := newTestService(t)
	seedProduct(store, 1, 500, 5)
	o, err := svc.Create(context.Background(), 7, []ItemInput{{ProductID: 1, Qty: 1}})
	require.NoError(t, err)

	first, err := svc.Confirm(context.Background(), o.ID, "key-1")
	require.NoError(t, err)

	// same key against a nonexistent order still returns the stored response
	replay, err := svc.Confirm(context.Background(), 424242, "key-1")
	require.NoError(t, err)
	assert.True(t, replay.Replayed)
	assert.Equal(t, first.Body, replay.Body)
}

func TestConfirmMissingKey(t *testing.T) {
	svc, _, _ := newTestService(t)
	_, err := svc.Confirm(context.Background(), 1, "")
	assert.ErrorIs(t, err, ErrMissingIdempotencyKey)
}

func TestConfirmOrderNotFound(t *testing.T) {
	svc, _, _ := newTestService(t)
	_, err := svc.Confirm(context.Background(), 999, "key-x")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestConfirmRejectsNonCreatedOrder(t *testing.T) {
	svc, store, _ := newTestService(t)
	seedProduct(store, 1, 500, 5)
	o, err := svc.Create(context.Background(), 7, []ItemInput{{ProductID: 1, Qty: 1}})
	require.NoError(t, err)
	require.NoError(t, svc.Cancel(context.Background(), o.ID))

	_, err = svc.Confirm(context.Background(), o.ID, "key-1")
	assert.ErrorIs(t, err, ErrInvalidState)
}

// raceStore slips a competing record in after the replay lookup misses, as
// if a concurrent confirm with the same key committed just before our
// transaction began.
type raceStore struct {
	*MemStore
	competing IdempotencyRecord
	missed    bool
	raced     bool
}

func (r *raceStore) GetIdempotencyRecord(ctx context.Context, key string) (IdempotencyRecord, error) {
	if !r.missed {
		// the competitor has not recorded anything yet
		r.missed = true
		return IdempotencyRecord{}, fmt.Errorf("idempotency key %q: %w", key, ErrNotFound)
	}
	return r.MemStore.GetIdempotencyRecord(ctx, key)
}

func (r *raceStore) WithinTx(ctx context.Context, fn func(tx Tx) error) error {
	if r.missed && !r.raced {
		r.raced = true
		r.idem[r.competing.Key] = r.competing
	}
	return r.MemStore.WithinTx(ctx, fn)
}

func TestConfirmDuplicateInsertReturnsStoredRecord(t *testing.T) {
	mem := NewMemStore()
	competing, _ := json.Marshal(confirmBody{ID: 1, Status: StatusConfirmed, Message: "order confirmed"})
	store := &raceStore{
		MemStore:  mem,
		competing: IdempotencyRecord{Key: "key-1", Status: http.StatusOK, ResponseBody: competing},
	}
	svc := NewService(store, nil, "orders-test")
	seedProduct(mem, 1, 500, 5)
	o, err := svc.Create(context.Background(), 7, []ItemInput{{ProductID: 1, Qty: 1}})
	require.NoError(t, err)

	res, err := svc.Confirm(context.Background(), o.ID, "key-1")
	require.NoError(t, err)
	assert.True(t, res.Replayed)
	assert.Equal(t, competing, []byte(res.Body), "the loser must return the winner's recorded response")
}

func TestCancelCreatedRestoresStock(t *testing.T) {
	svc, store, pub := newTestService(t)
	seedProduct(store, 1, 500, 5)
	seedProduct(store, 2, 300, 4)
	o, err := svc.Create(context.Background(), 7, []ItemInput{
		{ProductID: 1, Qty: 2},
		{ProductID: 2, Qty: 3},
	})
	require.NoError(t, err)
	require.Equal(t, 3, store.ProductStock(1))
	require.Equal(t, 1, store.ProductStock(2))

	require.NoError(t, svc.Cancel(context.Background(), o.ID))

	assert.Equal(t, 5, store.ProductStock(1))
	assert.Equal(t, 4, store.ProductStock(2))
	got, err := store.GetOrder(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCanceled, got.Status)
	assert.Contains(t, pub.types(), EventOrderCanceled)
}

func TestCancelNotFound(t *testing.T) {
	svc, _, _ := newTestService(t)
	assert.ErrorIs(t, svc.Cancel(context.Background(), 999), ErrNotFound)
}

func TestCancelAlreadyCanceled(t *testing.T) {
	svc, store, _ := newTestService(t)
	seedProduct(store, 1, 500, 5)
	o, err := svc.Create(context.Background(), 7, []ItemInput{{ProductID: 1, Qty: 1}})
	require.NoError(t, err)
	require.NoError(t, svc.Cancel(context.Background(), o.ID))

	assert.ErrorIs(t, svc.Cancel(context.Background(), o.ID), ErrAlreadyCanceled)
	assert.Equal(t, 5, store.ProductStock(1), "a failed cancel must not restore stock twice")
}

func TestCancelConfirmedWithinWindow(t *testing.T) {
	svc, store, _ := newTestService(t)
	seedProduct(store, 1, 500, 5)

	base := time.Now()
	svc.now = func() time.Time { return base }
	o, err := svc.Create(context.Background(), 7, []ItemInput{{ProductID: 1, Qty: 2}})
	require.NoError(t, err)
	_, err = svc.Confirm(context.Background(), o.ID, "key-1")
	require.NoError(t, err)

	svc.now = func() time.Time { return base.Add(9 * time.Minute) }
	require.NoError(t, svc.Cancel(context.Background(), o.ID))
	assert.Equal(t, 5, store.ProductStock(1))
}

func TestCancelConfirmedAfterWindowFails(t *testing.T) {
	svc, store, _ := newTestService(t)
	seedProduct(store, 1, 500, 5)

	base := time.Now()
	svc.now = func() time.Time { return base }
	o, err := svc.Create(context.Background(), 7, []ItemInput{{ProductID: 1, Qty: 2}})
	require.NoError(t, err)
	_, err = svc.Confirm(context.Background(), o.ID, "key-1")
	require.NoError(t, err)

	// the window runs from creation, so confirmation time is irrelevant
	svc.now = func() time.Time { return base.Add(CancelWindow + time.Second) }
	assert.ErrorIs(t, svc.Cancel(context.Background(), o.ID), ErrWindowExpired)
	assert.Equal(t, 3, store.ProductStock(1), "stock stays reserved after a refused cancel")
}

func TestCancelCreatedHasNoTimeLimit(t *testing.T) {
	svc, store, _ := newTestService(t)
	seedProduct(store, 1, 500, 5)

	base := time.Now()
	svc.now = func() time.Time { return base }
	o, err := svc.Create(context.Background(), 7, []ItemInput{{ProductID: 1, Qty: 1}})
	require.NoError(t, err)

	svc.now = func() time.Time { return base.Add(48 * time.Hour) }
	assert.NoError(t, svc.Cancel(context.Background(), o.ID))
	assert.Equal(t, 5, store.ProductStock(1))
}

func TestStatusTransitions(t *testing.T) {
	assert.True(t, CanTransition(StatusCreated, StatusConfirmed))
	assert.True(t, CanTransition(StatusCreated, StatusCanceled))
	assert.True(t, CanTransition(StatusConfirmed, StatusCanceled))
	assert.False(t, CanTransition(StatusConfirmed, StatusCreated))
	assert.False(t, CanTransition(StatusCanceled, StatusConfirmed))
	assert.False(t, CanTransition(StatusCanceled, StatusCreated))
}
