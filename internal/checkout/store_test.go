package checkout

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syedhariswaseem/lazr/internal/domain"
	"github.com/syedhariswaseem/lazr/internal/storage"
)

var testCustomer = domain.CustomerInfo{
	FirstName: "Ada",
	LastName:  "Lovelace",
	Email:     "ada@example.com",
	Phone:     "555-0100",
	Address:   "1 Analytical Way",
	City:      "London",
	State:     "LDN",
	ZipCode:   "N1",
	Country:   "GB",
}

var testItems = []domain.OrderItem{{Name: "Product A", Quantity: 1, Price: 125000}}

func newTestService(st storage.Storage) *Service {
	return NewService(st, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

// blockingStorage holds Load until release is closed.
type blockingStorage struct {
	*storage.Memory
	release chan struct{}
}

func (b *blockingStorage) Load(ctx context.Context, key string) ([]byte, error) {
	<-b.release
	return b.Memory.Load(ctx, key)
}

type failingRemove struct {
	*storage.Memory
}

func (f failingRemove) Remove(context.Context, string) error {
	return errors.New("backend down")
}

func TestStore_RoundTrip(t *testing.T) {
	mem := storage.NewMemory()
	svc := newTestService(mem)
	ctx := context.Background()

	s := svc.Load(ctx, "sid-1")
	require.NoError(t, s.SetCheckoutData(ctx, testCustomer, 135000, testItems))

	reloaded := svc.Load(ctx, "sid-1").State()
	assert.False(t, reloaded.IsLoading)
	require.NotNil(t, reloaded.CustomerInfo)
	assert.Equal(t, testCustomer, *reloaded.CustomerInfo)
	require.NotNil(t, reloaded.OrderTotal)
	assert.Equal(t, int64(135000), *reloaded.OrderTotal)
	assert.Equal(t, testItems, reloaded.OrderItems)
	assert.Empty(t, reloaded.OrderID)
}

func TestStore_PersistedShape(t *testing.T) {
	mem := storage.NewMemory()
	ctx := context.Background()
	s := newTestService(mem).Load(ctx, "sid-1")

	require.NoError(t, s.SetCheckoutData(ctx, testCustomer, 135000, testItems))
	require.NoError(t, s.SetOrderID(ctx, "pi_123"))

	raw, err := mem.Load(ctx, "sid-1:checkoutData")
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"customerInfo": {"firstName":"Ada","lastName":"Lovelace","email":"ada@example.com","phone":"555-0100",
			"address":"1 Analytical Way","city":"London","state":"LDN","zipCode":"N1","country":"GB"},
		"orderTotal": 135000,
		"orderItems": [{"name":"Product A","quantity":1,"price":125000}],
		"orderId": "pi_123"
	}`, string(raw))
}

func TestLoad_PartialRecordIsDiscarded(t *testing.T) {
	mem := storage.NewMemory()
	ctx := context.Background()
	require.NoError(t, mem.Save(ctx, "sid-1:checkoutData", []byte(`{"customerInfo":{"firstName":"Ada"},"orderTotal":100}`)))

	var logs bytes.Buffer
	svc := NewService(mem, slog.New(slog.NewTextHandler(&logs, nil)))
	st := svc.Load(ctx, "sid-1").State()

	assert.False(t, st.IsLoading)
	assert.Nil(t, st.CustomerInfo)
	assert.Nil(t, st.OrderTotal)
	assert.Nil(t, st.OrderItems)
	assert.Contains(t, logs.String(), "discarding checkout record")
}

func TestLoad_MalformedJSONIsDiscarded(t *testing.T) {
	mem := storage.NewMemory()
	ctx := context.Background()
	require.NoError(t, mem.Save(ctx, "sid-1:checkoutData", []byte(`{"customerInfo":`)))

	st := newTestService(mem).Load(ctx, "sid-1").State()

	assert.False(t, st.Complete())
}

func TestOpen_LoadingFlagUntilHydrated(t *testing.T) {
	blocking := &blockingStorage{Memory: storage.NewMemory(), release: make(chan struct{})}
	ctx := context.Background()
	seed := newTestService(blocking.Memory).Load(ctx, "sid-1")
	require.NoError(t, seed.SetCheckoutData(ctx, testCustomer, 135000, testItems))

	s := newTestService(blocking).Open(ctx, "sid-1")
	assert.True(t, s.State().IsLoading)

	shortCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, s.Wait(shortCtx), context.DeadlineExceeded)

	close(blocking.release)
	require.NoError(t, s.Wait(ctx))
	st := s.State()
	assert.False(t, st.IsLoading)
	assert.True(t, st.Complete())
}

func TestFinalize_RejectsFurtherChanges(t *testing.T) {
	ctx := context.Background()
	s := newTestService(storage.NewMemory()).Load(ctx, "sid-1")

	require.NoError(t, s.Finalize(ctx, domain.CheckoutSnapshot{
		CustomerInfo: testCustomer,
		OrderTotal:   135000,
		OrderItems:   testItems,
		OrderID:      "pi_123",
	}))

	snap, ok := s.Snapshot()
	require.True(t, ok)
	assert.Equal(t, "pi_123", snap.OrderID)

	assert.ErrorIs(t, s.SetCheckoutData(ctx, testCustomer, 1, nil), ErrSnapshotFinalized)
	assert.ErrorIs(t, s.SetOrderID(ctx, "pi_456"), ErrSnapshotFinalized)
	assert.NoError(t, s.Finalize(ctx, snap), "same order finalizes idempotently")

	snap.OrderID = "pi_456"
	assert.ErrorIs(t, s.Finalize(ctx, snap), ErrSnapshotFinalized)
}

func TestSetOrderID_BeforeDataIsNotFinal(t *testing.T) {
	ctx := context.Background()
	mem := storage.NewMemory()
	s := newTestService(mem).Load(ctx, "sid-1")

	require.NoError(t, s.SetOrderID(ctx, "pi_1"))
	_, err := mem.Load(ctx, "sid-1:checkoutData")
	assert.ErrorIs(t, err, storage.ErrNotFound, "incomplete state is not persisted")

	require.NoError(t, s.SetCheckoutData(ctx, testCustomer, 10, testItems))
	_, ok := s.Snapshot()
	assert.True(t, ok)
}

func TestClear(t *testing.T) {
	mem := storage.NewMemory()
	ctx := context.Background()
	svc := newTestService(mem)
	s := svc.Load(ctx, "sid-1")
	require.NoError(t, s.Finalize(ctx, domain.CheckoutSnapshot{CustomerInfo: testCustomer, OrderTotal: 1, OrderItems: testItems, OrderID: "pi_1"}))

	require.NoError(t, s.Clear(ctx))

	assert.Equal(t, State{}, s.State())
	assert.False(t, svc.Load(ctx, "sid-1").State().Complete())
	require.NoError(t, s.SetCheckoutData(ctx, testCustomer, 2, testItems))
}

func TestClear_BackendFailureKeepsState(t *testing.T) {
	ctx := context.Background()
	s := newTestService(failingRemove{storage.NewMemory()}).Load(ctx, "sid-1")
	require.NoError(t, s.SetCheckoutData(ctx, testCustomer, 2, testItems))

	assert.Error(t, s.Clear(ctx))
	assert.True(t, s.State().Complete())
}

func TestPersistenceDecodeError(t *testing.T) {
	inner := errors.New("unexpected EOF")
	err := error(&PersistenceDecodeError{Key: "sid:checkoutData", Reason: "malformed JSON", Err: inner})

	assert.ErrorIs(t, err, inner)
	assert.Equal(t, "checkout record sid:checkoutData: malformed JSON: unexpected EOF", err.Error())
}
