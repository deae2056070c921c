package placement_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jrsteele09/go-storefront/catalog"
	storeerrors "github.com/jrsteele09/go-storefront/internal/errors"
	"github.com/jrsteele09/go-storefront/orders"
	"github.com/jrsteele09/go-storefront/placement"
	"github.com/jrsteele09/go-storefront/placement/schedulerfake"
	"github.com/jrsteele09/go-storefront/sessions"
	"github.com/stretchr/testify/require"
)

type fakeSessions struct {
	mu    sync.Mutex
	state sessions.State
}

func (f *fakeSessions) Current() sessions.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

type fakePlacer struct {
	mu         sync.Mutex
	nextID     int64
	createErr  error
	refundErr  error
	createGate chan struct{}
	refundGate chan struct{}
	requests   []orders.Request
	refunds    []int64
}

func (f *fakePlacer) Create(_ context.Context, _ sessions.State, req orders.Request) (orders.Order, error) {
	f.mu.Lock()
	gate := f.createGate
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return orders.Order{}, f.createErr
	}
	f.nextID++
	return orders.Order{OrderID: f.nextID, Username: req.Username, ProductID: req.ProductID, Quantity: req.Quantity, TotalAmount: req.TotalAmount, Status: orders.StatusReceived}, nil
}

func (f *fakePlacer) Refund(_ context.Context, _ sessions.State, orderID int64) (orders.Order, error) {
	f.mu.Lock()
	gate := f.refundGate
	f.refunds = append(f.refunds, orderID)
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.refundErr != nil {
		return orders.Order{}, f.refundErr
	}
	return orders.Order{OrderID: orderID, Status: orders.StatusCancelled}, nil
}

func (f *fakePlacer) set(fn func(*fakePlacer)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

func (f *fakePlacer) lastRequest() orders.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[len(f.requests)-1]
}

type fakeCatalog struct {
	mu        sync.Mutex
	products  map[int64]catalog.Product
	refreshes int
}

func (f *fakeCatalog) Product(productID int64) (catalog.Product, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.products[productID]
	return p, ok
}

func (f *fakeCatalog) RefreshAsync(context.Context) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshes++
}

func (f *fakeCatalog) Refreshes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.refreshes
}

type testFixture struct {
	sessions  *fakeSessions
	placer    *fakePlacer
	catalog   *fakeCatalog
	scheduler *schedulerfake.Scheduler
	workflow  *placement.Workflow

	mu     sync.Mutex
	states []placement.State
}

func setupTestFixture(t *testing.T) *testFixture {
	t.Helper()
	f := &testFixture{
		sessions: &fakeSessions{state: sessions.State{
			User:  &sessions.Identity{UserID: 1, Username: "customer"},
			Token: "credential",
		}},
		placer: &fakePlacer{},
		catalog: &fakeCatalog{products: map[int64]catalog.Product{
			1: {ProductID: 1, ProductName: "Widget", Price: 9.99, TotalQuantity: 15},
			2: {ProductID: 2, ProductName: "Gadget", Price: 24.5, TotalQuantity: 3},
		}},
		scheduler: schedulerfake.New(),
	}
	f.workflow = placement.New(f.sessions, f.placer, f.catalog,
		placement.WithScheduler(f.scheduler),
		placement.WithListener(func(s placement.Snapshot) {
			f.mu.Lock()
			defer f.mu.Unlock()
			f.states = append(f.states, s.State)
		}),
	)
	t.Cleanup(f.workflow.Stop)
	return f
}

func (f *testFixture) observed() []placement.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]placement.State(nil), f.states...)
}

func (f *testFixture) place(t *testing.T, productID int64, quantity int) orders.Order {
	t.Helper()
	created, err := f.workflow.Submit(context.Background(), productID, quantity)
	require.NoError(t, err)
	return created
}

func TestTotal(t *testing.T) {
	require.Equal(t, 19.98, placement.Total(9.99, 2))
	require.Equal(t, 0.3, placement.Total(0.1, 3))
	require.Equal(t, 73.5, placement.Total(24.5, 3))
	require.Equal(t, 0.0, placement.Total(9.99, 0))
}

func TestWorkflow_Submit(t *testing.T) {
	ctx := context.Background()

	t.Run("opens a cancellation window", func(t *testing.T) {
		f := setupTestFixture(t)
		f.workflow.SetQuantity(1, 2)
		created := f.place(t, 1, 2)

		snap := f.workflow.Snapshot()
		require.Equal(t, placement.PlacedCancelable, snap.State)
		require.Equal(t, placement.Session{OrderID: created.OrderID, Remaining: 5, Active: true}, snap.Session)
		require.Equal(t, "Order 1 created successfully for 2 x Widget.", snap.Message)
		require.NoError(t, snap.Err)

		req := f.placer.lastRequest()
		require.Equal(t, orders.Request{Username: "customer", ProductID: 1, Quantity: 2, TotalAmount: 19.98}, req)
		require.Equal(t, 1, f.workflow.Quantity(1))
		require.Equal(t, 1, f.scheduler.Active())
		require.Equal(t, 1, f.catalog.Refreshes())
		require.Equal(t, []placement.State{placement.Submitting, placement.PlacedCancelable}, f.observed())
	})

	t.Run("requires a signed in session", func(t *testing.T) {
		f := setupTestFixture(t)
		f.sessions.state = sessions.State{User: &sessions.Identity{Username: "customer"}}

		_, err := f.workflow.Submit(ctx, 1, 1)
		require.True(t, storeerrors.Is(err, storeerrors.ErrAuthentication))
		require.Empty(t, f.placer.requests)
		require.Equal(t, placement.Idle, f.workflow.Snapshot().State)
	})

	t.Run("rejects unknown product and bad quantity", func(t *testing.T) {
		f := setupTestFixture(t)

		_, err := f.workflow.Submit(ctx, 99, 1)
		require.True(t, storeerrors.Is(err, storeerrors.ErrValidation))
		require.Equal(t, "Unknown product selected", err.Error())

		_, err = f.workflow.Submit(ctx, 1, 0)
		require.True(t, storeerrors.Is(err, storeerrors.ErrValidation))
		require.Equal(t, "Quantity must be at least 1", err.Error())
		require.Equal(t, err, f.workflow.Snapshot().Err)
		require.Empty(t, f.placer.requests)
	})

	t.Run("one submission per product at a time", func(t *testing.T) {
		f := setupTestFixture(t)
		gate := make(chan struct{})
		f.placer.set(func(p *fakePlacer) { p.createGate = gate })

		done := make(chan error, 1)
		go func() {
			_, err := f.workflow.Submit(ctx, 1, 1)
			done <- err
		}()
		require.Eventually(t, func() bool { return f.workflow.Submitting(1) }, time.Second, time.Millisecond)
		require.Equal(t, placement.Submitting, f.workflow.Snapshot().State)

		_, err := f.workflow.Submit(ctx, 1, 1)
		require.True(t, storeerrors.Is(err, storeerrors.ErrInFlight))

		close(gate)
		require.NoError(t, <-done)
		require.False(t, f.workflow.Submitting(1))
		require.Len(t, f.placer.requests, 1)
	})

	t.Run("failure returns to idle without a countdown", func(t *testing.T) {
		f := setupTestFixture(t)
		failure := storeerrors.Display(storeerrors.ErrValidation, "Insufficient stock")
		f.placer.set(func(p *fakePlacer) { p.createErr = failure })
		f.workflow.SetQuantity(2, 3)

		_, err := f.workflow.Submit(ctx, 2, 3)
		require.Equal(t, failure, err)

		snap := f.workflow.Snapshot()
		require.Equal(t, placement.Idle, snap.State)
		require.Equal(t, "Insufficient stock", snap.Err.Error())
		require.Equal(t, 0, f.scheduler.Created())
		require.Equal(t, 3, f.workflow.Quantity(2))
		require.Equal(t, 0, f.catalog.Refreshes())
	})

	t.Run("failure keeps an earlier open window", func(t *testing.T) {
		f := setupTestFixture(t)
		first := f.place(t, 1, 1)
		f.scheduler.Advance(1)

		f.placer.set(func(p *fakePlacer) { p.createErr = storeerrors.ErrTransport })
		_, err := f.workflow.Submit(ctx, 2, 1)
		require.Error(t, err)

		snap := f.workflow.Snapshot()
		require.Equal(t, placement.PlacedCancelable, snap.State)
		require.Equal(t, placement.Session{OrderID: first.OrderID, Remaining: 4, Active: true}, snap.Session)
	})

	t.Run("a new order replaces the running countdown", func(t *testing.T) {
		f := setupTestFixture(t)
		f.place(t, 1, 1)
		f.scheduler.Advance(3)
		second := f.place(t, 2, 1)

		require.Equal(t, 2, f.scheduler.Created())
		require.Equal(t, 1, f.scheduler.Active())
		require.Equal(t, placement.Session{OrderID: second.OrderID, Remaining: 5, Active: true}, f.workflow.Snapshot().Session)

		require.Equal(t, 1, f.scheduler.Advance(1))
		require.Equal(t, 4, f.workflow.Snapshot().Session.Remaining)
	})
}

func TestWorkflow_Countdown(t *testing.T) {
	f := setupTestFixture(t)
	f.place(t, 1, 1)

	for want := 4; want >= 1; want-- {
		f.scheduler.Advance(1)
		snap := f.workflow.Snapshot()
		require.Equal(t, placement.PlacedCancelable, snap.State)
		require.Equal(t, want, snap.Session.Remaining)
	}

	f.scheduler.Advance(1)
	snap := f.workflow.Snapshot()
	require.Equal(t, placement.Expired, snap.State)
	require.Equal(t, 0, snap.Session.Remaining)
	require.False(t, snap.Session.Active)
	require.Equal(t, 0, f.scheduler.Active())

	_, err := f.workflow.Cancel(context.Background())
	require.True(t, storeerrors.Is(err, storeerrors.ErrNotCancelable))
	require.Empty(t, f.placer.refunds)
	require.Equal(t, 0, f.scheduler.Advance(3))
}

func TestWorkflow_Cancel(t *testing.T) {
	ctx := context.Background()

	t.Run("refund at three seconds", func(t *testing.T) {
		f := setupTestFixture(t)
		created := f.place(t, 1, 2)
		f.scheduler.Advance(2)
		require.Equal(t, 3, f.workflow.Snapshot().Session.Remaining)

		refunded, err := f.workflow.Cancel(ctx)
		require.NoError(t, err)
		require.Equal(t, orders.StatusCancelled, refunded.Status)

		snap := f.workflow.Snapshot()
		require.Equal(t, placement.Refunded, snap.State)
		require.False(t, snap.Session.Active)
		require.Equal(t, "Order 1 refunded.", snap.Message)
		require.Equal(t, []int64{created.OrderID}, f.placer.refunds)
		require.Equal(t, 0, f.scheduler.Active())
		require.Equal(t, 0, f.scheduler.Advance(5))
		require.Equal(t, 2, f.catalog.Refreshes())

		states := f.observed()
		require.Equal(t, []placement.State{placement.Refunding, placement.Refunded}, states[len(states)-2:])
	})

	t.Run("nothing to cancel", func(t *testing.T) {
		f := setupTestFixture(t)
		_, err := f.workflow.Cancel(ctx)
		require.True(t, storeerrors.Is(err, storeerrors.ErrNotCancelable))
	})

	t.Run("failure keeps the remaining window", func(t *testing.T) {
		f := setupTestFixture(t)
		f.place(t, 1, 1)
		f.scheduler.Advance(1)
		f.placer.set(func(p *fakePlacer) { p.refundErr = storeerrors.Display(storeerrors.ErrTransport, "Refund request failed.") })

		_, err := f.workflow.Cancel(ctx)
		require.Equal(t, "Unable to cancel order", err.Error())
		require.True(t, storeerrors.Is(err, storeerrors.ErrTransport))

		snap := f.workflow.Snapshot()
		require.Equal(t, placement.PlacedCancelable, snap.State)
		require.Equal(t, 4, snap.Session.Remaining)
		require.Equal(t, err, snap.Err)
		require.Equal(t, 1, f.scheduler.Active())

		f.placer.set(func(p *fakePlacer) { p.refundErr = nil })
		f.scheduler.Advance(1)
		require.Equal(t, 3, f.workflow.Snapshot().Session.Remaining)
		_, err = f.workflow.Cancel(ctx)
		require.NoError(t, err)
	})

	t.Run("window closing during refund", func(t *testing.T) {
		f := setupTestFixture(t)
		f.place(t, 1, 1)
		gate := make(chan struct{})
		f.placer.set(func(p *fakePlacer) {
			p.refundGate = gate
			p.refundErr = storeerrors.ErrTransport
		})

		done := make(chan error, 1)
		go func() {
			_, err := f.workflow.Cancel(ctx)
			done <- err
		}()
		require.Eventually(t, func() bool {
			return f.workflow.Snapshot().State == placement.Refunding
		}, time.Second, time.Millisecond)

		_, err := f.workflow.Cancel(ctx)
		require.True(t, storeerrors.Is(err, storeerrors.ErrInFlight))

		f.scheduler.Advance(5)
		snap := f.workflow.Snapshot()
		require.Equal(t, placement.Refunding, snap.State)
		require.False(t, snap.Session.Active)
		require.Equal(t, 0, f.scheduler.Active())

		close(gate)
		require.Error(t, <-done)
		require.Equal(t, placement.Expired, f.workflow.Snapshot().State)
		require.Equal(t, 1, f.scheduler.Created())
	})

	t.Run("window closing during a successful refund", func(t *testing.T) {
		f := setupTestFixture(t)
		f.place(t, 1, 1)
		gate := make(chan struct{})
		f.placer.set(func(p *fakePlacer) { p.refundGate = gate })

		done := make(chan error, 1)
		go func() {
			_, err := f.workflow.Cancel(ctx)
			done <- err
		}()
		require.Eventually(t, func() bool {
			return f.workflow.Snapshot().State == placement.Refunding
		}, time.Second, time.Millisecond)
		f.scheduler.Advance(5)

		close(gate)
		require.NoError(t, <-done)
		require.Equal(t, placement.Refunded, f.workflow.Snapshot().State)
	})
}

func TestWorkflow_Stop(t *testing.T) {
	ctx := context.Background()

	t.Run("releases the countdown", func(t *testing.T) {
		f := setupTestFixture(t)
		f.place(t, 1, 1)
		f.scheduler.Advance(1)

		f.workflow.Stop()
		f.workflow.Stop()

		snap := f.workflow.Snapshot()
		require.Equal(t, placement.Idle, snap.State)
		require.Equal(t, placement.Session{}, snap.Session)
		require.Equal(t, 0, f.scheduler.Active())
		require.Equal(t, 0, f.scheduler.Advance(5))

		_, err := f.workflow.Cancel(ctx)
		require.True(t, storeerrors.Is(err, storeerrors.ErrNotCancelable))
	})

	t.Run("discards an in flight submission", func(t *testing.T) {
		f := setupTestFixture(t)
		gate := make(chan struct{})
		f.placer.set(func(p *fakePlacer) { p.createGate = gate })

		done := make(chan error, 1)
		go func() {
			_, err := f.workflow.Submit(ctx, 1, 1)
			done <- err
		}()
		require.Eventually(t, func() bool { return f.workflow.Submitting(1) }, time.Second, time.Millisecond)

		f.workflow.Stop()
		close(gate)
		require.NoError(t, <-done)

		require.Equal(t, placement.Idle, f.workflow.Snapshot().State)
		require.Equal(t, 0, f.scheduler.Created())
		require.False(t, f.workflow.Submitting(1))
	})

	t.Run("discards an in flight refund", func(t *testing.T) {
		f := setupTestFixture(t)
		f.place(t, 1, 1)
		gate := make(chan struct{})
		f.placer.set(func(p *fakePlacer) { p.refundGate = gate })

		done := make(chan error, 1)
		go func() {
			_, err := f.workflow.Cancel(ctx)
			done <- err
		}()
		require.Eventually(t, func() bool {
			return f.workflow.Snapshot().State == placement.Refunding
		}, time.Second, time.Millisecond)

		f.workflow.Stop()
		close(gate)
		require.NoError(t, <-done)
		require.Equal(t, placement.Idle, f.workflow.Snapshot().State)
		require.Empty(t, f.workflow.Snapshot().Message)
	})
}

func TestWorkflow_Quantity(t *testing.T) {
	f := setupTestFixture(t)
	require.Equal(t, 1, f.workflow.Quantity(1))
	f.workflow.SetQuantity(1, 4)
	require.Equal(t, 4, f.workflow.Quantity(1))
	f.workflow.SetQuantity(1, -2)
	require.Equal(t, 1, f.workflow.Quantity(1))
}

func TestState_String(t *testing.T) {
	require.Equal(t, "placed-cancelable", placement.PlacedCancelable.String())
	require.Equal(t, "expired", placement.Expired.String())
	require.Equal(t, "state(42)", placement.State(42).String())
}
