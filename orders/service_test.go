package orders_test

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/jrsteele09/go-storefront/internal/fakeorderservice"
	storeerrors "github.com/jrsteele09/go-storefront/internal/errors"
	"github.com/jrsteele09/go-storefront/orders"
	"github.com/jrsteele09/go-storefront/sessions"
	fakestoragerepo "github.com/jrsteele09/go-storefront/storage/repofake"
	"github.com/jrsteele09/go-storefront/transport"
	"github.com/stretchr/testify/require"
)

type serviceFixture struct {
	server  *fakeorderservice.Server
	repo    *fakestoragerepo.FakeRepo
	cache   *orders.Cache
	service *orders.Service
	session sessions.State
}

func setupServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()
	ctx := context.Background()

	server := fakeorderservice.New()
	t.Cleanup(server.Close)
	repo := fakestoragerepo.NewFakeRepo()
	client := transport.New(server.URL, transport.WithTimeout(2*time.Second))

	store, err := sessions.NewStore(ctx, repo, client)
	require.NoError(t, err)
	_, err = store.Login(ctx, "customer", "COMP5348")
	require.NoError(t, err)

	cache := orders.NewCache(repo)
	cache.Load(ctx, store.Current().User)

	return &serviceFixture{
		server:  server,
		repo:    repo,
		cache:   cache,
		service: orders.NewService(client, cache),
		session: store.Current(),
	}
}

func (f *serviceFixture) create(t *testing.T, productID int64, quantity int, total float64) orders.Order {
	t.Helper()
	created, err := f.service.Create(context.Background(), f.session, orders.Request{
		Username:    f.session.Username(),
		ProductID:   productID,
		Quantity:    quantity,
		TotalAmount: total,
	})
	require.NoError(t, err)
	return created
}

func TestService_Create(t *testing.T) {
	ctx := context.Background()

	t.Run("prepends to cache", func(t *testing.T) {
		f := setupServiceFixture(t)
		first := f.create(t, 1, 1, 9.99)
		created := f.create(t, 1, 2, 19.98)

		require.Equal(t, 19.98, created.TotalAmount)
		require.Equal(t, orders.StatusReceived, created.Status)
		require.Equal(t, []int64{created.OrderID, first.OrderID}, ids(f.cache.Orders()))
		require.Equal(t, "Bearer "+f.session.Token, f.server.LastAuthorization(fakeorderservice.RouteCreateOrder))
		require.Len(t, storedOrders(t, f.repo, "store-orders-customer"), 2)
	})

	t.Run("server message is surfaced", func(t *testing.T) {
		f := setupServiceFixture(t)
		_, err := f.service.Create(ctx, f.session, orders.Request{Username: "customer", ProductID: 2, Quantity: 1, TotalAmount: 24.5})
		require.True(t, storeerrors.Is(err, storeerrors.ErrValidation))
		require.Equal(t, "Insufficient stock", err.Error())
		require.Empty(t, f.cache.Orders())
	})

	t.Run("raw body then fallback", func(t *testing.T) {
		f := setupServiceFixture(t)
		req := orders.Request{Username: "customer", ProductID: 1, Quantity: 1, TotalAmount: 9.99}

		f.server.Fail(fakeorderservice.RouteCreateOrder, http.StatusInternalServerError, "payment gateway down", false)
		_, err := f.service.Create(ctx, f.session, req)
		require.Equal(t, "payment gateway down", err.Error())
		require.True(t, storeerrors.Is(err, storeerrors.ErrTransport))

		f.server.Fail(fakeorderservice.RouteCreateOrder, http.StatusBadGateway, "", false)
		_, err = f.service.Create(ctx, f.session, req)
		require.Equal(t, "Order creation failed.", err.Error())
		require.Empty(t, f.cache.Orders())
	})

	t.Run("incomplete request is rejected locally", func(t *testing.T) {
		f := setupServiceFixture(t)
		_, err := f.service.Create(ctx, f.session, orders.Request{Username: "customer", ProductID: 1, Quantity: 0})
		require.True(t, storeerrors.Is(err, storeerrors.ErrValidation))
		require.Equal(t, 0, f.server.Calls(fakeorderservice.RouteCreateOrder))
	})

	t.Run("signed out session is rejected by the service", func(t *testing.T) {
		f := setupServiceFixture(t)
		_, err := f.service.Create(ctx, sessions.State{}, orders.Request{Username: "customer", ProductID: 1, Quantity: 1, TotalAmount: 9.99})
		require.True(t, storeerrors.Is(err, storeerrors.ErrAuthentication))
		require.Empty(t, f.server.LastAuthorization(fakeorderservice.RouteCreateOrder))
	})
}

func TestService_FetchOne(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown id is nil and cache unchanged", func(t *testing.T) {
		f := setupServiceFixture(t)
		f.create(t, 1, 1, 9.99)
		before := f.cache.Len()

		require.Nil(t, f.service.FetchOne(ctx, f.session, 999))
		require.Equal(t, before, f.cache.Len())
	})

	t.Run("merges a found order", func(t *testing.T) {
		f := setupServiceFixture(t)
		seeded := f.server.AddOrder(fakeorderservice.Order{OrderID: 40, Username: "customer", ProductID: 1, Quantity: 3, TotalAmount: 29.97, Status: "DELIVERED"})

		got := f.service.FetchOne(ctx, f.session, seeded.OrderID)
		require.NotNil(t, got)
		require.Equal(t, orders.StatusDelivered, got.Status)
		require.Equal(t, []int64{40}, ids(f.cache.Orders()))
	})

	t.Run("another user's order is nil", func(t *testing.T) {
		f := setupServiceFixture(t)
		f.server.AddOrder(fakeorderservice.Order{OrderID: 41, Username: "bob", ProductID: 1, Quantity: 1, Status: "RECEIVED"})
		require.Nil(t, f.service.FetchOne(ctx, f.session, 41))
		require.Empty(t, f.cache.Orders())
	})

	t.Run("transport failure is nil", func(t *testing.T) {
		f := setupServiceFixture(t)
		f.server.Close()
		require.Nil(t, f.service.FetchOne(ctx, f.session, 1))
	})
}

func TestService_FetchAllForUser(t *testing.T) {
	ctx := context.Background()

	t.Run("replaces cache", func(t *testing.T) {
		f := setupServiceFixture(t)
		require.True(t, f.cache.Add(ctx, "customer", order(77, "2020-01-01T00:00:00")))
		first := f.create(t, 1, 1, 9.99)
		second := f.create(t, 1, 1, 9.99)

		fetched, err := f.service.FetchAllForUser(ctx, f.session, f.session.User.UserID)
		require.NoError(t, err)
		require.Equal(t, []int64{second.OrderID, first.OrderID}, ids(fetched))
		require.Equal(t, fetched, f.cache.Orders())
	})

	t.Run("failure keeps prior cache and is returned", func(t *testing.T) {
		f := setupServiceFixture(t)
		f.create(t, 1, 1, 9.99)
		before := f.cache.Orders()

		f.server.Fail(fakeorderservice.RouteUserOrders, http.StatusServiceUnavailable, "", false)
		_, err := f.service.FetchAllForUser(ctx, f.session, f.session.User.UserID)
		require.Error(t, err)
		require.True(t, storeerrors.Is(err, storeerrors.ErrTransport))
		require.Equal(t, "Failed to load orders.", err.Error())
		require.Equal(t, before, f.cache.Orders())
	})

	t.Run("network failure", func(t *testing.T) {
		f := setupServiceFixture(t)
		f.create(t, 1, 1, 9.99)
		f.server.Close()

		_, err := f.service.FetchAllForUser(ctx, f.session, f.session.User.UserID)
		require.True(t, storeerrors.Is(err, storeerrors.ErrTransport))
		require.Equal(t, 1, f.cache.Len())
	})
}

func TestService_Refund(t *testing.T) {
	ctx := context.Background()

	t.Run("merges refunded copy", func(t *testing.T) {
		f := setupServiceFixture(t)
		created := f.create(t, 1, 2, 19.98)
		stockAfterCreate := f.server.Stock(1)

		refunded, err := f.service.Refund(ctx, f.session, created.OrderID)
		require.NoError(t, err)
		require.Equal(t, orders.StatusCancelled, refunded.Status)

		cached, ok := f.cache.Get(created.OrderID)
		require.True(t, ok)
		require.Equal(t, orders.StatusCancelled, cached.Status)
		require.Equal(t, 1, f.cache.Len())
		require.Equal(t, stockAfterCreate+2, f.server.Stock(1))
	})

	t.Run("failure leaves cache", func(t *testing.T) {
		f := setupServiceFixture(t)
		created := f.create(t, 1, 1, 9.99)
		_, err := f.service.Refund(ctx, f.session, created.OrderID)
		require.NoError(t, err)

		_, err = f.service.Refund(ctx, f.session, created.OrderID)
		require.True(t, storeerrors.Is(err, storeerrors.ErrValidation))
		require.True(t, strings.HasPrefix(err.Error(), "Invalid current order status"))

		f.server.Fail(fakeorderservice.RouteRefund, http.StatusInternalServerError, "", false)
		_, err = f.service.Refund(ctx, f.session, created.OrderID)
		require.Equal(t, "Refund request failed.", err.Error())

		cached, _ := f.cache.Get(created.OrderID)
		require.Equal(t, orders.StatusCancelled, cached.Status)
	})
}

func TestService_LateResultsAreDiscarded(t *testing.T) {
	ctx := context.Background()
	f := setupServiceFixture(t)

	release := make(chan struct{})
	f.server.Hook(fakeorderservice.RouteCreateOrder, func() { <-release })

	done := make(chan error, 1)
	go func() {
		_, err := f.service.Create(ctx, f.session, orders.Request{Username: "customer", ProductID: 1, Quantity: 1, TotalAmount: 9.99})
		done <- err
	}()

	require.Eventually(t, func() bool { return f.server.Calls(fakeorderservice.RouteCreateOrder) == 1 }, time.Second, 5*time.Millisecond)
	f.cache.Clear()
	close(release)

	require.NoError(t, <-done)
	require.Empty(t, f.cache.Orders())
}
