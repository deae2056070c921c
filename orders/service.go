package orders

import (
	"context"
	"fmt"
	"strings"

	storeerrors "github.com/jrsteele09/go-storefront/internal/errors"
	"github.com/jrsteele09/go-storefront/sessions"
	"github.com/jrsteele09/go-storefront/transport"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

const ordersPath = "/api/orders"

// Service is the order sync protocol: every call is made with the credential
// of the session passed in and, on success, folded into the cache under that
// session's user.
type Service struct {
	client *transport.Client
	cache  *Cache
	log    zerolog.Logger
}

type ServiceOption func(*Service)

func WithLogger(log zerolog.Logger) ServiceOption {
	return func(s *Service) {
		s.log = log
	}
}

func NewService(client *transport.Client, cache *Cache, options ...ServiceOption) *Service {
	s := &Service{
		client: client,
		cache:  cache,
		log:    zerolog.Nop(),
	}
	for _, opt := range options {
		opt(s)
	}
	return s
}

func (s *Service) Cache() *Cache {
	return s.cache
}

// FetchOne loads a single order. Any failure yields nil and leaves the cache
// alone; callers treat nil as "not yours or not there".
func (s *Service) FetchOne(ctx context.Context, session sessions.State, orderID int64) *Order {
	var order Order
	if err := s.client.Authorized(session.Token).Get(ctx, fmt.Sprintf("%s/%d", ordersPath, orderID), &order); err != nil {
		s.log.Debug().Err(err).Int64("orderId", orderID).Msg("fetch order failed")
		return nil
	}
	s.cache.Add(ctx, session.Username(), order)
	return &order
}

// FetchAllForUser replaces the cache with the user's orders from the service.
// Unlike FetchOne, failures are returned and the cache is left as it was.
func (s *Service) FetchAllForUser(ctx context.Context, session sessions.State, userID int64) ([]Order, error) {
	var fetched []Order
	if err := s.client.Authorized(session.Token).Get(ctx, fmt.Sprintf("%s/users/%d", ordersPath, userID), &fetched); err != nil {
		s.log.Error().Err(err).Int64("userId", userID).Msg("fetch orders failed")
		return nil, transport.Display(errors.Wrap(err, "[Service.FetchAllForUser]"), "Failed to load orders.")
	}
	normalized := Merge(fetched, nil)
	s.cache.Replace(ctx, session.Username(), normalized)
	return normalized, nil
}

// Create places an order and prepends it to the cache.
func (s *Service) Create(ctx context.Context, session sessions.State, req Request) (Order, error) {
	if strings.TrimSpace(req.Username) == "" || req.ProductID == 0 || req.Quantity < 1 {
		return Order{}, storeerrors.Display(storeerrors.ErrValidation, "Order request is incomplete.")
	}

	var created Order
	if err := s.client.Authorized(session.Token).Post(ctx, ordersPath, req, &created); err != nil {
		s.log.Error().Err(err).Int64("productId", req.ProductID).Int("quantity", req.Quantity).Msg("create order failed")
		return Order{}, transport.Display(errors.Wrap(err, "[Service.Create]"), "Order creation failed.")
	}
	s.cache.Add(ctx, session.Username(), created)
	return created, nil
}

// Refund requests a refund and merges the refunded record over any cached copy.
func (s *Service) Refund(ctx context.Context, session sessions.State, orderID int64) (Order, error) {
	var refunded Order
	if err := s.client.Authorized(session.Token).Post(ctx, fmt.Sprintf("%s/%d/refund", ordersPath, orderID), nil, &refunded); err != nil {
		s.log.Error().Err(err).Int64("orderId", orderID).Msg("refund failed")
		return Order{}, transport.Display(errors.Wrap(err, "[Service.Refund]"), "Refund request failed.")
	}
	s.cache.Add(ctx, session.Username(), refunded)
	return refunded, nil
}
