package catalog

import (
	"context"
	"slices"
	"sync"

	storeerrors "github.com/jrsteele09/go-storefront/internal/errors"
	"github.com/jrsteele09/go-storefront/transport"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

const stockPath = "/api/products/stock"

const refreshFailedMessage = "Unable to load product stock at the moment."

// Service holds the last successfully loaded product list. The catalogue is
// public, so it always uses an anonymous client.
type Service struct {
	mu       sync.RWMutex
	client   *transport.Client
	products []Product
	loading  int
	pending  sync.WaitGroup
	log      zerolog.Logger
}

type Option func(*Service)

func WithLogger(log zerolog.Logger) Option {
	return func(s *Service) {
		s.log = log
	}
}

func NewService(client *transport.Client, options ...Option) *Service {
	s := &Service{
		client: client.Anonymous(),
		log:    zerolog.Nop(),
	}
	for _, opt := range options {
		opt(s)
	}
	return s
}

// Refresh reloads stock. On failure the previous list is kept.
func (s *Service) Refresh(ctx context.Context) ([]Product, error) {
	s.mu.Lock()
	s.loading++
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.loading--
		s.mu.Unlock()
	}()

	var fetched []Product
	if err := s.client.Get(ctx, stockPath, &fetched); err != nil {
		s.log.Warn().Err(err).Msg("stock refresh failed")
		return nil, storeerrors.Display(errors.Wrap(err, "[Service.Refresh]"), refreshFailedMessage)
	}
	if fetched == nil {
		fetched = []Product{}
	}

	s.mu.Lock()
	s.products = fetched
	s.mu.Unlock()
	s.log.Debug().Int("products", len(fetched)).Msg("stock refreshed")
	return s.Products(), nil
}

// RefreshAsync starts a refresh and does not wait for it. Errors are logged.
func (s *Service) RefreshAsync(ctx context.Context) {
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		_, _ = s.Refresh(context.WithoutCancel(ctx))
	}()
}

// Wait blocks until every refresh started by RefreshAsync has finished.
func (s *Service) Wait() {
	s.pending.Wait()
}

func (s *Service) Loading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loading > 0
}

func (s *Service) Products() []Product {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Product, len(s.products))
	for i, p := range s.products {
		p.Warehouses = slices.Clone(p.Warehouses)
		out[i] = p
	}
	return out
}

func (s *Service) Product(productID int64) (Product, bool) {
	for _, p := range s.Products() {
		if p.ProductID == productID {
			return p, true
		}
	}
	return Product{}, false
}
