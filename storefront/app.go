// Package storefront wires the session store, order cache and sync protocol,
// catalogue and placement workflow into one application.
package storefront

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/jrsteele09/go-storefront/catalog"
	"github.com/jrsteele09/go-storefront/internal/config"
	storeerrors "github.com/jrsteele09/go-storefront/internal/errors"
	"github.com/jrsteele09/go-storefront/orders"
	"github.com/jrsteele09/go-storefront/placement"
	"github.com/jrsteele09/go-storefront/sessions"
	"github.com/jrsteele09/go-storefront/storage"
	"github.com/jrsteele09/go-storefront/transport"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

type App struct {
	log       zerolog.Logger
	sessions  *sessions.Store
	cache     *orders.Cache
	orders    *orders.Service
	catalog   *catalog.Service
	placement *placement.Workflow

	unsubscribe func()

	mu         sync.Mutex
	owner      string
	processing map[int64]bool
}

type appOptions struct {
	log        zerolog.Logger
	httpClient *http.Client
	scheduler  placement.Scheduler
	listener   func(placement.Snapshot)
}

type Option func(*appOptions)

func WithLogger(log zerolog.Logger) Option {
	return func(o *appOptions) {
		o.log = log
	}
}

func WithHTTPClient(hc *http.Client) Option {
	return func(o *appOptions) {
		o.httpClient = hc
	}
}

// WithScheduler replaces the countdown scheduler (primarily for testing).
func WithScheduler(s placement.Scheduler) Option {
	return func(o *appOptions) {
		o.scheduler = s
	}
}

func WithPlacementListener(fn func(placement.Snapshot)) Option {
	return func(o *appOptions) {
		o.listener = fn
	}
}

// New builds the application over repo, restoring any persisted session and
// that user's cached orders.
func New(ctx context.Context, cfg config.Config, repo storage.Repo, options ...Option) (*App, error) {
	opts := appOptions{
		log:       zerolog.Nop(),
		scheduler: placement.TickerScheduler{},
	}
	for _, opt := range options {
		opt(&opts)
	}

	clientOptions := []transport.Option{transport.WithLogger(opts.log)}
	if opts.httpClient != nil {
		clientOptions = append(clientOptions, transport.WithHTTPClient(opts.httpClient))
	}
	clientOptions = append(clientOptions, transport.WithTimeout(cfg.GetRequestTimeout()))
	client := transport.New(cfg.GetAPIBaseURL(), clientOptions...)

	store, err := sessions.NewStore(ctx, repo, client,
		sessions.WithLogger(opts.log),
		sessions.WithStorageKey(cfg.GetAuthStateKey()),
	)
	if err != nil {
		return nil, errors.Wrap(err, "[storefront.New]")
	}

	cache := orders.NewCache(repo,
		orders.WithCacheLogger(opts.log),
		orders.WithKeyPrefix(cfg.GetOrdersKeyPrefix()),
	)
	orderService := orders.NewService(client, cache, orders.WithLogger(opts.log))
	catalogService := catalog.NewService(client, catalog.WithLogger(opts.log))

	placementOptions := []placement.Option{
		placement.WithScheduler(opts.scheduler),
		placement.WithCancelWindow(cfg.GetCancelWindow()),
		placement.WithTickInterval(cfg.GetTickInterval()),
		placement.WithLogger(opts.log),
	}
	if opts.listener != nil {
		placementOptions = append(placementOptions, placement.WithListener(opts.listener))
	}

	a := &App{
		log:        opts.log,
		sessions:   store,
		cache:      cache,
		orders:     orderService,
		catalog:    catalogService,
		placement:  placement.New(store, orderService, catalogService, placementOptions...),
		processing: make(map[int64]bool),
	}
	a.onSessionChange(ctx, store.Current())
	a.unsubscribe = store.Subscribe(func(s sessions.State) {
		a.onSessionChange(context.Background(), s)
	})
	return a, nil
}

// onSessionChange rescopes the cache to the new identity. Signing out, or
// switching to a different user, stops the placement countdown.
func (a *App) onSessionChange(ctx context.Context, s sessions.State) {
	a.mu.Lock()
	previous := a.owner
	a.owner = strings.ToLower(s.Username())
	a.mu.Unlock()

	if s.User == nil {
		a.cache.Clear()
		a.placement.Stop()
		a.log.Debug().Msg("session cleared, order cache emptied")
		return
	}
	if previous != "" && previous != a.owner {
		a.placement.Stop()
	}
	loaded := a.cache.Load(ctx, s.User)
	a.log.Debug().Str("username", s.User.Username).Int("orders", len(loaded)).Msg("order cache loaded")
}

func (a *App) Sessions() *sessions.Store {
	return a.sessions
}

func (a *App) Cache() *orders.Cache {
	return a.cache
}

func (a *App) Orders() *orders.Service {
	return a.orders
}

func (a *App) Catalog() *catalog.Service {
	return a.catalog
}

func (a *App) Placement() *placement.Workflow {
	return a.placement
}

// LookupOrder fetches an order by the id as typed by the user.
func (a *App) LookupOrder(ctx context.Context, raw string) (orders.Order, error) {
	orderID, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || orderID < 1 {
		return orders.Order{}, storeerrors.Display(storeerrors.ErrValidation, "Enter a valid order ID.")
	}
	found := a.orders.FetchOne(ctx, a.sessions.Current(), orderID)
	if found == nil {
		return orders.Order{}, storeerrors.Display(storeerrors.ErrNotFound, "Could not find that order for your account.")
	}
	return *found, nil
}

// RefreshOrders reloads every order of the signed-in user.
func (a *App) RefreshOrders(ctx context.Context) ([]orders.Order, error) {
	current := a.sessions.Current()
	if !current.Authenticated() {
		return nil, storeerrors.Display(storeerrors.ErrAuthentication, "Log in to view your orders.")
	}
	return a.orders.FetchAllForUser(ctx, current, current.User.UserID)
}

// RequestRefund refunds orderID. Only one refund per order runs at a time.
func (a *App) RequestRefund(ctx context.Context, orderID int64) (orders.Order, error) {
	a.mu.Lock()
	if a.processing[orderID] {
		a.mu.Unlock()
		return orders.Order{}, storeerrors.Display(storeerrors.ErrInFlight, "A refund for this order is already being processed.")
	}
	a.processing[orderID] = true
	a.mu.Unlock()

	defer func() {
		a.mu.Lock()
		delete(a.processing, orderID)
		a.mu.Unlock()
	}()
	return a.orders.Refund(ctx, a.sessions.Current(), orderID)
}

// Processing reports whether a refund for orderID is in flight.
func (a *App) Processing(orderID int64) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.processing[orderID]
}

// Close stops the countdown, detaches from the session store and waits for
// background catalogue refreshes.
func (a *App) Close() {
	a.placement.Stop()
	if a.unsubscribe != nil {
		a.unsubscribe()
	}
	a.catalog.Wait()
}
