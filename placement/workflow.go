package placement

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jrsteele09/go-storefront/catalog"
	storeerrors "github.com/jrsteele09/go-storefront/internal/errors"
	"github.com/jrsteele09/go-storefront/orders"
	"github.com/jrsteele09/go-storefront/sessions"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const (
	DefaultCancelWindow = 5
	DefaultTickInterval = time.Second
)

type State int

const (
	Idle State = iota
	Submitting
	PlacedCancelable
	Refunding
	Refunded
	Expired
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Submitting:
		return "submitting"
	case PlacedCancelable:
		return "placed-cancelable"
	case Refunding:
		return "refunding"
	case Refunded:
		return "refunded"
	case Expired:
		return "expired"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Session is the cancellation window of the most recently placed order.
type Session struct {
	OrderID   int64
	Remaining int
	Active    bool
}

// Snapshot is the workflow as a caller would render it.
type Snapshot struct {
	State   State
	Session Session
	Message string
	Err     error
}

// SessionSource yields the session each call is made under.
type SessionSource interface {
	Current() sessions.State
}

type OrderPlacer interface {
	Create(ctx context.Context, session sessions.State, req orders.Request) (orders.Order, error)
	Refund(ctx context.Context, session sessions.State, orderID int64) (orders.Order, error)
}

type Catalog interface {
	Product(productID int64) (catalog.Product, bool)
	RefreshAsync(ctx context.Context)
}

var (
	_ SessionSource = (*sessions.Store)(nil)
	_ OrderPlacer   = (*orders.Service)(nil)
	_ Catalog       = (*catalog.Service)(nil)
)

// Workflow drives place order -> cancellable countdown -> refund or expiry.
// One countdown is tracked at a time; placing another order replaces it.
type Workflow struct {
	mu        sync.Mutex
	sessions  SessionSource
	orders    OrderPlacer
	catalog   Catalog
	scheduler Scheduler
	window    int
	interval  time.Duration
	listener  func(Snapshot)
	log       zerolog.Logger

	state      State
	session    Session
	message    string
	err        error
	timer      Timer
	generation uint64 // bumped whenever the timer is released
	epoch      uint64 // bumped by Stop
	submitting map[int64]bool
	refunding  int64
	quantities map[int64]int
}

type Option func(*Workflow)

func WithScheduler(s Scheduler) Option {
	return func(w *Workflow) {
		w.scheduler = s
	}
}

func WithCancelWindow(ticks int) Option {
	return func(w *Workflow) {
		w.window = ticks
	}
}

func WithTickInterval(d time.Duration) Option {
	return func(w *Workflow) {
		w.interval = d
	}
}

// WithListener registers fn to receive a Snapshot after every change.
// It is called without the workflow lock held.
func WithListener(fn func(Snapshot)) Option {
	return func(w *Workflow) {
		w.listener = fn
	}
}

func WithLogger(log zerolog.Logger) Option {
	return func(w *Workflow) {
		w.log = log
	}
}

func New(source SessionSource, placer OrderPlacer, products Catalog, options ...Option) *Workflow {
	w := &Workflow{
		sessions:   source,
		orders:     placer,
		catalog:    products,
		scheduler:  TickerScheduler{},
		window:     DefaultCancelWindow,
		interval:   DefaultTickInterval,
		log:        zerolog.Nop(),
		submitting: make(map[int64]bool),
		quantities: make(map[int64]int),
	}
	for _, opt := range options {
		opt(w)
	}
	if w.window < 1 {
		w.window = DefaultCancelWindow
	}
	return w
}

// Total is price x quantity rounded to cents.
func Total(price float64, quantity int) float64 {
	return decimal.NewFromFloat(price).Mul(decimal.NewFromInt(int64(quantity))).Round(2).InexactFloat64()
}

// Submit places an order for quantity units of productID and, on success,
// opens a cancellation window for it.
func (w *Workflow) Submit(ctx context.Context, productID int64, quantity int) (orders.Order, error) {
	w.mu.Lock()
	current := w.sessions.Current()
	if err := w.checkSubmit(current, productID, quantity); err != nil {
		w.err = err
		snap := w.snapshotLocked()
		w.mu.Unlock()
		w.notify(snap)
		return orders.Order{}, err
	}
	product, _ := w.catalog.Product(productID)

	epoch := w.epoch
	w.submitting[productID] = true
	w.state = Submitting
	w.message = ""
	w.err = nil
	snap := w.snapshotLocked()
	w.mu.Unlock()
	w.notify(snap)

	req := orders.Request{
		Username:    current.Username(),
		ProductID:   productID,
		Quantity:    quantity,
		TotalAmount: Total(product.Price, quantity),
	}
	created, err := w.orders.Create(ctx, current, req)

	w.mu.Lock()
	delete(w.submitting, productID)
	if epoch != w.epoch {
		w.mu.Unlock()
		w.log.Info().Int64("productId", productID).Msg("discarding placement result after stop")
		return created, err
	}
	if err != nil {
		w.state = w.restingState()
		w.err = err
		snap = w.snapshotLocked()
		w.mu.Unlock()
		w.notify(snap)
		return orders.Order{}, err
	}

	w.releaseTimerLocked()
	gen := w.generation
	w.session = Session{OrderID: created.OrderID, Remaining: w.window, Active: true}
	w.state = PlacedCancelable
	w.quantities[productID] = 1
	w.message = fmt.Sprintf("Order %d created successfully for %d x %s.", created.OrderID, quantity, product.ProductName)
	w.timer = w.scheduler.Every(w.interval, func() { w.tick(gen) })
	snap = w.snapshotLocked()
	w.mu.Unlock()

	w.log.Info().Int64("orderId", created.OrderID).Int("window", w.window).Msg("order placed, cancellation window open")
	w.notify(snap)
	w.catalog.RefreshAsync(ctx)
	return created, nil
}

func (w *Workflow) checkSubmit(current sessions.State, productID int64, quantity int) error {
	if !current.Authenticated() {
		return storeerrors.Display(storeerrors.ErrAuthentication, "Log in to place an order with the store service.")
	}
	if w.submitting[productID] {
		return storeerrors.Display(storeerrors.ErrInFlight, "An order for this product is already being submitted.")
	}
	if _, ok := w.catalog.Product(productID); !ok {
		return storeerrors.Display(storeerrors.ErrValidation, "Unknown product selected")
	}
	if quantity < 1 {
		return storeerrors.Display(storeerrors.ErrValidation, "Quantity must be at least 1")
	}
	return nil
}

// restingState is where a failed submission lands: an earlier window that is
// still open keeps its state.
func (w *Workflow) restingState() State {
	switch {
	case w.refunding != 0:
		return Refunding
	case w.session.Active:
		return PlacedCancelable
	}
	return Idle
}

func (w *Workflow) tick(gen uint64) {
	w.mu.Lock()
	if gen != w.generation || !w.session.Active {
		w.mu.Unlock()
		return
	}

	if w.session.Remaining > 1 {
		w.session.Remaining--
	} else {
		w.session.Remaining = 0
		w.session.Active = false
		w.releaseTimerLocked()
		if w.state == PlacedCancelable {
			w.state = Expired
		}
		w.log.Info().Int64("orderId", w.session.OrderID).Msg("cancellation window closed")
	}
	snap := w.snapshotLocked()
	w.mu.Unlock()
	w.notify(snap)
}

// Cancel refunds the order whose window is open.
func (w *Workflow) Cancel(ctx context.Context) (orders.Order, error) {
	w.mu.Lock()
	if w.refunding != 0 {
		w.mu.Unlock()
		return orders.Order{}, storeerrors.Display(storeerrors.ErrInFlight, "A cancellation is already in progress.")
	}
	if !w.session.Active || w.session.Remaining <= 0 {
		w.mu.Unlock()
		return orders.Order{}, storeerrors.Display(storeerrors.ErrNotCancelable, "There is no order to cancel.")
	}

	epoch := w.epoch
	orderID := w.session.OrderID
	w.refunding = orderID
	w.state = Refunding
	w.err = nil
	current := w.sessions.Current()
	snap := w.snapshotLocked()
	w.mu.Unlock()
	w.notify(snap)

	refunded, err := w.orders.Refund(ctx, current, orderID)

	w.mu.Lock()
	w.refunding = 0
	if epoch != w.epoch {
		w.mu.Unlock()
		return refunded, err
	}
	sameSession := w.session.OrderID == orderID

	if err != nil {
		w.log.Error().Err(err).Int64("orderId", orderID).Msg("cancel failed")
		err = storeerrors.Display(err, "Unable to cancel order")
		w.err = err
		if sameSession {
			if w.session.Active {
				w.state = PlacedCancelable
			} else {
				w.state = Expired
			}
		}
		snap = w.snapshotLocked()
		w.mu.Unlock()
		w.notify(snap)
		return orders.Order{}, err
	}

	if sameSession {
		w.releaseTimerLocked()
		w.session = Session{OrderID: orderID}
		w.state = Refunded
	}
	w.message = fmt.Sprintf("Order %d refunded.", orderID)
	w.err = nil
	snap = w.snapshotLocked()
	w.mu.Unlock()

	w.log.Info().Int64("orderId", orderID).Msg("order refunded")
	w.notify(snap)
	w.catalog.RefreshAsync(ctx)
	return refunded, nil
}

// Stop releases the countdown and resets the workflow. Calls in flight finish
// but their results no longer change the workflow. Safe to call repeatedly.
func (w *Workflow) Stop() {
	w.mu.Lock()
	w.releaseTimerLocked()
	w.epoch++
	w.session = Session{}
	w.state = Idle
	w.message = ""
	w.err = nil
	w.refunding = 0
	clear(w.submitting)
	snap := w.snapshotLocked()
	w.mu.Unlock()
	w.notify(snap)
}

func (w *Workflow) releaseTimerLocked() {
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
	w.generation++
}

// SetQuantity records the quantity chosen for productID; values below 1 become 1.
func (w *Workflow) SetQuantity(productID int64, quantity int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.quantities[productID] = max(quantity, 1)
}

func (w *Workflow) Quantity(productID int64) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	if q, ok := w.quantities[productID]; ok {
		return q
	}
	return 1
}

// Submitting reports whether an order for productID is in flight.
func (w *Workflow) Submitting(productID int64) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.submitting[productID]
}

func (w *Workflow) Snapshot() Snapshot {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.snapshotLocked()
}

func (w *Workflow) snapshotLocked() Snapshot {
	return Snapshot{
		State:   w.state,
		Session: w.session,
		Message: w.message,
		Err:     w.err,
	}
}

func (w *Workflow) notify(snap Snapshot) {
	if w.listener != nil {
		w.listener(snap)
	}
}
