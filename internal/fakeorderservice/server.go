// Package fakeorderservice is an in-memory stand-in for the order service REST
// surface, served over httptest for client tests.
package fakeorderservice

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/jrsteele09/go-storefront/internal/utils"
)

// Route names accepted by Fail, Hook and Calls.
const (
	RouteLogin       = "login"
	RouteRegister    = "register"
	RouteStock       = "stock"
	RouteCreateOrder = "createOrder"
	RouteGetOrder    = "getOrder"
	RouteUserOrders  = "userOrders"
	RouteRefund      = "refund"
)

const signingSecret = "fake-order-service-signing-secret"

type User struct {
	ID            int64
	Username      string
	Password      string
	Email         string
	FirstName     string
	LastName      string
	BankAccountID string
}

type Warehouse struct {
	WarehouseID   int64  `json:"warehouseId"`
	WarehouseName string `json:"warehouseName"`
	Quantity      int    `json:"quantity"`
}

type Product struct {
	ProductID   int64       `json:"productId"`
	ProductName string      `json:"productName"`
	Price       float64     `json:"price"`
	Warehouses  []Warehouse `json:"warehouses"`
}

type Order struct {
	OrderID           int64   `json:"orderId"`
	Username          string  `json:"username"`
	ProductID         int64   `json:"productId"`
	Quantity          int     `json:"quantity"`
	TotalAmount       float64 `json:"totalAmount"`
	Status            string  `json:"status"`
	BankTransactionID *string `json:"bankTransactionId"`
	WarehouseIDs      []int64 `json:"warehouseIds"`
	CreatedAt         *string `json:"createdAt"`
	UpdatedAt         *string `json:"updatedAt"`
}

type failure struct {
	status int
	body   string
	sticky bool
}

// Server is a running fake. All exported methods are safe for concurrent use.
type Server struct {
	*httptest.Server

	mu          sync.Mutex
	users       map[string]*User
	products    map[int64]*Product
	productIDs  []int64
	orders      map[int64]*Order
	nextUserID  int64
	nextOrderID int64
	clock       time.Time
	tokenTTL    time.Duration
	failures    map[string]failure
	hooks       map[string]func()
	calls       map[string]int
	lastAuth    map[string]string
}

// New starts a fake seeded with the customer/COMP5348 account and two products.
func New() *Server {
	s := &Server{
		users:       make(map[string]*User),
		products:    make(map[int64]*Product),
		orders:      make(map[int64]*Order),
		nextUserID:  1,
		nextOrderID: 1,
		clock:       time.Date(2025, 10, 1, 9, 0, 0, 0, time.UTC),
		tokenTTL:    time.Hour,
		failures:    make(map[string]failure),
		hooks:       make(map[string]func()),
		calls:       make(map[string]int),
		lastAuth:    make(map[string]string),
	}
	s.AddUser(User{Username: "customer", Password: "COMP5348", Email: "customer@example.com", FirstName: "Sample", LastName: "Customer", BankAccountID: "ACC-1"})
	s.AddProduct(Product{ProductID: 1, ProductName: "Widget", Price: 9.99, Warehouses: []Warehouse{
		{WarehouseID: 1, WarehouseName: "Sydney", Quantity: 10},
		{WarehouseID: 2, WarehouseName: "Melbourne", Quantity: 5},
	}})
	s.AddProduct(Product{ProductID: 2, ProductName: "Gadget", Price: 24.5, Warehouses: []Warehouse{
		{WarehouseID: 1, WarehouseName: "Sydney", Quantity: 0},
	}})

	s.Server = httptest.NewServer(s.routes())
	return s
}

func (s *Server) AddUser(u User) *User {
	s.mu.Lock()
	defer s.mu.Unlock()
	u.ID = s.nextUserID
	s.nextUserID++
	s.users[u.Username] = &u
	return &u
}

func (s *Server) AddProduct(p Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.products[p.ProductID]; !ok {
		s.productIDs = append(s.productIDs, p.ProductID)
	}
	s.products[p.ProductID] = &p
}

// AddOrder seeds an order as if it had been placed earlier.
func (s *Server) AddOrder(o Order) Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	if o.OrderID == 0 {
		o.OrderID = s.nextOrderID
	}
	if o.OrderID >= s.nextOrderID {
		s.nextOrderID = o.OrderID + 1
	}
	s.orders[o.OrderID] = &o
	return o
}

// Fail makes the next request to route respond with status/body. Sticky
// failures persist until ClearFailures.
func (s *Server) Fail(route string, status int, body string, sticky bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[route] = failure{status: status, body: body, sticky: sticky}
}

func (s *Server) ClearFailures() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = make(map[string]failure)
}

// Hook runs fn at the start of every request to route, before any state is
// read. Tests use it to hold a request in flight.
func (s *Server) Hook(route string, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if fn == nil {
		delete(s.hooks, route)
		return
	}
	s.hooks[route] = fn
}

func (s *Server) Calls(route string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[route]
}

// LastAuthorization is the Authorization header of the latest request to route.
func (s *Server) LastAuthorization(route string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastAuth[route]
}

// SetTokenTTL changes the lifetime of credentials issued by login.
func (s *Server) SetTokenTTL(ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokenTTL = ttl
}

func (s *Server) Order(id int64) (Order, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return Order{}, false
	}
	return *o, true
}

func (s *Server) Stock(productID int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[productID]
	if !ok {
		return 0
	}
	return totalQuantity(p)
}

// IssueToken returns a credential for username without going through login.
func (s *Server) IssueToken(username string, ttl time.Duration) string {
	claims := jwtlib.RegisteredClaims{
		Subject:   username,
		IssuedAt:  jwtlib.NewNumericDate(time.Now()),
		ExpiresAt: jwtlib.NewNumericDate(time.Now().Add(ttl)),
	}
	raw, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString([]byte(signingSecret))
	if err != nil {
		panic(err)
	}
	return raw
}

// TrackRoute counts calls to route, runs its hook and serves any injected failure.
func (s *Server) TrackRoute(name string) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			s.mu.Lock()
			s.calls[name]++
			s.lastAuth[name] = r.Header.Get("Authorization")
			hook := s.hooks[name]
			s.mu.Unlock()

			if hook != nil {
				hook()
			}

			s.mu.Lock()
			f, failing := s.failures[name]
			if failing && !f.sticky {
				delete(s.failures, name)
			}
			s.mu.Unlock()
			if failing {
				w.WriteHeader(f.status)
				_, _ = io.WriteString(w, f.body)
				return
			}
			next(w, r)
		}
	}
}

// RequireAuth validates the bearer credential and puts its subject in the
// request context. Missing or invalid credentials get 403, as the order
// service does.
func (s *Server) RequireAuth() func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok {
				w.WriteHeader(http.StatusForbidden)
				return
			}
			claims := &jwtlib.RegisteredClaims{}
			if _, err := jwtlib.ParseWithClaims(raw, claims, func(*jwtlib.Token) (any, error) {
				return []byte(signingSecret), nil
			}); err != nil {
				w.WriteHeader(http.StatusForbidden)
				return
			}
			ctx := context.WithValue(r.Context(), ContextKeyUsername, claims.Subject)
			next(w, r.WithContext(ctx))
		}
	}
}

func usernameFrom(r *http.Request) string {
	username, _ := r.Context().Value(ContextKeyUsername).(string)
	return username
}

func (s *Server) LoginHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Username string `json:"username"`
			Password string `json:"password"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"message": "malformed request"})
			return
		}

		s.mu.Lock()
		u, ok := s.users[req.Username]
		ttl := s.tokenTTL
		s.mu.Unlock()
		if !ok || u.Password != req.Password {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = io.WriteString(w, "Invalid username or password")
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"userId":      u.ID,
			"username":    u.Username,
			"email":       u.Email,
			"accessToken": s.IssueToken(u.Username, ttl),
			"message":     "Login successful",
		})
	}
}

func (s *Server) RegisterHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Username      string `json:"username"`
			Password      string `json:"password"`
			Email         string `json:"email"`
			FirstName     string `json:"firstName"`
			LastName      string `json:"lastName"`
			BankAccountID string `json:"bankAccountId"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Username == "" || req.Password == "" || req.Email == "" {
			writeJSON(w, http.StatusBadRequest, map[string]any{"message": "username, password and email are required"})
			return
		}

		s.mu.Lock()
		_, exists := s.users[req.Username]
		s.mu.Unlock()
		if exists {
			w.WriteHeader(http.StatusConflict)
			_, _ = io.WriteString(w, "Username already exists")
			return
		}

		u := s.AddUser(User{
			Username:      req.Username,
			Password:      req.Password,
			Email:         req.Email,
			FirstName:     req.FirstName,
			LastName:      req.LastName,
			BankAccountID: req.BankAccountID,
		})
		writeJSON(w, http.StatusCreated, map[string]any{
			"userId":   u.ID,
			"username": u.Username,
			"message":  "Registration successful",
		})
	}
}

func (s *Server) StockHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		s.mu.Lock()
		out := make([]map[string]any, 0, len(s.productIDs))
		for _, id := range s.productIDs {
			p := s.products[id]
			out = append(out, map[string]any{
				"productId":     p.ProductID,
				"productName":   p.ProductName,
				"price":         p.Price,
				"totalQuantity": totalQuantity(p),
				"warehouses":    append([]Warehouse(nil), p.Warehouses...),
			})
		}
		s.mu.Unlock()
		writeJSON(w, http.StatusOK, out)
	}
}

func (s *Server) CreateOrderHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		subject := usernameFrom(r)
		var req struct {
			Username    string  `json:"username"`
			ProductID   int64   `json:"productId"`
			Quantity    int     `json:"quantity"`
			TotalAmount float64 `json:"totalAmount"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"message": "malformed request"})
			return
		}
		if req.Username != subject {
			w.WriteHeader(http.StatusForbidden)
			return
		}

		s.mu.Lock()
		defer s.mu.Unlock()

		p, ok := s.products[req.ProductID]
		if !ok {
			writeJSON(w, http.StatusBadRequest, map[string]any{"message": "Unknown product"})
			return
		}
		if req.Quantity < 1 || totalQuantity(p) < req.Quantity {
			writeJSON(w, http.StatusBadRequest, map[string]any{"message": "Insufficient stock"})
			return
		}
		if math.Abs(p.Price*float64(req.Quantity)-req.TotalAmount) > 0.005 {
			writeJSON(w, http.StatusBadRequest, map[string]any{"message": "Total amount mismatch"})
			return
		}

		warehouseIDs := reserve(p, req.Quantity)
		created := s.tick()
		o := &Order{
			OrderID:           s.nextOrderID,
			Username:          req.Username,
			ProductID:         req.ProductID,
			Quantity:          req.Quantity,
			TotalAmount:       req.TotalAmount,
			Status:            "RECEIVED",
			BankTransactionID: utils.PtrOrNil(fmt.Sprintf("TX-%06d", s.nextOrderID)),
			WarehouseIDs:      warehouseIDs,
			CreatedAt:         utils.Ptr(created),
			UpdatedAt:         utils.Ptr(created),
		}
		s.orders[o.OrderID] = o
		s.nextOrderID++
		writeJSON(w, http.StatusOK, o)
	}
}

func (s *Server) GetOrderHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		subject := usernameFrom(r)
		id, err := strconv.ParseInt(r.PathValue("orderId"), 10, 64)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		s.mu.Lock()
		defer s.mu.Unlock()
		o, ok := s.orders[id]
		if !ok || o.Username != subject {
			writeJSON(w, http.StatusNotFound, map[string]any{"message": "Order not found"})
			return
		}
		writeJSON(w, http.StatusOK, o)
	}
}

func (s *Server) UserOrdersHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		subject := usernameFrom(r)
		userID, err := strconv.ParseInt(r.PathValue("userId"), 10, 64)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		s.mu.Lock()
		defer s.mu.Unlock()
		var username string
		for _, u := range s.users {
			if u.ID == userID {
				username = u.Username
			}
		}
		if username != subject {
			w.WriteHeader(http.StatusForbidden)
			return
		}

		out := make([]*Order, 0)
		for id := int64(1); id < s.nextOrderID; id++ {
			if o, ok := s.orders[id]; ok && o.Username == username {
				out = append(out, o)
			}
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func (s *Server) RefundHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		subject := usernameFrom(r)
		id, err := strconv.ParseInt(r.PathValue("orderId"), 10, 64)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		s.mu.Lock()
		defer s.mu.Unlock()
		o, ok := s.orders[id]
		if !ok || o.Username != subject {
			writeJSON(w, http.StatusNotFound, map[string]any{"message": "Order not found"})
			return
		}
		if o.Status == "CANCELLED" {
			writeJSON(w, http.StatusBadRequest, map[string]any{"message": "Invalid current order status: CANCELLED"})
			return
		}
		if p, ok := s.products[o.ProductID]; ok && len(p.Warehouses) > 0 {
			p.Warehouses[0].Quantity += o.Quantity
		}
		updated := s.tick()
		o.Status = "CANCELLED"
		o.UpdatedAt = utils.Ptr(updated)
		writeJSON(w, http.StatusOK, o)
	}
}

// tick advances the fake clock one second and returns it as an ISO local date-time.
func (s *Server) tick() string {
	s.clock = s.clock.Add(time.Second)
	return s.clock.Format("2006-01-02T15:04:05")
}

func totalQuantity(p *Product) int {
	total := 0
	for _, w := range p.Warehouses {
		total += w.Quantity
	}
	return total
}

func reserve(p *Product, quantity int) []int64 {
	var ids []int64
	for i := range p.Warehouses {
		if quantity == 0 {
			break
		}
		take := min(quantity, p.Warehouses[i].Quantity)
		if take == 0 {
			continue
		}
		p.Warehouses[i].Quantity -= take
		quantity -= take
		ids = append(ids, p.Warehouses[i].WarehouseID)
	}
	return ids
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
