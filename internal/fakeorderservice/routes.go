package fakeorderservice

import "net/http"

// ContextKey is a custom type for context keys to avoid collisions
type ContextKey string

// ContextKeyUsername stores the subject of the bearer credential
const ContextKeyUsername ContextKey = "username"

func ChainMiddleware(routeFunction http.HandlerFunc, mw ...func(http.HandlerFunc) http.HandlerFunc) http.HandlerFunc {
	chainedHandler := routeFunction
	for i := len(mw) - 1; i >= 0; i-- {
		chainedHandler = mw[i](chainedHandler)
	}
	return chainedHandler
}

func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/auth/login", ChainMiddleware(s.LoginHandler(), s.TrackRoute(RouteLogin)))
	mux.HandleFunc("POST /api/auth/register", ChainMiddleware(s.RegisterHandler(), s.TrackRoute(RouteRegister)))
	mux.HandleFunc("GET /api/products/stock", ChainMiddleware(s.StockHandler(), s.TrackRoute(RouteStock)))
	mux.HandleFunc("POST /api/orders", ChainMiddleware(s.CreateOrderHandler(), s.TrackRoute(RouteCreateOrder), s.RequireAuth()))
	mux.HandleFunc("GET /api/orders/{orderId}", ChainMiddleware(s.GetOrderHandler(), s.TrackRoute(RouteGetOrder), s.RequireAuth()))
	mux.HandleFunc("GET /api/orders/users/{userId}", ChainMiddleware(s.UserOrdersHandler(), s.TrackRoute(RouteUserOrders), s.RequireAuth()))
	mux.HandleFunc("POST /api/orders/{orderId}/refund", ChainMiddleware(s.RefundHandler(), s.TrackRoute(RouteRefund), s.RequireAuth()))
	return mux
}
