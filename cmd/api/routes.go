package main

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/joao-fontenele/monocart/internal/auth"
	"github.com/joao-fontenele/monocart/internal/cart"
	"github.com/joao-fontenele/monocart/internal/catalog"
	"github.com/joao-fontenele/monocart/internal/httpx"
	"github.com/joao-fontenele/monocart/internal/orders"
	"github.com/joao-fontenele/monocart/internal/realtime"
	"github.com/joao-fontenele/monocart/internal/telemetry"
	"github.com/joao-fontenele/monocart/internal/users"
)

type pinger interface {
	PingContext(ctx context.Context) error
}

type routes struct {
	auth     *auth.Middleware
	users    *users.Handler
	catalog  *catalog.Handler
	cart     *cart.Handler
	orders   *orders.Handler
	realtime *realtime.Handler
	metrics  http.Handler
	db       pinger
	logger   *slog.Logger

	// requireVerified gates checkout on a verified email or phone.
	requireVerified bool
}

func (rt *routes) handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(telemetry.RouteAttribute)

	r.Get("/health", rt.health)
	if rt.metrics != nil {
		r.Method(http.MethodGet, "/metrics", rt.metrics)
	}
	r.Get("/ws", rt.realtime.HandleConnect)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/users", func(r chi.Router) {
			r.Post("/register", rt.users.HandleRegister)
			r.Post("/login", rt.users.HandleLogin)
			r.Get("/verify-email/{token}", rt.users.HandleVerifyEmail)

			r.Group(func(r chi.Router) {
				r.Use(rt.auth.Authenticate)
				r.Get("/profile", rt.users.HandleProfile)
				r.Post("/send-phone-otp", rt.users.HandleSendPhoneOTP)
				r.Post("/verify-phone-otp", rt.users.HandleVerifyPhoneOTP)
			})
		})

		r.Route("/categories", func(r chi.Router) {
			r.Get("/", rt.catalog.HandleListCategories)
			r.With(rt.auth.Authenticate, rt.auth.RequireAdmin).Post("/", rt.catalog.HandleCreateCategory)
		})

		r.Route("/products", func(r chi.Router) {
			r.Get("/", rt.catalog.HandleListProducts)
			r.With(rt.auth.Authenticate, rt.auth.RequireAdmin).Post("/", rt.catalog.HandleCreateProduct)
		})

		r.Route("/cart", func(r chi.Router) {
			r.Use(rt.auth.Authenticate)
			r.Get("/", rt.cart.HandleGet)
			r.Post("/", rt.cart.HandleAdd)
			r.Put("/items/{itemId}", rt.cart.HandleUpdateItem)
			r.Delete("/items/{itemId}", rt.cart.HandleRemoveItem)
		})

		r.Route("/orders", func(r chi.Router) {
			r.Use(rt.auth.Authenticate)
			r.Get("/", rt.orders.HandleList)
			r.Get("/{id}", rt.orders.HandleGet)
			if rt.requireVerified {
				r.With(rt.auth.RequireVerified).Post("/", rt.orders.HandleCreate)
			} else {
				r.Post("/", rt.orders.HandleCreate)
			}
		})
	})

	return r
}

func (rt *routes) health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := rt.db.PingContext(ctx); err != nil {
		rt.logger.Warn("health check failed", "error", err)
		httpx.WriteJSON(rt.logger, w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	httpx.WriteJSON(rt.logger, w, http.StatusOK, map[string]string{"status": "ok"})
}
