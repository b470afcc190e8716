package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/storefront/api/internal/platform/httpx"
)

const (
	apiPrefix      = "/api/v1"
	requestTimeout = 30 * time.Second
)

// RouteRegistrar registers a set of routes against the provided router.
type RouteRegistrar func(r chi.Router)

// routeGroup is a mounted section of the API. Groups without a registrar answer 501.
type routeGroup struct {
	path        string
	registrar   RouteRegistrar
	middlewares []func(http.Handler) http.Handler
}

type routerConfig struct {
	middlewares []func(http.Handler) http.Handler
	health      *HealthHandlers

	checkout routeGroup
	orders   routeGroup
	admin    routeGroup
}

// Option customises the router configuration before construction.
type Option func(*routerConfig)

// NewRouter builds the API router. Health probes live at the root, everything else under /api/v1.
// Quotes and orders are per-user, so every API response is marked non-cacheable.
func NewRouter(opts ...Option) chi.Router {
	cfg := routerConfig{
		middlewares: []func(http.Handler) http.Handler{
			middleware.RequestID,
			middleware.RealIP,
			middleware.Timeout(requestTimeout),
		},
		checkout: routeGroup{path: "/checkout"},
		orders:   routeGroup{path: "/orders"},
		admin:    routeGroup{path: "/admin"},
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.health == nil {
		cfg.health = NewHealthHandlers()
	}

	r := chi.NewRouter()
	for _, mw := range cfg.middlewares {
		if mw != nil {
			r.Use(mw)
		}
	}

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError("route_not_found", fmt.Sprintf("no route for %s", req.URL.Path), http.StatusNotFound))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError("method_not_allowed", fmt.Sprintf("method %s not allowed on %s", req.Method, req.URL.Path), http.StatusMethodNotAllowed))
	})

	r.Get("/healthz", cfg.health.Healthz)
	r.Get("/readyz", cfg.health.Readyz)

	r.Route(apiPrefix, func(api chi.Router) {
		api.Use(noStore)
		for _, group := range []routeGroup{cfg.checkout, cfg.orders, cfg.admin} {
			mountGroup(api, group)
		}
	})
	return r
}

func mountGroup(api chi.Router, group routeGroup) {
	api.Route(group.path, func(sub chi.Router) {
		for _, mw := range group.middlewares {
			if mw != nil {
				sub.Use(mw)
			}
		}
		if group.registrar == nil {
			registerNotImplemented(sub, group.path)
			return
		}
		group.registrar(sub)
	})
}

func noStore(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}

// WithMiddlewares appends global middleware after the request ID, real IP and timeout defaults.
func WithMiddlewares(mw ...func(http.Handler) http.Handler) Option {
	return func(cfg *routerConfig) {
		cfg.middlewares = append(cfg.middlewares, mw...)
	}
}

// WithHealthHandlers overrides the handlers used for /healthz and /readyz.
func WithHealthHandlers(h *HealthHandlers) Option {
	return func(cfg *routerConfig) {
		cfg.health = h
	}
}

// WithCheckoutRoutes mounts the shipping quote endpoints under /checkout.
func WithCheckoutRoutes(reg RouteRegistrar) Option {
	return func(cfg *routerConfig) {
		cfg.checkout.registrar = reg
	}
}

// WithOrderRoutes mounts order placement and lookup under /orders.
func WithOrderRoutes(reg RouteRegistrar) Option {
	return func(cfg *routerConfig) {
		cfg.orders.registrar = reg
	}
}

// WithAdminRoutes mounts the staff endpoints under /admin.
func WithAdminRoutes(reg RouteRegistrar) Option {
	return func(cfg *routerConfig) {
		cfg.admin.registrar = reg
	}
}

// WithAdminMiddlewares adds middleware that runs only for /admin.
func WithAdminMiddlewares(mw ...func(http.Handler) http.Handler) Option {
	return func(cfg *routerConfig) {
		cfg.admin.middlewares = append(cfg.admin.middlewares, mw...)
	}
}

func registerNotImplemented(r chi.Router, path string) {
	handler := func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError("not_implemented", fmt.Sprintf("%s routes not implemented", path), http.StatusNotImplemented))
	}
	r.HandleFunc("/*", handler)
	r.HandleFunc("/", handler)
}
