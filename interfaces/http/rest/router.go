package rest

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/channl/dynamodb-relay-graph-sub000/interfaces/http/rest/handlers"
	"github.com/channl/dynamodb-relay-graph-sub000/interfaces/http/rest/middleware"
	"github.com/channl/dynamodb-relay-graph-sub000/pkg/auth"
	apperrors "github.com/channl/dynamodb-relay-graph-sub000/pkg/errors"
)

// Router creates and configures the HTTP router
type Router struct {
	graph     handlers.GraphService
	errs      *apperrors.ErrorHandler
	validator *auth.JWTValidator
	metrics   http.Handler
	cors      bool
	logger    *zap.Logger
}

// Option configures optional parts of the router
type Option func(*Router)

// WithAuth protects the API routes with bearer token authentication.
func WithAuth(validator *auth.JWTValidator) Option {
	return func(rt *Router) { rt.validator = validator }
}

// WithMetrics serves h at /metrics.
func WithMetrics(h http.Handler) Option {
	return func(rt *Router) { rt.metrics = h }
}

// WithCORS enables the CORS middleware.
func WithCORS() Option {
	return func(rt *Router) { rt.cors = true }
}

// NewRouter creates a new router instance
func NewRouter(graph handlers.GraphService, errs *apperrors.ErrorHandler, logger *zap.Logger, opts ...Option) *Router {
	rt := &Router{
		graph:  graph,
		errs:   errs,
		logger: logger,
	}
	for _, opt := range opts {
		opt(rt)
	}
	return rt
}

// Setup configures all routes and middleware
func (rt *Router) Setup() http.Handler {
	router := chi.NewRouter()

	// Global middleware
	router.Use(middleware.RequestID)
	router.Use(chimiddleware.RealIP)
	router.Use(rt.errs.Middleware)
	router.Use(middleware.Logger(rt.logger))

	if rt.cors {
		router.Use(cors.Handler(cors.Options{
			AllowedOrigins:   []string{"*"},
			AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", middleware.RequestIDHeader},
			ExposedHeaders:   []string{middleware.RequestIDHeader},
			AllowCredentials: false,
			MaxAge:           300,
		}))
	}

	router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		rt.errs.HandleStatus(w, r, http.StatusNotFound, "Route not found")
	})
	router.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		rt.errs.HandleStatus(w, r, http.StatusMethodNotAllowed, "Method not allowed")
	})

	router.Get("/health", rt.healthCheck)
	if rt.metrics != nil {
		router.Handle("/metrics", rt.metrics)
	}

	router.Route("/api/v1", func(r chi.Router) {
		if rt.validator != nil {
			r.Use(middleware.Authenticate(rt.validator, rt.errs, rt.logger))
		}

		queryHandler := handlers.NewQueryHandler(rt.graph, rt.errs, rt.logger)
		itemHandler := handlers.NewItemHandler(rt.graph, rt.errs, rt.logger)

		r.Post("/query", queryHandler.Query)
		r.Get("/nodes/{id}", itemHandler.GetNode)
		r.Post("/items", itemHandler.PutItems)
		r.Delete("/items/{id}", itemHandler.DeleteItem)
	})

	return router
}

// healthCheck handles health check requests
func (rt *Router) healthCheck(w http.ResponseWriter, req *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"healthy"}`))
}
