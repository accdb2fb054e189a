package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/platinummonkey/bookrank/pkg/httputil"
	"github.com/platinummonkey/bookrank/pkg/observability"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/trace"
)

// Options wires the HTTP surface
type Options struct {
	Counters CounterService
	Rankings RankingService

	// IncrementLimiter caps counter increments per client when set
	IncrementLimiter *httputil.RateLimiter

	Health   *observability.HealthChecker
	Metrics  *observability.Metrics
	// Registry serves /metrics when set
	Registry *prometheus.Registry
	Logger   *observability.Logger

	// TracerProvider overrides the global provider for request spans
	TracerProvider trace.TracerProvider
}

// Server represents our API server
type Server struct {
	router  *mux.Router
	handler http.Handler
}

// NewServer creates a new API server with every route registered
func NewServer(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = observability.NewLogger(observability.InfoLevel, nil)
	}

	router := mux.NewRouter()
	router.Use(tracingMiddleware(opts.TracerProvider))
	if opts.Metrics != nil {
		router.Use(observability.HTTPMetricsMiddleware(opts.Metrics, routeTemplate))
	}

	if opts.Counters != nil {
		NewStatsHandlers(opts.Counters, opts.Logger).WithRateLimit(opts.IncrementLimiter).RegisterRoutes(router)
	}
	if opts.Rankings != nil {
		NewRankingHandlers(opts.Rankings, opts.Logger).RegisterRoutes(router)
	}
	if opts.Health != nil {
		router.HandleFunc("/health", opts.Health.Readiness).Methods("GET")
		router.HandleFunc("/health/live", opts.Health.Liveness).Methods("GET")
	}
	if opts.Registry != nil {
		router.Handle("/metrics", observability.MetricsHandler(opts.Registry)).Methods("GET")
	}

	return &Server{
		router: router,
		handler: httputil.Chain(
			httputil.RequestIDMiddleware,
			httputil.RecoveryMiddleware(opts.Logger),
			httputil.LoggingMiddleware(opts.Logger),
		)(router),
	}
}

// Router exposes the route table
func (s *Server) Router() *mux.Router {
	return s.router
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// tracingMiddleware opens a server span per matched route. Flush, ranking and
// storage spans started from the request context nest under it.
func tracingMiddleware(tp trace.TracerProvider) mux.MiddlewareFunc {
	opts := []otelhttp.Option{
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + routeTemplate(r)
		}),
	}
	if tp != nil {
		opts = append(opts, otelhttp.WithTracerProvider(tp))
	}
	return mux.MiddlewareFunc(otelhttp.NewMiddleware("bookrank-api", opts...))
}

// routeTemplate labels metrics by route template instead of raw path
func routeTemplate(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return "unmatched"
}
