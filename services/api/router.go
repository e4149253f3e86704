package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	requestTimeout      = 60 * time.Second
	readinessTimeout    = 2 * time.Second
	defaultLogsInterval = 10
)

// Config controls runtime behaviour for the API handlers.
type Config struct {
	AllowedOrigins []string
	// IngestRateLimit caps snapshot posts per client IP per minute; 0 disables it.
	IngestRateLimit int
}

// API wires services, template renderer, and configuration for HTTP handlers.
type API struct {
	store  *Store
	deps   Deps
	config Config
}

// New validates the dependencies and builds an API.
func New(store *Store, deps Deps, cfg Config) (*API, error) {
	if store == nil {
		return nil, errors.New("store is required")
	}
	if store.Catalog == nil || store.Reconciler == nil || store.Query == nil || store.Correlator == nil {
		return nil, errors.New("store is missing an inventory service")
	}
	if deps.Renderer == nil {
		return nil, errors.New("renderer is required")
	}
	if deps.Gatherer == nil {
		deps.Gatherer = prometheus.DefaultGatherer
	}
	if cfg.IngestRateLimit < 0 {
		return nil, errors.New("ingest rate limit must not be negative")
	}

	return &API{store: store, deps: deps, config: cfg}, nil
}

// Routes constructs the chi router containing all endpoints.
func (a *API) Routes() (http.Handler, error) {
	if a == nil {
		return nil, errors.New("nil api")
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(requestTimeout))
	if a.deps.Middleware != nil {
		r.Use(a.deps.Middleware)
	}

	allowed := a.config.AllowedOrigins
	if len(allowed) == 0 {
		allowed = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowed,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         int((10 * time.Minute).Seconds()),
	}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/readyz", a.handleReady)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(a.deps.Gatherer, promhttp.HandlerOpts{}))

	r.Group(func(r chi.Router) {
		if a.config.IngestRateLimit > 0 {
			r.Use(httprate.LimitByIP(a.config.IngestRateLimit, time.Minute))
		}
		r.Post("/api/upload", a.handleUpload)
		r.Post("/v1/snapshots", a.handleUpload)
	})

	r.Get("/", a.handleIndex)
	r.Get("/details/{id}", a.handleDetails)
	r.Get("/logs/machine/{id}", a.handleLogsPage)
	r.Get("/api/logs/machine/{id}", a.handleAssetEvents)

	r.Route("/v1/assets", func(r chi.Router) {
		r.Get("/", a.handleListAssets)
		r.Get("/{id}", a.handleGetAsset)
		r.Get("/{id}/events", a.handleAssetEvents)
	})

	return r, nil
}

// handleReady checks the catalog only; the event store is not ours to gate on.
func (a *API) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
	defer cancel()

	if err := a.store.Catalog.Ping(ctx); err != nil {
		a.deps.Logger.Warn().Err(err).Msg("catalog not ready")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("catalog unavailable"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
