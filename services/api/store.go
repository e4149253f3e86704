package api

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"fleetinv/pkg/render"
	"fleetinv/services/inventory"
)

// Store holds the services the HTTP layer delegates to.
type Store struct {
	Catalog    inventory.Catalog
	Reconciler *inventory.Reconciler
	Query      *inventory.QueryService
	Correlator *inventory.Correlator
	// Archiver is optional.
	Archiver *Archiver
}

// Deps carries the process-wide collaborators of the API.
type Deps struct {
	Renderer *render.Engine
	Logger   zerolog.Logger
	Gatherer prometheus.Gatherer
	// Middleware wraps every request, typically tracing plus access logs.
	Middleware func(http.Handler) http.Handler
}
