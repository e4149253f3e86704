package api

import (
	"errors"
	"net/http"

	"fleetinv/services/eventlog"
	"fleetinv/services/inventory"
)

type indexView struct {
	Sites      []string
	Complement string
	Assets     []inventory.AssetSummary
}

type detailsView struct {
	Asset         inventory.Asset
	LogsAvailable bool
	Events        []eventlog.Event
}

type logsView struct {
	Interval      int
	Hostname      string
	AssetID       int64
	LogsAvailable bool
	Events        []eventlog.Event
}

func (a *API) handleListAssets(w http.ResponseWriter, r *http.Request) {
	assets, err := a.store.Query.ListAssets(r.Context(), r.URL.Query().Get("room"))
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	respondJSON(w, http.StatusOK, assets)
}

func (a *API) handleGetAsset(w http.ResponseWriter, r *http.Request) {
	id, err := assetIDParam(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}

	asset, err := a.store.Query.GetAssetDetail(r.Context(), id)
	switch {
	case errors.Is(err, inventory.ErrNotFound):
		respondError(w, http.StatusNotFound, err)
		return
	case err != nil:
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	respondJSON(w, http.StatusOK, asset)
}

// handleAssetEvents serves the correlated log section. Event store failures
// still answer 200 with logs_available=false.
func (a *API) handleAssetEvents(w http.ResponseWriter, r *http.Request) {
	id, err := assetIDParam(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}

	view, err := a.store.Correlator.View(r.Context(), id, intQuery(r, "limit", 0))
	switch {
	case errors.Is(err, inventory.ErrNotFound):
		respondError(w, http.StatusNotFound, err)
		return
	case err != nil:
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	respondJSON(w, http.StatusOK, view)
}

func (a *API) handleIndex(w http.ResponseWriter, r *http.Request) {
	assets, err := a.store.Query.ListAssets(r.Context(), r.URL.Query().Get("room"))
	if err != nil {
		a.renderFailure(w, err)
		return
	}

	sites := a.store.Query.Sites()
	a.renderPage(w, "index.tmpl", indexView{
		Sites:      sites.Codes,
		Complement: sites.Complement,
		Assets:     assets,
	})
}

func (a *API) handleDetails(w http.ResponseWriter, r *http.Request) {
	id, err := assetIDParam(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	asset, err := a.store.Query.GetAssetDetail(r.Context(), id)
	switch {
	case errors.Is(err, inventory.ErrNotFound):
		http.NotFound(w, r)
		return
	case err != nil:
		a.renderFailure(w, err)
		return
	}

	logs := a.store.Correlator.ViewFor(r.Context(), asset.ID, asset.Hostname, 0)
	a.renderPage(w, "details.tmpl", detailsView{
		Asset:         asset,
		LogsAvailable: logs.Available,
		Events:        logs.Events,
	})
}

func (a *API) handleLogsPage(w http.ResponseWriter, r *http.Request) {
	id, err := assetIDParam(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	view, err := a.store.Correlator.View(r.Context(), id, 0)
	switch {
	case errors.Is(err, inventory.ErrNotFound):
		http.NotFound(w, r)
		return
	case err != nil:
		a.renderFailure(w, err)
		return
	}

	a.renderPage(w, "logs.tmpl", logsView{
		Interval:      intQuery(r, "interval", defaultLogsInterval),
		Hostname:      view.Hostname,
		AssetID:       view.AssetID,
		LogsAvailable: view.Available,
		Events:        view.Events,
	})
}

func (a *API) renderPage(w http.ResponseWriter, name string, data any) {
	body, err := a.deps.Renderer.Render(name, data)
	if err != nil {
		a.renderFailure(w, err)
		return
	}
	respondHTML(w, http.StatusOK, body)
}

func (a *API) renderFailure(w http.ResponseWriter, err error) {
	a.deps.Logger.Error().Err(err).Msg("render page")
	http.Error(w, "internal error", http.StatusInternalServerError)
}
