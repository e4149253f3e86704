package api

import (
	"context"
	"errors"
	"net/http"

	"fleetinv/services/inventory"
)

func (a *API) handleUpload(w http.ResponseWriter, r *http.Request) {
	raw, err := readBody(w, r)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondMessage(w, http.StatusRequestEntityTooLarge, "snapshot too large")
			return
		}
		respondMessage(w, http.StatusBadRequest, "No data provided")
		return
	}

	snap, err := inventory.DecodeSnapshot(raw)
	switch {
	case errors.Is(err, inventory.ErrNoData):
		respondMessage(w, http.StatusBadRequest, "No data provided")
		return
	case err != nil:
		respondError(w, http.StatusBadRequest, err)
		return
	}

	res, err := a.store.Reconciler.Reconcile(r.Context(), snap)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}

	if a.store.Archiver != nil {
		go a.store.Archiver.Archive(context.WithoutCancel(r.Context()), snap, raw)
	}

	if res.Outcome == inventory.Created {
		respondMessage(w, http.StatusCreated, "Data saved successfully")
		return
	}
	respondMessage(w, http.StatusOK, "Data updated successfully")
}
