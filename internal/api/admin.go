package api

import (
	"net/http"
)

// ImportLegacy handles POST /import/legacy, running the one-shot migration
// of a legacy export file waiting in the data directory.
func (h *Handler) ImportLegacy(w http.ResponseWriter, r *http.Request) {
	stats, err := h.importer.Run(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// Erase handles POST /erase: closes the store handle and irrecoverably
// deletes all collections. The store re-initializes lazily on the next
// operation.
func (h *Handler) Erase(w http.ResponseWriter, r *http.Request) {
	if err := h.mgr.Destroy(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
