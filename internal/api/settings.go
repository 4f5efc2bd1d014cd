package api

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// GetSetting handles GET /settings/{key}.
func (h *Handler) GetSetting(w http.ResponseWriter, r *http.Request) {
	value, err := h.repos.Settings.Get(r.Context(), chi.URLParam(r, "key"))
	if err != nil {
		writeError(w, err)
		return
	}
	if value == nil {
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"value": value})
}

// SetSetting handles PUT /settings/{key}: the body is the raw JSON value.
func (h *Handler) SetSetting(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("failed to read body"))
		return
	}
	if !json.Valid(body) {
		writeJSON(w, http.StatusBadRequest, errorBody("body must be valid JSON"))
		return
	}
	if err := h.repos.Settings.Set(r.Context(), chi.URLParam(r, "key"), json.RawMessage(body)); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
