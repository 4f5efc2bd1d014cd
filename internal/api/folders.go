package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
)

// ListFolders handles GET /folders, sorted by name.
func (h *Handler) ListFolders(w http.ResponseWriter, r *http.Request) {
	folders, err := h.repos.Folders.GetAll(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"folders": folders})
}

// CreateFolder handles POST /folders.
func (h *Handler) CreateFolder(w http.ResponseWriter, r *http.Request) {
	var req CreateFolderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	folder, err := h.repos.Folders.Create(r.Context(), req.Name, req.Color)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, folder)
}

// GetFolder handles GET /folders/{id}.
func (h *Handler) GetFolder(w http.ResponseWriter, r *http.Request) {
	folder, err := h.repos.Folders.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	if folder == nil {
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
		return
	}
	writeJSON(w, http.StatusOK, folder)
}

// GetFolderNotes handles GET /folders/{id}/notes.
func (h *Handler) GetFolderNotes(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	folder, err := h.repos.Folders.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	if folder == nil {
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
		return
	}
	notes, err := h.repos.Notes.GetByFolder(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"folder": folder,
		"notes":  toNoteResponses(notes),
	})
}

// UpdateFolder handles PUT /folders/{id}.
func (h *Handler) UpdateFolder(w http.ResponseWriter, r *http.Request) {
	var req UpdateFolderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	folder, err := h.repos.Folders.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	if folder == nil {
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
		return
	}
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			writeJSON(w, http.StatusBadRequest, errorBody("folder name must not be empty"))
			return
		}
		folder.Name = name
	}
	if req.Color != nil {
		folder.Color = *req.Color
	}
	if err := h.repos.Folders.Put(r.Context(), folder); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, folder)
}

// DeleteFolder handles DELETE /folders/{id}: notes filed under it are
// unassigned before the folder record goes away.
func (h *Handler) DeleteFolder(w http.ResponseWriter, r *http.Request) {
	if err := h.repos.Folders.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
