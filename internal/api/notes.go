package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/voss/murmur/internal/apperr"
	"github.com/voss/murmur/internal/enrich"
	"github.com/voss/murmur/internal/legacy"
	"github.com/voss/murmur/internal/lifecycle"
	"github.com/voss/murmur/internal/repo"
	"github.com/voss/murmur/internal/store"
)

const maxRecordingBytes = 50 << 20 // 50 MB

// Handler holds the API route handlers.
type Handler struct {
	repos    *repo.Repos
	ctrl     *lifecycle.Controller
	insights *lifecycle.InsightService
	importer *legacy.Importer
	mgr      *store.Manager
}

// NewHandler creates a Handler.
func NewHandler(repos *repo.Repos, ctrl *lifecycle.Controller, insights *lifecycle.InsightService, importer *legacy.Importer, mgr *store.Manager) *Handler {
	return &Handler{repos: repos, ctrl: ctrl, insights: insights, importer: importer, mgr: mgr}
}

// CreateRecording handles POST /recordings: persists the note immediately
// in transcribing state and dispatches enrichment in the background.
func (h *Handler) CreateRecording(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRecordingBytes)

	if err := r.ParseMultipartForm(maxRecordingBytes); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("recording too large or invalid multipart"))
		return
	}
	file, header, err := r.FormFile("audio")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("missing 'audio' field in multipart form"))
		return
	}
	defer file.Close()

	audio, err := io.ReadAll(file)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("failed to read audio"))
		return
	}
	format := header.Header.Get("Content-Type")
	if f := r.FormValue("mimeType"); f != "" {
		format = f
	}
	duration, _ := strconv.ParseFloat(r.FormValue("duration"), 64)
	locale := r.FormValue("locale")
	if locale == "" {
		locale = "en"
	}

	note, err := h.ctrl.CreateFromRecording(r.Context(), audio, format, duration, locale)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toNoteResponse(note))
}

// RetryNote handles POST /notes/{id}/retry.
func (h *Handler) RetryNote(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	locale := r.URL.Query().Get("locale")
	if locale == "" {
		locale = "en"
	}
	note, err := h.ctrl.Retry(r.Context(), id, locale)
	if err != nil {
		writeError(w, err)
		return
	}
	if note == nil {
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
		return
	}
	writeJSON(w, http.StatusAccepted, toNoteResponse(note))
}

// ListNotes handles GET /notes with optional q, folder, and limit params.
func (h *Handler) ListNotes(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var err error
	var notes []NoteResponse

	switch {
	case q.Get("q") != "":
		found, searchErr := h.repos.Notes.Search(r.Context(), q.Get("q"))
		notes, err = toNoteResponses(found), searchErr
	case q.Get("folder") != "":
		found, folderErr := h.repos.Notes.GetByFolder(r.Context(), q.Get("folder"))
		notes, err = toNoteResponses(found), folderErr
	case q.Get("limit") != "":
		limit, _ := strconv.Atoi(q.Get("limit"))
		found, recentErr := h.repos.Notes.GetRecent(r.Context(), limit)
		notes, err = toNoteResponses(found), recentErr
	default:
		found, allErr := h.repos.Notes.GetAll(r.Context())
		notes, err = toNoteResponses(found), allErr
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"notes": notes, "total": len(notes)})
}

// GetNote handles GET /notes/{id}.
func (h *Handler) GetNote(w http.ResponseWriter, r *http.Request) {
	note, err := h.repos.Notes.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	if note == nil {
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
		return
	}
	writeJSON(w, http.StatusOK, toNoteResponse(note))
}

// GetNoteAudio handles GET /notes/{id}/audio, serving the stored payload
// with its recorded mime type.
func (h *Handler) GetNoteAudio(w http.ResponseWriter, r *http.Request) {
	note, err := h.repos.Notes.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	if note == nil {
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
		return
	}
	w.Header().Set("Content-Type", note.AudioFormat)
	w.Header().Set("Content-Length", strconv.Itoa(len(note.Audio)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(note.Audio)
}

// UpdateNote handles PUT /notes/{id}: user-editable fields only. The write
// replaces the whole record; a concurrent enrichment completion is not
// merged with it (last writer wins).
func (h *Handler) UpdateNote(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var req UpdateNoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}

	note, err := h.repos.Notes.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	if note == nil {
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
		return
	}

	if req.Title != nil {
		note.Title = *req.Title
	}
	if req.Tags != nil {
		note.Tags = enrich.NormalizeTags(*req.Tags)
	}
	if req.FolderID.Set {
		if req.FolderID.Value != nil {
			folder, err := h.repos.Folders.Get(r.Context(), *req.FolderID.Value)
			if err != nil {
				writeError(w, err)
				return
			}
			if folder == nil {
				writeError(w, fmt.Errorf("%w: folder %s does not exist", apperr.ErrValidationFailed, *req.FolderID.Value))
				return
			}
		}
		note.FolderID = req.FolderID.Value
	}
	note.UpdatedAt = nowMillis()
	if err := h.repos.Notes.Put(r.Context(), note); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toNoteResponse(note))
}

// DeleteNote handles DELETE /notes/{id}. No reverse cleanup of insight
// membership happens here; readers filter dangling references.
func (h *Handler) DeleteNote(w http.ResponseWriter, r *http.Request) {
	if err := h.repos.Notes.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
