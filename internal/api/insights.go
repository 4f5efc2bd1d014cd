package api

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/voss/murmur/internal/models"
)

const maxImageBytes = 20 << 20 // 20 MB

// ListInsights handles GET /insights, sorted by name.
func (h *Handler) ListInsights(w http.ResponseWriter, r *http.Request) {
	insights, err := h.repos.Insights.GetAll(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"insights": insights})
}

// CreateInsight handles POST /insights.
func (h *Handler) CreateInsight(w http.ResponseWriter, r *http.Request) {
	var req CreateInsightRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	ins, err := h.repos.Insights.Create(r.Context(), req.Name, req.NoteIDs)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, ins)
}

// GetInsight handles GET /insights/{id}, including the resolvable member
// notes (dangling ids are filtered, not errors).
func (h *Handler) GetInsight(w http.ResponseWriter, r *http.Request) {
	ins, err := h.repos.Insights.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	if ins == nil {
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
		return
	}
	notes, err := h.repos.Insights.ResolveNotes(r.Context(), ins)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"insight": ins,
		"notes":   toNoteResponses(notes),
	})
}

// UpdateInsight handles PUT /insights/{id}: rename and/or replace note
// membership (kept symmetric on the note side).
func (h *Handler) UpdateInsight(w http.ResponseWriter, r *http.Request) {
	var req UpdateInsightRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	ins, err := h.repos.Insights.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	if ins == nil {
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
		return
	}
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			writeJSON(w, http.StatusBadRequest, errorBody("insight name must not be empty"))
			return
		}
		ins.Name = name
	}
	if req.NoteIDs != nil {
		if err := h.repos.Insights.SetNotes(r.Context(), ins, *req.NoteIDs); err != nil {
			writeError(w, err)
			return
		}
	} else {
		ins.UpdatedAt = nowMillis()
		if err := h.repos.Insights.Put(r.Context(), ins); err != nil {
			writeError(w, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, ins)
}

// DeleteInsight handles DELETE /insights/{id}: member notes are unlinked
// and the insight's images removed before the record goes away.
func (h *Handler) DeleteInsight(w http.ResponseWriter, r *http.Request) {
	if err := h.repos.Insights.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GenerateInsight handles POST /insights/{id}/generate.
func (h *Handler) GenerateInsight(w http.ResponseWriter, r *http.Request) {
	locale := r.URL.Query().Get("locale")
	if locale == "" {
		locale = "en"
	}
	ins, err := h.insights.Generate(r.Context(), chi.URLParam(r, "id"), locale)
	if err != nil {
		writeError(w, err)
		return
	}
	if ins == nil {
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
		return
	}
	writeJSON(w, http.StatusOK, ins)
}

// AskInsight handles POST /insights/{id}/ask.
func (h *Handler) AskInsight(w http.ResponseWriter, r *http.Request) {
	var req AskInsightRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if req.Locale == "" {
		req.Locale = "en"
	}
	ins, err := h.insights.Ask(r.Context(), chi.URLParam(r, "id"), req.Prompt, req.Locale)
	if err != nil {
		writeError(w, err)
		return
	}
	if ins == nil {
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
		return
	}
	writeJSON(w, http.StatusOK, ins)
}

// UploadInsightImage handles POST /insights/{id}/images
// (multipart/form-data, field "image"; optional width/height/diagramSource
// fields). The new image id is appended to the insight's ImageIDs.
func (h *Handler) UploadInsightImage(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxImageBytes)

	insightID := chi.URLParam(r, "id")
	ins, err := h.repos.Insights.Get(r.Context(), insightID)
	if err != nil {
		writeError(w, err)
		return
	}
	if ins == nil {
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
		return
	}

	if err := r.ParseMultipartForm(maxImageBytes); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("image too large or invalid multipart"))
		return
	}
	file, header, err := r.FormFile("image")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("missing 'image' field in multipart form"))
		return
	}
	defer file.Close()

	payload, err := io.ReadAll(file)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("failed to read image"))
		return
	}
	width, _ := strconv.Atoi(r.FormValue("width"))
	height, _ := strconv.Atoi(r.FormValue("height"))

	img := &models.InsightImage{
		ID:            uuid.NewString(),
		InsightID:     insightID,
		Payload:       payload,
		Name:          header.Filename,
		MimeType:      header.Header.Get("Content-Type"),
		Width:         width,
		Height:        height,
		DiagramSource: r.FormValue("diagramSource"),
		CreatedAt:     time.Now().UnixMilli(),
	}
	if err := h.repos.Images.Put(r.Context(), img); err != nil {
		writeError(w, err)
		return
	}

	ins.ImageIDs = append(ins.ImageIDs, img.ID)
	ins.UpdatedAt = nowMillis()
	if err := h.repos.Insights.Put(r.Context(), ins); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toImageResponse(img))
}

// GetImage handles GET /images/{id}, serving the payload bytes.
func (h *Handler) GetImage(w http.ResponseWriter, r *http.Request) {
	img, err := h.repos.Images.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	if img == nil {
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
		return
	}
	w.Header().Set("Content-Type", img.MimeType)
	w.Header().Set("Content-Length", strconv.Itoa(len(img.Payload)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(img.Payload)
}

// DeleteImage handles DELETE /images/{id} and drops the id from the owning
// insight's ImageIDs.
func (h *Handler) DeleteImage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	img, err := h.repos.Images.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	if img != nil {
		ins, err := h.repos.Insights.Get(r.Context(), img.InsightID)
		if err != nil {
			writeError(w, err)
			return
		}
		if ins != nil {
			kept := make([]string, 0, len(ins.ImageIDs))
			for _, imageID := range ins.ImageIDs {
				if imageID != id {
					kept = append(kept, imageID)
				}
			}
			ins.ImageIDs = kept
			ins.UpdatedAt = nowMillis()
			if err := h.repos.Insights.Put(r.Context(), ins); err != nil {
				writeError(w, err)
				return
			}
		}
	}
	if err := h.repos.Images.Delete(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
