package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/voss/murmur/internal/ratelimit"
)

// NewRouter creates a chi router with all API routes mounted. The rate
// limiter guards only the endpoints that invoke the AI collaborators.
func NewRouter(h *Handler, authEnabled bool, token string, limiter *ratelimit.Limiter) chi.Router {
	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// AI-backed endpoints, behind the fixed-window limiter.
	r.Group(func(r chi.Router) {
		if limiter != nil {
			r.Use(ratelimit.Middleware(limiter))
		}
		r.Post("/recordings", h.CreateRecording)
		r.Post("/notes/{id}/retry", h.RetryNote)
		r.Post("/insights/{id}/generate", h.GenerateInsight)
		r.Post("/insights/{id}/ask", h.AskInsight)
	})

	// Notes.
	r.Get("/notes", h.ListNotes)
	r.Get("/notes/{id}", h.GetNote)
	r.Get("/notes/{id}/audio", h.GetNoteAudio)
	r.Put("/notes/{id}", h.UpdateNote)
	r.Delete("/notes/{id}", h.DeleteNote)

	// Folders.
	r.Get("/folders", h.ListFolders)
	r.Post("/folders", h.CreateFolder)
	r.Get("/folders/{id}", h.GetFolder)
	r.Get("/folders/{id}/notes", h.GetFolderNotes)
	r.Put("/folders/{id}", h.UpdateFolder)
	r.Delete("/folders/{id}", h.DeleteFolder)

	// Insights and images.
	r.Get("/insights", h.ListInsights)
	r.Post("/insights", h.CreateInsight)
	r.Get("/insights/{id}", h.GetInsight)
	r.Put("/insights/{id}", h.UpdateInsight)
	r.Delete("/insights/{id}", h.DeleteInsight)
	r.Post("/insights/{id}/images", h.UploadInsightImage)
	r.Get("/images/{id}", h.GetImage)
	r.Delete("/images/{id}", h.DeleteImage)

	// Settings.
	r.Get("/settings/{key}", h.GetSetting)
	r.Put("/settings/{key}", h.SetSetting)

	// Admin.
	r.Post("/import/legacy", h.ImportLegacy)
	r.Post("/erase", h.Erase)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
	})

	return r
}
