package api

import (
	"encoding/json"

	"github.com/voss/murmur/internal/models"
)

// NoteResponse is a VoiceNote without its audio payload; the payload is
// served separately by GET /notes/{id}/audio.
type NoteResponse struct {
	ID               string            `json:"id"`
	Title            string            `json:"title"`
	DefaultTitle     string            `json:"defaultTitle"`
	AudioFormat      string            `json:"audioFormat"`
	Duration         float64           `json:"duration"`
	Transcription    *string           `json:"transcription"`
	Summary          *string           `json:"summary"`
	Tags             []string          `json:"tags"`
	DetectedLanguage string            `json:"detectedLanguage,omitempty"`
	FolderID         *string           `json:"folderId"`
	InsightIDs       []string          `json:"insightIds"`
	Status           models.NoteStatus `json:"status"`
	CreatedAt        int64             `json:"createdAt"`
	UpdatedAt        int64             `json:"updatedAt"`
}

func toNoteResponse(n *models.VoiceNote) NoteResponse {
	return NoteResponse{
		ID:               n.ID,
		Title:            n.Title,
		DefaultTitle:     n.DefaultTitle,
		AudioFormat:      n.AudioFormat,
		Duration:         n.Duration,
		Transcription:    n.Transcription,
		Summary:          n.Summary,
		Tags:             n.Tags,
		DetectedLanguage: n.DetectedLanguage,
		FolderID:         n.FolderID,
		InsightIDs:       n.InsightIDs,
		Status:           n.Status,
		CreatedAt:        n.CreatedAt,
		UpdatedAt:        n.UpdatedAt,
	}
}

func toNoteResponses(notes []models.VoiceNote) []NoteResponse {
	out := make([]NoteResponse, len(notes))
	for i := range notes {
		out[i] = toNoteResponse(&notes[i])
	}
	return out
}

// OptionalString distinguishes an absent JSON key (Set false) from an
// explicit null (Set true, Value nil). A plain pointer cannot tell the two
// apart.
type OptionalString struct {
	Set   bool
	Value *string
}

// UnmarshalJSON runs only when the key is present in the body.
func (o *OptionalString) UnmarshalJSON(b []byte) error {
	o.Set = true
	if string(b) == "null" {
		o.Value = nil
		return nil
	}
	return json.Unmarshal(b, &o.Value)
}

// UpdateNoteRequest carries the user-editable note fields. Nil pointer
// fields are left unchanged; FolderID is optional so "clear the folder"
// (explicit null) and "leave as is" (absent) are distinguishable.
type UpdateNoteRequest struct {
	Title    *string        `json:"title"`
	Tags     *[]string      `json:"tags"`
	FolderID OptionalString `json:"folderId"`
}

// CreateFolderRequest is the request body for creating a folder.
type CreateFolderRequest struct {
	Name  string `json:"name"`
	Color string `json:"color"`
}

// UpdateFolderRequest carries the editable folder fields.
type UpdateFolderRequest struct {
	Name  *string `json:"name"`
	Color *string `json:"color"`
}

// CreateInsightRequest is the request body for creating an insight.
type CreateInsightRequest struct {
	Name    string   `json:"name"`
	NoteIDs []string `json:"noteIds"`
}

// UpdateInsightRequest carries the editable insight fields.
type UpdateInsightRequest struct {
	Name    *string   `json:"name"`
	NoteIDs *[]string `json:"noteIds"`
}

// AskInsightRequest is the request body for an insight question.
type AskInsightRequest struct {
	Prompt string `json:"prompt"`
	Locale string `json:"locale"`
}

// ImageResponse is an InsightImage without its payload bytes.
type ImageResponse struct {
	ID            string `json:"id"`
	InsightID     string `json:"insightId"`
	Name          string `json:"name"`
	MimeType      string `json:"mimeType"`
	Width         int    `json:"width"`
	Height        int    `json:"height"`
	DiagramSource string `json:"diagramSource,omitempty"`
	CreatedAt     int64  `json:"createdAt"`
}

func toImageResponse(img *models.InsightImage) ImageResponse {
	return ImageResponse{
		ID:            img.ID,
		InsightID:     img.InsightID,
		Name:          img.Name,
		MimeType:      img.MimeType,
		Width:         img.Width,
		Height:        img.Height,
		DiagramSource: img.DiagramSource,
		CreatedAt:     img.CreatedAt,
	}
}
