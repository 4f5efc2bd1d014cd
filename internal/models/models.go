// Package models defines the domain types for Murmur.
package models

// NoteStatus is the processing state of a voice note. A note is created in
// StatusTranscribing the moment recording stops and only ever moves between
// the three persisted states via the lifecycle controller.
type NoteStatus string

const (
	StatusTranscribing NoteStatus = "transcribing"
	StatusReady        NoteStatus = "ready"
	StatusError        NoteStatus = "error"
)

// Valid reports whether s is one of the persisted statuses.
func (s NoteStatus) Valid() bool {
	switch s {
	case StatusTranscribing, StatusReady, StatusError:
		return true
	}
	return false
}

// VoiceNote is a captured audio recording plus its asynchronously produced
// enrichment fields. The audio payload is owned exclusively by the note
// record; deleting the note is the only path that frees it.
//
// Timestamps are milliseconds since epoch throughout.
type VoiceNote struct {
	ID               string     `json:"id"`
	Title            string     `json:"title"`
	DefaultTitle     string     `json:"defaultTitle"`
	Audio            []byte     `json:"audio"`
	AudioFormat      string     `json:"audioFormat"`
	Duration         float64    `json:"duration"`
	Transcription    *string    `json:"transcription"`
	Summary          *string    `json:"summary"`
	Tags             []string   `json:"tags"`
	DetectedLanguage string     `json:"detectedLanguage,omitempty"`
	FolderID         *string    `json:"folderId"`
	InsightIDs       []string   `json:"insightIds"`
	Status           NoteStatus `json:"status"`
	CreatedAt        int64      `json:"createdAt"`
	UpdatedAt        int64      `json:"updatedAt"`
}

// Folder groups notes. It does not own them: notes carry a weak back
// reference that is nulled, not cascaded, when the folder goes away.
type Folder struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Color     string `json:"color"`
	CreatedAt int64  `json:"createdAt"`
}

// Insight is a named aggregation of notes and images with AI-generated
// structured analysis attached. GeneratedContent is replaced wholesale on
// each (re)generation, never merged field by field.
type Insight struct {
	ID               string          `json:"id"`
	Name             string          `json:"name"`
	NoteIDs          []string        `json:"noteIds"`
	ImageIDs         []string        `json:"imageIds"`
	GeneratedContent *InsightContent `json:"generatedContent"`
	LastGeneratedAt  *int64          `json:"lastGeneratedAt"`
	CreatedAt        int64           `json:"createdAt"`
	UpdatedAt        int64           `json:"updatedAt"`
}

// InsightContent is the structured analysis returned by the insight
// collaborator. The core stores it without interpreting its semantics.
type InsightContent struct {
	Summary        string          `json:"summary"`
	KeyPoints      []string        `json:"keyPoints"`
	ActionItems    []string        `json:"actionItems"`
	Timeline       []TimelineEntry `json:"timeline"`
	CustomSections []CustomSection `json:"customSections"`
}

// TimelineEntry is one dated event in an insight timeline.
type TimelineEntry struct {
	Date   int64  `json:"date"`
	NoteID string `json:"noteId,omitempty"`
	Event  string `json:"event"`
}

// CustomSection is one Q&A exchange attached to an insight.
type CustomSection struct {
	Prompt      string `json:"prompt"`
	Content     string `json:"content"`
	GeneratedAt int64  `json:"generatedAt"`
}

// InsightImage is an image asset attached to exactly one insight: either a
// user upload or a rendered diagram, distinguished by DiagramSource.
type InsightImage struct {
	ID            string `json:"id"`
	InsightID     string `json:"insightId"`
	Payload       []byte `json:"payload"`
	Name          string `json:"name"`
	MimeType      string `json:"mimeType"`
	Width         int    `json:"width"`
	Height        int    `json:"height"`
	DiagramSource string `json:"diagramSource,omitempty"`
	CreatedAt     int64  `json:"createdAt"`
}

// IsDiagram reports whether the image was produced by rendering diagram
// source rather than uploaded.
func (img *InsightImage) IsDiagram() bool {
	return img.DiagramSource != ""
}
