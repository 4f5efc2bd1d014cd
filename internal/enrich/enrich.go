// Package enrich defines the contracts for the external AI collaborators
// (audio enrichment, insight generation, Q&A) and an HTTP client that
// implements them. The core validates payload structure before accepting a
// result; it never interprets the generated content beyond that.
package enrich

import (
	"context"

	"github.com/voss/murmur/internal/models"
)

// Result is the enrichment output for one recording.
type Result struct {
	Title            string   `json:"title"`
	Summary          string   `json:"summary"`
	Transcription    string   `json:"transcription"`
	Tags             []string `json:"tags"`
	DetectedLanguage string   `json:"detectedLanguage,omitempty"`
}

// Enricher turns raw audio into title/summary/transcript/tags. It must be
// safe to invoke concurrently, one call per note, with no shared state
// between calls.
type Enricher interface {
	Enrich(ctx context.Context, audio []byte, mime, locale string) (*Result, error)
}

// NoteContext is the per-note input to the insight collaborators.
type NoteContext struct {
	Date          int64  `json:"date"`
	Title         string `json:"title"`
	Transcription string `json:"transcription"`
}

// InsightGenerator produces structured cross-note analysis and answers
// ad-hoc questions over a set of notes.
type InsightGenerator interface {
	Generate(ctx context.Context, notes []NoteContext, locale string) (*models.InsightContent, error)
	Ask(ctx context.Context, notes []NoteContext, insightName, prompt, locale string) (string, error)
}
