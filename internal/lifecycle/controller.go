// Package lifecycle drives a voice note through its processing state
// machine: created in transcribing the instant recording stops, enriched in
// the background, and transitioned to ready or error without blocking the
// caller. The raw audio is persisted before enrichment is ever attempted,
// so a failed or stuck collaborator call can never lose a recording.
package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/voss/murmur/internal/apperr"
	"github.com/voss/murmur/internal/enrich"
	"github.com/voss/murmur/internal/models"
	"github.com/voss/murmur/internal/repo"
)

// Controller owns the note status transitions. No other writer may set
// status.
type Controller struct {
	notes    *repo.Notes
	enricher enrich.Enricher
	logger   *slog.Logger

	wg sync.WaitGroup
}

// NewController creates a controller over the given repository and
// collaborator.
func NewController(notes *repo.Notes, enricher enrich.Enricher, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{notes: notes, enricher: enricher, logger: logger}
}

// CreateFromRecording persists a new note in transcribing state and
// dispatches one background enrichment. It returns as soon as the record is
// durable; the enrichment outcome lands as a second write later.
func (c *Controller) CreateFromRecording(ctx context.Context, audio []byte, format string, duration float64, locale string) (*models.VoiceNote, error) {
	if len(audio) == 0 {
		return nil, fmt.Errorf("%w: empty audio payload", apperr.ErrValidationFailed)
	}
	if format == "" {
		format = "audio/webm"
	}
	if duration < 0 {
		duration = 0
	}

	now := time.Now().UnixMilli()
	note := &models.VoiceNote{
		ID:           uuid.NewString(),
		Title:        "",
		DefaultTitle: time.UnixMilli(now).Format("Jan 2, 3:04 PM"),
		Audio:        audio,
		AudioFormat:  format,
		Duration:     duration,
		Tags:         []string{},
		InsightIDs:   []string{},
		Status:       models.StatusTranscribing,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := c.notes.Put(ctx, note); err != nil {
		return nil, err
	}
	c.dispatch(ctx, note, locale)
	return note, nil
}

// Retry re-enters transcribing from error and dispatches enrichment again.
// Returns nil when the note does not exist.
func (c *Controller) Retry(ctx context.Context, id, locale string) (*models.VoiceNote, error) {
	note, err := c.notes.Get(ctx, id)
	if err != nil || note == nil {
		return nil, err
	}
	if note.Status != models.StatusError {
		return nil, fmt.Errorf("%w: retry requires status %q, note is %q",
			apperr.ErrValidationFailed, models.StatusError, note.Status)
	}
	note.Status = models.StatusTranscribing
	note.UpdatedAt = time.Now().UnixMilli()
	if err := c.notes.Put(ctx, note); err != nil {
		return nil, err
	}
	c.dispatch(ctx, note, locale)
	return note, nil
}

// Wait blocks until all in-flight enrichment completions have been written.
// Used on shutdown and by tests; callers do not otherwise need it.
func (c *Controller) Wait() {
	c.wg.Wait()
}

// dispatch invokes the collaborator exactly once for this entry into
// transcribing, detached from the caller's cancellation: once started, the
// call runs to completion or failure.
func (c *Controller) dispatch(ctx context.Context, note *models.VoiceNote, locale string) {
	snapshot := *note
	bg := context.WithoutCancel(ctx)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.process(bg, snapshot, locale)
	}()
}

// process runs one enrichment attempt and writes the outcome. The final
// write replaces the whole record from the snapshot captured at dispatch:
// whichever write lands last wins in full, with no field-level merge.
func (c *Controller) process(ctx context.Context, note models.VoiceNote, locale string) {
	result, err := c.enricher.Enrich(ctx, note.Audio, note.AudioFormat, locale)
	now := time.Now().UnixMilli()

	if err != nil {
		c.logger.Warn("enrichment failed",
			slog.String("note_id", note.ID),
			slog.String("error", err.Error()))
		note.Status = models.StatusError
		note.UpdatedAt = now
		if putErr := c.notes.Put(ctx, &note); putErr != nil {
			c.logger.Error("failed to record error status",
				slog.String("note_id", note.ID),
				slog.String("error", putErr.Error()))
		}
		return
	}

	note.Title = result.Title
	note.Summary = &result.Summary
	note.Transcription = &result.Transcription
	note.Tags = result.Tags
	note.DetectedLanguage = result.DetectedLanguage
	note.Status = models.StatusReady
	note.UpdatedAt = now
	if err := c.notes.Put(ctx, &note); err != nil {
		c.logger.Error("failed to store enrichment result",
			slog.String("note_id", note.ID),
			slog.String("error", err.Error()))
		return
	}
	c.logger.Info("note ready",
		slog.String("note_id", note.ID),
		slog.String("title", result.Title))
}
