// Package legacy imports the prior flat-file data shape: a JSON array of
// conversations, each holding base64-encoded recordings. Each conversation
// becomes one folder; each recording becomes one voice note, ready if a
// transcript existed and error otherwise. The source file is deleted once
// the import succeeds.
package legacy

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/voss/murmur/internal/models"
	"github.com/voss/murmur/internal/repo"
	"github.com/voss/murmur/internal/storage"
)

// Source file names inside the data directory.
const (
	SourceFile         = "legacy-notes.json"
	SettingsSourceFile = "legacy-settings.json"
)

var folderColors = []string{
	"#e84d6e", "#f07593", "#60a5fa", "#34d399",
	"#fbbf24", "#a78bfa", "#f87171", "#2dd4bf",
	"#fb923c", "#818cf8",
}

// Conversation is one legacy grouping of recordings.
type Conversation struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	CreatedAt int64  `json:"createdAt"`
	UpdatedAt int64  `json:"updatedAt"`
	Notes     []Note `json:"notes"`
}

// Note is one legacy recording. AudioBlob is base64, optionally with a
// data-URL prefix.
type Note struct {
	ID            string  `json:"id"`
	AudioBlob     string  `json:"audioBlob"`
	Transcription string  `json:"transcription"`
	Timestamp     int64   `json:"timestamp"`
	Duration      float64 `json:"duration"`
}

type legacySettings struct {
	APIKey string `json:"geminiApiKey"`
}

// Stats summarizes an import run.
type Stats struct {
	FoldersCreated int `json:"foldersCreated"`
	NotesMigrated  int `json:"notesMigrated"`
}

// Importer performs the one-shot migration through the repositories.
type Importer struct {
	files    *storage.FS
	notes    *repo.Notes
	folders  *repo.Folders
	settings *repo.Settings
	logger   *slog.Logger
}

// NewImporter creates an importer over the data directory and repositories.
func NewImporter(files *storage.FS, repos *repo.Repos, logger *slog.Logger) *Importer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Importer{
		files:    files,
		notes:    repos.Notes,
		folders:  repos.Folders,
		settings: repos.Settings,
		logger:   logger,
	}
}

// HasLegacyData reports whether a legacy export is waiting in the data dir.
func (i *Importer) HasLegacyData() bool {
	return i.files.Exists(SourceFile)
}

// Run migrates the legacy file if present. Per-note failures are logged and
// skipped; a parse failure keeps the file in place so nothing is lost.
func (i *Importer) Run(ctx context.Context) (Stats, error) {
	var stats Stats
	if !i.HasLegacyData() {
		return stats, nil
	}
	raw, err := i.files.Read(SourceFile)
	if err != nil {
		return stats, err
	}
	var conversations []Conversation
	if err := json.Unmarshal(raw, &conversations); err != nil {
		return stats, fmt.Errorf("legacy: parse %s: %w", SourceFile, err)
	}

	for idx, conv := range conversations {
		name := strings.TrimSpace(conv.Title)
		if name == "" {
			name = "Untitled"
		}
		folder := &models.Folder{
			ID:        uuid.NewString(),
			Name:      name,
			Color:     folderColors[idx%len(folderColors)],
			CreatedAt: conv.CreatedAt,
		}
		if err := i.folders.Put(ctx, folder); err != nil {
			return stats, fmt.Errorf("legacy: create folder for %q: %w", name, err)
		}
		stats.FoldersCreated++

		for _, legacyNote := range conv.Notes {
			if err := i.importNote(ctx, folder.ID, legacyNote); err != nil {
				i.logger.Warn("legacy: note skipped",
					slog.String("legacy_id", legacyNote.ID),
					slog.String("error", err.Error()))
				continue
			}
			stats.NotesMigrated++
		}
	}

	i.importSettings(ctx)

	if err := i.files.Delete(SourceFile); err != nil {
		return stats, fmt.Errorf("legacy: remove source: %w", err)
	}
	i.logger.Info("legacy import complete",
		slog.Int("folders", stats.FoldersCreated),
		slog.Int("notes", stats.NotesMigrated))
	return stats, nil
}

func (i *Importer) importNote(ctx context.Context, folderID string, legacyNote Note) error {
	audio, err := decodeAudio(legacyNote.AudioBlob)
	if err != nil {
		return err
	}
	var transcription *string
	status := models.StatusError
	if strings.TrimSpace(legacyNote.Transcription) != "" {
		t := legacyNote.Transcription
		transcription = &t
		status = models.StatusReady
	}
	note := &models.VoiceNote{
		ID:            uuid.NewString(),
		Title:         "Migrated note",
		DefaultTitle:  time.UnixMilli(legacyNote.Timestamp).Format("Jan 2, 3:04 PM"),
		Audio:         audio,
		AudioFormat:   "audio/webm",
		Duration:      legacyNote.Duration,
		Transcription: transcription,
		Tags:          []string{},
		FolderID:      &folderID,
		InsightIDs:    []string{},
		Status:        status,
		CreatedAt:     legacyNote.Timestamp,
		UpdatedAt:     time.Now().UnixMilli(),
	}
	return i.notes.Put(ctx, note)
}

// importSettings carries over the legacy API key when present. Best-effort:
// a malformed settings file is logged and dropped.
func (i *Importer) importSettings(ctx context.Context) {
	if !i.files.Exists(SettingsSourceFile) {
		return
	}
	raw, err := i.files.Read(SettingsSourceFile)
	if err != nil {
		i.logger.Warn("legacy: settings read failed", slog.String("error", err.Error()))
		return
	}
	var s legacySettings
	if err := json.Unmarshal(raw, &s); err != nil {
		i.logger.Warn("legacy: settings parse failed", slog.String("error", err.Error()))
	} else if s.APIKey != "" {
		if err := i.settings.Set(ctx, "apiKey", s.APIKey); err != nil {
			i.logger.Warn("legacy: settings migrate failed", slog.String("error", err.Error()))
			return
		}
	}
	_ = i.files.Delete(SettingsSourceFile)
}

// decodeAudio accepts plain base64 or a data URL.
func decodeAudio(blob string) ([]byte, error) {
	if idx := strings.Index(blob, ";base64,"); idx >= 0 {
		blob = blob[idx+len(";base64,"):]
	}
	audio, err := base64.StdEncoding.DecodeString(blob)
	if err != nil {
		return nil, fmt.Errorf("legacy: decode audio: %w", err)
	}
	if len(audio) == 0 {
		return nil, fmt.Errorf("legacy: empty audio payload")
	}
	return audio, nil
}
