package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/voss/murmur/internal/models"
	"github.com/voss/murmur/internal/store"
)

// Index names on the notes collection.
const (
	noteIndexFolder  = "folderId"
	noteIndexStatus  = "status"
	noteIndexCreated = "createdAt"
)

// Notes is the voice note repository.
type Notes struct {
	store *store.Manager
}

// Get returns the note with the given id, or nil when absent.
func (r *Notes) Get(ctx context.Context, id string) (*models.VoiceNote, error) {
	db, err := r.store.Open(ctx)
	if err != nil {
		return nil, err
	}
	rec, err := db.GetByID(ctx, store.CollectionNotes, id)
	if err != nil || rec == nil {
		return nil, err
	}
	return decodeNote(rec.Data)
}

// GetAll returns every note, order unspecified.
func (r *Notes) GetAll(ctx context.Context) ([]models.VoiceNote, error) {
	db, err := r.store.Open(ctx)
	if err != nil {
		return nil, err
	}
	recs, err := db.GetAll(ctx, store.CollectionNotes)
	if err != nil {
		return nil, err
	}
	return decodeNotes(recs)
}

// GetByFolder returns the notes filed under folderID, via the folder index.
func (r *Notes) GetByFolder(ctx context.Context, folderID string) ([]models.VoiceNote, error) {
	db, err := r.store.Open(ctx)
	if err != nil {
		return nil, err
	}
	recs, err := db.GetAllByIndex(ctx, store.CollectionNotes, noteIndexFolder, folderID)
	if err != nil {
		return nil, err
	}
	return decodeNotes(recs)
}

// Search matches query case-insensitively against title, transcription, and
// tags, newest-created-first.
func (r *Notes) Search(ctx context.Context, query string) ([]models.VoiceNote, error) {
	all, err := r.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	lower := strings.ToLower(query)
	var out []models.VoiceNote
	for _, n := range all {
		if noteMatches(&n, lower) {
			out = append(out, n)
		}
	}
	sortNewestFirst(out)
	return out, nil
}

// GetRecent returns the n newest notes. n <= 0 defaults to 5.
func (r *Notes) GetRecent(ctx context.Context, n int) ([]models.VoiceNote, error) {
	if n <= 0 {
		n = 5
	}
	all, err := r.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	sortNewestFirst(all)
	if len(all) > n {
		all = all[:n]
	}
	return all, nil
}

// Put upserts the whole note record. The record is replaced entirely; there
// is no field-level merge, so the last writer wins in full.
func (r *Notes) Put(ctx context.Context, n *models.VoiceNote) error {
	if !n.Status.Valid() {
		return fmt.Errorf("notes: put %s: invalid status %q", n.ID, n.Status)
	}
	db, err := r.store.Open(ctx)
	if err != nil {
		return err
	}
	n.Tags = nonNilSlice(n.Tags)
	n.InsightIDs = nonNilSlice(n.InsightIDs)
	data, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("notes: encode %s: %w", n.ID, err)
	}
	return db.Put(ctx, store.CollectionNotes, n.ID, data, noteIndex(n))
}

// Delete removes the note and its audio payload. Reverse references in
// Insight.NoteIDs are left dangling and filtered defensively at read time.
func (r *Notes) Delete(ctx context.Context, id string) error {
	db, err := r.store.Open(ctx)
	if err != nil {
		return err
	}
	return db.Delete(ctx, store.CollectionNotes, id)
}

func noteIndex(n *models.VoiceNote) map[string]string {
	folder := ""
	if n.FolderID != nil {
		folder = *n.FolderID
	}
	return map[string]string{
		noteIndexFolder:  folder,
		noteIndexStatus:  string(n.Status),
		noteIndexCreated: strconv.FormatInt(n.CreatedAt, 10),
	}
}

func noteMatches(n *models.VoiceNote, lowerQuery string) bool {
	if strings.Contains(strings.ToLower(n.Title), lowerQuery) {
		return true
	}
	if n.Transcription != nil && strings.Contains(strings.ToLower(*n.Transcription), lowerQuery) {
		return true
	}
	for _, t := range n.Tags {
		if strings.Contains(strings.ToLower(t), lowerQuery) {
			return true
		}
	}
	return false
}

func sortNewestFirst(notes []models.VoiceNote) {
	sort.Slice(notes, func(i, j int) bool {
		return notes[i].CreatedAt > notes[j].CreatedAt
	})
}

func decodeNote(data []byte) (*models.VoiceNote, error) {
	var n models.VoiceNote
	if err := json.Unmarshal(data, &n); err != nil {
		return nil, fmt.Errorf("notes: decode: %w", err)
	}
	return &n, nil
}

func decodeNotes(recs []store.Record) ([]models.VoiceNote, error) {
	out := make([]models.VoiceNote, 0, len(recs))
	for _, rec := range recs {
		n, err := decodeNote(rec.Data)
		if err != nil {
			return nil, err
		}
		out = append(out, *n)
	}
	return out, nil
}
