package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"

	"github.com/voss/murmur/internal/apperr"
	"github.com/voss/murmur/internal/models"
	"github.com/voss/murmur/internal/store"
)

const insightIndexUpdated = "updatedAt"

// Insights is the insight repository.
type Insights struct {
	store  *store.Manager
	notes  *Notes
	images *Images
}

// Get returns the insight with the given id, or nil when absent.
func (r *Insights) Get(ctx context.Context, id string) (*models.Insight, error) {
	db, err := r.store.Open(ctx)
	if err != nil {
		return nil, err
	}
	rec, err := db.GetByID(ctx, store.CollectionInsights, id)
	if err != nil || rec == nil {
		return nil, err
	}
	return decodeInsight(rec.Data)
}

// GetAll returns every insight sorted by name.
func (r *Insights) GetAll(ctx context.Context) ([]models.Insight, error) {
	db, err := r.store.Open(ctx)
	if err != nil {
		return nil, err
	}
	recs, err := db.GetAll(ctx, store.CollectionInsights)
	if err != nil {
		return nil, err
	}
	out := make([]models.Insight, 0, len(recs))
	for _, rec := range recs {
		ins, err := decodeInsight(rec.Data)
		if err != nil {
			return nil, err
		}
		out = append(out, *ins)
	}
	sort.Slice(out, func(i, j int) bool {
		return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name)
	})
	return out, nil
}

// Create validates the name and persists a new empty insight.
func (r *Insights) Create(ctx context.Context, name string, noteIDs []string) (*models.Insight, error) {
	name = strings.TrimSpace(name)
	if err := validation.Validate(name, validation.Required, validation.Length(1, 120)); err != nil {
		return nil, fmt.Errorf("%w: insight name: %v", apperr.ErrValidationFailed, err)
	}
	now := nowMillis()
	ins := &models.Insight{
		ID:        uuid.NewString(),
		Name:      name,
		NoteIDs:   nonNilSlice(noteIDs),
		ImageIDs:  []string{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := r.Put(ctx, ins); err != nil {
		return nil, err
	}
	// Keep the reference symmetric: each member note records the insight id.
	for _, noteID := range ins.NoteIDs {
		n, err := r.notes.Get(ctx, noteID)
		if err != nil {
			return nil, err
		}
		if n == nil {
			continue
		}
		if !containsString(n.InsightIDs, ins.ID) {
			n.InsightIDs = append(n.InsightIDs, ins.ID)
			n.UpdatedAt = nowMillis()
			if err := r.notes.Put(ctx, n); err != nil {
				return nil, err
			}
		}
	}
	return ins, nil
}

// Put upserts the whole insight record.
func (r *Insights) Put(ctx context.Context, ins *models.Insight) error {
	db, err := r.store.Open(ctx)
	if err != nil {
		return err
	}
	ins.NoteIDs = nonNilSlice(ins.NoteIDs)
	ins.ImageIDs = nonNilSlice(ins.ImageIDs)
	data, err := json.Marshal(ins)
	if err != nil {
		return fmt.Errorf("insights: encode %s: %w", ins.ID, err)
	}
	return db.Put(ctx, store.CollectionInsights, ins.ID, data, map[string]string{
		insightIndexUpdated: strconv.FormatInt(ins.UpdatedAt, 10),
	})
}

// Delete removes the insight id from every referenced note, deletes the
// insight's images, then removes the insight record. The steps are
// sequential independent writes; a failure partway through surfaces the
// error with earlier steps left applied.
func (r *Insights) Delete(ctx context.Context, id string) error {
	ins, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	if ins != nil {
		for _, noteID := range ins.NoteIDs {
			n, err := r.notes.Get(ctx, noteID)
			if err != nil {
				return fmt.Errorf("insights: unlink note %s: %w", noteID, err)
			}
			if n == nil {
				continue // dangling reference, nothing to unlink
			}
			n.InsightIDs = removeString(n.InsightIDs, id)
			n.UpdatedAt = nowMillis()
			if err := r.notes.Put(ctx, n); err != nil {
				return fmt.Errorf("insights: unlink note %s: %w", noteID, err)
			}
		}
		if err := r.images.DeleteByInsight(ctx, id); err != nil {
			return fmt.Errorf("insights: delete images: %w", err)
		}
	}
	db, err := r.store.Open(ctx)
	if err != nil {
		return err
	}
	return db.Delete(ctx, store.CollectionInsights, id)
}

// SetNotes replaces the insight's membership and keeps the note-side
// references symmetric: removed notes drop the insight id, added notes gain
// it. Ids that do not resolve are recorded on the insight but skipped on
// the note side.
func (r *Insights) SetNotes(ctx context.Context, ins *models.Insight, noteIDs []string) error {
	next := make(map[string]struct{}, len(noteIDs))
	for _, id := range noteIDs {
		next[id] = struct{}{}
	}

	for _, noteID := range ins.NoteIDs {
		if _, keep := next[noteID]; keep {
			continue
		}
		n, err := r.notes.Get(ctx, noteID)
		if err != nil {
			return err
		}
		if n == nil {
			continue
		}
		n.InsightIDs = removeString(n.InsightIDs, ins.ID)
		n.UpdatedAt = nowMillis()
		if err := r.notes.Put(ctx, n); err != nil {
			return err
		}
	}

	for _, noteID := range noteIDs {
		n, err := r.notes.Get(ctx, noteID)
		if err != nil {
			return err
		}
		if n == nil || containsString(n.InsightIDs, ins.ID) {
			continue
		}
		n.InsightIDs = append(n.InsightIDs, ins.ID)
		n.UpdatedAt = nowMillis()
		if err := r.notes.Put(ctx, n); err != nil {
			return err
		}
	}

	ins.NoteIDs = nonNilSlice(noteIDs)
	ins.UpdatedAt = nowMillis()
	return r.Put(ctx, ins)
}

// ResolveNotes returns the notes referenced by the insight, skipping ids
// that no longer resolve. Deleting a note does not clean up reverse
// references, so dangling ids are expected here.
func (r *Insights) ResolveNotes(ctx context.Context, ins *models.Insight) ([]models.VoiceNote, error) {
	out := make([]models.VoiceNote, 0, len(ins.NoteIDs))
	for _, noteID := range ins.NoteIDs {
		n, err := r.notes.Get(ctx, noteID)
		if err != nil {
			return nil, err
		}
		if n == nil {
			continue
		}
		out = append(out, *n)
	}
	return out, nil
}

func decodeInsight(data []byte) (*models.Insight, error) {
	var ins models.Insight
	if err := json.Unmarshal(data, &ins); err != nil {
		return nil, fmt.Errorf("insights: decode: %w", err)
	}
	return &ins, nil
}

func containsString(s []string, v string) bool {
	for _, x := range s {
		if x == v {
			return true
		}
	}
	return false
}

func removeString(s []string, v string) []string {
	out := make([]string, 0, len(s))
	for _, x := range s {
		if x != v {
			out = append(out, x)
		}
	}
	return out
}
