package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"

	"github.com/voss/murmur/internal/apperr"
	"github.com/voss/murmur/internal/models"
	"github.com/voss/murmur/internal/store"
)

const folderIndexName = "name"

// DefaultFolderColor is used when a folder is created without one.
const DefaultFolderColor = "#e84d6e"

// Folders is the folder repository.
type Folders struct {
	store *store.Manager
	notes *Notes
}

// Get returns the folder with the given id, or nil when absent.
func (r *Folders) Get(ctx context.Context, id string) (*models.Folder, error) {
	db, err := r.store.Open(ctx)
	if err != nil {
		return nil, err
	}
	rec, err := db.GetByID(ctx, store.CollectionFolders, id)
	if err != nil || rec == nil {
		return nil, err
	}
	var f models.Folder
	if err := json.Unmarshal(rec.Data, &f); err != nil {
		return nil, fmt.Errorf("folders: decode %s: %w", id, err)
	}
	return &f, nil
}

// GetAll returns every folder sorted by name.
func (r *Folders) GetAll(ctx context.Context) ([]models.Folder, error) {
	db, err := r.store.Open(ctx)
	if err != nil {
		return nil, err
	}
	recs, err := db.GetAll(ctx, store.CollectionFolders)
	if err != nil {
		return nil, err
	}
	out := make([]models.Folder, 0, len(recs))
	for _, rec := range recs {
		var f models.Folder
		if err := json.Unmarshal(rec.Data, &f); err != nil {
			return nil, fmt.Errorf("folders: decode %s: %w", rec.ID, err)
		}
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool {
		return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name)
	})
	return out, nil
}

// Create validates the name and persists a new folder.
func (r *Folders) Create(ctx context.Context, name, color string) (*models.Folder, error) {
	name = strings.TrimSpace(name)
	if err := validation.Validate(name, validation.Required, validation.Length(1, 120)); err != nil {
		return nil, fmt.Errorf("%w: folder name: %v", apperr.ErrValidationFailed, err)
	}
	if color == "" {
		color = DefaultFolderColor
	}
	f := &models.Folder{
		ID:        uuid.NewString(),
		Name:      name,
		Color:     color,
		CreatedAt: nowMillis(),
	}
	if err := r.Put(ctx, f); err != nil {
		return nil, err
	}
	return f, nil
}

// Put upserts the whole folder record.
func (r *Folders) Put(ctx context.Context, f *models.Folder) error {
	db, err := r.store.Open(ctx)
	if err != nil {
		return err
	}
	data, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("folders: encode %s: %w", f.ID, err)
	}
	return db.Put(ctx, store.CollectionFolders, f.ID, data, map[string]string{
		folderIndexName: f.Name,
	})
}

// Delete unassigns every note filed under the folder, then removes the
// folder record. Each unassignment is an independent write: a failure
// surfaces but does not roll back the unassignments already applied.
func (r *Folders) Delete(ctx context.Context, id string) error {
	notes, err := r.notes.GetByFolder(ctx, id)
	if err != nil {
		return err
	}
	for i := range notes {
		n := notes[i]
		n.FolderID = nil
		n.UpdatedAt = nowMillis()
		if err := r.notes.Put(ctx, &n); err != nil {
			return fmt.Errorf("folders: unassign note %s: %w", n.ID, err)
		}
	}
	db, err := r.store.Open(ctx)
	if err != nil {
		return err
	}
	return db.Delete(ctx, store.CollectionFolders, id)
}
