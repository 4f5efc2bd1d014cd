package repo

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/voss/murmur/internal/apperr"
	"github.com/voss/murmur/internal/models"
	"github.com/voss/murmur/internal/store"
)

const imageIndexInsight = "insightId"

// Images is the insight image repository. Each image belongs to exactly one
// insight and owns its binary payload.
type Images struct {
	store *store.Manager
}

// Get returns the image with the given id, or nil when absent.
func (r *Images) Get(ctx context.Context, id string) (*models.InsightImage, error) {
	db, err := r.store.Open(ctx)
	if err != nil {
		return nil, err
	}
	rec, err := db.GetByID(ctx, store.CollectionImages, id)
	if err != nil || rec == nil {
		return nil, err
	}
	var img models.InsightImage
	if err := json.Unmarshal(rec.Data, &img); err != nil {
		return nil, fmt.Errorf("images: decode %s: %w", id, err)
	}
	return &img, nil
}

// GetByInsight returns every image attached to the insight.
func (r *Images) GetByInsight(ctx context.Context, insightID string) ([]models.InsightImage, error) {
	db, err := r.store.Open(ctx)
	if err != nil {
		return nil, err
	}
	recs, err := db.GetAllByIndex(ctx, store.CollectionImages, imageIndexInsight, insightID)
	if err != nil {
		return nil, err
	}
	out := make([]models.InsightImage, 0, len(recs))
	for _, rec := range recs {
		var img models.InsightImage
		if err := json.Unmarshal(rec.Data, &img); err != nil {
			return nil, fmt.Errorf("images: decode %s: %w", rec.ID, err)
		}
		out = append(out, img)
	}
	return out, nil
}

// Put upserts the whole image record.
func (r *Images) Put(ctx context.Context, img *models.InsightImage) error {
	if img.InsightID == "" {
		return fmt.Errorf("%w: image requires an insight id", apperr.ErrValidationFailed)
	}
	if len(img.Payload) == 0 {
		return fmt.Errorf("%w: image payload is empty", apperr.ErrValidationFailed)
	}
	db, err := r.store.Open(ctx)
	if err != nil {
		return err
	}
	data, err := json.Marshal(img)
	if err != nil {
		return fmt.Errorf("images: encode %s: %w", img.ID, err)
	}
	return db.Put(ctx, store.CollectionImages, img.ID, data, map[string]string{
		imageIndexInsight: img.InsightID,
	})
}

// Delete removes the image record; an absent id is a no-op.
func (r *Images) Delete(ctx context.Context, id string) error {
	db, err := r.store.Open(ctx)
	if err != nil {
		return err
	}
	return db.Delete(ctx, store.CollectionImages, id)
}

// DeleteByInsight removes every image attached to the insight. Used by the
// insight delete cascade.
func (r *Images) DeleteByInsight(ctx context.Context, insightID string) error {
	imgs, err := r.GetByInsight(ctx, insightID)
	if err != nil {
		return err
	}
	for _, img := range imgs {
		if err := r.Delete(ctx, img.ID); err != nil {
			return err
		}
	}
	return nil
}
