package repo

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/voss/murmur/internal/store"
)

// Settings is an open-ended string-keyed mapping to arbitrary serializable
// values. Not relational; no integrity rules apply.
type Settings struct {
	store *store.Manager
}

type settingRecord struct {
	Key   string          `json:"key"`
	Value json.RawMessage `json:"value"`
}

// Get returns the raw JSON value for key, or nil when absent.
func (r *Settings) Get(ctx context.Context, key string) (json.RawMessage, error) {
	db, err := r.store.Open(ctx)
	if err != nil {
		return nil, err
	}
	rec, err := db.GetByID(ctx, store.CollectionSettings, key)
	if err != nil || rec == nil {
		return nil, err
	}
	var s settingRecord
	if err := json.Unmarshal(rec.Data, &s); err != nil {
		return nil, fmt.Errorf("settings: decode %s: %w", key, err)
	}
	return s.Value, nil
}

// Set stores value under key, replacing any previous value.
func (r *Settings) Set(ctx context.Context, key string, value any) error {
	db, err := r.store.Open(ctx)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("settings: encode %s: %w", key, err)
	}
	data, err := json.Marshal(settingRecord{Key: key, Value: raw})
	if err != nil {
		return fmt.Errorf("settings: encode record %s: %w", key, err)
	}
	return db.Put(ctx, store.CollectionSettings, key, data, nil)
}
