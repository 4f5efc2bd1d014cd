// Package repo provides the typed entity repositories built on the record
// store, including the cascade rules that keep cross-entity references
// valid on the delete paths.
//
// Cascades are best-effort sequential single-record writes, not one atomic
// transaction: a failure partway through surfaces the error and leaves the
// already-applied steps in place.
package repo

import (
	"time"

	"github.com/voss/murmur/internal/store"
)

// Repos bundles one repository per entity, all sharing the store handle.
type Repos struct {
	Notes    *Notes
	Folders  *Folders
	Insights *Insights
	Images   *Images
	Settings *Settings
}

// New wires the repositories over the shared store manager.
func New(mgr *store.Manager) *Repos {
	notes := &Notes{store: mgr}
	images := &Images{store: mgr}
	return &Repos{
		Notes:    notes,
		Folders:  &Folders{store: mgr, notes: notes},
		Insights: &Insights{store: mgr, notes: notes, images: images},
		Images:   images,
		Settings: &Settings{store: mgr},
	}
}

func nowMillis() int64 {
	return time.Now().UnixMilli()
}

func nonNilSlice[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
