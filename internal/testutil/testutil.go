// Package testutil provides shared test helpers for setting up record
// stores and repositories.
package testutil

import (
	"path/filepath"
	"testing"

	"github.com/voss/murmur/internal/repo"
	"github.com/voss/murmur/internal/store"
)

// TestManager creates a store.Manager backed by a temporary database
// file that is automatically cleaned up.
func TestManager(t *testing.T) *store.Manager {
	t.Helper()
	mgr := store.NewManager(filepath.Join(t.TempDir(), "murmur-test.db"))
	t.Cleanup(func() { mgr.Close() })
	return mgr
}

// TestRepos creates a repository bundle over a temporary store.
func TestRepos(t *testing.T) *repo.Repos {
	t.Helper()
	return repo.New(TestManager(t))
}
