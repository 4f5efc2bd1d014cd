package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/voss/murmur/internal/apperr"
)

func testDB(t *testing.T) (*Manager, *DB) {
	t.Helper()
	mgr := NewManager(filepath.Join(t.TempDir(), "test.db"))
	t.Cleanup(func() { mgr.Close() })

	db, err := mgr.Open(context.Background())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return mgr, db
}

func TestPutAndGetByID(t *testing.T) {
	_, db := testDB(t)
	ctx := context.Background()

	if err := db.Put(ctx, CollectionNotes, "n1", []byte(`{"id":"n1"}`), nil); err != nil {
		t.Fatalf("Put: %v", err)
	}

	rec, err := db.GetByID(ctx, CollectionNotes, "n1")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if rec == nil || string(rec.Data) != `{"id":"n1"}` {
		t.Errorf("record = %+v", rec)
	}
}

func TestGetByIDAbsent(t *testing.T) {
	_, db := testDB(t)

	rec, err := db.GetByID(context.Background(), CollectionNotes, "nope")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if rec != nil {
		t.Errorf("absent id should yield nil, got %+v", rec)
	}
}

func TestPutIsIdempotent(t *testing.T) {
	_, db := testDB(t)
	ctx := context.Background()

	idx := map[string]string{"folderId": "f1"}
	for i := 0; i < 2; i++ {
		if err := db.Put(ctx, CollectionNotes, "n1", []byte(`{"v":1}`), idx); err != nil {
			t.Fatalf("Put #%d: %v", i, err)
		}
	}

	recs, err := db.GetAll(ctx, CollectionNotes)
	if err != nil {
		t.Fatalf("GetAll: %v", err)
	}
	if len(recs) != 1 {
		t.Errorf("records = %d, want 1", len(recs))
	}

	byIdx, err := db.GetAllByIndex(ctx, CollectionNotes, "folderId", "f1")
	if err != nil {
		t.Fatalf("GetAllByIndex: %v", err)
	}
	if len(byIdx) != 1 {
		t.Errorf("index rows resolved = %d, want 1", len(byIdx))
	}
}

func TestPutReplacesIndexRows(t *testing.T) {
	_, db := testDB(t)
	ctx := context.Background()

	if err := db.Put(ctx, CollectionNotes, "n1", []byte(`{}`), map[string]string{"folderId": "f1"}); err != nil {
		t.Fatal(err)
	}
	if err := db.Put(ctx, CollectionNotes, "n1", []byte(`{}`), map[string]string{"folderId": "f2"}); err != nil {
		t.Fatal(err)
	}

	old, _ := db.GetAllByIndex(ctx, CollectionNotes, "folderId", "f1")
	if len(old) != 0 {
		t.Errorf("stale index value still resolves %d records", len(old))
	}
	cur, _ := db.GetAllByIndex(ctx, CollectionNotes, "folderId", "f2")
	if len(cur) != 1 {
		t.Errorf("new index value resolves %d records, want 1", len(cur))
	}
}

func TestGetAllByIndexFiltersCollection(t *testing.T) {
	_, db := testDB(t)
	ctx := context.Background()

	_ = db.Put(ctx, CollectionNotes, "n1", []byte(`{}`), map[string]string{"name": "x"})
	_ = db.Put(ctx, CollectionFolders, "f1", []byte(`{}`), map[string]string{"name": "x"})

	recs, err := db.GetAllByIndex(ctx, CollectionNotes, "name", "x")
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 1 || recs[0].ID != "n1" {
		t.Errorf("cross-collection leak: %+v", recs)
	}
}

func TestDeleteAbsentIsNoop(t *testing.T) {
	_, db := testDB(t)
	if err := db.Delete(context.Background(), CollectionNotes, "nope"); err != nil {
		t.Errorf("Delete absent: %v", err)
	}
}

func TestDeleteRemovesIndexRows(t *testing.T) {
	_, db := testDB(t)
	ctx := context.Background()

	_ = db.Put(ctx, CollectionNotes, "n1", []byte(`{}`), map[string]string{"status": "ready"})
	if err := db.Delete(ctx, CollectionNotes, "n1"); err != nil {
		t.Fatal(err)
	}

	recs, _ := db.GetAllByIndex(ctx, CollectionNotes, "status", "ready")
	if len(recs) != 0 {
		t.Errorf("index rows survived delete: %+v", recs)
	}
}

func TestWriteFailuresAreTransactionFailed(t *testing.T) {
	_, db := testDB(t)
	ctx := context.Background()

	_ = db.Put(ctx, CollectionNotes, "n1", []byte(`{}`), map[string]string{"status": "ready"})
	if err := db.conn.Close(); err != nil {
		t.Fatal(err)
	}

	err := db.Put(ctx, CollectionNotes, "n1", []byte(`{}`), nil)
	if !errors.Is(err, apperr.ErrTransactionFailed) {
		t.Errorf("Put on broken handle: err = %v, want transaction failure", err)
	}
	err = db.Delete(ctx, CollectionNotes, "n1")
	if !errors.Is(err, apperr.ErrTransactionFailed) {
		t.Errorf("Delete on broken handle: err = %v, want transaction failure", err)
	}
}

func TestOpenIsIdempotent(t *testing.T) {
	mgr, db := testDB(t)

	again, err := mgr.Open(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if again != db {
		t.Error("second Open returned a different handle")
	}
}

func TestDestroyThenReopen(t *testing.T) {
	mgr, db := testDB(t)
	ctx := context.Background()

	if err := db.Put(ctx, CollectionNotes, "n1", []byte(`{}`), nil); err != nil {
		t.Fatal(err)
	}
	if err := mgr.Destroy(ctx); err != nil {
		t.Fatalf("Destroy: %v", err)
	}

	fresh, err := mgr.Open(ctx)
	if err != nil {
		t.Fatalf("Open after destroy: %v", err)
	}
	recs, err := fresh.GetAll(ctx, CollectionNotes)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 0 {
		t.Errorf("destroyed store still has %d records", len(recs))
	}
}

func TestCloseThenReopenKeepsData(t *testing.T) {
	mgr, db := testDB(t)
	ctx := context.Background()

	if err := db.Put(ctx, CollectionNotes, "n1", []byte(`{}`), nil); err != nil {
		t.Fatal(err)
	}
	if err := mgr.Close(); err != nil {
		t.Fatal(err)
	}

	reopened, err := mgr.Open(ctx)
	if err != nil {
		t.Fatal(err)
	}
	rec, err := reopened.GetByID(ctx, CollectionNotes, "n1")
	if err != nil {
		t.Fatal(err)
	}
	if rec == nil {
		t.Error("record lost across close/reopen")
	}
}
