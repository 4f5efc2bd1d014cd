package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/voss/murmur/internal/apperr"
)

// Record is one stored row: an opaque id plus the JSON-encoded entity.
type Record struct {
	ID   string
	Data []byte
}

// GetAll returns every record in the collection, order unspecified.
func (db *DB) GetAll(ctx context.Context, collection string) ([]Record, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, data FROM records WHERE collection = ?`, collection)
	if err != nil {
		return nil, fmt.Errorf("store: get all %s: %w", collection, err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

// GetByID returns the record with the given id, or nil when absent.
func (db *DB) GetByID(ctx context.Context, collection, id string) (*Record, error) {
	var rec Record
	err := db.conn.QueryRowContext(ctx,
		`SELECT id, data FROM records WHERE collection = ? AND id = ?`,
		collection, id).Scan(&rec.ID, &rec.Data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: get %s/%s: %w", collection, id, err)
	}
	return &rec, nil
}

// GetAllByIndex returns records whose indexed field equals value.
func (db *DB) GetAllByIndex(ctx context.Context, collection, idx, value string) ([]Record, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT r.id, r.data
		FROM records r
		JOIN record_index i ON i.collection = r.collection AND i.id = r.id
		WHERE r.collection = ? AND i.idx = ? AND i.value = ?
	`, collection, idx, value)
	if err != nil {
		return nil, fmt.Errorf("store: get by index %s.%s: %w", collection, idx, err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

// Put upserts the whole record keyed by id and replaces its secondary index
// rows, all in one transaction. Two identical puts leave identical state.
func (db *DB) Put(ctx context.Context, collection, id string, data []byte, index map[string]string) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin: %v", apperr.ErrTransactionFailed, err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	_, err = tx.ExecContext(ctx, `
		INSERT INTO records (collection, id, data)
		VALUES (?, ?, ?)
		ON CONFLICT(collection, id) DO UPDATE SET data = excluded.data
	`, collection, id, data)
	if err != nil {
		return fmt.Errorf("%w: upsert %s/%s: %v", apperr.ErrTransactionFailed, collection, id, err)
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM record_index WHERE collection = ? AND id = ?`, collection, id); err != nil {
		return fmt.Errorf("%w: clear index %s/%s: %v", apperr.ErrTransactionFailed, collection, id, err)
	}
	if len(index) > 0 {
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO record_index (collection, idx, value, id) VALUES (?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("%w: prepare index insert: %v", apperr.ErrTransactionFailed, err)
		}
		defer stmt.Close()
		for idx, value := range index {
			if _, err := stmt.ExecContext(ctx, collection, idx, value, id); err != nil {
				return fmt.Errorf("%w: insert index %s.%s: %v", apperr.ErrTransactionFailed, collection, idx, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit %s/%s: %v", apperr.ErrTransactionFailed, collection, id, err)
	}
	return nil
}

// Delete removes the record and its index rows. An absent id is a no-op.
func (db *DB) Delete(ctx context.Context, collection, id string) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin: %v", apperr.ErrTransactionFailed, err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM record_index WHERE collection = ? AND id = ?`, collection, id); err != nil {
		return fmt.Errorf("%w: delete index %s/%s: %v", apperr.ErrTransactionFailed, collection, id, err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM records WHERE collection = ? AND id = ?`, collection, id); err != nil {
		return fmt.Errorf("%w: delete record %s/%s: %v", apperr.ErrTransactionFailed, collection, id, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit delete %s/%s: %v", apperr.ErrTransactionFailed, collection, id, err)
	}
	return nil
}

func scanRecords(rows *sql.Rows) ([]Record, error) {
	var out []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.ID, &rec.Data); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
