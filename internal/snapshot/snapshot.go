// Package snapshot persists one durable record per surface in SQLite.
// Records hold the surface's serialized fields as raw JSON so the package
// stays agnostic of the in-memory types above it.
package snapshot

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Schema contains the DDL for the snapshot table.
const Schema = `
CREATE TABLE IF NOT EXISTS surfaces (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL DEFAULT '',
    device_id TEXT NOT NULL DEFAULT '',
    size_json TEXT NOT NULL,
    components_json TEXT NOT NULL,
    data_model_json TEXT NOT NULL,
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_surfaces_created ON surfaces(created_at);
`

// Record is the durable snapshot of one surface.
type Record struct {
	ID         string
	Name       string
	DeviceID   string
	Size       json.RawMessage
	Components json.RawMessage
	DataModel  json.RawMessage
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Store reads and writes surface snapshots.
type Store struct {
	db *sql.DB
}

// New wraps a database in a snapshot Store.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Init applies the snapshot schema.
func (s *Store) Init() error {
	_, err := s.db.Exec(Schema)
	return err
}

// Save upserts a surface record.
func (s *Store) Save(ctx context.Context, r *Record) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO surfaces (id, name, device_id, size_json, components_json, data_model_json, created_at, updated_at)
		VALUES (?,?,?,?,?,?,?,?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			device_id = excluded.device_id,
			size_json = excluded.size_json,
			components_json = excluded.components_json,
			data_model_json = excluded.data_model_json,
			updated_at = excluded.updated_at`,
		r.ID, r.Name, r.DeviceID, string(r.Size), string(r.Components), string(r.DataModel),
		r.CreatedAt.UnixMilli(), r.UpdatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("save surface %s: %w", r.ID, err)
	}
	return nil
}

// Delete removes a surface record. Deleting an absent id is not an error.
func (s *Store) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM surfaces WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete surface %s: %w", id, err)
	}
	return nil
}

// LoadAll returns every persisted record, oldest first.
func (s *Store) LoadAll(ctx context.Context) ([]*Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, device_id, size_json, components_json, data_model_json, created_at, updated_at
		FROM surfaces ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("load surfaces: %w", err)
	}
	defer rows.Close()

	var out []*Record
	for rows.Next() {
		var r Record
		var size, components, dataModel string
		var createdAt, updatedAt int64
		if err := rows.Scan(&r.ID, &r.Name, &r.DeviceID, &size, &components, &dataModel, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan surface: %w", err)
		}
		r.Size = json.RawMessage(size)
		r.Components = json.RawMessage(components)
		r.DataModel = json.RawMessage(dataModel)
		r.CreatedAt = time.UnixMilli(createdAt)
		r.UpdatedAt = time.UnixMilli(updatedAt)
		out = append(out, &r)
	}
	return out, rows.Err()
}
