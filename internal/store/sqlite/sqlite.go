// Package sqlite implements store.Store on an embedded SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/cortexmem/cortex/internal/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS memories (
	id             TEXT PRIMARY KEY,
	user_id        TEXT NOT NULL DEFAULT '',
	content        TEXT NOT NULL,
	primary_sector TEXT NOT NULL,
	tags           TEXT,
	meta           TEXT,
	created_at     INTEGER NOT NULL,
	updated_at     INTEGER NOT NULL,
	last_seen_at   INTEGER NOT NULL,
	salience       REAL NOT NULL DEFAULT 0.5,
	decay_lambda   REAL NOT NULL,
	mean_vec       BLOB,
	cold           INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_memories_user ON memories(user_id);
CREATE INDEX IF NOT EXISTS idx_memories_user_sector ON memories(user_id, primary_sector);

CREATE TABLE IF NOT EXISTS vectors (
	memory_id TEXT NOT NULL REFERENCES memories(id) ON DELETE CASCADE,
	sector    TEXT NOT NULL,
	vec       BLOB NOT NULL,
	dim       INTEGER NOT NULL,
	PRIMARY KEY (memory_id, sector)
);
CREATE INDEX IF NOT EXISTS idx_vectors_sector ON vectors(sector);

CREATE TABLE IF NOT EXISTS waypoints (
	src_id     TEXT PRIMARY KEY REFERENCES memories(id) ON DELETE CASCADE,
	dst_id     TEXT NOT NULL REFERENCES memories(id) ON DELETE CASCADE,
	weight     REAL NOT NULL,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_waypoints_dst ON waypoints(dst_id);

CREATE TABLE IF NOT EXISTS embed_logs (
	id           TEXT PRIMARY KEY,
	ts           INTEGER NOT NULL,
	provider     TEXT NOT NULL,
	sector       TEXT NOT NULL,
	input_tokens INTEGER NOT NULL,
	dim          INTEGER NOT NULL,
	ok           INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_embed_logs_ts ON embed_logs(ts);
`

type sqliteStore struct {
	db *sql.DB
}

// New opens (or creates) the database at path and applies the schema.
func New(path string) (store.Store, error) {
	db, err := Open(path)
	if err != nil {
		return nil, err
	}
	return NewWithDB(db)
}

// NewWithDB wraps an existing connection (used by the factory and tests).
func NewWithDB(db *sql.DB) (store.Store, error) {
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &sqliteStore{db: db}, nil
}

func (s *sqliteStore) Memories() store.Memories   { return &memories{db: s.db} }
func (s *sqliteStore) Vectors() store.Vectors     { return &vectors{db: s.db} }
func (s *sqliteStore) Waypoints() store.Waypoints { return &waypoints{db: s.db} }
func (s *sqliteStore) EmbedLogs() store.EmbedLogs { return &embedLogs{db: s.db} }

func (s *sqliteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *sqliteStore) Close() error { return s.db.Close() }
