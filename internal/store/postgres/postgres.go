// Package postgres implements store.Store on PostgreSQL via the pgx
// stdlib driver, for deployments that outgrow the embedded database.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/cortexmem/cortex/internal/model"
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
	created_at     BIGINT NOT NULL,
	updated_at     BIGINT NOT NULL,
	last_seen_at   BIGINT NOT NULL,
	salience       DOUBLE PRECISION NOT NULL DEFAULT 0.5,
	decay_lambda   DOUBLE PRECISION NOT NULL,
	mean_vec       BYTEA,
	cold           BOOLEAN NOT NULL DEFAULT FALSE
);
CREATE INDEX IF NOT EXISTS idx_memories_user ON memories(user_id);
CREATE INDEX IF NOT EXISTS idx_memories_user_sector ON memories(user_id, primary_sector);

CREATE TABLE IF NOT EXISTS vectors (
	memory_id TEXT NOT NULL REFERENCES memories(id) ON DELETE CASCADE,
	sector    TEXT NOT NULL,
	vec       BYTEA NOT NULL,
	dim       INTEGER NOT NULL,
	PRIMARY KEY (memory_id, sector)
);
CREATE INDEX IF NOT EXISTS idx_vectors_sector ON vectors(sector);

CREATE TABLE IF NOT EXISTS waypoints (
	src_id     TEXT PRIMARY KEY REFERENCES memories(id) ON DELETE CASCADE,
	dst_id     TEXT NOT NULL REFERENCES memories(id) ON DELETE CASCADE,
	weight     DOUBLE PRECISION NOT NULL,
	created_at BIGINT NOT NULL,
	updated_at BIGINT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_waypoints_dst ON waypoints(dst_id);

CREATE TABLE IF NOT EXISTS embed_logs (
	id           TEXT PRIMARY KEY,
	ts           BIGINT NOT NULL,
	provider     TEXT NOT NULL,
	sector       TEXT NOT NULL,
	input_tokens INTEGER NOT NULL,
	dim          INTEGER NOT NULL,
	ok           BOOLEAN NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_embed_logs_ts ON embed_logs(ts);
`

// Open connects with the pgx stdlib driver and verifies connectivity.
func Open(dsn string) (*sql.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres DSN is empty")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// New opens a connection and applies the schema.
func New(dsn string) (store.Store, error) {
	db, err := Open(dsn)
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
	return &pgStore{db: db}, nil
}

type pgStore struct{ db *sql.DB }

func (s *pgStore) Memories() store.Memories   { return &memories{db: s.db} }
func (s *pgStore) Vectors() store.Vectors     { return &vectors{db: s.db} }
func (s *pgStore) Waypoints() store.Waypoints { return &waypoints{db: s.db} }
func (s *pgStore) EmbedLogs() store.EmbedLogs { return &embedLogs{db: s.db} }

func (s *pgStore) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }
func (s *pgStore) Close() error                   { return s.db.Close() }

// --- Memories ---

type memories struct{ db *sql.DB }

const memoryColumns = `id, user_id, content, primary_sector, tags, meta,
	created_at, updated_at, last_seen_at, salience, decay_lambda, mean_vec, cold`

func (r *memories) Insert(ctx context.Context, m *model.Memory, vecs []*model.Vector, edges []*model.Waypoint) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", model.ErrStoreFailed, err)
	}
	defer func() { _ = tx.Rollback() }()

	var exists int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM memories WHERE id = $1`, m.ID).Scan(&exists); err != nil {
		return fmt.Errorf("%w: %v", model.ErrStoreFailed, err)
	}
	if exists > 0 {
		return fmt.Errorf("memory %s: %w", m.ID, model.ErrConflict)
	}

	tags, meta, err := encodeTagsMeta(m)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO memories (`+memoryColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		m.ID, m.UserID, m.Content, string(m.PrimarySector), tags, meta,
		m.CreatedAt, m.UpdatedAt, m.LastSeenAt, m.Salience, m.DecayLambda,
		store.EncodeVector(m.MeanVec), m.Cold)
	if err != nil {
		return fmt.Errorf("%w: %v", model.ErrStoreFailed, err)
	}

	for _, v := range vecs {
		_, err = tx.ExecContext(ctx, `INSERT INTO vectors (memory_id, sector, vec, dim) VALUES ($1,$2,$3,$4)`,
			v.MemoryID, string(v.Sector), store.EncodeVector(v.Vec), v.Dim)
		if err != nil {
			return fmt.Errorf("%w: %v", model.ErrStoreFailed, err)
		}
	}

	for _, e := range edges {
		if err := upsertWaypointTx(ctx, tx, e.SrcID, e.DstID, e.Weight, e.CreatedAt); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: %v", model.ErrStoreFailed, err)
	}
	return nil
}

func (r *memories) Get(ctx context.Context, id string) (*model.Memory, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+memoryColumns+` FROM memories WHERE id = $1`, id)
	return scanMemory(row)
}

func (r *memories) List(ctx context.Context, req model.ListRequest) (*model.ListPage, error) {
	limit := req.Limit
	if limit <= 0 {
		limit = 50
	}

	q := `SELECT ` + memoryColumns + ` FROM memories WHERE TRUE`
	var args []interface{}
	n := 0
	arg := func(v interface{}) string {
		n++
		args = append(args, v)
		return fmt.Sprintf("$%d", n)
	}
	if req.UserID != "" {
		q += ` AND user_id = ` + arg(req.UserID)
	}
	if req.Sector != "" {
		q += ` AND primary_sector = ` + arg(string(req.Sector))
	}
	if req.Cursor != "" {
		q += ` AND id > ` + arg(req.Cursor)
	}
	q += ` ORDER BY id ASC LIMIT ` + arg(limit+1)

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrStoreFailed, err)
	}
	defer rows.Close()

	var out []*model.Memory
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			return nil, err
		}
		if req.Tag != "" && !hasTag(m, req.Tag) {
			continue
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrStoreFailed, err)
	}

	page := &model.ListPage{}
	if len(out) > limit {
		out = out[:limit]
		page.NextCursor = out[limit-1].ID
	}
	page.Memories = out
	return page, nil
}

func (r *memories) All(ctx context.Context) ([]*model.Memory, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+memoryColumns+` FROM memories ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrStoreFailed, err)
	}
	defer rows.Close()

	var out []*model.Memory
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *memories) MeanVecs(ctx context.Context, userID string) ([]store.MeanRef, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, primary_sector, mean_vec FROM memories WHERE user_id = $1`, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrStoreFailed, err)
	}
	defer rows.Close()

	var out []store.MeanRef
	for rows.Next() {
		var ref store.MeanRef
		var sector string
		var blob []byte
		if err := rows.Scan(&ref.ID, &sector, &blob); err != nil {
			return nil, fmt.Errorf("%w: %v", model.ErrStoreFailed, err)
		}
		ref.PrimarySector = model.Sector(sector)
		if len(blob) > 0 {
			if ref.MeanVec, err = store.DecodeVector(blob); err != nil {
				return nil, err
			}
		}
		out = append(out, ref)
	}
	return out, rows.Err()
}

func (r *memories) UpdateSalience(ctx context.Context, id string, salience float64, lastSeenAt int64) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE memories SET salience = $1, last_seen_at = $2, updated_at = $3 WHERE id = $4`,
		salience, lastSeenAt, time.Now().UnixMilli(), id)
	return oneRow(res, err, id)
}

func (r *memories) ReplaceContent(ctx context.Context, id, fingerprint string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE memories SET content = $1, cold = TRUE, updated_at = $2 WHERE id = $3`,
		fingerprint, time.Now().UnixMilli(), id)
	return oneRow(res, err, id)
}

func (r *memories) RestoreHeat(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE memories SET cold = FALSE, updated_at = $1 WHERE id = $2`,
		time.Now().UnixMilli(), id)
	return oneRow(res, err, id)
}

func (r *memories) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM memories WHERE id = $1`, id)
	return oneRow(res, err, id)
}

func (r *memories) Tally(ctx context.Context) (*store.SectorTally, error) {
	t := &store.SectorTally{
		BySector: make(map[model.Sector]int64),
		ByTier:   map[string]int64{"hot": 0, "warm": 0, "cold": 0},
	}

	rows, err := r.db.QueryContext(ctx, `SELECT primary_sector, COUNT(1) FROM memories GROUP BY primary_sector`)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrStoreFailed, err)
	}
	defer rows.Close()
	for rows.Next() {
		var sector string
		var n int64
		if err := rows.Scan(&sector, &n); err != nil {
			return nil, fmt.Errorf("%w: %v", model.ErrStoreFailed, err)
		}
		t.BySector[model.Sector(sector)] = n
		t.Total += n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrStoreFailed, err)
	}

	tiers, err := r.db.QueryContext(ctx, `SELECT
		CASE WHEN salience >= 0.5 THEN 'hot' WHEN salience >= 0.25 THEN 'warm' ELSE 'cold' END AS tier,
		COUNT(1) FROM memories GROUP BY tier`)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrStoreFailed, err)
	}
	defer tiers.Close()
	for tiers.Next() {
		var tier string
		var n int64
		if err := tiers.Scan(&tier, &n); err != nil {
			return nil, fmt.Errorf("%w: %v", model.ErrStoreFailed, err)
		}
		t.ByTier[tier] = n
	}
	return t, tiers.Err()
}

// --- Vectors ---

type vectors struct{ db *sql.DB }

func (r *vectors) BySector(ctx context.Context, userID string, s model.Sector) ([]model.SectorCandidate, error) {
	q := `SELECT v.memory_id, v.vec, m.salience, m.last_seen_at
		FROM vectors v JOIN memories m ON m.id = v.memory_id
		WHERE v.sector = $1`
	args := []interface{}{string(s)}
	if userID != "" {
		q += ` AND m.user_id = $2`
		args = append(args, userID)
	}

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrStoreFailed, err)
	}
	defer rows.Close()

	var out []model.SectorCandidate
	for rows.Next() {
		var c model.SectorCandidate
		var blob []byte
		if err := rows.Scan(&c.ID, &blob, &c.Salience, &c.LastSeenAt); err != nil {
			return nil, fmt.Errorf("%w: %v", model.ErrStoreFailed, err)
		}
		if c.Vec, err = store.DecodeVector(blob); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *vectors) ByMemory(ctx context.Context, memoryID string) ([]*model.Vector, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT memory_id, sector, vec, dim FROM vectors WHERE memory_id = $1`, memoryID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrStoreFailed, err)
	}
	defer rows.Close()

	var out []*model.Vector
	for rows.Next() {
		var v model.Vector
		var sector string
		var blob []byte
		if err := rows.Scan(&v.MemoryID, &sector, &blob, &v.Dim); err != nil {
			return nil, fmt.Errorf("%w: %v", model.ErrStoreFailed, err)
		}
		v.Sector = model.Sector(sector)
		if v.Vec, err = store.DecodeVector(blob); err != nil {
			return nil, err
		}
		out = append(out, &v)
	}
	return out, rows.Err()
}

// --- Waypoints ---

type waypoints struct{ db *sql.DB }

func upsertWaypointTx(ctx context.Context, tx *sql.Tx, src, dst string, weight float64, now int64) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO waypoints (src_id, dst_id, weight, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT(src_id) DO UPDATE SET
			dst_id = excluded.dst_id,
			weight = excluded.weight,
			updated_at = excluded.updated_at
		WHERE excluded.weight >= waypoints.weight`,
		src, dst, weight, now, now)
	if err != nil {
		return fmt.Errorf("%w: %v", model.ErrStoreFailed, err)
	}
	return nil
}

func (r *waypoints) Upsert(ctx context.Context, src, dst string, weight float64, now int64) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", model.ErrStoreFailed, err)
	}
	defer func() { _ = tx.Rollback() }()
	if err := upsertWaypointTx(ctx, tx, src, dst, weight, now); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: %v", model.ErrStoreFailed, err)
	}
	return nil
}

func (r *waypoints) Outgoing(ctx context.Context, src string) (*model.Waypoint, error) {
	var w model.Waypoint
	err := r.db.QueryRowContext(ctx,
		`SELECT src_id, dst_id, weight, created_at, updated_at FROM waypoints WHERE src_id = $1`, src).
		Scan(&w.SrcID, &w.DstID, &w.Weight, &w.CreatedAt, &w.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrStoreFailed, err)
	}
	return &w, nil
}

func (r *waypoints) Reinforce(ctx context.Context, src, dst string, delta float64, now int64) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE waypoints SET weight = LEAST(1.0, weight + $1), updated_at = $2 WHERE src_id = $3 AND dst_id = $4`,
		delta, now, src, dst)
	if err != nil {
		return fmt.Errorf("%w: %v", model.ErrStoreFailed, err)
	}
	return nil
}

func (r *waypoints) DeleteBelow(ctx context.Context, threshold float64) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM waypoints WHERE weight < $1`, threshold)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", model.ErrStoreFailed, err)
	}
	return res.RowsAffected()
}

func (r *waypoints) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM waypoints`).Scan(&n); err != nil {
		return 0, fmt.Errorf("%w: %v", model.ErrStoreFailed, err)
	}
	return n, nil
}

// --- Embed logs ---

type embedLogs struct{ db *sql.DB }

func (r *embedLogs) Append(ctx context.Context, rec *model.EmbedLog) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO embed_logs (id, ts, provider, sector, input_tokens, dim, ok) VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		rec.ID, rec.TS, rec.Provider, string(rec.Sector), rec.InputTokens, rec.Dim, rec.OK)
	if err != nil {
		return fmt.Errorf("%w: %v", model.ErrStoreFailed, err)
	}
	return nil
}

// --- helpers ---

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanMemory(row rowScanner) (*model.Memory, error) {
	var m model.Memory
	var sector string
	var tags, meta sql.NullString
	var mean []byte
	err := row.Scan(&m.ID, &m.UserID, &m.Content, &sector, &tags, &meta,
		&m.CreatedAt, &m.UpdatedAt, &m.LastSeenAt, &m.Salience, &m.DecayLambda, &mean, &m.Cold)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrStoreFailed, err)
	}
	m.PrimarySector = model.Sector(sector)
	if tags.Valid && tags.String != "" {
		if err := json.Unmarshal([]byte(tags.String), &m.Tags); err != nil {
			return nil, fmt.Errorf("%w: decode tags: %v", model.ErrStoreFailed, err)
		}
	}
	if meta.Valid && meta.String != "" {
		if err := json.Unmarshal([]byte(meta.String), &m.Meta); err != nil {
			return nil, fmt.Errorf("%w: decode meta: %v", model.ErrStoreFailed, err)
		}
	}
	if len(mean) > 0 {
		if m.MeanVec, err = store.DecodeVector(mean); err != nil {
			return nil, err
		}
	}
	return &m, nil
}

func encodeTagsMeta(m *model.Memory) (sql.NullString, sql.NullString, error) {
	var tags, meta sql.NullString
	if len(m.Tags) > 0 {
		b, err := json.Marshal(m.Tags)
		if err != nil {
			return tags, meta, fmt.Errorf("%w: encode tags: %v", model.ErrStoreFailed, err)
		}
		tags = sql.NullString{String: string(b), Valid: true}
	}
	if len(m.Meta) > 0 {
		b, err := json.Marshal(m.Meta)
		if err != nil {
			return tags, meta, fmt.Errorf("%w: encode meta: %v", model.ErrStoreFailed, err)
		}
		meta = sql.NullString{String: string(b), Valid: true}
	}
	return tags, meta, nil
}

func hasTag(m *model.Memory, tag string) bool {
	for _, t := range m.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

func oneRow(res sql.Result, err error, id string) error {
	if err != nil {
		return fmt.Errorf("%w: %v", model.ErrStoreFailed, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: %v", model.ErrStoreFailed, err)
	}
	if n == 0 {
		return fmt.Errorf("memory %s: %w", id, model.ErrNotFound)
	}
	return nil
}
