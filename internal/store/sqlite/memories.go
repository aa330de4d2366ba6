package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cortexmem/cortex/internal/model"
	"github.com/cortexmem/cortex/internal/store"
)

type memories struct {
	db *sql.DB
}

const memoryColumns = `id, user_id, content, primary_sector, tags, meta,
	created_at, updated_at, last_seen_at, salience, decay_lambda, mean_vec, cold`

func (r *memories) Insert(ctx context.Context, m *model.Memory, vecs []*model.Vector, edges []*model.Waypoint) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", model.ErrStoreFailed, err)
	}
	defer func() { _ = tx.Rollback() }()

	var exists int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM memories WHERE id = ?`, m.ID).Scan(&exists); err != nil {
		return fmt.Errorf("%w: %v", model.ErrStoreFailed, err)
	}
	if exists > 0 {
		return fmt.Errorf("memory %s: %w", m.ID, model.ErrConflict)
	}

	tags, meta, err := encodeTagsMeta(m)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO memories (`+memoryColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		m.ID, m.UserID, m.Content, string(m.PrimarySector), tags, meta,
		m.CreatedAt, m.UpdatedAt, m.LastSeenAt, m.Salience, m.DecayLambda,
		store.EncodeVector(m.MeanVec), boolToInt(m.Cold))
	if err != nil {
		return fmt.Errorf("%w: %v", model.ErrStoreFailed, err)
	}

	for _, v := range vecs {
		_, err = tx.ExecContext(ctx, `INSERT INTO vectors (memory_id, sector, vec, dim) VALUES (?,?,?,?)`,
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
	row := r.db.QueryRowContext(ctx, `SELECT `+memoryColumns+` FROM memories WHERE id = ?`, id)
	return scanMemory(row)
}

func (r *memories) List(ctx context.Context, req model.ListRequest) (*model.ListPage, error) {
	limit := req.Limit
	if limit <= 0 {
		limit = 50
	}

	q := `SELECT ` + memoryColumns + ` FROM memories WHERE 1=1`
	var args []interface{}
	if req.UserID != "" {
		q += ` AND user_id = ?`
		args = append(args, req.UserID)
	}
	if req.Sector != "" {
		q += ` AND primary_sector = ?`
		args = append(args, string(req.Sector))
	}
	if req.Cursor != "" {
		q += ` AND id > ?`
		args = append(args, req.Cursor)
	}
	q += ` ORDER BY id ASC LIMIT ?`
	args = append(args, limit+1)

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
		`SELECT id, primary_sector, mean_vec FROM memories WHERE user_id = ?`, userID)
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
		`UPDATE memories SET salience = ?, last_seen_at = ?, updated_at = ? WHERE id = ?`,
		salience, lastSeenAt, time.Now().UnixMilli(), id)
	return oneRow(res, err, id)
}

func (r *memories) ReplaceContent(ctx context.Context, id, fingerprint string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE memories SET content = ?, cold = 1, updated_at = ? WHERE id = ?`,
		fingerprint, time.Now().UnixMilli(), id)
	return oneRow(res, err, id)
}

func (r *memories) RestoreHeat(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE memories SET cold = 0, updated_at = ? WHERE id = ?`,
		time.Now().UnixMilli(), id)
	return oneRow(res, err, id)
}

func (r *memories) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM memories WHERE id = ?`, id)
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

// --- scan helpers ---

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanMemory(row rowScanner) (*model.Memory, error) {
	var m model.Memory
	var sector string
	var tags, meta sql.NullString
	var mean []byte
	var cold int
	err := row.Scan(&m.ID, &m.UserID, &m.Content, &sector, &tags, &meta,
		&m.CreatedAt, &m.UpdatedAt, &m.LastSeenAt, &m.Salience, &m.DecayLambda, &mean, &cold)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrStoreFailed, err)
	}
	m.PrimarySector = model.Sector(sector)
	m.Cold = cold != 0
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

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
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
