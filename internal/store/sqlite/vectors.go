package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/cortexmem/cortex/internal/model"
	"github.com/cortexmem/cortex/internal/store"
)

type vectors struct {
	db *sql.DB
}

func (r *vectors) BySector(ctx context.Context, userID string, s model.Sector) ([]model.SectorCandidate, error) {
	q := `SELECT v.memory_id, v.vec, m.salience, m.last_seen_at
		FROM vectors v JOIN memories m ON m.id = v.memory_id
		WHERE v.sector = ?`
	args := []interface{}{string(s)}
	if userID != "" {
		q += ` AND m.user_id = ?`
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
		`SELECT memory_id, sector, vec, dim FROM vectors WHERE memory_id = ?`, memoryID)
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
