package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/cortexmem/cortex/internal/model"
)

type waypoints struct {
	db *sql.DB
}

// upsertWaypointTx installs src's outgoing edge inside a transaction. The
// src_id primary key enforces the single-outgoing-edge invariant; the
// conflict guard keeps a strictly stronger existing edge in place.
func upsertWaypointTx(ctx context.Context, tx *sql.Tx, src, dst string, weight float64, now int64) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO waypoints (src_id, dst_id, weight, created_at, updated_at)
		VALUES (?,?,?,?,?)
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
		`SELECT src_id, dst_id, weight, created_at, updated_at FROM waypoints WHERE src_id = ?`, src).
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
		`UPDATE waypoints SET weight = MIN(1.0, weight + ?), updated_at = ? WHERE src_id = ? AND dst_id = ?`,
		delta, now, src, dst)
	if err != nil {
		return fmt.Errorf("%w: %v", model.ErrStoreFailed, err)
	}
	return nil
}

func (r *waypoints) DeleteBelow(ctx context.Context, threshold float64) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM waypoints WHERE weight < ?`, threshold)
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
