package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/cortexmem/cortex/internal/model"
)

type embedLogs struct {
	db *sql.DB
}

func (r *embedLogs) Append(ctx context.Context, rec *model.EmbedLog) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO embed_logs (id, ts, provider, sector, input_tokens, dim, ok) VALUES (?,?,?,?,?,?,?)`,
		rec.ID, rec.TS, rec.Provider, string(rec.Sector), rec.InputTokens, rec.Dim, boolToInt(rec.OK))
	if err != nil {
		return fmt.Errorf("%w: %v", model.ErrStoreFailed, err)
	}
	return nil
}
