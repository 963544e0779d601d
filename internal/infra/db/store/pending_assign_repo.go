package store

import (
	"context"
	"time"

	"telegram-license-server/internal/domain/model"
	"telegram-license-server/internal/domain/ports/repository"
	"telegram-license-server/internal/infra/db"
)

// Ensure implementation satisfies the interface.
var _ repository.PendingAssignRepository = (*pendingAssignRepo)(nil)

type pendingAssignRepo struct {
	pool db.DB
}

func NewPendingAssignRepo(pool db.DB) repository.PendingAssignRepository {
	return &pendingAssignRepo{pool: pool}
}

func (r *pendingAssignRepo) Set(ctx context.Context, tx repository.Tx, adminID int64, code string) error {
	q := r.pool.Dialect().Upsert("pending_code_assign",
		[]string{"admin_id", "code", "created_at"}, []string{"code", "created_at"})
	_, err := execSQL(ctx, r.pool, tx, q, adminID, code, nowUTC())
	return err
}

func (r *pendingAssignRepo) Get(ctx context.Context, tx repository.Tx, adminID int64, ttl time.Duration) (*model.PendingCodeAssign, error) {
	const q = `SELECT admin_id, code, created_at FROM pending_code_assign WHERE admin_id = ? AND created_at > ?`
	row, err := pickRow(ctx, r.pool, tx, q, adminID, nowUTC().Add(-ttl))
	if err != nil {
		return nil, err
	}
	var p model.PendingCodeAssign
	if err := row.Scan(&p.AdminID, &p.Code, &p.CreatedAt); err != nil {
		return nil, scanErr("get pending assign", err)
	}
	return &p, nil
}

func (r *pendingAssignRepo) Delete(ctx context.Context, tx repository.Tx, adminID int64) error {
	_, err := execSQL(ctx, r.pool, tx, `DELETE FROM pending_code_assign WHERE admin_id = ?`, adminID)
	return err
}

// Purge removes rows past their lifetime; Get already hides them.
func (r *pendingAssignRepo) Purge(ctx context.Context, tx repository.Tx, olderThan time.Duration) (int64, error) {
	res, err := execSQL(ctx, r.pool, tx,
		`DELETE FROM pending_code_assign WHERE created_at < `+r.pool.Dialect().Ago(olderThan))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected(), nil
}
