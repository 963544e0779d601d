package store

import (
	"context"
	"fmt"

	"telegram-license-server/internal/domain/model"
	"telegram-license-server/internal/domain/ports/repository"
	"telegram-license-server/internal/infra/db"
)

// Ensure implementation satisfies the interface.
var _ repository.ActivationRepository = (*activationRepo)(nil)

type activationRepo struct {
	pool db.DB
}

func NewActivationRepo(pool db.DB) repository.ActivationRepository {
	return &activationRepo{pool: pool}
}

const activationColumns = `a.id, a.code_id, a.hwid, a.installation_id, a.user_telegram_id,
       a.activated_at, a.expires_at, a.revoked, c.code, c.is_developer`

func scanActivation(row db.Row) (*model.Activation, error) {
	var a model.Activation
	err := row.Scan(&a.ID, &a.CodeID, &a.HWID, &a.InstallationID, &a.UserTelegramID,
		&a.ActivatedAt, &a.ExpiresAt, &a.Revoked, &a.Code, &a.IsDeveloper)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *activationRepo) Create(ctx context.Context, tx repository.Tx, a *model.Activation) error {
	const q = `
INSERT INTO activations (code_id, hwid, installation_id, user_telegram_id, activated_at, expires_at, revoked)
VALUES (?, ?, ?, ?, ?, ?, ?)`
	id, err := insertID(ctx, r.pool, tx, q,
		a.CodeID, a.HWID, a.InstallationID, a.UserTelegramID, a.ActivatedAt, a.ExpiresAt, a.Revoked)
	if err != nil {
		return fmt.Errorf("insert activation: %w", err)
	}
	a.ID = id
	return nil
}

func (r *activationRepo) FindByCodeAndHWID(ctx context.Context, tx repository.Tx, codeID int64, hwid string) (*model.Activation, error) {
	const q = `
SELECT ` + activationColumns + `
  FROM activations a JOIN codes c ON c.id = a.code_id
 WHERE a.code_id = ? AND a.hwid = ?
 ORDER BY a.id DESC
 LIMIT 1`
	row, err := pickRow(ctx, r.pool, tx, q, codeID, hwid)
	if err != nil {
		return nil, err
	}
	a, err := scanActivation(row)
	if err != nil {
		return nil, scanErr("find activation", err)
	}
	return a, nil
}

func (r *activationRepo) HasLive(ctx context.Context, tx repository.Tx, codeID int64) (bool, error) {
	row, err := pickRow(ctx, r.pool, tx,
		`SELECT COUNT(*) FROM activations WHERE code_id = ? AND revoked = FALSE`, codeID)
	if err != nil {
		return false, err
	}
	var n int
	if err := row.Scan(&n); err != nil {
		return false, scanErr("count live activations", err)
	}
	return n > 0, nil
}

func (r *activationRepo) Latest(ctx context.Context, tx repository.Tx, codeID int64) (*model.Activation, error) {
	const q = `
SELECT ` + activationColumns + `
  FROM activations a JOIN codes c ON c.id = a.code_id
 WHERE a.code_id = ?
 ORDER BY a.id DESC
 LIMIT 1`
	row, err := pickRow(ctx, r.pool, tx, q, codeID)
	if err != nil {
		return nil, err
	}
	a, err := scanActivation(row)
	if err != nil {
		return nil, scanErr("latest activation", err)
	}
	return a, nil
}

func (r *activationRepo) LatestLiveByUser(ctx context.Context, tx repository.Tx, tgID int64) (*model.Activation, error) {
	const q = `
SELECT ` + activationColumns + `
  FROM activations a JOIN codes c ON c.id = a.code_id
 WHERE a.user_telegram_id = ? AND a.revoked = FALSE
 ORDER BY a.id DESC
 LIMIT 1`
	row, err := pickRow(ctx, r.pool, tx, q, tgID)
	if err != nil {
		return nil, err
	}
	a, err := scanActivation(row)
	if err != nil {
		return nil, scanErr("latest activation by user", err)
	}
	return a, nil
}

func (r *activationRepo) RevokeByCode(ctx context.Context, tx repository.Tx, codeID int64) (int64, error) {
	res, err := execSQL(ctx, r.pool, tx, `UPDATE activations SET revoked = ? WHERE code_id = ?`, true, codeID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected(), nil
}

func (r *activationRepo) DeleteByCode(ctx context.Context, tx repository.Tx, codeID int64) error {
	_, err := execSQL(ctx, r.pool, tx, `DELETE FROM activations WHERE code_id = ?`, codeID)
	return err
}

func (r *activationRepo) DeleteAll(ctx context.Context, tx repository.Tx) error {
	_, err := execSQL(ctx, r.pool, tx, `DELETE FROM activations`)
	return err
}
