package store

import (
	"context"
	"fmt"
	"time"

	"telegram-license-server/internal/domain"
	"telegram-license-server/internal/domain/model"
	"telegram-license-server/internal/domain/ports/repository"
	"telegram-license-server/internal/infra/db"
)

// Ensure implementation satisfies the interface.
var _ repository.CodeRepository = (*codeRepo)(nil)

type codeRepo struct {
	pool db.DB
}

func NewCodeRepo(pool db.DB) repository.CodeRepository {
	return &codeRepo{pool: pool}
}

const codeColumns = `c.id, c.code, c.days, c.is_developer, c.assigned_username, c.created_at, c.revoked_at`

func scanCode(row db.Row) (*model.Code, error) {
	var c model.Code
	if err := row.Scan(&c.ID, &c.Code, &c.Days, &c.IsDeveloper, &c.AssignedUsername, &c.CreatedAt, &c.RevokedAt); err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *codeRepo) Create(ctx context.Context, tx repository.Tx, c *model.Code) error {
	const q = `INSERT INTO codes (code, days, is_developer, assigned_username, created_at) VALUES (?, ?, ?, ?, ?)`
	id, err := insertID(ctx, r.pool, tx, q, c.Code, c.Days, c.IsDeveloper, c.AssignedUsername, c.CreatedAt)
	if err != nil {
		if r.pool.Dialect().IsUniqueViolation(err) {
			return domain.ErrAlreadyExists
		}
		return fmt.Errorf("insert code: %w", err)
	}
	c.ID = id
	return nil
}

func (r *codeRepo) FindByCode(ctx context.Context, tx repository.Tx, code string) (*model.Code, error) {
	row, err := pickRow(ctx, r.pool, tx, `SELECT `+codeColumns+` FROM codes c WHERE c.code = ?`, code)
	if err != nil {
		return nil, err
	}
	c, err := scanCode(row)
	if err != nil {
		return nil, scanErr("find code", err)
	}
	return c, nil
}

func (r *codeRepo) FindByID(ctx context.Context, tx repository.Tx, id int64) (*model.Code, error) {
	row, err := pickRow(ctx, r.pool, tx, `SELECT `+codeColumns+` FROM codes c WHERE c.id = ?`, id)
	if err != nil {
		return nil, err
	}
	c, err := scanCode(row)
	if err != nil {
		return nil, scanErr("find code by id", err)
	}
	return c, nil
}

func (r *codeRepo) SetAssignee(ctx context.Context, tx repository.Tx, id int64, username *string) error {
	res, err := execSQL(ctx, r.pool, tx, `UPDATE codes SET assigned_username = ? WHERE id = ?`, username, id)
	if err != nil {
		return err
	}
	if res.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *codeRepo) MarkRevoked(ctx context.Context, tx repository.Tx, id int64, at time.Time) error {
	res, err := execSQL(ctx, r.pool, tx, `UPDATE codes SET revoked_at = COALESCE(revoked_at, ?) WHERE id = ?`, at, id)
	if err != nil {
		return err
	}
	if res.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *codeRepo) Delete(ctx context.Context, tx repository.Tx, id int64) error {
	_, err := execSQL(ctx, r.pool, tx, `DELETE FROM codes WHERE id = ?`, id)
	return err
}

func (r *codeRepo) DeleteAll(ctx context.Context, tx repository.Tx) (int, error) {
	res, err := execSQL(ctx, r.pool, tx, `DELETE FROM codes`)
	if err != nil {
		return 0, err
	}
	return int(res.RowsAffected()), nil
}

func (r *codeRepo) ListFree(ctx context.Context, tx repository.Tx, limit int) ([]*model.Code, error) {
	const q = `
SELECT ` + codeColumns + `
  FROM codes c
 WHERE (c.assigned_username IS NULL OR c.assigned_username = '')
   AND c.revoked_at IS NULL
   AND NOT EXISTS (SELECT 1 FROM activations a WHERE a.code_id = c.id AND a.revoked = FALSE)
 ORDER BY c.id DESC
 LIMIT ?`
	rows, err := queryRows(ctx, r.pool, tx, q, limit)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanCode)
}

func (r *codeRepo) ListAll(ctx context.Context, tx repository.Tx) ([]*model.Code, error) {
	rows, err := queryRows(ctx, r.pool, tx, `SELECT `+codeColumns+` FROM codes c ORDER BY c.id DESC`)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanCode)
}

func (r *codeRepo) FindAssignedUnbound(ctx context.Context, tx repository.Tx, username string) (*model.Code, error) {
	const q = `
SELECT ` + codeColumns + `
  FROM codes c
 WHERE LOWER(REPLACE(COALESCE(c.assigned_username, ''), '@', '')) = ?
   AND c.revoked_at IS NULL
   AND NOT EXISTS (SELECT 1 FROM activations a WHERE a.code_id = c.id AND a.revoked = FALSE)
 ORDER BY c.id DESC
 LIMIT 1`
	row, err := pickRow(ctx, r.pool, tx, q, model.PendingKey(username))
	if err != nil {
		return nil, err
	}
	c, err := scanCode(row)
	if err != nil {
		return nil, scanErr("find assigned code", err)
	}
	return c, nil
}

// ListAssignees returns lower-cased usernames holding an unbound code that
// do not belong to any registered user yet.
func (r *codeRepo) ListAssignees(ctx context.Context, tx repository.Tx) ([]string, error) {
	const q = `
SELECT DISTINCT LOWER(REPLACE(c.assigned_username, '@', ''))
  FROM codes c
 WHERE c.assigned_username IS NOT NULL AND c.assigned_username <> ''
   AND c.revoked_at IS NULL
   AND NOT EXISTS (SELECT 1 FROM activations a WHERE a.code_id = c.id AND a.revoked = FALSE)
   AND NOT EXISTS (
       SELECT 1 FROM users u
        WHERE LOWER(REPLACE(u.username, '@', '')) = LOWER(REPLACE(c.assigned_username, '@', '')))`
	rows, err := queryRows(ctx, r.pool, tx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("%w: %w", domain.ErrReadDatabaseRow, err)
		}
		if s != "" {
			out = append(out, s)
		}
	}
	return out, rows.Err()
}
