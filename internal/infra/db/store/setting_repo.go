package store

import (
	"context"

	"telegram-license-server/internal/domain/model"
	"telegram-license-server/internal/domain/ports/repository"
	"telegram-license-server/internal/infra/db"
)

// Ensure implementation satisfies the interface.
var _ repository.SettingRepository = (*settingRepo)(nil)

type settingRepo struct {
	pool db.DB
}

func NewSettingRepo(pool db.DB) repository.SettingRepository {
	return &settingRepo{pool: pool}
}

func scanSetting(row db.Row) (*model.Setting, error) {
	var s model.Setting
	if err := row.Scan(&s.Key, &s.Value, &s.UpdatedAt); err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *settingRepo) Get(ctx context.Context, tx repository.Tx, key string) (*model.Setting, error) {
	row, err := pickRow(ctx, r.pool, tx, `SELECT key, value, updated_at FROM settings WHERE key = ?`, key)
	if err != nil {
		return nil, err
	}
	s, err := scanSetting(row)
	if err != nil {
		return nil, scanErr("get setting", err)
	}
	return s, nil
}

func (r *settingRepo) Set(ctx context.Context, tx repository.Tx, key, value string) error {
	q := r.pool.Dialect().Upsert("settings", []string{"key", "value", "updated_at"}, []string{"value", "updated_at"})
	_, err := execSQL(ctx, r.pool, tx, q, key, value, nowUTC())
	return err
}

func (r *settingRepo) Seed(ctx context.Context, tx repository.Tx, key, value string) error {
	q := r.pool.Dialect().InsertIgnore("settings", "key", "value", "updated_at")
	_, err := execSQL(ctx, r.pool, tx, q, key, value, nowUTC())
	return err
}

func (r *settingRepo) List(ctx context.Context, tx repository.Tx) ([]*model.Setting, error) {
	rows, err := queryRows(ctx, r.pool, tx, `SELECT key, value, updated_at FROM settings ORDER BY key`)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanSetting)
}
