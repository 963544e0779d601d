package repository

import (
	"context"
	"time"

	"telegram-license-server/internal/domain/model"
)

type SettingRepository interface {
	Get(ctx context.Context, tx Tx, key string) (*model.Setting, error)
	Set(ctx context.Context, tx Tx, key, value string) error
	// Seed writes value only if key is absent.
	Seed(ctx context.Context, tx Tx, key, value string) error
	List(ctx context.Context, tx Tx) ([]*model.Setting, error)
}

type AdminRepository interface {
	Upsert(ctx context.Context, tx Tx, a *model.Admin) error
	Delete(ctx context.Context, tx Tx, tgID int64) error
	Exists(ctx context.Context, tx Tx, tgID int64) (bool, error)
	List(ctx context.Context, tx Tx) ([]*model.Admin, error)
}

type PendingAssignRepository interface {
	Set(ctx context.Context, tx Tx, adminID int64, code string) error
	// Get ignores rows older than ttl.
	Get(ctx context.Context, tx Tx, adminID int64, ttl time.Duration) (*model.PendingCodeAssign, error)
	Delete(ctx context.Context, tx Tx, adminID int64) error
	Purge(ctx context.Context, tx Tx, olderThan time.Duration) (int64, error)
}
