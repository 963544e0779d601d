package repository

import (
	"context"

	"telegram-license-server/internal/domain/model"
)

type ActivationRepository interface {
	Create(ctx context.Context, tx Tx, a *model.Activation) error
	// FindByCodeAndHWID returns the binding of code on hwid, joined with the
	// code's developer flag.
	FindByCodeAndHWID(ctx context.Context, tx Tx, codeID int64, hwid string) (*model.Activation, error)
	HasLive(ctx context.Context, tx Tx, codeID int64) (bool, error)
	Latest(ctx context.Context, tx Tx, codeID int64) (*model.Activation, error)
	// LatestLiveByUser returns the newest non-revoked binding made by a Telegram user.
	LatestLiveByUser(ctx context.Context, tx Tx, tgID int64) (*model.Activation, error)
	RevokeByCode(ctx context.Context, tx Tx, codeID int64) (int64, error)
	DeleteByCode(ctx context.Context, tx Tx, codeID int64) error
	DeleteAll(ctx context.Context, tx Tx) error
}
