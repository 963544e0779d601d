package repository

import (
	"context"

	"telegram-license-server/internal/domain/model"
)

type UserRepository interface {
	// Create inserts u unless the id exists; it reports whether a row was added.
	Create(ctx context.Context, tx Tx, u *model.User) (bool, error)
	FindByID(ctx context.Context, tx Tx, tgID int64) (*model.User, error)
	FindByUsername(ctx context.Context, tx Tx, username string) (*model.User, error)
	// Update writes username, flags and discount of an existing user.
	Update(ctx context.Context, tx Tx, u *model.User) error
	// SetReferrerIfUnset claims the referrer only while referred_by is NULL.
	SetReferrerIfUnset(ctx context.Context, tx Tx, tgID, referrerID int64) (bool, error)
	List(ctx context.Context, tx Tx) ([]*model.User, error)
}

type PendingUserRepository interface {
	// Ensure stages username with default flags; an existing row is left untouched.
	Ensure(ctx context.Context, tx Tx, username string) error
	Find(ctx context.Context, tx Tx, username string) (*model.PendingIdentity, error)
	Save(ctx context.Context, tx Tx, p *model.PendingIdentity) error
	Delete(ctx context.Context, tx Tx, username string) error
	List(ctx context.Context, tx Tx) ([]*model.PendingIdentity, error)
}

type ReferralRepository interface {
	// Create is a no-op when referredID was already claimed.
	Create(ctx context.Context, tx Tx, referrerID, referredID int64) error
	CountByReferrer(ctx context.Context, tx Tx, referrerID int64) (int, error)
	ListByReferrer(ctx context.Context, tx Tx, referrerID int64) ([]*model.Referral, error)
}
