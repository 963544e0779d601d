package repository

import (
	"context"
	"time"

	"telegram-license-server/internal/domain/model"
)

type CodeRepository interface {
	// Create inserts c and sets c.ID. A colliding value yields domain.ErrAlreadyExists.
	Create(ctx context.Context, tx Tx, c *model.Code) error
	FindByCode(ctx context.Context, tx Tx, code string) (*model.Code, error)
	FindByID(ctx context.Context, tx Tx, id int64) (*model.Code, error)
	SetAssignee(ctx context.Context, tx Tx, id int64, username *string) error
	// MarkRevoked stamps the code as revoked; an earlier stamp is kept.
	MarkRevoked(ctx context.Context, tx Tx, id int64, at time.Time) error
	Delete(ctx context.Context, tx Tx, id int64) error
	DeleteAll(ctx context.Context, tx Tx) (int, error)
	// ListFree returns unassigned, unrevoked codes with no live binding, newest first.
	ListFree(ctx context.Context, tx Tx, limit int) ([]*model.Code, error)
	ListAll(ctx context.Context, tx Tx) ([]*model.Code, error)
	// FindAssignedUnbound returns the newest code assigned to username
	// (case-insensitive) that has no live binding.
	FindAssignedUnbound(ctx context.Context, tx Tx, username string) (*model.Code, error)
	ListAssignees(ctx context.Context, tx Tx) ([]string, error)
}
