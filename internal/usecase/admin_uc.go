package usecase

import (
	"context"

	"github.com/rs/zerolog"

	"telegram-license-server/internal/domain"
	"telegram-license-server/internal/domain/model"
	"telegram-license-server/internal/domain/ports/repository"
	"telegram-license-server/internal/infra/logging"
	"telegram-license-server/internal/infra/metrics"
)

// Compile-time check
var _ AdminUseCase = (*adminUC)(nil)

// AdminUseCase resolves who may run admin commands. Configured ids are
// permanent; appointed admins live in the database.
type AdminUseCase interface {
	Owner() int64
	IsAdmin(ctx context.Context, tgID int64) (bool, error)
	// AddAdmin reports false when tgID is the owner.
	AddAdmin(ctx context.Context, tgID int64, username string, addedBy int64) (bool, error)
	RemoveAdmin(ctx context.Context, tgID int64) (bool, error)
	ListAdmins(ctx context.Context) ([]*model.Admin, error)
	// AllAdminIDs is the configured ids followed by appointed ones, without duplicates.
	AllAdminIDs(ctx context.Context) ([]int64, error)
}

type adminUC struct {
	admins     repository.AdminRepository
	configured []int64
	log        *zerolog.Logger
}

func NewAdminUseCase(admins repository.AdminRepository, configured []int64, logger *zerolog.Logger) *adminUC {
	return &adminUC{admins: admins, configured: configured, log: logger}
}

func (u *adminUC) Owner() int64 {
	if len(u.configured) == 0 {
		return 0
	}
	return u.configured[0]
}

func (u *adminUC) isConfigured(tgID int64) bool {
	for _, id := range u.configured {
		if id == tgID {
			return true
		}
	}
	return false
}

func (u *adminUC) IsAdmin(ctx context.Context, tgID int64) (bool, error) {
	defer logging.TraceDuration(u.log, "AdminUC.IsAdmin")()
	if tgID <= 0 {
		return false, nil
	}
	if u.isConfigured(tgID) {
		return true, nil
	}
	return u.admins.Exists(ctx, repository.NoTX, tgID)
}

func (u *adminUC) AddAdmin(ctx context.Context, tgID int64, username string, addedBy int64) (bool, error) {
	defer logging.TraceDuration(u.log, "AdminUC.AddAdmin")()

	if tgID <= 0 {
		return false, domain.ErrInvalidArgument
	}
	if tgID == u.Owner() {
		return false, nil
	}
	a := &model.Admin{
		TelegramID: tgID,
		Username:   model.NormalizeUsername(username),
		AddedBy:    addedBy,
	}
	if err := u.admins.Upsert(ctx, repository.NoTX, a); err != nil {
		metrics.IncAdminCommand("add_admin", "error")
		return false, err
	}
	metrics.IncAdminCommand("add_admin", "ok")
	u.log.Info().Int64("tg_id", tgID).Int64("added_by", addedBy).Msg("admin appointed")
	return true, nil
}

func (u *adminUC) RemoveAdmin(ctx context.Context, tgID int64) (bool, error) {
	defer logging.TraceDuration(u.log, "AdminUC.RemoveAdmin")()

	exists, err := u.admins.Exists(ctx, repository.NoTX, tgID)
	if err != nil || !exists {
		return false, err
	}
	if err := u.admins.Delete(ctx, repository.NoTX, tgID); err != nil {
		metrics.IncAdminCommand("remove_admin", "error")
		return false, err
	}
	metrics.IncAdminCommand("remove_admin", "ok")
	return true, nil
}

func (u *adminUC) ListAdmins(ctx context.Context) ([]*model.Admin, error) {
	defer logging.TraceDuration(u.log, "AdminUC.ListAdmins")()
	return u.admins.List(ctx, repository.NoTX)
}

func (u *adminUC) AllAdminIDs(ctx context.Context) ([]int64, error) {
	appointed, err := u.admins.List(ctx, repository.NoTX)
	if err != nil {
		return nil, err
	}
	seen := make(map[int64]struct{}, len(u.configured)+len(appointed))
	out := make([]int64, 0, len(u.configured)+len(appointed))
	add := func(id int64) {
		if _, ok := seen[id]; ok || id <= 0 {
			return
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	for _, id := range u.configured {
		add(id)
	}
	for _, a := range appointed {
		add(a.TelegramID)
	}
	return out, nil
}
