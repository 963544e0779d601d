package usecase

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"telegram-license-server/internal/domain"
	"telegram-license-server/internal/domain/model"
	"telegram-license-server/internal/domain/ports/repository"
	"telegram-license-server/internal/infra/logging"
	"telegram-license-server/internal/infra/metrics"
)

// Compile-time check
var _ LicenseUseCase = (*licenseUC)(nil)

// LicenseUseCase manages the code inventory used by admin flows.
type LicenseUseCase interface {
	CreateCode(ctx context.Context, days int, isDeveloper bool) (*model.Code, error)
	CreateCodesBatch(ctx context.Context, count, days int, isDeveloper bool) ([]*model.Code, error)
	// AssignCode reports false for an unknown code. An empty username clears the assignment.
	AssignCode(ctx context.Context, code, username string) (bool, error)
	DeleteCode(ctx context.Context, code string) (bool, error)
	DeleteAllCodes(ctx context.Context) (int, error)
	Revoke(ctx context.Context, code string) (bool, error)
	ActivationStatus(ctx context.Context, code string) (*model.CodeStatus, error)
	FreeCodes(ctx context.Context, limit int) ([]*model.Code, error)
	ListCodes(ctx context.Context) ([]*model.CodeListing, error)

	SetPendingAssign(ctx context.Context, adminID int64, code string) error
	// PendingAssign returns "" when nothing is staged or the staging expired.
	PendingAssign(ctx context.Context, adminID int64) (string, error)
	ClearPendingAssign(ctx context.Context, adminID int64) error
	// PurgeStaleAssigns drops stagings older than model.PendingAssignTTL.
	PurgeStaleAssigns(ctx context.Context) (int64, error)
}

type licenseUC struct {
	codes       repository.CodeRepository
	activations repository.ActivationRepository
	payments    repository.PaymentRepository
	users       repository.UserRepository
	pending     repository.PendingUserRepository
	assigns     repository.PendingAssignRepository
	tm          repository.TransactionManager
	log         *zerolog.Logger
}

func NewLicenseUseCase(
	codes repository.CodeRepository,
	activations repository.ActivationRepository,
	payments repository.PaymentRepository,
	users repository.UserRepository,
	pending repository.PendingUserRepository,
	assigns repository.PendingAssignRepository,
	tm repository.TransactionManager,
	logger *zerolog.Logger,
) *licenseUC {
	return &licenseUC{
		codes:       codes,
		activations: activations,
		payments:    payments,
		users:       users,
		pending:     pending,
		assigns:     assigns,
		tm:          tm,
		log:         logger,
	}
}

const (
	codeBytes       = 8 // 16 hex characters
	mintMaxAttempts = 5
)

// generateCode returns 16 upper-case hex characters from crypto/rand.
func generateCode() (string, error) {
	b := make([]byte, codeBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return strings.ToUpper(hex.EncodeToString(b)), nil
}

// mintCode inserts a fresh random code inside tx, drawing again on the
// unlikely collision with an existing value.
func mintCode(ctx context.Context, tx repository.Tx, codes repository.CodeRepository, days int, isDeveloper bool) (*model.Code, error) {
	for attempt := 0; attempt < mintMaxAttempts; attempt++ {
		value, err := generateCode()
		if err != nil {
			return nil, fmt.Errorf("generate code: %w", err)
		}
		c, err := model.NewCode(value, days, isDeveloper)
		if err != nil {
			return nil, err
		}
		err = codes.Create(ctx, tx, c)
		if errors.Is(err, domain.ErrAlreadyExists) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return c, nil
	}
	return nil, fmt.Errorf("mint code: %w", domain.ErrOperationFailed)
}

func (u *licenseUC) CreateCode(ctx context.Context, days int, isDeveloper bool) (*model.Code, error) {
	defer logging.TraceDuration(u.log, "LicenseUC.CreateCode")()

	var code *model.Code
	err := u.tm.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		c, err := mintCode(ctx, tx, u.codes, days, isDeveloper)
		if err != nil {
			return err
		}
		code = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	metrics.IncCodesCreated(isDeveloper, 1)
	return code, nil
}

func (u *licenseUC) CreateCodesBatch(ctx context.Context, count, days int, isDeveloper bool) ([]*model.Code, error) {
	defer logging.TraceDuration(u.log, "LicenseUC.CreateCodesBatch")()
	if count <= 0 {
		return nil, domain.ErrInvalidArgument
	}

	out := make([]*model.Code, 0, count)
	err := u.tm.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		out = out[:0]
		for i := 0; i < count; i++ {
			c, err := mintCode(ctx, tx, u.codes, days, isDeveloper)
			if err != nil {
				return err
			}
			out = append(out, c)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	metrics.IncCodesCreated(isDeveloper, len(out))
	u.log.Info().Int("count", len(out)).Int("days", days).Bool("developer", isDeveloper).Msg("codes created")
	return out, nil
}

func (u *licenseUC) AssignCode(ctx context.Context, code, username string) (bool, error) {
	defer logging.TraceDuration(u.log, "LicenseUC.AssignCode")()

	name := model.NormalizeUsername(username)
	found := false
	err := u.tm.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		c, err := u.codes.FindByCode(ctx, tx, model.NormalizeCode(code))
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true

		var assignee *string
		if name != "" {
			assignee = &name
		}
		if err := u.codes.SetAssignee(ctx, tx, c.ID, assignee); err != nil {
			return err
		}
		if name == "" {
			return nil
		}
		// Stage the identity so admin edits made before first contact are kept.
		if _, err := u.users.FindByUsername(ctx, tx, name); err == nil {
			return nil
		} else if !errors.Is(err, domain.ErrNotFound) {
			return err
		}
		return u.pending.Ensure(ctx, tx, name)
	})
	return found, err
}

func (u *licenseUC) DeleteCode(ctx context.Context, code string) (bool, error) {
	defer logging.TraceDuration(u.log, "LicenseUC.DeleteCode")()

	found := false
	err := u.tm.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		c, err := u.codes.FindByCode(ctx, tx, model.NormalizeCode(code))
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		if err := u.payments.ClearCode(ctx, tx, c.ID); err != nil {
			return err
		}
		if err := u.activations.DeleteByCode(ctx, tx, c.ID); err != nil {
			return err
		}
		return u.codes.Delete(ctx, tx, c.ID)
	})
	return found, err
}

func (u *licenseUC) DeleteAllCodes(ctx context.Context) (int, error) {
	defer logging.TraceDuration(u.log, "LicenseUC.DeleteAllCodes")()

	var n int
	err := u.tm.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		if err := u.payments.ClearAllCodes(ctx, tx); err != nil {
			return err
		}
		if err := u.activations.DeleteAll(ctx, tx); err != nil {
			return err
		}
		deleted, err := u.codes.DeleteAll(ctx, tx)
		n = deleted
		return err
	})
	if err != nil {
		return 0, err
	}
	u.log.Warn().Int("count", n).Msg("all codes deleted")
	return n, nil
}

func (u *licenseUC) Revoke(ctx context.Context, code string) (bool, error) {
	defer logging.TraceDuration(u.log, "LicenseUC.Revoke")()

	found := false
	err := u.tm.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		c, err := u.codes.FindByCode(ctx, tx, model.NormalizeCode(code))
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		if err := u.codes.MarkRevoked(ctx, tx, c.ID, time.Now().UTC()); err != nil {
			return err
		}
		_, err = u.activations.RevokeByCode(ctx, tx, c.ID)
		return err
	})
	return found, err
}

func (u *licenseUC) ActivationStatus(ctx context.Context, code string) (*model.CodeStatus, error) {
	defer logging.TraceDuration(u.log, "LicenseUC.ActivationStatus")()

	var status *model.CodeStatus
	err := u.tm.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		c, err := u.codes.FindByCode(ctx, tx, model.NormalizeCode(code))
		if errors.Is(err, domain.ErrNotFound) {
			return domain.ErrCodeNotFound
		}
		if err != nil {
			return err
		}
		status = &model.CodeStatus{Code: c.Code, State: model.CodeStateFree}
		if c.IsRevoked() {
			status.State = model.CodeStateRevoked
			status.Revoked = true
		}

		a, err := u.activations.Latest(ctx, tx, c.ID)
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		activatedAt := a.ActivatedAt
		status.HWID = a.HWID
		status.ActivatedAt = &activatedAt
		status.Revoked = a.Revoked
		status.State = model.CodeStateActivated
		if a.Revoked {
			status.State = model.CodeStateRevoked
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return status, nil
}

func (u *licenseUC) FreeCodes(ctx context.Context, limit int) ([]*model.Code, error) {
	defer logging.TraceDuration(u.log, "LicenseUC.FreeCodes")()
	if limit <= 0 {
		limit = 20
	}
	return u.codes.ListFree(ctx, repository.NoTX, limit)
}

func (u *licenseUC) ListCodes(ctx context.Context) ([]*model.CodeListing, error) {
	defer logging.TraceDuration(u.log, "LicenseUC.ListCodes")()

	var out []*model.CodeListing
	err := u.tm.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		codes, err := u.codes.ListAll(ctx, tx)
		if err != nil {
			return err
		}
		out = make([]*model.CodeListing, 0, len(codes))
		for _, c := range codes {
			listing := &model.CodeListing{Code: *c}
			a, err := u.activations.Latest(ctx, tx, c.ID)
			switch {
			case err == nil:
				listing.Activation = a
			case !errors.Is(err, domain.ErrNotFound):
				return err
			}
			out = append(out, listing)
		}
		return nil
	})
	return out, err
}

func (u *licenseUC) SetPendingAssign(ctx context.Context, adminID int64, code string) error {
	defer logging.TraceDuration(u.log, "LicenseUC.SetPendingAssign")()
	return u.assigns.Set(ctx, repository.NoTX, adminID, model.NormalizeCode(code))
}

func (u *licenseUC) PendingAssign(ctx context.Context, adminID int64) (string, error) {
	defer logging.TraceDuration(u.log, "LicenseUC.PendingAssign")()
	p, err := u.assigns.Get(ctx, repository.NoTX, adminID, model.PendingAssignTTL)
	if errors.Is(err, domain.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return p.Code, nil
}

func (u *licenseUC) ClearPendingAssign(ctx context.Context, adminID int64) error {
	defer logging.TraceDuration(u.log, "LicenseUC.ClearPendingAssign")()
	return u.assigns.Delete(ctx, repository.NoTX, adminID)
}

func (u *licenseUC) PurgeStaleAssigns(ctx context.Context) (int64, error) {
	defer logging.TraceDuration(u.log, "LicenseUC.PurgeStaleAssigns")()
	return u.assigns.Purge(ctx, repository.NoTX, model.PendingAssignTTL)
}
