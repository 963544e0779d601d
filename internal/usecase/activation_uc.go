package usecase

import (
	"context"
	"errors"
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
var _ ActivationUseCase = (*activationUC)(nil)

// ActivationUseCase binds codes to machines and answers client checks.
// Business refusals come back in ActivationResult; errors are storage faults
// or invalid input.
type ActivationUseCase interface {
	Activate(ctx context.Context, code, hwid, installationID string, tgID int64) (model.ActivationResult, error)
	Check(ctx context.Context, code, hwid, installationID string) (model.ActivationResult, error)
	// CheckOrActivate checks first and activates only when nothing is bound yet.
	CheckOrActivate(ctx context.Context, code, hwid, installationID string) (model.ActivationResult, error)
}

type activationUC struct {
	codes       repository.CodeRepository
	activations repository.ActivationRepository
	tm          repository.TransactionManager
	now         func() time.Time
	log         *zerolog.Logger
}

func NewActivationUseCase(
	codes repository.CodeRepository,
	activations repository.ActivationRepository,
	tm repository.TransactionManager,
	logger *zerolog.Logger,
) *activationUC {
	return &activationUC{
		codes:       codes,
		activations: activations,
		tm:          tm,
		now:         func() time.Time { return time.Now().UTC() },
		log:         logger,
	}
}

// WithClock replaces the time source; tests use it to step past expiries.
func (u *activationUC) WithClock(now func() time.Time) *activationUC {
	u.now = now
	return u
}

func normalizeInput(code, hwid string) (string, string, error) {
	code = model.NormalizeCode(code)
	hwid = strings.TrimSpace(hwid)
	if code == "" || hwid == "" {
		return "", "", domain.ErrInvalidArgument
	}
	return code, hwid, nil
}

func (u *activationUC) Activate(ctx context.Context, code, hwid, installationID string, tgID int64) (model.ActivationResult, error) {
	defer logging.TraceDuration(u.log, "ActivationUC.Activate")()

	code, hwid, err := normalizeInput(code, hwid)
	if err != nil {
		return model.ActivationResult{}, err
	}
	installationID = strings.TrimSpace(installationID)

	var res model.ActivationResult
	err = u.tm.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		c, err := u.codes.FindByCode(ctx, tx, code)
		if errors.Is(err, domain.ErrNotFound) {
			res = model.Fail(domain.OutcomeInvalidCode)
			return nil
		}
		if err != nil {
			return err
		}

		now := u.now()
		existing, err := u.binding(ctx, tx, c.ID, hwid, installationID)
		if err != nil {
			return err
		}
		if existing != nil {
			res = judge(existing, now)
			return nil
		}
		if c.IsRevoked() {
			res = model.Fail(domain.OutcomeRevoked)
			return nil
		}

		// Two first activations racing on different machines can both pass
		// this check; the window is one transaction wide and left open.
		live, err := u.activations.HasLive(ctx, tx, c.ID)
		if err != nil {
			return err
		}
		if live {
			res = model.Fail(domain.OutcomeCodeAlreadyUsed)
			return nil
		}

		a := &model.Activation{
			CodeID:      c.ID,
			HWID:        hwid,
			ActivatedAt: now,
			IsDeveloper: c.IsDeveloper,
		}
		if installationID != "" {
			a.InstallationID = &installationID
		}
		if tgID > 0 {
			a.UserTelegramID = &tgID
		}
		if !c.IsDeveloper {
			exp := now.AddDate(0, 0, c.Days)
			a.ExpiresAt = &exp
		}
		if err := u.activations.Create(ctx, tx, a); err != nil {
			return err
		}
		res = model.Success(a.ExpiresAt, c.IsDeveloper)
		u.log.Info().
			Str("code", logging.Redact(code, false)).
			Str("hwid", logging.Redact(hwid, false)).
			Bool("developer", c.IsDeveloper).
			Msg("code activated")
		return nil
	})
	if err != nil {
		metrics.IncActivation("activate", "error")
		return model.ActivationResult{}, err
	}
	metrics.IncActivation("activate", outcomeLabel(res))
	return res, nil
}

func (u *activationUC) Check(ctx context.Context, code, hwid, installationID string) (model.ActivationResult, error) {
	defer logging.TraceDuration(u.log, "ActivationUC.Check")()

	code, hwid, err := normalizeInput(code, hwid)
	if err != nil {
		return model.ActivationResult{}, err
	}
	installationID = strings.TrimSpace(installationID)

	var res model.ActivationResult
	err = u.tm.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		c, err := u.codes.FindByCode(ctx, tx, code)
		if errors.Is(err, domain.ErrNotFound) {
			res = model.Fail(domain.OutcomeInvalidCode)
			return nil
		}
		if err != nil {
			return err
		}
		existing, err := u.binding(ctx, tx, c.ID, hwid, installationID)
		if err != nil {
			return err
		}
		if existing == nil && c.IsRevoked() {
			res = model.Fail(domain.OutcomeRevoked)
			return nil
		}
		if existing == nil {
			res = model.Fail(domain.OutcomeNotActivated)
			return nil
		}
		res = judge(existing, u.now())
		return nil
	})
	if err != nil {
		metrics.IncActivation("check", "error")
		return model.ActivationResult{}, err
	}
	metrics.IncActivation("check", outcomeLabel(res))
	return res, nil
}

func (u *activationUC) CheckOrActivate(ctx context.Context, code, hwid, installationID string) (model.ActivationResult, error) {
	res, err := u.Check(ctx, code, hwid, installationID)
	if err != nil || res.OK || res.Error != domain.OutcomeNotActivated {
		return res, err
	}
	return u.Activate(ctx, code, hwid, installationID, 0)
}

// binding returns the activation of codeID on hwid usable by installationID,
// or nil when there is none.
func (u *activationUC) binding(ctx context.Context, tx repository.Tx, codeID int64, hwid, installationID string) (*model.Activation, error) {
	a, err := u.activations.FindByCodeAndHWID(ctx, tx, codeID, hwid)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if !a.MatchesInstallation(installationID) {
		return nil, nil
	}
	return a, nil
}

func judge(a *model.Activation, now time.Time) model.ActivationResult {
	switch {
	case a.Revoked:
		return model.Fail(domain.OutcomeRevoked)
	case a.IsExpired(now):
		return model.Fail(domain.OutcomeExpired)
	}
	return model.Success(a.ExpiresAt, a.IsDeveloper)
}

func outcomeLabel(r model.ActivationResult) string {
	if r.OK {
		return "ok"
	}
	return r.Error
}
