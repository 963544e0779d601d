package usecase

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"telegram-license-server/internal/domain/model"
	"telegram-license-server/internal/infra/logging"
	"telegram-license-server/internal/infra/metrics"
	"telegram-license-server/internal/infra/security"
)

// Compile-time check
var _ TokenUseCase = (*tokenUC)(nil)

// TokenUseCase issues signed offline tokens. Issuing always goes through a
// real activation, so a token is never minted for a refused binding.
type TokenUseCase interface {
	// Issue returns an empty token and the refusal when activation fails.
	Issue(ctx context.Context, code, hwid, installationID string) (string, model.ActivationResult, error)
	Verify(ctx context.Context, token string) (*security.TokenPayload, error)
}

type tokenUC struct {
	activation ActivationUseCase
	signer     *security.TokenSigner
	now        func() time.Time
	log        *zerolog.Logger
}

func NewTokenUseCase(activation ActivationUseCase, signer *security.TokenSigner, logger *zerolog.Logger) *tokenUC {
	return &tokenUC{
		activation: activation,
		signer:     signer,
		now:        func() time.Time { return time.Now().UTC() },
		log:        logger,
	}
}

func (u *tokenUC) Issue(ctx context.Context, code, hwid, installationID string) (string, model.ActivationResult, error) {
	defer logging.TraceDuration(u.log, "TokenUC.Issue")()

	res, err := u.activation.Activate(ctx, code, hwid, installationID, 0)
	if err != nil {
		metrics.IncTokenIssued("error")
		return "", res, err
	}
	if !res.OK {
		metrics.IncTokenIssued("refused")
		return "", res, nil
	}

	p := security.TokenPayload{
		Code:           model.NormalizeCode(code),
		IsDeveloper:    res.IsDeveloper,
		HWID:           strings.TrimSpace(hwid),
		InstallationID: strings.TrimSpace(installationID),
		IssuedAt:       u.now().Unix(),
	}
	if res.ExpiresAt != nil {
		e := res.ExpiresAt.UTC().Format(time.RFC3339)
		p.ExpiresAt = &e
	}
	token, err := u.signer.Sign(p)
	if err != nil {
		metrics.IncTokenIssued("error")
		return "", res, err
	}
	metrics.IncTokenIssued("issued")
	return token, res, nil
}

func (u *tokenUC) Verify(_ context.Context, token string) (*security.TokenPayload, error) {
	defer logging.TraceDuration(u.log, "TokenUC.Verify")()
	return u.signer.Verify(token, u.now())
}
