//go:build !integration

package usecase_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"telegram-license-server/internal/domain"
	"telegram-license-server/internal/domain/ports/repository"
	"telegram-license-server/internal/infra/security"
	"telegram-license-server/internal/usecase"
)

func TestTokenUseCase(t *testing.T) {
	ctx := context.Background()
	signer, err := security.NewTokenSigner("test-secret", 15*time.Minute)
	if err != nil {
		t.Fatalf("signer: %v", err)
	}

	t.Run("should activate and sign a verifiable token", func(t *testing.T) {
		// Arrange
		env := newTestEnv(t)
		uc := usecase.NewTokenUseCase(env.activations(), signer, newTestLogger())
		c := env.mustCode(t, 30, false)

		// Act
		token, res, err := uc.Issue(ctx, c.Code, "hw-1", "inst-1")

		// Assert
		if err != nil || !res.OK || token == "" {
			t.Fatalf("Issue failed: %q %+v %v", token, res, err)
		}
		p, err := uc.Verify(ctx, token)
		if err != nil {
			t.Fatalf("Verify failed: %v", err)
		}
		if p.Code != c.Code || p.HWID != "hw-1" || p.InstallationID != "inst-1" || p.IsDeveloper {
			t.Errorf("unexpected payload %+v", p)
		}
		if p.ExpiresAt == nil {
			t.Fatal("expected an expiry in the payload")
		}
		if _, err := time.Parse(time.RFC3339, *p.ExpiresAt); err != nil {
			t.Errorf("expiry is not RFC3339: %q", *p.ExpiresAt)
		}
	})

	t.Run("should sign the trimmed hwid that was bound", func(t *testing.T) {
		// Arrange
		env := newTestEnv(t)
		uc := usecase.NewTokenUseCase(env.activations(), signer, newTestLogger())
		c := env.mustCode(t, 30, false)

		// Act
		token, res, err := uc.Issue(ctx, " "+c.Code+" ", "  hw-1\n", " inst-1 ")

		// Assert
		if err != nil || !res.OK {
			t.Fatalf("Issue failed: %+v %v", res, err)
		}
		p, err := uc.Verify(ctx, token)
		if err != nil {
			t.Fatalf("Verify failed: %v", err)
		}
		if p.Code != c.Code || p.HWID != "hw-1" || p.InstallationID != "inst-1" {
			t.Errorf("payload does not match the stored binding: %+v", p)
		}
		if _, err := env.s.Activations.FindByCodeAndHWID(ctx, repository.NoTX, c.ID, p.HWID); err != nil {
			t.Errorf("no binding for signed hwid %q: %v", p.HWID, err)
		}
	})

	t.Run("should carry a null expiry for developer codes", func(t *testing.T) {
		env := newTestEnv(t)
		uc := usecase.NewTokenUseCase(env.activations(), signer, newTestLogger())
		c := env.mustCode(t, 0, true)

		token, _, err := uc.Issue(ctx, c.Code, "hw-dev", "")
		if err != nil {
			t.Fatalf("Issue failed: %v", err)
		}
		p, _ := uc.Verify(ctx, token)
		if p == nil || !p.IsDeveloper || p.ExpiresAt != nil {
			t.Errorf("unexpected payload %+v", p)
		}
	})

	t.Run("should not sign a refused activation", func(t *testing.T) {
		env := newTestEnv(t)
		uc := usecase.NewTokenUseCase(env.activations(), signer, newTestLogger())
		c := env.mustCode(t, 30, false)
		_, _, _ = uc.Issue(ctx, c.Code, "hw-1", "")

		token, res, err := uc.Issue(ctx, c.Code, "hw-2", "")
		if err != nil || token != "" || res.Error != domain.OutcomeCodeAlreadyUsed {
			t.Errorf("expected refusal, got %q %+v %v", token, res, err)
		}
	})

	t.Run("should reject a forged token", func(t *testing.T) {
		env := newTestEnv(t)
		uc := usecase.NewTokenUseCase(env.activations(), signer, newTestLogger())
		if _, err := uc.Verify(ctx, "e30=.deadbeef"); !errors.Is(err, domain.ErrInvalidToken) {
			t.Errorf("expected ErrInvalidToken, got %v", err)
		}
	})
}
