//go:build !integration

package usecase_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"telegram-license-server/internal/domain"
	"telegram-license-server/internal/domain/model"
	"telegram-license-server/internal/domain/ports/repository"
)

func TestActivationUseCase_Activate(t *testing.T) {
	ctx := context.Background()
	start := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("should refuse an unknown code", func(t *testing.T) {
		env := newTestEnv(t)
		res, err := env.activations().Activate(ctx, "0000000000000000", "hw-1", "", 0)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if res.OK || res.Error != domain.OutcomeInvalidCode {
			t.Errorf("expected invalid_code, got %+v", res)
		}
	})

	t.Run("should reject empty input", func(t *testing.T) {
		env := newTestEnv(t)
		if _, err := env.activations().Activate(ctx, " ", "hw-1", "", 0); !errors.Is(err, domain.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument for empty code, got %v", err)
		}
		if _, err := env.activations().Check(ctx, "ABC", "  ", ""); !errors.Is(err, domain.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument for empty hwid, got %v", err)
		}
	})

	t.Run("should bind a free code and set the expiry", func(t *testing.T) {
		// Arrange
		env := newTestEnv(t)
		clock := &fixedClock{now: start}
		uc := env.activations(clock.Now)
		c := env.mustCode(t, 30, false)

		// Act
		res, err := uc.Activate(ctx, " "+c.Code+" ", "hw-1", "inst-1", 55)

		// Assert
		if err != nil || !res.OK {
			t.Fatalf("expected success, got %+v (%v)", res, err)
		}
		want := start.AddDate(0, 0, 30)
		if res.ExpiresAt == nil || !res.ExpiresAt.Equal(want) {
			t.Errorf("expected expiry %v, got %v", want, res.ExpiresAt)
		}
		a, err := env.s.Activations.FindByCodeAndHWID(ctx, repository.NoTX, c.ID, "hw-1")
		if err != nil {
			t.Fatalf("activation not stored: %v", err)
		}
		if a.UserTelegramID == nil || *a.UserTelegramID != 55 {
			t.Errorf("expected owner 55, got %v", a.UserTelegramID)
		}
	})

	t.Run("should be idempotent on the same machine", func(t *testing.T) {
		env := newTestEnv(t)
		clock := &fixedClock{now: start}
		uc := env.activations(clock.Now)
		c := env.mustCode(t, 30, false)

		first, _ := uc.Activate(ctx, c.Code, "hw-1", "inst-1", 0)
		clock.Advance(time.Hour)
		second, err := uc.Activate(ctx, c.Code, "hw-1", "inst-1", 0)

		if err != nil || !second.OK {
			t.Fatalf("expected repeat success, got %+v (%v)", second, err)
		}
		if !second.ExpiresAt.Equal(*first.ExpiresAt) {
			t.Errorf("repeat activation must keep the expiry: %v vs %v", second.ExpiresAt, first.ExpiresAt)
		}
	})

	t.Run("should refuse a second machine", func(t *testing.T) {
		env := newTestEnv(t)
		uc := env.activations()
		c := env.mustCode(t, 30, false)
		_, _ = uc.Activate(ctx, c.Code, "hw-1", "", 0)

		res, err := uc.Activate(ctx, c.Code, "hw-2", "", 0)
		if err != nil || res.Error != domain.OutcomeCodeAlreadyUsed {
			t.Errorf("expected code_already_used, got %+v (%v)", res, err)
		}
	})

	t.Run("should refuse a different installation on the same machine", func(t *testing.T) {
		env := newTestEnv(t)
		uc := env.activations()
		c := env.mustCode(t, 30, false)
		_, _ = uc.Activate(ctx, c.Code, "hw-1", "inst-1", 0)

		res, _ := uc.Activate(ctx, c.Code, "hw-1", "inst-2", 0)
		if res.Error != domain.OutcomeCodeAlreadyUsed {
			t.Errorf("expected code_already_used, got %+v", res)
		}
		// An old client that sends no installation id still matches.
		res, _ = uc.Activate(ctx, c.Code, "hw-1", "", 0)
		if !res.OK {
			t.Errorf("expected success without installation id, got %+v", res)
		}
	})

	t.Run("should report expiry without deleting the binding", func(t *testing.T) {
		env := newTestEnv(t)
		clock := &fixedClock{now: start}
		uc := env.activations(clock.Now)
		c := env.mustCode(t, 30, false)
		_, _ = uc.Activate(ctx, c.Code, "hw-1", "", 0)

		clock.Advance(31 * 24 * time.Hour)
		res, _ := uc.Activate(ctx, c.Code, "hw-1", "", 0)
		if res.Error != domain.OutcomeExpired {
			t.Errorf("expected expired, got %+v", res)
		}
		if live, _ := env.s.Activations.HasLive(ctx, repository.NoTX, c.ID); !live {
			t.Error("expired bindings are kept")
		}
		// Expired bindings still hold the code.
		res, _ = uc.Activate(ctx, c.Code, "hw-2", "", 0)
		if res.Error != domain.OutcomeCodeAlreadyUsed {
			t.Errorf("expected code_already_used, got %+v", res)
		}
	})

	t.Run("should report revoked for any hwid once revoked", func(t *testing.T) {
		tests := []struct {
			name      string
			bindFirst bool
			hwid      string
			check     bool
		}{
			{"activate on the bound hwid", true, "hw-1", false},
			{"check on the bound hwid", true, "hw-1", true},
			{"activate on a new hwid", true, "hw-2", false},
			{"check on a new hwid", true, "hw-2", true},
			{"activate a code revoked while free", false, "hw-1", false},
			{"check a code revoked while free", false, "hw-1", true},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				// Arrange
				env := newTestEnv(t)
				uc := env.activations()
				c := env.mustCode(t, 30, false)
				if tt.bindFirst {
					if res, _ := uc.Activate(ctx, c.Code, "hw-1", "", 0); !res.OK {
						t.Fatalf("setup activation failed: %+v", res)
					}
				}
				if ok, err := env.licenses().Revoke(ctx, c.Code); !ok || err != nil {
					t.Fatalf("Revoke failed: %v %v", ok, err)
				}

				// Act
				var res model.ActivationResult
				var err error
				if tt.check {
					res, err = uc.Check(ctx, c.Code, tt.hwid, "")
				} else {
					res, err = uc.Activate(ctx, c.Code, tt.hwid, "", 0)
				}

				// Assert
				if err != nil || res.OK || res.Error != domain.OutcomeRevoked {
					t.Errorf("expected revoked, got %+v (%v)", res, err)
				}
				if live, _ := env.s.Activations.HasLive(ctx, repository.NoTX, c.ID); live {
					t.Error("a revoked code must not gain a live binding")
				}
			})
		}
	})

	t.Run("should never expire developer codes", func(t *testing.T) {
		env := newTestEnv(t)
		clock := &fixedClock{now: start}
		uc := env.activations(clock.Now)
		c := env.mustCode(t, 0, true)

		res, err := uc.Activate(ctx, c.Code, "hw-dev", "", 0)
		if err != nil || !res.OK || !res.IsDeveloper || res.ExpiresAt != nil {
			t.Fatalf("expected perpetual success, got %+v (%v)", res, err)
		}
		clock.Advance(10 * 365 * 24 * time.Hour)
		res, _ = uc.Check(ctx, c.Code, "hw-dev", "")
		if !res.OK {
			t.Errorf("developer binding expired: %+v", res)
		}
	})
}

func TestActivationUseCase_Check(t *testing.T) {
	ctx := context.Background()

	t.Run("should never insert", func(t *testing.T) {
		env := newTestEnv(t)
		uc := env.activations()
		c := env.mustCode(t, 30, false)

		res, err := uc.Check(ctx, c.Code, "hw-1", "")
		if err != nil || res.Error != domain.OutcomeNotActivated {
			t.Fatalf("expected not_activated, got %+v (%v)", res, err)
		}
		if live, _ := env.s.Activations.HasLive(ctx, repository.NoTX, c.ID); live {
			t.Error("Check must not bind the code")
		}
	})

	t.Run("should report not_activated for a mismatched installation", func(t *testing.T) {
		env := newTestEnv(t)
		uc := env.activations()
		c := env.mustCode(t, 30, false)
		_, _ = uc.Activate(ctx, c.Code, "hw-1", "inst-1", 0)

		res, _ := uc.Check(ctx, c.Code, "hw-1", "inst-2")
		if res.Error != domain.OutcomeNotActivated {
			t.Errorf("expected not_activated, got %+v", res)
		}
	})

	t.Run("should activate on first check through CheckOrActivate", func(t *testing.T) {
		env := newTestEnv(t)
		uc := env.activations()
		c := env.mustCode(t, 30, false)

		res, err := uc.CheckOrActivate(ctx, c.Code, "hw-1", "")
		if err != nil || !res.OK {
			t.Fatalf("expected success, got %+v (%v)", res, err)
		}
		res, _ = uc.CheckOrActivate(ctx, c.Code, "hw-2", "")
		if res.Error != domain.OutcomeCodeAlreadyUsed {
			t.Errorf("expected code_already_used, got %+v", res)
		}
		res, _ = uc.CheckOrActivate(ctx, "FFFF", "hw-2", "")
		if res.Error != domain.OutcomeInvalidCode {
			t.Errorf("expected invalid_code, got %+v", res)
		}
	})
}

func TestActivationResult_Helpers(t *testing.T) {
	if r := model.Fail(domain.OutcomeExpired); r.OK || r.Error != domain.OutcomeExpired {
		t.Errorf("unexpected failure result %+v", r)
	}
}
