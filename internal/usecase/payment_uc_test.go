//go:build !integration

package usecase_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"telegram-license-server/internal/domain"
	"telegram-license-server/internal/domain/model"
	"telegram-license-server/internal/domain/ports/repository"
	"telegram-license-server/internal/infra/worker"
	"telegram-license-server/internal/usecase"
)

func TestPaymentUseCase_AddPayment(t *testing.T) {
	ctx := context.Background()

	t.Run("should accrue the referrer's commission", func(t *testing.T) {
		tests := []struct {
			name   string
			role   string
			custom *float64
			amount float64
			want   float64
		}{
			{"client referrer earns 10 percent", "client", nil, 25, 2.5},
			{"partner referrer earns 20 percent", "partner", nil, 35, 7},
			{"override is applied and rounded", "client", func() *float64 { v := 7.5; return &v }(), 15, 1.13},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				// Arrange
				env := newTestEnv(t)
				ids := env.identities()
				env.mustUser(t, 1, "ref", 0)
				env.mustUser(t, 2, "payer", 1)
				_, _ = ids.SetRole(ctx, 1, tt.role)
				if tt.custom != nil {
					_, _ = ids.SetCustomDiscount(ctx, 1, tt.custom)
				}
				uc := env.payments(nil)

				// Act
				id, recorded, err := uc.AddPayment(ctx, 2, tt.amount, 30, nil, "ord-"+tt.name, "card")

				// Assert
				if err != nil || !recorded || id == 0 {
					t.Fatalf("AddPayment failed: %d %v %v", id, recorded, err)
				}
				payouts, _ := uc.UserPayouts(ctx, 1)
				if len(payouts) != 1 || payouts[0].AmountUSD != tt.want || payouts[0].PaymentID != id {
					t.Fatalf("unexpected payouts %+v", payouts)
				}
				if payouts[0].Status != domain.PayoutPending {
					t.Errorf("expected pending payout, got %s", payouts[0].Status)
				}
			})
		}
	})

	t.Run("should skip the payout without a referrer", func(t *testing.T) {
		env := newTestEnv(t)
		env.mustUser(t, 2, "payer", 0)
		uc := env.payments(nil)

		if _, _, err := uc.AddPayment(ctx, 2, 15, 30, nil, "", "card"); err != nil {
			t.Fatalf("AddPayment failed: %v", err)
		}
		stats, _ := uc.ReferralStats(ctx)
		if len(stats) != 0 {
			t.Errorf("expected no referrers, got %+v", stats)
		}
	})

	t.Run("should skip a zero payout", func(t *testing.T) {
		env := newTestEnv(t)
		env.mustUser(t, 1, "ref", 0)
		env.mustUser(t, 2, "payer", 1)
		zero := 0.0
		_, _ = env.identities().SetCustomDiscount(ctx, 1, &zero)
		uc := env.payments(nil)

		_, _, _ = uc.AddPayment(ctx, 2, 15, 30, nil, "z-1", "card")
		if payouts, _ := uc.UserPayouts(ctx, 1); len(payouts) != 0 {
			t.Errorf("expected no payout, got %+v", payouts)
		}
	})

	t.Run("should return the first payment for a reused order id", func(t *testing.T) {
		env := newTestEnv(t)
		env.mustUser(t, 1, "ref", 0)
		env.mustUser(t, 2, "payer", 1)
		uc := env.payments(nil)

		first, recorded, err := uc.AddPayment(ctx, 2, 15, 30, nil, "dup-1", "card")
		if err != nil || !recorded {
			t.Fatalf("first AddPayment failed: %v", err)
		}
		second, recorded, err := uc.AddPayment(ctx, 2, 99, 90, nil, " dup-1 ", "card")
		if err != nil {
			t.Fatalf("second AddPayment failed: %v", err)
		}
		if recorded || second != first {
			t.Errorf("expected (%d, false), got (%d, %v)", first, second, recorded)
		}
		if total, _ := uc.TotalPending(ctx, 1); total != 1.5 {
			t.Errorf("duplicate must not accrue, pending = %v", total)
		}
		if exists, _ := uc.PaymentExists(ctx, "dup-1"); !exists {
			t.Error("expected PaymentExists to see dup-1")
		}
	})

	t.Run("should reject a missing payer", func(t *testing.T) {
		env := newTestEnv(t)
		if _, _, err := env.payments(nil).AddPayment(ctx, 0, 1, 30, nil, "", ""); !errors.Is(err, domain.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
	})
}

func TestPaymentUseCase_Payouts(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.mustUser(t, 1, "ref", 0)
	env.mustUser(t, 2, "a", 1)
	env.mustUser(t, 3, "b", 1)
	_, _ = env.identities().SetRole(ctx, 1, "partner")
	uc := env.payments(nil)
	_, _, _ = uc.AddPayment(ctx, 2, 15, 30, nil, "p-1", "card")
	_, _, _ = uc.AddPayment(ctx, 3, 25, 60, nil, "p-2", "card")

	stats, err := uc.ReferralStats(ctx)
	if err != nil || len(stats) != 1 {
		t.Fatalf("expected one referrer, got %+v (%v)", stats, err)
	}
	s := stats[0]
	if s.ReferrerID != 1 || s.ReferralCount != 2 || s.PendingUSD != 8 || s.Percent != domain.PartnerReferralPercent {
		t.Errorf("unexpected stat %+v", s)
	}

	n, err := uc.MarkPayoutsPaid(ctx, 1)
	if err != nil || n != 2 {
		t.Fatalf("expected 2 paid, got %d (%v)", n, err)
	}
	if total, _ := uc.TotalPending(ctx, 1); total != 0 {
		t.Errorf("expected nothing pending, got %v", total)
	}
	payouts, _ := uc.UserPayouts(ctx, 1)
	for _, p := range payouts {
		if p.Status != domain.PayoutPaid || p.PaidAt == nil {
			t.Errorf("payout not marked paid: %+v", p)
		}
	}

	recent, _ := uc.RecentPayments(ctx, 1)
	if len(recent) != 1 {
		t.Errorf("expected limit to apply, got %d", len(recent))
	}
}

func TestPaymentUseCase_FulfillOrder(t *testing.T) {
	ctx := context.Background()
	order := model.Order{
		OrderID:       "inv-1",
		PayerID:       42,
		Username:      "@buyer",
		AmountUSD:     25,
		PlanDays:      60,
		PaymentSystem: "cryptobot",
	}

	t.Run("should mint, record and notify through the pool", func(t *testing.T) {
		// Arrange
		env := newTestEnv(t)
		bot := &MockTelegramBot{}
		var wg sync.WaitGroup
		wg.Add(2) // payer + one admin
		bot.SendMessageFunc = func(context.Context, int64, string) error {
			wg.Done()
			return nil
		}
		admins := usecase.NewAdminUseCase(env.s.Admins, []int64{900}, newTestLogger())
		notifier := usecase.NewNotificationUseCase(bot, newTestTranslator(t), admins, env.s.Users, newTestLogger())

		pool := worker.NewPool("test", 1, 4, newTestLogger())
		pool.Start(ctx)
		defer pool.Stop()

		s := env.s
		uc := usecase.NewPaymentUseCase(s.Payments, s.Payouts, s.Users, s.Codes, env.tm, newTestLogger()).
			WithNotifier(notifier, pool)

		// Act
		out, err := uc.FulfillOrder(ctx, order)

		// Assert (Immediate)
		if err != nil || out.Duplicate {
			t.Fatalf("FulfillOrder failed: %+v %v", out, err)
		}
		if !codeFormat.MatchString(out.Code) {
			t.Errorf("unexpected code %q", out.Code)
		}
		c, err := s.Codes.FindByCode(ctx, repository.NoTX, out.Code)
		if err != nil || c.Days != 60 || c.Assignee() != "buyer" {
			t.Errorf("unexpected minted code %+v (%v)", c, err)
		}
		p, err := s.Payments.FindByOrderID(ctx, repository.NoTX, "inv-1")
		if err != nil || p.CodeID == nil || *p.CodeID != c.ID || p.PaymentSystem != "cryptobot" {
			t.Errorf("unexpected payment %+v (%v)", p, err)
		}

		// Assert (Asynchronous)
		done := make(chan struct{})
		go func() { wg.Wait(); close(done) }()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for notifications")
		}
		msgs := bot.Messages()
		if msgs[0].ChatID == msgs[1].ChatID {
			t.Errorf("expected payer and admin messages, got %+v", msgs)
		}
		for _, m := range msgs {
			if !strings.Contains(m.Text, out.Code) {
				t.Errorf("message without the code: %q", m.Text)
			}
		}
	})

	t.Run("should ignore a repeated order", func(t *testing.T) {
		env := newTestEnv(t)
		bot := &MockTelegramBot{}
		admins := usecase.NewAdminUseCase(env.s.Admins, nil, newTestLogger())
		uc := env.payments(usecase.NewNotificationUseCase(bot, newTestTranslator(t), admins, env.s.Users, newTestLogger()))

		first, err := uc.FulfillOrder(ctx, order)
		if err != nil {
			t.Fatalf("first FulfillOrder failed: %v", err)
		}
		second, err := uc.FulfillOrder(ctx, order)
		if err != nil || !second.Duplicate || second.Code != "" {
			t.Fatalf("expected duplicate, got %+v (%v)", second, err)
		}
		codes, _ := env.licenses().ListCodes(ctx)
		if len(codes) != 1 || codes[0].Code.Code != first.Code {
			t.Errorf("duplicate must not mint, got %d codes", len(codes))
		}
		if n := len(bot.Messages()); n != 1 {
			t.Errorf("expected one payer message, got %d", n)
		}
	})

	t.Run("should validate the order", func(t *testing.T) {
		env := newTestEnv(t)
		uc := env.payments(nil)
		bad := []model.Order{
			{OrderID: "", PayerID: 1, PlanDays: 30},
			{OrderID: "x", PayerID: 0, PlanDays: 30},
			{OrderID: "x", PayerID: 1, PlanDays: 0},
		}
		for _, o := range bad {
			if _, err := uc.FulfillOrder(ctx, o); !errors.Is(err, domain.ErrInvalidArgument) {
				t.Errorf("order %+v: expected ErrInvalidArgument, got %v", o, err)
			}
		}
	})
}
