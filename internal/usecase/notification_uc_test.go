//go:build !integration

package usecase_test

import (
	"context"
	"errors"
	"testing"

	"telegram-license-server/internal/domain/model"
	"telegram-license-server/internal/usecase"
)

func TestNotificationUseCase(t *testing.T) {
	ctx := context.Background()

	t.Run("should message the payer and every admin once", func(t *testing.T) {
		// Arrange
		env := newTestEnv(t)
		admins := usecase.NewAdminUseCase(env.s.Admins, []int64{900, 901}, newTestLogger())
		_, _ = admins.AddAdmin(ctx, 901, "dup", 900)
		_, _ = admins.AddAdmin(ctx, 902, "extra", 900)
		bot := &MockTelegramBot{}
		uc := usecase.NewNotificationUseCase(bot, newTestTranslator(t), admins, env.s.Users, newTestLogger())
		order := model.Order{OrderID: "o", PayerID: 5, AmountUSD: 15, PlanDays: 30, PaymentSystem: "card"}

		// Act
		err := uc.PaymentFulfilled(ctx, order, "ABCD")

		// Assert
		if err != nil {
			t.Fatalf("PaymentFulfilled failed: %v", err)
		}
		msgs := bot.Messages()
		if len(msgs) != 4 {
			t.Fatalf("expected 4 messages, got %d", len(msgs))
		}
		if msgs[0].ChatID != 5 || msgs[0].Text != "paid 30 ABCD" {
			t.Errorf("unexpected payer message %+v", msgs[0])
		}
		if msgs[1].Text != "admin 5 $15.00 30 card ABCD" {
			t.Errorf("unexpected admin message %q", msgs[1].Text)
		}
	})

	t.Run("should keep going when one admin fails", func(t *testing.T) {
		env := newTestEnv(t)
		admins := usecase.NewAdminUseCase(env.s.Admins, []int64{900, 901}, newTestLogger())
		boom := errors.New("blocked by user")
		bot := &MockTelegramBot{SendMessageFunc: func(_ context.Context, id int64, _ string) error {
			if id == 900 {
				return boom
			}
			return nil
		}}
		uc := usecase.NewNotificationUseCase(bot, newTestTranslator(t), admins, env.s.Users, newTestLogger())

		err := uc.PaymentFulfilled(ctx, model.Order{PayerID: 5, PlanDays: 30}, "C")
		if !errors.Is(err, boom) {
			t.Errorf("expected the send error to surface, got %v", err)
		}
		if n := len(bot.Messages()); n != 3 {
			t.Errorf("expected 3 attempts, got %d", n)
		}
	})

	t.Run("should only message registered assignees", func(t *testing.T) {
		env := newTestEnv(t)
		admins := usecase.NewAdminUseCase(env.s.Admins, nil, newTestLogger())
		bot := &MockTelegramBot{}
		uc := usecase.NewNotificationUseCase(bot, newTestTranslator(t), admins, env.s.Users, newTestLogger())
		env.mustUser(t, 77, "gina", 0)

		if sent, err := uc.CodeAssigned(ctx, "@Gina", "XYZ"); err != nil || !sent {
			t.Errorf("expected a message, got %v %v", sent, err)
		}
		if sent, _ := uc.CodeAssigned(ctx, "stranger", "XYZ"); sent {
			t.Error("unknown usernames cannot be messaged")
		}
		if msgs := bot.Messages(); len(msgs) != 1 || msgs[0].ChatID != 77 || msgs[0].Text != "assigned XYZ" {
			t.Errorf("unexpected messages %+v", msgs)
		}
	})
}
