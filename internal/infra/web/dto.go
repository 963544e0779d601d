package web

import (
	"time"

	"telegram-license-server/internal/domain/model"
)

type activationDTO struct {
	HWID           string     `json:"hwid"`
	InstallationID *string    `json:"installation_id"`
	ActivatedAt    time.Time  `json:"activated_at"`
	ExpiresAt      *time.Time `json:"expires_at"`
	Revoked        bool       `json:"revoked"`
}

type codeDTO struct {
	Code             string         `json:"code"`
	Days             int            `json:"days"`
	IsDeveloper      bool           `json:"is_developer"`
	AssignedUsername *string        `json:"assigned_username"`
	CreatedAt        time.Time      `json:"created_at"`
	Activation       *activationDTO `json:"activation,omitempty"`
}

func toCodeDTO(c *model.Code, a *model.Activation) codeDTO {
	d := codeDTO{
		Code:             c.Code,
		Days:             c.Days,
		IsDeveloper:      c.IsDeveloper,
		AssignedUsername: c.AssignedUsername,
		CreatedAt:        c.CreatedAt,
	}
	if a != nil {
		d.Activation = &activationDTO{
			HWID:           a.HWID,
			InstallationID: a.InstallationID,
			ActivatedAt:    a.ActivatedAt,
			ExpiresAt:      a.ExpiresAt,
			Revoked:        a.Revoked,
		}
	}
	return d
}

type codeStatusDTO struct {
	Code        string     `json:"code"`
	State       string     `json:"state"`
	HWID        string     `json:"hwid,omitempty"`
	ActivatedAt *time.Time `json:"activated_at,omitempty"`
}

type subscriptionDTO struct {
	Code        string     `json:"code"`
	Status      string     `json:"status"`
	ExpiresAt   *time.Time `json:"expires_at"`
	IsDeveloper bool       `json:"is_developer"`
	DaysLeft    int        `json:"days_left"`
}

type clientDTO struct {
	TelegramID        int64            `json:"telegram_id,omitempty"`
	Username          string           `json:"username"`
	Role              string           `json:"role"`
	Blocked           bool             `json:"blocked"`
	CustomDiscountPct *float64         `json:"custom_discount_pct"`
	Registered        bool             `json:"registered"`
	Since             *time.Time       `json:"since,omitempty"`
	Referrer          string           `json:"referrer,omitempty"`
	Subscription      *subscriptionDTO `json:"subscription"`
	ReferralCount     int              `json:"referral_count"`
	PendingUSD        float64          `json:"pending_usd"`
	Percent           float64          `json:"referral_percent"`
}

func toClientDTO(c *model.ClientInfo, now time.Time) clientDTO {
	d := clientDTO{
		TelegramID:        c.TelegramID,
		Username:          c.Username,
		Role:              c.Role,
		Blocked:           c.IsBlocked,
		CustomDiscountPct: c.CustomDiscountPct,
		Registered:        c.Registered,
		Referrer:          c.Referrer,
		ReferralCount:     c.ReferralCount,
		PendingUSD:        c.PendingUSD,
		Percent:           c.Percent,
	}
	if !c.Since.IsZero() {
		since := c.Since
		d.Since = &since
	}
	if sub := c.Subscription; sub != nil {
		d.Subscription = &subscriptionDTO{
			Code:        sub.Code,
			Status:      sub.Status,
			ExpiresAt:   sub.ExpiresAt,
			IsDeveloper: sub.IsDeveloper,
			DaysLeft:    sub.DaysLeft(now),
		}
	}
	return d
}

type referralDTO struct {
	ReferredID       int64     `json:"referred_id"`
	ReferredUsername string    `json:"referred_username"`
	CreatedAt        time.Time `json:"created_at"`
}

type referrerStatDTO struct {
	ReferrerID    int64   `json:"referrer_id"`
	Username      string  `json:"username"`
	ReferralCount int     `json:"referral_count"`
	PendingUSD    float64 `json:"pending_usd"`
	Percent       float64 `json:"percent"`
}

type payoutDTO struct {
	PaymentID int64      `json:"payment_id"`
	AmountUSD float64    `json:"amount_usd"`
	Percent   float64    `json:"percent"`
	Status    string     `json:"status"`
	CreatedAt time.Time  `json:"created_at"`
	PaidAt    *time.Time `json:"paid_at"`
}

type paymentDTO struct {
	ID            int64     `json:"id"`
	UserID        int64     `json:"user_id"`
	AmountUSD     float64   `json:"amount_usd"`
	PlanDays      int       `json:"plan_days"`
	Status        string    `json:"status"`
	OrderID       *string   `json:"order_id"`
	PaymentSystem string    `json:"payment_system"`
	CreatedAt     time.Time `json:"created_at"`
}

func toPaymentDTO(p *model.Payment) paymentDTO {
	return paymentDTO{
		ID:            p.ID,
		UserID:        p.UserTelegramID,
		AmountUSD:     p.AmountUSD,
		PlanDays:      p.PlanDays,
		Status:        p.Status,
		OrderID:       p.OrderID,
		PaymentSystem: p.PaymentSystem,
		CreatedAt:     p.CreatedAt,
	}
}

type settingDTO struct {
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

type adminDTO struct {
	TelegramID int64     `json:"telegram_id"`
	Username   string    `json:"username"`
	AddedBy    int64     `json:"added_by"`
	AddedAt    time.Time `json:"added_at"`
}
