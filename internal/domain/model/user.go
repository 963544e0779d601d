package model

import (
	"strings"
	"time"

	"telegram-license-server/internal/domain"
)

// User is a registered identity keyed by Telegram id.
type User struct {
	TelegramID        int64
	Username          string
	ReferredBy        *int64
	IsPartner         bool
	IsGift            bool
	IsBlocked         bool
	CustomDiscountPct *float64
	FirstSeen         time.Time
}

func NewUser(tgID int64, username string) (*User, error) {
	if tgID <= 0 {
		return nil, domain.ErrInvalidArgument
	}
	return &User{
		TelegramID: tgID,
		Username:   NormalizeUsername(username),
		FirstSeen:  time.Now().UTC(),
	}, nil
}

// Role folds the two flags into one label.
func (u *User) Role() string {
	return roleOf(u.IsPartner, u.IsGift)
}

// PendingIdentity is staged state keyed by lower-cased username, created
// before the person has contacted the bot.
type PendingIdentity struct {
	Username          string
	IsBlocked         bool
	IsPartner         bool
	IsGift            bool
	CustomDiscountPct *float64
	CreatedAt         time.Time
}

func (p *PendingIdentity) Role() string {
	return roleOf(p.IsPartner, p.IsGift)
}

func roleOf(partner, gift bool) string {
	switch {
	case partner:
		return domain.RolePartner
	case gift:
		return domain.RoleGift
	default:
		return domain.RoleClient
	}
}

// RoleFlags maps a role label to the (partner, gift) pair.
func RoleFlags(role string) (partner, gift bool, err error) {
	switch strings.ToLower(strings.TrimSpace(role)) {
	case domain.RoleClient:
		return false, false, nil
	case domain.RolePartner:
		return true, false, nil
	case domain.RoleGift:
		return false, true, nil
	}
	return false, false, domain.ErrInvalidRole
}

// NormalizeUsername trims whitespace, strips a leading "@" and extracts the
// name from t.me profile links.
func NormalizeUsername(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimLeft(s, "@")
	if i := strings.LastIndex(s, "t.me/"); i >= 0 {
		s = s[i+len("t.me/"):]
		if j := strings.IndexAny(s, "/?"); j >= 0 {
			s = s[:j]
		}
	}
	return strings.TrimSpace(s)
}

// PendingKey is the key used for staged identities.
func PendingKey(username string) string {
	return strings.ToLower(NormalizeUsername(username))
}
