package model

import "time"

// Identity is either a registered User or a staged PendingIdentity.
// Exactly one of the two is set.
type Identity struct {
	user    *User
	pending *PendingIdentity
}

func Registered(u *User) Identity            { return Identity{user: u} }
func Staged(p *PendingIdentity) Identity     { return Identity{pending: p} }
func (i Identity) IsRegistered() bool        { return i.user != nil }
func (i Identity) User() *User               { return i.user }
func (i Identity) Pending() *PendingIdentity { return i.pending }

// TelegramID is 0 for staged identities.
func (i Identity) TelegramID() int64 {
	if i.user != nil {
		return i.user.TelegramID
	}
	return 0
}

func (i Identity) Username() string {
	if i.user != nil {
		return i.user.Username
	}
	if i.pending != nil {
		return i.pending.Username
	}
	return ""
}

func (i Identity) Role() string {
	if i.user != nil {
		return i.user.Role()
	}
	if i.pending != nil {
		return i.pending.Role()
	}
	return ""
}

func (i Identity) IsBlocked() bool {
	if i.user != nil {
		return i.user.IsBlocked
	}
	return i.pending != nil && i.pending.IsBlocked
}

func (i Identity) CustomDiscountPct() *float64 {
	if i.user != nil {
		return i.user.CustomDiscountPct
	}
	if i.pending != nil {
		return i.pending.CustomDiscountPct
	}
	return nil
}

// Since is first_seen for users and created_at for staged identities.
func (i Identity) Since() time.Time {
	if i.user != nil {
		return i.user.FirstSeen
	}
	if i.pending != nil {
		return i.pending.CreatedAt
	}
	return time.Time{}
}

// SubscriptionInfo is the license a person currently holds. Status is
// "activated" when bound to a machine, "assigned" when only assigned.
type SubscriptionInfo struct {
	Code        string
	Status      string
	ExpiresAt   *time.Time
	IsDeveloper bool
}

const (
	SubscriptionActivated = "activated"
	SubscriptionAssigned  = "assigned"
)

// DaysLeft is -1 for perpetual licenses and never negative otherwise.
func (s *SubscriptionInfo) DaysLeft(now time.Time) int {
	if s.IsDeveloper || s.ExpiresAt == nil {
		return -1
	}
	d := int(s.ExpiresAt.Sub(now).Hours() / 24)
	if d < 0 {
		return 0
	}
	return d
}

// ClientInfo is the uniform read model for both identity tiers.
type ClientInfo struct {
	TelegramID        int64
	Username          string
	Role              string
	IsBlocked         bool
	CustomDiscountPct *float64
	Registered        bool
	Since             time.Time
	Referrer          string // "@name", or the numeric id when the referrer has no username
	Subscription      *SubscriptionInfo
	ReferralCount     int
	PendingUSD        float64
	Percent           float64
}
