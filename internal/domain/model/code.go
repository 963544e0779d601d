package model

import (
	"strings"
	"time"

	"telegram-license-server/internal/domain"
)

// Code is a license code. Developer codes are perpetual and always carry Days == 0.
type Code struct {
	ID               int64
	Code             string
	Days             int
	IsDeveloper      bool
	AssignedUsername *string // Pointer to allow for NULL
	CreatedAt        time.Time
	// RevokedAt is set once by Revoke and never cleared.
	RevokedAt *time.Time
}

// NewCode validates the plan length and normalizes developer codes.
func NewCode(value string, days int, isDeveloper bool) (*Code, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, domain.ErrInvalidArgument
	}
	if isDeveloper {
		days = 0
	} else if days <= 0 {
		return nil, domain.ErrInvalidArgument
	}
	return &Code{
		Code:        value,
		Days:        days,
		IsDeveloper: isDeveloper,
		CreatedAt:   time.Now().UTC(),
	}, nil
}

// Assignee returns the assigned username or "".
func (c *Code) Assignee() string {
	if c == nil || c.AssignedUsername == nil {
		return ""
	}
	return *c.AssignedUsername
}

// IsRevoked reports whether the code was revoked, bound or not.
func (c *Code) IsRevoked() bool {
	return c != nil && c.RevokedAt != nil
}

// Code states as reported by ActivationStatus.
const (
	CodeStateFree      = "free"
	CodeStateActivated = "activated"
	CodeStateRevoked   = "revoked"
)

// CodeStatus describes the most recent binding of a code.
type CodeStatus struct {
	Code        string
	State       string
	HWID        string
	ActivatedAt *time.Time
	Revoked     bool
}

// CodeListing pairs a code with its latest activation, if any.
type CodeListing struct {
	Code       Code
	Activation *Activation
}

// NormalizeCode upper-cases and trims user-supplied code input.
func NormalizeCode(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}
