package model

import "time"

// Activation binds a code to one machine. Rows are only ever flipped to revoked.
type Activation struct {
	ID             int64
	CodeID         int64
	HWID           string
	InstallationID *string
	UserTelegramID *int64
	ActivatedAt    time.Time
	ExpiresAt      *time.Time
	Revoked        bool

	// Joined from codes.
	Code        string
	IsDeveloper bool
}

// MatchesInstallation reports whether the binding may be used by a client
// presenting installationID. A stored id only constrains a non-empty incoming one.
func (a *Activation) MatchesInstallation(installationID string) bool {
	if a.InstallationID == nil || *a.InstallationID == "" || installationID == "" {
		return true
	}
	return *a.InstallationID == installationID
}

// IsExpired is derived at read time; developer bindings never expire.
func (a *Activation) IsExpired(now time.Time) bool {
	if a.IsDeveloper || a.ExpiresAt == nil {
		return false
	}
	return a.ExpiresAt.Before(now)
}

// ActivationResult is the outcome of Activate/Check. Error is one of the
// domain.Outcome* codes when OK is false.
type ActivationResult struct {
	OK          bool
	Error       string
	ExpiresAt   *time.Time
	IsDeveloper bool
}

func Fail(outcome string) ActivationResult {
	return ActivationResult{Error: outcome}
}

func Success(expiresAt *time.Time, isDeveloper bool) ActivationResult {
	return ActivationResult{OK: true, ExpiresAt: expiresAt, IsDeveloper: isDeveloper}
}
