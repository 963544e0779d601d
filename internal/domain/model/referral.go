package model

import "time"

// Referral records who brought whom. ReferredID is unique: first claim wins.
type Referral struct {
	ID         int64
	ReferrerID int64
	ReferredID int64
	CreatedAt  time.Time

	// Joined from users.
	ReferredUsername string
}

// ReferrerStat is one row of the referral stats report.
type ReferrerStat struct {
	ReferrerID    int64
	Username      string
	ReferralCount int
	PendingUSD    float64
	Percent       float64
}

// PendingCodeAssign stages which code an admin is about to assign.
// It logically expires an hour after CreatedAt.
type PendingCodeAssign struct {
	AdminID   int64
	Code      string
	CreatedAt time.Time
}

const PendingAssignTTL = time.Hour

// Admin is an appointed bot admin stored in the database, in addition to
// the ones named in configuration.
type Admin struct {
	TelegramID int64
	Username   string
	AddedBy    int64
	AddedAt    time.Time
}

// Setting is a key/value pair of runtime configuration.
type Setting struct {
	Key       string
	Value     string
	UpdatedAt time.Time
}
