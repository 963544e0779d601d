package domain

// Activation outcome codes. They travel to clients verbatim, so the values
// are part of the wire contract.
const (
	OutcomeInvalidCode     = "invalid_code"
	OutcomeNotActivated    = "not_activated"
	OutcomeExpired         = "expired"
	OutcomeRevoked         = "revoked"
	OutcomeCodeAlreadyUsed = "code_already_used"
)

// Client roles. Partner and gift are mutually exclusive flags; client means neither.
const (
	RoleClient  = "client"
	RolePartner = "partner"
	RoleGift    = "gift"
)

// Default referral percentages by referrer role.
const (
	PartnerReferralPercent = 20.0
	ClientReferralPercent  = 10.0
)

// Payout statuses.
const (
	PayoutPending = "pending"
	PayoutPaid    = "paid"
)

const PaymentConfirmed = "confirmed"
