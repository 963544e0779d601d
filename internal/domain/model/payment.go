package model

import "time"

// Payment is one recorded order. OrderID is globally unique when present.
type Payment struct {
	ID             int64
	UserTelegramID int64
	AmountUSD      float64
	PlanDays       int
	CodeID         *int64
	Status         string
	OrderID        *string
	PaymentSystem  string
	CreatedAt      time.Time
}

// ReferralPayout is the commission owed to a referrer for one payment.
type ReferralPayout struct {
	ID         int64
	ReferrerID int64
	PaymentID  int64
	AmountUSD  float64
	Percent    float64
	Status     string
	CreatedAt  time.Time
	PaidAt     *time.Time
}

// Order is an incoming paid order from a payment system.
type Order struct {
	OrderID       string
	PayerID       int64
	Username      string
	AmountUSD     float64
	PlanDays      int
	PaymentSystem string
}

// Fulfillment is what FulfillOrder produced. Duplicate is true when the
// order id had already been recorded and nothing was done.
type Fulfillment struct {
	PaymentID int64
	Code      string
	Duplicate bool
}
