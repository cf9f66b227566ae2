package models

import "time"

// IntentTTL bounds how long an intent may correlate a webhook to a
// phone/device pair before it is treated as absent.
const IntentTTL = 3 * time.Hour

// PaymentIntent is a short-lived correlation record created by the client
// before it initiates a payment. Immutable after creation except for the
// UsedAt/TxnID fields, written once when the payment is reconciled.
type PaymentIntent struct {
	ID        string     `json:"id"`
	Phone     string     `json:"phone"`
	DeviceID  string     `json:"device_id"`
	Plan      string     `json:"plan,omitempty"`
	Amount    int64      `json:"amount,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	ExpiresAt time.Time  `json:"expires_at"`
	UsedAt    *time.Time `json:"used_at,omitempty"`
	TxnID     string     `json:"txn_id,omitempty"`
}

// Expired reports whether the intent has passed its soft expiry. The store
// TTL handles physical deletion; this guards against lagging eviction.
func (i *PaymentIntent) Expired(now time.Time) bool {
	return !i.ExpiresAt.IsZero() && now.After(i.ExpiresAt)
}
