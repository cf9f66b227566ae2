package models

import "time"

const (
	PlanOneHour = "one_hour"
	PlanSixHour = "six_hour"
	PlanDaily   = "daily"
	PlanWeekly  = "weekly"
)

const (
	SubStatusActive        = "active"
	SubStatusPendingDevice = "pending_device"
	SubStatusCancelled     = "cancelled"
)

// Subscription is the one logical per-phone subscription record. It is never
// deleted; Status and PaidUntil express lifecycle, not presence.
type Subscription struct {
	Phone         string     `json:"phone"`
	Status        string     `json:"status"`
	Plan          string     `json:"plan"`
	Amount        int64      `json:"amount,omitempty"`
	PaidUntil     *time.Time `json:"paid_until,omitempty"`
	LastTxn       string     `json:"last_txn,omitempty"`
	LastPaymentAt *time.Time `json:"last_payment_at,omitempty"`
	MpesaReceipt  string     `json:"mpesa_receipt,omitempty"`
	Reference     string     `json:"reference,omitempty"`
	DeviceID      string     `json:"device_id,omitempty"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// ValidUntil reports whether the subscription entitles access at the given
// instant for the given device.
func (s *Subscription) ValidUntil(now time.Time, deviceID string) bool {
	if s.Status == SubStatusCancelled {
		return false
	}
	if s.PaidUntil != nil && !s.PaidUntil.After(now) {
		return false
	}
	return s.DeviceID != "" && s.DeviceID == deviceID
}
