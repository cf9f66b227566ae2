package models

import "time"

// TxnIntentIndexTTL bounds the intent-to-transaction lookup index. The
// transaction record itself is durable.
const TxnIntentIndexTTL = 7 * 24 * time.Hour

// Transaction is the append-only ledger record for a single payment event,
// written exactly once per processor transaction id. Receipt and intent index
// entries are lookup aids only, never separate sources of truth.
type Transaction struct {
	ID           string    `json:"id"`
	Phone        string    `json:"phone,omitempty"`
	Amount       int64     `json:"amount"`
	Plan         string    `json:"plan"`
	Status       string    `json:"status"`
	MpesaReceipt string    `json:"mpesa_receipt,omitempty"`
	Reference    string    `json:"reference"`
	DeviceID     string    `json:"device_id,omitempty"`
	IntentID     string    `json:"intent_id,omitempty"`
	Event        string    `json:"event,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
	// SubscriptionApplied gates reconciliation: once true, replays of the
	// same transaction id never re-extend paid_until.
	SubscriptionApplied bool       `json:"subscription_applied,omitempty"`
	PaidUntil           *time.Time `json:"paid_until,omitempty"`
}
