package billing

import "time"

// PaymentEvent is the processor-agnostic shape a webhook payload normalizes
// into before reconciliation.
type PaymentEvent struct {
	TransactionID string
	Phone         string
	Amount        int64
	Plan          string
	Status        string
	Event         string
	Receipt       string
	Reference     string
	DeviceID      string
	IntentID      string
	// PlanExplicit records whether Plan came from an explicit signal rather
	// than amount-tier inference; inferred plans yield to an intent's plan
	// during backfill.
	PlanExplicit bool
}

// ParsePaymentEvent runs the ordered field probes over a decoded payload. The
// event header (when the vendor sends one) outranks any event field in the
// body.
func ParsePaymentEvent(payload map[string]interface{}, eventHeader string) *PaymentEvent {
	reference := ExtractReference(payload)
	amount := ExtractAmount(payload)

	event := eventHeader
	if event == "" {
		event = ExtractEvent(payload)
	}

	return &PaymentEvent{
		TransactionID: ExtractTransactionID(payload),
		Phone:         ExtractPhone(payload, reference),
		Amount:        amount,
		Plan:          ExtractPlan(payload, reference, amount),
		Status:        ExtractStatus(payload),
		Event:         event,
		Receipt:       ExtractReceipt(payload),
		Reference:     reference,
		DeviceID:      ExtractDeviceID(payload, reference),
		IntentID:      ExtractIntentID(payload, reference),
		PlanExplicit:  ExplicitPlan(payload, reference) != "",
	}
}

// InitInput is the client request to open a payment intent.
type InitInput struct {
	Phone    string
	DeviceID string
	Amount   int64
	Plan     string
}

// InitResult is returned to the client after an intent is opened.
type InitResult struct {
	IntentID  string    `json:"intent_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// WebhookResult is the acknowledgement body returned to the processor.
type WebhookResult struct {
	Success       bool   `json:"success"`
	TransactionID string `json:"transaction_id"`
	Phone         string `json:"phone,omitempty"`
	Amount        int64  `json:"amount"`
	Status        string `json:"status"`
}

// ClaimInput identifies the payment a device wants bound to itself. Exactly
// one of TransactionID, Receipt, or IntentID is needed; they are tried in
// that order.
type ClaimInput struct {
	Phone         string
	DeviceID      string
	TransactionID string
	Receipt       string
	IntentID      string
}

// ClaimResult is the confirmed binding returned to the client.
type ClaimResult struct {
	Phone     string    `json:"phone"`
	Plan      string    `json:"plan"`
	PaidUntil time.Time `json:"paid_until"`
}

// StatusResult is the read-only subscription projection for a (phone, device)
// pair. Reason tells client UIs which remediation to offer.
type StatusResult struct {
	Phone     string     `json:"phone"`
	Premium   bool       `json:"premium"`
	Plan      string     `json:"plan,omitempty"`
	PaidUntil *time.Time `json:"paid_until,omitempty"`
	Reason    string     `json:"reason,omitempty"`
}
