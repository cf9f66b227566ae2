package billing

import (
	"regexp"

	"github.com/netpesa/netpesa/app/models"
)

// Field-name candidates per logical value, in priority order. Vendors disagree
// on naming and casing, so each probe lists every shape we have seen; the
// first key that resolves wins and partial matches are never merged.
var (
	phoneFields     = []string{"phone", "phone_number", "phoneNumber", "msisdn", "MSISDN", "customer_phone", "sender_phone", "mobile", "PhoneNumber"}
	deviceFields    = []string{"device_id", "deviceId", "device"}
	intentFields    = []string{"intent_id", "intentId", "intent", "client_reference"}
	referenceFields = []string{"reference", "account_reference", "AccountReference", "BillRefNumber", "narrative", "ref"}
	txnIDFields     = []string{"transaction_id", "transactionId", "txn_id", "TransID", "CheckoutRequestID", "id"}
	receiptFields   = []string{"mpesa_receipt", "MpesaReceiptNumber", "receipt", "receipt_number", "TransID"}
	amountFields    = []string{"amount", "Amount", "TransAmount", "amount_paid"}
	statusFields    = []string{"status", "Status", "state", "result_desc", "ResultDesc"}
	eventFields     = []string{"event", "Event", "type", "event_type"}
	planFields      = []string{"plan", "package", "bundle"}
)

var (
	deviceRefPattern = regexp.MustCompile(`(?i)device[=:]([A-Za-z0-9._:-]{6,128})`)
	intentRefPattern = regexp.MustCompile(`(?i)intent[=:]([A-Za-z0-9-]{8,64})`)
	planRefPattern   = regexp.MustCompile(`(?i)plan[=:]([A-Za-z0-9_-]+)`)
	phoneRefPattern  = regexp.MustCompile(`(254[17]\d{8}|0[17]\d{8}|[17]\d{8})`)
)

// payloadString resolves the first candidate key present with a string value,
// checking the top level and then a nested "data" object (several processors
// wrap the interesting fields one level down).
func payloadString(payload map[string]interface{}, keys []string) string {
	for _, scope := range payloadScopes(payload) {
		for _, key := range keys {
			if v, ok := scope[key].(string); ok && v != "" {
				return v
			}
		}
	}
	return ""
}

// payloadValue is payloadString without the string assertion, for fields like
// amount that arrive as JSON numbers.
func payloadValue(payload map[string]interface{}, keys []string) interface{} {
	for _, scope := range payloadScopes(payload) {
		for _, key := range keys {
			if v, ok := scope[key]; ok && v != nil {
				return v
			}
		}
	}
	return nil
}

func payloadScopes(payload map[string]interface{}) []map[string]interface{} {
	scopes := []map[string]interface{}{payload}
	if nested, ok := payload["data"].(map[string]interface{}); ok {
		scopes = append(scopes, nested)
	}
	return scopes
}

// ExtractPhone resolves a phone from known payload fields, falling back to a
// 9-or-12-digit number embedded in the free-text reference.
func ExtractPhone(payload map[string]interface{}, reference string) string {
	if phone := NormalizePhone(payloadString(payload, phoneFields)); phone != "" {
		return phone
	}
	if m := phoneRefPattern.FindString(reference); m != "" {
		return NormalizePhone(m)
	}
	return ""
}

// ExtractDeviceID resolves a device id from known payload fields, falling back
// to a device=<id> token in the reference.
func ExtractDeviceID(payload map[string]interface{}, reference string) string {
	if id := NormalizeDeviceID(payloadString(payload, deviceFields)); id != "" {
		return id
	}
	if m := deviceRefPattern.FindStringSubmatch(reference); m != nil {
		return NormalizeDeviceID(m[1])
	}
	return ""
}

// ExtractIntentID resolves an intent id from known payload fields, falling
// back to an intent=<id> token in the reference.
func ExtractIntentID(payload map[string]interface{}, reference string) string {
	if id := payloadString(payload, intentFields); id != "" {
		return id
	}
	if m := intentRefPattern.FindStringSubmatch(reference); m != nil {
		return m[1]
	}
	return ""
}

// ExtractPlan resolves a plan with explicit signals always outranking
// inference: explicit field, then a plan=<code> reference token, then the
// amount tier, then the daily default.
func ExtractPlan(payload map[string]interface{}, reference string, amount int64) string {
	if plan := ExplicitPlan(payload, reference); plan != "" {
		return plan
	}
	if plan := PlanForAmount(amount); plan != "" {
		return plan
	}
	return models.PlanDaily
}

// ExplicitPlan resolves only the explicit plan signals (payload field or
// plan=<code> reference token), with no inference fallback.
func ExplicitPlan(payload map[string]interface{}, reference string) string {
	if plan := NormalizePlan(payloadString(payload, planFields)); plan != "" {
		return plan
	}
	if m := planRefPattern.FindStringSubmatch(reference); m != nil {
		return NormalizePlan(m[1])
	}
	return ""
}

// PlanForAmount infers a plan from the price tiers. Amounts below the lowest
// tier yield "" so the caller's default applies.
func PlanForAmount(amount int64) string {
	switch {
	case amount >= 1000:
		return models.PlanWeekly
	case amount >= 200:
		return models.PlanDaily
	case amount >= 100:
		return models.PlanSixHour
	case amount >= 60:
		return models.PlanOneHour
	default:
		return ""
	}
}

func ExtractReference(payload map[string]interface{}) string {
	return payloadString(payload, referenceFields)
}

func ExtractTransactionID(payload map[string]interface{}) string {
	return payloadString(payload, txnIDFields)
}

func ExtractReceipt(payload map[string]interface{}) string {
	return payloadString(payload, receiptFields)
}

func ExtractAmount(payload map[string]interface{}) int64 {
	return NormalizeAmount(payloadValue(payload, amountFields))
}

func ExtractStatus(payload map[string]interface{}) string {
	return payloadString(payload, statusFields)
}

func ExtractEvent(payload map[string]interface{}) string {
	return payloadString(payload, eventFields)
}
