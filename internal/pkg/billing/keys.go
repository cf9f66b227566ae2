package billing

import "strconv"

// Store key layout. Intents are fully TTL-bounded; transaction records and
// subscriptions are durable; the intent-to-transaction index carries its own
// bounded TTL.
func intentKey(id string) string {
	return "intent:id:" + id
}

func intentPhoneKey(phone string) string {
	return "intent:phone:" + phone
}

func intentAmountKey(phone string, amount int64) string {
	return "intent:amt:" + phone + ":" + strconv.FormatInt(amount, 10)
}

func txnKey(id string) string {
	return "txn:id:" + id
}

func txnReceiptKey(receipt string) string {
	return "txn:receipt:" + receipt
}

func txnIntentKey(intentID string) string {
	return "txn:intent:" + intentID
}

// Subscriptions are written under two key variants so lookups tolerate the
// historic "+254..." form some clients still send.
func subKey(phone string) string {
	return "sub:" + phone
}

func subAltKey(phone string) string {
	return "sub:+" + phone
}
