package billing

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"github.com/netpesa/netpesa/app/models"
)

var (
	nonDigitPattern     = regexp.MustCompile(`\D`)
	deviceIDPattern     = regexp.MustCompile(`^[A-Za-z0-9._:-]{6,128}$`)
	legacyDevicePattern = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)
	stableDevicePattern = regexp.MustCompile(`^[0-9a-f]{16}$`)
)

// NormalizePhone canonicalizes Kenyan phone numbers to 254XXXXXXXXX. Accepted
// inputs: local 0XXXXXXXXX, bare 9-digit starting 7 or 1, or the full
// 254XXXXXXXXX form. Anything else yields "".
func NormalizePhone(value string) string {
	digits := nonDigitPattern.ReplaceAllString(value, "")
	switch {
	case len(digits) == 12 && strings.HasPrefix(digits, "254"):
		return digits
	case len(digits) == 10 && strings.HasPrefix(digits, "0"):
		return "254" + digits[1:]
	case len(digits) == 9 && (digits[0] == '7' || digits[0] == '1'):
		return "254" + digits
	default:
		return ""
	}
}

// NormalizeDeviceID trims and validates an opaque device token. Valid ids are
// 6-128 chars of [A-Za-z0-9._:-]; anything else yields "".
func NormalizeDeviceID(value string) string {
	id := strings.TrimSpace(value)
	if !deviceIDPattern.MatchString(id) {
		return ""
	}
	return id
}

// IsLegacyDeviceID reports whether an id matches the hyphenated-UUID shape
// older client builds generated.
func IsLegacyDeviceID(id string) bool {
	return legacyDevicePattern.MatchString(id)
}

// IsStableDeviceID reports whether an id matches the 16-hex stable identifier
// current clients report.
func IsStableDeviceID(id string) bool {
	return stableDevicePattern.MatchString(id)
}

// NormalizePlan matches a value against the fixed plan vocabulary, ignoring
// case and punctuation. Unrecognized input yields "".
func NormalizePlan(value string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(value)) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	switch b.String() {
	case "weekly", "week":
		return models.PlanWeekly
	case "daily", "day":
		return models.PlanDaily
	case "sixhour", "6hour", "6hr":
		return models.PlanSixHour
	case "onehour", "1hour", "1hr", "hourly":
		return models.PlanOneHour
	default:
		return ""
	}
}

// NormalizeAmount coerces the numeric shapes processors send (JSON numbers,
// quoted decimals, integers) into whole shillings. Fractions truncate toward
// zero; unparseable or negative values yield 0.
func NormalizeAmount(value interface{}) int64 {
	switch v := value.(type) {
	case nil:
		return 0
	case float64:
		if v < 0 {
			return 0
		}
		return int64(v)
	case int:
		if v < 0 {
			return 0
		}
		return int64(v)
	case int64:
		if v < 0 {
			return 0
		}
		return v
	case json.Number:
		f, err := v.Float64()
		if err != nil || f < 0 {
			return 0
		}
		return int64(f)
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return 0
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil || f < 0 {
			return 0
		}
		return int64(f)
	default:
		return 0
	}
}

// successVocab spans the status/event conventions of the processors we accept
// callbacks from.
var successVocab = map[string]struct{}{
	"success":               {},
	"successful":            {},
	"paid":                  {},
	"complete":              {},
	"completed":             {},
	"settled":               {},
	"confirmed":             {},
	"payment.success":       {},
	"payment.completed":     {},
	"charge.success":        {},
	"charge.completed":      {},
	"collection.successful": {},
	"transaction.completed": {},
}

// IsSuccessStatus reports whether either the status or the event string marks
// a successful payment.
func IsSuccessStatus(status, event string) bool {
	if _, ok := successVocab[strings.ToLower(strings.TrimSpace(status))]; ok {
		return true
	}
	_, ok := successVocab[strings.ToLower(strings.TrimSpace(event))]
	return ok
}
