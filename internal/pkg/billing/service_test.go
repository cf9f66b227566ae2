package billing

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netpesa/netpesa/app/models"
	"github.com/netpesa/netpesa/internal/pkg/kvstore"
)

var testTime = time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

func newTestService() (*Service, *kvstore.MemoryStore) {
	store := kvstore.NewMemoryStore()
	svc := NewService(store)
	svc.SetClock(func() time.Time { return testTime })
	return svc, store
}

func TestCreateIntent(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	intent, err := svc.CreateIntent(ctx, InitInput{
		Phone:    "0712345678",
		DeviceID: "dev-123456",
		Amount:   200,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, intent.ID)
	assert.Equal(t, "254712345678", intent.Phone)
	assert.Equal(t, "dev-123456", intent.DeviceID)
	assert.Equal(t, testTime.Add(3*time.Hour), intent.ExpiresAt)

	loaded, err := svc.GetIntent(ctx, intent.ID)
	require.NoError(t, err)
	assert.Equal(t, intent.Phone, loaded.Phone)
}

func TestCreateIntentValidation(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	_, err := svc.CreateIntent(ctx, InitInput{Phone: "12345", DeviceID: "dev-123456"})
	assert.Equal(t, KindValidation, KindOf(err))

	_, err = svc.CreateIntent(ctx, InitInput{Phone: "0712345678", DeviceID: "bad id"})
	assert.Equal(t, KindValidation, KindOf(err))
}

func TestWebhookResolvesIntentByPhoneAndAmount(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	intent, err := svc.CreateIntent(ctx, InitInput{
		Phone:    "254712345678",
		DeviceID: "dev-123456",
		Amount:   200,
	})
	require.NoError(t, err)

	// Processor payload carries only phone and amount; no device, no intent.
	event := ParsePaymentEvent(map[string]interface{}{
		"transaction_id": "TX100",
		"phone":          "0712345678",
		"amount":         float64(200),
		"status":         "success",
		"reference":      "hotspot topup",
	}, "")

	result, err := svc.ProcessWebhook(ctx, event)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "TX100", result.TransactionID)
	assert.Equal(t, "254712345678", result.Phone)

	sub, err := svc.GetSubscription(ctx, "254712345678")
	require.NoError(t, err)
	assert.Equal(t, models.SubStatusActive, sub.Status)
	assert.Equal(t, models.PlanDaily, sub.Plan)
	assert.Equal(t, "dev-123456", sub.DeviceID, "device backfilled from intent")
	require.NotNil(t, sub.PaidUntil)
	assert.Equal(t, testTime.Add(24*time.Hour), *sub.PaidUntil)

	used, err := svc.GetIntent(ctx, intent.ID)
	require.NoError(t, err)
	require.NotNil(t, used.UsedAt)
	assert.Equal(t, "TX100", used.TxnID)
}

func TestWebhookSkipsExpiredIntent(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	_, err := svc.CreateIntent(ctx, InitInput{
		Phone:    "254712345678",
		DeviceID: "dev-123456",
		Plan:     "weekly",
		Amount:   1000,
	})
	require.NoError(t, err)

	// Only the service clock moves; the store still holds the intent keys.
	svc.SetClock(func() time.Time { return testTime.Add(models.IntentTTL + time.Minute) })

	_, err = svc.ProcessWebhook(ctx, ParsePaymentEvent(map[string]interface{}{
		"transaction_id": "TXE1",
		"phone":          "254712345678",
		"amount":         float64(200),
		"status":         "success",
	}, ""))
	require.NoError(t, err)

	txn, err := svc.GetTransaction(ctx, "TXE1")
	require.NoError(t, err)
	assert.Empty(t, txn.IntentID, "dead intent must not correlate")
	assert.Equal(t, models.PlanDaily, txn.Plan, "plan inferred from amount, not the dead intent")
}

func TestWebhookConsumedIntentStopsCorrelating(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	_, err := svc.CreateIntent(ctx, InitInput{Phone: "254712345678", DeviceID: "dev-123456", Amount: 200})
	require.NoError(t, err)

	_, err = svc.ProcessWebhook(ctx, ParsePaymentEvent(map[string]interface{}{
		"transaction_id": "TXU1",
		"phone":          "254712345678",
		"amount":         float64(200),
		"status":         "success",
	}, ""))
	require.NoError(t, err)

	// A later unrelated payment from the same phone must not inherit the
	// consumed intent.
	_, err = svc.ProcessWebhook(ctx, ParsePaymentEvent(map[string]interface{}{
		"transaction_id": "TXU2",
		"phone":          "254712345678",
		"amount":         float64(60),
		"status":         "success",
	}, ""))
	require.NoError(t, err)

	txn, err := svc.GetTransaction(ctx, "TXU2")
	require.NoError(t, err)
	assert.Empty(t, txn.IntentID)
	assert.Equal(t, models.PlanOneHour, txn.Plan)
}

func TestWebhookReplayDoesNotReExtend(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	payload := map[string]interface{}{
		"transaction_id": "TX200",
		"phone":          "254712345678",
		"amount":         float64(200),
		"status":         "success",
	}

	_, err := svc.ProcessWebhook(ctx, ParsePaymentEvent(payload, ""))
	require.NoError(t, err)
	first, err := svc.GetSubscription(ctx, "254712345678")
	require.NoError(t, err)

	_, err = svc.ProcessWebhook(ctx, ParsePaymentEvent(payload, ""))
	require.NoError(t, err)
	second, err := svc.GetSubscription(ctx, "254712345678")
	require.NoError(t, err)

	assert.Equal(t, *first.PaidUntil, *second.PaidUntil, "replay must not extend paid_until")
}

func TestWebhookPaidUntilMonotonic(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	mkPayload := func(id string) map[string]interface{} {
		return map[string]interface{}{
			"transaction_id": id,
			"phone":          "254712345678",
			"amount":         float64(200),
			"status":         "success",
		}
	}

	_, err := svc.ProcessWebhook(ctx, ParsePaymentEvent(mkPayload("TX1"), ""))
	require.NoError(t, err)
	first, err := svc.GetSubscription(ctx, "254712345678")
	require.NoError(t, err)

	// Second distinct payment extends from the still-valid expiry, not from now.
	_, err = svc.ProcessWebhook(ctx, ParsePaymentEvent(mkPayload("TX2"), ""))
	require.NoError(t, err)
	second, err := svc.GetSubscription(ctx, "254712345678")
	require.NoError(t, err)

	assert.True(t, second.PaidUntil.After(*first.PaidUntil))
	assert.Equal(t, first.PaidUntil.Add(24*time.Hour), *second.PaidUntil)
}

func TestWebhookFailedPaymentLeavesSubscriptionAlone(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	result, err := svc.ProcessWebhook(ctx, ParsePaymentEvent(map[string]interface{}{
		"transaction_id": "TX300",
		"phone":          "254712345678",
		"amount":         float64(200),
		"status":         "failed",
	}, ""))
	require.NoError(t, err)
	assert.True(t, result.Success, "failed payments are still acknowledged")

	_, err = svc.GetSubscription(ctx, "254712345678")
	assert.ErrorIs(t, err, kvstore.ErrNotFound)

	// The ledger records the failure regardless.
	txn, err := svc.GetTransaction(ctx, "TX300")
	require.NoError(t, err)
	assert.Equal(t, "failed", txn.Status)
	assert.False(t, txn.SubscriptionApplied)
}

func TestWebhookUnknownPhoneStillAcknowledged(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	result, err := svc.ProcessWebhook(ctx, ParsePaymentEvent(map[string]interface{}{
		"transaction_id": "TX400",
		"amount":         float64(100),
		"status":         "success",
	}, ""))
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Empty(t, result.Phone)
}

func TestResolveDeviceBinding(t *testing.T) {
	tests := []struct {
		name         string
		existing     string
		incoming     string
		intentDevice string
		want         string
	}{
		{name: "unbound binds incoming", existing: "", incoming: "dev-aaa111", want: "dev-aaa111"},
		{name: "same device keeps", existing: "dev-aaa111", incoming: "dev-aaa111", want: "dev-aaa111"},
		{name: "intent names incoming", existing: "dev-aaa111", incoming: "dev-bbb222", intentDevice: "dev-bbb222", want: "dev-bbb222"},
		{name: "intent names existing", existing: "dev-aaa111", incoming: "dev-bbb222", intentDevice: "dev-aaa111", want: "dev-aaa111"},
		{
			name:     "legacy migrates to stable",
			existing: "3f2b8a9c-1d4e-4f6a-8b2c-9d0e1f2a3b4c",
			incoming: "a1b2c3d4e5f6a7b8",
			want:     "a1b2c3d4e5f6a7b8",
		},
		{name: "plain mismatch keeps existing", existing: "dev-aaa111", incoming: "dev-bbb222", want: "dev-aaa111"},
		{name: "no incoming keeps existing", existing: "dev-aaa111", incoming: "", want: "dev-aaa111"},
	}

	for _, tt := range tests {
		got, _ := ResolveDeviceBinding(tt.existing, tt.incoming, tt.intentDevice)
		assert.Equal(t, tt.want, got, tt.name)
	}
}

func TestClaimByTransactionID(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	_, err := svc.CreateIntent(ctx, InitInput{Phone: "254712345678", DeviceID: "dev-123456", Amount: 200})
	require.NoError(t, err)

	result, err := svc.ProcessWebhook(ctx, ParsePaymentEvent(map[string]interface{}{
		"transaction_id": "TX500",
		"amount":         float64(200),
		"status":         "success",
		"reference":      "topup 254712345678",
	}, ""))
	require.NoError(t, err)

	claim, err := svc.Claim(ctx, ClaimInput{
		Phone:         "0712345678",
		DeviceID:      "dev-123456",
		TransactionID: result.TransactionID,
	})
	require.NoError(t, err)
	assert.Equal(t, "254712345678", claim.Phone)
	assert.Equal(t, models.PlanDaily, claim.Plan)
	assert.Equal(t, testTime.Add(24*time.Hour), claim.PaidUntil)

	sub, err := svc.GetSubscription(ctx, "254712345678")
	require.NoError(t, err)
	assert.Equal(t, "dev-123456", sub.DeviceID)
	assert.Equal(t, models.SubStatusActive, sub.Status)
}

func TestClaimRebindsDevice(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	_, err := svc.ProcessWebhook(ctx, ParsePaymentEvent(map[string]interface{}{
		"transaction_id": "TX600",
		"phone":          "254712345678",
		"device_id":      "dev-old111",
		"amount":         float64(200),
		"status":         "success",
	}, ""))
	require.NoError(t, err)

	// Claim is an explicit binding action: the caller's device wins even
	// though the webhook bound another one.
	claim, err := svc.Claim(ctx, ClaimInput{
		DeviceID:      "dev-new222",
		TransactionID: "TX600",
	})
	require.NoError(t, err)
	assert.Equal(t, "254712345678", claim.Phone)

	sub, err := svc.GetSubscription(ctx, "254712345678")
	require.NoError(t, err)
	assert.Equal(t, "dev-new222", sub.DeviceID)
}

func TestClaimDoesNotReExtendAfterWebhook(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	_, err := svc.ProcessWebhook(ctx, ParsePaymentEvent(map[string]interface{}{
		"transaction_id": "TX650",
		"phone":          "254712345678",
		"amount":         float64(200),
		"status":         "success",
	}, ""))
	require.NoError(t, err)
	before, err := svc.GetSubscription(ctx, "254712345678")
	require.NoError(t, err)

	claim, err := svc.Claim(ctx, ClaimInput{DeviceID: "dev-123456", TransactionID: "TX650"})
	require.NoError(t, err)
	assert.Equal(t, *before.PaidUntil, claim.PaidUntil, "claim re-derives expiry from the ledger")
}

func TestClaimByReceipt(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	_, err := svc.ProcessWebhook(ctx, ParsePaymentEvent(map[string]interface{}{
		"transaction_id":     "TX700",
		"phone":              "254712345678",
		"amount":             float64(1000),
		"status":             "success",
		"MpesaReceiptNumber": "QJ71XK9P2M",
	}, ""))
	require.NoError(t, err)

	claim, err := svc.Claim(ctx, ClaimInput{DeviceID: "dev-123456", Receipt: "QJ71XK9P2M"})
	require.NoError(t, err)
	assert.Equal(t, models.PlanWeekly, claim.Plan)
}

func TestClaimPendingPayment(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	intent, err := svc.CreateIntent(ctx, InitInput{Phone: "254712345678", DeviceID: "dev-123456", Amount: 200})
	require.NoError(t, err)

	_, err = svc.Claim(ctx, ClaimInput{DeviceID: "dev-123456", IntentID: intent.ID})
	assert.Equal(t, KindPending, KindOf(err))
	assert.Equal(t, ClaimRetryAfterSeconds, RetryAfterOf(err))
	assert.Equal(t, "payment_pending", err.Error())
}

func TestClaimExpiredIntentTreatedAsAbsent(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	intent, err := svc.CreateIntent(ctx, InitInput{Phone: "254712345678", DeviceID: "dev-123456", Amount: 200})
	require.NoError(t, err)

	// Only the service clock moves past expires_at; the store entry has not
	// been physically evicted yet.
	svc.SetClock(func() time.Time { return testTime.Add(models.IntentTTL + time.Minute) })

	_, err = svc.Claim(ctx, ClaimInput{DeviceID: "dev-123456", IntentID: intent.ID})
	assert.Equal(t, KindNotFound, KindOf(err), "an expired intent is absent, never pending")
}

func TestClaimIntentDeviceMismatch(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	intent, err := svc.CreateIntent(ctx, InitInput{Phone: "254712345678", DeviceID: "dev-123456", Amount: 200})
	require.NoError(t, err)

	_, err = svc.Claim(ctx, ClaimInput{DeviceID: "dev-999999", IntentID: intent.ID})
	assert.Equal(t, KindConflict, KindOf(err))
}

func TestClaimPhoneMismatch(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	_, err := svc.ProcessWebhook(ctx, ParsePaymentEvent(map[string]interface{}{
		"transaction_id": "TX800",
		"phone":          "254712345678",
		"amount":         float64(200),
		"status":         "success",
	}, ""))
	require.NoError(t, err)

	_, err = svc.Claim(ctx, ClaimInput{
		Phone:         "254722000111",
		DeviceID:      "dev-123456",
		TransactionID: "TX800",
	})
	assert.Equal(t, KindConflict, KindOf(err))
}

func TestClaimUnknownReference(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	_, err := svc.Claim(ctx, ClaimInput{DeviceID: "dev-123456", TransactionID: "TX-missing"})
	assert.Equal(t, KindNotFound, KindOf(err))

	_, err = svc.Claim(ctx, ClaimInput{DeviceID: "dev-123456"})
	assert.Equal(t, KindValidation, KindOf(err))
}

func TestClaimFailedPayment(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	_, err := svc.ProcessWebhook(ctx, ParsePaymentEvent(map[string]interface{}{
		"transaction_id": "TX900",
		"phone":          "254712345678",
		"amount":         float64(200),
		"status":         "failed",
	}, ""))
	require.NoError(t, err)

	_, err = svc.Claim(ctx, ClaimInput{DeviceID: "dev-123456", TransactionID: "TX900"})
	assert.Equal(t, KindNotFound, KindOf(err))
}

func TestStatus(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	// No subscription at all.
	result, err := svc.Status(ctx, "254712345678", "dev-123456")
	require.NoError(t, err)
	assert.False(t, result.Premium)
	assert.Equal(t, "no active subscription", result.Reason)

	_, err = svc.ProcessWebhook(ctx, ParsePaymentEvent(map[string]interface{}{
		"transaction_id": "TXS1",
		"phone":          "254712345678",
		"device_id":      "dev-123456",
		"amount":         float64(200),
		"status":         "success",
	}, ""))
	require.NoError(t, err)

	// Bound device sees premium.
	result, err = svc.Status(ctx, "0712345678", "dev-123456")
	require.NoError(t, err)
	assert.True(t, result.Premium)
	assert.Equal(t, models.PlanDaily, result.Plan)
	require.NotNil(t, result.PaidUntil)

	// Another device sees device_mismatch.
	result, err = svc.Status(ctx, "254712345678", "dev-999999")
	require.NoError(t, err)
	assert.False(t, result.Premium)
	assert.Equal(t, "device_mismatch", result.Reason)

	// Validation failures.
	_, err = svc.Status(ctx, "bogus", "dev-123456")
	assert.Equal(t, KindValidation, KindOf(err))
	_, err = svc.Status(ctx, "254712345678", "")
	assert.Equal(t, KindValidation, KindOf(err))
}

func TestStatusExpiredAndUnbound(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	// Successful payment with no device anywhere leaves the sub pending.
	_, err := svc.ProcessWebhook(ctx, ParsePaymentEvent(map[string]interface{}{
		"transaction_id": "TXS2",
		"phone":          "254722000111",
		"amount":         float64(200),
		"status":         "success",
	}, ""))
	require.NoError(t, err)

	result, err := svc.Status(ctx, "254722000111", "dev-123456")
	require.NoError(t, err)
	assert.False(t, result.Premium)
	assert.Equal(t, "device_unbound", result.Reason)

	// Jump past expiry.
	svc.SetClock(func() time.Time { return testTime.Add(48 * time.Hour) })
	result, err = svc.Status(ctx, "254722000111", "dev-123456")
	require.NoError(t, err)
	assert.False(t, result.Premium)
	assert.Equal(t, "no active subscription", result.Reason)
}

func TestApplyPaymentMonotonic(t *testing.T) {
	paidUntil := testTime.Add(10 * time.Hour)
	existing := &models.Subscription{
		Phone:     "254712345678",
		Status:    models.SubStatusActive,
		PaidUntil: &paidUntil,
		DeviceID:  "dev-123456",
	}
	txn := &models.Transaction{
		ID:        "TXP1",
		Phone:     "254712345678",
		Amount:    200,
		Plan:      models.PlanDaily,
		Status:    "success",
		Timestamp: testTime,
	}

	sub := ApplyPayment(existing, txn, "dev-123456", testTime)
	assert.Equal(t, paidUntil.Add(24*time.Hour), *sub.PaidUntil, "extends from valid expiry")
	assert.False(t, sub.PaidUntil.Before(*existing.PaidUntil))

	// Lapsed subscription extends from now instead.
	lapsed := testTime.Add(-time.Hour)
	existing.PaidUntil = &lapsed
	sub = ApplyPayment(existing, txn, "dev-123456", testTime)
	assert.Equal(t, testTime.Add(24*time.Hour), *sub.PaidUntil)
}
