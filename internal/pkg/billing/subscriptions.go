package billing

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/netpesa/netpesa/app/models"
	"github.com/netpesa/netpesa/internal/pkg/kvstore"
)

// GetSubscription loads the per-phone subscription, trying both key variants.
func (s *Service) GetSubscription(ctx context.Context, phone string) (*models.Subscription, error) {
	raw, err := s.store.Get(ctx, subKey(phone))
	if errors.Is(err, kvstore.ErrNotFound) {
		raw, err = s.store.Get(ctx, subAltKey(phone))
	}
	if err != nil {
		return nil, err
	}
	var sub models.Subscription
	if err := json.Unmarshal([]byte(raw), &sub); err != nil {
		return nil, err
	}
	return &sub, nil
}

// writeSubscription persists both key variants so either lookup form finds
// the same record.
func (s *Service) writeSubscription(ctx context.Context, sub *models.Subscription) error {
	raw, err := json.Marshal(sub)
	if err != nil {
		return err
	}
	if err := s.store.Put(ctx, subKey(sub.Phone), string(raw), 0); err != nil {
		return err
	}
	return s.store.Put(ctx, subAltKey(sub.Phone), string(raw), 0)
}

// ResolveDeviceBinding decides which device a subscription should be bound to
// after a payment event. The existing binding is sticky: it changes only when
// no device is bound yet, when the originating intent explicitly names the
// incoming device, or when a legacy-shaped id is replaced by a stable-shaped
// one (one-time migration allowance). Any other mismatch keeps the old
// binding; the second return value reports whether the incoming id lost.
func ResolveDeviceBinding(existing, incoming, intentDevice string) (string, bool) {
	if incoming == "" {
		return existing, false
	}
	if existing == "" || existing == incoming {
		return incoming, false
	}
	if intentDevice != "" && intentDevice == incoming {
		return incoming, false
	}
	if IsLegacyDeviceID(existing) && IsStableDeviceID(incoming) {
		return incoming, false
	}
	return existing, true
}

// ApplyPayment folds one successful transaction into the subscription state.
// Pure function of durable inputs so racing or replayed writes converge:
// expiry extends from max(now, existing valid paid_until) and paid_until
// never regresses.
func ApplyPayment(existing *models.Subscription, txn *models.Transaction, deviceID string, now time.Time) *models.Subscription {
	base := now
	if existing != nil && existing.PaidUntil != nil && existing.PaidUntil.After(now) {
		base = *existing.PaidUntil
	}
	paidUntil := AddPlanDuration(base, txn.Plan)

	status := models.SubStatusPendingDevice
	if deviceID != "" {
		status = models.SubStatusActive
	}

	paymentAt := txn.Timestamp
	return &models.Subscription{
		Phone:         txn.Phone,
		Status:        status,
		Plan:          txn.Plan,
		Amount:        txn.Amount,
		PaidUntil:     &paidUntil,
		LastTxn:       txn.ID,
		LastPaymentAt: &paymentAt,
		MpesaReceipt:  txn.MpesaReceipt,
		Reference:     txn.Reference,
		DeviceID:      deviceID,
		UpdatedAt:     now,
	}
}
