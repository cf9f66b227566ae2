package billing

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/netpesa/netpesa/app/models"
	"github.com/netpesa/netpesa/internal/pkg/kvstore"
)

// CreateIntent opens a payment intent for a normalized (phone, device) pair.
// The intent is stored under three keys sharing one TTL so the webhook can
// correlate a payment even when the processor payload carries only a phone
// and an amount.
func (s *Service) CreateIntent(ctx context.Context, in InitInput) (*models.PaymentIntent, error) {
	phone := NormalizePhone(in.Phone)
	if phone == "" {
		return nil, validationError("a valid phone number is required")
	}
	deviceID := NormalizeDeviceID(in.DeviceID)
	if deviceID == "" {
		return nil, validationError("a valid device_id is required")
	}

	now := s.now()
	intent := &models.PaymentIntent{
		ID:        uuid.NewString(),
		Phone:     phone,
		DeviceID:  deviceID,
		Plan:      NormalizePlan(in.Plan),
		Amount:    in.Amount,
		CreatedAt: now,
		ExpiresAt: now.Add(models.IntentTTL),
	}

	if err := s.writeIntent(ctx, intent); err != nil {
		return nil, internalError("failed to store payment intent", err)
	}
	return intent, nil
}

func (s *Service) writeIntent(ctx context.Context, intent *models.PaymentIntent) error {
	raw, err := json.Marshal(intent)
	if err != nil {
		return err
	}
	ttl := intent.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		ttl = time.Second
	}

	if err := s.store.Put(ctx, intentKey(intent.ID), string(raw), ttl); err != nil {
		return err
	}
	if err := s.store.Put(ctx, intentPhoneKey(intent.Phone), string(raw), ttl); err != nil {
		return err
	}
	if intent.Amount > 0 {
		if err := s.store.Put(ctx, intentAmountKey(intent.Phone, intent.Amount), string(raw), ttl); err != nil {
			return err
		}
	}
	return nil
}

// getIntent loads one intent key, applying the soft expiry check so a lagging
// store eviction never resurrects a dead intent.
func (s *Service) getIntent(ctx context.Context, key string) (*models.PaymentIntent, error) {
	raw, err := s.store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	var intent models.PaymentIntent
	if err := json.Unmarshal([]byte(raw), &intent); err != nil {
		return nil, err
	}
	if intent.Expired(s.now()) {
		return nil, kvstore.ErrNotFound
	}
	return &intent, nil
}

// GetIntent loads an intent by id; expired intents are treated as absent.
func (s *Service) GetIntent(ctx context.Context, intentID string) (*models.PaymentIntent, error) {
	return s.getIntent(ctx, intentKey(intentID))
}

// resolveIntent finds the originating intent for a payment: explicit id
// first, then the (phone, amount) key, then phone alone. A nil return with
// nil error means no intent matched; webhooks proceed without one.
func (s *Service) resolveIntent(ctx context.Context, intentID, phone string, amount int64) (*models.PaymentIntent, error) {
	if intentID != "" {
		intent, err := s.getIntent(ctx, intentKey(intentID))
		if err == nil {
			return intent, nil
		}
		if !errors.Is(err, kvstore.ErrNotFound) {
			return nil, err
		}
	}
	if phone != "" && amount > 0 {
		intent, err := s.getIntent(ctx, intentAmountKey(phone, amount))
		if err == nil {
			return intent, nil
		}
		if !errors.Is(err, kvstore.ErrNotFound) {
			return nil, err
		}
	}
	if phone != "" {
		intent, err := s.getIntent(ctx, intentPhoneKey(phone))
		if err == nil {
			return intent, nil
		}
		if !errors.Is(err, kvstore.ErrNotFound) {
			return nil, err
		}
	}
	return nil, nil
}

// markIntentUsed stamps UsedAt/TxnID, the only mutation an intent permits.
// The rewrite keeps the original expiry so the TTL window never extends. The
// phone and amount lookup keys are removed so a consumed intent cannot
// correlate a later payment from the same phone; the id key stays alive for
// claim lookups.
func (s *Service) markIntentUsed(ctx context.Context, intent *models.PaymentIntent, txnID string) error {
	if intent.UsedAt != nil {
		return nil
	}
	now := s.now()
	intent.UsedAt = &now
	intent.TxnID = txnID

	raw, err := json.Marshal(intent)
	if err != nil {
		return err
	}
	ttl := intent.ExpiresAt.Sub(now)
	if ttl <= 0 {
		ttl = time.Second
	}
	if err := s.store.Put(ctx, intentKey(intent.ID), string(raw), ttl); err != nil {
		return err
	}
	if err := s.store.Delete(ctx, intentPhoneKey(intent.Phone)); err != nil {
		return err
	}
	if intent.Amount > 0 {
		if err := s.store.Delete(ctx, intentAmountKey(intent.Phone, intent.Amount)); err != nil {
			return err
		}
	}
	return nil
}
