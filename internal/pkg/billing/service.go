package billing

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/netpesa/netpesa/app/models"
	"github.com/netpesa/netpesa/internal/pkg/kvstore"
)

// ClaimRetryAfterSeconds is the poll hint returned while a payment the client
// already initiated has not been reported by the processor yet.
const ClaimRetryAfterSeconds = 20

// Service reconciles processor payment events into per-phone subscriptions
// over a TTL key-value store. It holds no request state; every update is
// re-derived from durable records so racing writes converge.
type Service struct {
	store kvstore.Store
	now   func() time.Time
}

func NewService(store kvstore.Store) *Service {
	return &Service{store: store, now: time.Now}
}

// SetClock overrides the time source for tests.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// Ping reports store reachability for health checks.
func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// ProcessWebhook reconciles one processor callback. Signature verification is
// the transport layer's concern; the event arrives already normalized by
// ParsePaymentEvent. The returned result is acknowledged to the processor
// with 200 even when the payment could not be attributed to a phone, since
// application-level ambiguity must not trigger processor retries.
func (s *Service) ProcessWebhook(ctx context.Context, event *PaymentEvent) (*WebhookResult, error) {
	now := s.now()

	intent, err := s.resolveIntent(ctx, event.IntentID, event.Phone, event.Amount)
	if err != nil {
		return nil, internalError("intent lookup failed", err)
	}
	s.backfillFromIntent(event, intent)

	txnID := event.TransactionID
	if txnID == "" {
		txnID = event.Receipt
	}
	if txnID == "" {
		txnID = "txn-" + uuid.NewString()
	}

	txn, created, err := s.loadOrCreateTransaction(ctx, &models.Transaction{
		ID:           txnID,
		Phone:        event.Phone,
		Amount:       event.Amount,
		Plan:         event.Plan,
		Status:       event.Status,
		MpesaReceipt: event.Receipt,
		Reference:    event.Reference,
		DeviceID:     event.DeviceID,
		IntentID:     event.IntentID,
		Event:        event.Event,
		Timestamp:    now,
	})
	if err != nil {
		return nil, internalError("failed to persist transaction", err)
	}
	if !created {
		log.Printf("webhook replay for transaction %s (reconciled=%v)", txn.ID, txn.SubscriptionApplied)
	}

	if IsSuccessStatus(txn.Status, txn.Event) && txn.Phone != "" && !txn.SubscriptionApplied {
		if err := s.reconcile(ctx, txn, intent, now); err != nil {
			return nil, err
		}
	} else if IsSuccessStatus(txn.Status, txn.Event) && txn.Phone == "" {
		log.Printf("successful payment %s has no resolvable phone, left unreconciled", txn.ID)
	}

	return &WebhookResult{
		Success:       true,
		TransactionID: txn.ID,
		Phone:         txn.Phone,
		Amount:        txn.Amount,
		Status:        txn.Status,
	}, nil
}

// backfillFromIntent fills gaps in the event from the originating intent.
// Explicit payload values always take precedence over intent-derived ones.
func (s *Service) backfillFromIntent(event *PaymentEvent, intent *models.PaymentIntent) {
	if intent == nil {
		return
	}
	event.IntentID = intent.ID
	if event.Phone == "" {
		event.Phone = intent.Phone
	}
	if event.Amount == 0 {
		event.Amount = intent.Amount
	}
	if event.DeviceID == "" {
		event.DeviceID = intent.DeviceID
	}
	// An intent resolved by phone alone may carry a different amount than
	// what was actually paid; its plan is not trusted over the paid-amount
	// inference in that case.
	amountMismatch := intent.Amount > 0 && event.Amount > 0 && intent.Amount != event.Amount
	if !event.PlanExplicit && intent.Plan != "" && !amountMismatch {
		event.Plan = intent.Plan
	}
}

// reconcile folds a successful transaction into the subscription exactly
// once. The reconciled flag is persisted on the transaction before the
// subscription write, so a replay that races this call can at worst rewrite
// the same converged state.
func (s *Service) reconcile(ctx context.Context, txn *models.Transaction, intent *models.PaymentIntent, now time.Time) error {
	existing, err := s.GetSubscription(ctx, txn.Phone)
	if err != nil && !errors.Is(err, kvstore.ErrNotFound) {
		return internalError("subscription lookup failed", err)
	}

	existingDevice := ""
	if existing != nil {
		existingDevice = existing.DeviceID
	}
	intentDevice := ""
	if intent != nil {
		intentDevice = intent.DeviceID
	}
	device, kept := ResolveDeviceBinding(existingDevice, txn.DeviceID, intentDevice)
	if kept {
		log.Printf("device binding preserved for %s: kept %s over %s", txn.Phone, existingDevice, txn.DeviceID)
	}

	sub := ApplyPayment(existing, txn, device, now)

	txn.SubscriptionApplied = true
	txn.PaidUntil = sub.PaidUntil
	if err := s.writeTransaction(ctx, txn); err != nil {
		return internalError("failed to mark transaction reconciled", err)
	}
	if err := s.writeSubscription(ctx, sub); err != nil {
		return internalError("failed to store subscription", err)
	}
	if intent != nil {
		if err := s.markIntentUsed(ctx, intent, txn.ID); err != nil {
			log.Printf("failed to mark intent %s used: %v", intent.ID, err)
		}
	}
	return nil
}

// Claim binds a confirmed payment to the calling device. Unlike the
// webhook's passive inference, claim is an explicit client action, so the
// caller's device wins unconditionally once phone agreement holds.
func (s *Service) Claim(ctx context.Context, in ClaimInput) (*ClaimResult, error) {
	device := NormalizeDeviceID(in.DeviceID)
	if device == "" {
		return nil, validationError("a valid device_id is required")
	}
	phone := ""
	if in.Phone != "" {
		if phone = NormalizePhone(in.Phone); phone == "" {
			return nil, validationError("invalid phone number")
		}
	}
	if in.TransactionID == "" && in.Receipt == "" && in.IntentID == "" {
		return nil, validationError("transaction_id, receipt or intent_id is required")
	}

	txn, intent, err := s.locateClaimTransaction(ctx, in, device)
	if err != nil {
		return nil, err
	}
	if intent != nil && intent.DeviceID != "" && intent.DeviceID != device {
		return nil, conflictError("payment was initiated from a different device")
	}
	if !IsSuccessStatus(txn.Status, txn.Event) {
		return nil, notFoundError("no successful payment found for this reference")
	}

	phone, err = agreedPhone(phone, txn, intent)
	if err != nil {
		return nil, err
	}

	paidUntil := AddPlanDuration(txn.Timestamp, txn.Plan)
	if txn.PaidUntil != nil {
		paidUntil = *txn.PaidUntil
	}

	existing, err := s.GetSubscription(ctx, phone)
	if err != nil && !errors.Is(err, kvstore.ErrNotFound) {
		return nil, internalError("subscription lookup failed", err)
	}
	if existing != nil && existing.PaidUntil != nil && existing.PaidUntil.After(paidUntil) {
		paidUntil = *existing.PaidUntil
	}

	now := s.now()
	paymentAt := txn.Timestamp
	sub := &models.Subscription{
		Phone:         phone,
		Status:        models.SubStatusActive,
		Plan:          txn.Plan,
		Amount:        txn.Amount,
		PaidUntil:     &paidUntil,
		LastTxn:       txn.ID,
		LastPaymentAt: &paymentAt,
		MpesaReceipt:  txn.MpesaReceipt,
		Reference:     txn.Reference,
		DeviceID:      device,
		UpdatedAt:     now,
	}

	if !txn.SubscriptionApplied {
		txn.SubscriptionApplied = true
		txn.PaidUntil = &paidUntil
		if txn.Phone == "" {
			txn.Phone = phone
		}
		if err := s.writeTransaction(ctx, txn); err != nil {
			return nil, internalError("failed to mark transaction reconciled", err)
		}
	}
	if err := s.writeSubscription(ctx, sub); err != nil {
		return nil, internalError("failed to store subscription", err)
	}
	if intent != nil {
		if err := s.markIntentUsed(ctx, intent, txn.ID); err != nil {
			log.Printf("failed to mark intent %s used: %v", intent.ID, err)
		}
	}

	return &ClaimResult{Phone: phone, Plan: txn.Plan, PaidUntil: paidUntil}, nil
}

// locateClaimTransaction resolves the underlying transaction in the contract
// order: explicit transaction id, then receipt, then the intent's recorded
// transaction. An unexpired intent with no transaction yet is the explicit
// "client polls during processor latency" case.
func (s *Service) locateClaimTransaction(ctx context.Context, in ClaimInput, device string) (*models.Transaction, *models.PaymentIntent, error) {
	if in.TransactionID != "" {
		txn, err := s.GetTransaction(ctx, in.TransactionID)
		if err == nil {
			return txn, s.intentForTransaction(ctx, txn), nil
		}
		if !errors.Is(err, kvstore.ErrNotFound) {
			return nil, nil, internalError("transaction lookup failed", err)
		}
	}
	if in.Receipt != "" {
		txn, err := s.FindTransactionByReceipt(ctx, in.Receipt)
		if err == nil {
			return txn, s.intentForTransaction(ctx, txn), nil
		}
		if !errors.Is(err, kvstore.ErrNotFound) {
			return nil, nil, internalError("receipt lookup failed", err)
		}
	}
	if in.IntentID != "" {
		intent, err := s.GetIntent(ctx, in.IntentID)
		if err != nil && !errors.Is(err, kvstore.ErrNotFound) {
			return nil, nil, internalError("intent lookup failed", err)
		}
		// A wrong device is refused outright, never told to keep polling.
		if intent != nil && intent.DeviceID != "" && intent.DeviceID != device {
			return nil, nil, conflictError("payment was initiated from a different device")
		}
		if intent != nil && intent.TxnID != "" {
			txn, err := s.GetTransaction(ctx, intent.TxnID)
			if err == nil {
				return txn, intent, nil
			}
			if !errors.Is(err, kvstore.ErrNotFound) {
				return nil, nil, internalError("transaction lookup failed", err)
			}
		}
		txn, err := s.FindTransactionByIntent(ctx, in.IntentID)
		if err == nil {
			return txn, intent, nil
		}
		if !errors.Is(err, kvstore.ErrNotFound) {
			return nil, nil, internalError("intent index lookup failed", err)
		}
		if intent != nil {
			return nil, nil, pendingError("payment_pending", ClaimRetryAfterSeconds)
		}
	}
	return nil, nil, notFoundError("no matching payment found")
}

// intentForTransaction loads the originating intent recorded on a ledger
// entry, if any survives. Best effort: the device check it enables only
// applies while the intent is alive.
func (s *Service) intentForTransaction(ctx context.Context, txn *models.Transaction) *models.PaymentIntent {
	if txn.IntentID == "" {
		return nil
	}
	intent, err := s.GetIntent(ctx, txn.IntentID)
	if err != nil {
		return nil
	}
	return intent
}

// agreedPhone verifies phone agreement between caller, transaction, and
// intent, returning the authoritative value.
func agreedPhone(caller string, txn *models.Transaction, intent *models.PaymentIntent) (string, error) {
	phone := txn.Phone
	if phone == "" && intent != nil {
		phone = intent.Phone
	}
	if phone == "" {
		phone = caller
	}
	if phone == "" {
		return "", validationError("phone could not be determined for this payment")
	}
	if caller != "" && caller != phone {
		return "", conflictError("phone does not match the payment record")
	}
	if intent != nil && intent.Phone != "" && intent.Phone != phone {
		return "", conflictError("phone does not match the payment intent")
	}
	return phone, nil
}

// Status projects subscription state for a (phone, device) pair. The reason
// field tells client UIs whether to prompt a claim or show an expired state.
func (s *Service) Status(ctx context.Context, phoneRaw, deviceRaw string) (*StatusResult, error) {
	phone := NormalizePhone(phoneRaw)
	if phone == "" {
		return nil, validationError("a valid phone number is required")
	}
	device := NormalizeDeviceID(deviceRaw)
	if device == "" {
		return nil, validationError("a valid device_id is required")
	}

	sub, err := s.GetSubscription(ctx, phone)
	if errors.Is(err, kvstore.ErrNotFound) {
		return &StatusResult{Phone: phone, Reason: "no active subscription"}, nil
	}
	if err != nil {
		return nil, internalError("subscription lookup failed", err)
	}

	now := s.now()
	result := &StatusResult{Phone: phone}
	if sub.Status != models.SubStatusCancelled {
		result.Plan = sub.Plan
		result.PaidUntil = sub.PaidUntil
	}

	switch {
	case sub.Status == models.SubStatusCancelled:
		result.Reason = "no active subscription"
	case sub.PaidUntil != nil && !sub.PaidUntil.After(now):
		result.Reason = "no active subscription"
	case sub.DeviceID == "":
		result.Reason = "device_unbound"
	case sub.DeviceID != device:
		result.Reason = "device_mismatch"
	default:
		result.Premium = true
	}
	return result, nil
}
