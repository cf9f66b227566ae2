package billing

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/netpesa/netpesa/app/models"
	"github.com/netpesa/netpesa/internal/pkg/kvstore"
)

// writeTransaction persists the durable ledger record plus its lookup
// indexes. The receipt index is as durable as the record; the intent index
// only needs to outlive the client's claim window, so it carries a TTL.
func (s *Service) writeTransaction(ctx context.Context, txn *models.Transaction) error {
	raw, err := json.Marshal(txn)
	if err != nil {
		return err
	}
	if err := s.store.Put(ctx, txnKey(txn.ID), string(raw), 0); err != nil {
		return err
	}
	if txn.MpesaReceipt != "" {
		if err := s.store.Put(ctx, txnReceiptKey(txn.MpesaReceipt), txn.ID, 0); err != nil {
			return err
		}
	}
	if txn.IntentID != "" {
		if err := s.store.Put(ctx, txnIntentKey(txn.IntentID), txn.ID, models.TxnIntentIndexTTL); err != nil {
			return err
		}
	}
	return nil
}

// GetTransaction loads a ledger record by processor transaction id.
func (s *Service) GetTransaction(ctx context.Context, id string) (*models.Transaction, error) {
	raw, err := s.store.Get(ctx, txnKey(id))
	if err != nil {
		return nil, err
	}
	var txn models.Transaction
	if err := json.Unmarshal([]byte(raw), &txn); err != nil {
		return nil, err
	}
	return &txn, nil
}

// FindTransactionByReceipt resolves the receipt index to its ledger record.
func (s *Service) FindTransactionByReceipt(ctx context.Context, receipt string) (*models.Transaction, error) {
	id, err := s.store.Get(ctx, txnReceiptKey(receipt))
	if err != nil {
		return nil, err
	}
	return s.GetTransaction(ctx, id)
}

// FindTransactionByIntent resolves the intent index to its ledger record.
func (s *Service) FindTransactionByIntent(ctx context.Context, intentID string) (*models.Transaction, error) {
	id, err := s.store.Get(ctx, txnIntentKey(intentID))
	if err != nil {
		return nil, err
	}
	return s.GetTransaction(ctx, id)
}

// loadOrCreateTransaction returns the existing ledger record for an id if one
// was already written (processor retry) or persists a fresh one. Existing
// records are never overwritten: the ledger is append-only and the stored
// record is what gates re-reconciliation.
func (s *Service) loadOrCreateTransaction(ctx context.Context, txn *models.Transaction) (*models.Transaction, bool, error) {
	existing, err := s.GetTransaction(ctx, txn.ID)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, kvstore.ErrNotFound) {
		return nil, false, err
	}
	if err := s.writeTransaction(ctx, txn); err != nil {
		return nil, false, err
	}
	return txn, true, nil
}
