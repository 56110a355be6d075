package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/markxplorer969/hyuuxapi-sub001/internal/models"
)

// firestoreTransactionRepository implements TransactionRepository using Firestore.
type firestoreTransactionRepository struct {
	client *firestore.Client
}

// NewFirestoreTransactionRepository creates a new instance of firestoreTransactionRepository.
func NewFirestoreTransactionRepository(client *firestore.Client) TransactionRepository {
	if client == nil {
		panic("Firestore client is not initialized for TransactionRepository")
	}
	return &firestoreTransactionRepository{client: client}
}

func (r *firestoreTransactionRepository) collection() *firestore.CollectionRef {
	return r.client.Collection(transactionsCollection)
}

// Create stores a transaction keyed by its merchant reference.
func (r *firestoreTransactionRepository) Create(ctx context.Context, txn *models.Transaction) error {
	if txn.MerchantRef == "" {
		return errors.New("merchantRef cannot be empty for Create operation")
	}
	if _, err := r.collection().Doc(txn.MerchantRef).Create(ctx, txn); err != nil {
		if status.Code(err) == codes.AlreadyExists {
			return fmt.Errorf("transaction '%s': %w", txn.MerchantRef, ErrAlreadyExists)
		}
		return fmt.Errorf("failed to create transaction '%s': %w", txn.MerchantRef, err)
	}
	return nil
}

// GetByMerchantRef retrieves a transaction by merchant reference.
func (r *firestoreTransactionRepository) GetByMerchantRef(ctx context.Context, merchantRef string) (*models.Transaction, error) {
	if merchantRef == "" {
		return nil, errors.New("merchantRef cannot be empty for GetByMerchantRef operation")
	}
	snap, err := r.collection().Doc(merchantRef).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, fmt.Errorf("transaction '%s': %w", merchantRef, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get transaction '%s': %w", merchantRef, err)
	}
	return decodeTransaction(snap)
}

// ListByAccount returns the account's transactions, newest first.
func (r *firestoreTransactionRepository) ListByAccount(ctx context.Context, accountID string) ([]*models.Transaction, error) {
	snaps, err := r.collection().Where("accountId", "==", accountID).Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions for account '%s': %w", accountID, err)
	}
	return decodeTransactions(snaps)
}

// List returns every transaction, newest first.
func (r *firestoreTransactionRepository) List(ctx context.Context) ([]*models.Transaction, error) {
	snaps, err := r.collection().Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	return decodeTransactions(snaps)
}

// CountByStatus counts transactions in the given status.
func (r *firestoreTransactionRepository) CountByStatus(ctx context.Context, s models.TransactionStatus) (int64, error) {
	n, err := countQuery(ctx, r.collection().Where("status", "==", string(s)))
	if err != nil {
		return 0, fmt.Errorf("failed to count %s transactions: %w", s, err)
	}
	return n, nil
}

// Transition moves a transaction out of PENDING inside a Firestore transaction.
func (r *firestoreTransactionRepository) Transition(ctx context.Context, merchantRef string, patch TransitionPatch) (*models.Transaction, bool, error) {
	var (
		out     *models.Transaction
		changed bool
	)
	ref := r.collection().Doc(merchantRef)
	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		changed = false
		snap, err := tx.Get(ref)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return fmt.Errorf("transaction '%s': %w", merchantRef, ErrNotFound)
			}
			return err
		}
		txn, err := decodeTransaction(snap)
		if err != nil {
			return err
		}
		out = txn
		if txn.Status == patch.Status {
			return nil
		}
		if txn.Status.Terminal() {
			return ErrInvalidTransition
		}

		applyTransition(txn, patch)
		updates := []firestore.Update{
			{Path: "status", Value: string(txn.Status)},
			{Path: "updatedAt", Value: patch.At},
		}
		if patch.Reference != "" {
			updates = append(updates, firestore.Update{Path: "reference", Value: patch.Reference})
		}
		if patch.PaymentMethod != "" {
			updates = append(updates, firestore.Update{Path: "paymentMethod", Value: patch.PaymentMethod})
		}
		switch patch.Status {
		case models.TransactionPaid:
			updates = append(updates, firestore.Update{Path: "paidAt", Value: patch.At})
		case models.TransactionCancelled:
			updates = append(updates, firestore.Update{Path: "cancelledAt", Value: patch.At})
		}
		changed = true
		return tx.Update(ref, updates)
	})
	if errors.Is(err, ErrInvalidTransition) {
		return out, false, fmt.Errorf("transaction '%s' is %s: %w", merchantRef, out.Status, ErrInvalidTransition)
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to transition transaction '%s': %w", merchantRef, err)
	}
	return out, changed, nil
}

// MarkPlanApplied sets planApplied on the transaction document.
func (r *firestoreTransactionRepository) MarkPlanApplied(ctx context.Context, merchantRef string, at time.Time) error {
	_, err := r.collection().Doc(merchantRef).Update(ctx, []firestore.Update{
		{Path: "planApplied", Value: true},
		{Path: "updatedAt", Value: at},
	})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return fmt.Errorf("transaction '%s': %w", merchantRef, ErrNotFound)
		}
		return fmt.Errorf("failed to mark plan applied for transaction '%s': %w", merchantRef, err)
	}
	return nil
}

// applyTransition mutates txn in place according to patch.
func applyTransition(txn *models.Transaction, patch TransitionPatch) {
	at := patch.At
	txn.Status = patch.Status
	txn.UpdatedAt = at
	if patch.Reference != "" {
		txn.Reference = patch.Reference
	}
	if patch.PaymentMethod != "" {
		txn.PaymentMethod = patch.PaymentMethod
	}
	switch patch.Status {
	case models.TransactionPaid:
		txn.PaidAt = &at
	case models.TransactionCancelled:
		txn.CancelledAt = &at
	}
}

// decodeTransaction converts a Firestore document into a Transaction keyed by merchant reference.
func decodeTransaction(snap *firestore.DocumentSnapshot) (*models.Transaction, error) {
	var txn models.Transaction
	if err := snap.DataTo(&txn); err != nil {
		return nil, fmt.Errorf("failed to decode transaction data for ID '%s': %w", snap.Ref.ID, err)
	}
	txn.MerchantRef = snap.Ref.ID
	return &txn, nil
}

func decodeTransactions(snaps []*firestore.DocumentSnapshot) ([]*models.Transaction, error) {
	out := make([]*models.Transaction, 0, len(snaps))
	for _, snap := range snaps {
		txn, err := decodeTransaction(snap)
		if err != nil {
			return nil, err
		}
		out = append(out, txn)
	}
	sortTransactionsNewestFirst(out)
	return out, nil
}
