package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/markxplorer969/hyuuxapi-sub001/internal/models"
)

// firestoreAccountRepository implements AccountRepository using Firestore.
type firestoreAccountRepository struct {
	client *firestore.Client
}

// NewFirestoreAccountRepository creates a new instance of firestoreAccountRepository.
func NewFirestoreAccountRepository(client *firestore.Client) AccountRepository {
	if client == nil {
		panic("Firestore client is not initialized for AccountRepository")
	}
	return &firestoreAccountRepository{client: client}
}

func (r *firestoreAccountRepository) accounts() *firestore.CollectionRef {
	return r.client.Collection(accountsCollection)
}

func (r *firestoreAccountRepository) apiKeys() *firestore.CollectionRef {
	return r.client.Collection(apiKeysCollection)
}

// Create adds a new account document. The account ID (Firebase Auth UID) is the document ID.
func (r *firestoreAccountRepository) Create(ctx context.Context, account *models.Account) error {
	if account.ID == "" {
		return errors.New("account ID cannot be empty for Create operation")
	}
	_, err := r.accounts().Doc(account.ID).Create(ctx, account)
	if err != nil {
		if status.Code(err) == codes.AlreadyExists {
			return fmt.Errorf("account with ID '%s': %w", account.ID, ErrAlreadyExists)
		}
		return fmt.Errorf("failed to create account with ID '%s': %w", account.ID, err)
	}
	return nil
}

// GetByID retrieves an account by its ID.
func (r *firestoreAccountRepository) GetByID(ctx context.Context, accountID string) (*models.Account, error) {
	if accountID == "" {
		return nil, errors.New("accountID cannot be empty for GetByID operation")
	}
	snap, err := r.accounts().Doc(accountID).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, fmt.Errorf("account with ID '%s': %w", accountID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get account with ID '%s': %w", accountID, err)
	}
	return decodeAccount(snap)
}

// List returns every account ordered by creation time.
func (r *firestoreAccountRepository) List(ctx context.Context) ([]*models.Account, error) {
	iter := r.accounts().OrderBy("createdAt", firestore.Asc).Documents(ctx)
	defer iter.Stop()

	var accounts []*models.Account
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to iterate accounts: %w", err)
		}
		account, err := decodeAccount(snap)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, account)
	}
	return accounts, nil
}

// Count returns the number of account documents.
func (r *firestoreAccountRepository) Count(ctx context.Context) (int64, error) {
	n, err := countQuery(ctx, r.accounts().Query)
	if err != nil {
		return 0, fmt.Errorf("failed to count accounts: %w", err)
	}
	return n, nil
}

// SetRole changes the role of an account.
func (r *firestoreAccountRepository) SetRole(ctx context.Context, accountID string, role models.Role, now time.Time) (*models.Account, error) {
	ref := r.accounts().Doc(accountID)
	_, err := ref.Update(ctx, []firestore.Update{
		{Path: "role", Value: string(role)},
		{Path: "updatedAt", Value: now},
	})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, fmt.Errorf("account with ID '%s': %w", accountID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to set role for account '%s': %w", accountID, err)
	}
	return r.GetByID(ctx, accountID)
}

// ApplyPlan updates the account tier, the active key snapshot and the mirror atomically.
func (r *firestoreAccountRepository) ApplyPlan(ctx context.Context, accountID string, plan models.Tier, resetUsage bool, now time.Time) (*models.Account, *models.APIKey, error) {
	var (
		outAccount *models.Account
		outKey     *models.APIKey
	)
	accRef := r.accounts().Doc(accountID)
	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		accSnap, err := tx.Get(accRef)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return fmt.Errorf("account with ID '%s': %w", accountID, ErrNotFound)
			}
			return err
		}
		account, err := decodeAccount(accSnap)
		if err != nil {
			return err
		}
		keySnaps, err := tx.Documents(r.apiKeys().
			Where("accountId", "==", accountID).
			Where("isActive", "==", true).
			Limit(1)).GetAll()
		if err != nil {
			return fmt.Errorf("failed to query active key for account '%s': %w", accountID, err)
		}

		account.Plan = plan
		account.UpdatedAt = now
		outKey = nil
		if len(keySnaps) > 0 {
			key, err := decodeAPIKey(keySnaps[0])
			if err != nil {
				return err
			}
			key.Plan = plan
			key.Limit = plan.Limit()
			key.UpdatedAt = now
			updates := []firestore.Update{
				{Path: "plan", Value: string(plan)},
				{Path: "limit", Value: key.Limit},
				{Path: "updatedAt", Value: now},
			}
			if resetUsage {
				key.Usage = 0
				updates = append(updates, firestore.Update{Path: "usage", Value: int64(0)})
			}
			if err := tx.Update(keySnaps[0].Ref, updates); err != nil {
				return err
			}
			account.MirrorKey(key)
			outKey = key
		}
		outAccount = account
		return tx.Update(accRef, []firestore.Update{
			{Path: "plan", Value: string(plan)},
			{Path: "apiKey", Value: account.APIKey},
			{Path: "apiUsage", Value: account.APIUsage},
			{Path: "apiLimit", Value: account.APILimit},
			{Path: "updatedAt", Value: now},
		})
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to apply plan '%s' to account '%s': %w", plan, accountID, err)
	}
	return outAccount, outKey, nil
}

// Delete removes the account and cascades to its keys.
func (r *firestoreAccountRepository) Delete(ctx context.Context, accountID string) (int, error) {
	var deleted int
	accRef := r.accounts().Doc(accountID)
	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		if _, err := tx.Get(accRef); err != nil {
			if status.Code(err) == codes.NotFound {
				return fmt.Errorf("account with ID '%s': %w", accountID, ErrNotFound)
			}
			return err
		}
		keySnaps, err := tx.Documents(r.apiKeys().Where("accountId", "==", accountID)).GetAll()
		if err != nil {
			return err
		}
		for _, snap := range keySnaps {
			if err := tx.Delete(snap.Ref); err != nil {
				return err
			}
		}
		deleted = len(keySnaps)
		return tx.Delete(accRef)
	})
	if err != nil {
		return 0, fmt.Errorf("failed to delete account '%s': %w", accountID, err)
	}
	return deleted, nil
}

// decodeAccount converts a Firestore document into an Account. The document ID is the UID.
func decodeAccount(snap *firestore.DocumentSnapshot) (*models.Account, error) {
	var account models.Account
	if err := snap.DataTo(&account); err != nil {
		return nil, fmt.Errorf("failed to decode account data for ID '%s': %w", snap.Ref.ID, err)
	}
	account.ID = snap.Ref.ID
	return &account, nil
}
