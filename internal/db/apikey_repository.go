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

// firestoreAPIKeyRepository implements APIKeyRepository using Firestore transactions.
type firestoreAPIKeyRepository struct {
	client *firestore.Client
}

// NewFirestoreAPIKeyRepository creates a new instance of firestoreAPIKeyRepository.
func NewFirestoreAPIKeyRepository(client *firestore.Client) APIKeyRepository {
	if client == nil {
		panic("Firestore client is not initialized for APIKeyRepository")
	}
	return &firestoreAPIKeyRepository{client: client}
}

func (r *firestoreAPIKeyRepository) apiKeys() *firestore.CollectionRef {
	return r.client.Collection(apiKeysCollection)
}

func (r *firestoreAPIKeyRepository) accounts() *firestore.CollectionRef {
	return r.client.Collection(accountsCollection)
}

// byKey matches the single document holding the key string.
func (r *firestoreAPIKeyRepository) byKey(key string) firestore.Query {
	return r.apiKeys().Where("key", "==", key).Limit(1)
}

// Create stores a new key, enforcing key string uniqueness inside the transaction.
func (r *firestoreAPIKeyRepository) Create(ctx context.Context, key *models.APIKey) error {
	if key.AccountID == "" || key.Key == "" {
		return errors.New("accountId and key are required for Create operation")
	}
	docRef := r.apiKeys().NewDoc()
	accRef := r.accounts().Doc(key.AccountID)

	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		accSnap, err := tx.Get(accRef)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return fmt.Errorf("account with ID '%s': %w", key.AccountID, ErrNotFound)
			}
			return err
		}
		clash, err := tx.Documents(r.byKey(key.Key)).GetAll()
		if err != nil {
			return err
		}
		if len(clash) > 0 {
			return fmt.Errorf("api key string: %w", ErrAlreadyExists)
		}
		var previous []*firestore.DocumentSnapshot
		if key.IsActive {
			previous, err = tx.Documents(r.apiKeys().
				Where("accountId", "==", key.AccountID).
				Where("isActive", "==", true)).GetAll()
			if err != nil {
				return err
			}
		}

		for _, snap := range previous {
			if err := tx.Update(snap.Ref, []firestore.Update{
				{Path: "isActive", Value: false},
				{Path: "updatedAt", Value: key.CreatedAt},
			}); err != nil {
				return err
			}
		}
		if err := tx.Create(docRef, key); err != nil {
			return err
		}
		if !key.IsActive {
			return nil
		}
		account, err := decodeAccount(accSnap)
		if err != nil {
			return err
		}
		account.MirrorKey(key)
		return tx.Update(accRef, mirrorUpdates(account, key.CreatedAt))
	})
	if err != nil {
		return fmt.Errorf("failed to create api key for account '%s': %w", key.AccountID, err)
	}
	key.ID = docRef.ID
	return nil
}

// GetByID retrieves a key by document ID.
func (r *firestoreAPIKeyRepository) GetByID(ctx context.Context, keyID string) (*models.APIKey, error) {
	if keyID == "" {
		return nil, errors.New("keyID cannot be empty for GetByID operation")
	}
	snap, err := r.apiKeys().Doc(keyID).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, fmt.Errorf("api key with ID '%s': %w", keyID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get api key '%s': %w", keyID, err)
	}
	return decodeAPIKey(snap)
}

// GetByKey retrieves a key by exact key string match.
func (r *firestoreAPIKeyRepository) GetByKey(ctx context.Context, key string) (*models.APIKey, error) {
	return r.first(ctx, r.byKey(key), "api key string")
}

// GetActiveByAccount returns the first active key of the account.
func (r *firestoreAPIKeyRepository) GetActiveByAccount(ctx context.Context, accountID string) (*models.APIKey, error) {
	q := r.apiKeys().Where("accountId", "==", accountID).Where("isActive", "==", true).Limit(1)
	return r.first(ctx, q, fmt.Sprintf("active api key for account '%s'", accountID))
}

// first returns the first key of q or ErrNotFound.
func (r *firestoreAPIKeyRepository) first(ctx context.Context, q firestore.Query, what string) (*models.APIKey, error) {
	iter := q.Documents(ctx)
	defer iter.Stop()
	snap, err := iter.Next()
	if err == iterator.Done {
		return nil, fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", what, err)
	}
	return decodeAPIKey(snap)
}

// ListByAccount returns all keys of an account, newest first.
func (r *firestoreAPIKeyRepository) ListByAccount(ctx context.Context, accountID string) ([]*models.APIKey, error) {
	snaps, err := r.apiKeys().Where("accountId", "==", accountID).Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("failed to list api keys for account '%s': %w", accountID, err)
	}
	keys := make([]*models.APIKey, 0, len(snaps))
	for _, snap := range snaps {
		key, err := decodeAPIKey(snap)
		if err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	sortKeysNewestFirst(keys)
	return keys, nil
}

// Consume performs the admission check and the usage increment in one transaction.
func (r *firestoreAPIKeyRepository) Consume(ctx context.Context, key string, now time.Time) (*models.APIKey, error) {
	var consumed *models.APIKey
	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snaps, err := tx.Documents(r.byKey(key)).GetAll()
		if err != nil {
			return err
		}
		if len(snaps) == 0 {
			return fmt.Errorf("api key string: %w", ErrNotFound)
		}
		k, err := decodeAPIKey(snaps[0])
		if err != nil {
			return err
		}
		if !k.IsActive {
			return ErrKeyInactive
		}
		if k.Usage >= k.Limit {
			return ErrQuotaExhausted
		}
		accRef := r.accounts().Doc(k.AccountID)
		account, err := getAccountInTx(tx, accRef)
		if err != nil {
			return err
		}

		k.Usage++
		k.LastUsedAt = &now
		k.UpdatedAt = now
		if err := tx.Update(snaps[0].Ref, []firestore.Update{
			{Path: "usage", Value: k.Usage},
			{Path: "lastUsedAt", Value: now},
			{Path: "updatedAt", Value: now},
		}); err != nil {
			return err
		}
		consumed = k
		if account == nil || account.APIKey != k.Key {
			return nil
		}
		account.MirrorKey(k)
		return tx.Update(accRef, mirrorUpdates(account, now))
	})
	if err != nil {
		return nil, fmt.Errorf("failed to consume api key: %w", err)
	}
	return consumed, nil
}

// Rotate replaces the key string, optionally resetting usage and clearing lastUsedAt.
func (r *firestoreAPIKeyRepository) Rotate(ctx context.Context, keyID, newKey string, opts RotateOptions, now time.Time) (*models.APIKey, error) {
	var rotated *models.APIKey
	keyRef := r.apiKeys().Doc(keyID)
	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(keyRef)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return fmt.Errorf("api key with ID '%s': %w", keyID, ErrNotFound)
			}
			return err
		}
		k, err := decodeAPIKey(snap)
		if err != nil {
			return err
		}
		clash, err := tx.Documents(r.byKey(newKey)).GetAll()
		if err != nil {
			return err
		}
		for _, other := range clash {
			if other.Ref.ID != keyID {
				return fmt.Errorf("api key string: %w", ErrAlreadyExists)
			}
		}
		accRef := r.accounts().Doc(k.AccountID)
		account, err := getAccountInTx(tx, accRef)
		if err != nil {
			return err
		}

		oldKey := k.Key
		k.Key = newKey
		k.Custom = opts.Custom
		k.UpdatedAt = now
		updates := []firestore.Update{
			{Path: "key", Value: newKey},
			{Path: "custom", Value: opts.Custom},
			{Path: "updatedAt", Value: now},
		}
		if opts.ResetUsage {
			k.Usage = 0
			k.LastUsedAt = nil
			updates = append(updates,
				firestore.Update{Path: "usage", Value: int64(0)},
				firestore.Update{Path: "lastUsedAt", Value: nil})
		}
		if err := tx.Update(keyRef, updates); err != nil {
			return err
		}
		rotated = k
		if account == nil || !(k.IsActive || account.APIKey == oldKey) {
			return nil
		}
		account.MirrorKey(k)
		return tx.Update(accRef, mirrorUpdates(account, now))
	})
	if err != nil {
		return nil, fmt.Errorf("failed to rotate api key '%s': %w", keyID, err)
	}
	return rotated, nil
}

// SetActive enables or disables a key. Enabling a key disables the account's other keys
// and points the mirror at it.
func (r *firestoreAPIKeyRepository) SetActive(ctx context.Context, keyID string, active bool, now time.Time) (*models.APIKey, error) {
	var updated *models.APIKey
	keyRef := r.apiKeys().Doc(keyID)
	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(keyRef)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return fmt.Errorf("api key with ID '%s': %w", keyID, ErrNotFound)
			}
			return err
		}
		k, err := decodeAPIKey(snap)
		if err != nil {
			return err
		}
		var (
			others  []*firestore.DocumentSnapshot
			account *models.Account
			accRef  = r.accounts().Doc(k.AccountID)
		)
		if active {
			others, err = tx.Documents(r.apiKeys().
				Where("accountId", "==", k.AccountID).
				Where("isActive", "==", true)).GetAll()
			if err != nil {
				return err
			}
		}
		if account, err = getAccountInTx(tx, accRef); err != nil {
			return err
		}

		for _, other := range others {
			if other.Ref.ID == keyID {
				continue
			}
			if err := tx.Update(other.Ref, []firestore.Update{
				{Path: "isActive", Value: false},
				{Path: "updatedAt", Value: now},
			}); err != nil {
				return err
			}
		}
		k.IsActive = active
		k.UpdatedAt = now
		if err := tx.Update(keyRef, []firestore.Update{
			{Path: "isActive", Value: active},
			{Path: "updatedAt", Value: now},
		}); err != nil {
			return err
		}
		updated = k
		if account == nil {
			return nil
		}
		switch {
		case active:
			account.MirrorKey(k)
		case account.APIKey == k.Key:
			// The account no longer has an active key to show.
			account.MirrorKey(nil)
		default:
			return nil
		}
		return tx.Update(accRef, mirrorUpdates(account, now))
	})
	if err != nil {
		return nil, fmt.Errorf("failed to set active=%t on api key '%s': %w", active, keyID, err)
	}
	return updated, nil
}

// ResetAllUsage zeroes usage counters through a BulkWriter.
func (r *firestoreAPIKeyRepository) ResetAllUsage(ctx context.Context, now time.Time) (int, error) {
	keySnaps, err := r.apiKeys().Where("usage", ">", 0).Documents(ctx).GetAll()
	if err != nil {
		return 0, fmt.Errorf("failed to query used api keys: %w", err)
	}
	accSnaps, err := r.accounts().Where("apiUsage", ">", 0).Documents(ctx).GetAll()
	if err != nil {
		return 0, fmt.Errorf("failed to query accounts with usage: %w", err)
	}

	bw := r.client.BulkWriter(ctx)
	var jobs []*firestore.BulkWriterJob
	enqueue := func(ref *firestore.DocumentRef, field string) error {
		job, err := bw.Update(ref, []firestore.Update{
			{Path: field, Value: int64(0)},
			{Path: "updatedAt", Value: now},
		})
		if err != nil {
			return err
		}
		jobs = append(jobs, job)
		return nil
	}
	for _, snap := range keySnaps {
		if err := enqueue(snap.Ref, "usage"); err != nil {
			bw.End()
			return 0, fmt.Errorf("failed to enqueue usage reset: %w", err)
		}
	}
	for _, snap := range accSnaps {
		if err := enqueue(snap.Ref, "apiUsage"); err != nil {
			bw.End()
			return 0, fmt.Errorf("failed to enqueue mirror reset: %w", err)
		}
	}
	bw.End()

	var errs []error
	for _, job := range jobs {
		if _, err := job.Results(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return len(keySnaps), fmt.Errorf("usage reset finished with %d failed writes: %w", len(errs), errors.Join(errs...))
	}
	return len(keySnaps), nil
}

// Count returns the number of keys and of active keys.
func (r *firestoreAPIKeyRepository) Count(ctx context.Context) (int64, int64, error) {
	total, err := countQuery(ctx, r.apiKeys().Query)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to count api keys: %w", err)
	}
	active, err := countQuery(ctx, r.apiKeys().Where("isActive", "==", true))
	if err != nil {
		return 0, 0, fmt.Errorf("failed to count active api keys: %w", err)
	}
	return total, active, nil
}

// getAccountInTx reads an account inside a transaction, returning nil when it does not exist.
func getAccountInTx(tx *firestore.Transaction, ref *firestore.DocumentRef) (*models.Account, error) {
	snap, err := tx.Get(ref)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, nil
		}
		return nil, err
	}
	return decodeAccount(snap)
}

// mirrorUpdates writes the account copy of the active key.
func mirrorUpdates(account *models.Account, now time.Time) []firestore.Update {
	return []firestore.Update{
		{Path: "apiKey", Value: account.APIKey},
		{Path: "apiUsage", Value: account.APIUsage},
		{Path: "apiLimit", Value: account.APILimit},
		{Path: "updatedAt", Value: now},
	}
}

// decodeAPIKey converts a Firestore document into an APIKey, filling ID from the document.
func decodeAPIKey(snap *firestore.DocumentSnapshot) (*models.APIKey, error) {
	var key models.APIKey
	if err := snap.DataTo(&key); err != nil {
		return nil, fmt.Errorf("failed to decode api key data for ID '%s': %w", snap.Ref.ID, err)
	}
	key.ID = snap.Ref.ID
	return &key, nil
}
