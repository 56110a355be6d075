package db

import (
	"context"
	"errors"
	"time"

	"github.com/markxplorer969/hyuuxapi-sub001/internal/models"
)

const (
	accountsCollection     = "accounts"
	apiKeysCollection      = "apiKeys"
	transactionsCollection = "transactions"
	paymentLogsCollection  = "paymentLogs"
)

var (
	// ErrNotFound is returned when a document does not exist.
	ErrNotFound = errors.New("document not found")
	// ErrAlreadyExists is returned when a write would break a uniqueness constraint.
	ErrAlreadyExists = errors.New("document already exists")
	// ErrKeyInactive is returned by Consume for a disabled key.
	ErrKeyInactive = errors.New("api key is inactive")
	// ErrQuotaExhausted is returned by Consume when usage has reached the limit.
	ErrQuotaExhausted = errors.New("api key quota exhausted")
	// ErrInvalidTransition is returned when a transaction is already in a different terminal status.
	ErrInvalidTransition = errors.New("invalid transaction status transition")
)

// AccountRepository defines the storage operations on accounts.
type AccountRepository interface {
	GetByID(ctx context.Context, accountID string) (*models.Account, error)
	Create(ctx context.Context, account *models.Account) error
	List(ctx context.Context) ([]*models.Account, error)
	Count(ctx context.Context) (int64, error)
	SetRole(ctx context.Context, accountID string, role models.Role, now time.Time) (*models.Account, error)
	// ApplyPlan sets the account's tier and copies it, with its limit, onto the
	// active key and the account mirror in a single transaction.
	ApplyPlan(ctx context.Context, accountID string, plan models.Tier, resetUsage bool, now time.Time) (*models.Account, *models.APIKey, error)
	// Delete removes the account and all of its keys. It returns the number of keys removed.
	Delete(ctx context.Context, accountID string) (int, error)
}

// RotateOptions controls how Rotate rewrites a key.
type RotateOptions struct {
	ResetUsage bool
	Custom     bool
}

// APIKeyRepository defines the storage operations on API keys.
// Every write that changes the active key's string, usage or limit also
// rewrites the owning account's mirror in the same transaction.
type APIKeyRepository interface {
	// Create stores a new key. The key string must be unused; other active keys
	// of the account are deactivated and the account mirror points at the new key.
	Create(ctx context.Context, key *models.APIKey) error
	GetByID(ctx context.Context, keyID string) (*models.APIKey, error)
	GetByKey(ctx context.Context, key string) (*models.APIKey, error)
	GetActiveByAccount(ctx context.Context, accountID string) (*models.APIKey, error)
	ListByAccount(ctx context.Context, accountID string) ([]*models.APIKey, error)
	// Consume increments usage by one only if the key is active and under its limit.
	Consume(ctx context.Context, key string, now time.Time) (*models.APIKey, error)
	// Rotate replaces the key string of keyID. The new string must be unused.
	Rotate(ctx context.Context, keyID, newKey string, opts RotateOptions, now time.Time) (*models.APIKey, error)
	SetActive(ctx context.Context, keyID string, active bool, now time.Time) (*models.APIKey, error)
	// ResetAllUsage zeroes usage on every key and account mirror. It returns the number of keys reset.
	ResetAllUsage(ctx context.Context, now time.Time) (int, error)
	Count(ctx context.Context) (total int64, active int64, err error)
}

// TransitionPatch describes a status change of a transaction.
type TransitionPatch struct {
	Status        models.TransactionStatus
	Reference     string
	PaymentMethod string
	At            time.Time
}

// TransactionRepository defines the storage operations on payment transactions.
type TransactionRepository interface {
	Create(ctx context.Context, txn *models.Transaction) error
	GetByMerchantRef(ctx context.Context, merchantRef string) (*models.Transaction, error)
	ListByAccount(ctx context.Context, accountID string) ([]*models.Transaction, error)
	List(ctx context.Context) ([]*models.Transaction, error)
	CountByStatus(ctx context.Context, status models.TransactionStatus) (int64, error)
	// Transition moves a PENDING transaction to patch.Status. Applying the status
	// the transaction already has is a no-op reported by changed == false; moving
	// out of a terminal status returns ErrInvalidTransition with the current transaction.
	Transition(ctx context.Context, merchantRef string, patch TransitionPatch) (txn *models.Transaction, changed bool, err error)
	// MarkPlanApplied records that the plan of a paid transaction reached the account.
	MarkPlanApplied(ctx context.Context, merchantRef string, at time.Time) error
}

// PaymentLogRepository stores verified gateway callbacks.
type PaymentLogRepository interface {
	Create(ctx context.Context, entry *models.PaymentLog) error
}
