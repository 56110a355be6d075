package core

import (
	"context"

	"github.com/markxplorer969/hyuuxapi-sub001/internal/models"
	"github.com/markxplorer969/hyuuxapi-sub001/internal/payment"
)

// LedgerService owns the key/usage ledger.
type LedgerService interface {
	// Resolve looks a key string up without consuming it.
	Resolve(ctx context.Context, key string) (*models.APIKey, *models.Account, error)
	// Admit reports whether one more call may be recorded against the key.
	Admit(key *models.APIKey) error
	// Consume atomically admits and records one call.
	Consume(ctx context.Context, key string) (*models.APIKey, error)
	Issue(ctx context.Context, accountID string, tier models.Tier, customKey, label string) (*models.APIKey, error)
	// SetCustomKey replaces the account's active key string with s, keeping usage and limit.
	SetCustomKey(ctx context.Context, accountID, s string) (*models.APIKey, error)
	// Regenerate rotates keyID, or mints a new key from the account's plan when keyID is empty.
	Regenerate(ctx context.Context, accountID, keyID string) (*models.APIKey, error)
	SetKeyActive(ctx context.Context, keyID string, active bool) (*models.APIKey, error)
	ListKeys(ctx context.Context, accountID string) ([]*models.APIKey, error)
	ResetUsage(ctx context.Context) (int, error)
}

// Profile is an account together with its active key, if any.
type Profile struct {
	Account   *models.Account `json:"account"`
	ActiveKey *models.APIKey  `json:"activeKey,omitempty"`
}

// AccountService defines the account operations.
type AccountService interface {
	// GetOrCreate returns the account, creating it with a FREE key on first sight.
	GetOrCreate(ctx context.Context, accountID, email, displayName, photoURL string) (*models.Account, bool, error)
	GetByID(ctx context.Context, accountID string) (*models.Account, error)
	GetProfile(ctx context.Context, accountID string) (*Profile, error)
	List(ctx context.Context) ([]*models.Account, error)
	SetPlan(ctx context.Context, accountID string, tier models.Tier) (*models.Account, error)
	SetRole(ctx context.Context, accountID string, role models.Role) (*models.Account, error)
	Delete(ctx context.Context, accountID string) (int, error)
}

// PaymentGateway is the subset of the payment client used by billing.
type PaymentGateway interface {
	CreateTransaction(ctx context.Context, req payment.ChargeRequest) (*payment.Charge, error)
	VerifySignature(body []byte, signature string) bool
}

// Checkout is the result of starting a plan purchase.
type Checkout struct {
	Transaction *models.Transaction `json:"transaction"`
	CheckoutURL string              `json:"checkoutUrl"`
}

// BillingService defines plan purchase operations.
type BillingService interface {
	Plans() []models.Plan
	CreateCheckout(ctx context.Context, account *models.Account, req models.CheckoutRequest) (*Checkout, error)
	// HandleCallback verifies and applies a gateway callback. body is the raw request body.
	HandleCallback(ctx context.Context, signature string, body []byte) (*models.Transaction, error)
	Cancel(ctx context.Context, accountID, merchantRef string) (*models.Transaction, error)
	ListTransactions(ctx context.Context, accountID string) ([]*models.Transaction, error)
	ListAll(ctx context.Context) ([]*models.Transaction, error)
}

// MigrationService rewrites legacy tier names onto the canonical tiers.
type MigrationService interface {
	MigratePlans(ctx context.Context) (*models.MigrationSummary, error)
}

// StatsService serves the admin dashboard counters.
type StatsService interface {
	Stats(ctx context.Context) (*models.Stats, error)
	Invalidate(ctx context.Context)
}

// ImageService serves random images from the catalog.
type ImageService interface {
	Categories() []string
	// HasCategory reports whether Random can serve category.
	HasCategory(category string) bool
	Random(category string) (string, error)
}

// Notifier receives domain events. Implementations must not block the caller for long.
type Notifier interface {
	Notify(ctx context.Context, event Event)
}
