package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/markxplorer969/hyuuxapi-sub001/internal/db"
	"github.com/markxplorer969/hyuuxapi-sub001/internal/metrics"
	"github.com/markxplorer969/hyuuxapi-sub001/internal/models"
)

// maxKeyAttempts bounds resampling when a generated key collides with an existing one.
const maxKeyAttempts = 5

// ledgerService implements LedgerService.
type ledgerService struct {
	keys     db.APIKeyRepository
	accounts db.AccountRepository
	metrics  *metrics.Metrics
	logger   *zap.Logger
	notifier Notifier
	generate KeyGenerator
	now      func() time.Time
}

// LedgerOption customizes a ledger service.
type LedgerOption func(*ledgerService)

// WithKeyGenerator replaces the random key generator.
func WithKeyGenerator(g KeyGenerator) LedgerOption {
	return func(s *ledgerService) { s.generate = g }
}

// WithLedgerClock replaces the time source.
func WithLedgerClock(now func() time.Time) LedgerOption {
	return func(s *ledgerService) { s.now = now }
}

// WithLedgerNotifier publishes ledger events such as usage resets.
func WithLedgerNotifier(n Notifier) LedgerOption {
	return func(s *ledgerService) { s.notifier = notifierOrNop(n) }
}

// NewLedgerService creates a new LedgerService instance.
func NewLedgerService(keys db.APIKeyRepository, accounts db.AccountRepository, m *metrics.Metrics, logger *zap.Logger, opts ...LedgerOption) LedgerService {
	s := &ledgerService{
		keys:     keys,
		accounts: accounts,
		metrics:  m,
		logger:   logger.Named("ledger"),
		notifier: nopNotifier{},
		generate: GenerateKey,
		now:      utcNow,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Resolve looks up the key string and its owning account without recording a call.
// An empty string yields ErrKeyMissing and an unknown string ErrKeyNotFound.
func (s *ledgerService) Resolve(ctx context.Context, key string) (*models.APIKey, *models.Account, error) {
	if key == "" {
		return nil, nil, ErrKeyMissing
	}
	k, err := s.keys.GetByKey(ctx, key)
	if err != nil {
		return nil, nil, mapKeyError(err)
	}
	account, err := s.accounts.GetByID(ctx, k.AccountID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			// Orphaned key.
			return nil, nil, ErrKeyNotFound
		}
		return nil, nil, fmt.Errorf("failed to load owner of api key: %w", err)
	}
	if !k.IsActive {
		return k, account, ErrKeyDisabled
	}
	return k, account, nil
}

// Admit checks a key that was already loaded. It never touches storage, so
// callers that need the decision to stick must use Consume instead.
func (s *ledgerService) Admit(k *models.APIKey) error {
	switch k.Status() {
	case models.KeyStatusDisabled:
		return ErrKeyDisabled
	case models.KeyStatusExhausted:
		return ErrLimitReached
	default:
		return nil
	}
}

// Consume admits one call and increments usage in a single storage transaction.
// The outcome of every attempt is counted in the admission metrics.
func (s *ledgerService) Consume(ctx context.Context, key string) (*models.APIKey, error) {
	if key == "" {
		s.metrics.ObserveAdmission(ReasonKeyMissing)
		return nil, ErrKeyMissing
	}
	k, err := s.keys.Consume(ctx, key, s.now())
	if err != nil {
		mapped := mapKeyError(err)
		s.metrics.ObserveAdmission(ReasonCode(mapped))
		return nil, mapped
	}
	s.metrics.ObserveAdmission("admitted")
	return k, nil
}

// Issue creates a new active key for the account on the given tier.
// A custom key string is validated and stored as is; otherwise a random key is
// generated, resampling up to maxKeyAttempts times on collision.
func (s *ledgerService) Issue(ctx context.Context, accountID string, tier models.Tier, customKey, label string) (*models.APIKey, error) {
	if !tier.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPlan, tier)
	}
	now := s.now()
	newKey := func(str string, custom bool) *models.APIKey {
		return &models.APIKey{
			Key:       str,
			AccountID: accountID,
			Label:     label,
			Plan:      tier,
			Limit:     tier.Limit(),
			IsActive:  true,
			Custom:    custom,
			CreatedAt: now,
			UpdatedAt: now,
		}
	}

	if customKey != "" {
		if !models.ValidCustomKey(customKey) {
			return nil, ErrInvalidKeyFormat
		}
		k := newKey(customKey, true)
		if err := s.keys.Create(ctx, k); err != nil {
			return nil, mapIssueError(err)
		}
		s.logger.Info("Issued custom api key", zap.String("accountID", accountID), zap.String("tier", string(tier)))
		return k, nil
	}

	for attempt := 1; attempt <= maxKeyAttempts; attempt++ {
		str, err := s.generate()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrKeyGeneration, err)
		}
		k := newKey(str, false)
		err = s.keys.Create(ctx, k)
		if err == nil {
			s.logger.Info("Issued api key", zap.String("accountID", accountID), zap.String("tier", string(tier)))
			return k, nil
		}
		if !errors.Is(err, db.ErrAlreadyExists) {
			return nil, mapIssueError(err)
		}
		s.logger.Warn("Generated api key collided, resampling", zap.Int("attempt", attempt))
	}
	return nil, ErrKeyGeneration
}

// SetCustomKey renames the account's active key to str. Usage, limit and plan are
// kept; the new string must be unused by any other key.
func (s *ledgerService) SetCustomKey(ctx context.Context, accountID, str string) (*models.APIKey, error) {
	if !models.ValidCustomKey(str) {
		return nil, ErrInvalidKeyFormat
	}
	active, err := s.keys.GetActiveByAccount(ctx, accountID)
	if err != nil {
		return nil, mapKeyError(err)
	}
	if active.Key == str {
		return active, nil
	}
	k, err := s.keys.Rotate(ctx, active.ID, str, db.RotateOptions{Custom: true}, s.now())
	if err != nil {
		return nil, mapIssueError(err)
	}
	s.logger.Info("Custom api key set", zap.String("accountID", accountID), zap.String("keyID", k.ID))
	return k, nil
}

// Regenerate gives the key identified by keyID a fresh random string and zero usage.
// With an empty keyID a new key is issued from the account's current plan.
func (s *ledgerService) Regenerate(ctx context.Context, accountID, keyID string) (*models.APIKey, error) {
	if keyID == "" {
		account, err := s.accounts.GetByID(ctx, accountID)
		if err != nil {
			return nil, mapAccountError(err)
		}
		tier, _, ok := models.MigrateTierName(string(account.Plan))
		if !ok {
			tier = models.DefaultTier
		}
		return s.Issue(ctx, accountID, tier, "", "")
	}

	current, err := s.keys.GetByID(ctx, keyID)
	if err != nil {
		return nil, mapKeyError(err)
	}
	if current.AccountID != accountID {
		return nil, ErrKeyNotOwned
	}
	for attempt := 1; attempt <= maxKeyAttempts; attempt++ {
		str, err := s.generate()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrKeyGeneration, err)
		}
		k, err := s.keys.Rotate(ctx, keyID, str, db.RotateOptions{ResetUsage: true}, s.now())
		if err == nil {
			s.logger.Info("Regenerated api key", zap.String("accountID", accountID), zap.String("keyID", keyID))
			return k, nil
		}
		if !errors.Is(err, db.ErrAlreadyExists) {
			return nil, mapKeyError(err)
		}
	}
	return nil, ErrKeyGeneration
}

// SetKeyActive enables or disables a key by document ID.
func (s *ledgerService) SetKeyActive(ctx context.Context, keyID string, active bool) (*models.APIKey, error) {
	k, err := s.keys.SetActive(ctx, keyID, active, s.now())
	if err != nil {
		return nil, mapKeyError(err)
	}
	s.logger.Info("Api key active flag changed", zap.String("keyID", keyID), zap.Bool("active", active))
	return k, nil
}

// ListKeys returns every key of the account, newest first.
func (s *ledgerService) ListKeys(ctx context.Context, accountID string) ([]*models.APIKey, error) {
	keys, err := s.keys.ListByAccount(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to list keys for account '%s': %w", accountID, err)
	}
	return keys, nil
}

// ResetUsage zeroes the usage of every key and account mirror for a new period
// and returns the number of keys that had usage.
func (s *ledgerService) ResetUsage(ctx context.Context) (int, error) {
	n, err := s.keys.ResetAllUsage(ctx, s.now())
	if err != nil {
		return n, fmt.Errorf("usage reset: %w", err)
	}
	s.metrics.ObserveUsageReset(n)
	s.logger.Info("Usage counters reset", zap.Int("keys", n))
	s.notifier.Notify(ctx, Event{Type: EventUsageReset, Count: n, At: s.now()})
	return n, nil
}

// mapKeyError translates repository errors into ledger errors.
func mapKeyError(err error) error {
	switch {
	case errors.Is(err, db.ErrNotFound):
		return ErrKeyNotFound
	case errors.Is(err, db.ErrKeyInactive):
		return ErrKeyDisabled
	case errors.Is(err, db.ErrQuotaExhausted):
		return ErrLimitReached
	case errors.Is(err, db.ErrAlreadyExists):
		return ErrKeyConflict
	default:
		return err
	}
}

// mapIssueError is mapKeyError for writes that may hit an unknown account.
func mapIssueError(err error) error {
	switch {
	case errors.Is(err, db.ErrAlreadyExists):
		return ErrKeyConflict
	case errors.Is(err, db.ErrNotFound):
		return ErrAccountNotFound
	default:
		return err
	}
}

func mapAccountError(err error) error {
	if errors.Is(err, db.ErrNotFound) {
		return ErrAccountNotFound
	}
	return err
}
