package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/markxplorer969/hyuuxapi-sub001/internal/db"
	"github.com/markxplorer969/hyuuxapi-sub001/internal/models"
)

// accountService implements the AccountService interface.
type accountService struct {
	accounts db.AccountRepository
	keys     db.APIKeyRepository
	ledger   LedgerService
	stats    StatsService
	notifier Notifier
	logger   *zap.Logger
	now      func() time.Time
}

// NewAccountService creates a new AccountService instance. stats may be nil.
func NewAccountService(accounts db.AccountRepository, keys db.APIKeyRepository, ledger LedgerService, stats StatsService, notifier Notifier, logger *zap.Logger) AccountService {
	return &accountService{
		accounts: accounts,
		keys:     keys,
		ledger:   ledger,
		stats:    stats,
		notifier: notifierOrNop(notifier),
		logger:   logger.Named("accounts"),
		now:      utcNow,
	}
}

// GetOrCreate retrieves an account by ID. If it doesn't exist, it is created on the
// FREE plan and issued a FREE key. The boolean reports whether the account was created.
func (s *accountService) GetOrCreate(ctx context.Context, accountID, email, displayName, photoURL string) (*models.Account, bool, error) {
	account, err := s.accounts.GetByID(ctx, accountID)
	if err == nil {
		return account, false, nil
	}
	if !errors.Is(err, db.ErrNotFound) {
		return nil, false, fmt.Errorf("failed to get account by ID '%s' from repository: %w", accountID, err)
	}

	now := s.now()
	account = &models.Account{
		ID:          accountID,
		Email:       email,
		DisplayName: displayName,
		PhotoURL:    photoURL,
		Role:        models.RoleUser,
		Plan:        models.DefaultTier,
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.accounts.Create(ctx, account); err != nil {
		if errors.Is(err, db.ErrAlreadyExists) {
			// Lost a signup race; the winner issued the key.
			existing, getErr := s.accounts.GetByID(ctx, accountID)
			if getErr != nil {
				return nil, false, fmt.Errorf("failed to reload account '%s': %w", accountID, getErr)
			}
			return existing, false, nil
		}
		return nil, false, fmt.Errorf("failed to create account (id: %s): %w", accountID, err)
	}

	if _, err := s.ledger.Issue(ctx, accountID, models.DefaultTier, "", ""); err != nil {
		return nil, false, fmt.Errorf("failed to issue initial key for account '%s': %w", accountID, err)
	}
	created, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		return nil, false, fmt.Errorf("failed to reload account '%s': %w", accountID, err)
	}
	s.logger.Info("Account created", zap.String("accountID", accountID), zap.String("email", email))
	s.notifier.Notify(ctx, Event{Type: EventAccountCreated, AccountID: accountID, Email: email, Plan: created.Plan, At: now})
	s.invalidateStats(ctx)
	return created, true, nil
}

// GetByID retrieves an account, mapping a missing document to ErrAccountNotFound.
func (s *accountService) GetByID(ctx context.Context, accountID string) (*models.Account, error) {
	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		return nil, mapAccountError(err)
	}
	return account, nil
}

// GetProfile returns the account together with its active key.
// An account without an active key is returned with a nil ActiveKey.
func (s *accountService) GetProfile(ctx context.Context, accountID string) (*Profile, error) {
	account, err := s.GetByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	profile := &Profile{Account: account}
	key, err := s.keys.GetActiveByAccount(ctx, accountID)
	switch {
	case err == nil:
		profile.ActiveKey = key
	case !errors.Is(err, db.ErrNotFound):
		return nil, fmt.Errorf("failed to load active key of account '%s': %w", accountID, err)
	}
	return profile, nil
}

// List returns all accounts ordered by creation time.
func (s *accountService) List(ctx context.Context) ([]*models.Account, error) {
	accounts, err := s.accounts.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	return accounts, nil
}

// SetPlan overrides the account tier. Usage is reset only on upgrades.
func (s *accountService) SetPlan(ctx context.Context, accountID string, tier models.Tier) (*models.Account, error) {
	if !tier.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPlan, tier)
	}
	current, err := s.GetByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	account, _, err := s.accounts.ApplyPlan(ctx, accountID, tier, isUpgrade(current.Plan, tier), s.now())
	if err != nil {
		return nil, mapAccountError(err)
	}
	s.logger.Info("Account plan changed",
		zap.String("accountID", accountID),
		zap.String("from", string(current.Plan)),
		zap.String("to", string(tier)))
	s.notifier.Notify(ctx, Event{Type: EventPlanChanged, AccountID: accountID, Email: account.Email, Plan: tier, At: account.UpdatedAt})
	return account, nil
}

// SetRole changes the role of the account.
func (s *accountService) SetRole(ctx context.Context, accountID string, role models.Role) (*models.Account, error) {
	if !role.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}
	account, err := s.accounts.SetRole(ctx, accountID, role, s.now())
	if err != nil {
		return nil, mapAccountError(err)
	}
	s.logger.Info("Account role changed", zap.String("accountID", accountID), zap.String("role", string(role)))
	return account, nil
}

// Delete removes the account and its keys, returning the number of keys removed.
func (s *accountService) Delete(ctx context.Context, accountID string) (int, error) {
	n, err := s.accounts.Delete(ctx, accountID)
	if err != nil {
		return 0, mapAccountError(err)
	}
	s.logger.Info("Account deleted", zap.String("accountID", accountID), zap.Int("keysRemoved", n))
	s.invalidateStats(ctx)
	return n, nil
}

func (s *accountService) invalidateStats(ctx context.Context) {
	if s.stats != nil {
		s.stats.Invalidate(ctx)
	}
}

// isUpgrade compares tiers after mapping legacy names.
func isUpgrade(from, to models.Tier) bool {
	canonical, _, ok := models.MigrateTierName(string(from))
	if !ok {
		return true
	}
	return to.Rank() > canonical.Rank()
}
