package core

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/markxplorer969/hyuuxapi-sub001/internal/db"
	"github.com/markxplorer969/hyuuxapi-sub001/internal/models"
)

// migrationService implements MigrationService.
type migrationService struct {
	accounts db.AccountRepository
	notifier Notifier
	logger   *zap.Logger
	now      func() time.Time
}

// NewMigrationService creates a new MigrationService instance.
func NewMigrationService(accounts db.AccountRepository, notifier Notifier, logger *zap.Logger) MigrationService {
	return &migrationService{
		accounts: accounts,
		notifier: notifierOrNop(notifier),
		logger:   logger.Named("migration"),
		now:      utcNow,
	}
}

// MigratePlans maps every legacy tier name onto its canonical tier. Accounts already
// on a canonical tier are skipped; unknown names and write errors are reported per item.
// Limits and usage of migrated keys follow the new tier, usage is kept.
func (s *migrationService) MigratePlans(ctx context.Context) (*models.MigrationSummary, error) {
	accounts, err := s.accounts.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts for migration: %w", err)
	}

	summary := &models.MigrationSummary{Total: len(accounts)}
	for _, account := range accounts {
		from := string(account.Plan)
		tier, migrated, ok := models.MigrateTierName(from)
		switch {
		case !ok:
			summary.Failed++
			summary.Items = append(summary.Items, models.MigrationItem{AccountID: account.ID, From: from, Error: "unknown tier"})
			continue
		case !migrated && tier == account.Plan:
			summary.Skipped++
			continue
		}

		if _, _, err := s.accounts.ApplyPlan(ctx, account.ID, tier, false, s.now()); err != nil {
			s.logger.Error("Plan migration failed", zap.String("accountID", account.ID), zap.Error(err))
			summary.Failed++
			summary.Items = append(summary.Items, models.MigrationItem{AccountID: account.ID, From: from, To: tier, Error: err.Error()})
			continue
		}
		summary.Migrated++
		summary.Items = append(summary.Items, models.MigrationItem{AccountID: account.ID, From: from, To: tier})
	}

	s.logger.Info("Plan migration finished",
		zap.Int("total", summary.Total),
		zap.Int("migrated", summary.Migrated),
		zap.Int("skipped", summary.Skipped),
		zap.Int("failed", summary.Failed))
	s.notifier.Notify(ctx, Event{Type: EventMigrationCompleted, Count: summary.Migrated, At: s.now()})
	return summary, nil
}
