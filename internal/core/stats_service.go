package core

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/markxplorer969/hyuuxapi-sub001/internal/cache"
	"github.com/markxplorer969/hyuuxapi-sub001/internal/db"
	"github.com/markxplorer969/hyuuxapi-sub001/internal/models"
)

const statsCacheKey = "admin:stats"

// statsService implements StatsService with a read-through cache.
type statsService struct {
	accounts     db.AccountRepository
	keys         db.APIKeyRepository
	transactions db.TransactionRepository
	cache        cache.Cache
	ttl          time.Duration
	logger       *zap.Logger
	now          func() time.Time
}

// NewStatsService creates a new StatsService instance.
func NewStatsService(accounts db.AccountRepository, keys db.APIKeyRepository, transactions db.TransactionRepository, c cache.Cache, ttl time.Duration, logger *zap.Logger) StatsService {
	return &statsService{
		accounts:     accounts,
		keys:         keys,
		transactions: transactions,
		cache:        c,
		ttl:          ttl,
		logger:       logger.Named("stats"),
		now:          utcNow,
	}
}

// Stats returns the cached counters, recomputing them when the entry has expired.
func (s *statsService) Stats(ctx context.Context) (*models.Stats, error) {
	var cached models.Stats
	ok, err := cache.GetValue(ctx, s.cache, statsCacheKey, &cached)
	if err != nil {
		s.logger.Warn("Stats cache read failed", zap.Error(err))
	}
	if ok {
		return &cached, nil
	}

	stats, err := s.compute(ctx)
	if err != nil {
		return nil, err
	}
	if err := cache.SetValue(ctx, s.cache, statsCacheKey, stats, s.ttl); err != nil {
		s.logger.Warn("Stats cache write failed", zap.Error(err))
	}
	return stats, nil
}

// compute runs the count queries concurrently.
func (s *statsService) compute(ctx context.Context) (*models.Stats, error) {
	stats := &models.Stats{GeneratedAt: s.now()}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		n, err := s.accounts.Count(gctx)
		stats.Accounts = n
		return err
	})
	g.Go(func() error {
		total, active, err := s.keys.Count(gctx)
		stats.APIKeys, stats.ActiveAPIKeys = total, active
		return err
	})
	countStatus := func(status models.TransactionStatus, dest *int64) {
		g.Go(func() error {
			n, err := s.transactions.CountByStatus(gctx, status)
			*dest = n
			return err
		})
	}
	countStatus(models.TransactionPending, &stats.PendingTransactions)
	countStatus(models.TransactionPaid, &stats.PaidTransactions)
	countStatus(models.TransactionCancelled, &stats.CancelledTransactions)
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to compute stats: %w", err)
	}
	return stats, nil
}

// Invalidate drops the cached stats so the next call recomputes them.
func (s *statsService) Invalidate(ctx context.Context) {
	if err := s.cache.Delete(ctx, statsCacheKey); err != nil {
		s.logger.Warn("Stats cache invalidation failed", zap.Error(err))
	}
}
