package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/markxplorer969/hyuuxapi-sub001/internal/config"
	"github.com/markxplorer969/hyuuxapi-sub001/internal/db"
	"github.com/markxplorer969/hyuuxapi-sub001/internal/metrics"
	"github.com/markxplorer969/hyuuxapi-sub001/internal/models"
	"github.com/markxplorer969/hyuuxapi-sub001/internal/payment"
)

// MerchantRefPrefix prefixes every merchant reference sent to the gateway.
const MerchantRefPrefix = "SLW-"

// billingService implements BillingService on top of the payment gateway.
type billingService struct {
	catalog      *config.Catalog
	gateway      PaymentGateway
	accounts     db.AccountRepository
	transactions db.TransactionRepository
	paymentLogs  db.PaymentLogRepository
	notifier     Notifier
	metrics      *metrics.Metrics
	logger       *zap.Logger
	expiry       time.Duration
	now          func() time.Time
}

// BillingDeps groups the collaborators of the billing service.
type BillingDeps struct {
	Catalog      *config.Catalog
	Gateway      PaymentGateway // nil disables checkout and callbacks
	Accounts     db.AccountRepository
	Transactions db.TransactionRepository
	PaymentLogs  db.PaymentLogRepository
	Notifier     Notifier
	Metrics      *metrics.Metrics
	Expiry       time.Duration
}

// NewBillingService creates a new BillingService instance.
func NewBillingService(deps BillingDeps, logger *zap.Logger) BillingService {
	expiry := deps.Expiry
	if expiry <= 0 {
		expiry = 24 * time.Hour
	}
	return &billingService{
		catalog:      deps.Catalog,
		gateway:      deps.Gateway,
		accounts:     deps.Accounts,
		transactions: deps.Transactions,
		paymentLogs:  deps.PaymentLogs,
		notifier:     notifierOrNop(deps.Notifier),
		metrics:      deps.Metrics,
		logger:       logger.Named("billing"),
		expiry:       expiry,
		now:          utcNow,
	}
}

// Plans returns the purchasable catalog ordered by tier.
func (s *billingService) Plans() []models.Plan {
	out := make([]models.Plan, len(s.catalog.Plans))
	copy(out, s.catalog.Plans)
	return out
}

// CreateCheckout opens a charge at the gateway for the requested plan and stores the
// PENDING transaction under the generated merchant reference. Nothing is stored
// when the gateway rejects the charge.
func (s *billingService) CreateCheckout(ctx context.Context, account *models.Account, req models.CheckoutRequest) (*Checkout, error) {
	tier, ok := models.ParseTier(req.Plan)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPlan, req.Plan)
	}
	plan, ok := s.catalog.Plan(tier)
	if !ok || plan.Price <= 0 {
		return nil, fmt.Errorf("%w: %s", ErrPlanNotPurchasable, tier)
	}
	if s.gateway == nil {
		return nil, ErrPaymentDisabled
	}

	now := s.now()
	expiresAt := now.Add(s.expiry)
	merchantRef := MerchantRefPrefix + uuid.NewString()
	customer := account.DisplayName
	if customer == "" {
		customer = account.Email
	}
	charge, err := s.gateway.CreateTransaction(ctx, payment.ChargeRequest{
		Method:        req.Method,
		MerchantRef:   merchantRef,
		Amount:        plan.Price,
		CustomerName:  customer,
		CustomerEmail: account.Email,
		Items:         []payment.OrderItem{{SKU: string(tier), Name: plan.Name, Price: plan.Price, Quantity: 1}},
		ExpiresAt:     expiresAt,
	})
	if err != nil {
		s.logger.Error("Gateway rejected checkout", zap.String("merchantRef", merchantRef), zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrGatewayFailure, err)
	}

	txn := &models.Transaction{
		MerchantRef:   merchantRef,
		Reference:     charge.Reference,
		AccountID:     account.ID,
		Plan:          tier,
		Amount:        plan.Price,
		Status:        models.TransactionPending,
		PaymentMethod: req.Method,
		CheckoutURL:   charge.CheckoutURL,
		CreatedAt:     now,
		UpdatedAt:     now,
		ExpiresAt:     &expiresAt,
	}
	if err := s.transactions.Create(ctx, txn); err != nil {
		return nil, fmt.Errorf("failed to store transaction '%s': %w", merchantRef, err)
	}
	s.logger.Info("Checkout created",
		zap.String("merchantRef", merchantRef),
		zap.String("accountID", account.ID),
		zap.String("plan", string(tier)))
	s.notifier.Notify(ctx, Event{Type: EventCheckoutCreated, AccountID: account.ID, Email: account.Email, Plan: tier, MerchantRef: merchantRef, Amount: plan.Price, At: now})
	return &Checkout{Transaction: txn, CheckoutURL: charge.CheckoutURL}, nil
}

// HandleCallback verifies the signature over the raw body before anything else.
// Verified callbacks are logged, then PAID settles the transaction and EXPIRED or
// FAILED cancels it. Other statuses are acknowledged without changes.
func (s *billingService) HandleCallback(ctx context.Context, signature string, body []byte) (*models.Transaction, error) {
	if s.gateway == nil {
		return nil, ErrPaymentDisabled
	}
	if !s.gateway.VerifySignature(body, signature) {
		s.metrics.ObserveCallback("invalid_signature")
		s.logger.Warn("Rejected callback with invalid signature")
		return nil, ErrInvalidSignature
	}
	cb, err := payment.ParseCallback(body)
	if err != nil {
		s.metrics.ObserveCallback("invalid_payload")
		return nil, fmt.Errorf("%w: %v", ErrInvalidCallback, err)
	}

	now := s.now()
	entry := &models.PaymentLog{
		MerchantRef:   cb.MerchantRef,
		Reference:     cb.Reference,
		Status:        cb.Status,
		PaymentMethod: cb.Method(),
		Amount:        cb.TotalAmount,
		Payload:       string(body),
		ReceivedAt:    now,
	}
	if err := s.paymentLogs.Create(ctx, entry); err != nil {
		s.logger.Error("Failed to write payment log", zap.String("merchantRef", cb.MerchantRef), zap.Error(err))
	}

	txn, err := s.transactions.GetByMerchantRef(ctx, cb.MerchantRef)
	if err != nil {
		s.metrics.ObserveCallback("unknown_transaction")
		return nil, mapTransactionError(err, nil)
	}
	if cb.TotalAmount > 0 && cb.TotalAmount < txn.Amount {
		s.metrics.ObserveCallback("amount_mismatch")
		return nil, fmt.Errorf("%w: paid %d for a %d transaction", ErrInvalidCallback, cb.TotalAmount, txn.Amount)
	}

	patch := db.TransitionPatch{Reference: cb.Reference, PaymentMethod: cb.Method(), At: now}
	switch cb.Status {
	case payment.StatusPaid:
		patch.Status = models.TransactionPaid
		return s.settle(ctx, txn, patch)
	case payment.StatusExpired, payment.StatusFailed:
		patch.Status = models.TransactionCancelled
		updated, changed, err := s.transactions.Transition(ctx, txn.MerchantRef, patch)
		if err != nil {
			s.metrics.ObserveCallback("conflict")
			return updated, mapTransactionError(err, updated)
		}
		if changed {
			s.notifier.Notify(ctx, Event{Type: EventPaymentCancelled, AccountID: updated.AccountID, Plan: updated.Plan, MerchantRef: updated.MerchantRef, Amount: updated.Amount, At: now})
		}
		s.metrics.ObserveCallback("cancelled")
		return updated, nil
	default:
		s.logger.Info("Ignoring callback status", zap.String("merchantRef", cb.MerchantRef), zap.String("status", cb.Status))
		s.metrics.ObserveCallback("ignored")
		return txn, nil
	}
}

// settle marks the transaction PAID and applies its plan to the account.
// The plan is applied once per transaction: a repeated PAID callback only
// re-applies it when the previous attempt failed before PlanApplied was recorded.
func (s *billingService) settle(ctx context.Context, txn *models.Transaction, patch db.TransitionPatch) (*models.Transaction, error) {
	updated, changed, err := s.transactions.Transition(ctx, txn.MerchantRef, patch)
	if err != nil {
		s.metrics.ObserveCallback("conflict")
		return updated, mapTransactionError(err, updated)
	}
	if !changed && updated.PlanApplied {
		s.metrics.ObserveCallback("duplicate")
		return updated, nil
	}

	account, err := s.accounts.GetByID(ctx, updated.AccountID)
	if err != nil {
		return updated, fmt.Errorf("paid transaction '%s' has no account: %w", updated.MerchantRef, mapAccountError(err))
	}
	account, _, err = s.accounts.ApplyPlan(ctx, account.ID, updated.Plan, isUpgrade(account.Plan, updated.Plan), patch.At)
	if err != nil {
		return updated, fmt.Errorf("failed to apply plan for transaction '%s': %w", updated.MerchantRef, mapAccountError(err))
	}
	if err := s.transactions.MarkPlanApplied(ctx, updated.MerchantRef, patch.At); err != nil {
		// The next PAID callback for this reference applies the plan again.
		s.logger.Error("Failed to record applied plan", zap.String("merchantRef", updated.MerchantRef), zap.Error(err))
	} else {
		updated.PlanApplied = true
	}

	if !changed {
		s.logger.Warn("Plan applied on repeated callback",
			zap.String("merchantRef", updated.MerchantRef),
			zap.String("accountID", account.ID))
		s.metrics.ObserveCallback("retried")
		return updated, nil
	}
	s.logger.Info("Payment settled",
		zap.String("merchantRef", updated.MerchantRef),
		zap.String("accountID", account.ID),
		zap.String("plan", string(updated.Plan)))
	s.notifier.Notify(ctx, Event{Type: EventPaymentPaid, AccountID: account.ID, Email: account.Email, Plan: updated.Plan, MerchantRef: updated.MerchantRef, Amount: updated.Amount, At: patch.At})
	s.metrics.ObserveCallback("paid")
	return updated, nil
}

// Cancel cancels a PENDING transaction of the account. Cancelling a cancelled
// transaction is a no-op; cancelling a paid one fails with ErrAlreadyCompleted.
func (s *billingService) Cancel(ctx context.Context, accountID, merchantRef string) (*models.Transaction, error) {
	txn, err := s.transactions.GetByMerchantRef(ctx, merchantRef)
	if err != nil {
		return nil, mapTransactionError(err, nil)
	}
	if txn.AccountID != accountID {
		return nil, ErrTransactionNotFound
	}
	now := s.now()
	updated, changed, err := s.transactions.Transition(ctx, merchantRef, db.TransitionPatch{Status: models.TransactionCancelled, At: now})
	if err != nil {
		return updated, mapTransactionError(err, updated)
	}
	if changed {
		s.logger.Info("Transaction cancelled", zap.String("merchantRef", merchantRef), zap.String("accountID", accountID))
		s.notifier.Notify(ctx, Event{Type: EventPaymentCancelled, AccountID: accountID, Plan: updated.Plan, MerchantRef: merchantRef, Amount: updated.Amount, At: now})
	}
	return updated, nil
}

// ListTransactions returns the account's transactions, newest first.
func (s *billingService) ListTransactions(ctx context.Context, accountID string) ([]*models.Transaction, error) {
	txns, err := s.transactions.ListByAccount(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	return txns, nil
}

// ListAll returns every transaction for the admin view.
func (s *billingService) ListAll(ctx context.Context) ([]*models.Transaction, error) {
	txns, err := s.transactions.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	return txns, nil
}

// mapTransactionError translates repository errors. A rejected transition maps
// to the terminal status current is already in.
func mapTransactionError(err error, current *models.Transaction) error {
	switch {
	case errors.Is(err, db.ErrNotFound):
		return ErrTransactionNotFound
	case errors.Is(err, db.ErrInvalidTransition):
		if current != nil && current.Status == models.TransactionCancelled {
			return ErrAlreadyCancelled
		}
		return ErrAlreadyCompleted
	default:
		return err
	}
}
