package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/markxplorer969/hyuuxapi-sub001/internal/models"
)

func checkout(t *testing.T, env *testEnv, accountID string, tier models.Tier) *models.Transaction {
	t.Helper()
	account := env.account(t, accountID)
	c, err := env.billing.CreateCheckout(context.Background(), account, models.CheckoutRequest{Plan: string(tier), Method: "QRIS"})
	require.NoError(t, err)
	return c.Transaction
}

func callbackBody(merchantRef, status string, amount int64) string {
	return fmt.Sprintf(`{"reference":"T-%s","merchant_ref":%q,"payment_method":"QRIS","payment_method_code":"QRIS","total_amount":%d,"status":%q}`,
		merchantRef, merchantRef, amount, status)
}

func TestPlans(t *testing.T) {
	env := newTestEnv(t)
	plans := env.billing.Plans()
	require.Len(t, plans, 6)
	assert.Equal(t, models.TierFree, plans[0].Tier)
	assert.Equal(t, int64(20000), plans[5].Limit)
}

func TestCreateCheckout(t *testing.T) {
	env := newTestEnv(t)
	env.signup(t, "acc")

	txn := checkout(t, env, "acc", models.TierPremium)
	assert.True(t, strings.HasPrefix(txn.MerchantRef, MerchantRefPrefix))
	assert.Equal(t, models.TransactionPending, txn.Status)
	assert.Equal(t, int64(25000), txn.Amount)
	assert.Equal(t, "https://pay.test/"+txn.MerchantRef, txn.CheckoutURL)
	require.NotNil(t, txn.ExpiresAt)

	require.Len(t, env.gateway.requests, 1)
	req := env.gateway.requests[0]
	assert.Equal(t, "QRIS", req.Method)
	assert.Equal(t, "acc@example.com", req.CustomerEmail)
	assert.Equal(t, "PREMIUM", req.Items[0].SKU)

	stored, err := env.store.Transactions().GetByMerchantRef(context.Background(), txn.MerchantRef)
	require.NoError(t, err)
	assert.Equal(t, "T-"+txn.MerchantRef, stored.Reference)
}

func TestCreateCheckout_Errors(t *testing.T) {
	env := newTestEnv(t)
	account, _ := env.signup(t, "acc")
	ctx := context.Background()

	_, err := env.billing.CreateCheckout(ctx, account, models.CheckoutRequest{Plan: "GOLD", Method: "QRIS"})
	assert.ErrorIs(t, err, ErrInvalidPlan)

	_, err = env.billing.CreateCheckout(ctx, account, models.CheckoutRequest{Plan: "free", Method: "QRIS"})
	assert.ErrorIs(t, err, ErrPlanNotPurchasable)

	env.gateway.err = errors.New("connection refused")
	_, err = env.billing.CreateCheckout(ctx, account, models.CheckoutRequest{Plan: "VIP", Method: "QRIS"})
	assert.ErrorIs(t, err, ErrGatewayFailure)

	all, err := env.billing.ListAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)

	disabled := NewBillingService(BillingDeps{Catalog: env.catalog, Accounts: env.store.Accounts(), Transactions: env.store.Transactions(), PaymentLogs: env.store.PaymentLogs()}, zap.NewNop())
	_, err = disabled.CreateCheckout(ctx, account, models.CheckoutRequest{Plan: "VIP", Method: "QRIS"})
	assert.ErrorIs(t, err, ErrPaymentDisabled)
}

func TestHandleCallback_PaidAppliesPlan(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	_, key := env.signup(t, "acc")
	for i := 0; i < 10; i++ {
		_, err := env.ledger.Consume(ctx, key.Key)
		require.NoError(t, err)
	}
	txn := checkout(t, env, "acc", models.TierVIP)

	sig, body := signedCallback(callbackBody(txn.MerchantRef, "PAID", txn.Amount+750))
	paid, err := env.billing.HandleCallback(ctx, sig, body)
	require.NoError(t, err)
	assert.Equal(t, models.TransactionPaid, paid.Status)
	assert.NotNil(t, paid.PaidAt)

	account := env.account(t, "acc")
	assert.Equal(t, models.TierVIP, account.Plan)
	assert.Equal(t, int64(5000), account.APILimit)
	assert.Equal(t, int64(0), account.APIUsage)
	stored := env.key(t, key.ID)
	assert.Equal(t, models.TierVIP, stored.Plan)
	assert.Equal(t, int64(5000), stored.Limit)

	// Gateways retry callbacks; the second delivery changes nothing.
	again, err := env.billing.HandleCallback(ctx, sig, body)
	require.NoError(t, err)
	assert.Equal(t, models.TransactionPaid, again.Status)
	assert.Equal(t, paid.PaidAt, again.PaidAt)

	assert.Len(t, env.store.PaymentLogEntries(), 2)
	assert.Contains(t, env.notifier.types(), EventPaymentPaid)
	count := 0
	for _, e := range env.notifier.types() {
		if e == EventPaymentPaid {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestHandleCallback_ReplayKeepsLaterPlanChange(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	_, key := env.signup(t, "acc")
	txn := checkout(t, env, "acc", models.TierVIP)

	sig, body := signedCallback(callbackBody(txn.MerchantRef, "PAID", txn.Amount))
	paid, err := env.billing.HandleCallback(ctx, sig, body)
	require.NoError(t, err)
	assert.True(t, paid.PlanApplied)

	_, err = env.accounts.SetPlan(ctx, "acc", models.TierFree)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		_, err := env.ledger.Consume(ctx, key.Key)
		require.NoError(t, err)
	}

	again, err := env.billing.HandleCallback(ctx, sig, body)
	require.NoError(t, err)
	assert.Equal(t, models.TransactionPaid, again.Status)

	account := env.account(t, "acc")
	assert.Equal(t, models.TierFree, account.Plan)
	assert.Equal(t, int64(20), account.APILimit)
	assert.Equal(t, int64(3), account.APIUsage)
	stored := env.key(t, key.ID)
	assert.Equal(t, models.TierFree, stored.Plan)
	assert.Equal(t, int64(3), stored.Usage)
}

func TestHandleCallback_RepeatedPaidAppliesPendingPlan(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.signup(t, "acc")

	// Paid earlier, but the plan never reached the account.
	now := time.Now().UTC()
	require.NoError(t, env.store.Transactions().Create(ctx, &models.Transaction{
		MerchantRef: "SLW-stuck",
		AccountID:   "acc",
		Plan:        models.TierPremium,
		Amount:      25000,
		Status:      models.TransactionPaid,
		CreatedAt:   now,
		UpdatedAt:   now,
		PaidAt:      &now,
	}))

	sig, body := signedCallback(callbackBody("SLW-stuck", "PAID", 25000))
	txn, err := env.billing.HandleCallback(ctx, sig, body)
	require.NoError(t, err)
	assert.True(t, txn.PlanApplied)
	assert.Equal(t, models.TierPremium, env.account(t, "acc").Plan)
	assert.NotContains(t, env.notifier.types(), EventPaymentPaid)

	stored, err := env.store.Transactions().GetByMerchantRef(ctx, "SLW-stuck")
	require.NoError(t, err)
	assert.True(t, stored.PlanApplied)
}

func TestHandleCallback_InvalidSignatureMutatesNothing(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.signup(t, "acc")
	txn := checkout(t, env, "acc", models.TierVIP)

	_, body := signedCallback(callbackBody(txn.MerchantRef, "PAID", txn.Amount))
	for _, sig := range []string{"", "deadbeef", strings.Repeat("0", 64)} {
		_, err := env.billing.HandleCallback(ctx, sig, body)
		assert.ErrorIs(t, err, ErrInvalidSignature)
	}

	stored, err := env.store.Transactions().GetByMerchantRef(ctx, txn.MerchantRef)
	require.NoError(t, err)
	assert.Equal(t, models.TransactionPending, stored.Status)
	assert.Equal(t, models.TierFree, env.account(t, "acc").Plan)
	assert.Empty(t, env.store.PaymentLogEntries())
}

func TestHandleCallback_ExpiredCancels(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.signup(t, "acc")
	txn := checkout(t, env, "acc", models.TierCheap)

	sig, body := signedCallback(callbackBody(txn.MerchantRef, "EXPIRED", 0))
	cancelled, err := env.billing.HandleCallback(ctx, sig, body)
	require.NoError(t, err)
	assert.Equal(t, models.TransactionCancelled, cancelled.Status)

	sig, body = signedCallback(callbackBody(txn.MerchantRef, "PAID", txn.Amount))
	_, err = env.billing.HandleCallback(ctx, sig, body)
	assert.ErrorIs(t, err, ErrAlreadyCancelled)
	assert.Equal(t, models.TierFree, env.account(t, "acc").Plan)
}

func TestHandleCallback_Rejections(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.signup(t, "acc")
	txn := checkout(t, env, "acc", models.TierCheap)

	sig, body := signedCallback(callbackBody("SLW-unknown", "PAID", 1))
	_, err := env.billing.HandleCallback(ctx, sig, body)
	assert.ErrorIs(t, err, ErrTransactionNotFound)

	sig, body = signedCallback(`{"status":"PAID"}`)
	_, err = env.billing.HandleCallback(ctx, sig, body)
	assert.ErrorIs(t, err, ErrInvalidCallback)

	sig, body = signedCallback(callbackBody(txn.MerchantRef, "PAID", txn.Amount-1))
	_, err = env.billing.HandleCallback(ctx, sig, body)
	assert.ErrorIs(t, err, ErrInvalidCallback)

	sig, body = signedCallback(callbackBody(txn.MerchantRef, "UNPAID", txn.Amount))
	unchanged, err := env.billing.HandleCallback(ctx, sig, body)
	require.NoError(t, err)
	assert.Equal(t, models.TransactionPending, unchanged.Status)
}

func TestCancel(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.signup(t, "acc")
	env.signup(t, "intruder")

	pending := checkout(t, env, "acc", models.TierCheap)
	_, err := env.billing.Cancel(ctx, "intruder", pending.MerchantRef)
	assert.ErrorIs(t, err, ErrTransactionNotFound)

	cancelled, err := env.billing.Cancel(ctx, "acc", pending.MerchantRef)
	require.NoError(t, err)
	assert.Equal(t, models.TransactionCancelled, cancelled.Status)
	require.NotNil(t, cancelled.CancelledAt)

	again, err := env.billing.Cancel(ctx, "acc", pending.MerchantRef)
	require.NoError(t, err)
	assert.Equal(t, models.TransactionCancelled, again.Status)
	assert.Equal(t, cancelled.CancelledAt, again.CancelledAt)

	_, err = env.billing.Cancel(ctx, "acc", "SLW-missing")
	assert.ErrorIs(t, err, ErrTransactionNotFound)
}

func TestCancel_AfterPaid(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.signup(t, "acc")
	txn := checkout(t, env, "acc", models.TierPremium)

	sig, body := signedCallback(callbackBody(txn.MerchantRef, "PAID", txn.Amount))
	_, err := env.billing.HandleCallback(ctx, sig, body)
	require.NoError(t, err)

	current, err := env.billing.Cancel(ctx, "acc", txn.MerchantRef)
	assert.ErrorIs(t, err, ErrAlreadyCompleted)
	require.NotNil(t, current)
	assert.Equal(t, models.TransactionPaid, current.Status)

	stored, err := env.store.Transactions().GetByMerchantRef(ctx, txn.MerchantRef)
	require.NoError(t, err)
	assert.Equal(t, models.TransactionPaid, stored.Status)
}

func TestListTransactions(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.signup(t, "a")
	env.signup(t, "b")
	checkout(t, env, "a", models.TierCheap)
	checkout(t, env, "a", models.TierVIP)
	checkout(t, env, "b", models.TierCheap)

	own, err := env.billing.ListTransactions(ctx, "a")
	require.NoError(t, err)
	assert.Len(t, own, 2)
	for _, txn := range own {
		assert.Equal(t, "a", txn.AccountID)
	}

	all, err := env.billing.ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}
