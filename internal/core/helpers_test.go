package core

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/markxplorer969/hyuuxapi-sub001/internal/cache"
	"github.com/markxplorer969/hyuuxapi-sub001/internal/config"
	"github.com/markxplorer969/hyuuxapi-sub001/internal/db"
	"github.com/markxplorer969/hyuuxapi-sub001/internal/models"
	"github.com/markxplorer969/hyuuxapi-sub001/internal/payment"
)

const testPrivateKey = "test-private-key"

type recordingNotifier struct {
	mu     sync.Mutex
	events []Event
}

func (r *recordingNotifier) Notify(_ context.Context, e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recordingNotifier) types() []EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]EventType, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

type fakeGateway struct {
	mu       sync.Mutex
	requests []payment.ChargeRequest
	err      error
}

func (f *fakeGateway) CreateTransaction(_ context.Context, req payment.ChargeRequest) (*payment.Charge, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.requests = append(f.requests, req)
	return &payment.Charge{
		Reference:   "T-" + req.MerchantRef,
		MerchantRef: req.MerchantRef,
		CheckoutURL: "https://pay.test/" + req.MerchantRef,
		Status:      payment.StatusUnpaid,
		Amount:      req.Amount,
	}, nil
}

func (f *fakeGateway) VerifySignature(body []byte, signature string) bool {
	return payment.Verify(testPrivateKey, body, signature)
}

type testEnv struct {
	store    *db.MemoryStore
	ledger   LedgerService
	accounts AccountService
	billing  BillingService
	stats    StatsService
	gateway  *fakeGateway
	notifier *recordingNotifier
	catalog  *config.Catalog
}

func newTestEnv(t *testing.T, opts ...LedgerOption) *testEnv {
	t.Helper()
	catalog, err := config.LoadCatalog("")
	require.NoError(t, err)

	store := db.NewMemoryStore()
	logger := zap.NewNop()
	notifier := &recordingNotifier{}
	gateway := &fakeGateway{}
	ledger := NewLedgerService(store.APIKeys(), store.Accounts(), nil, logger, append([]LedgerOption{WithLedgerNotifier(notifier)}, opts...)...)
	stats := NewStatsService(store.Accounts(), store.APIKeys(), store.Transactions(), cache.NewMemoryCache(time.Minute), time.Minute, logger)
	return &testEnv{
		store:    store,
		ledger:   ledger,
		accounts: NewAccountService(store.Accounts(), store.APIKeys(), ledger, stats, notifier, logger),
		billing: NewBillingService(BillingDeps{
			Catalog:      catalog,
			Gateway:      gateway,
			Accounts:     store.Accounts(),
			Transactions: store.Transactions(),
			PaymentLogs:  store.PaymentLogs(),
			Notifier:     notifier,
			Expiry:       time.Hour,
		}, logger),
		stats:    stats,
		gateway:  gateway,
		notifier: notifier,
		catalog:  catalog,
	}
}

// signup creates an account with its FREE key and returns both.
func (e *testEnv) signup(t *testing.T, id string) (*models.Account, *models.APIKey) {
	t.Helper()
	ctx := context.Background()
	account, created, err := e.accounts.GetOrCreate(ctx, id, id+"@example.com", id, "")
	require.NoError(t, err)
	require.True(t, created)
	key, err := e.store.APIKeys().GetActiveByAccount(ctx, id)
	require.NoError(t, err)
	return account, key
}

func (e *testEnv) account(t *testing.T, id string) *models.Account {
	t.Helper()
	a, err := e.store.Accounts().GetByID(context.Background(), id)
	require.NoError(t, err)
	return a
}

func (e *testEnv) key(t *testing.T, keyID string) *models.APIKey {
	t.Helper()
	k, err := e.store.APIKeys().GetByID(context.Background(), keyID)
	require.NoError(t, err)
	return k
}

func signedCallback(body string) (string, []byte) {
	return payment.Sign(testPrivateKey, []byte(body)), []byte(body)
}
