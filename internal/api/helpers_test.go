package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"firebase.google.com/go/v4/auth"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/markxplorer969/hyuuxapi-sub001/internal/cache"
	"github.com/markxplorer969/hyuuxapi-sub001/internal/config"
	"github.com/markxplorer969/hyuuxapi-sub001/internal/core"
	"github.com/markxplorer969/hyuuxapi-sub001/internal/db"
	"github.com/markxplorer969/hyuuxapi-sub001/internal/metrics"
	"github.com/markxplorer969/hyuuxapi-sub001/internal/middleware"
	"github.com/markxplorer969/hyuuxapi-sub001/internal/models"
	"github.com/markxplorer969/hyuuxapi-sub001/internal/payment"
)

const testPrivateKey = "callback-secret"

func init() {
	gin.SetMode(gin.TestMode)
}

// tokenVerifier accepts "token-<uid>" as the ID token of <uid>.
type tokenVerifier struct{}

func (tokenVerifier) VerifyIDToken(_ context.Context, idToken string) (*auth.Token, error) {
	var uid string
	if _, err := fmt.Sscanf(idToken, "token-%s", &uid); err != nil || uid == "" {
		return nil, errors.New("invalid token")
	}
	return &auth.Token{UID: uid, Claims: map[string]interface{}{"email": uid + "@example.com", "name": uid}}, nil
}

type stubGateway struct{}

func (stubGateway) CreateTransaction(_ context.Context, req payment.ChargeRequest) (*payment.Charge, error) {
	return &payment.Charge{
		Reference:   "T-" + req.MerchantRef,
		MerchantRef: req.MerchantRef,
		CheckoutURL: "https://pay.test/" + req.MerchantRef,
		Status:      payment.StatusUnpaid,
		Amount:      req.Amount,
	}, nil
}

func (stubGateway) VerifySignature(body []byte, signature string) bool {
	return payment.Verify(testPrivateKey, body, signature)
}

type testServer struct {
	router *gin.Engine
	store  *db.MemoryStore
}

func newTestServer(t *testing.T, gateway core.PaymentGateway) *testServer {
	t.Helper()
	catalog, err := config.LoadCatalog("")
	require.NoError(t, err)

	logger := zap.NewNop()
	store := db.NewMemoryStore()
	m := metrics.New()
	ledger := core.NewLedgerService(store.APIKeys(), store.Accounts(), m, logger)
	stats := core.NewStatsService(store.Accounts(), store.APIKeys(), store.Transactions(), cache.NewMemoryCache(time.Minute), time.Minute, logger)
	accounts := core.NewAccountService(store.Accounts(), store.APIKeys(), ledger, stats, nil, logger)
	billing := core.NewBillingService(core.BillingDeps{
		Catalog:      catalog,
		Gateway:      gateway,
		Accounts:     store.Accounts(),
		Transactions: store.Transactions(),
		PaymentLogs:  store.PaymentLogs(),
		Metrics:      m,
		Expiry:       time.Hour,
	}, logger)

	router := gin.New()
	router.Use(middleware.RecoveryMiddleware(logger), middleware.RequestLogger(logger, m))
	SetupRoutes(router, Dependencies{
		Logger:    logger,
		Metrics:   m,
		Verifier:  tokenVerifier{},
		Ledger:    ledger,
		Accounts:  accounts,
		Billing:   billing,
		Migration: core.NewMigrationService(store.Accounts(), nil, logger),
		Stats:     stats,
		Images:    core.NewImageService(catalog),
	})
	return &testServer{router: router, store: store}
}

type request struct {
	method string
	path   string
	token  string
	apiKey string
	body   string
	header map[string]string
}

func (s *testServer) do(t *testing.T, r request) *httptest.ResponseRecorder {
	t.Helper()
	var body io.Reader
	if r.body != "" {
		body = bytes.NewBufferString(r.body)
	}
	req := httptest.NewRequest(r.method, r.path, body)
	if r.body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if r.token != "" {
		req.Header.Set("Authorization", "Bearer token-"+r.token)
	}
	if r.apiKey != "" {
		req.Header.Set("x-api-key", r.apiKey)
	}
	for k, v := range r.header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

// signup initializes the account and returns its active key string.
func (s *testServer) signup(t *testing.T, uid string) string {
	t.Helper()
	w := s.do(t, request{method: http.MethodPost, path: "/api/users/initialize", token: uid})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var profile struct {
		Data core.Profile `json:"data"`
	}
	decode(t, w, &profile)
	require.NotNil(t, profile.Data.ActiveKey)
	return profile.Data.ActiveKey.Key
}

func (s *testServer) makeAdmin(t *testing.T, uid string) {
	t.Helper()
	s.signup(t, uid)
	_, err := s.store.Accounts().SetRole(context.Background(), uid, models.RoleAdmin, time.Now())
	require.NoError(t, err)
}

func (s *testServer) account(t *testing.T, uid string) *models.Account {
	t.Helper()
	a, err := s.store.Accounts().GetByID(context.Background(), uid)
	require.NoError(t, err)
	return a
}

func (s *testServer) activeKey(t *testing.T, uid string) *models.APIKey {
	t.Helper()
	k, err := s.store.APIKeys().GetActiveByAccount(context.Background(), uid)
	require.NoError(t, err)
	return k
}

func decode(t *testing.T, w *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), out), w.Body.String())
}

func callbackBody(merchantRef, status string, amount int64) string {
	return fmt.Sprintf(`{"reference":"T-%s","merchant_ref":%q,"payment_method":"QRIS","payment_method_code":"QRIS","total_amount":%d,"status":%q}`,
		merchantRef, merchantRef, amount, status)
}
