package api

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markxplorer969/hyuuxapi-sub001/internal/core"
	"github.com/markxplorer969/hyuuxapi-sub001/internal/models"
	"github.com/markxplorer969/hyuuxapi-sub001/internal/payment"
)

type dataEnvelope[T any] struct {
	Success bool   `json:"success"`
	Data    T      `json:"data"`
	Error   string `json:"error"`
}

type resultEnvelope[T any] struct {
	Status bool   `json:"status"`
	Result T      `json:"result"`
	Error  string `json:"error"`
	Reason string `json:"reason"`
}

func TestHealthAndPlans(t *testing.T) {
	s := newTestServer(t, stubGateway{})

	for _, path := range []string{"/health", "/ping"} {
		w := s.do(t, request{method: http.MethodGet, path: path})
		assert.Equal(t, http.StatusOK, w.Code)
	}

	w := s.do(t, request{method: http.MethodGet, path: "/api/plans"})
	require.Equal(t, http.StatusOK, w.Code)
	var plans resultEnvelope[[]models.Plan]
	decode(t, w, &plans)
	assert.True(t, plans.Status)
	require.Len(t, plans.Result, len(models.Tiers()))
	for _, p := range plans.Result {
		assert.Equal(t, p.Tier.Limit(), p.Limit)
	}

	w = s.do(t, request{method: http.MethodGet, path: "/metrics"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "slowly_http_requests_total")
}

func TestInitializeAndProfile(t *testing.T) {
	s := newTestServer(t, stubGateway{})

	w := s.do(t, request{method: http.MethodPost, path: "/api/users/initialize"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	key := s.signup(t, "u1")
	assert.Len(t, key, models.GeneratedKeyLength)

	w = s.do(t, request{method: http.MethodPost, path: "/api/users/initialize", token: "u1"})
	assert.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, request{method: http.MethodGet, path: "/api/users/me", token: "u1"})
	require.Equal(t, http.StatusOK, w.Code)
	var profile dataEnvelope[core.Profile]
	decode(t, w, &profile)
	assert.True(t, profile.Success)
	assert.Empty(t, profile.Error)
	assert.Equal(t, models.TierFree, profile.Data.Account.Plan)
	assert.Equal(t, "u1@example.com", profile.Data.Account.Email)
	assert.Equal(t, key, profile.Data.Account.APIKey)
	assert.Equal(t, int64(20), profile.Data.ActiveKey.Limit)

	w = s.do(t, request{method: http.MethodGet, path: "/api/users/me", token: "ghost"})
	assert.Equal(t, http.StatusNotFound, w.Code)
	var errBody dataEnvelope[any]
	decode(t, w, &errBody)
	assert.False(t, errBody.Success)
	assert.NotEmpty(t, errBody.Error)
}

func TestKeyGatedRandomImage(t *testing.T) {
	s := newTestServer(t, stubGateway{})
	key := s.signup(t, "u1")

	for i := 0; i < 20; i++ {
		w := s.do(t, request{method: http.MethodGet, path: "/api/random/cat", apiKey: key})
		require.Equal(t, http.StatusOK, w.Code, "call %d: %s", i+1, w.Body.String())
		var body resultEnvelope[RandomImageResponse]
		decode(t, w, &body)
		assert.True(t, body.Status)
		assert.Equal(t, "cat", body.Result.Category)
		assert.NotEmpty(t, body.Result.URL)
	}

	w := s.do(t, request{method: http.MethodGet, path: "/api/random/cat?apikey=" + key})
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	var limited resultEnvelope[any]
	decode(t, w, &limited)
	assert.False(t, limited.Status)
	assert.Equal(t, core.ReasonLimitReached, limited.Reason)

	// Key info never consumes.
	w = s.do(t, request{method: http.MethodGet, path: "/api/key/info", apiKey: key})
	require.Equal(t, http.StatusOK, w.Code)
	var info resultEnvelope[KeyInfoResponse]
	decode(t, w, &info)
	assert.Equal(t, int64(20), info.Result.Usage)
	assert.Equal(t, int64(0), info.Result.Remaining)
	assert.Equal(t, models.KeyStatusExhausted, info.Result.Status)
	assert.NotEqual(t, key, info.Result.Key)
	assert.Equal(t, int64(20), s.account(t, "u1").APIUsage)

	w = s.do(t, request{method: http.MethodGet, path: "/api/random/cat", apiKey: "does-not-exist"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(t, request{method: http.MethodGet, path: "/api/random/cat"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRandomImageUnknownCategory(t *testing.T) {
	s := newTestServer(t, stubGateway{})
	key := s.signup(t, "u1")

	for i := 0; i < 3; i++ {
		w := s.do(t, request{method: http.MethodGet, path: "/api/random/unicorn", apiKey: key})
		assert.Equal(t, http.StatusNotFound, w.Code)
		var body resultEnvelope[any]
		decode(t, w, &body)
		assert.False(t, body.Status)
		assert.NotEmpty(t, body.Error)
	}
	assert.Equal(t, int64(0), s.account(t, "u1").APIUsage)
	assert.Equal(t, int64(0), s.activeKey(t, "u1").Usage)

	w := s.do(t, request{method: http.MethodGet, path: "/api/random/cat", apiKey: key})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int64(1), s.activeKey(t, "u1").Usage)

	w = s.do(t, request{method: http.MethodGet, path: "/api/random"})
	require.Equal(t, http.StatusOK, w.Code)
	var categories resultEnvelope[[]string]
	decode(t, w, &categories)
	assert.Contains(t, categories.Result, "cat")
}

func TestCustomKeyEndpoints(t *testing.T) {
	s := newTestServer(t, stubGateway{})
	s.signup(t, "u1")
	s.signup(t, "u2")

	w := s.do(t, request{method: http.MethodPut, path: "/api/keys/custom", token: "u1", body: `{"key":"my-key-1"}`})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "my-key-1", s.account(t, "u1").APIKey)

	w = s.do(t, request{method: http.MethodPut, path: "/api/keys/custom", token: "u2", body: `{"key":"my-key-1"}`})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = s.do(t, request{method: http.MethodPut, path: "/api/keys/custom", token: "u2", body: `{"key":"ab"}`})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, request{method: http.MethodPut, path: "/api/keys/custom", token: "u2", body: `{}`})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, request{method: http.MethodGet, path: "/api/random/dog", apiKey: "my-key-1"})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestIssueAndRegenerateKeys(t *testing.T) {
	s := newTestServer(t, stubGateway{})
	first := s.signup(t, "u1")
	for i := 0; i < 15; i++ {
		w := s.do(t, request{method: http.MethodGet, path: "/api/random/cat", apiKey: first})
		require.Equal(t, http.StatusOK, w.Code)
	}
	keyID := s.activeKey(t, "u1").ID

	w := s.do(t, request{method: http.MethodPost, path: "/api/keys/regenerate", token: "u1", body: `{"keyId":"` + keyID + `"}`})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var regen dataEnvelope[models.APIKey]
	decode(t, w, &regen)
	assert.NotEqual(t, first, regen.Data.Key)
	assert.Equal(t, int64(0), regen.Data.Usage)
	assert.Equal(t, int64(20), regen.Data.Limit)
	account := s.account(t, "u1")
	assert.Equal(t, regen.Data.Key, account.APIKey)
	assert.Equal(t, int64(0), account.APIUsage)

	w = s.do(t, request{method: http.MethodGet, path: "/api/random/cat", apiKey: first})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(t, request{method: http.MethodPost, path: "/api/keys", token: "u1", body: `{"label":"ci"}`})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var issued dataEnvelope[models.APIKey]
	decode(t, w, &issued)
	assert.Equal(t, "ci", issued.Data.Label)
	assert.True(t, issued.Data.IsActive)

	w = s.do(t, request{method: http.MethodGet, path: "/api/keys", token: "u1"})
	require.Equal(t, http.StatusOK, w.Code)
	var keys dataEnvelope[[]models.APIKey]
	decode(t, w, &keys)
	require.Len(t, keys.Data, 2)
	active := 0
	for _, k := range keys.Data {
		if k.IsActive {
			active++
		}
	}
	assert.Equal(t, 1, active)

	s.signup(t, "u2")
	w = s.do(t, request{method: http.MethodPost, path: "/api/keys/regenerate", token: "u2", body: `{"keyId":"` + issued.Data.ID + `"}`})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(t, request{method: http.MethodPost, path: "/api/keys/regenerate", token: "u2"})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestCheckoutAndCallback(t *testing.T) {
	s := newTestServer(t, stubGateway{})
	key := s.signup(t, "u1")

	w := s.do(t, request{method: http.MethodPost, path: "/api/billing/checkout", token: "u1", body: `{"plan":"cheap","method":"QRIS"}`})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var checkout dataEnvelope[core.Checkout]
	decode(t, w, &checkout)
	txn := checkout.Data.Transaction
	require.NotNil(t, txn)
	assert.Equal(t, models.TransactionPending, txn.Status)
	assert.Equal(t, "https://pay.test/"+txn.MerchantRef, checkout.Data.CheckoutURL)

	body := callbackBody(txn.MerchantRef, "PAID", txn.Amount)

	w = s.do(t, request{method: http.MethodPost, path: "/api/billing/callback", body: body,
		header: map[string]string{CallbackSignatureHeader: payment.Sign("wrong-key", []byte(body))}})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, models.TierFree, s.account(t, "u1").Plan)

	w = s.do(t, request{method: http.MethodPost, path: "/api/billing/callback", body: body})
	assert.Equal(t, http.StatusForbidden, w.Code)

	sig := payment.Sign(testPrivateKey, []byte(body))
	for i := 0; i < 2; i++ {
		w = s.do(t, request{method: http.MethodPost, path: "/api/billing/callback", body: body,
			header: map[string]string{CallbackSignatureHeader: sig}})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	}

	account := s.account(t, "u1")
	assert.Equal(t, models.TierCheap, account.Plan)
	assert.Equal(t, int64(1000), account.APILimit)
	assert.Equal(t, key, account.APIKey)

	w = s.do(t, request{method: http.MethodPost, path: "/api/billing/transactions/" + txn.MerchantRef + "/cancel", token: "u1"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = s.do(t, request{method: http.MethodGet, path: "/api/billing/transactions", token: "u1"})
	require.Equal(t, http.StatusOK, w.Code)
	var txns dataEnvelope[[]models.Transaction]
	decode(t, w, &txns)
	require.Len(t, txns.Data, 1)
	assert.Equal(t, models.TransactionPaid, txns.Data[0].Status)
}

func TestCancelTransaction(t *testing.T) {
	s := newTestServer(t, stubGateway{})
	s.signup(t, "u1")
	s.signup(t, "u2")

	w := s.do(t, request{method: http.MethodPost, path: "/api/billing/checkout", token: "u1", body: `{"plan":"PREMIUM","method":"BRIVA"}`})
	require.Equal(t, http.StatusCreated, w.Code)
	var checkout dataEnvelope[core.Checkout]
	decode(t, w, &checkout)
	cancelPath := "/api/billing/transactions/" + checkout.Data.Transaction.MerchantRef + "/cancel"

	w = s.do(t, request{method: http.MethodPost, path: cancelPath, token: "u2"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	for i := 0; i < 2; i++ {
		w = s.do(t, request{method: http.MethodPost, path: cancelPath, token: "u1"})
		require.Equal(t, http.StatusOK, w.Code)
		var cancelled dataEnvelope[models.Transaction]
		decode(t, w, &cancelled)
		assert.Equal(t, models.TransactionCancelled, cancelled.Data.Status)
	}
}

func TestCheckoutValidation(t *testing.T) {
	s := newTestServer(t, stubGateway{})
	s.signup(t, "u1")

	tests := []struct {
		name       string
		body       string
		wantStatus int
	}{
		{name: "missing method", body: `{"plan":"VIP"}`, wantStatus: http.StatusBadRequest},
		{name: "unknown plan", body: `{"plan":"GOLD","method":"QRIS"}`, wantStatus: http.StatusBadRequest},
		{name: "free plan", body: `{"plan":"FREE","method":"QRIS"}`, wantStatus: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do(t, request{method: http.MethodPost, path: "/api/billing/checkout", token: "u1", body: tt.body})
			assert.Equal(t, tt.wantStatus, w.Code)
		})
	}

	disabled := newTestServer(t, nil)
	disabled.signup(t, "u1")
	w := disabled.do(t, request{method: http.MethodPost, path: "/api/billing/checkout", token: "u1", body: `{"plan":"VIP","method":"QRIS"}`})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestAdminGate(t *testing.T) {
	s := newTestServer(t, stubGateway{})
	s.signup(t, "u1")
	s.makeAdmin(t, "root")

	w := s.do(t, request{method: http.MethodGet, path: "/api/admin/stats"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(t, request{method: http.MethodGet, path: "/api/admin/stats", token: "u1"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(t, request{method: http.MethodGet, path: "/api/admin/stats", token: "root"})
	require.Equal(t, http.StatusOK, w.Code)
	var stats dataEnvelope[models.Stats]
	decode(t, w, &stats)
	assert.Equal(t, int64(2), stats.Data.Accounts)
	assert.Equal(t, int64(2), stats.Data.ActiveAPIKeys)

	w = s.do(t, request{method: http.MethodGet, path: "/api/admin/users", token: "root"})
	require.Equal(t, http.StatusOK, w.Code)
	var users dataEnvelope[[]models.Account]
	decode(t, w, &users)
	assert.Len(t, users.Data, 2)
}

func TestAdminKeyAndPlanManagement(t *testing.T) {
	s := newTestServer(t, stubGateway{})
	key := s.signup(t, "u1")
	s.makeAdmin(t, "root")
	keyID := s.activeKey(t, "u1").ID

	w := s.do(t, request{method: http.MethodPut, path: "/api/admin/users/u1/plan", token: "root", body: `{"plan":"vip"}`})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, int64(5000), s.activeKey(t, "u1").Limit)
	assert.Equal(t, int64(5000), s.account(t, "u1").APILimit)

	w = s.do(t, request{method: http.MethodPut, path: "/api/admin/users/u1/plan", token: "root", body: `{"plan":"GOLD"}`})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, request{method: http.MethodPost, path: "/api/admin/keys/" + keyID + "/deactivate", token: "root"})
	require.Equal(t, http.StatusOK, w.Code)
	w = s.do(t, request{method: http.MethodGet, path: "/api/random/cat", apiKey: key})
	assert.Equal(t, http.StatusForbidden, w.Code)
	var disabled resultEnvelope[any]
	decode(t, w, &disabled)
	assert.Equal(t, core.ReasonKeyDisabled, disabled.Reason)

	w = s.do(t, request{method: http.MethodPost, path: "/api/admin/keys/" + keyID + "/activate", token: "root"})
	require.Equal(t, http.StatusOK, w.Code)
	w = s.do(t, request{method: http.MethodGet, path: "/api/random/cat", apiKey: key})
	assert.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, request{method: http.MethodPost, path: "/api/admin/keys/missing/activate", token: "root"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, request{method: http.MethodPost, path: "/api/admin/usage/reset", token: "root"})
	require.Equal(t, http.StatusOK, w.Code)
	var reset dataEnvelope[UsageResetResponse]
	decode(t, w, &reset)
	assert.Equal(t, 1, reset.Data.KeysReset)
	assert.Equal(t, int64(0), s.account(t, "u1").APIUsage)

	w = s.do(t, request{method: http.MethodPost, path: "/api/admin/users/u1/keys", token: "root", body: `{"tier":"SUPREME","label":"ops"}`})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var issued dataEnvelope[models.APIKey]
	decode(t, w, &issued)
	assert.Equal(t, int64(20000), issued.Data.Limit)

	w = s.do(t, request{method: http.MethodPut, path: "/api/admin/users/u1/role", token: "root", body: `{"role":"superuser"}`})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = s.do(t, request{method: http.MethodPut, path: "/api/admin/users/u1/role", token: "root", body: `{"role":"ADMIN"}`})
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, s.account(t, "u1").IsAdmin())

	w = s.do(t, request{method: http.MethodDelete, path: "/api/admin/users/u1", token: "root"})
	require.Equal(t, http.StatusOK, w.Code)
	var deleted dataEnvelope[DeleteAccountResponse]
	decode(t, w, &deleted)
	assert.Equal(t, 2, deleted.Data.KeysRemoved)

	w = s.do(t, request{method: http.MethodGet, path: "/api/random/cat", apiKey: issued.Data.Key})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAdminMigratePlans(t *testing.T) {
	s := newTestServer(t, stubGateway{})
	s.signup(t, "u1")
	s.signup(t, "u2")
	s.makeAdmin(t, "root")
	_, _, err := s.store.Accounts().ApplyPlan(context.Background(), "u1", models.Tier("STARTER"), false, s.account(t, "u1").UpdatedAt)
	require.NoError(t, err)

	w := s.do(t, request{method: http.MethodPost, path: "/api/admin/migrate-plans", token: "root"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var first dataEnvelope[models.MigrationSummary]
	decode(t, w, &first)
	assert.Equal(t, 3, first.Data.Total)
	assert.Equal(t, 1, first.Data.Migrated)
	assert.Equal(t, models.TierCheap, s.account(t, "u1").Plan)
	assert.Equal(t, int64(1000), s.activeKey(t, "u1").Limit)

	w = s.do(t, request{method: http.MethodPost, path: "/api/admin/migrate-plans", token: "root"})
	require.Equal(t, http.StatusOK, w.Code)
	var second dataEnvelope[models.MigrationSummary]
	decode(t, w, &second)
	assert.Equal(t, 0, second.Data.Migrated)
	assert.Equal(t, second.Data.Total, second.Data.Skipped)

	w = s.do(t, request{method: http.MethodGet, path: "/api/admin/transactions", token: "root"})
	require.Equal(t, http.StatusOK, w.Code)
	var txns dataEnvelope[[]models.Transaction]
	decode(t, w, &txns)
	assert.Empty(t, txns.Data)
}
