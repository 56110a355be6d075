package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/markxplorer969/hyuuxapi-sub001/internal/core"
	"github.com/markxplorer969/hyuuxapi-sub001/internal/models"
)

// AdminHandler handles the admin-only endpoints.
type AdminHandler struct {
	accountService   core.AccountService
	ledger           core.LedgerService
	billingService   core.BillingService
	migrationService core.MigrationService
	statsService     core.StatsService
	logger           *zap.Logger
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(
	as core.AccountService,
	ledger core.LedgerService,
	bs core.BillingService,
	ms core.MigrationService,
	ss core.StatsService,
	logger *zap.Logger,
) *AdminHandler {
	return &AdminHandler{
		accountService:   as,
		ledger:           ledger,
		billingService:   bs,
		migrationService: ms,
		statsService:     ss,
		logger:           logger,
	}
}

// Stats handles GET /api/admin/stats.
func (h *AdminHandler) Stats(c *gin.Context) {
	stats, err := h.statsService.Stats(c.Request.Context())
	if err != nil {
		mapErrorToStatus(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: stats})
}

// ListUsers handles GET /api/admin/users.
func (h *AdminHandler) ListUsers(c *gin.Context) {
	accounts, err := h.accountService.List(c.Request.Context())
	if err != nil {
		mapErrorToStatus(c, h.logger, err)
		return
	}
	if accounts == nil {
		accounts = []*models.Account{}
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: accounts})
}

// SetPlan handles PUT /api/admin/users/:id/plan.
// The plan is applied to the account and its active key in one write;
// usage is reset only when the new tier is higher.
func (h *AdminHandler) SetPlan(c *gin.Context) {
	var req models.SetPlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	tier, ok := models.ParseTier(req.Plan)
	if !ok {
		mapErrorToStatus(c, h.logger, core.ErrInvalidPlan)
		return
	}
	account, err := h.accountService.SetPlan(c.Request.Context(), c.Param("id"), tier)
	if err != nil {
		mapErrorToStatus(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: account})
}

// SetRole handles PUT /api/admin/users/:id/role.
func (h *AdminHandler) SetRole(c *gin.Context) {
	var req models.SetRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	role := models.Role(strings.ToLower(strings.TrimSpace(req.Role)))
	account, err := h.accountService.SetRole(c.Request.Context(), c.Param("id"), role)
	if err != nil {
		mapErrorToStatus(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: account})
}

// DeleteUser handles DELETE /api/admin/users/:id. Keys of the account are removed too.
func (h *AdminHandler) DeleteUser(c *gin.Context) {
	id := c.Param("id")
	n, err := h.accountService.Delete(c.Request.Context(), id)
	if err != nil {
		mapErrorToStatus(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: DeleteAccountResponse{AccountID: id, KeysRemoved: n}})
}

// IssueKey handles POST /api/admin/users/:id/keys. The tier defaults to the account's plan.
func (h *AdminHandler) IssueKey(c *gin.Context) {
	var req models.IssueKeyRequest
	if !bindOptionalJSON(c, &req) {
		return
	}
	id := c.Param("id")
	var tier models.Tier
	if req.Tier != "" {
		t, ok := models.ParseTier(req.Tier)
		if !ok {
			mapErrorToStatus(c, h.logger, core.ErrInvalidPlan)
			return
		}
		tier = t
	} else {
		account, err := h.accountService.GetByID(c.Request.Context(), id)
		if err != nil {
			mapErrorToStatus(c, h.logger, err)
			return
		}
		tier = accountTier(account)
	}
	k, err := h.ledger.Issue(c.Request.Context(), id, tier, req.CustomKey, req.Label)
	if err != nil {
		mapErrorToStatus(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, Response{Success: true, Data: k})
}

// DeactivateKey handles POST /api/admin/keys/:id/deactivate.
func (h *AdminHandler) DeactivateKey(c *gin.Context) {
	h.setKeyActive(c, false)
}

// ActivateKey handles POST /api/admin/keys/:id/activate.
func (h *AdminHandler) ActivateKey(c *gin.Context) {
	h.setKeyActive(c, true)
}

// setKeyActive is shared by the activate and deactivate endpoints.
func (h *AdminHandler) setKeyActive(c *gin.Context, active bool) {
	k, err := h.ledger.SetKeyActive(c.Request.Context(), c.Param("id"), active)
	if err != nil {
		mapErrorToStatus(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: k})
}

// MigratePlans handles POST /api/admin/migrate-plans.
// Per-account failures are reported in the summary, not as an error status.
func (h *AdminHandler) MigratePlans(c *gin.Context) {
	summary, err := h.migrationService.MigratePlans(c.Request.Context())
	if err != nil {
		mapErrorToStatus(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: summary})
}

// ResetUsage handles POST /api/admin/usage/reset.
func (h *AdminHandler) ResetUsage(c *gin.Context) {
	n, err := h.ledger.ResetUsage(c.Request.Context())
	if err != nil {
		mapErrorToStatus(c, h.logger, err)
		return
	}
	h.statsService.Invalidate(c.Request.Context())
	c.JSON(http.StatusOK, Response{Success: true, Data: UsageResetResponse{KeysReset: n}})
}

// ListTransactions handles GET /api/admin/transactions.
func (h *AdminHandler) ListTransactions(c *gin.Context) {
	txns, err := h.billingService.ListAll(c.Request.Context())
	if err != nil {
		mapErrorToStatus(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: nonNilTransactions(txns)})
}
