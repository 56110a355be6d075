package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/markxplorer969/hyuuxapi-sub001/internal/core"
	"github.com/markxplorer969/hyuuxapi-sub001/internal/models"
)

// KeyHandler handles the self-service API key endpoints.
type KeyHandler struct {
	ledger         core.LedgerService
	accountService core.AccountService
	logger         *zap.Logger
}

// NewKeyHandler creates a new KeyHandler.
func NewKeyHandler(ledger core.LedgerService, as core.AccountService, logger *zap.Logger) *KeyHandler {
	return &KeyHandler{ledger: ledger, accountService: as, logger: logger}
}

// ListKeys handles GET /api/keys.
func (h *KeyHandler) ListKeys(c *gin.Context) {
	id, ok := accountID(c)
	if !ok {
		return
	}
	keys, err := h.ledger.ListKeys(c.Request.Context(), id)
	if err != nil {
		mapErrorToStatus(c, h.logger, err)
		return
	}
	if keys == nil {
		keys = []*models.APIKey{}
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: keys})
}

// IssueKey handles POST /api/keys. The key always carries the account's current plan.
func (h *KeyHandler) IssueKey(c *gin.Context) {
	id, ok := accountID(c)
	if !ok {
		return
	}
	var req models.IssueKeyRequest
	if !bindOptionalJSON(c, &req) {
		return
	}
	account, err := h.accountService.GetByID(c.Request.Context(), id)
	if err != nil {
		mapErrorToStatus(c, h.logger, err)
		return
	}
	k, err := h.ledger.Issue(c.Request.Context(), id, accountTier(account), req.CustomKey, req.Label)
	if err != nil {
		mapErrorToStatus(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, Response{Success: true, Data: k})
}

// RegenerateKey handles POST /api/keys/regenerate.
// The body is optional: {"keyId": "..."} rotates that key, an empty body
// mints a new key from the account's plan.
func (h *KeyHandler) RegenerateKey(c *gin.Context) {
	id, ok := accountID(c)
	if !ok {
		return
	}
	var req models.RegenerateKeyRequest
	if !bindOptionalJSON(c, &req) {
		return
	}
	k, err := h.ledger.Regenerate(c.Request.Context(), id, req.KeyID)
	if err != nil {
		mapErrorToStatus(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: k})
}

// SetCustomKey handles PUT /api/keys/custom.
// It renames the active key; a string already used by another key answers 409.
func (h *KeyHandler) SetCustomKey(c *gin.Context) {
	id, ok := accountID(c)
	if !ok {
		return
	}
	var req models.CustomKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	k, err := h.ledger.SetCustomKey(c.Request.Context(), id, req.Key)
	if err != nil {
		mapErrorToStatus(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: k})
}

// accountTier returns the canonical tier of the account, falling back to FREE
// for names that are neither canonical nor legacy.
func accountTier(account *models.Account) models.Tier {
	tier, _, ok := models.MigrateTierName(string(account.Plan))
	if !ok {
		return models.DefaultTier
	}
	return tier
}

// bindOptionalJSON binds a JSON body when one is present. It writes a 400 and
// returns false on malformed input.
func bindOptionalJSON(c *gin.Context, obj interface{}) bool {
	if c.Request.Body == nil || c.Request.ContentLength == 0 {
		return true
	}
	if err := c.ShouldBindJSON(obj); err != nil && !errors.Is(err, io.EOF) {
		badRequest(c, err)
		return false
	}
	return true
}
