package api

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/markxplorer969/hyuuxapi-sub001/internal/core"
	"github.com/markxplorer969/hyuuxapi-sub001/internal/models"
)

// CallbackSignatureHeader carries the gateway's HMAC of the raw callback body.
const CallbackSignatureHeader = "X-Callback-Signature"

const maxCallbackBody = 1 << 20

// BillingHandler handles billing-related API endpoints.
type BillingHandler struct {
	billingService core.BillingService
	accountService core.AccountService
	logger         *zap.Logger
}

// NewBillingHandler creates a new BillingHandler.
func NewBillingHandler(bs core.BillingService, as core.AccountService, logger *zap.Logger) *BillingHandler {
	return &BillingHandler{billingService: bs, accountService: as, logger: logger}
}

// CreateCheckout handles POST /api/billing/checkout.
// It binds the plan and payment method, opens a charge for the authenticated
// account and answers 201 with the PENDING transaction and the checkout URL.
// Payments that are not configured answer 503.
func (h *BillingHandler) CreateCheckout(c *gin.Context) {
	id, ok := accountID(c)
	if !ok {
		return
	}
	var req models.CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	account, err := h.accountService.GetByID(c.Request.Context(), id)
	if err != nil {
		mapErrorToStatus(c, h.logger, err)
		return
	}
	checkout, err := h.billingService.CreateCheckout(c.Request.Context(), account, req)
	if err != nil {
		mapErrorToStatus(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, Response{Success: true, Data: checkout})
}

// ListTransactions handles GET /api/billing/transactions.
func (h *BillingHandler) ListTransactions(c *gin.Context) {
	id, ok := accountID(c)
	if !ok {
		return
	}
	txns, err := h.billingService.ListTransactions(c.Request.Context(), id)
	if err != nil {
		mapErrorToStatus(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: nonNilTransactions(txns)})
}

// CancelTransaction handles POST /api/billing/transactions/:merchantRef/cancel.
// Only the owner may cancel; a transaction of another account answers 404.
func (h *BillingHandler) CancelTransaction(c *gin.Context) {
	id, ok := accountID(c)
	if !ok {
		return
	}
	txn, err := h.billingService.Cancel(c.Request.Context(), id, c.Param("merchantRef"))
	if err != nil {
		mapErrorToStatus(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: txn})
}

// HandleCallback handles POST /api/billing/callback.
// The route carries no token: the gateway is authenticated by the
// X-Callback-Signature header, computed over the raw body, so the body is read
// once and passed through unparsed.
// The endpoint is public; the gateway authenticates with an HMAC of the raw body.
func (h *BillingHandler) HandleCallback(c *gin.Context) {
	signature := c.GetHeader(CallbackSignatureHeader)
	if signature == "" {
		c.JSON(http.StatusForbidden, ErrorResponse{Error: "Missing " + CallbackSignatureHeader + " header"})
		return
	}

	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxCallbackBody))
	if err != nil {
		h.logger.Warn("Failed to read callback body", zap.Error(err))
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Failed to read callback payload", Details: err.Error()})
		return
	}

	txn, err := h.billingService.HandleCallback(c.Request.Context(), signature, payload)
	if err != nil {
		h.logger.Warn("Callback rejected", zap.Error(err))
		mapErrorToStatus(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: txn})
}

// nonNilTransactions makes empty lists encode as [] instead of null.
func nonNilTransactions(txns []*models.Transaction) []*models.Transaction {
	if txns == nil {
		return []*models.Transaction{}
	}
	return txns
}
