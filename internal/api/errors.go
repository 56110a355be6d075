package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/markxplorer969/hyuuxapi-sub001/internal/core"
	"github.com/markxplorer969/hyuuxapi-sub001/internal/middleware"
)

// errorStatus maps core errors to an HTTP status and a client safe message.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, core.ErrInvalidKeyFormat),
		errors.Is(err, core.ErrInvalidPlan),
		errors.Is(err, core.ErrInvalidRole),
		errors.Is(err, core.ErrInvalidCallback),
		errors.Is(err, core.ErrPlanNotPurchasable):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, core.ErrKeyMissing):
		return http.StatusUnauthorized, "API key is required"
	case errors.Is(err, core.ErrKeyDisabled):
		return http.StatusForbidden, "API key is disabled"
	case errors.Is(err, core.ErrKeyNotOwned):
		return http.StatusForbidden, "API key does not belong to this account"
	case errors.Is(err, core.ErrInvalidSignature):
		return http.StatusForbidden, "Invalid callback signature"
	case errors.Is(err, core.ErrKeyNotFound):
		return http.StatusNotFound, "API key not found"
	case errors.Is(err, core.ErrAccountNotFound):
		return http.StatusNotFound, "Account not found"
	case errors.Is(err, core.ErrTransactionNotFound):
		return http.StatusNotFound, "Transaction not found"
	case errors.Is(err, core.ErrCategoryNotFound):
		return http.StatusNotFound, "Image category not found"
	case errors.Is(err, core.ErrKeyConflict):
		return http.StatusConflict, "API key is already in use"
	case errors.Is(err, core.ErrAlreadyCompleted):
		return http.StatusConflict, "Transaction already completed"
	case errors.Is(err, core.ErrAlreadyCancelled):
		return http.StatusConflict, "Transaction already cancelled"
	case errors.Is(err, core.ErrLimitReached):
		return http.StatusTooManyRequests, "API key usage limit reached"
	case errors.Is(err, core.ErrGatewayFailure):
		return http.StatusBadGateway, "Payment provider error"
	case errors.Is(err, core.ErrPaymentDisabled):
		return http.StatusServiceUnavailable, "Payments are not available"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "Upstream timed out"
	default:
		return http.StatusInternalServerError, "An unexpected internal server error occurred."
	}
}

// mapErrorToStatus writes err in the success/data envelope family.
func mapErrorToStatus(c *gin.Context, logger *zap.Logger, err error) {
	status, msg := errorStatus(err)
	if status >= http.StatusInternalServerError {
		logger.Error("Request failed",
			zap.String("path", c.FullPath()),
			zap.Int("status", status),
			zap.Error(err))
	}
	_ = c.Error(err)
	c.JSON(status, ErrorResponse{Error: msg})
}

// mapKeyErrorToStatus writes err in the status/result envelope family.
func mapKeyErrorToStatus(c *gin.Context, logger *zap.Logger, err error) {
	status, msg := errorStatus(err)
	if status >= http.StatusInternalServerError {
		logger.Error("Request failed",
			zap.String("path", c.FullPath()),
			zap.Int("status", status),
			zap.Error(err))
	}
	_ = c.Error(err)
	c.JSON(status, KeyErrorResponse{Error: msg})
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request payload", Details: err.Error()})
}

// accountID returns the authenticated account ID set by the auth middleware.
func accountID(c *gin.Context) (string, bool) {
	id := c.GetString(middleware.ContextAccountID)
	if id == "" {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "Authentication error: account ID not found in context"})
		return "", false
	}
	return id, true
}
