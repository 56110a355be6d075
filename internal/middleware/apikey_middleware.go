package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/markxplorer969/hyuuxapi-sub001/internal/core"
	"github.com/markxplorer969/hyuuxapi-sub001/internal/models"
)

// KeyErrorResponse is the error body of the key-gated routes.
type KeyErrorResponse struct {
	Status bool   `json:"status"`
	Error  string `json:"error"`
	Reason string `json:"reason,omitempty"`
}

// KeyLedger is the part of the ledger used for admission.
type KeyLedger interface {
	Resolve(ctx context.Context, key string) (*models.APIKey, *models.Account, error)
	Consume(ctx context.Context, key string) (*models.APIKey, error)
}

const maxKeyBody = 1 << 16

// ExtractAPIKey returns the key presented in the x-api-key header, the apikey
// query parameter or the apiKey/apikey field of a JSON body, in that order.
func ExtractAPIKey(c *gin.Context) string {
	if k := strings.TrimSpace(c.GetHeader("x-api-key")); k != "" {
		return k
	}
	if k := strings.TrimSpace(c.Query("apikey")); k != "" {
		return k
	}
	if c.Request.Body == nil || !strings.HasPrefix(c.ContentType(), "application/json") {
		return ""
	}
	raw, err := io.ReadAll(io.LimitReader(c.Request.Body, maxKeyBody))
	c.Request.Body = io.NopCloser(bytes.NewReader(raw))
	if err != nil || len(raw) == 0 {
		return ""
	}
	var body struct {
		APIKey      string `json:"apiKey"`
		APIKeyLower string `json:"apikey"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return ""
	}
	if body.APIKey != "" {
		return strings.TrimSpace(body.APIKey)
	}
	return strings.TrimSpace(body.APIKeyLower)
}

// RequireAPIKey admits requests carrying a usable key. When consume is true one
// unit of usage is recorded atomically; otherwise the key is only resolved.
func RequireAPIKey(ledger KeyLedger, consume bool, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := ExtractAPIKey(c)
		var (
			k   *models.APIKey
			err error
		)
		if consume {
			k, err = ledger.Consume(c.Request.Context(), key)
		} else {
			k, _, err = ledger.Resolve(c.Request.Context(), key)
		}
		if err != nil {
			status, msg := admissionStatus(err)
			if status == http.StatusInternalServerError {
				logger.Error("Api key admission failed", zap.Error(err))
			}
			c.AbortWithStatusJSON(status, KeyErrorResponse{Error: msg, Reason: core.ReasonCode(err)})
			return
		}
		c.Header("X-RateLimit-Limit", strconv.FormatInt(k.Limit, 10))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(k.Remaining(), 10))
		c.Set(ContextAPIKey, k)
		c.Next()
	}
}

// admissionStatus maps a ledger error to the HTTP status and message of the key error body.
func admissionStatus(err error) (int, string) {
	switch {
	case errors.Is(err, core.ErrKeyMissing):
		return http.StatusUnauthorized, "API key is required"
	case errors.Is(err, core.ErrKeyNotFound):
		return http.StatusUnauthorized, "Invalid API key"
	case errors.Is(err, core.ErrKeyDisabled):
		return http.StatusForbidden, "API key is disabled"
	case errors.Is(err, core.ErrLimitReached):
		return http.StatusTooManyRequests, "API key usage limit reached"
	default:
		return http.StatusInternalServerError, "Failed to validate API key"
	}
}
