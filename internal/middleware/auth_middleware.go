package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"firebase.google.com/go/v4/auth"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/markxplorer969/hyuuxapi-sub001/internal/core"
	"github.com/markxplorer969/hyuuxapi-sub001/internal/models"
)

// Context keys set by the middleware.
const (
	ContextAccountID   = "accountID"
	ContextEmail       = "accountEmail"
	ContextDisplayName = "accountDisplayName"
	ContextPhotoURL    = "accountPhotoURL"
	ContextAccount     = "account"
	ContextAPIKey      = "apiKey"
)

// ErrorResponse is the error body of the account, billing and admin routes.
// It mirrors the one in internal/api to avoid import cycles.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// TokenVerifier verifies Firebase ID tokens. *auth.Client satisfies it.
type TokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*auth.Token, error)
}

// AccountLookup loads accounts for the admin gate.
type AccountLookup interface {
	GetByID(ctx context.Context, accountID string) (*models.Account, error)
}

// AuthMiddleware provides Gin middleware for Firebase token authentication.
type AuthMiddleware struct {
	verifier TokenVerifier
	logger   *zap.Logger
}

// NewAuthMiddleware creates a new AuthMiddleware instance.
func NewAuthMiddleware(verifier TokenVerifier, logger *zap.Logger) *AuthMiddleware {
	if verifier == nil {
		panic("Firebase Auth client is not initialized for AuthMiddleware")
	}
	return &AuthMiddleware{verifier: verifier, logger: logger}
}

// VerifyToken verifies the Firebase ID token of the Authorization header and
// stores the account identity in the Gin context.
func (m *AuthMiddleware) VerifyToken() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Error: "Authorization header is required"})
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Error: "Authorization header format must be 'Bearer {token}'"})
			return
		}

		token, err := m.verifier.VerifyIDToken(c.Request.Context(), parts[1])
		if err != nil {
			m.logger.Info("Rejected Firebase ID token", zap.Error(err))
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Error: "Invalid or expired authentication token"})
			return
		}

		c.Set(ContextAccountID, token.UID)
		if email, ok := token.Claims["email"].(string); ok {
			c.Set(ContextEmail, email)
		}
		if name, ok := token.Claims["name"].(string); ok {
			c.Set(ContextDisplayName, name)
		}
		if picture, ok := token.Claims["picture"].(string); ok {
			c.Set(ContextPhotoURL, picture)
		}
		c.Next()
	}
}

// RequireAdmin must run after VerifyToken. It admits only accounts whose role is admin.
func (m *AuthMiddleware) RequireAdmin(accounts AccountLookup) gin.HandlerFunc {
	return func(c *gin.Context) {
		accountID := c.GetString(ContextAccountID)
		if accountID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Error: "Authentication required"})
			return
		}
		account, err := accounts.GetByID(c.Request.Context(), accountID)
		if err != nil {
			if errors.Is(err, core.ErrAccountNotFound) {
				c.AbortWithStatusJSON(http.StatusForbidden, ErrorResponse{Error: "Admin access required"})
				return
			}
			m.logger.Error("Failed to load account for admin check", zap.String("accountID", accountID), zap.Error(err))
			c.AbortWithStatusJSON(http.StatusInternalServerError, ErrorResponse{Error: "Failed to verify admin access"})
			return
		}
		if !account.IsAdmin() {
			c.AbortWithStatusJSON(http.StatusForbidden, ErrorResponse{Error: "Admin access required"})
			return
		}
		c.Set(ContextAccount, account)
		c.Next()
	}
}
