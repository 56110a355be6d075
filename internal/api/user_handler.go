package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/markxplorer969/hyuuxapi-sub001/internal/core"
	"github.com/markxplorer969/hyuuxapi-sub001/internal/middleware"
)

// UserHandler handles account profile endpoints.
type UserHandler struct {
	accountService core.AccountService
	logger         *zap.Logger
}

// NewUserHandler creates a new UserHandler.
func NewUserHandler(as core.AccountService, logger *zap.Logger) *UserHandler {
	return &UserHandler{accountService: as, logger: logger}
}

// InitializeUserProfile handles POST /api/users/initialize.
// It is called by the client after every sign-in. The first call creates the
// account with a FREE key and answers 201; later calls answer 200 with the
// existing profile.
// It is called by the client after a Firebase sign-in and creates the account
// with a FREE key the first time the UID is seen.
func (h *UserHandler) InitializeUserProfile(c *gin.Context) {
	id, ok := accountID(c)
	if !ok {
		return
	}
	email := c.GetString(middleware.ContextEmail)
	displayName := c.GetString(middleware.ContextDisplayName)
	photoURL := c.GetString(middleware.ContextPhotoURL)

	_, created, err := h.accountService.GetOrCreate(c.Request.Context(), id, email, displayName, photoURL)
	if err != nil {
		mapErrorToStatus(c, h.logger, err)
		return
	}
	profile, err := h.accountService.GetProfile(c.Request.Context(), id)
	if err != nil {
		mapErrorToStatus(c, h.logger, err)
		return
	}

	if created {
		h.logger.Info("Account initialized", zap.String("accountID", id))
		c.JSON(http.StatusCreated, Response{Success: true, Data: profile})
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: profile})
}

// GetCurrentUserProfile handles GET /api/users/me.
// It retrieves the account ID set by the auth middleware and returns the
// account together with its active key.
func (h *UserHandler) GetCurrentUserProfile(c *gin.Context) {
	id, ok := accountID(c)
	if !ok {
		return
	}
	profile, err := h.accountService.GetProfile(c.Request.Context(), id)
	if err != nil {
		mapErrorToStatus(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: profile})
}
