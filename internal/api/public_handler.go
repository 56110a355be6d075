package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/markxplorer969/hyuuxapi-sub001/internal/core"
	"github.com/markxplorer969/hyuuxapi-sub001/internal/middleware"
	"github.com/markxplorer969/hyuuxapi-sub001/internal/models"
)

// PublicHandler serves the catalog and the key-gated endpoints.
type PublicHandler struct {
	billingService core.BillingService
	imageService   core.ImageService
	logger         *zap.Logger
}

// NewPublicHandler creates a new PublicHandler.
func NewPublicHandler(bs core.BillingService, is core.ImageService, logger *zap.Logger) *PublicHandler {
	return &PublicHandler{billingService: bs, imageService: is, logger: logger}
}

// ListPlans handles GET /api/plans.
func (h *PublicHandler) ListPlans(c *gin.Context) {
	c.JSON(http.StatusOK, ResultResponse{Status: true, Result: h.billingService.Plans()})
}

// KeyInfo handles GET /api/key/info. The key is resolved but not consumed.
func (h *PublicHandler) KeyInfo(c *gin.Context) {
	k := c.MustGet(middleware.ContextAPIKey).(*models.APIKey)
	c.JSON(http.StatusOK, ResultResponse{Status: true, Result: newKeyInfo(k)})
}

// ListCategories handles GET /api/random.
func (h *PublicHandler) ListCategories(c *gin.Context) {
	c.JSON(http.StatusOK, ResultResponse{Status: true, Result: h.imageService.Categories()})
}

// RequireCategory rejects unknown image categories before the key middleware
// charges the call, so a 404 never costs quota.
func (h *PublicHandler) RequireCategory(c *gin.Context) {
	if !h.imageService.HasCategory(c.Param("category")) {
		mapKeyErrorToStatus(c, h.logger, core.ErrCategoryNotFound)
		c.Abort()
		return
	}
	c.Next()
}

// RandomImage handles GET /api/random/:category. One unit was consumed by the key middleware.
func (h *PublicHandler) RandomImage(c *gin.Context) {
	category := c.Param("category")
	url, err := h.imageService.Random(category)
	if err != nil {
		mapKeyErrorToStatus(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, ResultResponse{Status: true, Result: RandomImageResponse{Category: category, URL: url}})
}
