package validators

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"carbon-scribe/credit-market/credit-market-backend/internal/auth"
	"carbon-scribe/credit-market/credit-market-backend/pkg/apperrors"
)

type AddValidatorRequest struct {
	Address string `json:"address" binding:"required"`
}

type Handler struct {
	registry *Registry
	logger   *zap.Logger
}

func NewHandler(r *Registry, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{registry: r, logger: logger}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, requireCaller gin.HandlerFunc) {
	v := rg.Group("/validators")
	{
		v.GET("", h.list)
		v.GET("/:address", h.check)
		v.POST("", requireCaller, h.add)
		v.DELETE("/:address", requireCaller, h.remove)
	}
}

func (h *Handler) list(c *gin.Context) {
	c.JSON(http.StatusOK, h.registry.List())
}

func (h *Handler) check(c *gin.Context) {
	addr := c.Param("address")
	c.JSON(http.StatusOK, gin.H{"address": addr, "is_validator": h.registry.IsValidator(addr)})
}

func (h *Handler) add(c *gin.Context) {
	var req AddValidatorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperrors.RespondInvalid(c, err)
		return
	}

	if err := h.registry.AddValidator(auth.CallerFrom(c), req.Address); err != nil {
		h.logger.Warn("Failed to add validator", zap.Error(err))
		apperrors.Respond(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"address": req.Address, "is_validator": true})
}

func (h *Handler) remove(c *gin.Context) {
	if err := h.registry.RemoveValidator(auth.CallerFrom(c), c.Param("address")); err != nil {
		h.logger.Warn("Failed to remove validator", zap.Error(err))
		apperrors.Respond(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
