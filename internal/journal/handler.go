package journal

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"carbon-scribe/credit-market/credit-market-backend/pkg/apperrors"
)

// Handler serves the persisted event history
type Handler struct {
	repo   Repository
	logger *zap.Logger
}

func NewHandler(repo Repository, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{repo: repo, logger: logger}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	j := rg.Group("/journal")
	{
		j.GET("", h.listSince)
		j.GET("/projects/:id", h.listByProject)
	}
}

// listSince handles GET /api/v1/journal?after=SEQ&limit=N
func (h *Handler) listSince(c *gin.Context) {
	after, err := strconv.ParseUint(c.DefaultQuery("after", "0"), 10, 64)
	if err != nil {
		apperrors.RespondInvalid(c, errors.New("invalid after"))
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "100"))
	if err != nil {
		apperrors.RespondInvalid(c, errors.New("invalid limit"))
		return
	}

	events, err := h.repo.ListSince(c.Request.Context(), after, limit)
	if err != nil {
		h.logger.Error("Failed to read journal", zap.Error(err))
		apperrors.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, events)
}

func (h *Handler) listByProject(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		apperrors.RespondInvalid(c, errors.New("invalid id"))
		return
	}

	events, err := h.repo.ListByProject(c.Request.Context(), id)
	if err != nil {
		h.logger.Error("Failed to read project journal", zap.Int64("project_id", id), zap.Error(err))
		apperrors.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, events)
}
