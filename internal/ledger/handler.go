package ledger

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"carbon-scribe/credit-market/credit-market-backend/internal/auth"
	"carbon-scribe/credit-market/credit-market-backend/pkg/apperrors"
)

type TransferRequest struct {
	To     string `json:"to" binding:"required"`
	Amount int64  `json:"amount"`
}

type BurnRequest struct {
	Amount int64 `json:"amount"`
}

// Handler exposes balances and holder self-service operations
type Handler struct {
	ledger *Ledger
	logger *zap.Logger
}

func NewHandler(l *Ledger, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{ledger: l, logger: logger}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, requireCaller gin.HandlerFunc) {
	credits := rg.Group("/credits")
	{
		credits.GET("", h.supply)
		credits.GET("/:holder", h.balance)
		credits.POST("/transfer", requireCaller, h.transfer)
		credits.POST("/burn", requireCaller, h.burn)
	}
}

func (h *Handler) supply(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"total_supply": h.ledger.TotalSupply(),
		"holders":      h.ledger.Holders(),
	})
}

func (h *Handler) balance(c *gin.Context) {
	holder := c.Param("holder")
	c.JSON(http.StatusOK, gin.H{"holder": holder, "balance": h.ledger.BalanceOf(holder)})
}

func (h *Handler) transfer(c *gin.Context) {
	var req TransferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperrors.RespondInvalid(c, err)
		return
	}

	caller := auth.CallerFrom(c)
	if err := h.ledger.Transfer(caller, caller, req.To, req.Amount); err != nil {
		h.logger.Warn("Credit transfer rejected", zap.String("from", caller), zap.Error(err))
		apperrors.Respond(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"holder": caller, "balance": h.ledger.BalanceOf(caller)})
}

func (h *Handler) burn(c *gin.Context) {
	var req BurnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperrors.RespondInvalid(c, err)
		return
	}

	caller := auth.CallerFrom(c)
	if err := h.ledger.Burn(caller, caller, req.Amount); err != nil {
		h.logger.Warn("Credit burn rejected", zap.String("holder", caller), zap.Error(err))
		apperrors.Respond(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"holder": caller, "balance": h.ledger.BalanceOf(caller)})
}
