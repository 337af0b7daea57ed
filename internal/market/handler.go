package market

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"carbon-scribe/credit-market/credit-market-backend/internal/auth"
	"carbon-scribe/credit-market/credit-market-backend/pkg/apperrors"
)

// SellRequest lists more credits of a project
type SellRequest struct {
	Amount     int64           `json:"amount"`
	Collateral decimal.Decimal `json:"collateral"`
}

// BuyRequest claims listed credits of a project
type BuyRequest struct {
	CompanyID string          `json:"company_id" binding:"required"`
	Amount    int64           `json:"amount"`
	Payment   decimal.Decimal `json:"payment"`
}

// ValidateRequest carries a validator's attestation
type ValidateRequest struct {
	CompanyID   string `json:"company_id" binding:"required"`
	Valid       bool   `json:"valid"`
	ActualYield int64  `json:"actual_yield"`
}

// Handler handles HTTP requests for trading and settlement
type Handler struct {
	engine *Engine
	logger *zap.Logger
}

// NewHandler creates a new market handler
func NewHandler(engine *Engine, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{engine: engine, logger: logger}
}

// RegisterRoutes registers market routes. Mutating routes run behind requireCaller.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, requireCaller gin.HandlerFunc) {
	p := rg.Group("/projects/:id")
	{
		p.POST("/listings", requireCaller, h.sell)
		p.POST("/purchases", requireCaller, h.buy)
		p.POST("/validation", requireCaller, h.validate)
		p.GET("/buyers", h.buyers)
		p.GET("/buyers/:buyer", h.claim)
		p.GET("/escrow", h.escrow)
	}

	rg.GET("/quote", h.quote)
	rg.GET("/payouts/:address", h.payout)
	rg.GET("/events", h.events)
}

// sell handles POST /api/v1/projects/:id/listings
func (h *Handler) sell(c *gin.Context) {
	id, ok := projectID(c)
	if !ok {
		return
	}
	var req SellRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperrors.RespondInvalid(c, err)
		return
	}

	project, err := h.engine.Sell(c.Request.Context(), auth.CallerFrom(c), id, req.Amount, req.Collateral)
	if err != nil {
		apperrors.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, project)
}

// buy handles POST /api/v1/projects/:id/purchases
func (h *Handler) buy(c *gin.Context) {
	id, ok := projectID(c)
	if !ok {
		return
	}
	var req BuyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperrors.RespondInvalid(c, err)
		return
	}

	claim, err := h.engine.Buy(c.Request.Context(), auth.CallerFrom(c), req.CompanyID, id, req.Amount, req.Payment)
	if err != nil {
		apperrors.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, claim)
}

// validate handles POST /api/v1/projects/:id/validation
func (h *Handler) validate(c *gin.Context) {
	id, ok := projectID(c)
	if !ok {
		return
	}
	var req ValidateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperrors.RespondInvalid(c, err)
		return
	}

	att := Invalid(req.ActualYield)
	if req.Valid {
		att = Valid(req.ActualYield)
	}
	settlement, err := h.engine.ValidateProject(c.Request.Context(), auth.CallerFrom(c), req.CompanyID, id, att)
	if err != nil {
		apperrors.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, settlement)
}

func (h *Handler) buyers(c *gin.Context) {
	id, ok := projectID(c)
	if !ok {
		return
	}
	buyers, err := h.engine.GetProjectBuyers(id)
	if err != nil {
		apperrors.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, buyers)
}

func (h *Handler) claim(c *gin.Context) {
	id, ok := projectID(c)
	if !ok {
		return
	}
	buyer := c.Param("buyer")
	amount, err := h.engine.GetBuyerClaim(id, buyer)
	if err != nil {
		apperrors.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"project_id": id, "buyer": buyer, "amount": amount})
}

func (h *Handler) escrow(c *gin.Context) {
	id, ok := projectID(c)
	if !ok {
		return
	}
	escrow, err := h.engine.Escrow(id)
	if err != nil {
		apperrors.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"escrow": escrow, "total": escrow.Total()})
}

// quote handles GET /api/v1/quote?amount=N
func (h *Handler) quote(c *gin.Context) {
	amount, err := strconv.ParseInt(c.Query("amount"), 10, 64)
	if err != nil {
		apperrors.RespondInvalid(c, errors.New("amount must be an integer"))
		return
	}
	if amount <= 0 {
		apperrors.Respond(c, fmt.Errorf("quote amount %d: %w", amount, apperrors.ErrInvalidAmount))
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"amount":     amount,
		"payment":    h.engine.Price(amount),
		"collateral": h.engine.RequiredCollateral(amount),
	})
}

func (h *Handler) payout(c *gin.Context) {
	addr := c.Param("address")
	c.JSON(http.StatusOK, gin.H{"address": addr, "amount": h.engine.Payout(addr)})
}

// events handles GET /api/v1/events?after=SEQ
func (h *Handler) events(c *gin.Context) {
	var after uint64
	if raw := c.Query("after"); raw != "" {
		v, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			apperrors.RespondInvalid(c, errors.New("invalid after"))
			return
		}
		after = v
	}
	c.JSON(http.StatusOK, h.engine.Events(after))
}

func projectID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		apperrors.RespondInvalid(c, errors.New("invalid id"))
		return 0, false
	}
	return id, true
}
