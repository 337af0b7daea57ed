package projects

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"carbon-scribe/credit-market/credit-market-backend/internal/auth"
	"carbon-scribe/credit-market/credit-market-backend/pkg/apperrors"
)

// Handler handles HTTP requests for the company and project registry
type Handler struct {
	store  *Store
	logger *zap.Logger
}

// NewHandler creates a new registry handler
func NewHandler(store *Store, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{store: store, logger: logger}
}

// RegisterRoutes registers registry routes. Mutating routes run behind requireCaller.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, requireCaller gin.HandlerFunc) {
	companies := rg.Group("/companies")
	{
		companies.POST("", requireCaller, h.createCompany)
		companies.GET("/:address", h.getCompany)
		companies.GET("/:address/projects", h.listProjects)
		companies.POST("/:address/projects", requireCaller, h.createProject)
	}

	rg.GET("/projects/:id", h.getProject)
	rg.GET("/projects/:id/history", h.getHistory)
}

// createCompany handles POST /api/v1/companies
func (h *Handler) createCompany(c *gin.Context) {
	var req CreateCompanyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperrors.RespondInvalid(c, err)
		return
	}

	company, err := h.store.AddCompany(auth.CallerFrom(c), req.Address, req.Name)
	if err != nil {
		h.logger.Warn("Failed to add company", zap.Error(err))
		apperrors.Respond(c, err)
		return
	}

	c.JSON(http.StatusCreated, company)
}

func (h *Handler) getCompany(c *gin.Context) {
	company, err := h.store.GetCompany(c.Param("address"))
	if err != nil {
		apperrors.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, company)
}

func (h *Handler) listProjects(c *gin.Context) {
	projects, err := h.store.ListProjects(c.Param("address"))
	if err != nil {
		apperrors.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, projects)
}

// createProject handles POST /api/v1/companies/:address/projects
func (h *Handler) createProject(c *gin.Context) {
	var req CreateProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperrors.RespondInvalid(c, err)
		return
	}

	project, err := h.store.AddProject(auth.CallerFrom(c), c.Param("address"), req)
	if err != nil {
		h.logger.Warn("Failed to add project", zap.Error(err))
		apperrors.Respond(c, err)
		return
	}

	c.JSON(http.StatusCreated, project)
}

func (h *Handler) getProject(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		apperrors.RespondInvalid(c, errors.New("invalid id"))
		return
	}

	project, err := h.store.GetProject(id)
	if err != nil {
		apperrors.Respond(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"project":  project,
		"deadline": project.Deadline(),
	})
}

func (h *Handler) getHistory(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		apperrors.RespondInvalid(c, errors.New("invalid id"))
		return
	}

	history, err := h.store.StatusHistory(id)
	if err != nil {
		apperrors.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, history)
}
