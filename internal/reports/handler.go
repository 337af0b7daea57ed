// Package reports serves downloadable settlement statements.
package reports

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"carbon-scribe/credit-market/credit-market-backend/internal/market"
	"carbon-scribe/credit-market/credit-market-backend/internal/projects"
	"carbon-scribe/credit-market/credit-market-backend/internal/reports/export"
	"carbon-scribe/credit-market/credit-market-backend/pkg/apperrors"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// ProjectReader is the registry view a statement needs
type ProjectReader interface {
	GetProject(id int64) (projects.Project, error)
	CompanyName(address string) (string, error)
}

// MarketReader is the engine view a statement needs
type MarketReader interface {
	Escrow(projectID int64) (market.Escrow, error)
	Events(after uint64) []market.Event
}

// Handler handles HTTP requests for settlement statements
type Handler struct {
	projects ProjectReader
	market   MarketReader
	logger   *zap.Logger
}

// NewHandler creates a new reports handler
func NewHandler(projects ProjectReader, market MarketReader, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{projects: projects, market: market, logger: logger}
}

// RegisterRoutes registers reporting routes
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/projects/:id/statement.xlsx", h.statement)
}

// Statement assembles the statement for one project
func (h *Handler) Statement(projectID int64) (export.Statement, error) {
	p, err := h.projects.GetProject(projectID)
	if err != nil {
		return export.Statement{}, err
	}
	name, err := h.projects.CompanyName(p.CompanyID)
	if err != nil {
		return export.Statement{}, err
	}
	escrow, err := h.market.Escrow(projectID)
	if err != nil {
		return export.Statement{}, err
	}

	var events []market.Event
	for _, e := range h.market.Events(0) {
		if e.ProjectID == projectID {
			events = append(events, e)
		}
	}

	return export.Statement{
		Project:     p,
		CompanyName: name,
		Escrow:      escrow,
		Events:      events,
	}, nil
}

// statement handles GET /api/v1/projects/:id/statement.xlsx
func (h *Handler) statement(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		apperrors.RespondInvalid(c, errors.New("invalid id"))
		return
	}

	st, err := h.Statement(id)
	if err != nil {
		apperrors.Respond(c, err)
		return
	}

	var buf bytes.Buffer
	if err := export.WriteStatement(&buf, st); err != nil {
		h.logger.Error("Failed to render statement", zap.Int64("project_id", id), zap.Error(err))
		apperrors.Respond(c, fmt.Errorf("failed to render statement: %w", err))
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="project-%d-statement.xlsx"`, id))
	c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
}
