package reports

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"carbon-scribe/credit-market/credit-market-backend/internal/market"
	"carbon-scribe/credit-market/credit-market-backend/internal/projects"
	"carbon-scribe/credit-market/credit-market-backend/pkg/apperrors"
)

type fakeMarket struct {
	escrow market.Escrow
	events []market.Event
}

func (f *fakeMarket) Escrow(projectID int64) (market.Escrow, error) {
	return f.escrow, nil
}

func (f *fakeMarket) Events(after uint64) []market.Event {
	return f.events
}

func newTestHandler(t *testing.T) (*Handler, *gin.Engine) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := projects.NewStore("0xowner", nil)
	_, err := store.AddCompany("0xowner", "0xcompany", "Test Company")
	require.NoError(t, err)
	_, err = store.AddProject("0xcompany", "0xcompany", projects.CreateProjectRequest{Name: "Forest", PredictedYield: 10})
	require.NoError(t, err)

	m := &fakeMarket{
		escrow: market.Escrow{ProjectID: 0, SellerCollateral: decimal.RequireFromString("3.9")},
		events: []market.Event{
			{Sequence: 1, Type: market.EventListing, ProjectID: 0, Amount: 3},
			{Sequence: 2, Type: market.EventListing, ProjectID: 5, Amount: 1},
		},
	}

	h := NewHandler(store, m, nil)
	router := gin.New()
	h.RegisterRoutes(router.Group("/api/v1"))
	return h, router
}

func TestStatementFiltersEventsByProject(t *testing.T) {
	h, _ := newTestHandler(t)

	st, err := h.Statement(0)
	require.NoError(t, err)
	assert.Equal(t, "Test Company", st.CompanyName)
	require.Len(t, st.Events, 1)
	assert.Equal(t, uint64(1), st.Events[0].Sequence)

	_, err = h.Statement(4)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestStatementDownload(t *testing.T) {
	_, router := newTestHandler(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/projects/0/statement.xlsx", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, xlsxContentType, w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "project-0-statement.xlsx")

	f, err := excelize.OpenReader(bytes.NewReader(w.Body.Bytes()))
	require.NoError(t, err)
	defer f.Close()
	assert.Contains(t, f.GetSheetList(), "Claims")

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/projects/9/statement.xlsx", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}
