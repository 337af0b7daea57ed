package market

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"carbon-scribe/credit-market/credit-market-backend/internal/auth"
)

type testServer struct {
	*fixture
	router *gin.Engine
	auth   *auth.Authenticator
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	f := newFixture(t)
	authenticator := auth.NewAuthenticator("test-secret", time.Hour)

	router := gin.New()
	v1 := router.Group("/api/v1")
	NewHandler(f.engine, nil).RegisterRoutes(v1, auth.NewHandler(authenticator).RequireCaller())

	return &testServer{fixture: f, router: router, auth: authenticator}
}

func (s *testServer) do(t *testing.T, method, path, caller string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if caller != "" {
		token, err := s.auth.IssueToken(caller)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func TestHandlerTradeAndSettle(t *testing.T) {
	s := newTestServer(t)
	s.project(t, 10)

	w := s.do(t, http.MethodPost, "/api/v1/projects/0/listings", company, map[string]any{
		"amount": 3, "collateral": "3.9",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = s.do(t, http.MethodPost, "/api/v1/projects/0/purchases", buyer, map[string]any{
		"company_id": company, "amount": 1, "payment": "1",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = s.do(t, http.MethodGet, "/api/v1/projects/0/buyers", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var buyers []string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &buyers))
	assert.Equal(t, []string{buyer}, buyers)

	w = s.do(t, http.MethodPost, "/api/v1/projects/0/validation", validator, map[string]any{
		"company_id": company, "valid": true, "actual_yield": 3,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var settlement Settlement
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &settlement))
	assert.True(t, settlement.Valid)
	assert.Equal(t, int64(2), settlement.ResidualYield)
	assert.Equal(t, int64(1), s.ledger.BalanceOf(buyer))

	w = s.do(t, http.MethodPost, "/api/v1/projects/0/validation", validator, map[string]any{
		"company_id": company, "valid": true, "actual_yield": 3,
	})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "ALREADY_SETTLED")
}

func TestHandlerMapsEngineErrors(t *testing.T) {
	s := newTestServer(t)
	s.project(t, 10)

	w := s.do(t, http.MethodPost, "/api/v1/projects/0/listings", company, map[string]any{
		"amount": 3, "collateral": "3",
	})
	assert.Equal(t, http.StatusPaymentRequired, w.Code)
	assert.Contains(t, w.Body.String(), "INSUFFICIENT_COLLATERAL")

	w = s.do(t, http.MethodPost, "/api/v1/projects/0/listings", other, map[string]any{
		"amount": 3, "collateral": "3.9",
	})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(t, http.MethodPost, "/api/v1/projects/0/purchases", buyer, map[string]any{
		"company_id": company, "amount": 1, "payment": "1",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, w.Body.String(), "OVER_SOLD")

	w = s.do(t, http.MethodGet, "/api/v1/projects/9/escrow", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, http.MethodGet, "/api/v1/projects/abc/buyers", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandlerRequiresToken(t *testing.T) {
	s := newTestServer(t)
	s.project(t, 10)

	w := s.do(t, http.MethodPost, "/api/v1/projects/0/listings", "", map[string]any{
		"amount": 3, "collateral": "3.9",
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	p, _ := s.store.GetProject(0)
	assert.Zero(t, p.ListedAmount)
}

func TestHandlerQuote(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodGet, "/api/v1/quote?amount=10", "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Payment    string `json:"payment"`
		Collateral string `json:"collateral"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "10", body.Payment)
	assert.Equal(t, "13", body.Collateral)

	w = s.do(t, http.MethodGet, "/api/v1/quote?amount=-1", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandlerEventsAndPayouts(t *testing.T) {
	s := newTestServer(t)
	id := s.project(t, 10)
	s.list(t, id, 2)
	s.buy(t, buyer, id, 2)
	_, err := s.engine.ValidateProject(context.Background(), validator, company, id, Invalid(0))
	require.NoError(t, err)

	w := s.do(t, http.MethodGet, "/api/v1/events?after=1", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var events []Event
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &events))
	require.Len(t, events, 2)
	assert.Equal(t, EventPurchase, events[0].Type)
	assert.Equal(t, EventPenalty, events[1].Type)

	w = s.do(t, http.MethodGet, "/api/v1/payouts/"+buyer, "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"amount":"2"`)

	w = s.do(t, http.MethodGet, "/api/v1/events?after=x", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandlerTagsEveryBadInput(t *testing.T) {
	s := newTestServer(t)
	s.project(t, 10)

	tests := []struct {
		name   string
		method string
		path   string
		caller string
		body   any
		code   string
	}{
		{"zero listing", http.MethodPost, "/api/v1/projects/0/listings", company,
			map[string]any{"amount": 0, "collateral": "0"}, "INVALID_AMOUNT"},
		{"negative listing", http.MethodPost, "/api/v1/projects/0/listings", company,
			map[string]any{"amount": -2, "collateral": "0"}, "INVALID_AMOUNT"},
		{"zero purchase", http.MethodPost, "/api/v1/projects/0/purchases", buyer,
			map[string]any{"company_id": company, "amount": 0, "payment": "0"}, "INVALID_AMOUNT"},
		{"malformed body", http.MethodPost, "/api/v1/projects/0/listings", company,
			"not an object", "INVALID_ARGUMENT"},
		{"missing company", http.MethodPost, "/api/v1/projects/0/purchases", buyer,
			map[string]any{"amount": 1, "payment": "1"}, "INVALID_ARGUMENT"},
		{"bad id", http.MethodGet, "/api/v1/projects/abc/escrow", "", nil, "INVALID_ARGUMENT"},
		{"zero quote", http.MethodGet, "/api/v1/quote?amount=0", "", nil, "INVALID_AMOUNT"},
		{"non-numeric quote", http.MethodGet, "/api/v1/quote?amount=ten", "", nil, "INVALID_ARGUMENT"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do(t, tt.method, tt.path, tt.caller, tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)

			var body struct {
				Error string `json:"error"`
				Code  string `json:"code"`
			}
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, tt.code, body.Code)
			assert.NotEmpty(t, body.Error)
		})
	}

	p, _ := s.store.GetProject(0)
	assert.Zero(t, p.ListedAmount)
}
