package audit

import (
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"carbon-scribe/credit-market/credit-market-backend/internal/market"
)

type stubChecker struct {
	calls      atomic.Int32
	violations []market.Violation
}

func (s *stubChecker) Audit() []market.Violation {
	s.calls.Add(1)
	return s.violations
}

func TestNewAuditorRejectsBadSchedule(t *testing.T) {
	_, err := NewAuditor(&stubChecker{}, "not a schedule", nil)
	assert.Error(t, err)

	_, err = NewAuditor(&stubChecker{}, "*/5 * * * *", nil)
	assert.NoError(t, err)

	_, err = NewAuditor(&stubChecker{}, "@every 30s", nil)
	assert.NoError(t, err)
}

func TestRunOnceRecordsReport(t *testing.T) {
	checker := &stubChecker{violations: []market.Violation{
		{ProjectID: 2, Rule: "claims==sold", Detail: "claims 1 != sold 2"},
	}}
	a, err := NewAuditor(checker, "@every 1h", nil)
	require.NoError(t, err)

	assert.True(t, a.LastReport().RanAt.IsZero())

	report := a.RunOnce()
	assert.False(t, report.Healthy())
	assert.Equal(t, report, a.LastReport())
	assert.Equal(t, int32(1), checker.calls.Load())
}

func TestScheduledSweep(t *testing.T) {
	checker := &stubChecker{}
	a, err := NewAuditor(checker, "@every 1s", nil)
	require.NoError(t, err)

	require.NoError(t, a.Start())
	assert.Error(t, a.Start(), "second start must fail")

	assert.Eventually(t, func() bool {
		return checker.calls.Load() > 0
	}, 3*time.Second, 50*time.Millisecond)

	a.Stop()
	assert.True(t, a.LastReport().Healthy())
}

func TestAuditRoutes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	checker := &stubChecker{}
	a, err := NewAuditor(checker, "@every 1h", nil)
	require.NoError(t, err)

	router := gin.New()
	a.RegisterRoutes(router.Group("/api/v1"))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/audit/run", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	checker.violations = []market.Violation{{ProjectID: 1, Rule: "sold<=listed"}}
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/audit/run", nil))
	assert.Equal(t, http.StatusConflict, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/audit", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "sold<=listed")
}
