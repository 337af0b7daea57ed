// Package audit periodically sweeps the market for broken capacity and claim
// invariants and reports what it finds.
package audit

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"carbon-scribe/credit-market/credit-market-backend/internal/market"
)

// Checker is implemented by the settlement engine
type Checker interface {
	Audit() []market.Violation
}

// Report is the outcome of one sweep
type Report struct {
	RanAt      time.Time          `json:"ran_at"`
	Violations []market.Violation `json:"violations"`
}

// Healthy reports whether the sweep found nothing
func (r Report) Healthy() bool {
	return len(r.Violations) == 0
}

// Auditor runs the sweep on a cron schedule
type Auditor struct {
	cron    *cron.Cron
	checker Checker
	spec    string
	logger  *zap.Logger
	now     func() time.Time

	mu      sync.RWMutex
	running bool
	last    Report
}

var parser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// NewAuditor accepts standard five-field expressions, an optional seconds
// field, or descriptors such as "@every 5m".
func NewAuditor(checker Checker, spec string, logger *zap.Logger) (*Auditor, error) {
	if _, err := parser.Parse(spec); err != nil {
		return nil, fmt.Errorf("invalid audit schedule %q: %w", spec, err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Auditor{
		cron:    cron.New(cron.WithParser(parser)),
		checker: checker,
		spec:    spec,
		logger:  logger,
		now:     time.Now,
	}, nil
}

// Start schedules the sweep
func (a *Auditor) Start() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.running {
		return fmt.Errorf("auditor already running")
	}
	if _, err := a.cron.AddFunc(a.spec, func() { a.RunOnce() }); err != nil {
		return fmt.Errorf("failed to schedule audit: %w", err)
	}
	a.cron.Start()
	a.running = true

	a.logger.Info("Invariant auditor started", zap.String("schedule", a.spec))
	return nil
}

// Stop waits for a running sweep to finish
func (a *Auditor) Stop() {
	a.mu.Lock()
	if !a.running {
		a.mu.Unlock()
		return
	}
	a.running = false
	a.mu.Unlock()

	ctx := a.cron.Stop()
	<-ctx.Done()
	a.logger.Info("Invariant auditor stopped")
}

// RunOnce sweeps immediately and records the report
func (a *Auditor) RunOnce() Report {
	report := Report{
		RanAt:      a.now(),
		Violations: a.checker.Audit(),
	}
	if report.Violations == nil {
		report.Violations = []market.Violation{}
	}

	for _, v := range report.Violations {
		a.logger.Error("Market invariant violated",
			zap.Int64("project_id", v.ProjectID),
			zap.String("rule", v.Rule),
			zap.String("detail", v.Detail))
	}
	if report.Healthy() {
		a.logger.Debug("Market invariants hold")
	}

	a.mu.Lock()
	a.last = report
	a.mu.Unlock()
	return report
}

// LastReport returns the most recent sweep, zero if none has run
func (a *Auditor) LastReport() Report {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.last
}

func (a *Auditor) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/audit", a.latest)
	rg.POST("/audit/run", a.run)
}

func (a *Auditor) latest(c *gin.Context) {
	c.JSON(http.StatusOK, a.LastReport())
}

func (a *Auditor) run(c *gin.Context) {
	report := a.RunOnce()
	status := http.StatusOK
	if !report.Healthy() {
		status = http.StatusConflict
	}
	c.JSON(status, report)
}
