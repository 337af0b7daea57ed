package journal

import (
	"context"
	"sort"
	"sync"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"carbon-scribe/credit-market/credit-market-backend/internal/market"
)

// ProjectTotals is a project's trading history folded from its journal events
type ProjectTotals struct {
	ProjectID    int64           `json:"project_id"`
	CompanyID    string          `json:"company_id"`
	Listed       int64           `json:"listed"`
	Sold         int64           `json:"sold"`
	Collateral   decimal.Decimal `json:"collateral"`
	Payments     decimal.Decimal `json:"payments"`
	Buyers       int             `json:"buyers"`
	Settled      bool            `json:"settled"`
	Valid        bool            `json:"valid"`
	ActualYield  int64           `json:"actual_yield"`
	LastSequence uint64          `json:"last_sequence"`
}

// Aggregator tails the journal and keeps per-project totals
type Aggregator struct {
	repo      Repository
	batchSize int
	logger    *zap.Logger

	mu     sync.RWMutex
	cursor uint64
	totals map[int64]*ProjectTotals
	buyers map[int64]map[string]bool
}

func NewAggregator(repo Repository, batchSize int, logger *zap.Logger) *Aggregator {
	if batchSize <= 0 {
		batchSize = 100
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Aggregator{
		repo:      repo,
		batchSize: batchSize,
		logger:    logger,
		totals:    make(map[int64]*ProjectTotals),
		buyers:    make(map[int64]map[string]bool),
	}
}

// Poll reads every event past the cursor and returns how many were applied
func (a *Aggregator) Poll(ctx context.Context) (int, error) {
	applied := 0
	for {
		events, err := a.repo.ListSince(ctx, a.Cursor(), a.batchSize)
		if err != nil {
			return applied, err
		}
		for _, e := range events {
			a.Apply(e)
		}
		applied += len(events)
		if len(events) < a.batchSize {
			return applied, nil
		}
	}
}

// Apply folds one event in. Events at or below the cursor are ignored.
func (a *Aggregator) Apply(e market.Event) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if e.Sequence <= a.cursor {
		return
	}
	a.cursor = e.Sequence

	t, ok := a.totals[e.ProjectID]
	if !ok {
		t = &ProjectTotals{
			ProjectID:  e.ProjectID,
			CompanyID:  e.CompanyID,
			Collateral: decimal.Zero,
			Payments:   decimal.Zero,
		}
		a.totals[e.ProjectID] = t
		a.buyers[e.ProjectID] = make(map[string]bool)
	}
	t.LastSequence = e.Sequence

	switch e.Type {
	case market.EventListing:
		t.Listed += e.Amount
		t.Collateral = t.Collateral.Add(e.Value)
	case market.EventPurchase:
		t.Sold += e.Amount
		t.Payments = t.Payments.Add(e.Value)
		a.buyers[e.ProjectID][e.Buyer] = true
		t.Buyers = len(a.buyers[e.ProjectID])
	case market.EventSettlement, market.EventPenalty:
		t.Settled = true
		t.Valid = e.Valid
		t.ActualYield = e.ActualYield
	default:
		a.logger.Warn("Unknown journal event type",
			zap.String("type", string(e.Type)),
			zap.Uint64("sequence", e.Sequence))
	}
}

// Cursor is the highest sequence applied
func (a *Aggregator) Cursor() uint64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.cursor
}

// Totals returns a snapshot ordered by project id
func (a *Aggregator) Totals() []ProjectTotals {
	a.mu.RLock()
	defer a.mu.RUnlock()

	out := make([]ProjectTotals, 0, len(a.totals))
	for _, t := range a.totals {
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProjectID < out[j].ProjectID })
	return out
}
