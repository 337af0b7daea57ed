package journal

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"carbon-scribe/credit-market/credit-market-backend/internal/ledger"
	"carbon-scribe/credit-market/credit-market-backend/internal/market"
	"carbon-scribe/credit-market/credit-market-backend/internal/projects"
	"carbon-scribe/credit-market/credit-market-backend/internal/validators"
)

func TestAggregatorFoldsJournal(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	listing := event(1, market.EventListing, 0)
	listing.Amount = 3

	first := event(2, market.EventPurchase, 0)
	first.Buyer, first.Amount, first.Value = "0xa", 1, decimal.NewFromInt(1)
	second := event(3, market.EventPurchase, 0)
	second.Buyer, second.Amount, second.Value = "0xa", 1, decimal.NewFromInt(1)

	settled := event(4, market.EventSettlement, 0)
	settled.Valid, settled.ActualYield = true, 3

	penalty := event(5, market.EventPenalty, 1)

	for _, e := range []market.Event{listing, first, second, settled, penalty} {
		require.NoError(t, repo.Append(ctx, e))
	}

	agg := NewAggregator(repo, 2, nil)
	n, err := agg.Poll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, uint64(5), agg.Cursor())

	totals := agg.Totals()
	require.Len(t, totals, 2)

	p0 := totals[0]
	assert.Equal(t, int64(3), p0.Listed)
	assert.Equal(t, int64(2), p0.Sold)
	assert.Equal(t, 1, p0.Buyers)
	assert.True(t, p0.Collateral.Equal(decimal.RequireFromString("3.9")))
	assert.True(t, p0.Payments.Equal(decimal.NewFromInt(2)))
	assert.True(t, p0.Settled)
	assert.True(t, p0.Valid)

	p1 := totals[1]
	assert.True(t, p1.Settled)
	assert.False(t, p1.Valid)

	n, err = agg.Poll(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestAggregatorIgnoresReplayedEvents(t *testing.T) {
	agg := NewAggregator(nil, 10, nil)

	e := event(1, market.EventListing, 0)
	e.Amount = 4
	agg.Apply(e)
	agg.Apply(e)

	totals := agg.Totals()
	require.Len(t, totals, 1)
	assert.Equal(t, int64(4), totals[0].Listed)
}

func TestAggregatorKeepsEveryEventBehindSlowSink(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	store := projects.NewStore("0xowner", nil)
	_, err := store.AddCompany("0xowner", "0xcompany", "Test Company")
	require.NoError(t, err)
	for i := 0; i < 2; i++ {
		_, err = store.AddProject("0xcompany", "0xcompany", projects.CreateProjectRequest{Name: "Forest", PredictedYield: 10})
		require.NoError(t, err)
	}
	engine, err := market.NewEngine(market.DefaultConfig("0xengine"), store,
		ledger.NewLedger("0xengine", nil), validators.NewRegistry("0xowner", nil), nil)
	require.NoError(t, err)

	entered := make(chan struct{})
	release := make(chan struct{})
	engine.Subscribe(market.PublisherFunc(func(ctx context.Context, e market.Event) error {
		if e.Sequence == 1 {
			close(entered)
			<-release
		}
		return nil
	}))
	engine.Subscribe(NewRecorder(repo, nil))

	sell := func(id, amount int64) {
		_, err := engine.Sell(ctx, "0xcompany", id, amount, engine.RequiredCollateral(amount))
		assert.NoError(t, err)
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); sell(0, 3) }()
	<-entered
	go func() { defer wg.Done(); sell(1, 5) }()

	assert.Eventually(t, func() bool {
		p, _ := store.GetProject(1)
		return p.ListedAmount == 5
	}, time.Second, 5*time.Millisecond)

	agg := NewAggregator(repo, 10, nil)
	assert.Never(t, func() bool {
		n, err := agg.Poll(ctx)
		return err != nil || n > 0
	}, 50*time.Millisecond, 5*time.Millisecond)
	assert.Zero(t, agg.Cursor())

	close(release)
	wg.Wait()

	n, err := agg.Poll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, uint64(2), agg.Cursor())

	var listed int64
	for _, p := range agg.Totals() {
		listed += p.Listed
	}
	assert.Equal(t, int64(8), listed)
}
