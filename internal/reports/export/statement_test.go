package export

import (
	"bytes"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"carbon-scribe/credit-market/credit-market-backend/internal/market"
	"carbon-scribe/credit-market/credit-market-backend/internal/projects"
	"carbon-scribe/credit-market/credit-market-backend/pkg/workflows"
)

func TestWriteStatement(t *testing.T) {
	created := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)
	st := Statement{
		Project: projects.Project{
			ID:                 3,
			CompanyID:          "0xcompany",
			Name:               "Mangrove Restoration",
			PredictedYield:     10,
			ListedAmount:       3,
			SoldAmount:         1,
			State:              workflows.StateOngoing,
			DaysTillCompletion: 30,
			CreatedAt:          created,
		},
		CompanyName: "Test Company",
		Escrow: market.Escrow{
			ProjectID:        3,
			SellerCollateral: decimal.RequireFromString("3.9"),
			BuyerPayments: []market.Claim{
				{ProjectID: 3, Buyer: "0xbuyer", Amount: 1, Escrowed: decimal.NewFromInt(1)},
			},
		},
		Events: []market.Event{
			{ID: uuid.New(), Sequence: 1, Type: market.EventListing, ProjectID: 3, Amount: 3, Value: decimal.RequireFromString("3.9"), OccurredAt: created},
			{ID: uuid.New(), Sequence: 2, Type: market.EventPurchase, ProjectID: 3, Buyer: "0xbuyer", Amount: 1, Value: decimal.NewFromInt(1), OccurredAt: created},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteStatement(&buf, st))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{"Summary", "Claims", "Events"}, f.GetSheetList())

	name, err := f.GetCellValue("Summary", "B3")
	require.NoError(t, err)
	assert.Equal(t, "Mangrove Restoration", name)

	rows, err := f.GetRows("Claims")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "0xbuyer", rows[1][0])
	assert.Equal(t, "1", rows[1][1])

	rows, err = f.GetRows("Events")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "listing", rows[1][1])
	assert.Equal(t, "purchase", rows[2][1])
}

func TestWriteStatementWithoutTrades(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteStatement(&buf, Statement{
		Project: projects.Project{ID: 0, Name: "Empty", State: workflows.StateCompleted},
		Escrow:  market.Escrow{SellerCollateral: decimal.Zero},
	}))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows("Claims")
	require.NoError(t, err)
	assert.Len(t, rows, 1, "header only")
}
