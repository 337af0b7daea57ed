// Package export renders settlement statements as Excel workbooks.
package export

import (
	"io"

	"carbon-scribe/credit-market/credit-market-backend/internal/market"
	"carbon-scribe/credit-market/credit-market-backend/internal/projects"
)

// Statement is everything recorded about one project's trading and settlement
type Statement struct {
	Project     projects.Project
	CompanyName string
	Escrow      market.Escrow
	Events      []market.Event
}

// WriteStatement writes a Summary, Claims and Events sheet to out
func WriteStatement(out io.Writer, st Statement) error {
	wb, err := NewWorkbook(DefaultExcelOptions())
	if err != nil {
		return err
	}
	defer wb.Close()

	p := st.Project
	summary := [][]any{
		{"Project ID", p.ID},
		{"Project", p.Name},
		{"Company", p.CompanyID},
		{"Company name", st.CompanyName},
		{"State", p.State},
		{"Predicted yield", p.PredictedYield},
		{"Listed", p.ListedAmount},
		{"Sold", p.SoldAmount},
		{"Deadline", p.Deadline()},
		{"Seller collateral", st.Escrow.SellerCollateral},
		{"Escrow total", st.Escrow.Total()},
		{"Released", st.Escrow.Released},
	}
	if err := wb.AddSheet("Summary", []string{"Field", "Value"}, summary); err != nil {
		return err
	}

	claims := make([][]any, 0, len(st.Escrow.BuyerPayments))
	for _, c := range st.Escrow.BuyerPayments {
		claims = append(claims, []any{c.Buyer, c.Amount, c.Escrowed})
	}
	if err := wb.AddSheet("Claims", []string{"Buyer", "Credits", "Escrowed"}, claims); err != nil {
		return err
	}

	events := make([][]any, 0, len(st.Events))
	for _, e := range st.Events {
		events = append(events, []any{e.Sequence, string(e.Type), e.Buyer, e.Amount, e.Value, e.OccurredAt})
	}
	if err := wb.AddSheet("Events", []string{"Sequence", "Type", "Buyer", "Credits", "Value", "Occurred at"}, events); err != nil {
		return err
	}

	_, err = wb.WriteTo(out)
	return err
}
