package market

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Attestation is a validator's declared outcome for a project. It is taken as
// ground truth: the engine acts on it and never recomputes it.
type Attestation struct {
	valid       bool
	actualYield int64
}

// Valid attests that the project produced actualYield credits
func Valid(actualYield int64) Attestation {
	return Attestation{valid: true, actualYield: actualYield}
}

// Invalid rejects the project's claim. actualYield is recorded but not used.
func Invalid(actualYield int64) Attestation {
	return Attestation{valid: false, actualYield: actualYield}
}

func (a Attestation) IsValid() bool      { return a.valid }
func (a Attestation) ActualYield() int64 { return a.actualYield }

// EventType identifies a market notification
type EventType string

const (
	EventListing    EventType = "listing"
	EventPurchase   EventType = "purchase"
	EventSettlement EventType = "settlement"
	EventPenalty    EventType = "penalty"
)

// Event is a notification observable by auditors and indexers. Each event
// carries enough to reconstruct the settlement outcome without reading state.
type Event struct {
	ID          uuid.UUID       `json:"id" db:"id"`
	Sequence    uint64          `json:"sequence" db:"sequence"`
	Type        EventType       `json:"type" db:"type"`
	ProjectID   int64           `json:"project_id" db:"project_id"`
	CompanyID   string          `json:"company_id" db:"company_id"`
	Buyer       string          `json:"buyer,omitempty" db:"buyer"`
	Amount      int64           `json:"amount,omitempty" db:"amount"`
	Valid       bool            `json:"valid" db:"valid"`
	ActualYield int64           `json:"actual_yield,omitempty" db:"actual_yield"`
	Value       decimal.Decimal `json:"value" db:"value"`
	OccurredAt  time.Time       `json:"occurred_at" db:"occurred_at"`
}

// Publisher receives committed market events
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// PublisherFunc adapts a function to Publisher
type PublisherFunc func(ctx context.Context, event Event) error

func (f PublisherFunc) Publish(ctx context.Context, event Event) error {
	return f(ctx, event)
}

// Claim is a buyer's recorded purchase from a project, pending settlement
type Claim struct {
	ProjectID int64           `json:"project_id"`
	Buyer     string          `json:"buyer"`
	Amount    int64           `json:"amount"`
	Escrowed  decimal.Decimal `json:"escrowed"`
}

// Escrow is the value the engine holds for one project
type Escrow struct {
	ProjectID        int64           `json:"project_id"`
	SellerCollateral decimal.Decimal `json:"seller_collateral"`
	BuyerPayments    []Claim         `json:"buyer_payments"`
	Released         bool            `json:"released"`
}

// Total is the collateral plus every buyer payment still held
func (e Escrow) Total() decimal.Decimal {
	total := e.SellerCollateral
	for _, c := range e.BuyerPayments {
		total = total.Add(c.Escrowed)
	}
	return total
}

// Settlement summarises the effect of a validation
type Settlement struct {
	ProjectID           int64           `json:"project_id"`
	CompanyID           string          `json:"company_id"`
	Valid               bool            `json:"valid"`
	ActualYield         int64           `json:"actual_yield"`
	Minted              []Claim         `json:"minted,omitempty"`
	ResidualYield       int64           `json:"residual_yield"`
	CollateralReleased  decimal.Decimal `json:"collateral_released"`
	CollateralForfeited decimal.Decimal `json:"collateral_forfeited"`
	ProceedsReleased    decimal.Decimal `json:"proceeds_released"`
	Refunded            []Claim         `json:"refunded,omitempty"`
}

// Violation is a broken capacity or claim invariant found by Audit
type Violation struct {
	ProjectID int64  `json:"project_id"`
	Rule      string `json:"rule"`
	Detail    string `json:"detail"`
}
