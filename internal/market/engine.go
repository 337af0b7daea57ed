package market

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"carbon-scribe/credit-market/credit-market-backend/internal/ledger"
	"carbon-scribe/credit-market/credit-market-backend/internal/projects"
	"carbon-scribe/credit-market/credit-market-backend/pkg/apperrors"
	"carbon-scribe/credit-market/credit-market-backend/pkg/workflows"
)

// ProjectStore is the slice of the project registry the engine drives
type ProjectStore interface {
	GetProject(id int64) (projects.Project, error)
	AllProjects() []projects.Project
	SetListed(id, amount int64) error
	SetSold(id, amount int64) error
	Update(id int64, fn func(*projects.Project) error) error
}

// CreditMinter issues credits to buyers at settlement
type CreditMinter interface {
	MintBatch(caller string, grants []ledger.Grant) error
}

// ValidatorSet answers whether an address may attest
type ValidatorSet interface {
	IsValidator(addr string) bool
}

// Config holds the engine's pricing and custody settings
type Config struct {
	// Address is the engine's own identity. It holds escrow and is the
	// ledger's minter.
	Address string
	// UnitPrice is the native-currency price of one credit.
	UnitPrice decimal.Decimal
	// CollateralMarkup scales the sale price into the seller's collateral.
	CollateralMarkup decimal.Decimal
	// PenaltySink receives forfeited seller collateral.
	PenaltySink string
}

// DefaultConfig prices one credit at one native unit with 1.3x collateral
func DefaultConfig(address string) Config {
	return Config{
		Address:          address,
		UnitPrice:        decimal.NewFromInt(1),
		CollateralMarkup: decimal.RequireFromString("1.3"),
		PenaltySink:      address,
	}
}

type book struct {
	buyers     []string
	claims     map[string]int64
	payments   map[string]decimal.Decimal
	collateral decimal.Decimal
	released   bool
}

func newBook() *book {
	return &book{
		claims:   make(map[string]int64),
		payments: make(map[string]decimal.Decimal),
	}
}

// Engine is the settlement engine. It escrows seller collateral and buyer
// payments, records claims, and settles each project exactly once on a
// validator's attestation. All mutating calls are serialized.
type Engine struct {
	mu         sync.Mutex
	cfg        Config
	store      ProjectStore
	credits    CreditMinter
	validators ValidatorSet

	books   map[int64]*book
	payouts map[string]decimal.Decimal
	events  []Event
	seq     uint64

	publishers []Publisher
	metrics    *Metrics

	// dispatched is the highest sequence handed to every publisher.
	// Guarded by dispatchMu; publish waits on dispatchCond for its turn.
	dispatchMu   sync.Mutex
	dispatchCond *sync.Cond
	dispatched   uint64

	logger *zap.Logger
	now    func() time.Time
}

// NewEngine wires the engine to its collaborators
func NewEngine(cfg Config, store ProjectStore, credits CreditMinter, validators ValidatorSet, logger *zap.Logger) (*Engine, error) {
	if cfg.Address == "" {
		return nil, errors.New("engine address is required")
	}
	if !cfg.UnitPrice.IsPositive() {
		return nil, fmt.Errorf("unit price must be positive, got %s", cfg.UnitPrice)
	}
	if !cfg.CollateralMarkup.IsPositive() {
		return nil, fmt.Errorf("collateral markup must be positive, got %s", cfg.CollateralMarkup)
	}
	if cfg.PenaltySink == "" {
		cfg.PenaltySink = cfg.Address
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	e := &Engine{
		cfg:        cfg,
		store:      store,
		credits:    credits,
		validators: validators,
		books:      make(map[int64]*book),
		payouts:    make(map[string]decimal.Decimal),
		logger:     logger,
		now:        time.Now,
	}
	e.dispatchCond = sync.NewCond(&e.dispatchMu)
	return e, nil
}

// Subscribe adds a publisher that receives every committed event
func (e *Engine) Subscribe(p Publisher) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.publishers = append(e.publishers, p)
}

// SetMetrics attaches prometheus counters
func (e *Engine) SetMetrics(m *Metrics) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.metrics = m
}

// Config returns the engine settings
func (e *Engine) Config() Config {
	return e.cfg
}

// Price is what a buyer pays for amount credits
func (e *Engine) Price(amount int64) decimal.Decimal {
	return decimal.NewFromInt(amount).Mul(e.cfg.UnitPrice)
}

// RequiredCollateral is what a company posts to list amount credits
func (e *Engine) RequiredCollateral(amount int64) decimal.Decimal {
	return e.Price(amount).Mul(e.cfg.CollateralMarkup)
}

// Sell lists amount more credits of the caller's project, escrowing collateral
func (e *Engine) Sell(ctx context.Context, caller string, projectID, amount int64, collateral decimal.Decimal) (projects.Project, error) {
	e.mu.Lock()
	project, event, err := e.sell(caller, projectID, amount, collateral)
	metrics := e.metrics
	e.mu.Unlock()

	if err != nil {
		metrics.reject("sell", err)
		e.logger.Warn("Listing rejected",
			zap.String("caller", caller),
			zap.Int64("project_id", projectID),
			zap.Int64("amount", amount),
			zap.Error(err))
		return projects.Project{}, err
	}

	metrics.listing(amount)
	e.logger.Info("Credits listed",
		zap.Int64("project_id", projectID),
		zap.Int64("amount", amount),
		zap.Int64("listed", project.ListedAmount),
		zap.String("collateral", collateral.String()))
	e.publish(ctx, event)
	return project, nil
}

func (e *Engine) sell(caller string, projectID, amount int64, collateral decimal.Decimal) (projects.Project, Event, error) {
	p, err := e.store.GetProject(projectID)
	if err != nil {
		return p, Event{}, err
	}
	if caller != p.CompanyID {
		return p, Event{}, fmt.Errorf("only %s can list project %d: %w", p.CompanyID, projectID, apperrors.ErrUnauthorized)
	}
	if !p.IsOngoing() {
		return p, Event{}, fmt.Errorf("project %d is %s: %w", projectID, p.State, apperrors.ErrInvalidState)
	}
	if amount <= 0 {
		return p, Event{}, fmt.Errorf("listing amount %d: %w", amount, apperrors.ErrInvalidAmount)
	}
	if amount > p.PredictedYield-p.ListedAmount {
		return p, Event{}, fmt.Errorf("listing %d with %d of %d predicted already listed: %w",
			amount, p.ListedAmount, p.PredictedYield, apperrors.ErrOverListed)
	}
	required := e.RequiredCollateral(amount)
	if !collateral.Equal(required) {
		return p, Event{}, fmt.Errorf("collateral %s must equal %s: %w", collateral, required, apperrors.ErrInsufficientCollateral)
	}

	listed := p.ListedAmount + amount
	if err := e.store.SetListed(projectID, listed); err != nil {
		return p, Event{}, err
	}
	p.ListedAmount = listed

	b := e.bookFor(projectID)
	b.collateral = b.collateral.Add(collateral)

	event := e.record(EventListing, p)
	event.Amount = amount
	event.Value = collateral
	e.events[len(e.events)-1] = event
	return p, event, nil
}

// Buy claims amount listed credits of the project for the caller, escrowing payment
func (e *Engine) Buy(ctx context.Context, caller, companyID string, projectID, amount int64, payment decimal.Decimal) (Claim, error) {
	e.mu.Lock()
	claim, event, err := e.buy(caller, companyID, projectID, amount, payment)
	metrics := e.metrics
	e.mu.Unlock()

	if err != nil {
		metrics.reject("buy", err)
		e.logger.Warn("Purchase rejected",
			zap.String("buyer", caller),
			zap.Int64("project_id", projectID),
			zap.Int64("amount", amount),
			zap.Error(err))
		return Claim{}, err
	}

	metrics.purchase(amount)
	e.logger.Info("Credits purchased",
		zap.String("buyer", caller),
		zap.Int64("project_id", projectID),
		zap.Int64("amount", amount),
		zap.Int64("claim", claim.Amount))
	e.publish(ctx, event)
	return claim, nil
}

func (e *Engine) buy(caller, companyID string, projectID, amount int64, payment decimal.Decimal) (Claim, Event, error) {
	if caller == "" {
		return Claim{}, Event{}, fmt.Errorf("buyer is required: %w", apperrors.ErrInvalidArgument)
	}
	p, err := e.companyProject(companyID, projectID)
	if err != nil {
		return Claim{}, Event{}, err
	}
	if !p.IsOngoing() {
		return Claim{}, Event{}, fmt.Errorf("project %d is %s: %w", projectID, p.State, apperrors.ErrInvalidState)
	}
	if amount <= 0 {
		return Claim{}, Event{}, fmt.Errorf("purchase amount %d: %w", amount, apperrors.ErrInvalidAmount)
	}
	if amount > p.RemainingListed() {
		return Claim{}, Event{}, fmt.Errorf("purchase %d with %d listed credits remaining: %w",
			amount, p.RemainingListed(), apperrors.ErrOverSold)
	}
	required := e.Price(amount)
	if !payment.Equal(required) {
		return Claim{}, Event{}, fmt.Errorf("payment %s must equal %s: %w", payment, required, apperrors.ErrIncorrectPayment)
	}

	sold := p.SoldAmount + amount
	if err := e.store.SetSold(projectID, sold); err != nil {
		return Claim{}, Event{}, err
	}
	p.SoldAmount = sold

	b := e.bookFor(projectID)
	if _, seen := b.claims[caller]; !seen {
		b.buyers = append(b.buyers, caller)
	}
	b.claims[caller] += amount
	b.payments[caller] = b.payments[caller].Add(payment)

	event := e.record(EventPurchase, p)
	event.Buyer = caller
	event.Amount = amount
	event.Value = payment
	e.events[len(e.events)-1] = event

	return Claim{
		ProjectID: projectID,
		Buyer:     caller,
		Amount:    b.claims[caller],
		Escrowed:  b.payments[caller],
	}, event, nil
}

// ValidateProject settles the project on a validator's attestation. It is the
// single terminal event for a project: any later call fails with
// ErrAlreadySettled and changes nothing.
func (e *Engine) ValidateProject(ctx context.Context, caller, companyID string, projectID int64, att Attestation) (Settlement, error) {
	e.mu.Lock()
	settlement, event, err := e.validate(caller, companyID, projectID, att)
	metrics := e.metrics
	e.mu.Unlock()

	if err != nil {
		metrics.reject("validate", err)
		e.logger.Warn("Validation rejected",
			zap.String("validator", caller),
			zap.Int64("project_id", projectID),
			zap.Error(err))
		return Settlement{}, err
	}

	var minted int64
	for _, c := range settlement.Minted {
		minted += c.Amount
	}
	metrics.settlement(settlement.Valid, minted)
	e.logger.Info("Project settled",
		zap.Int64("project_id", projectID),
		zap.String("company_id", companyID),
		zap.Bool("valid", settlement.Valid),
		zap.Int64("actual_yield", settlement.ActualYield),
		zap.Int64("minted", minted),
		zap.Int64("residual_yield", settlement.ResidualYield))
	e.publish(ctx, event)
	return settlement, nil
}

func (e *Engine) validate(caller, companyID string, projectID int64, att Attestation) (Settlement, Event, error) {
	if !e.validators.IsValidator(caller) {
		return Settlement{}, Event{}, fmt.Errorf("%s is not a registered validator: %w", caller, apperrors.ErrUnauthorized)
	}
	p, err := e.companyProject(companyID, projectID)
	if err != nil {
		return Settlement{}, Event{}, err
	}
	if !p.IsOngoing() {
		return Settlement{}, Event{}, fmt.Errorf("project %d completed, cannot be validated again: %w", projectID, apperrors.ErrAlreadySettled)
	}
	if att.IsValid() && att.ActualYield() < 0 {
		return Settlement{}, Event{}, fmt.Errorf("actual yield %d: %w", att.ActualYield(), apperrors.ErrInvalidAmount)
	}

	b := e.bookFor(projectID)
	settlement := Settlement{
		ProjectID:           projectID,
		CompanyID:           p.CompanyID,
		Valid:               att.IsValid(),
		ActualYield:         att.ActualYield(),
		ResidualYield:       p.PredictedYield,
		CollateralReleased:  decimal.Zero,
		CollateralForfeited: decimal.Zero,
		ProceedsReleased:    decimal.Zero,
	}

	var grants []ledger.Grant
	if att.IsValid() {
		for _, buyer := range b.buyers {
			if q := b.claims[buyer]; q > 0 {
				grants = append(grants, ledger.Grant{Holder: buyer, Amount: q})
				settlement.Minted = append(settlement.Minted, Claim{
					ProjectID: projectID,
					Buyer:     buyer,
					Amount:    q,
					Escrowed:  b.payments[buyer],
				})
			}
		}
		settlement.ResidualYield = att.ActualYield() - p.SoldAmount
		if settlement.ResidualYield < 0 {
			e.logger.Warn("Actual yield below sold amount, treating surplus as zero",
				zap.Int64("project_id", projectID),
				zap.Int64("actual_yield", att.ActualYield()),
				zap.Int64("sold", p.SoldAmount))
			settlement.ResidualYield = 0
		}
	}

	// Minting runs last inside the store update so a ledger failure leaves
	// the project Ongoing and the escrow untouched.
	err = e.store.Update(projectID, func(next *projects.Project) error {
		next.State = workflows.StateCompleted
		if att.IsValid() {
			next.PredictedYield = settlement.ResidualYield
			if len(grants) > 0 {
				return e.credits.MintBatch(e.cfg.Address, grants)
			}
		}
		return nil
	})
	if err != nil {
		return Settlement{}, Event{}, fmt.Errorf("settle project %d: %w", projectID, err)
	}

	if att.IsValid() {
		proceeds := decimal.Zero
		for _, buyer := range b.buyers {
			proceeds = proceeds.Add(b.payments[buyer])
		}
		settlement.CollateralReleased = b.collateral
		settlement.ProceedsReleased = proceeds
		e.credit(p.CompanyID, b.collateral.Add(proceeds))
	} else {
		settlement.CollateralForfeited = b.collateral
		e.credit(e.cfg.PenaltySink, b.collateral)
		for _, buyer := range b.buyers {
			if paid := b.payments[buyer]; paid.IsPositive() {
				settlement.Refunded = append(settlement.Refunded, Claim{
					ProjectID: projectID,
					Buyer:     buyer,
					Amount:    b.claims[buyer],
					Escrowed:  paid,
				})
				e.credit(buyer, paid)
			}
		}
	}
	b.released = true

	p.State = workflows.StateCompleted
	var event Event
	if att.IsValid() {
		event = e.record(EventSettlement, p)
		event.Valid = true
		event.Value = settlement.CollateralReleased.Add(settlement.ProceedsReleased)
	} else {
		event = e.record(EventPenalty, p)
		event.Value = settlement.CollateralForfeited
	}
	event.ActualYield = att.ActualYield()
	e.events[len(e.events)-1] = event

	return settlement, event, nil
}

// GetProjectBuyers returns the project's buyers in first-purchase order
func (e *Engine) GetProjectBuyers(projectID int64) ([]string, error) {
	if _, err := e.store.GetProject(projectID); err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	b, ok := e.books[projectID]
	if !ok {
		return []string{}, nil
	}
	return append([]string{}, b.buyers...), nil
}

// GetBuyerClaim returns the credits buyer has claimed from the project
func (e *Engine) GetBuyerClaim(projectID int64, buyer string) (int64, error) {
	if _, err := e.store.GetProject(projectID); err != nil {
		return 0, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if b, ok := e.books[projectID]; ok {
		return b.claims[buyer], nil
	}
	return 0, nil
}

// Claims returns every claim on the project in first-purchase order
func (e *Engine) Claims(projectID int64) ([]Claim, error) {
	escrow, err := e.Escrow(projectID)
	if err != nil {
		return nil, err
	}
	return escrow.BuyerPayments, nil
}

// Escrow returns the value recorded for the project. Released reports whether
// it has been paid out by settlement.
func (e *Engine) Escrow(projectID int64) (Escrow, error) {
	if _, err := e.store.GetProject(projectID); err != nil {
		return Escrow{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	out := Escrow{
		ProjectID:        projectID,
		SellerCollateral: decimal.Zero,
		BuyerPayments:    []Claim{},
	}
	b, ok := e.books[projectID]
	if !ok {
		return out, nil
	}
	out.SellerCollateral = b.collateral
	out.Released = b.released
	for _, buyer := range b.buyers {
		out.BuyerPayments = append(out.BuyerPayments, Claim{
			ProjectID: projectID,
			Buyer:     buyer,
			Amount:    b.claims[buyer],
			Escrowed:  b.payments[buyer],
		})
	}
	return out, nil
}

// Payout returns the native value settlement has released to addr
func (e *Engine) Payout(addr string) decimal.Decimal {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.payouts[addr]
}

// Payouts returns every payout account
func (e *Engine) Payouts() map[string]decimal.Decimal {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make(map[string]decimal.Decimal, len(e.payouts))
	for addr, v := range e.payouts {
		out[addr] = v
	}
	return out
}

// Events returns committed events with a sequence above after, oldest first
func (e *Engine) Events(after uint64) []Event {
	e.mu.Lock()
	defer e.mu.Unlock()

	idx := sort.Search(len(e.events), func(i int) bool {
		return e.events[i].Sequence > after
	})
	return append([]Event{}, e.events[idx:]...)
}

// Audit checks the capacity and claim invariants of every project.
// Completed projects are exempt from listed <= predicted because settlement
// replaces the prediction with the residual surplus.
func (e *Engine) Audit() []Violation {
	e.mu.Lock()
	defer e.mu.Unlock()

	var violations []Violation
	for _, p := range e.store.AllProjects() {
		if p.SoldAmount > p.ListedAmount {
			violations = append(violations, Violation{
				ProjectID: p.ID,
				Rule:      "sold<=listed",
				Detail:    fmt.Sprintf("sold %d > listed %d", p.SoldAmount, p.ListedAmount),
			})
		}
		if p.IsOngoing() && p.ListedAmount > p.PredictedYield {
			violations = append(violations, Violation{
				ProjectID: p.ID,
				Rule:      "listed<=predicted",
				Detail:    fmt.Sprintf("listed %d > predicted %d", p.ListedAmount, p.PredictedYield),
			})
		}
		var claimed int64
		if b, ok := e.books[p.ID]; ok {
			for _, q := range b.claims {
				claimed += q
			}
		}
		if claimed != p.SoldAmount {
			violations = append(violations, Violation{
				ProjectID: p.ID,
				Rule:      "claims==sold",
				Detail:    fmt.Sprintf("claims %d != sold %d", claimed, p.SoldAmount),
			})
		}
	}
	return violations
}

func (e *Engine) companyProject(companyID string, projectID int64) (projects.Project, error) {
	p, err := e.store.GetProject(projectID)
	if err != nil {
		return p, err
	}
	if p.CompanyID != companyID {
		return p, fmt.Errorf("project %d of company %s: %w", projectID, companyID, apperrors.ErrNotFound)
	}
	return p, nil
}

func (e *Engine) bookFor(projectID int64) *book {
	b, ok := e.books[projectID]
	if !ok {
		b = newBook()
		e.books[projectID] = b
	}
	return b
}

func (e *Engine) credit(addr string, value decimal.Decimal) {
	if !value.IsPositive() {
		return
	}
	e.payouts[addr] = e.payouts[addr].Add(value)
}

// record appends a new event to the log and returns it for the caller to fill in
func (e *Engine) record(t EventType, p projects.Project) Event {
	e.seq++
	event := Event{
		ID:         uuid.New(),
		Sequence:   e.seq,
		Type:       t,
		ProjectID:  p.ID,
		CompanyID:  p.CompanyID,
		Value:      decimal.Zero,
		OccurredAt: e.now(),
	}
	e.events = append(e.events, event)
	return event
}

// publish hands event to every publisher in sequence order. A caller whose
// event is not next waits until the earlier ones have been delivered, so
// publishers never see sequence N+1 before N. The engine lock is not held
// while waiting or delivering.
func (e *Engine) publish(ctx context.Context, event Event) {
	e.dispatchMu.Lock()
	for e.dispatched+1 != event.Sequence {
		e.dispatchCond.Wait()
	}
	e.dispatchMu.Unlock()

	defer func() {
		e.dispatchMu.Lock()
		e.dispatched = event.Sequence
		e.dispatchCond.Broadcast()
		e.dispatchMu.Unlock()
	}()

	e.mu.Lock()
	publishers := append([]Publisher(nil), e.publishers...)
	e.mu.Unlock()

	for _, p := range publishers {
		if err := p.Publish(ctx, event); err != nil {
			e.logger.Error("Failed to publish market event",
				zap.String("event_id", event.ID.String()),
				zap.String("type", string(event.Type)),
				zap.Uint64("sequence", event.Sequence),
				zap.Error(err))
		}
	}
}
