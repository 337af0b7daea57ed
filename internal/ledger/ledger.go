// Package ledger keeps credit balances for the fungible carbon credit unit.
package ledger

import (
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"carbon-scribe/credit-market/credit-market-backend/pkg/apperrors"
)

// Grant is one holder's share of a batch mint
type Grant struct {
	Holder string `json:"holder"`
	Amount int64  `json:"amount"`
}

// Ledger maps holders to credit balances. Only the minter may create credits.
type Ledger struct {
	mu          sync.RWMutex
	minter      string
	balances    map[string]int64
	totalSupply int64
	logger      *zap.Logger
}

// NewLedger creates an empty ledger whose credits can only be minted by minter
func NewLedger(minter string, logger *zap.Logger) *Ledger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ledger{
		minter:   minter,
		balances: make(map[string]int64),
		logger:   logger,
	}
}

// Minter returns the address allowed to mint
func (l *Ledger) Minter() string {
	return l.minter
}

// Mint credits amount to holder
func (l *Ledger) Mint(caller, holder string, amount int64) error {
	return l.MintBatch(caller, []Grant{{Holder: holder, Amount: amount}})
}

// MintBatch credits every grant or none of them
func (l *Ledger) MintBatch(caller string, grants []Grant) error {
	if caller != l.minter {
		return fmt.Errorf("only the minter can mint credits: %w", apperrors.ErrUnauthorized)
	}
	for _, g := range grants {
		if g.Holder == "" {
			return fmt.Errorf("mint holder is required: %w", apperrors.ErrInvalidArgument)
		}
		if g.Amount <= 0 {
			return fmt.Errorf("mint %d to %s: %w", g.Amount, g.Holder, apperrors.ErrInvalidAmount)
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	for _, g := range grants {
		l.balances[g.Holder] += g.Amount
		l.totalSupply += g.Amount
		l.logger.Debug("Credits minted",
			zap.String("holder", g.Holder),
			zap.Int64("amount", g.Amount))
	}
	return nil
}

// Burn destroys amount of the holder's credits. Holders burn their own credits.
func (l *Ledger) Burn(caller, holder string, amount int64) error {
	if caller != holder {
		return fmt.Errorf("only %s can burn its credits: %w", holder, apperrors.ErrUnauthorized)
	}
	if amount <= 0 {
		return fmt.Errorf("burn %d: %w", amount, apperrors.ErrInvalidAmount)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.balances[holder] < amount {
		return fmt.Errorf("burn %d with balance %d: %w", amount, l.balances[holder], apperrors.ErrInsufficientBalance)
	}
	l.balances[holder] -= amount
	l.totalSupply -= amount

	l.logger.Info("Credits burned",
		zap.String("holder", holder),
		zap.Int64("amount", amount))
	return nil
}

// Transfer moves amount from the caller's balance to to
func (l *Ledger) Transfer(caller, from, to string, amount int64) error {
	if caller != from {
		return fmt.Errorf("only %s can transfer its credits: %w", from, apperrors.ErrUnauthorized)
	}
	if to == "" {
		return fmt.Errorf("transfer recipient is required: %w", apperrors.ErrInvalidArgument)
	}
	if amount <= 0 {
		return fmt.Errorf("transfer %d: %w", amount, apperrors.ErrInvalidAmount)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.balances[from] < amount {
		return fmt.Errorf("transfer %d with balance %d: %w", amount, l.balances[from], apperrors.ErrInsufficientBalance)
	}
	l.balances[from] -= amount
	l.balances[to] += amount

	l.logger.Info("Credits transferred",
		zap.String("from", from),
		zap.String("to", to),
		zap.Int64("amount", amount))
	return nil
}

// BalanceOf returns the holder's balance, 0 if never credited
func (l *Ledger) BalanceOf(holder string) int64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.balances[holder]
}

// TotalSupply returns the credits in circulation
func (l *Ledger) TotalSupply() int64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.totalSupply
}

// Holders returns every address with a positive balance, sorted
func (l *Ledger) Holders() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]string, 0, len(l.balances))
	for holder, balance := range l.balances {
		if balance > 0 {
			out = append(out, holder)
		}
	}
	sort.Strings(out)
	return out
}
