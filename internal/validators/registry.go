// Package validators is the owner-controlled allow-list of addresses that may
// attest to a project's actual yield.
package validators

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"carbon-scribe/credit-market/credit-market-backend/pkg/apperrors"
)

type Registry struct {
	mu         sync.RWMutex
	owner      string
	validators map[string]struct{}
	logger     *zap.Logger
}

func NewRegistry(owner string, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		owner:      owner,
		validators: make(map[string]struct{}),
		logger:     logger,
	}
}

// AddValidator authorizes addr. Adding an existing validator is a no-op.
func (r *Registry) AddValidator(caller, addr string) error {
	if caller != r.owner {
		return fmt.Errorf("only the registry owner can add validators: %w", apperrors.ErrUnauthorized)
	}
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return fmt.Errorf("validator address is required: %w", apperrors.ErrInvalidArgument)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.validators[addr] = struct{}{}
	r.logger.Info("Validator added", zap.String("validator", addr))
	return nil
}

// RemoveValidator revokes addr. Removing an unknown address is a no-op.
func (r *Registry) RemoveValidator(caller, addr string) error {
	if caller != r.owner {
		return fmt.Errorf("only the registry owner can remove validators: %w", apperrors.ErrUnauthorized)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.validators, addr)
	r.logger.Info("Validator removed", zap.String("validator", addr))
	return nil
}

func (r *Registry) IsValidator(addr string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.validators[addr]
	return ok
}

// List returns the registered validators, sorted
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.validators))
	for addr := range r.validators {
		out = append(out, addr)
	}
	sort.Strings(out)
	return out
}
