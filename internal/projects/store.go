package projects

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"carbon-scribe/credit-market/credit-market-backend/pkg/apperrors"
	"carbon-scribe/credit-market/credit-market-backend/pkg/workflows"
)

// Store is the owner-gated company registry and project record store.
// Lifecycle fields are only mutated through the engine-facing mutators.
type Store struct {
	mu           sync.RWMutex
	owner        string
	companies    map[string]*Company
	projects     []*Project
	history      map[int64][]ProjectStatusHistory
	stateMachine *workflows.StateMachine
	logger       *zap.Logger
	now          func() time.Time
}

// NewStore creates a store administered by owner
func NewStore(owner string, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		owner:        owner,
		companies:    make(map[string]*Company),
		history:      make(map[int64][]ProjectStatusHistory),
		stateMachine: workflows.NewStateMachine(),
		logger:       logger,
		now:          time.Now,
	}
}

// Owner returns the registry owner address
func (s *Store) Owner() string {
	return s.owner
}

// AddCompany registers a company. Only the registry owner may call it.
func (s *Store) AddCompany(caller, address, name string) (*Company, error) {
	if caller != s.owner {
		return nil, fmt.Errorf("only the registry owner can add companies: %w", apperrors.ErrUnauthorized)
	}
	address = strings.TrimSpace(address)
	if address == "" {
		return nil, fmt.Errorf("company address is required: %w", apperrors.ErrInvalidArgument)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.companies[address]; exists {
		return nil, fmt.Errorf("company %s: %w", address, apperrors.ErrDuplicateCompany)
	}

	company := &Company{
		Address:    address,
		Name:       name,
		ProjectIDs: []int64{},
		CreatedAt:  s.now(),
	}
	s.companies[address] = company

	s.logger.Info("Company registered",
		zap.String("company_id", address),
		zap.String("name", name))

	return cloneCompany(company), nil
}

// AddProject appends a new ongoing project to the company. The caller must be
// the company's registered address.
func (s *Store) AddProject(caller, companyID string, req CreateProjectRequest) (*Project, error) {
	if req.Name == "" {
		return nil, fmt.Errorf("name is required: %w", apperrors.ErrInvalidArgument)
	}
	if req.PredictedYield < 0 {
		return nil, fmt.Errorf("predicted yield %d: %w", req.PredictedYield, apperrors.ErrInvalidAmount)
	}
	if req.DaysTillCompletion < 0 {
		return nil, fmt.Errorf("days till completion %d: %w", req.DaysTillCompletion, apperrors.ErrInvalidArgument)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	company, ok := s.companies[companyID]
	if !ok {
		return nil, fmt.Errorf("company %s: %w", companyID, apperrors.ErrNotFound)
	}
	if caller != company.Address {
		return nil, fmt.Errorf("only %s can add projects to its registry: %w", companyID, apperrors.ErrUnauthorized)
	}

	now := s.now()
	project := &Project{
		ID:                 int64(len(s.projects)),
		CompanyID:          company.Address,
		Name:               req.Name,
		Description:        req.Description,
		PredictedYield:     req.PredictedYield,
		State:              workflows.StateOngoing,
		DaysTillCompletion: req.DaysTillCompletion,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	s.projects = append(s.projects, project)
	company.ProjectIDs = append(company.ProjectIDs, project.ID)
	s.history[project.ID] = append(s.history[project.ID], ProjectStatusHistory{
		ProjectID: project.ID,
		Status:    project.State,
		ChangedAt: now,
	})

	s.logger.Info("Project created",
		zap.Int64("project_id", project.ID),
		zap.String("company_id", company.Address),
		zap.Int64("predicted_yield", project.PredictedYield))

	p := *project
	return &p, nil
}

// GetProject returns a copy of the project record
func (s *Store) GetProject(id int64) (Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, err := s.lookup(id)
	if err != nil {
		return Project{}, err
	}
	return *p, nil
}

// GetCompany returns a copy of the company record
func (s *Store) GetCompany(address string) (*Company, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	company, ok := s.companies[address]
	if !ok {
		return nil, fmt.Errorf("company %s: %w", address, apperrors.ErrNotFound)
	}
	return cloneCompany(company), nil
}

// CompanyName returns the display name of a registered company
func (s *Store) CompanyName(address string) (string, error) {
	company, err := s.GetCompany(address)
	if err != nil {
		return "", err
	}
	return company.Name, nil
}

// NumProjects returns the number of projects across all companies
func (s *Store) NumProjects() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.projects)
}

// ListProjects returns the company's projects in creation order
func (s *Store) ListProjects(companyID string) ([]Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	company, ok := s.companies[companyID]
	if !ok {
		return nil, fmt.Errorf("company %s: %w", companyID, apperrors.ErrNotFound)
	}
	out := make([]Project, 0, len(company.ProjectIDs))
	for _, id := range company.ProjectIDs {
		out = append(out, *s.projects[id])
	}
	return out, nil
}

// AllProjects returns every project in id order
func (s *Store) AllProjects() []Project {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Project, 0, len(s.projects))
	for _, p := range s.projects {
		out = append(out, *p)
	}
	return out
}

// StatusHistory returns the lifecycle changes recorded for a project
func (s *Store) StatusHistory(id int64) ([]ProjectStatusHistory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, err := s.lookup(id); err != nil {
		return nil, err
	}
	out := make([]ProjectStatusHistory, len(s.history[id]))
	copy(out, s.history[id])
	return out, nil
}

// Mutators below carry no caller: authorization happens in the settlement
// engine before it delegates here.

// SetListed sets the listed amount
func (s *Store) SetListed(id, amount int64) error {
	return s.Update(id, func(p *Project) error {
		p.ListedAmount = amount
		return nil
	})
}

// SetSold sets the sold amount
func (s *Store) SetSold(id, amount int64) error {
	return s.Update(id, func(p *Project) error {
		p.SoldAmount = amount
		return nil
	})
}

// SetPredictedYield overwrites the predicted yield
func (s *Store) SetPredictedYield(id, value int64) error {
	return s.Update(id, func(p *Project) error {
		p.PredictedYield = value
		return nil
	})
}

// SetState moves the project through the lifecycle state machine
func (s *Store) SetState(id int64, state string) error {
	return s.Update(id, func(p *Project) error {
		p.State = state
		return nil
	})
}

// Update applies fn to a copy of the project and commits it only when fn
// succeeds and any state change is an allowed transition. Several fields can
// therefore change in one step without exposing an intermediate record.
func (s *Store) Update(id int64, fn func(*Project) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.lookup(id)
	if err != nil {
		return err
	}

	next := *current
	if err := fn(&next); err != nil {
		return err
	}
	next.ID = current.ID
	next.CompanyID = current.CompanyID
	next.Name = current.Name
	next.Description = current.Description
	next.CreatedAt = current.CreatedAt

	if next.State != current.State {
		if !s.stateMachine.CanTransition(current.State, next.State) {
			return fmt.Errorf("project %d %s -> %s: %w", id, current.State, next.State, apperrors.ErrInvalidTransition)
		}
	}

	next.UpdatedAt = s.now()
	if next.State != current.State {
		s.history[id] = append(s.history[id], ProjectStatusHistory{
			ProjectID: id,
			Status:    next.State,
			ChangedAt: next.UpdatedAt,
		})
		s.logger.Info("Project status changed",
			zap.Int64("project_id", id),
			zap.String("from", current.State),
			zap.String("to", next.State))
	}
	*current = next
	return nil
}

func (s *Store) lookup(id int64) (*Project, error) {
	if id < 0 || id >= int64(len(s.projects)) {
		return nil, fmt.Errorf("project %d: %w", id, apperrors.ErrNotFound)
	}
	return s.projects[id], nil
}

func cloneCompany(c *Company) *Company {
	out := *c
	out.ProjectIDs = append([]int64(nil), c.ProjectIDs...)
	return &out
}
