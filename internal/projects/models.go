package projects

import (
	"time"

	"carbon-scribe/credit-market/credit-market-backend/pkg/workflows"
)

// Project represents a company-run carbon project and its listing counters
type Project struct {
	ID                 int64     `json:"id"`
	CompanyID          string    `json:"company_id"`
	Name               string    `json:"name"`
	Description        string    `json:"description"`
	PredictedYield     int64     `json:"predicted_yield"`
	ListedAmount       int64     `json:"listed_amount"`
	SoldAmount         int64     `json:"sold_amount"`
	State              string    `json:"state"`
	DaysTillCompletion int       `json:"days_till_completion"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// IsOngoing reports whether the project still accepts listings, purchases and validation
func (p Project) IsOngoing() bool {
	return p.State == workflows.StateOngoing
}

// Deadline is the completion date the company declared when registering the project
func (p Project) Deadline() time.Time {
	return p.CreatedAt.AddDate(0, 0, p.DaysTillCompletion)
}

// RemainingListed is the listed capacity buyers can still claim
func (p Project) RemainingListed() int64 {
	return p.ListedAmount - p.SoldAmount
}

// Company is a registered project owner
type Company struct {
	Address    string    `json:"address"`
	Name       string    `json:"name"`
	ProjectIDs []int64   `json:"project_ids"`
	CreatedAt  time.Time `json:"created_at"`
}

// ProjectStatusHistory tracks lifecycle changes
type ProjectStatusHistory struct {
	ProjectID int64     `json:"project_id"`
	Status    string    `json:"status"`
	ChangedAt time.Time `json:"changed_at"`
}

// Requests

type CreateCompanyRequest struct {
	Address string `json:"address" binding:"required"`
	Name    string `json:"name" binding:"required"`
}

type CreateProjectRequest struct {
	Name               string `json:"name" binding:"required"`
	Description        string `json:"description"`
	DaysTillCompletion int    `json:"days_till_completion"`
	PredictedYield     int64  `json:"predicted_yield"`
}
