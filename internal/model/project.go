package model

import (
	"time"

	"github.com/google/uuid"
)

// Project is a renovation project owned by a homeowner. Its fields feed the
// conversation prompt as project facts.
type Project struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	Title       string    `json:"title"`
	Address     string    `json:"address"`
	Description string    `json:"description"`
	BudgetLimit float64   `json:"budget_limit"`
	Currency    string    `json:"currency"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func NewProject(userID, title, address, description string, budgetLimit float64, currency string) *Project {
	now := time.Now()
	return &Project{
		ID:          uuid.New().String(),
		UserID:      userID,
		Title:       title,
		Address:     address,
		Description: description,
		BudgetLimit: budgetLimit,
		Currency:    currency,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}
