package model

import (
	"time"

	"github.com/google/uuid"
)

type Contractor struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Trade     string    `json:"trade"`
	Notes     string    `json:"notes"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func NewContractor(name, email, trade, notes string) *Contractor {
	now := time.Now()
	return &Contractor{
		ID:        uuid.New().String(),
		Name:      name,
		Email:     email,
		Trade:     trade,
		Notes:     notes,
		CreatedAt: now,
		UpdatedAt: now,
	}
}
