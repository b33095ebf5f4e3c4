package model

import (
	"time"

	"github.com/google/uuid"
)

// Conversation is the message thread between a project and one contractor.
// Created on first contact, deactivated instead of deleted.
type Conversation struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	ProjectID    string    `json:"project_id"`
	ContractorID string    `json:"contractor_id"`
	Active       bool      `json:"active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func NewConversation(userID, projectID, contractorID string) *Conversation {
	now := time.Now()
	return &Conversation{
		ID:           uuid.New().String(),
		UserID:       userID,
		ProjectID:    projectID,
		ContractorID: contractorID,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}
