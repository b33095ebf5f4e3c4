package model

import (
	"time"

	"github.com/google/uuid"
)

// ProcessedEmailRecord is an append-only dedup ledger entry: this source
// message has been fully handled by the ingestion loop for this contractor.
// Writing a record that already exists is a benign no-op.
type ProcessedEmailRecord struct {
	ID              string    `json:"id"`
	UserID          string    `json:"user_id"`
	ConversationID  string    `json:"conversation_id"`
	ContractorID    string    `json:"contractor_id"`
	SourceMessageID string    `json:"source_message_id"`
	ProcessedAt     time.Time `json:"processed_at"`
}

func NewProcessedEmailRecord(userID, conversationID, contractorID, sourceMessageID string) *ProcessedEmailRecord {
	return &ProcessedEmailRecord{
		ID:              uuid.New().String(),
		UserID:          userID,
		ConversationID:  conversationID,
		ContractorID:    contractorID,
		SourceMessageID: sourceMessageID,
		ProcessedAt:     time.Now(),
	}
}
