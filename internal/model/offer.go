package model

import (
	"time"

	"github.com/google/uuid"
)

// Offer is a structured price offer extracted from contractor correspondence.
// SourceMessageID is globally unique: at most one offer may ever be created
// per mail message. Offers are immutable after creation; re-analysis produces
// a new OfferAnalysis instead.
type Offer struct {
	ID                   string    `json:"id"`
	ConversationID       string    `json:"conversation_id"`
	ContractorID         string    `json:"contractor_id"`
	SourceMessageID      string    `json:"source_message_id"`
	TotalPrice           float64   `json:"total_price"`
	Currency             string    `json:"currency"`
	TimelineStart        string    `json:"timeline_start"`
	TimelineEnd          string    `json:"timeline_end"`
	TimelineDurationDays int       `json:"timeline_duration_days"`
	ScopeText            string    `json:"scope_text"`
	PaymentTerms         string    `json:"payment_terms"`
	Warranty             string    `json:"warranty"`
	HasInsurance         bool      `json:"has_insurance"`
	HasCostBreakdown     bool      `json:"has_cost_breakdown"`
	RiskScore            int       `json:"risk_score"`
	RawExtract           string    `json:"raw_extract"`
	CreatedAt            time.Time `json:"created_at"`
}

func NewOffer(conversationID, contractorID, sourceMessageID string) *Offer {
	return &Offer{
		ID:              uuid.New().String(),
		ConversationID:  conversationID,
		ContractorID:    contractorID,
		SourceMessageID: sourceMessageID,
		CreatedAt:       time.Now(),
	}
}

type AnalysisType string

const (
	AnalysisSingle     AnalysisType = "single"
	AnalysisComparison AnalysisType = "comparison"
)

// OfferAnalysis is a derived artifact over one primary offer, optionally
// compared against offers from other contractors. Never mutated.
type OfferAnalysis struct {
	ID               string       `json:"id"`
	ConversationID   string       `json:"conversation_id"`
	PrimaryOfferID   string       `json:"primary_offer_id"`
	Type             AnalysisType `json:"type"`
	ComparedOfferIDs []string     `json:"compared_offer_ids"`
	Report           string       `json:"report"`
	CreatedAt        time.Time    `json:"created_at"`
}

func NewOfferAnalysis(conversationID, primaryOfferID string, typ AnalysisType, comparedIDs []string, report string) *OfferAnalysis {
	return &OfferAnalysis{
		ID:               uuid.New().String(),
		ConversationID:   conversationID,
		PrimaryOfferID:   primaryOfferID,
		Type:             typ,
		ComparedOfferIDs: comparedIDs,
		Report:           report,
		CreatedAt:        time.Now(),
	}
}
