package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type ActionKind string

const (
	ActionSendEmail     ActionKind = "send_email"
	ActionFetchEmail    ActionKind = "fetch_email"
	ActionAnalyzeOffer  ActionKind = "analyze_offer"
	ActionCompareOffers ActionKind = "compare_offers"
)

// KnownActionKind reports whether kind is one of the closed set the agent may
// propose. Anything else degrades to a plain message.
func KnownActionKind(kind string) bool {
	switch ActionKind(kind) {
	case ActionSendEmail, ActionFetchEmail, ActionAnalyzeOffer, ActionCompareOffers:
		return true
	}
	return false
}

type ActionStatus string

const (
	StatusPending  ActionStatus = "pending"
	StatusApproved ActionStatus = "approved"
	StatusRejected ActionStatus = "rejected"
	StatusExecuted ActionStatus = "executed"
	StatusFailed   ActionStatus = "failed"
)

// CanTransitionTo encodes the approval state machine. Transitions are
// monotonic except failed -> pending, the explicit retry edge. executed and
// rejected are terminal.
func (s ActionStatus) CanTransitionTo(next ActionStatus) bool {
	switch s {
	case StatusPending:
		return next == StatusApproved || next == StatusRejected
	case StatusApproved:
		return next == StatusExecuted || next == StatusFailed
	case StatusFailed:
		return next == StatusPending
	}
	return false
}

// Terminal reports whether no further transition is possible.
func (s ActionStatus) Terminal() bool {
	return s == StatusExecuted || s == StatusRejected
}

// Action is a proposed, approvable side effect tied 1:1 to a conversation
// message. Payload and Result are kind-specific JSON blobs.
type Action struct {
	ID             string       `json:"id"`
	MessageID      string       `json:"message_id"`
	ConversationID string       `json:"conversation_id"`
	Kind           ActionKind   `json:"kind"`
	Status         ActionStatus `json:"status"`
	Payload        string       `json:"payload"`
	Summary        string       `json:"summary"`
	Result         string       `json:"result"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
}

func NewAction(messageID, conversationID string, kind ActionKind, payload, summary string) *Action {
	now := time.Now()
	return &Action{
		ID:             uuid.New().String(),
		MessageID:      messageID,
		ConversationID: conversationID,
		Kind:           kind,
		Status:         StatusPending,
		Payload:        payload,
		Summary:        summary,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// SendEmailPayload is the structured payload of a send_email action.
type SendEmailPayload struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// FetchEmailPayload is the structured payload of a fetch_email action.
type FetchEmailPayload struct {
	ContractorID string `json:"contractor_id"`
	Max          int    `json:"max,omitempty"`
}

// AnalyzeOfferPayload is the structured payload of an analyze_offer action.
type AnalyzeOfferPayload struct {
	OfferID string `json:"offer_id"`
}

// CompareOffersPayload is the structured payload of a compare_offers action.
type CompareOffersPayload struct {
	PrimaryOfferID   string   `json:"primary_offer_id"`
	ComparedOfferIDs []string `json:"compared_offer_ids"`
}

// SendEmailResult records the provider receipt of an executed send.
type SendEmailResult struct {
	ProviderMessageID string `json:"provider_message_id"`
	ThreadID          string `json:"thread_id"`
}

// FetchEmailResult records which source messages an executed manual fetch
// observed. The ingestion loop reconciles against these ids so the same
// message is never processed twice.
type FetchEmailResult struct {
	MessageIDs  []string `json:"message_ids"`
	NewMessages int      `json:"new_messages"`
	OffersFound int      `json:"offers_found"`
}

// AnalysisResult records the artifact produced by an executed analyze_offer
// or compare_offers action.
type AnalysisResult struct {
	AnalysisID string `json:"analysis_id"`
	Report     string `json:"report"`
}

// DecodePayload unmarshals the action payload into dst.
func (a *Action) DecodePayload(dst interface{}) error {
	return json.Unmarshal([]byte(a.Payload), dst)
}

// DecodeResult unmarshals the action result into dst.
func (a *Action) DecodeResult(dst interface{}) error {
	return json.Unmarshal([]byte(a.Result), dst)
}
