package repository

import (
	"context"

	"renopilot/internal/model"
)

// UserRepository defines the interface for user data operations
type UserRepository interface {
	Create(ctx context.Context, user *model.User) error
	FindByID(ctx context.Context, id string) (*model.User, error)
	FindByGoogleID(ctx context.Context, googleID string) (*model.User, error)
	FindByEmail(ctx context.Context, email string) (*model.User, error)
	FindAll(ctx context.Context) ([]*model.User, error)
	Update(ctx context.Context, user *model.User) error
	Delete(ctx context.Context, id string) error
}

// ProjectRepository defines the interface for renovation project data operations
type ProjectRepository interface {
	Create(ctx context.Context, project *model.Project) error
	FindByID(ctx context.Context, id string) (*model.Project, error)
	FindByUserID(ctx context.Context, userID string) ([]*model.Project, error)
	Update(ctx context.Context, project *model.Project) error
	Delete(ctx context.Context, id string) error
}

// ContractorRepository defines the interface for contractor data operations
type ContractorRepository interface {
	Create(ctx context.Context, contractor *model.Contractor) error
	FindByID(ctx context.Context, id string) (*model.Contractor, error)
	FindAll(ctx context.Context) ([]*model.Contractor, error)
	Update(ctx context.Context, contractor *model.Contractor) error
	Delete(ctx context.Context, id string) error
}

// ConversationRepository defines the interface for conversation data operations
type ConversationRepository interface {
	Create(ctx context.Context, conversation *model.Conversation) error
	FindByID(ctx context.Context, id string) (*model.Conversation, error)
	FindByProjectID(ctx context.Context, projectID string) ([]*model.Conversation, error)
	FindActiveByUserID(ctx context.Context, userID string) ([]*model.Conversation, error)
	FindByProjectAndContractor(ctx context.Context, projectID, contractorID string) (*model.Conversation, error)
	Update(ctx context.Context, conversation *model.Conversation) error
}

// MessageRepository defines the interface for message data operations.
// FindByConversationID returns messages in chronological order.
type MessageRepository interface {
	Create(ctx context.Context, message *model.Message) error
	FindByID(ctx context.Context, id string) (*model.Message, error)
	FindByConversationID(ctx context.Context, conversationID string) ([]*model.Message, error)
	Update(ctx context.Context, message *model.Message) error
}

// ActionRepository defines the interface for action data operations.
// FindExecutedByKind backs the dedup-ledger merge: ingestion needs the result
// payloads of previously executed fetch_email actions.
type ActionRepository interface {
	Create(ctx context.Context, action *model.Action) error
	FindByID(ctx context.Context, id string) (*model.Action, error)
	FindByMessageID(ctx context.Context, messageID string) (*model.Action, error)
	FindByConversationID(ctx context.Context, conversationID string) ([]*model.Action, error)
	FindExecutedByKind(ctx context.Context, conversationID string, kind model.ActionKind) ([]*model.Action, error)
	Update(ctx context.Context, action *model.Action) error
}

// OfferRepository defines the interface for offer data operations. Create
// must refuse a second offer with the same source message id with a conflict
// error; FindLatestByContractor returns the most recent offer for the
// contractor within the conversation.
type OfferRepository interface {
	Create(ctx context.Context, offer *model.Offer) error
	FindByID(ctx context.Context, id string) (*model.Offer, error)
	FindBySourceMessageID(ctx context.Context, sourceMessageID string) (*model.Offer, error)
	FindByConversationID(ctx context.Context, conversationID string) ([]*model.Offer, error)
	FindLatestByContractor(ctx context.Context, conversationID, contractorID string) (*model.Offer, error)
}

// OfferAnalysisRepository defines the interface for offer analysis data operations
type OfferAnalysisRepository interface {
	Create(ctx context.Context, analysis *model.OfferAnalysis) error
	FindByID(ctx context.Context, id string) (*model.OfferAnalysis, error)
	FindByConversationID(ctx context.Context, conversationID string) ([]*model.OfferAnalysis, error)
}

// ProcessedEmailRepository is the append-only ingestion ledger. Create treats
// a duplicate (contractor, source message) pair as a benign no-op so that
// concurrent pollers and crash-restarts never fail on replay.
type ProcessedEmailRepository interface {
	Create(ctx context.Context, record *model.ProcessedEmailRecord) error
	Exists(ctx context.Context, contractorID, sourceMessageID string) (bool, error)
	FindByConversationID(ctx context.Context, conversationID string) ([]*model.ProcessedEmailRecord, error)
}

// GenerationCacheRepository is a content-addressed blob store for model
// responses. No eviction: keys are stable hashes of normalized requests, so
// staleness is acceptable.
type GenerationCacheRepository interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, blob []byte) error
}
