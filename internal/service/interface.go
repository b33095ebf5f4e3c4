package service

import (
	"context"
	"time"

	"renopilot/internal/ai"
	"renopilot/internal/model"
)

type AuthService interface {
	GetOrCreateUser(ctx context.Context, googleID, email, name, accessToken, refreshToken string, tokenExpiry time.Time) (*model.User, error)
	GetUser(ctx context.Context, userID string) (*model.User, error)
}

type ProjectService interface {
	CreateProject(ctx context.Context, userID, title, address, description string, budgetLimit float64, currency string) (*model.Project, error)
	GetProject(ctx context.Context, projectID string) (*model.Project, error)
	GetProjectsByUser(ctx context.Context, userID string) ([]*model.Project, error)
	UpdateProject(ctx context.Context, project *model.Project) error
	DeleteProject(ctx context.Context, projectID string) error

	CreateContractor(ctx context.Context, name, email, trade, notes string) (*model.Contractor, error)
	GetContractors(ctx context.Context) ([]*model.Contractor, error)
}

// ConversationService drives the agent loop: user text in, plain reply or
// action proposal out.
type ConversationService interface {
	StartConversation(ctx context.Context, userID, projectID, contractorID string) (*model.Conversation, error)
	GetConversation(ctx context.Context, conversationID string) (*model.Conversation, error)
	GetConversationsByProject(ctx context.Context, projectID string) ([]*model.Conversation, error)
	GetMessages(ctx context.Context, conversationID string) ([]*model.Message, error)
	ProcessUserMessage(ctx context.Context, conversationID, text string, attachments []model.MessageAttachment) (*model.Message, *model.Action, error)
}

// ActionService owns the approval state machine. Approve executes the side
// effect; Reject never does.
type ActionService interface {
	Approve(ctx context.Context, actionID, modifications string) (*model.Action, error)
	Reject(ctx context.Context, actionID string) error
	GetAction(ctx context.Context, actionID string) (*model.Action, error)
}

// OfferService extracts, stores and analyzes contractor price offers.
type OfferService interface {
	ExtractFromEmail(ctx context.Context, conversation *model.Conversation, userEmail string, email *model.InboundEmail) (*model.Offer, error)
	AnalyzeOffer(ctx context.Context, conversation *model.Conversation, offerID string) (*model.OfferAnalysis, error)
	CompareOffers(ctx context.Context, conversation *model.Conversation, primaryOfferID string, comparedOfferIDs []string) (*model.OfferAnalysis, error)
	GetOffersByConversation(ctx context.Context, conversationID string) ([]*model.Offer, error)
	GetAnalysesByConversation(ctx context.Context, conversationID string) ([]*model.OfferAnalysis, error)
}

// IngestionService is the background mailbox poller. PollOnce runs a single
// pass and is shared by the scheduler and the manual "check now" trigger.
type IngestionService interface {
	PollOnce(ctx context.Context) (*PollReport, error)
}

// MailClient is the mail gateway contract. Implementations resolve the
// user's credentials from userEmail; a stale token surfaces as a typed
// AuthExpired error.
type MailClient interface {
	SearchMessages(ctx context.Context, userEmail, fromAddress string, max int64) ([]string, error)
	GetMessageDetails(ctx context.Context, userEmail, messageID string) (*model.InboundEmail, error)
	DownloadAttachment(ctx context.Context, userEmail, messageID, attachmentID string) ([]byte, error)
	SendEmail(ctx context.Context, userEmail string, out *model.OutboundEmail) (*model.SendReceipt, error)
}

// GenerationClient is the bounded, cached text-generation contract.
type GenerationClient interface {
	Generate(ctx context.Context, spec ai.PromptSpec, opts ai.Options) (*ai.Result, error)
}
