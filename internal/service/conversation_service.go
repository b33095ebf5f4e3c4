package service

import (
	"context"
	"fmt"

	"renopilot/internal/ai"
	"renopilot/internal/apperr"
	"renopilot/internal/logger"
	"renopilot/internal/model"
	"renopilot/internal/pdf"
	"renopilot/internal/repository"
)

const agentSystemPrompt = `You are a renovation assistant acting on behalf of a homeowner.
You mediate communication with contractors. You may either answer in plain text
or propose exactly one of your tools. Tool proposals are drafts: the homeowner
reviews and approves them before anything is sent or executed. Keep replies
short and concrete.`

type conversationService struct {
	convRepo       repository.ConversationRepository
	messageRepo    repository.MessageRepository
	actionRepo     repository.ActionRepository
	projectRepo    repository.ProjectRepository
	contractorRepo repository.ContractorRepository
	genClient      GenerationClient
	builder        *ContextBuilder
	dispatcher     *Dispatcher
	logger         *logger.Logger
}

func NewConversationService(
	convRepo repository.ConversationRepository,
	messageRepo repository.MessageRepository,
	actionRepo repository.ActionRepository,
	projectRepo repository.ProjectRepository,
	contractorRepo repository.ContractorRepository,
	genClient GenerationClient,
	builder *ContextBuilder,
	logger *logger.Logger,
) ConversationService {
	return &conversationService{
		convRepo:       convRepo,
		messageRepo:    messageRepo,
		actionRepo:     actionRepo,
		projectRepo:    projectRepo,
		contractorRepo: contractorRepo,
		genClient:      genClient,
		builder:        builder,
		dispatcher:     NewDispatcher(),
		logger:         logger,
	}
}

func (s *conversationService) StartConversation(ctx context.Context, userID, projectID, contractorID string) (*model.Conversation, error) {
	// Reuse the existing thread if first contact already happened
	if existing, err := s.convRepo.FindByProjectAndContractor(ctx, projectID, contractorID); err == nil {
		return existing, nil
	}

	if _, err := s.projectRepo.FindByID(ctx, projectID); err != nil {
		return nil, err
	}
	if _, err := s.contractorRepo.FindByID(ctx, contractorID); err != nil {
		return nil, err
	}

	conversation := model.NewConversation(userID, projectID, contractorID)
	if err := s.convRepo.Create(ctx, conversation); err != nil {
		return nil, fmt.Errorf("failed to create conversation: %w", err)
	}
	s.logger.Info("Started conversation", conversation.ID, "for project", projectID)
	return conversation, nil
}

func (s *conversationService) GetConversation(ctx context.Context, conversationID string) (*model.Conversation, error) {
	return s.convRepo.FindByID(ctx, conversationID)
}

func (s *conversationService) GetConversationsByProject(ctx context.Context, projectID string) ([]*model.Conversation, error) {
	return s.convRepo.FindByProjectID(ctx, projectID)
}

func (s *conversationService) GetMessages(ctx context.Context, conversationID string) ([]*model.Message, error) {
	return s.messageRepo.FindByConversationID(ctx, conversationID)
}

// ProcessUserMessage stores the user's message, runs one agent turn and
// returns the AI reply, plus the pending action when the model proposed one.
// Text from PDF attachments goes into the stored message so the agent can
// read it; other attachment types are ignored.
func (s *conversationService) ProcessUserMessage(ctx context.Context, conversationID, text string, attachments []model.MessageAttachment) (*model.Message, *model.Action, error) {
	if text == "" {
		return nil, nil, apperr.Validation("text", "message text is required")
	}

	conversation, err := s.convRepo.FindByID(ctx, conversationID)
	if err != nil {
		return nil, nil, err
	}

	for _, att := range attachments {
		if !att.IsPDF() {
			continue
		}
		extracted, err := pdf.ExtractText(att.Data)
		if err != nil {
			s.logger.Warn("Could not read attachment", att.Filename, ":", err)
			continue
		}
		text = fmt.Sprintf("%s\n\n--- Attachment %s ---\n%s", text, att.Filename, extracted)
	}

	userMsg := model.NewMessage(conversationID, model.SenderUser, model.MessagePlain, text)
	if err := s.messageRepo.Create(ctx, userMsg); err != nil {
		return nil, nil, fmt.Errorf("failed to save user message: %w", err)
	}

	prompt, err := s.buildPrompt(ctx, conversation)
	if err != nil {
		return nil, nil, err
	}

	result, err := s.genClient.Generate(ctx, ai.PromptSpec{
		Task:   "agent_turn",
		System: agentSystemPrompt,
		Prompt: prompt,
		Facts: map[string]interface{}{
			"conversation_id": conversation.ID,
			"turn":            text,
		},
	}, ai.Options{
		Tools:    true,
		Fallback: &ai.Result{Text: "I couldn't process that right now. Please try again in a moment."},
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate reply: %w", err)
	}

	aiMsg, action, err := s.dispatcher.Dispatch(conversationID, result)
	if err != nil {
		return nil, nil, err
	}

	if err := s.messageRepo.Create(ctx, aiMsg); err != nil {
		return nil, nil, fmt.Errorf("failed to save reply: %w", err)
	}
	if action != nil {
		if err := s.actionRepo.Create(ctx, action); err != nil {
			return nil, nil, fmt.Errorf("failed to save action proposal: %w", err)
		}
	}

	return aiMsg, action, nil
}

func (s *conversationService) buildPrompt(ctx context.Context, conversation *model.Conversation) (string, error) {
	project, err := s.projectRepo.FindByID(ctx, conversation.ProjectID)
	if err != nil {
		return "", err
	}
	contractor, err := s.contractorRepo.FindByID(ctx, conversation.ContractorID)
	if err != nil {
		return "", err
	}

	messages, err := s.messageRepo.FindByConversationID(ctx, conversation.ID)
	if err != nil {
		return "", fmt.Errorf("failed to load messages: %w", err)
	}

	actions, err := s.actionRepo.FindByConversationID(ctx, conversation.ID)
	if err != nil {
		return "", fmt.Errorf("failed to load actions: %w", err)
	}
	byMessage := make(map[string]*model.Action, len(actions))
	for _, action := range actions {
		byMessage[action.MessageID] = action
	}

	return s.builder.Build(project, contractor, messages, byMessage), nil
}
