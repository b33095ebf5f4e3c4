package service

import (
	"context"
	"testing"

	"renopilot/internal/ai"
	"renopilot/internal/apperr"
	"renopilot/internal/logger"
	"renopilot/internal/model"
	"renopilot/internal/repository/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type conversationFixture struct {
	projectRepo    *memory.InMemoryProjectRepository
	contractorRepo *memory.InMemoryContractorRepository
	convRepo       *memory.InMemoryConversationRepository
	messageRepo    *memory.InMemoryMessageRepository
	actionRepo     *memory.InMemoryActionRepository
	genClient      *ai.MockClient

	project    *model.Project
	contractor *model.Contractor

	service ConversationService
}

func newConversationFixture(t *testing.T) *conversationFixture {
	t.Helper()
	ctx := context.Background()

	f := &conversationFixture{
		projectRepo:    memory.NewInMemoryProjectRepository(),
		contractorRepo: memory.NewInMemoryContractorRepository(),
		convRepo:       memory.NewInMemoryConversationRepository(),
		messageRepo:    memory.NewInMemoryMessageRepository(),
		actionRepo:     memory.NewInMemoryActionRepository(),
		genClient:      ai.NewMockClient(),
	}

	f.project = model.NewProject("user-1", "Bathroom remodel", "Elm Street 5", "Full remodel", 30000, "EUR")
	require.NoError(t, f.projectRepo.Create(ctx, f.project))

	f.contractor = model.NewContractor("Meyer Bau", "office@meyer-bau.example", "general contractor", "")
	require.NoError(t, f.contractorRepo.Create(ctx, f.contractor))

	f.service = NewConversationService(
		f.convRepo, f.messageRepo, f.actionRepo, f.projectRepo, f.contractorRepo,
		f.genClient, NewContextBuilder(20), logger.New(),
	)
	return f
}

func TestStartConversationReusesExistingThread(t *testing.T) {
	f := newConversationFixture(t)
	ctx := context.Background()

	first, err := f.service.StartConversation(ctx, "user-1", f.project.ID, f.contractor.ID)
	require.NoError(t, err)

	second, err := f.service.StartConversation(ctx, "user-1", f.project.ID, f.contractor.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
}

func TestStartConversationRefusesUnknownContractor(t *testing.T) {
	f := newConversationFixture(t)

	_, err := f.service.StartConversation(context.Background(), "user-1", f.project.ID, "no-such-contractor")
	assert.True(t, apperr.IsNotFound(err))
}

func TestProcessUserMessagePlainReply(t *testing.T) {
	f := newConversationFixture(t)
	ctx := context.Background()

	conversation, err := f.service.StartConversation(ctx, "user-1", f.project.ID, f.contractor.ID)
	require.NoError(t, err)

	f.genClient.GenerateFunc = func(ctx context.Context, spec ai.PromptSpec, opts ai.Options) (*ai.Result, error) {
		assert.True(t, opts.Tools)
		assert.Contains(t, spec.Prompt, "Bathroom remodel")
		assert.Contains(t, spec.Prompt, "When can they start?")
		return &ai.Result{Text: "I'll ask about their start date.", Tier: ai.TierFast}, nil
	}

	reply, action, err := f.service.ProcessUserMessage(ctx, conversation.ID, "When can they start?", nil)
	require.NoError(t, err)
	assert.Nil(t, action)
	assert.Equal(t, model.MessagePlain, reply.Kind)

	messages, err := f.service.GetMessages(ctx, conversation.ID)
	require.NoError(t, err)
	assert.Len(t, messages, 2)
}

func TestProcessUserMessageToolProposal(t *testing.T) {
	f := newConversationFixture(t)
	ctx := context.Background()

	conversation, err := f.service.StartConversation(ctx, "user-1", f.project.ID, f.contractor.ID)
	require.NoError(t, err)

	f.genClient.GenerateFunc = func(ctx context.Context, spec ai.PromptSpec, opts ai.Options) (*ai.Result, error) {
		return &ai.Result{Tool: &ai.ToolCall{
			Name: "send_email",
			Args: map[string]interface{}{
				"to":      f.contractor.Email,
				"subject": "Quote request",
				"body":    "Could you quote the bathroom remodel?",
			},
		}, Tier: ai.TierFast}, nil
	}

	reply, action, err := f.service.ProcessUserMessage(ctx, conversation.ID, "Ask them for a quote", nil)
	require.NoError(t, err)
	require.NotNil(t, action)

	assert.Equal(t, model.MessageActionProposal, reply.Kind)
	assert.Equal(t, model.StatusPending, action.Status)

	// The pending action is persisted and linked to the proposal message
	stored, err := f.actionRepo.FindByMessageID(ctx, reply.ID)
	require.NoError(t, err)
	assert.Equal(t, action.ID, stored.ID)
}

func TestProcessUserMessageSkipsUnreadableAttachments(t *testing.T) {
	f := newConversationFixture(t)
	ctx := context.Background()

	conversation, err := f.service.StartConversation(ctx, "user-1", f.project.ID, f.contractor.ID)
	require.NoError(t, err)

	f.genClient.GenerateFunc = func(ctx context.Context, spec ai.PromptSpec, opts ai.Options) (*ai.Result, error) {
		return &ai.Result{Text: "Got it.", Tier: ai.TierFast}, nil
	}

	attachments := []model.MessageAttachment{
		// Not a real PDF; extraction fails and the attachment is skipped
		{Filename: "quote.pdf", MimeType: "application/pdf", Data: []byte("not a pdf")},
		{Filename: "photo.jpg", MimeType: "image/jpeg", Data: []byte{0xff, 0xd8}},
	}

	_, _, err = f.service.ProcessUserMessage(ctx, conversation.ID, "Here is their quote", attachments)
	require.NoError(t, err)

	messages, err := f.service.GetMessages(ctx, conversation.ID)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, "Here is their quote", messages[0].Content)
}

func TestProcessUserMessageRejectsEmptyText(t *testing.T) {
	f := newConversationFixture(t)
	ctx := context.Background()

	conversation, err := f.service.StartConversation(ctx, "user-1", f.project.ID, f.contractor.ID)
	require.NoError(t, err)

	_, _, err = f.service.ProcessUserMessage(ctx, conversation.ID, "", nil)
	assert.True(t, apperr.IsValidation(err))
}
