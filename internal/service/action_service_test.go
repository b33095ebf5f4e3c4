package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"renopilot/internal/ai"
	"renopilot/internal/apperr"
	"renopilot/internal/gmail"
	"renopilot/internal/logger"
	"renopilot/internal/model"
	"renopilot/internal/repository/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type actionFixture struct {
	userRepo       *memory.InMemoryUserRepository
	contractorRepo *memory.InMemoryContractorRepository
	convRepo       *memory.InMemoryConversationRepository
	messageRepo    *memory.InMemoryMessageRepository
	actionRepo     *memory.InMemoryActionRepository
	offerRepo      *memory.InMemoryOfferRepository
	analysisRepo   *memory.InMemoryOfferAnalysisRepository
	processedRepo  *memory.InMemoryProcessedEmailRepository
	mailClient     *gmail.MockMailClient
	genClient      *ai.MockClient

	user         *model.User
	contractor   *model.Contractor
	conversation *model.Conversation

	service ActionService
}

func newActionFixture(t *testing.T) *actionFixture {
	t.Helper()
	ctx := context.Background()

	f := &actionFixture{
		userRepo:       memory.NewInMemoryUserRepository(),
		contractorRepo: memory.NewInMemoryContractorRepository(),
		convRepo:       memory.NewInMemoryConversationRepository(),
		messageRepo:    memory.NewInMemoryMessageRepository(),
		actionRepo:     memory.NewInMemoryActionRepository(),
		offerRepo:      memory.NewInMemoryOfferRepository(),
		analysisRepo:   memory.NewInMemoryOfferAnalysisRepository(),
		processedRepo:  memory.NewInMemoryProcessedEmailRepository(),
		mailClient:     gmail.NewMockMailClient(),
		genClient:      ai.NewMockClient(),
	}

	f.user = model.NewUser("google_1", "homeowner@example.com", "Home Owner", "token", "refresh", time.Now().Add(time.Hour))
	require.NoError(t, f.userRepo.Create(ctx, f.user))

	f.contractor = model.NewContractor("Meyer Bau", "office@meyer-bau.example", "general contractor", "")
	require.NoError(t, f.contractorRepo.Create(ctx, f.contractor))

	project := model.NewProject(f.user.ID, "Bathroom remodel", "Elm Street 5", "Full remodel", 30000, "EUR")
	f.conversation = model.NewConversation(f.user.ID, project.ID, f.contractor.ID)
	require.NoError(t, f.convRepo.Create(ctx, f.conversation))

	appLogger := logger.New()
	offerService := NewOfferService(f.offerRepo, f.analysisRepo, f.genClient, f.mailClient, defaultRiskWeights(), appLogger)
	f.service = NewActionService(
		f.actionRepo, f.messageRepo, f.convRepo, f.userRepo, f.contractorRepo,
		f.offerRepo, f.processedRepo, f.mailClient, f.genClient, offerService,
		5, appLogger,
	)
	return f
}

// pendingAction persists a proposal message and its pending action.
func (f *actionFixture) pendingAction(t *testing.T, kind model.ActionKind, payload interface{}, summary string) *model.Action {
	t.Helper()
	ctx := context.Background()

	data, err := json.Marshal(payload)
	require.NoError(t, err)

	msg := model.NewMessage(f.conversation.ID, model.SenderAI, model.MessageActionProposal, summary)
	require.NoError(t, f.messageRepo.Create(ctx, msg))

	action := model.NewAction(msg.ID, f.conversation.ID, kind, string(data), summary)
	require.NoError(t, f.actionRepo.Create(ctx, action))
	return action
}

func (f *actionFixture) sendEmailPayload() model.SendEmailPayload {
	return model.SendEmailPayload{
		To:      f.contractor.Email,
		Subject: "Quote request",
		Body:    "Could you send a quote for the bathroom remodel?",
	}
}

func TestApproveSendEmailExecutes(t *testing.T) {
	f := newActionFixture(t)
	ctx := context.Background()

	action := f.pendingAction(t, model.ActionSendEmail, f.sendEmailPayload(), "Send email")

	approved, err := f.service.Approve(ctx, action.ID, "")
	assert.NoError(t, err)
	assert.Equal(t, model.StatusExecuted, approved.Status)
	assert.Equal(t, 1, f.mailClient.SentCount())

	var result model.SendEmailResult
	assert.NoError(t, approved.DecodeResult(&result))
	assert.Equal(t, "sent-1", result.ProviderMessageID)

	// Proposal message rewritten and an outcome message appended
	messages, err := f.messageRepo.FindByConversationID(ctx, f.conversation.ID)
	assert.NoError(t, err)
	assert.Len(t, messages, 2)
	assert.Contains(t, messages[0].Content, "executed")
	assert.Equal(t, model.MessageActionExecuted, messages[1].Kind)
}

func TestDoubleApproveConflictsWithoutSecondSend(t *testing.T) {
	f := newActionFixture(t)
	ctx := context.Background()

	action := f.pendingAction(t, model.ActionSendEmail, f.sendEmailPayload(), "Send email")

	_, err := f.service.Approve(ctx, action.ID, "")
	assert.NoError(t, err)

	_, err = f.service.Approve(ctx, action.ID, "")
	assert.True(t, apperr.IsConflict(err))
	assert.Equal(t, 1, f.mailClient.SentCount())
}

func TestRejectIsTerminal(t *testing.T) {
	f := newActionFixture(t)
	ctx := context.Background()

	action := f.pendingAction(t, model.ActionSendEmail, f.sendEmailPayload(), "Send email")

	assert.NoError(t, f.service.Reject(ctx, action.ID))

	rejected, err := f.service.GetAction(ctx, action.ID)
	assert.NoError(t, err)
	assert.Equal(t, model.StatusRejected, rejected.Status)

	// Nothing executes after reject, and a later approve is refused
	_, err = f.service.Approve(ctx, action.ID, "")
	assert.True(t, apperr.IsConflict(err))
	assert.Equal(t, 0, f.mailClient.SentCount())

	// Rejecting twice is also a conflict
	err = f.service.Reject(ctx, action.ID)
	assert.True(t, apperr.IsConflict(err))
}

func TestFailedActionCanBeRetried(t *testing.T) {
	f := newActionFixture(t)
	ctx := context.Background()

	action := f.pendingAction(t, model.ActionSendEmail, f.sendEmailPayload(), "Send email")

	sendErr := apperr.Transient("send", errors.New("gateway down"))
	f.mailClient.SendEmailFunc = func(ctx context.Context, userEmail string, out *model.OutboundEmail) (*model.SendReceipt, error) {
		return nil, sendErr
	}

	failed, err := f.service.Approve(ctx, action.ID, "")
	assert.Error(t, err)
	assert.Equal(t, model.StatusFailed, failed.Status)

	// Gateway recovers; approving again retries and executes
	f.mailClient.SendEmailFunc = nil
	retried, err := f.service.Approve(ctx, action.ID, "")
	assert.NoError(t, err)
	assert.Equal(t, model.StatusExecuted, retried.Status)
}

func TestFailedActionRetryStoresPendingTransition(t *testing.T) {
	f := newActionFixture(t)
	ctx := context.Background()

	action := f.pendingAction(t, model.ActionFetchEmail, model.FetchEmailPayload{ContractorID: f.contractor.ID}, "Fetch email")

	f.mailClient.SearchMessagesFunc = func(ctx context.Context, userEmail, fromAddress string, max int64) ([]string, error) {
		return nil, apperr.Transient("search", errors.New("gateway down"))
	}
	_, err := f.service.Approve(ctx, action.ID, "")
	assert.Error(t, err)

	stored, err := f.actionRepo.FindByID(ctx, action.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusFailed, stored.Status)

	// The retry approval is refused before any transition to approved, so
	// the stored status must already be pending, never failed to approved.
	_, err = f.service.Approve(ctx, action.ID, "make it shorter")
	assert.True(t, apperr.IsValidation(err))

	stored, err = f.actionRepo.FindByID(ctx, action.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, stored.Status)
}

func TestApproveSendEmailRefusesForeignRecipient(t *testing.T) {
	f := newActionFixture(t)
	ctx := context.Background()

	payload := f.sendEmailPayload()
	payload.To = "stranger@example.com"
	action := f.pendingAction(t, model.ActionSendEmail, payload, "Send email")

	_, err := f.service.Approve(ctx, action.ID, "")
	assert.True(t, apperr.IsValidation(err))
	assert.Equal(t, 0, f.mailClient.SentCount())

	// Refused approval leaves the action pending
	current, err := f.service.GetAction(ctx, action.ID)
	assert.NoError(t, err)
	assert.Equal(t, model.StatusPending, current.Status)
}

func TestApproveAnalyzeOfferRefusesForeignOffer(t *testing.T) {
	f := newActionFixture(t)
	ctx := context.Background()

	other := model.NewOffer("other-conversation", "other-contractor", "msg-99")
	require.NoError(t, f.offerRepo.Create(ctx, other))

	action := f.pendingAction(t, model.ActionAnalyzeOffer, model.AnalyzeOfferPayload{OfferID: other.ID}, "Analyze offer")

	_, err := f.service.Approve(ctx, action.ID, "")
	assert.True(t, apperr.IsValidation(err))

	current, err := f.service.GetAction(ctx, action.ID)
	assert.NoError(t, err)
	assert.Equal(t, model.StatusPending, current.Status)
}

func TestApproveCompareOffersRefusesStalePrimary(t *testing.T) {
	f := newActionFixture(t)
	ctx := context.Background()

	older := model.NewOffer(f.conversation.ID, f.contractor.ID, "msg-1")
	older.CreatedAt = time.Now().Add(-2 * time.Hour)
	require.NoError(t, f.offerRepo.Create(ctx, older))

	newer := model.NewOffer(f.conversation.ID, f.contractor.ID, "msg-2")
	require.NoError(t, f.offerRepo.Create(ctx, newer))

	action := f.pendingAction(t, model.ActionCompareOffers, model.CompareOffersPayload{PrimaryOfferID: older.ID}, "Compare offers")

	_, err := f.service.Approve(ctx, action.ID, "")
	assert.True(t, apperr.IsValidation(err))
}

func TestApproveCompareOffersRefusesStaleComparison(t *testing.T) {
	f := newActionFixture(t)
	ctx := context.Background()

	primary := model.NewOffer(f.conversation.ID, f.contractor.ID, "msg-1")
	require.NoError(t, f.offerRepo.Create(ctx, primary))

	// The rival contractor revised their bid; only the revision may be compared
	rivalOld := model.NewOffer("conv-rival", "contractor-rival", "msg-2")
	rivalOld.CreatedAt = time.Now().Add(-2 * time.Hour)
	require.NoError(t, f.offerRepo.Create(ctx, rivalOld))

	rivalNew := model.NewOffer("conv-rival", "contractor-rival", "msg-3")
	require.NoError(t, f.offerRepo.Create(ctx, rivalNew))

	stale := f.pendingAction(t, model.ActionCompareOffers, model.CompareOffersPayload{
		PrimaryOfferID:   primary.ID,
		ComparedOfferIDs: []string{rivalOld.ID},
	}, "Compare offers")

	_, err := f.service.Approve(ctx, stale.ID, "")
	assert.True(t, apperr.IsValidation(err))

	analyses, err := f.analysisRepo.FindByConversationID(ctx, f.conversation.ID)
	assert.NoError(t, err)
	assert.Empty(t, analyses)

	current, err := f.service.GetAction(ctx, stale.ID)
	assert.NoError(t, err)
	assert.Equal(t, model.StatusPending, current.Status)

	// Comparing against the rival's current offer goes through
	f.genClient.GenerateFunc = func(ctx context.Context, spec ai.PromptSpec, opts ai.Options) (*ai.Result, error) {
		return &ai.Result{Text: "The primary offer is cheaper.", Tier: ai.TierFast}, nil
	}
	fresh := f.pendingAction(t, model.ActionCompareOffers, model.CompareOffersPayload{
		PrimaryOfferID:   primary.ID,
		ComparedOfferIDs: []string{rivalNew.ID},
	}, "Compare offers")

	approved, err := f.service.Approve(ctx, fresh.ID, "")
	assert.NoError(t, err)
	assert.Equal(t, model.StatusExecuted, approved.Status)
}

func TestApproveAnalyzeOfferProducesAnalysis(t *testing.T) {
	f := newActionFixture(t)
	ctx := context.Background()

	offer := model.NewOffer(f.conversation.ID, f.contractor.ID, "msg-1")
	require.NoError(t, f.offerRepo.Create(ctx, offer))

	f.genClient.GenerateFunc = func(ctx context.Context, spec ai.PromptSpec, opts ai.Options) (*ai.Result, error) {
		return &ai.Result{Text: "Solid offer, ask about the warranty.", Tier: ai.TierFast}, nil
	}

	action := f.pendingAction(t, model.ActionAnalyzeOffer, model.AnalyzeOfferPayload{OfferID: offer.ID}, "Analyze offer")

	approved, err := f.service.Approve(ctx, action.ID, "")
	assert.NoError(t, err)
	assert.Equal(t, model.StatusExecuted, approved.Status)

	var result model.AnalysisResult
	assert.NoError(t, approved.DecodeResult(&result))
	assert.NotEmpty(t, result.AnalysisID)
	assert.Contains(t, result.Report, "warranty")

	analyses, err := f.analysisRepo.FindByConversationID(ctx, f.conversation.ID)
	assert.NoError(t, err)
	assert.Len(t, analyses, 1)
}

func TestModificationsRedraftSendEmailBody(t *testing.T) {
	f := newActionFixture(t)
	ctx := context.Background()

	f.genClient.GenerateFunc = func(ctx context.Context, spec ai.PromptSpec, opts ai.Options) (*ai.Result, error) {
		assert.Equal(t, "email_redraft", spec.Task)
		return &ai.Result{Text: "Shorter draft.", Tier: ai.TierFast}, nil
	}

	action := f.pendingAction(t, model.ActionSendEmail, f.sendEmailPayload(), "Send email")

	approved, err := f.service.Approve(ctx, action.ID, "make it shorter")
	assert.NoError(t, err)
	assert.Equal(t, model.StatusExecuted, approved.Status)

	var payload model.SendEmailPayload
	assert.NoError(t, approved.DecodePayload(&payload))
	assert.Equal(t, "Shorter draft.", payload.Body)

	require.Equal(t, 1, f.mailClient.SentCount())
	assert.Equal(t, "Shorter draft.", f.mailClient.SentEmails[0].BodyHTML)
}

func TestModificationsRefusedForStructuredActions(t *testing.T) {
	f := newActionFixture(t)
	ctx := context.Background()

	action := f.pendingAction(t, model.ActionFetchEmail, model.FetchEmailPayload{ContractorID: f.contractor.ID}, "Fetch email")

	_, err := f.service.Approve(ctx, action.ID, "fetch more")
	assert.True(t, apperr.IsValidation(err))
}

func TestApproveFetchEmailSkipsSeenMessages(t *testing.T) {
	f := newActionFixture(t)
	ctx := context.Background()

	// msg-1 was already handled by the ingestion loop
	require.NoError(t, f.processedRepo.Create(ctx,
		model.NewProcessedEmailRecord(f.user.ID, f.conversation.ID, f.contractor.ID, "msg-1")))

	f.mailClient.SearchMessagesFunc = func(ctx context.Context, userEmail, fromAddress string, max int64) ([]string, error) {
		return []string{"msg-1", "msg-2"}, nil
	}
	f.mailClient.GetMessageDetailsFunc = func(ctx context.Context, userEmail, messageID string) (*model.InboundEmail, error) {
		return &model.InboundEmail{ID: messageID, From: f.contractor.Email, Subject: "Update", Body: "Work starts Monday."}, nil
	}
	f.genClient.GenerateFunc = func(ctx context.Context, spec ai.PromptSpec, opts ai.Options) (*ai.Result, error) {
		return &ai.Result{Text: `{"is_offer": false}`, Tier: ai.TierFast}, nil
	}

	action := f.pendingAction(t, model.ActionFetchEmail, model.FetchEmailPayload{ContractorID: f.contractor.ID}, "Fetch email")

	approved, err := f.service.Approve(ctx, action.ID, "")
	assert.NoError(t, err)

	var result model.FetchEmailResult
	assert.NoError(t, approved.DecodeResult(&result))
	assert.Equal(t, []string{"msg-1", "msg-2"}, result.MessageIDs)
	assert.Equal(t, 1, result.NewMessages)

	// msg-2 is now in the ledger
	exists, err := f.processedRepo.Exists(ctx, f.contractor.ID, "msg-2")
	assert.NoError(t, err)
	assert.True(t, exists)
}
