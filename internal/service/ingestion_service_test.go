package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"renopilot/internal/ai"
	"renopilot/internal/apperr"
	"renopilot/internal/config"
	"renopilot/internal/gmail"
	"renopilot/internal/logger"
	"renopilot/internal/model"
	"renopilot/internal/repository/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type ingestionFixture struct {
	userRepo       *memory.InMemoryUserRepository
	contractorRepo *memory.InMemoryContractorRepository
	convRepo       *memory.InMemoryConversationRepository
	messageRepo    *memory.InMemoryMessageRepository
	actionRepo     *memory.InMemoryActionRepository
	offerRepo      *memory.InMemoryOfferRepository
	processedRepo  *memory.InMemoryProcessedEmailRepository
	mailClient     *gmail.MockMailClient
	genClient      *ai.MockClient

	user         *model.User
	contractor   *model.Contractor
	conversation *model.Conversation

	service IngestionService
}

func newIngestionFixture(t *testing.T) *ingestionFixture {
	t.Helper()
	ctx := context.Background()

	f := &ingestionFixture{
		userRepo:       memory.NewInMemoryUserRepository(),
		contractorRepo: memory.NewInMemoryContractorRepository(),
		convRepo:       memory.NewInMemoryConversationRepository(),
		messageRepo:    memory.NewInMemoryMessageRepository(),
		actionRepo:     memory.NewInMemoryActionRepository(),
		offerRepo:      memory.NewInMemoryOfferRepository(),
		processedRepo:  memory.NewInMemoryProcessedEmailRepository(),
		mailClient:     gmail.NewMockMailClient(),
		genClient:      ai.NewMockClient(),
	}

	f.user = model.NewUser("google_1", "homeowner@example.com", "Home Owner", "token", "refresh", time.Now().Add(time.Hour))
	require.NoError(t, f.userRepo.Create(ctx, f.user))

	f.contractor = model.NewContractor("Meyer Bau", "office@meyer-bau.example", "general contractor", "")
	require.NoError(t, f.contractorRepo.Create(ctx, f.contractor))

	f.conversation = model.NewConversation(f.user.ID, "project-1", f.contractor.ID)
	require.NoError(t, f.convRepo.Create(ctx, f.conversation))

	cfg := &config.Config{
		PollRunTimeout:    60,
		ContractorTimeout: 15,
		MaxFetchEmails:    5,
		Risk:              defaultRiskWeights(),
	}

	appLogger := logger.New()
	offerService := NewOfferService(f.offerRepo, memory.NewInMemoryOfferAnalysisRepository(), f.genClient, f.mailClient, cfg.Risk, appLogger)
	f.service = NewIngestionService(
		f.userRepo, f.convRepo, f.messageRepo, f.actionRepo, f.contractorRepo,
		f.processedRepo, f.mailClient, f.genClient, offerService, cfg, appLogger,
	)
	return f
}

// genByTask routes mock generation replies per task name.
func genByTask(replies map[string]string) func(ctx context.Context, spec ai.PromptSpec, opts ai.Options) (*ai.Result, error) {
	return func(ctx context.Context, spec ai.PromptSpec, opts ai.Options) (*ai.Result, error) {
		if text, ok := replies[spec.Task]; ok {
			return &ai.Result{Text: text, Tier: ai.TierFast}, nil
		}
		return &ai.Result{Text: "ok", Tier: ai.TierFast}, nil
	}
}

func TestPollOnceIngestsNewMessagesAndOffers(t *testing.T) {
	f := newIngestionFixture(t)
	ctx := context.Background()

	f.mailClient.SearchMessagesFunc = func(ctx context.Context, userEmail, fromAddress string, max int64) ([]string, error) {
		assert.Equal(t, f.contractor.Email, fromAddress)
		return []string{"msg-1", "msg-2", "msg-3"}, nil
	}
	f.mailClient.GetMessageDetailsFunc = func(ctx context.Context, userEmail, messageID string) (*model.InboundEmail, error) {
		if messageID == "msg-2" {
			return &model.InboundEmail{ID: messageID, Subject: "Our offer", Body: "24500 EUR, three weeks."}, nil
		}
		return &model.InboundEmail{ID: messageID, Subject: "Scheduling", Body: "Monday works."}, nil
	}
	f.genClient.GenerateFunc = func(ctx context.Context, spec ai.PromptSpec, opts ai.Options) (*ai.Result, error) {
		if spec.Task == "offer_extraction" {
			if strings.Contains(spec.Prompt, "24500") {
				return &ai.Result{Text: `{"is_offer": true, "total_price": 24500, "currency": "EUR", "timeline_duration_days": 21, "scope": "Bathroom renovation with tiling, plumbing and fixtures"}`, Tier: ai.TierFast}, nil
			}
			return &ai.Result{Text: `{"is_offer": false}`, Tier: ai.TierFast}, nil
		}
		return &ai.Result{Text: "New email from the contractor.", Tier: ai.TierFast}, nil
	}

	report, err := f.service.PollOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.UsersPolled)
	assert.Equal(t, 1, report.ContractorsChecked)
	assert.Equal(t, 3, report.NewMessages)
	assert.Equal(t, 1, report.OffersFound)
	assert.Equal(t, 0, report.Errors)

	// Each new mail produced a ledger record
	for _, id := range []string{"msg-1", "msg-2", "msg-3"} {
		exists, err := f.processedRepo.Exists(ctx, f.contractor.ID, id)
		assert.NoError(t, err)
		assert.True(t, exists, id)
	}

	// The extracted offer queued a pending analysis proposal
	actions, err := f.actionRepo.FindByConversationID(ctx, f.conversation.ID)
	require.NoError(t, err)
	require.Len(t, actions, 1)
	assert.Equal(t, model.ActionAnalyzeOffer, actions[0].Kind)
	assert.Equal(t, model.StatusPending, actions[0].Status)
}

func TestPollOnceIsIdempotent(t *testing.T) {
	f := newIngestionFixture(t)
	ctx := context.Background()

	f.mailClient.SearchMessagesFunc = func(ctx context.Context, userEmail, fromAddress string, max int64) ([]string, error) {
		return []string{"msg-1"}, nil
	}
	f.genClient.GenerateFunc = genByTask(map[string]string{
		"offer_extraction": `{"is_offer": false}`,
	})

	first, err := f.service.PollOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, first.NewMessages)

	second, err := f.service.PollOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, second.NewMessages)

	messages, err := f.messageRepo.FindByConversationID(ctx, f.conversation.ID)
	require.NoError(t, err)
	// One inbound message plus one notification, once
	assert.Len(t, messages, 2)
}

func TestPollOnceHonorsExecutedFetchLedger(t *testing.T) {
	f := newIngestionFixture(t)
	ctx := context.Background()

	// msg-1 was observed by a manually approved fetch, not by the poller
	resultJSON, err := json.Marshal(model.FetchEmailResult{MessageIDs: []string{"msg-1"}, NewMessages: 1})
	require.NoError(t, err)
	fetch := model.NewAction("msg-id", f.conversation.ID, model.ActionFetchEmail, `{"contractor_id":"x"}`, "Fetch")
	fetch.Status = model.StatusExecuted
	fetch.Result = string(resultJSON)
	require.NoError(t, f.actionRepo.Create(ctx, fetch))

	f.mailClient.SearchMessagesFunc = func(ctx context.Context, userEmail, fromAddress string, max int64) ([]string, error) {
		return []string{"msg-1"}, nil
	}

	report, err := f.service.PollOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, report.NewMessages)
}

func TestPollOnceSkipsUserOnExpiredCredentials(t *testing.T) {
	f := newIngestionFixture(t)
	ctx := context.Background()

	f.mailClient.SearchMessagesFunc = func(ctx context.Context, userEmail, fromAddress string, max int64) ([]string, error) {
		return nil, apperr.AuthExpired(userEmail, errors.New("token expired"))
	}

	report, err := f.service.PollOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{f.user.Email}, report.UsersSkipped)
	assert.Equal(t, 0, report.NewMessages)
}

func TestPollOnceIsolatesContractorFailures(t *testing.T) {
	f := newIngestionFixture(t)
	ctx := context.Background()

	// Second contractor in the same user's project
	flaky := model.NewContractor("Elektro Kranz", "kontakt@elektro-kranz.example", "electrician", "")
	require.NoError(t, f.contractorRepo.Create(ctx, flaky))
	flakyConv := model.NewConversation(f.user.ID, "project-1", flaky.ID)
	require.NoError(t, f.convRepo.Create(ctx, flakyConv))

	f.mailClient.SearchMessagesFunc = func(ctx context.Context, userEmail, fromAddress string, max int64) ([]string, error) {
		if fromAddress == flaky.Email {
			return nil, apperr.Transient("search", errors.New("mailbox unavailable"))
		}
		return []string{"msg-1"}, nil
	}
	f.genClient.GenerateFunc = genByTask(map[string]string{
		"offer_extraction": `{"is_offer": false}`,
	})

	report, err := f.service.PollOnce(ctx)
	require.NoError(t, err)

	// The healthy contractor was still ingested
	assert.Equal(t, 2, report.ContractorsChecked)
	assert.Equal(t, 1, report.NewMessages)
	assert.Equal(t, 1, report.Errors)
	assert.Empty(t, report.UsersSkipped)
}

func TestPollOnceIgnoresUsersWithoutCredentials(t *testing.T) {
	f := newIngestionFixture(t)
	ctx := context.Background()

	disconnected := model.NewUser("google_2", "other@example.com", "Other", "", "", time.Time{})
	require.NoError(t, f.userRepo.Create(ctx, disconnected))

	report, err := f.service.PollOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.UsersPolled)
}

func TestFetchUnseenEmailsOrdersNewestFirst(t *testing.T) {
	ctx := context.Background()
	now := time.Now()

	// Received times deliberately contradict the search result order
	received := map[string]time.Time{
		"msg-1": now.Add(-3 * time.Hour),
		"msg-2": now.Add(-1 * time.Hour),
		"msg-3": now.Add(-2 * time.Hour),
	}

	mailClient := gmail.NewMockMailClient()
	mailClient.GetMessageDetailsFunc = func(ctx context.Context, userEmail, messageID string) (*model.InboundEmail, error) {
		return &model.InboundEmail{ID: messageID, ReceivedAt: received[messageID]}, nil
	}

	seen := map[string]bool{"msg-3": true}
	emails, err := fetchUnseenEmails(ctx, mailClient, "homeowner@example.com", []string{"msg-1", "msg-2", "msg-3"}, seen)
	require.NoError(t, err)

	require.Len(t, emails, 2)
	assert.Equal(t, "msg-2", emails[0].ID)
	assert.Equal(t, "msg-1", emails[1].ID)
}
