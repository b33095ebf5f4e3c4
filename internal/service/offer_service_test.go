package service

import (
	"context"
	"testing"

	"renopilot/internal/ai"
	"renopilot/internal/config"
	"renopilot/internal/gmail"
	"renopilot/internal/logger"
	"renopilot/internal/model"
	"renopilot/internal/repository/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defaultRiskWeights() config.RiskWeights {
	return config.RiskWeights{
		MissingWarranty:      20,
		MissingPaymentTerms:  15,
		MissingInsurance:     15,
		MissingTimeline:      20,
		MissingCostBreakdown: 10,
		ShortTimeline:        20,
		ThinScope:            10,
		ShortTimelineDays:    7,
		ThinScopeChars:       50,
	}
}

type offerFixture struct {
	offerRepo    *memory.InMemoryOfferRepository
	analysisRepo *memory.InMemoryOfferAnalysisRepository
	mailClient   *gmail.MockMailClient
	genClient    *ai.MockClient
	conversation *model.Conversation
	service      OfferService
}

func newOfferFixture(t *testing.T) *offerFixture {
	t.Helper()

	f := &offerFixture{
		offerRepo:    memory.NewInMemoryOfferRepository(),
		analysisRepo: memory.NewInMemoryOfferAnalysisRepository(),
		mailClient:   gmail.NewMockMailClient(),
		genClient:    ai.NewMockClient(),
	}
	f.conversation = model.NewConversation("user-1", "project-1", "contractor-1")
	f.service = NewOfferService(f.offerRepo, f.analysisRepo, f.genClient, f.mailClient, defaultRiskWeights(), logger.New())
	return f
}

func TestExtractFromEmailCreatesOffer(t *testing.T) {
	f := newOfferFixture(t)
	ctx := context.Background()

	f.genClient.GenerateFunc = func(ctx context.Context, spec ai.PromptSpec, opts ai.Options) (*ai.Result, error) {
		assert.Equal(t, "offer_extraction", spec.Task)
		return &ai.Result{Text: `{
			"is_offer": true,
			"total_price": 24500,
			"currency": "EUR",
			"timeline_duration_days": 21,
			"scope": "Complete bathroom renovation including tiling, plumbing and fixtures",
			"payment_terms": "30% upfront, rest on completion",
			"warranty": "",
			"has_insurance": false,
			"has_cost_breakdown": true
		}`, Tier: ai.TierFast}, nil
	}

	email := &model.InboundEmail{
		ID:      "msg-1",
		Subject: "Offer for your bathroom",
		Body:    "Please find our offer attached: 24,500 EUR, about three weeks of work.",
	}

	offer, err := f.service.ExtractFromEmail(ctx, f.conversation, "homeowner@example.com", email)
	require.NoError(t, err)
	require.NotNil(t, offer)

	assert.Equal(t, 24500.0, offer.TotalPrice)
	assert.Equal(t, "EUR", offer.Currency)
	assert.Equal(t, 21, offer.TimelineDurationDays)
	assert.Equal(t, "msg-1", offer.SourceMessageID)

	// Missing warranty (20) + missing insurance (15); everything else present
	assert.Equal(t, 35, offer.RiskScore)
}

func TestExtractFromEmailIgnoresNonOffers(t *testing.T) {
	f := newOfferFixture(t)
	ctx := context.Background()

	f.genClient.GenerateFunc = func(ctx context.Context, spec ai.PromptSpec, opts ai.Options) (*ai.Result, error) {
		return &ai.Result{Text: `{"is_offer": false}`, Tier: ai.TierFast}, nil
	}

	email := &model.InboundEmail{ID: "msg-2", Subject: "Re: scheduling", Body: "Monday works for us."}

	offer, err := f.service.ExtractFromEmail(ctx, f.conversation, "homeowner@example.com", email)
	assert.NoError(t, err)
	assert.Nil(t, offer)

	offers, err := f.offerRepo.FindByConversationID(ctx, f.conversation.ID)
	assert.NoError(t, err)
	assert.Empty(t, offers)
}

func TestExtractFromEmailDeduplicatesBySourceMessage(t *testing.T) {
	f := newOfferFixture(t)
	ctx := context.Background()

	f.genClient.GenerateFunc = func(ctx context.Context, spec ai.PromptSpec, opts ai.Options) (*ai.Result, error) {
		return &ai.Result{Text: `{"is_offer": true, "total_price": 9000, "currency": "EUR", "scope": "Electrical panel upgrade with full rewiring of the basement"}`, Tier: ai.TierFast}, nil
	}

	email := &model.InboundEmail{ID: "msg-3", Subject: "Quote", Body: "9000 EUR."}

	first, err := f.service.ExtractFromEmail(ctx, f.conversation, "homeowner@example.com", email)
	require.NoError(t, err)
	require.NotNil(t, first)
	callsAfterFirst := f.genClient.CallCount()

	// The same source message never creates a second offer or another model call
	second, err := f.service.ExtractFromEmail(ctx, f.conversation, "homeowner@example.com", email)
	require.NoError(t, err)
	require.NotNil(t, second)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, callsAfterFirst, f.genClient.CallCount())
}

func TestExtractFromEmailReadsPDFAttachments(t *testing.T) {
	f := newOfferFixture(t)
	ctx := context.Background()

	downloaded := false
	f.mailClient.DownloadAttachmentFunc = func(ctx context.Context, userEmail, messageID, attachmentID string) ([]byte, error) {
		downloaded = true
		// Not a real PDF; extraction fails and the attachment is skipped
		return []byte("not a pdf"), nil
	}
	f.genClient.GenerateFunc = func(ctx context.Context, spec ai.PromptSpec, opts ai.Options) (*ai.Result, error) {
		return &ai.Result{Text: `{"is_offer": false}`, Tier: ai.TierFast}, nil
	}

	email := &model.InboundEmail{
		ID:      "msg-4",
		Subject: "Offer attached",
		Body:    "See attached.",
		Attachments: []model.EmailAttachment{
			{ID: "att-1", Filename: "offer.pdf", MimeType: "application/pdf"},
			{ID: "att-2", Filename: "photo.jpg", MimeType: "image/jpeg"},
		},
	}

	_, err := f.service.ExtractFromEmail(ctx, f.conversation, "homeowner@example.com", email)
	assert.NoError(t, err)
	assert.True(t, downloaded)
}

func TestCompareOffersRecordsComparedIDs(t *testing.T) {
	f := newOfferFixture(t)
	ctx := context.Background()

	primary := model.NewOffer(f.conversation.ID, "contractor-1", "msg-a")
	primary.TotalPrice = 24500
	other := model.NewOffer("conv-2", "contractor-2", "msg-b")
	other.TotalPrice = 19900
	require.NoError(t, f.offerRepo.Create(ctx, primary))
	require.NoError(t, f.offerRepo.Create(ctx, other))

	f.genClient.GenerateFunc = func(ctx context.Context, spec ai.PromptSpec, opts ai.Options) (*ai.Result, error) {
		return &ai.Result{Text: "The second offer is cheaper but thinner on scope.", Tier: ai.TierPro}, nil
	}

	analysis, err := f.service.CompareOffers(ctx, f.conversation, primary.ID, []string{other.ID})
	require.NoError(t, err)
	assert.Equal(t, model.AnalysisComparison, analysis.Type)
	assert.Equal(t, primary.ID, analysis.PrimaryOfferID)
	assert.Equal(t, []string{other.ID}, analysis.ComparedOfferIDs)
	assert.NotEmpty(t, analysis.Report)
}

func TestScoreOfferRisk(t *testing.T) {
	weights := defaultRiskWeights()

	// Everything missing sums all missing-field penalties
	empty := &model.Offer{}
	assert.Equal(t, 90, scoreOfferRisk(empty, weights))

	// Short timeline is penalized instead of missing timeline
	rushed := &model.Offer{TimelineDurationDays: 3}
	assert.Equal(t, 90, scoreOfferRisk(rushed, weights))

	// A complete offer scores zero
	complete := &model.Offer{
		TimelineDurationDays: 21,
		ScopeText:            "Full bathroom renovation: demolition, tiling, plumbing, fixtures",
		PaymentTerms:         "30/70",
		Warranty:             "5 years",
		HasInsurance:         true,
		HasCostBreakdown:     true,
	}
	assert.Equal(t, 0, scoreOfferRisk(complete, weights))
}
