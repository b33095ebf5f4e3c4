package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"renopilot/internal/ai"
	"renopilot/internal/apperr"
	"renopilot/internal/config"
	"renopilot/internal/logger"
	"renopilot/internal/model"
	"renopilot/internal/repository"
)

// contractorConcurrency bounds how many contractor mailboxes one user's poll
// pass inspects in parallel.
const contractorConcurrency = 4

// PollReport summarizes one ingestion pass. Broadcast to connected clients
// after each run.
type PollReport struct {
	StartedAt          time.Time     `json:"started_at"`
	Duration           time.Duration `json:"duration"`
	UsersPolled        int           `json:"users_polled"`
	UsersSkipped       []string      `json:"users_skipped,omitempty"`
	ContractorsChecked int           `json:"contractors_checked"`
	NewMessages        int           `json:"new_messages"`
	OffersFound        int           `json:"offers_found"`
	Errors             int           `json:"errors"`
}

type ingestionService struct {
	userRepo       repository.UserRepository
	convRepo       repository.ConversationRepository
	messageRepo    repository.MessageRepository
	actionRepo     repository.ActionRepository
	contractorRepo repository.ContractorRepository
	processedRepo  repository.ProcessedEmailRepository
	mailClient     MailClient
	genClient      GenerationClient
	offerService   OfferService

	runTimeout        time.Duration
	contractorTimeout time.Duration
	maxFetch          int

	logger *logger.Logger
}

func NewIngestionService(
	userRepo repository.UserRepository,
	convRepo repository.ConversationRepository,
	messageRepo repository.MessageRepository,
	actionRepo repository.ActionRepository,
	contractorRepo repository.ContractorRepository,
	processedRepo repository.ProcessedEmailRepository,
	mailClient MailClient,
	genClient GenerationClient,
	offerService OfferService,
	cfg *config.Config,
	logger *logger.Logger,
) IngestionService {
	return &ingestionService{
		userRepo:          userRepo,
		convRepo:          convRepo,
		messageRepo:       messageRepo,
		actionRepo:        actionRepo,
		contractorRepo:    contractorRepo,
		processedRepo:     processedRepo,
		mailClient:        mailClient,
		genClient:         genClient,
		offerService:      offerService,
		runTimeout:        time.Duration(cfg.PollRunTimeout) * time.Second,
		contractorTimeout: time.Duration(cfg.ContractorTimeout) * time.Second,
		maxFetch:          cfg.MaxFetchEmails,
		logger:            logger,
	}
}

// PollOnce runs a single ingestion pass over every connected user's active
// conversations. One contractor failing never stops its siblings; expired
// credentials skip the whole user for this pass only.
func (s *ingestionService) PollOnce(ctx context.Context) (*PollReport, error) {
	ctx, cancel := context.WithTimeout(ctx, s.runTimeout)
	defer cancel()

	report := &PollReport{StartedAt: time.Now()}
	defer func() { report.Duration = time.Since(report.StartedAt) }()

	users, err := s.userRepo.FindAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}

	for _, user := range users {
		if !user.HasMailCredentials() {
			continue
		}
		report.UsersPolled++

		if err := s.pollUser(ctx, user, report); err != nil {
			if apperr.IsAuthExpired(err) {
				s.logger.Warn("Skipping user with expired mail credentials:", user.Email)
				report.UsersSkipped = append(report.UsersSkipped, user.Email)
				continue
			}
			if ctx.Err() != nil {
				// The run deadline hit; report what was done so far
				return report, nil
			}
			s.logger.Error("Poll pass failed for user", user.Email, ":", err)
			report.Errors++
		}
	}

	return report, nil
}

// pollUser fans out over the user's active conversations with bounded
// parallelism. Transient contractor failures are absorbed inside the
// goroutine; only AuthExpired propagates, cancelling the user's remaining
// contractors.
func (s *ingestionService) pollUser(ctx context.Context, user *model.User, report *PollReport) error {
	conversations, err := s.convRepo.FindActiveByUserID(ctx, user.ID)
	if err != nil {
		return fmt.Errorf("failed to list conversations: %w", err)
	}

	var mu sync.Mutex
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(contractorConcurrency)

	for _, conversation := range conversations {
		conversation := conversation
		group.Go(func() error {
			cctx, cancel := context.WithTimeout(groupCtx, s.contractorTimeout)
			defer cancel()

			newMessages, offersFound, err := s.pollConversation(cctx, user, conversation)

			mu.Lock()
			report.ContractorsChecked++
			report.NewMessages += newMessages
			report.OffersFound += offersFound
			if err != nil && !apperr.IsAuthExpired(err) {
				report.Errors++
			}
			mu.Unlock()

			if err != nil {
				if apperr.IsAuthExpired(err) {
					return err
				}
				s.logger.Warn("Contractor poll failed for conversation", conversation.ID, ":", err)
			}
			return nil
		})
	}

	return group.Wait()
}

// pollConversation checks one contractor mailbox for messages neither dedup
// ledger has seen and ingests each new one fully before writing its ledger
// record.
func (s *ingestionService) pollConversation(ctx context.Context, user *model.User, conversation *model.Conversation) (newMessages, offersFound int, err error) {
	contractor, err := s.contractorRepo.FindByID(ctx, conversation.ContractorID)
	if err != nil {
		return 0, 0, err
	}

	seen, err := mergedSeenSet(ctx, s.processedRepo, s.actionRepo, conversation.ID)
	if err != nil {
		return 0, 0, err
	}

	messageIDs, err := s.mailClient.SearchMessages(ctx, user.Email, contractor.Email, int64(s.maxFetch))
	if err != nil {
		return 0, 0, err
	}

	emails, err := fetchUnseenEmails(ctx, s.mailClient, user.Email, messageIDs, seen)
	if err != nil {
		return 0, 0, err
	}

	for _, email := range emails {
		if err := s.ingestEmail(ctx, user, conversation, contractor, email); err != nil {
			return newMessages, offersFound, err
		}
		newMessages++

		offer, err := s.offerService.ExtractFromEmail(ctx, conversation, user.Email, email)
		if err != nil {
			s.logger.Warn("Offer extraction failed for message", email.ID, ":", err)
		} else if offer != nil {
			offersFound++
			if err := s.proposeAnalysis(ctx, conversation, offer); err != nil {
				s.logger.Warn("Failed to propose offer analysis:", err)
			}
		}

		record := model.NewProcessedEmailRecord(user.ID, conversation.ID, conversation.ContractorID, email.ID)
		if err := s.processedRepo.Create(ctx, record); err != nil {
			return newMessages, offersFound, err
		}
	}

	return newMessages, offersFound, nil
}

// ingestEmail stores the inbound mail as a conversation message and appends a
// short AI notification line.
func (s *ingestionService) ingestEmail(ctx context.Context, user *model.User, conversation *model.Conversation, contractor *model.Contractor, email *model.InboundEmail) error {
	inbound := model.NewMessage(conversation.ID, model.SenderUser, model.MessagePlain,
		fmt.Sprintf("Email from %s: %s\n\n%s", contractor.Name, email.Subject, email.Body))
	if err := s.messageRepo.Create(ctx, inbound); err != nil {
		return err
	}

	summary, err := s.genClient.Generate(ctx, ai.PromptSpec{
		Task:   "email_notification",
		System: "Summarize the contractor email in one short sentence addressed to the homeowner.",
		Prompt: fmt.Sprintf("From: %s\nSubject: %s\n\n%s", contractor.Name, email.Subject, email.Body),
		Facts: map[string]interface{}{
			"source_message_id": email.ID,
		},
	}, ai.Options{
		MaxTokens: 80,
		Fallback:  &ai.Result{Text: fmt.Sprintf("New email from %s: %s", contractor.Name, email.Subject)},
	})
	if err != nil {
		return err
	}

	notice := model.NewMessage(conversation.ID, model.SenderAI, model.MessagePlain, summary.Text)
	return s.messageRepo.Create(ctx, notice)
}

// proposeAnalysis enqueues a pending analyze_offer action for a freshly
// extracted offer. The homeowner still has to approve it.
func (s *ingestionService) proposeAnalysis(ctx context.Context, conversation *model.Conversation, offer *model.Offer) error {
	data, err := json.Marshal(model.AnalyzeOfferPayload{OfferID: offer.ID})
	if err != nil {
		return err
	}

	summary := fmt.Sprintf("Analyze the new offer (%.2f %s, risk %d/100)", offer.TotalPrice, offer.Currency, offer.RiskScore)
	msg := model.NewMessage(conversation.ID, model.SenderAI, model.MessageActionProposal, summary)
	if err := s.messageRepo.Create(ctx, msg); err != nil {
		return err
	}

	action := model.NewAction(msg.ID, conversation.ID, model.ActionAnalyzeOffer, string(data), summary)
	return s.actionRepo.Create(ctx, action)
}
