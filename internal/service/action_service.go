package service

import (
	"context"
	"encoding/json"
	"fmt"

	"renopilot/internal/ai"
	"renopilot/internal/apperr"
	"renopilot/internal/logger"
	"renopilot/internal/model"
	"renopilot/internal/repository"
)

type actionService struct {
	actionRepo     repository.ActionRepository
	messageRepo    repository.MessageRepository
	convRepo       repository.ConversationRepository
	userRepo       repository.UserRepository
	contractorRepo repository.ContractorRepository
	offerRepo      repository.OfferRepository
	processedRepo  repository.ProcessedEmailRepository
	mailClient     MailClient
	genClient      GenerationClient
	offerService   OfferService
	maxFetch       int
	logger         *logger.Logger
}

func NewActionService(
	actionRepo repository.ActionRepository,
	messageRepo repository.MessageRepository,
	convRepo repository.ConversationRepository,
	userRepo repository.UserRepository,
	contractorRepo repository.ContractorRepository,
	offerRepo repository.OfferRepository,
	processedRepo repository.ProcessedEmailRepository,
	mailClient MailClient,
	genClient GenerationClient,
	offerService OfferService,
	maxFetch int,
	logger *logger.Logger,
) ActionService {
	if maxFetch <= 0 {
		maxFetch = 5
	}
	return &actionService{
		actionRepo:     actionRepo,
		messageRepo:    messageRepo,
		convRepo:       convRepo,
		userRepo:       userRepo,
		contractorRepo: contractorRepo,
		offerRepo:      offerRepo,
		processedRepo:  processedRepo,
		mailClient:     mailClient,
		genClient:      genClient,
		offerService:   offerService,
		maxFetch:       maxFetch,
		logger:         logger,
	}
}

func (s *actionService) GetAction(ctx context.Context, actionID string) (*model.Action, error) {
	return s.actionRepo.FindByID(ctx, actionID)
}

// Approve moves a pending action through approved to executed. A failed
// action may be approved again, which retries the side effect. Any other
// status returns a conflict so a second approval can never execute twice.
func (s *actionService) Approve(ctx context.Context, actionID, modifications string) (*model.Action, error) {
	action, err := s.actionRepo.FindByID(ctx, actionID)
	if err != nil {
		return nil, err
	}

	switch action.Status {
	case model.StatusPending:
	case model.StatusFailed:
		// Explicit retry edge: failed returns to pending before re-approval.
		// The transition is stored so the persisted history never shows a
		// direct failed to approved jump.
		action.Status = model.StatusPending
		if err := s.actionRepo.Update(ctx, action); err != nil {
			return nil, err
		}
	default:
		return nil, apperr.Conflict("action", action.ID, fmt.Sprintf("already %s", action.Status))
	}

	conversation, err := s.convRepo.FindByID(ctx, action.ConversationID)
	if err != nil {
		return nil, err
	}

	if modifications != "" {
		if err := s.applyModifications(ctx, action, modifications); err != nil {
			return nil, err
		}
	}

	// Guardrails run before any transition so a refused approval leaves the
	// action pending and untouched.
	if err := s.checkGuardrails(ctx, action, conversation); err != nil {
		return nil, err
	}

	action.Status = model.StatusApproved
	if err := s.actionRepo.Update(ctx, action); err != nil {
		return nil, err
	}

	result, execErr := s.execute(ctx, action, conversation)
	if execErr != nil {
		action.Status = model.StatusFailed
		if err := s.actionRepo.Update(ctx, action); err != nil {
			s.logger.Error("Failed to record action failure:", err)
		}
		s.logger.Warn("Action", action.ID, "failed:", execErr)
		return action, execErr
	}

	resultJSON, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("failed to encode action result: %w", err)
	}
	action.Status = model.StatusExecuted
	action.Result = string(resultJSON)
	if err := s.actionRepo.Update(ctx, action); err != nil {
		return nil, err
	}

	s.recordOutcome(ctx, action)
	s.logger.Info("Executed action", action.ID, "kind", action.Kind)
	return action, nil
}

// Reject marks a pending action rejected. Nothing executes; rejected is
// terminal.
func (s *actionService) Reject(ctx context.Context, actionID string) error {
	action, err := s.actionRepo.FindByID(ctx, actionID)
	if err != nil {
		return err
	}
	if !action.Status.CanTransitionTo(model.StatusRejected) {
		return apperr.Conflict("action", action.ID, fmt.Sprintf("cannot reject while %s", action.Status))
	}

	action.Status = model.StatusRejected
	if err := s.actionRepo.Update(ctx, action); err != nil {
		return err
	}
	s.recordOutcome(ctx, action)
	return nil
}

// applyModifications re-drafts a send_email body from the homeowner's
// instructions before approval. Other kinds carry no free text to modify.
func (s *actionService) applyModifications(ctx context.Context, action *model.Action, modifications string) error {
	if action.Kind != model.ActionSendEmail {
		return apperr.Validation("modifications", fmt.Sprintf("%s actions cannot be modified", action.Kind))
	}

	var payload model.SendEmailPayload
	if err := action.DecodePayload(&payload); err != nil {
		return apperr.Parse("approve", err)
	}

	result, err := s.genClient.Generate(ctx, ai.PromptSpec{
		Task:   "email_redraft",
		System: "You revise a draft email per the homeowner's instructions. Reply with the revised body only, no preamble.",
		Prompt: fmt.Sprintf("Draft:\n%s\n\nInstructions:\n%s", payload.Body, modifications),
		Facts: map[string]interface{}{
			"action_id": action.ID,
		},
	}, ai.Options{
		Validate: func(r *ai.Result) bool { return r.Text != "" },
	})
	if err != nil {
		return fmt.Errorf("failed to apply modifications: %w", err)
	}

	payload.Body = result.Text
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode modified payload: %w", err)
	}
	action.Payload = string(data)
	return nil
}

// checkGuardrails refuses approvals whose targets crossed conversations or
// went stale since the proposal was drafted.
func (s *actionService) checkGuardrails(ctx context.Context, action *model.Action, conversation *model.Conversation) error {
	switch action.Kind {
	case model.ActionSendEmail:
		var payload model.SendEmailPayload
		if err := action.DecodePayload(&payload); err != nil {
			return apperr.Parse("approve", err)
		}
		contractor, err := s.contractorRepo.FindByID(ctx, conversation.ContractorID)
		if err != nil {
			return err
		}
		if payload.To != contractor.Email {
			return apperr.Validation("to", "recipient is not this conversation's contractor")
		}

	case model.ActionAnalyzeOffer:
		var payload model.AnalyzeOfferPayload
		if err := action.DecodePayload(&payload); err != nil {
			return apperr.Parse("approve", err)
		}
		offer, err := s.offerRepo.FindByID(ctx, payload.OfferID)
		if err != nil {
			return err
		}
		if offer.ContractorID != conversation.ContractorID {
			return apperr.Validation("offer_id", "offer belongs to another contractor")
		}

	case model.ActionCompareOffers:
		var payload model.CompareOffersPayload
		if err := action.DecodePayload(&payload); err != nil {
			return apperr.Parse("approve", err)
		}
		offer, err := s.offerRepo.FindByID(ctx, payload.PrimaryOfferID)
		if err != nil {
			return err
		}
		if offer.ContractorID != conversation.ContractorID {
			return apperr.Validation("primary_offer_id", "offer belongs to another contractor")
		}
		latest, err := s.offerRepo.FindLatestByContractor(ctx, conversation.ID, conversation.ContractorID)
		if err == nil && latest.ID != offer.ID {
			return apperr.Validation("primary_offer_id", "a newer offer from this contractor supersedes the proposed one")
		}
		// Every comparison target must also still be its contractor's
		// latest offer, or the analysis would rank a superseded bid.
		for _, comparedID := range payload.ComparedOfferIDs {
			compared, err := s.offerRepo.FindByID(ctx, comparedID)
			if err != nil {
				return err
			}
			latest, err := s.offerRepo.FindLatestByContractor(ctx, compared.ConversationID, compared.ContractorID)
			if err == nil && latest.ID != compared.ID {
				return apperr.Validation("compared_offer_ids", "a newer offer from a compared contractor supersedes the proposed one")
			}
		}
	}

	return nil
}

func (s *actionService) execute(ctx context.Context, action *model.Action, conversation *model.Conversation) (interface{}, error) {
	switch action.Kind {
	case model.ActionSendEmail:
		return s.executeSendEmail(ctx, action, conversation)
	case model.ActionFetchEmail:
		return s.executeFetchEmail(ctx, action, conversation)
	case model.ActionAnalyzeOffer:
		return s.executeAnalyzeOffer(ctx, action, conversation)
	case model.ActionCompareOffers:
		return s.executeCompareOffers(ctx, action, conversation)
	}
	return nil, apperr.Validation("kind", fmt.Sprintf("unknown action kind %s", action.Kind))
}

func (s *actionService) executeSendEmail(ctx context.Context, action *model.Action, conversation *model.Conversation) (interface{}, error) {
	var payload model.SendEmailPayload
	if err := action.DecodePayload(&payload); err != nil {
		return nil, apperr.Parse("send_email", err)
	}

	user, err := s.userRepo.FindByID(ctx, conversation.UserID)
	if err != nil {
		return nil, err
	}

	receipt, err := s.mailClient.SendEmail(ctx, user.Email, &model.OutboundEmail{
		To:       payload.To,
		Subject:  payload.Subject,
		BodyHTML: payload.Body,
	})
	if err != nil {
		return nil, err
	}

	return model.SendEmailResult{
		ProviderMessageID: receipt.MessageID,
		ThreadID:          receipt.ThreadID,
	}, nil
}

// executeFetchEmail pulls the contractor's most recent messages, skips
// everything either dedup ledger already covers, stores the rest as inbound
// conversation messages and runs offer extraction on each.
func (s *actionService) executeFetchEmail(ctx context.Context, action *model.Action, conversation *model.Conversation) (interface{}, error) {
	var payload model.FetchEmailPayload
	if err := action.DecodePayload(&payload); err != nil {
		return nil, apperr.Parse("fetch_email", err)
	}
	max := payload.Max
	if max <= 0 || max > s.maxFetch {
		max = s.maxFetch
	}

	user, err := s.userRepo.FindByID(ctx, conversation.UserID)
	if err != nil {
		return nil, err
	}
	contractor, err := s.contractorRepo.FindByID(ctx, conversation.ContractorID)
	if err != nil {
		return nil, err
	}

	seen, err := mergedSeenSet(ctx, s.processedRepo, s.actionRepo, conversation.ID)
	if err != nil {
		return nil, err
	}

	messageIDs, err := s.mailClient.SearchMessages(ctx, user.Email, contractor.Email, int64(max))
	if err != nil {
		return nil, err
	}

	emails, err := fetchUnseenEmails(ctx, s.mailClient, user.Email, messageIDs, seen)
	if err != nil {
		return nil, err
	}

	result := model.FetchEmailResult{MessageIDs: messageIDs}
	for _, email := range emails {
		inbound := model.NewMessage(conversation.ID, model.SenderUser, model.MessagePlain,
			fmt.Sprintf("Email from %s: %s\n\n%s", contractor.Name, email.Subject, email.Body))
		if err := s.messageRepo.Create(ctx, inbound); err != nil {
			return nil, err
		}
		result.NewMessages++

		offer, err := s.offerService.ExtractFromEmail(ctx, conversation, user.Email, email)
		if err != nil {
			s.logger.Warn("Offer extraction failed for message", email.ID, ":", err)
		} else if offer != nil {
			result.OffersFound++
		}

		record := model.NewProcessedEmailRecord(user.ID, conversation.ID, conversation.ContractorID, email.ID)
		if err := s.processedRepo.Create(ctx, record); err != nil {
			return nil, err
		}
	}

	return result, nil
}

func (s *actionService) executeAnalyzeOffer(ctx context.Context, action *model.Action, conversation *model.Conversation) (interface{}, error) {
	var payload model.AnalyzeOfferPayload
	if err := action.DecodePayload(&payload); err != nil {
		return nil, apperr.Parse("analyze_offer", err)
	}

	analysis, err := s.offerService.AnalyzeOffer(ctx, conversation, payload.OfferID)
	if err != nil {
		return nil, err
	}
	return model.AnalysisResult{AnalysisID: analysis.ID, Report: analysis.Report}, nil
}

func (s *actionService) executeCompareOffers(ctx context.Context, action *model.Action, conversation *model.Conversation) (interface{}, error) {
	var payload model.CompareOffersPayload
	if err := action.DecodePayload(&payload); err != nil {
		return nil, apperr.Parse("compare_offers", err)
	}

	analysis, err := s.offerService.CompareOffers(ctx, conversation, payload.PrimaryOfferID, payload.ComparedOfferIDs)
	if err != nil {
		return nil, err
	}
	return model.AnalysisResult{AnalysisID: analysis.ID, Report: analysis.Report}, nil
}

// recordOutcome rewrites the proposal message to reflect the resolution and,
// for executed actions, appends a result message to the conversation. Best
// effort: a failed rewrite never undoes the executed side effect.
func (s *actionService) recordOutcome(ctx context.Context, action *model.Action) {
	if msg, err := s.messageRepo.FindByID(ctx, action.MessageID); err == nil {
		msg.Content = fmt.Sprintf("[%s] %s", action.Status, action.Summary)
		if err := s.messageRepo.Update(ctx, msg); err != nil {
			s.logger.Warn("Failed to rewrite proposal message:", err)
		}
	}

	if action.Status != model.StatusExecuted {
		return
	}

	content := fmt.Sprintf("Done: %s", action.Summary)
	switch action.Kind {
	case model.ActionFetchEmail:
		var result model.FetchEmailResult
		if action.DecodeResult(&result) == nil {
			content = fmt.Sprintf("Fetched contractor email: %d new message(s), %d offer(s) found.", result.NewMessages, result.OffersFound)
		}
	case model.ActionAnalyzeOffer, model.ActionCompareOffers:
		var result model.AnalysisResult
		if action.DecodeResult(&result) == nil {
			content = result.Report
		}
	}

	outcome := model.NewMessage(action.ConversationID, model.SenderAI, model.MessageActionExecuted, content)
	if err := s.messageRepo.Create(ctx, outcome); err != nil {
		s.logger.Warn("Failed to record action outcome message:", err)
	}
}
