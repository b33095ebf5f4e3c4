package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"renopilot/internal/ai"
	"renopilot/internal/apperr"
	"renopilot/internal/config"
	"renopilot/internal/logger"
	"renopilot/internal/model"
	"renopilot/internal/pdf"
	"renopilot/internal/repository"
)

const extractionSystemPrompt = `You extract structured price offers from contractor emails.
Reply with a single JSON object and nothing else:
{"is_offer": bool, "total_price": number, "currency": string, "timeline_start": string,
"timeline_end": string, "timeline_duration_days": number, "scope": string,
"payment_terms": string, "warranty": string, "has_insurance": bool, "has_cost_breakdown": bool}
Set "is_offer" to false when the email contains no concrete price offer.
Use empty strings, zero and false for anything the email does not state.`

// offerExtraction is the JSON contract of the extraction model call.
type offerExtraction struct {
	IsOffer              bool    `json:"is_offer"`
	TotalPrice           float64 `json:"total_price"`
	Currency             string  `json:"currency"`
	TimelineStart        string  `json:"timeline_start"`
	TimelineEnd          string  `json:"timeline_end"`
	TimelineDurationDays int     `json:"timeline_duration_days"`
	Scope                string  `json:"scope"`
	PaymentTerms         string  `json:"payment_terms"`
	Warranty             string  `json:"warranty"`
	HasInsurance         bool    `json:"has_insurance"`
	HasCostBreakdown     bool    `json:"has_cost_breakdown"`
}

type offerService struct {
	offerRepo    repository.OfferRepository
	analysisRepo repository.OfferAnalysisRepository
	genClient    GenerationClient
	mailClient   MailClient
	risk         config.RiskWeights
	logger       *logger.Logger
}

func NewOfferService(
	offerRepo repository.OfferRepository,
	analysisRepo repository.OfferAnalysisRepository,
	genClient GenerationClient,
	mailClient MailClient,
	risk config.RiskWeights,
	logger *logger.Logger,
) OfferService {
	return &offerService{
		offerRepo:    offerRepo,
		analysisRepo: analysisRepo,
		genClient:    genClient,
		mailClient:   mailClient,
		risk:         risk,
		logger:       logger,
	}
}

// ExtractFromEmail runs offer detection on one inbound email. Returns nil
// when the mail contains no offer, and the already-stored offer when the same
// source message was extracted before.
func (s *offerService) ExtractFromEmail(ctx context.Context, conversation *model.Conversation, userEmail string, email *model.InboundEmail) (*model.Offer, error) {
	if existing, err := s.offerRepo.FindBySourceMessageID(ctx, email.ID); err == nil {
		return existing, nil
	}

	text := s.collectText(ctx, userEmail, email)

	fallback, _ := json.Marshal(offerExtraction{IsOffer: false})
	result, err := s.genClient.Generate(ctx, ai.PromptSpec{
		Task:   "offer_extraction",
		System: extractionSystemPrompt,
		Prompt: fmt.Sprintf("Subject: %s\n\n%s", email.Subject, text),
		Facts: map[string]interface{}{
			"source_message_id": email.ID,
			"contractor_id":     conversation.ContractorID,
		},
	}, ai.Options{
		Validate: func(r *ai.Result) bool {
			var parsed offerExtraction
			return json.Unmarshal([]byte(stripCodeFences(r.Text)), &parsed) == nil
		},
		Fallback: &ai.Result{Text: string(fallback)},
	})
	if err != nil {
		return nil, fmt.Errorf("offer extraction failed: %w", err)
	}

	var extract offerExtraction
	if err := json.Unmarshal([]byte(stripCodeFences(result.Text)), &extract); err != nil {
		// Fallback path already guarantees parseable JSON; treat anything
		// else as "no offer" rather than failing ingestion.
		s.logger.Warn("Unparseable extraction for message", email.ID, "- treating as no offer")
		return nil, nil
	}
	if !extract.IsOffer {
		return nil, nil
	}

	offer := model.NewOffer(conversation.ID, conversation.ContractorID, email.ID)
	offer.TotalPrice = extract.TotalPrice
	offer.Currency = extract.Currency
	offer.TimelineStart = extract.TimelineStart
	offer.TimelineEnd = extract.TimelineEnd
	offer.TimelineDurationDays = extract.TimelineDurationDays
	offer.ScopeText = extract.Scope
	offer.PaymentTerms = extract.PaymentTerms
	offer.Warranty = extract.Warranty
	offer.HasInsurance = extract.HasInsurance
	offer.HasCostBreakdown = extract.HasCostBreakdown
	offer.RiskScore = scoreOfferRisk(offer, s.risk)
	offer.RawExtract = stripCodeFences(result.Text)

	if err := s.offerRepo.Create(ctx, offer); err != nil {
		if apperr.IsConflict(err) {
			// Lost the race against a concurrent extraction of the same mail
			return s.offerRepo.FindBySourceMessageID(ctx, email.ID)
		}
		return nil, err
	}

	s.logger.Info("Extracted offer", offer.ID, "from message", email.ID, "risk score", offer.RiskScore)
	return offer, nil
}

// collectText joins the email body with the plain text of every PDF
// attachment. A failed download or extraction skips that attachment only.
func (s *offerService) collectText(ctx context.Context, userEmail string, email *model.InboundEmail) string {
	parts := []string{email.Body}
	for _, att := range email.Attachments {
		if !att.IsPDF() {
			continue
		}
		data, err := s.mailClient.DownloadAttachment(ctx, userEmail, email.ID, att.ID)
		if err != nil {
			s.logger.Warn("Failed to download attachment", att.Filename, "from message", email.ID, ":", err)
			continue
		}
		text, err := pdf.ExtractText(data)
		if err != nil {
			s.logger.Warn("Failed to extract text from", att.Filename, ":", err)
			continue
		}
		parts = append(parts, fmt.Sprintf("--- Attachment %s ---\n%s", att.Filename, text))
	}
	return strings.Join(parts, "\n\n")
}

func (s *offerService) AnalyzeOffer(ctx context.Context, conversation *model.Conversation, offerID string) (*model.OfferAnalysis, error) {
	offer, err := s.offerRepo.FindByID(ctx, offerID)
	if err != nil {
		return nil, err
	}

	result, err := s.genClient.Generate(ctx, ai.PromptSpec{
		Task:   "offer_analysis",
		System: "You assess renovation offers for a homeowner. Point out strengths, gaps and negotiation levers in a short plain-text report.",
		Prompt: renderOfferFacts(offer),
		Facts: map[string]interface{}{
			"offer_id":    offer.ID,
			"total_price": offer.TotalPrice,
			"risk_score":  offer.RiskScore,
		},
	}, ai.Options{
		Fallback: &ai.Result{Text: deterministicOfferReport(offer)},
	})
	if err != nil {
		return nil, fmt.Errorf("offer analysis failed: %w", err)
	}

	analysis := model.NewOfferAnalysis(conversation.ID, offer.ID, model.AnalysisSingle, nil, result.Text)
	if err := s.analysisRepo.Create(ctx, analysis); err != nil {
		return nil, err
	}
	return analysis, nil
}

func (s *offerService) CompareOffers(ctx context.Context, conversation *model.Conversation, primaryOfferID string, comparedOfferIDs []string) (*model.OfferAnalysis, error) {
	primary, err := s.offerRepo.FindByID(ctx, primaryOfferID)
	if err != nil {
		return nil, err
	}

	var sb strings.Builder
	sb.WriteString("Primary offer:\n")
	sb.WriteString(renderOfferFacts(primary))
	for i, id := range comparedOfferIDs {
		other, err := s.offerRepo.FindByID(ctx, id)
		if err != nil {
			return nil, err
		}
		sb.WriteString(fmt.Sprintf("\nCompared offer %d:\n", i+1))
		sb.WriteString(renderOfferFacts(other))
	}

	result, err := s.genClient.Generate(ctx, ai.PromptSpec{
		Task:   "offer_comparison",
		System: "You compare renovation offers for a homeowner. Contrast price, timeline, scope and risk in a short plain-text report and recommend which offer to pursue.",
		Prompt: sb.String(),
		Facts: map[string]interface{}{
			"primary_offer_id":   primaryOfferID,
			"compared_offer_ids": comparedOfferIDs,
		},
	}, ai.Options{
		Fallback: &ai.Result{Text: deterministicOfferReport(primary)},
	})
	if err != nil {
		return nil, fmt.Errorf("offer comparison failed: %w", err)
	}

	analysis := model.NewOfferAnalysis(conversation.ID, primaryOfferID, model.AnalysisComparison, comparedOfferIDs, result.Text)
	if err := s.analysisRepo.Create(ctx, analysis); err != nil {
		return nil, err
	}
	return analysis, nil
}

func (s *offerService) GetOffersByConversation(ctx context.Context, conversationID string) ([]*model.Offer, error) {
	return s.offerRepo.FindByConversationID(ctx, conversationID)
}

func (s *offerService) GetAnalysesByConversation(ctx context.Context, conversationID string) ([]*model.OfferAnalysis, error) {
	return s.analysisRepo.FindByConversationID(ctx, conversationID)
}

// scoreOfferRisk sums the configured penalties for missing or weak offer
// fields, capped at 100. Same offer and weights always score the same.
func scoreOfferRisk(offer *model.Offer, w config.RiskWeights) int {
	score := 0
	if offer.Warranty == "" {
		score += w.MissingWarranty
	}
	if offer.PaymentTerms == "" {
		score += w.MissingPaymentTerms
	}
	if !offer.HasInsurance {
		score += w.MissingInsurance
	}
	if offer.TimelineDurationDays == 0 && offer.TimelineStart == "" && offer.TimelineEnd == "" {
		score += w.MissingTimeline
	} else if offer.TimelineDurationDays > 0 && offer.TimelineDurationDays < w.ShortTimelineDays {
		score += w.ShortTimeline
	}
	if !offer.HasCostBreakdown {
		score += w.MissingCostBreakdown
	}
	if len(strings.TrimSpace(offer.ScopeText)) < w.ThinScopeChars {
		score += w.ThinScope
	}
	if score > 100 {
		score = 100
	}
	return score
}

func renderOfferFacts(offer *model.Offer) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("- Total price: %.2f %s\n", offer.TotalPrice, offer.Currency))
	if offer.TimelineDurationDays > 0 {
		sb.WriteString(fmt.Sprintf("- Timeline: %d days", offer.TimelineDurationDays))
		if offer.TimelineStart != "" {
			sb.WriteString(fmt.Sprintf(" (%s to %s)", offer.TimelineStart, offer.TimelineEnd))
		}
		sb.WriteString("\n")
	} else {
		sb.WriteString("- Timeline: not stated\n")
	}
	sb.WriteString(fmt.Sprintf("- Scope: %s\n", valueOr(offer.ScopeText, "not stated")))
	sb.WriteString(fmt.Sprintf("- Payment terms: %s\n", valueOr(offer.PaymentTerms, "not stated")))
	sb.WriteString(fmt.Sprintf("- Warranty: %s\n", valueOr(offer.Warranty, "not stated")))
	sb.WriteString(fmt.Sprintf("- Insurance: %t\n", offer.HasInsurance))
	sb.WriteString(fmt.Sprintf("- Cost breakdown: %t\n", offer.HasCostBreakdown))
	sb.WriteString(fmt.Sprintf("- Risk score: %d/100\n", offer.RiskScore))
	return sb.String()
}

// deterministicOfferReport is the fallback analysis used when both model
// tiers are unavailable. It states only what the structured fields contain.
func deterministicOfferReport(offer *model.Offer) string {
	var gaps []string
	if offer.Warranty == "" {
		gaps = append(gaps, "no warranty stated")
	}
	if offer.PaymentTerms == "" {
		gaps = append(gaps, "no payment terms stated")
	}
	if !offer.HasInsurance {
		gaps = append(gaps, "no proof of insurance")
	}
	if !offer.HasCostBreakdown {
		gaps = append(gaps, "no cost breakdown")
	}

	report := fmt.Sprintf("Offer of %.2f %s with risk score %d/100.", offer.TotalPrice, offer.Currency, offer.RiskScore)
	if len(gaps) > 0 {
		report += " Open points: " + strings.Join(gaps, ", ") + "."
	}
	return report
}

func valueOr(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}

// stripCodeFences removes a surrounding markdown code fence, which models add
// around JSON despite instructions.
func stripCodeFences(text string) string {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}
