package service

import (
	"encoding/json"
	"fmt"

	"renopilot/internal/ai"
	"renopilot/internal/apperr"
	"renopilot/internal/model"
)

const unknownToolReply = "I wasn't able to turn that into a concrete step. Could you rephrase what you'd like me to do?"

// Dispatcher turns a classified model reply into conversation state: a plain
// message, or an action-proposal message paired with a pending action. An
// unknown tool name degrades to a plain message so the turn is never dropped.
type Dispatcher struct{}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{}
}

// Dispatch maps a generation result onto a message and, for tool calls, a
// pending action. The returned message and action are not yet persisted.
func (d *Dispatcher) Dispatch(conversationID string, result *ai.Result) (*model.Message, *model.Action, error) {
	if result.Tool == nil {
		msg := model.NewMessage(conversationID, model.SenderAI, model.MessagePlain, result.Text)
		return msg, nil, nil
	}

	if !model.KnownActionKind(result.Tool.Name) {
		msg := model.NewMessage(conversationID, model.SenderAI, model.MessagePlain, unknownToolReply)
		return msg, nil, nil
	}

	kind := model.ActionKind(result.Tool.Name)
	payload, summary, err := d.resolvePayload(kind, result.Tool)
	if err != nil {
		return nil, nil, err
	}

	msg := model.NewMessage(conversationID, model.SenderAI, model.MessageActionProposal, summary)
	action := model.NewAction(msg.ID, conversationID, kind, payload, summary)
	return msg, action, nil
}

// resolvePayload validates the tool arguments against the kind's required
// fields and synthesizes the one-line summary used as conversation memory.
func (d *Dispatcher) resolvePayload(kind model.ActionKind, tool *ai.ToolCall) (payload, summary string, err error) {
	switch kind {
	case model.ActionSendEmail:
		p := model.SendEmailPayload{
			To:      tool.StringArg("to"),
			Subject: tool.StringArg("subject"),
			Body:    tool.StringArg("body"),
		}
		if p.To == "" {
			return "", "", apperr.Validation("to", "send_email requires a recipient")
		}
		if p.Subject == "" {
			return "", "", apperr.Validation("subject", "send_email requires a subject")
		}
		if p.Body == "" {
			return "", "", apperr.Validation("body", "send_email requires a body")
		}
		return encodePayload(p, fmt.Sprintf("Send email to %s: %q", p.To, p.Subject))

	case model.ActionFetchEmail:
		p := model.FetchEmailPayload{
			ContractorID: tool.StringArg("contractor_id"),
		}
		if max, ok := tool.Args["max"].(float64); ok {
			p.Max = int(max)
		}
		if p.ContractorID == "" {
			return "", "", apperr.Validation("contractor_id", "fetch_email requires a contractor")
		}
		return encodePayload(p, "Fetch recent emails from the contractor")

	case model.ActionAnalyzeOffer:
		p := model.AnalyzeOfferPayload{
			OfferID: tool.StringArg("offer_id"),
		}
		if p.OfferID == "" {
			return "", "", apperr.Validation("offer_id", "analyze_offer requires an offer")
		}
		return encodePayload(p, fmt.Sprintf("Analyze offer %s", p.OfferID))

	case model.ActionCompareOffers:
		p := model.CompareOffersPayload{
			PrimaryOfferID:   tool.StringArg("primary_offer_id"),
			ComparedOfferIDs: tool.StringSliceArg("compared_offer_ids"),
		}
		if p.PrimaryOfferID == "" {
			return "", "", apperr.Validation("primary_offer_id", "compare_offers requires a primary offer")
		}
		return encodePayload(p, fmt.Sprintf("Compare offer %s against %d other offer(s)", p.PrimaryOfferID, len(p.ComparedOfferIDs)))
	}

	return "", "", apperr.Validation("kind", "unsupported action kind")
}

func encodePayload(p interface{}, summary string) (string, string, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return "", "", fmt.Errorf("failed to encode action payload: %w", err)
	}
	return string(data), summary, nil
}
