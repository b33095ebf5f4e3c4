package service

import (
	"fmt"
	"strings"

	"renopilot/internal/model"
)

// ContextBuilder assembles the prompt for a conversation turn. Pure and
// stateless: the same window, facts and actions always produce the same text.
type ContextBuilder struct {
	window int
}

func NewContextBuilder(window int) *ContextBuilder {
	if window <= 0 {
		window = 20
	}
	return &ContextBuilder{window: window}
}

// Build renders project and contractor facts followed by the most recent
// messages, oldest first. Messages whose action is approved or executed are
// rendered as the action's one-line summary to bound prompt size.
func (b *ContextBuilder) Build(project *model.Project, contractor *model.Contractor, messages []*model.Message, actions map[string]*model.Action) string {
	var sb strings.Builder

	sb.WriteString("Project facts:\n")
	sb.WriteString(fmt.Sprintf("- Title: %s\n", project.Title))
	if project.Address != "" {
		sb.WriteString(fmt.Sprintf("- Address: %s\n", project.Address))
	}
	if project.Description != "" {
		sb.WriteString(fmt.Sprintf("- Scope: %s\n", project.Description))
	}
	if project.BudgetLimit > 0 {
		sb.WriteString(fmt.Sprintf("- Budget limit: %.2f %s\n", project.BudgetLimit, project.Currency))
	}

	sb.WriteString("\nContractor facts:\n")
	sb.WriteString(fmt.Sprintf("- Name: %s\n", contractor.Name))
	sb.WriteString(fmt.Sprintf("- Email: %s\n", contractor.Email))
	if contractor.Trade != "" {
		sb.WriteString(fmt.Sprintf("- Trade: %s\n", contractor.Trade))
	}
	if contractor.Notes != "" {
		sb.WriteString(fmt.Sprintf("- Notes: %s\n", contractor.Notes))
	}

	window := messages
	if len(window) > b.window {
		window = window[len(window)-b.window:]
	}

	sb.WriteString("\nConversation so far:\n")
	for _, msg := range window {
		sb.WriteString(b.renderMessage(msg, actions))
		sb.WriteString("\n")
	}

	return sb.String()
}

func (b *ContextBuilder) renderMessage(msg *model.Message, actions map[string]*model.Action) string {
	label := "Homeowner"
	if msg.Sender == model.SenderAI {
		label = "Assistant"
	}

	if action, ok := actions[msg.ID]; ok {
		switch action.Status {
		case model.StatusApproved, model.StatusExecuted:
			return fmt.Sprintf("%s: [%s] %s", label, action.Status, action.Summary)
		case model.StatusRejected:
			return fmt.Sprintf("%s: [rejected] %s", label, action.Summary)
		}
	}

	return fmt.Sprintf("%s: %s", label, msg.Content)
}
