package service

import (
	"context"
	"sort"

	"renopilot/internal/model"
	"renopilot/internal/repository"
)

// mergedSeenSet returns every mail message id already handled for a
// conversation, from both ledgers: the ingestion records and the result
// payloads of executed manual fetches. A message present in either is never
// processed again, so the poller and the fetch_email action cannot duplicate
// each other's work.
func mergedSeenSet(
	ctx context.Context,
	processedRepo repository.ProcessedEmailRepository,
	actionRepo repository.ActionRepository,
	conversationID string,
) (map[string]bool, error) {
	seen := make(map[string]bool)

	records, err := processedRepo.FindByConversationID(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	for _, record := range records {
		seen[record.SourceMessageID] = true
	}

	fetches, err := actionRepo.FindExecutedByKind(ctx, conversationID, model.ActionFetchEmail)
	if err != nil {
		return nil, err
	}
	for _, action := range fetches {
		var result model.FetchEmailResult
		if err := action.DecodeResult(&result); err != nil {
			// A malformed historical result must not unblock reprocessing
			// of unrelated messages; skip just this entry.
			continue
		}
		for _, id := range result.MessageIDs {
			seen[id] = true
		}
	}

	return seen, nil
}

// fetchUnseenEmails loads full details for every message id not in seen and
// returns them newest first by received time. The search result's own order
// is provider-defined and never relied on.
func fetchUnseenEmails(
	ctx context.Context,
	mailClient MailClient,
	userEmail string,
	messageIDs []string,
	seen map[string]bool,
) ([]*model.InboundEmail, error) {
	var emails []*model.InboundEmail
	for _, messageID := range messageIDs {
		if seen[messageID] {
			continue
		}
		email, err := mailClient.GetMessageDetails(ctx, userEmail, messageID)
		if err != nil {
			return nil, err
		}
		emails = append(emails, email)
	}

	sort.SliceStable(emails, func(i, j int) bool {
		return emails[i].ReceivedAt.After(emails[j].ReceivedAt)
	})
	return emails, nil
}
