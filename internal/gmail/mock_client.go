package gmail

import (
	"context"
	"sync"

	"renopilot/internal/model"
)

// MockMailClient is a mock mail gateway for testing. SentEmails records every
// send so tests can assert a side effect ran exactly once.
type MockMailClient struct {
	SearchMessagesFunc     func(ctx context.Context, userEmail, fromAddress string, max int64) ([]string, error)
	GetMessageDetailsFunc  func(ctx context.Context, userEmail, messageID string) (*model.InboundEmail, error)
	DownloadAttachmentFunc func(ctx context.Context, userEmail, messageID, attachmentID string) ([]byte, error)
	SendEmailFunc          func(ctx context.Context, userEmail string, out *model.OutboundEmail) (*model.SendReceipt, error)

	mu         sync.Mutex
	SentEmails []*model.OutboundEmail
}

func NewMockMailClient() *MockMailClient {
	return &MockMailClient{}
}

func (m *MockMailClient) SearchMessages(ctx context.Context, userEmail, fromAddress string, max int64) ([]string, error) {
	if m.SearchMessagesFunc != nil {
		return m.SearchMessagesFunc(ctx, userEmail, fromAddress, max)
	}
	return nil, nil
}

func (m *MockMailClient) GetMessageDetails(ctx context.Context, userEmail, messageID string) (*model.InboundEmail, error) {
	if m.GetMessageDetailsFunc != nil {
		return m.GetMessageDetailsFunc(ctx, userEmail, messageID)
	}
	return &model.InboundEmail{ID: messageID}, nil
}

func (m *MockMailClient) DownloadAttachment(ctx context.Context, userEmail, messageID, attachmentID string) ([]byte, error) {
	if m.DownloadAttachmentFunc != nil {
		return m.DownloadAttachmentFunc(ctx, userEmail, messageID, attachmentID)
	}
	return nil, nil
}

func (m *MockMailClient) SendEmail(ctx context.Context, userEmail string, out *model.OutboundEmail) (*model.SendReceipt, error) {
	m.mu.Lock()
	m.SentEmails = append(m.SentEmails, out)
	m.mu.Unlock()

	if m.SendEmailFunc != nil {
		return m.SendEmailFunc(ctx, userEmail, out)
	}
	return &model.SendReceipt{MessageID: "sent-1", ThreadID: "thread-1"}, nil
}

// SentCount returns how many emails reached the gateway.
func (m *MockMailClient) SentCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.SentEmails)
}
