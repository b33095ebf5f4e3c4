package gmail

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"renopilot/internal/apperr"
	"renopilot/internal/logger"
	"renopilot/internal/model"
)

// Client is the mail gateway for one authenticated user. Token refresh is
// not handled here; a 401 from the API surfaces as a typed AuthExpired error
// and the caller reacts.
type Client struct {
	service   *gmail.Service
	userEmail string
	logger    *logger.Logger
}

func NewClient(accessToken, userEmail string, logger *logger.Logger) (*Client, error) {
	httpClient := &http.Client{
		Transport: &oauth2Transport{token: accessToken},
	}

	service, err := gmail.NewService(context.Background(), option.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gmail service: %w", err)
	}

	return &Client{
		service:   service,
		userEmail: userEmail,
		logger:    logger,
	}, nil
}

type oauth2Transport struct {
	token string
}

func (t *oauth2Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	req.Header.Set("Authorization", "Bearer "+t.token)
	return http.DefaultTransport.RoundTrip(req)
}

// mapError turns Gmail API failures into the typed taxonomy.
func (c *Client) mapError(op string, err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == http.StatusUnauthorized:
			return apperr.AuthExpired(c.userEmail, err)
		case apiErr.Code == http.StatusTooManyRequests || apiErr.Code >= 500:
			return apperr.Transient(op, err)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}

// SearchMessages returns the ids of up to max most recent messages from the
// given sender address.
func (c *Client) SearchMessages(ctx context.Context, fromAddress string, max int64) ([]string, error) {
	list, err := c.service.Users.Messages.List("me").
		Q("from:" + fromAddress).
		MaxResults(max).
		Context(ctx).
		Do()
	if err != nil {
		return nil, c.mapError("search messages", err)
	}

	ids := make([]string, 0, len(list.Messages))
	for _, msg := range list.Messages {
		ids = append(ids, msg.Id)
	}
	return ids, nil
}

// GetMessageDetails fetches one full message: headers, decoded body and the
// attachment manifest.
func (c *Client) GetMessageDetails(ctx context.Context, messageID string) (*model.InboundEmail, error) {
	message, err := c.service.Users.Messages.Get("me", messageID).
		Format("full").
		Context(ctx).
		Do()
	if err != nil {
		return nil, c.mapError("get message", err)
	}

	email := &model.InboundEmail{
		ID:         message.Id,
		ThreadID:   message.ThreadId,
		Subject:    message.Snippet,
		ReceivedAt: time.Unix(message.InternalDate/1000, 0),
	}

	for _, header := range message.Payload.Headers {
		switch header.Name {
		case "Subject":
			email.Subject = header.Value
		case "From":
			email.From = header.Value
		}
	}

	email.Body = c.extractBody(message.Payload)
	email.Attachments = collectAttachments(message.Payload)

	return email, nil
}

// DownloadAttachment fetches and decodes one attachment body.
func (c *Client) DownloadAttachment(ctx context.Context, messageID, attachmentID string) ([]byte, error) {
	body, err := c.service.Users.Messages.Attachments.Get("me", messageID, attachmentID).
		Context(ctx).
		Do()
	if err != nil {
		return nil, c.mapError("download attachment", err)
	}

	data, err := base64.URLEncoding.DecodeString(body.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode attachment: %w", err)
	}
	return data, nil
}

// SendEmail sends an HTML email, optionally threading onto an existing
// conversation, and returns the provider receipt.
func (c *Client) SendEmail(ctx context.Context, out *model.OutboundEmail) (*model.SendReceipt, error) {
	var raw strings.Builder
	raw.WriteString("To: " + out.To + "\r\n")
	raw.WriteString("Subject: " + out.Subject + "\r\n")
	raw.WriteString("MIME-Version: 1.0\r\n")
	raw.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n")
	raw.WriteString("\r\n")
	raw.WriteString(out.BodyHTML)

	gmailMessage := &gmail.Message{
		Raw: base64.URLEncoding.EncodeToString([]byte(raw.String())),
	}
	if out.ThreadID != "" {
		gmailMessage.ThreadId = out.ThreadID
	}

	sent, err := c.service.Users.Messages.Send("me", gmailMessage).Context(ctx).Do()
	if err != nil {
		return nil, c.mapError("send email", err)
	}

	c.logger.Info("Sent email to", out.To, "message id:", sent.Id)
	return &model.SendReceipt{MessageID: sent.Id, ThreadID: sent.ThreadId}, nil
}

// extractBody walks the MIME tree preferring text/plain, falling back to
// stripped HTML. The extraction prompt works on plain text.
func (c *Client) extractBody(payload *gmail.MessagePart) string {
	if payload == nil {
		return ""
	}

	if len(payload.Parts) > 0 {
		return c.extractMultipartBody(payload.Parts)
	}

	if payload.Body != nil && payload.Body.Data != "" {
		decoded, err := base64.URLEncoding.DecodeString(payload.Body.Data)
		if err != nil {
			c.logger.Error("Failed to decode email body:", err)
			return ""
		}
		if payload.MimeType == "text/html" {
			return stripHTML(string(decoded))
		}
		return string(decoded)
	}

	return ""
}

func (c *Client) extractMultipartBody(parts []*gmail.MessagePart) string {
	var htmlBody string

	for _, part := range parts {
		switch {
		case part.MimeType == "text/plain" && part.Body != nil && part.Body.Data != "":
			decoded, err := base64.URLEncoding.DecodeString(part.Body.Data)
			if err != nil {
				c.logger.Error("Failed to decode text email body:", err)
				continue
			}
			return string(decoded)
		case part.MimeType == "text/html" && part.Body != nil && part.Body.Data != "":
			decoded, err := base64.URLEncoding.DecodeString(part.Body.Data)
			if err != nil {
				c.logger.Error("Failed to decode HTML email body:", err)
				continue
			}
			htmlBody = string(decoded)
		case len(part.Parts) > 0:
			if nested := c.extractMultipartBody(part.Parts); nested != "" {
				return nested
			}
		}
	}

	if htmlBody != "" {
		return stripHTML(htmlBody)
	}
	return ""
}

// stripHTML reduces markup to whitespace-separated text.
func stripHTML(s string) string {
	var b strings.Builder
	inTag := false
	for _, r := range s {
		switch {
		case r == '<':
			inTag = true
		case r == '>':
			inTag = false
			b.WriteRune(' ')
		case !inTag:
			b.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

func collectAttachments(payload *gmail.MessagePart) []model.EmailAttachment {
	if payload == nil {
		return nil
	}

	var attachments []model.EmailAttachment
	var walk func(part *gmail.MessagePart)
	walk = func(part *gmail.MessagePart) {
		if part.Filename != "" && part.Body != nil && part.Body.AttachmentId != "" {
			attachments = append(attachments, model.EmailAttachment{
				ID:       part.Body.AttachmentId,
				Filename: part.Filename,
				MimeType: part.MimeType,
				Size:     part.Body.Size,
			})
		}
		for _, child := range part.Parts {
			walk(child)
		}
	}
	walk(payload)
	return attachments
}
