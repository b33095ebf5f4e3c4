package model

import "time"

// InboundEmail is a mail message as the gateway returns it. It is not
// persisted as-is; ingestion turns it into conversation messages, offers and
// ledger records.
type InboundEmail struct {
	ID          string            `json:"id"`
	ThreadID    string            `json:"thread_id"`
	From        string            `json:"from"`
	Subject     string            `json:"subject"`
	Body        string            `json:"body"`
	ReceivedAt  time.Time         `json:"received_at"`
	Attachments []EmailAttachment `json:"attachments"`
}

type EmailAttachment struct {
	ID       string `json:"id"`
	Filename string `json:"filename"`
	MimeType string `json:"mime_type"`
	Size     int64  `json:"size"`
}

// IsPDF reports whether the attachment looks like a PDF document.
func (a EmailAttachment) IsPDF() bool {
	return a.MimeType == "application/pdf"
}

// OutboundEmail is the payload handed to the mail gateway for sending.
type OutboundEmail struct {
	To       string `json:"to"`
	Subject  string `json:"subject"`
	BodyHTML string `json:"body_html"`
	ThreadID string `json:"thread_id,omitempty"`
}

// SendReceipt is the gateway's acknowledgement of a sent message.
type SendReceipt struct {
	MessageID string `json:"message_id"`
	ThreadID  string `json:"thread_id"`
}
