// Package relay delivers accepted contact-form submissions to an operator,
// either through the Telegram Bot API or over SMTP.
package relay

import "context"

// Message is one notification to deliver. Text is already sanitized by the
// gate; implementations must not re-interpret it as markup.
type Message struct {
	Subject string
	Text    string
}

// Notifier delivers a message. A non-nil error means the message may not
// have reached the operator.
type Notifier interface {
	Send(ctx context.Context, msg Message) error
}
