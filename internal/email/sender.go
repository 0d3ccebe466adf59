// Package email renders notification templates and delivers them through
// SMTP or SendGrid behind an asynchronous, rate limited queue.
package email

import (
	"context"

	"bloodlink-backend/internal/logger"
)

// Message is a rendered email ready for delivery.
type Message struct {
	To      string
	ToName  string
	Subject string
	HTML    string
	Text    string
}

// Sender delivers one message synchronously.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

type noopSender struct{}

// NewNoopSender returns a sender that only logs. Used with provider "none".
func NewNoopSender() Sender {
	return noopSender{}
}

func (noopSender) Send(ctx context.Context, msg Message) error {
	logger.Info("Email delivery disabled, dropping message", "to", msg.To, "subject", msg.Subject)
	return nil
}
