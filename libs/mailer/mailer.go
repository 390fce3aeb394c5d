package mailer

import (
	"context"
	"errors"
	"strings"
)

// ErrNoRecipients is returned when a message has no To address.
var ErrNoRecipients = errors.New("mailer: message has no recipients")

// Message is one outgoing email.
type Message struct {
	From    string
	To      []string
	Subject string
	HTML    string
	Text    string
	Tags    map[string]string
}

// SendResult contains the response from the provider.
type SendResult struct {
	ProviderMessageID string
}

// Provider delivers messages through one backend.
type Provider interface {
	Name() string
	Send(ctx context.Context, msg Message) (SendResult, error)
}

// Mailer fills in the default sender and drops empty recipients before
// handing the message to its provider.
type Mailer struct {
	provider    Provider
	fromAddress string
}

// New creates a new Mailer with the given provider and default sender address.
func New(provider Provider, fromAddress string) *Mailer {
	return &Mailer{
		provider:    provider,
		fromAddress: fromAddress,
	}
}

// Send sends an email message via the configured provider.
// If msg.From is empty, the default fromAddress is used.
func (m *Mailer) Send(ctx context.Context, msg Message) (SendResult, error) {
	if msg.From == "" {
		msg.From = m.fromAddress
	}
	recipients := make([]string, 0, len(msg.To))
	for _, to := range msg.To {
		if trimmed := strings.TrimSpace(to); trimmed != "" {
			recipients = append(recipients, trimmed)
		}
	}
	if len(recipients) == 0 {
		return SendResult{}, ErrNoRecipients
	}
	msg.To = recipients
	return m.provider.Send(ctx, msg)
}

// ProviderName returns the name of the underlying provider.
func (m *Mailer) ProviderName() string {
	return m.provider.Name()
}
