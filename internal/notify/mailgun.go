package notify

import (
	"context"
	"fmt"
	"log/slog"

	mg "github.com/mailgun/mailgun-go/v5"
)

// MailgunSender sends notifications through the Mailgun API.
type MailgunSender struct {
	client *mg.Client
	domain string
	from   string
	logger *slog.Logger
}

// NewMailgunSender creates a Mailgun-backed sender. region is "us" or "eu".
func NewMailgunSender(log *slog.Logger, domain, apiKey, region string) (*MailgunSender, error) {
	if domain == "" {
		return nil, fmt.Errorf("mailgun sender: domain is required")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("mailgun sender: api key is required")
	}
	if log == nil {
		log = slog.Default()
	}
	client := mg.NewMailgun(apiKey)
	if region == "eu" {
		client.SetAPIBase(mg.APIBaseEU)
	}
	return &MailgunSender{
		client: client,
		domain: domain,
		from:   fmt.Sprintf("noreply@%s", domain),
		logger: log.With(slog.String("sender", "mailgun")),
	}, nil
}

// Send delivers one plain-text message.
func (s *MailgunSender) Send(ctx context.Context, to, subject, body string) error {
	m := mg.NewMessage(s.domain, s.from, subject, body, to)
	if _, err := s.client.Send(ctx, m); err != nil {
		return fmt.Errorf("send notification: %w", err)
	}
	return nil
}
