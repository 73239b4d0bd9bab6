package notification

import (
	"context"
	"fmt"

	"github.com/keighl/postmark"
	"go.uber.org/zap"
)

type Email struct {
	To      string
	Subject string
	HTML    string
	Text    string
}

type Mailer interface {
	Send(ctx context.Context, email Email) error
}

// PostmarkMailer delivers through the Postmark email API.
type PostmarkMailer struct {
	client *postmark.Client
	from   string
}

func NewPostmarkMailer(serverToken, from string) *PostmarkMailer {
	return &PostmarkMailer{
		client: postmark.NewClient(serverToken, ""),
		from:   from,
	}
}

func (m *PostmarkMailer) Send(ctx context.Context, email Email) error {
	_, err := m.client.SendEmail(postmark.Email{
		From:     m.from,
		To:       email.To,
		Subject:  email.Subject,
		HtmlBody: email.HTML,
		TextBody: email.Text,
	})
	if err != nil {
		return fmt.Errorf("postmark send to %s: %w", email.To, err)
	}
	return nil
}

// LogMailer only logs outgoing mail. Used when no Postmark token is configured.
type LogMailer struct {
	logger *zap.Logger
}

func NewLogMailer(logger *zap.Logger) *LogMailer {
	return &LogMailer{logger: logger}
}

func (m *LogMailer) Send(ctx context.Context, email Email) error {
	m.logger.Info("Email",
		zap.String("to", email.To),
		zap.String("subject", email.Subject),
		zap.String("body", email.Text),
	)
	return nil
}
