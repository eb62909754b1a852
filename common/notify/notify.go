// Package notify sends e-mail notifications about ticket progress.
package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/mailersend/mailersend-go"

	"github.com/DEEPML1818/dsoc/common/config"
)

// Email is a plain notification message
type Email struct {
	To      string
	Subject string
	Text    string
	HTML    string
}

// Notifier delivers e-mails
type Notifier interface {
	Send(ctx context.Context, email Email) error
}

// Logger interface for logging
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Debug(msg string, keysAndValues ...interface{})
}

// New returns a MailerSend notifier, or a no-op one when mail is unconfigured
func New(cfg config.MailConfig, log Logger) Notifier {
	if cfg.APIKey == "" || cfg.FromEmail == "" {
		log.Info("mail not configured, notifications are logged only")
		return &Noop{log: log}
	}
	return NewMailerSend(cfg, log)
}

// MailerSend sends e-mail through the MailerSend API
type MailerSend struct {
	client   *mailersend.Mailersend
	fromName string
	from     string
	log      Logger
}

// NewMailerSend creates a MailerSend notifier
func NewMailerSend(cfg config.MailConfig, log Logger) *MailerSend {
	return &MailerSend{
		client:   mailersend.NewMailersend(cfg.APIKey),
		fromName: cfg.FromName,
		from:     cfg.FromEmail,
		log:      log,
	}
}

// Send delivers email
func (m *MailerSend) Send(ctx context.Context, email Email) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	message := m.client.Email.NewMessage()
	message.SetFrom(mailersend.From{Name: m.fromName, Email: m.from})
	message.SetRecipients([]mailersend.Recipient{{Email: email.To}})
	message.SetSubject(email.Subject)
	message.SetText(email.Text)
	if email.HTML != "" {
		message.SetHTML(email.HTML)
	}

	res, err := m.client.Email.Send(ctx, message)
	if err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}

	m.log.Info("email sent", "to", email.To, "message_id", res.Header.Get("X-Message-Id"))
	return nil
}

// Noop logs notifications instead of sending them
type Noop struct {
	log Logger
}

// NewNoop creates a logging-only notifier
func NewNoop(log Logger) *Noop {
	return &Noop{log: log}
}

// Send logs email
func (n *Noop) Send(ctx context.Context, email Email) error {
	n.log.Debug("notification skipped", "to", email.To, "subject", email.Subject)
	return nil
}
