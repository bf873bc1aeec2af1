// Package notify delivers outbound email: directly over SMTP, through a
// message queue drained by the mailer worker, or to the log in development.
package notify

import (
	"context"
	"errors"
	"log/slog"
	"strings"
)

// Email is one outbound message.
type Email struct {
	To      string            `json:"to"`
	Subject string            `json:"subject"`
	Text    string            `json:"text"`
	HTML    string            `json:"html,omitempty"`
	Tags    map[string]string `json:"tags,omitempty"`
}

// Validate reports whether the email can be dispatched.
func (e Email) Validate() error {
	if strings.TrimSpace(e.To) == "" {
		return errors.New("email recipient is required")
	}
	if strings.TrimSpace(e.Subject) == "" {
		return errors.New("email subject is required")
	}
	if e.Text == "" && e.HTML == "" {
		return errors.New("email body is required")
	}
	return nil
}

// Notifier dispatches an email. Implementations must not retry; a returned
// error means the message was not handed off.
type Notifier interface {
	Send(ctx context.Context, email Email) error
}

// LogNotifier writes emails to the logger instead of sending them.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Send(ctx context.Context, email Email) error {
	if err := email.Validate(); err != nil {
		return err
	}
	n.logger.InfoContext(ctx, "email not sent (log transport)",
		slog.String("to", email.To),
		slog.String("subject", email.Subject),
		slog.String("text", email.Text),
	)
	return nil
}
