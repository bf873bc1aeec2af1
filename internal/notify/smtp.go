package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/resolveit/apiserver/config"
	"github.com/wneessen/go-mail"
)

// SMTPNotifier sends email through an SMTP relay.
type SMTPNotifier struct {
	from    string
	options []mail.Option
	host    string
}

// NewSMTPNotifier constructs an SMTP notifier from config.
func NewSMTPNotifier(cfg config.MailConfig) (*SMTPNotifier, error) {
	if strings.TrimSpace(cfg.SMTPHost) == "" {
		return nil, errors.New("smtp host is required")
	}
	if strings.TrimSpace(cfg.From) == "" {
		return nil, errors.New("mail from address is required")
	}

	options := []mail.Option{mail.WithPort(cfg.SMTPPort)}
	if cfg.SMTPTLS {
		options = append(options, mail.WithTLSPolicy(mail.TLSMandatory))
	} else {
		options = append(options, mail.WithTLSPolicy(mail.NoTLS))
	}
	if cfg.SMTPUser != "" {
		options = append(options,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.SMTPUser),
			mail.WithPassword(cfg.SMTPPassword),
		)
	}

	return &SMTPNotifier{from: cfg.From, options: options, host: cfg.SMTPHost}, nil
}

// Send builds a multipart message and delivers it in one SMTP session.
func (n *SMTPNotifier) Send(ctx context.Context, email Email) error {
	msg, err := buildMessage(n.from, email)
	if err != nil {
		return err
	}

	client, err := mail.NewClient(n.host, n.options...)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}
	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}

func buildMessage(from string, email Email) (*mail.Msg, error) {
	if err := email.Validate(); err != nil {
		return nil, err
	}

	msg := mail.NewMsg()
	if err := msg.From(from); err != nil {
		return nil, fmt.Errorf("invalid from address: %w", err)
	}
	if err := msg.To(email.To); err != nil {
		return nil, fmt.Errorf("invalid recipient: %w", err)
	}
	msg.Subject(email.Subject)
	msg.SetMessageID()
	msg.SetDate()

	switch {
	case email.Text != "" && email.HTML != "":
		msg.SetBodyString(mail.TypeTextPlain, email.Text)
		msg.AddAlternativeString(mail.TypeTextHTML, email.HTML)
	case email.HTML != "":
		msg.SetBodyString(mail.TypeTextHTML, email.HTML)
	default:
		msg.SetBodyString(mail.TypeTextPlain, email.Text)
	}
	return msg, nil
}
