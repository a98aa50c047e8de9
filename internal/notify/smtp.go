// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package notify

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/samber/oops"
	"github.com/wneessen/go-mail"

	"github.com/holomush/codeauth/internal/auth"
)

// DefaultSMTPTimeout bounds a single dial-and-send.
const DefaultSMTPTimeout = 10 * time.Second

// SMTPConfig holds the mail server settings.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	// From defaults to Username.
	From    string
	Timeout time.Duration
}

// sender is the part of *mail.Client used to deliver messages.
type sender interface {
	DialAndSendWithContext(ctx context.Context, messages ...*mail.Msg) error
}

// SMTPNotifier sends verification codes as HTML email.
type SMTPNotifier struct {
	client sender
	from   string
	logger *slog.Logger
}

// NewSMTPNotifier creates an SMTPNotifier. Authentication is used when a
// username is set; TLS is used when the server offers it.
func NewSMTPNotifier(cfg SMTPConfig, logger *slog.Logger) (*SMTPNotifier, error) {
	if cfg.Host == "" {
		return nil, oops.Code("SMTP_CONFIG_INVALID").Errorf("smtp host is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	from := cfg.From
	if from == "" {
		from = cfg.Username
	}
	if from == "" {
		return nil, oops.Code("SMTP_CONFIG_INVALID").Errorf("smtp from address is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultSMTPTimeout
	}

	opts := []mail.Option{
		mail.WithTimeout(timeout),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
	}
	if cfg.Port > 0 {
		opts = append(opts, mail.WithPort(cfg.Port))
	}
	if cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.Username),
			mail.WithPassword(cfg.Password),
		)
	}

	client, err := mail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, oops.Code("SMTP_CONFIG_INVALID").With("host", cfg.Host).Wrap(err)
	}
	return newSMTPNotifier(client, from, logger), nil
}

func newSMTPNotifier(client sender, from string, logger *slog.Logger) *SMTPNotifier {
	return &SMTPNotifier{client: client, from: from, logger: logger}
}

// SendVerificationCode renders the verification-code template for code and
// mails it to recipient.
func (n *SMTPNotifier) SendVerificationCode(ctx context.Context, recipient, code string) error {
	msg, err := n.buildMessage(recipient, code)
	if err != nil {
		return err
	}

	if err := n.client.DialAndSendWithContext(ctx, msg); err != nil {
		n.logger.ErrorContext(ctx, "failed to send verification email",
			"operation", "send_verification_code",
			"recipient", recipient,
			"error", err)
		return oops.Code("NOTIFY_SEND_FAILED").With("recipient", recipient).Wrap(err)
	}
	return nil
}

func (n *SMTPNotifier) buildMessage(recipient, code string) (*mail.Msg, error) {
	body, err := Render(MessageVerificationCode, map[string]string{"message": code})
	if err != nil {
		return nil, err
	}

	msg := mail.NewMsg()
	if err := errors.Join(msg.From(n.from), msg.To(recipient)); err != nil {
		return nil, oops.Code("NOTIFY_INVALID_ADDRESS").With("recipient", recipient).Wrap(err)
	}
	msg.Subject(MessageVerificationCode)
	msg.SetBodyString(mail.TypeTextHTML, body)
	return msg, nil
}

// LogNotifier writes verification codes to the log instead of sending them.
// It is meant for local development.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a LogNotifier.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

// SendVerificationCode logs the code at INFO.
func (n *LogNotifier) SendVerificationCode(ctx context.Context, recipient, code string) error {
	n.logger.InfoContext(ctx, "verification code issued",
		"recipient", recipient,
		"code", code)
	return nil
}

// Compile-time interface checks.
var (
	_ auth.Notifier = (*SMTPNotifier)(nil)
	_ auth.Notifier = (*LogNotifier)(nil)
)
