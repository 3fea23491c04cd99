// Package mailer delivers account emails for verification and password resets.
package mailer

import (
	"context"
	"fmt"
	"html/template"
	"log/slog"
	"strings"
	"time"

	"gopkg.in/mail.v2"

	"github.com/linkup/backend/internal/config"
	"github.com/linkup/backend/internal/logging"
	"github.com/linkup/backend/internal/models"
)

// Mailer sends account emails.
type Mailer interface {
	SendVerification(ctx context.Context, to models.User, link string) error
	SendPasswordReset(ctx context.Context, to models.User, link string) error
}

// Sender delivers composed messages. *mail.Dialer satisfies it.
type Sender interface {
	DialAndSend(m ...*mail.Message) error
}

var (
	verificationTemplate = template.Must(template.New("verify").Parse(
		`<p>Hi {{.Name}},</p><p>Confirm your email address to finish creating your account:</p>` +
			`<p><a href="{{.Link}}">Verify email</a></p><p>The link expires in {{.Expiry}}.</p>`))
	resetTemplate = template.Must(template.New("reset").Parse(
		`<p>Hi {{.Name}},</p><p>We received a request to reset your password.</p>` +
			`<p><a href="{{.Link}}">Reset password</a></p><p>The link expires in {{.Expiry}}. ` +
			`If you did not ask for this you can ignore this email.</p>`))
)

// SMTPMailer sends mail through an SMTP relay.
type SMTPMailer struct {
	sender          Sender
	from            string
	verificationTTL time.Duration
	resetTTL        time.Duration
}

// NewSMTPMailer constructs a mailer for the configured relay.
func NewSMTPMailer(cfg config.SMTPConfig, verificationTTL, resetTTL time.Duration) *SMTPMailer {
	dialer := mail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	dialer.Timeout = 20 * time.Second
	dialer.StartTLSPolicy = mail.OpportunisticStartTLS
	return NewMailerWithSender(dialer, cfg.From, verificationTTL, resetTTL)
}

// NewMailerWithSender wires a mailer around an arbitrary Sender.
func NewMailerWithSender(sender Sender, from string, verificationTTL, resetTTL time.Duration) *SMTPMailer {
	return &SMTPMailer{sender: sender, from: from, verificationTTL: verificationTTL, resetTTL: resetTTL}
}

func (m *SMTPMailer) SendVerification(ctx context.Context, to models.User, link string) error {
	return m.send(ctx, to, "Verify your email", verificationTemplate, link, m.verificationTTL)
}

func (m *SMTPMailer) SendPasswordReset(ctx context.Context, to models.User, link string) error {
	return m.send(ctx, to, "Reset your password", resetTemplate, link, m.resetTTL)
}

func (m *SMTPMailer) send(ctx context.Context, to models.User, subject string, tmpl *template.Template, link string, ttl time.Duration) error {
	var body strings.Builder
	err := tmpl.Execute(&body, struct {
		Name   string
		Link   string
		Expiry string
	}{Name: strings.TrimSpace(to.FirstName), Link: link, Expiry: ttl.String()})
	if err != nil {
		return fmt.Errorf("render %q email: %w", subject, err)
	}

	msg := mail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetAddressHeader("To", to.Email, strings.TrimSpace(to.FirstName+" "+to.LastName))
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/plain", "Open this link: "+link)
	msg.AddAlternative("text/html", body.String())

	done := make(chan error, 1)
	go func() { done <- m.sender.DialAndSend(msg) }()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		if err != nil {
			return fmt.Errorf("send %q email: %w", subject, err)
		}
	}

	logging.FromContext(ctx).Info("email sent", "to", to.Email, "subject", subject)
	return nil
}

// LogMailer writes links to the log instead of sending mail. Used when no relay is configured.
type LogMailer struct {
	Logger *slog.Logger
}

func (m LogMailer) SendVerification(ctx context.Context, to models.User, link string) error {
	m.logger(ctx).Info("verification email skipped, no smtp relay", "to", to.Email, "link", link)
	return nil
}

func (m LogMailer) SendPasswordReset(ctx context.Context, to models.User, link string) error {
	m.logger(ctx).Info("password reset email skipped, no smtp relay", "to", to.Email, "link", link)
	return nil
}

func (m LogMailer) logger(ctx context.Context) *slog.Logger {
	if m.Logger != nil {
		return m.Logger
	}
	return logging.FromContext(ctx)
}

var (
	_ Mailer = (*SMTPMailer)(nil)
	_ Mailer = LogMailer{}
)
