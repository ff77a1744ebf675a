// Package mailer delivers magic links to users.
package mailer

import (
	"context"
	"fmt"
	"html/template"
	"strings"

	"github.com/resend/resend-go/v3"

	"github.com/dmitrijs2005/magiclink/internal/logging"
)

const subject = "Sign in to Postscript"

// Sender delivers a sign-in link to an address.
type Sender interface {
	SendMagicLink(ctx context.Context, to, link string) error
}

var body = template.Must(template.New("magiclink").Parse(`<div style="font-family: sans-serif;">
  <h2>Sign in to Postscript</h2>
  <p>Click the button below to sign in:</p>
  <a href="{{.}}" style="display:inline-block;padding:12px 24px;background:#6366f1;color:#fff;border-radius:6px;text-decoration:none;font-weight:bold;">Sign in</a>
  <p>If you did not request this, you can ignore this email.</p>
</div>`))

func renderBody(link string) (string, error) {
	var sb strings.Builder
	if err := body.Execute(&sb, link); err != nil {
		return "", err
	}
	return sb.String(), nil
}

// emailsAPI is the part of the Resend client this package calls.
type emailsAPI interface {
	SendWithContext(ctx context.Context, params *resend.SendEmailRequest) (*resend.SendEmailResponse, error)
}

// ResendSender sends mail through the Resend API.
type ResendSender struct {
	emails emailsAPI
	from   string
	logger logging.Logger
}

func NewResendSender(apiKey, from string, logger logging.Logger) *ResendSender {
	return &ResendSender{
		emails: resend.NewClient(apiKey).Emails,
		from:   from,
		logger: logger.With("module", "mailer"),
	}
}

func (s *ResendSender) SendMagicLink(ctx context.Context, to, link string) error {
	html, err := renderBody(link)
	if err != nil {
		return fmt.Errorf("render magic link email: %w", err)
	}

	resp, err := s.emails.SendWithContext(ctx, &resend.SendEmailRequest{
		From:    s.from,
		To:      []string{to},
		Subject: subject,
		Html:    html,
	})
	if err != nil {
		return fmt.Errorf("send magic link email: %w", err)
	}

	s.logger.Info(ctx, "magic link email sent", "id", resp.Id)
	return nil
}

// LogSender writes the link to the log instead of sending mail. Used when
// no Resend API key is configured. Links are live credentials, so they are
// only written at debug level.
type LogSender struct {
	logger logging.Logger
}

func NewLogSender(logger logging.Logger) *LogSender {
	l := logger.With("module", "mailer")
	l.Warn(context.Background(), "no mail API key configured, magic links are logged at debug level and not delivered")
	return &LogSender{logger: l}
}

func (s *LogSender) SendMagicLink(ctx context.Context, to, link string) error {
	s.logger.Debug(ctx, "magic link", "to", to, "link", link)
	return nil
}

// New picks ResendSender when apiKey is set and LogSender otherwise.
func New(apiKey, from string, logger logging.Logger) Sender {
	if apiKey == "" {
		return NewLogSender(logger)
	}
	return NewResendSender(apiKey, from, logger)
}
