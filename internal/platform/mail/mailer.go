// Package mail delivers notification events. The engine only decides that an
// email must go out and with which payload; rendering is fixed per event type
// and transport is swappable.
package mail

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/jameswitika/iei.org.au/pkg/config"
)

// Mailer sends a rendered notification to one or more recipients.
type Mailer interface {
	Send(ctx context.Context, to []string, subject, body string) error
}

// SMTPMailer delivers over plain SMTP with optional auth.
type SMTPMailer struct {
	cfg config.MailConfig
	log *zap.SugaredLogger
}

func (m *SMTPMailer) Send(ctx context.Context, to []string, subject, body string) error {
	if len(to) == 0 {
		return fmt.Errorf("no recipients")
	}

	msg := strings.Builder{}
	msg.WriteString("From: " + m.cfg.From + "\r\n")
	msg.WriteString("To: " + strings.Join(to, ", ") + "\r\n")
	if m.cfg.ReplyTo != "" {
		msg.WriteString("Reply-To: " + m.cfg.ReplyTo + "\r\n")
	}
	msg.WriteString("Subject: " + subject + "\r\n")
	msg.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(body)

	addr := fmt.Sprintf("%s:%d", m.cfg.Host, m.cfg.Port)
	var auth smtp.Auth
	if m.cfg.Username != "" {
		auth = smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	}
	if err := smtp.SendMail(addr, auth, m.cfg.From, to, []byte(msg.String())); err != nil {
		m.log.Errorw("mail_send_failed", "to", to, "subject", subject, "err", err)
		return fmt.Errorf("send mail: %w", err)
	}
	m.log.Infow("mail_sent", "to", to, "subject", subject)
	return nil
}

// LogMailer records outbound mail in the log only. Used in dev and as the
// default until SMTP is configured.
type LogMailer struct {
	log *zap.SugaredLogger
}

func (m *LogMailer) Send(ctx context.Context, to []string, subject, body string) error {
	m.log.Infow("mail_logged", "to", to, "subject", subject, "body_len", len(body))
	return nil
}

func NewMailer(cfg *config.Config, log *zap.SugaredLogger) Mailer {
	if cfg.Mail.LogOnly || cfg.Mail.Host == "" {
		return &LogMailer{log: log}
	}
	return &SMTPMailer{cfg: cfg.Mail, log: log}
}

var Module = fx.Options(
	fx.Provide(NewMailer),
)
