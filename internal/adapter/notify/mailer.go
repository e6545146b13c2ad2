package notify

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"crowdwave-ledger/config"
	"crowdwave-ledger/internal/core/ports"

	"github.com/rs/zerolog"
)

// SMTPMailer implements ports.Mailer over plain SMTP with optional auth.
type SMTPMailer struct {
	cfg  config.SMTPConfig
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
	log  zerolog.Logger
}

// NewSMTPMailer creates a mailer for the configured SMTP relay.
func NewSMTPMailer(cfg config.SMTPConfig, log zerolog.Logger) *SMTPMailer {
	return &SMTPMailer{cfg: cfg, send: smtp.SendMail, log: log}
}

// Send delivers a single email. The message is sent as multipart/alternative
// when both HTML and text bodies are present.
func (m *SMTPMailer) Send(ctx context.Context, msg ports.EmailMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if msg.To == "" {
		return fmt.Errorf("email message has no recipient")
	}

	var auth smtp.Auth
	if m.cfg.Username != "" {
		auth = smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	}

	raw := m.buildMessage(msg)
	if err := m.send(m.cfg.Addr(), auth, m.cfg.From, []string{msg.To}, raw); err != nil {
		return fmt.Errorf("send email: %w", err)
	}

	m.log.Debug().Str("to", msg.To).Str("subject", msg.Subject).Msg("email sent")
	return nil
}

func (m *SMTPMailer) buildMessage(msg ports.EmailMessage) []byte {
	var b strings.Builder
	b.WriteString("From: " + m.cfg.From + "\r\n")
	b.WriteString("To: " + msg.To + "\r\n")
	b.WriteString("Subject: " + msg.Subject + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")

	switch {
	case msg.HTMLBody != "" && msg.TextBody != "":
		const boundary = "cwl-alt-boundary"
		b.WriteString("Content-Type: multipart/alternative; boundary=" + boundary + "\r\n\r\n")
		b.WriteString("--" + boundary + "\r\n")
		b.WriteString("Content-Type: text/plain; charset=utf-8\r\n\r\n")
		b.WriteString(msg.TextBody + "\r\n")
		b.WriteString("--" + boundary + "\r\n")
		b.WriteString("Content-Type: text/html; charset=utf-8\r\n\r\n")
		b.WriteString(msg.HTMLBody + "\r\n")
		b.WriteString("--" + boundary + "--\r\n")
	case msg.HTMLBody != "":
		b.WriteString("Content-Type: text/html; charset=utf-8\r\n\r\n")
		b.WriteString(msg.HTMLBody + "\r\n")
	default:
		b.WriteString("Content-Type: text/plain; charset=utf-8\r\n\r\n")
		b.WriteString(msg.TextBody + "\r\n")
	}

	return []byte(b.String())
}
