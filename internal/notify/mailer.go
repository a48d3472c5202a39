// Package notify sends customer email.
package notify

import (
	"bytes"
	"context"
	"fmt"
	"net/smtp"
	"strconv"

	"github.com/domodwyer/mailyak/v3"
	"go.uber.org/zap"

	"github.com/iliyamo/movieflex/internal/config"
)

// Attachment is a file sent with a message.
type Attachment struct {
	Name        string
	ContentType string
	Data        []byte
}

// Message is a plain-text email.
type Message struct {
	To          string
	Subject     string
	Body        string
	Attachments []Attachment
}

// Mailer delivers messages.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// SMTPMailer sends through an SMTP relay with PLAIN auth.
type SMTPMailer struct {
	addr string
	auth smtp.Auth
	from string
}

// NewSMTPMailer builds a mailer from cfg.  Auth is skipped when no
// username is configured.
func NewSMTPMailer(cfg config.MailConfig) *SMTPMailer {
	var auth smtp.Auth
	if cfg.Username != "" {
		auth = smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
	}
	return &SMTPMailer{
		addr: cfg.Host + ":" + strconv.Itoa(cfg.Port),
		auth: auth,
		from: cfg.From,
	}
}

func (m *SMTPMailer) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	mail := mailyak.New(m.addr, m.auth)
	mail.To(msg.To)
	mail.From(m.from)
	mail.Subject(msg.Subject)
	mail.Plain().Set(msg.Body)
	for _, a := range msg.Attachments {
		if a.ContentType != "" {
			mail.AttachWithMimeType(a.Name, bytes.NewReader(a.Data), a.ContentType)
		} else {
			mail.Attach(a.Name, bytes.NewReader(a.Data))
		}
	}
	if err := mail.Send(); err != nil {
		return fmt.Errorf("smtp send to %s: %w", msg.To, err)
	}
	return nil
}

// LogMailer writes messages to the log instead of sending them.  It is
// used when SMTP_HOST is unset.
type LogMailer struct {
	Log *zap.Logger
}

func (m LogMailer) Send(ctx context.Context, msg Message) error {
	names := make([]string, 0, len(msg.Attachments))
	for _, a := range msg.Attachments {
		names = append(names, a.Name)
	}
	m.Log.Info("mail (not sent, no SMTP configured)",
		zap.String("to", msg.To),
		zap.String("subject", msg.Subject),
		zap.Strings("attachments", names))
	return nil
}

// New picks the SMTP mailer when a host is configured and the logging
// mailer otherwise.
func New(cfg config.MailConfig, log *zap.Logger) Mailer {
	if cfg.Host == "" {
		return LogMailer{Log: log}
	}
	return NewSMTPMailer(cfg)
}
