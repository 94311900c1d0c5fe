// Package mail sends sign-in links.
package mail

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/jordan-wright/email"

	"fintrack/internal/log"
)

// Sender delivers a one-time sign-in link.
type Sender interface {
	SendMagicLink(ctx context.Context, to, link string) error
}

// SMTPConfig holds the outgoing mail settings.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// SMTPSender sends mail through an SMTP relay.
type SMTPSender struct {
	cfg    SMTPConfig
	logger *log.Logger
	send   func(e *email.Email, addr string, a smtp.Auth) error
}

func NewSMTPSender(cfg SMTPConfig, logger *log.Logger) *SMTPSender {
	if logger == nil {
		logger = log.Nop()
	}
	return &SMTPSender{
		cfg:    cfg,
		logger: logger.WithComponent(log.ComponentMail),
		send: func(e *email.Email, addr string, a smtp.Auth) error {
			return e.Send(addr, a)
		},
	}
}

// Message builds the sign-in mail.
func Message(from, to, link string) *email.Email {
	e := email.NewEmail()
	e.From = from
	e.To = []string{to}
	e.Subject = "Your fintrack sign-in link"

	var b strings.Builder
	b.WriteString("Hello,\n\n")
	b.WriteString("Use the link below to sign in. It expires in 15 minutes and works once.\n\n")
	b.WriteString(link)
	b.WriteString("\n\nIf you did not ask for it, ignore this message.\n")
	e.Text = []byte(b.String())
	return e
}

func (s *SMTPSender) SendMagicLink(ctx context.Context, to, link string) error {
	e := Message(s.cfg.From, to, link)
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	var auth smtp.Auth
	if s.cfg.Username != "" {
		auth = smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	}
	if err := s.send(e, addr, auth); err != nil {
		s.logger.ErrorContext(ctx, "Failed to send sign-in link", log.FieldError, err)
		return fmt.Errorf("send sign-in link: %w", err)
	}
	s.logger.InfoContext(ctx, "Sign-in link sent")
	return nil
}

// LogSender writes links to the log instead of mailing them. Used when no
// SMTP host is configured.
type LogSender struct {
	Logger *log.Logger
}

func (s LogSender) SendMagicLink(ctx context.Context, to, link string) error {
	logger := s.Logger
	if logger == nil {
		logger = log.Nop()
	}
	logger.WithComponent(log.ComponentMail).InfoContext(ctx, "Sign-in link (SMTP disabled)",
		"to", to, "link", link)
	return nil
}
