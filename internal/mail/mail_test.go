package mail

import (
	"context"
	"errors"
	"net/smtp"
	"strings"
	"testing"

	"github.com/jordan-wright/email"
)

func TestMessage(t *testing.T) {
	e := Message("noreply@fintrack.local", "a@example.com", "https://app/redeem?token=x")
	if e.From != "noreply@fintrack.local" || len(e.To) != 1 || e.To[0] != "a@example.com" {
		t.Fatalf("headers = %+v", e)
	}
	if !strings.Contains(string(e.Text), "https://app/redeem?token=x") {
		t.Fatalf("body missing link: %s", e.Text)
	}
}

func TestSMTPSender(t *testing.T) {
	s := NewSMTPSender(SMTPConfig{Host: "smtp.local", Port: 2525, Username: "u", Password: "p", From: "f@x"}, nil)
	var gotAddr string
	s.send = func(e *email.Email, addr string, a smtp.Auth) error {
		gotAddr = addr
		if a == nil {
			t.Fatalf("expected auth")
		}
		return nil
	}
	if err := s.SendMagicLink(context.Background(), "a@example.com", "link"); err != nil {
		t.Fatalf("SendMagicLink: %v", err)
	}
	if gotAddr != "smtp.local:2525" {
		t.Fatalf("addr = %q", gotAddr)
	}

	s.send = func(*email.Email, string, smtp.Auth) error { return errors.New("refused") }
	if err := s.SendMagicLink(context.Background(), "a@example.com", "link"); err == nil {
		t.Fatalf("expected error")
	}
}
