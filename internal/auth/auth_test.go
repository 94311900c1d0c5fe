package auth

import (
	"context"
	"errors"
	"net/url"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"fintrack/internal/remote"
	"fintrack/internal/remote/memory"
)

type captureSender struct {
	to, link string
}

func (c *captureSender) SendMagicLink(_ context.Context, to, link string) error {
	c.to, c.link = to, link
	return nil
}

func newService(t *testing.T, now *time.Time) (*Service, *captureSender) {
	t.Helper()
	mailer := &captureSender{}
	svc := NewService(memory.New(), mailer, Config{
		Secret:      []byte("test-secret"),
		LinkBaseURL: "https://fintrack.test/redeem",
		BcryptCost:  bcrypt.MinCost,
		Now:         func() time.Time { return *now },
	}, nil)
	return svc, mailer
}

func TestSignUpAndLogin(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	svc, _ := newService(t, &now)

	tok, err := svc.SignUp(ctx, " Ann@Example.com", "correct horse")
	if err != nil {
		t.Fatalf("SignUp: %v", err)
	}
	if tok.Session.Email != "ann@example.com" || tok.ExpiresAt != now.Add(24*time.Hour) {
		t.Fatalf("token = %+v", tok)
	}
	if _, err := svc.SignUp(ctx, "ann@example.com", "another pass"); !errors.Is(err, remote.ErrUserExists) {
		t.Fatalf("duplicate sign-up err = %v", err)
	}

	if _, err := svc.Login(ctx, "ann@example.com", "wrong password"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("wrong password err = %v", err)
	}
	if _, err := svc.Login(ctx, "nobody@example.com", "whatever1"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("unknown user err = %v", err)
	}
	login, err := svc.Login(ctx, "ANN@example.com", "correct horse")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	sess, err := svc.Parse(login.AccessToken)
	if err != nil || sess != tok.Session {
		t.Fatalf("Parse = %+v, %v", sess, err)
	}
}

func TestSignUpValidation(t *testing.T) {
	now := time.Now()
	svc, _ := newService(t, &now)
	if _, err := svc.SignUp(context.Background(), "not-an-email", "longenough"); !errors.Is(err, ErrInvalidEmail) {
		t.Fatalf("err = %v", err)
	}
	if _, err := svc.SignUp(context.Background(), "a@example.com", "short"); !errors.Is(err, ErrWeakPassword) {
		t.Fatalf("err = %v", err)
	}
}

func TestTokenExpiry(t *testing.T) {
	now := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	svc, _ := newService(t, &now)
	tok, err := svc.Issue(Session{UserID: "u1", Email: "a@example.com"})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	now = now.Add(25 * time.Hour)
	if _, err := svc.Parse(tok.AccessToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expired token err = %v", err)
	}
	if _, err := svc.Parse("garbage"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("garbage token err = %v", err)
	}

	other := NewService(memory.New(), &captureSender{}, Config{Secret: []byte("other")}, nil)
	fresh, _ := other.Issue(Session{UserID: "u1"})
	if _, err := svc.Parse(fresh.AccessToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("foreign key err = %v", err)
	}
}

func TestMagicLinkFlow(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	svc, mailer := newService(t, &now)

	if err := svc.RequestMagicLink(ctx, "bo@example.com"); err != nil {
		t.Fatalf("RequestMagicLink: %v", err)
	}
	if mailer.to != "bo@example.com" {
		t.Fatalf("mailed to %q", mailer.to)
	}
	u, err := url.Parse(mailer.link)
	if err != nil || u.Host != "fintrack.test" {
		t.Fatalf("link = %q", mailer.link)
	}
	token := u.Query().Get("token")

	tok, err := svc.RedeemMagicLink(ctx, token)
	if err != nil {
		t.Fatalf("RedeemMagicLink: %v", err)
	}
	if tok.Session.Email != "bo@example.com" || tok.Session.UserID == "" {
		t.Fatalf("session = %+v", tok.Session)
	}
	if _, err := svc.RedeemMagicLink(ctx, token); !errors.Is(err, ErrLinkInvalid) {
		t.Fatalf("second redeem err = %v", err)
	}

	if _, err := svc.Login(ctx, "bo@example.com", "anything1"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("password login on link-only account err = %v", err)
	}

	_ = svc.RequestMagicLink(ctx, "bo@example.com")
	expired := mustToken(t, mailer.link)
	now = now.Add(16 * time.Minute)
	if _, err := svc.RedeemMagicLink(ctx, expired); !errors.Is(err, ErrLinkInvalid) {
		t.Fatalf("expired link err = %v", err)
	}
}

func mustToken(t *testing.T, link string) string {
	t.Helper()
	u, err := url.Parse(link)
	if err != nil {
		t.Fatalf("parse link: %v", err)
	}
	return u.Query().Get("token")
}

func TestSessionContext(t *testing.T) {
	ctx := WithSession(context.Background(), Session{UserID: "u"})
	if s, ok := SessionFromContext(ctx); !ok || s.UserID != "u" {
		t.Fatalf("session = %+v ok=%v", s, ok)
	}
	if _, ok := SessionFromContext(context.Background()); ok {
		t.Fatalf("unexpected session")
	}
}
