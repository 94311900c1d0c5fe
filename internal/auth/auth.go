// Package auth signs users in by password or one-time emailed link and
// issues signed session tokens.
package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"net/mail"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"fintrack/internal/log"
	fmail "fintrack/internal/mail"
	"fintrack/internal/remote"
)

const (
	DefaultTokenTTL = 24 * time.Hour
	DefaultLinkTTL  = 15 * time.Minute
	MinPasswordLen  = 8
	issuer          = "fintrack"
)

var (
	ErrInvalidEmail       = errors.New("invalid email address")
	ErrWeakPassword       = errors.New("password must be at least 8 characters")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrInvalidToken       = errors.New("invalid or expired session token")
	ErrLinkInvalid        = remote.ErrLinkInvalid
)

// Session is the identity carried by a token.
type Session struct {
	UserID string `json:"userId"`
	Email  string `json:"email"`
}

// Token is an issued session token.
type Token struct {
	AccessToken string    `json:"accessToken"`
	ExpiresAt   time.Time `json:"expiresAt"`
	Session     Session   `json:"session"`
}

type claims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// Config holds the signing key and link settings.
type Config struct {
	Secret      []byte
	TokenTTL    time.Duration
	LinkTTL     time.Duration
	LinkBaseURL string
	BcryptCost  int
	Now         func() time.Time
}

type Service struct {
	users  remote.Users
	mailer fmail.Sender
	cfg    Config
	logger *log.Logger
}

func NewService(users remote.Users, mailer fmail.Sender, cfg Config, logger *log.Logger) *Service {
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = DefaultTokenTTL
	}
	if cfg.LinkTTL <= 0 {
		cfg.LinkTTL = DefaultLinkTTL
	}
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = bcrypt.DefaultCost
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if logger == nil {
		logger = log.Nop()
	}
	return &Service{
		users:  users,
		mailer: mailer,
		cfg:    cfg,
		logger: logger.WithComponent(log.ComponentAuth),
	}
}

// SignUp creates a password account and signs it in.
func (s *Service) SignUp(ctx context.Context, email, password string) (Token, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return Token{}, err
	}
	if len(password) < MinPasswordLen {
		return Token{}, ErrWeakPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cfg.BcryptCost)
	if err != nil {
		return Token{}, fmt.Errorf("hash password: %w", err)
	}
	u, err := s.users.CreateUser(ctx, email, string(hash))
	if err != nil {
		return Token{}, err
	}
	s.logger.InfoContext(ctx, "User signed up", log.FieldUserID, u.ID)
	return s.Issue(Session{UserID: u.ID, Email: u.Email})
}

// Login checks a password. Unknown emails and wrong passwords return the
// same error.
func (s *Service) Login(ctx context.Context, email, password string) (Token, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return Token{}, ErrInvalidCredentials
	}
	u, err := s.users.UserByEmail(ctx, email)
	if errors.Is(err, remote.ErrNotFound) {
		return Token{}, ErrInvalidCredentials
	}
	if err != nil {
		return Token{}, err
	}
	if u.PasswordHash == "" {
		return Token{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		s.logger.WarnContext(ctx, "Failed login", log.FieldUserID, u.ID)
		return Token{}, ErrInvalidCredentials
	}
	return s.Issue(Session{UserID: u.ID, Email: u.Email})
}

// RequestMagicLink emails a one-time sign-in link. Only the SHA-256 of the
// token is stored.
func (s *Service) RequestMagicLink(ctx context.Context, email string) error {
	email, err := normalizeEmail(email)
	if err != nil {
		return err
	}
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return fmt.Errorf("generate link token: %w", err)
	}
	token := base64.RawURLEncoding.EncodeToString(raw)
	if err := s.users.SaveMagicLink(ctx, email, HashToken(token), s.cfg.Now().Add(s.cfg.LinkTTL)); err != nil {
		return err
	}
	return s.mailer.SendMagicLink(ctx, email, s.linkURL(token))
}

// RedeemMagicLink consumes a link token and signs its owner in, creating
// a password-less account on first use.
func (s *Service) RedeemMagicLink(ctx context.Context, token string) (Token, error) {
	if strings.TrimSpace(token) == "" {
		return Token{}, ErrLinkInvalid
	}
	email, err := s.users.ConsumeMagicLink(ctx, HashToken(token), s.cfg.Now())
	if err != nil {
		return Token{}, err
	}
	u, err := s.users.UserByEmail(ctx, email)
	if errors.Is(err, remote.ErrNotFound) {
		u, err = s.users.CreateUser(ctx, email, "")
	}
	if err != nil {
		return Token{}, err
	}
	return s.Issue(Session{UserID: u.ID, Email: u.Email})
}

// Issue signs an HS256 token for sess.
func (s *Service) Issue(sess Session) (Token, error) {
	now := s.cfg.Now()
	exp := now.Add(s.cfg.TokenTTL)
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Email: sess.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sess.UserID,
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	})
	signed, err := t.SignedString(s.cfg.Secret)
	if err != nil {
		return Token{}, fmt.Errorf("sign token: %w", err)
	}
	return Token{AccessToken: signed, ExpiresAt: exp, Session: sess}, nil
}

// Parse verifies a token and returns its session.
func (s *Service) Parse(token string) (Session, error) {
	var c claims
	_, err := jwt.ParseWithClaims(token, &c, func(t *jwt.Token) (any, error) {
		return s.cfg.Secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithTimeFunc(s.cfg.Now),
		jwt.WithExpirationRequired(),
	)
	if err != nil || c.Subject == "" {
		return Session{}, ErrInvalidToken
	}
	return Session{UserID: c.Subject, Email: c.Email}, nil
}

// HashToken is the stored form of a link token.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func (s *Service) linkURL(token string) string {
	base := s.cfg.LinkBaseURL
	if base == "" {
		base = "http://localhost:8080/api/auth/magic-link/redeem"
	}
	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}
	return base + sep + "token=" + url.QueryEscape(token)
}

func normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", ErrInvalidEmail
	}
	return email, nil
}

type sessionKey struct{}

// WithSession stores sess in ctx.
func WithSession(ctx context.Context, sess Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, sess)
}

// SessionFromContext returns the signed-in session, if any.
func SessionFromContext(ctx context.Context) (Session, bool) {
	sess, ok := ctx.Value(sessionKey{}).(Session)
	return sess, ok
}
