// Package remote is the hosted store: users, records, settings and goals
// scoped per user, plus change notifications for the records table.
package remote

import (
	"context"
	"errors"
	"time"

	"fintrack/internal/core"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrUserExists   = errors.New("user already exists")
	ErrLinkInvalid  = errors.New("sign-in link invalid or expired")
	ErrMalformedRow = errors.New("malformed remote row")
)

// Settings is the single per-user row holding the taxonomy and budget.
type Settings struct {
	Tags   core.Taxonomy `json:"tags"`
	Budget core.Budget   `json:"budget"`
}

type User struct {
	ID           string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}

// ChangeOp is the kind of row change carried by a notification.
type ChangeOp string

const (
	OpInsert ChangeOp = "INSERT"
	OpUpdate ChangeOp = "UPDATE"
	OpDelete ChangeOp = "DELETE"
)

// Change is one validated records-table notification.
type Change struct {
	Op     ChangeOp
	Record core.Tx
	ID     string
}

// Records is the data-access contract for ledger records, settings and
// goals. Every call is scoped to one user.
type Records interface {
	UpsertRecords(ctx context.Context, userID string, records []core.Tx) error
	// FetchRecords returns records ordered by date then time, newest first.
	FetchRecords(ctx context.Context, userID string) ([]core.Tx, error)
	DeleteRecords(ctx context.Context, userID string, ids []string) error

	// LoadSettings returns ErrNotFound when the user never saved settings.
	LoadSettings(ctx context.Context, userID string) (Settings, error)
	SaveSettings(ctx context.Context, userID string, s Settings) error

	FetchGoals(ctx context.Context, userID string) ([]core.Goal, error)
	UpsertGoals(ctx context.Context, userID string, goals []core.Goal) error
	DeleteGoals(ctx context.Context, userID string, ids []string) error

	// Subscribe calls fn for every change to the user's records until ctx
	// is done. Malformed notifications are dropped.
	Subscribe(ctx context.Context, userID string, fn func(Change)) error
}

// Users is the data-access contract for authentication.
type Users interface {
	CreateUser(ctx context.Context, email, passwordHash string) (User, error)
	UserByEmail(ctx context.Context, email string) (User, error)
	UserByID(ctx context.Context, id string) (User, error)
	SaveMagicLink(ctx context.Context, email, tokenHash string, expiresAt time.Time) error
	// ConsumeMagicLink marks the link used and returns its email. Used,
	// unknown and expired links return ErrLinkInvalid.
	ConsumeMagicLink(ctx context.Context, tokenHash string, now time.Time) (string, error)
}
