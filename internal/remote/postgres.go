package remote

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	"github.com/lib/pq"

	"fintrack/internal/core"
	"fintrack/internal/log"
)

// NotifyChannel is the LISTEN channel fed by the transactions trigger.
const NotifyChannel = "fintrack_transactions"

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Postgres implements Records and Users on PostgreSQL.
type Postgres struct {
	db     *sql.DB
	dsn    string
	logger *log.Logger
}

// OpenPostgres connects to dsn and migrates the schema.
func OpenPostgres(ctx context.Context, dsn string, logger *log.Logger) (*Postgres, error) {
	if logger == nil {
		logger = log.Nop()
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Postgres{
		db:     db,
		dsn:    dsn,
		logger: logger.WithComponent(log.ComponentRemote),
	}, nil
}

func runMigrations(db *sql.DB) error {
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create postgres driver: %w", err)
	}
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("create iofs source: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return fmt.Errorf("create migrate instance: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

func (p *Postgres) Close() error { return p.db.Close() }

func (p *Postgres) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }

// UpsertRecords inserts or updates records keyed by id. A row owned by
// another user is left untouched.
func (p *Postgres) UpsertRecords(ctx context.Context, userID string, records []core.Tx) error {
	if len(records) == 0 {
		return nil
	}
	return p.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO transactions
				(id, user_id, type, account, to_account, date, time, amount, category, subcategory, note, transfer_id, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, now())
			ON CONFLICT (id) DO UPDATE SET
				type = EXCLUDED.type, account = EXCLUDED.account, to_account = EXCLUDED.to_account,
				date = EXCLUDED.date, time = EXCLUDED.time, amount = EXCLUDED.amount,
				category = EXCLUDED.category, subcategory = EXCLUDED.subcategory,
				note = EXCLUDED.note, transfer_id = EXCLUDED.transfer_id, updated_at = now()
			WHERE transactions.user_id = EXCLUDED.user_id`)
		if err != nil {
			return fmt.Errorf("prepare upsert: %w", err)
		}
		defer stmt.Close()

		for _, rec := range records {
			r := RowFromTx(userID, rec)
			if _, err := stmt.ExecContext(ctx, r.ID, r.UserID, r.Type, r.Account, r.ToAccount,
				r.Date, r.Time, *r.Amount, r.Category, r.Subcategory, r.Note, r.TransferID); err != nil {
				return fmt.Errorf("upsert record %s: %w", r.ID, err)
			}
		}
		return nil
	})
}

// FetchRecords returns every record of the user, newest first. Rows that
// fail validation abort the fetch.
func (p *Postgres) FetchRecords(ctx context.Context, userID string) ([]core.Tx, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, user_id, type, account, to_account, date, time, amount, category, subcategory, note, transfer_id
		FROM transactions
		WHERE user_id = $1
		ORDER BY date DESC, time DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	out := []core.Tx{}
	for rows.Next() {
		var r Row
		var toAccount, note, transferID sql.NullString
		var amount sql.NullFloat64
		if err := rows.Scan(&r.ID, &r.UserID, &r.Type, &r.Account, &toAccount, &r.Date, &r.Time,
			&amount, &r.Category, &r.Subcategory, &note, &transferID); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		r.ToAccount = nullString(toAccount)
		r.Note = nullString(note)
		r.TransferID = nullString(transferID)
		if amount.Valid {
			r.Amount = &amount.Float64
		}
		tx, err := ValidateRow(r)
		if err != nil {
			return nil, err
		}
		out = append(out, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return out, nil
}

func (p *Postgres) DeleteRecords(ctx context.Context, userID string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if _, err := p.db.ExecContext(ctx,
		`DELETE FROM transactions WHERE user_id = $1 AND id = ANY($2)`,
		userID, pq.Array(ids)); err != nil {
		return fmt.Errorf("delete records: %w", err)
	}
	return nil
}

func (p *Postgres) LoadSettings(ctx context.Context, userID string) (Settings, error) {
	var tags, budget []byte
	err := p.db.QueryRowContext(ctx,
		`SELECT tags, budget FROM settings WHERE user_id = $1`, userID).Scan(&tags, &budget)
	if errors.Is(err, sql.ErrNoRows) {
		return Settings{}, ErrNotFound
	}
	if err != nil {
		return Settings{}, fmt.Errorf("load settings: %w", err)
	}
	var s Settings
	if err := json.Unmarshal(tags, &s.Tags); err != nil {
		return Settings{}, fmt.Errorf("%w: settings tags: %v", ErrMalformedRow, err)
	}
	if err := json.Unmarshal(budget, &s.Budget); err != nil {
		return Settings{}, fmt.Errorf("%w: settings budget: %v", ErrMalformedRow, err)
	}
	if err := s.Budget.Validate(); err != nil {
		return Settings{}, fmt.Errorf("%w: settings budget: %v", ErrMalformedRow, err)
	}
	return s, nil
}

func (p *Postgres) SaveSettings(ctx context.Context, userID string, s Settings) error {
	tags, err := json.Marshal(s.Tags)
	if err != nil {
		return fmt.Errorf("encode tags: %w", err)
	}
	budget, err := json.Marshal(s.Budget)
	if err != nil {
		return fmt.Errorf("encode budget: %w", err)
	}
	if _, err := p.db.ExecContext(ctx, `
		INSERT INTO settings (user_id, tags, budget, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (user_id) DO UPDATE
		SET tags = EXCLUDED.tags, budget = EXCLUDED.budget, updated_at = now()`,
		userID, tags, budget); err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	return nil
}

func (p *Postgres) FetchGoals(ctx context.Context, userID string) ([]core.Goal, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, name, target_amount, current_amount, target_date
		FROM goals WHERE user_id = $1 ORDER BY name`, userID)
	if err != nil {
		return nil, fmt.Errorf("query goals: %w", err)
	}
	defer rows.Close()

	out := []core.Goal{}
	for rows.Next() {
		var g core.Goal
		var targetDate sql.NullString
		if err := rows.Scan(&g.ID, &g.Name, &g.TargetAmount, &g.CurrentAmount, &targetDate); err != nil {
			return nil, fmt.Errorf("scan goal: %w", err)
		}
		g.TargetDate = targetDate.String
		if err := g.Validate(); err != nil {
			return nil, fmt.Errorf("%w: goal %s: %v", ErrMalformedRow, g.ID, err)
		}
		out = append(out, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate goals: %w", err)
	}
	return out, nil
}

func (p *Postgres) UpsertGoals(ctx context.Context, userID string, goals []core.Goal) error {
	if len(goals) == 0 {
		return nil
	}
	return p.inTx(ctx, func(tx *sql.Tx) error {
		for _, g := range goals {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO goals (id, user_id, name, target_amount, current_amount, target_date)
				VALUES ($1, $2, $3, $4, $5, $6)
				ON CONFLICT (id) DO UPDATE SET
					name = EXCLUDED.name, target_amount = EXCLUDED.target_amount,
					current_amount = EXCLUDED.current_amount, target_date = EXCLUDED.target_date
				WHERE goals.user_id = EXCLUDED.user_id`,
				g.ID, userID, g.Name, g.TargetAmount, g.CurrentAmount, ref(g.TargetDate)); err != nil {
				return fmt.Errorf("upsert goal %s: %w", g.ID, err)
			}
		}
		return nil
	})
}

func (p *Postgres) DeleteGoals(ctx context.Context, userID string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if _, err := p.db.ExecContext(ctx,
		`DELETE FROM goals WHERE user_id = $1 AND id = ANY($2)`,
		userID, pq.Array(ids)); err != nil {
		return fmt.Errorf("delete goals: %w", err)
	}
	return nil
}

func (p *Postgres) CreateUser(ctx context.Context, email, passwordHash string) (User, error) {
	u := User{ID: uuid.NewString(), Email: normalizeEmail(email), PasswordHash: passwordHash}
	err := p.db.QueryRowContext(ctx, `
		INSERT INTO users (id, email, password_hash) VALUES ($1, $2, $3)
		RETURNING created_at`, u.ID, u.Email, u.PasswordHash).Scan(&u.CreatedAt)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return User{}, ErrUserExists
	}
	if err != nil {
		return User{}, fmt.Errorf("create user: %w", err)
	}
	return u, nil
}

func (p *Postgres) UserByEmail(ctx context.Context, email string) (User, error) {
	return p.userWhere(ctx, "email", normalizeEmail(email))
}

func (p *Postgres) UserByID(ctx context.Context, id string) (User, error) {
	return p.userWhere(ctx, "id", id)
}

func (p *Postgres) userWhere(ctx context.Context, column, value string) (User, error) {
	var u User
	err := p.db.QueryRowContext(ctx,
		`SELECT id, email, password_hash, created_at FROM users WHERE `+column+` = $1`, value).
		Scan(&u.ID, &u.Email, &u.PasswordHash, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("find user: %w", err)
	}
	return u, nil
}

func (p *Postgres) SaveMagicLink(ctx context.Context, email, tokenHash string, expiresAt time.Time) error {
	if _, err := p.db.ExecContext(ctx,
		`INSERT INTO magic_links (token_hash, email, expires_at) VALUES ($1, $2, $3)`,
		tokenHash, normalizeEmail(email), expiresAt); err != nil {
		return fmt.Errorf("save magic link: %w", err)
	}
	return nil
}

func (p *Postgres) ConsumeMagicLink(ctx context.Context, tokenHash string, now time.Time) (string, error) {
	var email string
	err := p.db.QueryRowContext(ctx, `
		UPDATE magic_links SET used_at = $2
		WHERE token_hash = $1 AND used_at IS NULL AND expires_at > $2
		RETURNING email`, tokenHash, now).Scan(&email)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrLinkInvalid
	}
	if err != nil {
		return "", fmt.Errorf("consume magic link: %w", err)
	}
	return email, nil
}

func (p *Postgres) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func nullString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
