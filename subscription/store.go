// Package subscription records checkout payments and answers whether a user is a paying subscriber.
package subscription

import (
	"context"
	"database/sql"
	_ "embed"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	_ "modernc.org/sqlite"
)

// StatusPaid is the payment status that grants a subscription.
const StatusPaid = "paid"

const defaultCurrency = "usd"

//go:embed schema.sql
var schema string

// A Payment is one completed checkout.
type Payment struct {
	ID          string    `json:"id"`
	SessionID   string    `json:"session_id"`
	UserID      string    `json:"user_id"`
	Status      string    `json:"status"`
	AmountTotal int64     `json:"amount_total"`
	Currency    string    `json:"currency"`
	CreatedAt   time.Time `json:"created_at"`
}

// Amount is AmountTotal in major currency units.
func (p Payment) Amount() float64 {
	return float64(p.AmountTotal) / 100
}

// A Checker answers whether a user currently holds a paid subscription.
type Checker interface {
	IsSubscribed(ctx context.Context, userID string) (bool, error)
}

// Store persists payments in SQLite.
type Store struct {
	sqlDB *sql.DB
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens a SQLite payment store, creating the schema if needed.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("storage path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "open sqlite db")
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, errors.Wrap(err, "ping sqlite db")
	}
	if _, err := sqlDB.Exec(schema); err != nil {
		_ = sqlDB.Close()
		return nil, errors.Wrap(err, "create schema")
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// RecordPayment stores a payment. A payment for a checkout session already on record replaces it.
func (s *Store) RecordPayment(ctx context.Context, p Payment) (Payment, error) {
	if err := ctx.Err(); err != nil {
		return Payment{}, err
	}
	if s == nil || s.sqlDB == nil {
		return Payment{}, errors.New("storage is not configured")
	}
	p.SessionID = strings.TrimSpace(p.SessionID)
	p.UserID = strings.TrimSpace(p.UserID)
	p.Status = strings.TrimSpace(p.Status)
	if p.SessionID == "" {
		return Payment{}, errors.New("session id is required")
	}
	if p.UserID == "" {
		return Payment{}, errors.New("user id is required")
	}
	if p.Status == "" {
		return Payment{}, errors.New("status is required")
	}
	if p.AmountTotal < 0 {
		return Payment{}, errors.New("amount cannot be negative")
	}
	p.Currency = strings.ToLower(strings.TrimSpace(p.Currency))
	if p.Currency == "" {
		p.Currency = defaultCurrency
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	p.CreatedAt = fromMillis(toMillis(p.CreatedAt))

	_, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO payments (id, session_id, user_id, status, amount_total, currency, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(session_id) DO UPDATE SET
		   user_id = excluded.user_id,
		   status = excluded.status,
		   amount_total = excluded.amount_total,
		   currency = excluded.currency,
		   created_at = excluded.created_at`,
		p.ID,
		p.SessionID,
		p.UserID,
		p.Status,
		p.AmountTotal,
		p.Currency,
		toMillis(p.CreatedAt),
	)
	if err != nil {
		return Payment{}, errors.Wrap(err, "record payment")
	}
	return s.paymentBySession(ctx, p.SessionID)
}

func (s *Store) paymentBySession(ctx context.Context, sessionID string) (Payment, error) {
	row := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT id, session_id, user_id, status, amount_total, currency, created_at
		 FROM payments WHERE session_id = ?`,
		sessionID,
	)
	return scanPayment(row)
}

// LatestPayment returns the most recent payment for the user, or sql.ErrNoRows if there is none.
func (s *Store) LatestPayment(ctx context.Context, userID string) (Payment, error) {
	if err := ctx.Err(); err != nil {
		return Payment{}, err
	}
	if s == nil || s.sqlDB == nil {
		return Payment{}, errors.New("storage is not configured")
	}
	row := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT id, session_id, user_id, status, amount_total, currency, created_at
		 FROM payments WHERE user_id = ?
		 ORDER BY created_at DESC, rowid DESC
		 LIMIT 1`,
		strings.TrimSpace(userID),
	)
	return scanPayment(row)
}

// IsSubscribed implements Checker. A user is subscribed when their latest payment is paid.
func (s *Store) IsSubscribed(ctx context.Context, userID string) (bool, error) {
	if strings.TrimSpace(userID) == "" {
		return false, nil
	}
	p, err := s.LatestPayment(ctx, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return p.Status == StatusPaid, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPayment(row rowScanner) (Payment, error) {
	var (
		p         Payment
		createdAt int64
	)
	if err := row.Scan(&p.ID, &p.SessionID, &p.UserID, &p.Status, &p.AmountTotal, &p.Currency, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Payment{}, err
		}
		return Payment{}, errors.Wrap(err, "scan payment")
	}
	p.CreatedAt = fromMillis(createdAt)
	return p, nil
}
