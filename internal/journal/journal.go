// Package journal keeps an append-only sqlite record of reservation
// submissions and aborted-payment cleanups.
package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3" // sqlite3 driver
	"github.com/rs/zerolog"
)

// Submission statuses.
const (
	StatusSubmitted    = "submitted"
	StatusFailed       = "failed"
	StatusNotAvailable = "not_available"
)

// Submission is one reservation attempt.
type Submission struct {
	ID          int64
	Reference   string
	Business    string
	UserID      int64
	Name        string
	Email       string
	EventDate   string
	EventTime   int
	Duration    int
	ServiceIDs  []int64
	ClientTZ    string
	Status      string
	Error       string
	RedirectURL string
	CreatedAt   time.Time
}

// Cancellation is one cleanup request sent after an aborted payment.
type Cancellation struct {
	ID          int64
	Business    string
	ProductID   string
	ProductType string
	Status      string
	Error       string
	CreatedAt   time.Time
}

// DB wraps the journal database.
type DB struct {
	*sql.DB
	logger *zerolog.Logger
}

// NewDB opens the journal at path and creates tables if they don't exist.
func NewDB(path string, logger *zerolog.Logger) (*DB, error) {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create journal directory: %w", err)
		}
	}

	dsn := path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect journal: %w", err)
	}
	if err := createTables(db); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info().Str("path", path).Msg("Journal initialized")
	return &DB{DB: db, logger: logger}, nil
}

func createTables(db *sql.DB) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS submissions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			reference TEXT NOT NULL,
			business TEXT NOT NULL,
			user_id INTEGER NOT NULL DEFAULT 0,
			name TEXT,
			email TEXT,
			event_date TEXT NOT NULL,
			event_time INTEGER NOT NULL,
			duration INTEGER NOT NULL,
			service_ids TEXT NOT NULL,
			client_tz TEXT,
			status TEXT NOT NULL,
			error TEXT,
			redirect_url TEXT,
			created_at DATETIME NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS cancellations (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			business TEXT NOT NULL,
			product_id TEXT NOT NULL,
			product_type TEXT NOT NULL,
			status TEXT NOT NULL,
			error TEXT,
			created_at DATETIME NOT NULL
		)`,

		`CREATE INDEX IF NOT EXISTS idx_submissions_business ON submissions(business, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_submissions_reference ON submissions(reference)`,
	}

	for _, q := range queries {
		if _, err := db.Exec(q); err != nil {
			return fmt.Errorf("exec migration %s: %w", trimSQL(q), err)
		}
	}
	return nil
}

// RecordSubmission appends a submission attempt.
func (db *DB) RecordSubmission(ctx context.Context, s Submission) error {
	ids, err := json.Marshal(s.ServiceIDs)
	if err != nil {
		return fmt.Errorf("encode service ids: %w", err)
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now()
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO submissions (reference, business, user_id, name, email, event_date, event_time,
			duration, service_ids, client_tz, status, error, redirect_url, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.Reference, s.Business, s.UserID, s.Name, s.Email, s.EventDate, s.EventTime,
		s.Duration, string(ids), s.ClientTZ, s.Status, s.Error, s.RedirectURL, s.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert submission: %w", err)
	}
	return nil
}

// RecordCancellation appends a cleanup attempt.
func (db *DB) RecordCancellation(ctx context.Context, c Cancellation) error {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO cancellations (business, product_id, product_type, status, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		c.Business, c.ProductID, c.ProductType, c.Status, c.Error, c.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert cancellation: %w", err)
	}
	return nil
}

// Submissions returns submissions created in [from, to), oldest first.
// A zero bound is open.
func (db *DB) Submissions(ctx context.Context, from, to time.Time) ([]Submission, error) {
	query := `SELECT id, reference, business, user_id, COALESCE(name, ''), COALESCE(email, ''),
		event_date, event_time, duration, service_ids, COALESCE(client_tz, ''), status,
		COALESCE(error, ''), COALESCE(redirect_url, ''), created_at
		FROM submissions`
	where, args := timeRange(from, to)
	rows, err := db.QueryContext(ctx, query+where+" ORDER BY created_at, id", args...)
	if err != nil {
		return nil, fmt.Errorf("query submissions: %w", err)
	}
	defer rows.Close()

	var out []Submission
	for rows.Next() {
		var s Submission
		var ids string
		if err := rows.Scan(&s.ID, &s.Reference, &s.Business, &s.UserID, &s.Name, &s.Email,
			&s.EventDate, &s.EventTime, &s.Duration, &ids, &s.ClientTZ, &s.Status,
			&s.Error, &s.RedirectURL, &s.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(ids), &s.ServiceIDs); err != nil {
			db.logger.Warn().Err(err).Int64("id", s.ID).Msg("bad service_ids in journal")
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Cancellations returns cleanups created in [from, to), oldest first.
func (db *DB) Cancellations(ctx context.Context, from, to time.Time) ([]Cancellation, error) {
	query := `SELECT id, business, product_id, product_type, status, COALESCE(error, ''), created_at
		FROM cancellations`
	where, args := timeRange(from, to)
	rows, err := db.QueryContext(ctx, query+where+" ORDER BY created_at, id", args...)
	if err != nil {
		return nil, fmt.Errorf("query cancellations: %w", err)
	}
	defer rows.Close()

	var out []Cancellation
	for rows.Next() {
		var c Cancellation
		if err := rows.Scan(&c.ID, &c.Business, &c.ProductID, &c.ProductType, &c.Status,
			&c.Error, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Ping is used by the readiness probe.
func (db *DB) Ping(ctx context.Context) error {
	return db.PingContext(ctx)
}

func timeRange(from, to time.Time) (string, []any) {
	var conds []string
	var args []any
	if !from.IsZero() {
		conds = append(conds, "created_at >= ?")
		args = append(args, from.UTC())
	}
	if !to.IsZero() {
		conds = append(conds, "created_at < ?")
		args = append(args, to.UTC())
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func trimSQL(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > 60 {
		return s[:60] + "..."
	}
	return s
}
