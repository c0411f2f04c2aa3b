package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"carrental/internal/domain"

	_ "github.com/mattn/go-sqlite3" // sqlite3 driver
	"github.com/rs/zerolog"
)

// ErrConcurrentModification is returned when a row changed between read and versioned update.
var ErrConcurrentModification = fmt.Errorf("%w: concurrent modification", domain.ErrConflict)

const memoryPath = ":memory:"

type DB struct {
	*sql.DB
	path   string
	logger *zerolog.Logger
	clock  func() time.Time
}

type Option func(*options)

type options struct {
	busyTimeout time.Duration
	clock       func() time.Time
}

func WithBusyTimeout(d time.Duration) Option {
	return func(o *options) { o.busyTimeout = d }
}

// WithClock overrides the time source used for audit timestamps.
func WithClock(clock func() time.Time) Option {
	return func(o *options) { o.clock = clock }
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type scanner interface {
	Scan(dest ...any) error
}

func NewDB(path string, logger *zerolog.Logger, opts ...Option) (*DB, error) {
	o := options{busyTimeout: 5 * time.Second, clock: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	if path != memoryPath {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	// Writers take the reserved lock at BEGIN so read-check-write transactions serialize.
	dsn := fmt.Sprintf("%s?_txlock=immediate&_busy_timeout=%d&_foreign_keys=on",
		path, o.busyTimeout.Milliseconds())

	sqlDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if path == memoryPath {
		// every connection to :memory: is a separate database
		sqlDB.SetMaxOpenConns(1)
	}

	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := createTables(sqlDB); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	logger.Info().Str("path", path).Msg("Database initialized")
	return &DB{DB: sqlDB, path: path, logger: logger, clock: o.clock}, nil
}

func (db *DB) Path() string {
	return db.path
}

func (db *DB) now() time.Time {
	return db.clock().UTC()
}

// withTx runs fn in a transaction and rolls back on any error.
func (db *DB) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func createTables(db *sql.DB) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS depots (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            name TEXT NOT NULL UNIQUE,
            address TEXT NOT NULL DEFAULT ''
        )`,
		`CREATE TABLE IF NOT EXISTS users (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            email TEXT UNIQUE,
            first_name TEXT NOT NULL,
            last_name TEXT NOT NULL DEFAULT '',
            phone TEXT NOT NULL DEFAULT '',
            telegram_id INTEGER NOT NULL DEFAULT 0,
            role TEXT NOT NULL DEFAULT 'customer',
            created_at DATETIME NOT NULL,
            updated_at DATETIME NOT NULL
        )`,
		`CREATE TABLE IF NOT EXISTS cars (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            brand TEXT NOT NULL,
            model TEXT NOT NULL,
            licence_plate TEXT NOT NULL UNIQUE,
            day_rate INTEGER NOT NULL CHECK (day_rate >= 0),
            odometer INTEGER NOT NULL DEFAULT 0 CHECK (odometer >= 0),
            fuel_type TEXT NOT NULL DEFAULT '',
            licence_class TEXT NOT NULL DEFAULT '',
            in_proper_condition INTEGER NOT NULL DEFAULT 1,
            deleted INTEGER NOT NULL DEFAULT 0,
            is_rented INTEGER NOT NULL DEFAULT 0,
            depot_id INTEGER REFERENCES depots(id),
            created_at DATETIME NOT NULL,
            updated_at DATETIME NOT NULL
        )`,
		`CREATE TABLE IF NOT EXISTS rents (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            renter_id INTEGER NOT NULL REFERENCES users(id),
            car_id INTEGER NOT NULL REFERENCES cars(id),
            state TEXT NOT NULL DEFAULT 'requested',
            planned_start DATETIME NOT NULL,
            planned_end DATETIME NOT NULL,
            actual_start DATETIME,
            actual_end DATETIME,
            approved_by INTEGER,
            issued_by INTEGER,
            taken_back_by INTEGER,
            starting_odometer INTEGER,
            ending_odometer INTEGER,
            invoice_request INTEGER NOT NULL DEFAULT 0,
            receipt_id INTEGER,
            issued_at DATETIME,
            total_cost INTEGER,
            pickup_depot_id INTEGER REFERENCES depots(id),
            return_depot_id INTEGER REFERENCES depots(id),
            created_at DATETIME NOT NULL,
            updated_at DATETIME NOT NULL,
            version INTEGER NOT NULL DEFAULT 1,
            CHECK (planned_end > planned_start)
        )`,
		`CREATE TABLE IF NOT EXISTS receipts (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            rent_id INTEGER NOT NULL UNIQUE REFERENCES rents(id),
            number TEXT NOT NULL UNIQUE,
            issuer_id INTEGER NOT NULL,
            total_cost INTEGER NOT NULL,
            issue_date DATETIME NOT NULL,
            seller TEXT NOT NULL,
            buyer TEXT NOT NULL,
            items TEXT NOT NULL,
            updated_at DATETIME NOT NULL
        )`,
		`CREATE TABLE IF NOT EXISTS waiting_list (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            user_id INTEGER NOT NULL REFERENCES users(id),
            car_id INTEGER NOT NULL REFERENCES cars(id),
            position INTEGER NOT NULL,
            status TEXT NOT NULL DEFAULT 'active',
            queued_at DATETIME NOT NULL,
            notified_at DATETIME,
            updated_at DATETIME NOT NULL,
            UNIQUE (car_id, position)
        )`,
		`CREATE TABLE IF NOT EXISTS waiting_list_seq (
            car_id INTEGER PRIMARY KEY REFERENCES cars(id),
            last_position INTEGER NOT NULL
        )`,
		`CREATE TABLE IF NOT EXISTS notifications (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            user_id INTEGER NOT NULL,
            kind TEXT NOT NULL,
            subject TEXT NOT NULL DEFAULT '',
            body TEXT NOT NULL,
            status TEXT NOT NULL DEFAULT 'pending',
            retry_count INTEGER NOT NULL DEFAULT 0,
            last_error TEXT,
            created_at DATETIME NOT NULL,
            processed_at DATETIME,
            next_retry_at DATETIME
        )`,

		`CREATE INDEX IF NOT EXISTS idx_cars_depot ON cars(depot_id)`,
		`CREATE INDEX IF NOT EXISTS idx_rents_car_state ON rents(car_id, state)`,
		`CREATE INDEX IF NOT EXISTS idx_rents_renter ON rents(renter_id)`,
		`CREATE INDEX IF NOT EXISTS idx_rents_state ON rents(state)`,
		`CREATE INDEX IF NOT EXISTS idx_waiting_car_status ON waiting_list(car_id, status, position)`,
		`CREATE INDEX IF NOT EXISTS idx_notifications_status ON notifications(status, next_retry_at)`,
	}

	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("error executing query %s: %w", firstLine(query), err)
		}
	}
	return nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

func notFound(err error, entity string, id int64) error {
	if errors.Is(err, sql.ErrNoRows) {
		return domain.NotFoundf("%s %d", entity, id)
	}
	return fmt.Errorf("failed to get %s %d: %w", entity, id, err)
}

func nullInt64(v int64) sql.NullInt64 {
	return sql.NullInt64{Int64: v, Valid: v != 0}
}

func nullString(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
