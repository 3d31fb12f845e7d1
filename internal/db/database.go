// Package db provides PostgreSQL data access for BugSpotter: connection
// pooling, schema migrations, and one repository per entity.
//
// Implementation Details:
//   - database/sql + github.com/lib/pq (chosen over pgx so repository
//     tests keep using github.com/DATA-DOG/go-sqlmock, which integrates
//     with database/sql's driver interface but not pgx's native pool).
//   - Schema versioned by lexically-ordered .sql files under migrations/,
//     embedded at compile time and tracked in a migrations_history table.
//   - Every repository shares the *sql.DB (or *sql.Tx, inside a
//     transaction façade) through the Queryer interface below.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/apexbridge-tech/bugspotter/migrations"
)

// Config holds database connection and pool configuration.
type Config struct {
	DatabaseURL           string
	PoolMin               int
	PoolMax               int
	ConnectionTimeoutMs   int
	IdleTimeoutMs         int
}

// Database owns the connection pool and exposes per-entity repositories.
type Database struct {
	db *sql.DB

	Projects         *ProjectRepository
	Users            *UserRepository
	BugReports       *BugReportRepository
	Sessions         *SessionRepository
	Tickets          *TicketRepository
	AuditLogs        *AuditLogRepository
	RetentionPolicies *RetentionPolicyRepository
	Settings         *SettingsRepository
}

// Queryer is the subset of *sql.DB / *sql.Tx every repository depends on,
// so repositories work unmodified inside Transaction's callback.
type Queryer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

func validateConfig(cfg Config) error {
	if cfg.DatabaseURL == "" {
		return fmt.Errorf("db: DatabaseURL cannot be empty")
	}
	if cfg.PoolMin < 0 || cfg.PoolMax < cfg.PoolMin {
		return fmt.Errorf("db: invalid pool bounds (min=%d max=%d)", cfg.PoolMin, cfg.PoolMax)
	}
	return nil
}

// NewDatabase opens a connection pool and wires every repository against it.
func NewDatabase(cfg Config) (*Database, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	sqlDB, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("db: open: %w", err)
	}

	poolMax := cfg.PoolMax
	if poolMax == 0 {
		poolMax = 10
	}
	poolMin := cfg.PoolMin
	if poolMin == 0 {
		poolMin = 2
	}
	sqlDB.SetMaxOpenConns(poolMax)
	sqlDB.SetMaxIdleConns(poolMin)
	sqlDB.SetConnMaxLifetime(5 * time.Minute)
	sqlDB.SetConnMaxIdleTime(1 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("db: ping: %w", err)
	}

	return newDatabase(sqlDB), nil
}

// NewDatabaseForTesting builds a Database from an existing *sql.DB
// (typically a go-sqlmock connection) for repository unit tests.
func NewDatabaseForTesting(sqlDB *sql.DB) *Database {
	return newDatabase(sqlDB)
}

func newDatabase(sqlDB *sql.DB) *Database {
	return &Database{
		db:                sqlDB,
		Projects:          &ProjectRepository{q: sqlDB},
		Users:             &UserRepository{q: sqlDB},
		BugReports:        &BugReportRepository{q: sqlDB},
		Sessions:          &SessionRepository{q: sqlDB},
		Tickets:           &TicketRepository{q: sqlDB},
		AuditLogs:         &AuditLogRepository{q: sqlDB},
		RetentionPolicies: &RetentionPolicyRepository{q: sqlDB},
		Settings:          &SettingsRepository{q: sqlDB},
	}
}

// Close closes the connection pool.
func (d *Database) Close() error { return d.db.Close() }

// DB returns the underlying *sql.DB, for health checks and migrations.
func (d *Database) DB() *sql.DB { return d.db }

// Ping performs the C9 readiness probe: SELECT 1 with a bounded timeout.
func (d *Database) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	var one int
	return d.db.QueryRowContext(ctx, "SELECT 1").Scan(&one)
}

// Transaction begins a transaction and passes a Database façade backed by
// the *sql.Tx to fn, with the same repository surface as the top-level
// Database. It commits on a nil return and rolls back on any error,
// including a panic, which it re-raises after rollback.
func (d *Database) Transaction(ctx context.Context, fn func(tx *Database) error) (err error) {
	sqlTx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("db: begin transaction: %w", err)
	}

	txDB := &Database{
		db:                d.db,
		Projects:          &ProjectRepository{q: sqlTx},
		Users:             &UserRepository{q: sqlTx},
		BugReports:        &BugReportRepository{q: sqlTx},
		Sessions:          &SessionRepository{q: sqlTx},
		Tickets:           &TicketRepository{q: sqlTx},
		AuditLogs:         &AuditLogRepository{q: sqlTx},
		RetentionPolicies: &RetentionPolicyRepository{q: sqlTx},
		Settings:          &SettingsRepository{q: sqlTx},
	}

	defer func() {
		if p := recover(); p != nil {
			_ = sqlTx.Rollback()
			panic(p)
		}
	}()

	if err = fn(txDB); err != nil {
		if rbErr := sqlTx.Rollback(); rbErr != nil {
			return fmt.Errorf("db: rollback after error %v: %w", err, rbErr)
		}
		return err
	}

	return sqlTx.Commit()
}

// RetentionLockKey is the pg_advisory_lock key the retention scheduler
// holds for the duration of a run, so only one replica's scheduler
// processes retention at a time.
const RetentionLockKey = 72175

// AdvisoryLock holds a dedicated connection for the lifetime of a
// session-level pg_advisory_lock. Postgres advisory locks are tied to
// the connection that took them, not to a transaction, so the lock and
// its eventual release must run on the very same *sql.Conn — routing
// them through the pool independently would let the driver hand the
// unlock to a connection that never held the lock.
type AdvisoryLock struct {
	conn *sql.Conn
	key  int64
}

// TryAdvisoryLock attempts to acquire the named advisory lock without
// blocking. Returns (nil, false, nil) if another session already holds
// it. The caller must call Release on a non-nil result.
func (d *Database) TryAdvisoryLock(ctx context.Context, key int64) (*AdvisoryLock, bool, error) {
	conn, err := d.db.Conn(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("db: acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRowContext(ctx, `SELECT pg_try_advisory_lock($1)`, key).Scan(&acquired); err != nil {
		conn.Close()
		return nil, false, fmt.Errorf("db: try advisory lock: %w", err)
	}
	if !acquired {
		conn.Close()
		return nil, false, nil
	}
	return &AdvisoryLock{conn: conn, key: key}, true, nil
}

// Release unlocks and returns the underlying connection to the pool.
func (l *AdvisoryLock) Release(ctx context.Context) error {
	defer l.conn.Close()
	_, err := l.conn.ExecContext(ctx, `SELECT pg_advisory_unlock($1)`, l.key)
	if err != nil {
		return fmt.Errorf("db: advisory unlock: %w", err)
	}
	return nil
}

// Migrate applies every migrations/*.sql file in lexical order that isn't
// already recorded in migrations_history, each inside its own transaction.
func (d *Database) Migrate() error {
	if _, err := d.db.Exec(`
		CREATE TABLE IF NOT EXISTS migrations_history (
			name TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`); err != nil {
		return fmt.Errorf("db: create migrations_history: %w", err)
	}

	applied := map[string]bool{}
	rows, err := d.db.Query(`SELECT name FROM migrations_history`)
	if err != nil {
		return fmt.Errorf("db: read migrations_history: %w", err)
	}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			rows.Close()
			return fmt.Errorf("db: scan migrations_history: %w", err)
		}
		applied[name] = true
	}
	rows.Close()

	entries, err := migrations.FS.ReadDir(".")
	if err != nil {
		return fmt.Errorf("db: read embedded migrations: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	for _, name := range names {
		if applied[name] {
			continue
		}
		sqlBytes, err := migrations.FS.ReadFile(name)
		if err != nil {
			return fmt.Errorf("db: read migration %s: %w", name, err)
		}

		tx, err := d.db.Begin()
		if err != nil {
			return fmt.Errorf("db: begin migration %s: %w", name, err)
		}
		if _, err := tx.Exec(string(sqlBytes)); err != nil {
			tx.Rollback()
			return fmt.Errorf("db: apply migration %s: %w", name, err)
		}
		if _, err := tx.Exec(`INSERT INTO migrations_history (name) VALUES ($1)`, name); err != nil {
			tx.Rollback()
			return fmt.Errorf("db: record migration %s: %w", name, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("db: commit migration %s: %w", name, err)
		}
	}

	return nil
}
