// Package sqlite provides SQLite-based persistent storage for LevelHabit.
// Uses WAL mode for concurrent reads and crash-safe writes.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	drv "modernc.org/sqlite" // Pure-Go SQLite driver (no CGO required)
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/levelhabit/levelhabit/internal/domain"
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// DB wraps a SQLite connection with WAL mode and migrations. A DB
// returned inside WithinTx is bound to that transaction.
type DB struct {
	db   *sql.DB
	q    querier
	inTx bool
}

var _ domain.Store = (*DB)(nil)

// Open creates or opens the SQLite database at dir/levelhabit.db.
// Enables WAL mode, foreign keys, and 5-second busy timeout.
func Open(dir string) (*DB, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	dbPath := filepath.Join(dir, "levelhabit.db")
	dsn := dbPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	// SQLite is single-writer; one connection also serializes transactions.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	d := &DB{db: db, q: db}
	if err := d.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return d, nil
}

// Close cleanly shuts down the database.
func (d *DB) Close() error {
	return d.db.Close()
}

// Ping checks database connectivity.
func (d *DB) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

// WithinTx runs fn inside a transaction. Nested calls join the
// transaction already open.
func (d *DB) WithinTx(ctx context.Context, fn func(tx domain.Store) error) error {
	if d.inTx {
		return fn(d)
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if err := fn(&DB{db: d.db, q: tx, inTx: true}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	committed = true
	return nil
}

// migrate runs idempotent schema migrations.
func (d *DB) migrate() error {
	migrations := []string{
		// Key-value metadata (catalog version, schema notes)
		`CREATE TABLE IF NOT EXISTS meta (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,

		// ─── Players ───────────────────────────────────────────────────
		`CREATE TABLE IF NOT EXISTS users (
			id             TEXT PRIMARY KEY,
			display_name   TEXT NOT NULL,
			timezone       TEXT NOT NULL DEFAULT 'Asia/Tokyo',
			gender         TEXT NOT NULL DEFAULT '',
			current_job_id TEXT NOT NULL DEFAULT 'beginner',
			level          INTEGER NOT NULL DEFAULT 1,
			total_exp      INTEGER NOT NULL DEFAULT 0,
			vit_level      INTEGER NOT NULL DEFAULT 1,
			vit_exp        INTEGER NOT NULL DEFAULT 0,
			int_level      INTEGER NOT NULL DEFAULT 1,
			int_exp        INTEGER NOT NULL DEFAULT 0,
			mnd_level      INTEGER NOT NULL DEFAULT 1,
			mnd_exp        INTEGER NOT NULL DEFAULT 0,
			dex_level      INTEGER NOT NULL DEFAULT 1,
			dex_exp        INTEGER NOT NULL DEFAULT 0,
			cha_level      INTEGER NOT NULL DEFAULT 1,
			cha_exp        INTEGER NOT NULL DEFAULT 0,
			str_level      INTEGER NOT NULL DEFAULT 1,
			str_exp        INTEGER NOT NULL DEFAULT 0,
			current_streak INTEGER NOT NULL DEFAULT 0,
			max_streak     INTEGER NOT NULL DEFAULT 0,
			created_at     INTEGER NOT NULL,
			updated_at     INTEGER NOT NULL
		)`,

		// ─── Habits ────────────────────────────────────────────────────
		`CREATE TABLE IF NOT EXISTS habits (
			id                TEXT PRIMARY KEY,
			user_id           TEXT NOT NULL REFERENCES users(id),
			name              TEXT NOT NULL,
			description       TEXT NOT NULL DEFAULT '',
			icon              TEXT NOT NULL DEFAULT '',
			category          TEXT NOT NULL,
			stat_type         TEXT NOT NULL,
			difficulty        TEXT NOT NULL,
			frequency_type    TEXT NOT NULL,
			specific_days     TEXT NOT NULL DEFAULT '',
			current_streak    INTEGER NOT NULL DEFAULT 0,
			best_streak       INTEGER NOT NULL DEFAULT 0,
			total_completions INTEGER NOT NULL DEFAULT 0,
			last_completed_at INTEGER,
			is_active         BOOLEAN NOT NULL DEFAULT 1,
			is_archived       BOOLEAN NOT NULL DEFAULT 0,
			created_at        INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_habits_user ON habits(user_id)`,

		// One completed record per habit per calendar date.
		`CREATE TABLE IF NOT EXISTS habit_records (
			id                   TEXT PRIMARY KEY,
			habit_id             TEXT NOT NULL REFERENCES habits(id),
			user_id              TEXT NOT NULL REFERENCES users(id),
			completed_date       TEXT NOT NULL,
			completed            BOOLEAN NOT NULL DEFAULT 1,
			note                 TEXT NOT NULL DEFAULT '',
			exp_earned           INTEGER NOT NULL,
			streak_at_completion INTEGER NOT NULL,
			completed_at         INTEGER NOT NULL,
			UNIQUE(habit_id, completed_date)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_records_user_date ON habit_records(user_id, completed_date)`,

		// ─── Catalog ───────────────────────────────────────────────────
		`CREATE TABLE IF NOT EXISTS achievements (
			id           TEXT PRIMARY KEY,
			name         TEXT NOT NULL,
			description  TEXT NOT NULL DEFAULT '',
			icon         TEXT NOT NULL DEFAULT '',
			type         TEXT NOT NULL,
			rarity       TEXT NOT NULL DEFAULT '',
			exp_reward   INTEGER NOT NULL DEFAULT 0,
			target_value INTEGER NOT NULL,
			target_stat  TEXT NOT NULL DEFAULT '',
			hidden       BOOLEAN NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS jobs (
			id           TEXT PRIMARY KEY,
			name         TEXT NOT NULL,
			description  TEXT NOT NULL DEFAULT '',
			tier         TEXT NOT NULL,
			requirements TEXT NOT NULL DEFAULT '{}',
			stat_bonuses TEXT NOT NULL DEFAULT '{}',
			exp_bonus    REAL NOT NULL DEFAULT 1.0,
			sort_order   INTEGER NOT NULL DEFAULT 0
		)`,

		// ─── Unlocks ───────────────────────────────────────────────────
		`CREATE TABLE IF NOT EXISTS user_achievements (
			user_id        TEXT NOT NULL REFERENCES users(id),
			achievement_id TEXT NOT NULL,
			is_unlocked    BOOLEAN NOT NULL DEFAULT 0,
			unlocked_at    INTEGER,
			PRIMARY KEY (user_id, achievement_id)
		)`,
		`CREATE TABLE IF NOT EXISTS user_jobs (
			user_id     TEXT NOT NULL REFERENCES users(id),
			job_id      TEXT NOT NULL,
			is_unlocked BOOLEAN NOT NULL DEFAULT 0,
			is_equipped BOOLEAN NOT NULL DEFAULT 0,
			unlocked_at INTEGER,
			PRIMARY KEY (user_id, job_id)
		)`,
	}

	for _, m := range migrations {
		if _, err := d.db.Exec(m); err != nil {
			return fmt.Errorf("exec migration: %w\nSQL: %s", err, m)
		}
	}
	return nil
}

// ─── Meta ───────────────────────────────────────────────────────────────────

// SetMeta stores a metadata value.
func (d *DB) SetMeta(ctx context.Context, key, value string) error {
	_, err := d.q.ExecContext(ctx,
		`INSERT INTO meta (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	return err
}

// GetMeta retrieves a metadata value. Returns "" if not set.
func (d *DB) GetMeta(ctx context.Context, key string) (string, error) {
	var value string
	err := d.q.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return value, err
}

// ─── Helpers ────────────────────────────────────────────────────────────────

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func nullableUnix(t *time.Time) sql.NullInt64 {
	if t == nil || t.IsZero() {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.Unix(), Valid: true}
}

func fromNullableUnix(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := time.Unix(n.Int64, 0)
	return &t
}

// isUniqueViolation reports a UNIQUE or PRIMARY KEY constraint failure.
func isUniqueViolation(err error) bool {
	var se *drv.Error
	if errors.As(err, &se) {
		code := se.Code()
		return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	}
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func notFound(entity, id string) error {
	return &domain.NotFoundError{Entity: entity, ID: id}
}
