// Package storage persists battle snapshots and fight rows in SQLite.
package storage

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"esim_battle_cache/internal/config"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// DriverName is the database/sql name registered by modernc.org/sqlite
const DriverName = "sqlite"

func init() {
	sqlx.BindDriver(DriverName, sqlx.QUESTION)
}

const schema = `
CREATE TABLE IF NOT EXISTS battles (
	battle_id               INTEGER PRIMARY KEY,
	current_round           INTEGER NOT NULL,
	attacker_score          INTEGER NOT NULL,
	defender_score          INTEGER NOT NULL,
	region_id               INTEGER NOT NULL,
	frozen                  INTEGER NOT NULL,
	type                    TEXT    NOT NULL,
	defender_id             INTEGER NOT NULL,
	attacker_id             INTEGER NOT NULL,
	total_seconds_remaining INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS fights (
	battle_id     INTEGER NOT NULL,
	round_id      INTEGER NOT NULL,
	damage        INTEGER NOT NULL,
	weapon        INTEGER NOT NULL,
	berserk       INTEGER NOT NULL,
	defender_side INTEGER NOT NULL,
	citizenship   INTEGER,
	citizen_id    INTEGER NOT NULL,
	time          INTEGER NOT NULL,
	military_unit INTEGER,
	UNIQUE (battle_id, round_id, citizen_id, time)
);

CREATE INDEX IF NOT EXISTS idx_fights_battle_id ON fights (battle_id);
`

// Store is the single source of truth for cached battles and fights.
// Battles are replaced wholesale, fight rows are insert-if-absent, so
// concurrent writers need no coordination beyond SQLite's own locking.
type Store struct {
	db    *sqlx.DB
	write config.RetryConfig
	sleep func(ctx context.Context, d time.Duration) error
}

// Open opens (creating if needed) the database at path and applies the schema.
// write.Timeout becomes SQLite's busy timeout.
func Open(ctx context.Context, path string, write config.RetryConfig) (*Store, error) {
	db, err := sqlx.Open(DriverName, dsn(path, write.Timeout))
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", path, err)
	}

	s := NewWithDB(db, write)
	if err := s.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}

	log.Info().
		Str("path", path).
		Dur("busy_timeout", write.Timeout).
		Msg("Opened battle store")

	return s, nil
}

// NewWithDB wraps an existing connection without touching the schema
func NewWithDB(db *sqlx.DB, write config.RetryConfig) *Store {
	return &Store{db: db, write: write, sleep: sleepContext}
}

// Migrate creates the tables and indexes if they do not exist
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// Close releases the underlying connections
func (s *Store) Close() error {
	return s.db.Close()
}

func dsn(path string, busyTimeout time.Duration) string {
	q := url.Values{}
	q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", busyTimeout.Milliseconds()))
	q.Add("_pragma", "journal_mode(WAL)")
	q.Add("_txlock", "immediate")
	return "file:" + path + "?" + q.Encode()
}

// withWriteRetry runs fn until it succeeds, fails with something other than
// a busy database, or the store write budget is spent.
func (s *Store) withWriteRetry(ctx context.Context, fn func(ctx context.Context) error) error {
	attempts := s.write.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = fn(ctx)
		if err == nil || !isBusyError(err) || attempt == attempts {
			return err
		}

		wait := s.write.Backoff(attempt)
		log.Debug().
			Err(err).
			Int("attempt", attempt).
			Dur("wait", wait).
			Msg("Store busy, retrying write")

		if err := s.sleep(ctx, wait); err != nil {
			return err
		}
	}
	return err
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func isBusyError(err error) bool {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	code := sqliteErr.Code()
	return code == sqlite3.SQLITE_BUSY || code == sqlite3.SQLITE_LOCKED
}
