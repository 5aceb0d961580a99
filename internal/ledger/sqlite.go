package ledger

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/notifyhub/scribe-dispatch/internal/domain"
)

//go:embed schema.sql
var sqliteSchema string

// SQLite keeps sent markers in a local database file. Suitable for a single
// instance; use postgres or redis when several processes share the ledger.
type SQLite struct {
	db *sql.DB
}

func OpenSQLite(ctx context.Context, path string, busyTimeout time.Duration) (*SQLite, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if busyTimeout > 0 {
		_, _ = db.ExecContext(ctx, fmt.Sprintf("PRAGMA busy_timeout = %d", busyTimeout.Milliseconds()))
	}
	_, _ = db.ExecContext(ctx, "PRAGMA journal_mode = WAL")
	_, _ = db.ExecContext(ctx, "PRAGMA synchronous = NORMAL")

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create sqlite schema: %w", err)
	}
	return &SQLite{db: db}, nil
}

func (s *SQLite) Exists(ctx context.Context, key domain.DedupKey) (bool, error) {
	if err := key.Validate(); err != nil {
		return false, err
	}
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM notifications_sent WHERE user_id = ? AND uuid = ? AND notification_type = ?`,
		key.SubjectID, key.EntityID, string(key.Kind),
	).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query notification ledger: %w", err)
	}
	return true, nil
}

func (s *SQLite) Record(ctx context.Context, key domain.DedupKey) error {
	if err := key.Validate(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO notifications_sent(user_id, uuid, notification_type, created_at)
		 VALUES(?,?,?,?)
		 ON CONFLICT(user_id, uuid, notification_type) DO NOTHING`,
		key.SubjectID, key.EntityID, string(key.Kind), time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrLedgerWrite, err)
	}
	return nil
}

func (s *SQLite) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLite) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

var _ Ledger = (*SQLite)(nil)
