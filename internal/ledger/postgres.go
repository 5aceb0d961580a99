package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/notifyhub/scribe-dispatch/internal/domain"
)

// Postgres stores sent markers in the notifications_sent table created by
// migrations/000001_create_notifications_sent.up.sql.
type Postgres struct {
	pool  *pgxpool.Pool
	owned bool
}

// NewPostgres wraps pool. When owned is true Close also closes the pool.
func NewPostgres(pool *pgxpool.Pool, owned bool) *Postgres {
	return &Postgres{pool: pool, owned: owned}
}

func (p *Postgres) Exists(ctx context.Context, key domain.DedupKey) (bool, error) {
	if err := key.Validate(); err != nil {
		return false, err
	}
	const q = `
		SELECT EXISTS (
			SELECT 1 FROM notifications_sent
			WHERE user_id = $1 AND uuid = $2 AND notification_type = $3
		)`

	var found bool
	if err := p.pool.QueryRow(ctx, q, key.SubjectID, key.EntityID, string(key.Kind)).Scan(&found); err != nil {
		return false, fmt.Errorf("query notification ledger: %w", err)
	}
	return found, nil
}

// Record inserts key. A unique violation means another caller recorded the
// same key first, which is the outcome we wanted.
func (p *Postgres) Record(ctx context.Context, key domain.DedupKey) error {
	if err := key.Validate(); err != nil {
		return err
	}
	const q = `
		INSERT INTO notifications_sent (user_id, uuid, notification_type)
		VALUES ($1, $2, $3)`

	_, err := p.pool.Exec(ctx, q, key.SubjectID, key.EntityID, string(key.Kind))
	if err != nil {
		if isUniqueViolation(err) {
			return nil
		}
		return fmt.Errorf("%w: %w", domain.ErrLedgerWrite, err)
	}
	return nil
}

func (p *Postgres) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

func (p *Postgres) Close() error {
	if p.owned {
		p.pool.Close()
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}

var _ Ledger = (*Postgres)(nil)
