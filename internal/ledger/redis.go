package ledger

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/notifyhub/scribe-dispatch/internal/domain"
)

// Redis stores one key per sent notification, without expiry.
type Redis struct {
	client *redis.Client
	prefix string
}

func NewRedis(client *redis.Client, prefix string) *Redis {
	return &Redis{client: client, prefix: prefix}
}

// key escapes each part so that a "/" inside an id cannot shift the
// boundary between subject, entity and kind.
func (r *Redis) key(k domain.DedupKey) string {
	return r.prefix + url.PathEscape(k.SubjectID) + "/" + url.PathEscape(k.EntityID) + "/" + url.PathEscape(string(k.Kind))
}

func (r *Redis) Exists(ctx context.Context, key domain.DedupKey) (bool, error) {
	if err := key.Validate(); err != nil {
		return false, err
	}
	n, err := r.client.Exists(ctx, r.key(key)).Result()
	if err != nil {
		return false, fmt.Errorf("query notification ledger: %w", err)
	}
	return n > 0, nil
}

// Record uses SETNX so a duplicate keeps the first recorded time.
func (r *Redis) Record(ctx context.Context, key domain.DedupKey) error {
	if err := key.Validate(); err != nil {
		return err
	}
	if err := r.client.SetNX(ctx, r.key(key), time.Now().UTC().Format(time.RFC3339), 0).Err(); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrLedgerWrite, err)
	}
	return nil
}

func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *Redis) Close() error {
	return r.client.Close()
}

var _ Ledger = (*Redis)(nil)
