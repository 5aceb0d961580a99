package ledger_test

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/notifyhub/scribe-dispatch/internal/config"
	"github.com/notifyhub/scribe-dispatch/internal/db"
	"github.com/notifyhub/scribe-dispatch/internal/domain"
	"github.com/notifyhub/scribe-dispatch/internal/ledger"
)

// runContract exercises the behaviour every backend must share.
func runContract(t *testing.T, l ledger.Ledger) {
	t.Helper()
	ctx := context.Background()
	key := domain.DedupKey{SubjectID: "user-1", EntityID: "job-42", Kind: domain.KindJobDeleted}

	t.Run("absent before record", func(t *testing.T) {
		found, err := l.Exists(ctx, key)
		require.NoError(t, err)
		assert.False(t, found)
	})

	t.Run("present after record", func(t *testing.T) {
		require.NoError(t, l.Record(ctx, key))
		found, err := l.Exists(ctx, key)
		require.NoError(t, err)
		assert.True(t, found)
	})

	t.Run("duplicate record is not an error", func(t *testing.T) {
		require.NoError(t, l.Record(ctx, key))
	})

	t.Run("keys differing in one field are distinct", func(t *testing.T) {
		for _, other := range []domain.DedupKey{
			{SubjectID: "user-2", EntityID: "job-42", Kind: domain.KindJobDeleted},
			{SubjectID: "user-1", EntityID: "job-43", Kind: domain.KindJobDeleted},
			{SubjectID: "user-1", EntityID: "job-42", Kind: domain.KindJobPendingDeletion},
		} {
			found, err := l.Exists(ctx, other)
			require.NoError(t, err)
			assert.False(t, found, other.String())
		}
	})

	t.Run("separators inside ids do not merge keys", func(t *testing.T) {
		a := domain.DedupKey{SubjectID: "user/1", EntityID: "job", Kind: domain.KindQuotaAlert}
		b := domain.DedupKey{SubjectID: "user", EntityID: "1/job", Kind: domain.KindQuotaAlert}
		require.NoError(t, l.Record(ctx, a))

		found, err := l.Exists(ctx, b)
		require.NoError(t, err)
		assert.False(t, found)
	})

	t.Run("invalid key", func(t *testing.T) {
		_, err := l.Exists(ctx, domain.DedupKey{SubjectID: "user-1"})
		assert.ErrorIs(t, err, domain.ErrInvalidDedupKey)
		assert.ErrorIs(t, l.Record(ctx, domain.DedupKey{EntityID: "x", Kind: domain.KindQuotaAlert}), domain.ErrInvalidDedupKey)
	})

	t.Run("concurrent records of the same key", func(t *testing.T) {
		k := domain.DedupKey{SubjectID: "user-9", EntityID: "cust-1", Kind: domain.KindQuotaAlert}
		var wg sync.WaitGroup
		errs := make(chan error, 8)
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				errs <- l.Record(ctx, k)
			}()
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			assert.NoError(t, err)
		}
		found, err := l.Exists(ctx, k)
		require.NoError(t, err)
		assert.True(t, found)
	})
}

func TestMemory(t *testing.T) {
	runContract(t, ledger.NewMemory())
}

func TestSQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "ledger.db")
	l, err := ledger.OpenSQLite(context.Background(), path, time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })

	runContract(t, l)
	require.NoError(t, l.Ping(context.Background()))
}

func TestSQLite_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "ledger.db")
	key := domain.DedupKey{SubjectID: "u", EntityID: "e", Kind: domain.KindAccountActivated}

	l, err := ledger.OpenSQLite(ctx, path, time.Second)
	require.NoError(t, err)
	require.NoError(t, l.Record(ctx, key))
	require.NoError(t, l.Close())

	l, err = ledger.OpenSQLite(ctx, path, time.Second)
	require.NoError(t, err)
	defer l.Close()
	found, err := l.Exists(ctx, key)
	require.NoError(t, err)
	assert.True(t, found)
}

func TestOpen_Memory(t *testing.T) {
	l, err := ledger.Open(context.Background(), config.LedgerConfig{Driver: "memory"}, zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &ledger.Memory{}, l)
	assert.NoError(t, l.Close())
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := ledger.Open(context.Background(), config.LedgerConfig{Driver: "etcd"}, zap.NewNop())
	assert.Error(t, err)
}

func TestRedis(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("redis not available: %v", err)
	}

	prefix := "test:notifications_sent:" + time.Now().Format("150405.000000") + ":"
	l := ledger.NewRedis(client, prefix)
	t.Cleanup(func() {
		keys, _ := client.Keys(context.Background(), prefix+"*").Result()
		if len(keys) > 0 {
			client.Del(context.Background(), keys...)
		}
		_ = l.Close()
	})

	runContract(t, l)
}

func TestPostgres(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	cfg := config.LedgerConfig{DatabaseURL: url, DBMaxConns: 4, DBMinConns: 1}
	require.NoError(t, db.Migrate("file://../../migrations", url))

	ctx := context.Background()
	pool, err := db.Connect(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	_, err = pool.Exec(ctx, "DELETE FROM notifications_sent WHERE user_id LIKE 'user-%'")
	require.NoError(t, err)

	l := ledger.NewPostgres(pool, false)
	runContract(t, l)
	require.NoError(t, l.Ping(ctx))
}
