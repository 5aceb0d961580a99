package worker_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/notifyhub/scribe-dispatch/internal/health"
	"github.com/notifyhub/scribe-dispatch/internal/worker"
)

func TestNewPruneWorker_InvalidSchedule(t *testing.T) {
	_, err := worker.NewPruneWorker(health.NewAggregator(1), time.Hour, "every now and then", nil, zap.NewNop())
	assert.Error(t, err)
}

func TestPruneOnce(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	clock := func() time.Time { return now }
	agg := health.NewAggregator(5, health.WithClock(clock))
	require.NoError(t, agg.Record("gone", nil))
	now = now.Add(2 * time.Hour)
	require.NoError(t, agg.Record("here", nil))

	var known atomic.Int32
	pw, err := worker.NewPruneWorker(agg, time.Hour, "@every 1m", func(n int) { known.Store(int32(n)) }, zap.NewNop())
	require.NoError(t, err)

	pw.PruneOnce()
	assert.Equal(t, int32(1), known.Load())
	assert.NotContains(t, agg.Snapshot(), "gone")
}

func TestPruneWorker_RunStopsOnCancel(t *testing.T) {
	pw, err := worker.NewPruneWorker(health.NewAggregator(1), time.Hour, "@hourly", nil, zap.NewNop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		pw.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
}
