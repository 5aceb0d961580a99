package dispatcher_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/notifyhub/scribe-dispatch/internal/dispatcher"
	"github.com/notifyhub/scribe-dispatch/internal/domain"
	"github.com/notifyhub/scribe-dispatch/internal/templates"
	"github.com/notifyhub/scribe-dispatch/internal/transport"
)

var errRelayDown = errors.New("relay down")

func newDispatcher(t *testing.T, tr transport.Transport, mutate ...func(*dispatcher.Options)) *dispatcher.Dispatcher {
	t.Helper()
	set, err := templates.Default()
	require.NoError(t, err)

	opts := dispatcher.Options{
		Transport:  tr,
		Templates:  templates.StoreOf(set),
		Sender:     "noreply@example.com",
		SenderName: "Scribe",
		Interval:   time.Hour,
		Logger:     zap.NewNop(),
	}
	for _, m := range mutate {
		m(&opts)
	}
	return dispatcher.New(opts)
}

func TestEnqueue_Validation(t *testing.T) {
	d := newDispatcher(t, transport.NewRecorder())

	assert.ErrorIs(t, d.Enqueue(nil, "s", "b"), domain.ErrNoRecipients)
	assert.ErrorIs(t, d.Enqueue([]string{"a@example.com", " "}, "s", "b"), domain.ErrNoRecipients)
	assert.Equal(t, 0, d.Pending())

	require.NoError(t, d.Enqueue([]string{"a@example.com"}, "s", "b"))
	assert.Equal(t, 1, d.Pending())
}

func TestEnqueue_UnconfiguredTransportDrops(t *testing.T) {
	rec := transport.NewRecorder()
	rec.Unconfigured = true

	var dropped []string
	d := newDispatcher(t, rec, func(o *dispatcher.Options) {
		o.Hooks.OnDropped = func(_ domain.Kind, reason string) { dropped = append(dropped, reason) }
	})

	require.NoError(t, d.Enqueue([]string{"a@example.com"}, "s", "b"))
	assert.Equal(t, 0, d.Pending())
	assert.Equal(t, []string{"unconfigured"}, dropped)

	d.DrainOnce(context.Background())
	assert.Equal(t, 0, rec.Calls())
}

func TestDrainOnce_OneCallPerJobWithAllRecipients(t *testing.T) {
	rec := transport.NewRecorder()
	d := newDispatcher(t, rec)

	to := []string{"a@example.com", "b@example.com", "c@example.com"}
	require.NoError(t, d.Enqueue(to, "Maintenance", "Tonight at 22:00"))

	assert.Equal(t, 1, d.DrainOnce(context.Background()))
	msgs := rec.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, to, msgs[0].To)
	assert.Equal(t, "Maintenance", msgs[0].Subject)
	assert.Equal(t, "noreply@example.com", msgs[0].From)
	assert.Equal(t, "Scribe", msgs[0].FromName)
}

func TestDrainOnce_ArrivalOrder(t *testing.T) {
	rec := transport.NewRecorder()
	d := newDispatcher(t, rec)

	for _, s := range []string{"first", "second", "third"} {
		require.NoError(t, d.Enqueue([]string{"a@example.com"}, s, "b"))
	}
	d.DrainOnce(context.Background())

	var subjects []string
	for _, m := range rec.Messages() {
		subjects = append(subjects, m.Subject)
	}
	assert.Equal(t, []string{"first", "second", "third"}, subjects)
}

func TestDrainOnce_FailedJobsAreDiscarded(t *testing.T) {
	rec := transport.NewRecorder()
	rec.SendErr = func(int) error { return errRelayDown }

	var failed atomic.Int32
	var dead []error
	d := newDispatcher(t, rec, func(o *dispatcher.Options) {
		o.Hooks.OnFailed = func(domain.Kind) { failed.Add(1) }
		o.OnDeadLetter = func(_ domain.Job, err error) { dead = append(dead, err) }
	})

	for i := 0; i < 3; i++ {
		require.NoError(t, d.Enqueue([]string{"a@example.com"}, "s", "b"))
	}

	assert.Equal(t, 3, d.DrainOnce(context.Background()))
	assert.Equal(t, 0, d.Pending())
	assert.Equal(t, 3, rec.Calls())
	assert.Equal(t, int32(3), failed.Load())
	require.Len(t, dead, 3)
	assert.ErrorIs(t, dead[0], domain.ErrDelivery)
	assert.ErrorIs(t, dead[0], errRelayDown)

	// a later cycle has nothing to retry
	assert.Equal(t, 0, d.DrainOnce(context.Background()))
	assert.Equal(t, 3, rec.Calls())
}

func TestDrainOnce_RetriesUpToMaxAttempts(t *testing.T) {
	t.Run("succeeds on third attempt", func(t *testing.T) {
		rec := transport.NewRecorder()
		rec.SendErr = func(call int) error {
			if call < 3 {
				return errRelayDown
			}
			return nil
		}
		var sent atomic.Int32
		d := newDispatcher(t, rec, func(o *dispatcher.Options) {
			o.MaxAttempts = 3
			o.Backoff = []time.Duration{time.Millisecond}
			o.Hooks.OnSent = func(domain.Kind, time.Duration, time.Duration) { sent.Add(1) }
		})

		require.NoError(t, d.Enqueue([]string{"a@example.com"}, "s", "b"))
		d.DrainOnce(context.Background())
		assert.Equal(t, 3, rec.Calls())
		assert.Equal(t, int32(1), sent.Load())
	})

	t.Run("gives up after last attempt", func(t *testing.T) {
		rec := transport.NewRecorder()
		rec.SendErr = func(int) error { return errRelayDown }
		var dead atomic.Int32
		d := newDispatcher(t, rec, func(o *dispatcher.Options) {
			o.MaxAttempts = 2
			o.Backoff = []time.Duration{time.Millisecond, time.Millisecond}
			o.OnDeadLetter = func(domain.Job, error) { dead.Add(1) }
		})

		require.NoError(t, d.Enqueue([]string{"a@example.com"}, "s", "b"))
		d.DrainOnce(context.Background())
		assert.Equal(t, 2, rec.Calls())
		assert.Equal(t, int32(1), dead.Load())
		assert.Equal(t, 0, d.Pending())
	})
}

func TestSendQuotaAlert_EndToEnd(t *testing.T) {
	rec := transport.NewRecorder()
	d := newDispatcher(t, rec, func(o *dispatcher.Options) {
		o.Interval = 20 * time.Millisecond
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d.Start(ctx)

	err := d.SendQuotaAlert("admin@example.com", dispatcher.QuotaAlert{
		CustomerName:     "Test Customer",
		UsagePercent:     96,
		BlocksPurchased:  10,
		MinutesIncluded:  40000,
		MinutesConsumed:  38400,
		RemainingMinutes: 1600,
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool { return rec.Calls() == 1 }, 2*time.Second, 10*time.Millisecond)

	msg := rec.Messages()[0]
	assert.Equal(t, []string{"admin@example.com"}, msg.To)
	assert.Contains(t, msg.Subject, "Test Customer")
	for _, want := range []string{"96", "10", "40000", "38400", "1600"} {
		assert.Contains(t, msg.Body, want)
	}

	require.NoError(t, d.Stop(context.Background(), false))
	assert.Equal(t, 1, rec.Calls())
}

func TestSendGroupQuotaAlertAndWeeklyReport(t *testing.T) {
	rec := transport.NewRecorder()
	d := newDispatcher(t, rec)

	require.NoError(t, d.SendGroupQuotaAlert("admin@example.com", dispatcher.GroupQuotaAlert{
		GroupName: "Research", UsagePercent: 97, QuotaMinutes: 5000, UsedMinutes: 4850, RemainingMinutes: 150,
	}))
	require.NoError(t, d.SendWeeklyUsageReport("admin@example.com", dispatcher.WeeklyUsageReport{
		CustomerName: "Test Customer", TotalUsers: 25, TranscribedFiles: 142, TranscribedMinutes: 8500,
		TranscribedMinutesExternal: 1200, BlocksPurchased: 10, BlocksConsumed: 2.13,
		MinutesIncluded: 40000, RemainingMinutes: 31500, OverageMinutes: 0,
	}))
	d.DrainOnce(context.Background())

	msgs := rec.Messages()
	require.Len(t, msgs, 2)
	for _, want := range []string{"Research", "97", "5000", "4850", "150"} {
		assert.Contains(t, msgs[0].Body, want)
	}
	for _, want := range []string{"25", "142", "8500", "1200", "2.13", "40000", "31500"} {
		assert.Contains(t, msgs[1].Body, want)
	}
}

func TestSenders_SingleRecipient(t *testing.T) {
	rec := transport.NewRecorder()
	d := newDispatcher(t, rec)

	send := map[string]func() error{
		"email verification":     func() error { return d.SendEmailVerification("u@example.com") },
		"transcription finished": func() error { return d.SendTranscriptionFinished("u@example.com") },
		"transcription failed":   func() error { return d.SendTranscriptionFailed("u@example.com") },
		"job deleted":            func() error { return d.SendJobDeleted("u@example.com") },
		"job pending deletion":   func() error { return d.SendJobPendingDeletion("u@example.com") },
		"new user created":       func() error { return d.SendNewUserCreated("u@example.com", "ada") },
		"account activated":      func() error { return d.SendAccountActivated("u@example.com") },
	}
	for name, fn := range send {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, fn())
		})
	}

	d.DrainOnce(context.Background())
	require.Equal(t, len(send), rec.Calls())
	for _, m := range rec.Messages() {
		assert.Equal(t, []string{"u@example.com"}, m.To)
		assert.NotEmpty(t, m.Subject)
	}
}

func TestSenders_TemplateErrorEnqueuesNothing(t *testing.T) {
	rec := transport.NewRecorder()
	d := newDispatcher(t, rec, func(o *dispatcher.Options) { o.Templates = nil })

	err := d.SendQuotaAlert("admin@example.com", dispatcher.QuotaAlert{CustomerName: "x"})
	assert.ErrorIs(t, err, domain.ErrTemplate)
	assert.Equal(t, 0, d.Pending())
}

func TestStart_LoopKeepsRunning(t *testing.T) {
	rec := transport.NewRecorder()
	var cycles atomic.Int32
	d := newDispatcher(t, rec, func(o *dispatcher.Options) {
		o.Interval = 10 * time.Millisecond
		o.Hooks.OnCycle = func(int) { cycles.Add(1) }
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d.Start(ctx)
	d.Start(ctx) // second call is a no-op

	require.NoError(t, d.Enqueue([]string{"a@example.com"}, "one", "b"))
	require.Eventually(t, func() bool { return rec.Calls() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, d.Enqueue([]string{"a@example.com"}, "two", "b"))
	require.Eventually(t, func() bool { return rec.Calls() == 2 }, time.Second, 5*time.Millisecond)
	assert.GreaterOrEqual(t, cycles.Load(), int32(2))

	require.NoError(t, d.Stop(context.Background(), false))
}

func TestStart_DeliveriesNeverOverlap(t *testing.T) {
	var inFlight, maxInFlight atomic.Int32
	rec := transport.NewRecorder()
	rec.Delay = func(int) {
		n := inFlight.Add(1)
		for {
			m := maxInFlight.Load()
			if n <= m || maxInFlight.CompareAndSwap(m, n) {
				break
			}
		}
		time.Sleep(30 * time.Millisecond)
		inFlight.Add(-1)
	}
	d := newDispatcher(t, rec, func(o *dispatcher.Options) {
		o.Interval = 5 * time.Millisecond
	})

	for i := 0; i < 3; i++ {
		require.NoError(t, d.Enqueue([]string{"a@example.com"}, "slow", "b"))
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d.Start(ctx)

	require.Eventually(t, func() bool { return rec.Calls() == 3 }, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, d.Stop(context.Background(), false))
	assert.Equal(t, int32(1), maxInFlight.Load())
}

func TestStop(t *testing.T) {
	t.Run("flush delivers pending jobs", func(t *testing.T) {
		rec := transport.NewRecorder()
		d := newDispatcher(t, rec)
		d.Start(context.Background())

		for i := 0; i < 3; i++ {
			require.NoError(t, d.Enqueue([]string{"a@example.com"}, "s", "b"))
		}
		require.NoError(t, d.Stop(context.Background(), true))
		assert.Equal(t, 3, rec.Calls())
		assert.Equal(t, 0, d.Pending())
	})

	t.Run("without flush pending jobs are lost", func(t *testing.T) {
		rec := transport.NewRecorder()
		var lost atomic.Int32
		d := newDispatcher(t, rec, func(o *dispatcher.Options) {
			o.Hooks.OnDropped = func(_ domain.Kind, reason string) {
				if reason == "shutdown" {
					lost.Add(1)
				}
			}
		})
		d.Start(context.Background())

		require.NoError(t, d.Enqueue([]string{"a@example.com"}, "s", "b"))
		require.NoError(t, d.Stop(context.Background(), false))
		assert.Equal(t, 0, rec.Calls())
		assert.Equal(t, 0, d.Pending())
		assert.Equal(t, int32(1), lost.Load())
	})

	t.Run("producers racing stop leave nothing behind", func(t *testing.T) {
		const producers, perProducer = 8, 200

		var enqueued, dropped atomic.Int32
		d := newDispatcher(t, transport.NewRecorder(), func(o *dispatcher.Options) {
			o.Hooks.OnEnqueued = func(domain.Kind, int) { enqueued.Add(1) }
			o.Hooks.OnDropped = func(_ domain.Kind, reason string) {
				if reason == "stopped" {
					dropped.Add(1)
				}
			}
		})

		var wg sync.WaitGroup
		for p := 0; p < producers; p++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for i := 0; i < perProducer; i++ {
					assert.NoError(t, d.Enqueue([]string{"a@example.com"}, "s", "b"))
				}
			}()
		}
		require.NoError(t, d.Stop(context.Background(), false))
		wg.Wait()

		assert.Equal(t, 0, d.Pending())
		assert.Equal(t, int32(producers*perProducer), enqueued.Load()+dropped.Load())
	})

	t.Run("enqueue after stop is dropped", func(t *testing.T) {
		rec := transport.NewRecorder()
		d := newDispatcher(t, rec)
		require.NoError(t, d.Stop(context.Background(), true))

		require.NoError(t, d.Enqueue([]string{"a@example.com"}, "s", "b"))
		assert.Equal(t, 0, d.Pending())
	})
}
