package dispatcher

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/notifyhub/scribe-dispatch/internal/domain"
	"github.com/notifyhub/scribe-dispatch/internal/queue"
	"github.com/notifyhub/scribe-dispatch/internal/ratelimiter"
	"github.com/notifyhub/scribe-dispatch/internal/templates"
	"github.com/notifyhub/scribe-dispatch/internal/transport"
)

const (
	dropUnconfigured = "unconfigured"
	dropStopped      = "stopped"
	dropShutdown     = "shutdown"
)

// Hooks carries the metric callback functions injected by main.
// Every hook is optional.
type Hooks struct {
	OnEnqueued func(kind domain.Kind, depth int)
	OnDropped  func(kind domain.Kind, reason string)
	OnSent     func(kind domain.Kind, wait, latency time.Duration)
	OnFailed   func(kind domain.Kind)
	OnCycle    func(depth int)
}

// Options configures a Dispatcher. Transport is required.
type Options struct {
	Transport  transport.Transport
	Templates  *templates.Store
	Limiter    *ratelimiter.DeliveryLimiter
	Sender     string
	SenderName string

	// Interval separates the end of one drain cycle from the start of the next.
	Interval time.Duration
	// MaxAttempts of 1 (the default) discards a job on its first failure.
	MaxAttempts int
	// Backoff[i] is the pause before attempt i+2; the last entry is reused.
	Backoff []time.Duration
	// OnDeadLetter receives jobs whose final attempt failed.
	OnDeadLetter func(job domain.Job, err error)

	Logger *zap.Logger
	Hooks  Hooks
	Now    func() time.Time
}

// Dispatcher buffers notification jobs and delivers them from a single
// background drain loop.
//
// Producers call Enqueue (or a Send* helper) from any goroutine; those calls
// only touch memory. Delivery happens one job at a time inside a drain cycle,
// so a slow transport stretches the cycle and delays the next one instead of
// stacking concurrent sessions.
type Dispatcher struct {
	q          *queue.FIFO
	transport  transport.Transport
	templates  *templates.Store
	limiter    *ratelimiter.DeliveryLimiter
	sender     string
	senderName string
	interval   time.Duration
	attempts   int
	backoff    []time.Duration
	deadLetter func(domain.Job, error)
	logger     *zap.Logger
	hooks      Hooks
	now        func() time.Time

	// cycleMu serialises drain cycles with a shutdown flush.
	cycleMu sync.Mutex

	lifeMu  sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	stopped atomic.Bool
}

func New(opts Options) *Dispatcher {
	if opts.Transport == nil {
		opts.Transport = transport.Nop{}
	}
	if opts.Limiter == nil {
		opts.Limiter = ratelimiter.New(0)
	}
	if opts.Interval <= 0 {
		opts.Interval = 3 * time.Second
	}
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 1
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	h := opts.Hooks
	if h.OnEnqueued == nil {
		h.OnEnqueued = func(domain.Kind, int) {}
	}
	if h.OnDropped == nil {
		h.OnDropped = func(domain.Kind, string) {}
	}
	if h.OnSent == nil {
		h.OnSent = func(domain.Kind, time.Duration, time.Duration) {}
	}
	if h.OnFailed == nil {
		h.OnFailed = func(domain.Kind) {}
	}
	if h.OnCycle == nil {
		h.OnCycle = func(int) {}
	}

	return &Dispatcher{
		q:          queue.New(),
		transport:  opts.Transport,
		templates:  opts.Templates,
		limiter:    opts.Limiter,
		sender:     opts.Sender,
		senderName: opts.SenderName,
		interval:   opts.Interval,
		attempts:   opts.MaxAttempts,
		backoff:    opts.Backoff,
		deadLetter: opts.OnDeadLetter,
		logger:     opts.Logger,
		hooks:      h,
		now:        opts.Now,
	}
}

// Enqueue appends a raw notification to the pending buffer.
//
// When the transport is not configured, or the dispatcher has been stopped,
// the job is dropped with a warning and nil is returned: callers cannot tell
// a queued job from a dropped one. The only error is ErrNoRecipients.
func (d *Dispatcher) Enqueue(recipients []string, subject, body string) error {
	return d.enqueue(domain.KindRaw, recipients, subject, body)
}

func (d *Dispatcher) enqueue(kind domain.Kind, recipients []string, subject, body string) error {
	if len(recipients) == 0 {
		d.logger.Error("notification without recipients rejected", zap.String("kind", string(kind)))
		return domain.ErrNoRecipients
	}
	for _, rcpt := range recipients {
		if strings.TrimSpace(rcpt) == "" {
			d.logger.Error("notification with blank recipient rejected", zap.String("kind", string(kind)))
			return domain.ErrNoRecipients
		}
	}

	if d.stopped.Load() {
		d.logger.Warn("notification dropped",
			zap.String("kind", string(kind)),
			zap.Strings("recipients", recipients),
			zap.Error(domain.ErrDispatcherStopped))
		d.hooks.OnDropped(kind, dropStopped)
		return nil
	}
	if !d.transport.Configured() {
		d.logger.Warn("notification dropped: email notifications will not be sent",
			zap.String("kind", string(kind)),
			zap.Strings("recipients", recipients),
			zap.Error(domain.ErrTransportUnconfigured))
		d.hooks.OnDropped(kind, dropUnconfigured)
		return nil
	}

	job := domain.Job{
		Recipients: append([]string(nil), recipients...),
		Subject:    subject,
		Body:       body,
		Kind:       kind,
		EnqueuedAt: d.now(),
	}
	// Stop may have closed the buffer since the check above.
	if !d.q.Push(job) {
		d.logger.Warn("notification dropped",
			zap.String("kind", string(kind)),
			zap.Strings("recipients", recipients),
			zap.Error(domain.ErrDispatcherStopped))
		d.hooks.OnDropped(kind, dropStopped)
		return nil
	}
	d.hooks.OnEnqueued(kind, d.q.Len())
	return nil
}

// Pending returns the number of jobs waiting for the next drain cycle.
func (d *Dispatcher) Pending() int {
	return d.q.Len()
}

// Start launches the drain loop. It returns immediately; calling it again
// while the loop is running has no effect.
func (d *Dispatcher) Start(ctx context.Context) {
	d.lifeMu.Lock()
	defer d.lifeMu.Unlock()

	if d.cancel != nil || d.stopped.Load() {
		return
	}
	loopCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.done = make(chan struct{})

	go d.run(loopCtx, d.done)
}

// run re-arms its timer only after a cycle has finished, so the interval is
// measured between cycles rather than on a wall-clock grid.
func (d *Dispatcher) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	d.logger.Info("notification dispatcher started", zap.Duration("interval", d.interval))
	timer := time.NewTimer(d.interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("notification dispatcher stopping", zap.Int("pending", d.q.Len()))
			return
		case <-timer.C:
			d.DrainOnce(ctx)
			timer.Reset(d.interval)
		}
	}
}

// DrainOnce runs one drain cycle: jobs are popped in arrival order and
// delivered until the buffer is empty. Once ctx is done no further jobs are
// popped; the job already in flight is allowed to finish.
// It returns the number of jobs consumed.
func (d *Dispatcher) DrainOnce(ctx context.Context) int {
	d.cycleMu.Lock()
	defer d.cycleMu.Unlock()

	consumed := 0
	for ctx.Err() == nil {
		job, ok := d.q.Pop()
		if !ok {
			break
		}
		d.deliver(context.WithoutCancel(ctx), job)
		consumed++
	}
	d.hooks.OnCycle(d.q.Len())
	return consumed
}

// deliver makes up to MaxAttempts transport calls for job. Each call carries
// every recipient of the job. The job is gone afterwards whatever the outcome.
func (d *Dispatcher) deliver(ctx context.Context, job domain.Job) {
	log := d.logger.With(
		zap.String("kind", string(job.Kind)),
		zap.Strings("recipients", job.Recipients),
		zap.String("subject", job.Subject),
	)
	msg := transport.Message{
		From:     d.sender,
		FromName: d.senderName,
		To:       job.Recipients,
		Subject:  job.Subject,
		Body:     job.Body,
	}

	start := d.now()
	wait := start.Sub(job.EnqueuedAt)

	var err error
	for attempt := 1; attempt <= d.attempts; attempt++ {
		if err = d.limiter.Wait(ctx); err != nil {
			break
		}
		if err = d.transport.Send(ctx, msg); err == nil {
			latency := d.now().Sub(start)
			d.hooks.OnSent(job.Kind, wait, latency)
			log.Info("email sent", zap.Int("attempt", attempt), zap.Duration("latency", latency))
			return
		}
		if attempt == d.attempts {
			break
		}

		pause := d.backoffFor(attempt)
		log.Warn("delivery attempt failed; retrying",
			zap.Int("attempt", attempt),
			zap.Duration("backoff", pause),
			zap.Error(err))
		if !sleep(ctx, pause) {
			err = ctx.Err()
			break
		}
	}

	err = fmt.Errorf("%w: %w", domain.ErrDelivery, err)
	log.Error("error sending email; notification discarded", zap.Int("attempts", d.attempts), zap.Error(err))
	d.hooks.OnFailed(job.Kind)
	if d.deadLetter != nil {
		d.deadLetter(job, err)
	}
}

// backoffFor returns the pause after the given failed attempt:
//
//	attempt 1 → backoff[0]
//	attempt 2 → backoff[1]
//	attempt N ≥ len(backoff) → last backoff entry (clamped)
func (d *Dispatcher) backoffFor(attempt int) time.Duration {
	if len(d.backoff) == 0 {
		return 0
	}
	idx := attempt - 1
	if idx >= len(d.backoff) {
		idx = len(d.backoff) - 1
	}
	return d.backoff[idx]
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// Stop ends the drain loop and waits for the running cycle to finish.
// New jobs are refused from this point on, and the buffer is closed before
// Stop returns so no job can be left behind in it. With flush set, jobs still
// buffered are delivered synchronously until the buffer is empty or ctx
// expires; anything left afterwards is logged as lost.
func (d *Dispatcher) Stop(ctx context.Context, flush bool) error {
	d.stopped.Store(true)

	d.lifeMu.Lock()
	cancel, done := d.cancel, d.done
	d.lifeMu.Unlock()

	if cancel != nil {
		cancel()
		select {
		case <-done:
		case <-ctx.Done():
			d.logger.Warn("timed out waiting for drain cycle to finish")
		}
	}

	if flush && ctx.Err() == nil {
		if n := d.q.Len(); n > 0 {
			d.logger.Info("flushing pending notifications", zap.Int("pending", n))
		}
		d.DrainOnce(ctx)
	}

	lost := d.q.Close()
	for _, job := range lost {
		d.hooks.OnDropped(job.Kind, dropShutdown)
	}
	if len(lost) > 0 {
		d.logger.Warn("pending notifications lost at shutdown", zap.Int("count", len(lost)))
	}
	return ctx.Err()
}
