// Package health keeps a bounded history of liveness reports from remote
// workers and derives fleet status from it.
package health

import (
	"strings"
	"sync"
	"time"

	"github.com/notifyhub/scribe-dispatch/internal/domain"
)

// SeenKey is the payload field carrying the ingestion time, in fractional
// seconds since the Unix epoch.
const SeenKey = "seen"

// Snapshot is one liveness report as stored by the Aggregator.
type Snapshot struct {
	WorkerID string
	Payload  map[string]any
	Seen     float64
}

// Aggregator stores the most recent reports per worker. It is safe for
// concurrent use; a single RWMutex covers the whole map, which is fine for
// fleets of tens of workers.
type Aggregator struct {
	mu       sync.RWMutex
	workers  map[string]*ring
	capacity int
	now      func() time.Time
}

type Option func(*Aggregator)

// WithClock overrides time.Now, used by tests to control the seen stamp.
func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) { a.now = now }
}

// NewAggregator keeps at most historySize reports per worker.
func NewAggregator(historySize int, opts ...Option) *Aggregator {
	if historySize < 1 {
		historySize = 1
	}
	a := &Aggregator{
		workers:  make(map[string]*ring),
		capacity: historySize,
		now:      time.Now,
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Record appends payload to the worker's history, stamped with the current
// time. The caller's map is not retained.
func (a *Aggregator) Record(workerID string, payload map[string]any) error {
	if strings.TrimSpace(workerID) == "" {
		return domain.ErrInvalidWorkerID
	}
	snap := Snapshot{
		WorkerID: workerID,
		Payload:  cloneMap(payload),
		Seen:     epochSeconds(a.now()),
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	r, ok := a.workers[workerID]
	if !ok {
		r = newRing(a.capacity)
		a.workers[workerID] = r
	}
	r.push(snap)
	return nil
}

// Snapshot returns a point-in-time copy of every worker's history, oldest
// report first. Each payload carries its ingestion time under SeenKey.
// The result shares no memory with the Aggregator.
func (a *Aggregator) Snapshot() map[string][]map[string]any {
	a.mu.RLock()
	defer a.mu.RUnlock()

	out := make(map[string][]map[string]any, len(a.workers))
	for id, r := range a.workers {
		entries := make([]map[string]any, 0, r.len())
		r.each(func(s Snapshot) {
			p := cloneMap(s.Payload)
			p[SeenKey] = s.Seen
			entries = append(entries, p)
		})
		out[id] = entries
	}
	return out
}

// Workers returns the number of workers with retained history.
func (a *Aggregator) Workers() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.workers)
}

// Status computes fleet status at now without copying payloads.
func (a *Aggregator) Status(now time.Time, window time.Duration) FleetStatus {
	a.mu.RLock()
	lastSeen := make(map[string]float64, len(a.workers))
	for id, r := range a.workers {
		if last, ok := r.last(); ok {
			lastSeen[id] = last.Seen
		}
	}
	a.mu.RUnlock()

	return statusFromLastSeen(lastSeen, now, window)
}

// Prune forgets workers whose most recent report is older than olderThan.
// It returns the number of workers removed.
func (a *Aggregator) Prune(olderThan time.Duration) int {
	cutoff := epochSeconds(a.now().Add(-olderThan))

	a.mu.Lock()
	defer a.mu.Unlock()
	removed := 0
	for id, r := range a.workers {
		last, ok := r.last()
		if !ok || last.Seen < cutoff {
			delete(a.workers, id)
			removed++
		}
	}
	return removed
}

// WorkerID picks the reporting worker's identity out of a report body:
// "worker_id" if present, otherwise "hostname".
func WorkerID(payload map[string]any) (string, error) {
	for _, field := range []string{"worker_id", "hostname"} {
		if s, ok := payload[field].(string); ok && strings.TrimSpace(s) != "" {
			return s, nil
		}
	}
	return "", domain.ErrInvalidWorkerID
}

func epochSeconds(t time.Time) float64 {
	return float64(t.Unix()) + float64(t.Nanosecond())/float64(time.Second)
}

func cloneMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m)+1)
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneMap(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}
