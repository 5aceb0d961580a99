package ledger

import (
	"context"
	"sync"

	"github.com/notifyhub/scribe-dispatch/internal/domain"
)

// Memory is an in-process Ledger. It backs unit tests and single-instance
// deployments that accept losing sent markers on restart.
type Memory struct {
	mu   sync.RWMutex
	sent map[domain.DedupKey]struct{}

	// Optional error overrides, set in tests to simulate failure paths.
	ExistsErr error
	RecordErr error
}

func NewMemory() *Memory {
	return &Memory{sent: make(map[domain.DedupKey]struct{})}
}

func (m *Memory) Exists(_ context.Context, key domain.DedupKey) (bool, error) {
	if m.ExistsErr != nil {
		return false, m.ExistsErr
	}
	if err := key.Validate(); err != nil {
		return false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.sent[key]
	return ok, nil
}

func (m *Memory) Record(_ context.Context, key domain.DedupKey) error {
	if m.RecordErr != nil {
		return m.RecordErr
	}
	if err := key.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent[key] = struct{}{}
	return nil
}

// Len returns the number of recorded keys.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sent)
}

func (m *Memory) Close() error { return nil }

var _ Ledger = (*Memory)(nil)
