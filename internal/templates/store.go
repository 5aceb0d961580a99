package templates

import (
	"context"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/notifyhub/scribe-dispatch/internal/domain"
)

const reloadDebounce = 250 * time.Millisecond

// Store holds the active template set. Readers never block; a reload swaps
// the whole set at once.
type Store struct {
	path   string
	logger *zap.Logger
	set    atomic.Pointer[Set]
}

// NewStore loads path (or the built-in templates when path is empty).
func NewStore(path string, logger *zap.Logger) (*Store, error) {
	set, err := LoadFile(path)
	if err != nil {
		return nil, err
	}
	s := &Store{path: path, logger: logger}
	s.set.Store(set)
	return s, nil
}

// StoreOf wraps an already loaded set. Used by tests and callers that build
// templates in code.
func StoreOf(set *Set) *Store {
	s := &Store{logger: zap.NewNop()}
	s.set.Store(set)
	return s
}

func (s *Store) Render(kind domain.Kind, params map[string]string) (subject, body string, err error) {
	return s.set.Load().Render(kind, params)
}

// Reload re-reads the template file. On error the current set stays active.
func (s *Store) Reload() error {
	set, err := LoadFile(s.path)
	if err != nil {
		return err
	}
	s.set.Store(set)
	return nil
}

// Watch reloads the template file whenever it changes until ctx is cancelled.
// The parent directory is watched so editors that replace the file by rename
// are picked up.
func (s *Store) Watch(ctx context.Context) error {
	if s.path == "" {
		<-ctx.Done()
		return nil
	}

	dir := filepath.Dir(s.path)
	file := filepath.Clean(s.path)

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := w.Add(dir); err != nil {
		return err
	}
	s.logger.Info("watching notification templates", zap.String("path", s.path))

	// debounce to avoid partial writes
	var (
		timerMu sync.Mutex
		timer   *time.Timer
	)
	debounce := func() {
		timerMu.Lock()
		defer timerMu.Unlock()
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(reloadDebounce, func() {
			if err := s.Reload(); err != nil {
				s.logger.Error("template reload failed; keeping previous templates",
					zap.String("path", s.path), zap.Error(err))
				return
			}
			s.logger.Info("notification templates reloaded", zap.String("path", s.path))
		})
	}
	defer func() {
		timerMu.Lock()
		if timer != nil {
			timer.Stop()
		}
		timerMu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) == file && ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				debounce()
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			s.logger.Warn("template watcher error", zap.Error(err))
		}
	}
}
