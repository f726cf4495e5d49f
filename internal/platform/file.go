package platform

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/dshills/kblayout/internal/layout"
	"github.com/dshills/kblayout/internal/logging"
)

// DefaultDebounce is the quiet period FileSource waits before firing.
const DefaultDebounce = 150 * time.Millisecond

// FileSource fires when a watched layout configuration file changes.
//
// Parent directories are watched rather than the files themselves so that
// atomic replace-by-rename, which is how most tools save, is observed.
// With a reader configured, an event only fires when the parsed layout
// actually differs from the last one seen.
type FileSource struct {
	paths    []string
	debounce time.Duration
	reader   layout.Reader
	logger   *logging.Logger

	subs subscribers

	mu        sync.Mutex
	watcher   *fsnotify.Watcher
	debouncer *Debouncer
	closeCh   chan struct{}
	wg        sync.WaitGroup

	lastMu sync.Mutex
	last   layout.Info
	seeded bool
}

// FileOption configures a FileSource.
type FileOption func(*FileSource)

// WithDebounce sets the quiet period before an event fires.
func WithDebounce(d time.Duration) FileOption {
	return func(s *FileSource) {
		s.debounce = d
	}
}

// WithChangeReader suppresses events that leave the layout unchanged.
func WithChangeReader(r layout.Reader) FileOption {
	return func(s *FileSource) {
		s.reader = r
	}
}

// WithFileLogger sets the logger.
func WithFileLogger(l *logging.Logger) FileOption {
	return func(s *FileSource) {
		s.logger = l
	}
}

// NewFileSource watches paths, or layout.DefaultPaths if none are given.
func NewFileSource(paths []string, opts ...FileOption) *FileSource {
	if len(paths) == 0 {
		paths = layout.DefaultPaths
	}
	s := &FileSource{
		paths:    paths,
		debounce: DefaultDebounce,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Subscribe implements Source. The watcher starts with the first
// subscriber; failing to watch any path fails the subscription.
func (s *FileSource) Subscribe(onEvent func()) (Subscription, error) {
	if onEvent == nil {
		return nil, ErrNilHandler
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.watcher == nil {
		if err := s.start(); err != nil {
			return nil, err
		}
	}

	id, _ := s.subs.add(onEvent)
	var once sync.Once
	return SubscriptionFunc(func() error {
		var err error
		once.Do(func() {
			err = s.unsubscribe(id)
		})
		return err
	}), nil
}

func (s *FileSource) unsubscribe(id uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed, last := s.subs.remove(id)
	if !removed || !last {
		return nil
	}
	return s.stop()
}

// start must be called with s.mu held.
func (s *FileSource) start() error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	targets := make(map[string]bool)
	dirs := make(map[string]bool)
	for _, p := range s.paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			continue
		}
		dir := filepath.Dir(abs)
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			continue
		}
		if !dirs[dir] {
			if err := w.Add(dir); err != nil {
				s.logger.Debug("cannot watch %s: %v", dir, err)
				continue
			}
			dirs[dir] = true
		}
		targets[abs] = true
	}

	if len(dirs) == 0 {
		_ = w.Close()
		return ErrNoWatchablePaths
	}

	s.watcher = w
	s.closeCh = make(chan struct{})
	s.debouncer = NewDebouncer(s.debounce, s.fire)
	s.seed()

	s.wg.Add(1)
	go s.processLoop(w, targets, s.closeCh, s.debouncer)

	s.logger.Debug("watching %d layout configuration paths", len(targets))
	return nil
}

// stop must be called with s.mu held.
func (s *FileSource) stop() error {
	if s.watcher == nil {
		return nil
	}
	close(s.closeCh)
	s.wg.Wait()
	s.debouncer.Cancel()

	err := s.watcher.Close()
	s.watcher = nil
	return err
}

// Close stops watching regardless of remaining subscribers.
func (s *FileSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stop()
}

// Watching returns true while the underlying watcher is active.
func (s *FileSource) Watching() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.watcher != nil
}

func (s *FileSource) processLoop(w *fsnotify.Watcher, targets map[string]bool, closeCh <-chan struct{}, d *Debouncer) {
	defer s.wg.Done()

	for {
		select {
		case <-closeCh:
			return

		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			if !isTarget(targets, ev.Name) {
				continue
			}
			if ev.Op.Has(fsnotify.Write) || ev.Op.Has(fsnotify.Create) ||
				ev.Op.Has(fsnotify.Rename) || ev.Op.Has(fsnotify.Remove) {
				d.Call()
			}

		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			s.logger.Warn("layout file watcher error: %v", err)
		}
	}
}

// isTarget reports whether name is one of the watched files.
// targets is never mutated after start.
func isTarget(targets map[string]bool, name string) bool {
	abs, err := filepath.Abs(name)
	if err != nil {
		return false
	}
	return targets[abs]
}

// seed records the layout at subscription time.
func (s *FileSource) seed() {
	if s.reader == nil {
		return
	}
	info, err := s.reader.Read(context.Background())
	s.lastMu.Lock()
	defer s.lastMu.Unlock()
	if err == nil {
		s.last = info
		s.seeded = true
	}
}

// changed reports whether the layout differs from the last one seen.
func (s *FileSource) changed() bool {
	if s.reader == nil {
		return true
	}
	info, err := s.reader.Read(context.Background())
	if err != nil {
		// Cannot tell; let the consumer re-query.
		s.logger.Debug("layout re-read failed: %v", err)
		return true
	}

	s.lastMu.Lock()
	defer s.lastMu.Unlock()
	if s.seeded && info == s.last {
		return false
	}
	s.last = info
	s.seeded = true
	return true
}

func (s *FileSource) fire() {
	if !s.changed() {
		return
	}
	s.subs.fire()
}
