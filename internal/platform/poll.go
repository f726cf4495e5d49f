package platform

import (
	"context"
	"sync"
	"time"

	"github.com/dshills/kblayout/internal/layout"
	"github.com/dshills/kblayout/internal/logging"
)

// Defaults for PollSource.
const (
	// DefaultPollInterval is how often PollSource re-reads the layout.
	DefaultPollInterval = time.Second
	// DefaultReadTimeout bounds a single layout read.
	DefaultReadTimeout = 5 * time.Second
)

// PollSource fires when a periodically read layout changes. It suits
// environments without file-based configuration, e.g. polling
// setxkbmap -query under X11.
type PollSource struct {
	reader      layout.Reader
	interval    time.Duration
	readTimeout time.Duration
	logger      *logging.Logger

	subs subscribers

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// PollOption configures a PollSource.
type PollOption func(*PollSource)

// WithInterval sets the polling interval.
func WithInterval(d time.Duration) PollOption {
	return func(s *PollSource) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithReadTimeout bounds each layout read, including the initial read
// made by the first Subscribe.
func WithReadTimeout(d time.Duration) PollOption {
	return func(s *PollSource) {
		if d > 0 {
			s.readTimeout = d
		}
	}
}

// WithPollLogger sets the logger.
func WithPollLogger(l *logging.Logger) PollOption {
	return func(s *PollSource) {
		s.logger = l
	}
}

// NewPollSource polls reader.
func NewPollSource(reader layout.Reader, opts ...PollOption) *PollSource {
	s := &PollSource{
		reader:      reader,
		interval:    DefaultPollInterval,
		readTimeout: DefaultReadTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Subscribe implements Source. The first subscriber triggers an initial
// read; if it fails or exceeds the read timeout the subscription fails and
// polling does not start.
func (s *PollSource) Subscribe(onEvent func()) (Subscription, error) {
	if onEvent == nil {
		return nil, ErrNilHandler
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel == nil {
		ctx, cancel := context.WithCancel(context.Background())
		info, err := s.read(ctx)
		if err != nil {
			cancel()
			return nil, err
		}
		s.cancel = cancel
		s.wg.Add(1)
		go s.poll(ctx, info)
	}

	id, _ := s.subs.add(onEvent)
	var once sync.Once
	return SubscriptionFunc(func() error {
		once.Do(func() { s.unsubscribe(id) })
		return nil
	}), nil
}

func (s *PollSource) unsubscribe(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if removed, last := s.subs.remove(id); removed && last {
		s.stop()
	}
}

// stop must be called with s.mu held.
func (s *PollSource) stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	s.cancel = nil
	s.wg.Wait()
}

// Close stops polling regardless of remaining subscribers.
func (s *PollSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stop()
	return nil
}

// Polling returns true while the polling goroutine runs.
func (s *PollSource) Polling() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancel != nil
}

func (s *PollSource) poll(ctx context.Context, last layout.Info) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			info, err := s.read(ctx)
			if err != nil {
				if ctx.Err() == nil {
					s.logger.Debug("layout poll failed: %v", err)
				}
				continue
			}
			if info == last {
				continue
			}
			last = info
			s.subs.fire()
		}
	}
}

func (s *PollSource) read(ctx context.Context) (layout.Info, error) {
	ctx, cancel := context.WithTimeout(ctx, s.readTimeout)
	defer cancel()
	return s.reader.Read(ctx)
}
