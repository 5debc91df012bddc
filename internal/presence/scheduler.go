package presence

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

const (
	// DefaultInterval is the period of the background refresh.
	DefaultInterval = 60 * time.Second
	// DefaultStaleAfter is the age after which an on-demand refresh goes upstream.
	DefaultStaleAfter = 60 * time.Second
)

// ErrRefreshPanicked is returned when a refresh attempt panicked and was recovered.
var ErrRefreshPanicked = errors.New("presence: refresh panicked")

// Fetcher returns the current video records of a channel.
type Fetcher interface {
	Fetch(ctx context.Context, channelID string) ([]VideoRecord, error)
}

// Recorder receives refresh observations. Implemented by the metrics package.
type Recorder interface {
	ObserveRefresh(outcome string, elapsed time.Duration)
	SetPresence(kind string, computedAt time.Time)
}

// Outcome describes what a refresh trigger did.
type Outcome int

const (
	// OutcomeUpdated means records were fetched and the cache was replaced.
	OutcomeUpdated Outcome = iota
	// OutcomeFresh means the cached state was young enough and nothing was fetched.
	OutcomeFresh
	// OutcomeSkipped means another refresh was already in flight.
	OutcomeSkipped
	// OutcomeFailed means the attempt failed and the cache was left untouched.
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeUpdated:
		return "updated"
	case OutcomeFresh:
		return "fresh"
	case OutcomeSkipped:
		return "skipped"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// SchedulerConfig configures a Scheduler. Zero durations fall back to the defaults.
type SchedulerConfig struct {
	ChannelID  string
	Interval   time.Duration
	StaleAfter time.Duration
}

// Scheduler decides when the cache is refreshed from the Fetcher.
// The periodic loop (Run) and on-demand callers (RefreshIfStale) share one
// in-flight guard and one staleness mark, so at most one refresh runs at a time
// and a refresh from either trigger satisfies the current window.
type Scheduler struct {
	fetcher    Fetcher
	cache      *Cache
	channelID  string
	interval   time.Duration
	staleAfter time.Duration
	log        *slog.Logger
	recorder   Recorder
	now        func() time.Time

	running atomic.Bool

	mu          sync.Mutex
	lastFailure time.Time
}

// NewScheduler returns a Scheduler that refreshes cache from fetcher.
// recorder may be nil to disable metric recording (e.g. in tests).
func NewScheduler(fetcher Fetcher, cache *Cache, cfg SchedulerConfig, log *slog.Logger, recorder Recorder) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = DefaultStaleAfter
	}
	return &Scheduler{
		fetcher:    fetcher,
		cache:      cache,
		channelID:  cfg.ChannelID,
		interval:   cfg.Interval,
		staleAfter: cfg.StaleAfter,
		log:        log,
		recorder:   recorder,
		now:        time.Now,
	}
}

// Cache returns the cache this scheduler writes to.
func (s *Scheduler) Cache() *Cache {
	return s.cache
}

// Run refreshes once immediately and then once per interval until ctx is done.
// A refresh triggered on demand in the meantime pushes the next periodic one back.
func (s *Scheduler) Run(ctx context.Context) error {
	s.log.Info("presence scheduler started",
		slog.String("channel_id", s.channelID),
		slog.Duration("interval", s.interval))

	_, _ = s.Refresh(ctx)

	timer := time.NewTimer(s.interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("presence scheduler stopped")
			return nil
		case <-timer.C:
		}

		if wait := s.interval - s.age(); wait > 0 {
			timer.Reset(wait)
			continue
		}
		_, _ = s.Refresh(ctx)
		timer.Reset(s.interval)
	}
}

// RefreshIfStale refreshes only when the last refresh attempt is older than the
// staleness threshold. Otherwise it returns OutcomeFresh without fetching.
func (s *Scheduler) RefreshIfStale(ctx context.Context) (Outcome, error) {
	if s.age() <= s.staleAfter {
		s.observe(OutcomeFresh, 0)
		return OutcomeFresh, nil
	}
	return s.Refresh(ctx)
}

// Refresh fetches, resolves and stores the channel's presence. If a refresh is
// already running it returns OutcomeSkipped immediately. On failure the cache is
// left untouched and the error is returned.
func (s *Scheduler) Refresh(ctx context.Context) (Outcome, error) {
	if !s.running.CompareAndSwap(false, true) {
		s.log.Debug("presence refresh skipped, already in flight")
		s.observe(OutcomeSkipped, 0)
		return OutcomeSkipped, nil
	}
	defer s.running.Store(false)

	return s.refresh(ctx)
}

func (s *Scheduler) refresh(ctx context.Context) (outcome Outcome, err error) {
	log := s.log.With(
		slog.String("refresh_id", uuid.NewString()),
		slog.String("channel_id", s.channelID))
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			outcome, err = OutcomeFailed, fmt.Errorf("%w: %v", ErrRefreshPanicked, r)
		}
		elapsed := time.Since(start)
		if outcome == OutcomeFailed {
			s.markFailure()
			log.Warn("presence refresh failed",
				slog.String("error", err.Error()),
				slog.Int("duration_ms", int(elapsed.Milliseconds())))
		}
		s.observe(outcome, elapsed)
	}()

	records, err := s.fetcher.Fetch(ctx, s.channelID)
	if err != nil {
		return OutcomeFailed, fmt.Errorf("fetch videos: %w", err)
	}

	entry := s.cache.Store(Resolve(records))
	if s.recorder != nil {
		s.recorder.SetPresence(entry.State.Kind(), entry.ComputedAt)
	}

	log.Info("presence refreshed",
		slog.String("state", entry.State.Kind()),
		slog.Int("videos", len(records)),
		slog.Int("duration_ms", int(time.Since(start).Milliseconds())))
	return OutcomeUpdated, nil
}

// age is the time since the later of the last successful store and the last
// failed attempt, so a failing upstream is also polled at most once per window.
func (s *Scheduler) age() time.Duration {
	mark := s.cache.Entry().ComputedAt

	s.mu.Lock()
	if s.lastFailure.After(mark) {
		mark = s.lastFailure
	}
	s.mu.Unlock()

	return s.now().Sub(mark)
}

func (s *Scheduler) markFailure() {
	s.mu.Lock()
	s.lastFailure = s.now()
	s.mu.Unlock()
}

func (s *Scheduler) observe(o Outcome, elapsed time.Duration) {
	if s.recorder != nil {
		s.recorder.ObserveRefresh(o.String(), elapsed)
	}
}
