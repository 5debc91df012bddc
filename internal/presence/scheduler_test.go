package presence

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errUpstream = errors.New("upstream unavailable")

type fakeFetcher struct {
	mu        sync.Mutex
	calls     int
	channels  []string
	records   []VideoRecord
	err       error
	panicWith any

	// When started is non-nil, Fetch signals it and then waits on release.
	started chan struct{}
	release chan struct{}
}

func (f *fakeFetcher) Fetch(ctx context.Context, channelID string) ([]VideoRecord, error) {
	f.mu.Lock()
	f.calls++
	f.channels = append(f.channels, channelID)
	records, err, p := f.records, f.err, f.panicWith
	started, release := f.started, f.release
	f.mu.Unlock()

	if started != nil {
		started <- struct{}{}
		<-release
	}
	if p != nil {
		panic(p)
	}
	return records, err
}

func (f *fakeFetcher) set(records []VideoRecord, err error) {
	f.mu.Lock()
	f.records, f.err = records, err
	f.mu.Unlock()
}

func (f *fakeFetcher) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeRecorder struct {
	mu       sync.Mutex
	outcomes []string
	kinds    []string
}

func (r *fakeRecorder) ObserveRefresh(outcome string, _ time.Duration) {
	r.mu.Lock()
	r.outcomes = append(r.outcomes, outcome)
	r.mu.Unlock()
}

func (r *fakeRecorder) SetPresence(kind string, _ time.Time) {
	r.mu.Lock()
	r.kinds = append(r.kinds, kind)
	r.mu.Unlock()
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestScheduler(t *testing.T, f Fetcher, rec Recorder) (*Scheduler, *fakeClock) {
	t.Helper()
	clock := newFakeClock()
	cache := newCacheWithClock(clock.Now)
	s := NewScheduler(f, cache, SchedulerConfig{
		ChannelID:  "UC-test",
		Interval:   60 * time.Second,
		StaleAfter: 60 * time.Second,
	}, testLogger(), rec)
	s.now = clock.Now
	return s, clock
}

func liveRecords() []VideoRecord {
	return []VideoRecord{{ID: "live-1", Status: StatusLive}}
}

func TestNewScheduler_defaults(t *testing.T) {
	s := NewScheduler(&fakeFetcher{}, NewCache(), SchedulerConfig{}, testLogger(), nil)

	assert.Equal(t, DefaultInterval, s.interval)
	assert.Equal(t, DefaultStaleAfter, s.staleAfter)
}

func TestScheduler_Refresh_success(t *testing.T) {
	f := &fakeFetcher{records: liveRecords()}
	rec := &fakeRecorder{}
	s, clock := newTestScheduler(t, f, rec)

	clock.Advance(5 * time.Second)
	outcome, err := s.Refresh(context.Background())

	require.NoError(t, err)
	assert.Equal(t, OutcomeUpdated, outcome)
	assert.Equal(t, Live{VideoID: "live-1"}, s.Cache().Read())
	assert.Equal(t, clock.Now(), s.Cache().Entry().ComputedAt)
	assert.Equal(t, []string{"UC-test"}, f.channels)
	assert.Equal(t, []string{"updated"}, rec.outcomes)
	assert.Equal(t, []string{"live"}, rec.kinds)
}

func TestScheduler_Refresh_failure_keeps_cache(t *testing.T) {
	f := &fakeFetcher{records: liveRecords()}
	rec := &fakeRecorder{}
	s, clock := newTestScheduler(t, f, rec)

	_, err := s.Refresh(context.Background())
	require.NoError(t, err)
	before := s.Cache().Entry()

	f.set(nil, errUpstream)
	clock.Advance(2 * time.Minute)
	outcome, err := s.Refresh(context.Background())

	assert.Equal(t, OutcomeFailed, outcome)
	assert.ErrorIs(t, err, errUpstream)
	assert.Equal(t, before, s.Cache().Entry())
	assert.Equal(t, []string{"updated", "failed"}, rec.outcomes)
}

func TestScheduler_Refresh_live_to_unknown(t *testing.T) {
	f := &fakeFetcher{records: liveRecords()}
	s, _ := newTestScheduler(t, f, nil)

	_, err := s.Refresh(context.Background())
	require.NoError(t, err)

	f.set(nil, nil)
	_, err = s.Refresh(context.Background())
	require.NoError(t, err)

	assert.Equal(t, Unknown{}, s.Cache().Read())
}

func TestScheduler_RefreshIfStale_gating(t *testing.T) {
	f := &fakeFetcher{records: liveRecords()}
	s, clock := newTestScheduler(t, f, nil)

	_, err := s.Refresh(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, f.Calls())

	t.Run("fresh_after_10s", func(t *testing.T) {
		clock.Advance(10 * time.Second)
		outcome, err := s.RefreshIfStale(context.Background())
		require.NoError(t, err)
		assert.Equal(t, OutcomeFresh, outcome)
		assert.Equal(t, 1, f.Calls())
	})

	t.Run("stale_after_61s", func(t *testing.T) {
		clock.Advance(51 * time.Second)
		outcome, err := s.RefreshIfStale(context.Background())
		require.NoError(t, err)
		assert.Equal(t, OutcomeUpdated, outcome)
		assert.Equal(t, 2, f.Calls())
	})

	t.Run("fresh_again_right_after", func(t *testing.T) {
		outcome, err := s.RefreshIfStale(context.Background())
		require.NoError(t, err)
		assert.Equal(t, OutcomeFresh, outcome)
		assert.Equal(t, 2, f.Calls())
	})
}

func TestScheduler_RefreshIfStale_failure_counts_as_attempt(t *testing.T) {
	f := &fakeFetcher{err: errUpstream}
	s, clock := newTestScheduler(t, f, nil)

	clock.Advance(61 * time.Second)
	outcome, err := s.RefreshIfStale(context.Background())
	require.ErrorIs(t, err, errUpstream)
	require.Equal(t, OutcomeFailed, outcome)

	clock.Advance(30 * time.Second)
	outcome, err = s.RefreshIfStale(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeFresh, outcome)
	assert.Equal(t, 1, f.Calls())
	assert.Equal(t, Unknown{}, s.Cache().Read())
}

func TestScheduler_Refresh_skips_when_in_flight(t *testing.T) {
	f := &fakeFetcher{
		records: liveRecords(),
		started: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	rec := &fakeRecorder{}
	s, _ := newTestScheduler(t, f, rec)

	done := make(chan Outcome, 1)
	go func() {
		outcome, _ := s.Refresh(context.Background())
		done <- outcome
	}()
	<-f.started

	// Readers see the previous state while the fetch is blocked.
	assert.Equal(t, Unknown{}, s.Cache().Read())

	outcome, err := s.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeSkipped, outcome)

	close(f.release)
	assert.Equal(t, OutcomeUpdated, <-done)
	assert.Equal(t, 1, f.Calls())
	assert.Equal(t, Live{VideoID: "live-1"}, s.Cache().Read())
	assert.ElementsMatch(t, []string{"skipped", "updated"}, rec.outcomes)
}

func TestScheduler_Refresh_recovers_panic(t *testing.T) {
	f := &fakeFetcher{records: liveRecords()}
	s, _ := newTestScheduler(t, f, nil)
	_, err := s.Refresh(context.Background())
	require.NoError(t, err)
	before := s.Cache().Entry()

	f.mu.Lock()
	f.panicWith = "boom"
	f.mu.Unlock()

	outcome, err := s.Refresh(context.Background())
	assert.Equal(t, OutcomeFailed, outcome)
	assert.ErrorIs(t, err, ErrRefreshPanicked)
	assert.Equal(t, before, s.Cache().Entry())

	f.mu.Lock()
	f.panicWith = nil
	f.records = nil
	f.mu.Unlock()

	outcome, err = s.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeUpdated, outcome)
	assert.Equal(t, Unknown{}, s.Cache().Read())
}

func TestScheduler_Run_refreshes_periodically(t *testing.T) {
	f := &fakeFetcher{records: liveRecords()}
	s := NewScheduler(f, NewCache(), SchedulerConfig{
		ChannelID: "UC-test",
		Interval:  20 * time.Millisecond,
	}, testLogger(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- s.Run(ctx) }()

	require.Eventually(t, func() bool { return f.Calls() >= 3 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, Live{VideoID: "live-1"}, s.Cache().Read())

	cancel()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestScheduler_Run_keeps_going_after_failures(t *testing.T) {
	f := &fakeFetcher{err: errUpstream}
	s := NewScheduler(f, NewCache(), SchedulerConfig{Interval: 10 * time.Millisecond}, testLogger(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = s.Run(ctx) }()

	require.Eventually(t, func() bool { return f.Calls() >= 2 }, 2*time.Second, 5*time.Millisecond)
	f.set(liveRecords(), nil)
	require.Eventually(t, func() bool {
		return s.Cache().Read() == State(Live{VideoID: "live-1"})
	}, 2*time.Second, 5*time.Millisecond)
}

func TestOutcome_String(t *testing.T) {
	assert.Equal(t, "updated", OutcomeUpdated.String())
	assert.Equal(t, "fresh", OutcomeFresh.String())
	assert.Equal(t, "skipped", OutcomeSkipped.String())
	assert.Equal(t, "failed", OutcomeFailed.String())
	assert.Equal(t, "unknown", Outcome(42).String())
}
