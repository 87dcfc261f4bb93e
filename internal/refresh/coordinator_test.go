package refresh

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ylchen07/ticketq/internal/atlassian"
	"github.com/ylchen07/ticketq/internal/cache"
	"github.com/ylchen07/ticketq/internal/ticket"
)

var testNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeSource struct {
	mu      sync.Mutex
	tickets []ticket.Ticket
	err     error
	calls   int
	// during runs inside FetchAll, while the lock is held.
	during func()
}

func (f *fakeSource) FetchAll(_ context.Context, _ string, _ int) ([]ticket.Ticket, error) {
	f.mu.Lock()
	f.calls++
	during := f.during
	f.mu.Unlock()

	if during != nil {
		during()
	}
	if f.err != nil {
		return nil, f.err
	}
	return append([]ticket.Ticket(nil), f.tickets...), nil
}

func (f *fakeSource) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type recordingScheduler struct {
	mu    sync.Mutex
	tasks []func(context.Context)
}

func (s *recordingScheduler) Schedule(task func(context.Context)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks = append(s.tasks, task)
}

func (s *recordingScheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

func (s *recordingScheduler) RunAll(ctx context.Context) {
	s.mu.Lock()
	tasks := s.tasks
	s.tasks = nil
	s.mu.Unlock()
	for _, task := range tasks {
		task(ctx)
	}
}

type failingStore struct {
	cache.Store
}

func (failingStore) Get(context.Context, string) (*cache.Entry, error) {
	return nil, errors.New("disk on fire")
}

// racingLocks lets a rival replace the abandoned lock right before the
// reclaiming release runs.
type racingLocks struct {
	*cache.MemoryStore
	rival cache.Lock
}

func (r racingLocks) ReleaseLock(ctx context.Context, name, owner string) error {
	held, err := r.MemoryStore.ReadLock(ctx, name)
	if err != nil {
		return err
	}
	if held != nil && held.Owner != r.rival.Owner {
		if err := r.MemoryStore.ReleaseLock(ctx, name, held.Owner); err != nil {
			return err
		}
		if err := r.MemoryStore.AcquireLock(ctx, r.rival); err != nil {
			return err
		}
	}
	return r.MemoryStore.ReleaseLock(ctx, name, owner)
}

func makeTickets(n int) []ticket.Ticket {
	tickets := make([]ticket.Ticket, n)
	for i := range tickets {
		tickets[i] = ticket.Ticket{ID: fmt.Sprintf("CS-%d", n-i), Title: fmt.Sprintf("CS-%d - ticket", n-i)}
	}
	return tickets
}

type harness struct {
	store     *cache.MemoryStore
	source    *fakeSource
	scheduler *recordingScheduler
	coord     *Coordinator
	now       time.Time
}

func newHarness(t *testing.T, mutate func(*Options)) *harness {
	t.Helper()

	h := &harness{
		store:     cache.NewMemoryStore(),
		source:    &fakeSource{},
		scheduler: &recordingScheduler{},
		now:       testNow,
	}
	opts := Options{
		Store:          h.store,
		Locks:          h.store,
		Source:         h.source,
		Scheduler:      h.scheduler,
		Logger:         slog.New(slog.NewTextHandler(io.Discard, nil)),
		JQL:            "status != Closed",
		LockStaleAfter: time.Hour,
		TTL:            30 * time.Minute,
		Now:            func() time.Time { return h.now },
	}
	if mutate != nil {
		mutate(&opts)
	}

	coord, err := New(opts)
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	h.coord = coord
	return h
}

func (h *harness) seed(t *testing.T, tickets []ticket.Ticket, writtenAt time.Time) {
	t.Helper()
	if err := h.store.Set(context.Background(), &cache.Entry{Key: DefaultKey, WrittenAt: writtenAt, Tickets: tickets}); err != nil {
		t.Fatalf("seed: %v", err)
	}
}

func (h *harness) lock(t *testing.T, createdAt time.Time) {
	t.Helper()
	if err := h.store.AcquireLock(context.Background(), cache.Lock{Name: DefaultLockName, Owner: "other", CreatedAt: createdAt}); err != nil {
		t.Fatalf("lock: %v", err)
	}
}

func (h *harness) lockHeld(t *testing.T) bool {
	t.Helper()
	lock, err := h.store.ReadLock(context.Background(), DefaultLockName)
	if err != nil {
		t.Fatalf("read lock: %v", err)
	}
	return lock != nil
}

func (h *harness) cached(t *testing.T) *cache.Entry {
	t.Helper()
	entry, err := h.store.Get(context.Background(), DefaultKey)
	if err != nil {
		t.Fatalf("get entry: %v", err)
	}
	return entry
}

func TestObtainEmptyCacheSchedulesRefresh(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	h.source.tickets = makeTickets(3)

	res := h.coord.Obtain(context.Background(), false)
	if res.Status != StatusStarted {
		t.Fatalf("expected started, got %s", res.Status)
	}
	if len(res.Tickets) != 0 || res.FromCache {
		t.Fatalf("expected no tickets, got %+v", res)
	}
	if h.source.Calls() != 0 {
		t.Fatalf("expected no synchronous fetch, got %d calls", h.source.Calls())
	}
	if h.scheduler.Len() != 1 {
		t.Fatalf("expected one scheduled refresh, got %d", h.scheduler.Len())
	}

	h.scheduler.RunAll(context.Background())
	if entry := h.cached(t); entry == nil || len(entry.Tickets) != 3 {
		t.Fatalf("expected background refresh to fill cache, got %+v", entry)
	}
	if h.lockHeld(t) {
		t.Fatalf("expected lock released after background refresh")
	}
}

func TestObtainForcedRefreshesSynchronously(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	h.source.tickets = makeTickets(3)

	res := h.coord.Obtain(context.Background(), true)
	if res.Status != StatusRefreshed {
		t.Fatalf("expected refreshed, got %s", res.Status)
	}
	if len(res.Tickets) != 3 {
		t.Fatalf("expected 3 tickets, got %d", len(res.Tickets))
	}
	title, subtitle, ok := res.Notice("anything")
	if !ok || title != "Caching data complete" || subtitle != "Found 3 results" {
		t.Fatalf("unexpected notice %q / %q", title, subtitle)
	}

	entry := h.cached(t)
	if entry == nil || len(entry.Tickets) != 3 || !entry.WrittenAt.Equal(testNow) {
		t.Fatalf("expected cache holding 3 tickets written now, got %+v", entry)
	}
	if h.lockHeld(t) {
		t.Fatalf("expected lock released")
	}
	if h.scheduler.Len() != 0 {
		t.Fatalf("forced refresh should not schedule")
	}
}

func TestRefreshFailureLogLevel(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		err    error
		level  string
		absent string
	}{
		{name: "rate limited", err: &atlassian.Error{StatusCode: 429}, level: `"level":"WARN"`, absent: `"level":"ERROR"`},
		{name: "server error", err: fmt.Errorf("page: %w", &atlassian.Error{StatusCode: 503}), level: `"level":"WARN"`, absent: `"level":"ERROR"`},
		{name: "bad request", err: &atlassian.Error{StatusCode: 400}, level: `"level":"ERROR"`, absent: `"transient"`},
		{name: "plain error", err: errors.New("boom"), level: `"level":"ERROR"`, absent: `"transient"`},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			var logs bytes.Buffer
			h := newHarness(t, func(o *Options) {
				o.Logger = slog.New(slog.NewJSONHandler(&logs, nil))
			})
			h.source.err = tc.err

			if res := h.coord.Obtain(context.Background(), true); res.Status != StatusRefreshed {
				t.Fatalf("expected refreshed, got %s", res.Status)
			}
			out := logs.String()
			if !strings.Contains(out, tc.level) || strings.Contains(out, tc.absent) {
				t.Fatalf("unexpected log output %s", out)
			}
		})
	}
}

func TestObtainForcedWithPopulatedCache(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	h.seed(t, makeTickets(50), testNow.Add(-time.Minute))
	h.source.tickets = makeTickets(2)

	res := h.coord.Obtain(context.Background(), true)
	if res.Status != StatusRefreshed || len(res.Tickets) != 2 {
		t.Fatalf("expected forced refresh with 2 tickets, got %s/%d", res.Status, len(res.Tickets))
	}
	if entry := h.cached(t); len(entry.Tickets) != 2 {
		t.Fatalf("expected cache replaced, got %d tickets", len(entry.Tickets))
	}
}

func TestObtainCacheHitServesAndSchedules(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	written := testNow.Add(-time.Minute)
	h.seed(t, makeTickets(50), written)

	res := h.coord.Obtain(context.Background(), false)
	if res.Status != StatusCached || !res.FromCache {
		t.Fatalf("expected cache hit, got %+v", res.Status)
	}
	if len(res.Tickets) != 50 {
		t.Fatalf("expected 50 tickets, got %d", len(res.Tickets))
	}
	if !res.WrittenAt.Equal(written) {
		t.Fatalf("expected written at %s, got %s", written, res.WrittenAt)
	}
	if _, _, ok := res.Notice("x"); ok {
		t.Fatalf("cache hits carry no notice")
	}
	if h.source.Calls() != 0 {
		t.Fatalf("cache hit must not fetch synchronously")
	}
	if h.scheduler.Len() != 1 {
		t.Fatalf("expected opportunistic refresh, got %d scheduled", h.scheduler.Len())
	}
}

func TestObtainCacheHitIgnoresTTL(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	h.seed(t, makeTickets(5), testNow.Add(-48*time.Hour))

	res := h.coord.Obtain(context.Background(), false)
	if res.Status != StatusCached || len(res.Tickets) != 5 {
		t.Fatalf("expired entry should still be served, got %s/%d", res.Status, len(res.Tickets))
	}
}

func TestObtainStalePolicy(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name     string
		age      time.Duration
		schedule int
	}{
		{name: "fresh", age: time.Minute, schedule: 0},
		{name: "stale", age: time.Hour, schedule: 1},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			h := newHarness(t, func(o *Options) { o.RefreshOnHit = RefreshStale })
			h.seed(t, makeTickets(2), testNow.Add(-tc.age))

			res := h.coord.Obtain(context.Background(), false)
			if res.Status != StatusCached {
				t.Fatalf("expected cache hit, got %s", res.Status)
			}
			if h.scheduler.Len() != tc.schedule {
				t.Fatalf("expected %d scheduled, got %d", tc.schedule, h.scheduler.Len())
			}
		})
	}
}

func TestObtainFreshLockReportsInProgress(t *testing.T) {
	t.Parallel()

	for _, force := range []bool{false, true} {
		force := force
		t.Run(fmt.Sprintf("force=%t", force), func(t *testing.T) {
			t.Parallel()

			h := newHarness(t, nil)
			h.lock(t, testNow.Add(-59*time.Minute))

			res := h.coord.Obtain(context.Background(), force)
			if res.Status != StatusInProgress {
				t.Fatalf("expected in progress, got %s", res.Status)
			}
			title, subtitle, _ := res.Notice("/critical")
			if title != "Caching in progress" || subtitle != "Try '/critical' again in a few" {
				t.Fatalf("unexpected notice %q / %q", title, subtitle)
			}
			if h.source.Calls() != 0 || h.scheduler.Len() != 0 {
				t.Fatalf("locked obtain must neither fetch nor schedule")
			}
			if !h.lockHeld(t) {
				t.Fatalf("fresh lock must not be released")
			}
		})
	}
}

func TestObtainReclaimsAbandonedLock(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	h.lock(t, testNow.Add(-time.Hour))
	h.source.tickets = makeTickets(1)

	res := h.coord.Obtain(context.Background(), true)
	if res.Status != StatusRefreshed || len(res.Tickets) != 1 {
		t.Fatalf("expected refresh after reclaim, got %s/%d", res.Status, len(res.Tickets))
	}
	if h.lockHeld(t) {
		t.Fatalf("expected lock released")
	}
}

func TestReclaimKeepsRivalLock(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	h.lock(t, testNow.Add(-2*time.Hour))
	rival := cache.Lock{Name: DefaultLockName, Owner: "rival", CreatedAt: testNow}
	h.coord.locks = racingLocks{MemoryStore: h.store, rival: rival}

	if h.coord.Locked(context.Background()) {
		t.Fatalf("abandoned lock should be reported as absent")
	}

	got, err := h.store.ReadLock(context.Background(), DefaultLockName)
	if err != nil {
		t.Fatalf("read lock: %v", err)
	}
	if got == nil || got.Owner != "rival" {
		t.Fatalf("reclaim must not delete a lock taken by another owner, got %+v", got)
	}
}

func TestObtainStoreErrorTreatedAsEmpty(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	h.seed(t, makeTickets(2), testNow)
	h.coord.store = failingStore{Store: h.store}

	res := h.coord.Obtain(context.Background(), false)
	if res.Status != StatusStarted {
		t.Fatalf("expected started on read error, got %s", res.Status)
	}
}

func TestObtainForcedFailureYieldsZeroTickets(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	previous := makeTickets(4)
	h.seed(t, previous, testNow.Add(-time.Hour))
	h.source.err = errors.New("503 from tracker")

	res := h.coord.Obtain(context.Background(), true)
	if res.Status != StatusRefreshed || len(res.Tickets) != 0 {
		t.Fatalf("expected refreshed with 0 tickets, got %s/%d", res.Status, len(res.Tickets))
	}
	_, subtitle, _ := res.Notice("")
	if subtitle != "Found 0 results" {
		t.Fatalf("unexpected subtitle %q", subtitle)
	}
	if entry := h.cached(t); len(entry.Tickets) != 4 {
		t.Fatalf("failed refresh must keep previous entry, got %d tickets", len(entry.Tickets))
	}
	if h.lockHeld(t) {
		t.Fatalf("failed refresh must release the lock")
	}
}

func TestLocked(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name      string
		age       time.Duration
		locked    bool
		remaining bool
	}{
		{name: "fresh", age: 10 * time.Minute, locked: true, remaining: true},
		{name: "just under threshold", age: time.Hour - time.Second, locked: true, remaining: true},
		{name: "at threshold", age: time.Hour, locked: false, remaining: false},
		{name: "abandoned", age: 3 * time.Hour, locked: false, remaining: false},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			h := newHarness(t, nil)
			h.lock(t, testNow.Add(-tc.age))

			if got := h.coord.Locked(context.Background()); got != tc.locked {
				t.Fatalf("Locked() = %t, want %t", got, tc.locked)
			}
			if got := h.lockHeld(t); got != tc.remaining {
				t.Fatalf("lock present = %t, want %t", got, tc.remaining)
			}
		})
	}

	h := newHarness(t, nil)
	if h.coord.Locked(context.Background()) {
		t.Fatalf("no lock should read as unlocked")
	}
}

func TestRefreshHoldsLockWhileFetching(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	h.source.tickets = makeTickets(2)

	var (
		heldDuringFetch bool
		nested          error
	)
	h.source.during = func() {
		heldDuringFetch = h.lockHeld(t)
		_, nested = h.coord.Refresh(context.Background())
	}

	tickets, err := h.coord.Refresh(context.Background())
	if err != nil {
		t.Fatalf("Refresh error: %v", err)
	}
	if len(tickets) != 2 {
		t.Fatalf("expected 2 tickets, got %d", len(tickets))
	}
	if !heldDuringFetch {
		t.Fatalf("expected lock held during fetch")
	}
	if !errors.Is(nested, ErrRefreshInProgress) {
		t.Fatalf("expected concurrent refresh to be rejected, got %v", nested)
	}
	if h.lockHeld(t) {
		t.Fatalf("expected lock released")
	}
}

func TestRefreshReleasesLockOnPanic(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	h.source.during = func() { panic("boom") }

	func() {
		defer func() {
			if recover() == nil {
				t.Fatalf("expected panic to propagate")
			}
		}()
		_, _ = h.coord.Refresh(context.Background())
	}()

	if h.lockHeld(t) {
		t.Fatalf("lock must be released even when the fetch panics")
	}
}

func TestRefreshReleasesLockOnCancelledContext(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	h.source.during = cancel
	h.source.err = context.Canceled

	if _, err := h.coord.Refresh(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context cancelled, got %v", err)
	}
	if h.lockHeld(t) {
		t.Fatalf("lock must be released after cancellation")
	}
}

func TestNewValidation(t *testing.T) {
	t.Parallel()

	store := cache.NewMemoryStore()
	base := Options{Store: store, Locks: store, Source: &fakeSource{}, Scheduler: &recordingScheduler{}}

	if _, err := New(base); err != nil {
		t.Fatalf("expected valid options, got %v", err)
	}

	missing := base
	missing.Source = nil
	if _, err := New(missing); err == nil {
		t.Fatalf("expected error for missing source")
	}

	bad := base
	bad.RefreshOnHit = "sometimes"
	if _, err := New(bad); err == nil {
		t.Fatalf("expected error for unknown hit policy")
	}
}

func TestInspect(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	snap, err := h.coord.Inspect(context.Background())
	if err != nil {
		t.Fatalf("Inspect error: %v", err)
	}
	if snap.Cached || snap.Locked {
		t.Fatalf("expected empty snapshot, got %+v", snap)
	}

	h.seed(t, makeTickets(7), testNow.Add(-45*time.Minute))
	h.lock(t, testNow.Add(-2*time.Hour))

	snap, err = h.coord.Inspect(context.Background())
	if err != nil {
		t.Fatalf("Inspect error: %v", err)
	}
	if !snap.Cached || snap.Count != 7 || !snap.Stale || snap.Age != 45*time.Minute {
		t.Fatalf("unexpected cache snapshot %+v", snap)
	}
	if !snap.Locked || !snap.LockStale || snap.LockOwner != "other" {
		t.Fatalf("unexpected lock snapshot %+v", snap)
	}
	if !h.lockHeld(t) {
		t.Fatalf("Inspect must not reclaim locks")
	}
}

func TestStatusString(t *testing.T) {
	t.Parallel()

	if StatusInProgress.String() != "in_progress" || Status(42).String() != "status(42)" {
		t.Fatalf("unexpected status strings")
	}
}
