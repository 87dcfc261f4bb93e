// Package refresh decides whether a query is served from cache or triggers a
// refresh, and runs refreshes under the advisory lock.
package refresh

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/ylchen07/ticketq/internal/cache"
	"github.com/ylchen07/ticketq/internal/ticket"
)

// ErrRefreshInProgress reports that another refresh holds a fresh lock.
var ErrRefreshInProgress = errors.New("refresh: refresh already in progress")

// Defaults applied by New when the options leave them unset.
const (
	DefaultKey            = "tickets"
	DefaultLockName       = "refresh"
	DefaultTTL            = 30 * time.Minute
	DefaultLockStaleAfter = time.Hour
	DefaultLimit          = 200
)

// HitPolicy controls background refreshes after a cache hit.
type HitPolicy string

const (
	// RefreshAlways schedules a refresh after every cache hit.
	RefreshAlways HitPolicy = "always"
	// RefreshStale schedules one only when the entry is older than the TTL.
	RefreshStale HitPolicy = "stale"
)

// Source produces the full ticket collection. *ticket.Aggregator satisfies it.
type Source interface {
	FetchAll(ctx context.Context, jql string, limit int) ([]ticket.Ticket, error)
}

// Status is the outcome of Obtain.
type Status int

const (
	StatusCached Status = iota
	StatusInProgress
	StatusStarted
	StatusRefreshed
)

func (s Status) String() string {
	switch s {
	case StatusCached:
		return "cached"
	case StatusInProgress:
		return "in_progress"
	case StatusStarted:
		return "started"
	case StatusRefreshed:
		return "refreshed"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Result is what Obtain hands back to the query surface.
type Result struct {
	Tickets   []ticket.Ticket
	Status    Status
	FromCache bool
	WrittenAt time.Time
}

// Options configures a Coordinator.
type Options struct {
	Store          cache.Store
	Locks          cache.LockStore
	Source         Source
	Scheduler      Scheduler
	Logger         *slog.Logger
	Key            string
	JQL            string
	Limit          int
	TTL            time.Duration
	LockName       string
	LockStaleAfter time.Duration
	RefreshOnHit   HitPolicy
	Now            func() time.Time
}

// Coordinator owns the cache read path and the refresh lock.
type Coordinator struct {
	store     cache.Store
	locks     cache.LockStore
	source    Source
	scheduler Scheduler
	logger    *slog.Logger

	key        string
	jql        string
	limit      int
	ttl        time.Duration
	lockName   string
	staleAfter time.Duration
	policy     HitPolicy
	now        func() time.Time
}

// New validates opts and fills in defaults.
func New(opts Options) (*Coordinator, error) {
	if opts.Store == nil {
		return nil, errors.New("refresh: store is required")
	}
	if opts.Locks == nil {
		return nil, errors.New("refresh: lock store is required")
	}
	if opts.Source == nil {
		return nil, errors.New("refresh: source is required")
	}
	if opts.Scheduler == nil {
		return nil, errors.New("refresh: scheduler is required")
	}

	c := &Coordinator{
		store:      opts.Store,
		locks:      opts.Locks,
		source:     opts.Source,
		scheduler:  opts.Scheduler,
		logger:     opts.Logger,
		key:        opts.Key,
		jql:        opts.JQL,
		limit:      opts.Limit,
		ttl:        opts.TTL,
		lockName:   opts.LockName,
		staleAfter: opts.LockStaleAfter,
		policy:     opts.RefreshOnHit,
		now:        opts.Now,
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	if c.key == "" {
		c.key = DefaultKey
	}
	if c.limit <= 0 {
		c.limit = DefaultLimit
	}
	if c.ttl <= 0 {
		c.ttl = DefaultTTL
	}
	if c.lockName == "" {
		c.lockName = DefaultLockName
	}
	if c.staleAfter <= 0 {
		c.staleAfter = DefaultLockStaleAfter
	}
	switch c.policy {
	case RefreshAlways, RefreshStale:
	case "":
		c.policy = RefreshAlways
	default:
		return nil, fmt.Errorf("refresh: unknown hit policy %q", c.policy)
	}
	if c.now == nil {
		c.now = time.Now
	}
	return c, nil
}

// Obtain returns tickets to serve for one query. An empty cache or a forced
// call never serves cached data: it reports a running refresh, runs one
// synchronously (force), or schedules one. A populated cache is served as-is
// and kept warm in the background.
func (c *Coordinator) Obtain(ctx context.Context, force bool) Result {
	entry, err := c.store.Get(ctx, c.key)
	if err != nil {
		c.logger.Warn("cache read failed, treating as empty", slog.String("key", c.key), slog.Any("error", err))
		entry = nil
	}

	if entry.Empty() || force {
		if c.Locked(ctx) {
			return Result{Status: StatusInProgress}
		}

		if force {
			tickets, err := c.Refresh(ctx)
			if err != nil {
				if errors.Is(err, ErrRefreshInProgress) {
					return Result{Status: StatusInProgress}
				}
				c.logFailure("refresh failed", err)
			}
			return Result{Tickets: tickets, Status: StatusRefreshed}
		}

		c.schedule()
		return Result{Status: StatusStarted}
	}

	result := Result{
		Tickets:   entry.Tickets,
		Status:    StatusCached,
		FromCache: true,
		WrittenAt: entry.WrittenAt,
	}
	if c.policy == RefreshAlways || entry.Stale(c.now(), c.ttl) {
		c.schedule()
	}
	return result
}

// Locked reports whether a fresh lock exists. A lock at or past the
// abandonment threshold is released and reported as absent.
func (c *Coordinator) Locked(ctx context.Context) bool {
	lock, err := c.locks.ReadLock(ctx, c.lockName)
	if err != nil {
		c.logger.Warn("lock read failed", slog.String("lock", c.lockName), slog.Any("error", err))
		return false
	}
	if lock == nil {
		return false
	}

	age := lock.Age(c.now())
	if age < c.staleAfter {
		return true
	}

	if err := c.locks.ReleaseLock(ctx, c.lockName, lock.Owner); err != nil {
		c.logger.Warn("stale lock release failed", slog.String("lock", c.lockName), slog.Any("error", err))
	} else {
		c.logger.Info("reclaimed abandoned refresh lock",
			slog.String("lock", c.lockName),
			slog.String("owner", lock.Owner),
			slog.Duration("age", age),
		)
	}
	return false
}

// Refresh fetches the full collection under the lock and replaces the cache
// entry. The lock is released on every path; a failed fetch leaves the
// previous entry untouched.
func (c *Coordinator) Refresh(ctx context.Context) ([]ticket.Ticket, error) {
	if c.Locked(ctx) {
		return nil, ErrRefreshInProgress
	}

	lock := cache.Lock{Name: c.lockName, Owner: uuid.NewString(), CreatedAt: c.now()}
	if err := c.locks.AcquireLock(ctx, lock); err != nil {
		if errors.Is(err, cache.ErrLockHeld) {
			return nil, ErrRefreshInProgress
		}
		return nil, fmt.Errorf("refresh: acquire lock: %w", err)
	}
	defer func() {
		if err := c.locks.ReleaseLock(context.WithoutCancel(ctx), c.lockName, lock.Owner); err != nil {
			c.logger.Error("lock release failed", slog.String("lock", c.lockName), slog.Any("error", err))
		}
	}()

	c.logger.Debug("refresh started", slog.String("owner", lock.Owner))

	tickets, err := c.source.FetchAll(ctx, c.jql, c.limit)
	if err != nil {
		return nil, fmt.Errorf("refresh: fetch: %w", err)
	}

	entry := &cache.Entry{Key: c.key, WrittenAt: c.now(), Tickets: tickets}
	if err := c.store.Set(ctx, entry); err != nil {
		return nil, fmt.Errorf("refresh: write cache: %w", err)
	}

	c.logger.Info("cache refreshed", slog.String("key", c.key), slog.Int("count", len(tickets)))
	return tickets, nil
}

func (c *Coordinator) schedule() {
	c.scheduler.Schedule(func(ctx context.Context) {
		if _, err := c.Refresh(ctx); err != nil {
			if errors.Is(err, ErrRefreshInProgress) {
				c.logger.Debug("background refresh skipped", slog.Any("error", err))
				return
			}
			c.logFailure("background refresh failed", err)
		}
	})
}

// logFailure logs transient tracker errors (rate limits, 5xx) at warn and
// everything else at error.
func (c *Coordinator) logFailure(msg string, err error) {
	var temp interface{ Temporary() bool }
	if errors.As(err, &temp) && temp.Temporary() {
		c.logger.Warn(msg, slog.Bool("transient", true), slog.Any("error", err))
		return
	}
	c.logger.Error(msg, slog.Any("error", err))
}
