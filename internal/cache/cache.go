// Package cache persists the last successful ticket collection and the
// advisory lock that keeps refreshes mutually exclusive.
package cache

import (
	"context"
	"errors"
	"time"

	"github.com/ylchen07/ticketq/internal/ticket"
)

// ErrLockHeld is returned by AcquireLock when the lock already exists.
var ErrLockHeld = errors.New("cache: lock held")

// Entry is one cached ticket collection. Entries are only ever replaced
// whole; staleness is computed at read time.
type Entry struct {
	Key       string          `cbor:"1,keyasint"`
	WrittenAt time.Time       `cbor:"2,keyasint"`
	Tickets   []ticket.Ticket `cbor:"3,keyasint"`
}

// Empty reports whether there is nothing to serve.
func (e *Entry) Empty() bool {
	return e == nil || len(e.Tickets) == 0
}

// Age is the time elapsed since the entry was written.
func (e *Entry) Age(now time.Time) time.Duration {
	return now.Sub(e.WrittenAt)
}

// Stale reports whether the entry is older than ttl.
func (e *Entry) Stale(now time.Time, ttl time.Duration) bool {
	return e.Age(now) > ttl
}

// Store reads and replaces cache entries. Get ignores expiry and returns
// (nil, nil) when no entry exists.
type Store interface {
	Get(ctx context.Context, key string) (*Entry, error)
	Set(ctx context.Context, entry *Entry) error
}

// Lock is a named, timestamped refresh marker.
type Lock struct {
	Name      string    `cbor:"1,keyasint"`
	Owner     string    `cbor:"2,keyasint"`
	CreatedAt time.Time `cbor:"3,keyasint"`
}

// Age is the time elapsed since the lock was created.
func (l *Lock) Age(now time.Time) time.Duration {
	return now.Sub(l.CreatedAt)
}

// LockStore holds refresh locks. AcquireLock is create-if-absent and returns
// ErrLockHeld when the lock exists; ReadLock returns (nil, nil) when absent.
// ReleaseLock deletes the lock only while it is still held by owner, so a
// lock someone else acquired in the meantime survives. It is idempotent.
type LockStore interface {
	AcquireLock(ctx context.Context, lock Lock) error
	ReadLock(ctx context.Context, name string) (*Lock, error)
	ReleaseLock(ctx context.Context, name, owner string) error
}

func copyTickets(in []ticket.Ticket) []ticket.Ticket {
	if in == nil {
		return nil
	}
	return append([]ticket.Ticket(nil), in...)
}
