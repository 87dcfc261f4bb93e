package refresh

import (
	"context"
	"fmt"
	"time"
)

// Snapshot describes the cache and lock state without changing either.
type Snapshot struct {
	Key        string        `json:"key" yaml:"key"`
	Cached     bool          `json:"cached" yaml:"cached"`
	Count      int           `json:"count" yaml:"count"`
	WrittenAt  time.Time     `json:"writtenAt,omitempty" yaml:"writtenAt,omitempty"`
	Age        time.Duration `json:"age" yaml:"age"`
	Stale      bool          `json:"stale" yaml:"stale"`
	Locked     bool          `json:"locked" yaml:"locked"`
	LockOwner  string        `json:"lockOwner,omitempty" yaml:"lockOwner,omitempty"`
	LockAge    time.Duration `json:"lockAge,omitempty" yaml:"lockAge,omitempty"`
	LockStale  bool          `json:"lockStale,omitempty" yaml:"lockStale,omitempty"`
	CheckedAt  time.Time     `json:"checkedAt" yaml:"checkedAt"`
	TTL        time.Duration `json:"ttl" yaml:"ttl"`
	StaleAfter time.Duration `json:"lockStaleAfter" yaml:"lockStaleAfter"`
}

// Inspect reads the entry and lock. Unlike Locked it never reclaims.
func (c *Coordinator) Inspect(ctx context.Context) (*Snapshot, error) {
	now := c.now()
	snap := &Snapshot{Key: c.key, CheckedAt: now, TTL: c.ttl, StaleAfter: c.staleAfter}

	entry, err := c.store.Get(ctx, c.key)
	if err != nil {
		return nil, fmt.Errorf("refresh: inspect cache: %w", err)
	}
	if entry != nil {
		snap.Cached = true
		snap.Count = len(entry.Tickets)
		snap.WrittenAt = entry.WrittenAt
		snap.Age = entry.Age(now)
		snap.Stale = entry.Stale(now, c.ttl)
	}

	lock, err := c.locks.ReadLock(ctx, c.lockName)
	if err != nil {
		return nil, fmt.Errorf("refresh: inspect lock: %w", err)
	}
	if lock != nil {
		snap.Locked = true
		snap.LockOwner = lock.Owner
		snap.LockAge = lock.Age(now)
		snap.LockStale = snap.LockAge >= c.staleAfter
	}
	return snap, nil
}
