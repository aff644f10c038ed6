// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package study

import (
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sort"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// =============================================================================
// Session Cache
// =============================================================================

// entry is one user's arm assignment.
type entry struct {
	lastAccess time.Time
	arm        Arm
}

// SessionCache maps user identity to (last access time, assigned arm).
//
// # Description
//
// SessionCache implements sliding-window session semantics: every Resolve
// call refreshes the last-access time, so a session never expires while
// the user keeps completing. While a session is active the assigned arm
// never changes; after the timeout the next call draws a fresh arm
// uniformly at random.
//
// Capacity self-tunes. After an insertion pushes occupancy over the
// capacity target, a pruning pass drops every expired entry, then grows
// the target under sustained load or shrinks it toward half under freed
// load. Memory stays proportional to the recent concurrent-session count.
//
// # Thread Safety
//
// All methods are safe for concurrent use. The cache is the sole owner of
// its entries; all mutation goes through Resolve.
type SessionCache struct {
	mu       sync.Mutex
	entries  map[string]entry
	arms     []Arm
	capacity int
	timeout  time.Duration

	// randIndex picks a uniform index in [0, n). Overridable in tests.
	randIndex func(n int) int
}

// CacheConfig configures the session cache.
//
// Fields:
//   - Timeout: Session timeout. Default: 30 minutes.
//   - Capacity: Initial capacity target. Default: 128. The target adapts
//     at runtime; this only seeds it.
type CacheConfig struct {
	Timeout  time.Duration `yaml:"session_timeout"`
	Capacity int           `yaml:"cache_capacity"`
}

// UnmarshalYAML decodes the cache section, accepting Go duration strings
// ("15m", "1h") for session_timeout.
func (c *CacheConfig) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		Timeout  string `yaml:"session_timeout"`
		Capacity int    `yaml:"cache_capacity"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	if raw.Timeout != "" {
		d, err := time.ParseDuration(raw.Timeout)
		if err != nil {
			return fmt.Errorf("parse session_timeout: %w", err)
		}
		c.Timeout = d
	}
	if raw.Capacity > 0 {
		c.Capacity = raw.Capacity
	}
	return nil
}

// DefaultCacheConfig returns production defaults.
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		Timeout:  30 * time.Minute,
		Capacity: 128,
	}
}

// NewSessionCache creates a session cache drawing from the registry's arms.
//
// Description:
//
//	Zero-valued config fields take defaults. The arm pool is snapshotted
//	and sorted at construction so draws are uniform over a stable set.
//
// Inputs:
//
//	reg - Arm registry. Must not be empty.
//	cfg - Cache configuration. Zero values use defaults.
//
// Outputs:
//
//	*SessionCache - Ready for concurrent use.
func NewSessionCache(reg Registry, cfg CacheConfig) *SessionCache {
	def := DefaultCacheConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.Capacity <= 0 {
		cfg.Capacity = def.Capacity
	}

	arms := reg.Arms()
	sort.Slice(arms, func(i, j int) bool { return arms[i] < arms[j] })

	return &SessionCache{
		entries:   make(map[string]entry),
		arms:      arms,
		capacity:  cfg.Capacity,
		timeout:   cfg.Timeout,
		randIndex: rand.IntN,
	}
}

// Resolve returns the user's arm and the elapsed time since their last
// completion, refreshing the session window.
//
// # Description
//
// If the user has an entry and the gap since their last access is within
// the session timeout, the current arm is returned with the elapsed gap.
// Otherwise a fresh arm is drawn uniformly at random and the elapsed time
// is zero (fresh session). The last-access time is unconditionally
// refreshed to now, and an over-capacity insertion triggers a prune pass.
//
// # Inputs
//
//   - user: Opaque user identity. Must not be empty.
//   - now: Wall-clock time of the request.
//
// # Outputs
//
//   - Arm: The user's assigned arm for this session.
//   - time.Duration: Time since the user's previous completion; zero for
//     a fresh session.
//
// # Thread Safety
//
// Safe for concurrent use. Calls for the same user are serialized, so a
// user's own successive requests never observe an arm flip mid-session.
func (c *SessionCache) Resolve(user string, now time.Time) (Arm, time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var (
		arm       Arm
		sinceLast time.Duration
	)
	if e, ok := c.entries[user]; ok && now.Sub(e.lastAccess) < c.timeout {
		arm = e.arm
		sinceLast = now.Sub(e.lastAccess)
	} else {
		arm = c.arms[c.randIndex(len(c.arms))]
		sinceLast = 0
	}

	c.entries[user] = entry{lastAccess: now, arm: arm}
	if len(c.entries) > c.capacity {
		c.prune(now)
	}

	return arm, sinceLast
}

// prune drops expired sessions and retunes the capacity target.
// Caller must hold c.mu.
func (c *SessionCache) prune(now time.Time) {
	for user, e := range c.entries {
		if now.Sub(e.lastAccess) > c.timeout {
			delete(c.entries, user)
		}
	}

	switch {
	case len(c.entries) > c.capacity:
		// Still over target after dropping expired sessions: sustained
		// load, grow by the previous target.
		newSize := len(c.entries) + c.capacity
		slog.Info("growing session cache", "capacity", newSize, "occupancy", len(c.entries))
		c.capacity = newSize
	case len(c.entries) < c.capacity/2:
		newSize := c.capacity / 2
		slog.Info("shrinking session cache", "capacity", newSize, "occupancy", len(c.entries))
		c.capacity = newSize
	default:
		slog.Debug("pruned session cache", "occupancy", len(c.entries), "capacity", c.capacity)
	}
}

// Len returns the current number of tracked sessions.
func (c *SessionCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Capacity returns the current capacity target.
func (c *SessionCache) Capacity() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.capacity
}
