// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// Tests for the session cache

package study

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRegistry() Registry {
	return NewRegistry(DefaultArms, DefaultFeatureWeights(), NewNopClassifier())
}

// =============================================================================
// Session Semantics Tests
// =============================================================================

func TestSessionCache_StableWithinSession(t *testing.T) {
	cache := NewSessionCache(testRegistry(), CacheConfig{Timeout: 30 * time.Minute})
	now := time.Now()

	first, sinceLast := cache.Resolve("user-a", now)
	assert.Equal(t, time.Duration(0), sinceLast)

	// Repeated requests inside the window keep the same arm.
	for i := 1; i <= 10; i++ {
		arm, gap := cache.Resolve("user-a", now.Add(time.Duration(i)*time.Minute))
		assert.Equal(t, first, arm)
		assert.Equal(t, time.Minute, gap)
	}
}

func TestSessionCache_SlidingWindowRefresh(t *testing.T) {
	cache := NewSessionCache(testRegistry(), CacheConfig{Timeout: 10 * time.Minute})
	now := time.Now()

	first, _ := cache.Resolve("user-a", now)

	// Each request lands 9 minutes after the previous one; no single gap
	// exceeds the timeout, so the session never expires even though the
	// total span is far beyond it.
	for i := 1; i <= 20; i++ {
		arm, _ := cache.Resolve("user-a", now.Add(time.Duration(i*9)*time.Minute))
		assert.Equal(t, first, arm)
	}
}

func TestSessionCache_FreshDrawAfterTimeout(t *testing.T) {
	cache := NewSessionCache(testRegistry(), CacheConfig{Timeout: 10 * time.Minute})
	now := time.Now()

	draws := 0
	cache.randIndex = func(n int) int {
		draws++
		return 0
	}

	cache.Resolve("user-a", now)
	require.Equal(t, 1, draws)

	// Inside the window: no new draw.
	cache.Resolve("user-a", now.Add(5*time.Minute))
	assert.Equal(t, 1, draws)

	// Past the window: fresh draw, zero elapsed.
	_, sinceLast := cache.Resolve("user-a", now.Add(16*time.Minute))
	assert.Equal(t, 2, draws)
	assert.Equal(t, time.Duration(0), sinceLast)
}

func TestSessionCache_IndependentUsers(t *testing.T) {
	cache := NewSessionCache(testRegistry(), CacheConfig{})
	now := time.Now()

	next := 0
	cache.randIndex = func(n int) int {
		i := next % n
		next++
		return i
	}

	armA, _ := cache.Resolve("user-a", now)
	armB, _ := cache.Resolve("user-b", now)
	assert.NotEqual(t, armA, armB)

	// Each user keeps their own assignment.
	again, _ := cache.Resolve("user-a", now.Add(time.Minute))
	assert.Equal(t, armA, again)
}

// =============================================================================
// Capacity Self-Tuning Tests
// =============================================================================

func TestSessionCache_GrowsUnderSustainedLoad(t *testing.T) {
	cache := NewSessionCache(testRegistry(), CacheConfig{Capacity: 4})
	now := time.Now()

	for i := 0; i < 5; i++ {
		cache.Resolve(fmt.Sprintf("user-%d", i), now)
	}

	// Fifth live session pushed occupancy over the target; nothing was
	// expired, so the target grows by the previous target.
	assert.Equal(t, 5, cache.Len())
	assert.Equal(t, 9, cache.Capacity())
}

func TestSessionCache_ShrinksAfterLoadDrops(t *testing.T) {
	cache := NewSessionCache(testRegistry(), CacheConfig{
		Timeout:  10 * time.Minute,
		Capacity: 4,
	})
	now := time.Now()

	for i := 0; i < 4; i++ {
		cache.Resolve(fmt.Sprintf("old-%d", i), now)
	}
	require.Equal(t, 4, cache.Capacity())

	// One new session past the timeout evicts the four expired ones; the
	// survivor count is under half the target, so the target halves.
	later := now.Add(11 * time.Minute)
	cache.Resolve("fresh", later)

	assert.Equal(t, 1, cache.Len())
	assert.Equal(t, 2, cache.Capacity())
}

func TestSessionCache_ConcurrentResolve(t *testing.T) {
	cache := NewSessionCache(testRegistry(), CacheConfig{Capacity: 8})
	now := time.Now()

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			user := fmt.Sprintf("user-%d", i%8)
			for j := 0; j < 100; j++ {
				cache.Resolve(user, now.Add(time.Duration(j)*time.Second))
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 8, cache.Len())
}
