/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0
*/

package ratelimit

import (
	"sync"
	"time"
)

// CounterStore holds fixed-window hit counters. Implementations must be safe
// for concurrent use; a shared external store lets several instances
// enforce one limit.
type CounterStore interface {
	// Incr adds a hit to key, starting a new window of the given length when
	// none is active, and returns the count and when the window resets.
	Incr(key string, window time.Duration, now time.Time) (count int, resetAt time.Time)
	// Decr refunds a hit, but only while the window ending at resetAt is
	// still the active one.
	Decr(key string, resetAt time.Time)
	// Sweep removes windows that ended before now.
	Sweep(now time.Time) int
}

// MemoryStore is the in-process CounterStore.
type MemoryStore struct {
	mu      sync.Mutex
	windows map[string]*window
}

type window struct {
	count   int
	resetAt time.Time
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{windows: make(map[string]*window)}
}

func (s *MemoryStore) Incr(key string, size time.Duration, now time.Time) (int, time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.windows[key]
	if !ok || !now.Before(w.resetAt) {
		w = &window{resetAt: now.Add(size)}
		s.windows[key] = w
	}
	w.count++
	return w.count, w.resetAt
}

func (s *MemoryStore) Decr(key string, resetAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if w, ok := s.windows[key]; ok && w.resetAt.Equal(resetAt) && w.count > 0 {
		w.count--
	}
}

func (s *MemoryStore) Sweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, w := range s.windows {
		if !now.Before(w.resetAt) {
			delete(s.windows, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked windows.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.windows)
}
