// Package ratelimit provides a sliding-window rate limiter keyed by logical
// bucket names (e.g. "edgar", "quote:alpha"). Acquire blocks until the
// trailing window has a free slot; it never rejects.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// bucket tracks admission timestamps for one logical bucket.
// Timestamps are monotonic non-decreasing and trimmed on access, so memory
// stays O(limit) per bucket.
type bucket struct {
	mu     sync.Mutex
	stamps []time.Time
}

// Limiter is a process-local sliding-window limiter. Cross-process limiting
// is an external collaborator with the same Acquire contract.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	now     func() time.Time
	sleep   func(ctx context.Context, d time.Duration) error
}

// New creates an empty limiter.
func New() *Limiter {
	return &Limiter{
		buckets: make(map[string]*bucket),
		now:     time.Now,
		sleep:   sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (l *Limiter) bucket(name string) *bucket {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.buckets[name]
	if !ok {
		b = &bucket{}
		l.buckets[name] = b
	}
	return b
}

// Acquire blocks until the bucket's trailing window has fewer than limit
// admissions, then records one. Returns the context error on cancellation.
// The guarantee: at any observation point, admissions in the trailing window
// do not exceed limit.
func (l *Limiter) Acquire(ctx context.Context, name string, limit int, window time.Duration) error {
	if limit <= 0 || window <= 0 {
		return nil
	}
	b := l.bucket(name)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		b.mu.Lock()
		now := l.now()
		cutoff := now.Add(-window)

		// Trim expired admissions from the head.
		trim := 0
		for trim < len(b.stamps) && !b.stamps[trim].After(cutoff) {
			trim++
		}
		if trim > 0 {
			b.stamps = append(b.stamps[:0], b.stamps[trim:]...)
		}

		if len(b.stamps) < limit {
			b.stamps = append(b.stamps, now)
			b.mu.Unlock()
			return nil
		}

		// Window full — the oldest admission expires first.
		wait := b.stamps[0].Add(window).Sub(now)
		b.mu.Unlock()

		if wait <= 0 {
			continue
		}
		if err := l.sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// Pending returns the current admission count in the bucket's trailing
// window. Intended for diagnostics and tests.
func (l *Limiter) Pending(name string, window time.Duration) int {
	b := l.bucket(name)
	b.mu.Lock()
	defer b.mu.Unlock()
	cutoff := l.now().Add(-window)
	n := 0
	for _, ts := range b.stamps {
		if ts.After(cutoff) {
			n++
		}
	}
	return n
}
