// Package ratelimit implements per-sender sliding-window admission control
// for inbound guest messages.
//
// Two windows are enforced: a per-minute cap for burst protection and an
// hourly cap for sustained abuse. The hourly cap is checked first, so when
// both would trip the denial reports the hourly reason. An exemption list
// (staff numbers) bypasses all checks and can be swapped at runtime while
// checks are in flight.
package ratelimit

import (
	"strings"
	"sync"
	"time"
)

const (
	// DefaultPerMinute is the per-minute cap when none is configured.
	DefaultPerMinute = 20
	// DefaultPerHour is the hourly cap when none is configured.
	DefaultPerHour = 100

	minuteWindow = time.Minute
	hourWindow   = time.Hour
)

// Denial reasons surfaced in Decision.Reason.
const (
	ReasonHourly    = "hourly limit exceeded"
	ReasonPerMinute = "per-minute limit exceeded"
)

// Decision is the structured outcome of a rate check. A denial is a normal,
// expected outcome, not an error.
type Decision struct {
	// Allowed reports whether the message may proceed.
	Allowed bool
	// RetryAfter is how long until the oldest in-window timestamp exits the
	// violated window. Zero when Allowed.
	RetryAfter time.Duration
	// Reason names the violated window. Empty when Allowed.
	Reason string
}

// Limiter tracks request timestamps per sender and enforces both windows.
//
// Timestamps older than the hour window are pruned on every check, keeping
// memory bounded to O(hourly cap) per active sender. Limiter is safe for
// concurrent use.
type Limiter struct {
	mu        sync.Mutex
	perMinute int
	perHour   int
	entries   map[string][]time.Time // normalized sender key → timestamps

	exemptMu sync.RWMutex
	exempt   map[string]struct{}
}

// NewLimiter returns a Limiter enforcing perMinute and perHour caps.
// Non-positive caps fall back to the defaults.
func NewLimiter(perMinute, perHour int) *Limiter {
	if perMinute <= 0 {
		perMinute = DefaultPerMinute
	}
	if perHour <= 0 {
		perHour = DefaultPerHour
	}
	return &Limiter{
		perMinute: perMinute,
		perHour:   perHour,
		entries:   make(map[string][]time.Time),
		exempt:    make(map[string]struct{}),
	}
}

// SetExempt replaces the exemption list. It may be called at any time, e.g.
// after a staff-list reload; in-flight checks see either the old or the new
// snapshot, never a partial one.
func (l *Limiter) SetExempt(keys []string) {
	next := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		next[NormalizeKey(k)] = struct{}{}
	}

	l.exemptMu.Lock()
	l.exempt = next
	l.exemptMu.Unlock()
}

// Check decides whether a message from senderKey may proceed and, when
// allowed, records the current timestamp.
func (l *Limiter) Check(senderKey string) Decision {
	return l.checkAt(senderKey, time.Now())
}

// checkAt is the time-injectable core of Check (for testing).
func (l *Limiter) checkAt(senderKey string, now time.Time) Decision {
	key := NormalizeKey(senderKey)

	l.exemptMu.RLock()
	_, isExempt := l.exempt[key]
	l.exemptMu.RUnlock()
	if isExempt {
		return Decision{Allowed: true}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	// Prune everything older than the longest window.
	hourCutoff := now.Add(-hourWindow)
	existing := l.entries[key]
	valid := existing[:0] // reuse backing array
	for _, t := range existing {
		if t.After(hourCutoff) {
			valid = append(valid, t)
		}
	}
	l.entries[key] = valid

	// Hourly cap first — this order is the reported-reason contract when
	// both windows would trip.
	if len(valid) >= l.perHour {
		return Decision{
			Allowed:    false,
			RetryAfter: retryAfter(valid[0], hourWindow, now),
			Reason:     ReasonHourly,
		}
	}

	minuteCutoff := now.Add(-minuteWindow)
	var oldestInMinute time.Time
	inMinute := 0
	for _, t := range valid {
		if t.After(minuteCutoff) {
			if inMinute == 0 {
				oldestInMinute = t
			}
			inMinute++
		}
	}
	if inMinute >= l.perMinute {
		return Decision{
			Allowed:    false,
			RetryAfter: retryAfter(oldestInMinute, minuteWindow, now),
			Reason:     ReasonPerMinute,
		}
	}

	l.entries[key] = append(valid, now)
	return Decision{Allowed: true}
}

// SweepIdle removes senders with no timestamp inside the hour window. The
// shared background sweep calls this so entries for one-off senders do not
// accumulate forever.
func (l *Limiter) SweepIdle(now time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := now.Add(-hourWindow)
	removed := 0
	for key, stamps := range l.entries {
		idle := true
		for _, t := range stamps {
			if t.After(cutoff) {
				idle = false
				break
			}
		}
		if idle {
			delete(l.entries, key)
			removed++
		}
	}
	return removed
}

// retryAfter computes how long until oldest leaves the window, rounded up to
// a whole second so guest-facing notices never say "retry in 0 seconds".
func retryAfter(oldest time.Time, window time.Duration, now time.Time) time.Duration {
	d := oldest.Add(window).Sub(now)
	if d <= 0 {
		return time.Second
	}
	if rounded := d.Round(time.Second); rounded >= d {
		return rounded
	}
	return d.Round(time.Second) + time.Second
}

// NormalizeKey canonicalises a sender identifier to bare digits so the same
// phone number always maps to one entry regardless of formatting
// ("+60 12-345 6789" and "60123456789" are the same sender).
func NormalizeKey(key string) string {
	var b strings.Builder
	b.Grow(len(key))
	for _, r := range key {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return strings.TrimSpace(key)
	}
	return b.String()
}
