// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package ratelimit is the sliding-window rate limiter and ban tracker:
// one entry per source IP, a mutex-guarded map, and a ban deadline each
// entry carries once it trips a rule's threshold.
package ratelimit

import (
	"sync"
	"time"

	"grimm.is/ips/internal/clock"
)

// retentionWindow is how long a request timestamp is kept around before
// cleanup discards it, fixed at one hour regardless of any rule's own
// time_window_seconds.
const retentionWindow = time.Hour

type entry struct {
	requests []time.Time
	banUntil time.Time
	isBanned bool
}

// Limiter tracks request timestamps and bans per source IP. The zero value
// is not usable; construct with New.
type Limiter struct {
	mu    sync.Mutex
	clock clock.Clock
	ips   map[string]*entry
}

// New returns a Limiter that reads the current time from c.
func New(c clock.Clock) *Limiter {
	return &Limiter{clock: c, ips: make(map[string]*entry)}
}

// CheckRateLimit records a request from ip and reports whether it should be
// rate limited: either because ip is still under an earlier ban, or because
// it has made at least maxRequests requests within the trailing window
// seconds. A request that is allowed is recorded; a request that is
// rejected is not: only requests under the limit get appended to the
// tracked timestamps.
func (l *Limiter) CheckRateLimit(ip string, maxRequests, windowSeconds int) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.cleanup()
	now := l.clock.Now()

	e, ok := l.ips[ip]
	if ok && e.isBanned {
		if now.Before(e.banUntil) {
			return true
		}
		e.isBanned = false
	}

	if !ok {
		e = &entry{}
		l.ips[ip] = e
	}

	threshold := now.Add(-time.Duration(windowSeconds) * time.Second)
	count := 0
	for _, ts := range e.requests {
		if !ts.Before(threshold) {
			count++
		}
	}

	if count >= maxRequests {
		return true
	}

	e.requests = append(e.requests, now)
	return false
}

// BanIP bans ip for the given duration, starting now.
func (l *Limiter) BanIP(ip string, durationSeconds int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.ips[ip]
	if !ok {
		e = &entry{}
		l.ips[ip] = e
	}
	e.isBanned = true
	e.banUntil = l.clock.Now().Add(time.Duration(durationSeconds) * time.Second)
}

// IsBanned reports whether ip is currently under an active ban. A ban that
// has expired is cleared as a side effect.
func (l *Limiter) IsBanned(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.ips[ip]
	if !ok || !e.isBanned {
		return false
	}

	if l.clock.Now().Before(e.banUntil) {
		return true
	}
	e.isBanned = false
	return false
}

// GetRequestCount reports how many requests from ip fall within the
// trailing windowSeconds.
func (l *Limiter) GetRequestCount(ip string, windowSeconds int) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.ips[ip]
	if !ok {
		return 0
	}

	threshold := l.clock.Now().Add(-time.Duration(windowSeconds) * time.Second)
	count := 0
	for _, ts := range e.requests {
		if !ts.Before(threshold) {
			count++
		}
	}
	return count
}

// ActiveBans reports how many tracked IPs are currently under an active
// ban. Used by internal/metrics for the active_bans gauge; does not itself
// clear expired bans (that only happens via IsBanned/CheckRateLimit on the
// specific IP).
func (l *Limiter) ActiveBans() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	n := 0
	for _, e := range l.ips {
		if e.isBanned && now.Before(e.banUntil) {
			n++
		}
	}
	return n
}

// cleanup drops request timestamps older than retentionWindow and evicts
// any entry left with no timestamps and no active ban. Called at the start
// of every CheckRateLimit. Caller must hold l.mu.
func (l *Limiter) cleanup() {
	now := l.clock.Now()
	cutoff := now.Add(-retentionWindow)

	for ip, e := range l.ips {
		kept := e.requests[:0]
		for _, ts := range e.requests {
			if ts.After(cutoff) {
				kept = append(kept, ts)
			}
		}
		e.requests = kept

		if len(e.requests) == 0 && !e.isBanned {
			delete(l.ips, ip)
		}
	}
}
