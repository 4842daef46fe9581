package ratelimit

import (
	"sync"
	"time"
)

// Scope identifies the dimension a bucket is keyed under.
type Scope string

// Recognized scopes, evaluated in this order during admission.
const (
	ScopeAPIKey Scope = "api-key"
	ScopeTenant Scope = "tenant"
	ScopeRoute  Scope = "route"
)

// scopeOrder fixes the left-to-right evaluation order.
var scopeOrder = []Scope{ScopeAPIKey, ScopeTenant, ScopeRoute}

// Limit holds one scope's bucket parameters.
type Limit struct {
	// Capacity is the burst size.
	Capacity float64

	// RefillPerSec is the sustained rate in tokens per second.
	RefillPerSec float64
}

// enabled reports whether this scope participates in admission.
func (l Limit) enabled() bool {
	return l.Capacity > 0 && l.RefillPerSec > 0
}

// Config maps scopes to their limits. Scopes without an entry (or with a
// zero limit) are not enforced.
type Config struct {
	Limits map[Scope]Limit
}

// Decision is the outcome of an admission attempt.
type Decision struct {
	// Allowed is true when every applicable bucket admitted the request.
	Allowed bool

	// Scope is the first denied scope when Allowed is false.
	Scope Scope

	// RetryAfter is ceil((1 − tokens) / refill) for the first denied bucket.
	RetryAfter time.Duration

	// Limit and Remaining describe the most specific applicable bucket,
	// for the X-RateLimit response headers.
	Limit     int64
	Remaining int64
}

// Limiter admits requests against token buckets keyed by (scope, key).
// Buckets are created on first sight of a key and expired by time-based GC.
//
// All buckets for a request must admit, evaluated left-to-right in scope
// order; a denial refunds the buckets consumed earlier in the same call so
// no token leaks.
type Limiter struct {
	cfg Config

	mu      sync.RWMutex
	buckets map[bucketKey]*bucketEntry

	// now is the clock; replaced in tests.
	now func() time.Time
}

type bucketKey struct {
	scope Scope
	key   string
}

type bucketEntry struct {
	bucket   *TokenBucket
	lastSeen time.Time
}

// NewLimiter creates a limiter with the given per-scope limits.
func NewLimiter(cfg Config) *Limiter {
	return NewLimiterWithClock(cfg, time.Now)
}

// NewLimiterWithClock creates a limiter with an injected clock for tests.
func NewLimiterWithClock(cfg Config, now func() time.Time) *Limiter {
	return &Limiter{
		cfg:     cfg,
		buckets: make(map[bucketKey]*bucketEntry),
		now:     now,
	}
}

// Keys carries the per-request key for each scope. Empty keys skip that
// scope.
type Keys struct {
	APIKey string
	Tenant string
	Route  string
}

func (k Keys) forScope(s Scope) string {
	switch s {
	case ScopeAPIKey:
		return k.APIKey
	case ScopeTenant:
		return k.Tenant
	case ScopeRoute:
		return k.Route
	}
	return ""
}

// Admit consumes one token from each applicable bucket. On denial, earlier
// consumptions are refunded and the decision names the first denied scope.
func (l *Limiter) Admit(keys Keys) Decision {
	type taken struct {
		bucket *TokenBucket
	}
	var consumed []taken

	decision := Decision{Allowed: true, Limit: -1, Remaining: -1}

	for _, scope := range scopeOrder {
		limit := l.cfg.Limits[scope]
		key := keys.forScope(scope)
		if !limit.enabled() || key == "" {
			continue
		}

		bucket := l.bucket(scope, key, limit)

		if !bucket.Take(1) {
			for _, t := range consumed {
				t.bucket.Refund(1)
			}
			return Decision{
				Allowed:    false,
				Scope:      scope,
				RetryAfter: bucket.RetryAfter(),
				Limit:      int64(limit.Capacity),
				Remaining:  bucket.Remaining(),
			}
		}

		consumed = append(consumed, taken{bucket: bucket})

		// The first enforced scope is the most specific; its numbers feed
		// the response headers.
		if decision.Limit < 0 {
			decision.Limit = int64(limit.Capacity)
			decision.Remaining = bucket.Remaining()
		}
	}

	return decision
}

// bucket returns the bucket for (scope, key), creating it full on first
// sight.
func (l *Limiter) bucket(scope Scope, key string, limit Limit) *TokenBucket {
	bk := bucketKey{scope: scope, key: key}

	l.mu.RLock()
	entry, ok := l.buckets[bk]
	l.mu.RUnlock()
	if ok {
		l.touch(entry)
		return entry.bucket
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	// Re-check under the write lock: another goroutine may have won.
	if entry, ok := l.buckets[bk]; ok {
		entry.lastSeen = l.now()
		return entry.bucket
	}

	entry = &bucketEntry{
		bucket:   NewTokenBucketWithClock(limit.Capacity, limit.RefillPerSec, l.now),
		lastSeen: l.now(),
	}
	l.buckets[bk] = entry
	return entry.bucket
}

func (l *Limiter) touch(entry *bucketEntry) {
	l.mu.Lock()
	entry.lastSeen = l.now()
	l.mu.Unlock()
}

// Status returns the most specific applicable bucket's limit, remaining
// tokens and the time the bucket will be full again, without consuming a
// token. Backs the X-RateLimit response headers.
func (l *Limiter) Status(keys Keys) (limit, remaining int64, reset time.Time) {
	for _, scope := range scopeOrder {
		sl := l.cfg.Limits[scope]
		key := keys.forScope(scope)
		if !sl.enabled() || key == "" {
			continue
		}

		bucket := l.bucket(scope, key, sl)
		remaining = bucket.Remaining()
		limit = int64(sl.Capacity)

		missing := sl.Capacity - float64(remaining)
		seconds := missing / sl.RefillPerSec
		reset = l.now().Add(time.Duration(seconds * float64(time.Second)))
		return limit, remaining, reset
	}
	return 0, 0, l.now()
}

// Sweep removes buckets idle for at least maxIdle. A bucket idle that long
// has refilled to capacity, so dropping it is observationally equivalent to
// keeping it. Returns the number of buckets removed.
func (l *Limiter) Sweep(maxIdle time.Duration) int {
	cutoff := l.now().Add(-maxIdle)

	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for key, entry := range l.buckets {
		if entry.lastSeen.Before(cutoff) {
			delete(l.buckets, key)
			removed++
		}
	}
	return removed
}

// Size returns the current number of live buckets.
func (l *Limiter) Size() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.buckets)
}
