// Package ratelimit implements token-bucket admission keyed by
// (scope, key), with continuous fractional refill and time-based GC of
// idle buckets.
package ratelimit
