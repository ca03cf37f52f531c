// Package ratelimit provides a fixed-window request limiter keyed by scope,
// and HTTP middleware that rejects requests over the limit with 429.
package ratelimit
