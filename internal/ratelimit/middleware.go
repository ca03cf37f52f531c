package ratelimit

import (
	"encoding/json"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/teemow/inboxtriage/internal/instrumentation"
)

type limitedResponse struct {
	Detail     string `json:"detail"`
	RetryAfter int    `json:"retry_after"`
}

// Middleware limits requests to next under scope.
//
// Rejected requests get 429 with a Retry-After header in whole seconds and
// a JSON body naming the wait, and are counted on metrics. Accepted requests
// reach next untouched. A nil limiter disables limiting.
//
// Usage:
//
//	mux.Handle("POST /classify", ratelimit.Middleware(limiter, "classify_emails", metrics, h))
func Middleware(limiter *FixedWindow, scope string, metrics *instrumentation.Metrics, next http.Handler) http.Handler {
	if limiter == nil {
		return next
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ok, retryAfter := limiter.Allow(scope)
		if ok {
			next.ServeHTTP(w, r)
			return
		}

		metrics.RecordRateLimitRejection(r.Context(), scope)

		seconds := RetryAfterSeconds(retryAfter)
		w.Header().Set("Retry-After", strconv.Itoa(seconds))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_ = json.NewEncoder(w).Encode(limitedResponse{
			Detail:     "Rate limit exceeded. Try again later.",
			RetryAfter: seconds,
		})
	})
}

// RetryAfterSeconds rounds d up to whole seconds, at least one.
func RetryAfterSeconds(d time.Duration) int {
	seconds := int(math.Ceil(d.Seconds()))
	if seconds < 1 {
		return 1
	}
	return seconds
}
