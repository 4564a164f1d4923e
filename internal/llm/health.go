// Package llm provides the provider pool used for all model-backed operations.
package llm

import (
	"strings"
	"time"
)

// Cooldown parameters. Quota errors get a long cooldown that grows with
// consecutive failures; generic errors get a short exponential backoff.
const (
	quotaCooldownBase   = 300 * time.Second
	quotaCooldownStep   = 60 * time.Second
	quotaCooldownMax    = 1800 * time.Second
	genericCooldownBase = 30 * time.Second
	genericCooldownMax  = 300 * time.Second

	// maxConsecutiveFailures disables a provider outright until its
	// cooldown expires.
	maxConsecutiveFailures = 3

	// rateWindow is the sliding window used for per-provider rate limiting.
	rateWindow = 60 * time.Second
)

// quotaErrorMarkers are matched case-insensitively against error text to
// classify quota/rate-limit failures.
var quotaErrorMarkers = []string{"429", "quota", "rate limit", "resourceexhausted", "billing"}

// isQuotaError classifies an error as quota/rate-limit versus generic.
func isQuotaError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range quotaErrorMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// health tracks one provider's availability. All access goes through the
// pool's mutex.
type health struct {
	requestTimestamps   []time.Time
	consecutiveFailures int
	available           bool
	cooldownUntil       time.Time
}

func newHealth() health {
	return health{available: true}
}

// canCall reports whether the provider may be invoked at now. An expired
// cooldown resets the failure counter and re-enables the provider.
func (h *health) canCall(now time.Time, rateLimit int) bool {
	if !h.cooldownUntil.IsZero() {
		if now.Before(h.cooldownUntil) {
			return false
		}
		// Cooldown expired: back to healthy.
		h.cooldownUntil = time.Time{}
		h.consecutiveFailures = 0
		h.available = true
	}
	if !h.available {
		return false
	}
	if rateLimit > 0 && h.requestsInWindow(now) >= rateLimit {
		return false
	}
	return true
}

// requestsInWindow prunes entries older than the sliding window and returns
// the remaining count.
func (h *health) requestsInWindow(now time.Time) int {
	cutoff := now.Add(-rateWindow)
	kept := h.requestTimestamps[:0]
	for _, ts := range h.requestTimestamps {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	h.requestTimestamps = kept
	return len(kept)
}

// recordSuccess appends the call timestamp, resets failure counters, and
// clears any cooldown.
func (h *health) recordSuccess(now time.Time) {
	h.requestTimestamps = append(h.requestTimestamps, now)
	h.consecutiveFailures = 0
	h.cooldownUntil = time.Time{}
	h.available = true
}

// recordFailure increments failure counters and applies the cooldown for the
// error class.
func (h *health) recordFailure(now time.Time, err error) {
	h.consecutiveFailures++
	var cooldown time.Duration
	if isQuotaError(err) {
		cooldown = quotaCooldownBase + time.Duration(h.consecutiveFailures)*quotaCooldownStep
		if cooldown > quotaCooldownMax {
			cooldown = quotaCooldownMax
		}
	} else if h.consecutiveFailures > 10 {
		cooldown = genericCooldownMax
	} else {
		cooldown = genericCooldownBase << (h.consecutiveFailures - 1)
		if cooldown > genericCooldownMax {
			cooldown = genericCooldownMax
		}
	}
	h.cooldownUntil = now.Add(cooldown)
	if h.consecutiveFailures >= maxConsecutiveFailures {
		h.available = false
	}
}

// cooldownRemaining returns how long until the provider becomes eligible
// again, zero when it already is.
func (h *health) cooldownRemaining(now time.Time) time.Duration {
	if h.cooldownUntil.IsZero() || now.After(h.cooldownUntil) {
		return 0
	}
	return h.cooldownUntil.Sub(now)
}
