package verifier

import "time"

// RateLimitConfig bounds how often a single provider may request
// challenges. Only challenge generation is rate limited; proof
// verification and registration are not.
type RateLimitConfig struct {
	MaxRequestsPerMinute uint32
	MaxRequestsPerHour   uint32
	CleanupInterval      time.Duration
}

func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		MaxRequestsPerMinute: 30,
		MaxRequestsPerHour:   500,
		CleanupInterval:      5 * time.Minute,
	}
}

// requestTracker keeps the request timestamps of one provider over the
// last minute and hour. Trimming is lazy: it happens on the admission
// path once CleanupInterval has passed, and on CleanupExpired.
type requestTracker struct {
	minuteRequests []time.Time
	hourRequests   []time.Time
	lastCleanup    time.Time
}

func newRequestTracker(now time.Time) *requestTracker {
	return &requestTracker{lastCleanup: now}
}

func (rt *requestTracker) cleanup(now time.Time) {
	rt.minuteRequests = trimOlderThan(rt.minuteRequests, now.Add(-time.Minute))
	rt.hourRequests = trimOlderThan(rt.hourRequests, now.Add(-time.Hour))
	rt.lastCleanup = now
}

// canMakeRequest reports whether both windows are under their caps,
// trimming stale entries first when the cleanup interval has elapsed.
func (rt *requestTracker) canMakeRequest(now time.Time, cfg RateLimitConfig) bool {
	if now.Sub(rt.lastCleanup) > cfg.CleanupInterval {
		rt.cleanup(now)
	}
	return len(rt.minuteRequests) < int(cfg.MaxRequestsPerMinute) &&
		len(rt.hourRequests) < int(cfg.MaxRequestsPerHour)
}

func (rt *requestTracker) recordRequest(now time.Time) {
	rt.minuteRequests = append(rt.minuteRequests, now)
	rt.hourRequests = append(rt.hourRequests, now)
}

// trimOlderThan drops timestamps at or before cutoff. Entries are
// appended in call order, so the retained suffix stays ordered.
func trimOlderThan(ts []time.Time, cutoff time.Time) []time.Time {
	kept := ts[:0]
	for _, t := range ts {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	return kept
}
