package verifier

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRequestTrackerWindows(t *testing.T) {
	cfg := RateLimitConfig{
		MaxRequestsPerMinute: 3,
		MaxRequestsPerHour:   5,
		CleanupInterval:      0,
	}
	now := time.Now()
	rt := newRequestTracker(now)

	for i := 0; i < 3; i++ {
		assert.True(t, rt.canMakeRequest(now, cfg))
		rt.recordRequest(now)
	}
	assert.False(t, rt.canMakeRequest(now, cfg), "minute cap reached")

	// Two minutes later the minute window has drained but the hour window
	// still counts the earlier requests.
	later := now.Add(2 * time.Minute)
	assert.True(t, rt.canMakeRequest(later, cfg))
	rt.recordRequest(later)
	rt.recordRequest(later)
	assert.False(t, rt.canMakeRequest(later, cfg), "hour cap reached")

	// Past the hour everything has drained.
	muchLater := now.Add(2 * time.Hour)
	assert.True(t, rt.canMakeRequest(muchLater, cfg))
}

func TestRequestTrackerLazyCleanup(t *testing.T) {
	cfg := RateLimitConfig{
		MaxRequestsPerMinute: 10,
		MaxRequestsPerHour:   100,
		CleanupInterval:      5 * time.Minute,
	}
	now := time.Now()
	rt := newRequestTracker(now)

	rt.recordRequest(now)
	rt.recordRequest(now)

	// Within the cleanup interval stale entries linger.
	soon := now.Add(2 * time.Minute)
	rt.canMakeRequest(soon, cfg)
	assert.Len(t, rt.minuteRequests, 2)

	// Once the interval elapses the check trims them.
	later := now.Add(6 * time.Minute)
	rt.canMakeRequest(later, cfg)
	assert.Empty(t, rt.minuteRequests)
	assert.Len(t, rt.hourRequests, 2)
}

func TestTrimOlderThan(t *testing.T) {
	now := time.Now()
	ts := []time.Time{now.Add(-2 * time.Hour), now.Add(-time.Minute), now}

	kept := trimOlderThan(ts, now.Add(-time.Hour))
	assert.Len(t, kept, 2)
	assert.True(t, kept[0].Equal(now.Add(-time.Minute)))
}
