// Package rate paces iteration starts for arrival-rate executors.
package rate

import (
	"context"
	"math"
	"sync"
	"sync/atomic"
	"time"
)

// LeakyBucket schedules iteration starts at a fixed rate.
//
// The bucket answers "when should the next iteration start" rather than
// "how many tokens are left". The first start is immediate; every later
// start is placed exactly 1/rate after the previous one. If the caller
// falls behind, one start is released immediately and every other start
// that fell due meanwhile is counted as lost, so a stalled consumer never
// causes a burst and starts plus lost always track rate × elapsed.
//
// LeakyBucket is safe for concurrent use.
//
//	lb := NewLeakyBucket(100.0) // 100 starts per second
//	for lb.Wait(ctx) == nil {
//	    // start an iteration
//	}
type LeakyBucket struct {
	rate        float64   // Starts per second
	lastDrip    time.Time // Time of the last scheduled start
	accumulated float64   // Owed starts (fractional)
	mu          sync.Mutex

	totalStarts   atomic.Int64
	totalLost     atomic.Int64
	totalWaitTime atomic.Int64 // nanoseconds
}

// NewLeakyBucket creates a bucket releasing rate starts per second.
// A non-positive rate is treated as 1.
func NewLeakyBucket(rate float64) *LeakyBucket {
	if rate <= 0 {
		rate = 1.0
	}
	return &LeakyBucket{
		rate:        rate,
		lastDrip:    time.Now(),
		accumulated: 1.0,
	}
}

// PerTimeUnit converts "n iterations per timeUnit" into starts per second.
func PerTimeUnit(n int, timeUnit time.Duration) float64 {
	if timeUnit <= 0 {
		timeUnit = time.Second
	}
	return float64(n) / timeUnit.Seconds()
}

// Next reserves the next start and returns when it should happen.
// The returned time may be in the past when the caller is behind schedule.
func (lb *LeakyBucket) Next() time.Time {
	lb.mu.Lock()
	defer lb.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(lb.lastDrip).Seconds()
	if elapsed < 0 {
		elapsed = 0
	}

	lb.accumulated += elapsed * lb.rate

	if lb.accumulated >= 1.0 {
		// Release one start; the other whole starts that fell due are lost.
		// The fractional remainder carries over to keep the long-run rate.
		if lost := math.Floor(lb.accumulated) - 1; lost > 0 {
			lb.totalLost.Add(int64(lost))
			lb.accumulated -= lost
		}
		lb.accumulated -= 1.0
		lb.lastDrip = now
		lb.totalStarts.Add(1)
		return now
	}

	// Back-to-back reservations queue behind the last reserved slot.
	base := now
	if lb.lastDrip.After(now) {
		base = lb.lastDrip
	}

	deficit := 1.0 - lb.accumulated
	lb.accumulated = 0
	next := base.Add(time.Duration(deficit / lb.rate * float64(time.Second)))

	// lastDrip moves to the reserved slot so the sleep until then is not
	// counted a second time on the following call.
	lb.lastDrip = next

	lb.totalStarts.Add(1)
	lb.totalWaitTime.Add(int64(next.Sub(now)))

	return next
}

// Wait blocks until the next start or until ctx is done.
func (lb *LeakyBucket) Wait(ctx context.Context) error {
	wait := time.Until(lb.Next())
	if wait <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// GetRate returns the configured starts per second.
func (lb *LeakyBucket) GetRate() float64 {
	lb.mu.Lock()
	defer lb.mu.Unlock()
	return lb.rate
}

// Lost returns how many starts fell due while the caller was behind and
// were skipped instead of released.
func (lb *LeakyBucket) Lost() int64 {
	return lb.totalLost.Load()
}

// Stats returns counters describing the bucket's activity.
func (lb *LeakyBucket) Stats() LeakyBucketStats {
	return LeakyBucketStats{
		Rate:          lb.GetRate(),
		TotalStarts:   lb.totalStarts.Load(),
		TotalLost:     lb.totalLost.Load(),
		TotalWaitTime: time.Duration(lb.totalWaitTime.Load()),
	}
}

// LeakyBucketStats describes a LeakyBucket.
type LeakyBucketStats struct {
	Rate          float64       `json:"rate"`
	TotalStarts   int64         `json:"totalStarts"`
	TotalLost     int64         `json:"totalLost"`
	TotalWaitTime time.Duration `json:"totalWaitTime"`
}
