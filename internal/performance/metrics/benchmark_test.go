package metrics

import (
	"math"
	"math/rand"
	"sort"
	"testing"
	"time"
)

func BenchmarkEngine_RecordRequest(b *testing.B) {
	engine := NewEngine()
	defer engine.Stop()

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		engine.RecordRequest(time.Duration(i%1000)*time.Microsecond, false, 11)
	}
}

// BenchmarkEngine_RecordRequest_Parallel models many VUs recording at once.
func BenchmarkEngine_RecordRequest_Parallel(b *testing.B) {
	engine := NewEngine()
	defer engine.Stop()

	b.ResetTimer()
	b.ReportAllocs()

	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			engine.RecordRequest(time.Duration(i%1000)*time.Microsecond, i%100 == 0, 11)
			i++
		}
	})
}

func BenchmarkEngine_RecordCheck_Parallel(b *testing.B) {
	engine := NewEngine()
	defer engine.Stop()

	b.ResetTimer()
	b.ReportAllocs()

	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			engine.RecordCheck("status is 200", true)
			engine.RecordCheck("response body is correct", true)
		}
	})
}

func BenchmarkEngine_GetSnapshot(b *testing.B) {
	engine := NewEngine()
	defer engine.Stop()

	for i := 0; i < 10000; i++ {
		engine.RecordRequest(time.Duration(i)*time.Microsecond, false, 11)
	}

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		_ = engine.GetSnapshot("avg", "min", "med", "max", "p(95)", "p(99)")
	}
}

// TestLatencyAccuracy_P99 verifies the reported p(99) is within 1% of the
// exact value computed from the raw samples.
func TestLatencyAccuracy_P99(t *testing.T) {
	engine := NewEngine()
	defer engine.Stop()

	const numSamples = 10000
	latencies := make([]time.Duration, numSamples)
	for i := range latencies {
		if i < numSamples*95/100 {
			latencies[i] = time.Duration(1000+rand.Intn(9000)) * time.Microsecond
		} else {
			latencies[i] = time.Duration(10000+rand.Intn(490000)) * time.Microsecond
		}
	}
	for _, d := range latencies {
		engine.RecordRequest(d, false, 0)
	}

	snap := engine.GetSnapshot("p(99)")
	reported := snap.Metric(HTTPReqDuration).Values["p(99)"]

	sorted := append([]time.Duration(nil), latencies...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	actual := float64(sorted[int(math.Ceil(numSamples*0.99))-1]) / float64(time.Millisecond)

	errorPercent := math.Abs(reported-actual) / actual * 100
	t.Logf("p(99): actual=%.3fms reported=%.3fms error=%.3f%%", actual, reported, errorPercent)
	if errorPercent > 1.0 {
		t.Errorf("p(99) error %.2f%% exceeds 1%%", errorPercent)
	}
}
