// Package metrics collects the built-in load-test metrics.
package metrics

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

// Built-in metric names.
const (
	Checks            = "checks"
	HTTPReqs          = "http_reqs"
	HTTPReqFailed     = "http_req_failed"
	HTTPReqDuration   = "http_req_duration"
	Iterations        = "iterations"
	IterationDuration = "iteration_duration"
	DroppedIterations = "dropped_iterations"
	DataReceived      = "data_received"
	VUs               = "vus"
	VUsMax            = "vus_max"
)

// Kind is how a metric aggregates its samples.
type Kind string

const (
	// KindCounter sums samples; exposes count and rate (per second).
	KindCounter Kind = "counter"
	// KindRate tracks the fraction of non-zero samples.
	KindRate Kind = "rate"
	// KindTrend keeps a latency distribution.
	KindTrend Kind = "trend"
	// KindGauge keeps the latest value plus its min and max.
	KindGauge Kind = "gauge"
)

var builtinKinds = map[string]Kind{
	Checks:            KindRate,
	HTTPReqs:          KindCounter,
	HTTPReqFailed:     KindRate,
	HTTPReqDuration:   KindTrend,
	Iterations:        KindCounter,
	IterationDuration: KindTrend,
	DroppedIterations: KindCounter,
	DataReceived:      KindCounter,
	VUs:               KindGauge,
	VUsMax:            KindGauge,
}

// KindOf reports the kind of a built-in metric.
func KindOf(name string) (Kind, bool) {
	k, ok := builtinKinds[name]
	return k, ok
}

// Engine collects the built-in metrics of a single test run.
//
// Counters are atomic, trends sit behind a mutex because HDR histograms
// are not safe for concurrent writes. Engine is safe for concurrent use.
type Engine struct {
	reqDuration  *trend
	iterDuration *trend

	httpReqs      atomic.Int64
	httpReqFailed atomic.Int64
	iterations    atomic.Int64
	interrupted   atomic.Int64
	dropped       atomic.Int64
	dataReceived  atomic.Int64

	checksPassed atomic.Int64
	checksFailed atomic.Int64
	checkOrder   []string
	checkCounts  map[string]*checkCounter
	checksMu     sync.Mutex

	vus    gauge
	vusMax gauge

	startTime time.Time
	endTime   time.Time
	timeMu    sync.RWMutex
}

// EngineConfig contains configuration for the metrics engine.
type EngineConfig struct {
	// HistogramMin is the minimum recordable value in microseconds (default: 1)
	HistogramMin int64

	// HistogramMax is the maximum recordable value in microseconds (default: 1 hour)
	HistogramMax int64

	// HistogramSigFigs is the number of significant figures (default: 3)
	HistogramSigFigs int
}

// DefaultEngineConfig returns the default configuration.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		HistogramMin:     1,
		HistogramMax:     3600000000,
		HistogramSigFigs: 3,
	}
}

type checkCounter struct {
	passes atomic.Int64
	fails  atomic.Int64
}

// NewEngine creates a metrics engine with default histogram bounds.
func NewEngine() *Engine {
	config := DefaultEngineConfig()
	return &Engine{
		reqDuration:  newTrend(config),
		iterDuration: newTrend(config),
		checkCounts:  make(map[string]*checkCounter),
		startTime:    time.Now(),
	}
}

// Start marks the beginning of the measured run. Counter rates are
// computed against the time elapsed since Start.
func (e *Engine) Start() {
	e.timeMu.Lock()
	defer e.timeMu.Unlock()
	e.startTime = time.Now()
	e.endTime = time.Time{}
}

// Stop freezes the elapsed time used for rates.
func (e *Engine) Stop() {
	e.timeMu.Lock()
	defer e.timeMu.Unlock()
	if e.endTime.IsZero() {
		e.endTime = time.Now()
	}
}

// Elapsed returns the measured run time so far.
func (e *Engine) Elapsed() time.Duration {
	e.timeMu.RLock()
	defer e.timeMu.RUnlock()
	if e.endTime.IsZero() {
		return time.Since(e.startTime)
	}
	return e.endTime.Sub(e.startTime)
}

// RecordRequest records one HTTP request.
//
// A request counts as failed when failed is true; the caller decides
// (transport error or unexpected status).
func (e *Engine) RecordRequest(duration time.Duration, failed bool, bytes int64) {
	e.reqDuration.record(duration)
	e.httpReqs.Add(1)
	if failed {
		e.httpReqFailed.Add(1)
	}
	e.dataReceived.Add(bytes)
}

// RecordIteration records one completed or interrupted iteration.
func (e *Engine) RecordIteration(duration time.Duration, interrupted bool) {
	if interrupted {
		e.interrupted.Add(1)
		return
	}
	e.iterDuration.record(duration)
	e.iterations.Add(1)
}

// RecordDroppedIteration records an iteration start that never ran, either
// because no VU was free or because the scheduler fell behind.
func (e *Engine) RecordDroppedIteration() {
	e.dropped.Add(1)
}

// RecordCheck records the outcome of one named check.
func (e *Engine) RecordCheck(name string, passed bool) {
	e.checksMu.Lock()
	cc, ok := e.checkCounts[name]
	if !ok {
		cc = &checkCounter{}
		e.checkCounts[name] = cc
		e.checkOrder = append(e.checkOrder, name)
	}
	e.checksMu.Unlock()

	if passed {
		cc.passes.Add(1)
		e.checksPassed.Add(1)
	} else {
		cc.fails.Add(1)
		e.checksFailed.Add(1)
	}
}

// SetVUs updates the active VU gauge.
func (e *Engine) SetVUs(n int) {
	e.vus.set(int64(n))
}

// SetVUsMax updates the allocated VU gauge.
func (e *Engine) SetVUsMax(n int) {
	e.vusMax.set(int64(n))
}

// Reset clears all recorded samples and restarts the clock.
func (e *Engine) Reset() {
	e.reqDuration.reset()
	e.iterDuration.reset()

	e.httpReqs.Store(0)
	e.httpReqFailed.Store(0)
	e.iterations.Store(0)
	e.interrupted.Store(0)
	e.dropped.Store(0)
	e.dataReceived.Store(0)
	e.checksPassed.Store(0)
	e.checksFailed.Store(0)

	e.checksMu.Lock()
	e.checkOrder = nil
	e.checkCounts = make(map[string]*checkCounter)
	e.checksMu.Unlock()

	e.vus.reset()
	e.vusMax.reset()

	e.Start()
}

// GetSnapshot returns a point-in-time view of every built-in metric.
// Trend summaries carry the stats listed in trendStats (see DefaultTrendStats).
func (e *Engine) GetSnapshot(trendStats ...string) *Snapshot {
	if len(trendStats) == 0 {
		trendStats = DefaultTrendStats
	}

	elapsed := e.Elapsed()
	seconds := elapsed.Seconds()

	counter := func(name string, v int64) *MetricSummary {
		return &MetricSummary{Name: name, Kind: KindCounter, Values: map[string]float64{
			"count": float64(v),
			"rate":  perSecond(v, seconds),
		}}
	}

	snap := &Snapshot{
		Elapsed:     elapsed,
		Timestamp:   time.Now(),
		Metrics:     make(map[string]*MetricSummary),
		Checks:      e.checkSnapshot(),
		Interrupted: e.interrupted.Load(),
	}

	// failed is loaded first: RecordRequest bumps httpReqs before httpReqFailed.
	failed := e.httpReqFailed.Load()
	reqs := e.httpReqs.Load()

	snap.Metrics[HTTPReqs] = counter(HTTPReqs, reqs)
	snap.Metrics[Iterations] = counter(Iterations, e.iterations.Load())
	snap.Metrics[DroppedIterations] = counter(DroppedIterations, e.dropped.Load())
	snap.Metrics[DataReceived] = counter(DataReceived, e.dataReceived.Load())

	snap.Metrics[HTTPReqFailed] = rateSummary(HTTPReqFailed, failed, reqs-failed)
	snap.Metrics[Checks] = rateSummary(Checks, e.checksPassed.Load(), e.checksFailed.Load())

	snap.Metrics[HTTPReqDuration] = e.reqDuration.summary(HTTPReqDuration, trendStats)
	snap.Metrics[IterationDuration] = e.iterDuration.summary(IterationDuration, trendStats)

	snap.Metrics[VUs] = e.vus.summary(VUs)
	snap.Metrics[VUsMax] = e.vusMax.summary(VUsMax)

	return snap
}

func (e *Engine) checkSnapshot() []CheckResult {
	e.checksMu.Lock()
	defer e.checksMu.Unlock()

	result := make([]CheckResult, 0, len(e.checkOrder))
	for _, name := range e.checkOrder {
		cc := e.checkCounts[name]
		result = append(result, CheckResult{
			Name:   name,
			Passes: cc.passes.Load(),
			Fails:  cc.fails.Load(),
		})
	}
	return result
}

// rateSummary builds a rate metric where "passes" are the non-zero samples.
func rateSummary(name string, nonZero, zero int64) *MetricSummary {
	total := nonZero + zero
	r := 0.0
	if total > 0 {
		r = float64(nonZero) / float64(total)
	}
	return &MetricSummary{Name: name, Kind: KindRate, Values: map[string]float64{
		"rate":   r,
		"passes": float64(nonZero),
		"fails":  float64(zero),
	}}
}

func perSecond(n int64, seconds float64) float64 {
	if seconds <= 0 {
		return 0
	}
	return float64(n) / seconds
}

// trend is a mutex-guarded HDR histogram of microsecond values.
type trend struct {
	hist *hdrhistogram.Histogram
	mu   sync.Mutex
	min  int64
	max  int64
}

func newTrend(config EngineConfig) *trend {
	return &trend{
		hist: hdrhistogram.New(config.HistogramMin, config.HistogramMax, config.HistogramSigFigs),
		min:  config.HistogramMin,
		max:  config.HistogramMax,
	}
}

func (t *trend) record(d time.Duration) {
	micros := d.Microseconds()
	if micros < t.min {
		micros = t.min
	}
	if micros > t.max {
		micros = t.max
	}

	t.mu.Lock()
	// Values are clamped to the histogram range, so RecordValue cannot fail.
	_ = t.hist.RecordValue(micros)
	t.mu.Unlock()
}

func (t *trend) reset() {
	t.mu.Lock()
	t.hist.Reset()
	t.mu.Unlock()
}

func (t *trend) summary(name string, stats []string) *MetricSummary {
	t.mu.Lock()
	hist := hdrhistogram.Import(t.hist.Export())
	t.mu.Unlock()

	m := &MetricSummary{Name: name, Kind: KindTrend, Values: make(map[string]float64), hist: hist}
	m.Values["count"] = float64(hist.TotalCount())
	for _, stat := range stats {
		if v, err := m.trendValue(stat); err == nil {
			m.Values[stat] = v
		}
	}
	return m
}

type gauge struct {
	value atomic.Int64
	min   atomic.Int64
	max   atomic.Int64
	seen  atomic.Bool
}

func (g *gauge) set(v int64) {
	g.value.Store(v)
	if g.seen.CompareAndSwap(false, true) {
		g.min.Store(v)
		g.max.Store(v)
		return
	}
	for {
		cur := g.min.Load()
		if v >= cur || g.min.CompareAndSwap(cur, v) {
			break
		}
	}
	for {
		cur := g.max.Load()
		if v <= cur || g.max.CompareAndSwap(cur, v) {
			break
		}
	}
}

func (g *gauge) reset() {
	g.value.Store(0)
	g.min.Store(0)
	g.max.Store(0)
	g.seen.Store(false)
}

func (g *gauge) summary(name string) *MetricSummary {
	return &MetricSummary{Name: name, Kind: KindGauge, Values: map[string]float64{
		"value": float64(g.value.Load()),
		"min":   float64(g.min.Load()),
		"max":   float64(g.max.Load()),
	}}
}
