package executor

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/wesleyorama2/hello-load/internal/performance"
	"github.com/wesleyorama2/hello-load/internal/performance/metrics"
	"github.com/wesleyorama2/hello-load/internal/performance/rate"
)

// ConstantArrivalRate maintains a fixed iteration start rate (open model).
//
// Iterations are started Rate times per TimeUnit regardless of how long
// earlier iterations take. Each start borrows a VU from a pool of
// PreAllocatedVUs (grown up to MaxVUs if configured higher). When every VU
// is busy the start is dropped and counted in dropped_iterations instead of
// delaying the schedule. Starts the scheduling loop itself fell behind on
// are counted there too.
//
// After Duration no new iterations start. Iterations still running get
// GracefulStop to finish, after which their context is cancelled.
//
//	config:
//	  executor: constant-arrival-rate
//	  rate: 1000          # iterations per timeUnit
//	  timeUnit: 1s
//	  duration: 1m
//	  preAllocatedVUs: 200
type ConstantArrivalRate struct {
	config    *Config
	scheduler *performance.VUScheduler
	metrics   *metrics.Engine
	logger    *zap.Logger

	bucket   atomic.Pointer[rate.LeakyBucket]
	lostSeen int64 // lost starts already reported; Run goroutine only

	// VU pool
	vuPool     chan *performance.VirtualUser
	currentVUs atomic.Int32
	activeVUs  atomic.Int32
	vuPoolMu   sync.Mutex

	startedAt  atomic.Int64 // unix nanos
	iterations atomic.Int64
	dropped    atomic.Int64
	running    atomic.Bool
	warned     atomic.Bool
	lagWarned  atomic.Bool

	cancelMu   sync.Mutex
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
}

// NewConstantArrivalRate creates a new constant arrival rate executor.
func NewConstantArrivalRate() *ConstantArrivalRate {
	return &ConstantArrivalRate{}
}

// Type returns the executor type.
func (e *ConstantArrivalRate) Type() Type {
	return TypeConstantArrivalRate
}

// Init validates the configuration and fills in defaults.
func (e *ConstantArrivalRate) Init(ctx context.Context, config *Config) error {
	if config.Type != TypeConstantArrivalRate {
		return fmt.Errorf("invalid config type: expected %s, got %s", TypeConstantArrivalRate, config.Type)
	}

	if err := config.Validate(); err != nil {
		return err
	}

	if config.TimeUnit == 0 {
		config.TimeUnit = time.Second
	}
	if config.MaxVUs == 0 {
		config.MaxVUs = config.PreAllocatedVUs
	}
	if config.GracefulStop == 0 {
		config.GracefulStop = DefaultGracefulStop
	}

	e.config = config
	e.logger = config.Logger
	if e.logger == nil {
		e.logger = zap.NewNop()
	}
	return nil
}

// Run starts iterations until Duration elapses or ctx is cancelled, then
// waits for in-flight iterations under the graceful-stop rules.
func (e *ConstantArrivalRate) Run(ctx context.Context, scheduler *performance.VUScheduler, metricsEngine *metrics.Engine, fn performance.IterationFunc) error {
	if e.config == nil {
		return fmt.Errorf("executor not initialized")
	}
	if fn == nil {
		return fmt.Errorf("iteration function is required")
	}

	e.scheduler = scheduler
	e.metrics = metricsEngine
	e.startedAt.Store(time.Now().UnixNano())
	e.running.Store(true)
	defer e.running.Store(false)

	bucket := rate.NewLeakyBucket(rate.PerTimeUnit(e.config.Rate, e.config.TimeUnit))
	e.bucket.Store(bucket)
	e.lostSeen = 0

	e.vuPool = make(chan *performance.VirtualUser, e.config.MaxVUs)
	for i := 0; i < e.config.PreAllocatedVUs; i++ {
		e.vuPool <- scheduler.SpawnVU()
		e.currentVUs.Add(1)
	}
	e.metrics.SetVUsMax(int(e.currentVUs.Load()))
	e.metrics.SetVUs(0)

	// Iterations outlive the scheduling window by up to GracefulStop.
	iterCtx, iterCancel := context.WithCancel(context.Background())
	defer iterCancel()

	runCtx, cancel := context.WithTimeout(ctx, e.config.Duration)
	e.cancelMu.Lock()
	e.cancelFunc = cancel
	e.cancelMu.Unlock()
	defer cancel()

	for bucket.Wait(runCtx) == nil {
		e.recordLostStarts(bucket)

		vu := e.getVU()
		if vu == nil {
			e.dropIteration()
			continue
		}

		e.wg.Add(1)
		go e.runIteration(iterCtx, vu, fn)
	}
	e.recordLostStarts(bucket)

	// Idle VUs go straight to stopping; busy ones once their iteration ends.
	scheduler.StopAllVUs()

	if !e.waitInFlight(e.config.GracefulStop) {
		e.logger.Warn("graceful stop expired, interrupting in-flight iterations",
			zap.String("scenario", e.config.Name),
			zap.Duration("gracefulStop", e.config.GracefulStop),
		)
		iterCancel()
		e.wg.Wait()
	}

	scheduler.Shutdown()
	e.metrics.SetVUs(0)
	return nil
}

// getVU takes an idle VU, spawning one if the pool may still grow.
// It never blocks; nil means the pool is exhausted.
func (e *ConstantArrivalRate) getVU() *performance.VirtualUser {
	select {
	case vu := <-e.vuPool:
		return vu
	default:
	}

	e.vuPoolMu.Lock()
	defer e.vuPoolMu.Unlock()

	if int(e.currentVUs.Load()) < e.config.MaxVUs {
		vu := e.scheduler.SpawnVU()
		e.metrics.SetVUsMax(int(e.currentVUs.Add(1)))
		return vu
	}
	return nil
}

// returnVU puts a VU back in the pool.
func (e *ConstantArrivalRate) returnVU(vu *performance.VirtualUser) {
	state := vu.GetState()
	if state == performance.VUStateStopping || state == performance.VUStateStopped {
		return
	}

	select {
	case e.vuPool <- vu:
	default:
	}
}

func (e *ConstantArrivalRate) dropIteration() {
	e.dropped.Add(1)
	e.metrics.RecordDroppedIteration()

	if e.warned.CompareAndSwap(false, true) {
		e.logger.Warn("insufficient VUs, reached the pool limit and dropping iterations",
			zap.String("scenario", e.config.Name),
			zap.Int("maxVUs", e.config.MaxVUs),
			zap.Int("rate", e.config.Rate),
			zap.Duration("timeUnit", e.config.TimeUnit),
		)
	}
}

// recordLostStarts reports starts the pacer skipped because the scheduling
// loop was late, so started plus dropped iterations match the target rate.
func (e *ConstantArrivalRate) recordLostStarts(bucket *rate.LeakyBucket) {
	lost := bucket.Lost()
	n := lost - e.lostSeen
	if n <= 0 {
		return
	}
	e.lostSeen = lost

	e.dropped.Add(n)
	for i := int64(0); i < n; i++ {
		e.metrics.RecordDroppedIteration()
	}

	if e.lagWarned.CompareAndSwap(false, true) {
		e.logger.Warn("scheduler fell behind, dropping iteration starts",
			zap.String("scenario", e.config.Name),
			zap.Int64("dropped", n),
			zap.Float64("rate", bucket.GetRate()),
		)
	}
}

func (e *ConstantArrivalRate) runIteration(ctx context.Context, vu *performance.VirtualUser, fn performance.IterationFunc) {
	defer e.wg.Done()
	defer e.returnVU(vu)

	e.metrics.SetVUs(int(e.activeVUs.Add(1)))
	defer func() { e.metrics.SetVUs(int(e.activeVUs.Add(-1))) }()

	if err := vu.RunIteration(ctx, fn); err != nil {
		e.logger.Debug("iteration interrupted",
			zap.String("scenario", e.config.Name),
			zap.Int("vu", vu.ID),
			zap.Int64("iteration", vu.GetIteration()),
			zap.Error(err),
		)
	}
	e.iterations.Add(1)
}

// waitInFlight waits up to timeout for started iterations to return.
func (e *ConstantArrivalRate) waitInFlight(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-done:
		return true
	case <-timer.C:
		return false
	}
}

func (e *ConstantArrivalRate) startTime() time.Time {
	n := e.startedAt.Load()
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}

// GetProgress returns current progress (0.0 to 1.0).
func (e *ConstantArrivalRate) GetProgress() float64 {
	start := e.startTime()
	if !e.running.Load() {
		if start.IsZero() {
			return 0.0
		}
		return 1.0
	}

	progress := float64(time.Since(start)) / float64(e.config.Duration)
	if progress > 1.0 {
		progress = 1.0
	}
	return progress
}

// GetStats returns executor statistics.
func (e *ConstantArrivalRate) GetStats() *Stats {
	start := e.startTime()
	var elapsed time.Duration
	if !start.IsZero() {
		elapsed = time.Since(start)
	}

	stats := &Stats{
		StartTime:         start,
		Elapsed:           elapsed,
		ActiveVUs:         int(e.activeVUs.Load()),
		Iterations:        e.iterations.Load(),
		DroppedIterations: e.dropped.Load(),
	}
	if e.config != nil {
		stats.TotalDuration = e.config.Duration
		stats.MaxVUs = e.config.MaxVUs
		stats.TargetRate = rate.PerTimeUnit(e.config.Rate, e.config.TimeUnit)
	}
	if b := e.bucket.Load(); b != nil {
		pacer := b.Stats()
		stats.Pacer = &pacer
	}
	return stats
}

// Stop ends the scheduling window early. In-flight iterations still get
// the graceful-stop period.
func (e *ConstantArrivalRate) Stop(ctx context.Context) error {
	e.cancelMu.Lock()
	defer e.cancelMu.Unlock()

	if e.cancelFunc != nil {
		e.cancelFunc()
	}
	return nil
}

var _ Executor = (*ConstantArrivalRate)(nil)
