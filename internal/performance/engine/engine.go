// Package engine runs one load-test scenario end to end: it wires the
// executor, VU scheduler and metrics together and evaluates thresholds
// against the final snapshot.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wesleyorama2/hello-load/internal/performance"
	"github.com/wesleyorama2/hello-load/internal/performance/executor"
	"github.com/wesleyorama2/hello-load/internal/performance/metrics"
	"github.com/wesleyorama2/hello-load/internal/performance/threshold"
)

// TestConfig describes a test run.
type TestConfig struct {
	// Name identifies the scenario in logs and summaries
	Name string `json:"name" yaml:"name"`

	// Tags are attached to the run and reported in the summary
	Tags map[string]string `json:"tags,omitempty" yaml:"tags,omitempty"`

	// Executor controls how iterations are scheduled
	Executor executor.Config `json:"scenario" yaml:"scenario"`

	// SummaryTrendStats lists the stats reported for trend metrics
	SummaryTrendStats []string `json:"summaryTrendStats" yaml:"summaryTrendStats"`

	// Thresholds are evaluated in order after the run
	Thresholds []threshold.Definition `json:"thresholds" yaml:"thresholds"`

	// HTTP configures the client shared by all VUs
	HTTP performance.HTTPClientConfig `json:"-" yaml:"-"`

	// Iteration is the scenario body
	Iteration performance.IterationFunc `json:"-" yaml:"-"`

	// Logger receives engine events; nil disables logging
	Logger *zap.Logger `json:"-" yaml:"-"`
}

// Validate checks the configuration, including every threshold expression.
func (c *TestConfig) Validate() error {
	if c.Iteration == nil {
		return fmt.Errorf("iteration function is required")
	}
	if err := c.Executor.Validate(); err != nil {
		return err
	}
	for _, stat := range c.SummaryTrendStats {
		if !validTrendStat(stat) {
			return fmt.Errorf("invalid summaryTrendStats entry %q", stat)
		}
	}
	if _, err := threshold.ParseAll(c.Thresholds); err != nil {
		return err
	}
	return nil
}

func validTrendStat(stat string) bool {
	switch stat {
	case "avg", "min", "med", "max", "count":
		return true
	}
	_, err := metrics.ParsePercentile(stat)
	return err == nil
}

// TestResult contains the complete test results.
type TestResult struct {
	RunID     string            `json:"runId"`
	Name      string            `json:"name"`
	Tags      map[string]string `json:"tags,omitempty"`
	StartTime time.Time         `json:"startTime"`
	EndTime   time.Time         `json:"endTime"`
	Duration  time.Duration     `json:"duration"`

	Executor          string `json:"executor"`
	Iterations        int64  `json:"iterations"`
	DroppedIterations int64  `json:"droppedIterations"`

	// SummaryTrendStats are the trend stats present in Metrics
	SummaryTrendStats []string `json:"summaryTrendStats"`

	Metrics *metrics.Snapshot `json:"metrics"`

	// Threshold evaluation
	Passed     bool               `json:"passed"`
	Thresholds []threshold.Result `json:"thresholds,omitempty"`

	// Error if the run ended abnormally
	Error error `json:"-"`
}

// Engine is the orchestrator for a single-scenario test.
//
//	eng, _ := engine.NewEngine(cfg)
//	result, _ := eng.Run(ctx)
//	fmt.Printf("Test passed: %v\n", result.Passed)
type Engine struct {
	config     *TestConfig
	thresholds []*threshold.Threshold
	logger     *zap.Logger

	metricsEngine *metrics.Engine
	executor      executor.Executor

	mu        sync.RWMutex
	startTime time.Time
	running   bool
}

// NewEngine validates cfg and creates an engine for it.
func NewEngine(cfg *TestConfig) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	thresholds, err := threshold.ParseAll(cfg.Thresholds)
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	if len(cfg.SummaryTrendStats) == 0 {
		cfg.SummaryTrendStats = metrics.DefaultTrendStats
	}
	if cfg.HTTP.Timeout == 0 {
		cfg.HTTP = performance.DefaultHTTPClientConfig()
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Executor.Logger == nil {
		cfg.Executor.Logger = logger
	}
	if cfg.Executor.Name == "" {
		cfg.Executor.Name = cfg.Name
	}

	return &Engine{
		config:        cfg,
		thresholds:    thresholds,
		logger:        logger,
		metricsEngine: metrics.NewEngine(),
	}, nil
}

// Run executes the scenario and returns the test results.
//
// Cancelling ctx ends the scheduling window early; in-flight iterations
// still get the executor's graceful-stop period and the result is
// reported as usual with Error set to the context error.
func (e *Engine) Run(ctx context.Context) (*TestResult, error) {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return nil, fmt.Errorf("engine is already running")
	}
	e.running = true
	e.startTime = time.Now()
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.running = false
		e.mu.Unlock()
	}()

	runID := uuid.NewString()
	log := e.logger.With(zap.String("run_id", runID), zap.String("test_name", e.config.Name))

	exec, err := executor.New(e.config.Executor.Type)
	if err != nil {
		return nil, fmt.Errorf("failed to create executor: %w", err)
	}
	execConfig := e.config.Executor
	execConfig.Logger = log
	if err := exec.Init(ctx, &execConfig); err != nil {
		return nil, fmt.Errorf("failed to initialize executor: %w", err)
	}

	e.mu.Lock()
	e.executor = exec
	e.metricsEngine.Reset()
	e.mu.Unlock()

	scheduler := performance.NewVUScheduler(e.metricsEngine, e.config.HTTP)

	log.Info("starting test",
		zap.String("executor", string(execConfig.Type)),
		zap.Int("rate", execConfig.Rate),
		zap.Duration("timeUnit", execConfig.TimeUnit),
		zap.Duration("duration", execConfig.Duration),
		zap.Int("preAllocatedVUs", execConfig.PreAllocatedVUs),
	)

	runErr := exec.Run(ctx, scheduler, e.metricsEngine, e.config.Iteration)
	if runErr == nil && ctx.Err() != nil {
		runErr = ctx.Err()
	}
	e.metricsEngine.Stop()

	snapshot := e.metricsEngine.GetSnapshot(e.config.SummaryTrendStats...)
	results := threshold.EvaluateAll(e.thresholds, snapshot)
	stats := exec.GetStats()

	endTime := time.Now()
	result := &TestResult{
		RunID:             runID,
		Name:              e.config.Name,
		Tags:              e.config.Tags,
		StartTime:         e.startTime,
		EndTime:           endTime,
		Duration:          endTime.Sub(e.startTime),
		Executor:          string(exec.Type()),
		Iterations:        stats.Iterations,
		DroppedIterations: stats.DroppedIterations,
		SummaryTrendStats: e.config.SummaryTrendStats,
		Metrics:           snapshot,
		Passed:            threshold.Passed(results),
		Thresholds:        results,
		Error:             runErr,
	}

	for _, r := range results {
		if !r.Passed {
			log.Warn("threshold crossed",
				zap.String("metric", r.Metric),
				zap.String("expression", r.Expression),
				zap.Float64("value", r.Value),
			)
		}
	}
	log.Info("test finished",
		zap.Bool("passed", result.Passed),
		zap.Duration("duration", result.Duration),
		zap.Int64("iterations", result.Iterations),
		zap.Int64("droppedIterations", result.DroppedIterations),
	)

	return result, runErr
}

// Stop ends the running test early.
func (e *Engine) Stop(ctx context.Context) error {
	e.mu.RLock()
	exec := e.executor
	e.mu.RUnlock()

	if exec == nil {
		return nil
	}
	return exec.Stop(ctx)
}

// GetMetrics returns the current metrics snapshot.
func (e *Engine) GetMetrics() *metrics.Snapshot {
	return e.metricsEngine.GetSnapshot(e.config.SummaryTrendStats...)
}

// GetProgress returns current progress (0.0 to 1.0).
func (e *Engine) GetProgress() float64 {
	e.mu.RLock()
	exec := e.executor
	e.mu.RUnlock()

	if exec == nil {
		return 0
	}
	return exec.GetProgress()
}

// GetStats returns the executor statistics, or nil before Run.
func (e *Engine) GetStats() *executor.Stats {
	e.mu.RLock()
	exec := e.executor
	e.mu.RUnlock()

	if exec == nil {
		return nil
	}
	return exec.GetStats()
}
