package scenario

import (
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/wesleyorama2/hello-load/internal/performance/engine"
	"github.com/wesleyorama2/hello-load/internal/performance/executor"
	"github.com/wesleyorama2/hello-load/internal/performance/metrics"
	"github.com/wesleyorama2/hello-load/internal/performance/threshold"
)

// Name is the scenario name and the value of the test_name tag.
const Name = "hello"

// Fixed run options.
const (
	TimeUnit = time.Second
	Duration = time.Minute
)

// SummaryTrendStats are the stats reported for trend metrics.
var SummaryTrendStats = []string{"avg", "min", "med", "max", "p(95)", "p(99)"}

// Tags returns the tags attached to the run.
func Tags() map[string]string {
	return map[string]string{"test_name": Name}
}

// Thresholds returns the pass/fail criteria for a run at rps iterations
// per second. The request rate must reach 90% of the target.
func Thresholds(rps int) []threshold.Definition {
	minRate := strconv.FormatFloat(0.9*float64(rps), 'f', -1, 64)

	return []threshold.Definition{
		{Metric: metrics.Checks, Expressions: []string{"rate>0.99"}},
		{Metric: metrics.HTTPReqs, Expressions: []string{"rate>" + minRate}},
		{Metric: metrics.HTTPReqFailed, Expressions: []string{"rate<0.01"}},
		{Metric: metrics.HTTPReqDuration, Expressions: []string{"p(99)<500"}},
	}
}

// Options builds the complete test configuration for cfg.
func Options(cfg *Config, logger *zap.Logger) *engine.TestConfig {
	return &engine.TestConfig{
		Name: Name,
		Tags: Tags(),
		Executor: executor.Config{
			Name:            Name,
			Type:            executor.TypeConstantArrivalRate,
			Rate:            int(cfg.RequestsPerSecond),
			TimeUnit:        TimeUnit,
			Duration:        Duration,
			PreAllocatedVUs: int(cfg.VirtualUsers),
			MaxVUs:          int(cfg.VirtualUsers),
			GracefulStop:    executor.DefaultGracefulStop,
		},
		SummaryTrendStats: SummaryTrendStats,
		Thresholds:        Thresholds(int(cfg.RequestsPerSecond)),
		Iteration:         Iteration(string(cfg.ServiceEndpoint)),
		Logger:            logger,
	}
}
