// Package output renders test progress and the end-of-test summary.
package output

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/wesleyorama2/hello-load/internal/performance/engine"
	"github.com/wesleyorama2/hello-load/internal/performance/executor"
	"github.com/wesleyorama2/hello-load/internal/performance/metrics"
	"github.com/wesleyorama2/hello-load/internal/performance/threshold"
)

// ANSI escape codes for cursor control
const (
	cursorUp  = "\033[%dA"
	clearLine = "\033[2K"
)

const (
	boxHorizontal  = "━"
	progressFilled = "█"
	progressEmpty  = "░"

	summaryNameWidth = 32
)

// LiveStats contains real-time statistics for display.
type LiveStats struct {
	Progress  float64
	Elapsed   time.Duration
	Remaining time.Duration

	ActiveVUs int
	MaxVUs    int

	Iterations int64
	Dropped    int64

	TotalRequests int64
	CurrentRPS    float64
	Errors        int64
	ErrorRate     float64

	// Latency stats in milliseconds
	LatencyP95 float64
	LatencyAvg float64
}

// Source is what the live display polls while a test runs.
type Source interface {
	GetProgress() float64
	GetMetrics() *metrics.Snapshot
	GetStats() *executor.Stats
}

// ConsoleOutput manages console output during and after test execution.
type ConsoleOutput struct {
	testName       string
	updateInterval time.Duration
	writer         io.Writer
	isTTY          bool
	colors         *ColorScheme
	quiet          bool

	mu          sync.Mutex
	linesOutput int // lines in the live display
}

// ConsoleOutputConfig contains configuration for ConsoleOutput.
type ConsoleOutputConfig struct {
	TestName       string
	UpdateInterval time.Duration
	Writer         io.Writer
	Quiet          bool
	NoColor        bool
	ForceColors    bool
	ForceTTY       bool
}

// NewConsoleOutput creates a new console output handler.
func NewConsoleOutput(config ConsoleOutputConfig) *ConsoleOutput {
	if config.Writer == nil {
		config.Writer = os.Stdout
	}
	if config.UpdateInterval == 0 {
		config.UpdateInterval = time.Second
	}

	isTTY := config.ForceTTY || isTerminal(config.Writer)
	useColors := !config.NoColor && (config.ForceColors || (isTTY && supportsColors()))

	return &ConsoleOutput{
		testName:       config.TestName,
		updateInterval: config.UpdateInterval,
		writer:         config.Writer,
		isTTY:          isTTY,
		colors:         NewColorScheme(useColors),
		quiet:          config.Quiet,
	}
}

// IsTTY returns whether the output is a terminal.
func (c *ConsoleOutput) IsTTY() bool {
	return c.isTTY
}

// PrintHeader prints the test header with the scenario plan.
func (c *ConsoleOutput) PrintHeader(cfg *engine.TestConfig) {
	if c.quiet {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	ex := cfg.Executor
	timeUnit := ex.TimeUnit
	if timeUnit == 0 {
		timeUnit = time.Second
	}
	gracefulStop := ex.GracefulStop
	if gracefulStop == 0 {
		gracefulStop = executor.DefaultGracefulStop
	}
	maxVUs := ex.MaxVUs
	if maxVUs == 0 {
		maxVUs = ex.PreAllocatedVUs
	}

	line := strings.Repeat(boxHorizontal, 56)
	c.writeln(c.colors.Rule.Sprint(line))
	c.writeln(c.colors.Header.Sprintf("%s - Running [%s]", c.testName, ex.Type))
	c.writeln(c.colors.Rule.Sprint(line))
	c.writeln("")
	c.writeln(fmt.Sprintf("  scenarios: 1 scenario, %d max VUs, %s max duration (incl. graceful stop):",
		maxVUs, ex.Duration+gracefulStop))
	c.writeln(fmt.Sprintf("           * %s: %d iterations for each %s for %s (maxVUs: %d, gracefulStop: %s)",
		cfg.Name, ex.Rate, timeUnit, ex.Duration, maxVUs, gracefulStop))
	if len(cfg.Tags) > 0 {
		c.writeln(fmt.Sprintf("       tags: %s", formatTags(cfg.Tags)))
	}
	c.writeln("")
}

// Watch polls src every update interval and renders live progress until
// ctx is done. On a terminal the display is redrawn in place; otherwise
// one status line is printed per tick.
func (c *ConsoleOutput) Watch(ctx context.Context, src Source) {
	if c.quiet {
		return
	}

	ticker := time.NewTicker(c.updateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := StatsFromMetrics(src.GetMetrics(), src.GetStats(), src.GetProgress())
			if c.isTTY {
				c.Update(stats)
			} else {
				c.PrintNonInteractiveUpdate(stats)
			}
		}
	}
}

// Update redraws the live display with new statistics.
func (c *ConsoleOutput) Update(stats *LiveStats) {
	if c.quiet || !c.isTTY {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.clearLive()
	lines := c.renderLiveStats(stats)
	c.linesOutput = len(lines)
	for _, line := range lines {
		c.writeln(line)
	}
}

func (c *ConsoleOutput) clearLive() {
	if c.linesOutput == 0 {
		return
	}
	c.write(fmt.Sprintf(cursorUp, c.linesOutput))
	for i := 0; i < c.linesOutput; i++ {
		c.write(clearLine + "\n")
	}
	c.write(fmt.Sprintf(cursorUp, c.linesOutput))
	c.linesOutput = 0
}

func (c *ConsoleOutput) renderLiveStats(stats *LiveStats) []string {
	bar := renderProgressBar(stats.Progress, 40)
	timeInfo := fmt.Sprintf("%s / %s", formatDuration(stats.Elapsed), formatDuration(stats.Elapsed+stats.Remaining))

	errColor := c.colors.Pass
	if stats.ErrorRate > 0.01 {
		errColor = c.colors.Warn
	}
	if stats.ErrorRate > 0.05 {
		errColor = c.colors.Fail
	}

	return []string{
		fmt.Sprintf("Progress: %s %s | %s",
			c.colors.Pass.Sprint(bar),
			c.colors.Header.Sprintf("%.0f%%", stats.Progress*100),
			c.colors.Dim.Sprint(timeInfo)),
		fmt.Sprintf("VUs: %s/%d | Iterations: %s (dropped %d) | RPS: %s",
			c.colors.Value.Sprint(stats.ActiveVUs), stats.MaxVUs,
			c.colors.Value.Sprint(formatNumber(stats.Iterations)), stats.Dropped,
			c.colors.Pass.Sprintf("%.1f", stats.CurrentRPS)),
		fmt.Sprintf("Errors: %s | P95: %s | Avg: %s",
			errColor.Sprintf("%d (%.1f%%)", stats.Errors, stats.ErrorRate*100),
			formatTrendValue(stats.LatencyP95),
			formatTrendValue(stats.LatencyAvg)),
	}
}

// PrintNonInteractiveUpdate prints a one-line status update.
// Used when output is not a TTY (e.g., piped to a file or CI/CD).
func (c *ConsoleOutput) PrintNonInteractiveUpdate(stats *LiveStats) {
	if c.quiet {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.writeln(fmt.Sprintf("[%s] Progress: %.0f%% | VUs: %d/%d | Reqs: %d | RPS: %.1f | Errors: %d (%.1f%%) | Dropped: %d | P95: %s",
		formatDuration(stats.Elapsed),
		stats.Progress*100,
		stats.ActiveVUs,
		stats.MaxVUs,
		stats.TotalRequests,
		stats.CurrentRPS,
		stats.Errors,
		stats.ErrorRate*100,
		stats.Dropped,
		formatTrendValue(stats.LatencyP95)))
}

// PrintSummary prints the end-of-test summary: checks, every metric with
// its configured stats, and threshold outcomes.
func (c *ConsoleOutput) PrintSummary(result *engine.TestResult) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.quiet {
		if result.Passed {
			c.writeln(c.colors.Pass.Sprint("PASSED"))
		} else {
			c.writeln(c.colors.Fail.Sprint("FAILED"))
		}
		return
	}

	if c.isTTY {
		c.clearLive()
	}

	status, statusColor := "Completed ✓", c.colors.Pass
	if !result.Passed {
		status, statusColor = "Failed ✗", c.colors.Fail
	}

	line := strings.Repeat(boxHorizontal, 56)
	c.writeln("")
	c.writeln(c.colors.Rule.Sprint(line))
	c.writeln(fmt.Sprintf("%s - %s", c.colors.Header.Sprint(result.Name), statusColor.Sprint(status)))
	c.writeln(c.colors.Rule.Sprint(line))
	c.writeln(c.colors.Dim.Sprintf("run %s, %s", result.RunID, formatDuration(result.Duration)))
	c.writeln("")

	snap := result.Metrics
	if snap == nil {
		return
	}

	for _, check := range snap.Checks {
		c.writeln(fmt.Sprintf("     %s %s", c.colors.mark(check.Fails == 0), check.Name))
		if check.Fails > 0 {
			c.writeln(c.colors.Dim.Sprintf("      ↳  %.0f%% ✓ %d / ✗ %d", check.PassRate()*100, check.Passes, check.Fails))
		}
	}
	if len(snap.Checks) > 0 {
		c.writeln("")
	}

	byMetric := make(map[string][]threshold.Result)
	for _, r := range result.Thresholds {
		byMetric[r.Metric] = append(byMetric[r.Metric], r)
	}

	for _, name := range metricNames(snap, result.Thresholds) {
		m := snap.Metric(name)
		results := byMetric[name]

		prefix := "  "
		if len(results) > 0 {
			prefix = c.colors.mark(threshold.Passed(results)) + " "
		}

		value := "no samples"
		if m != nil {
			value = c.formatMetric(m, result.SummaryTrendStats)
		}

		dots := summaryNameWidth - len(name)
		if dots < 3 {
			dots = 3
		}
		c.writeln(fmt.Sprintf("   %s%s%s: %s", prefix, name, c.colors.Dim.Sprint(strings.Repeat(".", dots)), value))

		for _, r := range results {
			detail := r.Message
			if r.Passed && m != nil {
				detail = formatStatValue(m, r.Expression, r.Value)
			}
			c.writeln(fmt.Sprintf("       %s '%s' %s", c.colors.mark(r.Passed), r.Expression, c.colors.Dim.Sprint(detail)))
		}
	}
	c.writeln("")

	if !result.Passed {
		c.writeln(c.colors.Fail.Sprint("some thresholds have failed"))
		c.writeln("")
	}
}

// metricNames returns every metric to report, sorted by name.
func metricNames(snap *metrics.Snapshot, results []threshold.Result) []string {
	seen := make(map[string]bool)
	var names []string
	for name := range snap.Metrics {
		seen[name] = true
		names = append(names, name)
	}
	for _, r := range results {
		if !seen[r.Metric] {
			seen[r.Metric] = true
			names = append(names, r.Metric)
		}
	}
	sort.Strings(names)
	return names
}

func (c *ConsoleOutput) formatMetric(m *metrics.MetricSummary, trendStats []string) string {
	switch m.Kind {
	case metrics.KindCounter:
		count, rate := m.Values["count"], m.Values["rate"]
		if m.Name == metrics.DataReceived {
			return fmt.Sprintf("%-10s %s/s", formatBytes(count), formatBytes(rate))
		}
		return fmt.Sprintf("%-10s %s/s", formatFloat(count), formatRate(rate))

	case metrics.KindRate:
		passes, fails := m.Values["passes"], m.Values["fails"]
		return fmt.Sprintf("%-10s %s out of %s",
			fmt.Sprintf("%.2f%%", m.Values["rate"]*100), formatFloat(passes), formatFloat(passes+fails))

	case metrics.KindTrend:
		if len(trendStats) == 0 {
			trendStats = metrics.DefaultTrendStats
		}
		parts := make([]string, 0, len(trendStats))
		for _, stat := range trendStats {
			v, err := m.Value(stat)
			if err != nil {
				continue
			}
			if stat == "count" {
				parts = append(parts, fmt.Sprintf("count=%s", formatFloat(v)))
				continue
			}
			parts = append(parts, fmt.Sprintf("%s=%s", stat, c.colors.Value.Sprint(formatTrendValue(v))))
		}
		return strings.Join(parts, " ")

	case metrics.KindGauge:
		return fmt.Sprintf("%-10s min=%s max=%s",
			formatFloat(m.Values["value"]), formatFloat(m.Values["min"]), formatFloat(m.Values["max"]))
	}
	return ""
}

// formatStatValue renders a threshold's observed value in the metric's unit.
func formatStatValue(m *metrics.MetricSummary, expr string, v float64) string {
	stat := expr
	if i := strings.IndexAny(expr, "<>=!"); i > 0 {
		stat = strings.TrimSpace(expr[:i])
	}
	switch {
	case m.Kind == metrics.KindTrend && stat != "count":
		return fmt.Sprintf("%s=%s", stat, formatTrendValue(v))
	case m.Kind == metrics.KindRate && stat == "rate":
		return fmt.Sprintf("rate=%.2f%%", v*100)
	default:
		return fmt.Sprintf("%s=%s", stat, formatRate(v))
	}
}

// StatsFromMetrics creates LiveStats from engine metrics.
func StatsFromMetrics(snap *metrics.Snapshot, stats *executor.Stats, progress float64) *LiveStats {
	live := &LiveStats{Progress: progress}

	if stats != nil {
		live.MaxVUs = stats.MaxVUs
		live.Dropped = stats.DroppedIterations
		if stats.TotalDuration > 0 {
			live.Remaining = stats.TotalDuration - stats.Elapsed
			if live.Remaining < 0 {
				live.Remaining = 0
			}
		}
	}

	if snap == nil {
		return live
	}

	live.Elapsed = snap.Elapsed
	if m := snap.Metric(metrics.VUs); m != nil {
		live.ActiveVUs = int(m.Values["value"])
	}
	if m := snap.Metric(metrics.Iterations); m != nil {
		live.Iterations = int64(m.Values["count"])
	}
	if m := snap.Metric(metrics.HTTPReqs); m != nil {
		live.TotalRequests = int64(m.Values["count"])
		live.CurrentRPS = m.Values["rate"]
	}
	if m := snap.Metric(metrics.HTTPReqFailed); m != nil {
		live.Errors = int64(m.Values["passes"])
		live.ErrorRate = m.Values["rate"]
	}
	if m := snap.Metric(metrics.HTTPReqDuration); m != nil {
		live.LatencyP95, _ = m.Value("p(95)")
		live.LatencyAvg, _ = m.Value("avg")
	}
	return live
}

func (c *ConsoleOutput) write(s string) {
	fmt.Fprint(c.writer, s)
}

func (c *ConsoleOutput) writeln(s string) {
	fmt.Fprintln(c.writer, s)
}

func renderProgressBar(progress float64, width int) string {
	if progress < 0 {
		progress = 0
	}
	if progress > 1 {
		progress = 1
	}

	filled := int(progress * float64(width))
	return "[" + strings.Repeat(progressFilled, filled) + strings.Repeat(progressEmpty, width-filled) + "]"
}

func formatTags(tags map[string]string) string {
	keys := make([]string, 0, len(tags))
	for k := range tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+tags[k])
	}
	return strings.Join(parts, ", ")
}
