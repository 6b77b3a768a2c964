package metrics

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

// DefaultTrendStats are the trend stats reported when none are configured.
var DefaultTrendStats = []string{"avg", "min", "med", "max", "p(90)", "p(95)"}

// Snapshot contains a point-in-time view of all metrics.
type Snapshot struct {
	Elapsed     time.Duration             `json:"elapsed"`
	Timestamp   time.Time                 `json:"timestamp"`
	Metrics     map[string]*MetricSummary `json:"metrics"`
	Checks      []CheckResult             `json:"checks"`
	Interrupted int64                     `json:"interruptedIterations"`
}

// MetricSummary is the aggregate of one metric.
//
// Values holds the precomputed stats: count/rate for counters,
// rate/passes/fails for rates, the configured trend stats for trends
// (in milliseconds) and value/min/max for gauges.
type MetricSummary struct {
	Name   string             `json:"name"`
	Kind   Kind               `json:"type"`
	Values map[string]float64 `json:"values"`

	hist *hdrhistogram.Histogram
}

// CheckResult holds the pass/fail counts of one named check.
type CheckResult struct {
	Name   string `json:"name"`
	Passes int64  `json:"passes"`
	Fails  int64  `json:"fails"`
}

// PassRate returns the fraction of passing evaluations.
func (c CheckResult) PassRate() float64 {
	total := c.Passes + c.Fails
	if total == 0 {
		return 0
	}
	return float64(c.Passes) / float64(total)
}

// Metric returns the named metric summary, or nil.
func (s *Snapshot) Metric(name string) *MetricSummary {
	if s == nil {
		return nil
	}
	return s.Metrics[name]
}

// Value returns one stat of one metric, e.g. Value("http_req_duration", "p(99)").
func (s *Snapshot) Value(metric, stat string) (float64, error) {
	m := s.Metric(metric)
	if m == nil {
		return 0, fmt.Errorf("unknown metric %q", metric)
	}
	return m.Value(stat)
}

// Value returns one stat of the metric.
//
// Trend metrics accept any percentile "p(N)" with 0 <= N <= 100 in
// addition to the precomputed stats.
func (m *MetricSummary) Value(stat string) (float64, error) {
	if v, ok := m.Values[stat]; ok {
		return v, nil
	}
	if m.Kind == KindTrend {
		return m.trendValue(stat)
	}
	return 0, fmt.Errorf("metric %q (%s) has no stat %q", m.Name, m.Kind, stat)
}

// trendValue computes a trend stat in milliseconds from the histogram.
func (m *MetricSummary) trendValue(stat string) (float64, error) {
	if m.hist == nil {
		return 0, fmt.Errorf("metric %q has no samples", m.Name)
	}

	switch stat {
	case "avg":
		return m.hist.Mean() / 1000, nil
	case "min":
		return float64(m.hist.Min()) / 1000, nil
	case "max":
		return float64(m.hist.Max()) / 1000, nil
	case "med":
		return float64(m.hist.ValueAtQuantile(50)) / 1000, nil
	case "count":
		return float64(m.hist.TotalCount()), nil
	}

	q, err := ParsePercentile(stat)
	if err != nil {
		return 0, fmt.Errorf("metric %q (%s) has no stat %q", m.Name, m.Kind, stat)
	}
	return float64(m.hist.ValueAtQuantile(q)) / 1000, nil
}

// ParsePercentile parses "p(95)" or "p(99.9)" into its quantile.
func ParsePercentile(stat string) (float64, error) {
	if !strings.HasPrefix(stat, "p(") || !strings.HasSuffix(stat, ")") {
		return 0, fmt.Errorf("not a percentile: %q", stat)
	}
	q, err := strconv.ParseFloat(stat[2:len(stat)-1], 64)
	if err != nil {
		return 0, fmt.Errorf("invalid percentile %q: %w", stat, err)
	}
	if q < 0 || q > 100 {
		return 0, fmt.Errorf("percentile %q out of range [0, 100]", stat)
	}
	return q, nil
}
