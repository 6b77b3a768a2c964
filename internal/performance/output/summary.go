package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/wesleyorama2/hello-load/internal/performance/engine"
	"github.com/wesleyorama2/hello-load/internal/performance/metrics"
)

// Summary is the machine-readable end-of-test report.
type Summary struct {
	RunID      string            `json:"runId"`
	Name       string            `json:"name"`
	Tags       map[string]string `json:"tags,omitempty"`
	Executor   string            `json:"executor"`
	StartTime  time.Time         `json:"startTime"`
	EndTime    time.Time         `json:"endTime"`
	DurationMs float64           `json:"testRunDurationMs"`
	Passed     bool              `json:"passed"`

	Metrics map[string]SummaryMetric `json:"metrics"`
	Checks  []SummaryCheck           `json:"checks"`
}

// SummaryMetric is one metric with its stats and threshold outcomes.
type SummaryMetric struct {
	Type       metrics.Kind       `json:"type"`
	Values     map[string]float64 `json:"values"`
	Thresholds map[string]bool    `json:"thresholds,omitempty"`
}

// SummaryCheck is the pass/fail tally of one named check.
type SummaryCheck struct {
	Name   string `json:"name"`
	Passes int64  `json:"passes"`
	Fails  int64  `json:"fails"`
}

// NewSummary builds the export form of result.
func NewSummary(result *engine.TestResult) *Summary {
	s := &Summary{
		RunID:      result.RunID,
		Name:       result.Name,
		Tags:       result.Tags,
		Executor:   result.Executor,
		StartTime:  result.StartTime,
		EndTime:    result.EndTime,
		DurationMs: float64(result.Duration) / float64(time.Millisecond),
		Passed:     result.Passed,
		Metrics:    make(map[string]SummaryMetric),
		Checks:     []SummaryCheck{},
	}

	if result.Metrics != nil {
		for name, m := range result.Metrics.Metrics {
			s.Metrics[name] = SummaryMetric{Type: m.Kind, Values: m.Values}
		}
		for _, c := range result.Metrics.Checks {
			s.Checks = append(s.Checks, SummaryCheck{Name: c.Name, Passes: c.Passes, Fails: c.Fails})
		}
	}

	for _, r := range result.Thresholds {
		m, ok := s.Metrics[r.Metric]
		if !ok {
			// A threshold on a metric with no samples still needs a typed entry.
			kind, known := metrics.KindOf(r.Metric)
			if !known {
				continue
			}
			m = SummaryMetric{Type: kind, Values: map[string]float64{}}
		}
		if m.Thresholds == nil {
			m.Thresholds = make(map[string]bool)
		}
		m.Thresholds[r.Expression] = r.Passed
		s.Metrics[r.Metric] = m
	}

	return s
}

// WriteJSON writes the summary of result as indented JSON.
func WriteJSON(w io.Writer, result *engine.TestResult) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(NewSummary(result)); err != nil {
		return fmt.Errorf("failed to encode summary: %w", err)
	}
	return nil
}

// ExportJSON writes the summary of result to path.
func ExportJSON(path string, result *engine.TestResult) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create summary file: %w", err)
	}

	if err := WriteJSON(f, result); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
