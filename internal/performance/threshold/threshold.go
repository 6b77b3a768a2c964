// Package threshold parses and evaluates pass/fail criteria such as
// "p(99)<500" or "rate>0.99" against a metrics snapshot.
package threshold

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/wesleyorama2/hello-load/internal/performance/metrics"
)

// Operator is a comparison operator in a threshold expression.
type Operator string

const (
	OpLess         Operator = "<"
	OpLessEqual    Operator = "<="
	OpGreater      Operator = ">"
	OpGreaterEqual Operator = ">="
	OpEqual        Operator = "=="
	OpNotEqual     Operator = "!="
)

var exprPattern = regexp.MustCompile(`^(p\([0-9.]+\)|[a-z]+)\s*(<=|>=|==|!=|<|>)\s*(\S+)$`)

// Threshold is one parsed expression bound to a metric.
type Threshold struct {
	Metric     string
	Expression string
	Stat       string
	Op         Operator
	Target     float64
}

// Definition lists the expressions attached to one metric.
type Definition struct {
	Metric      string   `json:"metric" yaml:"metric"`
	Expressions []string `json:"expressions" yaml:"expressions"`
}

// Result contains the outcome of a single threshold evaluation.
type Result struct {
	// Metric is the metric being evaluated (e.g., "http_req_duration")
	Metric string `json:"metric"`

	// Expression is the threshold expression (e.g., "p(99)<500")
	Expression string `json:"expression"`

	// Passed indicates whether this threshold passed
	Passed bool `json:"passed"`

	// Value is the observed stat
	Value float64 `json:"value"`

	// Message explains a failure
	Message string `json:"message,omitempty"`
}

// Parse parses an expression of the form <stat><op><number>.
//
// Trend targets are milliseconds; a Go duration ("500ms", "1.5s") is also
// accepted and converted.
func Parse(metric, expr string) (*Threshold, error) {
	if metric == "" {
		return nil, fmt.Errorf("threshold %q has no metric", expr)
	}

	m := exprPattern.FindStringSubmatch(strings.TrimSpace(expr))
	if m == nil {
		return nil, fmt.Errorf("invalid threshold expression %q: want <stat><op><number>", expr)
	}

	stat := m[1]
	if strings.HasPrefix(stat, "p(") {
		if _, err := metrics.ParsePercentile(stat); err != nil {
			return nil, fmt.Errorf("invalid threshold expression %q: %w", expr, err)
		}
	} else if !knownStat(stat) {
		return nil, fmt.Errorf("invalid threshold expression %q: unknown stat %q", expr, stat)
	}

	target, err := parseTarget(m[3])
	if err != nil {
		return nil, fmt.Errorf("invalid threshold expression %q: %w", expr, err)
	}

	return &Threshold{
		Metric:     metric,
		Expression: expr,
		Stat:       stat,
		Op:         Operator(m[2]),
		Target:     target,
	}, nil
}

// ParseAll parses every expression of every definition, in order.
// Definitions must name a built-in metric.
func ParseAll(defs []Definition) ([]*Threshold, error) {
	var out []*Threshold
	for _, d := range defs {
		if _, ok := metrics.KindOf(d.Metric); !ok {
			return nil, fmt.Errorf("thresholds.%s: unknown metric %q", d.Metric, d.Metric)
		}
		for _, expr := range d.Expressions {
			t, err := Parse(d.Metric, expr)
			if err != nil {
				return nil, fmt.Errorf("thresholds.%s: %w", d.Metric, err)
			}
			out = append(out, t)
		}
	}
	return out, nil
}

func knownStat(stat string) bool {
	switch stat {
	case "count", "rate", "value", "avg", "min", "med", "max", "passes", "fails":
		return true
	}
	return false
}

func parseTarget(s string) (float64, error) {
	if v, err := strconv.ParseFloat(s, 64); err == nil {
		return v, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("target %q is not a number", s)
	}
	return float64(d) / float64(time.Millisecond), nil
}

// Evaluate checks the threshold against snap. A metric or stat the
// snapshot cannot provide fails the threshold.
func (t *Threshold) Evaluate(snap *metrics.Snapshot) Result {
	result := Result{Metric: t.Metric, Expression: t.Expression}

	v, err := snap.Value(t.Metric, t.Stat)
	if err != nil {
		result.Message = err.Error()
		return result
	}

	result.Value = v
	result.Passed = compare(v, t.Op, t.Target)
	if !result.Passed {
		result.Message = fmt.Sprintf("%s %s is %s, want %s %s",
			t.Metric, t.Stat, formatFloat(v), t.Op, formatFloat(t.Target))
	}
	return result
}

// EvaluateAll evaluates thresholds in order.
func EvaluateAll(thresholds []*Threshold, snap *metrics.Snapshot) []Result {
	results := make([]Result, 0, len(thresholds))
	for _, t := range thresholds {
		results = append(results, t.Evaluate(snap))
	}
	return results
}

// Passed reports whether every result passed.
func Passed(results []Result) bool {
	for _, r := range results {
		if !r.Passed {
			return false
		}
	}
	return true
}

func compare(actual float64, op Operator, target float64) bool {
	switch op {
	case OpLess:
		return actual < target
	case OpLessEqual:
		return actual <= target
	case OpGreater:
		return actual > target
	case OpGreaterEqual:
		return actual >= target
	case OpEqual:
		return actual == target
	case OpNotEqual:
		return actual != target
	default:
		return false
	}
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
