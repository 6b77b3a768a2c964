// Package executor provides load generation strategies for performance testing.
package executor

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/wesleyorama2/hello-load/internal/performance"
	"github.com/wesleyorama2/hello-load/internal/performance/metrics"
	"github.com/wesleyorama2/hello-load/internal/performance/rate"
)

// Type identifies the type of executor.
type Type string

const (
	// TypeConstantArrivalRate starts a fixed number of iterations per time
	// unit, independent of how long iterations take.
	TypeConstantArrivalRate Type = "constant-arrival-rate"
)

// DefaultGracefulStop is how long in-flight iterations may run after the
// executor's duration ends before they are cancelled.
const DefaultGracefulStop = 30 * time.Second

// Executor defines the interface for load generation strategies.
//
// Executors control HOW load is generated; the iteration function
// controls WHAT each iteration does.
type Executor interface {
	// Type returns the executor type.
	Type() Type

	// Init validates and stores the configuration. Called once before Run.
	Init(ctx context.Context, config *Config) error

	// Run starts the executor and blocks until every iteration it started
	// has returned or been cancelled.
	Run(ctx context.Context, scheduler *performance.VUScheduler, metrics *metrics.Engine, fn performance.IterationFunc) error

	// GetProgress returns current progress (0.0 to 1.0).
	GetProgress() float64

	// GetStats returns executor-specific statistics.
	GetStats() *Stats

	// Stop ends the executor early.
	Stop(ctx context.Context) error
}

// Config contains configuration for an executor.
type Config struct {
	// Name is the scenario this executor runs
	Name string `json:"name" yaml:"name"`

	// Type is the executor type
	Type Type `json:"executor" yaml:"executor"`

	// Rate is the number of iteration starts per TimeUnit
	Rate int `json:"rate" yaml:"rate"`

	// TimeUnit is the period Rate refers to (default 1s)
	TimeUnit time.Duration `json:"timeUnit" yaml:"timeUnit"`

	// Duration is how long new iterations are started
	Duration time.Duration `json:"duration" yaml:"duration"`

	// PreAllocatedVUs is the size of the VU pool
	PreAllocatedVUs int `json:"preAllocatedVUs" yaml:"preAllocatedVUs"`

	// MaxVUs caps the pool; it defaults to PreAllocatedVUs
	MaxVUs int `json:"maxVUs,omitempty" yaml:"maxVUs,omitempty"`

	// GracefulStop is how long to wait for iterations to finish
	GracefulStop time.Duration `json:"gracefulStop,omitempty" yaml:"gracefulStop,omitempty"`

	// Logger receives scheduling warnings; nil disables them
	Logger *zap.Logger `json:"-" yaml:"-"`
}

// Stats contains real-time executor statistics.
type Stats struct {
	StartTime     time.Time     `json:"startTime"`
	Elapsed       time.Duration `json:"elapsed"`
	TotalDuration time.Duration `json:"totalDuration"`

	ActiveVUs int `json:"activeVUs"`
	MaxVUs    int `json:"maxVUs"`

	Iterations        int64 `json:"iterations"`
	DroppedIterations int64 `json:"droppedIterations"`

	TargetRate float64 `json:"targetRate"` // starts per second

	// Pacer describes the start scheduler; nil before Run.
	Pacer *rate.LeakyBucketStats `json:"pacer,omitempty"`
}

// Validate validates the executor configuration.
func (c *Config) Validate() error {
	if c.Type == "" {
		return &ValidationError{Field: "executor", Message: "executor type is required"}
	}

	switch c.Type {
	case TypeConstantArrivalRate:
		if c.Rate <= 0 {
			return &ValidationError{Field: "rate", Message: fmt.Sprintf("rate must be > 0, got %d", c.Rate)}
		}
		if c.TimeUnit < 0 {
			return &ValidationError{Field: "timeUnit", Message: "timeUnit must be >= 0"}
		}
		if c.Duration <= 0 {
			return &ValidationError{Field: "duration", Message: "duration must be > 0"}
		}
		if c.PreAllocatedVUs <= 0 {
			return &ValidationError{Field: "preAllocatedVUs", Message: fmt.Sprintf("preAllocatedVUs must be > 0, got %d", c.PreAllocatedVUs)}
		}
		if c.MaxVUs != 0 && c.MaxVUs < c.PreAllocatedVUs {
			return &ValidationError{Field: "maxVUs", Message: "maxVUs must be >= preAllocatedVUs"}
		}

	default:
		return &ValidationError{Field: "executor", Message: "unknown executor type: " + string(c.Type)}
	}

	return nil
}

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return "validation error on field '" + e.Field + "': " + e.Message
}

// New returns an uninitialized executor for the given type.
func New(t Type) (Executor, error) {
	switch t {
	case TypeConstantArrivalRate:
		return NewConstantArrivalRate(), nil
	default:
		return nil, &ValidationError{Field: "executor", Message: "unknown executor type: " + string(t)}
	}
}
