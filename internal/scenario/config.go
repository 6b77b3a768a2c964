// Package scenario defines the hello load test: its environment-derived
// configuration, run options, thresholds and iteration body.
package scenario

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/kelseyhightower/envconfig"
)

// Defaults applied when a variable is unset or empty.
const (
	DefaultServiceEndpoint   = "http://reference-service"
	DefaultRequestsPerSecond = 1000
	DefaultVirtualUsers      = 200
)

// Config holds the environment-derived parameters of the run.
type Config struct {
	// ServiceEndpoint is the base URL of the service under test
	ServiceEndpoint Endpoint `envconfig:"SERVICE_ENDPOINT" default:"http://reference-service" desc:"base URL of the service under test" json:"serviceEndpoint" yaml:"serviceEndpoint"`

	// RequestsPerSecond is the target iteration start rate
	RequestsPerSecond Count `envconfig:"REQ_PER_SECOND" default:"1000" desc:"iterations started per second" json:"requestsPerSecond" yaml:"requestsPerSecond"`

	// VirtualUsers is the size of the pre-allocated VU pool
	VirtualUsers Count `envconfig:"VUS" default:"200" desc:"pre-allocated virtual users" json:"virtualUsers" yaml:"virtualUsers"`
}

// DefaultConfig returns the configuration used when the environment is empty.
func DefaultConfig() Config {
	return Config{
		ServiceEndpoint:   DefaultServiceEndpoint,
		RequestsPerSecond: DefaultRequestsPerSecond,
		VirtualUsers:      DefaultVirtualUsers,
	}
}

// Load reads SERVICE_ENDPOINT, REQ_PER_SECOND and VUS.
//
// Unset or empty variables take their defaults. A REQ_PER_SECOND or VUS
// value that is not a positive integer is an error naming the variable.
func Load() (*Config, error) {
	cfg := DefaultConfig()
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load scenario configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.ServiceEndpoint == "" {
		return fmt.Errorf("SERVICE_ENDPOINT must not be empty")
	}
	if c.RequestsPerSecond <= 0 {
		return fmt.Errorf("REQ_PER_SECOND must be positive, got %d", c.RequestsPerSecond)
	}
	if c.VirtualUsers <= 0 {
		return fmt.Errorf("VUS must be positive, got %d", c.VirtualUsers)
	}
	return nil
}

// Endpoint is a base URL. Decoding an empty value keeps the current one.
type Endpoint string

// Decode implements envconfig.Decoder.
func (e *Endpoint) Decode(value string) error {
	if value = strings.TrimSpace(value); value != "" {
		*e = Endpoint(value)
	}
	return nil
}

// Count is a positive integer. Decoding an empty value keeps the current one.
type Count int

// Decode implements envconfig.Decoder.
func (n *Count) Decode(value string) error {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	v, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("%q is not an integer", value)
	}
	if v <= 0 {
		return fmt.Errorf("%d is not positive", v)
	}
	*n = Count(v)
	return nil
}
