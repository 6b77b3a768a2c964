// Package logging builds the zap logger used by the CLI and the engine.
package logging

import (
	"fmt"
	"io"
	"strings"

	"github.com/kelseyhightower/envconfig"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config controls logger initialization.
type Config struct {
	// Level controls verbosity (debug, info, warn, error).
	Level string `envconfig:"LOG_LEVEL" default:"info"`

	// Format is "console" or "json".
	Format string `envconfig:"LOG_FORMAT" default:"console"`

	// OutputPath is the log destination (stdout, stderr, or file path).
	OutputPath string `envconfig:"LOG_OUTPUT" default:"stderr"`
}

// DefaultConfig returns a config with the defaults above.
func DefaultConfig() Config {
	return Config{Level: "info", Format: "console", OutputPath: "stderr"}
}

// LoadConfig reads LOG_LEVEL, LOG_FORMAT and LOG_OUTPUT.
func LoadConfig() (Config, error) {
	cfg := DefaultConfig()
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to load logging configuration: %w", err)
	}
	return cfg, nil
}

// New creates a logger with the provided configuration. The returned
// cleanup flushes the logger and closes the output file, if any; call it
// once logging is done.
func New(cfg Config) (*zap.Logger, func(), error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, nil, err
	}

	sink, closeSink, err := zap.Open(outputPath(cfg.OutputPath))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open log output: %w", err)
	}

	logger := NewWithWriter(sink, level, cfg.Format)
	cleanup := func() {
		_ = logger.Sync()
		closeSink()
	}
	return logger, cleanup, nil
}

// NewWithWriter creates a logger writing to w.
func NewWithWriter(w io.Writer, level zapcore.Level, format string) *zap.Logger {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.EncodeLevel = zapcore.LowercaseLevelEncoder

	var encoder zapcore.Encoder
	if strings.EqualFold(format, "json") {
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	} else {
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	}

	core := zapcore.NewCore(encoder, zapcore.AddSync(w), level)
	return zap.New(core, zap.AddStacktrace(zapcore.ErrorLevel))
}

// ParseLevel converts a string log level to zapcore.Level.
// An empty level means info.
func ParseLevel(level string) (zapcore.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zapcore.DebugLevel, nil
	case "", "info":
		return zapcore.InfoLevel, nil
	case "warn", "warning":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	default:
		return zapcore.InfoLevel, fmt.Errorf("unknown log level %q (want debug, info, warn or error)", level)
	}
}

// outputPath maps LOG_OUTPUT onto a zap sink path.
func outputPath(path string) string {
	switch strings.ToLower(path) {
	case "", "stderr":
		return "stderr"
	case "stdout":
		return "stdout"
	default:
		return path
	}
}
