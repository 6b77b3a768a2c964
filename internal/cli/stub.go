package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/cobra"

	"github.com/wesleyorama2/hello-load/internal/stub"
)

func newStubCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stub",
		Short: "Serve a stand-in for the reference service",
		Long: `Stub serves GET /hello answering "Hello <name>" (default "world"), plus
GET /internal/status and GET /metrics. Use it as SERVICE_ENDPOINT for local runs.`,
		Example: `  hello-load stub --addr :8080 --latency 20ms
  SERVICE_ENDPOINT=http://localhost:8080 hello-load run`,
		Args: cobra.NoArgs,
		RunE: runStub,
	}

	cmd.Flags().String("addr", "", "listen address (default from STUB_ADDR, else :8080)")
	cmd.Flags().String("internal-addr", "", "separate listen address for /internal/status and /metrics")
	cmd.Flags().Duration("latency", 0, "delay added to every /hello response")
	return cmd
}

// loadStubConfig reads STUB_* variables and applies any flags that were set.
func loadStubConfig(cmd *cobra.Command) (stub.Config, error) {
	var cfg stub.Config
	if err := envconfig.Process("", &cfg); err != nil {
		return stub.Config{}, fmt.Errorf("failed to load stub configuration: %w", err)
	}

	flags := cmd.Flags()
	if flags.Changed("addr") {
		cfg.Addr, _ = flags.GetString("addr")
	}
	if flags.Changed("internal-addr") {
		cfg.InternalAddr, _ = flags.GetString("internal-addr")
	}
	if flags.Changed("latency") {
		cfg.Latency, _ = flags.GetDuration("latency")
	}
	if cfg.Latency < 0 {
		return stub.Config{}, fmt.Errorf("latency must not be negative, got %s", cfg.Latency)
	}
	return cfg, nil
}

func runStub(cmd *cobra.Command, args []string) error {
	cfg, err := loadStubConfig(cmd)
	if err != nil {
		return &exitError{code: ExitError, err: err}
	}

	logger, cleanup, err := newLogger(cmd)
	if err != nil {
		return &exitError{code: ExitError, err: err}
	}
	defer cleanup()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := stub.New(cfg, logger).ListenAndServe(ctx); err != nil {
		return &exitError{code: ExitError, err: err}
	}
	return nil
}
