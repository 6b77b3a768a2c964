package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wesleyorama2/hello-load/internal/performance/engine"
	"github.com/wesleyorama2/hello-load/internal/performance/output"
	"github.com/wesleyorama2/hello-load/internal/scenario"
)

// runOptions are the flags of the run command.
type runOptions struct {
	quiet          bool
	noColor        bool
	summaryExport  string
	updateInterval time.Duration
}

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the hello load test",
		Long: `Run starts GET {SERVICE_ENDPOINT}/hello at REQ_PER_SECOND iterations per
second for one minute using a pool of VUS virtual users.

Exit codes:
  0   every threshold passed
  99  one or more thresholds failed
  1   configuration or runtime error`,
		Example: `  SERVICE_ENDPOINT=http://localhost:8080 REQ_PER_SECOND=50 VUS=10 hello-load run
  hello-load run --quiet --summary-export summary.json`,
		Args: cobra.NoArgs,
		RunE: runScenario,
	}

	cmd.Flags().BoolP("quiet", "q", false, "only print the verdict")
	cmd.Flags().Bool("no-color", false, "disable colored output")
	cmd.Flags().String("summary-export", "", "write the end-of-test summary as JSON to this file")
	cmd.Flags().Duration("update-interval", time.Second, "interval between progress updates")
	return cmd
}

func runScenario(cmd *cobra.Command, args []string) error {
	quiet, _ := cmd.Flags().GetBool("quiet")
	noColor, _ := cmd.Flags().GetBool("no-color")
	summaryExport, _ := cmd.Flags().GetString("summary-export")
	updateInterval, _ := cmd.Flags().GetDuration("update-interval")

	logger, cleanup, err := newLogger(cmd)
	if err != nil {
		return &exitError{code: ExitError, err: err}
	}
	defer cleanup()

	cfg, err := scenario.Load()
	if err != nil {
		return &exitError{code: ExitError, err: err}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	code, err := execute(ctx, scenario.Options(cfg, logger), runOptions{
		quiet:          quiet,
		noColor:        noColor,
		summaryExport:  summaryExport,
		updateInterval: updateInterval,
	}, cmd.OutOrStdout(), logger)
	if code != ExitOK {
		return &exitError{code: code, err: err}
	}
	return nil
}

// execute runs opts to completion and returns the exit code.
func execute(ctx context.Context, opts *engine.TestConfig, ro runOptions, w io.Writer, logger *zap.Logger) (int, error) {
	eng, err := engine.NewEngine(opts)
	if err != nil {
		return ExitError, fmt.Errorf("failed to create engine: %w", err)
	}

	console := output.NewConsoleOutput(output.ConsoleOutputConfig{
		TestName:       opts.Name,
		UpdateInterval: ro.updateInterval,
		Writer:         w,
		Quiet:          ro.quiet,
		NoColor:        ro.noColor,
	})
	console.PrintHeader(opts)

	watchCtx, stopWatch := context.WithCancel(ctx)
	watchDone := make(chan struct{})
	go func() {
		defer close(watchDone)
		console.Watch(watchCtx, eng)
	}()

	result, runErr := eng.Run(ctx)
	stopWatch()
	<-watchDone

	if result == nil {
		return ExitError, fmt.Errorf("test failed to start: %w", runErr)
	}

	console.PrintSummary(result)

	if ro.summaryExport != "" {
		if err := output.ExportJSON(ro.summaryExport, result); err != nil {
			return ExitError, err
		}
		logger.Info("summary exported", zap.String("path", ro.summaryExport))
	}

	switch {
	case !result.Passed:
		return ExitThresholdsFailed, errors.New("some thresholds have failed")
	case runErr != nil:
		return ExitError, fmt.Errorf("test interrupted: %w", runErr)
	}
	return ExitOK, nil
}
