package cli

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wesleyorama2/hello-load/internal/logging"
)

var version = "0.1.0"

// Exit codes returned by Execute.
const (
	ExitOK               = 0
	ExitError            = 1
	ExitThresholdsFailed = 99
)

// exitError carries a process exit code through cobra's error return.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	return e.err.Error()
}

func (e *exitError) Unwrap() error {
	return e.err
}

// NewRootCmd builds the command tree writing to stdout and stderr.
func NewRootCmd(stdout, stderr io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:     "hello-load",
		Short:   "Constant-arrival-rate load test for the hello endpoint",
		Version: version,
		Long: `hello-load drives GET {SERVICE_ENDPOINT}/hello at a constant arrival rate
for one minute, checks every response and fails when a threshold is crossed.

Environment:
  SERVICE_ENDPOINT  base URL of the service (default http://reference-service)
  REQ_PER_SECOND    iterations started per second (default 1000)
  VUS               pre-allocated virtual users (default 200)`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Run: func(cmd *cobra.Command, args []string) {
			// If no subcommand is provided, print help
			cmd.Help()
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	root.PersistentFlags().String("log-level", "", "log level: debug, info, warn, error (default from LOG_LEVEL, else info)")

	root.AddCommand(newRunCmd())
	root.AddCommand(newInspectCmd())
	root.AddCommand(newStubCmd())
	root.AddCommand(newReportCmd())
	return root
}

// Execute runs the CLI with os.Args and returns the process exit code.
func Execute() int {
	return ExecuteArgs(os.Args[1:], os.Stdout, os.Stderr)
}

// ExecuteArgs runs the CLI with args and returns the process exit code.
func ExecuteArgs(args []string, stdout, stderr io.Writer) int {
	if args == nil {
		args = []string{}
	}
	root := NewRootCmd(stdout, stderr)
	root.SetArgs(args)

	err := root.Execute()
	if err == nil {
		return ExitOK
	}

	var ee *exitError
	if errors.As(err, &ee) {
		if ee.err != nil && ee.code != ExitThresholdsFailed {
			fmt.Fprintln(stderr, "Error:", ee.err)
		}
		return ee.code
	}

	fmt.Fprintln(stderr, "Error:", err)
	return ExitError
}

// newLogger builds the logger from LOG_* variables and the --log-level flag.
// The caller must run the returned cleanup before exiting.
func newLogger(cmd *cobra.Command) (*zap.Logger, func(), error) {
	cfg, err := logging.LoadConfig()
	if err != nil {
		return nil, nil, err
	}
	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.Level = level
	}
	return logging.New(cfg)
}
