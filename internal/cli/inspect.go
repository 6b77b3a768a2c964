package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/wesleyorama2/hello-load/internal/performance/engine"
	"github.com/wesleyorama2/hello-load/internal/performance/threshold"
	"github.com/wesleyorama2/hello-load/internal/scenario"
)

// inspectView is the resolved configuration as printed by inspect.
type inspectView struct {
	Environment       scenario.Config        `json:"environment" yaml:"environment"`
	URL               string                 `json:"url" yaml:"url"`
	Tags              map[string]string      `json:"tags" yaml:"tags"`
	Scenario          scenarioView           `json:"scenario" yaml:"scenario"`
	SummaryTrendStats []string               `json:"summaryTrendStats" yaml:"summaryTrendStats"`
	Thresholds        []threshold.Definition `json:"thresholds" yaml:"thresholds"`
}

type scenarioView struct {
	Name            string `json:"name" yaml:"name"`
	Executor        string `json:"executor" yaml:"executor"`
	Rate            int    `json:"rate" yaml:"rate"`
	TimeUnit        string `json:"timeUnit" yaml:"timeUnit"`
	Duration        string `json:"duration" yaml:"duration"`
	PreAllocatedVUs int    `json:"preAllocatedVUs" yaml:"preAllocatedVUs"`
	MaxVUs          int    `json:"maxVUs" yaml:"maxVUs"`
	GracefulStop    string `json:"gracefulStop" yaml:"gracefulStop"`
}

func newInspectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Print the resolved test options",
		Long: `Inspect resolves SERVICE_ENDPOINT, REQ_PER_SECOND and VUS and prints the
options the run command would use, without sending any request.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			asJSON, _ := cmd.Flags().GetBool("json")
			showEnv, _ := cmd.Flags().GetBool("env")
			w := cmd.OutOrStdout()

			if showEnv {
				return printEnvUsage(w)
			}

			cfg, err := scenario.Load()
			if err != nil {
				return &exitError{code: ExitError, err: err}
			}
			return writeInspect(w, newInspectView(cfg, scenario.Options(cfg, nil)), asJSON)
		},
	}

	cmd.Flags().Bool("json", false, "print JSON instead of YAML")
	cmd.Flags().Bool("env", false, "list the environment variables read by the scenario")
	return cmd
}

func newInspectView(cfg *scenario.Config, opts *engine.TestConfig) *inspectView {
	ex := opts.Executor
	return &inspectView{
		Environment: *cfg,
		URL:         scenario.HelloURL(string(cfg.ServiceEndpoint)),
		Tags:        opts.Tags,
		Scenario: scenarioView{
			Name:            ex.Name,
			Executor:        string(ex.Type),
			Rate:            ex.Rate,
			TimeUnit:        ex.TimeUnit.String(),
			Duration:        ex.Duration.String(),
			PreAllocatedVUs: ex.PreAllocatedVUs,
			MaxVUs:          ex.MaxVUs,
			GracefulStop:    ex.GracefulStop.String(),
		},
		SummaryTrendStats: opts.SummaryTrendStats,
		Thresholds:        opts.Thresholds,
	}
}

func writeInspect(w io.Writer, view *inspectView, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(view)
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(view); err != nil {
		return fmt.Errorf("failed to encode options: %w", err)
	}
	return enc.Close()
}

func printEnvUsage(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 1, 0, 4, ' ', 0)
	cfg := scenario.DefaultConfig()
	if err := envconfig.Usagef("", &cfg, tw, envconfig.DefaultTableFormat); err != nil {
		return fmt.Errorf("failed to print environment usage: %w", err)
	}
	return tw.Flush()
}
