package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wesleyorama2/hello-load/pkg/summary"
)

func newReportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report FILE",
		Short: "Validate an exported summary and print its verdict",
		Long: `Report reads a summary written by "run --summary-export", validates it
against the summary schema and exits like the run that produced it:
0 when every threshold passed, 99 otherwise.

Use --get to print individual values, as gjson paths or simple JSONPath:
  hello-load report summary.json --get '$.metrics.http_reqs.values.rate'`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			paths, _ := cmd.Flags().GetStringArray("get")
			printSchema, _ := cmd.Flags().GetBool("schema")
			w := cmd.OutOrStdout()

			if printSchema {
				fmt.Fprintln(w, summary.Schema())
				return nil
			}
			if len(args) == 0 {
				return &exitError{code: ExitError, err: errors.New("report requires a summary file")}
			}

			f, err := summary.Load(args[0])
			if err != nil {
				return &exitError{code: ExitError, err: err}
			}

			if len(paths) > 0 {
				values, err := summary.ExtractMultiple(f.Data, paths)
				for _, p := range paths {
					if v, ok := values[p]; ok {
						fmt.Fprintf(w, "%s\t%s\n", p, v)
					}
				}
				if err != nil {
					return &exitError{code: ExitError, err: err}
				}
				return nil
			}

			if f.Passed() {
				fmt.Fprintln(w, "PASSED")
				return nil
			}
			fmt.Fprintln(w, "FAILED")
			for _, t := range f.FailedThresholds() {
				fmt.Fprintf(w, "  ✗ %s\n", t)
			}
			return &exitError{code: ExitThresholdsFailed, err: errors.New("some thresholds have failed")}
		},
	}

	cmd.Flags().StringArray("get", nil, "print the value at this path (repeatable)")
	cmd.Flags().Bool("schema", false, "print the summary JSON Schema and exit")
	return cmd
}
