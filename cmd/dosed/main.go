// dosed runs reagent dosing batches: it loads a YAML batch file, executes
// every scenario through the bounded worker pool against the built-in
// response-surface evaluator, prints a summary table and optionally persists
// the report to a SQLite history store.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	_ "go.uber.org/automaxprocs"

	"github.com/aquatics-lab/dosing-core/internal/batch"
	"github.com/aquatics-lab/dosing-core/pkg/config"
	"github.com/aquatics-lab/dosing-core/pkg/logger"
)

var version = "dev"

type runOpts struct {
	parallel  int
	logLevel  string
	logFormat string
	storePath string
}

func main() {
	var o runOpts

	root := &cobra.Command{
		Use:   "dosed",
		Short: "Reagent dosing search and optimization runner",
	}

	runCmd := &cobra.Command{
		Use:   "run <batch.yaml>",
		Short: "Execute a batch of dosing scenarios",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, args[0], o)
		},
	}
	runCmd.Flags().IntVar(&o.parallel, "parallel", 0, "override the batch file's parallel limit")
	runCmd.Flags().StringVar(&o.logLevel, "log-level", "", "override the batch file's log level (debug, info, warn, error)")
	runCmd.Flags().StringVar(&o.logFormat, "log-format", "text", "log output format: text or json")
	runCmd.Flags().StringVar(&o.storePath, "store", "", "append the report to a SQLite history store at this path")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the dosed version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("dosed %s\n", version)
		},
	}

	root.AddCommand(runCmd, versionCmd)

	if err := root.Execute(); err != nil {
		logger.Error(err.Error())
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, path string, o runOpts) error {
	file, err := config.LoadBatch(path)
	if err != nil {
		return err
	}

	level := file.LogLevel
	if o.logLevel != "" {
		level = o.logLevel
	}
	switch o.logFormat {
	case "json":
		logger.SetDefault(logger.New(level, os.Stdout))
	case "text":
		logger.SetDefault(logger.NewText(level, os.Stdout))
	default:
		return fmt.Errorf("invalid log format %q (must be text or json)", o.logFormat)
	}

	if o.parallel != 0 {
		file.Executor.ParallelLimit = o.parallel
	}

	eval, err := batch.BuildEvaluator(file)
	if err != nil {
		return err
	}
	opts, err := batch.BuildOptions(file)
	if err != nil {
		return err
	}
	scenarios, err := batch.BuildScenarios(file)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	exec := batch.NewExecutor(eval, opts)
	report, err := exec.RunBatch(ctx, scenarios)
	if err != nil {
		return err
	}

	printReport(report)

	if o.storePath != "" {
		store, err := batch.NewStore(o.storePath)
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer store.Close()
		if err := store.Save(report); err != nil {
			return fmt.Errorf("save report: %w", err)
		}
		logger.Info("report persisted", "batch_id", report.ID, "path", o.storePath)
	}

	if report.Failed() > 0 {
		return fmt.Errorf("%d of %d scenarios did not succeed", report.Failed(), report.Len())
	}
	return nil
}

func printReport(report *batch.BatchReport) {
	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SCENARIO\tSTATUS\tRESULT\tDURATION")
	for _, res := range report.Results {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", res.Name, res.Status, summarize(res), res.Duration.Round(100*time.Microsecond))
	}
	tw.Flush()
	fmt.Printf("\nbatch %s: %d succeeded, %d failed\n", report.ID, report.Succeeded(), report.Failed())
}

func summarize(res batch.ScenarioResult) string {
	switch {
	case res.Err != nil:
		return res.Err.Error()
	case res.Search != nil:
		return fmt.Sprintf("dose %.4g (observed %.4g after %d evals)",
			res.Search.Dose, res.Search.Observed, res.Search.Evaluations)
	case res.Optimize != nil && res.Optimize.Best != nil:
		return fmt.Sprintf("doses %v score %.4g (%d evals)",
			res.Optimize.Best.Doses, res.Optimize.Best.Score, res.Optimize.Evaluations)
	case res.Observation != nil:
		return fmt.Sprintf("%d parameters observed", len(res.Observation.Values))
	default:
		return "-"
	}
}
