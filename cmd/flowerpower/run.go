package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/legout/flowerpower-sub010/config"
)

var runCmd = &cobra.Command{
	Use:   "run <pipeline>",
	Short: "Run a pipeline to completion in this process",
	Long: `Run resolves the pipeline's configuration and modules, composes the
graph, and executes it in the calling process. Results for the requested
final vars are printed as JSON.

Example:
  flowerpower run sales
  flowerpower run sales --final-vars total,summary --input region=eu
  flowerpower run sales --executor concurrent --max-workers 8 --reload`,
	Args: cobra.ExactArgs(1),
	RunE: runRun,
}

var (
	runInputs     []string
	runFinalVars  []string
	runExecutor   string
	runMaxWorkers int
	runNoCache    bool
	runReload     bool
	runAsync      bool
	runLogLevel   string
)

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringArrayVar(&runInputs, "input", nil, "Run input as key=value (repeatable)")
	runCmd.Flags().StringSliceVar(&runFinalVars, "final-vars", nil, "Outputs to compute and return")
	runCmd.Flags().StringVar(&runExecutor, "executor", "", "Executor type (sequential|concurrent)")
	runCmd.Flags().IntVar(&runMaxWorkers, "max-workers", 0, "Concurrent executor worker cap")
	runCmd.Flags().BoolVar(&runNoCache, "no-cache", false, "Disable result caching for this run")
	runCmd.Flags().BoolVar(&runReload, "reload", false, "Re-read modules from disk before running")
	runCmd.Flags().BoolVar(&runAsync, "async", false, "Run in suspendable mode")
	runCmd.Flags().StringVar(&runLogLevel, "run-log-level", "", "Log level override for this run")
}

func runRun(cmd *cobra.Command, args []string) error {
	m, err := openManager(cmd)
	if err != nil {
		return err
	}
	defer m.Close()

	ov, err := runOverrides()
	if err != nil {
		return err
	}
	results, err := m.RunNow(cmd.Context(), args[0], ov)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(results)
}

// runOverrides assembles the explicit runtime override layer from flags.
// Only flags the user actually set become overrides, so document and
// environment values survive.
func runOverrides() (config.Overrides, error) {
	ov := config.Overrides{FinalVars: runFinalVars}

	if len(runInputs) > 0 {
		ov.Inputs = make(map[string]any, len(runInputs))
		for _, pair := range runInputs {
			key, value, found := strings.Cut(pair, "=")
			if !found || key == "" {
				return ov, fmt.Errorf("invalid --input %q, expected key=value", pair)
			}
			ov.Inputs[key] = parseInputValue(value)
		}
	}
	if runExecutor != "" {
		ov.ExecutorType = &runExecutor
	}
	if runMaxWorkers > 0 {
		ov.MaxWorkers = &runMaxWorkers
	}
	if runNoCache {
		f := false
		ov.Cache = &f
	}
	if runReload {
		ov.Reload = &runReload
	}
	if runAsync {
		ov.Async = &runAsync
	}
	if runLogLevel != "" {
		ov.LogLevel = &runLogLevel
	}
	return ov, nil
}

// parseInputValue coerces flag values the way a YAML scalar would parse:
// numbers and booleans become typed, everything else stays a string.
func parseInputValue(v string) any {
	var typed any
	if err := json.Unmarshal([]byte(v), &typed); err == nil {
		switch typed.(type) {
		case float64, bool:
			return typed
		}
	}
	return v
}
