// Command flowerpower is the command surface of the pipeline
// orchestrator: run pipelines in-process, submit them as jobs, schedule
// them, inspect graphs, and drive workers.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/legout/flowerpower-sub010/logger"
	"github.com/legout/flowerpower-sub010/manager"
)

var (
	rootDir   string
	logLevel  string
	logFormat string
)

var rootCmd = &cobra.Command{
	Use:   "flowerpower",
	Short: "Pipeline orchestration and job scheduling",
	Long: `flowerpower runs dataflow pipelines and manages them as jobs.

Pipelines are named sets of dependent nodes, defined in code or in YAML
under the project's pipelines directory. Runs resolve configuration from
the project and pipeline documents, the environment, and command flags.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logger.SetGlobalLogger(logger.New(&logger.Config{
			Level:  logLevel,
			Format: logFormat,
		}, "flowerpower"))
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&rootDir, "root", ".", "Project root directory")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug|info|warn|error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "console", "Log format (console|json)")
}

// openManager builds a Manager for the configured project root.
func openManager(cmd *cobra.Command) (*manager.Manager, error) {
	return manager.New(cmd.Context(), manager.Options{
		Root:   rootDir,
		Logger: logger.GetGlobalLogger(),
	})
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
