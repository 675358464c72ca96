package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/legout/flowerpower-sub010/backend"
	"github.com/legout/flowerpower-sub010/logger"
)

var startWorkerCmd = &cobra.Command{
	Use:   "start-worker",
	Short: "Consume jobs from the configured backend until interrupted",
	Long: `Start-worker runs the backend's processing loop in the foreground.

With --with-scheduler the worker also promotes deferred and recurring
jobs when their fire time arrives; a deployment needs at least one such
worker for those to run.`,
	Args: cobra.NoArgs,
	RunE: runStartWorker,
}

var (
	workerQueues    []string
	workerScheduler bool
)

func init() {
	rootCmd.AddCommand(startWorkerCmd)

	startWorkerCmd.Flags().StringSliceVar(&workerQueues, "queues", nil, "Queues to consume (default: project queue)")
	startWorkerCmd.Flags().BoolVar(&workerScheduler, "with-scheduler", false, "Also run the trigger promotion loop")
}

func runStartWorker(cmd *cobra.Command, args []string) error {
	m, err := openManager(cmd)
	if err != nil {
		return err
	}
	defer m.Close()

	err = m.StartWorker(cmd.Context(), backend.WorkerOptions{
		Queues:        workerQueues,
		WithScheduler: workerScheduler,
	})
	if err != nil {
		return err
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down worker")
	return m.StopWorker(context.Background())
}
