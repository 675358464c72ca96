package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/legout/flowerpower-sub010/backend"
	"github.com/legout/flowerpower-sub010/config"
	"github.com/legout/flowerpower-sub010/manager"
)

var enqueueCmd = &cobra.Command{
	Use:   "enqueue <pipeline>",
	Short: "Submit a pipeline for one execution through the job engine",
	Args:  cobra.ExactArgs(1),
	RunE:  runEnqueue,
}

var scheduleCmd = &cobra.Command{
	Use:   "schedule <pipeline>",
	Short: "Submit a pipeline under a trigger",
	Long: `Schedule submits the pipeline with a trigger. Without --trigger the
schedule from the pipeline document applies.

Trigger forms:
  now
  every:30s              every:30s@2026-01-02T15:04:05Z
  cron:0 2 * * *         cron:0 2 * * *@Europe/Berlin
  at:2026-01-02T15:04:05Z`,
	Args: cobra.ExactArgs(1),
	RunE: runSchedule,
}

var jobCmd = &cobra.Command{
	Use:   "job",
	Short: "Inspect and manage submitted jobs",
}

var jobStatusCmd = &cobra.Command{
	Use:   "status <job-id>",
	Short: "Show a job's state and record",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobStatus,
}

var jobCancelCmd = &cobra.Command{
	Use:   "cancel <job-id>",
	Short: "Cancel a job",
	Args:  cobra.ExactArgs(1),
	RunE:  jobTransition("cancelled", (*manager.Manager).CancelJob),
}

var jobPauseCmd = &cobra.Command{
	Use:   "pause <job-id>",
	Short: "Pause a pending job",
	Args:  cobra.ExactArgs(1),
	RunE:  jobTransition("paused", (*manager.Manager).PauseJob),
}

var jobResumeCmd = &cobra.Command{
	Use:   "resume <job-id>",
	Short: "Resume a paused job",
	Args:  cobra.ExactArgs(1),
	RunE:  jobTransition("resumed", (*manager.Manager).ResumeJob),
}

var historyCmd = &cobra.Command{
	Use:   "history [queue]",
	Short: "List a queue's jobs, newest first",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runHistory,
}

var purgeCmd = &cobra.Command{
	Use:   "purge-queue [queue]",
	Short: "Remove all jobs of a queue",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runPurge,
}

var (
	triggerSpec string
	jobQueue    string
)

func init() {
	rootCmd.AddCommand(enqueueCmd, scheduleCmd, jobCmd, historyCmd, purgeCmd)
	jobCmd.AddCommand(jobStatusCmd, jobCancelCmd, jobPauseCmd, jobResumeCmd)

	scheduleCmd.Flags().StringVar(&triggerSpec, "trigger", "", "Trigger spec (default: pipeline document schedule)")
	jobCmd.PersistentFlags().StringVar(&jobQueue, "queue", "", "Queue the job was submitted to")

	enqueueCmd.Flags().StringArrayVar(&runInputs, "input", nil, "Run input as key=value (repeatable)")
	enqueueCmd.Flags().StringSliceVar(&runFinalVars, "final-vars", nil, "Outputs to compute and return")
	enqueueCmd.Flags().BoolVar(&runAsync, "async", false, "Request suspendable execution")
}

func runEnqueue(cmd *cobra.Command, args []string) error {
	m, err := openManager(cmd)
	if err != nil {
		return err
	}
	defer m.Close()

	ov, err := runOverrides()
	if err != nil {
		return err
	}
	handle, err := m.Enqueue(cmd.Context(), args[0], ov)
	if err != nil {
		return err
	}
	fmt.Printf("job %s submitted to queue %s\n", handle.ID, handle.Queue)
	return nil
}

func runSchedule(cmd *cobra.Command, args []string) error {
	m, err := openManager(cmd)
	if err != nil {
		return err
	}
	defer m.Close()

	handle, err := m.Schedule(cmd.Context(), args[0], triggerSpec, config.Overrides{})
	if err != nil {
		return err
	}
	fmt.Printf("schedule %s stored on queue %s\n", handle.ID, handle.Queue)
	return nil
}

// jobTransition builds a RunE that applies one job state transition.
func jobTransition(past string, op func(*manager.Manager, context.Context, *backend.JobHandle) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		m, err := openManager(cmd)
		if err != nil {
			return err
		}
		defer m.Close()

		handle := &backend.JobHandle{ID: args[0], Queue: jobQueue}
		if err := op(m, cmd.Context(), handle); err != nil {
			return err
		}
		fmt.Printf("job %s %s\n", handle.ID, past)
		return nil
	}
}

func runJobStatus(cmd *cobra.Command, args []string) error {
	m, err := openManager(cmd)
	if err != nil {
		return err
	}
	defer m.Close()

	record, err := m.JobRecord(cmd.Context(), &backend.JobHandle{ID: args[0], Queue: jobQueue})
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(record)
}

func runHistory(cmd *cobra.Command, args []string) error {
	m, err := openManager(cmd)
	if err != nil {
		return err
	}
	defer m.Close()

	queue := ""
	if len(args) > 0 {
		queue = args[0]
	}
	records, err := m.History(cmd.Context(), queue)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATE\tCALLABLE\tENQUEUED\tATTEMPTS\tERROR")
	for _, r := range records {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\n",
			r.ID, r.State, r.Callable, r.EnqueuedAt.Format("2006-01-02 15:04:05"), r.Attempts, r.Error)
	}
	return w.Flush()
}

func runPurge(cmd *cobra.Command, args []string) error {
	m, err := openManager(cmd)
	if err != nil {
		return err
	}
	defer m.Close()

	queue := ""
	if len(args) > 0 {
		queue = args[0]
	}
	if err := m.PurgeQueue(cmd.Context(), queue); err != nil {
		return err
	}
	fmt.Println("queue purged")
	return nil
}
