package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var historyLimit int

var tasksCmd = &cobra.Command{
	Use:   "tasks",
	Short: "List the scheduled maintenance tasks",
	Args:  cobra.NoArgs,
	RunE:  runTasks,
}

var tasksHistoryCmd = &cobra.Command{
	Use:   "history <task-id>",
	Short: "Show the recent results of a task",
	Args:  cobra.ExactArgs(1),
	RunE:  runTasksHistory,
}

func init() {
	tasksHistoryCmd.Flags().IntVarP(&historyLimit, "limit", "n", 10, "number of results to show")
	tasksCmd.AddCommand(tasksHistoryCmd)
	rootCmd.AddCommand(tasksCmd)
}

func runTasks(cmd *cobra.Command, _ []string) error {
	if scheduler == nil {
		return errors.New("scheduler not configured")
	}

	tasks, err := scheduler.Tasks(cmd.Context())
	if err != nil {
		return fmt.Errorf("listing tasks: %w", err)
	}
	if len(tasks) == 0 {
		cmd.Println("No tasks have run yet.")
		return nil
	}

	for i := range tasks {
		t := &tasks[i]
		state := successStyle.Render("enabled")
		if !t.Enabled {
			state = mutedStyle.Render("disabled")
		}
		cmd.Printf("%s  %s  every %s\n", labelStyle.Render(t.ID), state, t.Interval)
		cmd.Printf("  last run: %s  next run: %s\n", formatTime(t.LastRun), formatTime(t.NextRun))
		if t.LastError != "" {
			cmd.Println(errorStyle.Render("  last error: " + t.LastError))
		}
	}
	return nil
}

func runTasksHistory(cmd *cobra.Command, args []string) error {
	if scheduler == nil {
		return errors.New("scheduler not configured")
	}

	results, err := scheduler.History(cmd.Context(), args[0], historyLimit)
	if err != nil {
		return fmt.Errorf("task history: %w", err)
	}
	if len(results) == 0 {
		cmd.Println("No results recorded.")
		return nil
	}

	for i := range results {
		r := &results[i]
		status := successStyle.Render("ok    ")
		if !r.Success {
			status = errorStyle.Render("failed")
		}
		cmd.Printf("  %s %s  %3d items  %s\n", formatTime(r.StartedAt), status,
			r.ItemsProcessed, r.EndedAt.Sub(r.StartedAt).Round(time.Millisecond))
		if r.Error != "" {
			cmd.Println(mutedStyle.Render("    " + r.Error))
		}
	}
	return nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}
