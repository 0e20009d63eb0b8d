package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"go-bookfetch/internal/state"
)

var cancelCmd = &cobra.Command{
	Use:   "cancel <task-id>",
	Short: "Cancel a queued or running download task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		if err := client.CancelDownload(cmd.Context(), args[0]); err != nil {
			return fmt.Errorf("cancel failed: %w", err)
		}
		fmt.Printf("Cancelled task %s\n", args[0])
		return nil
	},
}

var retryCmd = &cobra.Command{
	Use:   "retry <task-id>",
	Short: "Re-queue a failed download task",
	RunE:  runRetry,
	Args:  cobra.ExactArgs(1),
}

func runRetry(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	taskID := args[0]
	if err := a.client.RetryDownload(cmd.Context(), taskID); err != nil {
		return fmt.Errorf("retry failed: %w", err)
	}

	// A retried task is live again; an old dismissal must not hide it once
	// it resolves a second time.
	if err := a.state.Undismiss(state.DownloadKey(taskID)); err != nil {
		fmt.Printf("Warning: could not reset dismissal for %s: %v\n", taskID, err)
	}

	fmt.Printf("Retrying task %s\n", taskID)
	return nil
}

func init() {
	rootCmd.AddCommand(cancelCmd)
	rootCmd.AddCommand(retryCmd)
}
