package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"go-bookfetch/internal/models"
)

var (
	fetchSHA256 string
	fetchBLAKE3 string
)

var fetchCmd = &cobra.Command{
	Use:   "fetch <task-id>",
	Short: "Save a completed download task's file to the local save path",
	Args:  cobra.ExactArgs(1),
	RunE:  runFetch,
}

func init() {
	fetchCmd.Flags().StringVar(&fetchSHA256, "sha256", "", "Expected SHA256 digest of the file")
	fetchCmd.Flags().StringVar(&fetchBLAKE3, "blake3", "", "Expected BLAKE3 digest of the file")
	rootCmd.AddCommand(fetchCmd)
}

func runFetch(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()
	ctx := cmd.Context()

	taskID := args[0]
	if err := a.feed.Refresh(ctx); err != nil {
		return fmt.Errorf("failed to fetch status: %w", err)
	}

	snapshot := a.feed.Snapshot()
	st, book, ok := snapshot.Lookup(taskID)
	if !ok {
		return fmt.Errorf("task %s not found in any status bucket", taskID)
	}
	if st != models.TaskComplete {
		return fmt.Errorf("task %s is %s, only complete tasks can be fetched", taskID, st)
	}

	hashes := models.Hashes{SHA256: fetchSHA256, BLAKE3: fetchBLAKE3}
	path, err := a.fetcher.Fetch(ctx, taskID, book, hashes)
	if err != nil {
		return err
	}
	fmt.Printf("Saved to %s\n", path)
	return nil
}
