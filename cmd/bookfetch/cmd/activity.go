package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"go-bookfetch/internal/activity"
)

var (
	activityHistory        bool
	activityCounts         bool
	activityClearCompleted bool
	activityClearHistory   bool
	activityDismiss        string
)

var activityCmd = &cobra.Command{
	Use:   "activity",
	Short: "Show ongoing and resolved downloads and requests",
	RunE:  runActivity,
}

func init() {
	activityCmd.Flags().BoolVar(&activityHistory, "history", false, "Show resolved items instead of ongoing ones")
	activityCmd.Flags().BoolVar(&activityCounts, "counts", false, "Show badge counts only")
	activityCmd.Flags().BoolVar(&activityClearCompleted, "clear-completed", false, "Dismiss all completed and failed downloads")
	activityCmd.Flags().BoolVar(&activityClearHistory, "clear-history", false, "Dismiss every resolved item")
	activityCmd.Flags().StringVar(&activityDismiss, "dismiss", "", "Dismiss a single item by key (download:<id> or request:<id>)")

	rootCmd.AddCommand(activityCmd)
}

func printItems(header string, items []activity.Item) {
	if len(items) == 0 {
		fmt.Println("Nothing to show.")
		return
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, header)
	for _, item := range items {
		detail := item.Detail
		if item.HasProgress {
			detail = fmt.Sprintf("%s %.0f%%", detail, item.Progress*100)
		}
		title := item.Title
		if item.Author != "" {
			title += " — " + item.Author
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", item.Key, title, detail)
	}
	w.Flush()
}

func runActivity(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()
	ctx := cmd.Context()

	if err := a.feed.Refresh(ctx); err != nil {
		return fmt.Errorf("failed to fetch status: %w", err)
	}

	switch {
	case activityDismiss != "":
		if err := a.state.Dismiss(activityDismiss); err != nil {
			return fmt.Errorf("failed to dismiss %s: %w", activityDismiss, err)
		}
		fmt.Printf("Dismissed %s\n", activityDismiss)
		return nil

	case activityClearCompleted:
		if err := a.feedView.ClearCompleted(ctx); err != nil {
			return err
		}
		fmt.Println("Completed downloads cleared.")
		return nil

	case activityClearHistory:
		if err := a.feedView.ClearHistory(ctx); err != nil {
			return err
		}
		fmt.Println("History cleared.")
		return nil

	case activityCounts:
		counts, err := a.feedView.Count(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("Active: %d  Unseen resolved: %d  Pending requests: %d\n",
			counts.Active, counts.UnseenTerminal, counts.PendingRequests)
		return nil

	case activityHistory:
		items, err := a.feedView.History(ctx)
		if err != nil {
			return err
		}
		printItems("KEY\tITEM\tRESULT", items)
		return nil

	default:
		items, err := a.feedView.Ongoing(ctx)
		if err != nil {
			return err
		}
		printItems("KEY\tITEM\tSTATE", items)
		return nil
	}
}
