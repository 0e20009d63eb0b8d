package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/gosuri/uilive"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"go-bookfetch/internal/models"
	"go-bookfetch/internal/status"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Live view of download activity",
	Long: `Follows the server's status stream, falling back to polling when
the stream drops. State transitions print as persistent lines above the
live snapshot. Interrupt to stop.`,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

// titleCase capitalizes a bucket name; states are single ASCII words.
func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func renderSnapshot(writer *uilive.Writer, snapshot models.StatusData) {
	var b strings.Builder
	fmt.Fprintf(&b, "Updated %s\n", time.Now().Format("15:04:05"))

	total := 0
	for _, st := range models.States() {
		bucket := snapshot.Bucket(st)
		if len(bucket) == 0 {
			continue
		}
		total += len(bucket)

		ids := make([]string, 0, len(bucket))
		for id := range bucket {
			ids = append(ids, id)
		}
		sort.Strings(ids)

		fmt.Fprintf(&b, "%s (%d):\n", titleCase(string(st)), len(bucket))
		for _, id := range ids {
			book := bucket[id]
			line := "  " + book.Title
			if book.Author != "" {
				line += " — " + book.Author
			}
			if st == models.TaskDownloading {
				if p, ok := snapshot.Progress[id]; ok {
					line += fmt.Sprintf(" [%.0f%%]", p*100)
				}
			}
			fmt.Fprintln(&b, line)
		}
	}
	if total == 0 {
		fmt.Fprintln(&b, "No active or resolved tasks.")
	}

	fmt.Fprint(writer, b.String())
	writer.Flush()
}

func runWatch(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	writer := uilive.New()
	writer.Start()
	defer writer.Stop()

	// Transitions print above the live block so they persist as a log.
	feed := status.NewFeed(a.client, time.Duration(globalConfig.PollIntervalSec)*time.Second, func(tr status.Transition) {
		title := tr.Book.Title
		if title == "" {
			title = tr.ID
		}
		fmt.Fprintf(writer.Bypass(), "%s: %s -> %s\n", title, tr.From, tr.To)
	})

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if appCfg, err := a.client.GetAppConfig(ctx); err == nil && !appCfg.PushEnabled {
		log.Debug("Server declares push disabled, polling only")
		feed.SetPollOnly(true)
	}

	go feed.Run(ctx)

	sub := feed.Subscribe()
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-sub:
			renderSnapshot(writer, feed.Snapshot())
		case <-ticker.C:
			if feed.Loaded() {
				renderSnapshot(writer, feed.Snapshot())
			}
		}
	}
}
