package cmd

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"go-bookfetch/internal/models"
)

var (
	requestContentType string
	requestBookID      string
	requestTitle       string
	requestAuthor      string
	requestProvider    string
	requestProviderID  string
	requestSource      string
	requestSourceID    string
	requestNote        string
)

var requestCmd = &cobra.Command{
	Use:   "request",
	Short: "File a book or release request directly",
	Long: `Files a request without going through a download attempt. The
request level is book unless a release source is given.`,
	RunE: runRequest,
}

func init() {
	requestCmd.Flags().StringVar(&requestContentType, "content", string(models.ContentTypeEbook), "Content type (ebook, audiobook)")
	requestCmd.Flags().StringVar(&requestBookID, "book-id", "", "Book identifier")
	requestCmd.Flags().StringVar(&requestTitle, "title", "", "Book title")
	requestCmd.Flags().StringVar(&requestAuthor, "author", "", "Book author")
	requestCmd.Flags().StringVar(&requestProvider, "provider", "", "Metadata provider")
	requestCmd.Flags().StringVar(&requestProviderID, "provider-id", "", "Metadata provider identifier")
	requestCmd.Flags().StringVar(&requestSource, "source", "", "Release source (makes this a release-level request)")
	requestCmd.Flags().StringVar(&requestSourceID, "source-id", "", "Release identifier within its source")
	requestCmd.Flags().StringVar(&requestNote, "note", "", "Note to attach (ignored when the server disallows notes)")
	_ = requestCmd.MarkFlagRequired("book-id")
	_ = requestCmd.MarkFlagRequired("title")

	rootCmd.AddCommand(requestCmd)
}

func runRequest(cmd *cobra.Command, args []string) error {
	ct, err := parseContentType(requestContentType)
	if err != nil {
		return err
	}
	if requestSource != "" && requestSourceID == "" {
		return fmt.Errorf("--source-id is required with --source")
	}

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()
	ctx := cmd.Context()

	level := models.RequestLevelBook
	var release *models.Release
	if requestSource != "" {
		level = models.RequestLevelRelease
		release = &models.Release{Source: requestSource, SourceID: requestSourceID}
	}

	payload := models.RequestPayload{
		BookData: models.Book{
			ID:         requestBookID,
			Title:      requestTitle,
			Author:     requestAuthor,
			Provider:   requestProvider,
			ProviderID: requestProviderID,
		},
		ReleaseData: release,
		Context: models.RequestContext{
			Source:       requestSource,
			ContentType:  ct,
			RequestLevel: level,
		},
		IdempotencyKey: uuid.NewString(),
	}

	if requestNote != "" {
		p := a.policies.Refresh(ctx, false)
		if p != nil && p.AllowNotes {
			payload.Note = requestNote
		} else {
			fmt.Println("Notes are disabled on this server, submitting without one.")
		}
	}

	record, err := a.client.CreateRequest(ctx, payload)
	if err != nil {
		return fmt.Errorf("request submission failed: %w", err)
	}

	a.policies.MarkStale()
	fmt.Printf("Request %s submitted (%s, status %s)\n", record.ID, record.RequestLevel, record.Status)
	return nil
}
