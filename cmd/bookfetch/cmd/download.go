package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"go-bookfetch/internal/models"
	"go-bookfetch/internal/orchestrator"
)

var (
	downloadContentType string

	// download release flags
	releaseBookID     string
	releaseBookTitle  string
	releaseBookAuthor string
	releaseProvider   string
	releaseProviderID string
	releaseSource     string
	releaseSourceID   string
	releaseTitle      string
	releaseFormat     string
	releaseSize       int64
	releaseURL        string
	releaseProtocol   string

	// download book flags
	bookTitle string
)

var downloadCmd = &cobra.Command{
	Use:   "download",
	Short: "Queue a download on the shelf server",
}

var downloadBookCmd = &cobra.Command{
	Use:   "book <book-id>",
	Short: "Queue a direct download of a library book",
	Args:  cobra.ExactArgs(1),
	RunE:  runDownloadBook,
}

var downloadReleaseCmd = &cobra.Command{
	Use:   "release",
	Short: "Queue a download of a specific release of a metadata book",
	RunE:  runDownloadRelease,
}

func init() {
	downloadCmd.PersistentFlags().StringVar(&downloadContentType, "content", "", "Content type (ebook, audiobook; defaults to the server's default)")

	downloadBookCmd.Flags().StringVar(&bookTitle, "title", "", "Book title (used in notices and request drafts)")

	downloadReleaseCmd.Flags().StringVar(&releaseBookID, "book-id", "", "Parent book identifier")
	downloadReleaseCmd.Flags().StringVar(&releaseBookTitle, "title", "", "Parent book title")
	downloadReleaseCmd.Flags().StringVar(&releaseBookAuthor, "author", "", "Parent book author")
	downloadReleaseCmd.Flags().StringVar(&releaseProvider, "provider", "", "Metadata provider of the parent book")
	downloadReleaseCmd.Flags().StringVar(&releaseProviderID, "provider-id", "", "Metadata provider identifier")
	downloadReleaseCmd.Flags().StringVar(&releaseSource, "source", "", "Release source/indexer name")
	downloadReleaseCmd.Flags().StringVar(&releaseSourceID, "source-id", "", "Release identifier within its source")
	downloadReleaseCmd.Flags().StringVar(&releaseTitle, "release-title", "", "Release title")
	downloadReleaseCmd.Flags().StringVar(&releaseFormat, "format", "", "Release file format")
	downloadReleaseCmd.Flags().Int64Var(&releaseSize, "size", 0, "Release size in bytes")
	downloadReleaseCmd.Flags().StringVar(&releaseURL, "url", "", "Release download URL")
	downloadReleaseCmd.Flags().StringVar(&releaseProtocol, "protocol", "", "Release transfer protocol")
	_ = downloadReleaseCmd.MarkFlagRequired("book-id")
	_ = downloadReleaseCmd.MarkFlagRequired("source")
	_ = downloadReleaseCmd.MarkFlagRequired("source-id")

	downloadCmd.AddCommand(downloadBookCmd)
	downloadCmd.AddCommand(downloadReleaseCmd)
	rootCmd.AddCommand(downloadCmd)
}

func parseContentType(raw string) (models.ContentType, error) {
	switch models.ContentType(raw) {
	case models.ContentTypeEbook, models.ContentTypeAudiobook:
		return models.ContentType(raw), nil
	default:
		return "", fmt.Errorf("unknown content type %q (expected ebook or audiobook)", raw)
	}
}

// resolveContentType turns the --content flag into a content type, asking
// the server for its declared default when the flag is unset. A config
// fetch failure falls back to ebook rather than blocking the download.
func resolveContentType(ctx context.Context, a *app) (models.ContentType, error) {
	if downloadContentType != "" {
		return parseContentType(downloadContentType)
	}
	appCfg, err := a.client.GetAppConfig(ctx)
	if err != nil || appCfg.DefaultContent == "" {
		return models.ContentTypeEbook, nil
	}
	return appCfg.DefaultContent, nil
}

// resolvePending walks a delegated download through its confirmation step.
func resolvePending(ctx context.Context, coord *orchestrator.Coordinator, pending orchestrator.PendingDownload) error {
	confirmed, err := confirmAction(pending.Describe())
	if err != nil {
		return err
	}
	if !confirmed {
		coord.Cancel()
		fmt.Println("Cancelled.")
		return nil
	}
	return coord.Confirm(ctx)
}

func runDownloadBook(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	ct, err := resolveContentType(ctx, a)
	if err != nil {
		return err
	}
	coord, err := a.newCoordinator(ctx, newConfirmer())
	if err != nil {
		return err
	}

	book := models.Book{ID: args[0], Title: bookTitle}
	pending, err := coord.DownloadBook(ctx, book, ct)
	if err != nil {
		return err
	}
	if pending != nil {
		return resolvePending(ctx, coord, pending)
	}
	return nil
}

func runDownloadRelease(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	ct, err := resolveContentType(ctx, a)
	if err != nil {
		return err
	}
	coord, err := a.newCoordinator(ctx, newConfirmer())
	if err != nil {
		return err
	}

	book := models.Book{
		ID:         releaseBookID,
		Title:      releaseBookTitle,
		Author:     releaseBookAuthor,
		Provider:   releaseProvider,
		ProviderID: releaseProviderID,
	}
	release := models.Release{
		Source:      releaseSource,
		SourceID:    releaseSourceID,
		Title:       releaseTitle,
		Format:      releaseFormat,
		SizeBytes:   releaseSize,
		DownloadURL: releaseURL,
		Protocol:    releaseProtocol,
	}

	pending, err := coord.DownloadRelease(ctx, book, release, ct)
	if err != nil {
		return err
	}
	if pending != nil {
		return resolvePending(ctx, coord, pending)
	}
	return nil
}
