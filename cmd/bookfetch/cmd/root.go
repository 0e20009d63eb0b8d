package cmd

import (
	"fmt"
	"net/http"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"go-bookfetch/internal/config"
	"go-bookfetch/internal/models"
)

// Persistent flag values. Whether a flag was actually set is read from
// cobra, so zero values here never clobber config-file settings.
var (
	cfgFile        string
	serverFlag     string
	apiKeyFlag     string
	savePathFlag   string
	logLevelFlag   string
	logFormatFlag  string
	logApiFlag     bool
	apiTimeoutFlag int
	maxRetriesFlag int
	retryDelayFlag int
	pollFlag       int
	yesFlag        bool
)

// globalConfig holds the loaded configuration
var globalConfig models.Config

// globalHttpTransport holds the configured HTTP transport (base or logging-wrapped)
var globalHttpTransport http.RoundTripper

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "bookfetch",
	Short: "A client for policy-gated book and audiobook downloads",
	Long: `Bookfetch talks to a shelf server to queue book and audiobook
downloads, file requests where policy demands them, and track
download activity.`,
	PersistentPreRunE: loadGlobalConfig,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error executing command: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Configuration file path (default is ./config.toml)")
	rootCmd.PersistentFlags().StringVar(&serverFlag, "server", "", "Shelf server base URL (overrides config)")
	rootCmd.PersistentFlags().StringVar(&apiKeyFlag, "api-key", "", "API key for the shelf server (overrides config)")
	rootCmd.PersistentFlags().StringVar(&savePathFlag, "save-path", "", "Directory to save fetched files (overrides config)")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", config.DefaultLogLevel, "Logging level (trace, debug, info, warn, error, fatal, panic)")
	rootCmd.PersistentFlags().StringVar(&logFormatFlag, "log-format", config.DefaultLogFormat, "Logging format (text, json)")
	rootCmd.PersistentFlags().BoolVar(&logApiFlag, "log-api", false, "Log API requests/responses to api.log (overrides config)")
	rootCmd.PersistentFlags().IntVar(&apiTimeoutFlag, "api-timeout", -1, "Timeout for API HTTP client in seconds (overrides config)")
	rootCmd.PersistentFlags().IntVar(&maxRetriesFlag, "max-retries", -1, "Transient-failure retries for read calls (overrides config)")
	rootCmd.PersistentFlags().IntVar(&retryDelayFlag, "retry-delay", -1, "Initial retry delay in ms (overrides config)")
	rootCmd.PersistentFlags().IntVar(&pollFlag, "poll-interval", -1, "Status poll interval in seconds (overrides config)")
	rootCmd.PersistentFlags().BoolVarP(&yesFlag, "yes", "y", false, "Skip confirmation prompts")
}

// initLogging configures logrus from the merged configuration.
func initLogging(cfg models.Config) {
	level, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Warnf("Invalid log level '%s', using info", cfg.LogLevel)
		level = log.InfoLevel
	}
	log.SetLevel(level)

	if cfg.LogFormat == "json" {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
}

// stringFlag returns a pointer to the flag value only when the user set it.
func stringFlag(cmd *cobra.Command, name string, value *string) *string {
	if cmd.Flags().Changed(name) {
		return value
	}
	return nil
}

func boolFlag(cmd *cobra.Command, name string, value *bool) *bool {
	if cmd.Flags().Changed(name) {
		return value
	}
	return nil
}

func intFlag(cmd *cobra.Command, name string, value *int) *int {
	if cmd.Flags().Changed(name) {
		return value
	}
	return nil
}

// loadGlobalConfig loads the merged configuration and sets up logging and
// the HTTP transport before any command runs.
func loadGlobalConfig(cmd *cobra.Command, args []string) error {
	flags := config.CliFlags{
		ConfigFilePath:      stringFlag(cmd, "config", &cfgFile),
		ServerURL:           stringFlag(cmd, "server", &serverFlag),
		APIKey:              stringFlag(cmd, "api-key", &apiKeyFlag),
		SavePath:            stringFlag(cmd, "save-path", &savePathFlag),
		LogLevel:            stringFlag(cmd, "log-level", &logLevelFlag),
		LogFormat:           stringFlag(cmd, "log-format", &logFormatFlag),
		LogApiRequests:      boolFlag(cmd, "log-api", &logApiFlag),
		APIClientTimeoutSec: intFlag(cmd, "api-timeout", &apiTimeoutFlag),
		MaxRetries:          intFlag(cmd, "max-retries", &maxRetriesFlag),
		InitialRetryDelayMs: intFlag(cmd, "retry-delay", &retryDelayFlag),
		PollIntervalSec:     intFlag(cmd, "poll-interval", &pollFlag),
	}

	cfg, transport, err := config.Initialize(flags)
	if err != nil {
		return fmt.Errorf("failed to initialize configuration: %w", err)
	}

	initLogging(cfg)
	globalConfig = cfg
	globalHttpTransport = transport
	return nil
}
