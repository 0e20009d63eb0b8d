package config

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"go-bookfetch/internal/api"
	"go-bookfetch/internal/models"
)

// Default values for configuration
const (
	DefaultSavePath            = "books"
	DefaultStatePath           = "bookfetch.db" // Relative to SavePath if not absolute
	DefaultHistoryPath         = "history.db"   // Relative to SavePath if not absolute
	DefaultLogApiRequests      = false
	DefaultAPIClientTimeoutSec = 120 // seconds
	DefaultMaxRetries          = 3
	DefaultInitialRetryDelayMs = 1000 // milliseconds
	DefaultPollIntervalSec     = 5
	DefaultPolicyTTLSec        = 30
	DefaultLogLevel            = "info"
	DefaultLogFormat           = "text"
	DefaultConfigFilePath      = "config.toml"
)

// setViperDefaults configures Viper with the application's default values.
func setViperDefaults(v *viper.Viper) {
	v.SetDefault("serverurl", "")
	v.SetDefault("apikey", "")
	v.SetDefault("savepath", DefaultSavePath)
	v.SetDefault("savepathpattern", "")
	v.SetDefault("statepath", "") // Derived from SavePath when empty
	v.SetDefault("historypath", "")
	v.SetDefault("logapirequests", DefaultLogApiRequests)
	v.SetDefault("apiclienttimeoutsec", DefaultAPIClientTimeoutSec)
	v.SetDefault("maxretries", DefaultMaxRetries)
	v.SetDefault("initialretrydelayms", DefaultInitialRetryDelayMs)
	v.SetDefault("pollintervalsec", DefaultPollIntervalSec)
	v.SetDefault("policyttlsec", DefaultPolicyTTLSec)
	v.SetDefault("loglevel", DefaultLogLevel)
	v.SetDefault("logformat", DefaultLogFormat)
}

// CliFlags holds pointers to values received from command-line flags.
// Nil fields indicate the flag was not provided by the user.
type CliFlags struct {
	ConfigFilePath      *string
	ServerURL           *string // --server
	APIKey              *string // --api-key
	SavePath            *string // --save-path
	LogLevel            *string // --log-level
	LogFormat           *string // --log-format
	LogApiRequests      *bool   // --log-api
	APIClientTimeoutSec *int    // --api-timeout
	MaxRetries          *int    // --max-retries
	InitialRetryDelayMs *int    // --retry-delay
	PollIntervalSec     *int    // --poll-interval
}

// Initialize loads configuration based on defaults, config file, and flags.
// Precedence: Flags > Config File > Defaults.
func Initialize(flags CliFlags) (models.Config, http.RoundTripper, error) {
	v := viper.New()
	v.SetEnvPrefix("BOOKFETCH")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setViperDefaults(v)

	actualConfigFilePath := DefaultConfigFilePath
	if flags.ConfigFilePath != nil {
		actualConfigFilePath = *flags.ConfigFilePath
	}
	v.SetConfigFile(actualConfigFilePath)

	if err := v.ReadInConfig(); err != nil {
		if os.IsNotExist(err) {
			log.Debugf("Config file '%s' not found, using defaults and CLI flags only", actualConfigFilePath)
		} else if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			log.Debugf("Config file '%s' not found, using defaults and CLI flags only", actualConfigFilePath)
		} else {
			log.Warnf("Error reading config file '%s': %v. Using defaults and CLI flags only.", actualConfigFilePath, err)
		}
	} else {
		log.Debugf("Read config file: %s", v.ConfigFileUsed())
	}

	var finalCfg models.Config
	if err := v.Unmarshal(&finalCfg); err != nil {
		return models.Config{}, nil, fmt.Errorf("failed to unmarshal config from viper: %w", err)
	}

	// CLI flag overrides
	if flags.ServerURL != nil {
		finalCfg.ServerURL = *flags.ServerURL
	}
	if flags.APIKey != nil {
		finalCfg.APIKey = *flags.APIKey
	}
	if flags.SavePath != nil {
		finalCfg.SavePath = *flags.SavePath
	}
	if flags.LogLevel != nil {
		finalCfg.LogLevel = *flags.LogLevel
	}
	if flags.LogFormat != nil {
		finalCfg.LogFormat = *flags.LogFormat
	}
	if flags.LogApiRequests != nil {
		finalCfg.LogApiRequests = *flags.LogApiRequests
	}
	if flags.APIClientTimeoutSec != nil {
		finalCfg.APIClientTimeoutSec = *flags.APIClientTimeoutSec
	}
	if flags.MaxRetries != nil {
		finalCfg.MaxRetries = *flags.MaxRetries
	}
	if flags.InitialRetryDelayMs != nil {
		finalCfg.InitialRetryDelayMs = *flags.InitialRetryDelayMs
	}
	if flags.PollIntervalSec != nil {
		finalCfg.PollIntervalSec = *flags.PollIntervalSec
	}

	// Derive state paths from SavePath when not set explicitly
	if finalCfg.StatePath == "" {
		finalCfg.StatePath = filepath.Join(finalCfg.SavePath, DefaultStatePath)
	}
	if finalCfg.HistoryPath == "" {
		finalCfg.HistoryPath = filepath.Join(finalCfg.SavePath, DefaultHistoryPath)
	}

	if finalCfg.SavePath == "" {
		return models.Config{}, nil, fmt.Errorf("SavePath cannot be empty (set via --save-path flag or SavePath in config)")
	}
	finalCfg.ServerURL = strings.TrimRight(finalCfg.ServerURL, "/")

	// HTTP transport, optionally wrapped for request logging
	baseTransport := http.DefaultTransport
	var finalTransport http.RoundTripper = baseTransport

	if finalCfg.LogApiRequests {
		logFilePath := "api.log"
		if _, statErr := os.Stat(finalCfg.SavePath); statErr == nil {
			logFilePath = filepath.Join(finalCfg.SavePath, logFilePath)
		} else {
			log.Warnf("SavePath '%s' not found, saving api.log to current directory", finalCfg.SavePath)
		}
		log.Infof("API logging to file: %s", logFilePath)

		loggingTransport, err := api.NewLoggingTransport(baseTransport, logFilePath)
		if err != nil {
			log.WithError(err).Error("Failed to initialize API logging transport, logging disabled")
		} else {
			finalTransport = loggingTransport
		}
	}

	log.Debug("Configuration initialized successfully.")
	return finalCfg, finalTransport, nil
}
