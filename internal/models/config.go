package models

// Config holds the application's configuration settings.
type Config struct {
	ServerURL           string `toml:"ServerUrl" json:"ServerUrl"`
	APIKey              string `toml:"ApiKey" json:"ApiKey"`
	SavePath            string `toml:"SavePath" json:"SavePath"`
	SavePathPattern     string `toml:"SavePathPattern" json:"SavePathPattern"`
	StatePath           string `toml:"StatePath" json:"StatePath"`
	HistoryPath         string `toml:"HistoryPath" json:"HistoryPath"`
	LogLevel            string `toml:"LogLevel" json:"LogLevel"`
	LogFormat           string `toml:"LogFormat" json:"LogFormat"`
	LogApiRequests      bool   `toml:"LogApiRequests" json:"LogApiRequests"`
	APIClientTimeoutSec int    `toml:"ApiClientTimeoutSec" json:"ApiClientTimeoutSec"`
	MaxRetries          int    `toml:"MaxRetries" json:"MaxRetries"`
	InitialRetryDelayMs int    `toml:"InitialRetryDelayMs" json:"InitialRetryDelayMs"`
	PollIntervalSec     int    `toml:"PollIntervalSec" json:"PollIntervalSec"`
	PolicyTTLSec        int    `toml:"PolicyTtlSec" json:"PolicyTtlSec"`
}

// Hashes carries the expected digests for a fetched file. Empty fields are
// skipped during verification.
type Hashes struct {
	SHA256 string `json:"sha256,omitempty"`
	BLAKE3 string `json:"blake3,omitempty"`
}
