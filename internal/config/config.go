package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds runtime settings shared by the commands. Flags may override
// individual fields after Load.
type Config struct {
	WalletProxyURL   string
	PageSize         int
	FetchConcurrency int
	HTTPTimeout      time.Duration
	LogLevel         string

	GCPProject string
	BQDataset  string
	GCSBucket  string

	NotionToken      string
	NotionDatabaseID string

	Port string
}

// Load reads an optional .env file (missing files are ignored) and then the
// process environment.
func Load(envFiles ...string) *Config {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		// Existing environment variables win over the file.
		_ = godotenv.Load(f)
	}
	return FromEnv()
}

// FromEnv builds a Config from environment variables, applying defaults.
func FromEnv() *Config {
	return &Config{
		WalletProxyURL:   GetEnv("WALLET_PROXY_URL", "https://wallet-proxy.mainnet.concordium.software"),
		PageSize:         GetEnvAsInt("PAGE_SIZE", 100),
		FetchConcurrency: GetEnvAsInt("FETCH_CONCURRENCY", 4),
		HTTPTimeout:      GetEnvAsDuration("HTTP_TIMEOUT", 30*time.Second),
		LogLevel:         GetEnv("LOG_LEVEL", "info"),

		GCPProject: GetEnv("GCP_PROJECT", ""),
		BQDataset:  GetEnv("BQ_DATASET", "tax_export"),
		GCSBucket:  GetEnv("GCS_BUCKET", ""),

		NotionToken:      GetEnv("NOTION_TOKEN", ""),
		NotionDatabaseID: GetEnv("NOTION_DATABASE_ID", ""),

		Port: GetEnv("PORT", "8080"),
	}
}

// GetEnv returns the value of key or defaultValue when unset or empty.
func GetEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

// GetEnvAsInt parses key as a positive integer, falling back to defaultValue.
func GetEnvAsInt(key string, defaultValue int) int {
	v, err := strconv.Atoi(GetEnv(key, ""))
	if err != nil || v <= 0 {
		return defaultValue
	}
	return v
}

// GetEnvAsDuration parses key with time.ParseDuration, falling back to
// defaultValue.
func GetEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	v, err := time.ParseDuration(GetEnv(key, ""))
	if err != nil {
		return defaultValue
	}
	return v
}
