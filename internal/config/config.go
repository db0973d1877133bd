// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	DataDir   string // Base directory for all databases and backups (always absolute)
	Port      int
	LogLevel  string
	LogPretty bool
	DevMode   bool

	// MarketTimezone is the IANA zone all calendar dates are normalized into.
	MarketTimezone string

	// Vendor endpoints for the holiday list and the continuous-contract
	// roll table.
	HolidayURL         string
	ContinuousTableURL string
	FetchTimeout       time.Duration

	// R2 is nil when offsite backups are not configured.
	R2 *R2Config

	BackupRetentionDays int
}

// R2Config holds Cloudflare R2 credentials for offsite backups
type R2Config struct {
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	// Determine data directory with fallback logic
	// 1. Check ALMANAC_DATA_DIR environment variable
	// 2. If not set, default to ./data
	// 3. Always resolve to absolute path
	// 4. Ensure directory exists
	dataDir := getEnv("ALMANAC_DATA_DIR", "")
	if dataDir == "" {
		dataDir = "./data"
	}

	// Always resolve to absolute path
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}

	// Ensure directory exists
	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:             absDataDir,
		Port:                getEnvAsInt("ALMANAC_PORT", 8001),
		LogLevel:            getEnv("LOG_LEVEL", "info"),
		LogPretty:           getEnvAsBool("LOG_PRETTY", false),
		DevMode:             getEnvAsBool("DEV_MODE", false),
		MarketTimezone:      getEnv("ALMANAC_MARKET_TZ", "Asia/Shanghai"),
		HolidayURL:          getEnv("ALMANAC_HOLIDAY_URL", "https://files.shinnytech.com/shinny_chinese_holiday.json"),
		ContinuousTableURL:  getEnv("ALMANAC_CONT_TABLE_URL", "https://files.shinnytech.com/continuous_table.json"),
		FetchTimeout:        time.Duration(getEnvAsInt("ALMANAC_FETCH_TIMEOUT_SECONDS", 30)) * time.Second,
		R2:                  loadR2Config(),
		BackupRetentionDays: getEnvAsInt("BACKUP_RETENTION_DAYS", 30),
	}

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if required configuration is present
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if _, err := time.LoadLocation(c.MarketTimezone); err != nil {
		return fmt.Errorf("invalid market timezone %q: %w", c.MarketTimezone, err)
	}
	if c.HolidayURL == "" {
		return fmt.Errorf("holiday URL must not be empty")
	}
	if c.ContinuousTableURL == "" {
		return fmt.Errorf("continuous table URL must not be empty")
	}
	if c.FetchTimeout <= 0 {
		return fmt.Errorf("fetch timeout must be positive")
	}
	if c.BackupRetentionDays < 1 {
		return fmt.Errorf("backup retention must be at least one day")
	}
	if c.R2 != nil {
		if c.R2.Endpoint == "" || c.R2.AccessKeyID == "" || c.R2.SecretAccessKey == "" || c.R2.Bucket == "" {
			return fmt.Errorf("incomplete R2 configuration: endpoint, access key, secret and bucket are all required")
		}
	}
	return nil
}

// MarketLocation parses MarketTimezone. Validate guarantees this succeeds
// for a loaded config.
func (c *Config) MarketLocation() (*time.Location, error) {
	return time.LoadLocation(c.MarketTimezone)
}

// loadR2Config reads R2 credentials; returns nil when none are set so
// backups stay disabled by default.
func loadR2Config() *R2Config {
	r2 := &R2Config{
		Endpoint:        getEnv("R2_ENDPOINT", ""),
		AccessKeyID:     getEnv("R2_ACCESS_KEY_ID", ""),
		SecretAccessKey: getEnv("R2_SECRET_ACCESS_KEY", ""),
		Bucket:          getEnv("R2_BUCKET", ""),
	}
	if r2.Endpoint == "" && r2.AccessKeyID == "" && r2.SecretAccessKey == "" && r2.Bucket == "" {
		return nil
	}
	return r2
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
