package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"fincast/internal/forecast"

	"github.com/robfig/cron/v3"
	"github.com/shopspring/decimal"
)

type Config struct {
	// HTTP Server
	Port string

	// Backend selection
	DataBackend string

	// Database
	SQLiteDBPath string
	PostgresDSN  string

	// Memory backend seed directory
	DataDirectory string

	// AMQP (optional; refreshes run inline when empty)
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Google Sheets
	GoogleSpreadsheetID       string
	GoogleServiceAccountJSON  string
	GoogleServiceAccountFile  string
	GoogleApplicationCredFile string

	// Logging
	LogLevel string

	// Forecasting
	DefaultHorizon       int
	LookbackMonths       int
	DatasetCacheTTL      time.Duration
	TaxScheduleFile      string
	TaxAdjustmentPercent string

	// Worker
	RefreshSchedule string
}

func Load() *Config {
	cfg := &Config{
		Port:        getEnv("PORT", "8081"),
		DataBackend: getEnv("DATA_BACKEND", "memory"),

		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/fincast.db"),
		PostgresDSN:  getEnv("POSTGRES_DSN", ""),

		DataDirectory: getEnv("DATA_DIRECTORY", "./data"),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "fincast"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "forecast_refresh"),

		GoogleSpreadsheetID:       getEnv("GOOGLE_SPREADSHEET_ID", ""),
		GoogleServiceAccountJSON:  getEnv("GOOGLE_SERVICE_ACCOUNT_JSON", ""),
		GoogleServiceAccountFile:  getEnv("GOOGLE_SERVICE_ACCOUNT_FILE", ""),
		GoogleApplicationCredFile: getEnv("GOOGLE_APPLICATION_CREDENTIALS", ""),

		LogLevel: getEnv("LOG_LEVEL", "info"),

		DefaultHorizon:       getEnvInt("DEFAULT_HORIZON", 6),
		LookbackMonths:       getEnvInt("LOOKBACK_MONTHS", 12),
		DatasetCacheTTL:      getEnvDuration("DATASET_CACHE_TTL", 5*time.Minute),
		TaxScheduleFile:      getEnv("TAX_SCHEDULE_FILE", ""),
		TaxAdjustmentPercent: getEnv("TAX_ADJUSTMENT_PERCENT", "0"),

		RefreshSchedule: getEnv("REFRESH_SCHEDULE", "0 * * * *"),
	}

	return cfg
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	// Validate port
	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	// Validate data backend
	validBackends := []string{"memory", "sqlite", "postgres", "sheets"}
	isValidBackend := false
	for _, backend := range validBackends {
		if c.DataBackend == backend {
			isValidBackend = true
			break
		}
	}
	if !isValidBackend {
		errors = append(errors, fmt.Sprintf("invalid data backend '%s': must be one of %v", c.DataBackend, validBackends))
	}

	switch c.DataBackend {
	case "sqlite":
		if c.SQLiteDBPath == "" {
			errors = append(errors, "SQLite database path cannot be empty when using sqlite backend")
		} else {
			dir := filepath.Dir(c.SQLiteDBPath)
			if dir != "." && dir != "" {
				if _, err := os.Stat(dir); os.IsNotExist(err) {
					if err := os.MkdirAll(dir, 0755); err != nil {
						errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
					}
				}
			}
		}
	case "postgres":
		if c.PostgresDSN == "" {
			errors = append(errors, "POSTGRES_DSN is required when using postgres backend")
		} else if strings.Contains(c.PostgresDSN, "://") {
			if u, err := url.Parse(c.PostgresDSN); err != nil {
				errors = append(errors, fmt.Sprintf("invalid POSTGRES_DSN: %v", err))
			} else if u.Scheme != "postgres" && u.Scheme != "postgresql" {
				errors = append(errors, fmt.Sprintf("invalid POSTGRES_DSN scheme '%s': must be 'postgres' or 'postgresql'", u.Scheme))
			}
		}
	case "sheets":
		if c.GoogleSpreadsheetID == "" {
			errors = append(errors, "Google Spreadsheet ID is required when using sheets backend")
		}
		if c.GoogleServiceAccountJSON == "" && c.GoogleServiceAccountFile == "" && c.GoogleApplicationCredFile == "" {
			errors = append(errors, "one of GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE or GOOGLE_APPLICATION_CREDENTIALS must be provided for sheets backend")
		}
		for _, f := range []string{c.GoogleServiceAccountFile, c.GoogleApplicationCredFile} {
			if f == "" {
				continue
			}
			if _, err := os.Stat(f); os.IsNotExist(err) {
				errors = append(errors, fmt.Sprintf("Google credentials file does not exist: %s", f))
			}
		}
	}

	// Validate AMQP URL if provided
	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errors = append(errors, fmt.Sprintf("invalid log level '%s': must be debug, info, warn or error", c.LogLevel))
	}

	// Validate forecasting parameters
	if err := forecast.ValidateHorizon(c.DefaultHorizon); err != nil {
		errors = append(errors, fmt.Sprintf("invalid default horizon %d: must be one of %v", c.DefaultHorizon, forecast.Horizons))
	}
	if c.LookbackMonths < 1 || c.LookbackMonths > 120 {
		errors = append(errors, fmt.Sprintf("invalid lookback months %d: must be between 1 and 120", c.LookbackMonths))
	}
	if c.DatasetCacheTTL < 0 || c.DatasetCacheTTL > 24*time.Hour {
		errors = append(errors, fmt.Sprintf("invalid dataset cache TTL %v: must be between 0 and 24 hours", c.DatasetCacheTTL))
	}
	if c.TaxScheduleFile != "" {
		if _, err := os.Stat(c.TaxScheduleFile); err != nil {
			errors = append(errors, fmt.Sprintf("tax schedule file not readable: %v", err))
		}
	}
	if _, err := c.TaxAdjustment(); err != nil {
		errors = append(errors, err.Error())
	}

	// Validate worker schedule
	if _, err := cron.ParseStandard(c.RefreshSchedule); err != nil {
		errors = append(errors, fmt.Sprintf("invalid refresh schedule '%s': %v", c.RefreshSchedule, err))
	}

	// Return combined errors
	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

// TaxAdjustment parses TaxAdjustmentPercent. Values at or below -100 would
// turn the estimate negative and are rejected.
func (c *Config) TaxAdjustment() (decimal.Decimal, error) {
	raw := strings.TrimSpace(c.TaxAdjustmentPercent)
	if raw == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid tax adjustment '%s': must be a number", raw)
	}
	if d.LessThanOrEqual(decimal.NewFromInt(-100)) {
		return decimal.Zero, fmt.Errorf("invalid tax adjustment %s: must be greater than -100", d)
	}
	return d, nil
}

// AMQPEnabled reports whether a broker is configured.
func (c *Config) AMQPEnabled() bool {
	return c.AMQPURL != ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
