// Package config loads application configuration from environment variables.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Supported target database drivers.
const (
	DriverMySQL  = "mysql"
	DriverSQLite = "sqlite"
)

const defaultMySQLDSN = "root@tcp(127.0.0.1:3306)/github_enterprise?parseTime=true&charset=utf8mb4"

// Config holds the application configuration loaded from environment variables.
type Config struct {
	MigrationGUID string
	Organization  string
	LocalUser     string

	GitHubToken     string
	GitHubUsername  string
	GitHubPassword  string
	GitHubTwoFactor bool
	GitHubBaseURL   string
	SourceWebURL    string

	DBDriver string
	DBDSN    string

	PaceInterval          time.Duration
	EmptyPaceInterval     time.Duration
	ReviewsSince          time.Time
	ContributionOffset    int
	ImportDate            time.Time // Zero when the cross-reference fix is disabled.
	SourceRetryMaxElapsed time.Duration
	MaxRateLimitWait      time.Duration

	LogLevel slog.Level
}

// HasSourceCredentials returns true when a token or a username is configured.
// Commands that read the source system refuse to start without one.
func (c *Config) HasSourceCredentials() bool {
	return c.GitHubToken != "" || c.GitHubUsername != ""
}

// Load reads configuration from environment variables and returns a validated Config.
// GHERECONCILE_MIGRATION_GUID is required; everything else has a default.
// Source credentials are optional here because fix-events never touches the source.
func Load() (*Config, error) {
	guid := strings.TrimSpace(os.Getenv("GHERECONCILE_MIGRATION_GUID"))
	if guid == "" {
		return nil, fmt.Errorf("GHERECONCILE_MIGRATION_GUID is required")
	}

	cfg := &Config{
		MigrationGUID:  guid,
		Organization:   os.Getenv("GHERECONCILE_ORGANIZATION"),
		LocalUser:      os.Getenv("GHERECONCILE_LOCAL_USER"),
		GitHubToken:    os.Getenv("GHERECONCILE_GITHUB_TOKEN"),
		GitHubUsername: os.Getenv("GHERECONCILE_GITHUB_USERNAME"),
		GitHubPassword: os.Getenv("GHERECONCILE_GITHUB_PASSWORD"),
		GitHubBaseURL:  os.Getenv("GHERECONCILE_GITHUB_BASE_URL"),
		SourceWebURL:   "https://github.com",
		DBDriver:       DriverMySQL,
		LogLevel:       slog.LevelInfo,
	}

	if v, ok := os.LookupEnv("GHERECONCILE_GITHUB_TWO_FACTOR"); ok && v != "" {
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("GHERECONCILE_GITHUB_TWO_FACTOR has invalid boolean %q: %w", v, err)
		}
		cfg.GitHubTwoFactor = parsed
	}

	if v, ok := os.LookupEnv("GHERECONCILE_SOURCE_WEB_URL"); ok && v != "" {
		cfg.SourceWebURL = strings.TrimRight(v, "/")
	}

	if v, ok := os.LookupEnv("GHERECONCILE_DB_DRIVER"); ok && v != "" {
		switch v {
		case DriverMySQL, DriverSQLite:
			cfg.DBDriver = v
		default:
			return nil, fmt.Errorf("GHERECONCILE_DB_DRIVER must be %q or %q, got %q", DriverMySQL, DriverSQLite, v)
		}
	}

	switch v, ok := os.LookupEnv("GHERECONCILE_DB_DSN"); {
	case ok && v != "":
		cfg.DBDSN = v
	case cfg.DBDriver == DriverSQLite:
		cfg.DBDSN = "ghereconcile.db"
	default:
		cfg.DBDSN = defaultMySQLDSN
	}

	var err error
	if cfg.PaceInterval, err = durationEnv("GHERECONCILE_PACE_INTERVAL", 2*time.Second); err != nil {
		return nil, err
	}
	if cfg.EmptyPaceInterval, err = durationEnv("GHERECONCILE_EMPTY_PACE_INTERVAL", time.Second); err != nil {
		return nil, err
	}
	if cfg.SourceRetryMaxElapsed, err = durationEnv("GHERECONCILE_SOURCE_RETRY_MAX_ELAPSED", 2*time.Minute); err != nil {
		return nil, err
	}
	if cfg.MaxRateLimitWait, err = durationEnv("GHERECONCILE_MAX_RATE_LIMIT_WAIT", 65*time.Minute); err != nil {
		return nil, err
	}

	// Reviews shipped in mid-September 2016; older pull requests cannot have any.
	cfg.ReviewsSince = time.Date(2016, 9, 1, 12, 0, 0, 0, time.UTC)
	if v, ok := os.LookupEnv("GHERECONCILE_REVIEWS_SINCE"); ok && v != "" {
		parsed, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return nil, fmt.Errorf("GHERECONCILE_REVIEWS_SINCE has invalid RFC 3339 time %q: %w", v, err)
		}
		cfg.ReviewsSince = parsed.UTC()
	}

	cfg.ContributionOffset = -28800
	if v, ok := os.LookupEnv("GHERECONCILE_CONTRIBUTION_OFFSET"); ok && v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("GHERECONCILE_CONTRIBUTION_OFFSET has invalid integer %q: %w", v, err)
		}
		cfg.ContributionOffset = parsed
	}

	if v, ok := os.LookupEnv("GHERECONCILE_IMPORT_DATE"); ok && v != "" {
		parsed, err := time.Parse(time.DateOnly, v)
		if err != nil {
			return nil, fmt.Errorf("GHERECONCILE_IMPORT_DATE has invalid date %q (want YYYY-MM-DD): %w", v, err)
		}
		cfg.ImportDate = parsed
	}

	if v, ok := os.LookupEnv("GHERECONCILE_LOG_LEVEL"); ok && v != "" {
		if err := cfg.LogLevel.UnmarshalText([]byte(v)); err != nil {
			return nil, fmt.Errorf("GHERECONCILE_LOG_LEVEL has invalid level %q: %w", v, err)
		}
	}

	return cfg, nil
}

func durationEnv(key string, def time.Duration) (time.Duration, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def, nil
	}
	parsed, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s has invalid duration %q: %w", key, v, err)
	}
	if parsed < 0 {
		return 0, fmt.Errorf("%s must not be negative, got %s", key, v)
	}
	return parsed, nil
}
