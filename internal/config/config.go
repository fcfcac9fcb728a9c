package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

const (
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendSheets   = "sheets"
)

var validBackends = []string{BackendMemory, BackendSQLite, BackendPostgres, BackendSheets}

type Config struct {
	// HTTP Server
	Port            string        `koanf:"PORT"`
	ShutdownTimeout time.Duration `koanf:"SHUTDOWN_TIMEOUT"`

	// Backend selection
	DataBackend string `koanf:"DATA_BACKEND"`
	EntriesFile string `koanf:"ENTRIES_FILE"`

	// Database
	SQLiteDBPath     string `koanf:"SQLITE_DB_PATH"`
	PostgresDSN      string `koanf:"POSTGRES_DSN"`
	PostgresMaxConns int    `koanf:"POSTGRES_MAX_CONNS"`

	// AMQP
	AMQPURL      string `koanf:"AMQP_URL"`
	AMQPExchange string `koanf:"AMQP_EXCHANGE"`
	AMQPQueue    string `koanf:"AMQP_QUEUE"`

	// Google Sheets
	GoogleSpreadsheetID      string `koanf:"GOOGLE_SPREADSHEET_ID"`
	GoogleSheetName          string `koanf:"GOOGLE_SHEET_NAME"`
	GoogleServiceAccountJSON string `koanf:"GOOGLE_SERVICE_ACCOUNT_JSON"`
	GoogleServiceAccountFile string `koanf:"GOOGLE_SERVICE_ACCOUNT_FILE"`
	GoogleOAuthClientFile    string `koanf:"GOOGLE_OAUTH_CLIENT_FILE"`
	GoogleOAuthClientJSON    string `koanf:"GOOGLE_OAUTH_CLIENT_JSON"`
	GoogleOAuthTokenFile     string `koanf:"GOOGLE_OAUTH_TOKEN_FILE"`
	GoogleOAuthTokenJSON     string `koanf:"GOOGLE_OAUTH_TOKEN_JSON"`

	// Insights
	LookbackMonths int    `koanf:"LOOKBACK_MONTHS"`
	MinDataPoints  int    `koanf:"MIN_DATA_POINTS"`
	CurrencySymbol string `koanf:"INSIGHTS_CURRENCY_SYMBOL"`

	// Report cache
	ReportCacheSize int           `koanf:"REPORT_CACHE_SIZE"`
	ReportCacheTTL  time.Duration `koanf:"REPORT_CACHE_TTL"`

	// Logging
	LogLevel  string `koanf:"LOG_LEVEL"`
	LogFormat string `koanf:"LOG_FORMAT"`

	// Seeder
	SeedMonths int `koanf:"SEED_MONTHS"`
}

// Defaults is the configuration used for keys absent from the environment.
func Defaults() Config {
	return Config{
		Port:            "8081",
		ShutdownTimeout: 30 * time.Second,

		DataBackend: BackendMemory,

		SQLiteDBPath:     "./data/budgetlens.db",
		PostgresMaxConns: 4,

		AMQPExchange: "budgetlens",
		AMQPQueue:    "entries_changed",

		GoogleSheetName: "Entries",

		LookbackMonths: 6,
		MinDataPoints:  6,
		CurrencySymbol: "₱",

		ReportCacheSize: 32,
		ReportCacheTTL:  10 * time.Minute,

		LogLevel:  "INFO",
		LogFormat: "text",

		SeedMonths: 6,
	}
}

// Load overlays the process environment on Defaults. Empty variables count
// as unset.
func Load() (*Config, error) {
	k := koanf.New(".")
	skipEmpty := func(key, value string) (string, any) {
		if value == "" {
			return "", nil
		}
		return key, value
	}
	if err := k.Load(env.ProviderWithValue("", ".", skipEmpty), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	cfg := Defaults()
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf", FlatPaths: true}); err != nil {
		return nil, fmt.Errorf("decode configuration: %w", err)
	}
	return &cfg, nil
}

// Validate returns every problem found as one error.
func (c *Config) Validate() error {
	var errs []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errs = append(errs, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errs = append(errs, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	if !slices.Contains(validBackends, c.DataBackend) {
		errs = append(errs, fmt.Sprintf("invalid data backend '%s': must be one of %v", c.DataBackend, validBackends))
	}

	switch c.DataBackend {
	case BackendSQLite:
		errs = append(errs, c.validateSQLite()...)
	case BackendPostgres:
		if c.PostgresDSN == "" {
			errs = append(errs, "POSTGRES_DSN is required when using postgres backend")
		}
		if c.PostgresMaxConns < 1 {
			errs = append(errs, fmt.Sprintf("invalid postgres pool size %d: must be at least 1", c.PostgresMaxConns))
		}
	case BackendSheets:
		errs = append(errs, c.validateSheets()...)
	}

	if c.AMQPURL != "" {
		if parsed, err := url.Parse(c.AMQPURL); err != nil {
			errs = append(errs, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsed.Scheme != "amqp" && parsed.Scheme != "amqps" {
			errs = append(errs, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsed.Scheme))
		}
		if c.AMQPExchange == "" {
			errs = append(errs, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errs = append(errs, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	if c.LookbackMonths < 1 {
		errs = append(errs, fmt.Sprintf("invalid lookback %d: must be at least 1 month", c.LookbackMonths))
	}
	if c.MinDataPoints < 1 {
		errs = append(errs, fmt.Sprintf("invalid min data points %d: must be at least 1", c.MinDataPoints))
	}
	if c.ReportCacheSize < 1 {
		errs = append(errs, fmt.Sprintf("invalid report cache size %d: must be at least 1", c.ReportCacheSize))
	}
	if c.ReportCacheTTL < time.Second {
		errs = append(errs, fmt.Sprintf("invalid report cache ttl %v: must be at least 1 second", c.ReportCacheTTL))
	}
	if c.SeedMonths < 1 {
		errs = append(errs, fmt.Sprintf("invalid seed months %d: must be at least 1", c.SeedMonths))
	}
	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Sprintf("invalid log format '%s': must be 'text' or 'json'", c.LogFormat))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errs, "\n- "))
	}
	return nil
}

// RequireAMQP is checked by processes that cannot run without a broker.
func (c *Config) RequireAMQP() error {
	if c.AMQPURL == "" {
		return errors.New("configuration validation failed:\n- AMQP_URL is required")
	}
	return nil
}

func (c *Config) validateSQLite() []string {
	if c.SQLiteDBPath == "" {
		return []string{"SQLite database path cannot be empty when using sqlite backend"}
	}
	dir := filepath.Dir(c.SQLiteDBPath)
	if dir == "." || dir == "" {
		return nil
	}
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return []string{fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err)}
		}
	}
	return nil
}

func (c *Config) validateSheets() []string {
	var errs []string
	if c.GoogleSpreadsheetID == "" {
		errs = append(errs, "Google Spreadsheet ID is required when using sheets backend")
	}
	if c.GoogleSheetName == "" {
		errs = append(errs, "Google Sheet name is required when using sheets backend")
	}

	hasServiceAccount := c.GoogleServiceAccountJSON != "" || c.GoogleServiceAccountFile != ""
	hasClient := c.GoogleOAuthClientJSON != "" || c.GoogleOAuthClientFile != ""
	hasToken := c.GoogleOAuthTokenJSON != "" || c.GoogleOAuthTokenFile != ""
	if !hasServiceAccount && !(hasClient && hasToken) && os.Getenv("GOOGLE_APPLICATION_CREDENTIALS") == "" {
		errs = append(errs, "sheets backend needs GOOGLE_SERVICE_ACCOUNT_JSON/FILE or both an OAuth client and token")
	}

	files := []struct{ name, path string }{
		{"service account", c.GoogleServiceAccountFile},
		{"OAuth client", c.GoogleOAuthClientFile},
		{"OAuth token", c.GoogleOAuthTokenFile},
	}
	for _, f := range files {
		if f.path == "" {
			continue
		}
		if _, err := os.Stat(f.path); os.IsNotExist(err) {
			errs = append(errs, fmt.Sprintf("Google %s file does not exist: %s", f.name, f.path))
		}
	}
	return errs
}
