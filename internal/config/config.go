package config

import (
	"fmt"
	"log/slog"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/STRATINT/echoloop/internal/cloudsql"
)

// Config represents runtime configuration derived from environment variables.
type Config struct {
	Server    ServerConfig
	Logging   LoggingConfig
	Database  DatabaseConfig
	OpenAI    OpenAIConfig
	Twitter   TwitterConfig
	Market    MarketConfig
	Scheduler SchedulerConfig
	Auth      AuthConfig
}

// ServerConfig holds HTTP server runtime parameters.
type ServerConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	// DashboardDir holds the built dashboard; empty disables static serving.
	DashboardDir    string
}

// LoggingConfig represents structured logging configuration.
type LoggingConfig struct {
	Level  slog.Level
	Format string
}

// DatabaseConfig holds the engagement store connection settings.
type DatabaseConfig struct {
	URL            string
	MaxConnections int
}

// OpenAIConfig configures the generation gateway.
type OpenAIConfig struct {
	APIKey      string
	Model       string
	Temperature float32
	Timeout     time.Duration
}

// TwitterConfig holds credentials for the social platform.
type TwitterConfig struct {
	APIKey            string
	APISecret         string
	AccessToken       string
	AccessTokenSecret string
	BearerToken       string
	UserID            string
	PeerAccounts      []string
}

// MarketConfig configures the market-data client.
type MarketConfig struct {
	BaseURL string
	APIKey  string
}

// SchedulerConfig controls the orchestrator's periods and bounds.
type SchedulerConfig struct {
	PostInterval     time.Duration
	MetricsInterval  time.Duration
	MentionInterval  time.Duration
	MentionWindow    time.Duration
	FreshnessWindow  time.Duration
	WatchlistCap     int
	MentionBatchSize int
	AutoStart        bool
}

// AuthConfig holds admin API credentials.
type AuthConfig struct {
	JWTSecret         string
	AdminPasswordHash string
	AdminPassword     string
	TokenDuration     time.Duration
}

const (
	defaultPort            = "8080"
	defaultReadTimeout     = 10 * time.Second
	defaultWriteTimeout    = 30 * time.Second
	defaultShutdownTimeout = 5 * time.Second

	defaultLogFormat = "json"

	defaultMaxConnections = 10

	defaultOpenAIModel       = "gpt-4o-mini"
	defaultOpenAITemperature = 0.8
	defaultOpenAITimeout     = 60 * time.Second

	defaultCoinGeckoURL = "https://api.coingecko.com/api/v3"

	defaultPostInterval     = 4 * time.Hour
	defaultMetricsInterval  = 3 * time.Hour
	mentionInterval         = 15 * time.Minute
	defaultMentionWindow    = time.Hour
	defaultFreshnessWindow  = 120 * time.Hour
	defaultWatchlistCap     = 20
	defaultMentionBatchSize = 10

	defaultTokenDuration = 24 * time.Hour
)

// envFiles are loaded in order; values already present in the process
// environment always win.
var envFiles = []string{".env.local", ".env"}

// Load reads configuration from environment variables, applying defaults when
// values are not provided or invalid.
func Load() (Config, error) {
	loadEnvFiles()

	port := getEnv("PORT", "")
	if port == "" {
		port = getEnv("SERVER_PORT", defaultPort)
	}

	cfg := Config{
		Server: ServerConfig{
			Port:            port,
			ReadTimeout:     defaultReadTimeout,
			WriteTimeout:    defaultWriteTimeout,
			ShutdownTimeout: defaultShutdownTimeout,
			DashboardDir:    os.Getenv("DASHBOARD_DIR"),
		},
		Logging: LoggingConfig{
			Level:  slog.LevelInfo,
			Format: defaultLogFormat,
		},
		Database: DatabaseConfig{
			MaxConnections: defaultMaxConnections,
		},
		OpenAI: OpenAIConfig{
			APIKey:      os.Getenv("OPENAI_API_KEY"),
			Model:       getEnv("OPENAI_MODEL", defaultOpenAIModel),
			Temperature: defaultOpenAITemperature,
			Timeout:     defaultOpenAITimeout,
		},
		Twitter: TwitterConfig{
			APIKey:            os.Getenv("TWITTER_API_KEY"),
			APISecret:         os.Getenv("TWITTER_API_SECRET"),
			AccessToken:       os.Getenv("TWITTER_ACCESS_TOKEN"),
			AccessTokenSecret: os.Getenv("TWITTER_ACCESS_TOKEN_SECRET"),
			BearerToken:       os.Getenv("TWITTER_BEARER_TOKEN"),
			UserID:            os.Getenv("TWITTER_USER_ID"),
			PeerAccounts:      splitList(os.Getenv("PEER_ACCOUNTS")),
		},
		Market: MarketConfig{
			BaseURL: getEnv("COINGECKO_BASE_URL", defaultCoinGeckoURL),
			APIKey:  os.Getenv("COINGECKO_API_KEY"),
		},
		Scheduler: SchedulerConfig{
			PostInterval:     defaultPostInterval,
			MetricsInterval:  defaultMetricsInterval,
			MentionInterval:  mentionInterval,
			MentionWindow:    defaultMentionWindow,
			FreshnessWindow:  defaultFreshnessWindow,
			WatchlistCap:     defaultWatchlistCap,
			MentionBatchSize: defaultMentionBatchSize,
			AutoStart:        true,
		},
		Auth: AuthConfig{
			JWTSecret:         os.Getenv("ADMIN_JWT_SECRET"),
			AdminPasswordHash: os.Getenv("ADMIN_PASSWORD_HASH"),
			AdminPassword:     os.Getenv("ADMIN_PASSWORD"),
			TokenDuration:     defaultTokenDuration,
		},
	}

	if v := os.Getenv("SERVER_READ_TIMEOUT_SECONDS"); v != "" {
		d, err := parseSeconds(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid SERVER_READ_TIMEOUT_SECONDS: %w", err)
		}
		cfg.Server.ReadTimeout = d
	}

	if v := os.Getenv("SERVER_WRITE_TIMEOUT_SECONDS"); v != "" {
		d, err := parseSeconds(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid SERVER_WRITE_TIMEOUT_SECONDS: %w", err)
		}
		cfg.Server.WriteTimeout = d
	}

	if v := os.Getenv("SERVER_SHUTDOWN_TIMEOUT_SECONDS"); v != "" {
		d, err := parseSeconds(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid SERVER_SHUTDOWN_TIMEOUT_SECONDS: %w", err)
		}
		cfg.Server.ShutdownTimeout = d
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		level, err := parseLogLevel(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid LOG_LEVEL: %w", err)
		}
		cfg.Logging.Level = level
	}

	if v := os.Getenv("LOG_FORMAT"); v != "" {
		switch v {
		case "json", "text":
			cfg.Logging.Format = v
		default:
			return Config{}, fmt.Errorf("invalid LOG_FORMAT: must be 'json' or 'text'")
		}
	}

	dbURL, err := cloudsql.DatabaseURL(os.Getenv)
	if err != nil {
		return Config{}, err
	}
	cfg.Database.URL = dbURL

	if v := os.Getenv("DB_MAX_CONNECTIONS"); v != "" {
		n, err := parsePositiveInt(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid DB_MAX_CONNECTIONS: %w", err)
		}
		cfg.Database.MaxConnections = n
	}

	if v := os.Getenv("OPENAI_TEMPERATURE"); v != "" {
		temp, err := strconv.ParseFloat(v, 32)
		if err != nil || temp < 0 || temp > 2 {
			return Config{}, fmt.Errorf("invalid OPENAI_TEMPERATURE: must be a number between 0 and 2")
		}
		cfg.OpenAI.Temperature = float32(temp)
	}

	if v := os.Getenv("OPENAI_TIMEOUT_SECONDS"); v != "" {
		d, err := parseSeconds(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid OPENAI_TIMEOUT_SECONDS: %w", err)
		}
		cfg.OpenAI.Timeout = d
	}

	if v := os.Getenv("POST_INTERVAL_HOURS"); v != "" {
		d, err := parseDurationIn(v, time.Hour)
		if err != nil {
			return Config{}, fmt.Errorf("invalid POST_INTERVAL_HOURS: %w", err)
		}
		cfg.Scheduler.PostInterval = d
	}

	if v := os.Getenv("METRICS_CHECK_INTERVAL_HOURS"); v != "" {
		d, err := parseDurationIn(v, time.Hour)
		if err != nil {
			return Config{}, fmt.Errorf("invalid METRICS_CHECK_INTERVAL_HOURS: %w", err)
		}
		cfg.Scheduler.MetricsInterval = d
	}

	if v := os.Getenv("FRESHNESS_WINDOW_HOURS"); v != "" {
		d, err := parseDurationIn(v, time.Hour)
		if err != nil {
			return Config{}, fmt.Errorf("invalid FRESHNESS_WINDOW_HOURS: %w", err)
		}
		cfg.Scheduler.FreshnessWindow = d
	}

	if v := os.Getenv("MENTION_WINDOW_MINUTES"); v != "" {
		d, err := parseDurationIn(v, time.Minute)
		if err != nil {
			return Config{}, fmt.Errorf("invalid MENTION_WINDOW_MINUTES: %w", err)
		}
		cfg.Scheduler.MentionWindow = d
	}

	if v := os.Getenv("WATCHLIST_CAP"); v != "" {
		n, err := parsePositiveInt(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid WATCHLIST_CAP: %w", err)
		}
		cfg.Scheduler.WatchlistCap = n
	}

	if v := os.Getenv("SCHEDULER_AUTOSTART"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid SCHEDULER_AUTOSTART: must be a boolean")
		}
		cfg.Scheduler.AutoStart = b
	}

	return cfg, nil
}

// Validate reports settings the service cannot run without.
func (c Config) Validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL or INSTANCE_CONNECTION_NAME is required")
	}
	if c.OpenAI.APIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY is required")
	}
	if c.Twitter.APIKey == "" || c.Twitter.AccessToken == "" {
		return fmt.Errorf("TWITTER_API_KEY and TWITTER_ACCESS_TOKEN are required")
	}
	if c.Twitter.UserID == "" {
		return fmt.Errorf("TWITTER_USER_ID is required for mention polling")
	}
	return nil
}

func loadEnvFiles() {
	for _, file := range envFiles {
		if _, err := os.Stat(file); err != nil {
			continue
		}
		// Load never overrides variables that are already set.
		_ = godotenv.Load(file)
	}
}

func parseSeconds(raw string) (time.Duration, error) {
	seconds, err := strconv.Atoi(raw)
	if err != nil || seconds < 0 {
		return 0, fmt.Errorf("must be a non-negative integer")
	}
	return time.Duration(seconds) * time.Second, nil
}

func parsePositiveInt(raw string) (int, error) {
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("must be a positive integer")
	}
	return n, nil
}

// parseDurationIn parses a positive count of unit. Counts that would overflow
// time.Duration are rejected.
func parseDurationIn(raw string, unit time.Duration) (time.Duration, error) {
	n, err := parsePositiveInt(raw)
	if err != nil {
		return 0, err
	}
	if int64(n) > math.MaxInt64/int64(unit) {
		return 0, fmt.Errorf("must be at most %d", math.MaxInt64/int64(unit))
	}
	return time.Duration(n) * unit, nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(part), "@"))
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseLogLevel(raw string) (slog.Level, error) {
	switch raw {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("must be one of debug, info, warn, error")
	}
}
