package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the assistant system
type Config struct {
	General   GeneralConfig   `mapstructure:"general"`
	Server    ServerConfig    `mapstructure:"server"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Embedding EmbeddingConfig `mapstructure:"embedding"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Backends  BackendsConfig  `mapstructure:"backends"`
	Storage   StorageConfig   `mapstructure:"storage"`
}

// GeneralConfig contains general application settings
type GeneralConfig struct {
	Debug          bool          `mapstructure:"debug"`
	LogLevel       string        `mapstructure:"log_level"`
	DefaultTimeout time.Duration `mapstructure:"default_timeout"`
	HistoryLimit   int           `mapstructure:"history_limit"`
}

// ServerConfig contains HTTP server and auth settings
type ServerConfig struct {
	Address   string `mapstructure:"address"`
	JWTSecret string `mapstructure:"jwt_secret"`
}

// LLMConfig contains chat completion provider configuration
type LLMConfig struct {
	APIKey     string        `mapstructure:"api_key"`
	BaseURL    string        `mapstructure:"base_url"`
	Timeout    time.Duration `mapstructure:"timeout"`
	MaxRetries int           `mapstructure:"max_retries"`
	Routing    RoutingConfig `mapstructure:"routing"`
}

// RoutingConfig defines which model to use for different tasks
type RoutingConfig struct {
	Classification string `mapstructure:"classification"` // intent classification, low temperature
	Synthesis      string `mapstructure:"synthesis"`      // response synthesis
	Tools          string `mapstructure:"tools"`          // adapter tool selection
}

// EmbeddingConfig contains embedding provider configuration
type EmbeddingConfig struct {
	APIKey     string        `mapstructure:"api_key"`
	BaseURL    string        `mapstructure:"base_url"`
	Model      string        `mapstructure:"model"`
	Dimensions int           `mapstructure:"dimensions"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

// TelemetryConfig contains telemetry and monitoring settings
type TelemetryConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	LogFile      string `mapstructure:"log_file"`
	CostTracking bool   `mapstructure:"cost_tracking"`
	PeriodicLogs bool   `mapstructure:"periodic_logs"`
}

func (t TelemetryConfig) Validate() error {
	return nil
}

// BackendsConfig contains workspace backend API settings
type BackendsConfig struct {
	Google GoogleConfig `mapstructure:"google"`
}

// GoogleConfig contains Google API endpoints and timeouts. Auth tokens are
// handled upstream; a static bearer token can be supplied for development.
type GoogleConfig struct {
	GmailBaseURL    string        `mapstructure:"gmail_base_url"`
	CalendarBaseURL string        `mapstructure:"calendar_base_url"`
	DriveBaseURL    string        `mapstructure:"drive_base_url"`
	StaticToken     string        `mapstructure:"static_token"`
	Timeout         time.Duration `mapstructure:"timeout"`
	MaxRetries      int           `mapstructure:"max_retries"`
}

// StorageConfig contains storage and persistence settings
type StorageConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Index    IndexConfig    `mapstructure:"index"`
}

// PostgresConfig contains Postgres connection settings
type PostgresConfig struct {
	URL      string        `mapstructure:"url"`
	Host     string        `mapstructure:"host"`
	Port     int           `mapstructure:"port"`
	User     string        `mapstructure:"user"`
	Password string        `mapstructure:"password"`
	DBName   string        `mapstructure:"dbname"`
	SSLMode  string        `mapstructure:"sslmode"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// DSN builds a connection string from the configured fields, preferring URL.
func (p PostgresConfig) DSN() (string, error) {
	if p.URL != "" {
		return p.URL, nil
	}
	if p.Host == "" || p.DBName == "" {
		return "", fmt.Errorf("postgres not configured (storage.postgres.host/dbname or url)")
	}
	port := p.Port
	if port == 0 {
		port = 5432
	}
	ssl := p.SSLMode
	if ssl == "" {
		ssl = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s", p.User, p.Password, p.Host, port, p.DBName, ssl), nil
}

// RedisConfig contains Redis connection settings
type RedisConfig struct {
	Host     string        `mapstructure:"host"`
	Port     int           `mapstructure:"port"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Timeout  time.Duration `mapstructure:"timeout"`
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

// IndexConfig contains semantic index behaviour settings
type IndexConfig struct {
	// ReindexOnRead re-embeds and upserts every item returned by an
	// authoritative search. Warms the fallback corpus at the cost of
	// write amplification on repeated reads.
	ReindexOnRead bool `mapstructure:"reindex_on_read"`
	MaxResults    int  `mapstructure:"max_results"`
}

// LoadConfig loads configuration from file and environment variables
func LoadConfig(path string) (*Config, error) {
	viper.SetConfigName("workmate")
	viper.SetConfigType("json")
	if path != "" {
		viper.SetConfigFile(path)
	} else {
		viper.AddConfigPath("./config")
		viper.AddConfigPath(".")
	}

	viper.SetEnvPrefix("WORKMATE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()

	// Config file is optional; defaults plus env are enough to boot.
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && path != "" {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	overrideFromEnv()

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults() {
	viper.SetDefault("general.debug", false)
	viper.SetDefault("general.log_level", "info")
	viper.SetDefault("general.default_timeout", "30s")
	viper.SetDefault("general.history_limit", 20)

	viper.SetDefault("server.address", ":10011")

	viper.SetDefault("llm.base_url", "https://api.openai.com/v1")
	viper.SetDefault("llm.timeout", "60s")
	viper.SetDefault("llm.max_retries", 2)
	viper.SetDefault("llm.routing.classification", "gpt-4o-mini")
	viper.SetDefault("llm.routing.synthesis", "gpt-4o")
	viper.SetDefault("llm.routing.tools", "gpt-4o")

	viper.SetDefault("embedding.base_url", "https://api.openai.com/v1")
	viper.SetDefault("embedding.model", "text-embedding-3-small")
	viper.SetDefault("embedding.dimensions", 1536)
	viper.SetDefault("embedding.timeout", "30s")

	viper.SetDefault("telemetry.enabled", true)
	viper.SetDefault("telemetry.cost_tracking", true)
	viper.SetDefault("telemetry.periodic_logs", false)

	viper.SetDefault("backends.google.gmail_base_url", "https://gmail.googleapis.com/gmail/v1")
	viper.SetDefault("backends.google.calendar_base_url", "https://www.googleapis.com/calendar/v3")
	viper.SetDefault("backends.google.drive_base_url", "https://www.googleapis.com/drive/v3")
	viper.SetDefault("backends.google.timeout", "15s")
	viper.SetDefault("backends.google.max_retries", 1)

	viper.SetDefault("storage.postgres.host", "")
	viper.SetDefault("storage.postgres.port", 5432)
	viper.SetDefault("storage.postgres.sslmode", "disable")
	viper.SetDefault("storage.postgres.timeout", "5s")
	viper.SetDefault("storage.redis.host", "localhost")
	viper.SetDefault("storage.redis.port", 6379)
	viper.SetDefault("storage.redis.db", 0)
	viper.SetDefault("storage.redis.timeout", "5s")
	viper.SetDefault("storage.redis.cache_ttl", "10m")
	viper.SetDefault("storage.index.reindex_on_read", true)
	viper.SetDefault("storage.index.max_results", 10)
}

// overrideFromEnv overrides configuration with environment variables
func overrideFromEnv() {
	if apiKey := os.Getenv("OPENAI_API_KEY"); apiKey != "" {
		viper.Set("llm.api_key", apiKey)
		if viper.GetString("embedding.api_key") == "" {
			viper.Set("embedding.api_key", apiKey)
		}
	}
	if secret := os.Getenv("WORKMATE_JWT_SECRET"); secret != "" {
		viper.Set("server.jwt_secret", secret)
	}
	if tok := os.Getenv("GOOGLE_STATIC_TOKEN"); tok != "" {
		viper.Set("backends.google.static_token", tok)
	}

	if url := os.Getenv("DATABASE_URL"); url != "" {
		viper.Set("storage.postgres.url", url)
	}
	if host := os.Getenv("POSTGRES_HOST"); host != "" {
		viper.Set("storage.postgres.host", host)
	}
	if port := os.Getenv("POSTGRES_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			viper.Set("storage.postgres.port", p)
		}
	}
	if user := os.Getenv("POSTGRES_USER"); user != "" {
		viper.Set("storage.postgres.user", user)
	}
	if pass := os.Getenv("POSTGRES_PASSWORD"); pass != "" {
		viper.Set("storage.postgres.password", pass)
	}
	if db := os.Getenv("POSTGRES_DB"); db != "" {
		viper.Set("storage.postgres.dbname", db)
	}

	if host := os.Getenv("REDIS_HOST"); host != "" {
		viper.Set("storage.redis.host", host)
	}
	if port := os.Getenv("REDIS_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			viper.Set("storage.redis.port", p)
		}
	}
	if password := os.Getenv("REDIS_PASSWORD"); password != "" {
		viper.Set("storage.redis.password", password)
	}
}

// validateConfig validates the configuration
func validateConfig(config *Config) error {
	if config.General.HistoryLimit <= 0 {
		return fmt.Errorf("general.history_limit must be > 0")
	}
	if config.Embedding.Dimensions <= 0 {
		return fmt.Errorf("embedding.dimensions must be > 0")
	}
	if config.LLM.Routing.Classification == "" || config.LLM.Routing.Synthesis == "" {
		return fmt.Errorf("llm.routing.classification and llm.routing.synthesis are required")
	}
	return nil
}
