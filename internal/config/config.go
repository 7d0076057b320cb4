package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the playground
type Config struct {
	Client  ClientConfig  `yaml:"client"`
	Poll    PollConfig    `yaml:"poll"`
	Storage StorageConfig `yaml:"storage"`
	Catalog CatalogConfig `yaml:"catalog"`
	Server  ServerConfig  `yaml:"server"`
	Log     LogConfig     `yaml:"log"`
	REPL    REPLConfig    `yaml:"repl"`
}

// ClientConfig holds the grading API connection settings
type ClientConfig struct {
	BaseURL   string        `yaml:"base_url"`
	APIKey    string        `yaml:"api_key"`
	Timeout   time.Duration `yaml:"timeout"`
	StudentID string        `yaml:"student_id"`
}

// PollConfig holds the result polling schedule
type PollConfig struct {
	BaseDelay   time.Duration `yaml:"base_delay"`
	MaxDelay    time.Duration `yaml:"max_delay"`
	CapAttempts int           `yaml:"cap_attempts"`
	MaxAttempts int           `yaml:"max_attempts"`
}

// StorageConfig selects and configures the draft persistence backend
type StorageConfig struct {
	Driver   string         `yaml:"driver"`
	Path     string         `yaml:"path"`
	Redis    RedisConfig    `yaml:"redis"`
	Database DatabaseConfig `yaml:"database"`
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	DSN          string `yaml:"dsn"`
	Table        string `yaml:"table"`
	MaxOpenConns int    `yaml:"max_open_conns"`
}

// CatalogConfig enables the offline catalog when Dir is set
type CatalogConfig struct {
	Dir            string        `yaml:"dir"`
	ReloadInterval time.Duration `yaml:"reload_interval"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host  string `yaml:"host"`
	Port  int    `yaml:"port"`
	Token string `yaml:"token"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level string `yaml:"level"`
}

// REPLConfig holds terminal front-end configuration
type REPLConfig struct {
	HistoryFile string `yaml:"history_file"`
}

var storageDrivers = map[string]bool{
	"memory":   true,
	"file":     true,
	"redis":    true,
	"postgres": true,
	"sqlite":   true,
}

// Load loads configuration from environment variables, then overlays the
// YAML file named by PLAYGROUND_CONFIG if set
func Load() (*Config, error) {
	cfg := &Config{
		Client: ClientConfig{
			BaseURL:   getEnv("API_BASE_URL", "http://localhost:8000"),
			APIKey:    getEnv("API_KEY", ""),
			Timeout:   getEnvAsDuration("HTTP_TIMEOUT", 30*time.Second),
			StudentID: getEnv("STUDENT_ID", "demo-student"),
		},
		Poll: PollConfig{
			BaseDelay:   getEnvAsDuration("POLL_BASE_DELAY", 2*time.Second),
			MaxDelay:    getEnvAsDuration("POLL_MAX_DELAY", 10*time.Second),
			CapAttempts: getEnvAsInt("POLL_CAP_ATTEMPTS", 5),
			MaxAttempts: getEnvAsInt("POLL_MAX_ATTEMPTS", 20),
		},
		Storage: StorageConfig{
			Driver: getEnv("STORAGE_DRIVER", "file"),
			Path:   getEnv("STORAGE_PATH", defaultStoragePath()),
			Redis: RedisConfig{
				Address:  getEnv("REDIS_ADDRESS", "localhost:6379"),
				Password: getEnv("REDIS_PASSWORD", ""),
				DB:       getEnvAsInt("REDIS_DB", 0),
				Prefix:   getEnv("REDIS_PREFIX", "coderunner:"),
			},
			Database: DatabaseConfig{
				DSN:          getEnv("DATABASE_DSN", ""),
				Table:        getEnv("DATABASE_TABLE", "drafts"),
				MaxOpenConns: getEnvAsInt("DATABASE_MAX_OPEN_CONNS", 4),
			},
		},
		Catalog: CatalogConfig{
			Dir:            getEnv("CATALOG_DIR", ""),
			ReloadInterval: getEnvAsDuration("CATALOG_RELOAD_INTERVAL", 0),
		},
		Server: ServerConfig{
			Host:  getEnv("SERVER_HOST", "127.0.0.1"),
			Port:  getEnvAsInt("SERVER_PORT", 8090),
			Token: getEnv("SERVER_TOKEN", ""),
		},
		Log: LogConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		REPL: REPLConfig{
			HistoryFile: getEnv("REPL_HISTORY_FILE", ""),
		},
	}

	if path := getEnv("PLAYGROUND_CONFIG", ""); path != "" {
		if err := cfg.overlayFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// overlayFile decodes a YAML document on top of the current values.
// Keys absent from the document keep their environment/default value.
func (c *Config) overlayFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Client.BaseURL == "" {
		return fmt.Errorf("api base url is required")
	}

	if c.Poll.BaseDelay <= 0 {
		return fmt.Errorf("invalid poll base delay: %s", c.Poll.BaseDelay)
	}
	if c.Poll.MaxDelay < c.Poll.BaseDelay {
		return fmt.Errorf("poll max delay %s is below base delay %s", c.Poll.MaxDelay, c.Poll.BaseDelay)
	}
	if c.Poll.CapAttempts < 1 {
		return fmt.Errorf("invalid poll cap attempts: %d", c.Poll.CapAttempts)
	}
	if c.Poll.MaxAttempts < 1 {
		return fmt.Errorf("invalid poll max attempts: %d", c.Poll.MaxAttempts)
	}

	if !storageDrivers[c.Storage.Driver] {
		return fmt.Errorf("unknown storage driver: %q", c.Storage.Driver)
	}
	switch c.Storage.Driver {
	case "file", "sqlite":
		if c.Storage.Path == "" {
			return fmt.Errorf("storage path is required for driver %s", c.Storage.Driver)
		}
	case "postgres":
		if c.Storage.Database.DSN == "" {
			return fmt.Errorf("database DSN is required")
		}
	case "redis":
		if c.Storage.Redis.Address == "" {
			return fmt.Errorf("redis address is required")
		}
	}

	if c.Catalog.ReloadInterval < 0 {
		return fmt.Errorf("invalid catalog reload interval: %s", c.Catalog.ReloadInterval)
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if _, err := ParseLevel(c.Log.Level); err != nil {
		return err
	}

	return nil
}

// ParseLevel maps a level name to its slog level
func ParseLevel(name string) (slog.Level, error) {
	switch strings.ToLower(name) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid log level: %q", name)
	}
}

func defaultStoragePath() string {
	dir, err := os.UserConfigDir()
	if err != nil || dir == "" {
		return ".coderunner/drafts.json"
	}
	return dir + "/coderunner/drafts.json"
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
