package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// StorageConfig selects and tunes the key-value backend
type StorageConfig struct {
	// Path is the on-disk directory for the badger store. Ignored when
	// InMemory is set.
	Path       string `yaml:"path"`
	InMemory   bool   `yaml:"inMemory"`
	SyncWrites bool   `yaml:"syncWrites"`
}

// BusConfig tunes the in-process event bus
type BusConfig struct {
	BufferSize   int           `yaml:"bufferSize"`
	MaxAttempts  int           `yaml:"maxAttempts"`
	RetryBackoff time.Duration `yaml:"retryBackoff"`
	HistorySize  int           `yaml:"historySize"`
}

// Config holds all application configuration
type Config struct {
	// Server configuration
	ServerAddress string `yaml:"serverAddress"`
	Environment   string `yaml:"environment"`

	// Logging
	LogLevel string `yaml:"logLevel"`

	Storage StorageConfig `yaml:"storage"`
	Bus     BusConfig     `yaml:"bus"`

	// Feature flags
	EnableMetrics bool `yaml:"enableMetrics"`
	EnableBreaker bool `yaml:"enableBreaker"`

	// TunablesPath points at the optional hot-reloadable tunables file
	// watched at runtime. Empty disables the watcher.
	TunablesPath string `yaml:"tunablesPath"`
}

// LoadConfig loads configuration from environment variables, then overlays
// the optional YAML file named by CONFIG_FILE. File values win over env
// values so a mounted config can pin a deployment.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		ServerAddress: getEnv("SERVER_ADDRESS", ":8080"),
		Environment:   getEnv("ENVIRONMENT", "development"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),

		Storage: StorageConfig{
			Path:       getEnv("STORE_PATH", "data/fluxstore"),
			InMemory:   getEnvBool("STORE_IN_MEMORY", false),
			SyncWrites: getEnvBool("STORE_SYNC_WRITES", true),
		},

		Bus: BusConfig{
			BufferSize:   getEnvInt("BUS_BUFFER_SIZE", 64),
			MaxAttempts:  getEnvInt("BUS_MAX_ATTEMPTS", 3),
			RetryBackoff: time.Duration(getEnvInt("BUS_RETRY_BACKOFF_MS", 50)) * time.Millisecond,
			HistorySize:  getEnvInt("BUS_HISTORY_SIZE", 256),
		},

		EnableMetrics: getEnvBool("ENABLE_METRICS", true),
		EnableBreaker: getEnvBool("ENABLE_BREAKER", true),
		TunablesPath:  getEnv("TUNABLES_FILE", ""),
	}

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.overlayFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Load is an alias for LoadConfig
func Load() (*Config, error) {
	return LoadConfig()
}

// overlayFile applies a YAML config file over the current values
func (c *Config) overlayFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// Validate checks if all required configuration is present
func (c *Config) Validate() error {
	if !c.Storage.InMemory && c.Storage.Path == "" {
		return fmt.Errorf("STORE_PATH is required unless STORE_IN_MEMORY is set")
	}
	if c.Bus.BufferSize <= 0 {
		return fmt.Errorf("bus buffer size must be positive")
	}
	if c.Bus.MaxAttempts <= 0 {
		return fmt.Errorf("bus max attempts must be positive")
	}
	if c.Environment == "production" && c.Storage.InMemory {
		return fmt.Errorf("in-memory storage is not allowed in production")
	}
	return nil
}

// IsDevelopment checks if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction checks if running in production mode
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool gets a boolean environment variable with a default value
func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value == "true" || value == "1" || value == "yes"
}

// getEnvInt gets an integer environment variable with a default value
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}
