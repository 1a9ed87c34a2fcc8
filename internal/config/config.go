package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Config represents the complete bot configuration
type Config struct {
	Remote    RemoteConfig    `mapstructure:"remote"`
	Transport TransportConfig `mapstructure:"transport"`
	Farm      FarmConfig      `mapstructure:"farm"`
	Catalog   CatalogConfig   `mapstructure:"catalog"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Monitor   MonitorConfig   `mapstructure:"monitor"`
}

// RemoteConfig contains remote API endpoint and credential configuration
type RemoteConfig struct {
	BaseURL   string `mapstructure:"base_url" validate:"required,url"`
	Token     string `mapstructure:"token"`
	TokenFile string `mapstructure:"token_file"`
	Origin    string `mapstructure:"origin" validate:"required,url"`
	Referer   string `mapstructure:"referer" validate:"required,url"`
	ClientID  string `mapstructure:"client_id" validate:"required"`
}

// TransportConfig contains retry and timeout configuration for the signed transport
type TransportConfig struct {
	Timeout        time.Duration `mapstructure:"timeout"`
	MaxAttempts    int           `mapstructure:"max_attempts" validate:"min=1"`
	RetryBaseDelay time.Duration `mapstructure:"retry_base_delay"`
}

// FarmConfig contains the tracked slot set and consumable keys
type FarmConfig struct {
	Slots         string        `mapstructure:"slots" validate:"required"`
	SeedKey       string        `mapstructure:"seed_key" validate:"required"`
	BoosterKey    string        `mapstructure:"booster_key"`
	SeedMinBuy    int           `mapstructure:"seed_min_buy" validate:"min=1"`
	BoosterMinBuy int           `mapstructure:"booster_min_buy" validate:"min=1"`
	TickInterval  time.Duration `mapstructure:"tick_interval"`
	RefreshGrace  time.Duration `mapstructure:"refresh_grace"`
}

// CatalogConfig contains the item catalog location
type CatalogConfig struct {
	Path string `mapstructure:"path" validate:"required"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level    string `mapstructure:"level" validate:"required"`
	Encoding string `mapstructure:"encoding" validate:"oneof=json console"`
}

// MonitorConfig contains the internal health/metrics server configuration
type MonitorConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Host    string `mapstructure:"host"`
	Port    string `mapstructure:"port"`
}

// Load loads configuration from file and environment variables
func Load() (*Config, error) {
	viper.Reset()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath("/etc/farm-bot")

	// Set environment variable prefix and key replacement
	viper.SetEnvPrefix("FARM_BOT")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Explicitly bind environment variables for better reliability
	viper.BindEnv("remote.base_url", "FARM_BOT_REMOTE_BASE_URL")
	viper.BindEnv("remote.token", "FARM_BOT_REMOTE_TOKEN")
	viper.BindEnv("remote.token_file", "FARM_BOT_REMOTE_TOKEN_FILE")
	viper.BindEnv("farm.slots", "FARM_BOT_FARM_SLOTS")
	viper.BindEnv("farm.seed_key", "FARM_BOT_FARM_SEED_KEY")
	viper.BindEnv("farm.booster_key", "FARM_BOT_FARM_BOOSTER_KEY")
	viper.BindEnv("catalog.path", "FARM_BOT_CATALOG_PATH")
	viper.BindEnv("monitor.port", "FARM_BOT_MONITOR_PORT")

	// Set defaults
	setDefaults()

	// Try to read config file (optional)
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found is OK, we'll use defaults + env vars
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default values for configuration
func setDefaults() {
	// Remote defaults (no URL or credential defaults beyond the public game origin)
	viper.SetDefault("remote.origin", "https://game.example.com")
	viper.SetDefault("remote.referer", "https://game.example.com/farm")
	viper.SetDefault("remote.client_id", "web-1.0")

	// Transport defaults
	viper.SetDefault("transport.timeout", "30s")
	viper.SetDefault("transport.max_attempts", 3)
	viper.SetDefault("transport.retry_base_delay", "500ms")

	// Farm defaults
	viper.SetDefault("farm.seed_min_buy", 10)
	viper.SetDefault("farm.booster_min_buy", 5)
	viper.SetDefault("farm.tick_interval", "1s")
	viper.SetDefault("farm.refresh_grace", "15s")

	// Catalog defaults
	viper.SetDefault("catalog.path", "configs/catalog.yaml")

	// Logging defaults
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.encoding", "json")

	// Monitor defaults
	viper.SetDefault("monitor.enabled", true)
	viper.SetDefault("monitor.host", "127.0.0.1")
	viper.SetDefault("monitor.port", "9091")
}

// Validate validates the configuration and ensures required fields are present
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return err
	}

	if c.Remote.Token == "" && c.Remote.TokenFile == "" {
		return fmt.Errorf("either remote.token or remote.token_file must be set (use FARM_BOT_REMOTE_TOKEN)")
	}

	if _, err := c.TrackedSlots(); err != nil {
		return err
	}

	// Validate timeout values are reasonable
	timeouts := map[string]time.Duration{
		"transport.timeout":          c.Transport.Timeout,
		"transport.retry_base_delay": c.Transport.RetryBaseDelay,
		"farm.tick_interval":         c.Farm.TickInterval,
		"farm.refresh_grace":         c.Farm.RefreshGrace,
	}

	for name, timeout := range timeouts {
		if timeout <= 0 {
			return fmt.Errorf("timeout '%s' must be positive, got %v", name, timeout)
		}
		if timeout > 10*time.Minute {
			return fmt.Errorf("timeout '%s' seems too large, got %v", name, timeout)
		}
	}

	return nil
}

// TrackedSlots parses farm.slots ("1,2,3") into an ordered slot id set
func (c *Config) TrackedSlots() ([]int, error) {
	parts := strings.Split(c.Farm.Slots, ",")
	slots := make([]int, 0, len(parts))
	seen := make(map[int]bool)

	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("farm.slots contains invalid slot id %q: %w", part, err)
		}
		if id <= 0 {
			return nil, fmt.Errorf("farm.slots contains non-positive slot id %d", id)
		}
		if seen[id] {
			return nil, fmt.Errorf("farm.slots contains duplicate slot id %d", id)
		}
		seen[id] = true
		slots = append(slots, id)
	}

	if len(slots) == 0 {
		return nil, fmt.Errorf("farm.slots must contain at least one slot id")
	}

	return slots, nil
}

// ResolveToken returns the credential, reading remote.token_file when remote.token is empty
func (c *Config) ResolveToken() (string, error) {
	if c.Remote.Token != "" {
		return c.Remote.Token, nil
	}

	data, err := os.ReadFile(c.Remote.TokenFile)
	if err != nil {
		return "", fmt.Errorf("failed to read token file %s: %w", c.Remote.TokenFile, err)
	}

	token := strings.TrimSpace(string(data))
	if token == "" {
		return "", fmt.Errorf("token file %s is empty", c.Remote.TokenFile)
	}

	return token, nil
}
