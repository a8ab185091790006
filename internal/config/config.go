package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for CareLink.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Storage     StorageConfig     `mapstructure:"storage"`
	Scheduler   SchedulerConfig   `mapstructure:"scheduler"`
	Channels    ChannelsConfig    `mapstructure:"channels"`
	Recognition RecognitionConfig `mapstructure:"recognition"`
	Security    SecurityConfig    `mapstructure:"security"`
	Log         LogConfig         `mapstructure:"log"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Address      string `mapstructure:"address"`
	Port         int    `mapstructure:"port"`
	ReadTimeout  int    `mapstructure:"read_timeout"`
	WriteTimeout int    `mapstructure:"write_timeout"`
}

// StorageConfig holds database settings.
type StorageConfig struct {
	DataDir    string `mapstructure:"data_dir"`
	SQLitePath string `mapstructure:"sqlite_path"`
	BadgerPath string `mapstructure:"badger_path"`
}

// SchedulerConfig holds reminder scheduler settings.
type SchedulerConfig struct {
	// Timezone reminders are resolved in. Stored time slots are wall-clock
	// times in this zone, not UTC.
	Timezone string `mapstructure:"timezone"`
	// PushPerSecond caps outbound push throughput toward the platform.
	PushPerSecond float64 `mapstructure:"push_per_second"`
	PushBurst     int     `mapstructure:"push_burst"`
	// DeliveredTTL is how long a (reminder, minute) delivery marker is kept
	// to suppress duplicate sends after an in-minute restart.
	DeliveredTTL time.Duration `mapstructure:"delivered_ttl"`
}

// ChannelsConfig holds messaging platform settings.
type ChannelsConfig struct {
	Telegram TelegramConfig `mapstructure:"telegram"`
}

// TelegramConfig holds Telegram bot settings.
type TelegramConfig struct {
	Enabled   bool    `mapstructure:"enabled"`
	BotToken  string  `mapstructure:"bot_token"`
	AllowList []int64 `mapstructure:"allow_list"`
}

// RecognitionConfig holds AI collaborator settings.
type RecognitionConfig struct {
	Endpoint string `mapstructure:"endpoint"`
	APIKey   string `mapstructure:"api_key"`
	Timeout  int    `mapstructure:"timeout"`
}

// SecurityConfig holds security settings.
type SecurityConfig struct {
	JWTSecret    string        `mapstructure:"jwt_secret"`
	FormTokenTTL time.Duration `mapstructure:"form_token_ttl"`
	AllowOrigins []string      `mapstructure:"allow_origins"`
	FormBaseURL  string        `mapstructure:"form_base_url"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Development bool `mapstructure:"development"`
}

// Load loads configuration from file, env, and defaults.
func Load(configPath, dataDir string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if dataDir == "" {
		dataDir = getDefaultDataDir()
	}
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	v.Set("storage.data_dir", dataDir)
	v.SetDefault("storage.sqlite_path", filepath.Join(dataDir, "carelink.db"))
	v.SetDefault("storage.badger_path", filepath.Join(dataDir, "badger"))

	if configPath == "" {
		configPath = filepath.Join(dataDir, "carelink.yaml")
	}
	if _, err := os.Stat(configPath); err == nil {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	// Environment variables (CARELINK_SERVER_PORT, CARELINK_SECURITY_JWT_SECRET, ...)
	v.SetEnvPrefix("CARELINK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	loadEnvOverrides(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Location resolves the scheduler timezone.
func (c *Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.Scheduler.Timezone)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.address", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30)
	v.SetDefault("server.write_timeout", 30)

	v.SetDefault("scheduler.timezone", "Asia/Taipei")
	v.SetDefault("scheduler.push_per_second", 10.0)
	v.SetDefault("scheduler.push_burst", 20)
	v.SetDefault("scheduler.delivered_ttl", 2*time.Minute)

	v.SetDefault("recognition.timeout", 60)

	v.SetDefault("security.form_token_ttl", 15*time.Minute)
	v.SetDefault("security.allow_origins", []string{"*"})
}

func getDefaultDataDir() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "carelink")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "./data"
	}

	return filepath.Join(home, ".local", "share", "carelink")
}

// loadEnvOverrides loads env vars that Viper's AutomaticEnv does not pick up
// reliably for nested keys becoming struct fields.
func loadEnvOverrides(cfg *Config) {
	getEnv := func(key, fallback string) string {
		if val := os.Getenv(key); val != "" {
			return val
		}
		return fallback
	}

	cfg.Server.Address = getEnv("CARELINK_SERVER_ADDRESS", cfg.Server.Address)
	if port := os.Getenv("CARELINK_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Server.Port = p
		}
	}

	cfg.Scheduler.Timezone = getEnv("CARELINK_SCHEDULER_TIMEZONE", cfg.Scheduler.Timezone)

	cfg.Channels.Telegram.BotToken = getEnv("CARELINK_CHANNELS_TELEGRAM_BOT_TOKEN", cfg.Channels.Telegram.BotToken)
	if cfg.Channels.Telegram.BotToken != "" {
		cfg.Channels.Telegram.Enabled = true
	}

	cfg.Recognition.Endpoint = getEnv("CARELINK_RECOGNITION_ENDPOINT", cfg.Recognition.Endpoint)
	cfg.Recognition.APIKey = getEnv("CARELINK_RECOGNITION_API_KEY", cfg.Recognition.APIKey)

	cfg.Security.JWTSecret = getEnv("CARELINK_SECURITY_JWT_SECRET", cfg.Security.JWTSecret)
	cfg.Security.FormBaseURL = getEnv("CARELINK_SECURITY_FORM_BASE_URL", cfg.Security.FormBaseURL)
}

func validate(cfg *Config) error {
	if _, err := time.LoadLocation(cfg.Scheduler.Timezone); err != nil {
		return fmt.Errorf("invalid scheduler timezone %q: %w", cfg.Scheduler.Timezone, err)
	}
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", cfg.Server.Port)
	}
	return nil
}
