// Package config provides configuration management using viper.
// It supports loading from YAML files, an optional .env file and environment variable overrides.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"points-ledger-bot/internal/model"
)

// Config holds all application configuration.
type Config struct {
	Bot       BotConfig       `mapstructure:"bot"`
	Database  DatabaseConfig  `mapstructure:"database"`
	API       APIConfig       `mapstructure:"api"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Points    PointsConfig    `mapstructure:"points"`
	Channels  []model.Channel `mapstructure:"channels"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
}

// BotConfig holds Telegram bot configuration.
type BotConfig struct {
	Token     string `mapstructure:"token"`
	WebAppURL string `mapstructure:"webapp_url"`
}

// DatabaseConfig holds PostgreSQL connection configuration.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	PoolSize        int           `mapstructure:"pool_size"`
	ConnectTimeout  time.Duration `mapstructure:"connect_timeout"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`
}

// APIConfig holds HTTP API server configuration.
type APIConfig struct {
	Addr           string        `mapstructure:"addr"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// RedisConfig holds Redis configuration. An empty Addr disables the cache.
type RedisConfig struct {
	Addr           string        `mapstructure:"addr"`
	Password       string        `mapstructure:"password"`
	DB             int           `mapstructure:"db"`
	LeaderboardTTL time.Duration `mapstructure:"leaderboard_ttl"`
}

// PointsConfig holds the reward amounts and the daily cooldown.
type PointsConfig struct {
	Daily    int64         `mapstructure:"daily"`
	Referral int64         `mapstructure:"referral"`
	Social   int64         `mapstructure:"social"`
	Cooldown time.Duration `mapstructure:"cooldown"`
}

// SchedulerConfig holds background job intervals.
type SchedulerConfig struct {
	LeaderboardRefresh time.Duration `mapstructure:"leaderboard_refresh"`
	LeaderboardSize    int           `mapstructure:"leaderboard_size"`
	PoolStatsInterval  time.Duration `mapstructure:"pool_stats_interval"`
}

// DSN returns the PostgreSQL connection string.
func (d *DatabaseConfig) DSN() string {
	sslMode := d.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, sslMode,
	)
}

// Load reads configuration from file and environment variables.
// It looks for config.yaml in the config directory. A .env file in the
// working directory is loaded into the environment first, if present.
func Load(configPath string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	v := viper.New()

	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	// e.g., BOT_TOKEN, DATABASE_HOST, POINTS_DAILY
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Config file is optional - env vars can provide all config
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate rejects configurations the ledger cannot run with.
func (c *Config) Validate() error {
	if c.Points.Daily <= 0 || c.Points.Referral <= 0 || c.Points.Social <= 0 {
		return fmt.Errorf("invalid config: point rewards must be positive")
	}
	if c.Points.Cooldown <= 0 {
		return fmt.Errorf("invalid config: points.cooldown must be positive")
	}

	seen := make(map[string]bool, len(c.Channels))
	for _, ch := range c.Channels {
		if ch.ID == "" || ch.URL == "" {
			return fmt.Errorf("invalid config: channel needs id and url")
		}
		if seen[ch.ID] {
			return fmt.Errorf("invalid config: duplicate channel %q", ch.ID)
		}
		seen[ch.ID] = true
	}
	return nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// Keys without a useful default are still registered so env overrides reach Unmarshal
	v.SetDefault("bot.token", "")
	v.SetDefault("bot.webapp_url", "")
	v.SetDefault("database.password", "")
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.name", "points_db")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.pool_size", 20)
	v.SetDefault("database.connect_timeout", "10s")
	v.SetDefault("database.max_conn_lifetime", "1h")
	v.SetDefault("database.max_conn_idle_time", "30m")

	// API defaults
	v.SetDefault("api.addr", "0.0.0.0:5000")
	v.SetDefault("api.allowed_origins", []string{"*"})
	v.SetDefault("api.read_timeout", "15s")
	v.SetDefault("api.write_timeout", "15s")
	v.SetDefault("api.request_timeout", "30s")

	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.leaderboard_ttl", "1m")

	// Reward defaults
	v.SetDefault("points.daily", 10)
	v.SetDefault("points.referral", 50)
	v.SetDefault("points.social", 50)
	v.SetDefault("points.cooldown", "24h")

	v.SetDefault("channels", []map[string]any{
		{"id": "instagram", "name": "Instagram", "emoji": "📸", "url": "https://www.instagram.com/forex_fabric"},
		{"id": "telegram", "name": "Telegram", "emoji": "📱", "url": "https://t.me/Forex_Fabric"},
		{"id": "website", "name": "Website", "emoji": "🌐", "url": "http://www.forexfabric.com/"},
		{"id": "support", "name": "Support", "emoji": "🆘", "url": "http://t.me/ForexFabric_support"},
	})

	v.SetDefault("scheduler.leaderboard_refresh", "30s")
	v.SetDefault("scheduler.leaderboard_size", 10)
	v.SetDefault("scheduler.pool_stats_interval", "5m")
}
