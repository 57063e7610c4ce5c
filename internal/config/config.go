// Package config provides configuration management using viper.
// It supports loading from YAML files and environment variable overrides.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Quota       QuotaConfig       `mapstructure:"quota"`
	Rewards     RewardsConfig     `mapstructure:"rewards"`
	Attestation AttestationConfig `mapstructure:"attestation"`
	Sync        SyncConfig        `mapstructure:"sync"`
	Policy      PolicyConfig      `mapstructure:"policy"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig holds PostgreSQL connection configuration.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	PoolSize        int           `mapstructure:"pool_size"`
	ConnectTimeout  time.Duration `mapstructure:"connect_timeout"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`
}

// QuotaConfig holds daily poke quota configuration.
// DailyLimit bounds sends and receives independently per calendar day.
// Timezone names the single reference zone used to compute day keys;
// client clocks are never consulted.
type QuotaConfig struct {
	DailyLimit int    `mapstructure:"daily_limit"`
	Timezone   string `mapstructure:"timezone"`
}

// RewardsConfig holds point reward configuration.
type RewardsConfig struct {
	PokeReward        int64 `mapstructure:"poke_reward"`
	SignupBonus       int64 `mapstructure:"signup_bonus"`
	ReferralBonus     int64 `mapstructure:"referral_bonus"`
	MinimumWithdrawal int64 `mapstructure:"minimum_withdrawal"`
}

// AttestationConfig holds ad-completion attestation configuration.
type AttestationConfig struct {
	TTL time.Duration `mapstructure:"ttl"`
}

// SyncConfig holds snapshot reconciliation configuration.
type SyncConfig struct {
	Interval time.Duration `mapstructure:"interval"`
}

// PolicyConfig holds post-commit policy configuration.
// A zero cooldown selects the no-op policy.
type PolicyConfig struct {
	Cooldown time.Duration `mapstructure:"cooldown"`
}

// DSN returns the PostgreSQL connection string.
func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=disable",
		d.User, d.Password, d.Host, d.Port, d.Name,
	)
}

// Addr returns the host:port the HTTP server binds to.
func (s *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// Location resolves the configured reference timezone.
func (q *QuotaConfig) Location() (*time.Location, error) {
	if q.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(q.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid quota timezone %q: %w", q.Timezone, err)
	}
	return loc, nil
}

// Load reads configuration from file and environment variables.
// It looks for config.yaml in the config directory.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Configure viper
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	// Enable environment variable override
	// Environment variables use underscore separator and uppercase
	// e.g., SERVER_PORT, DATABASE_HOST, QUOTA_DAILY_LIMIT
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file (optional - env vars can provide all config)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found is OK - we can use env vars
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.shutdown_timeout", "10s")

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "poke")
	v.SetDefault("database.name", "poke")
	v.SetDefault("database.pool_size", 20)
	v.SetDefault("database.connect_timeout", "10s")
	v.SetDefault("database.max_conn_lifetime", "1h")
	v.SetDefault("database.max_conn_idle_time", "30m")

	// Quota defaults
	v.SetDefault("quota.daily_limit", 2)
	v.SetDefault("quota.timezone", "UTC")

	// Reward defaults
	v.SetDefault("rewards.poke_reward", 50)
	v.SetDefault("rewards.signup_bonus", 100)
	v.SetDefault("rewards.referral_bonus", 200)
	v.SetDefault("rewards.minimum_withdrawal", 2000)

	// Attestation defaults
	v.SetDefault("attestation.ttl", "5m")

	// Sync defaults
	v.SetDefault("sync.interval", "30s")

	// Policy defaults
	v.SetDefault("policy.cooldown", "0s")
}
