package config

import "fmt"

// Config is the main application configuration struct.
type Config struct {
	App           AppConfig           `mapstructure:"app"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Logging       LoggingConfig       `mapstructure:"logging"`
	Notifications NotificationsConfig `mapstructure:"notifications"`
	Stacking      StackingConfig      `mapstructure:"stacking"`
	Push          PushConfig          `mapstructure:"push"`
}

type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
	MetricsAddr string `mapstructure:"metrics_addr"`
}

type DatabaseConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
}

// GetDSN returns the PostgreSQL connection string.
func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// NotificationsConfig holds the core notification system settings.
type NotificationsConfig struct {
	// KeepMonths is the retention period; notifications older than
	// KeepMonths * 30 days are removed by the cleanup sweeper.
	KeepMonths int `mapstructure:"keep_months"`

	// PushTokenField names the user entity field holding the mobile push token.
	PushTokenField string `mapstructure:"push_token_field"`

	// PushChannels lists channel plugin ids that produce user-visible mobile
	// alerts. Notifications on other channels are delivered silently
	// (data-only payload). Empty leaves every channel user-visible.
	PushChannels []string `mapstructure:"push_channels"`
}

// StackingConfig holds per-channel stacking (aggregation) settings.
type StackingConfig struct {
	Channels []StackChannelConfig `mapstructure:"channels"`
}

// StackChannelConfig configures stacking for a single channel plugin.
// Stacking is enabled when Stack > 1.
type StackChannelConfig struct {
	ChannelPlugin string `mapstructure:"channel_plugin"`
	Stack         int    `mapstructure:"stack"`
	Message       string `mapstructure:"message"`
	URI           string `mapstructure:"uri"`
}

// ByPlugin returns stacking settings keyed by channel plugin id.
func (s StackingConfig) ByPlugin() map[string]StackChannelConfig {
	out := make(map[string]StackChannelConfig, len(s.Channels))
	for _, c := range s.Channels {
		out[c.ChannelPlugin] = c
	}
	return out
}

// PushConfig holds settings for the mobile push gateway and its queue.
type PushConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	AWSRegion   string `mapstructure:"aws_region"`
	Concurrency int    `mapstructure:"concurrency"`

	// CleanupSchedule is the cron spec for the periodic retention sweep.
	CleanupSchedule string `mapstructure:"cleanup_schedule"`
}
