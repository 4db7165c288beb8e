package config

import "time"

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server     ServerConfig     `mapstructure:"server" validate:"required"`
	Database   DatabaseConfig   `mapstructure:"database" validate:"required"`
	Auth       AuthConfig       `mapstructure:"auth" validate:"required"`
	Scheduling SchedulingConfig `mapstructure:"scheduling" validate:"required"`
	Notify     NotifyConfig     `mapstructure:"notify" validate:"required"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port     int    `mapstructure:"port" validate:"required,gt=0,lt=65536"`
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
	// AdminToken guards the operator routes. Empty disables them.
	AdminToken string `mapstructure:"admin_token" validate:"omitempty,min=16"`
}

// DatabaseConfig contains all database-related configuration settings.
type DatabaseConfig struct {
	Driver       string `mapstructure:"driver" validate:"required,oneof=postgres sqlite"`
	URL          string `mapstructure:"url" validate:"required"`
	MaxOpenConns int    `mapstructure:"max_open_conns" validate:"gte=0"`
}

// AuthConfig contains all authentication and authorization settings.
type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret" validate:"required,min=32"`
}

// SchedulingConfig tunes the delivery engine and the due poller.
type SchedulingConfig struct {
	MinLeadTime        time.Duration `mapstructure:"min_lead_time" validate:"gte=0"`
	PollSchedule       string        `mapstructure:"poll_schedule" validate:"required"`
	DueBatchSize       int           `mapstructure:"due_batch_size" validate:"gt=0"`
	DeliverConcurrency int           `mapstructure:"deliver_concurrency" validate:"gt=0,lte=64"`
	NotifyRatePerSec   float64       `mapstructure:"notify_rate_per_sec" validate:"gt=0"`
}

// NotifyConfig selects where delivered letters are handed off.
type NotifyConfig struct {
	Kind       string        `mapstructure:"kind" validate:"required,oneof=log webhook"`
	WebhookURL string        `mapstructure:"webhook_url" validate:"required_if=Kind webhook,omitempty,url"`
	Timeout    time.Duration `mapstructure:"timeout" validate:"gt=0"`
}
