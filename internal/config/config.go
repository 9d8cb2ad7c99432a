package config

import "time"

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server     ServerConfig     `mapstructure:"server" validate:"required"`
	Dispatcher DispatcherConfig `mapstructure:"dispatcher" validate:"required"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Auth       AuthConfig       `mapstructure:"auth"`
	API        APIConfig        `mapstructure:"api"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port            int           `mapstructure:"port" validate:"required,gt=0,lt=65536"`
	LogLevel        string        `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0"`
}

// DispatcherConfig controls how work is scheduled.
type DispatcherConfig struct {
	// QueueShards is the number of ordered queue workers.
	QueueShards int `mapstructure:"queue_shards" validate:"gte=1,lte=1024"`
	// QueueSize bounds each shard's backlog.
	QueueSize int `mapstructure:"queue_size" validate:"gte=1"`
	// MaxParallel caps concurrently executing units; 0 is unlimited.
	MaxParallel int `mapstructure:"max_parallel" validate:"gte=0"`
	// Redeliver journals queued work and replays it on startup.
	Redeliver bool `mapstructure:"redeliver"`
}

// DatabaseConfig contains all database-related configuration settings.
// Without a URL the journal is kept in memory.
type DatabaseConfig struct {
	URL string `mapstructure:"url" validate:"omitempty,url"`
}

// AuthConfig contains all authentication and authorization settings.
// Without a secret the API is served unauthenticated.
type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret" validate:"omitempty,min=32"`
	// TokenLifetime is how long issued operator tokens stay valid.
	TokenLifetime time.Duration `mapstructure:"token_lifetime" validate:"gte=0"`
}

// APIConfig contains HTTP API settings.
type APIConfig struct {
	// RateLimit is the sustained requests per second allowed per client; 0
	// disables limiting.
	RateLimit float64 `mapstructure:"rate_limit" validate:"gte=0"`
	// Burst is the number of requests a client may make at once.
	Burst int `mapstructure:"burst" validate:"gte=0"`
}
