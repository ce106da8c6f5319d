package domain

import "time"

// ServerConfig holds the local HTTP API settings
type ServerConfig struct {
	Host    string `mapstructure:"host"`
	Port    int    `mapstructure:"port"`
	BaseURL string `mapstructure:"base_url"`
}

// PostgresConfig holds PostgreSQL-specific settings
type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Database string `mapstructure:"database"`
	User     string `mapstructure:"username"`
	Pass     string `mapstructure:"password"`
	SslMode  string `mapstructure:"ssl_mode"`
}

// DatabaseConfig holds the local durable store settings
type DatabaseConfig struct {
	Type     string         `mapstructure:"type"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Path           string `mapstructure:"path"`
	Level          string `mapstructure:"level"`
	MaxFileSize    int    `mapstructure:"max_file_size"`
	MaxBackupCount int    `mapstructure:"max_backup_count"`
}

// RemoteConfig points at the remote document store.
// Type is "http" or "memory".
type RemoteConfig struct {
	Type    string        `mapstructure:"type"`
	BaseURL string        `mapstructure:"base_url"`
	Token   string        `mapstructure:"token"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// SyncConfig controls pending operation flushing.
// MaxRetryDelay <= RetryDelay means a flat delay.
type SyncConfig struct {
	RetryDelay    time.Duration `mapstructure:"retry_delay"`
	MaxRetryDelay time.Duration `mapstructure:"max_retry_delay"`
	FlushInterval time.Duration `mapstructure:"flush_interval"`
}

// PeerConfig holds companion link settings for both roles
type PeerConfig struct {
	PhoneURL         string        `mapstructure:"phone_url"`
	PairingToken     string        `mapstructure:"pairing_token"`
	PairingTokenHash string        `mapstructure:"pairing_token_hash"`
	ProtocolVersion  string        `mapstructure:"protocol_version"`
	ReconnectDelay   time.Duration `mapstructure:"reconnect_delay"`
	ReplyTimeout     time.Duration `mapstructure:"reply_timeout"`
}

// ContentConfig controls the affirmation catalog cache
type ContentConfig struct {
	BatchSize       int           `mapstructure:"batch_size"`
	RefreshInterval time.Duration `mapstructure:"refresh_interval"`
	Categories      []string      `mapstructure:"categories"`
}

// Config holds the application's configuration, mapped from config.toml
type Config struct {
	Version    string
	ConfigPath string
	Role       string `mapstructure:"role"`
	UserID     string `mapstructure:"user_id"`

	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Remote   RemoteConfig   `mapstructure:"remote"`
	Sync     SyncConfig     `mapstructure:"sync"`
	Peer     PeerConfig     `mapstructure:"peer"`
	Content  ContentConfig  `mapstructure:"content"`
}

// ConfigUpdate is a partial update accepted by the config endpoint.
// Changes are applied in memory only.
type ConfigUpdate struct {
	LogLevel   *string  `json:"log_level,omitempty"`
	LogPath    *string  `json:"log_path,omitempty"`
	RetryDelay *string  `json:"retry_delay,omitempty"`
	Categories []string `json:"categories,omitempty"`
}
