// Package server provides configuration helpers that define runtime defaults
// and validation for the relay service.
package server

import (
	"errors"
	"fmt"
	"strings"
	"time"

	env "github.com/Netflix/go-env"
)

// ErrMissingSecret is returned when no credential signing secret is configured.
var ErrMissingSecret = errors.New("JWT_SECRET is required")

const (
	defaultPort            = ":8080"
	defaultMaxMessageSize  = 4096
	defaultSendBufferSize  = 256
	defaultChatTokenTTL    = 24 * time.Hour
	defaultPreviewTokenTTL = time.Hour
	defaultShutdownTimeout = 10 * time.Second
)

// Config holds the server configuration settings including security controls.
type Config struct {
	Port            string        `env:"SERVER_PORT,default=:8080"`
	Secret          string        `env:"JWT_SECRET"`
	AllowedOrigins  string        `env:"ALLOWED_ORIGINS,default=*"`
	MaxMessageSize  int64         `env:"MAX_MESSAGE_SIZE,default=4096"`
	SendBufferSize  int           `env:"SEND_BUFFER_SIZE,default=256"`
	ChatTokenTTL    time.Duration `env:"CHAT_TOKEN_TTL,default=24h"`
	PreviewTokenTTL time.Duration `env:"PREVIEW_TOKEN_TTL,default=1h"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT,default=10s"`
	LogLevel        string        `env:"LOG_LEVEL,default=info"`
	LogFormat       string        `env:"LOG_FORMAT,default=console"`
}

// NewConfig creates a Config instance populated with default values for all
// settings except the secret.
func NewConfig() *Config {
	return &Config{
		Port:            defaultPort,
		AllowedOrigins:  "*",
		MaxMessageSize:  defaultMaxMessageSize,
		SendBufferSize:  defaultSendBufferSize,
		ChatTokenTTL:    defaultChatTokenTTL,
		PreviewTokenTTL: defaultPreviewTokenTTL,
		ShutdownTimeout: defaultShutdownTimeout,
		LogLevel:        "info",
		LogFormat:       "console",
	}
}

// NewConfigFromEnv decodes the configuration from environment variables and
// sanitizes it. A missing secret is an error.
func NewConfigFromEnv() (*Config, error) {
	var cfg Config
	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		return nil, fmt.Errorf("config error: %w", err)
	}

	sanitized := SanitizeConfig(cfg)
	if err := sanitized.Validate(); err != nil {
		return nil, err
	}
	return &sanitized, nil
}

// SanitizeConfig replaces empty or non-positive values with defaults.
func SanitizeConfig(cfg Config) Config {
	if cfg.Port == "" {
		cfg.Port = defaultPort
	}

	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = defaultMaxMessageSize
	}

	if cfg.SendBufferSize <= 0 {
		cfg.SendBufferSize = defaultSendBufferSize
	}

	if cfg.ChatTokenTTL <= 0 {
		cfg.ChatTokenTTL = defaultChatTokenTTL
	}

	if cfg.PreviewTokenTTL <= 0 {
		cfg.PreviewTokenTTL = defaultPreviewTokenTTL
	}

	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = defaultShutdownTimeout
	}

	if strings.TrimSpace(cfg.LogLevel) == "" {
		cfg.LogLevel = "info"
	}

	if strings.TrimSpace(cfg.LogFormat) == "" {
		cfg.LogFormat = "console"
	}

	return cfg
}

// Validate reports settings that cannot be defaulted.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Secret) == "" {
		return ErrMissingSecret
	}
	return nil
}

// Origins returns the configured origin allow-list.
func (c Config) Origins() []string {
	return parseOrigins(c.AllowedOrigins)
}

func parseOrigins(origins string) []string {
	if strings.TrimSpace(origins) == "" {
		return nil
	}
	parts := strings.Split(origins, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}
