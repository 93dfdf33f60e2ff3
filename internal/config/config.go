package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/samber/lo"

	"parlor/pkg/types"
)

// Config holds all runtime settings. Values come from PARLOR_* environment
// variables with production-ready defaults; a .env file is loaded by the
// entrypoint before processing.
type Config struct {
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	HTTP      HTTPConfig
	Database  DatabaseConfig
	WebSocket WebSocketConfig
	Chat      ChatConfig
	Assistant AssistantConfig
	Auth      AuthConfig
}

// HTTPConfig configures the HTTP server hosting the API and /ws endpoint.
type HTTPConfig struct {
	Host         string        `envconfig:"HTTP_HOST" default:"0.0.0.0"`
	Port         int           `envconfig:"HTTP_PORT" default:"8080"`
	ReadTimeout  time.Duration `envconfig:"HTTP_READ_TIMEOUT" default:"30s"`
	WriteTimeout time.Duration `envconfig:"HTTP_WRITE_TIMEOUT" default:"30s"`
}

// DatabaseConfig configures the SQLite message store.
type DatabaseConfig struct {
	Path         string        `envconfig:"DATABASE_PATH" default:"./parlor.db"`
	WriteTimeout time.Duration `envconfig:"DATABASE_WRITE_TIMEOUT" default:"30s"`
}

// WebSocketConfig tunes connection heartbeat and buffering.
type WebSocketConfig struct {
	PingInterval time.Duration `envconfig:"WEBSOCKET_PING_INTERVAL" default:"30s"`
	ReadTimeout  time.Duration `envconfig:"WEBSOCKET_READ_TIMEOUT" default:"60s"`
	WriteTimeout time.Duration `envconfig:"WEBSOCKET_WRITE_TIMEOUT" default:"10s"`
	BufferSize   int           `envconfig:"WEBSOCKET_BUFFER_SIZE" default:"100"`
}

// ChatConfig defines the operator-defined channel set and typing debounce.
type ChatConfig struct {
	Channels      []string      `envconfig:"CHANNELS" default:"general,random,tech"`
	DefaultRoom   string        `envconfig:"DEFAULT_ROOM" default:"general"`
	TypingTimeout time.Duration `envconfig:"TYPING_TIMEOUT" default:"1500ms"`
}

// AssistantConfig configures the automated assistant. An empty APIKey
// leaves the assistant unconfigured; it then answers with fallback text.
type AssistantConfig struct {
	APIKey   string        `envconfig:"ASSISTANT_API_KEY"`
	BaseURL  string        `envconfig:"ASSISTANT_BASE_URL"`
	Model    string        `envconfig:"ASSISTANT_MODEL" default:"gpt-4o-mini"`
	Username string        `envconfig:"ASSISTANT_USERNAME" default:"bot"`
	Timeout  time.Duration `envconfig:"ASSISTANT_TIMEOUT" default:"30s"`
}

// AuthConfig configures token minting for the account routes and the
// websocket handshake.
type AuthConfig struct {
	JWTSecret string        `envconfig:"JWT_SECRET" default:"dev-secret-change-me"`
	TokenTTL  time.Duration `envconfig:"TOKEN_TTL" default:"24h"`
}

// Load reads configuration from the environment and validates it.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("parlor", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate ensures the configuration can run. Invalid settings fail at
// startup rather than surfacing as runtime errors mid-session.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("HTTP port must be between 1 and 65535")
	}
	if c.HTTP.Host == "" {
		return fmt.Errorf("HTTP host cannot be empty")
	}
	if c.HTTP.ReadTimeout <= 0 || c.HTTP.WriteTimeout <= 0 {
		return fmt.Errorf("HTTP timeouts must be positive")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database path cannot be empty")
	}
	if c.Database.WriteTimeout <= 0 {
		return fmt.Errorf("database write timeout must be positive")
	}
	if c.WebSocket.PingInterval <= 0 || c.WebSocket.ReadTimeout <= 0 || c.WebSocket.WriteTimeout <= 0 {
		return fmt.Errorf("websocket timeouts must be positive")
	}
	if c.WebSocket.ReadTimeout <= c.WebSocket.PingInterval {
		return fmt.Errorf("websocket read timeout must exceed ping interval")
	}
	if c.WebSocket.BufferSize <= 0 {
		return fmt.Errorf("websocket buffer size must be positive")
	}
	if len(c.Chat.Channels) == 0 {
		return fmt.Errorf("at least one channel is required")
	}
	for _, name := range c.Chat.Channels {
		if !types.IsValidUsername(name) {
			return fmt.Errorf("invalid channel name %q", name)
		}
	}
	if !lo.Contains(c.Chat.Channels, c.Chat.DefaultRoom) {
		return fmt.Errorf("default room %q is not in the channel list", c.Chat.DefaultRoom)
	}
	if c.Chat.TypingTimeout <= 0 {
		return fmt.Errorf("typing timeout must be positive")
	}
	if !types.IsValidUsername(c.Assistant.Username) {
		return fmt.Errorf("invalid assistant username %q", c.Assistant.Username)
	}
	if c.Assistant.Timeout <= 0 {
		return fmt.Errorf("assistant timeout must be positive")
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("JWT secret cannot be empty")
	}
	if c.Auth.TokenTTL <= 0 {
		return fmt.Errorf("token TTL must be positive")
	}
	return nil
}
