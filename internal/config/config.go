package config

import "time"

// Presence scopes accepted by PresenceScope.
const (
	PresenceScopeRooms  = "rooms"
	PresenceScopeGlobal = "global"
)

// Config holds server configuration values.
type Config struct {
	Addr              string        `mapstructure:"addr" yaml:"addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	LogLevel          string        `mapstructure:"log_level" yaml:"log_level"`

	DatabasePath string `mapstructure:"database_path" yaml:"database_path"`

	JWTSecret   string        `mapstructure:"jwt_secret" yaml:"jwt_secret"`
	JWTIssuer   string        `mapstructure:"jwt_issuer" yaml:"jwt_issuer"`
	JWTAudience string        `mapstructure:"jwt_audience" yaml:"jwt_audience"`
	JWTTTL      time.Duration `mapstructure:"jwt_ttl" yaml:"jwt_ttl"`

	// WebSocket tuning.
	MaxMessageBytes    int64         `mapstructure:"max_message_bytes" yaml:"max_message_bytes"`
	SendBuffer         int           `mapstructure:"send_buffer" yaml:"send_buffer"`
	PingInterval       time.Duration `mapstructure:"ping_interval" yaml:"ping_interval"`
	PongTimeout        time.Duration `mapstructure:"pong_timeout" yaml:"pong_timeout"`
	WriteTimeout       time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	RateLimitPerMinute int           `mapstructure:"rate_limit_per_minute" yaml:"rate_limit_per_minute"`

	TypingTTL     time.Duration `mapstructure:"typing_ttl" yaml:"typing_ttl"`
	PresenceScope string        `mapstructure:"presence_scope" yaml:"presence_scope"`

	DefaultPageSize int `mapstructure:"default_page_size" yaml:"default_page_size"`
	MaxPageSize     int `mapstructure:"max_page_size" yaml:"max_page_size"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		Addr:               ":8080",
		ReadHeaderTimeout:  5 * time.Second,
		ShutdownTimeout:    5 * time.Second,
		LogLevel:           "info",
		DatabasePath:       "huddle.db",
		JWTSecret:          "change-me",
		JWTIssuer:          "huddle",
		JWTAudience:        "huddle",
		JWTTTL:             24 * time.Hour,
		MaxMessageBytes:    1 << 16,
		SendBuffer:         64,
		PingInterval:       25 * time.Second,
		PongTimeout:        10 * time.Second,
		WriteTimeout:       5 * time.Second,
		RateLimitPerMinute: 600,
		TypingTTL:          3 * time.Second,
		PresenceScope:      PresenceScopeRooms,
		DefaultPageSize:    50,
		MaxPageSize:        100,
	}
}

// UpdateFrom overwrites non-zero values from other config into receiver.
func (c *Config) UpdateFrom(other Config) {
	if other.Addr != "" {
		c.Addr = other.Addr
	}
	if other.ReadHeaderTimeout != 0 {
		c.ReadHeaderTimeout = other.ReadHeaderTimeout
	}
	if other.ShutdownTimeout != 0 {
		c.ShutdownTimeout = other.ShutdownTimeout
	}
	if other.LogLevel != "" {
		c.LogLevel = other.LogLevel
	}
	if other.DatabasePath != "" {
		c.DatabasePath = other.DatabasePath
	}
	if other.JWTSecret != "" {
		c.JWTSecret = other.JWTSecret
	}
	if other.PresenceScope != "" {
		c.PresenceScope = other.PresenceScope
	}
	if other.TypingTTL != 0 {
		c.TypingTTL = other.TypingTTL
	}
}
