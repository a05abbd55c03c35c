package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable read by Load
const EnvPrefix = "CONNECTED"

// Config is the service configuration
// ARCHITECTURAL DISCOVERY: one struct per concern, all loaded through a single viper
// instance so files and environment share key names
type Config struct {
	HTTP        *HTTPConfig        `mapstructure:"http" json:"http"`
	Database    *DatabaseConfig    `mapstructure:"database" json:"database"`
	Auth        *AuthConfig        `mapstructure:"auth" json:"auth"`
	Redis       *RedisConfig       `mapstructure:"redis" json:"redis"`
	Mail        *MailConfig        `mapstructure:"mail" json:"mail"`
	WebSocket   *WebSocketConfig   `mapstructure:"websocket" json:"websocket"`
	Coordinator *CoordinatorConfig `mapstructure:"coordinator" json:"coordinator"`
	Log         *LogConfig         `mapstructure:"log" json:"log"`
}

type HTTPConfig struct {
	Host         string        `mapstructure:"host" json:"host"`
	Port         int           `mapstructure:"port" json:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout" json:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout" json:"write_timeout"`
	// PublicURL is the externally reachable base used in one-time links
	PublicURL string `mapstructure:"public_url" json:"public_url"`
}

type DatabaseConfig struct {
	Driver         string        `mapstructure:"driver" json:"driver"`
	DSN            string        `mapstructure:"dsn" json:"dsn"`
	MaxConnections int           `mapstructure:"max_connections" json:"max_connections"`
	Timeout        time.Duration `mapstructure:"timeout" json:"timeout"`
}

type AuthConfig struct {
	JWTSecret  string        `mapstructure:"jwt_secret" json:"-"`
	SessionTTL time.Duration `mapstructure:"session_ttl" json:"session_ttl"`
	LinkTTL    time.Duration `mapstructure:"link_ttl" json:"link_ttl"`
	// DevMode bypasses one-time links and enables POST /api/dev-auth
	DevMode     bool   `mapstructure:"dev_mode" json:"dev_mode"`
	DevPassword string `mapstructure:"dev_password" json:"-"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr" json:"addr"`
	Password string `mapstructure:"password" json:"-"`
	DB       int    `mapstructure:"db" json:"db"`
}

type MailConfig struct {
	From           string `mapstructure:"from" json:"from"`
	SendGridAPIKey string `mapstructure:"sendgrid_api_key" json:"-"`
}

type WebSocketConfig struct {
	PingInterval time.Duration `mapstructure:"ping_interval" json:"ping_interval"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout" json:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout" json:"write_timeout"`
	BufferSize   int           `mapstructure:"buffer_size" json:"buffer_size"`
}

type CoordinatorConfig struct {
	// Token guards the roster editor when non-empty
	Token string `mapstructure:"token" json:"-"`
}

type LogConfig struct {
	Level        string `mapstructure:"level" json:"level"`
	Format       string `mapstructure:"format" json:"format"`
	RollbarToken string `mapstructure:"rollbar_token" json:"-"`
	Environment  string `mapstructure:"environment" json:"environment"`
}

// DefaultConfig returns settings suitable for a local development run
func DefaultConfig() *Config {
	return &Config{
		HTTP: &HTTPConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			PublicURL:    "http://localhost:8080",
		},
		Database: &DatabaseConfig{
			Driver:         "sqlite3",
			DSN:            "./connected.db",
			MaxConnections: 10,
			Timeout:        30 * time.Second,
		},
		Auth: &AuthConfig{
			JWTSecret:   "connected-development-secret",
			SessionTTL:  7 * 24 * time.Hour,
			LinkTTL:     time.Hour,
			DevPassword: "devpass",
		},
		Redis: &RedisConfig{},
		Mail: &MailConfig{
			From: "ConnectED <noreply@localhost>",
		},
		WebSocket: &WebSocketConfig{
			PingInterval: 30 * time.Second,
			ReadTimeout:  60 * time.Second,
			WriteTimeout: 10 * time.Second,
			BufferSize:   100,
		},
		Coordinator: &CoordinatorConfig{},
		Log: &LogConfig{
			Level:       "info",
			Format:      "json",
			Environment: "development",
		},
	}
}

// Validate rejects configurations the service cannot start with
func (c *Config) Validate() error {
	if c.HTTP == nil || c.Database == nil || c.Auth == nil || c.Redis == nil ||
		c.Mail == nil || c.WebSocket == nil || c.Coordinator == nil || c.Log == nil {
		return errors.New("incomplete configuration")
	}

	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("HTTP port must be between 1 and 65535")
	}
	if c.HTTP.ReadTimeout <= 0 || c.HTTP.WriteTimeout <= 0 {
		return fmt.Errorf("HTTP timeouts must be positive")
	}
	if c.HTTP.Host == "" {
		return fmt.Errorf("HTTP host cannot be empty")
	}
	if !strings.HasPrefix(c.HTTP.PublicURL, "http://") && !strings.HasPrefix(c.HTTP.PublicURL, "https://") {
		return fmt.Errorf("HTTP public URL must be an http(s) URL")
	}

	if c.Database.Driver != "sqlite3" && c.Database.Driver != "pgx" {
		return fmt.Errorf("database driver must be sqlite3 or pgx")
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database dsn cannot be empty")
	}
	if c.Database.MaxConnections <= 0 {
		return fmt.Errorf("database max connections must be positive")
	}
	if c.Database.Timeout <= 0 {
		return fmt.Errorf("database timeout must be positive")
	}

	if len(c.Auth.JWTSecret) < 16 {
		return fmt.Errorf("auth JWT secret must be at least 16 characters")
	}
	if c.Auth.SessionTTL <= 0 || c.Auth.LinkTTL <= 0 {
		return fmt.Errorf("auth session and link TTLs must be positive")
	}
	if c.Auth.DevMode && c.Auth.DevPassword == "" {
		return fmt.Errorf("auth dev password cannot be empty in dev mode")
	}

	if c.Mail.From == "" {
		return fmt.Errorf("mail sender cannot be empty")
	}

	if c.WebSocket.PingInterval <= 0 {
		return fmt.Errorf("WebSocket ping interval must be positive")
	}
	if c.WebSocket.ReadTimeout <= c.WebSocket.PingInterval {
		return fmt.Errorf("WebSocket read timeout must exceed the ping interval")
	}
	if c.WebSocket.WriteTimeout <= 0 {
		return fmt.Errorf("WebSocket write timeout must be positive")
	}
	if c.WebSocket.BufferSize <= 0 {
		return fmt.Errorf("WebSocket buffer size must be positive")
	}

	switch strings.ToLower(c.Log.Format) {
	case "json", "text":
	default:
		return fmt.Errorf("log format must be json or text")
	}

	return nil
}

// Load builds the configuration from defaults, an optional config file, an optional
// .env file and CONNECTED_* environment variables, in increasing precedence
// FUNCTIONAL DISCOVERY: nested keys map to variables by replacing dots, so
// http.port is read from CONNECTED_HTTP_PORT
func Load(configPath string) (*Config, error) {
	envFile := os.Getenv(EnvPrefix + "_ENV_FILE")
	if envFile == "" {
		envFile = ".env"
	}
	if _, err := os.Stat(envFile); err == nil {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("failed to load env file %s: %w", envFile, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to stat env file %s: %w", envFile, err)
	}

	v := viper.New()
	setDefaults(v, DefaultConfig())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// setDefaults registers every key so AutomaticEnv can see it during Unmarshal
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("http.host", d.HTTP.Host)
	v.SetDefault("http.port", d.HTTP.Port)
	v.SetDefault("http.read_timeout", d.HTTP.ReadTimeout)
	v.SetDefault("http.write_timeout", d.HTTP.WriteTimeout)
	v.SetDefault("http.public_url", d.HTTP.PublicURL)

	v.SetDefault("database.driver", d.Database.Driver)
	v.SetDefault("database.dsn", d.Database.DSN)
	v.SetDefault("database.max_connections", d.Database.MaxConnections)
	v.SetDefault("database.timeout", d.Database.Timeout)

	v.SetDefault("auth.jwt_secret", d.Auth.JWTSecret)
	v.SetDefault("auth.session_ttl", d.Auth.SessionTTL)
	v.SetDefault("auth.link_ttl", d.Auth.LinkTTL)
	v.SetDefault("auth.dev_mode", d.Auth.DevMode)
	v.SetDefault("auth.dev_password", d.Auth.DevPassword)

	v.SetDefault("redis.addr", d.Redis.Addr)
	v.SetDefault("redis.password", d.Redis.Password)
	v.SetDefault("redis.db", d.Redis.DB)

	v.SetDefault("mail.from", d.Mail.From)
	v.SetDefault("mail.sendgrid_api_key", d.Mail.SendGridAPIKey)

	v.SetDefault("websocket.ping_interval", d.WebSocket.PingInterval)
	v.SetDefault("websocket.read_timeout", d.WebSocket.ReadTimeout)
	v.SetDefault("websocket.write_timeout", d.WebSocket.WriteTimeout)
	v.SetDefault("websocket.buffer_size", d.WebSocket.BufferSize)

	v.SetDefault("coordinator.token", d.Coordinator.Token)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("log.rollbar_token", d.Log.RollbarToken)
	v.SetDefault("log.environment", d.Log.Environment)
}

// Addr returns the listen address
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.HTTP.Host, c.HTTP.Port)
}
