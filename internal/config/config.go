// Package config defines runtime defaults, file and environment loading, and
// validation for the teamchat server.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// RateLimitConfig defines the parameters for per-connection event rate limiting.
type RateLimitConfig struct {
	Burst          int           `yaml:"burst"`
	RefillInterval time.Duration `yaml:"refill_interval"`
}

// HTTPRateLimitConfig limits API requests per remote address.
type HTTPRateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

// ServerConfig holds listener and CORS/origin settings.
type ServerConfig struct {
	Port            string        `yaml:"port"`
	AllowedOrigins  []string      `yaml:"allowed_origins"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	PublicBaseURL   string        `yaml:"public_base_url"`
}

// StorageConfig holds filesystem locations for durable data.
type StorageConfig struct {
	Database   string `yaml:"database"`
	UploadsDir string `yaml:"uploads_dir"`
}

// RealtimeConfig controls the websocket gateway and the chat trackers.
type RealtimeConfig struct {
	MaxMessageSize        int64           `yaml:"max_message_size"`
	InlineAttachmentLimit int             `yaml:"inline_attachment_limit"`
	SendBuffer            int             `yaml:"send_buffer"`
	RateLimit             RateLimitConfig `yaml:"rate_limit"`
	AuthorizeJoins        bool            `yaml:"authorize_joins"`
	TypingTTL             time.Duration   `yaml:"typing_ttl"`
}

// HTTPConfig controls the REST surface.
type HTTPConfig struct {
	RateLimit     HTTPRateLimitConfig `yaml:"rate_limit"`
	MaxUploadSize int64               `yaml:"max_upload_size"`
}

// LogConfig selects the log level and sink.
type LogConfig struct {
	Level string `yaml:"level"`
	Sink  string `yaml:"sink"`
}

// Config holds the complete server configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Storage  StorageConfig  `yaml:"storage"`
	Realtime RealtimeConfig `yaml:"realtime"`
	HTTP     HTTPConfig     `yaml:"http"`
	Log      LogConfig      `yaml:"log"`
}

const (
	defaultPort                  = ":3001"
	defaultMaxMessageSize        = 8 << 20
	defaultInlineAttachmentLimit = 1 << 20
	defaultSendBuffer            = 256
	defaultMaxUploadSize         = 50 << 20
)

// Default returns a Config populated with default values for all settings.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            defaultPort,
			AllowedOrigins:  []string{"http://localhost:3000"},
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			PublicBaseURL:   "http://localhost:3001",
		},
		Storage: StorageConfig{
			Database:   "./data/teamchat.db",
			UploadsDir: "./uploads",
		},
		Realtime: RealtimeConfig{
			MaxMessageSize:        defaultMaxMessageSize,
			InlineAttachmentLimit: defaultInlineAttachmentLimit,
			SendBuffer:            defaultSendBuffer,
			RateLimit: RateLimitConfig{
				Burst:          20,
				RefillInterval: time.Second,
			},
			AuthorizeJoins: true,
		},
		HTTP: HTTPConfig{
			RateLimit: HTTPRateLimitConfig{
				RPS:   20,
				Burst: 40,
			},
			MaxUploadSize: defaultMaxUploadSize,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load builds a Config from defaults, the optional YAML file at path, and the
// process environment, in that order. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	ApplyEnv(cfg)
	Sanitize(cfg)
	return cfg, nil
}

// ApplyEnv overrides cfg with any recognised environment variables.
func ApplyEnv(cfg *Config) {
	if port := os.Getenv("SERVER_PORT"); port != "" {
		cfg.Server.Port = port
	}
	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		cfg.Server.AllowedOrigins = parseOrigins(origins)
	}
	if base := os.Getenv("PUBLIC_BASE_URL"); base != "" {
		cfg.Server.PublicBaseURL = base
	}
	if path := os.Getenv("DATABASE_PATH"); path != "" {
		cfg.Storage.Database = path
	}
	if dir := os.Getenv("UPLOADS_DIR"); dir != "" {
		cfg.Storage.UploadsDir = dir
	}
	if maxSize := os.Getenv("MAX_MESSAGE_SIZE"); maxSize != "" {
		cfg.Realtime.MaxMessageSize = parseInt64Value(maxSize, cfg.Realtime.MaxMessageSize)
	}
	if burst := os.Getenv("RATE_LIMIT_BURST"); burst != "" {
		cfg.Realtime.RateLimit.Burst = parseIntValue(burst, cfg.Realtime.RateLimit.Burst)
	}
	if interval := os.Getenv("RATE_LIMIT_REFILL_INTERVAL"); interval != "" {
		cfg.Realtime.RateLimit.RefillInterval = parseDuration(interval, cfg.Realtime.RateLimit.RefillInterval)
	}
	if authorize := os.Getenv("AUTHORIZE_JOINS"); authorize != "" {
		if v, err := strconv.ParseBool(authorize); err == nil {
			cfg.Realtime.AuthorizeJoins = v
		}
	}
	if ttl := os.Getenv("TYPING_TTL"); ttl != "" {
		cfg.Realtime.TypingTTL = parseDuration(ttl, cfg.Realtime.TypingTTL)
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.Log.Level = level
	}
	if sink := os.Getenv("LOG_SINK"); sink != "" {
		cfg.Log.Sink = sink
	}
}

// Sanitize replaces invalid or missing values with their defaults.
func Sanitize(cfg *Config) {
	def := Default()

	if cfg.Server.Port == "" {
		cfg.Server.Port = def.Server.Port
	}
	if !strings.Contains(cfg.Server.Port, ":") {
		cfg.Server.Port = ":" + cfg.Server.Port
	}
	if cfg.Server.ReadTimeout <= 0 {
		cfg.Server.ReadTimeout = def.Server.ReadTimeout
	}
	if cfg.Server.WriteTimeout <= 0 {
		cfg.Server.WriteTimeout = def.Server.WriteTimeout
	}
	if cfg.Server.IdleTimeout <= 0 {
		cfg.Server.IdleTimeout = def.Server.IdleTimeout
	}
	if cfg.Server.ShutdownTimeout <= 0 {
		cfg.Server.ShutdownTimeout = def.Server.ShutdownTimeout
	}
	cfg.Server.PublicBaseURL = strings.TrimRight(cfg.Server.PublicBaseURL, "/")

	if cfg.Storage.Database == "" {
		cfg.Storage.Database = def.Storage.Database
	}
	if cfg.Storage.UploadsDir == "" {
		cfg.Storage.UploadsDir = def.Storage.UploadsDir
	}

	if cfg.Realtime.InlineAttachmentLimit <= 0 {
		cfg.Realtime.InlineAttachmentLimit = defaultInlineAttachmentLimit
	}
	// The read limit must leave room for an oversized inline attachment to be
	// read and rejected with an error event instead of a dropped connection.
	if cfg.Realtime.MaxMessageSize <= int64(cfg.Realtime.InlineAttachmentLimit) {
		cfg.Realtime.MaxMessageSize = defaultMaxMessageSize
		if cfg.Realtime.MaxMessageSize <= int64(cfg.Realtime.InlineAttachmentLimit) {
			cfg.Realtime.MaxMessageSize = int64(cfg.Realtime.InlineAttachmentLimit) * 4
		}
	}
	if cfg.Realtime.SendBuffer <= 0 {
		cfg.Realtime.SendBuffer = defaultSendBuffer
	}
	if cfg.Realtime.RateLimit.Burst <= 0 {
		cfg.Realtime.RateLimit.Burst = def.Realtime.RateLimit.Burst
	}
	if cfg.Realtime.RateLimit.RefillInterval <= 0 {
		cfg.Realtime.RateLimit.RefillInterval = def.Realtime.RateLimit.RefillInterval
	}
	if cfg.Realtime.TypingTTL < 0 {
		cfg.Realtime.TypingTTL = 0
	}

	if cfg.HTTP.RateLimit.RPS <= 0 {
		cfg.HTTP.RateLimit.RPS = def.HTTP.RateLimit.RPS
	}
	if cfg.HTTP.RateLimit.Burst <= 0 {
		cfg.HTTP.RateLimit.Burst = def.HTTP.RateLimit.Burst
	}
	if cfg.HTTP.MaxUploadSize <= 0 {
		cfg.HTTP.MaxUploadSize = defaultMaxUploadSize
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Log.Level)) {
	case "debug", "info", "warn", "warning", "error":
	default:
		cfg.Log.Level = def.Log.Level
	}
}

func parseOrigins(origins string) []string {
	parts := strings.Split(origins, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseInt64Value(value string, defaultValue int64) int64 {
	if size, err := strconv.ParseInt(value, 10, 64); err == nil && size > 0 {
		return size
	}
	return defaultValue
}

func parseIntValue(value string, defaultValue int) int {
	if parsed, err := strconv.Atoi(value); err == nil && parsed > 0 {
		return parsed
	}
	return defaultValue
}

// parseDuration accepts a Go duration string or a whole number of seconds.
func parseDuration(value string, defaultValue time.Duration) time.Duration {
	if d, err := time.ParseDuration(value); err == nil && d >= 0 {
		return d
	}
	if seconds, err := strconv.Atoi(value); err == nil && seconds >= 0 {
		return time.Duration(seconds) * time.Second
	}
	return defaultValue
}
