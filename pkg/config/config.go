// Package config loads and validates the Talktrace server configuration.
//
// Configuration sources (in order of precedence):
//  1. Environment variables (TALKTRACE_*)
//  2. Configuration file (YAML)
//  3. Default values
//
// The master key is deliberately environment-only: it must never be
// written to a config file on disk.
package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"github.com/alfredjoe/Talktrace-backend/pkg/crypto"
)

// Environment variables carrying the 64-hex-character master key.
// SERVER_MASTER_KEY is canonical; the prefixed form also works.
const (
	masterKeyEnv       = "SERVER_MASTER_KEY"
	masterKeyEnvPrefix = "TALKTRACE_MASTER_KEY"
)

// Config represents the Talktrace server configuration.
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Server configures the HTTP API server
	Server ServerConfig `mapstructure:"server" yaml:"server"`

	// Database configures the SQLite metadata store
	Database DatabaseConfig `mapstructure:"database" yaml:"database"`

	// Vault configures the encrypted artifact directory
	Vault VaultConfig `mapstructure:"vault" yaml:"vault"`

	// Auth configures bearer-token validation
	Auth AuthConfig `mapstructure:"auth" yaml:"auth"`

	// Provider configures the meeting bot provider client
	Provider ProviderConfig `mapstructure:"provider" yaml:"provider"`

	// Transcriber configures the transcription subprocess
	Transcriber TranscriberConfig `mapstructure:"transcriber" yaml:"transcriber"`

	// Summarizer configures the LLM summarization engine
	Summarizer SummarizerConfig `mapstructure:"summarizer" yaml:"summarizer"`

	// Media configures the ffmpeg transcode engine
	Media MediaConfig `mapstructure:"media" yaml:"media"`

	// Pipeline bounds the orchestrator's background work
	Pipeline PipelineConfig `mapstructure:"pipeline" yaml:"pipeline"`

	// Metrics controls the Prometheus /metrics endpoint
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`

	// ShutdownTimeout is the maximum time to wait for graceful shutdown
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required,gt=0" yaml:"shutdown_timeout"`

	// MasterKey is the hex-encoded 32-byte master key used to wrap
	// per-meeting data keys. Environment-only (SERVER_MASTER_KEY); it is
	// never read from or written to the config file.
	MasterKey string `mapstructure:"-" validate:"required,len=64,hexadecimal" yaml:"-"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive)
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR" yaml:"level"`

	// Format specifies the log output format: text or json
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`

	// Output specifies where logs are written: stdout, stderr, or a file path
	Output string `mapstructure:"output" validate:"required" yaml:"output"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	// Port is the TCP port for the API
	// Default: 3002
	Port int `mapstructure:"port" validate:"required,min=1,max=65535" yaml:"port"`

	// ReadTimeout bounds reading request headers and body
	ReadTimeout time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`

	// IdleTimeout bounds keep-alive connections
	IdleTimeout time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout"`

	// RequestTimeout bounds non-streaming request handling. Streaming
	// artifact downloads are exempt.
	RequestTimeout time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`
}

// DatabaseConfig configures the SQLite metadata store.
type DatabaseConfig struct {
	// Path is the SQLite database file
	// Default: data/talktrace.db
	Path string `mapstructure:"path" validate:"required" yaml:"path"`
}

// VaultConfig configures the encrypted artifact directory.
type VaultConfig struct {
	// Dir is the directory holding encrypted artifact blobs
	// Default: data
	Dir string `mapstructure:"dir" validate:"required" yaml:"dir"`
}

// AuthConfig configures bearer-token validation.
type AuthConfig struct {
	// JWTSecret is the HMAC signing key shared with the identity
	// provider. Must be at least 32 characters.
	// Override: TALKTRACE_AUTH_JWT_SECRET
	JWTSecret string `mapstructure:"jwt_secret" validate:"required,min=32" yaml:"jwt_secret"`

	// Issuer, when set, is enforced on validated tokens
	Issuer string `mapstructure:"issuer" yaml:"issuer"`
}

// ProviderConfig configures the meeting bot provider client.
type ProviderConfig struct {
	// BaseURL is the provider API base URL
	BaseURL string `mapstructure:"base_url" validate:"required,url" yaml:"base_url"`

	// APIKey authenticates against the provider API
	// Override: TALKTRACE_PROVIDER_API_KEY
	APIKey string `mapstructure:"api_key" validate:"required" yaml:"api_key"`

	// BotName is the display name the bot joins meetings with
	// Default: "Talktrace Bot"
	BotName string `mapstructure:"bot_name" yaml:"bot_name"`

	// Timeout bounds provider API calls (not audio downloads)
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// TranscriberConfig configures the transcription subprocess.
type TranscriberConfig struct {
	// Command is the transcriber command line, e.g.
	// "python3 scripts/diarize.py". Empty enables the mock engine.
	Command string `mapstructure:"command" yaml:"command"`

	// Model is exported to the subprocess as WHISPER_MODEL
	Model string `mapstructure:"model" yaml:"model"`

	// Timeout bounds one transcription run
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// CommandArgv splits the configured command line into argv form.
func (c TranscriberConfig) CommandArgv() []string {
	return strings.Fields(c.Command)
}

// SummarizerConfig configures the LLM summarization engine.
type SummarizerConfig struct {
	// APIKey authenticates against the OpenAI-compatible endpoint.
	// Empty enables the mock engine.
	// Override: TALKTRACE_SUMMARIZER_API_KEY
	APIKey string `mapstructure:"api_key" yaml:"api_key"`

	// BaseURL overrides the OpenAI endpoint (for compatible gateways)
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`

	// Model selects the chat model
	Model string `mapstructure:"model" yaml:"model"`

	// Timeout bounds one summarization call
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// MediaConfig configures the ffmpeg transcode engine.
type MediaConfig struct {
	// FFmpegPath is the ffmpeg binary
	// Default: ffmpeg (resolved via PATH)
	FFmpegPath string `mapstructure:"ffmpeg_path" yaml:"ffmpeg_path"`

	// FFprobePath is the ffprobe binary
	// Default: ffprobe (resolved via PATH)
	FFprobePath string `mapstructure:"ffprobe_path" yaml:"ffprobe_path"`
}

// PipelineConfig bounds the orchestrator's background work.
type PipelineConfig struct {
	// ProcessTimeout caps one full transcribe-and-summarize run
	ProcessTimeout time.Duration `mapstructure:"process_timeout" yaml:"process_timeout"`

	// IngestTimeout caps one download-transcode-encrypt run
	IngestTimeout time.Duration `mapstructure:"ingest_timeout" yaml:"ingest_timeout"`
}

// MetricsConfig controls the Prometheus /metrics endpoint.
type MetricsConfig struct {
	// Enabled controls whether metrics are collected and exposed
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
}

// MasterKeyBytes decodes the hex master key into its 32 raw bytes.
func (c *Config) MasterKeyBytes() ([]byte, error) {
	return crypto.ParseMasterKey(c.MasterKey)
}

// Load loads configuration from file, environment, and defaults.
//
// Parameters:
//   - configPath: Path to config file (empty string skips the file and
//     uses environment plus defaults)
//
// Returns the loaded and validated configuration.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)

	if configPath != "" {
		if err := v.ReadInConfig(); err != nil {
			if os.IsNotExist(err) {
				return nil, fmt.Errorf("configuration file not found: %s", configPath)
			}
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(durationDecodeHook())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// The master key only ever comes from the environment.
	cfg.MasterKey = strings.TrimSpace(os.Getenv(masterKeyEnv))
	if cfg.MasterKey == "" {
		cfg.MasterKey = strings.TrimSpace(os.Getenv(masterKeyEnvPrefix))
	}

	// The conventional PORT variable is honored when nothing else set a
	// port. TALKTRACE_SERVER_PORT and the config file take precedence.
	if cfg.Server.Port == 0 {
		if p := strings.TrimSpace(os.Getenv("PORT")); p != "" {
			port, err := strconv.Atoi(p)
			if err != nil {
				return nil, fmt.Errorf("invalid PORT value %q: %w", p, err)
			}
			cfg.Server.Port = port
		}
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

// configKeys lists every nested configuration key. Registering them as
// defaults lets viper's AutomaticEnv resolve TALKTRACE_* variables even
// when no config file is present.
var configKeys = []string{
	"logging.level", "logging.format", "logging.output",
	"server.port", "server.read_timeout", "server.idle_timeout", "server.request_timeout",
	"database.path",
	"vault.dir",
	"auth.jwt_secret", "auth.issuer",
	"provider.base_url", "provider.api_key", "provider.bot_name", "provider.timeout",
	"transcriber.command", "transcriber.model", "transcriber.timeout",
	"summarizer.api_key", "summarizer.base_url", "summarizer.model", "summarizer.timeout",
	"media.ffmpeg_path", "media.ffprobe_path",
	"pipeline.process_timeout", "pipeline.ingest_timeout",
	"metrics.enabled",
	"shutdown_timeout",
}

// setupViper configures viper with environment variable and config file
// settings. Environment variables use the TALKTRACE_ prefix with
// underscores, e.g. TALKTRACE_SERVER_PORT=3002.
func setupViper(v *viper.Viper, configPath string) {
	v.SetEnvPrefix("TALKTRACE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for _, key := range configKeys {
		v.SetDefault(key, nil)
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
	}
}

// durationDecodeHook converts strings like "30s", "5m" into
// time.Duration during unmarshalling.
func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}
		switch v := data.(type) {
		case string:
			return time.ParseDuration(v)
		case int:
			return time.Duration(v), nil
		case int64:
			return time.Duration(v), nil
		case float64:
			return time.Duration(v), nil
		default:
			return data, nil
		}
	}
}
