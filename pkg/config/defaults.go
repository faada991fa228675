package config

import (
	"strings"
	"time"
)

// ApplyDefaults sets default values for any unspecified configuration
// fields. Zero values are replaced; explicit values are preserved.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyServerDefaults(&cfg.Server)
	applyDatabaseDefaults(&cfg.Database)
	applyVaultDefaults(&cfg.Vault)
	applyProviderDefaults(&cfg.Provider)
	applyTranscriberDefaults(&cfg.Transcriber)
	applySummarizerDefaults(&cfg.Summarizer)
	applyMediaDefaults(&cfg.Media)
	applyPipelineDefaults(&cfg.Pipeline)

	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

func applyServerDefaults(cfg *ServerConfig) {
	if cfg.Port == 0 {
		cfg.Port = 3002
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = 120 * time.Second
	}
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
}

func applyDatabaseDefaults(cfg *DatabaseConfig) {
	if cfg.Path == "" {
		cfg.Path = "data/talktrace.db"
	}
}

func applyVaultDefaults(cfg *VaultConfig) {
	if cfg.Dir == "" {
		cfg.Dir = "data"
	}
}

func applyProviderDefaults(cfg *ProviderConfig) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://us-east-1.recall.ai/api/v1"
	}
	if cfg.BotName == "" {
		cfg.BotName = "Talktrace Bot"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
}

func applyTranscriberDefaults(cfg *TranscriberConfig) {
	// Command has no default: empty means the mock engine.
	if cfg.Model == "" {
		cfg.Model = "base"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Minute
	}
}

func applySummarizerDefaults(cfg *SummarizerConfig) {
	// APIKey has no default: empty means the mock engine.
	if cfg.Timeout == 0 {
		cfg.Timeout = 2 * time.Minute
	}
}

func applyMediaDefaults(cfg *MediaConfig) {
	if cfg.FFmpegPath == "" {
		cfg.FFmpegPath = "ffmpeg"
	}
	if cfg.FFprobePath == "" {
		cfg.FFprobePath = "ffprobe"
	}
}

func applyPipelineDefaults(cfg *PipelineConfig) {
	if cfg.ProcessTimeout == 0 {
		cfg.ProcessTimeout = 45 * time.Minute
	}
	if cfg.IngestTimeout == 0 {
		cfg.IngestTimeout = 30 * time.Minute
	}
}

// GetDefaultConfig returns a Config with all default values applied and
// placeholder secrets suitable for tests and sample file generation.
func GetDefaultConfig() *Config {
	cfg := &Config{
		Auth: AuthConfig{
			JWTSecret: "change-me-to-a-32-character-secret!!",
		},
		Provider: ProviderConfig{
			APIKey: "change-me",
		},
		MasterKey: strings.Repeat("0", 64),
	}
	ApplyDefaults(cfg)
	return cfg
}
