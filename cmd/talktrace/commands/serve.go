package commands

import (
	"fmt"
	"os/exec"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/alfredjoe/Talktrace-backend/internal/api"
	"github.com/alfredjoe/Talktrace-backend/internal/logger"
	"github.com/alfredjoe/Talktrace-backend/internal/metrics"
	"github.com/alfredjoe/Talktrace-backend/pkg/botclient"
	"github.com/alfredjoe/Talktrace-backend/pkg/config"
	"github.com/alfredjoe/Talktrace-backend/pkg/engine"
	"github.com/alfredjoe/Talktrace-backend/pkg/pipeline"
	"github.com/alfredjoe/Talktrace-backend/pkg/store"
	"github.com/alfredjoe/Talktrace-backend/pkg/vault"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the Talktrace server",
	Long: `Start the Talktrace API server and processing pipeline.

The master key must be provided via the SERVER_MASTER_KEY environment
variable as 64 hex characters; generate one with "talktrace keygen".
All other settings come from the config file and TALKTRACE_* environment
variables.

Examples:
  # Start with environment configuration only
  SERVER_MASTER_KEY=$(talktrace keygen) talktrace serve

  # Start with a config file
  talktrace serve --config /etc/talktrace/config.yaml

  # Override a setting for one run
  TALKTRACE_LOGGING_LEVEL=DEBUG talktrace serve`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	if err := logger.Init(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	}); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	masterKey, err := cfg.MasterKeyBytes()
	if err != nil {
		return err
	}

	st, err := store.New(store.Config{Path: cfg.Database.Path}, masterKey)
	if err != nil {
		return fmt.Errorf("failed to open metadata store: %w", err)
	}
	vlt, err := vault.New(cfg.Vault.Dir)
	if err != nil {
		return fmt.Errorf("failed to open vault: %w", err)
	}

	bots, err := botclient.New(botclient.Config{
		BaseURL: cfg.Provider.BaseURL,
		APIKey:  cfg.Provider.APIKey,
		Timeout: cfg.Provider.Timeout,
	})
	if err != nil {
		return fmt.Errorf("failed to create bot provider client: %w", err)
	}

	transcriber := engine.NewTranscriber(engine.TranscriberConfig{
		Command: cfg.Transcriber.CommandArgv(),
		Model:   cfg.Transcriber.Model,
		Timeout: cfg.Transcriber.Timeout,
	})
	summarizer := engine.NewSummarizer(engine.SummarizerConfig{
		APIKey:  cfg.Summarizer.APIKey,
		BaseURL: cfg.Summarizer.BaseURL,
		Model:   cfg.Summarizer.Model,
		Timeout: cfg.Summarizer.Timeout,
	})
	media := engine.NewMedia(engine.MediaConfig{
		FFmpegPath:  cfg.Media.FFmpegPath,
		FFprobePath: cfg.Media.FFprobePath,
	})

	preflightEngines(cfg)

	var (
		registry        *prometheus.Registry
		m               *metrics.Metrics
		pipelineMetrics *pipeline.Metrics
	)
	if cfg.Metrics.Enabled {
		registry = prometheus.NewRegistry()
		m = metrics.New(registry)
		pipelineMetrics = pipeline.NewMetrics(registry)
	}

	orch := pipeline.New(st, vlt, bots, transcriber, summarizer, media, pipeline.Config{
		ProcessTimeout: cfg.Pipeline.ProcessTimeout,
		IngestTimeout:  cfg.Pipeline.IngestTimeout,
		Metrics:        pipelineMetrics,
	})

	jwtService, err := api.NewJWTService(api.JWTConfig{
		Secret: cfg.Auth.JWTSecret,
		Issuer: cfg.Auth.Issuer,
	})
	if err != nil {
		return fmt.Errorf("failed to create JWT service: %w", err)
	}

	handler := api.NewHandler(orch, st, m)
	server := api.NewServer(api.Config{
		Port:           cfg.Server.Port,
		ReadTimeout:    cfg.Server.ReadTimeout,
		IdleTimeout:    cfg.Server.IdleTimeout,
		RequestTimeout: cfg.Server.RequestTimeout,
	}, handler, jwtService, m, registry)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("Talktrace server starting",
		"version", Version, "port", cfg.Server.Port, "metrics", cfg.Metrics.Enabled)

	serveErr := server.Start(ctx)

	// Let in-flight pipeline runs finish before the process exits; their
	// contexts carry their own deadlines.
	logger.Info("waiting for background pipeline tasks")
	orch.Wait()

	return serveErr
}

// preflightEngines logs the availability of the external engines at
// startup so a misconfigured deployment is visible before the first
// meeting is processed. None of these findings are fatal: the engines
// degrade to mocks at runtime.
func preflightEngines(cfg *config.Config) {
	argv := cfg.Transcriber.CommandArgv()
	if len(argv) == 0 {
		logger.Warn("transcriber command not configured, transcriptions will be mocked",
			logger.KeyMock, true, logger.KeyEngine, "transcriber")
	} else if _, err := exec.LookPath(argv[0]); err != nil {
		logger.Warn("transcriber binary not found on PATH",
			logger.KeyEngine, "transcriber", "command", argv[0], logger.KeyError, err)
	} else {
		logger.Info("transcriber available",
			logger.KeyEngine, "transcriber", "command", argv[0], "model", cfg.Transcriber.Model)
	}

	if cfg.Summarizer.APIKey == "" {
		logger.Warn("summarizer API key not configured, summaries will be mocked",
			logger.KeyMock, true, logger.KeyEngine, "summarizer")
	} else {
		logger.Info("summarizer available",
			logger.KeyEngine, "summarizer", "model", cfg.Summarizer.Model)
	}

	for _, bin := range []string{cfg.Media.FFmpegPath, cfg.Media.FFprobePath} {
		if _, err := exec.LookPath(bin); err != nil {
			logger.Warn("media binary not found on PATH",
				logger.KeyEngine, "media", "command", bin, logger.KeyError, err)
		}
	}
}
