package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Veraticus/spice-intake/internal/audit"
	"github.com/Veraticus/spice-intake/internal/common"
	"github.com/Veraticus/spice-intake/internal/config"
	"github.com/Veraticus/spice-intake/internal/extraction"
	"github.com/Veraticus/spice-intake/internal/ingest"
	"github.com/Veraticus/spice-intake/internal/llm"
	"github.com/Veraticus/spice-intake/internal/matching"
	"github.com/Veraticus/spice-intake/internal/metrics"
	"github.com/Veraticus/spice-intake/internal/model"
	"github.com/Veraticus/spice-intake/internal/notify"
	"github.com/Veraticus/spice-intake/internal/pipeline"
	"github.com/Veraticus/spice-intake/internal/service"
	"github.com/Veraticus/spice-intake/internal/storage"
)

const recognizerTimeout = 60 * time.Second

// app holds the wired pipeline and everything that must be closed with it.
type app struct {
	cfg      *config.Config
	store    service.ExpenseStore
	pipeline *pipeline.Pipeline
	metrics  *metrics.PipelineMetrics
	logger   *slog.Logger
	closers  []func()
}

// appOptions selects which optional parts get built.
type appOptions struct {
	// oracle requires a working LLM client. Commands that only settle or
	// list stored records leave it off so a missing API key is not fatal.
	oracle bool
}

func newApp(ctx context.Context, cfg *config.Config, opts appOptions) (*app, error) {
	logger := slog.Default()

	store, err := storage.Open(ctx, cfg.Database.URL, cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}

	a := &app{
		cfg:     cfg,
		store:   store,
		metrics: metrics.NewPipelineMetrics(),
		logger:  logger,
	}

	var oracle llm.Client = unconfiguredOracle{}
	if opts.oracle {
		guarded, err := llm.NewGuardedClient(llmConfig(cfg.LLM), logger)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to create LLM client: %w", err)
		}
		oracle = guarded
	}

	var publisher notify.Publisher = notify.Nop{}
	if cfg.NATS.URL != "" {
		nc, err := notify.ConnectNATS(cfg.NATS.URL, cfg.NATS.SubjectPrefix, logger)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.closers = append(a.closers, nc.Close)
		publisher = nc
	}

	a.pipeline = pipeline.New(
		newAdapter(cfg.Ingest, logger),
		extraction.NewClient(oracle,
			extraction.WithDefaultCurrency(cfg.Pipeline.DefaultCurrency),
			extraction.WithLogger(logger),
		),
		newMatcher(cfg.Tables, logger),
		audit.New(logger),
		store,
		pipeline.WithThreshold(cfg.Pipeline.Threshold),
		pipeline.WithAllowedUsers(cfg.Pipeline.AllowedUsers),
		pipeline.WithRecorder(a.metrics),
		pipeline.WithPublisher(publisher),
		pipeline.WithLogger(logger),
	)

	return a, nil
}

// Close releases the publisher connection and the database.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	if err := a.store.Close(); err != nil {
		a.logger.Warn("Failed to close storage", "error", err)
	}
}

func newAdapter(cfg config.IngestConfig, logger *slog.Logger) *ingest.Adapter {
	opts := []ingest.Option{ingest.WithLogger(logger)}

	recognizers := []struct {
		kind        model.InputType
		url         string
		contentType string
	}{
		{model.InputImage, cfg.OCRURL, "application/octet-stream"},
		{model.InputAudio, cfg.ASRURL, "audio/ogg"},
		{model.InputDocument, cfg.DocumentURL, "application/pdf"},
	}
	for _, r := range recognizers {
		if r.url == "" {
			continue
		}
		opts = append(opts, ingest.WithRecognizer(r.kind, ingest.NewHTTPRecognizer(r.url, r.contentType, recognizerTimeout)))
	}

	if cfg.ArchiveDir != "" {
		opts = append(opts, ingest.WithArchive(ingest.NewArchive(cfg.ArchiveDir, logger)))
	}
	return ingest.NewAdapter(opts...)
}

// newMatcher loads the lookup tables on first use. Edits to the table files
// take effect on the next process start.
func newMatcher(cfg config.TablesConfig, logger *slog.Logger) *matching.Engine {
	loader := matching.NewLoader(cfg.Providers, cfg.Keywords, logger)
	return matching.NewEngine(matching.NewFileSource(loader))
}

func llmConfig(cfg config.LLMConfig) llm.Config {
	return llm.Config{
		Provider:        cfg.Provider,
		APIKey:          cfg.APIKey,
		Model:           cfg.Model,
		BaseURL:         cfg.BaseURL,
		Timeout:         cfg.Timeout,
		RetryDelay:      cfg.RetryDelay,
		CacheTTL:        cfg.CacheTTL,
		BreakerTimeout:  cfg.BreakerTimeout,
		Temperature:     cfg.Temperature,
		RateLimit:       cfg.RateLimit,
		MaxTokens:       cfg.MaxTokens,
		MaxRetries:      cfg.MaxRetries,
		BreakerFailures: cfg.BreakerFailures,
	}
}

// unconfiguredOracle stands in for the LLM in commands that never extract.
type unconfiguredOracle struct{}

func (unconfiguredOracle) Complete(context.Context, string, string) (string, error) {
	return "", fmt.Errorf("%w: llm client not initialized for this command", common.ErrMissingConfig)
}
