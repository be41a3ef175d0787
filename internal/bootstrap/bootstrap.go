package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kirillkom/pdf-qa/internal/config"
	"github.com/kirillkom/pdf-qa/internal/core/ports"
	"github.com/kirillkom/pdf-qa/internal/core/usecase"
	"github.com/kirillkom/pdf-qa/internal/infrastructure/chunking"
	"github.com/kirillkom/pdf-qa/internal/infrastructure/extractor/pdftext"
	"github.com/kirillkom/pdf-qa/internal/infrastructure/llm/ollama"
	"github.com/kirillkom/pdf-qa/internal/infrastructure/queue/nats"
	"github.com/kirillkom/pdf-qa/internal/infrastructure/resilience"
	"github.com/kirillkom/pdf-qa/internal/infrastructure/storage/localfs"
	"github.com/kirillkom/pdf-qa/internal/observability/metrics"
)

type App struct {
	Config  config.Config
	Metrics *metrics.HTTPServerMetrics

	Storage  *localfs.Storage
	Sessions *usecase.SessionManager
	AskUC    ports.DocumentAsker

	closeFn func()
}

func New(_ context.Context, cfg config.Config) (*App, error) {
	storage, err := localfs.New(cfg.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("init session storage: %w", err)
	}

	httpMetrics := metrics.NewHTTPServerMetrics("api")
	resilienceCfg := resilienceConfig(cfg, httpMetrics)

	var events ports.SessionEvents = nats.Noop{}
	closeFn := func() {}
	if cfg.NATSURL != "" {
		publisher, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
			ResilienceExecutor: resilience.NewExecutor(resilienceCfg),
		})
		if err != nil {
			return nil, fmt.Errorf("init session events: %w", err)
		}
		events = publisher
		closeFn = publisher.Close
	} else {
		slog.Info("session_events_disabled", "reason", "NATS_URL is empty")
	}

	ollamaClient := ollama.NewWithOptions(cfg.OllamaURL, cfg.OllamaGenModel, cfg.OllamaEmbedModel, ollama.Options{
		Timeout:          time.Duration(cfg.OllamaTimeoutSeconds) * time.Second,
		EmbedExecutor:    resilience.NewExecutor(resilienceCfg),
		CompleteExecutor: resilience.NewExecutor(resilienceCfg.SingleAttempt()),
	})

	sessions := usecase.NewSessionManager(storage, events)
	askUC := usecase.NewAskUseCase(
		sessions,
		pdftext.NewExtractor(),
		chunking.NewSegmenter(cfg.SegmentChunkWords, cfg.SegmentMaxPages),
		usecase.NewEmbeddingGateway(ollama.NewEmbedder(ollamaClient), cfg.EmbedBatchSize),
		usecase.NewContextAssembler(cfg.ExcerptChars),
		ollama.NewCompleter(ollamaClient),
		httpMetrics,
		usecase.AskOptions{
			TopK:                cfg.RAGTopK,
			DocumentConcurrency: cfg.DocumentConcurrency,
		},
	)

	return &App{
		Config:  cfg,
		Metrics: httpMetrics,

		Storage:  storage,
		Sessions: sessions,
		AskUC:    askUC,

		closeFn: closeFn,
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}

func resilienceConfig(cfg config.Config, httpMetrics *metrics.HTTPServerMetrics) resilience.Config {
	out := resilience.DefaultConfig()
	if cfg.RetryMaxAttempts > 0 {
		out.RetryMaxAttempts = cfg.RetryMaxAttempts
	}
	if cfg.RetryInitialBackoffMS > 0 {
		out.RetryInitialBackoff = time.Duration(cfg.RetryInitialBackoffMS) * time.Millisecond
	}
	if cfg.RetryMaxBackoffMS > 0 {
		out.RetryMaxBackoff = time.Duration(cfg.RetryMaxBackoffMS) * time.Millisecond
	}
	if cfg.BreakerOpenTimeoutSecs > 0 {
		out.BreakerOpenTimeout = time.Duration(cfg.BreakerOpenTimeoutSecs) * time.Second
	}
	out.BreakerEnabled = cfg.BreakerEnabled
	if httpMetrics != nil {
		out.OnStateChange = httpMetrics.RecordBreakerState
	}
	return out
}
