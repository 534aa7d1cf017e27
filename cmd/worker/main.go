/**
 * Segmentation Worker - Main Entry Point
 *
 * Consumes segmentation jobs and produces either a reviewable list of
 * translation segments (visual variant: slide decks and slide images) or
 * a do-not-translate glossary (glossary variant: text documents).
 *
 * Architecture:
 * - Redis list consumer or asynq task consumer (QUEUE_BACKEND)
 * - Region analysis and glossary inference through a rate limited
 *   reasoning backend (Ollama, Gemini or MageAgent)
 * - PostgreSQL handoff of job status and result payloads
 * - Optional per-job term index (chromem in memory, or Qdrant)
 */

package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/adverant/nexus/segment-worker/internal/clients"
	"github.com/adverant/nexus/segment-worker/internal/config"
	"github.com/adverant/nexus/segment-worker/internal/extract"
	"github.com/adverant/nexus/segment-worker/internal/logging"
	"github.com/adverant/nexus/segment-worker/internal/processor"
	"github.com/adverant/nexus/segment-worker/internal/queue"
	"github.com/adverant/nexus/segment-worker/internal/storage"
)

var logger = logging.NewLogger("Worker")

func fatal(msg string, err error) {
	logger.Error(msg, "error", err)
	os.Exit(1)
}

// stopper is the shutdown side of both queue backends
type stopper func(ctx context.Context) error

func main() {
	if err := godotenv.Load(".env.segmentation"); err != nil {
		logger.Warn(".env.segmentation not found, using system environment variables")
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		fatal("Failed to load configuration", err)
	}

	if err := logging.Configure(cfg.LogLevel, cfg.LogFormat); err != nil {
		fatal("Failed to configure logging", err)
	}

	logger.Info("Segmentation Worker starting",
		"env", cfg.NodeEnv,
		"queueBackend", cfg.QueueBackend,
		"queue", cfg.QueueName,
		"workers", cfg.WorkerConcurrency,
		"reasoning", cfg.ReasoningProvider,
		"termIndex", cfg.TermIndex)

	if err := os.MkdirAll(cfg.TempDir, 0o755); err != nil {
		fatal("Failed to create temp directory", err)
	}

	ctx := context.Background()

	qdrantAddress := ""
	if cfg.TermIndex == "qdrant" {
		qdrantAddress = cfg.QdrantURL
	}

	storageManager, err := storage.NewStorageManager(ctx, cfg.DatabaseURL, qdrantAddress)
	if err != nil {
		fatal("Failed to initialize storage manager", err)
	}
	defer storageManager.Close()
	logger.Info("Storage manager initialized", "qdrant", qdrantAddress != "")

	reasoner, closeReasoner, err := clients.NewReasoner(ctx, cfg)
	if err != nil {
		fatal("Failed to initialize reasoning backend", err)
	}
	defer closeReasoner()
	checkReasoner(ctx, reasoner)

	termIndex, err := processor.NewTermIndexFactory(cfg, storageManager)
	if err != nil {
		fatal("Failed to configure term index", err)
	}

	proc, err := processor.NewDocumentProcessor(&processor.ProcessorConfig{
		MaxFileSize:            cfg.MaxFileSize,
		Timeout:                cfg.Timeout(),
		SlideImageFormat:       cfg.SlideImageFormat,
		SlideImageMaxDimension: cfg.SlideImageMaxDimension,
		ContextSampleChars:     cfg.ContextSampleChars,
		SimilarityThreshold:    cfg.TermSimilarityThreshold,
		Reasoner:               reasoner,
		Extractor:              extract.NewExtractor(cfg.TempDir, cfg.TesseractLanguage),
		Store:                  storageManager,
		TermIndex:              termIndex,
	})
	if err != nil {
		fatal("Failed to initialize document processor", err)
	}

	stop, err := startConsumer(ctx, cfg, proc)
	if err != nil {
		fatal("Failed to start queue consumer", err)
	}

	logger.Info("Segmentation Worker is ready, waiting for jobs")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	sig := <-sigChan
	logger.Info("Received signal, initiating graceful shutdown", "signal", sig.String())

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Timeout()+10*time.Second)
	defer cancel()

	if err := stop(shutdownCtx); err != nil {
		logger.Error("Error stopping queue consumer", "error", err)
	}

	logger.Info("Shutdown complete", "storage", storageManager.GetStats(shutdownCtx))
}

// startConsumer starts the backend named by QUEUE_BACKEND.
func startConsumer(ctx context.Context, cfg *config.Config, proc processor.DocumentProcessorInterface) (stopper, error) {
	switch strings.ToLower(cfg.QueueBackend) {
	case "asynq":
		consumer, err := queue.NewConsumer(&queue.ConsumerConfig{
			RedisURL:    cfg.RedisURL,
			QueueName:   cfg.QueueName,
			Concurrency: cfg.WorkerConcurrency,
			Processor:   proc,
			Events:      newEventPublisher(cfg),
		})
		if err != nil {
			return nil, err
		}
		if err := consumer.Start(ctx); err != nil {
			return nil, err
		}
		return consumer.Stop, nil

	default:
		consumer, err := queue.NewRedisConsumer(&queue.RedisConsumerConfig{
			RedisURL:    cfg.RedisURL,
			QueueName:   cfg.QueueName,
			Concurrency: cfg.WorkerConcurrency,
			Processor:   proc,
		})
		if err != nil {
			return nil, err
		}
		if err := consumer.Start(); err != nil {
			return nil, err
		}
		return func(context.Context) error { return consumer.Stop() }, nil
	}
}

// checkReasoner logs whether the reasoning backend answers. Startup goes
// on either way; slides fall back to the classifier while it is down.
func checkReasoner(ctx context.Context, r clients.Reasoner) {
	if r == nil {
		logger.Warn("Reasoning disabled: slides use classifier fallback, glossary jobs will fail")
		return
	}
	hc, ok := r.(interface{ HealthCheck(context.Context) error })
	if !ok {
		return
	}

	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := hc.HealthCheck(checkCtx); err != nil {
		logger.Warn("Reasoning backend health check failed", "backend", r.Name(), "error", err)
		return
	}
	logger.Info("Reasoning backend connection verified", "backend", r.Name())
}

// newEventPublisher gives the asynq backend the same pub/sub events as the
// list backend. Events are dropped if the URL cannot be parsed.
func newEventPublisher(cfg *config.Config) *queue.EventPublisher {
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Warn("Job events disabled", "error", err)
		return nil
	}
	return queue.NewEventPublisher(redis.NewClient(opt), cfg.QueueName)
}
