// segmentctl runs a segmentation job on a local file and prints the JSON
// payload, hands the file to a running worker through the queue, or looks
// up the stored status and result of a queued job.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
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

var logger = logging.NewLogger("segmentctl")

type options struct {
	file     string
	status   string
	variant  string
	source   string
	targets  string
	jobID    string
	out      string
	pretty   bool
	enqueue  bool
	backend  string
	retries  int
	remove   string
	merge    string
	envFile  string
	logLevel string
}

func main() {
	var o options
	flag.StringVar(&o.file, "file", "", "input file (.pptx, .png, .jpg, .webp, .txt, .md, .html, .pdf, .docx)")
	flag.StringVar(&o.status, "status", "", "print the stored status and result of this job id")
	flag.StringVar(&o.variant, "variant", "", "visual or glossary (default: from file extension)")
	flag.StringVar(&o.source, "source", "", "source language tag, e.g. en")
	flag.StringVar(&o.targets, "targets", "", "comma separated target language tags")
	flag.StringVar(&o.jobID, "job", "", "job id (default: random UUID)")
	flag.StringVar(&o.out, "out", "", "write the payload here instead of stdout")
	flag.BoolVar(&o.pretty, "pretty", false, "indent JSON output")
	flag.BoolVar(&o.enqueue, "enqueue", false, "queue the job for a worker instead of running it here")
	flag.StringVar(&o.backend, "backend", "", "queue backend for -enqueue: asynq or redis (default: QUEUE_BACKEND)")
	flag.IntVar(&o.retries, "retries", 3, "max retries for queued jobs")
	flag.StringVar(&o.remove, "remove", "", "visual: comma separated segment ids to drop before export")
	flag.StringVar(&o.merge, "merge", "", "visual: comma separated segment ids to merge before export")
	flag.StringVar(&o.envFile, "env", ".env.segmentation", "optional .env file")
	flag.StringVar(&o.logLevel, "log", "warn", "log level")
	flag.Parse()

	if o.file == "" && o.status == "" {
		fmt.Fprintf(os.Stderr, "usage: %s -file deck.pptx [-variant visual|glossary] [-enqueue] [-pretty]\n       %s -status <job id>\n", filepath.Base(os.Args[0]), filepath.Base(os.Args[0]))
		flag.PrintDefaults()
		os.Exit(2)
	}

	if err := run(o); err != nil {
		fmt.Fprintln(os.Stderr, "segmentctl:", err)
		os.Exit(1)
	}
}

func run(o options) error {
	_ = godotenv.Load(o.envFile)

	cfg, err := config.LoadLocalConfig()
	if err != nil {
		return err
	}
	if err := logging.Configure(o.logLevel, cfg.LogFormat); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if o.status != "" {
		return status(ctx, cfg, o)
	}

	data, err := os.ReadFile(o.file)
	if err != nil {
		return fmt.Errorf("failed to read input: %w", err)
	}

	payload := &queue.JobPayload{
		JobID:           o.jobID,
		FileName:        filepath.Base(o.file),
		FileBuffer:      data,
		FileSize:        int64(len(data)),
		Variant:         o.variant,
		SourceLanguage:  o.source,
		TargetLanguages: splitList(o.targets),
	}
	if payload.JobID == "" {
		payload.JobID = uuid.NewString()
	}

	if o.enqueue {
		return enqueue(ctx, cfg, o, payload)
	}
	return runLocal(ctx, cfg, o, payload)
}

func runLocal(ctx context.Context, cfg *config.Config, o options, payload *queue.JobPayload) error {
	reasoner, closeReasoner, err := clients.NewReasoner(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeReasoner()

	// Local runs have no database, so a qdrant term index is unavailable.
	if cfg.TermIndex == "qdrant" {
		logger.Warn("TERM_INDEX=qdrant needs the worker's storage, using the in-memory index")
		cfg.TermIndex = "memory"
	}
	termIndex, err := processor.NewTermIndexFactory(cfg, nil)
	if err != nil {
		return err
	}

	proc, err := processor.NewDocumentProcessor(&processor.ProcessorConfig{
		MaxFileSize:            cfg.MaxFileSize,
		Timeout:                cfg.Timeout(),
		SlideImageFormat:       cfg.SlideImageFormat,
		SlideImageMaxDimension: cfg.SlideImageMaxDimension,
		ContextSampleChars:     cfg.ContextSampleChars,
		SimilarityThreshold:    cfg.TermSimilarityThreshold,
		Reasoner:               reasoner,
		Extractor:              extract.NewExtractor(os.TempDir(), cfg.TesseractLanguage),
		TermIndex:              termIndex,
	})
	if err != nil {
		return err
	}

	result, err := proc.ProcessDocument(ctx, payload.Request())
	if err != nil {
		return err
	}

	out := result.Payload()
	if result.Review != nil {
		visual, err := review(result.Review, o)
		if err != nil {
			return err
		}
		out = visual
	}
	if len(result.FallbackSlides) > 0 {
		logger.Warn("Some slides used the classifier fallback", "slides", strings.Join(result.FallbackSlides, ","))
	}

	return writeJSON(o, out)
}

// review applies the -merge and -remove edits, then exports.
func review(session *processor.ReviewSession, o options) (*processor.VisualResult, error) {
	if ids := splitList(o.merge); len(ids) > 0 {
		merged, err := session.Merge(ids)
		if err != nil {
			return nil, fmt.Errorf("merge: %w", err)
		}
		logger.Info("Merged segments", "into", merged.ID)
	}
	for _, id := range splitList(o.remove) {
		if err := session.Remove(id); err != nil {
			return nil, fmt.Errorf("remove: %w", err)
		}
	}
	return session.Export(), nil
}

func enqueue(ctx context.Context, cfg *config.Config, o options, payload *queue.JobPayload) error {
	backend := o.backend
	if backend == "" {
		backend = cfg.QueueBackend
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	switch strings.ToLower(backend) {
	case "asynq":
		redisOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("failed to parse Redis URL: %w", err)
		}
		client := asynq.NewClient(redisOpt)
		defer client.Close()

		info, err := queue.Enqueue(ctx, client, cfg.QueueName, payload, o.retries)
		if err != nil {
			return err
		}
		return writeJSON(o, map[string]interface{}{"jobId": payload.JobID, "queue": info.Queue, "state": info.State.String()})

	case "redis":
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("failed to parse Redis URL: %w", err)
		}
		client := redis.NewClient(opt)
		defer client.Close()

		if err := queue.PushJob(ctx, client, cfg.QueueName, payload, o.retries); err != nil {
			return err
		}
		return writeJSON(o, map[string]interface{}{"jobId": payload.JobID, "queue": cfg.QueueName, "state": "pending"})
	}
	return fmt.Errorf("unknown queue backend %q", backend)
}

// status reads a job back from the worker's database.
func status(ctx context.Context, cfg *config.Config, o options) error {
	if cfg.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required for -status")
	}

	sm, err := storage.NewStorageManager(ctx, cfg.DatabaseURL, "")
	if err != nil {
		return err
	}
	defer sm.Close()

	rec, err := sm.GetJobByID(ctx, o.status)
	if err != nil {
		return err
	}

	out := map[string]interface{}{
		"jobId":     rec.JobID,
		"variant":   rec.Variant,
		"filename":  rec.FileName,
		"languages": rec.Languages,
		"status":    rec.Status,
		"stage":     rec.Stage,
		"metadata":  rec.Metadata,
		"updatedAt": rec.UpdatedAt,
	}
	if rec.ErrorCode != "" {
		out["error"] = map[string]string{"code": rec.ErrorCode, "message": rec.ErrorMessage}
	}
	if rec.Status == processor.StatusCompleted {
		result, err := sm.GetResult(ctx, rec.JobID)
		if err != nil {
			return err
		}
		out["processingTimeMs"] = rec.ProcessingTimeMs
		out["result"] = json.RawMessage(result)
	}
	return writeJSON(o, out)
}

func writeJSON(o options, v interface{}) error {
	var (
		data []byte
		err  error
	)
	if o.pretty {
		data, err = json.MarshalIndent(v, "", "  ")
	} else {
		data, err = json.Marshal(v)
	}
	if err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	data = append(data, '\n')

	if o.out == "" {
		_, err = os.Stdout.Write(data)
		return err
	}
	return os.WriteFile(o.out, data, 0o644)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
