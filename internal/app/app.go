package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/IBM/sarama"
	"github.com/prometheus/client_golang/prometheus"

	"NewsDigest/internal/config"
	"NewsDigest/internal/credibility"
	"NewsDigest/internal/infrastructure/archive"
	"NewsDigest/internal/infrastructure/embedding"
	"NewsDigest/internal/infrastructure/httpapi"
	"NewsDigest/internal/infrastructure/kafka"
	"NewsDigest/internal/infrastructure/lease"
	"NewsDigest/internal/infrastructure/llm"
	"NewsDigest/internal/infrastructure/ml"
	"NewsDigest/internal/infrastructure/parser"
	"NewsDigest/internal/infrastructure/scheduler"
	"NewsDigest/internal/infrastructure/storage"
	"NewsDigest/internal/infrastructure/telegram"
	"NewsDigest/internal/logging"
	"NewsDigest/internal/metrics"
	"NewsDigest/internal/ports"
	"NewsDigest/internal/ranking"
	"NewsDigest/internal/scanner"
	"NewsDigest/internal/similarity"
	"NewsDigest/internal/usecase"
	"NewsDigest/internal/verification"
	"NewsDigest/pkg/logger"
)

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	cfg       config.Config
	logger    *slog.Logger
	pipeline  *usecase.Pipeline
	scheduler *usecase.Scheduler
	server    *httpapi.Server
	closers   []func() error
}

// New builds every adapter from configuration. Optional integrations that are not
// configured, or fail to initialise, are left out with a warning.
func New(ctx context.Context, cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level, cfg.Logging.Format)
	}
	a := &Application{cfg: cfg, logger: baseLogger}

	registry := prometheus.NewRegistry()
	m := metrics.NewMetrics()
	if err := m.Register(registry); err != nil {
		return nil, fmt.Errorf("register metrics: %w", err)
	}

	store, err := a.openStore(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	scanners := scanner.NewRegistry()
	scanners.Register(parser.NewRSSScanner(nil, baseLogger.With("component", "scanner.rss")))
	source := parser.NewStrategySource(scanners, cfg.Sites, baseLogger.With("component", "source"))

	embedder := a.newEmbedder()
	capability := similarity.NewCapability(embedder, baseLogger.With("component", "similarity"))

	engine := verification.NewEngine(verification.Config{
		MinCredibility:      cfg.Verification.MinCredibility,
		SimilarityThreshold: cfg.Verification.SimilarityThreshold,
		WindowDays:          cfg.Verification.WindowDays,
		BodyPrefix:          cfg.Verification.BodyPrefix,
	}, verification.Deps{
		Scorer:     credibility.NewScorer(cfg.Credibility.Sources, cfg.Credibility.Generic),
		Candidates: store,
		Verified:   store,
		Committer:  store,
		Embeddings: capability,
		Metrics:    m,
		Logger:     baseLogger.With("component", "verification"),
	})

	var analyzer ports.Analyzer
	if cfg.Analysis.APIKey != "" {
		analyzer = llm.NewOpenAIAnalyzer(cfg.Analysis)
	} else {
		baseLogger.Warn("analysis api key missing, using keyword analysis")
	}

	assembler := ranking.NewAssembler(ranking.Config{
		TotalLimit:      cfg.Ranking.TotalLimit,
		HighVolumeQuota: cfg.Ranking.HighVolumeQuota,
		RotationPool:    cfg.Ranking.RotationPool,
		TopStories:      cfg.Ranking.TopStories,
		BriefSize:       cfg.Ranking.BriefSize,
		TrendingSize:    cfg.Ranking.TrendingSize,
	}, nil, nil)

	var runLease ports.RunLease = lease.NewLocalLease()
	if cfg.Redis.Addr != "" {
		client, err := lease.Dial(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			baseLogger.Warn("redis unavailable, using in-process lease", "error", err)
		} else {
			a.closers = append(a.closers, client.Close)
			runLease = lease.NewRedisLease(client, cfg.Redis.LeaseKey)
		}
	}

	var digestArchive ports.DigestArchive
	if cfg.Archive.Bucket != "" {
		s3Archive, err := archive.NewS3Archive(ctx, cfg.Archive)
		if err != nil {
			baseLogger.Warn("digest archive disabled", "error", err)
		} else {
			digestArchive = s3Archive
		}
	}

	a.pipeline = usecase.NewPipeline(usecase.PipelineDeps{
		Source:           source,
		Store:            store,
		Engine:           engine,
		Analyzer:         analyzer,
		Fallback:         llm.KeywordAnalyzer{},
		CategoryOverride: llm.OverrideCategory,
		Assembler:        assembler,
		Notifiers:        a.newNotifiers(),
		Archive:          digestArchive,
		Lease:            runLease,
		Metrics:          m,
		Logger:           baseLogger.With("component", "pipeline"),
		Config: usecase.PipelineConfig{
			VerifyBatch:         cfg.Verification.BatchSize,
			AnalysisBatch:       cfg.Analysis.BatchLimit,
			AnalysisConcurrency: cfg.Analysis.Concurrency,
			RecentLimit:         cfg.Ranking.RecentLimit,
			NotifyTopStories:    cfg.Notifications.TopStories,
			LeaseTTL:            cfg.Scheduler.LeaseTTL,
		},
	})

	driver := scheduler.NewCronScheduler(cfg.Scheduler, baseLogger.With("component", "scheduler"))
	a.scheduler = usecase.NewScheduler(driver, a.pipeline, baseLogger.With("component", "scheduler"))

	if cfg.HTTP.Addr != "" {
		router := httpapi.NewRouter(httpapi.Handlers{
			Runner:     a.pipeline,
			Digests:    store,
			Gatherer:   registry,
			Clock:      func() time.Time { return time.Now().In(cfg.Scheduler.Location()) },
			Logger:     baseLogger.With("component", "http"),
			RunTimeout: cfg.HTTP.RunTimeout,
		})
		a.server = httpapi.NewServer(cfg.HTTP.Addr, router, baseLogger.With("component", "http"))
	}

	return a, nil
}

func (a *Application) openStore(ctx context.Context) (ports.Store, error) {
	if a.cfg.Database.DSN == "" {
		a.logger.Warn("database dsn not set, using in-memory store")
		return storage.NewMemoryStore(), nil
	}

	db, err := storage.Open(ctx, a.cfg.Database.DSN, a.cfg.Database.MaxOpenConns)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	a.closers = append(a.closers, db.Close)

	repo := storage.NewPostgresRepository(db)
	if err := repo.Migrate(ctx); err != nil {
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	return repo, nil
}

func (a *Application) newEmbedder() ports.Embedder {
	cfg := a.cfg.Embedding
	switch strings.ToLower(cfg.Provider) {
	case "cohere":
		if cfg.APIKey == "" {
			a.logger.Warn("cohere api key missing, semantic deduplication disabled")
			return nil
		}
		return embedding.NewCohereEmbedder(cfg.APIKey, cfg.Model, cfg.Endpoint, cfg.Timeout)
	case "openai":
		if cfg.APIKey == "" {
			a.logger.Warn("openai api key missing, semantic deduplication disabled")
			return nil
		}
		return embedding.NewOpenAIEmbedder(cfg.APIKey, cfg.Model, cfg.Endpoint, cfg.Timeout)
	case "http", "sentence-transformers":
		if cfg.Endpoint == "" {
			a.logger.Warn("embedding endpoint missing, semantic deduplication disabled")
			return nil
		}
		return ml.NewClient(cfg.Endpoint, cfg.APIKey, cfg.Model, cfg.Timeout)
	case "", "none":
		a.logger.Info("no embedding provider configured, semantic deduplication disabled")
		return nil
	default:
		a.logger.Warn("unknown embedding provider, semantic deduplication disabled", "provider", cfg.Provider)
		return nil
	}
}

func (a *Application) newNotifiers() []ports.Notifier {
	var notifiers []ports.Notifier

	tg := a.cfg.Notifications.Telegram
	if chatID, ok := tg.TelegramChatID(); ok && tg.BotToken != "" {
		n, err := telegram.NewNotifier(tg.BotToken, chatID, tg.Endpoint)
		if err != nil {
			a.logger.Warn("telegram delivery disabled", "error", err)
		} else {
			notifiers = append(notifiers, n)
		}
	}

	kc := a.cfg.Notifications.Kafka
	if len(kc.Brokers) > 0 {
		sarama.Logger = logger.FromSlog(a.logger, "sarama", slog.LevelDebug)
		p, err := kafka.NewPublisher(kafka.PublisherConfig{Brokers: kc.Brokers, Topic: kc.Topic, ClientID: kc.ClientID})
		if err != nil {
			a.logger.Warn("kafka delivery disabled", "error", err)
		} else {
			a.closers = append(a.closers, p.Close)
			notifiers = append(notifiers, p)
		}
	}

	if len(notifiers) == 0 {
		a.logger.Info("no delivery channel configured, digests are stored only")
	}
	return notifiers
}

// RunOnce performs a single pipeline execution.
func (a *Application) RunOnce(ctx context.Context) (usecase.RunReport, error) {
	now := time.Now().In(a.cfg.Scheduler.Location())
	return a.pipeline.RunCycle(ctx, now)
}

// Run starts the scheduler and the HTTP server and blocks until ctx is cancelled.
func (a *Application) Run(ctx context.Context) error {
	defer a.Close()

	if err := a.scheduler.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	if a.server != nil {
		a.server.Start()
	}
	a.logger.Info("newsdigest started",
		"interval", a.cfg.Scheduler.Interval,
		"daily", a.cfg.Scheduler.DailyCron,
		"timezone", a.cfg.Scheduler.Location().String())

	<-ctx.Done()
	a.logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()

	var errs []error
	if a.server != nil {
		errs = append(errs, a.server.Shutdown(shutdownCtx))
	}
	errs = append(errs, a.scheduler.Stop(shutdownCtx))
	return errors.Join(errs...)
}

// Close releases database, Redis and Kafka handles.
func (a *Application) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("close resource failed", "error", err)
		}
	}
	a.closers = nil
}
