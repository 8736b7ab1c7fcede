package main

import (
	"context"
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/eventpulse/eventpulse/internal/aggregate"
	"github.com/eventpulse/eventpulse/internal/alerting"
	"github.com/eventpulse/eventpulse/internal/api"
	"github.com/eventpulse/eventpulse/internal/config"
	"github.com/eventpulse/eventpulse/internal/domain"
	"github.com/eventpulse/eventpulse/internal/issueclass"
	"github.com/eventpulse/eventpulse/internal/logger"
	"github.com/eventpulse/eventpulse/internal/metrics"
	"github.com/eventpulse/eventpulse/internal/notify"
	"github.com/eventpulse/eventpulse/internal/pipeline"
	"github.com/eventpulse/eventpulse/internal/queue"
	"github.com/eventpulse/eventpulse/internal/rollup"
	"github.com/eventpulse/eventpulse/internal/sentiment"
	"github.com/eventpulse/eventpulse/internal/store"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "eventpulse: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	path := config.Path("config.yml")
	if _, statErr := os.Stat(path); os.IsNotExist(statErr) {
		// No config file: defaults plus environment overrides.
		path = ""
	}
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}

	log, err := logger.New(cfg.Logging)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	log.Info("Starting eventpulse",
		logger.String("address", cfg.Server.Address),
		logger.String("storage", cfg.Storage.Driver))

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	stores, cleanup, err := buildStores(cfg, log)
	if err != nil {
		return err
	}
	defer cleanup()

	broadcaster, err := buildBroadcaster(cfg, log)
	if err != nil {
		return err
	}

	dispatcher := notify.NewDispatcher(broadcaster, nil, nil, nil, log)
	rollups := rollup.New(stores.buckets, stores.feedback, log)
	engine := alerting.NewEngine(stores.alerts, stores.issues, rollups, dispatcher, log, m,
		alerting.WithDefaultSettings(domain.AlertSettings{
			NegativeSentimentThreshold: cfg.Alerting.SentimentThreshold,
			IssueAlertThreshold:        cfg.Alerting.IssueThreshold,
			AutoResolveAfter:           cfg.Alerting.AutoResolveAfter,
		}))
	agg := aggregate.New(stores.issues, log)

	svc := pipeline.New(stores.events, stores.feedback, stores.alerts,
		buildSentimentChain(cfg, log), buildIssueChain(cfg, log),
		agg, engine, rollups, dispatcher, log, m)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q := queue.New(cfg.Queue, svc.ProcessItem, log, m)
	svc.UseQueue(q)
	q.Start(ctx)
	defer q.Stop()

	sweeper := alerting.NewSweeper(engine, cfg.Sweep, log)
	if err := sweeper.Start(ctx); err != nil {
		return fmt.Errorf("start sweeper: %w", err)
	}
	defer sweeper.Stop()

	server := api.NewServer(api.ServerConfig{
		Address:         cfg.Server.Address,
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		Debug:           cfg.Server.Debug,
	}, api.NewHandler(svc, log), reg, log)

	return server.RunWithGracefulShutdown(ctx)
}

// storeSet groups the five persistence interfaces a running service needs.
type storeSet struct {
	events   store.EventStore
	feedback store.FeedbackStore
	issues   store.IssueStore
	alerts   store.AlertStore
	buckets  store.BucketStore
}

func buildStores(cfg *config.Config, log logger.Logger) (*storeSet, func(), error) {
	if cfg.Storage.Driver == config.DriverMemory {
		log.Warn("using in-memory storage, data is lost on restart")
		return &storeSet{
			events:   store.NewMemoryEvents(),
			feedback: store.NewMemoryFeedback(),
			issues:   store.NewMemoryIssues(),
			alerts:   store.NewMemoryAlerts(),
			buckets:  store.NewMemoryBuckets(),
		}, func() {}, nil
	}

	log.Info("Connecting to PostgreSQL",
		logger.String("host", cfg.Storage.Postgres.Host),
		logger.String("database", cfg.Storage.Postgres.DBName))

	db, err := store.NewPostgresConnection(cfg.Storage.Postgres)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to postgres: %w", err)
	}
	return &storeSet{
		events:   store.NewPostgresEvents(db),
		feedback: store.NewPostgresFeedback(db),
		issues:   store.NewPostgresIssues(db),
		alerts:   store.NewPostgresAlerts(db),
		buckets:  store.NewPostgresBuckets(db),
	}, func() { _ = db.Close() }, nil
}

func buildBroadcaster(cfg *config.Config, log logger.Logger) (notify.Broadcaster, error) {
	if cfg.Redis.Address == "" {
		log.Warn("redis not configured, realtime broadcasting disabled")
		return notify.NopBroadcaster{}, nil
	}

	client, err := notify.NewRedisClient(cfg.Redis)
	if err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	log.Info("Redis connected", logger.String("address", cfg.Redis.Address))
	return notify.NewRedisBroadcaster(client), nil
}

// buildSentimentChain orders stages most-capable first. The external model
// is consulted when configured, with the lexicon and keyword stages as
// fallbacks.
func buildSentimentChain(cfg *config.Config, log logger.Logger) *sentiment.Chain {
	stages := []sentiment.Stage{}
	if cfg.Models.SentimentURL != "" {
		stages = append(stages, sentiment.NewModelStage(cfg.Models.SentimentURL, cfg.Models.Timeout))
	}
	stages = append(stages, sentiment.NewLexiconStage(nil), sentiment.NewKeywordStage())
	return sentiment.NewChain(log, stages...)
}

func buildIssueChain(cfg *config.Config, log logger.Logger) *issueclass.Chain {
	stages := []issueclass.Stage{}
	if cfg.Models.IssueURL != "" {
		stages = append(stages, issueclass.NewModelStage(cfg.Models.IssueURL, cfg.Models.Timeout))
	}
	stages = append(stages, issueclass.NewKeywordOverlapStage(), issueclass.NewBayesStage())
	return issueclass.NewChain(log, stages...)
}
