package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"basegraph.app/synapse/common/id"
	"basegraph.app/synapse/common/llm"
	"basegraph.app/synapse/common/logger"
	"basegraph.app/synapse/common/otel"
	"basegraph.app/synapse/core/config"
	"basegraph.app/synapse/core/db"
	"basegraph.app/synapse/internal/knowledge"
	"basegraph.app/synapse/internal/queue"
	"basegraph.app/synapse/internal/resolver"
	"basegraph.app/synapse/internal/service"
	"basegraph.app/synapse/internal/service/issue_tracker"
	"basegraph.app/synapse/internal/slackapi"
	"basegraph.app/synapse/internal/store"
	"basegraph.app/synapse/internal/thread"
	"basegraph.app/synapse/internal/worker"
)

const maxAttempts = 3

func main() {
	ctx := context.Background()

	cfg, err := config.Load(config.ServiceTypeWorker)
	if err != nil {
		slog.ErrorContext(ctx, "failed to load config", "error", err)
		os.Exit(1)
	}

	fmt.Printf("%s\n", banner)

	telemetry, err := otel.Setup(ctx, cfg.OTel)
	if err != nil {
		os.Stderr.WriteString("failed to initialize otel: " + err.Error() + "\n")
		os.Exit(1)
	}

	logger.Setup(cfg)

	slog.InfoContext(ctx, "synapse worker starting",
		"env", cfg.Env,
		"consumer_group", cfg.Pipeline.RedisGroup,
		"consumer_name", cfg.Pipeline.RedisConsumer)

	// different node ID than the server
	if err := id.Init(2); err != nil {
		slog.ErrorContext(ctx, "failed to initialize id generator", "error", err)
		os.Exit(1)
	}

	database, err := db.New(ctx, cfg.DB)
	if err != nil {
		slog.ErrorContext(ctx, "failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer database.Close()
	slog.InfoContext(ctx, "database connected")

	redisOpts, err := redis.ParseURL(cfg.Pipeline.RedisURL)
	if err != nil {
		slog.ErrorContext(ctx, "failed to parse redis url", "error", err)
		os.Exit(1)
	}

	redisClient := redis.NewClient(redisOpts)
	if err := redisClient.Ping(ctx).Err(); err != nil {
		slog.ErrorContext(ctx, "failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer redisClient.Close()
	slog.InfoContext(ctx, "redis connected", "stream", cfg.Pipeline.RedisStream)

	consumer, err := queue.NewRedisConsumer(redisClient, queue.ConsumerConfig{
		Stream:       cfg.Pipeline.RedisStream,
		Group:        cfg.Pipeline.RedisGroup,
		Consumer:     cfg.Pipeline.RedisConsumer,
		DLQStream:    cfg.Pipeline.RedisDLQStream,
		BatchSize:    1, // one channel at a time keeps Slack rate limits predictable
		Block:        5 * time.Second,
		MaxAttempts:  maxAttempts,
		RequeueDelay: 5 * time.Second,
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to create consumer", "error", err)
		os.Exit(1)
	}

	vectors, err := store.NewSQLiteVectorStore(ctx, cfg.Index.Path)
	if err != nil {
		slog.ErrorContext(ctx, "failed to open knowledge index", "error", err, "path", cfg.Index.Path)
		os.Exit(1)
	}
	defer vectors.Close()

	embedder, err := llm.NewEmbedder(ctx, llm.Config{
		Provider: cfg.EmbeddingLLM.Provider,
		APIKey:   cfg.EmbeddingLLM.APIKey,
		BaseURL:  cfg.EmbeddingLLM.BaseURL,
		Model:    cfg.EmbeddingLLM.Model,
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to create embedder", "error", err)
		os.Exit(1)
	}

	httpClient := otel.HTTPClient(30 * time.Second)
	slackClient := slackapi.NewClient(slackapi.ClientConfig{
		BaseURL:    cfg.Slack.BaseURL,
		Token:      cfg.Slack.BotToken,
		HTTPClient: httpClient,
	})
	fetcher := slackapi.NewFetcher(slackapi.FetcherConfig{
		BaseURL:    cfg.Slack.BaseURL,
		Token:      cfg.Slack.BotToken,
		PageDelay:  cfg.Slack.PageDelay,
		HTTPClient: httpClient,
	})

	if !cfg.Jira.Enabled() {
		slog.WarnContext(ctx, "jira credentials not set, ticket enrichment disabled")
	}
	tickets := issue_tracker.NewEnricher(issue_tracker.NewJiraIssueTrackerService(issue_tracker.JiraConfig{
		BaseURL:   cfg.Jira.BaseURL,
		UserEmail: cfg.Jira.UserEmail,
		APIToken:  cfg.Jira.APIToken,
	}))

	references := resolver.NewReferenceCache(slackClient)
	ingest := service.NewIngestService(
		fetcher,
		references,
		thread.NewAssembler(resolver.New(references), references, tickets),
		knowledge.NewIndex(embedder, vectors),
	)

	w := worker.New(consumer, store.NewIngestRunStore(database.Querier()), ingest, worker.Config{
		MaxAttempts: maxAttempts,
	})

	reclaimer := worker.NewRedisReclaimer(redisClient, worker.RedisReclaimerConfig{
		Stream:        cfg.Pipeline.RedisStream,
		Group:         cfg.Pipeline.RedisGroup,
		Consumer:      cfg.Pipeline.RedisConsumer + "-reclaimer",
		MinIdle:       15 * time.Minute, // a long channel backfill can hold a task this long
		Interval:      time.Minute,
		BatchSize:     10,
		MaxDeliveries: maxAttempts,
	}, consumer, w.ProcessMessage)

	errCh := make(chan error, 2)
	go func() {
		errCh <- w.Run(ctx)
	}()
	go func() {
		reclaimer.Run(ctx)
		errCh <- nil
	}()

	slog.InfoContext(ctx, "worker initialized and running")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.InfoContext(ctx, "shutting down worker...")

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	reclaimer.Stop()
	w.Stop()

	select {
	case <-shutdownCtx.Done():
		slog.WarnContext(ctx, "shutdown timeout exceeded")
	case err := <-errCh:
		if err != nil {
			slog.ErrorContext(ctx, "worker error during shutdown", "error", err)
		}
	}

	if telemetry != nil {
		if err := telemetry.Shutdown(shutdownCtx); err != nil {
			slog.ErrorContext(shutdownCtx, "otel shutdown error", "error", err)
		}
	}

	slog.InfoContext(ctx, "worker shutdown complete")
}

const banner = `
███████╗██╗   ██╗███╗   ██╗ █████╗ ██████╗ ███████╗███████╗
██╔════╝╚██╗ ██╔╝████╗  ██║██╔══██╗██╔══██╗██╔════╝██╔════╝
███████╗ ╚████╔╝ ██╔██╗ ██║███████║██████╔╝███████╗█████╗
╚════██║  ╚██╔╝  ██║╚██╗██║██╔══██║██╔═══╝ ╚════██║██╔══╝
███████║   ██║   ██║ ╚████║██║  ██║██║     ███████║███████╗
╚══════╝   ╚═╝   ╚═╝  ╚═══╝╚═╝  ╚═╝╚═╝     ╚══════╝╚══════╝
                                                    worker
`
