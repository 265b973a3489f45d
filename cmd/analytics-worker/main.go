package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/chainsight-ai/chainsight-backend/internal/ops"
	"github.com/chainsight-ai/chainsight-backend/internal/pipeline"
	"github.com/chainsight-ai/chainsight-backend/internal/series"
	"github.com/chainsight-ai/chainsight-backend/internal/warehouse"
	"github.com/chainsight-ai/chainsight-backend/internal/worker"
	"github.com/chainsight-ai/chainsight-backend/pkg/bigquery"
	"github.com/chainsight-ai/chainsight-backend/pkg/config"
	"github.com/chainsight-ai/chainsight-backend/pkg/db"
	"github.com/chainsight-ai/chainsight-backend/pkg/idempotency"
	"github.com/chainsight-ai/chainsight-backend/pkg/logger"
	"github.com/chainsight-ai/chainsight-backend/pkg/metrics"
	"github.com/chainsight-ai/chainsight-backend/pkg/pubsub"
	"github.com/chainsight-ai/chainsight-backend/pkg/redis"
)

func main() {
	ctx := context.Background()
	logg := logger.New(logger.Options{ServiceName: "analytics-worker"})

	_ = godotenv.Load()

	cfg, err := config.Load()
	requireResource(ctx, logg, "config", err)

	cfg.Service.Kind = "analytics-worker"

	logg = logger.New(logger.Options{
		ServiceName: "analytics-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	requireResource(ctx, logg, "database", err)
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(ctx, "failed to close database client", err)
		}
	}()

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	requireResource(ctx, logg, "redis", err)
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(ctx, "failed to close redis client", err)
		}
	}()

	pubsubClient, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg)
	requireResource(ctx, logg, "pubsub", err)
	defer func() {
		if err := pubsubClient.Close(); err != nil {
			logg.Error(ctx, "failed to close pubsub client", err)
		}
	}()

	bqClient, err := bigquery.NewClient(ctx, cfg.GCP, cfg.BigQuery, logg)
	requireResource(ctx, logg, "bigquery client", err)
	defer func() {
		if err := bqClient.Close(); err != nil {
			logg.Error(ctx, "failed to close bigquery client", err)
		}
	}()

	subscription := pubsubClient.RunsSubscription()
	if subscription == nil {
		requireResource(ctx, logg, "runs subscription", errors.New("subscription not configured"))
	}

	manager, err := idempotency.NewManager(redisClient, cfg.Eventing.RunIdempotencyTTL)
	requireResource(ctx, logg, "idempotency manager", err)

	writer, err := warehouse.New(bqClient, warehouse.Config{
		PatternsTable:    cfg.BigQuery.PatternsTable,
		KPIsTable:        cfg.BigQuery.KPIsTable,
		AssignmentsTable: cfg.BigQuery.AssignmentsTable,
		CentroidsTable:   cfg.BigQuery.CentroidsTable,
	})
	requireResource(ctx, logg, "warehouse writer", err)

	pipelineMetrics := metrics.NewPipelineMetrics(prometheus.DefaultRegisterer)
	repo := series.NewRepo(dbClient.DB())
	runner := pipeline.New(*cfg, repo, writer, logg, pipelineMetrics)

	service, err := worker.NewService(subscription, runner, manager, logg)
	requireResource(ctx, logg, "worker service", err)

	opsHandler := ops.NewHandler(logg, prometheus.DefaultGatherer,
		ops.NamedPinger{Name: "postgres", Pinger: dbClient},
		ops.NamedPinger{Name: "redis", Pinger: redisClient},
		ops.NamedPinger{Name: "bigquery", Pinger: bqClient},
	)

	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	runCtx = logg.WithFields(runCtx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})
	logg.Info(runCtx, "analytics worker ready")

	group, groupCtx := errgroup.WithContext(runCtx)
	group.Go(func() error {
		return ops.Serve(groupCtx, cfg.Ops.Port, opsHandler, logg)
	})
	group.Go(func() error {
		return service.Run(groupCtx)
	})

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(runCtx, "analytics worker failed", err)
		os.Exit(1)
	}
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}
