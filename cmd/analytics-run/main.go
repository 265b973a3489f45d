package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/chainsight-ai/chainsight-backend/internal/pipeline"
	"github.com/chainsight-ai/chainsight-backend/internal/series"
	"github.com/chainsight-ai/chainsight-backend/internal/warehouse"
	"github.com/chainsight-ai/chainsight-backend/pkg/bigquery"
	"github.com/chainsight-ai/chainsight-backend/pkg/config"
	"github.com/chainsight-ai/chainsight-backend/pkg/db"
	"github.com/chainsight-ai/chainsight-backend/pkg/logger"
	"github.com/chainsight-ai/chainsight-backend/pkg/metrics"
)

func main() {
	ctx := context.Background()
	logg := logger.New(logger.Options{ServiceName: "analytics-run"})

	_ = godotenv.Load()

	cfg, err := config.Load()
	requireResource(ctx, logg, "config", err)

	cfg.Service.Kind = "analytics-run"

	logg = logger.New(logger.Options{
		ServiceName: "analytics-run",
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

	bqClient, err := bigquery.NewClient(ctx, cfg.GCP, cfg.BigQuery, logg)
	requireResource(ctx, logg, "bigquery client", err)
	defer func() {
		if err := bqClient.Close(); err != nil {
			logg.Error(ctx, "failed to close bigquery client", err)
		}
	}()

	writer, err := warehouse.New(bqClient, warehouse.Config{
		PatternsTable:    cfg.BigQuery.PatternsTable,
		KPIsTable:        cfg.BigQuery.KPIsTable,
		AssignmentsTable: cfg.BigQuery.AssignmentsTable,
		CentroidsTable:   cfg.BigQuery.CentroidsTable,
	})
	requireResource(ctx, logg, "warehouse writer", err)

	pipelineMetrics := metrics.NewPipelineMetrics(prometheus.DefaultRegisterer)
	repo := series.NewRepo(dbClient.DB())
	service := pipeline.New(*cfg, repo, writer, logg, pipelineMetrics)

	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	runCtx = logg.WithFields(runCtx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})

	summary, err := service.Run(runCtx, uuid.New())
	if err != nil {
		logg.Error(runCtx, "analytics run failed", err)
		os.Exit(1)
	}

	logg.Info(logg.WithFields(runCtx, map[string]any{
		"groups":         summary.Groups,
		"segmented":      summary.Segmented,
		"clusters":       summary.Clusters,
		"converged":      summary.Converged,
		"iterations":     summary.Iterations,
		"davies_bouldin": summary.DaviesBouldin,
		"silhouette":     summary.Silhouette,
		"duration":       summary.Duration.String(),
	}), "analytics run complete")
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}
