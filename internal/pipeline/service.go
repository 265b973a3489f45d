package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/chainsight-ai/chainsight-backend/internal/features"
	"github.com/chainsight-ai/chainsight-backend/internal/kpi"
	"github.com/chainsight-ai/chainsight-backend/internal/pattern"
	"github.com/chainsight-ai/chainsight-backend/internal/segment"
	"github.com/chainsight-ai/chainsight-backend/internal/series"
	"github.com/chainsight-ai/chainsight-backend/internal/warehouse"
	"github.com/chainsight-ai/chainsight-backend/pkg/config"
	pkgerrors "github.com/chainsight-ai/chainsight-backend/pkg/errors"
	"github.com/chainsight-ai/chainsight-backend/pkg/logger"
	"github.com/chainsight-ai/chainsight-backend/pkg/metrics"
)

// Stage label values reported to metrics.
const (
	StageLoad     = "load"
	StageFeatures = "features"
	StageSegment  = "segment"
	StagePublish  = "publish"
)

// HistoryLoader supplies staged per-group histories.
type HistoryLoader interface {
	LoadHistories(ctx context.Context) ([]series.History, error)
}

// RowWriter receives the computed output rows.
type RowWriter interface {
	InsertPattern(ctx context.Context, row warehouse.PatternRow) error
	InsertKPI(ctx context.Context, row warehouse.KPIRow) error
	InsertAssignment(ctx context.Context, row warehouse.ClusterAssignmentRow) error
	InsertCentroid(ctx context.Context, row warehouse.CentroidRow) error
	Flush(ctx context.Context) error
}

// Summary reports what one run produced.
type Summary struct {
	RunID         uuid.UUID
	Groups        int
	Segmented     int
	Clusters      int
	Converged     bool
	Iterations    int
	DaviesBouldin float64
	Silhouette    float64
	PatternCounts map[pattern.Label]int
	Duration      time.Duration
}

// Service orchestrates one analytics run end to end: load histories, derive
// features and KPIs per group in parallel, classify, rank ABC across the
// population, segment the eligible groups, and publish every output table.
type Service struct {
	cfg     config.Config
	loader  HistoryLoader
	writer  RowWriter
	logg    *logger.Logger
	metrics *metrics.PipelineMetrics

	engineer   *features.Engineer
	classifier *pattern.Classifier
	kpis       *kpi.Engine
	profiler   *segment.Profiler

	// Previous-run clustering state for label reconciliation. Guarded so the
	// worker can serve overlapping run requests safely.
	mu            sync.Mutex
	lastCentroids [][]float64
	lastLabels    []string
}

func New(cfg config.Config, loader HistoryLoader, writer RowWriter, logg *logger.Logger, pm *metrics.PipelineMetrics) *Service {
	return &Service{
		cfg:        cfg,
		loader:     loader,
		writer:     writer,
		logg:       logg,
		metrics:    pm,
		engineer:   features.NewEngineer(cfg.Analytics),
		classifier: pattern.NewClassifier(cfg.Analytics),
		kpis:       kpi.NewEngine(cfg.KPI),
		profiler:   segment.NewProfiler(cfg.Segment.ArchetypeCloseness),
	}
}

// Run executes one full analytics pass. An empty staging table is a
// successful no-op run, not an error.
func (s *Service) Run(ctx context.Context, runID uuid.UUID) (Summary, error) {
	started := time.Now()
	ctx = s.logg.WithRunID(ctx, runID.String())
	s.logg.Info(ctx, "analytics run started")

	summary, err := s.run(ctx, runID)
	summary.RunID = runID
	summary.Duration = time.Since(started)
	if err != nil {
		s.metrics.IncFailure()
		s.logg.Error(ctx, "analytics run failed", err)
		return summary, err
	}

	s.metrics.IncSuccess()
	s.logg.Info(ctx, "analytics run finished")
	return summary, nil
}

func (s *Service) run(ctx context.Context, runID uuid.UUID) (Summary, error) {
	var summary Summary
	computedAt := time.Now().UTC()

	stageStart := time.Now()
	histories, err := s.loader.LoadHistories(ctx)
	if err != nil {
		return summary, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "loading histories")
	}
	s.metrics.ObserveStage(StageLoad, time.Since(stageStart))

	summary.Groups = len(histories)
	s.metrics.SetGroupsProcessed(len(histories))
	if len(histories) == 0 {
		s.logg.Warn(ctx, "no staged history; nothing to compute")
		return summary, nil
	}

	vectors, kpiRecords, err := s.computeGroups(ctx, histories)
	if err != nil {
		return summary, err
	}

	labels := make([]pattern.Label, len(vectors))
	summary.PatternCounts = make(map[pattern.Label]int, len(pattern.Labels()))
	for i, vec := range vectors {
		labels[i] = s.classifier.Classify(vec)
		summary.PatternCounts[labels[i]]++
	}

	s.applyABC(histories, vectors, kpiRecords)

	clustering, err := s.segmentGroups(ctx, vectors, &summary)
	if err != nil {
		return summary, err
	}

	stageStart = time.Now()
	if err := s.publish(ctx, runID, computedAt, histories, vectors, labels, kpiRecords, clustering); err != nil {
		return summary, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "publishing output rows")
	}
	s.metrics.ObserveStage(StagePublish, time.Since(stageStart))

	return summary, nil
}

// computeGroups derives the feature vector and KPI record for every group,
// fanned out across the configured worker count. Results land at the group's
// own index so ordering stays deterministic regardless of scheduling.
func (s *Service) computeGroups(ctx context.Context, histories []series.History) ([]features.Vector, []kpi.Record, error) {
	vectors := make([]features.Vector, len(histories))
	kpiRecords := make([]kpi.Record, len(histories))

	stageStart := time.Now()
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(s.workerLimit())
	for i := range histories {
		i := i
		group.Go(func() error {
			if err := groupCtx.Err(); err != nil {
				return err
			}
			vectors[i] = s.engineer.Compute(histories[i])
			kpiRecords[i] = s.kpis.Compute(histories[i], vectors[i])
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "computing group features")
	}
	s.metrics.ObserveStage(StageFeatures, time.Since(stageStart))

	return vectors, kpiRecords, nil
}

func (s *Service) workerLimit() int {
	if s.cfg.Analytics.Workers > 0 {
		return s.cfg.Analytics.Workers
	}
	return 1
}

// applyABC ranks the whole population by revenue and stamps each KPI record
// with its class. This is the only cross-group KPI.
func (s *Service) applyABC(histories []series.History, vectors []features.Vector, kpiRecords []kpi.Record) {
	ranked := make([]kpi.ItemRevenue, len(histories))
	for i := range histories {
		ranked[i] = kpi.ItemRevenue{
			Key:     histories[i].Key,
			Revenue: decimal.NewFromFloat(vectors[i].AnnualRevenue),
		}
	}
	classes := s.kpis.ABCClassify(ranked)
	for i := range kpiRecords {
		kpiRecords[i].ABCClass = classes[histories[i].Key]
	}
}

// clustering bundles the segmentation output keyed back to vector indices.
type clustering struct {
	result  segment.Result
	labels  []string
	indices []int
}

// segmentGroups clusters the groups with enough history. Too few eligible
// groups for the configured K skips segmentation; the run still publishes
// patterns and KPIs.
func (s *Service) segmentGroups(ctx context.Context, vectors []features.Vector, summary *Summary) (*clustering, error) {
	var indices []int
	var raw [][]float64
	for i, vec := range vectors {
		if vec.HistoryDays < s.cfg.Analytics.MinHistoryDays {
			continue
		}
		indices = append(indices, i)
		raw = append(raw, vec.ClusteringPoint())
	}

	if len(indices) < s.cfg.Segment.Clusters {
		s.logg.Warn(ctx, "too few mature groups to segment; skipping clustering")
		return nil, nil
	}

	stageStart := time.Now()
	standardizer := segment.FitStandardizer(raw)
	points := standardizer.Transform(raw)

	result, err := segment.Run(ctx, points, s.cfg.Segment)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "clustering groups")
	}
	s.metrics.ObserveStage(StageSegment, time.Since(stageStart))
	s.metrics.SetClusteringOutcome(result.Iterations, result.Converged)

	s.mu.Lock()
	labels := s.profiler.Reconcile(s.lastCentroids, result.Centroids, s.lastLabels)
	s.lastCentroids = result.Centroids
	s.lastLabels = labels
	s.mu.Unlock()

	summary.Segmented = len(indices)
	summary.Clusters = len(result.Centroids)
	summary.Converged = result.Converged
	summary.Iterations = result.Iterations
	summary.DaviesBouldin = result.DaviesBouldin
	summary.Silhouette = result.Silhouette

	if !result.Converged {
		s.logg.Warn(ctx, "clustering hit the iteration cap without meeting tolerance")
	}

	return &clustering{
		result:  result,
		labels:  labels,
		indices: indices,
	}, nil
}

func (s *Service) publish(
	ctx context.Context,
	runID uuid.UUID,
	computedAt time.Time,
	histories []series.History,
	vectors []features.Vector,
	labels []pattern.Label,
	kpiRecords []kpi.Record,
	cl *clustering,
) error {
	run := runID.String()

	for i := range histories {
		vec := vectors[i]
		patternRow := warehouse.PatternRow{
			RunID:               run,
			ItemID:              vec.ItemID,
			StoreID:             vec.StoreID,
			ComputedAt:          computedAt,
			Pattern:             string(labels[i]),
			HistoryDays:         vec.HistoryDays,
			DemandCV:            vec.DemandCV,
			ADI:                 vec.ADI,
			SeasonalityStrength: vec.SeasonalityStrength,
			TrendSlope:          vec.TrendSlope,
			TrendR2:             vec.TrendR2,
			StockoutFrequency:   vec.StockoutFrequency,
			SupplierReliability: vec.SupplierReliability,
			AnnualRevenue:       vec.AnnualRevenue,
		}
		if err := s.writer.InsertPattern(ctx, patternRow); err != nil {
			return err
		}

		rec := kpiRecords[i]
		kpiRow := warehouse.KPIRow{
			RunID:             run,
			ItemID:            rec.ItemID,
			StoreID:           rec.StoreID,
			ComputedAt:        computedAt,
			MAE:               rec.MAE,
			MAPE:              rec.MAPE,
			AvgBias:           rec.AvgBias,
			BiasPct:           rec.BiasPct,
			RMSE:              rec.RMSE,
			TrackingSignal:    rec.TrackingSignal,
			ServiceLevel:      rec.ServiceLevel,
			StockoutFrequency: rec.StockoutFrequency,
			TurnoverProxy:     rec.TurnoverProxy,
			DaysOfSupply:      rec.DaysOfSupply,
			FillRate:          rec.FillRate,
			PriceVolatility:   rec.PriceVolatility,
			AccuracyCategory:  rec.AccuracyCategory,
			BiasDirection:     rec.BiasDirection,
			ServiceRating:     rec.ServiceRating,
			XYZClass:          rec.XYZClass,
			ABCClass:          rec.ABCClass,
		}
		if err := s.writer.InsertKPI(ctx, kpiRow); err != nil {
			return err
		}
	}

	if cl != nil {
		for pos, idx := range cl.indices {
			assignment := cl.result.Assignments[pos]
			row := warehouse.ClusterAssignmentRow{
				RunID:            run,
				ItemID:           vectors[idx].ItemID,
				StoreID:          vectors[idx].StoreID,
				ComputedAt:       computedAt,
				ClusterID:        assignment.ClusterID,
				Archetype:        cl.labels[assignment.ClusterID],
				DistanceToCenter: assignment.Distance,
			}
			if err := s.writer.InsertAssignment(ctx, row); err != nil {
				return err
			}
		}

		for c, centroid := range cl.result.Centroids {
			row := warehouse.CentroidRow{
				RunID:                run,
				ComputedAt:           computedAt,
				ClusterID:            c,
				Archetype:            cl.labels[c],
				MemberCount:          cl.result.MemberCounts[c],
				Converged:            cl.result.Converged,
				Iterations:           cl.result.Iterations,
				AnnualRevenueZ:       centroid[0],
				DemandCVZ:            centroid[1],
				SeasonalityStrengthZ: centroid[2],
				TrendSlopeZ:          centroid[3],
				StockoutFrequencyZ:   centroid[4],
				SupplierReliabilityZ: centroid[5],
			}
			if err := s.writer.InsertCentroid(ctx, row); err != nil {
				return err
			}
		}
	}

	return s.writer.Flush(ctx)
}
