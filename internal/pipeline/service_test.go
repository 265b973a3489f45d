package pipeline

import (
	"context"
	"errors"
	"io"
	"math/rand"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/chainsight-ai/chainsight-backend/internal/pattern"
	"github.com/chainsight-ai/chainsight-backend/internal/series"
	"github.com/chainsight-ai/chainsight-backend/internal/warehouse"
	"github.com/chainsight-ai/chainsight-backend/pkg/config"
	"github.com/chainsight-ai/chainsight-backend/pkg/logger"
	"github.com/chainsight-ai/chainsight-backend/pkg/metrics"
)

type fakeLoader struct {
	histories []series.History
	err       error
}

func (f *fakeLoader) LoadHistories(context.Context) ([]series.History, error) {
	return f.histories, f.err
}

type fakeWriter struct {
	patterns    []warehouse.PatternRow
	kpis        []warehouse.KPIRow
	assignments []warehouse.ClusterAssignmentRow
	centroids   []warehouse.CentroidRow
	flushed     bool
}

func (f *fakeWriter) InsertPattern(_ context.Context, row warehouse.PatternRow) error {
	f.patterns = append(f.patterns, row)
	return nil
}

func (f *fakeWriter) InsertKPI(_ context.Context, row warehouse.KPIRow) error {
	f.kpis = append(f.kpis, row)
	return nil
}

func (f *fakeWriter) InsertAssignment(_ context.Context, row warehouse.ClusterAssignmentRow) error {
	f.assignments = append(f.assignments, row)
	return nil
}

func (f *fakeWriter) InsertCentroid(_ context.Context, row warehouse.CentroidRow) error {
	f.centroids = append(f.centroids, row)
	return nil
}

func (f *fakeWriter) Flush(context.Context) error {
	f.flushed = true
	return nil
}

func testConfig() config.Config {
	return config.Config{
		Analytics: config.AnalyticsConfig{
			MinHistoryDays:       90,
			RevenueWindowDays:    365,
			SeasonalityThreshold: 0.30,
			TrendR2Threshold:     0.30,
			CVThreshold:          1.0,
			ADIThreshold:         1.32,
			Workers:              4,
		},
		KPI: config.KPIConfig{
			MAPEExcellent:    0.10,
			MAPEGood:         0.15,
			MAPEFair:         0.25,
			BiasNeutralBand:  0.05,
			ServiceExcellent: 0.98,
			ServiceGood:      0.95,
			ServiceFair:      0.90,
			XYZXMax:          0.5,
			XYZYMax:          1.0,
			ABCAShare:        0.80,
			ABCBShare:        0.95,
		},
		Segment: config.SegmentConfig{
			Clusters:             8,
			Seed:                 42,
			MaxIterations:        300,
			ConvergenceTolerance: 1e-4,
			ArchetypeCloseness:   2.5,
			Workers:              4,
		},
	}
}

func newTestService(loader *fakeLoader, writer *fakeWriter) *Service {
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	return New(testConfig(), loader, writer, logg, metrics.NewPipelineMetrics(nil))
}

// steadyHistory builds days of stable demand with mild aperiodic noise, fully
// in stock, with forecasts tracking actuals within a few percent.
func steadyHistory(itemID, storeID string, days int, baseUnits float64) series.History {
	rng := rand.New(rand.NewSource(int64(len(itemID)) + int64(baseUnits)))
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	hist := series.History{
		Key:  series.Key{ItemID: itemID, StoreID: storeID},
		OTIF: 0.95,
	}
	for i := 0; i < days; i++ {
		date := start.AddDate(0, 0, i)
		units := baseUnits * (1 + rng.NormFloat64()*0.05)
		hist.Records = append(hist.Records, series.Record{
			Date:      date,
			ItemID:    itemID,
			StoreID:   storeID,
			UnitsSold: units,
			Revenue:   decimal.NewFromFloat(units * 10),
			PriceMin:  decimal.NewFromFloat(9.5),
			PriceMax:  decimal.NewFromFloat(10.5),
			PriceAvg:  decimal.NewFromFloat(10),
			InStock:   true,
		})
		hist.Forecasts = append(hist.Forecasts, series.Forecast{
			Date:          date,
			ItemID:        itemID,
			StoreID:       storeID,
			ForecastUnits: units * 1.02,
		})
	}
	return hist
}

func TestRunClassifiesMatureSteadyGroupSmooth(t *testing.T) {
	loader := &fakeLoader{histories: []series.History{
		steadyHistory("sku-1", "store-1", 400, 20),
	}}
	writer := &fakeWriter{}
	svc := newTestService(loader, writer)

	summary, err := svc.Run(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if summary.Groups != 1 {
		t.Fatalf("groups = %d, want 1", summary.Groups)
	}
	if len(writer.patterns) != 1 || len(writer.kpis) != 1 {
		t.Fatalf("got %d pattern rows and %d kpi rows, want 1 each",
			len(writer.patterns), len(writer.kpis))
	}

	p := writer.patterns[0]
	if p.Pattern != string(pattern.LabelSmooth) {
		t.Errorf("pattern = %s, want %s", p.Pattern, pattern.LabelSmooth)
	}
	if p.HistoryDays != 400 {
		t.Errorf("history days = %d, want 400", p.HistoryDays)
	}

	k := writer.kpis[0]
	if k.XYZClass != "X" {
		t.Errorf("xyz class = %s, want X", k.XYZClass)
	}
	if k.AccuracyCategory != "Excellent" {
		t.Errorf("accuracy category = %s, want Excellent", k.AccuracyCategory)
	}
	if k.ServiceRating != "Excellent" {
		t.Errorf("service rating = %s, want Excellent", k.ServiceRating)
	}
	if k.ABCClass == "" {
		t.Error("abc class not stamped")
	}
	if !writer.flushed {
		t.Error("writer never flushed")
	}
}

func TestRunClassifiesShortHistoryNew(t *testing.T) {
	loader := &fakeLoader{histories: []series.History{
		steadyHistory("sku-new", "store-1", 40, 5),
	}}
	writer := &fakeWriter{}
	svc := newTestService(loader, writer)

	summary, err := svc.Run(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if writer.patterns[0].Pattern != string(pattern.LabelNew) {
		t.Errorf("pattern = %s, want %s", writer.patterns[0].Pattern, pattern.LabelNew)
	}
	if summary.Segmented != 0 {
		t.Errorf("segmented = %d, want 0 for immature population", summary.Segmented)
	}
	if len(writer.assignments) != 0 || len(writer.centroids) != 0 {
		t.Error("expected no clustering rows when segmentation is skipped")
	}
}

func TestRunSegmentsMaturePopulation(t *testing.T) {
	var histories []series.History
	for i := 0; i < 12; i++ {
		itemID := string(rune('a'+i)) + "-sku"
		histories = append(histories, steadyHistory(itemID, "store-1", 200, float64(5+i*15)))
	}
	loader := &fakeLoader{histories: histories}
	writer := &fakeWriter{}
	svc := newTestService(loader, writer)

	summary, err := svc.Run(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if summary.Segmented != 12 {
		t.Errorf("segmented = %d, want 12", summary.Segmented)
	}
	if summary.Clusters != 8 {
		t.Errorf("clusters = %d, want 8", summary.Clusters)
	}
	if len(writer.assignments) != 12 {
		t.Errorf("assignment rows = %d, want 12", len(writer.assignments))
	}
	if len(writer.centroids) != 8 {
		t.Errorf("centroid rows = %d, want 8", len(writer.centroids))
	}

	members := 0
	for _, c := range writer.centroids {
		members += c.MemberCount
		if c.Archetype == "" {
			t.Error("centroid missing archetype label")
		}
	}
	if members != 12 {
		t.Errorf("centroid member counts sum to %d, want 12", members)
	}
	for _, a := range writer.assignments {
		if a.ClusterID < 0 || a.ClusterID >= 8 {
			t.Errorf("assignment cluster id %d out of range", a.ClusterID)
		}
		if a.Archetype == "" {
			t.Error("assignment missing archetype label")
		}
	}
}

func TestRunReconcilesArchetypesAcrossRuns(t *testing.T) {
	var histories []series.History
	for i := 0; i < 12; i++ {
		itemID := string(rune('a'+i)) + "-sku"
		histories = append(histories, steadyHistory(itemID, "store-1", 200, float64(5+i*15)))
	}
	loader := &fakeLoader{histories: histories}
	svc := newTestService(loader, &fakeWriter{})

	first := &fakeWriter{}
	svc.writer = first
	if _, err := svc.Run(context.Background(), uuid.New()); err != nil {
		t.Fatalf("first run: %v", err)
	}

	second := &fakeWriter{}
	svc.writer = second
	if _, err := svc.Run(context.Background(), uuid.New()); err != nil {
		t.Fatalf("second run: %v", err)
	}

	// Identical input and seed yields identical centroids, so every label
	// carries over unchanged.
	for i := range first.centroids {
		if first.centroids[i].Archetype != second.centroids[i].Archetype {
			t.Errorf("cluster %d archetype changed from %q to %q between runs",
				i, first.centroids[i].Archetype, second.centroids[i].Archetype)
		}
	}
}

func TestRunEmptyStagingIsNoOp(t *testing.T) {
	loader := &fakeLoader{}
	writer := &fakeWriter{}
	svc := newTestService(loader, writer)

	summary, err := svc.Run(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if summary.Groups != 0 {
		t.Errorf("groups = %d, want 0", summary.Groups)
	}
	if len(writer.patterns) != 0 {
		t.Error("expected no rows for empty staging")
	}
}

func TestRunSurfacesLoaderError(t *testing.T) {
	loader := &fakeLoader{err: errors.New("connection refused")}
	svc := newTestService(loader, &fakeWriter{})

	if _, err := svc.Run(context.Background(), uuid.New()); err == nil {
		t.Fatal("expected loader error to surface")
	}
}
