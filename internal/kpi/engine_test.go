package kpi

import (
	"math"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/chainsight-ai/chainsight-backend/internal/features"
	"github.com/chainsight-ai/chainsight-backend/internal/series"
	"github.com/chainsight-ai/chainsight-backend/pkg/config"
)

func testKPIConfig() config.KPIConfig {
	return config.KPIConfig{
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
	}
}

func TestAccuracyPerfectForecast(t *testing.T) {
	e := NewEngine(testKPIConfig())
	actual := []float64{10, 20, 30}
	acc := e.Accuracy(actual, actual)

	if acc.MAE != 0 || acc.MAPE != 0 || acc.RMSE != 0 {
		t.Errorf("perfect forecast gave MAE %v MAPE %v RMSE %v, want zeros",
			acc.MAE, acc.MAPE, acc.RMSE)
	}
	if acc.AvgBias != 0 || acc.BiasPct != 0 || acc.TrackingSignal != 0 {
		t.Error("perfect forecast should carry no bias")
	}
}

func TestAccuracyOverForecastBias(t *testing.T) {
	e := NewEngine(testKPIConfig())
	actual := []float64{10, 10, 10, 10}
	forecast := []float64{11, 11, 11, 11}

	acc := e.Accuracy(actual, forecast)
	if math.Abs(acc.MAE-1) > 1e-9 {
		t.Errorf("MAE = %v, want 1", acc.MAE)
	}
	if math.Abs(acc.MAPE-0.1) > 1e-9 {
		t.Errorf("MAPE = %v, want 0.1", acc.MAPE)
	}
	if math.Abs(acc.BiasPct-0.1) > 1e-9 {
		t.Errorf("BiasPct = %v, want +0.1", acc.BiasPct)
	}
	if math.Abs(acc.TrackingSignal-4) > 1e-9 {
		t.Errorf("TrackingSignal = %v, want 4", acc.TrackingSignal)
	}
	if e.BiasDirection(acc.BiasPct) != BiasOver {
		t.Errorf("bias direction = %s, want %s", e.BiasDirection(acc.BiasPct), BiasOver)
	}
}

func TestAccuracyMAPESkipsZeroActuals(t *testing.T) {
	e := NewEngine(testKPIConfig())
	actual := []float64{0, 10, 0, 10}
	forecast := []float64{5, 12, 5, 12}

	acc := e.Accuracy(actual, forecast)
	// Only the two positive-actual days contribute: |2|/10 each.
	if math.Abs(acc.MAPE-0.2) > 1e-9 {
		t.Errorf("MAPE = %v, want 0.2", acc.MAPE)
	}
}

func TestAccuracyAllZeroActuals(t *testing.T) {
	e := NewEngine(testKPIConfig())
	actual := []float64{0, 0, 0}
	forecast := []float64{1, 2, 3}

	acc := e.Accuracy(actual, forecast)
	if acc.MAPE != 0 {
		t.Errorf("MAPE = %v, want 0 when no actual is positive", acc.MAPE)
	}
	if acc.BiasPct != 0 {
		t.Errorf("BiasPct = %v, want 0 on zero actual sum", acc.BiasPct)
	}
	if math.IsNaN(acc.TrackingSignal) || math.IsInf(acc.TrackingSignal, 0) {
		t.Error("tracking signal must stay finite")
	}
}

func TestAccuracyEmptyOrMismatched(t *testing.T) {
	e := NewEngine(testKPIConfig())
	if acc := e.Accuracy(nil, nil); acc != (Accuracy{}) {
		t.Error("empty input should produce zero accuracy")
	}
	if acc := e.Accuracy([]float64{1, 2}, []float64{1}); acc != (Accuracy{}) {
		t.Error("mismatched lengths should produce zero accuracy")
	}
}

func buildRecords(days int, units func(i int) float64, inStock func(i int) bool) []series.Record {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	records := make([]series.Record, days)
	for i := range records {
		records[i] = series.Record{
			Date:      start.AddDate(0, 0, i),
			ItemID:    "sku-1",
			StoreID:   "store-1",
			UnitsSold: units(i),
			PriceMin:  decimal.NewFromFloat(9),
			PriceMax:  decimal.NewFromFloat(11),
			PriceAvg:  decimal.NewFromFloat(10),
			InStock:   inStock(i),
		}
	}
	return records
}

func TestInventoryFullyStocked(t *testing.T) {
	e := NewEngine(testKPIConfig())
	records := buildRecords(100,
		func(int) float64 { return 5 },
		func(int) bool { return true },
	)

	inv := e.Inventory(records)
	if inv.ServiceLevel != 1 {
		t.Errorf("service level = %v, want 1", inv.ServiceLevel)
	}
	if inv.StockoutFrequency != 0 {
		t.Errorf("stockout frequency = %v, want 0", inv.StockoutFrequency)
	}
	if inv.FillRate != 1 {
		t.Errorf("fill rate = %v, want 1", inv.FillRate)
	}
	if math.Abs(inv.PriceVolatility-0.2) > 1e-9 {
		t.Errorf("price volatility = %v, want 0.2", inv.PriceVolatility)
	}
}

func TestInventoryStockoutsReduceFillRate(t *testing.T) {
	e := NewEngine(testKPIConfig())
	// Demand every day, out of stock every fourth day.
	records := buildRecords(100,
		func(int) float64 { return 2 },
		func(i int) bool { return i%4 != 0 },
	)

	inv := e.Inventory(records)
	if math.Abs(inv.ServiceLevel-0.75) > 1e-9 {
		t.Errorf("service level = %v, want 0.75", inv.ServiceLevel)
	}
	if math.Abs(inv.FillRate-0.75) > 1e-9 {
		t.Errorf("fill rate = %v, want 0.75", inv.FillRate)
	}
}

func TestInventoryZeroSafety(t *testing.T) {
	e := NewEngine(testKPIConfig())

	if inv := e.Inventory(nil); inv != (Inventory{}) {
		t.Error("empty records should produce zero inventory KPIs")
	}

	// No demand at all: every ratio must stay finite.
	records := buildRecords(50,
		func(int) float64 { return 0 },
		func(int) bool { return true },
	)
	inv := e.Inventory(records)
	for name, v := range map[string]float64{
		"turnover":      inv.TurnoverProxy,
		"days_supply":   inv.DaysOfSupply,
		"fill_rate":     inv.FillRate,
		"service_level": inv.ServiceLevel,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			t.Errorf("%s = %v, want finite", name, v)
		}
	}
}

func TestComputeStampsBands(t *testing.T) {
	e := NewEngine(testKPIConfig())
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	hist := series.History{
		Key:     series.Key{ItemID: "sku-1", StoreID: "store-1"},
		Records: buildRecords(100, func(int) float64 { return 10 }, func(int) bool { return true }),
	}
	for i := 0; i < 100; i++ {
		hist.Forecasts = append(hist.Forecasts, series.Forecast{
			Date:          start.AddDate(0, 0, i),
			ItemID:        "sku-1",
			StoreID:       "store-1",
			ForecastUnits: 10.4,
		})
	}

	rec := e.Compute(hist, features.Vector{DemandCV: 0.3})
	if rec.AccuracyCategory != BandExcellent {
		t.Errorf("accuracy category = %s, want %s", rec.AccuracyCategory, BandExcellent)
	}
	if rec.ServiceRating != BandExcellent {
		t.Errorf("service rating = %s, want %s", rec.ServiceRating, BandExcellent)
	}
	if rec.XYZClass != ClassX {
		t.Errorf("xyz class = %s, want %s", rec.XYZClass, ClassX)
	}
	if rec.BiasDirection != BiasUnbiased {
		t.Errorf("bias direction = %s, want %s for 4%% over", rec.BiasDirection, BiasUnbiased)
	}
	if rec.ABCClass != "" {
		t.Errorf("abc class = %q, want empty before the ranking pass", rec.ABCClass)
	}
}
