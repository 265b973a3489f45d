package kpi

import (
	"math"
	"time"

	"github.com/chainsight-ai/chainsight-backend/internal/features"
	"github.com/chainsight-ai/chainsight-backend/internal/series"
	"github.com/chainsight-ai/chainsight-backend/pkg/config"
	"github.com/shopspring/decimal"
)

const daysPerYear = 365

// Record is the full KPI row for one (item, store) group. ABCClass is filled
// in by the population-level ranking pass, not per group.
type Record struct {
	ItemID  string
	StoreID string

	MAE            float64
	MAPE           float64
	AvgBias        float64
	BiasPct        float64
	RMSE           float64
	TrackingSignal float64

	ServiceLevel      float64
	StockoutFrequency float64
	TurnoverProxy     float64
	DaysOfSupply      float64
	FillRate          float64
	PriceVolatility   float64

	AccuracyCategory string
	BiasDirection    string
	ServiceRating    string
	XYZClass         string
	ABCClass         string
}

// Engine computes forecast-accuracy and inventory KPIs. Every ratio is
// guarded; no NaN or infinity ever leaves this package.
type Engine struct {
	cfg config.KPIConfig
}

func NewEngine(cfg config.KPIConfig) *Engine {
	return &Engine{cfg: cfg}
}

// Compute derives the KPI record for one history and its feature vector.
// ABCClass is left empty for the caller's ranking pass.
func (e *Engine) Compute(hist series.History, vec features.Vector) Record {
	rec := Record{
		ItemID:  hist.Key.ItemID,
		StoreID: hist.Key.StoreID,
	}

	actual, forecast := alignByDate(hist.Records, hist.Forecasts)
	acc := e.Accuracy(actual, forecast)
	rec.MAE = acc.MAE
	rec.MAPE = acc.MAPE
	rec.AvgBias = acc.AvgBias
	rec.BiasPct = acc.BiasPct
	rec.RMSE = acc.RMSE
	rec.TrackingSignal = acc.TrackingSignal

	inv := e.Inventory(hist.Records)
	rec.ServiceLevel = inv.ServiceLevel
	rec.StockoutFrequency = inv.StockoutFrequency
	rec.TurnoverProxy = inv.TurnoverProxy
	rec.DaysOfSupply = inv.DaysOfSupply
	rec.FillRate = inv.FillRate
	rec.PriceVolatility = inv.PriceVolatility

	rec.AccuracyCategory = e.AccuracyCategory(rec.MAPE)
	rec.BiasDirection = e.BiasDirection(rec.BiasPct)
	rec.ServiceRating = e.ServiceRating(rec.ServiceLevel)
	rec.XYZClass = e.XYZClass(vec.DemandCV)

	return rec
}

// Accuracy bundles the forecast-error KPIs.
type Accuracy struct {
	MAE            float64
	MAPE           float64
	AvgBias        float64
	BiasPct        float64
	RMSE           float64
	TrackingSignal float64
}

// Accuracy scores forecast values against actuals. MAPE only considers
// periods with positive actuals; with none, it is 0 rather than undefined.
func (e *Engine) Accuracy(actual, forecast []float64) Accuracy {
	n := len(actual)
	if n == 0 || n != len(forecast) {
		return Accuracy{}
	}

	var absErrSum, biasSum, sqErrSum float64
	var apeSum float64
	apeCount := 0
	var actualSum float64

	for i := 0; i < n; i++ {
		diff := forecast[i] - actual[i]
		absErrSum += math.Abs(diff)
		biasSum += diff
		sqErrSum += diff * diff
		actualSum += actual[i]
		if actual[i] > 0 {
			apeSum += math.Abs(diff) / actual[i]
			apeCount++
		}
	}

	acc := Accuracy{
		MAE:     absErrSum / float64(n),
		AvgBias: biasSum / float64(n),
		RMSE:    math.Sqrt(sqErrSum / float64(n)),
	}
	if apeCount > 0 {
		acc.MAPE = apeSum / float64(apeCount)
	}
	acc.BiasPct = safeDiv(biasSum, actualSum)
	acc.TrackingSignal = safeDiv(biasSum, acc.MAE)
	return acc
}

// Inventory bundles the availability and efficiency KPIs.
type Inventory struct {
	ServiceLevel      float64
	StockoutFrequency float64
	TurnoverProxy     float64
	DaysOfSupply      float64
	FillRate          float64
	PriceVolatility   float64
}

// Inventory derives availability and turnover ratios from the raw history.
func (e *Engine) Inventory(records []series.Record) Inventory {
	n := len(records)
	if n == 0 {
		return Inventory{}
	}

	inStockDays := 0
	demandDaysInStock := 0
	demandDays := 0
	var totalUnits float64
	priceMin := decimal.Zero
	priceMax := decimal.Zero
	priceAvgSum := decimal.Zero

	for i, rec := range records {
		if rec.InStock {
			inStockDays++
		}
		if rec.UnitsSold > 0 {
			demandDays++
			if rec.InStock {
				demandDaysInStock++
			}
		}
		totalUnits += rec.UnitsSold
		if i == 0 || rec.PriceMin.LessThan(priceMin) {
			priceMin = rec.PriceMin
		}
		if rec.PriceMax.GreaterThan(priceMax) {
			priceMax = rec.PriceMax
		}
		priceAvgSum = priceAvgSum.Add(rec.PriceAvg)
	}

	inv := Inventory{
		ServiceLevel:      float64(inStockDays) / float64(n),
		StockoutFrequency: float64(n-inStockDays) / float64(n),
		FillRate:          safeDiv(float64(demandDaysInStock), float64(demandDays)),
	}

	avgDailyUnits := totalUnits / float64(n)
	inv.TurnoverProxy = safeDiv(totalUnits, avgDailyUnits*daysPerYear)
	inv.DaysOfSupply = safeDiv(daysPerYear, inv.TurnoverProxy)

	avgPrice := priceAvgSum.InexactFloat64() / float64(n)
	spread := priceMax.Sub(priceMin).InexactFloat64()
	inv.PriceVolatility = safeDiv(spread, avgPrice)

	return inv
}

// alignByDate pairs actual and forecast values on matching dates. Days
// missing from either side are excluded from accuracy scoring.
func alignByDate(records []series.Record, forecasts []series.Forecast) (actual, forecast []float64) {
	if len(forecasts) == 0 {
		return nil, nil
	}
	byDate := make(map[time.Time]float64, len(forecasts))
	for _, fc := range forecasts {
		byDate[dateOnly(fc.Date)] = fc.ForecastUnits
	}
	for _, rec := range records {
		if fv, ok := byDate[dateOnly(rec.Date)]; ok {
			actual = append(actual, rec.UnitsSold)
			forecast = append(forecast, fv)
		}
	}
	return actual, forecast
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// safeDiv is the house zero-safe division: a zero denominator yields zero,
// never NaN or infinity.
func safeDiv(num, den float64) float64 {
	if den == 0 {
		return 0
	}
	v := num / den
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
