package features

import (
	"github.com/chainsight-ai/chainsight-backend/internal/series"
	"github.com/chainsight-ai/chainsight-backend/pkg/config"
	"github.com/shopspring/decimal"
)

// Engineer derives one feature vector per (item, store) history.
type Engineer struct {
	cfg config.AnalyticsConfig
}

func NewEngineer(cfg config.AnalyticsConfig) *Engineer {
	return &Engineer{cfg: cfg}
}

// Compute derives the feature vector for a single history. Histories shorter
// than the configured minimum still produce the cheap fields; the classifier
// consults HistoryDays before trusting seasonality or trend.
func (e *Engineer) Compute(hist series.History) Vector {
	records := hist.Records
	historyDays := len(records)

	v := Vector{
		ItemID:              hist.Key.ItemID,
		StoreID:             hist.Key.StoreID,
		HistoryDays:         historyDays,
		SupplierReliability: clamp01(hist.OTIF),
	}
	if historyDays == 0 {
		return v
	}

	v.AnnualRevenue = e.annualRevenue(records)
	v.DemandCV, v.ADI = demandShape(records)
	v.StockoutFrequency = stockoutFrequency(records)

	units := make([]float64, historyDays)
	for i, rec := range records {
		units[i] = rec.UnitsSold
	}

	slope, _, r2 := olsFit(units)
	v.TrendSlope = sanitize(slope)
	v.TrendR2 = r2

	if historyDays >= e.cfg.MinHistoryDays {
		v.SeasonalityStrength = spectralStrength(detrend(units))
	}

	return v
}

// annualRevenue sums revenue over the trailing revenue window, or the full
// history when shorter. Decimal arithmetic keeps the ranking sums exact.
func (e *Engineer) annualRevenue(records []series.Record) float64 {
	lastDate := records[len(records)-1].Date
	cutoff := lastDate.AddDate(0, 0, -(e.cfg.RevenueWindowDays - 1))

	total := decimal.Zero
	for _, rec := range records {
		if rec.Date.Before(cutoff) {
			continue
		}
		total = total.Add(rec.Revenue)
	}
	return sanitize(total.InexactFloat64())
}

// demandShape returns the coefficient of variation of non-zero demand days
// and the average demand interval. A group that sold every day has ADI 1; a
// group that never sold spans the whole window as one interval.
func demandShape(records []series.Record) (cv, adi float64) {
	nonZero := make([]float64, 0, len(records))
	for _, rec := range records {
		if rec.UnitsSold > 0 {
			nonZero = append(nonZero, rec.UnitsSold)
		}
	}

	if len(nonZero) == 0 {
		return 0, float64(len(records))
	}

	mean, std := meanStd(nonZero)
	if mean > 0 {
		cv = sanitize(std / mean)
	}

	adi = float64(len(records)) / float64(len(nonZero))
	if adi < 1 {
		adi = 1
	}
	return cv, adi
}

func stockoutFrequency(records []series.Record) float64 {
	outages := 0
	for _, rec := range records {
		if !rec.InStock {
			outages++
		}
	}
	return float64(outages) / float64(len(records))
}
