package kpi

import (
	"math"
	"sort"

	"github.com/chainsight-ai/chainsight-backend/internal/series"
	"github.com/shopspring/decimal"
)

// Categorical band names.
const (
	BandExcellent = "Excellent"
	BandGood      = "Good"
	BandFair      = "Fair"
	BandPoor      = "Poor"

	BiasUnbiased = "Unbiased"
	BiasOver     = "Over-forecasting"
	BiasUnder    = "Under-forecasting"

	ClassX = "X"
	ClassY = "Y"
	ClassZ = "Z"

	ClassA = "A"
	ClassB = "B"
	ClassC = "C"
)

// AccuracyCategory bands MAPE into a forecast-quality rating.
func (e *Engine) AccuracyCategory(mape float64) string {
	switch {
	case mape < e.cfg.MAPEExcellent:
		return BandExcellent
	case mape < e.cfg.MAPEGood:
		return BandGood
	case mape < e.cfg.MAPEFair:
		return BandFair
	default:
		return BandPoor
	}
}

// BiasDirection reports systematic over- or under-forecasting. Bias within
// the neutral band counts as unbiased regardless of sign.
func (e *Engine) BiasDirection(biasPct float64) string {
	switch {
	case math.Abs(biasPct) < e.cfg.BiasNeutralBand:
		return BiasUnbiased
	case biasPct > 0:
		return BiasOver
	default:
		return BiasUnder
	}
}

// ServiceRating bands the in-stock ratio.
func (e *Engine) ServiceRating(serviceLevel float64) string {
	switch {
	case serviceLevel >= e.cfg.ServiceExcellent:
		return BandExcellent
	case serviceLevel >= e.cfg.ServiceGood:
		return BandGood
	case serviceLevel >= e.cfg.ServiceFair:
		return BandFair
	default:
		return BandPoor
	}
}

// XYZClass tiers demand volatility by coefficient of variation.
func (e *Engine) XYZClass(demandCV float64) string {
	switch {
	case demandCV < e.cfg.XYZXMax:
		return ClassX
	case demandCV < e.cfg.XYZYMax:
		return ClassY
	default:
		return ClassZ
	}
}

// ItemRevenue is one entry in the revenue ranking used for ABC.
type ItemRevenue struct {
	Key     series.Key
	Revenue decimal.Decimal
}

// ABCClassify ranks the population by revenue descending and partitions it by
// running cumulative share: A while the running total stays within the A
// share, B within the B share, C for the tail. This is a partition over the
// whole ranked population, not a per-item threshold. A population with zero
// total revenue is all C.
func (e *Engine) ABCClassify(items []ItemRevenue) map[series.Key]string {
	classes := make(map[series.Key]string, len(items))
	if len(items) == 0 {
		return classes
	}

	ranked := make([]ItemRevenue, len(items))
	copy(ranked, items)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Revenue.GreaterThan(ranked[j].Revenue)
	})

	total := decimal.Zero
	for _, item := range ranked {
		total = total.Add(item.Revenue)
	}
	if total.IsZero() {
		for _, item := range ranked {
			classes[item.Key] = ClassC
		}
		return classes
	}

	aCut := total.Mul(decimal.NewFromFloat(e.cfg.ABCAShare))
	bCut := total.Mul(decimal.NewFromFloat(e.cfg.ABCBShare))

	running := decimal.Zero
	for _, item := range ranked {
		running = running.Add(item.Revenue)
		switch {
		case running.LessThanOrEqual(aCut):
			classes[item.Key] = ClassA
		case running.LessThanOrEqual(bCut):
			classes[item.Key] = ClassB
		default:
			classes[item.Key] = ClassC
		}
	}
	return classes
}
