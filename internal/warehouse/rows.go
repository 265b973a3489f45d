package warehouse

import "time"

// PatternRow mirrors the demand_patterns warehouse schema: one classified
// feature vector per (item, store) group per run.
type PatternRow struct {
	RunID      string    `bigquery:"run_id"`
	ItemID     string    `bigquery:"item_id"`
	StoreID    string    `bigquery:"store_id"`
	ComputedAt time.Time `bigquery:"computed_at"`

	Pattern string `bigquery:"pattern"`

	HistoryDays         int     `bigquery:"history_days"`
	DemandCV            float64 `bigquery:"demand_cv"`
	ADI                 float64 `bigquery:"adi"`
	SeasonalityStrength float64 `bigquery:"seasonality_strength"`
	TrendSlope          float64 `bigquery:"trend_slope"`
	TrendR2             float64 `bigquery:"trend_r2"`
	StockoutFrequency   float64 `bigquery:"stockout_frequency"`
	SupplierReliability float64 `bigquery:"supplier_reliability"`
	AnnualRevenue       float64 `bigquery:"annual_revenue"`
}

// KPIRow mirrors the demand_kpis warehouse schema.
type KPIRow struct {
	RunID      string    `bigquery:"run_id"`
	ItemID     string    `bigquery:"item_id"`
	StoreID    string    `bigquery:"store_id"`
	ComputedAt time.Time `bigquery:"computed_at"`

	MAE            float64 `bigquery:"mae"`
	MAPE           float64 `bigquery:"mape"`
	AvgBias        float64 `bigquery:"avg_bias"`
	BiasPct        float64 `bigquery:"bias_pct"`
	RMSE           float64 `bigquery:"rmse"`
	TrackingSignal float64 `bigquery:"tracking_signal"`

	ServiceLevel      float64 `bigquery:"service_level"`
	StockoutFrequency float64 `bigquery:"stockout_frequency"`
	TurnoverProxy     float64 `bigquery:"turnover_proxy"`
	DaysOfSupply      float64 `bigquery:"days_of_supply"`
	FillRate          float64 `bigquery:"fill_rate"`
	PriceVolatility   float64 `bigquery:"price_volatility"`

	AccuracyCategory string `bigquery:"accuracy_category"`
	BiasDirection    string `bigquery:"bias_direction"`
	ServiceRating    string `bigquery:"service_rating"`
	XYZClass         string `bigquery:"xyz_class"`
	ABCClass         string `bigquery:"abc_class"`
}

// ClusterAssignmentRow mirrors the cluster_assignments warehouse schema. Only
// groups with enough history to be segmented produce a row.
type ClusterAssignmentRow struct {
	RunID      string    `bigquery:"run_id"`
	ItemID     string    `bigquery:"item_id"`
	StoreID    string    `bigquery:"store_id"`
	ComputedAt time.Time `bigquery:"computed_at"`

	ClusterID        int     `bigquery:"cluster_id"`
	Archetype        string  `bigquery:"archetype"`
	DistanceToCenter float64 `bigquery:"distance_to_center"`
}

// CentroidRow mirrors the cluster_centroids warehouse schema: one row per
// cluster per run, with the centroid in standardized feature space.
type CentroidRow struct {
	RunID      string    `bigquery:"run_id"`
	ComputedAt time.Time `bigquery:"computed_at"`

	ClusterID   int    `bigquery:"cluster_id"`
	Archetype   string `bigquery:"archetype"`
	MemberCount int    `bigquery:"member_count"`
	Converged   bool   `bigquery:"converged"`
	Iterations  int    `bigquery:"iterations"`

	AnnualRevenueZ       float64 `bigquery:"annual_revenue_z"`
	DemandCVZ            float64 `bigquery:"demand_cv_z"`
	SeasonalityStrengthZ float64 `bigquery:"seasonality_strength_z"`
	TrendSlopeZ          float64 `bigquery:"trend_slope_z"`
	StockoutFrequencyZ   float64 `bigquery:"stockout_frequency_z"`
	SupplierReliabilityZ float64 `bigquery:"supplier_reliability_z"`
}
