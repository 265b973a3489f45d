package features

// Vector is the derived per-(item, store) feature set shared by the
// classifier, the KPI layer, and the segmenter. Vectors are replaced
// wholesale on recompute, never mutated in place.
type Vector struct {
	ItemID  string
	StoreID string

	AnnualRevenue       float64
	DemandCV            float64
	ADI                 float64
	SeasonalityStrength float64
	TrendSlope          float64
	TrendR2             float64
	StockoutFrequency   float64
	SupplierReliability float64
	HistoryDays         int
}

// ClusteringDimensions is the number of features fed into segmentation.
const ClusteringDimensions = 6

// ClusteringPoint projects the vector onto the six dimensions used for
// segmentation, in the fixed order the profiler descriptors assume:
// annual revenue, demand CV, seasonality, trend slope, stockout frequency,
// supplier reliability.
func (v Vector) ClusteringPoint() []float64 {
	return []float64{
		v.AnnualRevenue,
		v.DemandCV,
		v.SeasonalityStrength,
		v.TrendSlope,
		v.StockoutFrequency,
		v.SupplierReliability,
	}
}
