package series

import (
	"time"

	"github.com/shopspring/decimal"
)

// Record is one observed day of selling history for an (item, store) pair.
// Rows are staged by the upstream warehouse jobs; this engine only reads them.
type Record struct {
	Date      time.Time       `gorm:"column:date;primaryKey"`
	ItemID    string          `gorm:"column:item_id;primaryKey"`
	StoreID   string          `gorm:"column:store_id;primaryKey"`
	UnitsSold float64         `gorm:"column:units_sold"`
	Revenue   decimal.Decimal `gorm:"column:revenue"`
	PriceMin  decimal.Decimal `gorm:"column:price_min"`
	PriceMax  decimal.Decimal `gorm:"column:price_max"`
	PriceAvg  decimal.Decimal `gorm:"column:price_avg"`
	InStock   bool            `gorm:"column:in_stock"`
}

func (Record) TableName() string {
	return "daily_item_store_sales"
}

// Forecast is one externally supplied forecast value. The engine never
// generates forecasts; it only scores them.
type Forecast struct {
	Date          time.Time `gorm:"column:date;primaryKey"`
	ItemID        string    `gorm:"column:item_id;primaryKey"`
	StoreID       string    `gorm:"column:store_id;primaryKey"`
	ForecastUnits float64   `gorm:"column:forecast_units"`
}

func (Forecast) TableName() string {
	return "daily_item_store_forecasts"
}

// SupplierScore is the externally maintained OTIF reliability score for the
// supplier behind an (item, store) pair.
type SupplierScore struct {
	ItemID    string  `gorm:"column:item_id;primaryKey"`
	StoreID   string  `gorm:"column:store_id;primaryKey"`
	OTIFScore float64 `gorm:"column:otif_score"`
}

func (SupplierScore) TableName() string {
	return "supplier_otif_scores"
}

// Key identifies one (item, store) group.
type Key struct {
	ItemID  string
	StoreID string
}

// History bundles everything the engine needs for one (item, store) group.
// Records and Forecasts are date-ascending.
type History struct {
	Key       Key
	Records   []Record
	Forecasts []Forecast
	OTIF      float64
}
