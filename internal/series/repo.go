package series

import (
	"context"
	"fmt"
	"sort"

	"gorm.io/gorm"
)

// Repo loads staged history, forecast, and supplier tables from the warehouse.
type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

func (r *Repo) conn(ctx context.Context) *gorm.DB {
	if ctx == nil {
		return r.db
	}
	return r.db.WithContext(ctx)
}

// LoadHistories returns one History per (item, store) group found in the sales
// table, joined in memory with forecasts and OTIF scores. Groups without a
// supplier score carry OTIF 0; the segmenter standardizes features, so a
// missing score lands below the population mean rather than poisoning it.
func (r *Repo) LoadHistories(ctx context.Context) ([]History, error) {
	var records []Record
	if err := r.conn(ctx).
		Order("item_id, store_id, date").
		Find(&records).Error; err != nil {
		return nil, fmt.Errorf("loading sales history: %w", err)
	}

	var forecasts []Forecast
	if err := r.conn(ctx).
		Order("item_id, store_id, date").
		Find(&forecasts).Error; err != nil {
		return nil, fmt.Errorf("loading forecasts: %w", err)
	}

	var scores []SupplierScore
	if err := r.conn(ctx).Find(&scores).Error; err != nil {
		return nil, fmt.Errorf("loading supplier scores: %w", err)
	}

	grouped := map[Key]*History{}
	order := []Key{}
	for _, rec := range records {
		key := Key{ItemID: rec.ItemID, StoreID: rec.StoreID}
		hist, ok := grouped[key]
		if !ok {
			hist = &History{Key: key}
			grouped[key] = hist
			order = append(order, key)
		}
		hist.Records = append(hist.Records, rec)
	}

	for _, fc := range forecasts {
		key := Key{ItemID: fc.ItemID, StoreID: fc.StoreID}
		if hist, ok := grouped[key]; ok {
			hist.Forecasts = append(hist.Forecasts, fc)
		}
	}

	for _, score := range scores {
		key := Key{ItemID: score.ItemID, StoreID: score.StoreID}
		if hist, ok := grouped[key]; ok {
			hist.OTIF = score.OTIFScore
		}
	}

	sort.Slice(order, func(i, j int) bool {
		if order[i].ItemID != order[j].ItemID {
			return order[i].ItemID < order[j].ItemID
		}
		return order[i].StoreID < order[j].StoreID
	})

	histories := make([]History, 0, len(order))
	for _, key := range order {
		histories = append(histories, *grouped[key])
	}
	return histories, nil
}
