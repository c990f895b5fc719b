// Package tracker merges price snapshots into the persisted history and
// derives the change-set consumed by reports.
package tracker

import (
	"cmp"
	"fmt"
	"slices"
	"time"

	"github.com/shopspring/decimal"

	"memwatch/internal/models"
)

// DeltaStrategy selects where a product's per-run change comes from.
type DeltaStrategy string

const (
	// DeltaFromSnapshot copies change and change percent from the snapshot.
	DeltaFromSnapshot DeltaStrategy = "snapshot"
	// DeltaFromHistory recomputes change against the previous last price,
	// falling back to the snapshot's values for products with no baseline.
	DeltaFromHistory DeltaStrategy = "history"
)

// ParseDeltaStrategy converts a configuration value into a DeltaStrategy.
func ParseDeltaStrategy(s string) (DeltaStrategy, error) {
	switch DeltaStrategy(s) {
	case DeltaFromSnapshot, "":
		return DeltaFromSnapshot, nil
	case DeltaFromHistory:
		return DeltaFromHistory, nil
	default:
		return "", fmt.Errorf("unknown delta strategy %q", s)
	}
}

// MergeStats describes entries dropped during a merge.
type MergeStats struct {
	MissingPrice []string // products without a price
	Unnamed      int      // entries without a product name
	Duplicates   []string // repeated product names, later occurrences
}

// Skipped returns the number of dropped entries.
func (s MergeStats) Skipped() int {
	return len(s.MissingPrice) + s.Unnamed + len(s.Duplicates)
}

// Merge folds snap into h and returns the new history and the change-set.
// h is not modified.
func Merge(h *models.History, snap models.Snapshot, now time.Time, strategy DeltaStrategy) (*models.History, *models.ChangeSet, MergeStats) {
	var stats MergeStats
	date := now.Format("2006-01-02")

	baseline := h.LastPrices
	all := make([]models.PriceRecord, 0, snap.Len())
	newLastPrices := make(map[string]float64, snap.Len())

	for _, cat := range snap.Categories {
		for _, q := range cat.Products {
			switch {
			case q.Product == "":
				stats.Unnamed++
				continue
			case q.Price == nil:
				stats.MissingPrice = append(stats.MissingPrice, q.Product)
				continue
			}
			if _, seen := newLastPrices[q.Product]; seen {
				stats.Duplicates = append(stats.Duplicates, q.Product)
				continue
			}

			rec := newPriceRecord(cat, q)
			if strategy == DeltaFromHistory {
				if prev, ok := baseline[q.Product]; ok {
					rec.Change, rec.ChangePercent = deltaFrom(prev, rec.Price)
					rec.Trend = models.TrendFromChange(rec.Change)
				}
			}

			all = append(all, rec)
			newLastPrices[q.Product] = rec.Price
		}
	}

	next := h.Clone()
	next.Append(models.HistoryRecord{
		Date:      date,
		Timestamp: now.Format(time.RFC3339),
		Prices:    newLastPrices,
	})
	next.LastPrices = cloneMap(newLastPrices)

	cs := &models.ChangeSet{
		Date:          date,
		AllProducts:   all,
		PriceUps:      rising(all),
		PriceDowns:    falling(all),
		TotalProducts: len(all),
	}

	return next, cs, stats
}

func newPriceRecord(cat models.Category, q models.ProductQuote) models.PriceRecord {
	rec := models.PriceRecord{
		Product:       q.Product,
		Category:      cat.Name,
		Price:         *q.Price,
		Change:        deref(q.Change),
		ChangePercent: deref(q.ChangePercent),
		LastWeekPrice: copyFloat(q.LastWeekPrice),
		WeekHigh:      copyFloat(q.WeekHigh),
		WeekLow:       copyFloat(q.WeekLow),
		Trend:         q.Trend,
		UpdateTime:    cat.UpdateTime,
		Source:        cat.Source,
		SourceURL:     cat.URL,
	}
	if rec.Trend == "" {
		rec.Trend = models.TrendFromChange(rec.Change)
	}
	return rec
}

// deltaFrom returns the change from prev to price and the percentage change
// rounded to two decimal places.
func deltaFrom(prev, price float64) (float64, float64) {
	p := decimal.NewFromFloat(price)
	b := decimal.NewFromFloat(prev)
	change := p.Sub(b)
	if b.IsZero() {
		return change.InexactFloat64(), 0
	}
	pct := change.Div(b).Mul(decimal.NewFromInt(100)).Round(2)
	return change.InexactFloat64(), pct.InexactFloat64()
}

// rising returns products with a positive change, largest percent first.
func rising(all []models.PriceRecord) []models.PriceRecord {
	ups := make([]models.PriceRecord, 0)
	for _, p := range all {
		if p.IsUp() {
			ups = append(ups, p)
		}
	}
	slices.SortStableFunc(ups, func(a, b models.PriceRecord) int {
		return cmp.Compare(b.ChangePercent, a.ChangePercent)
	})
	return ups
}

// falling returns products with a negative change, most negative percent first.
func falling(all []models.PriceRecord) []models.PriceRecord {
	downs := make([]models.PriceRecord, 0)
	for _, p := range all {
		if p.IsDown() {
			downs = append(downs, p)
		}
	}
	slices.SortStableFunc(downs, func(a, b models.PriceRecord) int {
		return cmp.Compare(a.ChangePercent, b.ChangePercent)
	})
	return downs
}

func deref(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}

func copyFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func cloneMap(m map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
