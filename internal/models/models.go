// Package models provides domain models for the price monitor.
package models

import "github.com/shopspring/decimal"

// DefaultDataUpdateTime is reported when no product carries an update time.
const DefaultDataUpdateTime = "2026-01-20 11:00"

// PriceRecord is one product's state for the current run.
type PriceRecord struct {
	Product       string   `json:"product"`
	Category      string   `json:"category"`
	Price         float64  `json:"price"`
	Change        float64  `json:"change"`         // current price minus last recorded price
	ChangePercent float64  `json:"change_percent"` // percent
	LastWeekPrice *float64 `json:"last_week_price"`
	WeekHigh      *float64 `json:"week_high"`
	WeekLow       *float64 `json:"week_low"`
	Trend         Trend    `json:"trend"`
	UpdateTime    string   `json:"update_time"`
	Source        string   `json:"source"`
	SourceURL     string   `json:"source_url"`
}

// IsUp reports whether the price rose.
func (p PriceRecord) IsUp() bool { return p.Change > 0 }

// IsDown reports whether the price fell.
func (p PriceRecord) IsDown() bool { return p.Change < 0 }

// ChangeSet summarizes one snapshot's classification against history.
type ChangeSet struct {
	Date          string        `json:"date"`
	AllProducts   []PriceRecord `json:"all_products"`
	PriceUps      []PriceRecord `json:"price_ups"`
	PriceDowns    []PriceRecord `json:"price_downs"`
	TotalProducts int           `json:"total_products"`
}

// Flat returns the products whose price did not move, in encounter order.
func (c *ChangeSet) Flat() []PriceRecord {
	var flat []PriceRecord
	for _, p := range c.AllProducts {
		if p.Change == 0 {
			flat = append(flat, p)
		}
	}
	return flat
}

// AverageChangePercent returns the mean change percent across all products,
// or zero when there are none.
func (c *ChangeSet) AverageChangePercent() float64 {
	if len(c.AllProducts) == 0 {
		return 0
	}
	sum := decimal.Zero
	for _, p := range c.AllProducts {
		sum = sum.Add(decimal.NewFromFloat(p.ChangePercent))
	}
	avg := sum.Div(decimal.NewFromInt(int64(len(c.AllProducts))))
	return avg.Round(2).InexactFloat64()
}

// DataUpdateTime returns the first non-empty source update time.
func (c *ChangeSet) DataUpdateTime() string {
	for _, p := range c.AllProducts {
		if p.UpdateTime != "" {
			return p.UpdateTime
		}
	}
	return DefaultDataUpdateTime
}
