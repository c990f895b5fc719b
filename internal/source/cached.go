package source

import (
	"memwatch/internal/config"
	"memwatch/internal/models"
)

// CachedDDRChannel returns the last known good DDR channel-market snapshot.
// It is served when the live page cannot be fetched.
func CachedDDRChannel() models.CategorySnapshot {
	q := func(product string, price, change, pct, lastWeek, high, low float64) models.ProductQuote {
		return models.ProductQuote{
			Product:       product,
			Price:         models.Float(price),
			Change:        models.Float(change),
			ChangePercent: models.Float(pct),
			LastWeekPrice: models.Float(lastWeek),
			WeekHigh:      models.Float(high),
			WeekLow:       models.Float(low),
			Trend:         models.TrendFromChange(change),
		}
	}

	return models.CategorySnapshot{
		UpdateTime: models.DefaultDataUpdateTime,
		Source:     SourceName + CachedSuffix,
		URL:        config.DefaultPageURL,
		Currency:   Currency,
		Products: []models.ProductQuote{
			q("DDR4 UDIMM 8GB 3200", 47.00, 2.00, 4.44, 45.00, 52.00, 45.00),
			q("DDR4 UDIMM 16GB 3200", 90.00, 5.00, 5.88, 85.00, 100.60, 89.00),
			q("DDR4 UDIMM 32GB 3200", 160.00, 20.00, 14.29, 140.00, 170.00, 155.00),
			q("DDR5 UDIMM 16GB 5600", 160.00, 35.00, 28.00, 125.00, 162.00, 158.00),
			q("DDR5 UDIMM 16GB 6000", 170.00, 25.00, 17.24, 145.00, 172.00, 167.00),
			q("DDR5 UDIMM 32GB 5600", 260.00, 30.00, 13.04, 230.00, 263.00, 257.00),
			q("DDR5 UDIMM 32GB 6000", 270.00, 20.00, 8.00, 250.00, 273.00, 267.00),
		},
	}
}
