package store

import (
	"context"
	"fmt"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/rs/zerolog"

	"memwatch/internal/models"
)

// Property: persisting a history then loading it reproduces equal records (in
// order) and an equal last-prices mapping, for both backends.
func TestProperty_HistoryRoundTrip(t *testing.T) {
	dir := t.TempDir()

	sqliteStore, err := NewSQLiteStore(filepath.Join(dir, "prices.db"), zerolog.Nop())
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer sqliteStore.Close()

	stores := map[string]HistoryStore{
		"json":   NewJSONStore(filepath.Join(dir, "prices.json"), zerolog.Nop()),
		"sqlite": sqliteStore,
	}

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	for name, s := range stores {
		s := s
		properties.Property(name+" round-trip: save then load produces equal history", prop.ForAll(
			func(records int, products int, basePrice float64) bool {
				ctx := context.Background()
				h := generateHistory(records, products, basePrice)

				if err := s.Save(ctx, h); err != nil {
					t.Logf("Failed to save history: %v", err)
					return false
				}

				loaded, err := s.Load(ctx)
				if err != nil {
					t.Logf("Failed to load history: %v", err)
					return false
				}

				if !reflect.DeepEqual(h.Records, loaded.Records) {
					t.Logf("Records mismatch: saved=%d loaded=%d", len(h.Records), len(loaded.Records))
					return false
				}
				if !reflect.DeepEqual(h.LastPrices, loaded.LastPrices) {
					t.Logf("Last prices mismatch: saved=%v loaded=%v", h.LastPrices, loaded.LastPrices)
					return false
				}
				return true
			},
			gen.IntRange(0, 40),
			gen.IntRange(0, 8),
			gen.Float64Range(1.0, 500.0),
		))
	}

	properties.TestingRun(t)
}

// generateHistory builds a history through Append so retention applies.
func generateHistory(records, products int, basePrice float64) *models.History {
	h := models.NewHistory()
	start := time.Date(2026, 1, 1, 11, 0, 0, 0, time.UTC)

	for i := 0; i < records; i++ {
		ts := start.AddDate(0, 0, 7*i)
		prices := make(map[string]float64, products)
		for p := 0; p < products; p++ {
			// Skip some products in some records so records differ in shape.
			if (i+p)%5 == 4 {
				continue
			}
			prices[fmt.Sprintf("DDR5 UDIMM %dGB", 8<<p)] = roundToCents(basePrice*float64(p+1) + float64(i)*0.37)
		}
		h.Append(models.HistoryRecord{
			Date:      ts.Format("2006-01-02"),
			Timestamp: ts.Format(time.RFC3339),
			Prices:    prices,
		})
		h.LastPrices = prices
	}

	return h
}

func roundToCents(v float64) float64 {
	return float64(int64(v*100+0.5)) / 100
}
